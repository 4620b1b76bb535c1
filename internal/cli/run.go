package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the feed and position monitor",
	Long:  "周期性采样价格源，为每个账户记录健康因子快照，低于阈值时触发告警。",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}
