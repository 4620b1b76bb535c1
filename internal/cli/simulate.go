package cli

import (
	"github.com/spf13/cobra"

	"stablemint/internal/app"
)

var (
	simulatePersist bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "在内存中演练一次完整的清算流程",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Persist: simulatePersist,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simulatePersist, "persist", false, "将模拟结果写入数据库并触发告警通道")
}
