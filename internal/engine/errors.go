package engine

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrZeroAmount rejects zero or negative amounts.
	ErrZeroAmount = errors.New("engine: amount must be positive")
	// ErrAssetNotAllowed rejects assets outside the construction-time allow list.
	ErrAssetNotAllowed = errors.New("engine: asset not on the allow list")
	// ErrLengthMismatch rejects construction with unequal asset and feed lists.
	ErrLengthMismatch = errors.New("engine: asset and feed lists differ in length")
	// ErrDuplicateAsset rejects construction with a repeated asset.
	ErrDuplicateAsset = errors.New("engine: asset registered twice")
	// ErrMissingToken rejects construction when an asset has no token ledger.
	ErrMissingToken = errors.New("engine: no token ledger for asset")
	// ErrNilCollaborator rejects construction without a debt token or oracle guard.
	ErrNilCollaborator = errors.New("engine: debt token and oracle guard are required")
	// ErrTransferFailed surfaces a refused external token transfer.
	ErrTransferFailed = errors.New("engine: token transfer failed")
	// ErrMintFailed surfaces a refused external debt-token mint.
	ErrMintFailed = errors.New("engine: debt token mint failed")
	// ErrHealthFactorOk rejects liquidation of a healthy position.
	ErrHealthFactorOk = errors.New("engine: target health factor above minimum")
	// ErrHealthFactorNotImproved rejects a liquidation that left the target no healthier.
	ErrHealthFactorNotImproved = errors.New("engine: liquidation did not improve target health")
	// ErrReentrancyDetected rejects a call arriving while the guard is held.
	ErrReentrancyDetected = errors.New("engine: reentrant call detected")
	// ErrInsufficientCollateral rejects seizing or withdrawing more than is held.
	ErrInsufficientCollateral = errors.New("engine: insufficient collateral balance")
	// ErrInsufficientDebt rejects burning more debt than is outstanding.
	ErrInsufficientDebt = errors.New("engine: burn exceeds outstanding debt")
)

// BreaksHealthFactorError reports an operation that would leave the
// acting account below the minimum health factor. It carries the
// computed ratio for diagnostics.
type BreaksHealthFactorError struct {
	HealthFactor *big.Int
}

func (e *BreaksHealthFactorError) Error() string {
	return fmt.Sprintf("engine: health factor %s below minimum %s", e.HealthFactor, minHealthFactor)
}
