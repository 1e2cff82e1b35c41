package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator runs the accounting checks the engine depends on.
// A validation failure after state has been applied indicates a bug,
// not bad input; the engine treats it as fatal.
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{tracker: tracker}
}

// ValidateBatch checks a batch before it is applied.
func (v *InvariantValidator) ValidateBatch(b *Batch) error {
	return b.Validate()
}

// ValidatePoolCapital checks that a pool's capital is non-negative
// after an event touching it has been applied.
func (v *InvariantValidator) ValidatePoolCapital(poolID uuid.UUID, assetID AssetID) error {
	return v.tracker.ValidatePoolCapital(poolID, assetID)
}

// ValidateGlobalBalance checks the system-wide zero-sum invariant.
// O(n) over all accounts, so the engine calls it periodically rather
// than per event.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is %d, want 0", total)
	}
	return nil
}
