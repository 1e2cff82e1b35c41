package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker holds the in-memory balance of every ledger account.
// It is owned by the engine goroutine and must not be shared.
//
// Sign convention: applying a journal adds Amount to the debit account
// and subtracts it from the credit account, so the sum over all
// accounts is always zero.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{balances: make(map[AccountKey]int64)}
}

// ApplyJournal moves the journal amount between its two accounts.
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies every journal in order. The caller validates the
// batch first; ApplyBatch never fails partway.
func (bt *BalanceTracker) ApplyBatch(b *Batch) {
	for _, j := range b.Journals {
		bt.ApplyJournal(j)
	}
}

// GetBalance returns the current balance of an account, zero if the
// account has never been touched.
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// PoolCapital is a convenience lookup for a pool's capital balance.
func (bt *BalanceTracker) PoolCapital(poolID uuid.UUID, assetID AssetID) int64 {
	return bt.balances[NewPoolAccountKey(poolID, assetID)]
}

// HolderPayouts returns the cumulative payouts credited to a holder.
func (bt *BalanceTracker) HolderPayouts(holder uuid.UUID, assetID AssetID) int64 {
	return bt.balances[NewHolderAccountKey(holder, assetID)]
}

// ValidatePoolCapital fails if a pool's capital has gone negative.
// This can only happen through a bug; sufficiency is checked before a
// payout is generated.
func (bt *BalanceTracker) ValidatePoolCapital(poolID uuid.UUID, assetID AssetID) error {
	if bal := bt.PoolCapital(poolID, assetID); bal < 0 {
		return fmt.Errorf("pool %s capital is negative: %d", poolID, bal)
	}
	return nil
}

// ComputeGlobalBalance sums every account. A non-zero result means the
// double-entry invariant is broken.
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, bal := range bt.balances {
		total += bal
	}
	return total
}

// Snapshot copies all non-zero balances for persistence.
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	out := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

// Restore overwrites tracker state from a snapshot.
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}

// SetBalance force-sets one account. Used only during recovery.
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}
