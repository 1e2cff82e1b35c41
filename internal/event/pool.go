package event

import (
	"time"

	"github.com/google/uuid"
)

// PoolCreated registers a new insurance pool with fixed premium and
// payout terms. Terms are immutable after creation.
type PoolCreated struct {
	Pool          uuid.UUID
	PremiumAmount int64
	PayoutAmount  int64
	Sequence      int64
	Timestamp     time.Time
}

func (e *PoolCreated) IdempotencyKey() string { return e.Pool.String() }
func (e *PoolCreated) Type() EventType        { return EventTypePoolCreated }
func (e *PoolCreated) PoolID() *uuid.UUID     { return &e.Pool }
func (e *PoolCreated) SourceSequence() int64  { return e.Sequence }

// FundsAdded credits a pool's capital account with an unconditional
// contribution. Any party may fund a pool; there is no upper bound.
type FundsAdded struct {
	DepositID uuid.UUID
	Pool      uuid.UUID
	Funder    uuid.UUID
	Amount    int64
	Sequence  int64
	Timestamp time.Time
}

func (e *FundsAdded) IdempotencyKey() string { return e.DepositID.String() }
func (e *FundsAdded) Type() EventType        { return EventTypeFundsAdded }
func (e *FundsAdded) PoolID() *uuid.UUID     { return &e.Pool }
func (e *FundsAdded) SourceSequence() int64  { return e.Sequence }
