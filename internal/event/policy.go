package event

import (
	"time"

	"github.com/google/uuid"
)

// PolicyPurchased buys coverage for one flight. The payment must equal
// the pool's premium exactly; the engine rejects anything else.
type PolicyPurchased struct {
	PurchaseID    uuid.UUID
	Pool          uuid.UUID
	Policyholder  uuid.UUID
	FlightNumber  string
	DepartureTime time.Time
	Payment       int64
	Sequence      int64
	Timestamp     time.Time
}

func (e *PolicyPurchased) IdempotencyKey() string { return e.PurchaseID.String() }
func (e *PolicyPurchased) Type() EventType        { return EventTypePolicyPurchased }
func (e *PolicyPurchased) PoolID() *uuid.UUID     { return &e.Pool }
func (e *PolicyPurchased) SourceSequence() int64  { return e.Sequence }
