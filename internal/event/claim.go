package event

import (
	"time"

	"github.com/google/uuid"
)

// ClaimRequested settles a policy against a delay determination
// supplied by the caller. IsDelayed is taken at face value; the engine
// does not consult the oracle itself. A request with IsDelayed=false
// records nothing on the policy and may be resubmitted later.
type ClaimRequested struct {
	ClaimID   uuid.UUID
	Pool      uuid.UUID
	PolicyID  int64
	IsDelayed bool
	Sequence  int64
	Timestamp time.Time
}

func (e *ClaimRequested) IdempotencyKey() string { return e.ClaimID.String() }
func (e *ClaimRequested) Type() EventType        { return EventTypeClaimRequested }
func (e *ClaimRequested) PoolID() *uuid.UUID     { return &e.Pool }
func (e *ClaimRequested) SourceSequence() int64  { return e.Sequence }
