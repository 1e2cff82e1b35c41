package core

import (
	"errors"

	"github.com/google/uuid"

	"FlightPool/internal/event"
	"FlightPool/internal/ledger"
)

// ErrDuplicateEvent marks an event whose idempotency key has already
// been applied. Feed consumers treat it as success; the API reports a
// conflict.
var ErrDuplicateEvent = errors.New("duplicate event")

// Result is the engine's answer for one processed event.
type Result struct {
	Sequence int64
	PoolID   uuid.UUID
	PolicyID int64
	Eligible bool
	Err      error
}

// Command pairs an event with an optional reply channel. Feed paths
// leave Reply nil (fire and forget); the API path waits on it.
type Command struct {
	Event event.Event
	Reply chan Result
}

// Output is everything downstream consumers need about one applied
// event: the sequenced envelope, the originating event, the journal
// batch and the business result. Sent to the persistence worker
// (blocking, lossless) and the projection worker (best effort).
type Output struct {
	Envelope *event.EventEnvelope
	Event    event.Event
	Batch    *ledger.Batch
	Result   Result
}
