package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of state transition an event drives.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePoolCreated
	EventTypeFundsAdded
	EventTypePolicyPurchased
	EventTypeClaimRequested
)

func (t EventType) String() string {
	switch t {
	case EventTypePoolCreated:
		return "pool_created"
	case EventTypeFundsAdded:
		return "funds_added"
	case EventTypePolicyPurchased:
		return "policy_purchased"
	case EventTypeClaimRequested:
		return "claim_requested"
	default:
		return "unknown"
	}
}

// ParseEventType maps a persisted type name back to its enum value.
func ParseEventType(name string) EventType {
	switch name {
	case "pool_created":
		return EventTypePoolCreated
	case "funds_added":
		return EventTypeFundsAdded
	case "policy_purchased":
		return EventTypePolicyPurchased
	case "claim_requested":
		return EventTypeClaimRequested
	default:
		return EventTypeUnknown
	}
}

// Event is the contract every inbound operation satisfies before the
// engine will process it.
type Event interface {
	// IdempotencyKey uniquely identifies this event for exactly-once
	// processing. Replays with the same key are rejected.
	IdempotencyKey() string

	// Type returns the event type for dispatch and metrics.
	Type() EventType

	// PoolID returns the pool this event targets, or nil for events
	// that are not scoped to a single pool.
	PoolID() *uuid.UUID

	// SourceSequence returns the upstream feed sequence number, or 0
	// for commands submitted directly over the API (unsequenced).
	SourceSequence() int64
}

// EventEnvelope is the engine-assigned record of an applied event. It
// carries the global sequence and hash chain fields that make the log
// verifiable.
type EventEnvelope struct {
	Sequence       int64
	EventType      EventType
	IdempotencyKey string
	PoolID         *uuid.UUID
	SourceSequence int64
	Timestamp      time.Time
	StateHash      [32]byte
	PrevHash       [32]byte
}
