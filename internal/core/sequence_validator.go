package core

import (
	"fmt"
)

// SequenceValidator enforces gapless ordering per upstream feed
// partition. Commands submitted over the API carry no source sequence
// and skip validation entirely; only feed-originated events (source
// sequence > 0) are checked.
type SequenceValidator struct {
	expectedNext map[string]int64
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{expectedNext: make(map[string]int64)}
}

// Validate checks an incoming source sequence against the partition's
// expected next value and advances it on success. Duplicates that were
// already detected by idempotency are allowed through without
// advancing.
func (v *SequenceValidator) Validate(partition string, sourceSeq int64, isDuplicate bool) error {
	if sourceSeq <= 0 {
		return nil
	}
	expected, seen := v.expectedNext[partition]
	if !seen {
		// First event on this partition establishes the baseline.
		v.expectedNext[partition] = sourceSeq + 1
		return nil
	}
	if isDuplicate && sourceSeq < expected {
		return nil
	}
	if sourceSeq != expected {
		return fmt.Errorf("partition %s: source sequence %d, expected %d", partition, sourceSeq, expected)
	}
	v.expectedNext[partition] = sourceSeq + 1
	return nil
}

// Snapshot returns the expected-next map for persistence.
func (v *SequenceValidator) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(v.expectedNext))
	for k, s := range v.expectedNext {
		out[k] = s
	}
	return out
}

// Restore replaces validator state from a snapshot.
func (v *SequenceValidator) Restore(state map[string]int64) {
	v.expectedNext = make(map[string]int64, len(state))
	for k, s := range state {
		v.expectedNext[k] = s
	}
}
