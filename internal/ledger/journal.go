package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType names the business operation behind a journal entry.
type JournalType uint8

const (
	JournalTypeFundsAdded JournalType = iota
	JournalTypePremium
	JournalTypePayout
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeFundsAdded:
		return "funds_added"
	case JournalTypePremium:
		return "premium"
	case JournalTypePayout:
		return "payout"
	default:
		return "unknown"
	}
}

// Journal is one double-entry movement. Amount is always positive; the
// direction is carried by which side is debit and which is credit.
type Journal struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID
	Type          JournalType
	DebitAccount  AccountKey
	CreditAccount AccountKey
	Amount        int64
	Sequence      int64
	EventRef      string
	TimestampUs   int64
}

// Batch groups the journals produced by a single event. All journals
// in a batch are applied atomically or not at all. A batch may be
// empty for events that move no money (pool creation, ineligible
// claims).
type Batch struct {
	BatchID  uuid.UUID
	Journals []Journal
}

// NewBatch allocates an empty batch with a fresh identifier.
func NewBatch() *Batch {
	return &Batch{BatchID: uuid.New()}
}

// Add appends a journal, stamping it with the batch ID.
func (b *Batch) Add(j Journal) {
	j.BatchID = b.BatchID
	if j.JournalID == uuid.Nil {
		j.JournalID = uuid.New()
	}
	b.Journals = append(b.Journals, j)
}

// Validate checks structural soundness: positive amounts, consistent
// batch IDs, and no self-transfers. Empty batches are valid.
func (b *Batch) Validate() error {
	for i, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %d: amount must be positive, got %d", i, j.Amount)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %d: batch ID mismatch", i)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %d: debit and credit accounts are identical", i)
		}
	}
	return nil
}
