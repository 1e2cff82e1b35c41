package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// EventRow is one event log record.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	PoolID         *string
	SourceSequence int64
	Payload        []byte
	StateHash      []byte
	PrevHash       []byte
	TimestampUs    int64
}

// JournalRow is one journal record tied to an event sequence.
type JournalRow struct {
	JournalID     string
	BatchID       string
	Sequence      int64
	JournalType   string
	DebitAccount  string
	CreditAccount string
	Amount        int64
	EventRef      string
	TimestampUs   int64
}

// Writer persists event and journal rows. Inserts use ON CONFLICT DO
// NOTHING so a retried batch that partially landed is safe to replay.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// WriteBatch writes events and their journals in one transaction.
func (w *Writer) WriteBatch(ctx context.Context, events []EventRow, journals []JournalRow) error {
	if len(events) == 0 && len(journals) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := writeEvents(ctx, tx, events); err != nil {
		return err
	}
	if err := writeJournals(ctx, tx, journals); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func writeEvents(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 9
	var sb strings.Builder
	sb.WriteString(`INSERT INTO flight_log.events
		(sequence, event_type, idempotency_key, pool_id, source_sequence, payload, state_hash, prev_hash, timestamp_us)
		VALUES `)
	args := make([]interface{}, 0, len(events)*cols)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args, e.Sequence, e.EventType, e.IdempotencyKey, e.PoolID,
			e.SourceSequence, e.Payload, e.StateHash, e.PrevHash, e.TimestampUs)
	}
	sb.WriteString(" ON CONFLICT (sequence) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert %d events: %w", len(events), err)
	}
	return nil
}

func writeJournals(ctx context.Context, tx *sql.Tx, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	const cols = 9
	var sb strings.Builder
	sb.WriteString(`INSERT INTO flight_log.journal
		(journal_id, batch_id, sequence, journal_type, debit_account, credit_account, amount, event_ref, timestamp_us)
		VALUES `)
	args := make([]interface{}, 0, len(journals)*cols)
	for i, j := range journals {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args, j.JournalID, j.BatchID, j.Sequence, j.JournalType,
			j.DebitAccount, j.CreditAccount, j.Amount, j.EventRef, j.TimestampUs)
	}
	sb.WriteString(" ON CONFLICT (journal_id) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert %d journals: %w", len(journals), err)
	}
	return nil
}
