package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"FlightPool/internal/core"
	"FlightPool/internal/event"
	"FlightPool/internal/observability"
)

const workerID = "projections"

// Worker maintains the read-side tables in the projections schema.
// It consumes engine outputs best effort: a dropped output only delays
// the read model, which can always be rebuilt from the event log.
type Worker struct {
	db      *sql.DB
	input   <-chan core.Output
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewWorker(db *sql.DB, input <-chan core.Output, metrics *observability.Metrics, logger zerolog.Logger) *Worker {
	return &Worker{db: db, input: input, metrics: metrics, logger: logger}
}

// Run consumes until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("projection worker stopped")
			return
		case out := <-w.input:
			if err := w.apply(ctx, out); err != nil {
				if w.metrics != nil {
					w.metrics.ProjectionErrors.Inc()
				}
				w.logger.Error().
					Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Msg("projection update failed")
			}
		}
	}
}

func (w *Worker) apply(ctx context.Context, out core.Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin projection tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seq := out.Envelope.Sequence

	switch ev := out.Event.(type) {
	case *event.PoolCreated:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.pools (pool_id, premium_amount, payout_amount, created_sequence)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (pool_id) DO NOTHING`,
			ev.Pool.String(), ev.PremiumAmount, ev.PayoutAmount, seq); err != nil {
			return fmt.Errorf("project pool: %w", err)
		}
	case *event.PolicyPurchased:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.policies
				(pool_id, policy_id, policyholder, flight_number, departure_time_us, claimed, active, last_sequence)
			VALUES ($1, $2, $3, $4, $5, FALSE, TRUE, $6)
			ON CONFLICT (pool_id, policy_id) DO NOTHING`,
			ev.Pool.String(), out.Result.PolicyID, ev.Policyholder.String(),
			ev.FlightNumber, ev.DepartureTime.UnixMicro(), seq); err != nil {
			return fmt.Errorf("project policy: %w", err)
		}
	case *event.ClaimRequested:
		if out.Result.Eligible {
			if _, err := tx.ExecContext(ctx, `
				UPDATE projections.policies
				SET claimed = TRUE, last_sequence = $3
				WHERE pool_id = $1 AND policy_id = $2`,
				ev.Pool.String(), ev.PolicyID, seq); err != nil {
				return fmt.Errorf("project claim: %w", err)
			}
		}
	}

	for _, j := range out.Batch.Journals {
		for _, side := range []struct {
			path  string
			delta int64
		}{
			{j.DebitAccount.AccountPath(), j.Amount},
			{j.CreditAccount.AccountPath(), -j.Amount},
		} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO projections.balances (account_path, balance, last_sequence)
				VALUES ($1, $2, $3)
				ON CONFLICT (account_path) DO UPDATE
				SET balance = projections.balances.balance + EXCLUDED.balance,
				    last_sequence = EXCLUDED.last_sequence
				WHERE projections.balances.last_sequence < EXCLUDED.last_sequence`,
				side.path, side.delta, seq); err != nil {
				return fmt.Errorf("project balance %s: %w", side.path, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (worker_id) DO UPDATE
		SET last_sequence = EXCLUDED.last_sequence, updated_at = now()`,
		workerID, seq); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit projection: %w", err)
	}

	if w.metrics != nil {
		w.metrics.ProjectionLag.Set(0)
	}
	return nil
}

// Rebuild reconstructs the balance projection from the journal and
// resets the watermark. Pools and policies are rebuilt by engine
// replay, which re-emits their events through this worker.
func Rebuild(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `TRUNCATE projections.balances`); err != nil {
		return fmt.Errorf("truncate balances: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT account_path, SUM(delta), MAX(sequence)
		FROM (
			SELECT debit_account AS account_path, amount AS delta, sequence FROM flight_log.journal
			UNION ALL
			SELECT credit_account AS account_path, -amount AS delta, sequence FROM flight_log.journal
		) sides
		GROUP BY account_path`); err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		SELECT $1, COALESCE(MAX(sequence), 0), now() FROM flight_log.events
		ON CONFLICT (worker_id) DO UPDATE
		SET last_sequence = EXCLUDED.last_sequence, updated_at = now()`,
		workerID); err != nil {
		return fmt.Errorf("reset watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}
