package query

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FlightPool/internal/ledger"
	"FlightPool/internal/pool"
)

// Service answers read requests from the projections and the event
// log. It never touches engine state; everything here is eventually
// consistent up to the reported as_of_sequence.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) watermark(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE worker_id = 'projections'`,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	return seq.Int64, nil
}

// GetPool returns one pool with its projected balance.
func (s *Service) GetPool(ctx context.Context, poolID uuid.UUID) (*PoolDetail, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	detail := &PoolDetail{PoolID: poolID.String(), AsOfSequence: asOf}
	err = s.db.QueryRowContext(ctx, `
		SELECT premium_amount, payout_amount
		FROM projections.pools WHERE pool_id = $1`,
		poolID.String(),
	).Scan(&detail.PremiumAmount, &detail.PayoutAmount)
	if err == sql.ErrNoRows {
		return nil, pool.ErrPoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pool %s: %w", poolID, err)
	}

	capitalPath := ledger.NewPoolAccountKey(poolID, ledger.AssetETH).AccountPath()
	var balance sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT balance FROM projections.balances WHERE account_path = $1`,
		capitalPath,
	).Scan(&balance)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load pool balance: %w", err)
	}
	detail.Balance = balance.Int64

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projections.policies WHERE pool_id = $1`,
		poolID.String(),
	).Scan(&detail.PolicyCount)
	if err != nil {
		return nil, fmt.Errorf("count policies: %w", err)
	}
	return detail, nil
}

// ListPools returns all pools in creation order.
func (s *Service) ListPools(ctx context.Context) ([]PoolDetail, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.pool_id, p.premium_amount, p.payout_amount, COALESCE(b.balance, 0)
		FROM projections.pools p
		LEFT JOIN projections.balances b
			ON b.account_path = 'pool:' || p.pool_id || ':capital:ETH'
		ORDER BY p.created_sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var pools []PoolDetail
	for rows.Next() {
		d := PoolDetail{AsOfSequence: asOf}
		if err := rows.Scan(&d.PoolID, &d.PremiumAmount, &d.PayoutAmount, &d.Balance); err != nil {
			return nil, err
		}
		pools = append(pools, d)
	}
	return pools, rows.Err()
}

// GetPolicy returns one policy.
func (s *Service) GetPolicy(ctx context.Context, poolID uuid.UUID, policyID int64) (*PolicyDetail, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	d := &PolicyDetail{PoolID: poolID.String(), PolicyID: policyID, AsOfSequence: asOf}
	err = s.db.QueryRowContext(ctx, `
		SELECT policyholder, flight_number, departure_time_us, claimed, active
		FROM projections.policies
		WHERE pool_id = $1 AND policy_id = $2`,
		poolID.String(), policyID,
	).Scan(&d.Policyholder, &d.FlightNumber, &d.DepartureTimeUs, &d.Claimed, &d.Active)
	if err == sql.ErrNoRows {
		return nil, pool.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load policy %d of pool %s: %w", policyID, poolID, err)
	}
	return d, nil
}

// ListPolicies returns a pool's policies in purchase order.
func (s *Service) ListPolicies(ctx context.Context, poolID uuid.UUID, limit, offset int64) ([]PolicyDetail, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, policyholder, flight_number, departure_time_us, claimed, active
		FROM projections.policies
		WHERE pool_id = $1
		ORDER BY policy_id ASC
		LIMIT $2 OFFSET $3`,
		poolID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var policies []PolicyDetail
	for rows.Next() {
		d := PolicyDetail{PoolID: poolID.String(), AsOfSequence: asOf}
		if err := rows.Scan(&d.PolicyID, &d.Policyholder, &d.FlightNumber, &d.DepartureTimeUs, &d.Claimed, &d.Active); err != nil {
			return nil, err
		}
		policies = append(policies, d)
	}
	return policies, rows.Err()
}

// GetJournalHistory returns ledger movements touching a pool's
// capital account, newest first.
func (s *Service) GetJournalHistory(ctx context.Context, poolID uuid.UUID, limit int64) ([]JournalEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	capitalPath := ledger.NewPoolAccountKey(poolID, ledger.AssetETH).AccountPath()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, journal_type, debit_account, credit_account, amount, event_ref, timestamp_us
		FROM flight_log.journal
		WHERE debit_account = $1 OR credit_account = $1
		ORDER BY sequence DESC
		LIMIT $2`,
		capitalPath, limit)
	if err != nil {
		return nil, fmt.Errorf("journal history: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.Sequence, &e.JournalType, &e.DebitAccount, &e.CreditAccount, &e.Amount, &e.EventRef, &e.TimestampUs); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyIntegrity walks the persisted hash chain and checks that the
// projected balances still sum to zero and still agree with a fold of
// the journal. Intended for operators; it scans the whole log.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{ChainIntact: true, CheckedAt: time.Now().UTC()}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, state_hash, prev_hash FROM flight_log.events ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	defer rows.Close()

	var prev []byte
	for rows.Next() {
		var seq int64
		var stateHash, prevHash []byte
		if err := rows.Scan(&seq, &stateHash, &prevHash); err != nil {
			return nil, err
		}
		if prev != nil && !bytes.Equal(prevHash, prev) {
			report.ChainIntact = false
			report.BrokenAt = seq
			break
		}
		prev = stateHash
		report.EventsChecked++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The projections fold the journal account by account; a corrupt or
	// missed update breaks the zero-sum even though the journal itself
	// is balanced row by row.
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(balance), 0) FROM projections.balances`,
	).Scan(&report.GlobalBalance)
	if err != nil {
		return nil, fmt.Errorf("sum balances: %w", err)
	}

	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT account_path, SUM(delta) AS folded FROM (
				SELECT debit_account AS account_path, amount AS delta
				FROM flight_log.journal WHERE sequence <= $1
				UNION ALL
				SELECT credit_account, -amount
				FROM flight_log.journal WHERE sequence <= $1
			) sides GROUP BY account_path
		) folds
		FULL OUTER JOIN projections.balances b USING (account_path)
		WHERE COALESCE(folds.folded, 0) <> COALESCE(b.balance, 0)`,
		asOf,
	).Scan(&report.DriftedAccounts)
	if err != nil {
		return nil, fmt.Errorf("fold journal: %w", err)
	}
	return report, nil
}
