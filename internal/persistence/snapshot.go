package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FlightPool/internal/core"
	"FlightPool/internal/ledger"
	"FlightPool/internal/pool"
	"FlightPool/internal/registry"
)

// SnapshotData is the JSON form of engine state stored per snapshot
// row. Account keys are serialized as paths, UUIDs as strings, times
// as microseconds.
type SnapshotData struct {
	Sequence        int64            `json:"sequence"`
	StateHash       []byte           `json:"state_hash"`
	Balances        map[string]int64 `json:"balances"`
	Pools           []PoolSnapshot   `json:"pools"`
	SequenceState   map[string]int64 `json:"sequence_state"`
	IdempotencyKeys []string         `json:"idempotency_keys"`
}

type PoolSnapshot struct {
	PoolID          string           `json:"pool_id"`
	PremiumAmount   int64            `json:"premium_amount"`
	PayoutAmount    int64            `json:"payout_amount"`
	CreatedSequence int64            `json:"created_sequence"`
	Policies        []PolicySnapshot `json:"policies"`
}

type PolicySnapshot struct {
	ID              int64  `json:"id"`
	Policyholder    string `json:"policyholder"`
	FlightNumber    string `json:"flight_number"`
	DepartureTimeUs int64  `json:"departure_time_us"`
	Claimed         bool   `json:"claimed"`
	Active          bool   `json:"active"`
}

// StoredEvent is one event log row loaded for replay.
type StoredEvent struct {
	Sequence  int64
	EventType string
	Payload   []byte
	StateHash []byte
}

// SnapshotManager saves and restores engine snapshots.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// Save persists a snapshot. Snapshots are append-only; recovery takes
// the newest verified-or-not row and replays events on top.
func (m *SnapshotManager) Save(ctx context.Context, state *core.SnapshotState) error {
	data, err := encodeSnapshot(state)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT INTO flight_log.snapshots (sequence, state_hash, data, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (sequence) DO NOTHING`,
		state.Sequence, state.StateHash[:], blob, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert snapshot at sequence %d: %w", state.Sequence, err)
	}
	return nil
}

// LoadLatest returns the most recent snapshot, or nil when none
// exists (cold start).
func (m *SnapshotManager) LoadLatest(ctx context.Context) (*core.SnapshotState, error) {
	var blob []byte
	err := m.db.QueryRowContext(ctx,
		`SELECT data FROM flight_log.snapshots ORDER BY sequence DESC LIMIT 1`,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	var data SnapshotData
	if err := json.Unmarshal(blob, &data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return decodeSnapshot(&data)
}

// MarkVerified records that a snapshot's hash was confirmed against
// replayed state.
func (m *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := m.db.ExecContext(ctx,
		`UPDATE flight_log.snapshots SET verified = TRUE WHERE sequence = $1`, sequence)
	if err != nil {
		return fmt.Errorf("mark snapshot %d verified: %w", sequence, err)
	}
	return nil
}

// LoadEventsFrom streams event rows with sequence >= from, in order,
// for replay.
func (m *SnapshotManager) LoadEventsFrom(ctx context.Context, from int64) ([]StoredEvent, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT sequence, event_type, payload, state_hash
		 FROM flight_log.events
		 WHERE sequence >= $1
		 ORDER BY sequence ASC`, from)
	if err != nil {
		return nil, fmt.Errorf("load events from %d: %w", from, err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.Payload, &e.StateHash); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLatestSequence returns the highest persisted event sequence, 0
// when the log is empty.
func (m *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := m.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM flight_log.events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("latest event sequence: %w", err)
	}
	return seq.Int64, nil
}

func encodeSnapshot(state *core.SnapshotState) (*SnapshotData, error) {
	balances := make(map[string]int64, len(state.Balances))
	for key, bal := range state.Balances {
		balances[key.AccountPath()] = bal
	}

	pools := make([]PoolSnapshot, 0, len(state.Pools))
	for _, ps := range state.Pools {
		policies := make([]PolicySnapshot, 0, len(ps.Policies))
		for _, pol := range ps.Policies {
			policies = append(policies, PolicySnapshot{
				ID:              pol.ID,
				Policyholder:    pol.Policyholder.String(),
				FlightNumber:    pol.FlightNumber,
				DepartureTimeUs: pol.DepartureTime.UnixMicro(),
				Claimed:         pol.Claimed,
				Active:          pol.Active,
			})
		}
		pools = append(pools, PoolSnapshot{
			PoolID:          ps.Handle.PoolID.String(),
			PremiumAmount:   ps.Handle.PremiumAmount,
			PayoutAmount:    ps.Handle.PayoutAmount,
			CreatedSequence: ps.Handle.CreatedSequence,
			Policies:        policies,
		})
	}

	return &SnapshotData{
		Sequence:        state.Sequence,
		StateHash:       state.StateHash[:],
		Balances:        balances,
		Pools:           pools,
		SequenceState:   state.SequenceState,
		IdempotencyKeys: state.IdempotencyKeys,
	}, nil
}

func decodeSnapshot(data *SnapshotData) (*core.SnapshotState, error) {
	balances := make(map[ledger.AccountKey]int64, len(data.Balances))
	for path, bal := range data.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return nil, fmt.Errorf("snapshot balance %q: %w", path, err)
		}
		balances[key] = bal
	}

	pools := make([]core.PoolState, 0, len(data.Pools))
	for _, ps := range data.Pools {
		poolID, err := uuid.Parse(ps.PoolID)
		if err != nil {
			return nil, fmt.Errorf("snapshot pool id %q: %w", ps.PoolID, err)
		}
		policies := make([]pool.Policy, 0, len(ps.Policies))
		for _, pol := range ps.Policies {
			holder, err := uuid.Parse(pol.Policyholder)
			if err != nil {
				return nil, fmt.Errorf("snapshot policyholder %q: %w", pol.Policyholder, err)
			}
			policies = append(policies, pool.Policy{
				ID:            pol.ID,
				Policyholder:  holder,
				FlightNumber:  pol.FlightNumber,
				DepartureTime: time.UnixMicro(pol.DepartureTimeUs).UTC(),
				Claimed:       pol.Claimed,
				Active:        pol.Active,
			})
		}
		pools = append(pools, core.PoolState{
			Handle: registry.PoolHandle{
				PoolID:          poolID,
				PremiumAmount:   ps.PremiumAmount,
				PayoutAmount:    ps.PayoutAmount,
				CreatedSequence: ps.CreatedSequence,
			},
			Policies: policies,
		})
	}

	state := &core.SnapshotState{
		Sequence:        data.Sequence,
		Balances:        balances,
		Pools:           pools,
		SequenceState:   data.SequenceState,
		IdempotencyKeys: data.IdempotencyKeys,
	}
	copy(state.StateHash[:], data.StateHash)
	return state, nil
}
