package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FlightPool/internal/core"
	"FlightPool/internal/event"
	"FlightPool/internal/persistence"
	"FlightPool/internal/registry"
	"FlightPool/internal/testutil"
)

// Requires a migrated Postgres; run with INTEGRATION_TEST=1.

func TestWriteAndReplayRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	persist := make(chan core.Output, 64)
	eng := core.NewEngine(core.Config{
		Registry:    registry.NewRegistry(),
		PersistChan: persist,
		Logger:      zerolog.Nop(),
	})

	poolID := uuid.New()
	ts := time.Unix(1700000000, 0).UTC()
	events := []event.Event{
		&event.PoolCreated{Pool: poolID, PremiumAmount: 100, PayoutAmount: 500, Timestamp: ts},
		&event.FundsAdded{DepositID: uuid.New(), Pool: poolID, Amount: 1000, Timestamp: ts},
		&event.PolicyPurchased{PurchaseID: uuid.New(), Pool: poolID, Policyholder: uuid.New(), FlightNumber: "AA123", DepartureTime: ts, Payment: 100, Timestamp: ts},
	}
	for _, evt := range events {
		if res := eng.Apply(ctx, evt); res.Err != nil {
			t.Fatalf("apply: %v", res.Err)
		}
	}

	writer := persistence.NewWriter(db)
	var outputs []core.Output
	for range events {
		outputs = append(outputs, <-persist)
	}
	eventRows, journalRows, err := persistence.BuildRows(outputs)
	if err != nil {
		t.Fatalf("BuildRows: %v", err)
	}
	if err := writer.WriteBatch(ctx, eventRows, journalRows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	// Replaying the same batch must be a no-op.
	if err := writer.WriteBatch(ctx, eventRows, journalRows); err != nil {
		t.Fatalf("idempotent WriteBatch: %v", err)
	}

	checker := persistence.NewDBIdempotencyChecker(db)
	exists, err := checker.Exists(ctx, events[0].IdempotencyKey())
	if err != nil || !exists {
		t.Errorf("Exists = (%v, %v), want persisted key found", exists, err)
	}

	mgr := persistence.NewSnapshotManager(db)
	latest, err := mgr.GetLatestSequence(ctx)
	if err != nil || latest != 3 {
		t.Errorf("GetLatestSequence = (%d, %v), want 3", latest, err)
	}

	stored, err := mgr.LoadEventsFrom(ctx, 1)
	if err != nil {
		t.Fatalf("LoadEventsFrom: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("loaded %d events, want 3", len(stored))
	}
	for i, se := range stored {
		if se.Sequence != int64(i+1) {
			t.Errorf("event %d has sequence %d", i, se.Sequence)
		}
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	testutil.RequireIntegration(t)
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	persist := make(chan core.Output, 64)
	eng := core.NewEngine(core.Config{
		Registry:    registry.NewRegistry(),
		PersistChan: persist,
		Logger:      zerolog.Nop(),
	})

	poolID := uuid.New()
	ts := time.Unix(1700000000, 0).UTC()
	if res := eng.Apply(ctx, &event.PoolCreated{Pool: poolID, PremiumAmount: 100, PayoutAmount: 500, Timestamp: ts}); res.Err != nil {
		t.Fatalf("apply: %v", res.Err)
	}
	if res := eng.Apply(ctx, &event.FundsAdded{DepositID: uuid.New(), Pool: poolID, Amount: 1000, Timestamp: ts}); res.Err != nil {
		t.Fatalf("apply: %v", res.Err)
	}

	mgr := persistence.NewSnapshotManager(db)
	if err := mgr.Save(ctx, eng.CaptureSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := mgr.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if loaded == nil || loaded.Sequence != 2 {
		t.Fatalf("LoadLatest sequence = %+v, want 2", loaded)
	}

	restored := core.NewEngine(core.Config{
		Registry:    registry.NewRegistry(),
		PersistChan: make(chan core.Output, 64),
		Logger:      zerolog.Nop(),
	})
	if err := restored.RestoreSnapshot(loaded); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if restored.StateHash() != eng.StateHash() {
		t.Error("restored state hash differs from source engine")
	}
	if restored.PoolCapital(poolID) != 1000 {
		t.Errorf("restored capital = %d, want 1000", restored.PoolCapital(poolID))
	}

	if err := mgr.MarkVerified(ctx, loaded.Sequence); err != nil {
		t.Errorf("MarkVerified: %v", err)
	}
}
