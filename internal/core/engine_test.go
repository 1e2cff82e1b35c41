package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FlightPool/internal/core"
	"FlightPool/internal/event"
	"FlightPool/internal/pool"
	"FlightPool/internal/registry"
)

const (
	premiumWei = int64(10_000_000_000_000_000)    // 0.01 ETH
	payoutWei  = int64(50_000_000_000_000_000)    // 0.05 ETH
	fundingWei = int64(1_000_000_000_000_000_000) // 1 ETH
)

func newTestEngine(t *testing.T) (*core.Engine, *registry.Registry, chan core.Output) {
	t.Helper()
	reg := registry.NewRegistry()
	persist := make(chan core.Output, 1024)
	eng := core.NewEngine(core.Config{
		Registry:    reg,
		PersistChan: persist,
		Logger:      zerolog.Nop(),
	})
	return eng, reg, persist
}

func createPool(t *testing.T, eng *core.Engine) uuid.UUID {
	t.Helper()
	poolID := uuid.New()
	res := eng.Apply(context.Background(), &event.PoolCreated{
		Pool:          poolID,
		PremiumAmount: premiumWei,
		PayoutAmount:  payoutWei,
		Timestamp:     time.Now(),
	})
	if res.Err != nil {
		t.Fatalf("create pool: %v", res.Err)
	}
	return poolID
}

func addFunds(t *testing.T, eng *core.Engine, poolID uuid.UUID, amount int64) {
	t.Helper()
	res := eng.Apply(context.Background(), &event.FundsAdded{
		DepositID: uuid.New(),
		Pool:      poolID,
		Funder:    uuid.New(),
		Amount:    amount,
		Timestamp: time.Now(),
	})
	if res.Err != nil {
		t.Fatalf("add funds: %v", res.Err)
	}
}

func buyPolicy(t *testing.T, eng *core.Engine, poolID uuid.UUID, payment int64) core.Result {
	t.Helper()
	return eng.Apply(context.Background(), &event.PolicyPurchased{
		PurchaseID:    uuid.New(),
		Pool:          poolID,
		Policyholder:  uuid.New(),
		FlightNumber:  "AA123",
		DepartureTime: time.Now().Add(24 * time.Hour),
		Payment:       payment,
		Timestamp:     time.Now(),
	})
}

func claim(eng *core.Engine, poolID uuid.UUID, policyID int64, delayed bool) core.Result {
	return eng.Apply(context.Background(), &event.ClaimRequested{
		ClaimID:   uuid.New(),
		Pool:      poolID,
		PolicyID:  policyID,
		IsDelayed: delayed,
		Timestamp: time.Now(),
	})
}

// ============================================================
// Pool creation
// ============================================================

func TestPoolCreationRegistersInOrder(t *testing.T) {
	eng, reg, _ := newTestEngine(t)

	first := createPool(t, eng)
	second := createPool(t, eng)

	handles := reg.List()
	if len(handles) != 2 {
		t.Fatalf("registry holds %d pools, want 2", len(handles))
	}
	if handles[0].PoolID != first || handles[1].PoolID != second {
		t.Error("registry order does not match creation order")
	}
	if handles[0].PremiumAmount != premiumWei || handles[0].PayoutAmount != payoutWei {
		t.Errorf("handle terms = (%d, %d)", handles[0].PremiumAmount, handles[0].PayoutAmount)
	}
}

func TestPoolCreationIsIdempotent(t *testing.T) {
	eng, reg, _ := newTestEngine(t)
	poolID := createPool(t, eng)

	res := eng.Apply(context.Background(), &event.PoolCreated{
		Pool:          poolID,
		PremiumAmount: premiumWei,
		PayoutAmount:  payoutWei,
		Timestamp:     time.Now(),
	})
	if !errors.Is(res.Err, core.ErrDuplicateEvent) {
		t.Errorf("replayed creation = %v, want ErrDuplicateEvent", res.Err)
	}
	if reg.Len() != 1 {
		t.Errorf("registry holds %d pools after replay, want 1", reg.Len())
	}
}

// ============================================================
// Funding
// ============================================================

func TestFundingAccumulates(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := createPool(t, eng)

	addFunds(t, eng, poolID, fundingWei)
	addFunds(t, eng, poolID, fundingWei)

	if got := eng.PoolCapital(poolID); got != 2*fundingWei {
		t.Errorf("capital = %d, want %d", got, 2*fundingWei)
	}
}

func TestFundingUnknownPool(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	res := eng.Apply(context.Background(), &event.FundsAdded{
		DepositID: uuid.New(),
		Pool:      uuid.New(),
		Amount:    fundingWei,
		Timestamp: time.Now(),
	})
	if !errors.Is(res.Err, pool.ErrPoolNotFound) {
		t.Errorf("funding unknown pool = %v, want ErrPoolNotFound", res.Err)
	}
}

func TestFundingRejectsNonPositiveAmount(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := createPool(t, eng)

	for _, amount := range []int64{0, -5} {
		res := eng.Apply(context.Background(), &event.FundsAdded{
			DepositID: uuid.New(),
			Pool:      poolID,
			Amount:    amount,
			Timestamp: time.Now(),
		})
		if !errors.Is(res.Err, pool.ErrInvalidAmount) {
			t.Errorf("amount %d = %v, want ErrInvalidAmount", amount, res.Err)
		}
	}
	if got := eng.PoolCapital(poolID); got != 0 {
		t.Errorf("capital = %d after rejected funding, want 0", got)
	}
}

func TestDuplicateDepositCountedOnce(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := createPool(t, eng)

	deposit := &event.FundsAdded{
		DepositID: uuid.New(),
		Pool:      poolID,
		Amount:    fundingWei,
		Timestamp: time.Now(),
	}
	if res := eng.Apply(context.Background(), deposit); res.Err != nil {
		t.Fatalf("first apply: %v", res.Err)
	}
	if res := eng.Apply(context.Background(), deposit); !errors.Is(res.Err, core.ErrDuplicateEvent) {
		t.Errorf("replayed deposit = %v, want ErrDuplicateEvent", res.Err)
	}
	if got := eng.PoolCapital(poolID); got != fundingWei {
		t.Errorf("capital = %d, want %d", got, fundingWei)
	}
}

// ============================================================
// Policy purchase
// ============================================================

func TestPurchaseRequiresExactPremium(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := createPool(t, eng)

	for _, payment := range []int64{0, premiumWei - 1, premiumWei + 1, 2 * premiumWei} {
		res := buyPolicy(t, eng, poolID, payment)
		if !errors.Is(res.Err, pool.ErrIncorrectPremium) {
			t.Errorf("payment %d = %v, want ErrIncorrectPremium", payment, res.Err)
		}
	}
	if got := eng.PoolCapital(poolID); got != 0 {
		t.Errorf("capital = %d after rejected purchases, want 0", got)
	}

	res := buyPolicy(t, eng, poolID, premiumWei)
	if res.Err != nil {
		t.Fatalf("exact payment rejected: %v", res.Err)
	}
	if res.PolicyID != 0 {
		t.Errorf("first policy ID = %d, want 0", res.PolicyID)
	}
	if got := eng.PoolCapital(poolID); got != premiumWei {
		t.Errorf("capital = %d, want %d", got, premiumWei)
	}
}

func TestPolicyIDsAreSequentialPerPool(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolA := createPool(t, eng)
	poolB := createPool(t, eng)

	for i := int64(0); i < 3; i++ {
		if res := buyPolicy(t, eng, poolA, premiumWei); res.PolicyID != i {
			t.Errorf("pool A policy %d got ID %d", i, res.PolicyID)
		}
	}
	if res := buyPolicy(t, eng, poolB, premiumWei); res.PolicyID != 0 {
		t.Errorf("pool B first policy ID = %d, want 0", res.PolicyID)
	}
}

// ============================================================
// Claims
// ============================================================

func TestClaimLifecycle(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := createPool(t, eng)
	addFunds(t, eng, poolID, fundingWei)
	purchase := buyPolicy(t, eng, poolID, premiumWei)

	// Flight not delayed: no payout, nothing recorded on the policy.
	res := claim(eng, poolID, purchase.PolicyID, false)
	if res.Err != nil || res.Eligible {
		t.Fatalf("not-delayed claim = (eligible %v, err %v), want no payout", res.Eligible, res.Err)
	}
	capitalBefore := eng.PoolCapital(poolID)

	// Re-processing after a delay determination pays out.
	res = claim(eng, poolID, purchase.PolicyID, true)
	if res.Err != nil || !res.Eligible {
		t.Fatalf("delayed claim = (eligible %v, err %v), want payout", res.Eligible, res.Err)
	}
	if got := eng.PoolCapital(poolID); got != capitalBefore-payoutWei {
		t.Errorf("capital = %d, want %d", got, capitalBefore-payoutWei)
	}

	// Second payout on the same policy is refused.
	res = claim(eng, poolID, purchase.PolicyID, true)
	if !errors.Is(res.Err, pool.ErrAlreadyClaimed) {
		t.Errorf("second claim = %v, want ErrAlreadyClaimed", res.Err)
	}
}

func TestClaimUnknownPolicy(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := createPool(t, eng)

	res := claim(eng, poolID, 7, true)
	if !errors.Is(res.Err, pool.ErrPolicyNotFound) {
		t.Errorf("claim on missing policy = %v, want ErrPolicyNotFound", res.Err)
	}
}

func TestClaimBlockedByInsufficientCapital(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := createPool(t, eng)
	purchase := buyPolicy(t, eng, poolID, premiumWei)

	// One premium cannot cover the payout.
	res := claim(eng, poolID, purchase.PolicyID, true)
	if !errors.Is(res.Err, pool.ErrInsufficientPoolFunds) {
		t.Fatalf("underfunded claim = %v, want ErrInsufficientPoolFunds", res.Err)
	}
	if got := eng.PoolCapital(poolID); got != premiumWei {
		t.Errorf("capital = %d after failed claim, want %d", got, premiumWei)
	}

	// The policy stays claimable: funding the pool unblocks it.
	addFunds(t, eng, poolID, payoutWei)
	res = claim(eng, poolID, purchase.PolicyID, true)
	if res.Err != nil || !res.Eligible {
		t.Errorf("claim after funding = (eligible %v, err %v), want payout", res.Eligible, res.Err)
	}
	if got := eng.PoolCapital(poolID); got != premiumWei {
		t.Errorf("capital = %d, want %d", got, premiumWei)
	}
}

func TestCapitalNeverGoesNegative(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := createPool(t, eng)
	addFunds(t, eng, poolID, payoutWei) // exactly one payout of headroom

	a := buyPolicy(t, eng, poolID, premiumWei)
	b := buyPolicy(t, eng, poolID, premiumWei)

	if res := claim(eng, poolID, a.PolicyID, true); res.Err != nil {
		t.Fatalf("first claim: %v", res.Err)
	}
	// Remaining capital is two premiums, below the payout.
	if res := claim(eng, poolID, b.PolicyID, true); !errors.Is(res.Err, pool.ErrInsufficientPoolFunds) {
		t.Errorf("second claim = %v, want ErrInsufficientPoolFunds", res.Err)
	}
	if got := eng.PoolCapital(poolID); got < 0 {
		t.Errorf("capital went negative: %d", got)
	}
}

// ============================================================
// Sequencing and envelopes
// ============================================================

func TestEnvelopeSequenceIsGapless(t *testing.T) {
	eng, _, persist := newTestEngine(t)
	poolID := createPool(t, eng)
	addFunds(t, eng, poolID, fundingWei)
	buyPolicy(t, eng, poolID, premiumWei)

	var prev [32]byte
	for want := int64(1); want <= 3; want++ {
		out := <-persist
		if out.Envelope.Sequence != want {
			t.Errorf("envelope sequence = %d, want %d", out.Envelope.Sequence, want)
		}
		if want > 1 && out.Envelope.PrevHash != prev {
			t.Errorf("envelope %d prev hash does not chain", want)
		}
		prev = out.Envelope.StateHash
	}
}

func TestRejectedEventsEmitNothing(t *testing.T) {
	eng, _, persist := newTestEngine(t)
	poolID := createPool(t, eng)
	<-persist

	buyPolicy(t, eng, poolID, premiumWei+1) // rejected
	select {
	case out := <-persist:
		t.Errorf("rejected event emitted envelope at sequence %d", out.Envelope.Sequence)
	default:
	}
	if eng.Sequence() != 1 {
		t.Errorf("sequence advanced to %d on a rejected event", eng.Sequence())
	}
}

func TestFeedSequenceGapRejected(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := uuid.New()

	apply := func(sourceSeq int64) core.Result {
		return eng.Apply(context.Background(), &event.FundsAdded{
			DepositID: uuid.New(),
			Pool:      poolID,
			Amount:    100,
			Sequence:  sourceSeq,
			Timestamp: time.Now(),
		})
	}

	if res := eng.Apply(context.Background(), &event.PoolCreated{
		Pool: poolID, PremiumAmount: premiumWei, PayoutAmount: payoutWei,
		Sequence: 10, Timestamp: time.Now(),
	}); res.Err != nil {
		t.Fatalf("seed: %v", res.Err)
	}
	if res := apply(11); res.Err != nil {
		t.Fatalf("in-order event rejected: %v", res.Err)
	}
	if res := apply(13); res.Err == nil {
		t.Error("gapped source sequence accepted")
	}
	if res := apply(12); res.Err != nil {
		t.Errorf("expected next source sequence rejected: %v", res.Err)
	}
}

// ============================================================
// Determinism and recovery
// ============================================================

func TestReplayReproducesStateHash(t *testing.T) {
	poolID := uuid.New()
	holder := uuid.New()
	deposit := uuid.New()
	purchase := uuid.New()
	claimID := uuid.New()
	ts := time.Unix(1700000000, 0).UTC()

	script := func() []event.Event {
		return []event.Event{
			&event.PoolCreated{Pool: poolID, PremiumAmount: premiumWei, PayoutAmount: payoutWei, Timestamp: ts},
			&event.FundsAdded{DepositID: deposit, Pool: poolID, Amount: fundingWei, Timestamp: ts},
			&event.PolicyPurchased{PurchaseID: purchase, Pool: poolID, Policyholder: holder, FlightNumber: "AA123", DepartureTime: ts, Payment: premiumWei, Timestamp: ts},
			&event.ClaimRequested{ClaimID: claimID, Pool: poolID, PolicyID: 0, IsDelayed: true, Timestamp: ts},
		}
	}

	first, _, _ := newTestEngine(t)
	second, _, _ := newTestEngine(t)
	for _, evt := range script() {
		if res := first.Apply(context.Background(), evt); res.Err != nil {
			t.Fatalf("first engine: %v", res.Err)
		}
	}
	for _, evt := range script() {
		if res := second.Apply(context.Background(), evt); res.Err != nil {
			t.Fatalf("second engine: %v", res.Err)
		}
	}

	if first.StateHash() != second.StateHash() {
		t.Error("identical event streams produced different state hashes")
	}
	if first.PoolCapital(poolID) != second.PoolCapital(poolID) {
		t.Error("identical event streams produced different capital")
	}
}

func TestSnapshotRestoreContinuesIdentically(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := createPool(t, eng)
	addFunds(t, eng, poolID, fundingWei)
	purchase := buyPolicy(t, eng, poolID, premiumWei)

	snap := eng.CaptureSnapshot()

	restored, reg, _ := newTestEngine(t)
	if err := restored.RestoreSnapshot(snap); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if restored.Sequence() != eng.Sequence() {
		t.Errorf("restored sequence = %d, want %d", restored.Sequence(), eng.Sequence())
	}
	if restored.StateHash() != eng.StateHash() {
		t.Error("restored state hash differs")
	}
	if reg.Len() != 1 {
		t.Errorf("restored registry holds %d pools, want 1", reg.Len())
	}

	// Both engines process the same claim; outcomes must match.
	claimEvt := &event.ClaimRequested{
		ClaimID: uuid.New(), Pool: poolID, PolicyID: purchase.PolicyID,
		IsDelayed: true, Timestamp: time.Unix(1700000000, 0).UTC(),
	}
	resA := eng.Apply(context.Background(), claimEvt)
	resB := restored.Apply(context.Background(), &event.ClaimRequested{
		ClaimID: claimEvt.ClaimID, Pool: poolID, PolicyID: purchase.PolicyID,
		IsDelayed: true, Timestamp: claimEvt.Timestamp,
	})
	if resA.Err != nil || resB.Err != nil {
		t.Fatalf("claims failed: %v / %v", resA.Err, resB.Err)
	}
	if eng.StateHash() != restored.StateHash() {
		t.Error("engines diverged after restore")
	}
}

func TestSnapshotCarriesIdempotencyKeys(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	poolID := createPool(t, eng)
	deposit := &event.FundsAdded{
		DepositID: uuid.New(), Pool: poolID, Amount: fundingWei,
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
	if res := eng.Apply(context.Background(), deposit); res.Err != nil {
		t.Fatalf("apply deposit: %v", res.Err)
	}

	snap := eng.CaptureSnapshot()
	keys := make(map[string]bool, len(snap.IdempotencyKeys))
	for _, k := range snap.IdempotencyKeys {
		keys[k] = true
	}
	if !keys[poolID.String()] || !keys[deposit.IdempotencyKey()] {
		t.Fatalf("snapshot keys %v missing applied keys", snap.IdempotencyKeys)
	}

	// A restored engine must refuse replays of snapshotted events
	// without consulting the database tier.
	restored, _, _ := newTestEngine(t)
	if err := restored.RestoreSnapshot(snap); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if res := restored.Apply(context.Background(), deposit); !errors.Is(res.Err, core.ErrDuplicateEvent) {
		t.Errorf("replayed deposit after restore = %v, want ErrDuplicateEvent", res.Err)
	}
	if restored.PoolCapital(poolID) != fundingWei {
		t.Errorf("capital after rejected replay = %d, want %d", restored.PoolCapital(poolID), fundingWei)
	}
}

// ============================================================
// Run loop
// ============================================================

func TestSubmitThroughRunLoop(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	poolID := uuid.New()
	res := eng.Submit(ctx, &event.PoolCreated{
		Pool: poolID, PremiumAmount: premiumWei, PayoutAmount: payoutWei, Timestamp: time.Now(),
	})
	if res.Err != nil {
		t.Fatalf("Submit: %v", res.Err)
	}
	if res.Sequence != 1 || res.PoolID != poolID {
		t.Errorf("Submit result = %+v", res)
	}

	res = eng.Submit(ctx, &event.FundsAdded{
		DepositID: uuid.New(), Pool: poolID, Amount: -1, Timestamp: time.Now(),
	})
	if !errors.Is(res.Err, pool.ErrInvalidAmount) {
		t.Errorf("Submit of invalid deposit = %v, want ErrInvalidAmount", res.Err)
	}
}
