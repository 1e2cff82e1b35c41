package core

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FlightPool/internal/event"
	"FlightPool/internal/ledger"
	"FlightPool/internal/observability"
	"FlightPool/internal/pool"
	"FlightPool/internal/registry"
)

const (
	// DefaultIdempotencyWindow is the LRU size for recently seen keys.
	DefaultIdempotencyWindow = 100_000

	// globalCheckInterval is how often (in applied events) the O(n)
	// zero-sum check runs.
	globalCheckInterval = 1000
)

// Engine is the single-writer state machine. All pool, policy and
// balance mutations happen inside Run's goroutine, one event at a
// time, so no mutation ever races and every applied event gets a
// gapless global sequence.
type Engine struct {
	sequence int64

	hasher       *StateHasher
	tracker      *ledger.BalanceTracker
	validator    *ledger.InvariantValidator
	journalGen   *ledger.JournalGenerator
	pools        *pool.Manager
	registry     *registry.Registry
	idempotency  *IdempotencyChecker
	seqValidator *SequenceValidator
	assetID      ledger.AssetID

	cmdChan        chan Command
	persistChan    chan<- Output
	projectionChan chan<- Output

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// Config carries the engine's collaborators. PersistChan must be
// drained by a lossless consumer; ProjectionChan may lag and lose.
type Config struct {
	Registry       *registry.Registry
	DBIdempotency  DBIdempotencyChecker
	PersistChan    chan<- Output
	ProjectionChan chan<- Output
	CommandBuffer  int
	Metrics        *observability.Metrics
	Logger         zerolog.Logger
}

func NewEngine(cfg Config) *Engine {
	tracker := ledger.NewBalanceTracker()
	buffer := cfg.CommandBuffer
	if buffer <= 0 {
		buffer = 1024
	}
	reg := cfg.Registry
	if reg == nil {
		reg = registry.NewRegistry()
	}
	return &Engine{
		hasher:         NewStateHasher(),
		tracker:        tracker,
		validator:      ledger.NewInvariantValidator(tracker),
		journalGen:     ledger.NewJournalGenerator(ledger.AssetETH),
		pools:          pool.NewManager(),
		registry:       reg,
		idempotency:    NewIdempotencyChecker(DefaultIdempotencyWindow, cfg.DBIdempotency),
		seqValidator:   NewSequenceValidator(),
		assetID:        ledger.AssetETH,
		cmdChan:        make(chan Command, buffer),
		persistChan:    cfg.PersistChan,
		projectionChan: cfg.ProjectionChan,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}
}

// Run drains the command channel until the context is cancelled. It is
// the only goroutine allowed to touch engine state after startup.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().Int64("sequence", e.sequence).Msg("engine started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Int64("sequence", e.sequence).Msg("engine stopped")
			return
		case cmd := <-e.cmdChan:
			res := e.Apply(ctx, cmd.Event)
			if cmd.Reply != nil {
				cmd.Reply <- res
			}
		}
	}
}

// Submit sends an event and waits for its result. Safe for concurrent
// use; this is the API path.
func (e *Engine) Submit(ctx context.Context, evt event.Event) Result {
	reply := make(chan Result, 1)
	select {
	case e.cmdChan <- Command{Event: evt, Reply: reply}:
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// Enqueue sends an event without waiting for the outcome. This is the
// feed path; rejections are logged by the engine.
func (e *Engine) Enqueue(ctx context.Context, evt event.Event) error {
	select {
	case e.cmdChan <- Command{Event: evt}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply processes one event to completion. It must only be called from
// the Run goroutine, or before Run starts (replay during recovery).
func (e *Engine) Apply(ctx context.Context, evt event.Event) Result {
	start := time.Now()
	eventType := evt.Type()

	dup, err := e.idempotency.IsDuplicate(ctx, evt.IdempotencyKey())
	if err != nil {
		e.reject(eventType, "idempotency_check_failed")
		return Result{Err: fmt.Errorf("idempotency check: %w", err)}
	}

	if err := e.seqValidator.Validate(partitionFor(evt), evt.SourceSequence(), dup); err != nil {
		e.reject(eventType, "sequence_gap")
		return Result{Err: err}
	}

	if dup {
		e.reject(eventType, "duplicate")
		return Result{Err: ErrDuplicateEvent}
	}

	nextSeq := e.sequence + 1
	batch, res, err := e.dispatch(evt, nextSeq)
	if err != nil {
		e.reject(eventType, "rejected")
		e.logger.Debug().
			Str("event_type", eventType.String()).
			Str("idempotency_key", evt.IdempotencyKey()).
			Err(err).
			Msg("event rejected")
		return Result{Err: err}
	}

	if err := e.validator.ValidateBatch(batch); err != nil {
		// A malformed batch out of dispatch is a bug, not bad input.
		e.logger.Panic().Err(err).Int64("sequence", nextSeq).Msg("generated batch failed validation")
	}
	e.tracker.ApplyBatch(batch)

	digest := computeStateDigest(e.tracker, batch)
	prevHash := e.hasher.PrevHash()
	stateHash := e.hasher.ComputeHash(nextSeq, digest)
	e.sequence = nextSeq

	poolID := evt.PoolID()
	envelope := &event.EventEnvelope{
		Sequence:       nextSeq,
		EventType:      eventType,
		IdempotencyKey: evt.IdempotencyKey(),
		PoolID:         poolID,
		SourceSequence: evt.SourceSequence(),
		Timestamp:      eventTimestamp(evt),
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	res.Sequence = nextSeq
	e.postCheckInvariants(evt)

	out := Output{Envelope: envelope, Event: evt, Batch: batch, Result: res}
	e.emit(ctx, out)

	e.idempotency.MarkProcessed(evt.IdempotencyKey())
	e.recordApplied(evt, res, time.Since(start))
	return res
}

func (e *Engine) dispatch(evt event.Event, seq int64) (*ledger.Batch, Result, error) {
	switch ev := evt.(type) {
	case *event.PoolCreated:
		return e.handlePoolCreated(ev, seq)
	case *event.FundsAdded:
		return e.handleFundsAdded(ev, seq)
	case *event.PolicyPurchased:
		return e.handlePolicyPurchased(ev, seq)
	case *event.ClaimRequested:
		return e.handleClaimRequested(ev, seq)
	default:
		return nil, Result{}, fmt.Errorf("unhandled event type %T", evt)
	}
}

func (e *Engine) handlePoolCreated(ev *event.PoolCreated, seq int64) (*ledger.Batch, Result, error) {
	p, err := e.pools.Create(ev.Pool, ev.PremiumAmount, ev.PayoutAmount, seq)
	if err != nil {
		return nil, Result{}, err
	}
	e.registry.Append(registry.PoolHandle{
		PoolID:          p.PoolID,
		PremiumAmount:   p.PremiumAmount,
		PayoutAmount:    p.PayoutAmount,
		CreatedSequence: seq,
	})
	// Creation moves no money; the batch is empty.
	return ledger.NewBatch(), Result{PoolID: ev.Pool}, nil
}

func (e *Engine) handleFundsAdded(ev *event.FundsAdded, seq int64) (*ledger.Batch, Result, error) {
	if _, err := e.pools.Get(ev.Pool); err != nil {
		return nil, Result{}, err
	}
	if ev.Amount <= 0 {
		return nil, Result{}, pool.ErrInvalidAmount
	}
	batch := e.journalGen.GenerateFundsAdded(ev.Pool, ev.Amount, seq, ev.Timestamp.UnixMicro(), ev.IdempotencyKey())
	return batch, Result{PoolID: ev.Pool}, nil
}

func (e *Engine) handlePolicyPurchased(ev *event.PolicyPurchased, seq int64) (*ledger.Batch, Result, error) {
	p, err := e.pools.Get(ev.Pool)
	if err != nil {
		return nil, Result{}, err
	}
	// Exact match only. Overpayment is rejected the same as underpayment.
	if ev.Payment != p.PremiumAmount {
		return nil, Result{}, pool.ErrIncorrectPremium
	}
	pol := p.AppendPolicy(ev.Policyholder, ev.FlightNumber, ev.DepartureTime)
	var batch *ledger.Batch
	if ev.Payment > 0 {
		batch = e.journalGen.GeneratePremium(ev.Pool, ev.Payment, seq, ev.Timestamp.UnixMicro(), ev.IdempotencyKey())
	} else {
		batch = ledger.NewBatch()
	}
	return batch, Result{PoolID: ev.Pool, PolicyID: pol.ID}, nil
}

func (e *Engine) handleClaimRequested(ev *event.ClaimRequested, seq int64) (*ledger.Batch, Result, error) {
	p, err := e.pools.Get(ev.Pool)
	if err != nil {
		return nil, Result{}, err
	}
	pol, err := p.Policy(ev.PolicyID)
	if err != nil {
		return nil, Result{}, err
	}
	if pol.Claimed {
		return nil, Result{}, pool.ErrAlreadyClaimed
	}

	// Not delayed: nothing changes on the policy, so the same claim
	// can be re-processed later with a fresh determination.
	if !ev.IsDelayed {
		return ledger.NewBatch(), Result{PoolID: ev.Pool, PolicyID: ev.PolicyID, Eligible: false}, nil
	}

	if e.tracker.PoolCapital(ev.Pool, e.assetID) < p.PayoutAmount {
		return nil, Result{}, pool.ErrInsufficientPoolFunds
	}

	// Checks done; flip and pay atomically within this event.
	if err := p.MarkClaimed(ev.PolicyID); err != nil {
		return nil, Result{}, err
	}
	batch := e.journalGen.GeneratePayout(ev.Pool, pol.Policyholder, p.PayoutAmount, seq, ev.Timestamp.UnixMicro(), ev.IdempotencyKey())
	return batch, Result{PoolID: ev.Pool, PolicyID: ev.PolicyID, Eligible: true}, nil
}

// postCheckInvariants verifies accounting invariants after apply. A
// violation here means engine state is corrupt; continuing would
// persist bad history, so it is fatal.
func (e *Engine) postCheckInvariants(evt event.Event) {
	if poolID := evt.PoolID(); poolID != nil {
		if err := e.validator.ValidatePoolCapital(*poolID, e.assetID); err != nil {
			e.logger.Panic().Err(err).Int64("sequence", e.sequence).Msg("pool capital invariant violated")
		}
	}
	if e.sequence%globalCheckInterval == 0 {
		if err := e.validator.ValidateGlobalBalance(); err != nil {
			e.logger.Panic().Err(err).Int64("sequence", e.sequence).Msg("global balance invariant violated")
		}
	}
}

func (e *Engine) emit(ctx context.Context, out Output) {
	if e.persistChan != nil {
		select {
		case e.persistChan <- out:
		case <-ctx.Done():
			e.logger.Error().Int64("sequence", out.Envelope.Sequence).Msg("shutdown while emitting to persistence")
		}
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDropped.Inc()
			}
		}
	}
}

func (e *Engine) reject(eventType event.EventType, reason string) {
	if e.metrics != nil {
		e.metrics.EventsRejected.WithLabelValues(eventType.String(), reason).Inc()
	}
}

func (e *Engine) recordApplied(evt event.Event, res Result, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	typeName := evt.Type().String()
	e.metrics.EventsApplied.WithLabelValues(typeName).Inc()
	e.metrics.EventDuration.WithLabelValues(typeName).Observe(elapsed.Seconds())
	e.metrics.EngineSequence.Set(float64(e.sequence))

	switch ev := evt.(type) {
	case *event.PoolCreated:
		e.metrics.PoolsCreated.Inc()
	case *event.PolicyPurchased:
		e.metrics.PoliciesSold.Inc()
	case *event.ClaimRequested:
		if res.Eligible {
			e.metrics.ClaimsPaid.Inc()
			if p, err := e.pools.Get(ev.Pool); err == nil {
				e.metrics.PayoutWeiTotal.Add(float64(p.PayoutAmount))
			}
		} else {
			e.metrics.ClaimsDeclined.Inc()
		}
	}

	if poolID := evt.PoolID(); poolID != nil {
		e.metrics.PoolCapitalWei.WithLabelValues(poolID.String()).
			Set(float64(e.tracker.PoolCapital(*poolID, e.assetID)))
	}
}

// Sequence returns the last applied global sequence. Only meaningful
// before Run starts or after it stops.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

// StateHash returns the current hash chain head. Same caveat as
// Sequence.
func (e *Engine) StateHash() [32]byte {
	return e.hasher.PrevHash()
}

// PoolCapital reads a pool's capital. Same caveat as Sequence; used by
// recovery verification and tests.
func (e *Engine) PoolCapital(poolID uuid.UUID) int64 {
	return e.tracker.PoolCapital(poolID, e.assetID)
}

// SetDBIdempotency attaches the persistent idempotency tier. It is
// attached after replay, before Run starts, so replayed events are not
// mistaken for duplicates of their own log rows.
func (e *Engine) SetDBIdempotency(db DBIdempotencyChecker) {
	e.idempotency.db = db
}

// WarmIdempotency preloads recently applied keys into the in-memory
// window.
func (e *Engine) WarmIdempotency(keys []string) {
	e.idempotency.WarmFromKeys(keys)
}

// partitionFor groups feed sequence validation by pool.
func partitionFor(evt event.Event) string {
	if poolID := evt.PoolID(); poolID != nil {
		return poolID.String()
	}
	return "global"
}

func eventTimestamp(evt event.Event) time.Time {
	switch ev := evt.(type) {
	case *event.PoolCreated:
		return ev.Timestamp
	case *event.FundsAdded:
		return ev.Timestamp
	case *event.PolicyPurchased:
		return ev.Timestamp
	case *event.ClaimRequested:
		return ev.Timestamp
	default:
		return time.Time{}
	}
}

// computeStateDigest hashes the post-apply balances of every account
// the batch touched, in path order, so identical replays produce
// identical digests.
func computeStateDigest(tracker *ledger.BalanceTracker, batch *ledger.Batch) []byte {
	touched := make(map[ledger.AccountKey]struct{})
	for _, j := range batch.Journals {
		touched[j.DebitAccount] = struct{}{}
		touched[j.CreditAccount] = struct{}{}
	}

	paths := make([]string, 0, len(touched))
	byPath := make(map[string]ledger.AccountKey, len(touched))
	for key := range touched {
		path := key.AccountPath()
		paths = append(paths, path)
		byPath[path] = key
	}
	sort.Strings(paths)

	digest := make([]byte, 0, len(paths)*(32+8))
	var buf [8]byte
	for _, path := range paths {
		digest = append(digest, path...)
		binary.LittleEndian.PutUint64(buf[:], uint64(tracker.GetBalance(byPath[path])))
		digest = append(digest, buf[:]...)
	}
	return digest
}
