package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"FlightPool/internal/core"
	"FlightPool/internal/ingestion"
	"FlightPool/internal/observability"
)

const (
	defaultBatchSize     = 256
	defaultFlushInterval = 50 * time.Millisecond
	maxRetryBackoff      = 5 * time.Second
)

// Worker drains engine outputs into the event log. It batches for
// throughput but never drops: a failed flush is retried with backoff
// until it lands. The engine blocks on this channel, so durability
// backpressure propagates all the way to callers.
type Worker struct {
	writer        *Writer
	input         <-chan core.Output
	batchSize     int
	flushInterval time.Duration
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

func NewWorker(writer *Writer, input <-chan core.Output, metrics *observability.Metrics, logger zerolog.Logger) *Worker {
	return &Worker{
		writer:        writer,
		input:         input,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		metrics:       metrics,
		logger:        logger,
	}
}

// Run consumes until the context is cancelled, then drains whatever
// is still buffered before returning.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	pending := make([]core.Output, 0, w.batchSize)

	for {
		select {
		case <-ctx.Done():
			w.drain(pending)
			return
		case out := <-w.input:
			pending = append(pending, out)
			if len(pending) >= w.batchSize {
				w.flush(ctx, pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			if len(pending) > 0 {
				w.flush(ctx, pending)
				pending = pending[:0]
			}
		}
	}
}

// drain flushes remaining outputs during shutdown, including anything
// still sitting in the channel buffer.
func (w *Worker) drain(pending []core.Output) {
	for {
		select {
		case out := <-w.input:
			pending = append(pending, out)
		default:
			if len(pending) > 0 {
				w.flush(context.Background(), pending)
			}
			w.logger.Info().Msg("persistence worker drained")
			return
		}
	}
}

func (w *Worker) flush(ctx context.Context, outputs []core.Output) {
	events, journals, err := BuildRows(outputs)
	if err != nil {
		// Row building is pure; failure means an unserializable event,
		// which cannot heal on retry.
		w.logger.Panic().Err(err).Msg("build persistence rows")
	}

	start := time.Now()
	backoff := 100 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := w.writer.WriteBatch(ctx, events, journals)
		if err == nil {
			break
		}
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write").Inc()
		}
		w.logger.Error().
			Err(err).
			Int("attempt", attempt).
			Int("events", len(events)).
			Msg("event log write failed, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			// One last try on a fresh context so shutdown does not
			// abandon acknowledged events.
			if err := w.writer.WriteBatch(context.Background(), events, journals); err != nil {
				w.logger.Error().Err(err).Int("events", len(events)).Msg("final write failed, events lost to the log")
			}
			return
		}
		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}

	if w.metrics != nil {
		w.metrics.PersistEventsWritten.Add(float64(len(events)))
		w.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		w.metrics.PersistBatchSize.Observe(float64(len(events)))
		w.metrics.PersistBatchDuration.Observe(time.Since(start).Seconds())
		w.metrics.PersistLastSequence.Set(float64(outputs[len(outputs)-1].Envelope.Sequence))
	}
}

// BuildRows converts engine outputs to insertable rows. Payloads are
// the same wire encoding the feed uses, so replay reuses the feed
// decoder.
func BuildRows(outputs []core.Output) ([]EventRow, []JournalRow, error) {
	events := make([]EventRow, 0, len(outputs))
	var journals []JournalRow

	for _, out := range outputs {
		payload, err := ingestion.MarshalEvent(out.Event)
		if err != nil {
			return nil, nil, err
		}

		env := out.Envelope
		var poolID *string
		if env.PoolID != nil {
			s := env.PoolID.String()
			poolID = &s
		}
		events = append(events, EventRow{
			Sequence:       env.Sequence,
			EventType:      env.EventType.String(),
			IdempotencyKey: env.IdempotencyKey,
			PoolID:         poolID,
			SourceSequence: env.SourceSequence,
			Payload:        payload,
			StateHash:      env.StateHash[:],
			PrevHash:       env.PrevHash[:],
			TimestampUs:    env.Timestamp.UnixMicro(),
		})

		for _, j := range out.Batch.Journals {
			journals = append(journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				Sequence:      env.Sequence,
				JournalType:   j.Type.String(),
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Amount:        j.Amount,
				EventRef:      j.EventRef,
				TimestampUs:   j.TimestampUs,
			})
		}
	}
	return events, journals, nil
}
