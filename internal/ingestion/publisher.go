package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"FlightPool/internal/core"
	"FlightPool/internal/observability"
)

const (
	// OutboundStream holds every applied event for downstream
	// consumers (notifiers, analytics, audit tooling).
	OutboundStream = "FLIGHT_POOL_EVENTS"

	outboundSubjectPrefix = "flight.pool.events"
)

// EnsureOutboundStream creates or updates the outbound stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      OutboundStream,
		Subjects:  []string{outboundSubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    30 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("ensure outbound stream: %w", err)
	}
	return nil
}

// OutboundPublisher re-emits applied events to JetStream on subjects
// of the form flight.pool.events.<event_type>.<pool_id>. Publishing is
// best effort; the event log in Postgres is the durable record.
type OutboundPublisher struct {
	js      jetstream.JetStream
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewOutboundPublisher(js jetstream.JetStream, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{js: js, metrics: metrics, logger: logger}
}

// Publish emits one applied event.
func (p *OutboundPublisher) Publish(ctx context.Context, out core.Output) {
	payload, err := MarshalEvent(out.Event)
	if err != nil {
		p.logger.Error().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("marshal outbound event")
		return
	}

	typeName := out.Envelope.EventType.String()
	subject := outboundSubjectPrefix + "." + typeName
	if out.Envelope.PoolID != nil {
		subject += "." + out.Envelope.PoolID.String()
	}

	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		if p.metrics != nil {
			p.metrics.NATSPublishErrors.Inc()
		}
		p.logger.Error().Err(err).Str("subject", subject).Msg("outbound publish failed")
		return
	}
	if p.metrics != nil {
		p.metrics.NATSMessagesPublished.WithLabelValues(typeName).Inc()
	}
}

// Run drains an output channel until it closes or the context ends.
func (p *OutboundPublisher) Run(ctx context.Context, outputs <-chan core.Output) {
	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-outputs:
			if !ok {
				return
			}
			p.Publish(ctx, out)
		}
	}
}
