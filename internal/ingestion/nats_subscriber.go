package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"FlightPool/internal/event"
	"FlightPool/internal/observability"
)

// SubjectConfig binds one JetStream stream to the event type its
// subjects carry.
type SubjectConfig struct {
	Stream    string
	Subject   string
	Durable   string
	EventType event.EventType
}

// DefaultSubjects is the inbound topology: one stream per event type.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Stream: "FLIGHT_POOLS", Subject: "flight.pools.created.>", Durable: "flightpool-pools", EventType: event.EventTypePoolCreated},
		{Stream: "FLIGHT_FUNDS", Subject: "flight.funds.added.>", Durable: "flightpool-funds", EventType: event.EventTypeFundsAdded},
		{Stream: "FLIGHT_POLICIES", Subject: "flight.policies.purchased.>", Durable: "flightpool-policies", EventType: event.EventTypePolicyPurchased},
		{Stream: "FLIGHT_CLAIMS", Subject: "flight.claims.requested.>", Durable: "flightpool-claims", EventType: event.EventTypeClaimRequested},
	}
}

// ConnectNATS dials the server and opens a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("open JetStream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStreams creates or updates the inbound streams.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, subjects []SubjectConfig) error {
	for _, sc := range subjects {
		_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:      sc.Stream,
			Subjects:  []string{sc.Subject},
			Retention: jetstream.LimitsPolicy,
			Storage:   jetstream.FileStorage,
			MaxAge:    30 * 24 * time.Hour,
		})
		if err != nil {
			return fmt.Errorf("ensure stream %s: %w", sc.Stream, err)
		}
	}
	return nil
}

// RawEvent is one undecoded message handed to the consume loop. Ack
// only after the engine has accepted or terminally rejected it.
type RawEvent struct {
	EventType event.EventType
	Payload   []byte
	Subject   string
	Ack       func() error
	Nak       func() error
}

// Subscriber consumes the inbound streams into a single channel,
// preserving per-stream order via one durable consumer each.
type Subscriber struct {
	js       jetstream.JetStream
	subjects []SubjectConfig
	out      chan RawEvent
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewSubscriber(js jetstream.JetStream, subjects []SubjectConfig, buffer int, metrics *observability.Metrics, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		js:       js,
		subjects: subjects,
		out:      make(chan RawEvent, buffer),
		metrics:  metrics,
		logger:   logger,
	}
}

// Events returns the channel of consumed messages.
func (s *Subscriber) Events() <-chan RawEvent {
	return s.out
}

// Start creates the durable consumers and begins delivery. Consumers
// stop when the context is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	for _, sc := range s.subjects {
		sc := sc
		consumer, err := s.js.CreateOrUpdateConsumer(ctx, sc.Stream, jetstream.ConsumerConfig{
			Durable:       sc.Durable,
			AckPolicy:     jetstream.AckExplicitPolicy,
			FilterSubject: sc.Subject,
			MaxAckPending: 1024,
		})
		if err != nil {
			return fmt.Errorf("create consumer for %s: %w", sc.Stream, err)
		}

		cc, err := consumer.Consume(func(msg jetstream.Msg) {
			if s.metrics != nil {
				s.metrics.NATSMessagesReceived.WithLabelValues(sc.Stream).Inc()
			}
			raw := RawEvent{
				EventType: sc.EventType,
				Payload:   msg.Data(),
				Subject:   msg.Subject(),
				Ack:       msg.Ack,
				Nak:       func() error { return msg.Nak() },
			}
			select {
			case s.out <- raw:
			case <-ctx.Done():
				_ = msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", sc.Stream, err)
		}

		go func() {
			<-ctx.Done()
			cc.Stop()
		}()

		s.logger.Info().
			Str("stream", sc.Stream).
			Str("subject", sc.Subject).
			Msg("consuming stream")
	}
	return nil
}
