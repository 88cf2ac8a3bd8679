// Package ingestion mirrors committed market updates to NATS JetStream for
// downstream consumers. Publishing is best-effort: an update that fails to
// publish is already persisted and can be re-read from the market store.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PerpVamm/internal/observability"
	"PerpVamm/internal/vamm"
)

// StreamName is the JetStream stream holding market events.
const StreamName = "VAMM_EVENTS"

// MarketEvent is the wire envelope for one published update.
type MarketEvent struct {
	EventID   string                `json:"event_id"`
	MarketID  string                `json:"market_id"`
	Kind      string                `json:"kind"`
	State     vamm.State            `json:"state"`
	Snapshot  *vamm.ReserveSnapshot `json:"snapshot,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// Publisher drains a market update channel and publishes each update to
// vamm.events.{kind}.{market_id}.
type Publisher struct {
	js      jetstream.JetStream
	in      <-chan vamm.Update
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewPublisher(js jetstream.JetStream, in <-chan vamm.Update, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		js:      js,
		in:      in,
		logger:  logger,
		metrics: metrics,
	}
}

// Run starts the publisher loop. Blocks until ctx is cancelled or the
// channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case upd, ok := <-p.in:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, upd); err != nil {
				p.logger.Warn().
					Err(err).
					Str("market", upd.MarketID).
					Str("kind", string(upd.Kind)).
					Msg("outbound publish failed")
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
				continue
			}

			if p.metrics != nil {
				p.metrics.EventsPublished.WithLabelValues(string(upd.Kind)).Inc()
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, upd vamm.Update) error {
	evt := MarketEvent{
		EventID:   uuid.NewString(),
		MarketID:  upd.MarketID,
		Kind:      string(upd.Kind),
		State:     upd.State,
		Snapshot:  upd.Snapshot,
		Timestamp: upd.Timestamp,
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("vamm.events.%s.%s", evt.Kind, evt.MarketID)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates or updates the market events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"vamm.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}

// ConnectNATS dials NATS with unlimited reconnects and opens a JetStream
// context over the connection.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
