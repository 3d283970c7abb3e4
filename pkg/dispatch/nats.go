package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/millrun/millrun/pkg/config"
	"github.com/millrun/millrun/pkg/engine"
)

// Publisher publishes a payload to a subject with a deduplication ID.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

// NATSDispatcher forwards engine events to a JetStream stream. Each event
// is published as JSON to <prefix>.<event type>, e.g.
// production.events.stage_blocked, with the event ID as the JetStream
// message ID so redelivered events are deduplicated by the server.
type NATSDispatcher struct {
	pub     Publisher
	prefix  string
	timeout time.Duration
	logger  zerolog.Logger
	closer  func()
}

// NewNATSDispatcher creates a dispatcher on top of an existing publisher.
func NewNATSDispatcher(pub Publisher, subjectPrefix string, timeout time.Duration, logger zerolog.Logger) *NATSDispatcher {
	return &NATSDispatcher{
		pub:     pub,
		prefix:  strings.TrimSuffix(subjectPrefix, "."),
		timeout: timeout,
		logger:  logger.With().Str("component", "nats-dispatcher").Logger(),
	}
}

// Connect dials NATS, ensures the stream exists and returns a dispatcher
// publishing into it.
func Connect(ctx context.Context, cfg config.NATSConfig, logger zerolog.Logger) (*NATSDispatcher, error) {
	opts := []nats.Option{nats.Name("millrun")}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	prefix := strings.TrimSuffix(cfg.SubjectPrefix, ".")
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "millrun production events",
		Subjects:    []string{prefix + ".>"},
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Minute,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Stream, err)
	}

	d := NewNATSDispatcher(&jetStreamPublisher{js: js}, prefix, cfg.PublishTimeout, logger)
	d.closer = conn.Close

	d.logger.Info().
		Str("url", conn.ConnectedUrl()).
		Str("stream", cfg.Stream).
		Str("subjects", prefix+".>").
		Msg("Connected to NATS")

	return d, nil
}

// Subject returns the subject an event type is published to.
func (d *NATSDispatcher) Subject(t engine.EventType) string {
	return d.prefix + "." + string(t)
}

// Dispatch publishes a single event. Its signature matches
// telemetry.EventSubscriber.
func (d *NATSDispatcher) Dispatch(ctx context.Context, ev engine.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", ev.ID, err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	subject := d.Subject(ev.Type)
	if err := d.pub.Publish(ctx, subject, data, ev.ID); err != nil {
		return fmt.Errorf("failed to publish event %s to %s: %w", ev.ID, subject, err)
	}

	d.logger.Debug().
		Str("event_id", ev.ID).
		Str("subject", subject).
		Msg("Event dispatched")
	return nil
}

// Close closes the underlying connection, if the dispatcher owns one.
func (d *NATSDispatcher) Close() error {
	if d.closer != nil {
		d.closer()
	}
	return nil
}

type jetStreamPublisher struct {
	js jetstream.JetStream
}

func (p *jetStreamPublisher) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	_, err := p.js.Publish(ctx, subject, data, opts...)
	return err
}
