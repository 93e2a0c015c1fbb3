package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/creerlio/discovery/internal/core/domain"
)

const (
	subjectGeocoded = "discovery.geocoded"
	subjectActions  = "discovery.actions"
)

// GeocodedSubject is the subject for coordinates resolved for an entity of kind.
func GeocodedSubject(kind domain.EntityKind) string {
	return subjectGeocoded + "." + string(kind)
}

// ActionSubject is the subject for a popup action.
func ActionSubject(action domain.PopupAction) string {
	return subjectActions + "." + string(action)
}

// Streams lists the JetStream streams the service relies on.
func Streams() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:       "DISCOVERY_GEOCODED",
			Subjects:   []string{subjectGeocoded + ".>"},
			Retention:  nats.WorkQueuePolicy,
			MaxAge:     7 * 24 * time.Hour,
			Storage:    nats.FileStorage,
			Duplicates: 10 * time.Minute,
		},
		{
			Name:      "DISCOVERY_ACTIONS",
			Subjects:  []string{subjectActions + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	for _, cfg := range Streams() {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishEntityGeocoded queues a resolution for the write-back consumer. The
// message id deduplicates repeated resolutions of the same entity.
func (p *Publisher) PublishEntityGeocoded(ctx context.Context, ev domain.EntityGeocoded) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(GeocodedSubject(ev.Kind), data,
		nats.Context(ctx),
		nats.MsgId(string(ev.Kind)+":"+ev.EntityID),
	)
	return err
}

// PublishPopupAction records a popup action for downstream consumers.
func (p *Publisher) PublishPopupAction(ctx context.Context, ev domain.PopupActionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(ActionSubject(ev.Action), data, nats.Context(ctx))
	return err
}

// Ping reports whether the connection is up.
func (p *Publisher) Ping(ctx context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats %s", p.conn.Status())
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

func connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("discovery"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}
