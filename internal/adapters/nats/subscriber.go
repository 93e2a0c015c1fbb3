package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/creerlio/discovery/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeEntityGeocoded delivers geocoded events to handler. Malformed
// messages are terminated; handler errors are redelivered up to three times.
func (s *Subscriber) SubscribeEntityGeocoded(ctx context.Context, handler func(ctx context.Context, ev domain.EntityGeocoded) error) error {
	sub, err := s.js.Subscribe(subjectGeocoded+".>", func(msg *nats.Msg) {
		ev, err := decodeGeocoded(msg.Data)
		if err != nil {
			_ = msg.Term()
			return
		}
		if err := handler(ctx, ev); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("geocode-writeback"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}

func decodeGeocoded(data []byte) (domain.EntityGeocoded, error) {
	var ev domain.EntityGeocoded
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, err
	}
	if ev.EntityID == "" || !ev.Kind.Valid() {
		return ev, fmt.Errorf("geocoded event missing entity")
	}
	return ev, nil
}
