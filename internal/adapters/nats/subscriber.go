package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/doteapp/dote/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeCollarFixes consumes collar fixes as a queue shared by all API
// instances. Malformed payloads are terminated instead of redelivered.
func (s *Subscriber) SubscribeCollarFixes(ctx context.Context, handler func(ctx context.Context, fix *domain.CollarFix) error) error {
	sub, err := s.js.QueueSubscribe(subjectAllFixes, "collar-ingest", func(msg *nats.Msg) {
		var fix domain.CollarFix
		if err := json.Unmarshal(msg.Data, &fix); err != nil {
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &fix); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *Subscriber) SubscribeWalkCompleted(ctx context.Context, handler func(ctx context.Context, session *domain.WalkSession) error) error {
	sub, err := s.js.Subscribe(SubjectWalkCompleted, func(msg *nats.Msg) {
		var session domain.WalkSession
		if err := json.Unmarshal(msg.Data, &session); err != nil {
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &session); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("walk-completed-processor"),
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
