package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/doteapp/dote/internal/core/domain"
)

// Subjects. Previews go over core NATS, everything else through JetStream.
const (
	subjectPreviewPrefix  = "dote.preview."
	SubjectWalkCompleted  = "dote.walk.completed"
	subjectFixPrefix      = "dote.fix."
	subjectProgressPrefix = "dote.progress."
	subjectAllFixes       = "dote.fix.>"
	subjectAllWalkEvents  = "dote.walk.>"
	subjectAllProgress    = "dote.progress.>"
)

// PreviewSubject is the subject carrying live hull previews of one walk.
func PreviewSubject(sessionID string) string { return subjectPreviewPrefix + sessionID }

// FixSubject is the subject carrying collar fixes of one dog.
func FixSubject(dogID string) string { return subjectFixPrefix + dogID }

// Publisher implements ports.EventPublisher and ports.AchievementNotifier
// using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	streams := []nats.StreamConfig{
		{
			Name:      "DOTE_WALKS",
			Subjects:  []string{subjectAllWalkEvents},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "DOTE_COLLAR_FIXES",
			Subjects:  []string{subjectAllFixes},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			// consumed by the achievement evaluator
			Name:      "DOTE_PROGRESS",
			Subjects:  []string{subjectAllProgress},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishPreview fans a live hull out to websocket relays. Previews are
// not persisted.
func (p *Publisher) PublishPreview(ctx context.Context, update *domain.PointUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return p.conn.Publish(PreviewSubject(update.SessionID), data)
}

func (p *Publisher) PublishWalkCompleted(ctx context.Context, session *domain.WalkSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectWalkCompleted, data, nats.MsgId(session.ID), nats.Context(ctx))
	return err
}

func (p *Publisher) PublishCollarFix(ctx context.Context, fix *domain.CollarFix) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(FixSubject(fix.DogID), data, nats.Context(ctx))
	return err
}

// NotifyProgress hands the dog's new totals to the achievement evaluator.
// The session id dedupes redeliveries.
func (p *Publisher) NotifyProgress(ctx context.Context, progress *domain.TerritoryProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subjectProgressPrefix+progress.DogID, data,
		nats.MsgId("progress-"+progress.SessionID), nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection for health checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
