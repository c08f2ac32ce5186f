package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"
	"github.com/paulmach/orb/geojson"

	natsadapter "github.com/doteapp/dote/internal/adapters/nats"
	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/pkg/geospatial"
	"github.com/doteapp/dote/internal/pkg/metrics"
)

// wsEvent is one message pushed to a walk watcher.
type wsEvent struct {
	Type string      `json:"type"` // snapshot | preview | completed | error
	Data interface{} `json:"data,omitempty"`
}

// wsPreview is a point update with its hull attached as a GeoJSON feature
// so map clients can draw it directly.
type wsPreview struct {
	*domain.PointUpdate
	Hull *geojson.Feature `json:"hull,omitempty"`
}

func previewPayload(u *domain.PointUpdate) wsPreview {
	p := wsPreview{PointUpdate: u}
	if len(u.Preview) >= 3 {
		p.Hull = geospatial.PolygonFeature(u.Preview)
		p.Hull.Properties["session_id"] = u.SessionID
		p.Hull.Properties["area_km2"] = u.PreviewAreaKm2
	}
	return p
}

// WalkWebSocketHandler streams the live hull preview of one walk. The
// client first receives a snapshot of the walk, then every preview the
// walk publishes, and a final completed event when the walk ends.
func WalkWebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		sessionID := c.Params("id")
		logger := slog.Default().With("session_id", sessionID, "remote", c.RemoteAddr().String())

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		session, err := deps.Walks.GetSession(ctx, sessionID)
		var snapshot interface{} = session
		if err == nil && session.Status == domain.WalkActive {
			if preview, perr := deps.Walks.Preview(ctx, sessionID); perr == nil {
				snapshot = previewPayload(preview)
			}
		}
		cancel()
		if err != nil {
			_ = writeJSON(wsEvent{Type: "error", Data: err.Error()})
			return
		}
		if err := writeJSON(wsEvent{Type: "snapshot", Data: snapshot}); err != nil {
			return
		}
		if session.Status != domain.WalkActive {
			return
		}
		if deps.NATS == nil {
			_ = writeJSON(wsEvent{Type: "error", Data: "live updates not available"})
			return
		}

		done := make(chan struct{})
		var closeOnce sync.Once
		finish := func() { closeOnce.Do(func() { close(done) }) }

		previews, err := deps.NATS.Subscribe(natsadapter.PreviewSubject(sessionID), func(msg *nats.Msg) {
			var u domain.PointUpdate
			if err := json.Unmarshal(msg.Data, &u); err != nil {
				logger.Debug("ws dropping malformed preview", "error", err)
				return
			}
			_ = writeJSON(wsEvent{Type: "preview", Data: previewPayload(&u)})
		})
		if err != nil {
			logger.Warn("ws preview subscribe failed", "error", err)
			return
		}
		defer previews.Unsubscribe()

		completed, err := deps.NATS.Subscribe(natsadapter.SubjectWalkCompleted, func(msg *nats.Msg) {
			var s domain.WalkSession
			if json.Unmarshal(msg.Data, &s) != nil || s.ID != sessionID {
				return
			}
			_ = writeJSON(wsEvent{Type: "completed", Data: s})
			finish()
		})
		if err != nil {
			logger.Warn("ws completion subscribe failed", "error", err)
			return
		}
		defer completed.Unsubscribe()

		logger.Debug("ws watcher connected")

		// Reader: a read error means the client went away.
		go func() {
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					finish()
					return
				}
			}
		}()

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				err := c.WriteMessage(websocket.PingMessage, nil)
				mu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				logger.Debug("ws watcher disconnected")
				return
			}
		}
	}
}
