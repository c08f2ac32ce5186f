package mqttadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/pkg/config"
	"github.com/doteapp/dote/internal/pkg/metrics"
)

// FixSink receives validated collar fixes.
type FixSink func(ctx context.Context, fix *domain.CollarFix) error

// CollarBridge subscribes to collar GPS topics and forwards each valid fix
// to a sink. Collars publish on dote/collars/<dogID>/fix.
type CollarBridge struct {
	client mqtt.Client
	topic  string
	sink   FixSink
	logger *slog.Logger

	mu        sync.RWMutex
	ctx       context.Context
	connected bool
}

// fixPayload is the JSON body a collar publishes.
type fixPayload struct {
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	TS    int64    `json:"ts,omitempty"` // unix seconds
	DogID string   `json:"dog_id,omitempty"`
}

// NewCollarBridge builds a bridge with reconnecting client options. It does
// not connect until Start.
func NewCollarBridge(cfg config.MQTTConfig, sink FixSink, logger *slog.Logger) *CollarBridge {
	b := newCollarBridge(nil, cfg.Topic, sink, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "dote-collar-bridge"
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // keep the subscription across reconnects
	opts.SetOrderMatters(true)  // fixes of one collar must stay in order

	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		b.logger.Info("mqtt reconnecting")
	})

	b.client = mqtt.NewClient(opts)
	return b
}

func newCollarBridge(client mqtt.Client, topic string, sink FixSink, logger *slog.Logger) *CollarBridge {
	if logger == nil {
		logger = slog.Default()
	}
	if topic == "" {
		topic = "dote/collars/+/fix"
	}
	return &CollarBridge{
		client: client,
		topic:  topic,
		sink:   sink,
		logger: logger.With("component", "collar-bridge"),
		ctx:    context.Background(),
	}
}

// Start connects with exponential backoff and returns once connected or
// when ctx is done.
func (b *CollarBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		token := b.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				b.setConnected(true)
				b.logger.Info("connected to mqtt broker")
				return nil
			}
			b.logger.Warn("mqtt connection failed", "error", token.Error(), "retry_in", retryDelay)
		} else {
			b.logger.Warn("mqtt connection timeout", "retry_in", retryDelay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func (b *CollarBridge) onConnect(client mqtt.Client) {
	b.setConnected(true)
	token := client.Subscribe(b.topic, 1, b.handleMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		b.logger.Error("subscribe failed", "topic", b.topic, "error", token.Error())
		return
	}
	b.logger.Info("subscribed to collar fixes", "topic", b.topic)
}

func (b *CollarBridge) onConnectionLost(_ mqtt.Client, err error) {
	b.logger.Warn("mqtt connection interrupted, auto-reconnect will retry", "error", err)
	b.setConnected(false)
}

func (b *CollarBridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	fix, err := ParseFix(msg.Topic(), msg.Payload())
	if err != nil {
		metrics.CollarFixes.WithLabelValues("invalid").Inc()
		b.logger.Debug("collar fix rejected", "topic", msg.Topic(), "error", err)
		return
	}

	b.mu.RLock()
	ctx := b.ctx
	b.mu.RUnlock()

	if err := b.sink(ctx, fix); err != nil {
		metrics.CollarFixes.WithLabelValues("failed").Inc()
		b.logger.Error("forward collar fix failed", "dog_id", fix.DogID, "error", err)
		return
	}
	metrics.CollarFixes.WithLabelValues("accepted").Inc()
}

// ParseFix decodes a collar payload. The dog id comes from the topic unless
// the payload names one.
func ParseFix(topic string, payload []byte) (*domain.CollarFix, error) {
	var p fixPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p.Lat == nil || p.Lon == nil {
		return nil, errors.New("lat and lon are required")
	}

	dogID := p.DogID
	if dogID == "" {
		var ok bool
		if dogID, ok = DogIDFromTopic(topic); !ok {
			return nil, fmt.Errorf("no dog id in topic %q", topic)
		}
	}

	fix := &domain.CollarFix{
		DogID:    dogID,
		Location: domain.Coordinate{Latitude: *p.Lat, Longitude: *p.Lon},
	}
	if !fix.Location.Valid() {
		return nil, domain.ErrInvalidCoordinate
	}
	if p.TS > 0 {
		fix.RecordedAt = time.Unix(p.TS, 0).UTC()
	} else {
		fix.RecordedAt = time.Now().UTC()
	}
	return fix, nil
}

// DogIDFromTopic extracts the segment after "collars".
// Example: "dote/collars/rex-42/fix" -> "rex-42".
func DogIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "collars" && parts[i+1] != "" && parts[i+1] != "+" {
			return parts[i+1], true
		}
	}
	return "", false
}

// IsConnected reports the last known connection state.
func (b *CollarBridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *CollarBridge) setConnected(connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = connected
}

// Disconnect closes the connection after a short quiesce.
func (b *CollarBridge) Disconnect() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	b.setConnected(false)
}
