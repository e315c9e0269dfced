package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"handsign/internal/metrics"
	"handsign/internal/models"
)

const (
	disconnectQuiesce    = 250 // milliseconds
	connectRetryInterval = 5 * time.Second
	maxReconnectInterval = time.Minute
	subscribeWait        = 10 * time.Second
)

var (
	errNotConnected   = errors.New("not connected to MQTT broker")
	errPublishTimeout = errors.New("publish timeout")
)

// Handler receives messages for a subscription.
type Handler func(topic string, payload []byte)

type subscription struct {
	qos     byte
	handler Handler
}

// MQTT is the process-wide broker connection. It reconnects on its own and
// restores subscriptions after every reconnect.
type MQTT struct {
	client         paho.Client
	broker         string
	publishTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics

	mu   sync.Mutex
	subs map[string]subscription
}

func NewMQTT(cfg models.MQTTConfig, logger *slog.Logger, m *metrics.Metrics) *MQTT {
	p := &MQTT{
		broker:         cfg.Broker,
		publishTimeout: cfg.PublishTimeout,
		logger:         logger.With("component", "mqtt"),
		metrics:        m,
		subs:           make(map[string]subscription),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientIDPrefix + "-" + uuid.NewString()[:8])
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(connectRetryInterval)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		p.logger.Info("reconnecting to MQTT broker", "broker", p.broker)
	})

	p.client = paho.NewClient(opts)
	return p
}

// Connect starts the connection. When ctx ends first the client keeps
// retrying in the background and publishes fail until it succeeds.
func (p *MQTT) Connect(ctx context.Context) error {
	const op = "publisher.MQTT.Connect"

	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%s: %w: %w", op, models.ErrDelivery, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %w", op, models.ErrDelivery, ctx.Err())
	}
}

func (p *MQTT) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

func (p *MQTT) Disconnect() {
	p.client.Disconnect(disconnectQuiesce)
	p.metrics.SetMQTTConnected(false)
}

// Publish returns once the broker has acknowledged the message (QoS ≥ 1).
func (p *MQTT) Publish(ctx context.Context, topic string, payload []byte, opts Options) error {
	const op = "publisher.MQTT.Publish"

	start := time.Now()
	if !p.client.IsConnectionOpen() {
		p.metrics.ObservePublish(start, errNotConnected)
		return fmt.Errorf("%s: %s: %w: %w", op, topic, models.ErrDelivery, errNotConnected)
	}

	var timeout <-chan time.Time
	if p.publishTimeout > 0 {
		timer := time.NewTimer(p.publishTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	token := p.client.Publish(topic, opts.QoS, opts.Retain, payload)
	var err error
	select {
	case <-token.Done():
		err = token.Error()
	case <-ctx.Done():
		err = ctx.Err()
	case <-timeout:
		err = errPublishTimeout
	}
	p.metrics.ObservePublish(start, err)
	if err != nil {
		return fmt.Errorf("%s: %s: %w: %w", op, topic, models.ErrDelivery, err)
	}

	p.logger.Debug("published", "topic", topic, "bytes", len(payload), "retain", opts.Retain)
	return nil
}

// Subscribe registers h for filter. The subscription is (re)established on
// every connect.
func (p *MQTT) Subscribe(filter string, qos byte, h Handler) error {
	const op = "publisher.MQTT.Subscribe"

	sub := subscription{qos: qos, handler: h}
	p.mu.Lock()
	p.subs[filter] = sub
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil
	}
	if err := p.subscribe(filter, sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *MQTT) subscribe(filter string, sub subscription) error {
	token := p.client.Subscribe(filter, sub.qos, func(_ paho.Client, msg paho.Message) {
		sub.handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(subscribeWait) {
		return fmt.Errorf("subscribe %s: timeout", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

func (p *MQTT) onConnect(paho.Client) {
	p.logger.Info("connected to MQTT broker", "broker", p.broker)
	p.metrics.SetMQTTConnected(true)

	p.mu.Lock()
	subs := make(map[string]subscription, len(p.subs))
	for filter, sub := range p.subs {
		subs[filter] = sub
	}
	p.mu.Unlock()

	for filter, sub := range subs {
		if err := p.subscribe(filter, sub); err != nil {
			p.logger.Error("restoring subscription", "filter", filter, "error", err)
			continue
		}
		p.logger.Info("subscribed", "filter", filter)
	}
}

func (p *MQTT) onConnectionLost(_ paho.Client, err error) {
	p.logger.Warn("connection to MQTT broker lost", "broker", p.broker, "error", err)
	p.metrics.SetMQTTConnected(false)
	p.metrics.MQTTErrors.Inc()
}
