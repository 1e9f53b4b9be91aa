package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/pulse"
)

// BridgeConfig configures a RealBridge.
type BridgeConfig struct {
	Broker   string
	ClientID string
	LocalID  string
}

// RealBridge publishes to and subscribes from an actual MQTT broker.
type RealBridge struct {
	client  paho.Client
	localID string
	log     *zap.Logger

	mu      sync.Mutex
	handler *Handler
}

// NewRealBridge connects to the broker. Inbound pulses flow once Attach is
// called.
func NewRealBridge(cfg BridgeConfig, log *zap.Logger) (*RealBridge, error) {
	if log == nil {
		log = zap.NewNop()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "resonance-" + cfg.LocalID
	}
	b := &RealBridge{localID: cfg.LocalID, log: log}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		// Handlers may publish echoes, so they must not block the router.
		SetOrderMatters(false).
		SetOnConnectHandler(func(paho.Client) {
			log.Info("mqtt connected", zap.String("broker", cfg.Broker))
			if err := b.subscribe(); err != nil {
				log.Warn("mqtt subscribe", zap.Error(err))
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		})

	b.client = paho.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return b, nil
}

// Attach subscribes the local user's topic and the broadcast topic, handing
// every inbound pulse to recv. Subscriptions are renewed on reconnect.
func (b *RealBridge) Attach(recv Receiver) error {
	b.mu.Lock()
	b.handler = NewHandler(b.localID, recv, b.log)
	b.mu.Unlock()
	return b.subscribe()
}

func (b *RealBridge) subscribe() error {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h == nil || !b.client.IsConnectionOpen() {
		return nil
	}

	topics := map[string]byte{
		UserTopic(b.localID): 1,
		TopicBroadcast:       1,
	}
	token := b.client.SubscribeMultiple(topics, func(_ paho.Client, m paho.Message) {
		h.HandleMessage(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	return token.Error()
}

// PublishPulse sends p on each of its topics. Every topic is attempted; the
// errors are joined.
func (b *RealBridge) PublishPulse(p pulse.Pulse) error {
	payload, err := FormatPayload(p)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var errs []error
	for _, topic := range Topics(p) {
		// QoS 1 (at-least-once); receivers dedupe by pulse id
		token := b.client.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(5 * time.Second) {
			errs = append(errs, fmt.Errorf("publish %s: timeout", topic))
			continue
		}
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// IsConnected reports whether the client is connected.
func (b *RealBridge) IsConnected() bool {
	return b.client.IsConnected()
}

// Close disconnects from the broker.
func (b *RealBridge) Close() error {
	b.client.Disconnect(1000) // 1 second timeout
	return nil
}
