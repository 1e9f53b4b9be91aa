// Package transport bridges pulses between users over MQTT.
//
// A pulse addressed to specific users is published once per recipient on
// resonance/pulses/<user>; a broadcast pulse goes to resonance/pulses/broadcast.
// Each bridge subscribes to its own user topic and the broadcast topic.
package transport

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/presence"
	"github.com/lazypower/resonance/internal/pulse"
)

// TopicPrefix is the root of every pulse topic.
const TopicPrefix = "resonance/pulses/"

// MaxTTLMillis is the largest ttl_ms that fits a time.Duration.
const MaxTTLMillis = math.MaxInt64 / int64(time.Millisecond)

// TopicBroadcast carries pulses addressed to everyone.
const TopicBroadcast = TopicPrefix + "broadcast"

// Publisher sends pulses to the broker.
type Publisher interface {
	// PublishPulse sends p on every topic it is addressed to.
	PublishPulse(p pulse.Pulse) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the broker connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// Receiver accepts inbound pulses. *engine.Session implements it.
type Receiver interface {
	Receive(p pulse.Pulse) (pulse.Receipt, error)
}

// UserTopic is the topic a user's bridge subscribes to.
func UserTopic(userID string) string { return TopicPrefix + userID }

// Topics returns the topics p is published on.
func Topics(p pulse.Pulse) []string {
	if p.IsBroadcast() {
		return []string{TopicBroadcast}
	}
	out := make([]string, 0, len(p.Audience))
	for _, u := range p.Audience {
		out = append(out, UserTopic(u))
	}
	return out
}

// Payload is the JSON wire form of a pulse.
type Payload struct {
	ID        string           `json:"id"`
	Sender    string           `json:"sender"`
	Type      pulse.Type       `json:"type"`
	Energy    float64          `json:"energy"`
	Timestamp string           `json:"timestamp"`
	TTLMillis int64            `json:"ttl_ms"`
	Audience  []string         `json:"audience,omitempty"`
	Presence  *PresencePayload `json:"presence,omitempty"`
	EchoOf    string           `json:"echo_of,omitempty"`
	Note      string           `json:"note,omitempty"`
}

// PresencePayload is the sender presence carried on a pulse.
type PresencePayload struct {
	User      string                 `json:"user"`
	Mode      presence.Mode          `json:"mode"`
	Tone      presence.Tone          `json:"tone"`
	Focus     presence.FocusLevel    `json:"focus"`
	Social    presence.SocialContext `json:"social"`
	Timestamp string                 `json:"timestamp"`
}

// FormatPayload encodes p for the wire.
func FormatPayload(p pulse.Pulse) ([]byte, error) {
	pl := Payload{
		ID:        p.ID,
		Sender:    p.SenderID,
		Type:      p.Type,
		Energy:    p.Energy,
		Timestamp: p.Timestamp.UTC().Format(time.RFC3339Nano),
		TTLMillis: p.TTL.Milliseconds(),
		Audience:  p.Audience,
		EchoOf:    p.EchoOf,
		Note:      p.Note,
	}
	if st := p.Presence; st != nil {
		pl.Presence = &PresencePayload{
			User:      st.UserID,
			Mode:      st.Mode,
			Tone:      st.Tone,
			Focus:     st.Focus,
			Social:    st.Social,
			Timestamp: st.Timestamp.UTC().Format(time.RFC3339Nano),
		}
	}
	return json.Marshal(pl)
}

// ParsePayload decodes and validates a wire pulse.
func ParsePayload(b []byte) (pulse.Pulse, error) {
	var pl Payload
	if err := json.Unmarshal(b, &pl); err != nil {
		return pulse.Pulse{}, fmt.Errorf("decode pulse: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, pl.Timestamp)
	if err != nil {
		return pulse.Pulse{}, fmt.Errorf("decode pulse %s: timestamp: %w", pl.ID, err)
	}
	if pl.TTLMillis > MaxTTLMillis {
		return pulse.Pulse{}, fmt.Errorf("decode pulse %s: ttl_ms %d out of range", pl.ID, pl.TTLMillis)
	}
	p := pulse.Pulse{
		ID:        pl.ID,
		SenderID:  pl.Sender,
		Type:      pl.Type,
		Energy:    pl.Energy,
		Timestamp: ts,
		TTL:       time.Duration(pl.TTLMillis) * time.Millisecond,
		Audience:  pl.Audience,
		EchoOf:    pl.EchoOf,
		Note:      pl.Note,
	}
	if pp := pl.Presence; pp != nil {
		var pts time.Time
		if pp.Timestamp != "" {
			if pts, err = time.Parse(time.RFC3339Nano, pp.Timestamp); err != nil {
				return pulse.Pulse{}, fmt.Errorf("decode pulse %s: presence timestamp: %w", pl.ID, err)
			}
		}
		p.Presence = &presence.State{
			UserID:    pp.User,
			Mode:      pp.Mode,
			Tone:      pp.Tone,
			Focus:     pp.Focus,
			Social:    pp.Social,
			Timestamp: pts,
		}
	}
	if err := p.Validate(); err != nil {
		return pulse.Pulse{}, fmt.Errorf("decode pulse: %w", err)
	}
	return p, nil
}

// Handler turns inbound MQTT messages into Receive calls.
type Handler struct {
	localID string
	recv    Receiver
	log     *zap.Logger
}

// NewHandler returns a Handler delivering to recv on behalf of localID.
func NewHandler(localID string, recv Receiver, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{localID: localID, recv: recv, log: log}
}

// HandleMessage decodes one message. Undecodable payloads and pulses sent by
// the local user are dropped.
func (h *Handler) HandleMessage(topic string, payload []byte) {
	p, err := ParsePayload(payload)
	if err != nil {
		h.log.Warn("drop pulse", zap.String("topic", topic), zap.Error(err))
		return
	}
	if p.SenderID == h.localID {
		return
	}
	rec, err := h.recv.Receive(p)
	if err != nil {
		h.log.Warn("receive pulse", zap.String("id", p.ID), zap.Error(err))
		return
	}
	h.log.Debug("pulse in",
		zap.String("topic", topic),
		zap.String("id", p.ID),
		zap.String("reason", rec.Reason))
}
