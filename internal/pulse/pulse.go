// Package pulse implements the pulse registry: short-lived signals whose energy
// decays linearly to zero over their time-to-live.
package pulse

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/resonance/internal/presence"
)

// Broadcast in an audience addresses every receiver.
const Broadcast = "*"

// DefaultTTL is used when an emission does not set one.
const DefaultTTL = 30 * time.Second

// Type is the kind of pulse.
type Type uint8

const (
	Urgency Type = iota
	Curiosity
	Favor
	EmotionalPresence
	Heartbeat
	EnergySurge
	ResonanceCall
	PresenceEcho
	HarmonicTone
	AlarmPulse
)

var typeNames = []string{
	"urgency", "curiosity", "favor", "emotional_presence", "heartbeat",
	"energy_surge", "resonance_call", "presence_echo", "harmonic_tone", "alarm_pulse",
}

// Types lists every pulse type.
func Types() []Type {
	out := make([]Type, len(typeNames))
	for i := range typeNames {
		out[i] = Type(i)
	}
	return out
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("unknown(%d)", t)
	}
	return typeNames[t]
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool { return int(t) < len(typeNames) }

// IsUrgent reports whether t belongs to the urgency class, which is allowed
// through private presence.
func (t Type) IsUrgent() bool { return t == Urgency || t == AlarmPulse }

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid pulse type %d", t)
	}
	return []byte(typeNames[t]), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseType parses a type name such as "resonance_call".
func ParseType(s string) (Type, error) {
	for i, n := range typeNames {
		if n == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown pulse type %q", s)
}

// Pulse is a single emitted signal.
type Pulse struct {
	ID        string
	SenderID  string
	Type      Type
	Energy    float64
	Timestamp time.Time
	TTL       time.Duration
	// Audience lists receivers; empty means broadcast.
	Audience []string
	// Presence is the sender's presence when the pulse was emitted, if shared.
	Presence *presence.State
	// EchoOf is the ID of the resonance call this pulse answers.
	EchoOf string
	// Note is free-form context, e.g. the object bound to an object ritual.
	Note string
}

// New builds a broadcast pulse from sender stamped at ts. Energy outside
// [0,1], a non-positive ttl and unknown types are rejected.
func New(sender string, kind Type, energy float64, ttl time.Duration, ts time.Time) (Pulse, error) {
	p := Pulse{
		ID:        uuid.NewString(),
		SenderID:  sender,
		Type:      kind,
		Energy:    energy,
		Timestamp: ts,
		TTL:       ttl,
	}
	if err := p.Validate(); err != nil {
		return Pulse{}, err
	}
	return p, nil
}

// Validate checks the construction invariants.
func (p Pulse) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("pulse: empty id")
	case !p.Type.Valid():
		return fmt.Errorf("pulse %s: invalid type %d", p.ID, p.Type)
	case math.IsNaN(p.Energy) || p.Energy < 0 || p.Energy > 1:
		return fmt.Errorf("pulse %s: energy %v outside [0,1]", p.ID, p.Energy)
	case p.TTL <= 0:
		return fmt.Errorf("pulse %s: ttl must be positive, got %s", p.ID, p.TTL)
	}
	if p.Presence != nil {
		if err := p.Presence.Validate(); err != nil {
			return fmt.Errorf("pulse %s: %w", p.ID, err)
		}
	}
	return nil
}

// ExpiresAt is the instant the pulse's energy reaches zero.
func (p Pulse) ExpiresAt() time.Time {
	return p.Timestamp.Add(p.TTL)
}

// IsExpired reports whether now is strictly past ExpiresAt.
func (p Pulse) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt())
}

// CurrentEnergy is the linearly decayed energy at now: full energy up to the
// timestamp, zero from ExpiresAt on.
func (p Pulse) CurrentEnergy(now time.Time) float64 {
	elapsed := now.Sub(p.Timestamp)
	if elapsed <= 0 {
		return p.Energy
	}
	if elapsed >= p.TTL {
		return 0
	}
	e := p.Energy * (1 - float64(elapsed)/float64(p.TTL))
	if e < 0 {
		return 0
	}
	return e
}

// AddressedTo reports whether userID is in the audience.
func (p Pulse) AddressedTo(userID string) bool {
	if len(p.Audience) == 0 {
		return true
	}
	return slices.Contains(p.Audience, Broadcast) || slices.Contains(p.Audience, userID)
}

// IsBroadcast reports whether the pulse is addressed to everyone.
func (p Pulse) IsBroadcast() bool {
	return len(p.Audience) == 0 || slices.Contains(p.Audience, Broadcast)
}

func clampEnergy(e float64) float64 {
	switch {
	case math.IsNaN(e), e < 0:
		return 0
	case e > 1:
		return 1
	}
	return e
}
