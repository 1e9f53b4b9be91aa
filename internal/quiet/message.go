// Package quiet implements the quiet message queue: messages held back until a
// reveal condition is satisfied, then delivered exactly once.
package quiet

import (
	"fmt"
	"time"

	"github.com/lazypower/resonance/internal/presence"
)

// Tone is how loudly a delivered message may announce itself.
type Tone uint8

const (
	ToneSilent Tone = iota
	ToneVibration
	ToneSubtleChime
	ToneAlert
)

var toneNames = []string{"silent", "vibration", "subtle_chime", "alert"}

func (t Tone) String() string {
	if int(t) >= len(toneNames) {
		return fmt.Sprintf("unknown(%d)", t)
	}
	return toneNames[t]
}

func (t Tone) MarshalText() ([]byte, error) {
	if int(t) >= len(toneNames) {
		return nil, fmt.Errorf("invalid quiet tone %d", t)
	}
	return []byte(toneNames[t]), nil
}

func (t *Tone) UnmarshalText(b []byte) error {
	v, err := ParseTone(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTone parses a tone name such as "subtle_chime".
func ParseTone(s string) (Tone, error) {
	for i, n := range toneNames {
		if n == s {
			return Tone(i), nil
		}
	}
	return 0, fmt.Errorf("unknown quiet tone %q", s)
}

// Message is the payload carried by a QuietMessage.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Body        string
	SentAt      time.Time
}

// QuietMessage is a queued message plus its delivery manners.
type QuietMessage struct {
	Message
	Tone                 Tone
	SuppressNotification bool
	// Condition gates delivery; nil reveals on the next delivery pass.
	Condition   Condition
	DeliveredAt *time.Time
}

// Condition is a reveal condition. The set of implementations is closed:
// PresenceMatch, TimedDelay and OnOpen.
type Condition interface {
	Kind() string
	condition()
}

// PresenceMatch reveals once the recipient's presence matches Required.
type PresenceMatch struct {
	Required presence.State
}

// TimedDelay reveals Delay after the message was sent.
type TimedDelay struct {
	Delay time.Duration
}

// OnOpen reveals as soon as the recipient looks.
type OnOpen struct{}

func (PresenceMatch) Kind() string { return "presence_match" }
func (TimedDelay) Kind() string    { return "timed_delay" }
func (OnOpen) Kind() string        { return "on_open" }

func (PresenceMatch) condition() {}
func (TimedDelay) condition()    {}
func (OnOpen) condition()        {}

// ParseCondition builds a Condition from its kind name. required is used by
// presence_match, delay by timed_delay. An empty kind yields a nil Condition.
func ParseCondition(kind string, delay time.Duration, required *presence.State) (Condition, error) {
	switch kind {
	case "":
		return nil, nil
	case "on_open":
		return OnOpen{}, nil
	case "timed_delay":
		if delay < 0 {
			return nil, fmt.Errorf("timed_delay: negative delay %s", delay)
		}
		return TimedDelay{Delay: delay}, nil
	case "presence_match":
		if required == nil {
			return nil, fmt.Errorf("presence_match: required presence missing")
		}
		if err := required.Validate(); err != nil {
			return nil, fmt.Errorf("presence_match: %w", err)
		}
		return PresenceMatch{Required: *required}, nil
	}
	return nil, fmt.Errorf("unknown reveal condition %q", kind)
}

// ShouldBeSilent reports whether delivering msg must not make a sound: the
// sender suppressed it, the tone is silent, or the recipient is in deep focus.
func ShouldBeSilent(msg QuietMessage, current *presence.State) bool {
	if msg.SuppressNotification || msg.Tone == ToneSilent {
		return true
	}
	return current != nil && current.Mode == presence.ModeDeepFocus
}
