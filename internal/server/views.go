package server

import (
	"time"

	"github.com/lazypower/resonance/internal/contract"
	"github.com/lazypower/resonance/internal/policy"
	"github.com/lazypower/resonance/internal/presence"
	"github.com/lazypower/resonance/internal/pulse"
	"github.com/lazypower/resonance/internal/quiet"
	"github.com/lazypower/resonance/internal/ritual"
)

// presenceJSON is both the request and response shape of a presence.
type presenceJSON struct {
	User      string                 `json:"user,omitempty"`
	Mode      presence.Mode          `json:"mode"`
	Tone      presence.Tone          `json:"tone"`
	Focus     presence.FocusLevel    `json:"focus"`
	Social    presence.SocialContext `json:"social"`
	Timestamp *time.Time             `json:"timestamp,omitempty"`
}

func (p presenceJSON) state() presence.State {
	st := presence.State{UserID: p.User, Mode: p.Mode, Tone: p.Tone, Focus: p.Focus, Social: p.Social}
	if p.Timestamp != nil {
		st.Timestamp = *p.Timestamp
	}
	return st
}

func presenceView(st presence.State) presenceJSON {
	ts := st.Timestamp
	return presenceJSON{User: st.UserID, Mode: st.Mode, Tone: st.Tone, Focus: st.Focus, Social: st.Social, Timestamp: &ts}
}

type pulseJSON struct {
	ID            string        `json:"id"`
	Sender        string        `json:"sender"`
	Type          pulse.Type    `json:"type"`
	Energy        float64       `json:"energy"`
	CurrentEnergy float64       `json:"current_energy"`
	Timestamp     time.Time     `json:"timestamp"`
	TTLMillis     int64         `json:"ttl_ms"`
	Audience      []string      `json:"audience,omitempty"`
	Presence      *presenceJSON `json:"presence,omitempty"`
	EchoOf        string        `json:"echo_of,omitempty"`
	Note          string        `json:"note,omitempty"`
	Expired       bool          `json:"expired"`
}

func pulseView(p pulse.Pulse, now time.Time) pulseJSON {
	v := pulseJSON{
		ID:            p.ID,
		Sender:        p.SenderID,
		Type:          p.Type,
		Energy:        p.Energy,
		CurrentEnergy: p.CurrentEnergy(now),
		Timestamp:     p.Timestamp,
		TTLMillis:     p.TTL.Milliseconds(),
		Audience:      p.Audience,
		EchoOf:        p.EchoOf,
		Note:          p.Note,
		Expired:       p.IsExpired(now),
	}
	if p.Presence != nil {
		pv := presenceView(*p.Presence)
		v.Presence = &pv
	}
	return v
}

func pulseViews(ps []pulse.Pulse, now time.Time) []pulseJSON {
	out := make([]pulseJSON, 0, len(ps))
	for _, p := range ps {
		out = append(out, pulseView(p, now))
	}
	return out
}

type decisionJSON struct {
	Visible       bool                `json:"visible"`
	Glow          policy.Glow         `json:"glow"`
	Notification  policy.Notification `json:"notification"`
	RevealDelayMS int64               `json:"reveal_delay_ms"`
	Prominence    float64             `json:"prominence"`
	Animation     policy.Animation    `json:"animation"`
}

func decisionView(d policy.Decision) decisionJSON {
	return decisionJSON{
		Visible:       d.Visible,
		Glow:          d.Glow,
		Notification:  d.Notification,
		RevealDelayMS: d.RevealDelay.Milliseconds(),
		Prominence:    d.Prominence,
		Animation:     d.Animation,
	}
}

// conditionJSON is a reveal condition on the wire. An empty kind means none.
type conditionJSON struct {
	Kind     string        `json:"kind"`
	DelayMS  int64         `json:"delay_ms,omitempty"`
	Required *presenceJSON `json:"required,omitempty"`
}

func (c *conditionJSON) condition() (quiet.Condition, error) {
	if c == nil {
		return nil, nil
	}
	var required *presence.State
	if c.Required != nil {
		st := c.Required.state()
		required = &st
	}
	return quiet.ParseCondition(c.Kind, time.Duration(c.DelayMS)*time.Millisecond, required)
}

func conditionView(c quiet.Condition) *conditionJSON {
	switch c := c.(type) {
	case quiet.PresenceMatch:
		req := presenceView(c.Required)
		req.Timestamp = nil
		return &conditionJSON{Kind: c.Kind(), Required: &req}
	case quiet.TimedDelay:
		return &conditionJSON{Kind: c.Kind(), DelayMS: c.Delay.Milliseconds()}
	case quiet.OnOpen:
		return &conditionJSON{Kind: c.Kind()}
	}
	return nil
}

type messageJSON struct {
	ID          string         `json:"id"`
	Sender      string         `json:"sender"`
	Recipient   string         `json:"recipient"`
	Body        string         `json:"body"`
	SentAt      time.Time      `json:"sent_at"`
	Tone        quiet.Tone     `json:"tone"`
	Suppress    bool           `json:"suppress_notification"`
	Condition   *conditionJSON `json:"condition,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	Silent      bool           `json:"silent"`
}

// messageView renders m; silent is decided against the recipient's presence.
func messageView(m quiet.QuietMessage, recipient *presence.State) messageJSON {
	return messageJSON{
		ID:          m.ID,
		Sender:      m.SenderID,
		Recipient:   m.RecipientID,
		Body:        m.Body,
		SentAt:      m.SentAt,
		Tone:        m.Tone,
		Suppress:    m.SuppressNotification,
		Condition:   conditionView(m.Condition),
		DeliveredAt: m.DeliveredAt,
		Silent:      quiet.ShouldBeSilent(m, recipient),
	}
}

func messageViews(ms []quiet.QuietMessage, lookup quiet.Lookup) []messageJSON {
	out := make([]messageJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, messageView(m, lookup(m.RecipientID)))
	}
	return out
}

type contractJSON struct {
	ID          string               `json:"id"`
	Initiator   string               `json:"initiator"`
	Parties     []string             `json:"parties"`
	Required    presenceJSON         `json:"required"`
	Terms       string               `json:"terms,omitempty"`
	Signatures  map[string]time.Time `json:"signatures"`
	Unsigned    []string             `json:"unsigned,omitempty"`
	Status      contract.Status      `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	ActivatedAt *time.Time           `json:"activated_at,omitempty"`
	ExpiredAt   *time.Time           `json:"expired_at,omitempty"`
	Deadline    *time.Time           `json:"deadline,omitempty"`
}

func contractView(c contract.Contract) contractJSON {
	req := presenceView(c.Required)
	req.Timestamp = nil
	return contractJSON{
		ID:          c.ID,
		Initiator:   c.Initiator,
		Parties:     c.Parties,
		Required:    req,
		Terms:       c.Terms,
		Signatures:  c.Signatures,
		Unsigned:    c.Unsigned(),
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		ActivatedAt: c.ActivatedAt,
		ExpiredAt:   c.ExpiredAt,
		Deadline:    c.Deadline,
	}
}

type eventJSON struct {
	Type      contract.EventType `json:"type"`
	Party     string             `json:"party,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Details   string             `json:"details,omitempty"`
}

type ritualJSON struct {
	ID        string        `json:"id"`
	Mode      ritual.Mode   `json:"mode"`
	Status    ritual.Status `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Details   string        `json:"details,omitempty"`
}

func activeView(a ritual.ActiveRitual) ritualJSON {
	return ritualJSON{ID: a.ID, Mode: a.Mode, Status: a.Status, StartTime: a.StartTime, Details: a.Details}
}

func executionView(ex ritual.Execution) ritualJSON {
	end := ex.EndTime
	return ritualJSON{ID: ex.ID, Mode: ex.Mode, Status: ex.Status, StartTime: ex.StartTime, EndTime: &end, Details: ex.Details}
}
