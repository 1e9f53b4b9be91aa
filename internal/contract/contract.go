// Package contract manages presence contracts: multi-party agreements that
// become active when every party has signed, or when the live presence
// matches the contract's required presence.
//
// Lifecycle:
//
//	pending -> active <-> suspended
//	pending|active|suspended -> completed | cancelled | expired
package contract

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/lazypower/resonance/internal/presence"
)

// Status is a contract's lifecycle state.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusSuspended
	StatusCompleted
	StatusCancelled
	StatusExpired
)

var statusNames = []string{"pending", "active", "suspended", "completed", "cancelled", "expired"}

func (s Status) String() string {
	if int(s) >= len(statusNames) {
		return fmt.Sprintf("unknown(%d)", s)
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// EventType names a recorded transition.
type EventType string

const (
	EventCreated     EventType = "created"
	EventSigned      EventType = "signed"
	EventActivated   EventType = "activated"
	EventSuspended   EventType = "suspended"
	EventReactivated EventType = "reactivated"
	EventCompleted   EventType = "completed"
	EventCancelled   EventType = "cancelled"
	EventExpired     EventType = "expired"
)

// Event is one immutable entry of a contract's history.
type Event struct {
	Type      EventType
	Party     string
	Timestamp time.Time
	Details   string
}

// Contract is a snapshot of a presence contract.
type Contract struct {
	ID        string
	Initiator string
	// Parties in signing order. Membership is what matters for Sign.
	Parties    []string
	Required   presence.State
	Terms      string
	Signatures map[string]time.Time
	Status     Status
	CreatedAt  time.Time
	// ActivatedAt is stamped on the first activation.
	ActivatedAt *time.Time
	// ExpiredAt is stamped when the contract reaches a terminal state.
	ExpiredAt *time.Time
	// Deadline, when set, expires the contract if it is still open at that time.
	Deadline *time.Time
}

// HasParty reports whether party may sign.
func (c Contract) HasParty(party string) bool {
	return slices.Contains(c.Parties, party)
}

// FullySigned reports whether every party has signed.
func (c Contract) FullySigned() bool {
	for _, p := range c.Parties {
		if _, ok := c.Signatures[p]; !ok {
			return false
		}
	}
	return true
}

// Unsigned lists parties that have not signed yet, in party order.
func (c Contract) Unsigned() []string {
	var out []string
	for _, p := range c.Parties {
		if _, ok := c.Signatures[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

func (c Contract) clone() Contract {
	c.Parties = slices.Clone(c.Parties)
	c.Signatures = maps.Clone(c.Signatures)
	if c.ActivatedAt != nil {
		t := *c.ActivatedAt
		c.ActivatedAt = &t
	}
	if c.ExpiredAt != nil {
		t := *c.ExpiredAt
		c.ExpiredAt = &t
	}
	if c.Deadline != nil {
		t := *c.Deadline
		c.Deadline = &t
	}
	return c
}
