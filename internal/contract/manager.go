package contract

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/clock"
	"github.com/lazypower/resonance/internal/presence"
)

// EventSink receives every history event after the manager lock is released.
type EventSink interface {
	RecordContractEvent(contractID string, ev Event) error
}

type record struct {
	contractID string
	ev         Event
}

// Manager owns the contracts of one session.
type Manager struct {
	mu        sync.Mutex
	clock     clock.Clock
	log       *zap.Logger
	sink      EventSink
	contracts map[string]*Contract
	order     []string
	history   map[string][]Event
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the manager's time source.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = clock.OrReal(c) }
}

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithSink forwards history events to sink.
func WithSink(sink EventSink) Option {
	return func(m *Manager) { m.sink = sink }
}

// NewManager returns an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:     clock.Real{},
		log:       zap.NewNop(),
		contracts: make(map[string]*Contract),
		history:   make(map[string][]Event),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Terms holds the optional parts of a new contract.
type Terms struct {
	Text     string
	Deadline *time.Time
}

// Create registers a pending contract. Parties are de-duplicated keeping first
// occurrence; an empty party list or invalid required presence is an error.
func (m *Manager) Create(initiator string, parties []string, required presence.State, terms Terms) (Contract, error) {
	var uniq []string
	for _, p := range parties {
		if p != "" && !slices.Contains(uniq, p) {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) == 0 {
		return Contract{}, fmt.Errorf("create contract: no parties")
	}
	if err := required.Validate(); err != nil {
		return Contract{}, fmt.Errorf("create contract: %w", err)
	}

	now := m.clock.Now()
	c := &Contract{
		ID:         uuid.NewString(),
		Initiator:  initiator,
		Parties:    uniq,
		Required:   required,
		Terms:      terms.Text,
		Signatures: make(map[string]time.Time),
		Status:     StatusPending,
		CreatedAt:  now,
	}
	if terms.Deadline != nil {
		d := *terms.Deadline
		c.Deadline = &d
	}

	m.mu.Lock()
	m.contracts[c.ID] = c
	m.order = append(m.order, c.ID)
	recs := []record{m.appendLocked(c.ID, Event{Type: EventCreated, Party: initiator, Timestamp: now})}
	snap := c.clone()
	m.mu.Unlock()

	m.flush(recs)
	return snap, nil
}

// Get returns a snapshot of the contract.
func (m *Manager) Get(id string) (Contract, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok {
		return Contract{}, false
	}
	return c.clone(), true
}

// List returns snapshots of every contract in creation order.
func (m *Manager) List() []Contract {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Contract, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.contracts[id].clone())
	}
	return out
}

// History returns the contract's events, oldest first.
func (m *Manager) History(id string) ([]Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contracts[id]; !ok {
		return nil, false
	}
	return slices.Clone(m.history[id]), true
}

// Sign records party's signature. It returns false if the contract is
// unknown, closed, or party is not one of its parties. Once every party has
// signed, a pending contract becomes active.
func (m *Manager) Sign(id, party string) bool {
	now := m.clock.Now()

	m.mu.Lock()
	c, ok := m.contracts[id]
	if !ok || c.Status.Terminal() || !c.HasParty(party) {
		m.mu.Unlock()
		return false
	}

	var recs []record
	if _, signed := c.Signatures[party]; !signed {
		c.Signatures[party] = now
		recs = append(recs, m.appendLocked(id, Event{Type: EventSigned, Party: party, Timestamp: now}))
	}
	if c.Status == StatusPending && c.FullySigned() {
		recs = append(recs, m.activateLocked(c, now, "all parties signed"))
	}
	m.mu.Unlock()

	m.flush(recs)
	return true
}

// ActivateOnPresence activates a pending contract when current matches its
// required presence. Signatures are not needed on this path.
func (m *Manager) ActivateOnPresence(id string, current presence.State) bool {
	now := m.clock.Now()

	m.mu.Lock()
	c, ok := m.contracts[id]
	if !ok || c.Status != StatusPending || !current.Matches(c.Required) {
		m.mu.Unlock()
		return false
	}
	rec := m.activateLocked(c, now, "presence matched: "+current.String())
	m.mu.Unlock()

	m.flush([]record{rec})
	return true
}

// SuspendOnMismatch suspends an active contract whose required presence no
// longer matches current. Signatures are kept.
func (m *Manager) SuspendOnMismatch(id string, current presence.State) bool {
	now := m.clock.Now()

	m.mu.Lock()
	c, ok := m.contracts[id]
	if !ok || c.Status != StatusActive || current.Matches(c.Required) {
		m.mu.Unlock()
		return false
	}
	c.Status = StatusSuspended
	rec := m.appendLocked(id, Event{Type: EventSuspended, Timestamp: now, Details: "presence mismatch: " + current.String()})
	m.mu.Unlock()

	m.flush([]record{rec})
	return true
}

// Reactivate returns a suspended contract to active when every party has
// signed or current matches the required presence.
func (m *Manager) Reactivate(id string, current *presence.State) bool {
	now := m.clock.Now()

	m.mu.Lock()
	c, ok := m.contracts[id]
	if !ok || c.Status != StatusSuspended {
		m.mu.Unlock()
		return false
	}
	var reason string
	switch {
	case current != nil && current.Matches(c.Required):
		reason = "presence matched: " + current.String()
	case c.FullySigned():
		reason = "all parties signed"
	default:
		m.mu.Unlock()
		return false
	}
	c.Status = StatusActive
	rec := m.appendLocked(id, Event{Type: EventReactivated, Timestamp: now, Details: reason})
	m.mu.Unlock()

	m.flush([]record{rec})
	return true
}

// Complete closes an open contract as completed.
func (m *Manager) Complete(id string) bool {
	return m.close(id, StatusCompleted, EventCompleted, "")
}

// Cancel closes an open contract as cancelled.
func (m *Manager) Cancel(id string) bool {
	return m.close(id, StatusCancelled, EventCancelled, "")
}

// ExpireOverdue expires every open contract whose deadline has passed and
// returns their ids.
func (m *Manager) ExpireOverdue() []string {
	now := m.clock.Now()

	m.mu.Lock()
	var (
		ids  []string
		recs []record
	)
	for _, id := range m.order {
		c := m.contracts[id]
		if c.Status.Terminal() || c.Deadline == nil || now.Before(*c.Deadline) {
			continue
		}
		recs = append(recs, m.closeLocked(c, now, StatusExpired, EventExpired, "deadline passed"))
		ids = append(ids, id)
	}
	m.mu.Unlock()

	m.flush(recs)
	return ids
}

// EvaluatePresence applies a presence change to every open contract: pending
// contracts that now match are activated, active ones that no longer match
// are suspended.
func (m *Manager) EvaluatePresence(current presence.State) (activated, suspended []string) {
	now := m.clock.Now()

	m.mu.Lock()
	var recs []record
	for _, id := range m.order {
		c := m.contracts[id]
		matches := current.Matches(c.Required)
		switch {
		case c.Status == StatusPending && matches:
			recs = append(recs, m.activateLocked(c, now, "presence matched: "+current.String()))
			activated = append(activated, id)
		case c.Status == StatusActive && !matches:
			c.Status = StatusSuspended
			recs = append(recs, m.appendLocked(id, Event{Type: EventSuspended, Timestamp: now, Details: "presence mismatch: " + current.String()}))
			suspended = append(suspended, id)
		}
	}
	m.mu.Unlock()

	m.flush(recs)
	return activated, suspended
}

func (m *Manager) close(id string, to Status, typ EventType, details string) bool {
	now := m.clock.Now()

	m.mu.Lock()
	c, ok := m.contracts[id]
	if !ok || c.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	rec := m.closeLocked(c, now, to, typ, details)
	m.mu.Unlock()

	m.flush([]record{rec})
	return true
}

func (m *Manager) closeLocked(c *Contract, now time.Time, to Status, typ EventType, details string) record {
	c.Status = to
	c.ExpiredAt = &now
	return m.appendLocked(c.ID, Event{Type: typ, Timestamp: now, Details: details})
}

func (m *Manager) activateLocked(c *Contract, now time.Time, details string) record {
	c.Status = StatusActive
	if c.ActivatedAt == nil {
		c.ActivatedAt = &now
	}
	return m.appendLocked(c.ID, Event{Type: EventActivated, Timestamp: now, Details: details})
}

func (m *Manager) appendLocked(id string, ev Event) record {
	m.history[id] = append(m.history[id], ev)
	return record{contractID: id, ev: ev}
}

func (m *Manager) flush(recs []record) {
	for _, r := range recs {
		m.log.Info("contract event",
			zap.String("contract", r.contractID),
			zap.String("event", string(r.ev.Type)),
			zap.String("party", r.ev.Party))
		if m.sink == nil {
			continue
		}
		if err := m.sink.RecordContractEvent(r.contractID, r.ev); err != nil {
			m.log.Warn("record contract event", zap.String("contract", r.contractID), zap.Error(err))
		}
	}
}
