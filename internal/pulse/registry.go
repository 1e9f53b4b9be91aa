package pulse

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/clock"
	"github.com/lazypower/resonance/internal/presence"
)

// echoFactor scales the energy of an automatic presence echo.
const echoFactor = 0.8

// resonanceWindow is how many recent pulses feed CurrentResonance.
const resonanceWindow = 10

// Drop reasons reported on a Receipt.
const (
	ReasonAccepted     = "accepted"
	ReasonExpired      = "expired"
	ReasonNotAddressed = "not_addressed"
	ReasonDuplicate    = "duplicate"
)

// Receipt describes what Receive did with a pulse.
type Receipt struct {
	Accepted bool
	Reason   string
	// Echo is the presence echo emitted in reply to an accepted resonance call.
	Echo *Pulse
}

// Registry stores the pulses emitted and received by one local user. Expired
// pulses stay until CleanupExpired is called.
type Registry struct {
	mu        sync.Mutex
	localID   string
	clock     clock.Clock
	ttl       time.Duration
	log       *zap.Logger
	emitted   []Pulse
	received  []Pulse
	seen      map[string]struct{}
	arrival   map[string]uint64
	nextSeq   uint64
	resonance float64
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the registry's time source.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = clock.OrReal(c) }
}

// WithDefaultTTL sets the TTL used by Emit when none is given.
func WithDefaultTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry creates a registry for localID.
func NewRegistry(localID string, opts ...Option) *Registry {
	r := &Registry{
		localID: localID,
		clock:   clock.Real{},
		ttl:     DefaultTTL,
		log:     zap.NewNop(),
		seen:    make(map[string]struct{}),
		arrival: make(map[string]uint64),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// LocalID returns the user the registry receives for.
func (r *Registry) LocalID() string { return r.localID }

// EmitOption customizes a single emission.
type EmitOption func(*Pulse)

// To restricts the audience. No recipients means broadcast.
func To(recipients ...string) EmitOption {
	return func(p *Pulse) { p.Audience = append([]string(nil), recipients...) }
}

// WithPresence attaches the sender's presence snapshot.
func WithPresence(st presence.State) EmitOption {
	return func(p *Pulse) { p.Presence = &st }
}

// WithTTL overrides the registry's default TTL.
func WithTTL(d time.Duration) EmitOption {
	return func(p *Pulse) { p.TTL = d }
}

// WithNote attaches free-form context.
func WithNote(note string) EmitOption {
	return func(p *Pulse) { p.Note = note }
}

// Emit creates a pulse from sender, clamping energy into [0,1], and stores it.
func (r *Registry) Emit(sender string, kind Type, energy float64, opts ...EmitOption) (Pulse, error) {
	p := Pulse{
		ID:        uuid.NewString(),
		SenderID:  sender,
		Type:      kind,
		Energy:    clampEnergy(energy),
		Timestamp: r.clock.Now(),
		TTL:       r.ttl,
	}
	for _, o := range opts {
		o(&p)
	}
	if err := p.Validate(); err != nil {
		return Pulse{}, err
	}

	r.mu.Lock()
	r.emitted = append(r.emitted, p)
	r.stampLocked(p.ID)
	r.recompute(p.Timestamp)
	r.mu.Unlock()

	r.log.Debug("pulse emitted",
		zap.String("id", p.ID),
		zap.Stringer("type", p.Type),
		zap.Float64("energy", p.Energy),
		zap.Strings("audience", p.Audience))
	return p, nil
}

// Receive accepts an inbound pulse when it is unexpired and addressed to the
// local user. An accepted resonance call is answered with one presence echo to
// its sender; echoes themselves are never answered.
func (r *Registry) Receive(p Pulse) (Receipt, error) {
	if err := p.Validate(); err != nil {
		return Receipt{}, fmt.Errorf("receive: %w", err)
	}

	now := r.clock.Now()

	r.mu.Lock()
	switch {
	case p.IsExpired(now):
		r.mu.Unlock()
		return Receipt{Reason: ReasonExpired}, nil
	case !p.AddressedTo(r.localID):
		r.mu.Unlock()
		return Receipt{Reason: ReasonNotAddressed}, nil
	}
	if _, dup := r.seen[p.ID]; dup {
		r.mu.Unlock()
		return Receipt{Reason: ReasonDuplicate}, nil
	}

	r.seen[p.ID] = struct{}{}
	p.Audience = slices.Clone(p.Audience)
	r.received = append(r.received, p)
	r.stampLocked(p.ID)

	rec := Receipt{Accepted: true, Reason: ReasonAccepted}
	if p.Type == ResonanceCall {
		echo := Pulse{
			ID:        uuid.NewString(),
			SenderID:  r.localID,
			Type:      PresenceEcho,
			Energy:    clampEnergy(p.CurrentEnergy(now) * echoFactor),
			Timestamp: now,
			TTL:       r.ttl,
			Audience:  []string{p.SenderID},
			EchoOf:    p.ID,
		}
		r.emitted = append(r.emitted, echo)
		r.stampLocked(echo.ID)
		rec.Echo = &echo
	}
	r.recompute(now)
	r.mu.Unlock()

	r.log.Debug("pulse received",
		zap.String("id", p.ID),
		zap.String("sender", p.SenderID),
		zap.Stringer("type", p.Type),
		zap.Bool("echoed", rec.Echo != nil))
	return rec, nil
}

// CleanupExpired drops expired pulses from both collections and returns how
// many were removed. Calling it again without new pulses removes nothing.
func (r *Registry) CleanupExpired() int {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.emitted) + len(r.received)
	r.emitted = slices.DeleteFunc(r.emitted, func(p Pulse) bool {
		if p.IsExpired(now) {
			delete(r.arrival, p.ID)
			return true
		}
		return false
	})
	r.received = slices.DeleteFunc(r.received, func(p Pulse) bool {
		if p.IsExpired(now) {
			delete(r.seen, p.ID)
			delete(r.arrival, p.ID)
			return true
		}
		return false
	})
	removed := before - len(r.emitted) - len(r.received)
	if removed > 0 {
		r.log.Debug("expired pulses removed", zap.Int("count", removed))
	}
	return removed
}

// CurrentResonance is the average current energy of the non-expired pulses
// most recently emitted or received, as of the last emit or receive. Recency
// is arrival order, not the sender's timestamp.
func (r *Registry) CurrentResonance() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resonance
}

// Active returns the non-expired pulses, newest first.
func (r *Registry) Active() []Pulse {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(now)
}

// Emitted returns a copy of the emitted pulses in emission order.
func (r *Registry) Emitted() []Pulse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.emitted)
}

// Received returns a copy of the received pulses in arrival order.
func (r *Registry) Received() []Pulse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.received)
}

// Get looks a pulse up by id in either collection.
func (r *Registry) Get(id string) (Pulse, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.emitted {
		if p.ID == id {
			return p, true
		}
	}
	for _, p := range r.received {
		if p.ID == id {
			return p, true
		}
	}
	return Pulse{}, false
}

func (r *Registry) activeLocked(now time.Time) []Pulse {
	out := make([]Pulse, 0, len(r.emitted)+len(r.received))
	for _, p := range r.emitted {
		if !p.IsExpired(now) {
			out = append(out, p)
		}
	}
	for _, p := range r.received {
		if !p.IsExpired(now) {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b Pulse) int { return b.Timestamp.Compare(a.Timestamp) })
	return out
}

func (r *Registry) stampLocked(id string) {
	r.nextSeq++
	r.arrival[id] = r.nextSeq
}

func (r *Registry) recompute(now time.Time) {
	active := r.activeLocked(now)
	slices.SortFunc(active, func(a, b Pulse) int {
		return cmp.Compare(r.arrival[b.ID], r.arrival[a.ID])
	})
	if len(active) > resonanceWindow {
		active = active[:resonanceWindow]
	}
	if len(active) == 0 {
		r.resonance = 0
		return
	}
	var sum float64
	for _, p := range active {
		sum += p.CurrentEnergy(now)
	}
	r.resonance = sum / float64(len(active))
}
