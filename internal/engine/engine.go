package engine

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/clock"
	"github.com/lazypower/resonance/internal/contract"
	"github.com/lazypower/resonance/internal/policy"
	"github.com/lazypower/resonance/internal/presence"
	"github.com/lazypower/resonance/internal/pulse"
	"github.com/lazypower/resonance/internal/quiet"
	"github.com/lazypower/resonance/internal/ritual"
)

// Pulse log directions passed to Recorder.RecordPulse.
const (
	directionOut = "out"
	directionIn  = "in"
)

// Recorder persists the audit trail. *store.DB implements it.
type Recorder interface {
	RecordPulse(direction string, p pulse.Pulse) error
	RecordDelivery(m quiet.QuietMessage) error
	RecordContractEvent(contractID string, ev contract.Event) error
	RecordRitual(ex ritual.Execution) error
}

// Publisher carries outbound pulses to other users.
type Publisher interface {
	PublishPulse(p pulse.Pulse) error
}

// Session coordinates the subsystems of one local user. Each subsystem guards
// its own state; mu serializes the composite reactions that touch several.
type Session struct {
	localID string
	clock   clock.Clock
	log     *zap.Logger
	rec     Recorder
	pub     Publisher

	presence  *presence.Store
	pulses    *pulse.Registry
	quiet     *quiet.Queue
	contracts *contract.Manager
	rituals   *ritual.Orchestrator

	mu          sync.Mutex
	ritualMu    sync.Mutex
	unsubscribe func()
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

type options struct {
	clock clock.Clock
	log   *zap.Logger
	rec   Recorder
	pub   Publisher
	ttl   time.Duration
}

// Option configures a Session.
type Option func(*options)

// WithClock sets the time source shared by every subsystem.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithRecorder enables the audit trail.
func WithRecorder(r Recorder) Option { return func(o *options) { o.rec = r } }

// WithPublisher forwards emitted pulses and echoes to p.
func WithPublisher(p Publisher) Option { return func(o *options) { o.pub = p } }

// WithDefaultTTL sets the TTL of pulses emitted without one.
func WithDefaultTTL(d time.Duration) Option { return func(o *options) { o.ttl = d } }

// New creates a Session for localID.
func New(localID string, opts ...Option) *Session {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	clk := clock.OrReal(o.clock)
	log := o.log.With(zap.String("user", localID))

	regOpts := []pulse.Option{pulse.WithClock(clk), pulse.WithLogger(log.Named("pulse"))}
	if o.ttl > 0 {
		regOpts = append(regOpts, pulse.WithDefaultTTL(o.ttl))
	}
	mgrOpts := []contract.Option{contract.WithClock(clk), contract.WithLogger(log.Named("contract"))}
	var ritualRec ritual.Recorder
	if o.rec != nil {
		mgrOpts = append(mgrOpts, contract.WithSink(o.rec))
		ritualRec = o.rec
	}

	s := &Session{
		localID:   localID,
		clock:     clk,
		log:       log,
		rec:       o.rec,
		pub:       o.pub,
		presence:  presence.NewStore(),
		pulses:    pulse.NewRegistry(localID, regOpts...),
		quiet:     quiet.NewQueue(clk, log.Named("quiet")),
		contracts: contract.NewManager(mgrOpts...),
		rituals:   ritual.NewOrchestrator(clk, log.Named("ritual"), ritualRec),
		stopCh:    make(chan struct{}),
	}
	s.unsubscribe = s.presence.Subscribe(s.onPresence)
	return s
}

// LocalID returns the session's user.
func (s *Session) LocalID() string { return s.localID }

// Clock returns the session's time source.
func (s *Session) Clock() clock.Clock { return s.clock }

// Presence returns the presence store.
func (s *Session) Presence() *presence.Store { return s.presence }

// Pulses returns the pulse registry.
func (s *Session) Pulses() *pulse.Registry { return s.pulses }

// Quiet returns the quiet message queue.
func (s *Session) Quiet() *quiet.Queue { return s.quiet }

// Contracts returns the contract manager.
func (s *Session) Contracts() *contract.Manager { return s.contracts }

// Rituals returns the ritual orchestrator.
func (s *Session) Rituals() *ritual.Orchestrator { return s.rituals }

// SetPresence validates st and records it. A zero timestamp is stamped with
// the session clock; an empty user id means the local user.
func (s *Session) SetPresence(st presence.State) (presence.State, error) {
	if st.UserID == "" {
		st.UserID = s.localID
	}
	if st.Timestamp.IsZero() {
		st.Timestamp = s.clock.Now()
	}
	if err := st.Validate(); err != nil {
		return presence.State{}, fmt.Errorf("set presence: %w", err)
	}
	s.presence.Set(st)
	return st, nil
}

// LocalPresence returns the local user's presence, or nil when unknown.
func (s *Session) LocalPresence() *presence.State {
	return s.PresenceOf(s.localID)
}

// PresenceOf returns userID's presence, or nil when unknown.
func (s *Session) PresenceOf(userID string) *presence.State {
	st, ok := s.presence.Get(userID)
	if !ok {
		return nil
	}
	return &st
}

// Silent reports whether revealing m must not make a sound for its recipient.
func (s *Session) Silent(m quiet.QuietMessage) bool {
	return quiet.ShouldBeSilent(m, s.PresenceOf(m.RecipientID))
}

// onPresence reacts to presence changes. Open contracts are re-evaluated
// against the local presence; any change runs a delivery pass, since pending
// messages are gated on their recipient's presence.
func (s *Session) onPresence(st presence.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var activated, suspended []string
	if st.UserID == s.localID {
		activated, suspended = s.contracts.EvaluatePresence(st)
	}
	delivered := s.deliverLocked()
	if len(activated)+len(suspended)+len(delivered) > 0 {
		s.log.Info("presence changed",
			zap.Stringer("presence", st),
			zap.Strings("activated", activated),
			zap.Strings("suspended", suspended),
			zap.Int("delivered", len(delivered)))
	}
}

// Emit sends a pulse from the local user.
func (s *Session) Emit(kind pulse.Type, energy float64, opts ...pulse.EmitOption) (pulse.Pulse, error) {
	if cur := s.LocalPresence(); cur != nil {
		opts = append([]pulse.EmitOption{pulse.WithPresence(*cur)}, opts...)
	}
	p, err := s.pulses.Emit(s.localID, kind, energy, opts...)
	if err != nil {
		return pulse.Pulse{}, err
	}
	s.outbound(p)
	return p, nil
}

// Receive hands an inbound pulse to the registry. An echo produced in reply
// is published like any emitted pulse.
func (s *Session) Receive(p pulse.Pulse) (pulse.Receipt, error) {
	rec, err := s.pulses.Receive(p)
	if err != nil {
		return rec, err
	}
	if rec.Accepted {
		s.record(func(r Recorder) error { return r.RecordPulse(directionIn, p) })
		if p.Presence != nil && p.Presence.UserID == p.SenderID && p.SenderID != s.localID {
			s.presence.Set(*p.Presence)
		}
	}
	if rec.Echo != nil {
		s.outbound(*rec.Echo)
	}
	return rec, nil
}

// Decide runs the delivery policy for a pulse of kind against receiverID's
// current presence. It returns false when the receiver's presence is unknown.
func (s *Session) Decide(kind pulse.Type, receiverID string) (policy.Decision, bool) {
	st, ok := s.presence.Get(receiverID)
	if !ok {
		return policy.Decision{}, false
	}
	return policy.Decide(kind, st), true
}

// SendQuiet queues a message and runs a delivery pass, so a message without a
// condition is revealed at once.
func (s *Session) SendQuiet(msg quiet.Message, tone quiet.Tone, suppress bool, cond quiet.Condition) (quiet.QuietMessage, error) {
	if msg.SenderID == "" {
		msg.SenderID = s.localID
	}
	qm, err := s.quiet.Send(msg, tone, suppress, cond)
	if err != nil {
		return quiet.QuietMessage{}, err
	}
	s.Deliver()
	if got, ok := s.quiet.Get(qm.ID); ok {
		qm = got
	}
	return qm, nil
}

// Deliver runs one delivery pass. Each message is checked against its
// recipient's presence.
func (s *Session) Deliver() []quiet.QuietMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliverLocked()
}

// OpenMessage reveals a pending message because the recipient opened it.
func (s *Session) OpenMessage(id string) (quiet.QuietMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.quiet.Get(id)
	if !ok {
		return quiet.QuietMessage{}, false
	}
	m, ok = s.quiet.Open(id, s.PresenceOf(m.RecipientID))
	if ok {
		s.recordDelivery(m)
	}
	return m, ok
}

func (s *Session) deliverLocked() []quiet.QuietMessage {
	ready := s.quiet.DeliverEach(s.PresenceOf)
	for _, m := range ready {
		s.recordDelivery(m)
	}
	return ready
}

func (s *Session) recordDelivery(m quiet.QuietMessage) {
	s.log.Debug("quiet message revealed",
		zap.String("id", m.ID),
		zap.String("recipient", m.RecipientID),
		zap.Bool("silent", s.Silent(m)))
	s.record(func(r Recorder) error { return r.RecordDelivery(m) })
}

func (s *Session) outbound(p pulse.Pulse) {
	s.record(func(r Recorder) error { return r.RecordPulse(directionOut, p) })
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishPulse(p); err != nil {
		s.log.Warn("publish pulse", zap.String("id", p.ID), zap.Error(err))
	}
}

// record runs fn against the recorder; failures are logged and never fail
// the domain operation.
func (s *Session) record(fn func(Recorder) error) {
	if s.rec == nil {
		return
	}
	if err := fn(s.rec); err != nil {
		s.log.Warn("audit", zap.Error(err))
	}
}
