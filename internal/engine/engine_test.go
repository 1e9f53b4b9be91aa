package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lazypower/resonance/internal/clock"
	"github.com/lazypower/resonance/internal/contract"
	"github.com/lazypower/resonance/internal/policy"
	"github.com/lazypower/resonance/internal/presence"
	"github.com/lazypower/resonance/internal/pulse"
	"github.com/lazypower/resonance/internal/quiet"
	"github.com/lazypower/resonance/internal/ritual"
	"github.com/lazypower/resonance/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type capturePublisher struct {
	mu  sync.Mutex
	got []pulse.Pulse
	err error
}

func (c *capturePublisher) PublishPulse(p pulse.Pulse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, p)
	return c.err
}

func (c *capturePublisher) published() []pulse.Pulse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pulse.Pulse(nil), c.got...)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	s   *Session
	clk *clock.Manual
	db  *store.DB
	pub *capturePublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{clk: clock.NewManual(t0), db: testDB(t), pub: &capturePublisher{}}
	f.s = New("ana", WithClock(f.clk), WithRecorder(f.db), WithPublisher(f.pub))
	t.Cleanup(f.s.Stop)
	return f
}

func calm() presence.State {
	return presence.State{Mode: presence.ModeCalm, Tone: presence.ToneCalm, Focus: presence.FocusMedium, Social: presence.SocialWithOne}
}

func social() presence.State {
	return presence.State{Mode: presence.ModeSocial, Tone: presence.ToneJoyful, Focus: presence.FocusLow, Social: presence.SocialSmallGroup}
}

func TestSetPresenceValidates(t *testing.T) {
	f := newFixture(t)
	bad := calm()
	bad.Tone = presence.Tone(42)
	_, err := f.s.SetPresence(bad)
	assert.Error(t, err)
	assert.Nil(t, f.s.LocalPresence())

	st, err := f.s.SetPresence(calm())
	require.NoError(t, err)
	assert.Equal(t, "ana", st.UserID)
	assert.Equal(t, t0, st.Timestamp)
	require.NotNil(t, f.s.LocalPresence())
}

func TestPresenceChangeDrivesContractsAndDelivery(t *testing.T) {
	f := newFixture(t)
	c, err := f.s.Contracts().Create("ana", []string{"ana", "ben"}, calm(), contract.Terms{})
	require.NoError(t, err)

	qm, err := f.s.SendQuiet(quiet.Message{RecipientID: "ana", Body: "when you are calm"},
		quiet.ToneSubtleChime, false, quiet.PresenceMatch{Required: calm()})
	require.NoError(t, err)
	assert.Nil(t, qm.DeliveredAt, "no presence yet")

	_, err = f.s.SetPresence(calm())
	require.NoError(t, err)

	got, _ := f.s.Contracts().Get(c.ID)
	assert.Equal(t, contract.StatusActive, got.Status)
	require.Len(t, f.s.Quiet().Delivered(), 1)

	_, err = f.s.SetPresence(social())
	require.NoError(t, err)
	got, _ = f.s.Contracts().Get(c.ID)
	assert.Equal(t, contract.StatusSuspended, got.Status)

	events, err := f.db.ContractEvents(c.ID)
	require.NoError(t, err)
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"created", "activated", "suspended"}, types)

	deliveries, err := f.db.Deliveries(0)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, qm.ID, deliveries[0].MessageID)
}

func TestPeerPresenceIgnoredByReaction(t *testing.T) {
	f := newFixture(t)
	c, err := f.s.Contracts().Create("ana", []string{"ana"}, calm(), contract.Terms{})
	require.NoError(t, err)

	peer := calm()
	peer.UserID = "ben"
	_, err = f.s.SetPresence(peer)
	require.NoError(t, err)

	got, _ := f.s.Contracts().Get(c.ID)
	assert.Equal(t, contract.StatusPending, got.Status)
}

func TestQuietMessageGatedOnRecipientPresence(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.SetPresence(calm())
	require.NoError(t, err)
	focused := presence.State{UserID: "bob", Mode: presence.ModeDeepFocus, Tone: presence.ToneCalm, Focus: presence.FocusDeep, Social: presence.SocialAlone}
	_, err = f.s.SetPresence(focused)
	require.NoError(t, err)

	qm, err := f.s.SendQuiet(quiet.Message{RecipientID: "bob", Body: "when you are calm"},
		quiet.ToneAlert, false, quiet.PresenceMatch{Required: calm()})
	require.NoError(t, err)
	assert.Equal(t, "ana", qm.SenderID)
	assert.Nil(t, qm.DeliveredAt, "sender presence must not reveal")
	assert.True(t, f.s.Silent(qm), "recipient is in deep focus")

	_, ok := f.s.OpenMessage(qm.ID)
	assert.False(t, ok)
	assert.Empty(t, f.s.Deliver())

	bob := calm()
	bob.UserID = "bob"
	_, err = f.s.SetPresence(bob)
	require.NoError(t, err)

	delivered := f.s.Quiet().Delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, qm.ID, delivered[0].ID)
	assert.False(t, f.s.Silent(delivered[0]))
}

func TestSendQuietWithoutConditionRevealsAtOnce(t *testing.T) {
	f := newFixture(t)
	qm, err := f.s.SendQuiet(quiet.Message{RecipientID: "ana", Body: "hi"}, quiet.ToneSilent, false, nil)
	require.NoError(t, err)
	require.NotNil(t, qm.DeliveredAt)
	assert.Equal(t, "ana", qm.SenderID)
	assert.Empty(t, f.s.Quiet().Pending())
}

func TestOpenMessage(t *testing.T) {
	f := newFixture(t)
	qm, err := f.s.Quiet().Send(quiet.Message{RecipientID: "ana", Body: "open me"}, quiet.ToneAlert, false, quiet.OnOpen{})
	require.NoError(t, err)

	m, ok := f.s.OpenMessage(qm.ID)
	require.True(t, ok)
	require.NotNil(t, m.DeliveredAt)

	_, ok = f.s.OpenMessage(qm.ID)
	assert.False(t, ok, "already delivered")
}

func TestEmitPublishesAndRecords(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.SetPresence(calm())
	require.NoError(t, err)

	p, err := f.s.Emit(pulse.Heartbeat, 0.4, pulse.To("ben"))
	require.NoError(t, err)
	assert.Equal(t, "ana", p.SenderID)
	require.NotNil(t, p.Presence, "local presence is attached")
	assert.Equal(t, presence.ModeCalm, p.Presence.Mode)

	pub := f.pub.published()
	require.Len(t, pub, 1)
	assert.Equal(t, p.ID, pub[0].ID)

	recs, err := f.db.RecentPulses(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, store.DirectionOut, recs[0].Direction)
}

func TestPublishFailureDoesNotFailEmit(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	_, err := f.s.Emit(pulse.Curiosity, 0.5)
	assert.NoError(t, err)
}

func TestReceiveResonanceCallPublishesEcho(t *testing.T) {
	f := newFixture(t)
	benPresence := social()
	benPresence.UserID = "ben"
	call := pulse.Pulse{
		ID: "call-1", SenderID: "ben", Type: pulse.ResonanceCall, Energy: 1,
		Timestamp: t0, TTL: 30 * time.Second, Audience: []string{"ana"}, Presence: &benPresence,
	}

	rec, err := f.s.Receive(call)
	require.NoError(t, err)
	require.True(t, rec.Accepted)
	require.NotNil(t, rec.Echo)
	assert.InDelta(t, 0.8, rec.Echo.Energy, 1e-9)

	pub := f.pub.published()
	require.Len(t, pub, 1)
	assert.Equal(t, "call-1", pub[0].EchoOf)
	assert.Equal(t, []string{"ben"}, pub[0].Audience)

	rec, err = f.s.Receive(call)
	require.NoError(t, err)
	assert.False(t, rec.Accepted)
	assert.Equal(t, pulse.ReasonDuplicate, rec.Reason)
	assert.Len(t, f.pub.published(), 1)

	d, ok := f.s.Decide(pulse.Urgency, "ben")
	require.True(t, ok, "sender presence learned from the pulse")
	assert.Equal(t, policy.Decide(pulse.Urgency, benPresence), d)

	recs, err := f.db.RecentPulses(10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestDecideUnknownReceiver(t *testing.T) {
	f := newFixture(t)
	_, ok := f.s.Decide(pulse.Favor, "nobody")
	assert.False(t, ok)
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Emit(pulse.Heartbeat, 0.5, pulse.WithTTL(time.Second))
	require.NoError(t, err)
	_, err = f.s.SendQuiet(quiet.Message{RecipientID: "ana"}, quiet.ToneSilent, false, quiet.TimedDelay{Delay: 5 * time.Second})
	require.NoError(t, err)
	deadline := t0.Add(3 * time.Second)
	c, err := f.s.Contracts().Create("ana", []string{"ana", "ben"}, calm(), contract.Terms{Deadline: &deadline})
	require.NoError(t, err)

	f.clk.Advance(10 * time.Second)
	res := f.s.Sweep()
	assert.Equal(t, 1, res.ExpiredPulses)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, []string{c.ID}, res.ExpiredContracts)

	res = f.s.Sweep()
	assert.Zero(t, res.ExpiredPulses)
	assert.Zero(t, res.Delivered)
	assert.Empty(t, res.ExpiredContracts)
}

func TestSweepTimerStops(t *testing.T) {
	s := New("ana")
	_, err := s.Emit(pulse.Heartbeat, 0.5, pulse.WithTTL(time.Millisecond))
	require.NoError(t, err)

	s.StartSweepTimer(time.Millisecond)
	require.Eventually(t, func() bool { return len(s.Pulses().Emitted()) == 0 }, time.Second, time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestBreathRitual(t *testing.T) {
	f := newFixture(t)
	a, err := f.s.StartBreathRitual(calm())
	require.NoError(t, err)
	assert.Equal(t, ritual.Breath, a.Mode)
	assert.Equal(t, ritual.Breath, f.s.Rituals().Mode())
	require.NotNil(t, f.s.LocalPresence())

	f.clk.Advance(time.Minute)
	ex, ok := f.s.EndCurrentRitual()
	require.True(t, ok)
	assert.Equal(t, ritual.StatusCompleted, ex.Status)
	assert.Equal(t, ritual.Idle, f.s.Rituals().Mode())

	recs, err := f.db.RitualExecutions(0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "breath", recs[0].Mode)
}

func TestRitualPreemption(t *testing.T) {
	f := newFixture(t)
	first, _, err := f.s.StartWhisperRitual(quiet.Message{RecipientID: "ana", Body: "psst"}, quiet.ToneSilent, true, quiet.OnOpen{})
	require.NoError(t, err)

	_, p, err := f.s.StartPulseBroadcast(pulse.HarmonicTone, 0.3)
	require.NoError(t, err)
	assert.True(t, p.IsBroadcast())

	hist := f.s.Rituals().History()
	require.Len(t, hist, 1)
	assert.Equal(t, first.ID, hist[0].ID)
	assert.Equal(t, ritual.StatusPreempted, hist[0].Status)
	assert.Equal(t, ritual.PulseBroadcast, f.s.Rituals().Mode())
}

func TestObjectRitualTagsPulse(t *testing.T) {
	f := newFixture(t)
	_, p, err := f.s.StartObjectRitual("stone-7", "ben")
	require.NoError(t, err)
	assert.Equal(t, pulse.EmotionalPresence, p.Type)
	assert.Equal(t, "stone-7", p.Note)
	assert.Equal(t, []string{"ben"}, p.Audience)

	_, _, err = f.s.StartObjectRitual("")
	assert.Error(t, err)
	hist := f.s.Rituals().History()
	assert.Equal(t, ritual.StatusFailed, hist[len(hist)-1].Status)
}

func TestContractActivationRitual(t *testing.T) {
	f := newFixture(t)
	c, err := f.s.Contracts().Create("ana", []string{"ana", "ben"}, calm(), contract.Terms{})
	require.NoError(t, err)

	_, err = f.s.StartContractActivation(c.ID)
	assert.True(t, errors.Is(err, ErrNoPresence))
	assert.Equal(t, ritual.Idle, f.s.Rituals().Mode())

	f.s.Presence().Set(presence.State{UserID: "ana", Mode: presence.ModeSocial, Tone: presence.ToneJoyful})
	_, err = f.s.StartContractActivation(c.ID)
	assert.True(t, errors.Is(err, ErrNotActivated))

	c2, err := f.s.Contracts().Create("ana", []string{"ana", "ben"}, social(), contract.Terms{})
	require.NoError(t, err)
	a, err := f.s.StartContractActivation(c2.ID)
	require.NoError(t, err)
	assert.Equal(t, "contract "+c2.ID+" activated", a.Details)
	got, _ := f.s.Contracts().Get(c2.ID)
	assert.Equal(t, contract.StatusActive, got.Status)
	_, ok := f.s.EndCurrentRitual()
	require.True(t, ok)

	recs, err := f.db.RitualExecutions(0)
	require.NoError(t, err)
	statuses := map[string]int{}
	for _, r := range recs {
		statuses[r.Status]++
	}
	assert.Equal(t, map[string]int{"failed": 2, "completed": 1}, statuses)
}
