package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/resonance/internal/clock"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestRegistry(local string) (*Registry, *clock.Manual) {
	clk := clock.NewManual(t0)
	return NewRegistry(local, WithClock(clk), WithDefaultTTL(10*time.Second)), clk
}

func TestEnergyDecay(t *testing.T) {
	p := Pulse{ID: "p1", Type: Heartbeat, Energy: 1.0, Timestamp: t0, TTL: 10 * time.Second}

	assert.Equal(t, 1.0, p.CurrentEnergy(t0))
	assert.Equal(t, 1.0, p.CurrentEnergy(t0.Add(-time.Second)))
	assert.InDelta(t, 0.5, p.CurrentEnergy(t0.Add(5*time.Second)), 1e-9)
	assert.Equal(t, 0.0, p.CurrentEnergy(t0.Add(10*time.Second)))
	assert.Equal(t, 0.0, p.CurrentEnergy(t0.Add(time.Hour)))

	prev := p.CurrentEnergy(t0)
	for ms := 0; ms <= 12000; ms += 250 {
		e := p.CurrentEnergy(t0.Add(time.Duration(ms) * time.Millisecond))
		assert.LessOrEqual(t, e, prev, "energy increased at %dms", ms)
		assert.GreaterOrEqual(t, e, 0.0)
		prev = e
	}
}

func TestNewRejectsInvariantViolations(t *testing.T) {
	p, err := New("ana", Favor, 0.7, time.Minute, t0)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.IsBroadcast())

	tests := []struct {
		name   string
		kind   Type
		energy float64
		ttl    time.Duration
	}{
		{"energy above one", Favor, 1.2, time.Minute},
		{"negative energy", Favor, -0.1, time.Minute},
		{"zero ttl", Favor, 0.5, 0},
		{"unknown type", Type(99), 0.5, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("ana", tt.kind, tt.energy, tt.ttl, t0)
			assert.Error(t, err)
		})
	}
}

func TestExpiry(t *testing.T) {
	r, clk := newTestRegistry("ana")
	p, err := r.Emit("ana", Heartbeat, 1.0)
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	assert.False(t, p.IsExpired(clk.Now()), "expiry is strictly after ttl")
	assert.Equal(t, 0.0, p.CurrentEnergy(clk.Now()))

	clk.Advance(time.Millisecond)
	assert.True(t, p.IsExpired(clk.Now()))
	assert.Equal(t, 0.0, p.CurrentEnergy(clk.Now()))
}

func TestEmitClampsEnergy(t *testing.T) {
	r, _ := newTestRegistry("ana")

	hi, err := r.Emit("ana", EnergySurge, 3.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, hi.Energy)

	lo, err := r.Emit("ana", EnergySurge, -1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, lo.Energy)

	_, err = r.Emit("ana", Type(200), 0.5)
	assert.Error(t, err)
}

func TestReceiveAudience(t *testing.T) {
	r, _ := newTestRegistry("ana")

	tests := []struct {
		name     string
		audience []string
		want     bool
	}{
		{"empty is broadcast", nil, true},
		{"broadcast marker", []string{"ben", Broadcast}, true},
		{"addressed", []string{"ben", "ana"}, true},
		{"someone else", []string{"ben"}, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Pulse{
				ID: "in-" + string(rune('a'+i)), SenderID: "ben", Type: Curiosity,
				Energy: 0.5, Timestamp: t0, TTL: time.Minute, Audience: tt.audience,
			}
			rec, err := r.Receive(p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Accepted)
		})
	}
}

func TestReceiveDropsExpiredAndDuplicates(t *testing.T) {
	r, clk := newTestRegistry("ana")
	old := Pulse{ID: "old", SenderID: "ben", Type: Favor, Energy: 1, Timestamp: t0.Add(-time.Minute), TTL: time.Second}

	rec, err := r.Receive(old)
	require.NoError(t, err)
	assert.False(t, rec.Accepted)
	assert.Equal(t, ReasonExpired, rec.Reason)

	fresh := Pulse{ID: "fresh", SenderID: "ben", Type: Favor, Energy: 1, Timestamp: clk.Now(), TTL: time.Minute}
	rec, err = r.Receive(fresh)
	require.NoError(t, err)
	assert.True(t, rec.Accepted)

	rec, err = r.Receive(fresh)
	require.NoError(t, err)
	assert.Equal(t, ReasonDuplicate, rec.Reason)
	assert.Len(t, r.Received(), 1)
}

func TestReceiveRejectsInvalidPayload(t *testing.T) {
	r, _ := newTestRegistry("ana")
	_, err := r.Receive(Pulse{ID: "bad", Type: Favor, Energy: 1.5, Timestamp: t0, TTL: time.Second})
	assert.Error(t, err)
}

func TestResonanceCallEchoesOnce(t *testing.T) {
	ana, clk := newTestRegistry("ana")
	ben := NewRegistry("ben", WithClock(clk), WithDefaultTTL(10*time.Second))

	call, err := ben.Emit("ben", ResonanceCall, 1.0, To("ana"))
	require.NoError(t, err)

	clk.Advance(5 * time.Second)
	rec, err := ana.Receive(call)
	require.NoError(t, err)
	require.True(t, rec.Accepted)
	require.NotNil(t, rec.Echo)

	echo := *rec.Echo
	assert.Equal(t, PresenceEcho, echo.Type)
	assert.Equal(t, []string{"ben"}, echo.Audience)
	assert.Equal(t, call.ID, echo.EchoOf)
	assert.InDelta(t, 0.4, echo.Energy, 1e-9)

	back, err := ben.Receive(echo)
	require.NoError(t, err)
	assert.True(t, back.Accepted)
	assert.Nil(t, back.Echo, "an echo must not trigger another echo")
}

func TestCleanupExpiredIdempotent(t *testing.T) {
	r, clk := newTestRegistry("ana")
	_, err := r.Emit("ana", Heartbeat, 1, WithTTL(time.Second))
	require.NoError(t, err)
	keep, err := r.Emit("ana", Heartbeat, 1, WithTTL(time.Hour))
	require.NoError(t, err)
	_, err = r.Receive(Pulse{ID: "in", SenderID: "ben", Type: Favor, Energy: 1, Timestamp: t0, TTL: time.Second})
	require.NoError(t, err)

	clk.Advance(2 * time.Second)
	assert.Equal(t, 2, r.CleanupExpired())
	emitted, received := r.Emitted(), r.Received()

	assert.Equal(t, 0, r.CleanupExpired())
	assert.Equal(t, emitted, r.Emitted())
	assert.Equal(t, received, r.Received())
	require.Len(t, emitted, 1)
	assert.Equal(t, keep.ID, emitted[0].ID)
}

func TestCurrentResonance(t *testing.T) {
	r, clk := newTestRegistry("ana")
	assert.Equal(t, 0.0, r.CurrentResonance())

	_, err := r.Emit("ana", Favor, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r.CurrentResonance(), 1e-9)

	clk.Advance(5 * time.Second)
	_, err = r.Emit("ana", Favor, 0.2)
	require.NoError(t, err)
	// (0.5 + 0.2) / 2
	assert.InDelta(t, 0.35, r.CurrentResonance(), 1e-9)
}

func TestCurrentResonanceWindow(t *testing.T) {
	r, clk := newTestRegistry("ana")
	for i := 0; i < 5; i++ {
		_, err := r.Emit("ana", Heartbeat, 0.0, WithTTL(time.Hour))
		require.NoError(t, err)
		clk.Advance(time.Millisecond)
	}
	for i := 0; i < resonanceWindow; i++ {
		_, err := r.Emit("ana", Heartbeat, 1.0, WithTTL(time.Hour))
		require.NoError(t, err)
	}
	assert.InDelta(t, 1.0, r.CurrentResonance(), 1e-6)
	assert.Len(t, r.Active(), 5+resonanceWindow)
}

func TestCurrentResonanceWindowUsesArrivalOrder(t *testing.T) {
	r, clk := newTestRegistry("ana")
	for i := 0; i < resonanceWindow; i++ {
		_, err := r.Emit("ana", Heartbeat, 0.0, WithTTL(time.Hour))
		require.NoError(t, err)
		clk.Advance(time.Millisecond)
	}
	assert.Zero(t, r.CurrentResonance())

	// Sent a minute ago, arriving only now.
	late := Pulse{ID: "late", SenderID: "ben", Type: Favor, Energy: 1.0,
		Timestamp: clk.Now().Add(-time.Minute), TTL: time.Hour}
	rec, err := r.Receive(late)
	require.NoError(t, err)
	require.True(t, rec.Accepted)

	assert.InDelta(t, (1.0-1.0/60)/resonanceWindow, r.CurrentResonance(), 1e-6)
}
