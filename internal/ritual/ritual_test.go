package ritual

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/resonance/internal/clock"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type memRecorder struct{ got []Execution }

func (m *memRecorder) RecordRitual(ex Execution) error {
	m.got = append(m.got, ex)
	return nil
}

func TestBeginAndEnd(t *testing.T) {
	clk := clock.NewManual(t0)
	rec := &memRecorder{}
	o := NewOrchestrator(clk, nil, rec)
	assert.Equal(t, Idle, o.Mode())

	a, pre, err := o.Begin(Breath, "four counts")
	require.NoError(t, err)
	assert.Nil(t, pre)
	assert.Equal(t, Breath, o.Mode())
	assert.Equal(t, StatusRunning, a.Status)

	cur, ok := o.Current()
	require.True(t, ok)
	assert.Equal(t, a.ID, cur.ID)

	clk.Advance(90 * time.Second)
	ex, ok := o.EndCurrent()
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, ex.Status)
	assert.Equal(t, 90*time.Second, ex.Duration())
	assert.Equal(t, "four counts", ex.Details)

	assert.Equal(t, Idle, o.Mode())
	_, ok = o.Current()
	assert.False(t, ok)
	assert.Equal(t, []Execution{ex}, o.History())
	assert.Equal(t, []Execution{ex}, rec.got)
}

func TestBeginPreemptsRunningRitual(t *testing.T) {
	clk := clock.NewManual(t0)
	o := NewOrchestrator(clk, nil, nil)

	first, _, err := o.Begin(Whisper, "")
	require.NoError(t, err)
	clk.Advance(time.Second)

	second, pre, err := o.Begin(PulseBroadcast, "")
	require.NoError(t, err)
	require.NotNil(t, pre)
	assert.Equal(t, first.ID, pre.ID)
	assert.Equal(t, StatusPreempted, pre.Status)
	assert.Equal(t, PulseBroadcast, o.Mode())

	cur, _ := o.Current()
	assert.Equal(t, second.ID, cur.ID)
	require.Len(t, o.History(), 1)
}

func TestEndWithoutRitual(t *testing.T) {
	o := NewOrchestrator(clock.NewManual(t0), nil, nil)
	_, ok := o.EndCurrent()
	assert.False(t, ok)
	assert.Empty(t, o.History())
}

func TestBeginIdleRejected(t *testing.T) {
	o := NewOrchestrator(clock.NewManual(t0), nil, nil)
	_, _, err := o.Begin(Idle, "")
	assert.True(t, errors.Is(err, ErrIdle))
}

func TestFailedRitual(t *testing.T) {
	o := NewOrchestrator(clock.NewManual(t0), nil, nil)
	_, _, err := o.Begin(ContractActivation, "contract c1")
	require.NoError(t, err)
	require.True(t, o.Annotate("contract c1: presence mismatch"))

	ex, ok := o.End(StatusFailed, "")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, ex.Status)
	assert.Equal(t, "contract c1: presence mismatch", ex.Details)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("contract_activation")
	require.NoError(t, err)
	assert.Equal(t, ContractActivation, m)
	_, err = ParseMode("dance")
	assert.Error(t, err)
}
