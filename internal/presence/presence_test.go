package presence

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func state(mode Mode, tone Tone, focus FocusLevel, social SocialContext) State {
	return State{UserID: "ana", Mode: mode, Tone: tone, Focus: focus, Social: social, Timestamp: t0}
}

func TestMatches(t *testing.T) {
	required := state(ModeCalm, ToneCalm, FocusMedium, SocialWithOne)

	tests := []struct {
		name    string
		current State
		want    bool
	}{
		{"exact", required, true},
		{"more focused", state(ModeCalm, ToneCalm, FocusDeep, SocialWithOne), true},
		{"less exposed", state(ModeCalm, ToneCalm, FocusMedium, SocialAlone), true},
		{"less focused", state(ModeCalm, ToneCalm, FocusLow, SocialWithOne), false},
		{"more exposed", state(ModeCalm, ToneCalm, FocusMedium, SocialSmallGroup), false},
		{"other mode", state(ModeAlone, ToneCalm, FocusMedium, SocialWithOne), false},
		{"other tone", state(ModeCalm, ToneJoyful, FocusMedium, SocialWithOne), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.current.Matches(required))
		})
	}
}

func TestNewRejectsInvalidEnums(t *testing.T) {
	_, err := New("ana", Mode(42), ToneCalm, FocusLow, SocialAlone, t0)
	assert.Error(t, err)

	_, err = New("ana", ModeCalm, ToneCalm, FocusLevel(9), SocialAlone, t0)
	assert.Error(t, err)

	st, err := New("ana", ModeDeepFocus, ToneReflective, FocusDeep, SocialAlone, t0)
	require.NoError(t, err)
	assert.Equal(t, ModeDeepFocus, st.Mode)
}

func TestEnumText(t *testing.T) {
	b, err := json.Marshal(struct {
		Mode   Mode          `json:"mode"`
		Social SocialContext `json:"social"`
	}{ModeDeepFocus, SocialSmallGroup})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"deep_focus","social":"small_group"}`, string(b))

	var m Mode
	assert.Error(t, m.UnmarshalText([]byte("asleep")))

	f, err := ParseFocusLevel("high")
	require.NoError(t, err)
	assert.True(t, f > FocusMedium)
}

func TestStoreLastWriteWins(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("ana")
	assert.False(t, ok)

	s.Set(state(ModeCalm, ToneCalm, FocusLow, SocialAlone))
	s.Set(state(ModeSocial, ToneJoyful, FocusLow, SocialPublic))

	got, ok := s.Get("ana")
	require.True(t, ok)
	assert.Equal(t, ModeSocial, got.Mode)
	assert.Len(t, s.All(), 1)
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()

	var seen []Mode
	cancel := s.Subscribe(func(st State) { seen = append(seen, st.Mode) })

	s.Set(state(ModeCalm, ToneCalm, FocusLow, SocialAlone))
	s.Set(state(ModeDeepFocus, ToneCalm, FocusDeep, SocialAlone))
	cancel()
	cancel()
	s.Set(state(ModeSocial, ToneCalm, FocusLow, SocialPublic))

	assert.Equal(t, []Mode{ModeCalm, ModeDeepFocus}, seen)
}

func TestSubscriberMayReadStore(t *testing.T) {
	s := NewStore()
	var got State
	s.Subscribe(func(st State) {
		got, _ = s.Get(st.UserID)
	})
	s.Set(state(ModeAlone, ToneTender, FocusHigh, SocialAlone))
	assert.Equal(t, ModeAlone, got.Mode)
}

func TestStoreNotifiesInWriteOrder(t *testing.T) {
	s := NewStore()

	var (
		mu   sync.Mutex
		seen []Mode
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	s.Subscribe(func(st State) {
		if st.Mode == ModeCalm {
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, st.Mode)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Set(state(ModeCalm, ToneCalm, FocusLow, SocialAlone))
	}()
	<-entered
	go func() {
		defer wg.Done()
		s.Set(state(ModeDeepFocus, ToneCalm, FocusDeep, SocialAlone))
	}()

	// The second write waits for the first notification to finish.
	time.Sleep(20 * time.Millisecond)
	got, _ := s.Get("ana")
	assert.Equal(t, ModeCalm, got.Mode)

	close(release)
	wg.Wait()

	got, _ = s.Get("ana")
	assert.Equal(t, ModeDeepFocus, got.Mode)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Mode{ModeCalm, ModeDeepFocus}, seen)
}
