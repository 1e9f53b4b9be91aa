package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lazypower/resonance/internal/presence"
	"github.com/lazypower/resonance/internal/pulse"
)

func receiver(mode presence.Mode, tone presence.Tone, focus presence.FocusLevel, social presence.SocialContext) presence.State {
	return presence.State{UserID: "ana", Mode: mode, Tone: tone, Focus: focus, Social: social}
}

func TestUrgencyThroughPrivate(t *testing.T) {
	d := Decide(pulse.Urgency, receiver(presence.ModePrivate, presence.ToneNeutral, presence.FocusMedium, presence.SocialAlone))

	assert.True(t, d.Visible)
	assert.Equal(t, NotifySoundAndVibration, d.Notification)
	assert.Equal(t, time.Duration(0), d.RevealDelay)
	assert.Equal(t, GlowFull, d.Glow)
	assert.Equal(t, AnimRapidPulse, d.Animation)
	assert.InDelta(t, 0.8, d.Prominence, 1e-9)
}

func TestCuriosityDuringDeepFocus(t *testing.T) {
	d := Decide(pulse.Curiosity, receiver(presence.ModeDeepFocus, presence.ToneNeutral, presence.FocusDeep, presence.SocialAlone))

	assert.False(t, d.Visible)
	assert.Equal(t, GlowNone, d.Glow)
	assert.Equal(t, NotifySilent, d.Notification)
	assert.Equal(t, 30*time.Second, d.RevealDelay)
	assert.InDelta(t, 0.05, d.Prominence, 1e-9, "fields are computed even when not visible")
}

func TestDeepFocusNeverVisible(t *testing.T) {
	tones := []presence.Tone{presence.ToneNeutral, presence.ToneCalm, presence.ToneRestless}
	socials := []presence.SocialContext{presence.SocialAlone, presence.SocialWithOne, presence.SocialSmallGroup, presence.SocialPublic}
	for _, kind := range pulse.Types() {
		for _, tone := range tones {
			for _, social := range socials {
				for f := presence.FocusLow; f <= presence.FocusDeep; f++ {
					d := Decide(kind, receiver(presence.ModeDeepFocus, tone, f, social))
					assert.False(t, d.Visible, "%s visible in deep focus", kind)
					assert.Equal(t, NotifySilent, d.Notification)
				}
			}
		}
	}
}

func TestPrivateHidesNonUrgent(t *testing.T) {
	p := receiver(presence.ModePrivate, presence.ToneNeutral, presence.FocusLow, presence.SocialAlone)
	for _, kind := range pulse.Types() {
		assert.Equal(t, kind.IsUrgent(), Decide(kind, p).Visible, "%s", kind)
	}
	d := Decide(pulse.Favor, p)
	assert.Equal(t, NotifyVibration, d.Notification)
	assert.Equal(t, GlowDim, d.Glow)
	assert.Equal(t, 5*time.Second, d.RevealDelay)
}

func TestRules(t *testing.T) {
	tests := []struct {
		name   string
		kind   pulse.Type
		p      presence.State
		glow   Glow
		notify Notification
		delay  time.Duration
		prom   float64
		anim   Animation
	}{
		{
			name: "calm favor",
			kind: pulse.Favor,
			p:    receiver(presence.ModeCalm, presence.ToneCalm, presence.FocusLow, presence.SocialAlone),
			glow: GlowSubtle, notify: NotifyVibration, delay: 10 * time.Second, prom: 0.42, anim: AnimGentleFloat,
		},
		{
			name: "alone deep focus level",
			kind: pulse.EmotionalPresence,
			p:    receiver(presence.ModeAlone, presence.ToneReflective, presence.FocusDeep, presence.SocialAlone),
			glow: GlowSubtle, notify: NotifyVibration, delay: 15 * time.Second, prom: 0.2, anim: AnimSteadyGlow,
		},
		{
			name: "social in public",
			kind: pulse.Curiosity,
			p:    receiver(presence.ModeSocial, presence.ToneJoyful, presence.FocusLow, presence.SocialPublic),
			glow: GlowDiscreet, notify: NotifySilent, delay: 3 * time.Second, prom: 0.15, anim: AnimSubtleShimmer,
		},
		{
			name: "social urgency in a group",
			kind: pulse.Urgency,
			p:    receiver(presence.ModeSocial, presence.ToneNeutral, presence.FocusLow, presence.SocialSmallGroup),
			glow: GlowDiscreet, notify: NotifySilent, delay: 0, prom: 0.3, anim: AnimRapidPulse,
		},
		{
			name: "social with one",
			kind: pulse.Heartbeat,
			p:    receiver(presence.ModeSocial, presence.ToneTender, presence.FocusMedium, presence.SocialWithOne),
			glow: GlowDim, notify: NotifyVibration, delay: 3 * time.Second, prom: 0.25, anim: AnimSteadyGlow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.kind, tt.p)
			assert.True(t, d.Visible)
			assert.Equal(t, tt.glow, d.Glow)
			assert.Equal(t, tt.notify, d.Notification)
			assert.Equal(t, tt.delay, d.RevealDelay)
			assert.InDelta(t, tt.prom, d.Prominence, 1e-9)
			assert.Equal(t, tt.anim, d.Animation)
		})
	}
}

func TestProminenceInRange(t *testing.T) {
	for _, kind := range pulse.Types() {
		for m := presence.ModePrivate; m <= presence.ModeDeepFocus; m++ {
			d := Decide(kind, receiver(m, presence.ToneNeutral, presence.FocusMedium, presence.SocialPublic))
			assert.GreaterOrEqual(t, d.Prominence, 0.0)
			assert.LessOrEqual(t, d.Prominence, 1.0)
		}
	}
}
