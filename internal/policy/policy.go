// Package policy decides how a pulse should surface to a receiver given the
// receiver's presence.
//
// Decide is pure: the same (type, presence) always yields the same Decision.
// Each field is computed by an ordered rule list where the first match wins:
//
//	visible       deep_focus -> no; private -> urgency class only; else yes
//	glow          deep_focus -> none; private+urgent -> full; calm|alone -> subtle;
//	              social > with_one -> discreet; else dim
//	notification  deep_focus -> silent; private+!urgent -> vibration;
//	              social > with_one -> silent; urgent -> sound+vibration; else vibration
//	reveal delay  urgent -> 0; deep_focus -> 30s; private -> 5s; calm -> 10s;
//	              focus > high -> 15s; else 3s
//	prominence    base(type) * factor(presence), clamped to [0,1]
//	animation     urgent -> rapid pulse; tone calm -> gentle float;
//	              social > with_one -> subtle shimmer; else steady glow
//
// Fields are not gated by Visible; renderers must check it first.
package policy

import (
	"time"

	"github.com/lazypower/resonance/internal/presence"
	"github.com/lazypower/resonance/internal/pulse"
)

// Decision is how a pulse should be rendered for one receiver.
type Decision struct {
	Visible      bool
	Glow         Glow
	Notification Notification
	RevealDelay  time.Duration
	Prominence   float64
	Animation    Animation
}

// Decide evaluates the delivery rules for a pulse of kind against the
// receiver's current presence.
func Decide(kind pulse.Type, receiver presence.State) Decision {
	return Decision{
		Visible:      visible(kind, receiver),
		Glow:         glow(kind, receiver),
		Notification: notification(kind, receiver),
		RevealDelay:  revealDelay(kind, receiver),
		Prominence:   prominence(kind, receiver),
		Animation:    animation(kind, receiver),
	}
}

func crowded(p presence.State) bool { return p.Social > presence.SocialWithOne }

func visible(kind pulse.Type, p presence.State) bool {
	switch p.Mode {
	case presence.ModeDeepFocus:
		return false
	case presence.ModePrivate:
		return kind.IsUrgent()
	}
	return true
}

func glow(kind pulse.Type, p presence.State) Glow {
	switch {
	case p.Mode == presence.ModeDeepFocus:
		return GlowNone
	case p.Mode == presence.ModePrivate && kind.IsUrgent():
		return GlowFull
	case p.Mode == presence.ModeCalm || p.Mode == presence.ModeAlone:
		return GlowSubtle
	case crowded(p):
		return GlowDiscreet
	}
	return GlowDim
}

func notification(kind pulse.Type, p presence.State) Notification {
	switch {
	case p.Mode == presence.ModeDeepFocus:
		return NotifySilent
	case p.Mode == presence.ModePrivate && !kind.IsUrgent():
		return NotifyVibration
	case crowded(p):
		return NotifySilent
	case kind.IsUrgent():
		return NotifySoundAndVibration
	}
	return NotifyVibration
}

func revealDelay(kind pulse.Type, p presence.State) time.Duration {
	switch {
	case kind.IsUrgent():
		return 0
	case p.Mode == presence.ModeDeepFocus:
		return 30 * time.Second
	case p.Mode == presence.ModePrivate:
		return 5 * time.Second
	case p.Mode == presence.ModeCalm:
		return 10 * time.Second
	case p.Focus > presence.FocusHigh:
		return 15 * time.Second
	}
	return 3 * time.Second
}

// baseProminence is the type's weight before presence is applied.
func baseProminence(kind pulse.Type) float64 {
	switch kind {
	case pulse.Urgency, pulse.AlarmPulse:
		return 1.0
	case pulse.Favor:
		return 0.7
	case pulse.EmotionalPresence:
		return 0.4
	}
	return 0.5
}

func presenceFactor(p presence.State) float64 {
	switch {
	case p.Mode == presence.ModeDeepFocus:
		return 0.1
	case p.Mode == presence.ModePrivate:
		return 0.8
	case p.Mode == presence.ModeCalm:
		return 0.6
	case crowded(p):
		return 0.3
	}
	return 0.5
}

func prominence(kind pulse.Type, p presence.State) float64 {
	v := baseProminence(kind) * presenceFactor(p)
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func animation(kind pulse.Type, p presence.State) Animation {
	switch {
	case kind.IsUrgent():
		return AnimRapidPulse
	case p.Tone == presence.ToneCalm:
		return AnimGentleFloat
	case crowded(p):
		return AnimSubtleShimmer
	}
	return AnimSteadyGlow
}
