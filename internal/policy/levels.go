package policy

import "fmt"

// Glow is the visual intensity of a rendered pulse.
type Glow uint8

const (
	GlowNone Glow = iota
	GlowDim
	GlowDiscreet
	GlowSubtle
	GlowFull
)

// Notification is how the OS should announce a pulse.
type Notification uint8

const (
	NotifySilent Notification = iota
	NotifyVibration
	NotifySoundAndVibration
)

// Animation is the motion style of a rendered pulse.
type Animation uint8

const (
	AnimSteadyGlow Animation = iota
	AnimRapidPulse
	AnimGentleFloat
	AnimSubtleShimmer
)

var (
	glowNames         = []string{"none", "dim", "discreet", "subtle", "full"}
	notificationNames = []string{"silent", "vibration", "sound_and_vibration"}
	animationNames    = []string{"steady_glow", "rapid_pulse", "gentle_float", "subtle_shimmer"}
)

func name(names []string, i int) string {
	if i >= len(names) {
		return fmt.Sprintf("unknown(%d)", i)
	}
	return names[i]
}

func (g Glow) String() string         { return name(glowNames, int(g)) }
func (n Notification) String() string { return name(notificationNames, int(n)) }
func (a Animation) String() string    { return name(animationNames, int(a)) }

func (g Glow) MarshalText() ([]byte, error)         { return []byte(g.String()), nil }
func (n Notification) MarshalText() ([]byte, error) { return []byte(n.String()), nil }
func (a Animation) MarshalText() ([]byte, error)    { return []byte(a.String()), nil }
