package presence

import "fmt"

// Mode is the user's declared availability.
type Mode uint8

const (
	ModePrivate Mode = iota
	ModeCalm
	ModeAlone
	ModeSocial
	ModeDeepFocus
)

var modeNames = []string{"private", "calm", "alone", "social", "deep_focus"}

func (m Mode) String() string { return enumName(modeNames, int(m)) }

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return int(m) < len(modeNames) }

func (m Mode) MarshalText() ([]byte, error) { return marshalEnum("mode", modeNames, int(m)) }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMode parses a mode name such as "deep_focus".
func ParseMode(s string) (Mode, error) {
	i, err := parseEnum("mode", modeNames, s)
	return Mode(i), err
}

// Tone is the user's self-reported emotional tone.
type Tone uint8

const (
	ToneNeutral Tone = iota
	ToneCalm
	ToneJoyful
	ToneTender
	ToneRestless
	ToneReflective
)

var toneNames = []string{"neutral", "calm", "joyful", "tender", "restless", "reflective"}

func (t Tone) String() string { return enumName(toneNames, int(t)) }

// Valid reports whether t is a known tone.
func (t Tone) Valid() bool { return int(t) < len(toneNames) }

func (t Tone) MarshalText() ([]byte, error) { return marshalEnum("tone", toneNames, int(t)) }

func (t *Tone) UnmarshalText(b []byte) error {
	v, err := ParseTone(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTone parses a tone name.
func ParseTone(s string) (Tone, error) {
	i, err := parseEnum("tone", toneNames, s)
	return Tone(i), err
}

// FocusLevel is ordered: Low < Medium < High < Deep.
type FocusLevel uint8

const (
	FocusLow FocusLevel = iota
	FocusMedium
	FocusHigh
	FocusDeep
)

var focusNames = []string{"low", "medium", "high", "deep"}

func (f FocusLevel) String() string { return enumName(focusNames, int(f)) }

// Valid reports whether f is a known focus level.
func (f FocusLevel) Valid() bool { return int(f) < len(focusNames) }

func (f FocusLevel) MarshalText() ([]byte, error) { return marshalEnum("focus level", focusNames, int(f)) }

func (f *FocusLevel) UnmarshalText(b []byte) error {
	v, err := ParseFocusLevel(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ParseFocusLevel parses a focus level name.
func ParseFocusLevel(s string) (FocusLevel, error) {
	i, err := parseEnum("focus level", focusNames, s)
	return FocusLevel(i), err
}

// SocialContext is ordered by exposure: Alone < WithOne < SmallGroup < Public.
type SocialContext uint8

const (
	SocialAlone SocialContext = iota
	SocialWithOne
	SocialSmallGroup
	SocialPublic
)

var socialNames = []string{"alone", "with_one", "small_group", "public"}

func (s SocialContext) String() string { return enumName(socialNames, int(s)) }

// Valid reports whether s is a known social context.
func (s SocialContext) Valid() bool { return int(s) < len(socialNames) }

func (s SocialContext) MarshalText() ([]byte, error) {
	return marshalEnum("social context", socialNames, int(s))
}

func (s *SocialContext) UnmarshalText(b []byte) error {
	v, err := ParseSocialContext(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSocialContext parses a social context name.
func ParseSocialContext(s string) (SocialContext, error) {
	i, err := parseEnum("social context", socialNames, s)
	return SocialContext(i), err
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("unknown(%d)", i)
	}
	return names[i]
}

func marshalEnum(kind string, names []string, i int) ([]byte, error) {
	if i < 0 || i >= len(names) {
		return nil, fmt.Errorf("invalid %s %d", kind, i)
	}
	return []byte(names[i]), nil
}

func parseEnum(kind string, names []string, s string) (int, error) {
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}
