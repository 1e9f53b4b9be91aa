// Package presence holds per-user presence snapshots and notifies subscribers
// when they change.
package presence

import (
	"fmt"
	"time"
)

// State is an immutable snapshot of a user's presence. A newer State supersedes
// an older one; nothing is ever updated in place.
type State struct {
	UserID    string
	Mode      Mode
	Tone      Tone
	Focus     FocusLevel
	Social    SocialContext
	Timestamp time.Time
}

// New builds a validated State.
func New(userID string, mode Mode, tone Tone, focus FocusLevel, social SocialContext, ts time.Time) (State, error) {
	s := State{
		UserID:    userID,
		Mode:      mode,
		Tone:      tone,
		Focus:     focus,
		Social:    social,
		Timestamp: ts,
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

// Validate rejects states carrying values outside the enum ranges.
func (s State) Validate() error {
	switch {
	case !s.Mode.Valid():
		return fmt.Errorf("presence: invalid mode %d", s.Mode)
	case !s.Tone.Valid():
		return fmt.Errorf("presence: invalid tone %d", s.Tone)
	case !s.Focus.Valid():
		return fmt.Errorf("presence: invalid focus level %d", s.Focus)
	case !s.Social.Valid():
		return fmt.Errorf("presence: invalid social context %d", s.Social)
	}
	return nil
}

// Matches reports whether s satisfies required: same mode and tone, at least as
// focused, and at most as socially exposed.
func (s State) Matches(required State) bool {
	return s.Mode == required.Mode &&
		s.Tone == required.Tone &&
		s.Focus >= required.Focus &&
		s.Social <= required.Social
}

func (s State) String() string {
	return fmt.Sprintf("%s/%s focus=%s social=%s", s.Mode, s.Tone, s.Focus, s.Social)
}
