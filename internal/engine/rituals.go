package engine

import (
	"errors"
	"fmt"

	"github.com/lazypower/resonance/internal/presence"
	"github.com/lazypower/resonance/internal/pulse"
	"github.com/lazypower/resonance/internal/quiet"
	"github.com/lazypower/resonance/internal/ritual"
)

var (
	// ErrNoPresence is returned when an operation needs the local presence
	// and none has been set.
	ErrNoPresence = errors.New("local presence unknown")
	// ErrNotActivated is returned when a contract activation ritual could not
	// activate its contract.
	ErrNotActivated = errors.New("contract not activated")
)

// objectRitualEnergy is the energy of the pulse an object ritual emits.
const objectRitualEnergy = 0.6

// StartBreathRitual begins a breath ritual that records st as the local
// presence.
func (s *Session) StartBreathRitual(st presence.State) (ritual.ActiveRitual, error) {
	return s.runRitual(ritual.Breath, "", func() (string, error) {
		st.UserID = s.localID
		set, err := s.SetPresence(st)
		if err != nil {
			return "", err
		}
		return "presence " + set.String(), nil
	})
}

// StartWhisperRitual begins a whisper ritual that queues a quiet message.
func (s *Session) StartWhisperRitual(msg quiet.Message, tone quiet.Tone, suppress bool, cond quiet.Condition) (ritual.ActiveRitual, quiet.QuietMessage, error) {
	var qm quiet.QuietMessage
	a, err := s.runRitual(ritual.Whisper, "", func() (string, error) {
		var err error
		qm, err = s.SendQuiet(msg, tone, suppress, cond)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("message %s to %s", qm.ID, qm.RecipientID), nil
	})
	return a, qm, err
}

// StartObjectRitual begins an object ritual: an emotional presence pulse
// tagged with objectID is sent to recipients (everyone when empty).
func (s *Session) StartObjectRitual(objectID string, recipients ...string) (ritual.ActiveRitual, pulse.Pulse, error) {
	var p pulse.Pulse
	a, err := s.runRitual(ritual.Object, "", func() (string, error) {
		if objectID == "" {
			return "", fmt.Errorf("object ritual: empty object id")
		}
		var err error
		p, err = s.Emit(pulse.EmotionalPresence, objectRitualEnergy, pulse.To(recipients...), pulse.WithNote(objectID))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("object %s pulse %s", objectID, p.ID), nil
	})
	return a, p, err
}

// StartContractActivation begins a ritual that activates a pending contract
// against the local presence. The ritual fails when the presence is unknown
// or does not match.
func (s *Session) StartContractActivation(contractID string) (ritual.ActiveRitual, error) {
	return s.runRitual(ritual.ContractActivation, "contract "+contractID, func() (string, error) {
		cur := s.LocalPresence()
		if cur == nil {
			return "", ErrNoPresence
		}
		if !s.contracts.ActivateOnPresence(contractID, *cur) {
			return "", fmt.Errorf("contract %s: %w", contractID, ErrNotActivated)
		}
		return "contract " + contractID + " activated", nil
	})
}

// StartPulseBroadcast begins a ritual that emits a pulse to everyone.
func (s *Session) StartPulseBroadcast(kind pulse.Type, energy float64) (ritual.ActiveRitual, pulse.Pulse, error) {
	var p pulse.Pulse
	a, err := s.runRitual(ritual.PulseBroadcast, "", func() (string, error) {
		var err error
		p, err = s.Emit(kind, energy, pulse.To(pulse.Broadcast))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s pulse %s", kind, p.ID), nil
	})
	return a, p, err
}

// EndCurrentRitual completes the running ritual.
func (s *Session) EndCurrentRitual() (ritual.Execution, bool) {
	s.ritualMu.Lock()
	defer s.ritualMu.Unlock()
	return s.rituals.EndCurrent()
}

// runRitual begins mode, runs fn and either annotates the ritual with fn's
// details or ends it as failed. A running ritual is preempted.
func (s *Session) runRitual(mode ritual.Mode, details string, fn func() (string, error)) (ritual.ActiveRitual, error) {
	s.ritualMu.Lock()
	defer s.ritualMu.Unlock()

	a, _, err := s.rituals.Begin(mode, details)
	if err != nil {
		return ritual.ActiveRitual{}, err
	}
	d, err := fn()
	if err != nil {
		s.rituals.End(ritual.StatusFailed, err.Error())
		a.Status = ritual.StatusFailed
		return a, err
	}
	if d != "" {
		s.rituals.Annotate(d)
		a.Details = d
	}
	return a, nil
}
