// Package ritual tracks which coordinated ritual is running. At most one
// ritual is active; starting another preempts the running one, which is
// recorded in history with status preempted.
package ritual

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/clock"
)

// ErrIdle is returned when asked to begin the idle mode.
var ErrIdle = errors.New("ritual: idle is not a ritual")

// Mode is the orchestration mode.
type Mode uint8

const (
	Idle Mode = iota
	Breath
	Whisper
	Object
	ContractActivation
	PulseBroadcast
)

var modeNames = []string{"idle", "breath", "whisper", "object", "contract_activation", "pulse_broadcast"}

func (m Mode) String() string {
	if int(m) >= len(modeNames) {
		return fmt.Sprintf("unknown(%d)", m)
	}
	return modeNames[m]
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseMode parses a mode name such as "pulse_broadcast".
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown ritual mode %q", s)
}

// Status of a ritual run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPreempted Status = "preempted"
	StatusFailed    Status = "failed"
)

// ActiveRitual is the ritual currently running.
type ActiveRitual struct {
	ID        string
	Mode      Mode
	StartTime time.Time
	Status    Status
	Details   string
}

// Execution is a finished ritual.
type Execution struct {
	ID        string
	Mode      Mode
	StartTime time.Time
	EndTime   time.Time
	Status    Status
	Details   string
}

// Duration is how long the ritual ran.
func (e Execution) Duration() time.Duration { return e.EndTime.Sub(e.StartTime) }

// Recorder receives finished executions.
type Recorder interface {
	RecordRitual(ex Execution) error
}

// Orchestrator holds the current mode, the active ritual and the history of
// finished ones.
type Orchestrator struct {
	mu      sync.Mutex
	clock   clock.Clock
	log     *zap.Logger
	rec     Recorder
	mode    Mode
	active  *ActiveRitual
	history []Execution
}

// NewOrchestrator returns an idle orchestrator. rec may be nil.
func NewOrchestrator(c clock.Clock, log *zap.Logger, rec Recorder) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{clock: clock.OrReal(c), log: log, rec: rec}
}

// Begin starts a ritual in mode. A running ritual is ended first with status
// preempted and returned.
func (o *Orchestrator) Begin(mode Mode, details string) (ActiveRitual, *Execution, error) {
	if mode == Idle || int(mode) >= len(modeNames) {
		return ActiveRitual{}, nil, fmt.Errorf("begin %s: %w", mode, ErrIdle)
	}
	now := o.clock.Now()

	o.mu.Lock()
	var preempted *Execution
	if o.active != nil {
		ex := o.finishLocked(now, StatusPreempted, "preempted by "+mode.String())
		preempted = &ex
	}
	a := ActiveRitual{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartTime: now,
		Status:    StatusRunning,
		Details:   details,
	}
	o.active = &a
	o.mode = mode
	o.mu.Unlock()

	if preempted != nil {
		o.record(*preempted)
	}
	o.log.Info("ritual started", zap.Stringer("mode", mode), zap.String("id", a.ID))
	return a, preempted, nil
}

// End finishes the active ritual with status and returns the execution.
// details, when non-empty, replaces the ritual's details.
func (o *Orchestrator) End(status Status, details string) (Execution, bool) {
	now := o.clock.Now()

	o.mu.Lock()
	if o.active == nil {
		o.mu.Unlock()
		return Execution{}, false
	}
	ex := o.finishLocked(now, status, details)
	o.mu.Unlock()

	o.record(ex)
	return ex, true
}

// EndCurrent finishes the active ritual as completed.
func (o *Orchestrator) EndCurrent() (Execution, bool) {
	return o.End(StatusCompleted, "")
}

// Annotate replaces the details of the active ritual.
func (o *Orchestrator) Annotate(details string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return false
	}
	o.active.Details = details
	return true
}

// Mode returns the current orchestration mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// Current returns the active ritual.
func (o *Orchestrator) Current() (ActiveRitual, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return ActiveRitual{}, false
	}
	return *o.active, true
}

// History returns finished rituals, oldest first.
func (o *Orchestrator) History() []Execution {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.history)
}

func (o *Orchestrator) finishLocked(now time.Time, status Status, details string) Execution {
	a := o.active
	ex := Execution{
		ID:        a.ID,
		Mode:      a.Mode,
		StartTime: a.StartTime,
		EndTime:   now,
		Status:    status,
		Details:   a.Details,
	}
	if details != "" {
		ex.Details = details
	}
	o.history = append(o.history, ex)
	o.active = nil
	o.mode = Idle
	return ex
}

func (o *Orchestrator) record(ex Execution) {
	o.log.Info("ritual ended",
		zap.Stringer("mode", ex.Mode),
		zap.String("id", ex.ID),
		zap.String("status", string(ex.Status)),
		zap.Duration("duration", ex.Duration()))
	if o.rec == nil {
		return
	}
	if err := o.rec.RecordRitual(ex); err != nil {
		o.log.Warn("record ritual", zap.String("id", ex.ID), zap.Error(err))
	}
}
