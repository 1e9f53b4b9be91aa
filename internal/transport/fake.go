package transport

import (
	"sync"

	"github.com/lazypower/resonance/internal/pulse"
)

// FakeBridge records published pulses for test assertions.
type FakeBridge struct {
	mu sync.Mutex

	// Pulses contains every pulse that was published.
	Pulses []pulse.Pulse

	// Payloads maps each topic to the JSON payloads published on it.
	Payloads map[string][][]byte

	// PublishError, if set, will be returned by PublishPulse.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakeBridge creates a FakeBridge for testing.
func NewFakeBridge() *FakeBridge {
	return &FakeBridge{Payloads: make(map[string][][]byte)}
}

// PublishPulse records p.
func (f *FakeBridge) PublishPulse(p pulse.Pulse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(p)
	if err != nil {
		return err
	}
	f.Pulses = append(f.Pulses, p)
	for _, topic := range Topics(p) {
		f.Payloads[topic] = append(f.Payloads[topic], payload)
	}
	return nil
}

// Published returns a copy of the recorded pulses.
func (f *FakeBridge) Published() []pulse.Pulse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pulse.Pulse(nil), f.Pulses...)
}

// Close marks the bridge as closed.
func (f *FakeBridge) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake bridge is "connected".
func (f *FakeBridge) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}
