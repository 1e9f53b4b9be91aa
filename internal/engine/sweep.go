package engine

import (
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often StartSweepTimer sweeps when given zero.
const DefaultSweepInterval = 5 * time.Second

// SweepResult counts what one sweep did.
type SweepResult struct {
	ExpiredPulses    int      `json:"expired_pulses"`
	Delivered        int      `json:"delivered"`
	ExpiredContracts []string `json:"expired_contracts"`
}

// Sweep removes expired pulses, runs a delivery pass and expires overdue
// contracts. Sweeping twice in a row changes nothing the second time.
func (s *Session) Sweep() SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := SweepResult{
		ExpiredPulses: s.pulses.CleanupExpired(),
		Delivered:     len(s.deliverLocked()),
	}
	res.ExpiredContracts = s.contracts.ExpireOverdue()
	return res
}

// StartSweepTimer sweeps once now and then every interval until Stop.
func (s *Session) StartSweepTimer(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s.logSweep(s.Sweep())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.logSweep(s.Sweep())
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the sweep goroutine and detaches from the presence store.
// It is safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.unsubscribe()
	})
	s.wg.Wait()
}

func (s *Session) logSweep(r SweepResult) {
	if r.ExpiredPulses == 0 && r.Delivered == 0 && len(r.ExpiredContracts) == 0 {
		return
	}
	s.log.Info("sweep",
		zap.Int("expired_pulses", r.ExpiredPulses),
		zap.Int("delivered", r.Delivered),
		zap.Strings("expired_contracts", r.ExpiredContracts))
}
