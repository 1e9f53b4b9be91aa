package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/engine"
	"github.com/lazypower/resonance/internal/pulse"
	"github.com/lazypower/resonance/internal/ritual"
)

func (s *Server) handleCurrentRitual(w http.ResponseWriter, r *http.Request) {
	a, ok := s.sess.Rituals().Current()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"mode": ritual.Idle})
		return
	}
	writeJSON(w, http.StatusOK, activeView(a))
}

func (s *Server) handleRitualHistory(w http.ResponseWriter, r *http.Request) {
	hist := s.sess.Rituals().History()
	out := make([]ritualJSON, 0, len(hist))
	for _, ex := range hist {
		out = append(out, executionView(ex))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEndRitual(w http.ResponseWriter, r *http.Request) {
	ex, ok := s.sess.EndCurrentRitual()
	if !ok {
		writeError(w, http.StatusConflict, "no ritual running")
		return
	}
	writeJSON(w, http.StatusOK, executionView(ex))
}

// handleStartRitual starts the ritual named in the path. The body depends on
// the mode.
func (s *Server) handleStartRitual(w http.ResponseWriter, r *http.Request) {
	mode, err := ritual.ParseMode(chi.URLParam(r, "mode"))
	if err != nil || mode == ritual.Idle {
		writeError(w, http.StatusNotFound, "unknown ritual "+chi.URLParam(r, "mode"))
		return
	}

	var (
		a     ritual.ActiveRitual
		extra any
	)
	switch mode {
	case ritual.Breath:
		req, derr := decodePresence(r)
		if derr != nil {
			writeError(w, http.StatusBadRequest, "invalid presence: "+derr.Error())
			return
		}
		a, err = s.sess.StartBreathRitual(req.state())

	case ritual.Whisper:
		var req messageRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid message: "+err.Error())
			return
		}
		msg, cond, perr := req.parse()
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		a, qm, serr := s.sess.StartWhisperRitual(msg, req.Tone, req.Suppress, cond)
		s.respondRitual(w, a, messageView(qm, s.sess.PresenceOf(qm.RecipientID)), serr)
		return

	case ritual.Object:
		var req struct {
			ObjectID string   `json:"object_id"`
			To       []string `json:"to"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		var p pulse.Pulse
		a, p, err = s.sess.StartObjectRitual(req.ObjectID, req.To...)
		extra = pulseView(p, s.sess.Clock().Now())

	case ritual.ContractActivation:
		var req struct {
			ContractID string `json:"contract_id"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		a, err = s.sess.StartContractActivation(req.ContractID)
		if err == nil {
			if c, ok := s.sess.Contracts().Get(req.ContractID); ok {
				extra = contractView(c)
			}
		}

	case ritual.PulseBroadcast:
		var req struct {
			Type   pulse.Type `json:"type"`
			Energy float64    `json:"energy"`
		}
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		var p pulse.Pulse
		a, p, err = s.sess.StartPulseBroadcast(req.Type, req.Energy)
		extra = pulseView(p, s.sess.Clock().Now())
	}
	s.respondRitual(w, a, extra, err)
}

// respondRitual answers a ritual start. A ritual whose step failed still
// reports the failed ritual alongside the error.
func (s *Server) respondRitual(w http.ResponseWriter, a ritual.ActiveRitual, result any, err error) {
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, engine.ErrNoPresence) || errors.Is(err, engine.ErrNotActivated) {
			code = http.StatusConflict
		}
		s.log.Info("ritual failed", zap.Stringer("mode", a.Mode), zap.Error(err))
		writeJSON(w, code, map[string]any{"error": err.Error(), "ritual": activeView(a)})
		return
	}
	resp := map[string]any{"ritual": activeView(a)}
	if result != nil {
		resp["result"] = result
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Sweep())
}

func (s *Server) handleAuditPulses(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	recs, err := s.db.RecentPulses(queryLimit(r))
	s.respondAudit(w, recs, err)
}

func (s *Server) handleAuditDeliveries(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	recs, err := s.db.Deliveries(queryLimit(r))
	s.respondAudit(w, recs, err)
}

func (s *Server) handleAuditContracts(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	recs, err := s.db.ContractEvents(r.URL.Query().Get("contract"))
	s.respondAudit(w, recs, err)
}

func (s *Server) handleAuditRituals(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	recs, err := s.db.RitualExecutions(queryLimit(r))
	s.respondAudit(w, recs, err)
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log disabled")
		return false
	}
	return true
}

func (s *Server) respondAudit(w http.ResponseWriter, recs any, err error) {
	if err != nil {
		s.log.Error("audit query", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
