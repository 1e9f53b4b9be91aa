package server

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/pulse"
	"github.com/lazypower/resonance/internal/quiet"
	"github.com/lazypower/resonance/internal/transport"
)

func (s *Server) handleGetPresence(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		userID = s.sess.LocalID()
	}
	st, ok := s.sess.Presence().Get(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "presence unknown for "+userID)
		return
	}
	writeJSON(w, http.StatusOK, presenceView(st))
}

func (s *Server) handleListPresence(w http.ResponseWriter, r *http.Request) {
	all := s.sess.Presence().All()
	out := make([]presenceJSON, 0, len(all))
	for _, st := range all {
		out = append(out, presenceView(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetPresence(w http.ResponseWriter, r *http.Request) {
	req, err := decodePresence(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid presence: "+err.Error())
		return
	}
	st, err := s.sess.SetPresence(req.state())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, presenceView(st))
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := pulse.ParseType(q.Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receiver := q.Get("receiver")
	if receiver == "" {
		receiver = s.sess.LocalID()
	}
	d, ok := s.sess.Decide(kind, receiver)
	if !ok {
		writeError(w, http.StatusNotFound, "presence unknown for "+receiver)
		return
	}
	writeJSON(w, http.StatusOK, decisionView(d))
}

func (s *Server) handleListPulses(w http.ResponseWriter, r *http.Request) {
	reg := s.sess.Pulses()
	var ps []pulse.Pulse
	switch view := r.URL.Query().Get("view"); view {
	case "", "active":
		ps = reg.Active()
	case "emitted":
		ps = reg.Emitted()
	case "received":
		ps = reg.Received()
	default:
		writeError(w, http.StatusBadRequest, "unknown view "+view)
		return
	}
	writeJSON(w, http.StatusOK, pulseViews(ps, s.sess.Clock().Now()))
}

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type   pulse.Type `json:"type"`
		Energy float64    `json:"energy"`
		To     []string   `json:"to"`
		TTLMS  int64      `json:"ttl_ms"`
		Note   string     `json:"note"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pulse: "+err.Error())
		return
	}
	if req.TTLMS > transport.MaxTTLMillis {
		writeError(w, http.StatusBadRequest, "ttl_ms out of range")
		return
	}
	opts := []pulse.EmitOption{pulse.To(req.To...)}
	if req.TTLMS > 0 {
		opts = append(opts, pulse.WithTTL(time.Duration(req.TTLMS)*time.Millisecond))
	}
	if req.Note != "" {
		opts = append(opts, pulse.WithNote(req.Note))
	}
	p, err := s.sess.Emit(req.Type, req.Energy, opts...)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, pulseView(p, s.sess.Clock().Now()))
}

// handleReceive accepts a pulse in its wire form, as a bridge would.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	p, err := transport.ParsePayload(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.sess.Receive(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := map[string]any{
		"accepted": rec.Accepted,
		"reason":   rec.Reason,
	}
	if rec.Echo != nil {
		resp["echo"] = pulseView(*rec.Echo, s.sess.Clock().Now())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	n := s.sess.Pulses().CleanupExpired()
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleResonance(w http.ResponseWriter, r *http.Request) {
	reg := s.sess.Pulses()
	writeJSON(w, http.StatusOK, map[string]any{
		"resonance": reg.CurrentResonance(),
		"active":    len(reg.Active()),
	})
}

type messageRequest struct {
	ID        string         `json:"id"`
	Recipient string         `json:"recipient"`
	Body      string         `json:"body"`
	Tone      quiet.Tone     `json:"tone"`
	Suppress  bool           `json:"suppress_notification"`
	Condition *conditionJSON `json:"condition"`
}

func (m messageRequest) parse() (quiet.Message, quiet.Condition, error) {
	cond, err := m.Condition.condition()
	if err != nil {
		return quiet.Message{}, nil, err
	}
	return quiet.Message{ID: m.ID, RecipientID: m.Recipient, Body: m.Body}, cond, nil
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message: "+err.Error())
		return
	}
	if req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient required")
		return
	}
	msg, cond, err := req.parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	qm, err := s.sess.SendQuiet(msg, req.Tone, req.Suppress, cond)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, messageView(qm, s.sess.PresenceOf(qm.RecipientID)))
}

func (s *Server) handlePendingMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageViews(s.sess.Quiet().Pending(), s.sess.PresenceOf))
}

func (s *Server) handleDeliveredMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageViews(s.sess.Quiet().Delivered(), s.sess.PresenceOf))
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageViews(s.sess.Deliver(), s.sess.PresenceOf))
}

func (s *Server) handleOpenMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := s.sess.OpenMessage(id)
	if !ok {
		s.messageMiss(w, id)
		return
	}
	writeJSON(w, http.StatusOK, messageView(m, s.sess.PresenceOf(m.RecipientID)))
}

func (s *Server) handleCancelMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sess.Quiet().CancelPending(id) {
		s.messageMiss(w, id)
		return
	}
	s.log.Debug("quiet message cancelled", zap.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// messageMiss answers 409 for a known message that could not be revealed or
// cancelled and 404 otherwise.
func (s *Server) messageMiss(w http.ResponseWriter, id string) {
	m, ok := s.sess.Quiet().Get(id)
	switch {
	case !ok:
		writeError(w, http.StatusNotFound, "message "+id+" not found")
	case m.DeliveredAt != nil:
		writeError(w, http.StatusConflict, "message "+id+" already delivered")
	default:
		writeError(w, http.StatusConflict, "message "+id+" reveal condition not met")
	}
}
