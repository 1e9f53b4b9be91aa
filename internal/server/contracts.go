package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/resonance/internal/contract"
)

func (s *Server) handleCreateContract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Initiator string       `json:"initiator"`
		Parties   []string     `json:"parties"`
		Required  presenceJSON `json:"required"`
		Terms     string       `json:"terms"`
		Deadline  *time.Time   `json:"deadline"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid contract: "+err.Error())
		return
	}
	if req.Initiator == "" {
		req.Initiator = s.sess.LocalID()
	}
	c, err := s.sess.Contracts().Create(req.Initiator, req.Parties, req.Required.state(),
		contract.Terms{Text: req.Terms, Deadline: req.Deadline})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, contractView(c))
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	all := s.sess.Contracts().List()
	out := make([]contractJSON, 0, len(all))
	for _, c := range all {
		if status != "" && c.Status.String() != status {
			continue
		}
		out = append(out, contractView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.sess.Contracts().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "contract "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, contractView(c))
}

func (s *Server) handleContractHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, ok := s.sess.Contracts().History(id)
	if !ok {
		writeError(w, http.StatusNotFound, "contract "+id+" not found")
		return
	}
	out := make([]eventJSON, 0, len(events))
	for _, ev := range events {
		out = append(out, eventJSON{Type: ev.Type, Party: ev.Party, Timestamp: ev.Timestamp, Details: ev.Details})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSignContract(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Party string `json:"party"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Party == "" {
		req.Party = s.sess.LocalID()
	}
	s.transition(w, id, func(m *contract.Manager) bool { return m.Sign(id, req.Party) })
}

// handleContractAction drives the lifecycle transitions that take no body.
// Presence driven transitions use the local presence.
func (s *Server) handleContractAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cur := s.sess.LocalPresence()
	var fn func(m *contract.Manager) bool
	switch action := chi.URLParam(r, "action"); action {
	case "activate":
		fn = func(m *contract.Manager) bool { return cur != nil && m.ActivateOnPresence(id, *cur) }
	case "suspend":
		fn = func(m *contract.Manager) bool { return cur != nil && m.SuspendOnMismatch(id, *cur) }
	case "reactivate":
		fn = func(m *contract.Manager) bool { return m.Reactivate(id, cur) }
	case "complete":
		fn = func(m *contract.Manager) bool { return m.Complete(id) }
	case "cancel":
		fn = func(m *contract.Manager) bool { return m.Cancel(id) }
	default:
		writeError(w, http.StatusNotFound, "unknown contract action "+action)
		return
	}
	s.transition(w, id, fn)
}

// transition applies fn and answers with the contract. A refused transition
// on a known contract is a 409.
func (s *Server) transition(w http.ResponseWriter, id string, fn func(*contract.Manager) bool) {
	m := s.sess.Contracts()
	if _, ok := m.Get(id); !ok {
		writeError(w, http.StatusNotFound, "contract "+id+" not found")
		return
	}
	if !fn(m) {
		c, _ := m.Get(id)
		writeError(w, http.StatusConflict, "transition refused, contract is "+c.Status.String())
		return
	}
	c, _ := m.Get(id)
	writeJSON(w, http.StatusOK, contractView(c))
}
