package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/engine"
	"github.com/lazypower/resonance/internal/store"
)

// Server is the resonance HTTP API server.
type Server struct {
	sess    *engine.Session
	db      *store.DB
	log     *zap.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server for sess. db may be nil, in which case the audit
// routes answer 503.
func New(sess *engine.Session, db *store.DB, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		sess:    sess,
		db:      db,
		log:     log,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/presence", s.handleGetPresence)
		r.Put("/presence", s.handleSetPresence)
		r.Get("/presence/{userID}", s.handleGetPresence)
		r.Get("/presences", s.handleListPresence)

		r.Get("/decide", s.handleDecide)

		r.Get("/pulses", s.handleListPulses)
		r.Post("/pulses", s.handleEmit)
		r.Post("/pulses/receive", s.handleReceive)
		r.Post("/pulses/cleanup", s.handleCleanup)
		r.Get("/resonance", s.handleResonance)

		r.Post("/messages", s.handleSendMessage)
		r.Get("/messages/pending", s.handlePendingMessages)
		r.Get("/messages/delivered", s.handleDeliveredMessages)
		r.Post("/messages/deliver", s.handleDeliver)
		r.Post("/messages/{id}/open", s.handleOpenMessage)
		r.Delete("/messages/{id}", s.handleCancelMessage)

		r.Post("/contracts", s.handleCreateContract)
		r.Get("/contracts", s.handleListContracts)
		r.Get("/contracts/{id}", s.handleGetContract)
		r.Get("/contracts/{id}/history", s.handleContractHistory)
		r.Post("/contracts/{id}/sign", s.handleSignContract)
		r.Post("/contracts/{id}/{action}", s.handleContractAction)

		r.Get("/rituals/current", s.handleCurrentRitual)
		r.Get("/rituals/history", s.handleRitualHistory)
		r.Post("/rituals/end", s.handleEndRitual)
		r.Post("/rituals/{mode}", s.handleStartRitual)

		r.Post("/sweep", s.handleSweep)

		r.Route("/audit", func(r chi.Router) {
			r.Get("/pulses", s.handleAuditPulses)
			r.Get("/deliveries", s.handleAuditDeliveries)
			r.Get("/contracts", s.handleAuditContracts)
			r.Get("/rituals", s.handleAuditRituals)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db != nil && s.db.Ping() == nil

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"uptime":    time.Since(s.started).Seconds(),
		"user":      s.sess.LocalID(),
		"ritual":    s.sess.Rituals().Mode(),
		"resonance": s.sess.Pulses().CurrentResonance(),
		"db":        dbOK,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodePresence reads a presence body. The zero enums are valid values, so
// every enum field must be given explicitly.
func decodePresence(r *http.Request) (presenceJSON, error) {
	var p presenceJSON
	if r.Body == nil {
		return p, errors.New("empty body")
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return p, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return p, errors.New("empty body")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return p, err
	}
	for _, k := range []string{"mode", "tone", "focus", "social"} {
		if _, ok := fields[k]; !ok {
			return p, fmt.Errorf("%s required", k)
		}
	}
	err = json.Unmarshal(b, &p)
	return p, err
}

func queryLimit(r *http.Request) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return 50
}
