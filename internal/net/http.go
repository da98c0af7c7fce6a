// Package net exposes the session manager over HTTP and websocket. Routing
// and encoding live here; all game semantics stay behind the manager.
package net

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
	"github.com/Halldon-Inc/moltblox-sub002/internal/journal"
	"github.com/Halldon-Inc/moltblox-sub002/internal/session"
)

// Server holds the handler dependencies.
type Server struct {
	manager  *session.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
	started  time.Time
}

// NewHandler wires the API routes over the manager.
func NewHandler(manager *session.Manager, log zerolog.Logger) http.Handler {
	s := &Server{
		manager: manager,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /diagnostics", s.diagnostics)
	mux.HandleFunc("GET /api/games", s.listGames)
	mux.HandleFunc("POST /api/sessions", s.createSession)
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.describeSession)
	mux.HandleFunc("GET /api/sessions/{id}/state", s.sessionState)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.sessionEvents)
	mux.HandleFunc("GET /api/leaderboard", s.leaderboard)
	mux.HandleFunc("POST /api/sessions/{id}/actions", s.dispatchAction)
	mux.HandleFunc("GET /ws/{id}", s.watchSession)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, session.ErrUnknownGame), errors.Is(err, engine.ErrUnknownPlayer):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, session.ErrClosed):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (s *Server) diagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"serverTime":    time.Now().UnixMilli(),
		"uptimeSeconds": int64(time.Since(s.started).Seconds()),
		"counters":      s.manager.Metrics().Snapshot(),
	})
}

type gameInfo struct {
	Slug       string `json:"slug"`
	MinPlayers int    `json:"minPlayers"`
	MaxPlayers int    `json:"maxPlayers"`
}

func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	games := make([]gameInfo, 0)
	for _, slug := range engine.Slugs() {
		game, ok := engine.Lookup(slug)
		if !ok {
			continue
		}
		min, max := game.Bounds()
		games = append(games, gameInfo{Slug: slug, MinPlayers: min, MaxPlayers: max})
	}
	writeJSON(w, http.StatusOK, games)
}

type createRequest struct {
	Game    string         `json:"game"`
	Players []string       `json:"players"`
	Seed    string         `json:"seed,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	sess, err := s.manager.Create(req.Game, req.Players, req.Seed, engine.Config(req.Config))
	if err != nil {
		if errors.Is(err, session.ErrUnknownGame) {
			s.fail(w, err)
			return
		}
		// Bounds and participant validation failures are caller mistakes.
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	summary, err := s.manager.Describe(sess.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.manager.List(50)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) describeSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.manager.Describe(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.Snapshot(r.PathValue("id"), r.URL.Query().Get("player"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
	entries, err := s.manager.Events(r.PathValue("id"), after)
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := s.manager.Leaderboard(r.URL.Query().Get("game"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

type actionRequest struct {
	Player  string         `json:"player"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (s *Server) dispatchAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	res, err := s.manager.HandleAction(r.PathValue("id"), req.Player, engine.Action{
		Type:      req.Type,
		Payload:   req.Payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	// Rejections are results, not transport errors.
	writeJSON(w, http.StatusOK, res)
}
