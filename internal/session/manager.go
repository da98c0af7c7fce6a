// Package session hosts live engines behind stable ids: creation, lookup
// with lazy rehydration from the store, serialized action dispatch, and
// snapshot fan-out to watchers.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
	"github.com/Halldon-Inc/moltblox-sub002/internal/journal"
	"github.com/Halldon-Inc/moltblox-sub002/internal/telemetry"
)

// Journal retention per session. Reconnecting clients replay from here;
// anything older requires a fresh snapshot anyway.
const (
	journalCapacity = 256
	journalMaxAge   = time.Hour
)

// counterTelemetry adapts the shared counters to the journal's reporter.
type counterTelemetry struct {
	counters *telemetry.Counters
}

func (c counterTelemetry) RecordJournalDrop(metric string) {
	c.counters.Add(metric, 1)
}

// ErrUnknownGame reports a slug with no registered module.
var ErrUnknownGame = errors.New("unknown game")

// ErrClosed rejects actions against finished or abandoned sessions.
var ErrClosed = errors.New("session is closed")

// Session binds one live engine to its persisted row. All access goes
// through its mutex; the engine itself owns no locks.
type Session struct {
	ID      string
	Game    string
	Seed    string
	Players []string

	mu        sync.Mutex
	eng       *engine.Engine
	status    string
	watchers  map[int]chan engine.Snapshot
	nextWatch int
	journal   *journal.Journal
}

// Status reports the session's lifecycle state.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Watch registers a snapshot channel that receives the host view after
// every accepted action. The returned cancel func must be called when the
// watcher goes away.
func (s *Session) Watch() (<-chan engine.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatch
	s.nextWatch++
	ch := make(chan engine.Snapshot, 8)
	s.watchers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(existing)
		}
	}
}

// broadcast pushes a snapshot to every watcher, dropping for slow ones
// rather than blocking the action path. Callers hold s.mu.
func (s *Session) broadcast(snap engine.Snapshot) {
	for _, ch := range s.watchers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Manager owns the session table: in-memory live engines plus the sqlite
// rows behind them.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	store    *Store
	log      zerolog.Logger
	metrics  *telemetry.Counters
	defaults map[string]map[string]any
}

// NewManager builds a manager over the given store.
func NewManager(store *Store, log zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		log:      log,
		metrics:  telemetry.NewCounters(),
	}
}

// Metrics exposes the manager's counters for the diagnostics endpoint.
func (m *Manager) Metrics() *telemetry.Counters { return m.metrics }

// SetGameDefaults installs per-module tuning tables. Each table merges
// under the create request's config; request keys win.
func (m *Manager) SetGameDefaults(defaults map[string]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = defaults
}

func (m *Manager) mergedConfig(slug string, cfg engine.Config) engine.Config {
	m.mu.Lock()
	base := m.defaults[slug]
	m.mu.Unlock()
	if len(base) == 0 {
		return cfg
	}
	merged := make(engine.Config, len(base)+len(cfg))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range cfg {
		merged[k] = v
	}
	return merged
}

// Create initializes a new session for the given module and players and
// persists its first snapshot.
func (m *Manager) Create(slug string, players []string, seed string, cfg engine.Config) (*Session, error) {
	game, ok := engine.Lookup(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, slug)
	}
	if seed == "" {
		seed = engine.DefaultSeed
	}
	eng, err := engine.New(game, players, engine.Options{
		Seed:   seed,
		Config: m.mergedConfig(slug, cfg),
		Logger: telemetry.WrapZerolog(m.log),
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(eng.Participants()))
	for _, p := range eng.Participants() {
		ids = append(ids, p.ID)
	}
	s := &Session{
		ID:       uuid.NewString(),
		Game:     slug,
		Seed:     seed,
		Players:  ids,
		eng:      eng,
		status:   StatusActive,
		watchers: make(map[int]chan engine.Snapshot),
		journal:  m.newJournal(),
	}

	if err := m.persist(s); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.Add("sessions_created", 1)
	m.log.Info().Str("session", s.ID).Str("game", slug).Strs("players", ids).Msg("session created")
	return s, nil
}

// Get resolves a session, rehydrating it from the store when the live
// engine is not in memory.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	row, err := m.store.Load(id)
	if err != nil {
		return nil, err
	}
	game, ok := engine.Lookup(row.Game)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, row.Game)
	}
	eng, err := engine.Resume(game, row.State, engine.Options{
		Seed:   row.Seed,
		Logger: telemetry.WrapZerolog(m.log),
	})
	if err != nil {
		return nil, err
	}
	var players []string
	if err := json.Unmarshal([]byte(row.Players), &players); err != nil {
		return nil, fmt.Errorf("session: decode players for %s: %w", id, err)
	}
	s := &Session{
		ID:       row.ID,
		Game:     row.Game,
		Seed:     row.Seed,
		Players:  players,
		eng:      eng,
		status:   row.Status,
		watchers: make(map[int]chan engine.Snapshot),
		journal:  m.newJournal(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		// Lost the rehydration race; the first one in wins.
		return existing, nil
	}
	m.sessions[id] = s
	m.metrics.Add("sessions_resumed", 1)
	return s, nil
}

// HandleAction dispatches one action into the session's engine, persists
// the accepted result, and fans the new snapshot out to watchers.
func (m *Manager) HandleAction(id, playerID string, action engine.Action) (engine.Result, error) {
	s, err := m.Get(id)
	if err != nil {
		return engine.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusAbandoned {
		return engine.Result{}, ErrClosed
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}

	res := s.eng.HandleAction(playerID, action)
	if !res.Success {
		m.metrics.Add("actions_rejected", 1)
		return res, nil
	}
	m.metrics.Add("actions_accepted", 1)
	if res.State != nil {
		s.journal.Append(res.State.Turn, playerID, action.Type, res.Events)
	}

	if s.eng.Over() {
		s.status = StatusFinished
	}
	if err := m.persist(s); err != nil {
		// The in-memory state advanced; log and keep serving it.
		m.log.Error().Err(err).Str("session", s.ID).Msg("persist after action failed")
	}
	if res.State != nil {
		s.broadcast(*res.State)
	}
	return res, nil
}

func (m *Manager) newJournal() *journal.Journal {
	j := journal.New(journalCapacity, journalMaxAge)
	j.AttachTelemetry(counterTelemetry{counters: m.metrics})
	return j
}

// Events returns the journal entries newer than the given sequence. The
// journal is per-process; a rehydrated session starts with an empty one.
func (m *Manager) Events(id string, after uint64) ([]journal.Entry, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.journal.Since(after), nil
}

// Snapshot returns the projection for one player, or the host view for an
// empty player id.
func (m *Manager) Snapshot(id, playerID string) (engine.Snapshot, error) {
	s, err := m.Get(id)
	if err != nil {
		return engine.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if playerID == "" {
		return s.eng.State()
	}
	return s.eng.StateFor(playerID)
}

// Describe summarizes a session for listings.
type Summary struct {
	ID      string         `json:"id"`
	Game    string         `json:"game"`
	Players []string       `json:"players"`
	Status  string         `json:"status"`
	Turn    int            `json:"turn"`
	Phase   string         `json:"phase"`
	Winner  string         `json:"winner,omitempty"`
	Scores  map[string]int `json:"scores"`
}

// Describe builds a summary of one session.
func (m *Manager) Describe(id string) (Summary, error) {
	s, err := m.Get(id)
	if err != nil {
		return Summary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.eng.State()
	if err != nil {
		return Summary{}, err
	}
	winner, _ := s.eng.Winner()
	return Summary{
		ID:      s.ID,
		Game:    s.Game,
		Players: s.Players,
		Status:  s.status,
		Turn:    snap.Turn,
		Phase:   snap.Phase,
		Winner:  winner,
		Scores:  s.eng.Scores(),
	}, nil
}

// List summarizes recent sessions from the store.
func (m *Manager) List(limit int) ([]Summary, error) {
	rows, err := m.store.List(limit)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(rows))
	for _, row := range rows {
		var players []string
		_ = json.Unmarshal([]byte(row.Players), &players)
		summaries = append(summaries, Summary{
			ID:      row.ID,
			Game:    row.Game,
			Players: players,
			Status:  row.Status,
			Turn:    row.Turn,
			Winner:  row.Winner,
		})
	}
	return summaries, nil
}

// Standing aggregates one participant's record across finished sessions.
type Standing struct {
	PlayerID string `json:"playerId"`
	Wins     int    `json:"wins"`
	Played   int    `json:"played"`
}

// Leaderboard tallies wins and appearances per participant over finished
// sessions, most wins first. Synthetic participants count like humans; a
// drawn session has no winner row.
func (m *Manager) Leaderboard(game string) ([]Standing, error) {
	rows, err := m.store.Finished(game)
	if err != nil {
		return nil, err
	}
	tally := make(map[string]*Standing)
	for _, row := range rows {
		var players []string
		if err := json.Unmarshal([]byte(row.Players), &players); err != nil {
			continue
		}
		for _, id := range players {
			st, ok := tally[id]
			if !ok {
				st = &Standing{PlayerID: id}
				tally[id] = st
			}
			st.Played++
			if id == row.Winner {
				st.Wins++
			}
		}
	}
	standings := make([]Standing, 0, len(tally))
	for _, st := range tally {
		standings = append(standings, *st)
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Wins != standings[j].Wins {
			return standings[i].Wins > standings[j].Wins
		}
		return standings[i].PlayerID < standings[j].PlayerID
	})
	return standings, nil
}

// persist writes the session's current host snapshot through to the store.
// Callers hold s.mu (or the session is not yet shared).
func (m *Manager) persist(s *Session) error {
	snap, err := s.eng.State()
	if err != nil {
		return err
	}
	players, err := json.Marshal(s.Players)
	if err != nil {
		return err
	}
	winner, _ := s.eng.Winner()
	return m.store.Save(&Row{
		ID:      s.ID,
		Game:    s.Game,
		Players: string(players),
		Seed:    s.Seed,
		Status:  s.status,
		Winner:  winner,
		Turn:    snap.Turn,
		State:   []byte(snap.Data),
	})
}
