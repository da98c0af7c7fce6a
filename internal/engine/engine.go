// Package engine implements the unified lifecycle contract shared by every
// game module: a fixed participant registry, a single validated mutation
// entrypoint, and immutable snapshots the host can persist verbatim.
package engine

import (
	"encoding/json"
	"fmt"

	"github.com/Halldon-Inc/moltblox-sub002/internal/telemetry"
)

// DefaultSeed seeds sessions whose host supplied no seed of its own.
const DefaultSeed = "moltblox-default"

// Options tunes a single engine instance.
type Options struct {
	// Seed is the root seed for every stochastic decision in the match.
	Seed string
	// Config carries module tuning tables, read-only.
	Config Config
	// Logger receives kernel-level diagnostics. Nil disables logging.
	Logger telemetry.Logger
}

// Engine binds one game module to one session's match state. It owns no
// locks: the host serializes access per session.
type Engine struct {
	game    Game
	match   Match
	players map[string]Participant
	logger  telemetry.Logger
}

// New initializes a match for the given human participant ids. When fewer
// humans than the module minimum join, synthetic participants are injected
// to fill the remaining slots. Counts above the module maximum are
// rejected.
func New(game Game, playerIDs []string, opts Options) (*Engine, error) {
	if game == nil {
		return nil, fmt.Errorf("engine: game module is nil")
	}
	min, max := game.Bounds()
	if len(playerIDs) == 0 {
		return nil, fmt.Errorf("engine: %s requires at least one player", game.Slug())
	}
	if len(playerIDs) > max {
		return nil, fmt.Errorf("engine: %s accepts at most %d players, got %d", game.Slug(), max, len(playerIDs))
	}
	seen := make(map[string]struct{}, len(playerIDs))
	participants := make([]Participant, 0, min)
	for _, id := range playerIDs {
		if id == "" {
			return nil, fmt.Errorf("engine: empty player id")
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("engine: duplicate player id %q", id)
		}
		seen[id] = struct{}{}
		participants = append(participants, Participant{ID: id})
	}
	for i := len(participants); i < min; i++ {
		participants = append(participants, Participant{
			ID:        fmt.Sprintf("npc-%d", i-len(playerIDs)+1),
			Synthetic: true,
		})
	}

	seed := opts.Seed
	if seed == "" {
		seed = DefaultSeed
	}
	rng := NewRand(seed, game.Slug())

	match, err := game.NewMatch(participants, opts.Config, rng)
	if err != nil {
		return nil, fmt.Errorf("engine: initialize %s: %w", game.Slug(), err)
	}
	return wrap(game, match, opts.Logger), nil
}

// Resume rehydrates an engine from a persisted state blob.
func Resume(game Game, data json.RawMessage, opts Options) (*Engine, error) {
	if game == nil {
		return nil, fmt.Errorf("engine: game module is nil")
	}
	match, err := game.DecodeMatch(data)
	if err != nil {
		return nil, fmt.Errorf("engine: decode %s state: %w", game.Slug(), err)
	}
	return wrap(game, match, opts.Logger), nil
}

func wrap(game Game, match Match, logger telemetry.Logger) *Engine {
	players := make(map[string]Participant)
	for _, p := range match.Participants() {
		players[p.ID] = p
	}
	return &Engine{game: game, match: match, players: players, logger: logger}
}

// Game returns the module backing this engine.
func (e *Engine) Game() Game {
	return e.game
}

// State returns the full host-view snapshot.
func (e *Engine) State() (Snapshot, error) {
	return e.snapshot("")
}

// StateFor returns the projection visible to one participant.
func (e *Engine) StateFor(playerID string) (Snapshot, error) {
	if _, ok := e.players[playerID]; !ok {
		return Snapshot{}, ErrUnknownPlayer
	}
	return e.snapshot(playerID)
}

func (e *Engine) snapshot(playerID string) (Snapshot, error) {
	var data json.RawMessage
	var err error
	if playerID == "" {
		data, err = e.match.Encode()
	} else {
		data, err = e.match.View(playerID)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("engine: snapshot %s: %w", e.game.Slug(), err)
	}
	return Snapshot{Turn: e.match.Turn(), Phase: e.match.Phase(), Data: data}, nil
}

// HandleAction is the sole mutation entrypoint. Every structural rejection
// fires before the module sees the action; module failures leave the state
// untouched and surface as typed results. No error crosses this boundary as
// a panic.
func (e *Engine) HandleAction(playerID string, action Action) Result {
	if e.match.Over() {
		return e.failure(playerID, action, ErrGameOver)
	}
	if _, ok := e.players[playerID]; !ok {
		return e.failure(playerID, action, ErrUnknownPlayer)
	}
	if e.match.Eliminated(playerID) {
		return e.failure(playerID, action, ErrEliminated)
	}

	events, err := e.match.HandleAction(playerID, action)
	if err != nil {
		return e.failure(playerID, action, err)
	}

	snapshot, err := e.snapshot("")
	if err != nil {
		return Result{Success: false, Error: err.Error(), Code: CodeInternal}
	}
	return Result{Success: true, State: &snapshot, Events: events}
}

// Over reports whether the match has concluded. Pure and idempotent.
func (e *Engine) Over() bool {
	return e.match.Over()
}

// Winner reports the winning participant once the match has concluded.
func (e *Engine) Winner() (string, bool) {
	return e.match.Winner()
}

// Scores reports the per-participant score table.
func (e *Engine) Scores() map[string]int {
	return e.match.Scores()
}

// Participants returns the registry fixed at initialize.
func (e *Engine) Participants() []Participant {
	return e.match.Participants()
}

func (e *Engine) failure(playerID string, action Action, err error) Result {
	code := classify(err)
	if e.logger != nil {
		e.logger.Printf("action rejected game=%s player=%s type=%s code=%s reason=%s",
			e.game.Slug(), playerID, action.Type, code, err)
	}
	return Result{Success: false, Error: err.Error(), Code: code}
}
