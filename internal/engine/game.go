package engine

import (
	"encoding/json"
	"sort"
)

// Config carries host-supplied tuning for a module. Modules read from it
// with the typed accessors and never write back, so one table can be shared
// across sessions.
type Config map[string]any

// Float reads a numeric key, falling back when absent or mistyped.
func (c Config) Float(key string, fallback float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

// Int reads an integer key, falling back when absent or mistyped.
func (c Config) Int(key string, fallback int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// String reads a string key, falling back when absent or mistyped.
func (c Config) String(key, fallback string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Sub reads a nested table, returning nil when absent.
func (c Config) Sub(key string) Config {
	switch v := c[key].(type) {
	case Config:
		return v
	case map[string]any:
		return Config(v)
	default:
		return nil
	}
}

// Game is one installable module: it declares its participant bounds and
// builds or rehydrates strongly-typed match state.
type Game interface {
	// Slug identifies the module in the registry and in session rows.
	Slug() string
	// Bounds reports the minimum and maximum participant counts.
	Bounds() (min, max int)
	// NewMatch builds the initial match state for the fixed participant
	// registry. The provided Rand is the only random source the match may
	// consume.
	NewMatch(players []Participant, cfg Config, rng *Rand) (Match, error)
	// DecodeMatch rehydrates match state from a previously encoded blob.
	DecodeMatch(data json.RawMessage) (Match, error)
}

// Match is the live, strongly-typed state machine for one session. The
// kernel touches only the envelope methods and never inspects module data.
type Match interface {
	Turn() int
	Phase() string
	Participants() []Participant
	Eliminated(playerID string) bool
	// HandleAction validates fully before mutating; on error the state is
	// unchanged.
	HandleAction(playerID string, action Action) ([]Event, error)
	// View returns the projection visible to the given player. An empty
	// playerID yields the host view. The projection is pure and
	// deterministic.
	View(playerID string) (json.RawMessage, error)
	Over() bool
	Winner() (string, bool)
	Scores() map[string]int
	Encode() (json.RawMessage, error)
}

var registry = make(map[string]Game)

// Register installs a game module. Modules call this from init.
func Register(game Game) {
	registry[game.Slug()] = game
}

// Lookup retrieves a registered module by slug.
func Lookup(slug string) (Game, bool) {
	game, ok := registry[slug]
	return game, ok
}

// Slugs lists registered modules in stable order.
func Slugs() []string {
	slugs := make([]string, 0, len(registry))
	for slug := range registry {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
