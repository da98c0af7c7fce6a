// Package brawl implements the free-for-all brawler: a rotating turn order
// over up to four fighters, last one standing wins. Heavy hits can stun,
// which skips the victim's next turn through the shared stun/skip pattern.
package brawl

import (
	"encoding/json"
	"fmt"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
	"github.com/Halldon-Inc/moltblox-sub002/internal/games/rotation"
)

// Slug identifies the module in the registry.
const Slug = "brawl"

const (
	maxHP          = 100
	maxStamina     = 100
	punchDamage    = 10
	haymakerDamage = 24
	haymakerCost   = 30
	stunChance     = 0.35
	recoverGain    = 40
)

const (
	phaseFighting = "fighting"
	phaseFinished = "finished"
)

type fighter struct {
	HP       int  `json:"hp"`
	Stamina  int  `json:"stamina"`
	Blocking bool `json:"blocking"`
	Stunned  bool `json:"stunned"`
	Alive    bool `json:"alive"`
}

type state struct {
	Players   []engine.Participant `json:"players"`
	TurnCount int                  `json:"turn"`
	Phase     string               `json:"phase"`
	Fighters  map[string]*fighter  `json:"fighters"`
	Rotation  rotation.Rotation    `json:"rotation"`
	Over      bool                 `json:"over"`
	WinnerID  string               `json:"winner,omitempty"`
	RNG       *engine.Rand         `json:"rng"`
}

type match struct {
	st state
}

type module struct{}

func init() {
	engine.Register(module{})
}

func (module) Slug() string       { return Slug }
func (module) Bounds() (int, int) { return 2, 4 }

func (module) NewMatch(players []engine.Participant, cfg engine.Config, rng *engine.Rand) (engine.Match, error) {
	ids := make([]string, len(players))
	fighters := make(map[string]*fighter, len(players))
	for i, p := range players {
		ids[i] = p.ID
		fighters[p.ID] = &fighter{HP: maxHP, Stamina: maxStamina, Alive: true}
	}
	st := state{
		Players:  players,
		Phase:    phaseFighting,
		Fighters: fighters,
		Rotation: rotation.New(ids),
		RNG:      rng,
	}
	return &match{st: st}, nil
}

func (module) DecodeMatch(data json.RawMessage) (engine.Match, error) {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("brawl: decode state: %w", err)
	}
	return &match{st: st}, nil
}

func (m *match) Turn() int                          { return m.st.TurnCount }
func (m *match) Phase() string                      { return m.st.Phase }
func (m *match) Participants() []engine.Participant { return m.st.Players }
func (m *match) Over() bool                         { return m.st.Over }
func (m *match) Winner() (string, bool)             { return m.st.WinnerID, m.st.WinnerID != "" }

func (m *match) Eliminated(playerID string) bool {
	f, ok := m.st.Fighters[playerID]
	return ok && !f.Alive
}

func (m *match) Scores() map[string]int {
	scores := make(map[string]int, len(m.st.Players))
	for _, p := range m.st.Players {
		f := m.st.Fighters[p.ID]
		score := f.HP
		if p.ID == m.st.WinnerID {
			score += 100
		}
		scores[p.ID] = score
	}
	return scores
}

func (m *match) Encode() (json.RawMessage, error) { return json.Marshal(m.st) }

// View is the full state: a brawl has no hidden information.
func (m *match) View(playerID string) (json.RawMessage, error) { return m.Encode() }

func (m *match) synthetic(id string) bool {
	for _, p := range m.st.Players {
		if p.ID == id {
			return p.Synthetic
		}
	}
	return false
}

func (m *match) HandleAction(playerID string, action engine.Action) ([]engine.Event, error) {
	if m.st.Over {
		return nil, engine.ErrGameOver
	}
	if m.st.Rotation.Active() != playerID {
		return nil, engine.ErrNotYourTurn
	}

	self := m.st.Fighters[playerID]
	if self.Stunned {
		// Consume the stun flag: the turn is skipped, the action succeeds
		// with no further effect.
		self.Stunned = false
		events := []engine.Event{engine.NewEvent("turn_skipped", playerID, map[string]any{
			"reason": "stunned",
		}, action.Timestamp)}
		return m.endTurn(events, action), nil
	}

	events, err := m.resolve(playerID, self, action)
	if err != nil {
		return nil, err
	}
	return m.endTurn(events, action), nil
}

func (m *match) resolve(playerID string, self *fighter, action engine.Action) ([]engine.Event, error) {
	switch action.Type {
	case "punch":
		target, targetID, err := m.target(playerID, action)
		if err != nil {
			return nil, err
		}
		dealt := m.hit(target, punchDamage)
		events := []engine.Event{engine.NewEvent("punch", playerID, map[string]any{
			"target": targetID, "damage": dealt,
		}, action.Timestamp)}
		return m.checkElimination(events, targetID, action), nil
	case "haymaker":
		if self.Stamina < haymakerCost {
			return nil, engine.Precondition(fmt.Sprintf("haymaker requires %d stamina", haymakerCost))
		}
		target, targetID, err := m.target(playerID, action)
		if err != nil {
			return nil, err
		}
		self.Stamina -= haymakerCost
		dealt := m.hit(target, haymakerDamage)
		stunned := false
		if target.Alive && m.st.RNG.Chance(stunChance) {
			target.Stunned = true
			stunned = true
		}
		events := []engine.Event{engine.NewEvent("haymaker", playerID, map[string]any{
			"target": targetID, "damage": dealt, "stunned": stunned,
		}, action.Timestamp)}
		return m.checkElimination(events, targetID, action), nil
	case "block":
		self.Blocking = true
		return []engine.Event{engine.NewEvent("block", playerID, nil, action.Timestamp)}, nil
	case "recover":
		if self.Stamina >= maxStamina {
			return nil, engine.Precondition("stamina already full")
		}
		self.Stamina = min(maxStamina, self.Stamina+recoverGain)
		return []engine.Event{engine.NewEvent("recover", playerID, map[string]any{
			"stamina": self.Stamina,
		}, action.Timestamp)}, nil
	default:
		return nil, engine.ErrUnknownAction
	}
}

// target validates the payload target id: it must name a different, living
// fighter.
func (m *match) target(playerID string, action engine.Action) (*fighter, string, error) {
	raw, ok := action.Payload["target"]
	if !ok {
		return nil, "", engine.Precondition("missing target")
	}
	targetID, ok := raw.(string)
	if !ok || targetID == "" {
		return nil, "", engine.Precondition("target must be a player id")
	}
	if targetID == playerID {
		return nil, "", engine.Precondition("cannot target yourself")
	}
	target, ok := m.st.Fighters[targetID]
	if !ok {
		return nil, "", engine.Precondition(fmt.Sprintf("unknown target %q", targetID))
	}
	if !target.Alive {
		return nil, "", engine.Precondition(fmt.Sprintf("target %q is already out", targetID))
	}
	return target, targetID, nil
}

// hit applies damage, halved once while the target is blocking, and reports
// the amount actually dealt.
func (m *match) hit(target *fighter, damage int) int {
	if target.Blocking {
		damage /= 2
		target.Blocking = false
	}
	target.HP -= damage
	if target.HP <= 0 {
		target.HP = 0
		target.Alive = false
	}
	return damage
}

func (m *match) checkElimination(events []engine.Event, targetID string, action engine.Action) []engine.Event {
	if target := m.st.Fighters[targetID]; target != nil && !target.Alive {
		events = append(events, engine.NewEvent("eliminated", targetID, nil, action.Timestamp))
	}
	return events
}

// endTurn advances the rotation, concludes the brawl when one fighter
// remains, and resolves synthetic turns inline.
func (m *match) endTurn(events []engine.Event, action engine.Action) []engine.Event {
	m.st.TurnCount++
	alive := func(id string) bool {
		f := m.st.Fighters[id]
		return f != nil && f.Alive
	}
	next := m.st.Rotation.Advance(alive)
	if m.st.Rotation.Len() <= 1 {
		m.st.Over = true
		m.st.Phase = phaseFinished
		m.st.WinnerID = next
		events = append(events, engine.NewEvent("brawl_won", next, nil, action.Timestamp))
		return events
	}
	if m.synthetic(next) {
		events = append(events, m.autoplay(next, action)...)
	}
	return events
}

// autoplay resolves one synthetic fighter's turn inline: pick the weakest
// living opponent, haymaker when stamina allows, otherwise punch or
// recover.
func (m *match) autoplay(playerID string, action engine.Action) []engine.Event {
	self := m.st.Fighters[playerID]
	if self.Stunned {
		self.Stunned = false
		events := []engine.Event{engine.NewEvent("turn_skipped", playerID, map[string]any{
			"reason": "stunned",
		}, action.Timestamp)}
		return m.endTurn(events, action)
	}

	targetID := ""
	targetHP := maxHP + 1
	for _, p := range m.st.Players {
		f := m.st.Fighters[p.ID]
		if p.ID == playerID || !f.Alive {
			continue
		}
		if f.HP < targetHP {
			targetHP = f.HP
			targetID = p.ID
		}
	}

	npcAction := engine.Action{Type: "punch", Payload: map[string]any{"target": targetID}, Timestamp: action.Timestamp}
	if self.Stamina >= haymakerCost {
		npcAction.Type = "haymaker"
	} else if self.Stamina < haymakerCost/2 && self.HP > maxHP/2 {
		npcAction.Type = "recover"
		npcAction.Payload = nil
	}

	events, err := m.resolve(playerID, self, npcAction)
	if err != nil {
		// Heuristic picked an ineligible action; a plain punch always works.
		events, _ = m.resolve(playerID, self, engine.Action{
			Type: "punch", Payload: map[string]any{"target": targetID}, Timestamp: action.Timestamp,
		})
	}
	return m.endTurn(events, action)
}
