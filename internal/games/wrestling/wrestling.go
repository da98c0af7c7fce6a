// Package wrestling implements the pin/kick-out wrestling match. There is no
// turn rotation: any tagged-in wrestler may act at any time, except while a
// pin is in progress, when only the attacker and the defender may act.
// Wrestlers are never eliminated by damage alone; only a pinfall takes a
// wrestler out of the match.
package wrestling

import (
	"encoding/json"
	"fmt"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
)

// Slug identifies the module in the registry.
const Slug = "wrestling"

const (
	maxHP = 100

	strikeDamage   = 8
	strikeMomentum = 8

	grappleDamage   = 5
	grappleMomentum = 15
	grappleChance   = 0.7

	slamDamage      = 16
	slamMomentum    = 12
	slamMinMomentum = 20

	finisherDamage           = 30
	defaultFinisherThreshold = 50

	ropeBreakChance = 0.3
	pinfallCount    = 3
)

const (
	phaseOpen     = "open"
	phasePin      = "pin"
	phaseFinished = "finished"
)

type wrestler struct {
	Team     string `json:"team"`
	HP       int    `json:"hp"`
	Momentum int    `json:"momentum"`
	TaggedIn bool   `json:"taggedIn"`
	Alive    bool   `json:"alive"`
	Damage   int    `json:"damageDealt"`
	Pinfalls int    `json:"pinfalls"`
}

// pin is the sub-state that gates the free-for-all while someone is down.
type pin struct {
	AttackerID string `json:"attacker"`
	DefenderID string `json:"defender"`
	Count      int    `json:"count"`
}

type state struct {
	Players   []engine.Participant `json:"players"`
	TurnCount int                  `json:"turn"`
	Wrestlers map[string]*wrestler `json:"wrestlers"`
	Pin       *pin                 `json:"pin,omitempty"`
	Threshold int                  `json:"finisherThreshold"`
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

// NewMatch pairs four entrants into two tag teams; any other count is a
// singles free-for-all where everyone is their own team and always legal.
func (module) NewMatch(players []engine.Participant, cfg engine.Config, rng *engine.Rand) (engine.Match, error) {
	wrestlers := make(map[string]*wrestler, len(players))
	if len(players) == 4 {
		for i, p := range players {
			team := "blue"
			if i >= 2 {
				team = "red"
			}
			wrestlers[p.ID] = &wrestler{
				Team:     team,
				HP:       maxHP,
				TaggedIn: i == 0 || i == 2,
				Alive:    true,
			}
		}
	} else {
		for _, p := range players {
			wrestlers[p.ID] = &wrestler{Team: p.ID, HP: maxHP, TaggedIn: true, Alive: true}
		}
	}
	st := state{
		Players:   players,
		Wrestlers: wrestlers,
		Threshold: cfg.Int("finisher_threshold", defaultFinisherThreshold),
		RNG:       rng,
	}
	return &match{st: st}, nil
}

func (module) DecodeMatch(data json.RawMessage) (engine.Match, error) {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("wrestling: decode state: %w", err)
	}
	return &match{st: st}, nil
}

func (m *match) Turn() int                          { return m.st.TurnCount }
func (m *match) Participants() []engine.Participant { return m.st.Players }
func (m *match) Over() bool                         { return m.st.Over }
func (m *match) Winner() (string, bool)             { return m.st.WinnerID, m.st.WinnerID != "" }

func (m *match) Phase() string {
	switch {
	case m.st.Over:
		return phaseFinished
	case m.st.Pin != nil:
		return phasePin
	default:
		return phaseOpen
	}
}

func (m *match) Eliminated(playerID string) bool {
	w, ok := m.st.Wrestlers[playerID]
	return ok && !w.Alive
}

func (m *match) Scores() map[string]int {
	winningTeam := ""
	if m.st.WinnerID != "" {
		winningTeam = m.st.Wrestlers[m.st.WinnerID].Team
	}
	scores := make(map[string]int, len(m.st.Players))
	for _, p := range m.st.Players {
		w := m.st.Wrestlers[p.ID]
		score := w.Damage + w.Pinfalls*50
		if winningTeam != "" && w.Team == winningTeam {
			score += 100
		}
		scores[p.ID] = score
	}
	return scores
}

func (m *match) Encode() (json.RawMessage, error) { return json.Marshal(m.st) }

// View is the full state: the match has no hidden information.
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

	events, err := m.resolve(playerID, action)
	if err != nil {
		return nil, err
	}
	m.st.TurnCount++
	if !m.st.Over {
		events = append(events, m.reactSynthetics(action)...)
	}
	return events, nil
}

func (m *match) resolve(playerID string, action engine.Action) ([]engine.Event, error) {
	self := m.st.Wrestlers[playerID]

	if p := m.st.Pin; p != nil {
		switch playerID {
		case p.AttackerID:
			if action.Type != "press" {
				return nil, engine.Precondition("the attacker can only press during a pin")
			}
			return m.press(playerID, action)
		case p.DefenderID:
			switch action.Type {
			case "kick_out":
				return m.kickOut(playerID, action)
			case "rope_break":
				return m.ropeBreak(playerID, action)
			default:
				return nil, engine.Precondition("a pinned wrestler can only kick out or reach for the ropes")
			}
		default:
			return nil, engine.ErrNotYourTurn
		}
	}

	if action.Type == "tag" {
		return m.tag(playerID, self, action)
	}
	if !self.TaggedIn {
		return nil, engine.ErrNotYourTurn
	}

	switch action.Type {
	case "strike":
		return m.strike(playerID, self, action)
	case "grapple":
		return m.grapple(playerID, self, action)
	case "slam":
		return m.slam(playerID, self, action)
	case "finisher":
		return m.finisher(playerID, self, action)
	case "pin":
		return m.startPin(playerID, action)
	case "press", "kick_out", "rope_break":
		return nil, engine.Precondition("no pin in progress")
	default:
		return nil, engine.ErrUnknownAction
	}
}

// target validates the payload target: a tagged-in, alive wrestler from
// another team.
func (m *match) target(playerID string, action engine.Action) (*wrestler, string, error) {
	raw, ok := action.Payload["target"]
	if !ok {
		return nil, "", engine.Precondition("missing target")
	}
	targetID, ok := raw.(string)
	if !ok || targetID == "" {
		return nil, "", engine.Precondition("target must be a player id")
	}
	target, ok := m.st.Wrestlers[targetID]
	if !ok {
		return nil, "", engine.Precondition(fmt.Sprintf("unknown target %q", targetID))
	}
	if target.Team == m.st.Wrestlers[playerID].Team {
		return nil, "", engine.Precondition("cannot target your own team")
	}
	if !target.Alive {
		return nil, "", engine.Precondition(fmt.Sprintf("%q has already been pinned", targetID))
	}
	if !target.TaggedIn {
		return nil, "", engine.Precondition(fmt.Sprintf("%q is outside the ropes", targetID))
	}
	return target, targetID, nil
}

func (m *match) damage(self, target *wrestler, amount int) int {
	if amount > target.HP {
		amount = target.HP
	}
	target.HP -= amount
	self.Damage += amount
	return amount
}

func (m *match) strike(playerID string, self *wrestler, action engine.Action) ([]engine.Event, error) {
	target, targetID, err := m.target(playerID, action)
	if err != nil {
		return nil, err
	}
	dealt := m.damage(self, target, strikeDamage)
	self.Momentum += strikeMomentum
	return []engine.Event{engine.NewEvent("strike", playerID, map[string]any{
		"target": targetID, "damage": dealt, "momentum": self.Momentum,
	}, action.Timestamp)}, nil
}

// grapple trades reliability for momentum: a failed hold hands the momentum
// to the target instead.
func (m *match) grapple(playerID string, self *wrestler, action engine.Action) ([]engine.Event, error) {
	target, targetID, err := m.target(playerID, action)
	if err != nil {
		return nil, err
	}
	if !m.st.RNG.Chance(grappleChance) {
		target.Momentum += grappleMomentum / 2
		return []engine.Event{engine.NewEvent("grapple_reversed", playerID, map[string]any{
			"target": targetID,
		}, action.Timestamp)}, nil
	}
	dealt := m.damage(self, target, grappleDamage)
	self.Momentum += grappleMomentum
	return []engine.Event{engine.NewEvent("grapple", playerID, map[string]any{
		"target": targetID, "damage": dealt, "momentum": self.Momentum,
	}, action.Timestamp)}, nil
}

func (m *match) slam(playerID string, self *wrestler, action engine.Action) ([]engine.Event, error) {
	if self.Momentum < slamMinMomentum {
		return nil, engine.Precondition(fmt.Sprintf("slam requires %d momentum", slamMinMomentum))
	}
	target, targetID, err := m.target(playerID, action)
	if err != nil {
		return nil, err
	}
	dealt := m.damage(self, target, slamDamage)
	self.Momentum += slamMomentum
	return []engine.Event{engine.NewEvent("slam", playerID, map[string]any{
		"target": targetID, "damage": dealt, "momentum": self.Momentum,
	}, action.Timestamp)}, nil
}

// finisher spends all momentum for heavy damage and flows straight into a
// pin on the target.
func (m *match) finisher(playerID string, self *wrestler, action engine.Action) ([]engine.Event, error) {
	if self.Momentum < m.st.Threshold {
		return nil, engine.Precondition(fmt.Sprintf("finisher requires %d momentum", m.st.Threshold))
	}
	target, targetID, err := m.target(playerID, action)
	if err != nil {
		return nil, err
	}
	dealt := m.damage(self, target, finisherDamage)
	self.Momentum = 0
	m.st.Pin = &pin{AttackerID: playerID, DefenderID: targetID}
	return []engine.Event{
		engine.NewEvent("finisher", playerID, map[string]any{
			"target": targetID, "damage": dealt,
		}, action.Timestamp),
		engine.NewEvent("pin_started", playerID, map[string]any{
			"defender": targetID,
		}, action.Timestamp),
	}, nil
}

func (m *match) startPin(playerID string, action engine.Action) ([]engine.Event, error) {
	_, targetID, err := m.target(playerID, action)
	if err != nil {
		return nil, err
	}
	m.st.Pin = &pin{AttackerID: playerID, DefenderID: targetID}
	return []engine.Event{engine.NewEvent("pin_started", playerID, map[string]any{
		"defender": targetID,
	}, action.Timestamp)}, nil
}

// press advances the referee's count; the third press completes the pinfall
// unless the defender escapes first.
func (m *match) press(playerID string, action engine.Action) ([]engine.Event, error) {
	p := m.st.Pin
	p.Count++
	events := []engine.Event{engine.NewEvent("press", playerID, map[string]any{
		"count": p.Count,
	}, action.Timestamp)}
	if p.Count >= pinfallCount {
		events = append(events, m.pinfall(action)...)
	}
	return events, nil
}

// kickOut is the defender's escape roll. The odds scale with remaining
// health and shrink with every count; at zero health the kick-out always
// fails and the pinfall stands.
func (m *match) kickOut(playerID string, action engine.Action) ([]engine.Event, error) {
	p := m.st.Pin
	defender := m.st.Wrestlers[playerID]
	chance := 0.8*float64(defender.HP)/float64(maxHP) - 0.15*float64(p.Count)
	if defender.HP > 0 && m.st.RNG.Chance(chance) {
		m.st.Pin = nil
		return []engine.Event{engine.NewEvent("kick_out", playerID, map[string]any{
			"count": p.Count,
		}, action.Timestamp)}, nil
	}
	return append([]engine.Event{engine.NewEvent("kick_out_failed", playerID, nil, action.Timestamp)},
		m.pinfall(action)...), nil
}

// ropeBreak is pure positioning luck: on success the pin resets with no
// damage either way.
func (m *match) ropeBreak(playerID string, action engine.Action) ([]engine.Event, error) {
	if m.st.RNG.Chance(ropeBreakChance) {
		m.st.Pin = nil
		return []engine.Event{engine.NewEvent("rope_break", playerID, nil, action.Timestamp)}, nil
	}
	return []engine.Event{engine.NewEvent("rope_break_failed", playerID, nil, action.Timestamp)}, nil
}

// tag swaps the corner partner in for the tagged-in teammate. The actor is
// the inactive partner, which is the one exemption from the tagged-in rule.
func (m *match) tag(playerID string, self *wrestler, action engine.Action) ([]engine.Event, error) {
	if !self.Alive {
		return nil, engine.ErrNotYourTurn
	}
	if self.TaggedIn {
		return nil, engine.Precondition("already the legal wrestler")
	}
	partnerID := ""
	for _, p := range m.st.Players {
		w := m.st.Wrestlers[p.ID]
		if p.ID != playerID && w.Team == self.Team && w.TaggedIn {
			partnerID = p.ID
			break
		}
	}
	if partnerID == "" {
		return nil, engine.Precondition("no tagged-in partner to replace")
	}
	m.st.Wrestlers[partnerID].TaggedIn = false
	self.TaggedIn = true
	return []engine.Event{engine.NewEvent("tag", playerID, map[string]any{
		"out": partnerID,
	}, action.Timestamp)}, nil
}

// pinfall eliminates the defender and concludes the match when one team
// remains. A pinned team with a living corner partner forces that partner in.
func (m *match) pinfall(action engine.Action) []engine.Event {
	p := m.st.Pin
	defender := m.st.Wrestlers[p.DefenderID]
	defender.Alive = false
	defender.TaggedIn = false
	m.st.Wrestlers[p.AttackerID].Pinfalls++
	m.st.Pin = nil

	events := []engine.Event{engine.NewEvent("pinfall", p.AttackerID, map[string]any{
		"defender": p.DefenderID,
	}, action.Timestamp)}

	teams := make(map[string]bool)
	for _, pl := range m.st.Players {
		w := m.st.Wrestlers[pl.ID]
		if !w.Alive {
			continue
		}
		teams[w.Team] = true
		if w.Team == defender.Team && !m.taggedIn(w.Team) {
			w.TaggedIn = true
			events = append(events, engine.NewEvent("tag", pl.ID, map[string]any{
				"out": p.DefenderID,
			}, action.Timestamp))
		}
	}

	if len(teams) <= 1 {
		m.st.Over = true
		for _, pl := range m.st.Players {
			if m.st.Wrestlers[pl.ID].Alive {
				m.st.WinnerID = pl.ID
				break
			}
		}
		events = append(events, engine.NewEvent("match_won", m.st.WinnerID, nil, action.Timestamp))
	}
	return events
}

func (m *match) taggedIn(team string) bool {
	for _, w := range m.st.Wrestlers {
		if w.Team == team && w.Alive && w.TaggedIn {
			return true
		}
	}
	return false
}

// reactSynthetics gives each synthetic wrestler one inline response after a
// human action resolves.
func (m *match) reactSynthetics(trigger engine.Action) []engine.Event {
	var events []engine.Event
	for _, pl := range m.st.Players {
		if m.st.Over {
			break
		}
		if !pl.Synthetic || !m.st.Wrestlers[pl.ID].Alive {
			continue
		}
		npcAction, ok := m.chooseSynthetic(pl.ID, trigger)
		if !ok {
			continue
		}
		resolved, err := m.resolve(pl.ID, npcAction)
		if err != nil {
			continue
		}
		events = append(events, resolved...)
	}
	return events
}

func (m *match) chooseSynthetic(playerID string, trigger engine.Action) (engine.Action, bool) {
	self := m.st.Wrestlers[playerID]

	if p := m.st.Pin; p != nil {
		switch playerID {
		case p.AttackerID:
			return engine.Action{Type: "press", Timestamp: trigger.Timestamp}, true
		case p.DefenderID:
			return engine.Action{Type: "kick_out", Timestamp: trigger.Timestamp}, true
		default:
			return engine.Action{}, false
		}
	}
	if !self.TaggedIn {
		return engine.Action{}, false
	}

	targetID := ""
	targetHP := maxHP + 1
	for _, pl := range m.st.Players {
		w := m.st.Wrestlers[pl.ID]
		if pl.ID == playerID || !w.Alive || !w.TaggedIn || w.Team == self.Team {
			continue
		}
		if w.HP < targetHP {
			targetHP = w.HP
			targetID = pl.ID
		}
	}
	if targetID == "" {
		return engine.Action{}, false
	}

	actionType := "strike"
	switch {
	case self.Momentum >= m.st.Threshold:
		actionType = "finisher"
	case targetHP <= finisherDamage/2:
		actionType = "pin"
	case self.Momentum >= slamMinMomentum:
		actionType = "slam"
	}
	return engine.Action{
		Type:      actionType,
		Payload:   map[string]any{"target": targetID},
		Timestamp: trigger.Timestamp,
	}, true
}
