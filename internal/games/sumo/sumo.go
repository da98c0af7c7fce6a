// Package sumo implements the ring-out duel: two rikishi on a
// one-dimensional ring, alternating turns, each trying to force the other
// over their own edge.
package sumo

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
)

// Slug identifies the module in the registry.
const Slug = "sumo"

const (
	defaultRingRadius = 5.0
	startOffset       = 1.0
	basePush          = 1.2
	maxPower          = 2.0
	chargeGain        = 0.6
	sidestepChance    = 0.4
	throwBaseChance   = 0.35
)

const (
	phaseBout     = "bout"
	phaseFinished = "finished"
)

type rikishi struct {
	// Position is signed: index 0 defends the negative edge, index 1 the
	// positive edge. Crossing the own edge is a ring-out loss.
	Position float64 `json:"position"`
	Balance  float64 `json:"balance"`
	Power    float64 `json:"power"`
}

type state struct {
	Players    []engine.Participant `json:"players"`
	TurnCount  int                  `json:"turn"`
	Phase      string               `json:"phase"`
	Rikishi    []rikishi            `json:"rikishi"`
	Active     int                  `json:"active"`
	RingRadius float64              `json:"ringRadius"`
	Over       bool                 `json:"over"`
	WinnerID   string               `json:"winner,omitempty"`
	RNG        *engine.Rand         `json:"rng"`
}

type match struct {
	st state
}

type module struct{}

func init() {
	engine.Register(module{})
}

func (module) Slug() string { return Slug }

func (module) Bounds() (int, int) { return 2, 2 }

func (module) NewMatch(players []engine.Participant, cfg engine.Config, rng *engine.Rand) (engine.Match, error) {
	radius := cfg.Float("ring_radius", defaultRingRadius)
	if radius <= startOffset {
		return nil, fmt.Errorf("sumo: ring radius %.2f must exceed start offset", radius)
	}
	st := state{
		Players:    players,
		Phase:      phaseBout,
		RingRadius: radius,
		RNG:        rng,
		Rikishi: []rikishi{
			{Position: -startOffset, Balance: 100},
			{Position: +startOffset, Balance: 100},
		},
	}
	return &match{st: st}, nil
}

func (module) DecodeMatch(data json.RawMessage) (engine.Match, error) {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("sumo: decode state: %w", err)
	}
	return &match{st: st}, nil
}

func (m *match) Turn() int                            { return m.st.TurnCount }
func (m *match) Phase() string                        { return m.st.Phase }
func (m *match) Participants() []engine.Participant   { return m.st.Players }
func (m *match) Over() bool                           { return m.st.Over }
func (m *match) Eliminated(playerID string) bool      { return false }
func (m *match) Winner() (string, bool)               { return m.st.WinnerID, m.st.WinnerID != "" }

func (m *match) Scores() map[string]int {
	scores := make(map[string]int, len(m.st.Players))
	for i, p := range m.st.Players {
		// Margin from the own edge, in tenths of a unit.
		margin := m.st.RingRadius - math.Abs(m.st.Rikishi[i].Position)
		if margin < 0 {
			margin = 0
		}
		scores[p.ID] = int(margin * 10)
		if m.st.WinnerID == p.ID {
			scores[p.ID] += 100
		}
	}
	return scores
}

func (m *match) Encode() (json.RawMessage, error) {
	return json.Marshal(m.st)
}

// View hides the opponent's charge meter; everything else is public.
func (m *match) View(playerID string) (json.RawMessage, error) {
	projection := m.st
	projection.Rikishi = make([]rikishi, len(m.st.Rikishi))
	copy(projection.Rikishi, m.st.Rikishi)
	for i, p := range m.st.Players {
		if p.ID != playerID {
			projection.Rikishi[i].Power = 0
		}
	}
	projection.RNG = nil
	return json.Marshal(projection)
}

func (m *match) playerIndex(playerID string) int {
	for i, p := range m.st.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

func (m *match) HandleAction(playerID string, action engine.Action) ([]engine.Event, error) {
	if m.st.Over {
		return nil, engine.ErrGameOver
	}
	idx := m.playerIndex(playerID)
	if idx != m.st.Active {
		return nil, engine.ErrNotYourTurn
	}

	var events []engine.Event
	var err error
	switch action.Type {
	case "push":
		events, err = m.push(idx, action)
	case "charge":
		events, err = m.charge(idx, action)
	case "sidestep":
		events, err = m.sidestep(idx, action)
	case "throw":
		events, err = m.throwDown(idx, action)
	default:
		return nil, engine.ErrUnknownAction
	}
	if err != nil {
		return nil, err
	}

	m.st.TurnCount++
	if !m.st.Over {
		m.st.Active = 1 - m.st.Active
		if m.st.Players[m.st.Active].Synthetic {
			events = append(events, m.autoplay(action)...)
		}
	}
	return events, nil
}

// push shoves the opponent toward their own edge, scaled by stored power
// and eroded by the defender's remaining balance.
func (m *match) push(idx int, action engine.Action) ([]engine.Event, error) {
	attacker := &m.st.Rikishi[idx]
	defender := &m.st.Rikishi[1-idx]

	roll := m.st.RNG.Range(0.8, 1.2)
	distance := basePush * (1 + attacker.Power) * roll * (0.5 + defender.Balance/200)
	attacker.Power = 0
	defender.Balance = math.Max(0, defender.Balance-8)
	m.displace(1-idx, distance)

	events := []engine.Event{engine.NewEvent("push", m.st.Players[idx].ID, map[string]any{
		"distance": distance,
		"defender": m.st.Players[1-idx].ID,
	}, action.Timestamp)}
	return m.checkRingOut(events, action)
}

// charge banks power for a later push or throw at the cost of exposure.
func (m *match) charge(idx int, action engine.Action) ([]engine.Event, error) {
	attacker := &m.st.Rikishi[idx]
	if attacker.Power >= maxPower {
		return nil, engine.Precondition("power already at maximum")
	}
	attacker.Power = math.Min(maxPower, attacker.Power+chargeGain)
	attacker.Balance = math.Max(0, attacker.Balance-4)
	return []engine.Event{engine.NewEvent("charge", m.st.Players[idx].ID, map[string]any{
		"power": attacker.Power,
	}, action.Timestamp)}, nil
}

// sidestep gambles on making the opponent stumble toward their own edge.
func (m *match) sidestep(idx int, action engine.Action) ([]engine.Event, error) {
	defender := &m.st.Rikishi[1-idx]
	if m.st.RNG.Chance(sidestepChance + (100-defender.Balance)/400) {
		stumble := m.st.RNG.Range(0.8, 1.6)
		defender.Balance = math.Max(0, defender.Balance-12)
		m.displace(1-idx, stumble)
		events := []engine.Event{engine.NewEvent("sidestep_success", m.st.Players[idx].ID, map[string]any{
			"stumble": stumble,
		}, action.Timestamp)}
		return m.checkRingOut(events, action)
	}
	// Whiffed: the sidestepper loses ground instead.
	m.displace(idx, m.st.RNG.Range(0.2, 0.6))
	events := []engine.Event{engine.NewEvent("sidestep_failed", m.st.Players[idx].ID, nil, action.Timestamp)}
	return m.checkRingOut(events, action)
}

// throwDown is power-gated and high variance: a hit displaces hard, a miss
// costs the attacker ground and all stored power.
func (m *match) throwDown(idx int, action engine.Action) ([]engine.Event, error) {
	attacker := &m.st.Rikishi[idx]
	defender := &m.st.Rikishi[1-idx]
	if attacker.Power < 1.0 {
		return nil, engine.Precondition("throw requires at least 1.0 stored power")
	}

	chance := throwBaseChance + attacker.Power/5 + (100-defender.Balance)/300
	success := m.st.RNG.Chance(chance)
	power := attacker.Power
	attacker.Power = 0
	if success {
		distance := basePush * 2 * power
		defender.Balance = math.Max(0, defender.Balance-20)
		m.displace(1-idx, distance)
		events := []engine.Event{engine.NewEvent("throw_success", m.st.Players[idx].ID, map[string]any{
			"distance": distance,
		}, action.Timestamp)}
		return m.checkRingOut(events, action)
	}
	m.displace(idx, m.st.RNG.Range(0.4, 1.0))
	events := []engine.Event{engine.NewEvent("throw_failed", m.st.Players[idx].ID, nil, action.Timestamp)}
	return m.checkRingOut(events, action)
}

// displace moves a rikishi toward their own edge by the given distance.
func (m *match) displace(idx int, distance float64) {
	if idx == 0 {
		m.st.Rikishi[idx].Position -= distance
	} else {
		m.st.Rikishi[idx].Position += distance
	}
}

func (m *match) checkRingOut(events []engine.Event, action engine.Action) ([]engine.Event, error) {
	for i := range m.st.Rikishi {
		if math.Abs(m.st.Rikishi[i].Position) > m.st.RingRadius {
			m.st.Over = true
			m.st.Phase = phaseFinished
			m.st.WinnerID = m.st.Players[1-i].ID
			events = append(events, engine.NewEvent("ring_out", m.st.Players[i].ID, map[string]any{
				"winner": m.st.WinnerID,
			}, action.Timestamp))
			return events, nil
		}
	}
	return events, nil
}

// autoplay resolves one synthetic turn inline: charge when safe and
// unpowered, otherwise push. The whole turn completes inside the call that
// reached it.
func (m *match) autoplay(action engine.Action) []engine.Event {
	idx := m.st.Active
	self := m.st.Rikishi[idx]
	nearOwnEdge := m.st.RingRadius-math.Abs(self.Position) < basePush*2

	var events []engine.Event
	if self.Power < chargeGain && !nearOwnEdge && m.st.RNG.Chance(0.5) {
		events, _ = m.charge(idx, action)
	} else {
		events, _ = m.push(idx, action)
	}
	m.st.TurnCount++
	if !m.st.Over {
		m.st.Active = 1 - m.st.Active
	}
	return events
}
