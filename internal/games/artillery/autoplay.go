package artillery

import (
	"math"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
)

const (
	autoplayAimJitter   = 0.05
	autoplayMinPower    = 0.25
	maxChainedNPCTurns  = 8
	autoplayFlatRangeAt = 200.0 // horizontal reach of a full-power 45° shot
)

// autoplayTurn resolves a synthetic player's whole turn synchronously inside
// the triggering call: target pick, range-gated weapon choice, a jittered
// aim, fire, then the physics loop runs to settlement under the hard
// iteration ceiling. The retreat window is skipped; nobody is watching.
func (m *match) autoplayTurn(playerID string, trigger engine.Action) []engine.Event {
	m.npcDepth++
	defer func() { m.npcDepth-- }()
	if m.npcDepth > maxChainedNPCTurns {
		return nil
	}

	wm := m.activeWorm(playerID)
	if wm == nil {
		return m.advanceTurn(trigger)
	}
	target := m.pickTarget(playerID, wm)
	if target == nil {
		return m.advanceTurn(trigger)
	}

	m.st.Phase = phaseMoving
	slug, angle, power := m.planShot(playerID, wm, target)

	var events []engine.Event
	aimEvents, err := m.aim(playerID, engine.Action{
		Type: "aim",
		Payload: map[string]any{
			"weapon": slug, "angle": angle, "power": power,
		},
		Timestamp: trigger.Timestamp,
	})
	if err == nil {
		events = append(events, aimEvents...)
		fireEvents, fireErr := m.fire(playerID, engine.Action{Type: "fire", Timestamp: trigger.Timestamp})
		err = fireErr
		if err == nil {
			events = append(events, fireEvents...)
		}
	}
	if err != nil {
		// The plan was not executable; forfeit the turn rather than loop.
		return append(events, m.advanceTurn(trigger)...)
	}

	m.st.Phase = phaseResolving
	m.st.RetreatUntil = 0

	for i := 0; i < m.st.AutoplayTicks && !m.settled(); i++ {
		events = append(events, m.stepPhysics(trigger)...)
	}
	if !m.settled() {
		// Ceiling exhausted: force everything quiet so the turn hands over
		// cleanly instead of spinning.
		events = append(events, m.forceSettle(trigger)...)
	}
	if !m.st.Over {
		events = append(events, m.advanceTurn(trigger)...)
	}
	return events
}

// pickTarget prefers the nearest enemy worm, breaking ties toward the
// weakest.
func (m *match) pickTarget(playerID string, wm *worm) *worm {
	var target *worm
	bestDist := math.MaxFloat64
	for _, other := range m.st.Worms {
		if !other.Alive || other.PlayerID == playerID {
			continue
		}
		d := math.Hypot(other.X-wm.X, other.Y-wm.Y)
		if d < bestDist || (d == bestDist && target != nil && other.HP < target.HP) {
			bestDist = d
			target = other
		}
	}
	return target
}

// planShot gates the weapon on range and produces a jittered aim solution.
func (m *match) planShot(playerID string, wm, target *worm) (string, float64, float64) {
	dx := target.X - wm.X
	dy := target.Y - wm.Y
	dist := math.Hypot(dx, dy)
	ammo := m.st.Ammo[playerID]

	bat, _ := weaponFor("baseball_bat", m.st.Overrides)
	shotgun, _ := weaponFor("shotgun", m.st.Overrides)

	if dist <= bat.Range && ammo["baseball_bat"] != 0 {
		return "baseball_bat", math.Atan2(dy, dx), 1
	}
	if dist <= shotgun.Range && ammo["shotgun"] != 0 {
		return "shotgun", math.Atan2(dy, dx) + m.st.RNG.Jitter(autoplayAimJitter), 1
	}

	// Lob a bazooka on a 45° solution: a full-power shot carries about
	// autoplayFlatRangeAt columns, so power scales with the square root of
	// the distance fraction.
	angle := math.Pi / 4
	if dx < 0 {
		angle = 3 * math.Pi / 4
	}
	power := math.Sqrt(math.Abs(dx) / autoplayFlatRangeAt)
	if power < autoplayMinPower {
		power = autoplayMinPower
	}
	if power > 1 {
		power = 1
	}
	angle += m.st.RNG.Jitter(autoplayAimJitter)
	power += m.st.RNG.Jitter(0.03)
	if power <= 0 {
		power = autoplayMinPower
	}
	if power > 1 {
		power = 1
	}
	return "bazooka", angle, power
}

// forceSettle deactivates everything still moving after the iteration
// ceiling: projectiles vanish unexploded, airborne worms snap to the
// ground without fall damage, falling crates land where they are.
func (m *match) forceSettle(trigger engine.Action) []engine.Event {
	var events []engine.Event
	for _, p := range m.st.Projectiles {
		p.Active = false
	}
	m.st.Projectiles = m.st.Projectiles[:0]
	for _, wm := range m.st.Worms {
		if !wm.Alive || !wm.Airborne {
			continue
		}
		wm.Y = m.st.Terrain.HeightAt(wm.X)
		wm.VX = 0
		wm.VY = 0
		wm.Airborne = false
		wm.PeakY = wm.Y
		events = append(events, m.drownCheck(wm, trigger)...)
	}
	for _, c := range m.st.Crates {
		if c.Falling {
			c.Y = m.st.Terrain.HeightAt(c.X)
			c.Falling = false
		}
	}
	return events
}
