package artillery

import (
	"math"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
)

const (
	gravity              = 0.5
	projectileRestSpeed  = 0.6
	trailCap             = 40
	proximityRadius      = 1.5
	minEffectiveRadius   = 2.0
	knockbackScale       = 0.12
	safeFallHeight       = 8.0
	fallDamageMultiplier = 2.5
	wormFriction         = 0.7
	crateFallSpeed       = 2.0
	homingAccel          = 0.4
	clusterSpeed         = 3.5
)

// tickAction handles the explicit advance signal. In retreat it compares the
// signal's wall clock against the stamped deadline; in resolving it runs one
// physics step; anywhere else it nudges the phase along or idles.
func (m *match) tickAction(action engine.Action) ([]engine.Event, error) {
	switch m.st.Phase {
	case phaseRetreat:
		if action.Timestamp.UnixMilli() < m.st.RetreatUntil {
			return []engine.Event{engine.NewEvent("retreat_open", "", map[string]any{
				"until": m.st.RetreatUntil,
			}, action.Timestamp)}, nil
		}
		m.st.Phase = phaseResolving
		m.st.RetreatUntil = 0
	case phaseResolving:
	case phaseBetween, phaseMoving, phaseAiming:
		active := m.st.Rotation.Active()
		if m.synthetic(active) {
			return m.autoplayTurn(active, action), nil
		}
		if m.st.Phase == phaseBetween {
			m.st.Phase = phaseMoving
		}
		return []engine.Event{engine.NewEvent("idle", "", nil, action.Timestamp)}, nil
	}

	events := m.stepPhysics(action)
	if !m.st.Over && m.settled() {
		events = append(events, m.advanceTurn(action)...)
	}
	return events, nil
}

// settled reports whether nothing in the world is still in motion.
func (m *match) settled() bool {
	for _, p := range m.st.Projectiles {
		if p.Active {
			return false
		}
	}
	for _, w := range m.st.Worms {
		if w.Alive && w.Airborne {
			return false
		}
	}
	for _, c := range m.st.Crates {
		if c.Falling {
			return false
		}
	}
	return true
}

// stepPhysics runs one simulation step: projectile integration and
// collision, detonations, worm free-fall, and crate settling, in that fixed
// order.
func (m *match) stepPhysics(action engine.Action) []engine.Event {
	var events []engine.Event
	t := m.st.Terrain

	// Fragments spawned by a detonation this step integrate from the next
	// step, so only walk the projectiles that existed when the step began.
	count := len(m.st.Projectiles)
	for i := 0; i < count; i++ {
		p := m.st.Projectiles[i]
		if !p.Active {
			continue
		}
		w, err := weaponFor(p.Weapon, m.st.Overrides)
		if err != nil {
			p.Active = false
			continue
		}

		if w.Category == CategoryHoming {
			m.steerHoming(p)
		}
		p.VY -= gravity * w.Gravity
		p.VX += m.st.Wind * w.WindFactor
		p.X += p.VX
		p.Y += p.VY
		if len(p.Trail) < trailCap {
			p.Trail = append(p.Trail, [2]float64{p.X, p.Y})
		}

		if !t.InBounds(p.X) {
			p.Active = false
			continue
		}
		if p.Y <= t.WaterLevel {
			p.Active = false
			events = append(events, engine.NewEvent("splash", p.Owner, map[string]any{
				"projectile": p.ID,
			}, action.Timestamp))
			continue
		}

		if p.Y <= t.HeightAt(p.X) {
			speed := math.Hypot(p.VX, p.VY)
			if p.Bounciness > 0 && p.Fuse != 0 && speed > projectileRestSpeed {
				p.Y = t.HeightAt(p.X)
				p.VY = -p.VY * p.Bounciness
				p.VX *= p.Bounciness
			} else {
				events = append(events, m.detonate(p, w, action)...)
				continue
			}
		}

		// Contact weapons also trigger close to a living enemy worm.
		if p.Active && w.FuseTicks == 0 {
			if hit := m.wormNear(p.X, p.Y, proximityRadius, p.Owner); hit != nil {
				events = append(events, m.detonate(p, w, action)...)
				continue
			}
		}

		if p.Active && p.Fuse > 0 {
			p.Fuse--
			if p.Fuse == 0 {
				events = append(events, m.detonate(p, w, action)...)
			}
		}
	}

	kept := m.st.Projectiles[:0]
	for _, p := range m.st.Projectiles {
		if p.Active {
			kept = append(kept, p)
		}
	}
	m.st.Projectiles = kept

	events = append(events, m.fallWorms(action)...)
	m.settleCrates()
	return events
}

func (m *match) steerHoming(p *projectile) {
	var target *worm
	best := math.MaxFloat64
	for _, w := range m.st.Worms {
		if !w.Alive || w.PlayerID == p.Owner {
			continue
		}
		d := math.Hypot(w.X-p.X, w.Y-p.Y)
		if d < best {
			best = d
			target = w
		}
	}
	if target == nil || best == 0 {
		return
	}
	p.VX += (target.X - p.X) / best * homingAccel
	p.VY += (target.Y - p.Y) / best * homingAccel
}

// wormNear finds a living worm within radius, skipping the owner's own
// worms so a shot does not trigger on its shooter at launch.
func (m *match) wormNear(x, y, radius float64, owner string) *worm {
	for _, w := range m.st.Worms {
		if !w.Alive || w.PlayerID == owner {
			continue
		}
		if math.Hypot(w.X-x, w.Y-y) <= radius {
			return w
		}
	}
	return nil
}

// detonate carves the crater, applies falloff damage and knockback, and
// spawns cluster fragments.
func (m *match) detonate(p *projectile, w Weapon, action engine.Action) []engine.Event {
	p.Active = false
	var events []engine.Event
	events = append(events, engine.NewEvent("exploded", p.Owner, map[string]any{
		"projectile": p.ID, "weapon": p.Weapon, "x": p.X, "y": p.Y,
	}, action.Timestamp))

	if w.Radius > 0 {
		m.st.Terrain.Carve(p.X, p.Y, w.Radius)
	}

	effR := math.Max(w.Radius, minEffectiveRadius)
	for _, wm := range m.st.Worms {
		if !wm.Alive {
			continue
		}
		dist := math.Hypot(wm.X-p.X, wm.Y-p.Y)
		if dist >= effR {
			continue
		}
		dmg := int(math.Round(w.Damage * (1 - dist/effR)))
		if dmg <= 0 {
			continue
		}
		events = append(events, m.damageWorm(wm, dmg, p.Owner, "hit", action)...)
		if wm.Alive {
			dirX, dirY := 0.0, 1.0
			if dist > 0 {
				dirX = (wm.X - p.X) / dist
				dirY = (wm.Y - p.Y) / dist
			}
			wm.VX += dirX * float64(dmg) * knockbackScale
			wm.VY += math.Max(0.5, dirY*float64(dmg)*knockbackScale)
			wm.Airborne = true
			if wm.Y > wm.PeakY {
				wm.PeakY = wm.Y
			}
		}
	}

	if w.ClusterCount > 0 && w.Slug != clusterFragmentSlug {
		n := w.ClusterCount
		for i := 0; i < n; i++ {
			frac := 0.5
			if n > 1 {
				frac = float64(i) / float64(n-1)
			}
			angle := math.Pi/6 + frac*(2*math.Pi/3) + m.st.RNG.Jitter(0.1)
			m.st.Projectiles = append(m.st.Projectiles, &projectile{
				ID: m.mintID("frag"), Weapon: clusterFragmentSlug, Owner: p.Owner,
				X: p.X, Y: p.Y + 0.5,
				VX: math.Cos(angle) * clusterSpeed, VY: math.Sin(angle) * clusterSpeed,
				Active: true,
			})
		}
	}
	return events
}

// damageWorm applies damage, credits the attacker, and eliminates at zero.
func (m *match) damageWorm(wm *worm, dmg int, attacker, cause string, action engine.Action) []engine.Event {
	wm.HP -= dmg
	if attacker != "" && attacker != wm.PlayerID {
		m.st.DamageDealt[attacker] += dmg
	}
	events := []engine.Event{engine.NewEvent("worm_damaged", wm.PlayerID, map[string]any{
		"worm": wm.ID, "damage": dmg, "cause": cause, "hp": wm.HP,
	}, action.Timestamp)}
	if wm.HP <= 0 {
		wm.HP = 0
		events = append(events, m.eliminateWorm(wm, cause, action)...)
	}
	return events
}

func (m *match) eliminateWorm(wm *worm, cause string, action engine.Action) []engine.Event {
	wm.Alive = false
	wm.Airborne = false
	return []engine.Event{engine.NewEvent("worm_eliminated", wm.PlayerID, map[string]any{
		"worm": wm.ID, "cause": cause,
	}, action.Timestamp)}
}

// fallWorms integrates free-falling worms: gravity, friction, ground snap
// with fall damage past the safe height, drowning below the water line.
func (m *match) fallWorms(action engine.Action) []engine.Event {
	var events []engine.Event
	t := m.st.Terrain
	for _, wm := range m.st.Worms {
		if !wm.Alive {
			continue
		}
		ground := t.HeightAt(wm.X)
		if !wm.Airborne && wm.Y > ground+0.01 {
			// Terrain was carved out from underneath.
			wm.Airborne = true
			wm.PeakY = wm.Y
		}
		if !wm.Airborne {
			continue
		}

		wm.VY -= gravity
		wm.X += wm.VX
		wm.Y += wm.VY
		wm.VX *= wormFriction
		if wm.X < 0 {
			wm.X = 0
			wm.VX = 0
		}
		if wm.X > float64(t.Width)-1 {
			wm.X = float64(t.Width) - 1
			wm.VX = 0
		}
		if wm.Y > wm.PeakY {
			wm.PeakY = wm.Y
		}

		ground = t.HeightAt(wm.X)
		if wm.Y > ground {
			continue
		}
		wm.Y = ground
		wm.Airborne = false
		wm.VX = 0
		wm.VY = 0
		fallDist := wm.PeakY - ground
		wm.PeakY = ground
		if fallDist > safeFallHeight {
			dmg := int(math.Round((fallDist - safeFallHeight) * fallDamageMultiplier))
			if dmg > 0 {
				events = append(events, m.damageWorm(wm, dmg, "", "fall", action)...)
			}
		}
		if wm.Alive {
			events = append(events, m.drownCheck(wm, action)...)
		}
	}
	return events
}

// applyLanding resolves a voluntary step down taken during movement.
func (m *match) applyLanding(wm *worm, drop float64, action engine.Action) []engine.Event {
	var events []engine.Event
	if drop > safeFallHeight {
		dmg := int(math.Round((drop - safeFallHeight) * fallDamageMultiplier))
		if dmg > 0 {
			events = append(events, m.damageWorm(wm, dmg, "", "fall", action)...)
		}
	}
	if wm.Alive {
		events = append(events, m.drownCheck(wm, action)...)
	}
	return events
}

// drownCheck eliminates a worm that ends up below the water line.
func (m *match) drownCheck(wm *worm, action engine.Action) []engine.Event {
	if !wm.Alive || wm.Y >= m.st.Terrain.WaterLevel {
		return nil
	}
	return m.eliminateWorm(wm, "drowned", action)
}

func (m *match) settleCrates() {
	t := m.st.Terrain
	kept := m.st.Crates[:0]
	for _, c := range m.st.Crates {
		if c.Falling {
			c.Y -= crateFallSpeed
			ground := t.HeightAt(c.X)
			if c.Y <= ground {
				if ground <= t.WaterLevel {
					// Dropped at the water line; the crate is lost.
					c.Falling = false
					continue
				}
				c.Y = ground
				c.Falling = false
			}
		}
		kept = append(kept, c)
	}
	m.st.Crates = kept
}

// advanceTurn is the end-of-turn bookkeeping: recompute surviving players,
// rotate the next player's worm, re-roll wind, maybe drop a crate, and run
// the round clock toward sudden death.
func (m *match) advanceTurn(action engine.Action) []engine.Event {
	var events []engine.Event
	alive := func(id string) bool { return !m.Eliminated(id) }
	next := m.st.Rotation.Advance(alive)
	if teams := m.aliveTeams(); len(teams) <= 1 {
		winner := ""
		if len(teams) == 1 {
			winner = teams[0]
		}
		return append(events, m.conclude(winner, action)...)
	}

	owned := m.wormsOf(next)
	idx := m.st.ActiveWorm[next]
	for i := 1; i <= len(owned); i++ {
		j := (idx + i) % len(owned)
		if owned[j].Alive {
			m.st.ActiveWorm[next] = j
			break
		}
	}

	m.st.Wind = m.st.RNG.Jitter(maxWind)
	if m.st.RNG.Chance(crateChance) {
		events = append(events, m.spawnCrate(action))
	}

	m.st.RoundTurns--
	if m.st.RoundTurns <= 0 {
		events = append(events, m.applySuddenDeath(action)...)
		if m.st.Over {
			return events
		}
	}

	m.st.MovesLeft = movesPerTurn
	m.st.Aim = nil
	m.st.RetreatUntil = 0
	m.st.Phase = phaseBetween
	events = append(events, engine.NewEvent("turn_advanced", next, map[string]any{
		"wind": m.st.Wind, "roundTurns": m.st.RoundTurns,
	}, action.Timestamp))

	if m.synthetic(next) {
		events = append(events, m.autoplayTurn(next, action)...)
	}
	return events
}

// conclude freezes the match with the winning team. An empty winner is a
// draw.
func (m *match) conclude(winner string, action engine.Action) []engine.Event {
	m.st.Over = true
	m.st.Phase = phaseFinished
	m.st.WinnerID = winner
	return []engine.Event{engine.NewEvent("match_won", m.st.WinnerID, nil, action.Timestamp)}
}

var crateAmmoPool = []string{"cluster_bomb", "dynamite", "airstrike", "homing_missile"}

func (m *match) spawnCrate(action engine.Action) engine.Event {
	c := &crate{
		ID:      m.mintID("crate"),
		X:       float64(m.st.RNG.Intn(m.st.Terrain.Width)) + 0.5,
		Y:       m.st.Terrain.Highest() + 20,
		Kind:    "health",
		Falling: true,
	}
	if m.st.RNG.Chance(0.5) {
		c.Kind = "ammo"
		c.Content = crateAmmoPool[m.st.RNG.Intn(len(crateAmmoPool))]
	}
	m.st.Crates = append(m.st.Crates, c)
	// Land the drop before the turn hands over; a crate still falling
	// would leave the world unsettled and wedge the next end_turn.
	for c.Falling {
		m.settleCrates()
	}
	return engine.NewEvent("crate_spawned", "", map[string]any{
		"crate": c.ID, "kind": c.Kind, "x": c.X,
	}, action.Timestamp)
}

// applySuddenDeath escalates an exhausted round clock. Water rise repeats
// every turn; the hp clamp fires once; uniform damage repeats.
func (m *match) applySuddenDeath(action engine.Action) []engine.Event {
	var events []engine.Event
	if !m.st.SuddenDeath {
		m.st.SuddenDeath = true
		events = append(events, engine.NewEvent("sudden_death", "", map[string]any{
			"mode": m.st.SuddenDeathMode,
		}, action.Timestamp))
	}

	switch m.st.SuddenDeathMode {
	case SuddenDeathWaterRise:
		m.st.Terrain.WaterLevel += waterRiseStep
		for _, wm := range m.st.Worms {
			if wm.Alive {
				events = append(events, m.drownCheck(wm, action)...)
			}
		}
	case SuddenDeathHPClamp:
		for _, wm := range m.st.Worms {
			if wm.Alive && wm.HP > 1 {
				wm.HP = 1
			}
		}
	case SuddenDeathUniformDamage:
		for _, wm := range m.st.Worms {
			if wm.Alive {
				events = append(events, m.damageWorm(wm, suddenDeathDamage, "", "sudden_death", action)...)
			}
		}
	}

	if teams := m.aliveTeams(); len(teams) <= 1 {
		winner := ""
		if len(teams) == 1 {
			winner = teams[0]
		}
		events = append(events, m.conclude(winner, action)...)
	}
	return events
}

// resolveHitscan walks each pellet's ray until it meets terrain or a worm.
func (m *match) resolveHitscan(playerID string, wm *worm, w Weapon, a *aimState, action engine.Action) []engine.Event {
	var events []engine.Event
	t := m.st.Terrain
	for shot := 0; shot < w.ShotCount; shot++ {
		angle := a.Angle + m.st.RNG.Jitter(0.04)
		dx, dy := math.Cos(angle), math.Sin(angle)
		x, y := wm.X+dx, wm.Y+1+dy
		for travelled := 0.0; travelled < w.Range; travelled += 0.5 {
			x += dx * 0.5
			y += dy * 0.5
			if !t.InBounds(x) {
				break
			}
			if y <= t.HeightAt(x) {
				if w.Radius > 0 {
					t.Carve(x, y, w.Radius)
				}
				break
			}
			hit := m.wormNear(x, y, 1.0, playerID)
			if hit == nil {
				continue
			}
			events = append(events, m.damageWorm(hit, int(w.Damage), playerID, "shot", action)...)
			if hit.Alive {
				hit.VX += dx * 1.2
				hit.VY += 0.8
				hit.Airborne = true
				if hit.Y > hit.PeakY {
					hit.PeakY = hit.Y
				}
			}
			break
		}
	}
	return events
}

// resolveMelee swings at the closest enemy worm within reach on the facing
// side.
func (m *match) resolveMelee(playerID string, wm *worm, w Weapon, a *aimState, action engine.Action) []engine.Event {
	dir := 1.0
	if math.Cos(a.Angle) < 0 {
		dir = -1.0
	}
	var target *worm
	best := w.Range + 1
	for _, other := range m.st.Worms {
		if !other.Alive || other.PlayerID == playerID {
			continue
		}
		dx := (other.X - wm.X) * dir
		if dx < 0 || dx > w.Range || math.Abs(other.Y-wm.Y) > 3 {
			continue
		}
		if dx < best {
			best = dx
			target = other
		}
	}
	if target == nil {
		return []engine.Event{engine.NewEvent("swing_missed", playerID, nil, action.Timestamp)}
	}
	events := m.damageWorm(target, int(w.Damage), playerID, "bat", action)
	if target.Alive {
		target.VX += dir * 4
		target.VY += 3
		target.Airborne = true
		if target.Y > target.PeakY {
			target.PeakY = target.Y
		}
	}
	return events
}
