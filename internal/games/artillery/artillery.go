// Package artillery implements the destructible-terrain artillery duel:
// teams of worms on a seeded heightmap trade tick-simulated projectiles
// until one team remains. The match never schedules anything itself; the
// explicit tick action is the only advance signal, so a host can drive the
// simulation at whatever pace it likes and a stalled session stays frozen
// exactly where it was encoded.
package artillery

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
	"github.com/Halldon-Inc/moltblox-sub002/internal/games/rotation"
)

// Slug identifies the module in the registry.
const Slug = "artillery"

const (
	defaultWidth          = 200
	defaultWaterLevel     = 5.0
	defaultWormsPerPlayer = 2
	defaultRoundTurns     = 30
	defaultAutoplayTicks  = 600

	wormMaxHP      = 100
	movesPerTurn   = 5
	maxStep        = 3.0
	maxClimb       = 2.5
	jumpDistance   = 2.5
	jumpClimb      = 6.0
	maxLaunchSpeed = 10.0
	maxWind        = 0.25

	retreatWindowMillis = 3000

	girderHalfWidth = 2.5
	girderLift      = 4.0
	torchDepth      = 4.0
	torchHalfWidth  = 2.0
	torchAdvance    = 3.0

	crateChance      = 0.2
	cratePickupRange = 1.5
	crateHealthBoost = 25

	waterRiseStep     = 1.5
	suddenDeathDamage = 5
)

const (
	phaseMoving    = "moving"
	phaseAiming    = "aiming"
	phaseRetreat   = "retreat"
	phaseResolving = "resolving"
	phaseBetween   = "between_turns"
	phaseFinished  = "finished"
)

// Sudden-death escalation modes.
const (
	SuddenDeathWaterRise     = "water_rise"
	SuddenDeathHPClamp       = "hp_clamp"
	SuddenDeathUniformDamage = "uniform_damage"
)

type worm struct {
	ID       string  `json:"id"`
	PlayerID string  `json:"playerId"`
	TeamID   string  `json:"teamId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	VX       float64 `json:"vx"`
	VY       float64 `json:"vy"`
	HP       int     `json:"hp"`
	MaxHP    int     `json:"maxHp"`
	Alive    bool    `json:"alive"`
	Airborne bool    `json:"airborne"`
	PeakY    float64 `json:"peakY"`
}

type projectile struct {
	ID     string  `json:"id"`
	Weapon string  `json:"weapon"`
	Owner  string  `json:"owner"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	// Bounciness is copied from the weapon at launch so mid-flight
	// weapon overrides cannot change a shot already in the air.
	Bounciness float64      `json:"bounciness,omitempty"`
	Fuse       int          `json:"fuse"`
	Trail      [][2]float64 `json:"trail"`
	Active     bool         `json:"active"`
}

type crate struct {
	ID      string  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Kind    string  `json:"kind"` // health or ammo
	Content string  `json:"content,omitempty"`
	Falling bool    `json:"falling"`
}

type aimState struct {
	Weapon string  `json:"weapon"`
	Angle  float64 `json:"angle"`
	Power  float64 `json:"power"`
}

type state struct {
	Players     []engine.Participant `json:"players"`
	TurnCount   int                  `json:"turn"`
	Phase       string               `json:"phase"`
	Terrain     *Terrain             `json:"terrain"`
	Worms       []*worm              `json:"worms"`
	Projectiles []*projectile        `json:"projectiles"`
	Crates      []*crate             `json:"crates"`
	Wind        float64              `json:"wind"`
	// Teams maps player id to team id. Solo players get their own id, so
	// every map key is a team of at least one.
	Teams      map[string]string `json:"teams"`
	Rotation   rotation.Rotation `json:"rotation"`
	ActiveWorm map[string]int    `json:"activeWorm"`
	MovesLeft  int               `json:"movesLeft"`
	Aim        *aimState         `json:"aim,omitempty"`
	// RetreatUntil is the wall-clock deadline stamped when the retreat
	// window opens. It is only ever compared against the next advance
	// signal's timestamp.
	RetreatUntil    int64                    `json:"retreatUntil,omitempty"`
	RoundTurns      int                      `json:"roundTurns"`
	SuddenDeath     bool                     `json:"suddenDeath"`
	SuddenDeathMode string                   `json:"suddenDeathMode"`
	Ammo            map[string]map[string]int `json:"ammo"`
	DamageDealt     map[string]int           `json:"damageDealt"`
	Overrides       map[string]engine.Config `json:"weaponOverrides,omitempty"`
	AutoplayTicks   int                      `json:"autoplayTicks"`
	Over            bool                     `json:"over"`
	WinnerID        string                   `json:"winner,omitempty"`
	NextID          int                      `json:"nextId"`
	RNG             *engine.Rand             `json:"rng"`
}

type match struct {
	st state
	// npcDepth bounds chained synthetic turns within one external call;
	// the next advance signal resumes a chain that hit the bound.
	npcDepth int
}

type module struct{}

func init() {
	engine.Register(module{})
}

func (module) Slug() string       { return Slug }
func (module) Bounds() (int, int) { return 2, 4 }

func (module) NewMatch(players []engine.Participant, cfg engine.Config, rng *engine.Rand) (engine.Match, error) {
	width := cfg.Int("map_width", defaultWidth)
	if width < 40 {
		width = 40
	}
	wormsPer := cfg.Int("worms_per_player", defaultWormsPerPlayer)
	if wormsPer < 1 {
		wormsPer = 1
	}
	mode := cfg.String("sudden_death", SuddenDeathWaterRise)
	switch mode {
	case SuddenDeathWaterRise, SuddenDeathHPClamp, SuddenDeathUniformDamage:
	default:
		return nil, fmt.Errorf("artillery: unknown sudden death mode %q", mode)
	}

	st := state{
		Players:         players,
		Phase:           phaseMoving,
		Terrain:         generateTerrain(width, cfg.Float("water_level", defaultWaterLevel), rng),
		Teams:           teamAssignments(players, cfg),
		Rotation:        rotation.New(participantIDs(players)),
		ActiveWorm:      make(map[string]int, len(players)),
		MovesLeft:       movesPerTurn,
		RoundTurns:      cfg.Int("round_turns", defaultRoundTurns),
		SuddenDeathMode: mode,
		Ammo:            make(map[string]map[string]int, len(players)),
		DamageDealt:     make(map[string]int, len(players)),
		Overrides:       weaponOverrides(cfg),
		AutoplayTicks:   cfg.Int("autoplay_ceiling", defaultAutoplayTicks),
		RNG:             rng,
	}

	m := &match{st: st}
	total := len(players) * wormsPer
	spacing := float64(width) / float64(total+1)
	for s := 0; s < total; s++ {
		p := players[s%len(players)]
		x := spacing*float64(s+1) + m.st.RNG.Jitter(spacing/4)
		if x < 1 {
			x = 1
		}
		if x > float64(width)-1 {
			x = float64(width) - 1
		}
		m.st.Worms = append(m.st.Worms, &worm{
			ID:       m.mintID("worm"),
			PlayerID: p.ID,
			TeamID:   m.st.Teams[p.ID],
			X:        x,
			Y:        m.st.Terrain.HeightAt(x),
			HP:       wormMaxHP,
			MaxHP:    wormMaxHP,
			Alive:    true,
		})
	}
	for _, p := range players {
		m.st.ActiveWorm[p.ID] = 0
		m.st.Ammo[p.ID] = startingAmmo(m.st.Overrides)
		m.st.DamageDealt[p.ID] = 0
	}
	m.st.Wind = m.st.RNG.Jitter(maxWind)
	return m, nil
}

func (module) DecodeMatch(data json.RawMessage) (engine.Match, error) {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("artillery: decode state: %w", err)
	}
	if st.ActiveWorm == nil {
		st.ActiveWorm = make(map[string]int)
	}
	if st.Ammo == nil {
		st.Ammo = make(map[string]map[string]int)
	}
	if st.DamageDealt == nil {
		st.DamageDealt = make(map[string]int)
	}
	if st.Teams == nil {
		st.Teams = make(map[string]string, len(st.Players))
		for _, p := range st.Players {
			st.Teams[p.ID] = p.ID
		}
	}
	return &match{st: st}, nil
}

// teamAssignments reads the optional teams table from config. Unlisted
// players stand alone as their own team.
func teamAssignments(players []engine.Participant, cfg engine.Config) map[string]string {
	teams := make(map[string]string, len(players))
	for _, p := range players {
		teams[p.ID] = p.ID
	}
	raw, ok := cfg["teams"].(map[string]any)
	if !ok {
		return teams
	}
	for id, v := range raw {
		name, ok := v.(string)
		if !ok || name == "" {
			continue
		}
		if _, known := teams[id]; known {
			teams[id] = name
		}
	}
	return teams
}

func participantIDs(players []engine.Participant) []string {
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	return ids
}

func (m *match) Turn() int                          { return m.st.TurnCount }
func (m *match) Participants() []engine.Participant { return m.st.Players }
func (m *match) Over() bool                         { return m.st.Over }
func (m *match) Winner() (string, bool)             { return m.st.WinnerID, m.st.WinnerID != "" }

func (m *match) Phase() string {
	if m.st.Over {
		return phaseFinished
	}
	return m.st.Phase
}

func (m *match) Eliminated(playerID string) bool {
	for _, w := range m.st.Worms {
		if w.PlayerID == playerID && w.Alive {
			return false
		}
	}
	return true
}

func (m *match) Scores() map[string]int {
	scores := make(map[string]int, len(m.st.Players))
	for _, p := range m.st.Players {
		scores[p.ID] = m.st.DamageDealt[p.ID]
	}
	for _, w := range m.st.Worms {
		if w.Alive {
			scores[w.PlayerID] += w.HP
		}
	}
	if m.st.WinnerID != "" {
		for _, p := range m.st.Players {
			if m.teamOf(p.ID) == m.st.WinnerID {
				scores[p.ID] += 100
			}
		}
	}
	return scores
}

func (m *match) Encode() (json.RawMessage, error) { return json.Marshal(m.st) }

// View redacts the random source and every other player's ammo counts. The
// host view (empty player id) sees everything but the source.
func (m *match) View(playerID string) (json.RawMessage, error) {
	view := m.st
	view.RNG = nil
	if playerID != "" {
		ammo := make(map[string]map[string]int, 1)
		if own, ok := m.st.Ammo[playerID]; ok {
			ammo[playerID] = own
		}
		view.Ammo = ammo
	}
	return json.Marshal(view)
}

func (m *match) synthetic(id string) bool {
	for _, p := range m.st.Players {
		if p.ID == id {
			return p.Synthetic
		}
	}
	return false
}

func (m *match) mintID(prefix string) string {
	m.st.NextID++
	return fmt.Sprintf("%s-%d", prefix, m.st.NextID)
}

// teamOf resolves a player's team, falling back to the player itself for
// states encoded before teams existed.
func (m *match) teamOf(playerID string) string {
	if team, ok := m.st.Teams[playerID]; ok && team != "" {
		return team
	}
	return playerID
}

// aliveTeams lists the teams still fielding a living worm, in seat order.
func (m *match) aliveTeams() []string {
	seen := make(map[string]bool, len(m.st.Players))
	var teams []string
	for _, p := range m.st.Players {
		if m.Eliminated(p.ID) {
			continue
		}
		team := m.teamOf(p.ID)
		if !seen[team] {
			seen[team] = true
			teams = append(teams, team)
		}
	}
	return teams
}

// wormsOf lists one player's worms in spawn order.
func (m *match) wormsOf(playerID string) []*worm {
	var owned []*worm
	for _, w := range m.st.Worms {
		if w.PlayerID == playerID {
			owned = append(owned, w)
		}
	}
	return owned
}

// activeWorm resolves the player's currently controlled worm, falling back
// to the first living one if the indexed worm has died mid-turn.
func (m *match) activeWorm(playerID string) *worm {
	owned := m.wormsOf(playerID)
	if len(owned) == 0 {
		return nil
	}
	idx := m.st.ActiveWorm[playerID] % len(owned)
	if owned[idx].Alive {
		return owned[idx]
	}
	for _, w := range owned {
		if w.Alive {
			return w
		}
	}
	return nil
}

func (m *match) HandleAction(playerID string, action engine.Action) ([]engine.Event, error) {
	if m.st.Over {
		return nil, engine.ErrGameOver
	}

	// The advance signal is exempt from turn ownership so any participant
	// or the host itself can drive resolution.
	if action.Type == "tick" {
		events, err := m.tickAction(action)
		if err != nil {
			return nil, err
		}
		m.st.TurnCount++
		return events, nil
	}

	if m.st.Rotation.Active() != playerID {
		return nil, engine.ErrNotYourTurn
	}

	var events []engine.Event
	var err error
	switch action.Type {
	case "move":
		events, err = m.move(playerID, action)
	case "jump":
		events, err = m.jump(playerID, action)
	case "aim":
		events, err = m.aim(playerID, action)
	case "fire":
		events, err = m.fire(playerID, action)
	case "end_turn":
		events, err = m.endTurn(playerID, action)
	case "teleport":
		events, err = m.teleport(playerID, action)
	case "grapple":
		events, err = m.grapple(playerID, action)
	case "girder":
		events, err = m.girder(playerID, action)
	case "blowtorch":
		events, err = m.blowtorch(playerID, action)
	default:
		return nil, engine.ErrUnknownAction
	}
	if err != nil {
		return nil, err
	}
	if m.st.Phase == phaseBetween {
		m.st.Phase = phaseMoving
	}
	m.st.TurnCount++
	return events, nil
}

func floatArg(action engine.Action, key string) (float64, error) {
	raw, ok := action.Payload[key]
	if !ok {
		return 0, engine.Precondition(fmt.Sprintf("missing %s", key))
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, engine.Precondition(fmt.Sprintf("%s must be a number", key))
	}
}

func stringArg(action engine.Action, key string) (string, error) {
	raw, ok := action.Payload[key]
	if !ok {
		return "", engine.Precondition(fmt.Sprintf("missing %s", key))
	}
	v, ok := raw.(string)
	if !ok || v == "" {
		return "", engine.Precondition(fmt.Sprintf("%s must be a string", key))
	}
	return v, nil
}

// requirePhase gates an action on the current phase. A fresh turn still
// sitting in between_turns counts as moving.
func (m *match) requirePhase(phases ...string) error {
	current := m.st.Phase
	if current == phaseBetween {
		current = phaseMoving
	}
	for _, p := range phases {
		if current == p {
			return nil
		}
	}
	return engine.Precondition(fmt.Sprintf("not allowed during %s", m.st.Phase))
}

func (m *match) move(playerID string, action engine.Action) ([]engine.Event, error) {
	if err := m.requirePhase(phaseMoving, phaseRetreat); err != nil {
		return nil, err
	}
	if m.st.MovesLeft <= 0 {
		return nil, engine.Precondition("no movement left this turn")
	}
	dx, err := floatArg(action, "dx")
	if err != nil {
		return nil, err
	}
	if dx == 0 || math.Abs(dx) > maxStep {
		return nil, engine.Precondition(fmt.Sprintf("dx must be within ±%.1f", maxStep))
	}
	wm := m.activeWorm(playerID)
	nx := wm.X + dx
	if !m.st.Terrain.InBounds(nx) {
		return nil, engine.Precondition("cannot walk off the map")
	}
	nh := m.st.Terrain.HeightAt(nx)
	if nh-wm.Y > maxClimb {
		return nil, engine.Precondition("slope too steep to climb")
	}
	drop := wm.Y - nh
	wm.X = nx
	wm.Y = nh
	m.st.MovesLeft--

	events := []engine.Event{engine.NewEvent("worm_moved", playerID, map[string]any{
		"worm": wm.ID, "x": wm.X, "y": wm.Y,
	}, action.Timestamp)}
	events = append(events, m.applyLanding(wm, drop, action)...)
	if wm.Alive {
		events = append(events, m.collectCrates(playerID, wm, action)...)
	}
	return events, nil
}

func (m *match) jump(playerID string, action engine.Action) ([]engine.Event, error) {
	if err := m.requirePhase(phaseMoving, phaseRetreat); err != nil {
		return nil, err
	}
	if m.st.MovesLeft < 2 {
		return nil, engine.Precondition("jumping takes two moves")
	}
	dx, err := floatArg(action, "dx")
	if err != nil {
		return nil, err
	}
	dir := 1.0
	if dx < 0 {
		dir = -1.0
	}
	wm := m.activeWorm(playerID)
	nx := wm.X + dir*jumpDistance
	if !m.st.Terrain.InBounds(nx) {
		return nil, engine.Precondition("cannot jump off the map")
	}
	nh := m.st.Terrain.HeightAt(nx)
	if nh-wm.Y > jumpClimb {
		return nil, engine.Precondition("ledge too high even for a jump")
	}
	drop := wm.Y - nh
	wm.X = nx
	wm.Y = nh
	m.st.MovesLeft -= 2

	events := []engine.Event{engine.NewEvent("worm_jumped", playerID, map[string]any{
		"worm": wm.ID, "x": wm.X, "y": wm.Y,
	}, action.Timestamp)}
	events = append(events, m.applyLanding(wm, drop, action)...)
	if wm.Alive {
		events = append(events, m.collectCrates(playerID, wm, action)...)
	}
	return events, nil
}

func (m *match) aim(playerID string, action engine.Action) ([]engine.Event, error) {
	if err := m.requirePhase(phaseMoving, phaseAiming); err != nil {
		return nil, err
	}
	slug, err := stringArg(action, "weapon")
	if err != nil {
		return nil, err
	}
	w, err := weaponFor(slug, m.st.Overrides)
	if err != nil || slug == clusterFragmentSlug {
		return nil, engine.Precondition(fmt.Sprintf("unknown weapon %q", slug))
	}
	if w.Category == CategoryUtility {
		return nil, engine.Precondition(fmt.Sprintf("%s is a utility, not a weapon", slug))
	}
	if m.st.Ammo[playerID][slug] == 0 {
		return nil, engine.Precondition(fmt.Sprintf("no %s ammo left", slug))
	}
	angle, err := floatArg(action, "angle")
	if err != nil {
		return nil, err
	}
	power, err := floatArg(action, "power")
	if err != nil {
		return nil, err
	}
	if power <= 0 || power > 1 {
		return nil, engine.Precondition("power must be in (0, 1]")
	}

	m.st.Aim = &aimState{Weapon: slug, Angle: angle, Power: power}
	m.st.Phase = phaseAiming
	return []engine.Event{engine.NewEvent("aimed", playerID, map[string]any{
		"weapon": slug, "angle": angle, "power": power,
	}, action.Timestamp)}, nil
}

// fire resolves the aimed weapon: hitscan and melee settle instantly, area
// strikes drop from the sky, everything else enters the projectile
// pipeline. The retreat window opens stamped with the action's wall clock.
func (m *match) fire(playerID string, action engine.Action) ([]engine.Event, error) {
	if err := m.requirePhase(phaseAiming); err != nil {
		return nil, err
	}
	a := m.st.Aim
	w, err := weaponFor(a.Weapon, m.st.Overrides)
	if err != nil {
		return nil, engine.Precondition(err.Error())
	}
	if m.st.Ammo[playerID][a.Weapon] == 0 {
		return nil, engine.Precondition(fmt.Sprintf("no %s ammo left", a.Weapon))
	}
	if m.st.Ammo[playerID][a.Weapon] > 0 {
		m.st.Ammo[playerID][a.Weapon]--
	}

	wm := m.activeWorm(playerID)
	events := []engine.Event{engine.NewEvent("fired", playerID, map[string]any{
		"weapon": a.Weapon, "angle": a.Angle, "power": a.Power,
	}, action.Timestamp)}

	switch w.Category {
	case CategoryHitscan:
		events = append(events, m.resolveHitscan(playerID, wm, w, a, action)...)
	case CategoryMelee:
		events = append(events, m.resolveMelee(playerID, wm, w, a, action)...)
	case CategoryPlaced:
		p := &projectile{
			ID: m.mintID("shot"), Weapon: a.Weapon, Owner: playerID,
			X: wm.X, Y: wm.Y + 0.5, Bounciness: w.Bounciness,
			Fuse: w.FuseTicks, Active: true,
		}
		m.st.Projectiles = append(m.st.Projectiles, p)
	case CategoryAreaStrike:
		targetX := wm.X + math.Cos(a.Angle)*a.Power*60
		dropY := m.st.Terrain.Highest() + 25
		for i := 0; i < w.ShotCount; i++ {
			offset := float64(i-w.ShotCount/2) * 3
			m.st.Projectiles = append(m.st.Projectiles, &projectile{
				ID: m.mintID("shot"), Weapon: a.Weapon, Owner: playerID,
				X: targetX + offset, Y: dropY, VY: -2,
				Bounciness: w.Bounciness, Active: true,
			})
		}
	default:
		speed := a.Power * maxLaunchSpeed
		for i := 0; i < w.ShotCount; i++ {
			angle := a.Angle
			if w.ShotCount > 1 {
				angle += m.st.RNG.Jitter(0.08)
			}
			m.st.Projectiles = append(m.st.Projectiles, &projectile{
				ID: m.mintID("shot"), Weapon: a.Weapon, Owner: playerID,
				X: wm.X, Y: wm.Y + 1,
				VX: math.Cos(angle) * speed, VY: math.Sin(angle) * speed,
				Bounciness: w.Bounciness, Fuse: w.FuseTicks, Active: true,
			})
		}
	}

	m.st.Aim = nil
	m.st.Phase = phaseRetreat
	m.st.RetreatUntil = action.Timestamp.UnixMilli() + retreatWindowMillis
	events = append(events, engine.NewEvent("retreat_started", playerID, map[string]any{
		"until": m.st.RetreatUntil,
	}, action.Timestamp))
	return events, nil
}

func (m *match) endTurn(playerID string, action engine.Action) ([]engine.Event, error) {
	if err := m.requirePhase(phaseMoving, phaseAiming, phaseRetreat); err != nil {
		return nil, err
	}
	events := []engine.Event{engine.NewEvent("turn_ended", playerID, nil, action.Timestamp)}
	if m.settled() {
		events = append(events, m.advanceTurn(action)...)
	} else {
		m.st.Phase = phaseResolving
	}
	return events, nil
}

// consumeUtility checks and spends one round of a utility.
func (m *match) consumeUtility(playerID, slug string) error {
	if m.st.Ammo[playerID][slug] == 0 {
		return engine.Precondition(fmt.Sprintf("no %s uses left", slug))
	}
	if m.st.Ammo[playerID][slug] > 0 {
		m.st.Ammo[playerID][slug]--
	}
	return nil
}

// teleport relocates the active worm anywhere on the map and ends the turn.
func (m *match) teleport(playerID string, action engine.Action) ([]engine.Event, error) {
	if err := m.requirePhase(phaseMoving); err != nil {
		return nil, err
	}
	x, err := floatArg(action, "x")
	if err != nil {
		return nil, err
	}
	if !m.st.Terrain.InBounds(x) {
		return nil, engine.Precondition("destination outside the map")
	}
	if err := m.consumeUtility(playerID, "teleport"); err != nil {
		return nil, err
	}
	wm := m.activeWorm(playerID)
	wm.X = x
	wm.Y = m.st.Terrain.HeightAt(x)
	events := []engine.Event{engine.NewEvent("teleported", playerID, map[string]any{
		"worm": wm.ID, "x": wm.X, "y": wm.Y,
	}, action.Timestamp)}
	events = append(events, m.drownCheck(wm, action)...)
	events = append(events, m.advanceTurn(action)...)
	return events, nil
}

// grapple swings the worm to an anchor point within rope range. It is the
// one utility that does not end the turn.
func (m *match) grapple(playerID string, action engine.Action) ([]engine.Event, error) {
	if err := m.requirePhase(phaseMoving); err != nil {
		return nil, err
	}
	x, err := floatArg(action, "x")
	if err != nil {
		return nil, err
	}
	wm := m.activeWorm(playerID)
	w, _ := weaponFor("grapple", m.st.Overrides)
	if math.Abs(x-wm.X) > w.Range {
		return nil, engine.Precondition(fmt.Sprintf("anchor beyond rope range %.0f", w.Range))
	}
	if !m.st.Terrain.InBounds(x) {
		return nil, engine.Precondition("anchor outside the map")
	}
	if err := m.consumeUtility(playerID, "grapple"); err != nil {
		return nil, err
	}
	wm.X = x
	wm.Y = m.st.Terrain.HeightAt(x)
	events := []engine.Event{engine.NewEvent("grappled", playerID, map[string]any{
		"worm": wm.ID, "x": wm.X, "y": wm.Y,
	}, action.Timestamp)}
	events = append(events, m.drownCheck(wm, action)...)
	if wm.Alive {
		events = append(events, m.collectCrates(playerID, wm, action)...)
	}
	return events, nil
}

// girder raises a platform near the worm and ends the turn. This is one of
// the explicit exemptions to the heights-only-decrease rule.
func (m *match) girder(playerID string, action engine.Action) ([]engine.Event, error) {
	if err := m.requirePhase(phaseMoving); err != nil {
		return nil, err
	}
	x, err := floatArg(action, "x")
	if err != nil {
		return nil, err
	}
	wm := m.activeWorm(playerID)
	w, _ := weaponFor("girder", m.st.Overrides)
	if math.Abs(x-wm.X) > w.Range {
		return nil, engine.Precondition(fmt.Sprintf("girder must be placed within %.0f", w.Range))
	}
	if !m.st.Terrain.InBounds(x) {
		return nil, engine.Precondition("girder outside the map")
	}
	if err := m.consumeUtility(playerID, "girder"); err != nil {
		return nil, err
	}
	level := m.st.Terrain.HeightAt(x) + girderLift
	m.st.Terrain.Raise(x, level, girderHalfWidth)
	events := []engine.Event{engine.NewEvent("girder_placed", playerID, map[string]any{
		"x": x, "level": level,
	}, action.Timestamp)}
	events = append(events, m.advanceTurn(action)...)
	return events, nil
}

// blowtorch digs forward through the hillside, carrying the worm along, and
// ends the turn.
func (m *match) blowtorch(playerID string, action engine.Action) ([]engine.Event, error) {
	if err := m.requirePhase(phaseMoving); err != nil {
		return nil, err
	}
	dx, err := floatArg(action, "dx")
	if err != nil {
		return nil, err
	}
	dir := 1.0
	if dx < 0 {
		dir = -1.0
	}
	if err := m.consumeUtility(playerID, "blowtorch"); err != nil {
		return nil, err
	}
	wm := m.activeWorm(playerID)
	digX := wm.X + dir*torchAdvance
	if !m.st.Terrain.InBounds(digX) {
		digX = wm.X
	}
	m.st.Terrain.Tunnel(digX, torchDepth, torchHalfWidth)
	wm.X = digX
	wm.Y = m.st.Terrain.HeightAt(digX)
	events := []engine.Event{engine.NewEvent("tunnel_dug", playerID, map[string]any{
		"worm": wm.ID, "x": wm.X, "y": wm.Y,
	}, action.Timestamp)}
	events = append(events, m.drownCheck(wm, action)...)
	events = append(events, m.advanceTurn(action)...)
	return events, nil
}

func (m *match) collectCrates(playerID string, wm *worm, action engine.Action) []engine.Event {
	var events []engine.Event
	kept := m.st.Crates[:0]
	for _, c := range m.st.Crates {
		if c.Falling || math.Abs(c.X-wm.X) > cratePickupRange || math.Abs(c.Y-wm.Y) > cratePickupRange {
			kept = append(kept, c)
			continue
		}
		switch c.Kind {
		case "health":
			wm.HP += crateHealthBoost
			if wm.HP > wm.MaxHP {
				wm.HP = wm.MaxHP
			}
		case "ammo":
			if c.Content != "" {
				if m.st.Ammo[playerID][c.Content] >= 0 {
					m.st.Ammo[playerID][c.Content]++
				}
			}
		}
		events = append(events, engine.NewEvent("crate_collected", playerID, map[string]any{
			"crate": c.ID, "kind": c.Kind, "content": c.Content,
		}, action.Timestamp))
	}
	m.st.Crates = kept
	return events
}
