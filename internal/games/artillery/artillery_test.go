package artillery

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
)

func newDuel(t *testing.T, cfg engine.Config, players ...string) *match {
	t.Helper()
	parts := make([]engine.Participant, len(players))
	for i, id := range players {
		parts[i] = engine.Participant{ID: id}
	}
	m, err := module{}.NewMatch(parts, cfg, engine.NewRand("artillery-test", Slug))
	if err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}
	return m.(*match)
}

func at(sec int64, actionType string, payload map[string]any) engine.Action {
	return engine.Action{Type: actionType, Payload: payload, Timestamp: time.Unix(1700000000+sec, 0)}
}

func firstWormOf(m *match, playerID string) *worm {
	for _, w := range m.st.Worms {
		if w.PlayerID == playerID {
			return w
		}
	}
	return nil
}

func TestAimFireOpensRetreatThenResolves(t *testing.T) {
	m := newDuel(t, engine.Config{"worms_per_player": 1}, "a", "b")

	if _, err := m.HandleAction("a", at(0, "aim", map[string]any{
		"weapon": "bazooka", "angle": math.Pi / 4, "power": 0.5,
	})); err != nil {
		t.Fatalf("unexpected aim error: %v", err)
	}
	if m.st.Phase != phaseAiming {
		t.Fatalf("expected aiming phase, got %s", m.st.Phase)
	}

	if _, err := m.HandleAction("a", at(1, "fire", nil)); err != nil {
		t.Fatalf("unexpected fire error: %v", err)
	}
	if m.st.Phase != phaseRetreat {
		t.Fatalf("expected retreat phase after firing, got %s", m.st.Phase)
	}
	if len(m.st.Projectiles) != 1 {
		t.Fatalf("expected one projectile in flight, got %d", len(m.st.Projectiles))
	}

	// The window was stamped at fire time and only the advance signal's
	// clock matters.
	events, err := m.HandleAction("b", at(2, "tick", nil))
	if err != nil {
		t.Fatalf("unexpected tick error: %v", err)
	}
	if m.st.Phase != phaseRetreat {
		t.Fatalf("expected retreat to hold inside the window, got %s", m.st.Phase)
	}
	if len(events) != 1 || events[0].Type != "retreat_open" {
		t.Fatalf("expected retreat_open, got %+v", events)
	}

	if _, err := m.HandleAction("b", at(10, "tick", nil)); err != nil {
		t.Fatalf("unexpected tick error: %v", err)
	}
	if m.st.Phase != phaseResolving && m.st.Phase != phaseBetween && !m.st.Over {
		t.Fatalf("expected resolution to begin after the window, got %s", m.st.Phase)
	}
}

func TestTickIsExemptFromTurnOwnership(t *testing.T) {
	m := newDuel(t, nil, "a", "b")

	if _, err := m.HandleAction("b", at(0, "move", map[string]any{"dx": 1.0})); !errors.Is(err, engine.ErrNotYourTurn) {
		t.Fatalf("expected ownership rejection for b's move, got %v", err)
	}
	if _, err := m.HandleAction("b", at(0, "tick", nil)); err != nil {
		t.Fatalf("expected the advance signal from b to pass, got %v", err)
	}
}

func TestMovePreconditions(t *testing.T) {
	m := newDuel(t, nil, "a", "b")

	var pre *engine.PreconditionError
	if _, err := m.HandleAction("a", at(0, "move", map[string]any{"dx": maxStep + 1})); !errors.As(err, &pre) {
		t.Fatalf("expected oversized step to be rejected, got %v", err)
	}
	if _, err := m.HandleAction("a", at(0, "move", nil)); !errors.As(err, &pre) {
		t.Fatalf("expected missing dx to be rejected, got %v", err)
	}

	wm := m.activeWorm("a")
	wm.X = 0.5
	if _, err := m.HandleAction("a", at(0, "move", map[string]any{"dx": -2.0})); !errors.As(err, &pre) {
		t.Fatalf("expected walking off the map to be rejected, got %v", err)
	}
}

func TestPointBlankDetonationEliminatesAndConcludes(t *testing.T) {
	m := newDuel(t, engine.Config{"worms_per_player": 1}, "a", "b")
	va := firstWormOf(m, "a")
	vb := firstWormOf(m, "b")
	va.X, va.Y = 10, m.st.Terrain.HeightAt(10)
	vb.X, vb.Y = 150, m.st.Terrain.HeightAt(150)
	vb.HP = 40
	groundBefore := m.st.Terrain.HeightAt(vb.X)

	m.st.Projectiles = append(m.st.Projectiles, &projectile{
		ID: "shot-test", Weapon: "dynamite", Owner: "a",
		X: vb.X, Y: vb.Y + 0.2, Fuse: 1, Active: true,
	})
	m.st.Phase = phaseResolving

	var collected []engine.Event
	for i := int64(0); i < 50 && !m.st.Over; i++ {
		events, err := m.HandleAction("a", at(i, "tick", nil))
		if err != nil {
			t.Fatalf("unexpected tick error: %v", err)
		}
		collected = append(collected, events...)
	}

	if vb.Alive {
		t.Fatalf("expected a point-blank dynamite to finish a 40hp worm")
	}
	if !m.st.Over {
		t.Fatalf("expected the match to conclude with one team left")
	}
	if winner, _ := m.Winner(); winner != "a" {
		t.Fatalf("expected a to win, got %q", winner)
	}
	if m.st.Terrain.HeightAt(vb.X) >= groundBefore {
		t.Fatalf("expected a crater under the blast")
	}

	seen := map[string]bool{}
	for _, ev := range collected {
		seen[ev.Type] = true
	}
	for _, want := range []string{"exploded", "worm_damaged", "worm_eliminated", "match_won"} {
		if !seen[want] {
			t.Fatalf("expected %s event, got %+v", want, collected)
		}
	}
}

func TestDetonationDamageFallsOffWithDistance(t *testing.T) {
	m := newDuel(t, engine.Config{"worms_per_player": 1}, "a", "b")
	va := firstWormOf(m, "a")
	vb := firstWormOf(m, "b")
	va.X, va.Y = 10, 50
	vb.X, vb.Y = 100, 50
	m.st.Terrain.Raise(100, 50, 10) // flat shelf so distance is exact

	w, err := weaponFor("bazooka", nil)
	if err != nil {
		t.Fatalf("unexpected arsenal error: %v", err)
	}
	p := &projectile{ID: "p", Weapon: "bazooka", Owner: "a", X: 103, Y: 50}
	events := m.detonate(p, w, at(0, "tick", nil))

	effR := math.Max(w.Radius, minEffectiveRadius)
	want := int(math.Round(w.Damage * (1 - 3/effR)))
	if got := vb.MaxHP - vb.HP; got != want {
		t.Fatalf("expected %d falloff damage at distance 3, got %d", want, got)
	}
	if m.st.DamageDealt["a"] != want {
		t.Fatalf("expected damage credit for the shooter")
	}
	damaged := false
	for _, ev := range events {
		if ev.Type == "worm_damaged" {
			damaged = true
		}
	}
	if !damaged {
		t.Fatalf("expected worm_damaged event, got %+v", events)
	}
}

func TestTerrainOnlyShrinksThroughAFullExchange(t *testing.T) {
	m := newDuel(t, engine.Config{"worms_per_player": 1}, "a", "b")
	before := make([]float64, len(m.st.Terrain.Heights))
	copy(before, m.st.Terrain.Heights)

	if _, err := m.HandleAction("a", at(0, "aim", map[string]any{
		"weapon": "grenade", "angle": math.Pi / 3, "power": 0.7,
	})); err != nil {
		t.Fatalf("unexpected aim error: %v", err)
	}
	if _, err := m.HandleAction("a", at(0, "fire", nil)); err != nil {
		t.Fatalf("unexpected fire error: %v", err)
	}
	for i := int64(4); i < 200 && !m.settled() && !m.st.Over; i++ {
		if _, err := m.HandleAction("a", at(i, "tick", nil)); err != nil {
			t.Fatalf("unexpected tick error: %v", err)
		}
	}

	for i, h := range m.st.Terrain.Heights {
		if h > before[i] {
			t.Fatalf("column %d gained material without a utility: %f -> %f", i, before[i], h)
		}
	}
}

func TestGrappleKeepsTheTurn(t *testing.T) {
	m := newDuel(t, nil, "a", "b")
	wm := m.activeWorm("a")
	targetX := wm.X + 10

	if _, err := m.HandleAction("a", at(0, "grapple", map[string]any{"x": targetX})); err != nil {
		t.Fatalf("unexpected grapple error: %v", err)
	}
	if m.st.Rotation.Active() != "a" {
		t.Fatalf("grapple must not end the turn")
	}
	if wm.X != targetX {
		t.Fatalf("expected the worm at the anchor, got %f", wm.X)
	}
	if m.st.Ammo["a"]["grapple"] != 2 {
		t.Fatalf("expected one rope spent, got %d", m.st.Ammo["a"]["grapple"])
	}
}

func TestGirderRaisesTerrainAndEndsTurn(t *testing.T) {
	m := newDuel(t, nil, "a", "b")
	wm := m.activeWorm("a")
	x := wm.X + 5
	before := m.st.Terrain.HeightAt(x)

	if _, err := m.HandleAction("a", at(0, "girder", map[string]any{"x": x})); err != nil {
		t.Fatalf("unexpected girder error: %v", err)
	}
	if m.st.Terrain.HeightAt(x) <= before {
		t.Fatalf("expected the girder to add material")
	}
	if !m.st.Over && m.st.Rotation.Active() == "a" {
		t.Fatalf("expected the girder to end the turn")
	}
}

func TestTeleportEndsTurn(t *testing.T) {
	m := newDuel(t, nil, "a", "b")

	if _, err := m.HandleAction("a", at(0, "teleport", map[string]any{"x": 30.0})); err != nil {
		t.Fatalf("unexpected teleport error: %v", err)
	}
	if !m.st.Over && m.st.Rotation.Active() == "a" {
		t.Fatalf("expected teleport to end the turn")
	}
	if m.st.Ammo["a"]["teleport"] != 0 {
		t.Fatalf("expected the single teleport to be spent")
	}
	var pre *engine.PreconditionError
	m.st.Rotation.Index = 0 // hand the turn back for the re-use attempt
	m.st.Phase = phaseMoving
	if _, err := m.HandleAction("a", at(1, "teleport", map[string]any{"x": 40.0})); !errors.As(err, &pre) {
		t.Fatalf("expected exhausted teleport to be rejected, got %v", err)
	}
}

func TestAmmoGatesAiming(t *testing.T) {
	m := newDuel(t, nil, "a", "b")
	m.st.Ammo["a"]["airstrike"] = 0

	var pre *engine.PreconditionError
	if _, err := m.HandleAction("a", at(0, "aim", map[string]any{
		"weapon": "airstrike", "angle": 0.5, "power": 0.8,
	})); !errors.As(err, &pre) {
		t.Fatalf("expected empty airstrike to be rejected, got %v", err)
	}
	if _, err := m.HandleAction("a", at(0, "aim", map[string]any{
		"weapon": "grapple", "angle": 0.5, "power": 0.8,
	})); !errors.As(err, &pre) {
		t.Fatalf("expected utilities to be rejected as weapons, got %v", err)
	}
}

func TestWeaponOverridesMergeAtRead(t *testing.T) {
	overrides := map[string]engine.Config{
		"bazooka": {"damage": 99.0, "radius": 2.0},
	}
	w, err := weaponFor("bazooka", overrides)
	if err != nil {
		t.Fatalf("unexpected arsenal error: %v", err)
	}
	if w.Damage != 99 || w.Radius != 2 {
		t.Fatalf("expected overridden values, got %+v", w)
	}
	if arsenal["bazooka"].Damage == 99 {
		t.Fatalf("override must not write through to the shared defaults")
	}
}

func TestViewHidesOtherPlayersAmmo(t *testing.T) {
	m := newDuel(t, nil, "a", "b")

	blob, err := m.View("a")
	if err != nil {
		t.Fatalf("unexpected view error: %v", err)
	}
	var view struct {
		Ammo map[string]map[string]int `json:"ammo"`
	}
	if err := json.Unmarshal(blob, &view); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(view.Ammo) != 1 {
		t.Fatalf("expected only the viewer's ammo, got %d tables", len(view.Ammo))
	}
	if _, ok := view.Ammo["a"]; !ok {
		t.Fatalf("expected the viewer's own ammo present")
	}

	host, err := m.View("")
	if err != nil {
		t.Fatalf("unexpected host view error: %v", err)
	}
	var hostView struct {
		Ammo map[string]map[string]int `json:"ammo"`
	}
	if err := json.Unmarshal(host, &hostView); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(hostView.Ammo) != 2 {
		t.Fatalf("expected the host view unredacted, got %d tables", len(hostView.Ammo))
	}
}

func TestSameSeedSameBattlefield(t *testing.T) {
	a := newDuel(t, nil, "a", "b")
	b := newDuel(t, nil, "a", "b")
	blobA, err := a.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	blobB, err := b.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	if string(blobA) != string(blobB) {
		t.Fatalf("identical seeds produced diverging battlefields")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := newDuel(t, nil, "a", "b")
	if _, err := m.HandleAction("a", at(0, "aim", map[string]any{
		"weapon": "bazooka", "angle": 0.9, "power": 0.6,
	})); err != nil {
		t.Fatalf("unexpected aim error: %v", err)
	}

	blob, err := m.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	resumed, err := module{}.DecodeMatch(blob)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	again, err := resumed.Encode()
	if err != nil {
		t.Fatalf("unexpected re-encode error: %v", err)
	}
	if string(blob) != string(again) {
		t.Fatalf("state did not survive the round trip")
	}
}

func TestSyntheticTurnResolvesInline(t *testing.T) {
	game, ok := engine.Lookup(Slug)
	if !ok {
		t.Fatalf("artillery module not registered")
	}
	eng, err := engine.New(game, []string{"human"}, engine.Options{Seed: "artillery-npc"})
	if err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}
	participants := eng.Participants()
	if len(participants) != 2 || !participants[1].Synthetic {
		t.Fatalf("expected one synthetic opponent, got %+v", participants)
	}

	// Every end_turn hands the whole synthetic turn back resolved, so the
	// human can always act again immediately.
	for i := int64(0); i < 10 && !eng.Over(); i++ {
		res := eng.HandleAction("human", at(i*20, "end_turn", nil))
		if !res.Success {
			t.Fatalf("end_turn %d failed: %s (%s)", i, res.Error, res.Code)
		}
	}
}

func TestSuddenDeathHPClamp(t *testing.T) {
	m := newDuel(t, engine.Config{"sudden_death": SuddenDeathHPClamp, "round_turns": 1}, "a", "b")

	events, err := m.HandleAction("a", at(0, "end_turn", nil))
	if err != nil {
		t.Fatalf("unexpected end_turn error: %v", err)
	}
	engaged := false
	for _, ev := range events {
		if ev.Type == "sudden_death" {
			engaged = true
		}
	}
	if !engaged {
		t.Fatalf("expected sudden death on an exhausted round clock, got %+v", events)
	}
	for _, w := range m.st.Worms {
		if w.Alive && w.HP != 1 {
			t.Fatalf("expected every worm clamped to 1hp, got %d", w.HP)
		}
	}
}

func TestCrateDropLandsBeforeTurnHandover(t *testing.T) {
	m := newDuel(t, nil, "a", "b")

	ev := m.spawnCrate(at(0, "tick", nil))
	if ev.Type != "crate_spawned" {
		t.Fatalf("expected crate_spawned, got %+v", ev)
	}
	if !m.settled() {
		t.Fatalf("expected the crate on the ground at spawn")
	}

	// With everything at rest the handover must complete inline instead of
	// parking the phase in resolving and rejecting the next end_turn.
	if _, err := m.HandleAction("a", at(1, "end_turn", nil)); err != nil {
		t.Fatalf("unexpected end_turn error: %v", err)
	}
	if m.st.Phase == phaseResolving {
		t.Fatalf("end_turn stalled in resolving with nothing in motion")
	}
	if m.st.Rotation.Active() != "b" {
		t.Fatalf("expected the turn handed to b, got %s", m.st.Rotation.Active())
	}
	if _, err := m.HandleAction("b", at(2, "end_turn", nil)); err != nil {
		t.Fatalf("unexpected follow-up end_turn error: %v", err)
	}
}

func TestSoloPlayersDefaultToOwnTeam(t *testing.T) {
	m := newDuel(t, nil, "a", "b")
	for _, w := range m.st.Worms {
		if w.TeamID != w.PlayerID {
			t.Fatalf("expected worm %s on team %s, got %s", w.ID, w.PlayerID, w.TeamID)
		}
	}
}

func TestTeamsShareVictoryAndScore(t *testing.T) {
	m := newDuel(t, engine.Config{
		"worms_per_player": 1,
		"teams":            map[string]any{"a": "blue", "b": "blue", "c": "red", "d": "red"},
	}, "a", "b", "c", "d")

	for _, w := range m.st.Worms {
		want := "blue"
		if w.PlayerID == "c" || w.PlayerID == "d" {
			want = "red"
		}
		if w.TeamID != want {
			t.Fatalf("expected %s's worm on team %s, got %s", w.PlayerID, want, w.TeamID)
		}
	}

	// Two living blue players must not conclude the match on their own.
	for _, w := range m.st.Worms {
		if w.PlayerID == "c" || w.PlayerID == "d" {
			w.Alive = false
			w.HP = 0
		}
	}
	m.advanceTurn(at(0, "tick", nil))

	if !m.st.Over {
		t.Fatalf("expected the match over with one team standing")
	}
	if winner, ok := m.Winner(); !ok || winner != "blue" {
		t.Fatalf("expected blue to win, got %q", winner)
	}
	scores := m.Scores()
	if scores["a"] != wormMaxHP+100 || scores["b"] != wormMaxHP+100 {
		t.Fatalf("expected both blue players credited with the win, got %+v", scores)
	}
}

func TestProjectileCarriesWeaponBounciness(t *testing.T) {
	m := newDuel(t, engine.Config{"worms_per_player": 1}, "a", "b")
	w, err := weaponFor("grenade", nil)
	if err != nil {
		t.Fatalf("unexpected arsenal error: %v", err)
	}
	if w.Bounciness <= 0 {
		t.Fatalf("expected the grenade to bounce, got %+v", w)
	}

	if _, err := m.HandleAction("a", at(0, "aim", map[string]any{
		"weapon": "grenade", "angle": 1.0, "power": 0.5,
	})); err != nil {
		t.Fatalf("unexpected aim error: %v", err)
	}
	if _, err := m.HandleAction("a", at(0, "fire", nil)); err != nil {
		t.Fatalf("unexpected fire error: %v", err)
	}
	if len(m.st.Projectiles) != 1 {
		t.Fatalf("expected one projectile, got %d", len(m.st.Projectiles))
	}
	if got := m.st.Projectiles[0].Bounciness; got != w.Bounciness {
		t.Fatalf("expected launch bounciness %f persisted, got %f", w.Bounciness, got)
	}
}

func TestResolutionNeverRaisesHP(t *testing.T) {
	m := newDuel(t, nil, "a", "b")
	snapshot := func() map[string]int {
		hp := make(map[string]int, len(m.st.Worms))
		for _, w := range m.st.Worms {
			hp[w.ID] = w.HP
		}
		return hp
	}

	if _, err := m.HandleAction("a", at(0, "aim", map[string]any{
		"weapon": "bazooka", "angle": math.Pi / 4, "power": 0.6,
	})); err != nil {
		t.Fatalf("unexpected aim error: %v", err)
	}
	if _, err := m.HandleAction("a", at(0, "fire", nil)); err != nil {
		t.Fatalf("unexpected fire error: %v", err)
	}

	// Damage, knockback, falls, and sudden death may only drain health;
	// nothing in the resolution pipeline hands any out.
	before := snapshot()
	for i := int64(10); i < 300 && !m.st.Over; i++ {
		if _, err := m.HandleAction("a", at(i, "tick", nil)); err != nil {
			t.Fatalf("unexpected tick error: %v", err)
		}
		after := snapshot()
		for id, h := range after {
			if h > before[id] {
				t.Fatalf("worm %s gained health mid-resolution: %d -> %d", id, before[id], h)
			}
		}
		before = after
		if m.settled() && m.st.Phase != phaseResolving && m.st.Phase != phaseRetreat {
			break
		}
	}
}

func TestUnknownSuddenDeathModeRejected(t *testing.T) {
	parts := []engine.Participant{{ID: "a"}, {ID: "b"}}
	if _, err := (module{}).NewMatch(parts, engine.Config{"sudden_death": "meteors"}, engine.NewRand("x", Slug)); err == nil {
		t.Fatalf("expected unknown sudden death mode to fail initialization")
	}
}
