package engine

import (
	"encoding/json"
	"testing"
	"time"
)

// stubMatch is a minimal two-player match used to exercise kernel
// validation order without pulling in a real game module.
type stubMatch struct {
	players    []Participant
	turn       int
	over       bool
	winner     string
	eliminated map[string]bool
	handled    int
}

func (m *stubMatch) Turn() int                   { return m.turn }
func (m *stubMatch) Phase() string               { return "playing" }
func (m *stubMatch) Participants() []Participant { return m.players }
func (m *stubMatch) Eliminated(id string) bool   { return m.eliminated[id] }
func (m *stubMatch) Over() bool                  { return m.over }
func (m *stubMatch) Winner() (string, bool)      { return m.winner, m.winner != "" }
func (m *stubMatch) Scores() map[string]int      { return map[string]int{"p1": m.handled} }

func (m *stubMatch) HandleAction(playerID string, action Action) ([]Event, error) {
	switch action.Type {
	case "noop":
		m.handled++
		m.turn++
		return []Event{NewEvent("noop_done", playerID, nil, action.Timestamp)}, nil
	case "win":
		m.handled++
		m.over = true
		m.winner = playerID
		return nil, nil
	case "stall":
		return nil, Precondition("wrong phase for stall")
	default:
		return nil, ErrUnknownAction
	}
}

func (m *stubMatch) View(playerID string) (json.RawMessage, error) { return m.Encode() }

func (m *stubMatch) Encode() (json.RawMessage, error) {
	return json.Marshal(map[string]any{"turn": m.turn})
}

type stubGame struct {
	min, max int
	match    *stubMatch
}

func (g stubGame) Slug() string         { return "stub" }
func (g stubGame) Bounds() (int, int)   { return g.min, g.max }
func (g stubGame) NewMatch(players []Participant, cfg Config, rng *Rand) (Match, error) {
	g.match.players = players
	return g.match, nil
}
func (g stubGame) DecodeMatch(data json.RawMessage) (Match, error) { return g.match, nil }

func newStubEngine(t *testing.T, humans []string) (*Engine, *stubMatch) {
	t.Helper()
	match := &stubMatch{eliminated: make(map[string]bool)}
	eng, err := New(stubGame{min: 2, max: 4, match: match}, humans, Options{})
	if err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}
	return eng, match
}

func TestNewRejectsPlayerCountsOutsideBounds(t *testing.T) {
	match := &stubMatch{eliminated: make(map[string]bool)}

	if _, err := New(stubGame{min: 1, max: 1, match: match}, []string{"a", "b"}, Options{}); err == nil {
		t.Fatalf("expected solo-only module to reject two players")
	}
	if _, err := New(stubGame{min: 2, max: 4, match: match}, nil, Options{}); err == nil {
		t.Fatalf("expected empty player list to be rejected")
	}
	if _, err := New(stubGame{min: 2, max: 2, match: match}, []string{"a", "a"}, Options{}); err == nil {
		t.Fatalf("expected duplicate ids to be rejected")
	}
}

func TestNewInjectsSyntheticParticipants(t *testing.T) {
	eng, _ := newStubEngine(t, []string{"p1"})

	participants := eng.Participants()
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants after fill, got %d", len(participants))
	}
	if !participants[1].Synthetic {
		t.Fatalf("expected injected participant to be synthetic")
	}
	if participants[1].ID != "npc-1" {
		t.Fatalf("unexpected synthetic id %q", participants[1].ID)
	}
}

func TestHandleActionRejectionOrder(t *testing.T) {
	eng, match := newStubEngine(t, []string{"p1", "p2"})
	now := time.Now()

	res := eng.HandleAction("ghost", Action{Type: "noop", Timestamp: now})
	if res.Success || res.Code != CodeUnknownPlayer {
		t.Fatalf("expected unknown player rejection, got %+v", res)
	}

	match.eliminated["p2"] = true
	res = eng.HandleAction("p2", Action{Type: "noop", Timestamp: now})
	if res.Success || res.Code != CodeEliminated {
		t.Fatalf("expected eliminated rejection, got %+v", res)
	}

	res = eng.HandleAction("p1", Action{Type: "mystery", Timestamp: now})
	if res.Success || res.Code != CodeUnknownAction {
		t.Fatalf("expected unknown action rejection, got %+v", res)
	}

	res = eng.HandleAction("p1", Action{Type: "stall", Timestamp: now})
	if res.Success || res.Code != CodePrecondition {
		t.Fatalf("expected precondition rejection, got %+v", res)
	}
	if match.handled != 0 {
		t.Fatalf("expected no mutation on rejected actions, handled=%d", match.handled)
	}
}

func TestHandleActionSuccessReturnsSnapshotAndEvents(t *testing.T) {
	eng, _ := newStubEngine(t, []string{"p1", "p2"})

	res := eng.HandleAction("p1", Action{Type: "noop", Timestamp: time.Now()})
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.State == nil || res.State.Turn != 1 {
		t.Fatalf("expected snapshot with turn 1, got %+v", res.State)
	}
	if len(res.Events) != 1 || res.Events[0].Type != "noop_done" {
		t.Fatalf("expected noop_done event, got %+v", res.Events)
	}
	if res.Error != "" {
		t.Fatalf("success result must not carry an error, got %q", res.Error)
	}
}

func TestTerminalStateFreezesFurtherActions(t *testing.T) {
	eng, match := newStubEngine(t, []string{"p1", "p2"})

	res := eng.HandleAction("p1", Action{Type: "win", Timestamp: time.Now()})
	if !res.Success {
		t.Fatalf("expected winning action to succeed: %q", res.Error)
	}
	if !eng.Over() {
		t.Fatalf("expected match to be over")
	}
	if winner, ok := eng.Winner(); !ok || winner != "p1" {
		t.Fatalf("expected p1 as winner, got %q ok=%v", winner, ok)
	}

	before := match.handled
	for i := 0; i < 3; i++ {
		res = eng.HandleAction("p2", Action{Type: "noop", Timestamp: time.Now()})
		if res.Success || res.Code != CodeGameOver {
			t.Fatalf("expected game_over rejection after conclusion, got %+v", res)
		}
	}
	if match.handled != before {
		t.Fatalf("expected frozen state after conclusion")
	}
}

func TestStateForRejectsUnknownPlayer(t *testing.T) {
	eng, _ := newStubEngine(t, []string{"p1", "p2"})
	if _, err := eng.StateFor("ghost"); err == nil {
		t.Fatalf("expected unknown player error from StateFor")
	}
}
