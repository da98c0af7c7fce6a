package rotation

import "testing"

func alive(ids ...string) func(string) bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

func TestAdvanceCyclesThroughOrder(t *testing.T) {
	r := New([]string{"a", "b", "c"})
	all := alive("a", "b", "c")

	if got := r.Active(); got != "a" {
		t.Fatalf("expected a to start, got %q", got)
	}
	if got := r.Advance(all); got != "b" {
		t.Fatalf("expected b after advance, got %q", got)
	}
	if got := r.Advance(all); got != "c" {
		t.Fatalf("expected c after advance, got %q", got)
	}
	if got := r.Advance(all); got != "a" {
		t.Fatalf("expected wrap to a, got %q", got)
	}
}

func TestRecomputeDropsEliminatedAndReclamps(t *testing.T) {
	r := New([]string{"a", "b", "c", "d"})
	r.Index = 1 // b's turn

	r.Recompute(alive("a", "c", "d"))
	if r.Len() != 3 {
		t.Fatalf("expected 3 survivors, got %d", r.Len())
	}
	if got := r.Active(); got != "c" {
		t.Fatalf("expected cursor to slide to c, got %q", got)
	}
}

func TestRecomputeWrapsWhenTailEliminated(t *testing.T) {
	r := New([]string{"a", "b", "c"})
	r.Index = 2 // c's turn

	r.Recompute(alive("a", "b"))
	if got := r.Active(); got != "a" {
		t.Fatalf("expected wrap to a, got %q", got)
	}
}

func TestAdvanceSkipsEliminatedActor(t *testing.T) {
	r := New([]string{"a", "b", "c"})

	// a acts, then b is eliminated before the advance.
	if got := r.Advance(alive("a", "c")); got != "c" {
		t.Fatalf("expected c after b eliminated, got %q", got)
	}
	if r.Len() != 2 {
		t.Fatalf("expected order length 2, got %d", r.Len())
	}
}

func TestAdvanceEmptyRotation(t *testing.T) {
	r := New(nil)
	if got := r.Advance(alive()); got != "" {
		t.Fatalf("expected empty active id, got %q", got)
	}
}
