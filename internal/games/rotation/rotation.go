// Package rotation maintains a turn rotation that survives participant
// elimination. The order is recomputed, never merely incremented, whenever
// an entry becomes ineligible, and the cursor is re-clamped into the new,
// possibly shorter, rotation so it never references a removed actor.
package rotation

// Rotation is a serializable turn cursor over an ordered id list.
type Rotation struct {
	Order []string `json:"order"`
	Index int      `json:"index"`
}

// New builds a rotation over the given ids starting at the first entry.
func New(ids []string) Rotation {
	order := make([]string, len(ids))
	copy(order, ids)
	return Rotation{Order: order}
}

// Active returns the id whose turn it is, or "" for an empty rotation.
func (r *Rotation) Active() string {
	if r == nil || len(r.Order) == 0 {
		return ""
	}
	if r.Index < 0 || r.Index >= len(r.Order) {
		return r.Order[0]
	}
	return r.Order[r.Index]
}

// Advance moves the cursor to the next eligible id. Ineligible entries are
// dropped from the order first so the cursor always lands on a live actor.
func (r *Rotation) Advance(eligible func(id string) bool) string {
	if r == nil {
		return ""
	}
	current := r.Active()
	r.Recompute(eligible)
	if len(r.Order) == 0 {
		return ""
	}
	if r.Active() == current {
		r.Index = (r.Index + 1) % len(r.Order)
	}
	return r.Active()
}

// Recompute drops ineligible ids and re-clamps the cursor onto the next
// surviving entry in order, wrapping when the cursor ran past the end.
func (r *Rotation) Recompute(eligible func(id string) bool) {
	if r == nil || eligible == nil {
		return
	}
	kept := make([]string, 0, len(r.Order))
	keptOrigin := make([]int, 0, len(r.Order))
	for i, id := range r.Order {
		if eligible(id) {
			kept = append(kept, id)
			keptOrigin = append(keptOrigin, i)
		}
	}
	next := 0
	for k, origin := range keptOrigin {
		if origin >= r.Index {
			next = k
			break
		}
	}
	r.Order = kept
	r.Index = next
}

// Contains reports whether the id is still part of the rotation.
func (r *Rotation) Contains(id string) bool {
	if r == nil {
		return false
	}
	for _, entry := range r.Order {
		if entry == id {
			return true
		}
	}
	return false
}

// Len reports the number of ids remaining in the rotation.
func (r *Rotation) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Order)
}
