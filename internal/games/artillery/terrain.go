package artillery

import (
	"math"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
)

// Terrain is one ground-level scalar per horizontal column; there are no
// overhangs. Detonations only ever lower a column. The girder and blowtorch
// utilities are the sole paths that add or carve material outside that rule.
type Terrain struct {
	Width      int       `json:"width"`
	Heights    []float64 `json:"heights"`
	WaterLevel float64   `json:"waterLevel"`
}

const (
	terrainBaseHeight = 40.0
	terrainMinHeight  = 12.0
	terrainMaxHeight  = 85.0
	terrainStep       = 2.5
)

// generateTerrain rolls a bounded random walk across the map width.
func generateTerrain(width int, waterLevel float64, rng *engine.Rand) *Terrain {
	heights := make([]float64, width)
	h := terrainBaseHeight + rng.Jitter(10)
	for i := range heights {
		h += rng.Jitter(terrainStep)
		if h < terrainMinHeight {
			h = terrainMinHeight
		}
		if h > terrainMaxHeight {
			h = terrainMaxHeight
		}
		heights[i] = h
	}
	return &Terrain{Width: width, Heights: heights, WaterLevel: waterLevel}
}

func (t *Terrain) clampCol(x float64) int {
	col := int(math.Floor(x))
	if col < 0 {
		return 0
	}
	if col >= t.Width {
		return t.Width - 1
	}
	return col
}

// HeightAt reports the ground level under x, clamped to the map edge.
func (t *Terrain) HeightAt(x float64) float64 {
	return t.Heights[t.clampCol(x)]
}

// InBounds reports whether x lies on the map.
func (t *Terrain) InBounds(x float64) bool {
	return x >= 0 && x < float64(t.Width)
}

// Carve removes a circular crater centered at (cx, cy). Each column inside
// the blast loses the chord the circle cuts through it; material above a
// sub-surface chord drops down by the chord length. Heights never increase
// on this path.
func (t *Terrain) Carve(cx, cy, radius float64) {
	for col := t.clampCol(cx - radius); col <= t.clampCol(cx+radius); col++ {
		dx := float64(col) + 0.5 - cx
		if math.Abs(dx) > radius {
			continue
		}
		half := math.Sqrt(radius*radius - dx*dx)
		top := cy + half
		bottom := cy - half
		h := t.Heights[col]
		if h <= bottom {
			continue
		}
		if top >= h {
			h = bottom
		} else {
			h -= top - bottom
		}
		if h < 0 {
			h = 0
		}
		t.Heights[col] = h
	}
}

// Raise places girder material: every column within halfWidth of x comes up
// to at least level.
func (t *Terrain) Raise(x, level, halfWidth float64) {
	for col := t.clampCol(x - halfWidth); col <= t.clampCol(x+halfWidth); col++ {
		if t.Heights[col] < level {
			t.Heights[col] = level
		}
	}
}

// Tunnel digs a blowtorch channel: every column within halfWidth of x drops
// by depth, floored at zero.
func (t *Terrain) Tunnel(x, depth, halfWidth float64) {
	for col := t.clampCol(x - halfWidth); col <= t.clampCol(x+halfWidth); col++ {
		t.Heights[col] -= depth
		if t.Heights[col] < 0 {
			t.Heights[col] = 0
		}
	}
}

// Highest reports the tallest column, used to pick spawn heights for
// airdrops.
func (t *Terrain) Highest() float64 {
	highest := 0.0
	for _, h := range t.Heights {
		if h > highest {
			highest = h
		}
	}
	return highest
}
