package artillery

import (
	"fmt"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
)

// Category drives how a shot resolves: through the projectile pipeline, an
// instant ray, a melee swing, a placed charge, or a direct state mutation.
type Category string

const (
	CategoryProjectile Category = "projectile"
	CategoryThrown     Category = "thrown"
	CategoryHitscan    Category = "hitscan"
	CategoryMelee      Category = "melee"
	CategoryPlaced     Category = "placed"
	CategoryAreaStrike Category = "area_strike"
	CategoryCluster    Category = "cluster"
	CategoryHoming     Category = "homing"
	CategoryUtility    Category = "utility"
)

// Weapon is one arsenal entry. Values are defaults; per-session overrides
// merge at read through weaponFor and never write back here.
type Weapon struct {
	Slug         string
	Category     Category
	Damage       float64
	Radius       float64
	Gravity      float64 // multiplier on world gravity while in flight
	WindFactor   float64 // 0 ignores wind, 1 takes the full drift
	Bounciness   float64 // velocity kept per bounce; 0 detonates on contact
	FuseTicks    int     // 0 means contact-triggered
	ShotCount    int
	ClusterCount int
	Range        float64 // hitscan/melee reach, autoplay range gating
	Ammo         int     // starting rounds; -1 is unlimited
}

const clusterFragmentSlug = "cluster_fragment"

var arsenal = map[string]Weapon{
	"bazooka": {
		Slug: "bazooka", Category: CategoryProjectile,
		Damage: 45, Radius: 5, Gravity: 1, WindFactor: 1,
		ShotCount: 1, Ammo: -1,
	},
	"grenade": {
		Slug: "grenade", Category: CategoryThrown,
		Damage: 40, Radius: 4.5, Gravity: 1, WindFactor: 0,
		Bounciness: 0.5, FuseTicks: 30, ShotCount: 1, Ammo: -1,
	},
	"cluster_bomb": {
		Slug: "cluster_bomb", Category: CategoryCluster,
		Damage: 25, Radius: 3.5, Gravity: 1, WindFactor: 0,
		Bounciness: 0.4, FuseTicks: 30, ShotCount: 1, ClusterCount: 5, Ammo: 2,
	},
	clusterFragmentSlug: {
		Slug: clusterFragmentSlug, Category: CategoryProjectile,
		Damage: 12, Radius: 2, Gravity: 1, WindFactor: 0.3,
		ShotCount: 1, Ammo: 0,
	},
	"shotgun": {
		Slug: "shotgun", Category: CategoryHitscan,
		Damage: 8, Radius: 1.5, ShotCount: 5, Range: 40, Ammo: -1,
	},
	"uzi": {
		Slug: "uzi", Category: CategoryHitscan,
		Damage: 4, Radius: 1, ShotCount: 10, Range: 30, Ammo: -1,
	},
	"baseball_bat": {
		Slug: "baseball_bat", Category: CategoryMelee,
		Damage: 30, Range: 3, ShotCount: 1, Ammo: -1,
	},
	"dynamite": {
		Slug: "dynamite", Category: CategoryPlaced,
		Damage: 60, Radius: 6, FuseTicks: 50, ShotCount: 1, Ammo: 2,
	},
	"airstrike": {
		Slug: "airstrike", Category: CategoryAreaStrike,
		Damage: 25, Radius: 3.5, Gravity: 1, WindFactor: 0.5,
		ShotCount: 5, Ammo: 1,
	},
	"homing_missile": {
		Slug: "homing_missile", Category: CategoryHoming,
		Damage: 40, Radius: 4.5, Gravity: 0.4, WindFactor: 0,
		ShotCount: 1, Ammo: 1,
	},
	"teleport":  {Slug: "teleport", Category: CategoryUtility, Ammo: 1},
	"grapple":   {Slug: "grapple", Category: CategoryUtility, Range: 25, Ammo: 3},
	"girder":    {Slug: "girder", Category: CategoryUtility, Range: 15, Ammo: 2},
	"blowtorch": {Slug: "blowtorch", Category: CategoryUtility, Range: 6, Ammo: 2},
}

// weaponFor resolves a slug against the arsenal and merges the session's
// override table into a copy. The shared defaults are never written.
func weaponFor(slug string, overrides map[string]engine.Config) (Weapon, error) {
	w, ok := arsenal[slug]
	if !ok {
		return Weapon{}, fmt.Errorf("unknown weapon %q", slug)
	}
	ov, ok := overrides[slug]
	if !ok {
		return w, nil
	}
	w.Damage = ov.Float("damage", w.Damage)
	w.Radius = ov.Float("radius", w.Radius)
	w.Gravity = ov.Float("gravity", w.Gravity)
	w.WindFactor = ov.Float("wind_factor", w.WindFactor)
	w.Bounciness = ov.Float("bounciness", w.Bounciness)
	w.FuseTicks = ov.Int("fuse_ticks", w.FuseTicks)
	w.ShotCount = ov.Int("shot_count", w.ShotCount)
	w.ClusterCount = ov.Int("cluster_count", w.ClusterCount)
	w.Range = ov.Float("range", w.Range)
	w.Ammo = ov.Int("ammo", w.Ammo)
	return w, nil
}

// startingAmmo builds one player's ammo table from the merged arsenal.
func startingAmmo(overrides map[string]engine.Config) map[string]int {
	ammo := make(map[string]int, len(arsenal))
	for slug := range arsenal {
		if slug == clusterFragmentSlug {
			continue
		}
		w, _ := weaponFor(slug, overrides)
		ammo[slug] = w.Ammo
	}
	return ammo
}

// weaponOverrides lifts the session config's weapons table into per-slug
// override configs.
func weaponOverrides(cfg engine.Config) map[string]engine.Config {
	sub := cfg.Sub("weapons")
	if sub == nil {
		return nil
	}
	overrides := make(map[string]engine.Config, len(sub))
	for slug := range sub {
		if table := sub.Sub(slug); table != nil {
			overrides[slug] = table
		}
	}
	return overrides
}
