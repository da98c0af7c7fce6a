// Package dungeon implements the solo dungeon crawl: repeated floors of the
// combat → loot → shop → descend cycle until the hero escapes the final
// floor or dies trying.
package dungeon

import (
	"encoding/json"
	"fmt"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
)

// Slug identifies the module in the registry.
const Slug = "dungeon"

const (
	defaultFinalFloor = 5
	heroBaseHP        = 60
	heroBaseAttack    = 8
	lootDropChance    = 0.5
	shopStockSize     = 3
)

const (
	phaseCombat  = "combat"
	phaseLoot    = "loot"
	phaseShop    = "shop"
	phaseDescend = "descend"
	phaseDead    = "dead"
	phaseEscaped = "escaped"
)

// Equipment slots a non-consumable item can occupy.
const (
	slotWeapon = "weapon"
	slotArmor  = "armor"
	slotCharm  = "charm"
)

type hero struct {
	HP      int `json:"hp"`
	MaxHP   int `json:"maxHp"`
	Attack  int `json:"attack"`
	Defense int `json:"defense"`
	Gold    int `json:"gold"`
}

type item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"` // potion, weapon, armor, charm
	Value       int    `json:"value"`
	HealthBonus int    `json:"healthBonus,omitempty"`
	Price       int    `json:"price,omitempty"`
}

type enemy struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	HP     int    `json:"hp"`
	MaxHP  int    `json:"maxHp"`
	Attack int    `json:"attack"`
}

type state struct {
	Players    []engine.Participant `json:"players"`
	TurnCount  int                  `json:"turn"`
	Phase      string               `json:"phase"`
	Floor      int                  `json:"floor"`
	FinalFloor int                  `json:"finalFloor"`
	Hero       hero                 `json:"hero"`
	Inventory  []item               `json:"inventory"`
	Equipment  map[string]*item     `json:"equipment"`
	Enemies    []enemy              `json:"enemies"`
	Loot       []item               `json:"loot"`
	Shop       []item               `json:"shop"`
	Kills      int                  `json:"kills"`
	Over       bool                 `json:"over"`
	WinnerID   string               `json:"winner,omitempty"`
	// NextID mints identifiers for generated entities. It lives in session
	// state so parallel sessions never share a counter.
	NextID int          `json:"nextId"`
	RNG    *engine.Rand `json:"rng"`
}

type match struct {
	st state
}

type module struct{}

func init() {
	engine.Register(module{})
}

func (module) Slug() string       { return Slug }
func (module) Bounds() (int, int) { return 1, 1 }

func (module) NewMatch(players []engine.Participant, cfg engine.Config, rng *engine.Rand) (engine.Match, error) {
	st := state{
		Players:    players,
		Phase:      phaseCombat,
		Floor:      1,
		FinalFloor: cfg.Int("final_floor", defaultFinalFloor),
		Hero:       hero{HP: heroBaseHP, MaxHP: heroBaseHP, Attack: heroBaseAttack},
		Equipment:  make(map[string]*item),
		RNG:        rng,
	}
	m := &match{st: st}
	m.spawnEnemies()
	m.restock()
	return m, nil
}

func (module) DecodeMatch(data json.RawMessage) (engine.Match, error) {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("dungeon: decode state: %w", err)
	}
	if st.Equipment == nil {
		st.Equipment = make(map[string]*item)
	}
	return &match{st: st}, nil
}

func (m *match) Turn() int                          { return m.st.TurnCount }
func (m *match) Phase() string                      { return m.st.Phase }
func (m *match) Participants() []engine.Participant { return m.st.Players }
func (m *match) Over() bool                         { return m.st.Over }
func (m *match) Winner() (string, bool)             { return m.st.WinnerID, m.st.WinnerID != "" }
func (m *match) Eliminated(playerID string) bool    { return false }

func (m *match) Scores() map[string]int {
	score := m.st.Hero.Gold + (m.st.Floor-1)*100 + m.st.Kills*10
	if m.st.WinnerID != "" {
		score += 250
	}
	return map[string]int{m.st.Players[0].ID: score}
}

func (m *match) Encode() (json.RawMessage, error) { return json.Marshal(m.st) }

// View is the full state: a solo crawl hides nothing from its only player.
func (m *match) View(playerID string) (json.RawMessage, error) { return m.Encode() }

func (m *match) HandleAction(playerID string, action engine.Action) ([]engine.Event, error) {
	if m.st.Over {
		return nil, engine.ErrGameOver
	}

	var events []engine.Event
	var err error
	switch action.Type {
	case "attack":
		events, err = m.attack(action)
	case "use_item":
		events, err = m.useItem(action)
	case "pick_up":
		events, err = m.pickUp(action)
	case "equip":
		events, err = m.equip(action)
	case "buy":
		events, err = m.buy(action)
	case "advance":
		events, err = m.advance(action)
	case "descend":
		events, err = m.descend(action)
	default:
		return nil, engine.ErrUnknownAction
	}
	if err != nil {
		return nil, err
	}
	m.st.TurnCount++
	return events, nil
}

func intArg(action engine.Action, key string) (int, error) {
	raw, ok := action.Payload[key]
	if !ok {
		return 0, engine.Precondition(fmt.Sprintf("missing %s", key))
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, engine.Precondition(fmt.Sprintf("%s must be a number", key))
	}
}

func (m *match) attack(action engine.Action) ([]engine.Event, error) {
	if m.st.Phase != phaseCombat {
		return nil, engine.Precondition("no combat in progress")
	}
	target, err := intArg(action, "target")
	if err != nil {
		return nil, err
	}
	if target < 0 || target >= len(m.st.Enemies) {
		return nil, engine.Precondition(fmt.Sprintf("enemy index %d out of range", target))
	}
	foe := &m.st.Enemies[target]
	if foe.HP <= 0 {
		return nil, engine.Precondition(fmt.Sprintf("%s is already down", foe.Name))
	}

	playerID := m.st.Players[0].ID
	damage := m.st.Hero.Attack + m.st.RNG.Intn(4)
	foe.HP -= damage
	events := []engine.Event{engine.NewEvent("attack", playerID, map[string]any{
		"target": foe.ID, "damage": damage,
	}, action.Timestamp)}

	if foe.HP <= 0 {
		foe.HP = 0
		m.st.Kills++
		events = append(events, engine.NewEvent("enemy_down", playerID, map[string]any{
			"enemy": foe.ID,
		}, action.Timestamp))
		if m.st.RNG.Chance(lootDropChance) {
			drop := m.mintItem(m.st.Floor)
			m.st.Loot = append(m.st.Loot, drop)
			events = append(events, engine.NewEvent("loot_dropped", playerID, map[string]any{
				"item": drop.Name,
			}, action.Timestamp))
		}
		gold := 5 + m.st.RNG.Intn(6) + m.st.Floor*2
		m.st.Hero.Gold += gold
	}

	events = append(events, m.counterattack(action)...)
	if m.st.Over {
		return events, nil
	}

	if m.aliveEnemies() == 0 {
		// Exhausted condition: combat advances on its own.
		m.st.Phase = phaseLoot
		events = append(events, engine.NewEvent("floor_cleared", playerID, map[string]any{
			"floor": m.st.Floor,
		}, action.Timestamp))
	}
	return events, nil
}

// counterattack lets every surviving enemy answer once per hero combat
// action. Defense soaks damage down to a floor of one per attacker.
func (m *match) counterattack(action engine.Action) []engine.Event {
	playerID := m.st.Players[0].ID
	var events []engine.Event
	for i := range m.st.Enemies {
		foe := &m.st.Enemies[i]
		if foe.HP <= 0 {
			continue
		}
		damage := foe.Attack - m.st.Hero.Defense
		if damage < 1 {
			damage = 1
		}
		m.st.Hero.HP -= damage
		events = append(events, engine.NewEvent("enemy_hit", playerID, map[string]any{
			"enemy": foe.ID, "damage": damage,
		}, action.Timestamp))
		if m.st.Hero.HP <= 0 {
			m.st.Hero.HP = 0
			m.st.Over = true
			m.st.Phase = phaseDead
			events = append(events, engine.NewEvent("hero_down", playerID, nil, action.Timestamp))
			return events
		}
	}
	return events
}

func (m *match) useItem(action engine.Action) ([]engine.Event, error) {
	slot, err := intArg(action, "slot")
	if err != nil {
		return nil, err
	}
	if slot < 0 || slot >= len(m.st.Inventory) {
		return nil, engine.Precondition(fmt.Sprintf("inventory slot %d out of range", slot))
	}
	it := m.st.Inventory[slot]
	if it.Kind != "potion" {
		return nil, engine.Precondition(fmt.Sprintf("%s cannot be consumed", it.Name))
	}
	if m.st.Hero.HP >= m.st.Hero.MaxHP {
		return nil, engine.Precondition("health already full")
	}

	m.st.Hero.HP = min(m.st.Hero.MaxHP, m.st.Hero.HP+it.Value)
	m.st.Inventory = append(m.st.Inventory[:slot], m.st.Inventory[slot+1:]...)
	playerID := m.st.Players[0].ID
	events := []engine.Event{engine.NewEvent("item_used", playerID, map[string]any{
		"item": it.Name, "hp": m.st.Hero.HP,
	}, action.Timestamp)}

	// Drinking mid-fight still provokes the room.
	if m.st.Phase == phaseCombat {
		events = append(events, m.counterattack(action)...)
	}
	return events, nil
}

func (m *match) pickUp(action engine.Action) ([]engine.Event, error) {
	if m.st.Phase != phaseLoot {
		return nil, engine.Precondition("nothing to pick up right now")
	}
	index, err := intArg(action, "index")
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(m.st.Loot) {
		return nil, engine.Precondition(fmt.Sprintf("loot index %d out of range", index))
	}

	it := m.st.Loot[index]
	m.st.Loot = append(m.st.Loot[:index], m.st.Loot[index+1:]...)
	m.st.Inventory = append(m.st.Inventory, it)
	playerID := m.st.Players[0].ID
	events := []engine.Event{engine.NewEvent("picked_up", playerID, map[string]any{
		"item": it.Name,
	}, action.Timestamp)}

	if len(m.st.Loot) == 0 {
		m.st.Phase = phaseShop
		events = append(events, engine.NewEvent("shop_opened", playerID, nil, action.Timestamp))
	}
	return events, nil
}

// equip moves a non-consumable item from the inventory into its slot,
// returning any displaced gear to the inventory. A health bonus raises both
// current and maximum health; unequipping takes both away again.
func (m *match) equip(action engine.Action) ([]engine.Event, error) {
	index, err := intArg(action, "gear")
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(m.st.Inventory) {
		return nil, engine.Precondition(fmt.Sprintf("inventory slot %d out of range", index))
	}
	it := m.st.Inventory[index]
	slot := ""
	switch it.Kind {
	case slotWeapon, slotArmor, slotCharm:
		slot = it.Kind
	default:
		return nil, engine.Precondition(fmt.Sprintf("%s cannot be equipped", it.Name))
	}

	m.st.Inventory = append(m.st.Inventory[:index], m.st.Inventory[index+1:]...)
	if previous := m.st.Equipment[slot]; previous != nil {
		m.removeBonuses(*previous)
		m.st.Inventory = append(m.st.Inventory, *previous)
	}
	equipped := it
	m.st.Equipment[slot] = &equipped
	m.applyBonuses(it)

	return []engine.Event{engine.NewEvent("equipped", m.st.Players[0].ID, map[string]any{
		"item": it.Name, "slot": slot,
	}, action.Timestamp)}, nil
}

func (m *match) applyBonuses(it item) {
	switch it.Kind {
	case slotWeapon:
		m.st.Hero.Attack += it.Value
	case slotArmor:
		m.st.Hero.Defense += it.Value
	}
	if it.HealthBonus > 0 {
		m.st.Hero.MaxHP += it.HealthBonus
		m.st.Hero.HP += it.HealthBonus
	}
}

func (m *match) removeBonuses(it item) {
	switch it.Kind {
	case slotWeapon:
		m.st.Hero.Attack -= it.Value
	case slotArmor:
		m.st.Hero.Defense -= it.Value
	}
	if it.HealthBonus > 0 {
		m.st.Hero.MaxHP -= it.HealthBonus
		if m.st.Hero.HP > m.st.Hero.MaxHP {
			m.st.Hero.HP = m.st.Hero.MaxHP
		}
	}
}

func (m *match) buy(action engine.Action) ([]engine.Event, error) {
	if m.st.Phase != phaseShop {
		return nil, engine.Precondition("the shop is closed")
	}
	index, err := intArg(action, "index")
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(m.st.Shop) {
		return nil, engine.Precondition(fmt.Sprintf("shop index %d out of range", index))
	}
	it := m.st.Shop[index]
	if m.st.Hero.Gold < it.Price {
		return nil, engine.Precondition(fmt.Sprintf("%s costs %d gold, you have %d", it.Name, it.Price, m.st.Hero.Gold))
	}

	m.st.Hero.Gold -= it.Price
	m.st.Shop = append(m.st.Shop[:index], m.st.Shop[index+1:]...)
	m.st.Inventory = append(m.st.Inventory, it)
	return []engine.Event{engine.NewEvent("bought", m.st.Players[0].ID, map[string]any{
		"item": it.Name, "gold": m.st.Hero.Gold,
	}, action.Timestamp)}, nil
}

// advance moves to the next phase once the current one is spent: loot can
// be abandoned, the shop left, but combat only ends when the room is clear.
func (m *match) advance(action engine.Action) ([]engine.Event, error) {
	playerID := m.st.Players[0].ID
	switch m.st.Phase {
	case phaseCombat:
		return nil, engine.Precondition("enemies remain")
	case phaseLoot:
		m.st.Loot = nil
		m.st.Phase = phaseShop
	case phaseShop:
		m.st.Phase = phaseDescend
	case phaseDescend:
		return nil, engine.Precondition("use descend to take the stairs")
	default:
		return nil, engine.Precondition("nothing to advance")
	}
	return []engine.Event{engine.NewEvent("phase_advanced", playerID, map[string]any{
		"phase": m.st.Phase,
	}, action.Timestamp)}, nil
}

func (m *match) descend(action engine.Action) ([]engine.Event, error) {
	if m.st.Phase != phaseDescend {
		return nil, engine.Precondition("the stairs are not reachable yet")
	}
	playerID := m.st.Players[0].ID
	if m.st.Floor >= m.st.FinalFloor {
		m.st.Over = true
		m.st.Phase = phaseEscaped
		m.st.WinnerID = playerID
		return []engine.Event{engine.NewEvent("escaped", playerID, map[string]any{
			"floor": m.st.Floor,
		}, action.Timestamp)}, nil
	}

	m.st.Floor++
	m.st.Phase = phaseCombat
	m.spawnEnemies()
	m.restock()
	return []engine.Event{engine.NewEvent("descended", playerID, map[string]any{
		"floor": m.st.Floor,
	}, action.Timestamp)}, nil
}

func (m *match) aliveEnemies() int {
	alive := 0
	for _, foe := range m.st.Enemies {
		if foe.HP > 0 {
			alive++
		}
	}
	return alive
}

func (m *match) mintID(prefix string) string {
	m.st.NextID++
	return fmt.Sprintf("%s-%d", prefix, m.st.NextID)
}

var enemyNames = []string{"rat", "goblin", "skeleton", "ghoul", "troll"}

func (m *match) spawnEnemies() {
	count := 1 + (m.st.Floor+1)/2
	if count > 4 {
		count = 4
	}
	m.st.Enemies = m.st.Enemies[:0]
	for i := 0; i < count; i++ {
		name := enemyNames[m.st.RNG.Intn(len(enemyNames))]
		hp := 12 + m.st.Floor*4 + m.st.RNG.Intn(6)
		m.st.Enemies = append(m.st.Enemies, enemy{
			ID:     m.mintID(name),
			Name:   name,
			HP:     hp,
			MaxHP:  hp,
			Attack: 3 + m.st.Floor,
		})
	}
}

// lootTable is the shared drop catalog; entries are copied before minting
// so the table itself is never mutated.
var lootTable = []item{
	{Name: "healing draught", Kind: "potion", Value: 20, Price: 15},
	{Name: "short sword", Kind: slotWeapon, Value: 4, Price: 30},
	{Name: "iron shield", Kind: slotArmor, Value: 3, Price: 25},
	{Name: "vitality charm", Kind: slotCharm, HealthBonus: 15, Price: 40},
	{Name: "war axe", Kind: slotWeapon, Value: 7, Price: 55},
	{Name: "plate mail", Kind: slotArmor, Value: 5, HealthBonus: 10, Price: 60},
}

func (m *match) mintItem(floor int) item {
	it := lootTable[m.st.RNG.Intn(len(lootTable))]
	it.ID = m.mintID("item")
	it.Value += floor / 2
	return it
}

func (m *match) restock() {
	m.st.Shop = m.st.Shop[:0]
	for i := 0; i < shopStockSize; i++ {
		m.st.Shop = append(m.st.Shop, m.mintItem(m.st.Floor))
	}
}
