package game

import (
	"fmt"

	"github.com/harborline/armada-server-go/internal/game/effects"
	"github.com/harborline/armada-server-go/internal/game/rules"
)

// Zone names a card location. Each player owns one of each.
type Zone string

const (
	ZoneLeader       Zone = "LEADER"
	ZoneCharacters   Zone = "CHARACTERS"
	ZoneStage        Zone = "STAGE"
	ZoneHand         Zone = "HAND"
	ZoneDeck         Zone = "DECK"
	ZoneTrash        Zone = "TRASH"
	ZoneLife         Zone = "LIFE"
	ZoneResourceArea Zone = "RESOURCE_AREA"
)

// MaxCharacters is the character-zone capacity.
const MaxCharacters = 5

// ActivationState tracks whether a card is ready to act.
type ActivationState string

const (
	StateActive ActivationState = "ACTIVE"
	StateRested ActivationState = "RESTED"
)

// Category is the printed card category.
type Category string

const (
	CategoryLeader    Category = "LEADER"
	CategoryCharacter Category = "CHARACTER"
	CategoryStage     Category = "STAGE"
	CategoryEvent     Category = "EVENT"
	CategoryResource  Category = "RESOURCE"
)

// Phase names a turn phase.
type Phase string

const (
	PhaseRefresh  Phase = "REFRESH"
	PhaseDraw     Phase = "DRAW"
	PhaseResource Phase = "RESOURCE"
	PhaseMain     Phase = "MAIN"
	PhaseEnd      Phase = "END"
)

// Keyword abilities the core itself interprets. Everything else on a card is
// catalog content executed through action descriptors.
const (
	KeywordBlocker  = "BLOCKER"
	KeywordRush     = "RUSH"
	KeywordKOImmune = "KO_IMMUNE"
)

// CardInstance is one concrete occurrence of a card. Its InstanceID is valid
// only while the card occupies its current zone: any zone transfer destroys
// the instance and mints a new one, clearing attachments and modifiers,
// unless the move explicitly preserves identity.
type CardInstance struct {
	InstanceID   int64
	CardID       string
	Name         string
	Category     Category
	Owner        string
	Zone         Zone
	State        ActivationState
	Attached     []*CardInstance // resource tokens, in attachment order
	FaceUp       bool
	BasePower    int
	BaseCost     int
	CounterValue int
	Keywords     []string
	PlayedTurn   int // turn the card entered play (attack-eligibility gate)
}

// HasKeyword reports whether the printed card carries the keyword.
func (c *CardInstance) HasKeyword(kw string) bool {
	for _, k := range c.Keywords {
		if k == kw {
			return true
		}
	}
	return false
}

func (c *CardInstance) clone() *CardInstance {
	cp := *c
	cp.Keywords = append([]string(nil), c.Keywords...)
	cp.Attached = make([]*CardInstance, len(c.Attached))
	for i, a := range c.Attached {
		cp.Attached[i] = a.clone()
	}
	return &cp
}

// PlayerState holds one player's seven zones plus the resource-token pool.
type PlayerState struct {
	ID           string
	Leader       *CardInstance
	Characters   []*CardInstance
	Stage        *CardInstance
	Hand         []*CardInstance
	Deck         []*CardInstance // index 0 = top
	Trash        []*CardInstance
	Life         []*CardInstance // ordered, face-down by default
	ResourceArea []*CardInstance // spendable tokens, active or rested
	Defeated     bool
}

func (p *PlayerState) clone() *PlayerState {
	cp := &PlayerState{ID: p.ID, Defeated: p.Defeated}
	if p.Leader != nil {
		cp.Leader = p.Leader.clone()
	}
	if p.Stage != nil {
		cp.Stage = p.Stage.clone()
	}
	cloneAll := func(src []*CardInstance) []*CardInstance {
		out := make([]*CardInstance, len(src))
		for i, c := range src {
			out[i] = c.clone()
		}
		return out
	}
	cp.Characters = cloneAll(p.Characters)
	cp.Hand = cloneAll(p.Hand)
	cp.Deck = cloneAll(p.Deck)
	cp.Trash = cloneAll(p.Trash)
	cp.Life = cloneAll(p.Life)
	cp.ResourceArea = cloneAll(p.ResourceArea)
	return cp
}

// ActiveResources returns the tokens currently spendable from the pool.
func (p *PlayerState) ActiveResources() []*CardInstance {
	var out []*CardInstance
	for _, t := range p.ResourceArea {
		if t.State == StateActive {
			out = append(out, t)
		}
	}
	return out
}

// GameState is the authoritative value for one game. It is never mutated in
// place by callers: every mutation path clones first via Clone, so no
// component holds a long-lived alias into another's state.
type GameState struct {
	GameID         string
	Turn           int
	Phase          Phase
	ActivePlayer   string
	PriorityPlayer string
	PlayerOrder    []string
	Players        map[string]*PlayerState
	Ledger         *effects.Ledger
	Replacements   *effects.Registry
	Battle         *BattleState
	Winner         string // set once a defeat resolves; terminal
	NextInstanceID int64
	RNG            RNG
	Log            []string
}

// NewGameState constructs an empty state for the two players.
func NewGameState(gameID string, playerA, playerB string, seed uint64) *GameState {
	return &GameState{
		GameID:       gameID,
		Turn:         1,
		Phase:        PhaseRefresh,
		ActivePlayer: playerA,
		PlayerOrder:  []string{playerA, playerB},
		Players: map[string]*PlayerState{
			playerA: {ID: playerA},
			playerB: {ID: playerB},
		},
		Ledger:       effects.NewLedger(),
		Replacements: effects.NewRegistry(),
		RNG:          NewRNG(seed),
	}
}

// Clone produces a deep copy. This is the single copy-on-write boundary:
// interpreter and processor operations clone once up front and then mutate
// the copy freely.
func (s *GameState) Clone() *GameState {
	cp := &GameState{
		GameID:         s.GameID,
		Turn:           s.Turn,
		Phase:          s.Phase,
		ActivePlayer:   s.ActivePlayer,
		PriorityPlayer: s.PriorityPlayer,
		PlayerOrder:    append([]string(nil), s.PlayerOrder...),
		Players:        make(map[string]*PlayerState, len(s.Players)),
		Ledger:         s.Ledger.Clone(),
		Replacements:   s.Replacements.Clone(),
		Winner:         s.Winner,
		NextInstanceID: s.NextInstanceID,
		RNG:            s.RNG,
		Log:            append([]string(nil), s.Log...),
	}
	for id, p := range s.Players {
		cp.Players[id] = p.clone()
	}
	if s.Battle != nil {
		b := *s.Battle
		cp.Battle = &b
	}
	return cp
}

// Player returns the state for a player id.
func (s *GameState) Player(id string) *PlayerState {
	return s.Players[id]
}

// Opponent returns the other player's id.
func (s *GameState) Opponent(id string) string {
	for _, pid := range s.PlayerOrder {
		if pid != id {
			return pid
		}
	}
	return ""
}

// MintInstanceID assigns the next monotone instance id.
func (s *GameState) MintInstanceID() int64 {
	s.NextInstanceID++
	return s.NextInstanceID
}

// AppendLog records a line in the append-only game log.
func (s *GameState) AppendLog(format string, args ...any) {
	s.Log = append(s.Log, fmt.Sprintf(format, args...))
}

// FindInstance locates an instance anywhere in the game, including attached
// resource tokens. Returns the instance, its zone, and its holder's player id.
func (s *GameState) FindInstance(id int64) (*CardInstance, Zone, string, bool) {
	for _, pid := range s.PlayerOrder {
		p := s.Players[pid]
		if p == nil {
			continue
		}
		singles := []*CardInstance{p.Leader, p.Stage}
		for _, c := range singles {
			if c == nil {
				continue
			}
			if c.InstanceID == id {
				return c, c.Zone, pid, true
			}
			for _, a := range c.Attached {
				if a.InstanceID == id {
					return a, c.Zone, pid, true
				}
			}
		}
		lists := map[Zone][]*CardInstance{
			ZoneCharacters:   p.Characters,
			ZoneHand:         p.Hand,
			ZoneDeck:         p.Deck,
			ZoneTrash:        p.Trash,
			ZoneLife:         p.Life,
			ZoneResourceArea: p.ResourceArea,
		}
		for zone, list := range lists {
			for _, c := range list {
				if c.InstanceID == id {
					return c, zone, pid, true
				}
				for _, a := range c.Attached {
					if a.InstanceID == id {
						return a, zone, pid, true
					}
				}
			}
		}
	}
	return nil, "", "", false
}

// ListZone returns the instances in a player's zone, in zone order.
func (s *GameState) ListZone(playerID string, zone Zone) []*CardInstance {
	p := s.Players[playerID]
	if p == nil {
		return nil
	}
	switch zone {
	case ZoneLeader:
		if p.Leader != nil {
			return []*CardInstance{p.Leader}
		}
		return nil
	case ZoneStage:
		if p.Stage != nil {
			return []*CardInstance{p.Stage}
		}
		return nil
	case ZoneCharacters:
		return p.Characters
	case ZoneHand:
		return p.Hand
	case ZoneDeck:
		return p.Deck
	case ZoneTrash:
		return p.Trash
	case ZoneLife:
		return p.Life
	case ZoneResourceArea:
		return p.ResourceArea
	default:
		return nil
	}
}

// CountSelector resolves a selector to a live board count. Used by per-count
// modifiers at query time.
func (s *GameState) CountSelector(sel rules.Selector) int {
	if sel.Instance != 0 {
		if _, _, _, ok := s.FindInstance(sel.Instance); ok {
			return 1
		}
		return 0
	}
	count := 0
	for _, pid := range s.PlayerOrder {
		if sel.Player != "" && sel.Player != pid {
			continue
		}
		if sel.Zone != "" {
			count += len(s.ListZone(pid, Zone(sel.Zone)))
			continue
		}
		// No zone scope: count in-play instances (leader, characters, stage).
		p := s.Players[pid]
		if p.Leader != nil {
			count++
		}
		if p.Stage != nil {
			count++
		}
		count += len(p.Characters)
	}
	return count
}

// statQueryFor assembles the live inputs for a ledger stat query.
func (s *GameState) statQueryFor(inst *CardInstance) effects.StatQuery {
	return effects.StatQuery{
		OwnerTurn:  s.ActivePlayer == inst.Owner,
		TokenCount: len(inst.Attached),
		Count:      s.CountSelector,
		SourcePrinted: func(id int64) (int, bool) {
			src, zone, _, ok := s.FindInstance(id)
			if !ok || !zoneInPlay(zone) {
				return 0, false
			}
			return src.BasePower, true
		},
	}
}

// EffectivePower computes the instance's power including continuous
// modifiers and the resource-token bonus.
func (s *GameState) EffectivePower(id int64) (int, error) {
	inst, zone, _, ok := s.FindInstance(id)
	if !ok {
		return 0, fmt.Errorf("power query for %d: %w", id, ErrNotFound)
	}
	if !zoneInPlay(zone) {
		return 0, fmt.Errorf("power query for %d in %s: %w", id, zone, ErrInvalidTarget)
	}
	return s.Ledger.StatValue(rules.StatPower, inst.BasePower, id, s.statQueryFor(inst)), nil
}

// EffectiveCost computes the instance's play cost including modifiers.
// Costs never go below zero.
func (s *GameState) EffectiveCost(id int64) (int, error) {
	inst, _, _, ok := s.FindInstance(id)
	if !ok {
		return 0, fmt.Errorf("cost query for %d: %w", id, ErrNotFound)
	}
	cost := s.Ledger.StatValue(rules.StatCost, inst.BaseCost, id, s.statQueryFor(inst))
	if cost < 0 {
		cost = 0
	}
	return cost, nil
}

func zoneInPlay(zone Zone) bool {
	return zone == ZoneLeader || zone == ZoneCharacters || zone == ZoneStage
}

func zoneFaceUp(zone Zone) bool {
	return zone != ZoneDeck && zone != ZoneLife
}

// MoveOptions adjusts MoveInstance behavior.
type MoveOptions struct {
	// PreserveIdentity keeps the instance id, attachments, and modifiers
	// across the transfer. Never the default: effects that survive a zone
	// change must say so explicitly.
	PreserveIdentity bool
	// EnterRested sets the activation state on arrival.
	EnterRested bool
	// ToBottom places the card at the bottom of ordered zones (deck, life).
	ToBottom bool
}

// MoveInstance atomically transfers an instance to the destination zone. On
// success a new instance (fresh id, no attachments, no modifiers) occupies
// the destination and the old id resolves to nothing; on failure the state
// given to the caller is untouched.
func (s *GameState) MoveInstance(id int64, destPlayer string, dest Zone, opts MoveOptions) (*GameState, *CardInstance, error) {
	_, _, _, ok := s.FindInstance(id)
	if !ok {
		return nil, nil, fmt.Errorf("move %d: %w", id, ErrNotFound)
	}
	destState := s.Players[destPlayer]
	if destState == nil {
		return nil, nil, fmt.Errorf("move %d to unknown player %q: %w", id, destPlayer, ErrInvalidTarget)
	}
	switch dest {
	case ZoneCharacters:
		if len(destState.Characters) >= MaxCharacters {
			return nil, nil, fmt.Errorf("move %d to characters: %w", id, ErrZoneFull)
		}
	case ZoneLeader:
		if destState.Leader != nil {
			return nil, nil, fmt.Errorf("move %d to leader: %w", id, ErrZoneFull)
		}
	case ZoneStage:
		if destState.Stage != nil {
			return nil, nil, fmt.Errorf("move %d to stage: %w", id, ErrZoneFull)
		}
	}

	next := s.Clone()
	inst := next.detach(id)
	if inst == nil {
		return nil, nil, fmt.Errorf("move %d: %w", id, ErrNotFound)
	}

	oldID := inst.InstanceID
	if !opts.PreserveIdentity {
		// Zone-change identity rule: destroy the old instance.
		next.returnAttachedToPool(inst)
		next.Ledger.RemoveByTarget(oldID)
		next.Ledger.RemoveBySource(oldID)
		next.Replacements.RemoveBySource(oldID)
		inst.InstanceID = next.MintInstanceID()
	}
	inst.Zone = dest
	inst.FaceUp = zoneFaceUp(dest)
	if opts.EnterRested {
		inst.State = StateRested
	} else {
		inst.State = StateActive
	}

	if err := next.place(inst, destPlayer, dest, opts.ToBottom); err != nil {
		return nil, nil, err
	}
	return next, inst, nil
}

// detach removes the instance from wherever it currently lives, including
// attachment lists, and returns it.
func (s *GameState) detach(id int64) *CardInstance {
	for _, pid := range s.PlayerOrder {
		p := s.Players[pid]
		if p.Leader != nil && p.Leader.InstanceID == id {
			inst := p.Leader
			p.Leader = nil
			return inst
		}
		if p.Stage != nil && p.Stage.InstanceID == id {
			inst := p.Stage
			p.Stage = nil
			return inst
		}
		holders := append([]*CardInstance{p.Leader, p.Stage}, p.Characters...)
		for _, h := range holders {
			if h == nil {
				continue
			}
			for i, a := range h.Attached {
				if a.InstanceID == id {
					h.Attached = append(h.Attached[:i], h.Attached[i+1:]...)
					return a
				}
			}
		}
		for _, zone := range []Zone{ZoneCharacters, ZoneHand, ZoneDeck, ZoneTrash, ZoneLife, ZoneResourceArea} {
			list := s.zoneSlice(p, zone)
			for i, c := range *list {
				if c.InstanceID == id {
					*list = append((*list)[:i], (*list)[i+1:]...)
					return c
				}
			}
		}
	}
	return nil
}

func (s *GameState) zoneSlice(p *PlayerState, zone Zone) *[]*CardInstance {
	switch zone {
	case ZoneCharacters:
		return &p.Characters
	case ZoneHand:
		return &p.Hand
	case ZoneDeck:
		return &p.Deck
	case ZoneTrash:
		return &p.Trash
	case ZoneLife:
		return &p.Life
	case ZoneResourceArea:
		return &p.ResourceArea
	default:
		return nil
	}
}

func (s *GameState) place(inst *CardInstance, playerID string, dest Zone, toBottom bool) error {
	p := s.Players[playerID]
	switch dest {
	case ZoneLeader:
		p.Leader = inst
	case ZoneStage:
		p.Stage = inst
	default:
		list := s.zoneSlice(p, dest)
		if list == nil {
			return fmt.Errorf("place into %s: %w", dest, ErrInvalidTarget)
		}
		if toBottom || dest == ZoneCharacters || dest == ZoneTrash || dest == ZoneHand || dest == ZoneResourceArea {
			*list = append(*list, inst)
		} else {
			// Ordered zones default to the top (index 0).
			*list = append([]*CardInstance{inst}, *list...)
		}
	}
	return nil
}

// returnAttachedToPool detaches every resource token from the instance back
// to its owner's pool in the rested state.
func (s *GameState) returnAttachedToPool(inst *CardInstance) {
	for _, token := range inst.Attached {
		token.State = StateRested
		token.Zone = ZoneResourceArea
		if owner := s.Players[token.Owner]; owner != nil {
			owner.ResourceArea = append(owner.ResourceArea, token)
		}
	}
	inst.Attached = nil
}
