package game

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/harborline/armada-server-go/internal/catalog"
	"github.com/harborline/armada-server-go/internal/game/rules"
)

// StartingHandSize is drawn during setup.
const StartingHandSize = 5

// PlayerSetup is one side's deck registration for game creation.
type PlayerSetup struct {
	PlayerID string
	LeaderID string
	Deck     []string // card ids, pre-shuffle order
}

// PeerActionType names an accepted peer action. The relay forwards these
// envelopes verbatim; the engine validates and applies them against
// authoritative state.
type PeerActionType string

const (
	PeerPlayCard        PeerActionType = "PLAY_CARD"
	PeerGiveResource    PeerActionType = "GIVE_RESOURCE"
	PeerDeclareAttack   PeerActionType = "DECLARE_ATTACK"
	PeerChooseTarget    PeerActionType = "CHOOSE_TARGET"
	PeerCancelAttack    PeerActionType = "CANCEL_ATTACK"
	PeerDeclareBlocker  PeerActionType = "DECLARE_BLOCKER"
	PeerPlayCounter     PeerActionType = "PLAY_COUNTER"
	PeerAdvanceBattle   PeerActionType = "ADVANCE_BATTLE"
	PeerActivateAbility PeerActionType = "ACTIVATE_ABILITY"
	PeerEndTurn         PeerActionType = "END_TURN"
)

// PeerAction is the wire and replay-log form of one player input. Decisions
// collected for the same operation ride along so a replay never blocks.
type PeerAction struct {
	Type      PeerActionType
	Player    string
	Instance  int64
	Target    int64
	Count     int
	Ability   int // ability index for ACTIVATE_ABILITY
	Decisions []Decision
}

type pendingOp struct {
	action  PeerAction
	request DecisionRequest
}

// Engine is the authoritative facade over one game: it owns the state value,
// serializes peer actions, drives the rule processor after every mutation,
// and records the action log for replay. All methods are safe for concurrent
// use.
type Engine struct {
	mu        sync.Mutex
	logger    *zap.Logger
	authority Authority
	catalog   catalog.Provider
	itp       *Interpreter
	battle    *BattleMachine
	processor *Processor

	state   *GameState
	setups  []PlayerSetup
	seed    uint64
	log     *ReplayLog
	pending *pendingOp

	// activated-ability frequency bookkeeping, keyed by instance id and
	// ability index
	usedTurn map[string]int
	usedEver map[string]bool
}

// NewEngine creates an engine for one game. The bus is optional; when set,
// every resolved event is published on it for relay/telemetry consumers.
func NewEngine(provider catalog.Provider, authority Authority, bus *rules.EventBus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	itp := NewInterpreter(logger)
	e := &Engine{
		logger:    logger,
		authority: authority,
		catalog:   provider,
		itp:       itp,
		battle:    NewBattleMachine(itp, logger),
		processor: NewProcessor(itp, bus, logger),
		usedTurn:  make(map[string]int),
		usedEver:  make(map[string]bool),
	}
	e.processor.Hook = e.onEvent
	return e
}

// CreateGame builds the starting state from two decklists and runs the first
// turn's setup (leaders in play, life dealt from the top of the deck, opening
// hands, first resource token). The seed fixes every shuffle, so the same
// setups and seed always produce the same game.
func (e *Engine) CreateGame(gameID string, seed uint64, setups []PlayerSetup) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		return fmt.Errorf("game %s already created: %w", e.state.GameID, ErrBadStep)
	}
	if len(setups) != 2 {
		return fmt.Errorf("need exactly two players, got %d: %w", len(setups), ErrInvalidTarget)
	}

	state := NewGameState(gameID, setups[0].PlayerID, setups[1].PlayerID, seed)
	for _, setup := range setups {
		if err := e.setupPlayer(state, setup); err != nil {
			return err
		}
	}

	// Leaders are in play from the start; their abilities register now.
	for _, setup := range setups {
		leader := state.Players[setup.PlayerID].Leader
		if card, ok := e.catalog.Card(leader.CardID); ok {
			e.registerAbilities(leader.InstanceID, setup.PlayerID, card)
		}
	}

	// First turn: refresh and draw are skipped for the starting player, the
	// resource phase still grants a token.
	state.Phase = PhaseResource
	e.grantResourceToken(state, state.ActivePlayer)
	state.Phase = PhaseMain
	state.AppendLog("game %s started, %s goes first", gameID, state.ActivePlayer)

	e.state = state
	e.seed = seed
	e.setups = append([]PlayerSetup(nil), setups...)
	e.log = NewReplayLog(gameID, seed, setups)
	e.logger.Info("game created",
		zap.String("game_id", gameID),
		zap.Uint64("seed", seed),
		zap.String("first_player", state.ActivePlayer))
	return nil
}

func (e *Engine) setupPlayer(state *GameState, setup PlayerSetup) error {
	leaderCard, ok := e.catalog.Card(setup.LeaderID)
	if !ok {
		return fmt.Errorf("leader %q: %w", setup.LeaderID, ErrNotFound)
	}
	p := state.Players[setup.PlayerID]
	p.Leader = e.buildInstance(state, leaderCard, setup.PlayerID, ZoneLeader)

	for _, cardID := range setup.Deck {
		card, ok := e.catalog.Card(cardID)
		if !ok {
			return fmt.Errorf("deck card %q: %w", cardID, ErrNotFound)
		}
		p.Deck = append(p.Deck, e.buildInstance(state, card, setup.PlayerID, ZoneDeck))
	}
	state.RNG.Shuffle(len(p.Deck), func(i, j int) {
		p.Deck[i], p.Deck[j] = p.Deck[j], p.Deck[i]
	})

	// Life comes off the top of the shuffled deck, face down, leader's life
	// total deep.
	life := leaderCard.Life
	if life > len(p.Deck) {
		life = len(p.Deck)
	}
	for i := 0; i < life; i++ {
		card := p.Deck[0]
		p.Deck = p.Deck[1:]
		card.Zone = ZoneLife
		card.FaceUp = false
		p.Life = append(p.Life, card)
	}

	for i := 0; i < StartingHandSize && len(p.Deck) > 0; i++ {
		card := p.Deck[0]
		p.Deck = p.Deck[1:]
		card.Zone = ZoneHand
		card.FaceUp = true
		p.Hand = append(p.Hand, card)
	}
	return nil
}

func (e *Engine) buildInstance(state *GameState, card catalog.Card, owner string, zone Zone) *CardInstance {
	return &CardInstance{
		InstanceID:   state.MintInstanceID(),
		CardID:       card.ID,
		Name:         card.Name,
		Category:     Category(card.Category),
		Owner:        owner,
		Zone:         zone,
		State:        StateActive,
		FaceUp:       zoneFaceUp(zone),
		BasePower:    card.Power,
		BaseCost:     card.Cost,
		CounterValue: card.Counter,
		Keywords:     append([]string(nil), card.Keywords...),
	}
}

func (e *Engine) grantResourceToken(state *GameState, player string) {
	p := state.Players[player]
	p.ResourceArea = append(p.ResourceArea, &CardInstance{
		InstanceID: state.MintInstanceID(),
		CardID:     "resource-token",
		Name:       "Resource",
		Category:   CategoryResource,
		Owner:      player,
		Zone:       ZoneResourceArea,
		State:      StateActive,
		FaceUp:     true,
	})
}

// State returns a deep copy of the current state.
func (e *Engine) State() *GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}
	return e.state.Clone()
}

// Pending returns the decision request blocking the current operation, if any.
func (e *Engine) Pending() (DecisionRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return DecisionRequest{}, false
	}
	return e.pending.request, true
}

// Log returns a copy of the replay log recorded so far.
func (e *Engine) Log() *ReplayLog {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Copy()
}

// Apply validates and applies one peer action. On success the new state is
// committed and the action (with any decisions it consumed) is appended to
// the replay log. When resolution stops at a decision point the state is
// unchanged, the request is held, and the same action re-runs once
// ResolveDecision supplies the answer.
func (e *Engine) Apply(action PeerAction) (*GameState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(action)
}

func (e *Engine) applyLocked(action PeerAction) (*GameState, error) {
	if e.state == nil {
		return nil, fmt.Errorf("no game: %w", ErrNotFound)
	}
	if e.state.Winner != "" {
		return nil, fmt.Errorf("winner is %s: %w", e.state.Winner, ErrGameOver)
	}
	if e.pending != nil {
		return nil, fmt.Errorf("decision pending for %s: %w", e.pending.request.Player, ErrBadStep)
	}

	// Trigger registrations, fired marks, and ability-use bookkeeping mutate
	// alongside the state during run. An abort (pending decision or failure)
	// discards the state, so these roll back with it; the retry then sees
	// exactly the pre-operation world.
	triggerSnap := e.processor.Triggers.Snapshot()
	usedTurnSnap, usedEverSnap := copyIntMap(e.usedTurn), copyBoolMap(e.usedEver)

	next, err := e.run(e.state, action)
	if err != nil {
		e.processor.Triggers.Restore(triggerSnap)
		e.usedTurn, e.usedEver = usedTurnSnap, usedEverSnap
		if pd, ok := AsPendingDecision(err); ok {
			e.pending = &pendingOp{action: action, request: pd.Request}
			e.logger.Debug("operation blocked on decision",
				zap.String("type", string(action.Type)),
				zap.String("decider", pd.Request.Player))
		}
		return nil, err
	}

	e.state = next
	e.log.Append(action)
	return next.Clone(), nil
}

// ResolveDecision answers the pending decision and re-runs the blocked
// operation from its pre-operation state with the answer appended.
func (e *Engine) ResolveDecision(player string, decision Decision) (*GameState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil, fmt.Errorf("no pending decision: %w", ErrBadStep)
	}
	if e.pending.request.Player != player {
		return nil, fmt.Errorf("decision belongs to %s: %w", e.pending.request.Player, ErrInvalidTarget)
	}
	action := e.pending.action
	action.Decisions = append(action.Decisions, decision)
	e.pending = nil
	return e.applyLocked(action)
}

// run executes one action against a state value and drains the resulting
// events. The input state is never mutated; every path below goes through
// the clone-on-write operations.
func (e *Engine) run(state *GameState, action PeerAction) (*GameState, error) {
	ctx := &ExecContext{Player: action.Player, Decisions: action.Decisions}

	var (
		next *GameState
		out  Outcome
		err  error
	)
	switch action.Type {
	case PeerPlayCard:
		next, out, err = e.playCard(state, action, ctx)
	case PeerGiveResource:
		next, out, err = e.giveResource(state, action, ctx)
	case PeerDeclareAttack:
		if err = e.requireTurn(state, action.Player); err == nil {
			next, out, err = e.battle.Declare(state, action.Instance, ctx)
		}
	case PeerChooseTarget:
		if err = e.requireTurn(state, action.Player); err == nil {
			next, out, err = e.battle.ChooseTarget(state, action.Target, ctx)
		}
	case PeerCancelAttack:
		if err = e.requireTurn(state, action.Player); err == nil {
			next, out, err = e.battle.Cancel(state)
		}
	case PeerDeclareBlocker:
		next, out, err = e.battle.DeclareBlocker(state, action.Instance, ctx)
	case PeerPlayCounter:
		next, out, err = e.battle.PlayCounter(state, action.Instance, ctx)
	case PeerAdvanceBattle:
		next, out, err = e.battle.Advance(state, ctx)
	case PeerActivateAbility:
		next, out, err = e.activateAbility(state, action, ctx)
	case PeerEndTurn:
		return e.endTurn(state, action, ctx)
	default:
		return nil, fmt.Errorf("peer action %q: %w", action.Type, ErrUnknownActionKind)
	}
	if err != nil {
		return nil, err
	}

	return e.drain(next, out.Events, ctx)
}

// drain pushes raised events through the rule processor and settles defeat.
func (e *Engine) drain(state *GameState, events []rules.Event, ctx *ExecContext) (*GameState, error) {
	queue := rules.NewEventQueue()
	e.processor.Enqueue(queue, events...)
	next, err := e.processor.Drain(state, queue, e.authority, ctx)
	if err != nil {
		return nil, err
	}
	return e.settleDefeat(next), nil
}

func (e *Engine) settleDefeat(state *GameState) *GameState {
	if state.Winner != "" {
		return state
	}
	for _, pid := range state.PlayerOrder {
		if state.Players[pid].Defeated {
			next := state.Clone()
			next.Winner = next.Opponent(pid)
			next.AppendLog("%s wins", next.Winner)
			e.logger.Info("game over",
				zap.String("game_id", next.GameID),
				zap.String("winner", next.Winner))
			return next
		}
	}
	return state
}

func (e *Engine) requireTurn(state *GameState, player string) error {
	if player != state.ActivePlayer {
		return fmt.Errorf("%s acting out of turn: %w", player, ErrInvalidTarget)
	}
	return nil
}

func (e *Engine) requireMain(state *GameState, player string) error {
	if err := e.requireTurn(state, player); err != nil {
		return err
	}
	if state.Phase != PhaseMain {
		return fmt.Errorf("phase %s: %w", state.Phase, ErrBadStep)
	}
	if state.Battle != nil {
		return fmt.Errorf("battle in flight: %w", ErrBadStep)
	}
	return nil
}

func (e *Engine) playCard(state *GameState, action PeerAction, ctx *ExecContext) (*GameState, Outcome, error) {
	if err := e.requireMain(state, action.Player); err != nil {
		return nil, Outcome{}, err
	}
	inst, _, owner, ok := state.FindInstance(action.Instance)
	if !ok {
		return nil, Outcome{}, fmt.Errorf("play %d: %w", action.Instance, ErrNotFound)
	}
	if owner != action.Player {
		return nil, Outcome{}, fmt.Errorf("play %s owned by %s: %w", inst.Name, owner, ErrInvalidTarget)
	}
	return e.itp.Execute(state, rules.Action{
		Kind:   rules.ActionPlay,
		Target: rules.Selector{Instance: action.Instance},
	}, ctx)
}

func (e *Engine) giveResource(state *GameState, action PeerAction, ctx *ExecContext) (*GameState, Outcome, error) {
	if err := e.requireMain(state, action.Player); err != nil {
		return nil, Outcome{}, err
	}
	return e.itp.Execute(state, rules.Action{
		Kind:   rules.ActionGiveResource,
		Target: rules.Selector{Instance: action.Target},
		Count:  action.Count,
	}, ctx)
}

func (e *Engine) activateAbility(state *GameState, action PeerAction, ctx *ExecContext) (*GameState, Outcome, error) {
	if err := e.requireMain(state, action.Player); err != nil {
		return nil, Outcome{}, err
	}
	inst, zone, owner, ok := state.FindInstance(action.Instance)
	if !ok {
		return nil, Outcome{}, fmt.Errorf("activate %d: %w", action.Instance, ErrNotFound)
	}
	if owner != action.Player || !zoneInPlay(zone) {
		return nil, Outcome{}, fmt.Errorf("activate %s: %w", inst.Name, ErrInvalidTarget)
	}
	card, ok := e.catalog.Card(inst.CardID)
	if !ok || action.Ability < 0 || action.Ability >= len(card.Abilities) {
		return nil, Outcome{}, fmt.Errorf("ability %d on %s: %w", action.Ability, inst.Name, ErrNotFound)
	}
	ability := card.Abilities[action.Ability]
	if ability.Timing != catalog.TimingActivateMain {
		return nil, Outcome{}, fmt.Errorf("ability %d on %s is %s: %w", action.Ability, inst.Name, ability.Timing, ErrInvalidTarget)
	}

	key := fmt.Sprintf("%d/%d", inst.InstanceID, action.Ability)
	switch ability.Frequency {
	case rules.FrequencyOncePerTurn:
		if turn, used := e.usedTurn[key]; used && turn == state.Turn {
			return nil, Outcome{}, fmt.Errorf("ability %d on %s already used this turn: %w", action.Ability, inst.Name, ErrInvalidTarget)
		}
	case rules.FrequencyOncePerGame:
		if e.usedEver[key] {
			return nil, Outcome{}, fmt.Errorf("ability %d on %s already used: %w", action.Ability, inst.Name, ErrInvalidTarget)
		}
	}

	paid, err := payCost(state, action.Player, ability.Cost, inst.InstanceID)
	if err != nil {
		return nil, Outcome{}, err
	}
	abilityCtx := &ExecContext{Player: action.Player, Source: inst.InstanceID, Decisions: ctx.Decisions}
	next, out, err := e.itp.ExecuteAll(paid, ability.Effect, abilityCtx)
	ctx.next = abilityCtx.next
	if err != nil {
		return nil, Outcome{}, err
	}
	e.usedTurn[key] = state.Turn
	e.usedEver[key] = true
	return next, out, nil
}

// endTurn closes the active player's turn and runs the next player's refresh,
// draw, and resource phases. Each stage drains before the next begins so
// end-of-turn triggers and expirations resolve in order.
func (e *Engine) endTurn(state *GameState, action PeerAction, ctx *ExecContext) (*GameState, error) {
	if err := e.requireTurn(state, action.Player); err != nil {
		return nil, err
	}
	if state.Battle != nil {
		return nil, fmt.Errorf("battle in flight: %w", ErrBadStep)
	}

	next := state.Clone()
	next.Phase = PhaseEnd
	next.AppendLog("%s ends the turn", action.Player)
	end := rules.NewEvent(rules.EventTurnEnd, 0, action.Player)
	end.Generator = action.Player
	next, err := e.drain(next, []rules.Event{end}, ctx)
	if err != nil {
		return nil, err
	}
	if next.Winner != "" {
		return next, nil
	}

	// New turn: refresh phase.
	next = next.Clone()
	incoming := next.Opponent(next.ActivePlayer)
	next.ActivePlayer = incoming
	next.Turn++
	next.Phase = PhaseRefresh
	e.refresh(next, incoming)
	refreshEv := rules.NewEvent(rules.EventRefreshStep, 0, incoming)
	phaseEv := rules.NewEvent(rules.EventTurnBegin, 0, incoming)
	next, err = e.drain(next, []rules.Event{refreshEv, phaseEv}, ctx)
	if err != nil {
		return nil, err
	}

	// Draw phase.
	next = next.Clone()
	next.Phase = PhaseDraw
	var drawEvents []rules.Event
	p := next.Players[incoming]
	if len(p.Deck) == 0 {
		// Drawing from an empty deck is a loss.
		p.Defeated = true
		next.AppendLog("%s cannot draw", incoming)
		drawEvents = append(drawEvents, rules.NewEvent(rules.EventPlayerDefeated, 0, incoming))
	} else {
		drawn, card, moveErr := next.MoveInstance(p.Deck[0].InstanceID, incoming, ZoneHand, MoveOptions{})
		if moveErr != nil {
			return nil, moveErr
		}
		next = drawn
		ev := rules.NewEvent(rules.EventCardDrawn, card.InstanceID, incoming)
		drawEvents = append(drawEvents, ev)
	}
	next, err = e.drain(next, drawEvents, ctx)
	if err != nil {
		return nil, err
	}
	if next.Winner != "" {
		return next, nil
	}

	// Resource phase grants one token per turn, then play opens.
	next = next.Clone()
	next.Phase = PhaseResource
	e.grantResourceToken(next, incoming)
	next.Phase = PhaseMain
	next.AppendLog("turn %d: %s", next.Turn, incoming)
	return next, nil
}

// refresh resets activation states for the incoming player: in-play cards and
// pool tokens return to active.
func (e *Engine) refresh(state *GameState, player string) {
	p := state.Players[player]
	if p.Leader != nil {
		p.Leader.State = StateActive
	}
	if p.Stage != nil {
		p.Stage.State = StateActive
	}
	for _, c := range p.Characters {
		c.State = StateActive
		for _, t := range c.Attached {
			t.State = StateActive
		}
	}
	for _, t := range p.ResourceArea {
		t.State = StateActive
	}
}

// onEvent is the processor hook: catalog-aware handling the core rules layer
// stays ignorant of.
func (e *Engine) onEvent(state *GameState, event rules.Event, queue *rules.EventQueue, ctx *ExecContext) (*GameState, error) {
	switch event.Type {
	case rules.EventCardPlayed:
		return e.onCardPlayed(state, event, queue, ctx)
	case rules.EventLifeCardRevealed:
		return e.onLifeRevealed(state, event, queue, ctx)
	}
	return state, nil
}

// onCardPlayed registers the played card's triggered abilities and runs its
// on-play effects.
func (e *Engine) onCardPlayed(state *GameState, event rules.Event, queue *rules.EventQueue, ctx *ExecContext) (*GameState, error) {
	card, ok := e.catalog.Card(event.Data)
	if !ok {
		return state, nil
	}
	inst, zone, owner, found := state.FindInstance(event.Target)
	if found && zoneInPlay(zone) {
		e.registerAbilities(inst.InstanceID, owner, card)
	}

	for _, ability := range card.Abilities {
		if ability.Timing != catalog.TimingOnPlay {
			continue
		}
		playCtx := &ExecContext{Player: event.Player, Source: event.Target, Decisions: remainingDecisions(ctx)}
		next, out, err := e.itp.ExecuteAll(state, ability.Effect, playCtx)
		ctx.next += playCtx.next
		if err != nil {
			return state, err
		}
		state = next
		e.processor.Enqueue(queue, out.Events...)
	}
	return state, nil
}

// onLifeRevealed runs a revealed life card's trigger ability for its owner.
// The card is already in hand; the ability is a free extra resolution.
func (e *Engine) onLifeRevealed(state *GameState, event rules.Event, queue *rules.EventQueue, ctx *ExecContext) (*GameState, error) {
	card, ok := e.catalog.Card(event.Data)
	if !ok {
		return state, nil
	}
	for _, ability := range card.Abilities {
		if ability.Timing != catalog.TimingTrigger {
			continue
		}
		trigCtx := &ExecContext{Player: event.Player, Source: event.Target, Decisions: remainingDecisions(ctx)}
		next, out, err := e.itp.ExecuteAll(state, ability.Effect, trigCtx)
		ctx.next += trigCtx.next
		if err != nil {
			return state, err
		}
		state = next
		e.processor.Enqueue(queue, out.Events...)
	}
	return state, nil
}

// registerAbilities installs a card's event-driven abilities on the trigger
// manager, bound to the instance id so a zone change tears them down.
func (e *Engine) registerAbilities(instanceID int64, controller string, card catalog.Card) {
	for _, ability := range card.Abilities {
		eventType, ok := timingEvent(ability.Timing)
		if !ok {
			continue
		}
		condition := conditionFor(ability.Timing, instanceID, controller)
		e.processor.Triggers.Register(rules.TriggeredAbility{
			Source:     instanceID,
			Controller: controller,
			EventType:  eventType,
			Frequency:  ability.Frequency,
			Condition:  condition,
			Cost:       ability.Cost,
			Actions:    ability.Effect,
		})
	}
}

func timingEvent(timing catalog.Timing) (rules.EventType, bool) {
	switch timing {
	case catalog.TimingOnAttack:
		return rules.EventAttackDeclared, true
	case catalog.TimingOnBlock:
		return rules.EventBlockerDeclared, true
	case catalog.TimingOnKO:
		return rules.EventOnKO, true
	case catalog.TimingEndOfTurn:
		return rules.EventTurnEnd, true
	default:
		// on-play, trigger, and activated abilities do not subscribe.
		return "", false
	}
}

func conditionFor(timing catalog.Timing, instanceID int64, controller string) func(rules.Event) bool {
	switch timing {
	case catalog.TimingEndOfTurn:
		return func(ev rules.Event) bool { return ev.Player == controller }
	default:
		return func(ev rules.Event) bool { return ev.Target == instanceID }
	}
}

func remainingDecisions(ctx *ExecContext) []Decision {
	if ctx.next >= len(ctx.Decisions) {
		return nil
	}
	return ctx.Decisions[ctx.next:]
}

func copyIntMap(m map[string]int) map[string]int {
	cp := make(map[string]int, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func copyBoolMap(m map[string]bool) map[string]bool {
	cp := make(map[string]bool, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
