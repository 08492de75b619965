package game

import (
	"go.uber.org/zap"

	"github.com/harborline/armada-server-go/internal/game/rules"
)

// Authority says whether this process owns rule resolution. Only the host
// drains the event queue; peers receive resolved state and replay the same
// inputs locally for display.
type Authority string

const (
	AuthorityHost Authority = "HOST"
	AuthorityPeer Authority = "PEER"
)

// Processor drains the pending event queue: for each event it consults the
// replacement registry, discovers triggered abilities, runs their action
// sequences, and expires duration-bound effects at boundary events. The
// processor is the single place where queued events turn into state changes.
type Processor struct {
	logger   *zap.Logger
	itp      *Interpreter
	Triggers *rules.TriggerManager
	bus      *rules.EventBus

	// Hook, when set, sees every event after replacements and triggers have
	// run. The engine uses it for catalog-aware handling (ability
	// registration on play, life-card trigger reveals) without the processor
	// knowing about card content.
	Hook func(state *GameState, event rules.Event, queue *rules.EventQueue, ctx *ExecContext) (*GameState, error)
}

// NewProcessor creates a processor sharing the given interpreter. The bus is
// optional; when nil, resolved events are not broadcast.
func NewProcessor(itp *Interpreter, bus *rules.EventBus, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		logger:   logger,
		itp:      itp,
		Triggers: rules.NewTriggerManager(),
		bus:      bus,
	}
}

// eventPriority orders simultaneous events: defeat first, then knockouts,
// then life reveals, then battle flow, with boundary markers last.
func eventPriority(t rules.EventType) int {
	switch t {
	case rules.EventPlayerDefeated:
		return 0
	case rules.EventWouldBeKO, rules.EventOnKO, rules.EventCharacterKO:
		return 1
	case rules.EventLifeCardRevealed, rules.EventDealDamage:
		return 2
	case rules.EventAttackDeclared, rules.EventAttackTargeted, rules.EventBlockerDeclared,
		rules.EventCounterPlayed, rules.EventBattleDamage:
		return 3
	case rules.EventBattleEnd, rules.EventTurnEnd, rules.EventRefreshStep:
		return 9
	default:
		return 5
	}
}

// Enqueue adds raised events to the queue with their canonical priority.
func (p *Processor) Enqueue(queue *rules.EventQueue, events ...rules.Event) {
	for _, ev := range events {
		queue.Enqueue(ev, eventPriority(ev.Type))
	}
}

// Drain resolves every queued event and returns the resulting state. Trigger
// action sequences may raise further events; those are enqueued and drained
// in the same call, so the queue is empty when Drain returns. Only the host
// authority may drain; a peer calling Drain gets ErrNotAuthoritative.
func (p *Processor) Drain(state *GameState, queue *rules.EventQueue, authority Authority, ctx *ExecContext) (*GameState, error) {
	if authority != AuthorityHost {
		return state, ErrNotAuthoritative
	}

	for queue.Len() > 0 {
		event, _ := queue.Dequeue()

		next, err := p.resolve(state, event, queue, ctx)
		if err != nil {
			return state, err
		}
		state = next

		if p.bus != nil {
			p.bus.Publish(event)
		}
	}
	return state, nil
}

func (p *Processor) resolve(state *GameState, event rules.Event, queue *rules.EventQueue, ctx *ExecContext) (*GameState, error) {
	// Replacement effects get the first look at every queued event. KO and
	// damage events are already consulted at their generation site; the
	// AppliedEffects list keeps an effect from firing twice on one event.
	targetOwner := event.Player
	if inst, _, owner, ok := state.FindInstance(event.Target); ok && inst != nil {
		targetOwner = owner
	}
	next, replaced, repOut, err := p.itp.applyReplacement(state, event, targetOwner, ctx)
	if err != nil {
		return state, err
	}
	state = next
	if replaced {
		p.Enqueue(queue, repOut.Events...)
		return state, nil
	}

	state, err = p.runTriggers(state, event, queue, ctx)
	if err != nil {
		return state, err
	}

	if p.Hook != nil {
		state, err = p.Hook(state, event, queue, ctx)
		if err != nil {
			return state, err
		}
	}

	// Boundary events expire duration-bound modifiers and replacements. The
	// event's player scopes refresh expiry to the refreshing player's own
	// until-refresh effects.
	if event.Type.IsBoundary() {
		state = state.Clone()
		state.Ledger.ExpireBoundary(event.Type, event.Player)
		state.Replacements.Expire(event.Type, event.Player)
	}

	// A character leaving play takes its registered abilities with it.
	switch event.Type {
	case rules.EventCharacterKO:
		p.Triggers.UnregisterBySource(event.Target)
	case rules.EventCardMoved:
		if event.Source != 0 {
			p.Triggers.UnregisterBySource(event.Source)
		}
	}

	return state, nil
}

// runTriggers fires every triggered ability listening for the event, turn
// player's abilities first. An unpayable cost skips the ability without
// error. A trigger firing while an attack is still being declared locks the
// battle so the declaration can no longer be cancelled.
func (p *Processor) runTriggers(state *GameState, event rules.Event, queue *rules.EventQueue, ctx *ExecContext) (*GameState, error) {
	matched := p.Triggers.Discover(event, state.Turn, state.ActivePlayer)
	for _, trigger := range matched {
		paid := state
		if !trigger.Cost.IsFree() {
			afterCost, err := payCost(state, trigger.Controller, trigger.Cost, trigger.Source)
			if err != nil {
				p.logger.Debug("trigger cost unpayable, skipping",
					zap.String("trigger", trigger.ID),
					zap.Error(err))
				continue
			}
			paid = afterCost
		}

		trigCtx := &ExecContext{
			Player:    trigger.Controller,
			Source:    trigger.Source,
			Decisions: remainingDecisions(ctx),
		}
		next, out, err := p.itp.ExecuteAll(paid, trigger.Actions, trigCtx)
		ctx.next += trigCtx.next
		if err != nil {
			if _, pending := AsPendingDecision(err); pending {
				// Bubble the decision request up; the engine re-runs the
				// whole operation with the answer appended.
				return state, err
			}
			p.logger.Warn("trigger execution failed",
				zap.String("trigger", trigger.ID),
				zap.Error(err))
			continue
		}
		state = next
		p.Triggers.MarkFired(trigger.ID, state.Turn)

		if state.Battle != nil && state.Battle.Step == StepDeclaring {
			state = state.Clone()
			state.Battle.Locked = true
		}

		p.Enqueue(queue, out.Events...)
	}
	return state, nil
}
