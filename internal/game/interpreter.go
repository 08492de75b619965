package game

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/harborline/armada-server-go/internal/game/effects"
	"github.com/harborline/armada-server-go/internal/game/rules"
)

// Decision is one answer to a decision point, supplied ahead of execution.
// Decisions are recorded alongside actions in the replay log so a replay
// never blocks on input.
type Decision struct {
	Accept   bool
	Mode     int
	EffectID string
}

// ExecContext carries the acting player, source instance, and the queued
// decisions an action sequence will consume in order.
type ExecContext struct {
	Player    string
	Source    int64
	Decisions []Decision

	next int
}

func (ctx *ExecContext) takeDecision() (Decision, bool) {
	if ctx.next >= len(ctx.Decisions) {
		return Decision{}, false
	}
	d := ctx.Decisions[ctx.next]
	ctx.next++
	return d, true
}

// OutcomeCode classifies a successful execution result.
type OutcomeCode string

const (
	OutcomeOK       OutcomeCode = "OK"
	OutcomeDeclined OutcomeCode = "DECLINED"
	OutcomeKOed     OutcomeCode = "KOED"
	OutcomeReplaced OutcomeCode = "REPLACED"
	OutcomeNoop     OutcomeCode = "NOOP"
)

// Outcome is the success half of an interpreter result: the code, an
// optional log line, and the events raised by execution for the rule
// processor to drain.
type Outcome struct {
	Code   OutcomeCode
	Log    string
	Events []rules.Event
}

func (o *Outcome) raise(events ...rules.Event) {
	o.Events = append(o.Events, events...)
}

func (o *Outcome) absorb(other Outcome) {
	o.Events = append(o.Events, other.Events...)
	if other.Log != "" {
		o.Log = other.Log
	}
}

// Interpreter executes structured action descriptors against a game state.
// Every call returns a new state; the input state is never mutated.
type Interpreter struct {
	logger *zap.Logger
}

// NewInterpreter creates an interpreter.
func NewInterpreter(logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{logger: logger}
}

// ExecuteAll runs a descriptor sequence left to right. Each descriptor sees
// the state produced by its predecessor; execution stops at the first
// failure and returns it. There is no automatic rollback — callers needing
// all-or-nothing semantics snapshot state beforehand.
func (itp *Interpreter) ExecuteAll(state *GameState, actions []rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	out := Outcome{Code: OutcomeOK}
	for i, action := range actions {
		next, stepOut, err := itp.Execute(state, action, ctx)
		if err != nil {
			return state, out, fmt.Errorf("action %d (%s): %w", i, action.Kind, err)
		}
		state = next
		out.absorb(stepOut)
	}
	return state, out, nil
}

// Execute runs a single action descriptor and returns the successor state.
func (itp *Interpreter) Execute(state *GameState, action rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	if action.May {
		decision, ok := ctx.takeDecision()
		if !ok {
			return state, Outcome{}, &PendingDecisionError{Request: DecisionRequest{
				Kind:   DecisionAccept,
				Player: ctx.Player,
				Prompt: fmt.Sprintf("you may %s", action.Kind),
			}}
		}
		if !decision.Accept {
			// Declining an optional action is a no-op success.
			return state, Outcome{Code: OutcomeDeclined}, nil
		}
	}

	switch action.Kind {
	case rules.ActionMove:
		return itp.execMove(state, action, ctx)
	case rules.ActionPlay:
		return itp.execPlay(state, action, ctx)
	case rules.ActionModifyStat:
		return itp.execModifyStat(state, action, ctx)
	case rules.ActionKO:
		return itp.KO(state, action.Target.Instance, CauseEffect, ctx)
	case rules.ActionGiveResource:
		return itp.execGiveResource(state, action, ctx)
	case rules.ActionReturnResource:
		return itp.execReturnResource(state, action, ctx)
	case rules.ActionDealDamage:
		return itp.execDealDamage(state, action, ctx)
	case rules.ActionRegisterReplacement:
		return itp.execRegisterReplacement(state, action, ctx)
	case rules.ActionConditional:
		return itp.execConditional(state, action, ctx)
	case rules.ActionChooseMode:
		return itp.execChooseMode(state, action, ctx)
	default:
		return state, Outcome{}, fmt.Errorf("%q: %w", action.Kind, ErrUnknownActionKind)
	}
}

func (itp *Interpreter) execMove(state *GameState, action rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	inst, _, owner, ok := state.FindInstance(action.Target.Instance)
	if !ok {
		return state, Outcome{}, fmt.Errorf("move target %d: %w", action.Target.Instance, ErrNotFound)
	}
	destPlayer := action.ToPlayer
	if destPlayer == "" {
		destPlayer = owner
	}
	oldID := inst.InstanceID
	dest := Zone(action.ToZone)
	next, moved, err := state.MoveInstance(inst.InstanceID, destPlayer, dest, MoveOptions{
		PreserveIdentity: action.PreserveIdentity,
		EnterRested:      action.EnterRested,
	})
	if err != nil {
		return state, Outcome{}, err
	}
	next.AppendLog("%s moved to %s", moved.Name, dest)

	out := Outcome{Code: OutcomeOK, Log: fmt.Sprintf("%s moved to %s", moved.Name, dest)}
	ev := rules.NewEvent(rules.EventCardMoved, moved.InstanceID, owner)
	ev.Generator = ctx.Player
	ev.Zone = string(dest)
	ev.Source = oldID // destroyed identity, for trigger cleanup
	out.raise(ev)
	if dest == ZoneTrash {
		tr := rules.NewEvent(rules.EventCardTrashed, moved.InstanceID, owner)
		tr.Generator = ctx.Player
		out.raise(tr)
	}
	return next, out, nil
}

func (itp *Interpreter) execPlay(state *GameState, action rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	inst, zone, owner, ok := state.FindInstance(action.Target.Instance)
	if !ok {
		return state, Outcome{}, fmt.Errorf("play target %d: %w", action.Target.Instance, ErrNotFound)
	}
	if zone != ZoneHand {
		return state, Outcome{}, fmt.Errorf("play from %s: %w", zone, ErrInvalidTarget)
	}

	next := state
	if !action.WaiveCost {
		cost, err := state.EffectiveCost(inst.InstanceID)
		if err != nil {
			return state, Outcome{}, err
		}
		paid, err := payResources(state, owner, cost)
		if err != nil {
			return state, Outcome{}, err
		}
		next = paid
	}

	dest := ZoneCharacters
	switch inst.Category {
	case CategoryStage:
		dest = ZoneStage
	case CategoryEvent:
		// Events resolve and go straight to the trash; their effect actions
		// come from the catalog and run through the same pipeline.
		dest = ZoneTrash
	}
	next, played, err := next.MoveInstance(inst.InstanceID, owner, dest, MoveOptions{
		EnterRested: action.EnterRested,
	})
	if err != nil {
		return state, Outcome{}, err
	}
	played.PlayedTurn = next.Turn
	next.AppendLog("%s played %s", owner, played.Name)

	out := Outcome{Code: OutcomeOK, Log: fmt.Sprintf("%s played %s", owner, played.Name)}
	ev := rules.NewEvent(rules.EventCardPlayed, played.InstanceID, owner)
	ev.Generator = ctx.Player
	ev.Data = played.CardID
	out.raise(ev)
	return next, out, nil
}

func (itp *Interpreter) execModifyStat(state *GameState, action rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	targets := resolveInstances(state, action.Target)
	if len(targets) == 0 {
		return state, Outcome{}, fmt.Errorf("modify-stat selector matched nothing: %w", ErrInvalidTarget)
	}
	duration := action.Duration
	if duration == "" {
		duration = rules.DurationPermanent
	}
	next := state.Clone()
	next.Ledger.Add(effects.Modifier{
		Stat:          action.Stat,
		Mode:          action.Mode,
		Amount:        action.Amount,
		Targets:       targets,
		Duration:      duration,
		Source:        ctx.Source,
		Owner:         ctx.Player,
		CreatedTurn:   next.Turn,
		CountSelector: action.CountSelector,
	})
	return next, Outcome{Code: OutcomeOK}, nil
}

func (itp *Interpreter) execGiveResource(state *GameState, action rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	target, zone, owner, ok := state.FindInstance(action.Target.Instance)
	if !ok {
		return state, Outcome{}, fmt.Errorf("give-resource target %d: %w", action.Target.Instance, ErrNotFound)
	}
	if !zoneInPlay(zone) || (target.Category != CategoryLeader && target.Category != CategoryCharacter) {
		return state, Outcome{}, fmt.Errorf("give-resource to %s in %s: %w", target.Name, zone, ErrInvalidTarget)
	}
	count := action.Count
	if count <= 0 {
		count = 1
	}

	next := state.Clone()
	pool := next.Players[ctx.Player]
	if pool == nil {
		return state, Outcome{}, fmt.Errorf("give-resource by unknown player %q: %w", ctx.Player, ErrInvalidTarget)
	}
	taken := 0
	kept := pool.ResourceArea[:0]
	var moving []*CardInstance
	for _, token := range pool.ResourceArea {
		// Only active tokens are spendable by default.
		if taken < count && (token.State == StateActive || action.AllowRested) {
			moving = append(moving, token)
			taken++
			continue
		}
		kept = append(kept, token)
	}
	if taken < count {
		return state, Outcome{}, fmt.Errorf("give-resource needs %d tokens: %w", count, ErrInsufficientResource)
	}
	pool.ResourceArea = kept

	holder, _, _, _ := next.FindInstance(target.InstanceID)
	for _, token := range moving {
		token.Zone = zone
		holder.Attached = append(holder.Attached, token)
	}
	out := Outcome{Code: OutcomeOK}
	ev := rules.NewEvent(rules.EventResourceGiven, holder.InstanceID, owner)
	ev.Generator = ctx.Player
	ev.Amount = taken
	out.raise(ev)
	return next, out, nil
}

func (itp *Interpreter) execReturnResource(state *GameState, action rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	target, _, owner, ok := state.FindInstance(action.Target.Instance)
	if !ok {
		return state, Outcome{}, fmt.Errorf("return-resource target %d: %w", action.Target.Instance, ErrNotFound)
	}
	count := action.Count
	if count <= 0 || count > len(target.Attached) {
		count = len(target.Attached)
	}

	next := state.Clone()
	holder, _, _, _ := next.FindInstance(target.InstanceID)
	returned := 0
	for i := 0; i < count; i++ {
		token := holder.Attached[len(holder.Attached)-1]
		holder.Attached = holder.Attached[:len(holder.Attached)-1]
		token.State = StateRested
		token.Zone = ZoneResourceArea
		if pool := next.Players[token.Owner]; pool != nil {
			pool.ResourceArea = append(pool.ResourceArea, token)
		}
		returned++
	}
	out := Outcome{Code: OutcomeOK}
	ev := rules.NewEvent(rules.EventResourceReturned, holder.InstanceID, owner)
	ev.Generator = ctx.Player
	ev.Amount = returned
	out.raise(ev)
	return next, out, nil
}

func (itp *Interpreter) execDealDamage(state *GameState, action rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	targetPlayer := action.Target.Player
	if targetPlayer == "" {
		targetPlayer = state.Opponent(ctx.Player)
	}
	if state.Players[targetPlayer] == nil {
		return state, Outcome{}, fmt.Errorf("deal-damage to unknown player %q: %w", targetPlayer, ErrInvalidTarget)
	}
	count := action.Count
	if count <= 0 {
		count = 1
	}

	next := state
	out := Outcome{Code: OutcomeOK}
	for i := 0; i < count; i++ {
		target := next.Players[targetPlayer]
		if target.Defeated {
			break
		}

		// Damage processing consults the replacement registry before each
		// removal commits.
		ev := rules.NewEvent(rules.EventDealDamage, 0, targetPlayer)
		ev.Generator = ctx.Player
		ev.Amount = 1
		replacedState, applied, repOut, err := itp.applyReplacement(next, ev, targetPlayer, ctx)
		if err != nil {
			return state, out, err
		}
		if applied {
			next = replacedState
			out.absorb(repOut)
			continue
		}

		if len(target.Life) == 0 {
			// Defeat condition: a removal from an empty life zone defeats
			// the player instead of removing a card.
			next = next.Clone()
			next.Players[targetPlayer].Defeated = true
			next.AppendLog("%s is defeated", targetPlayer)
			defeat := rules.NewEvent(rules.EventPlayerDefeated, 0, targetPlayer)
			defeat.Generator = ctx.Player
			out.raise(defeat)
			break
		}

		lifeCard := target.Life[0]
		oldID := lifeCard.InstanceID
		cardID := lifeCard.CardID
		moved, inst, err := next.MoveInstance(oldID, targetPlayer, ZoneHand, MoveOptions{})
		if err != nil {
			return state, out, err
		}
		next = moved
		next.AppendLog("%s loses a life card", targetPlayer)

		reveal := rules.NewEvent(rules.EventLifeCardRevealed, inst.InstanceID, targetPlayer)
		reveal.Generator = ctx.Player
		reveal.Data = cardID
		out.raise(reveal)
	}
	return next, out, nil
}

func (itp *Interpreter) execRegisterReplacement(state *GameState, action rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	if action.Replacement == nil {
		return state, Outcome{}, fmt.Errorf("register-replacement without spec: %w", ErrInvalidTarget)
	}
	next := state.Clone()
	effect := effects.NewReplacementEffect(*action.Replacement, ctx.Player, ctx.Source)
	next.Replacements.Register(effect)
	itp.logger.Debug("registered replacement effect",
		zap.String("effect_id", effect.ID),
		zap.String("event", string(effect.Event)),
		zap.String("owner", effect.Owner))
	return next, Outcome{Code: OutcomeOK}, nil
}

func (itp *Interpreter) execConditional(state *GameState, action rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	holds, err := evalCondition(state, action.Condition, ctx)
	if err != nil {
		return state, Outcome{}, err
	}
	if holds {
		return itp.ExecuteAll(state, action.Then, ctx)
	}
	if len(action.Else) > 0 {
		return itp.ExecuteAll(state, action.Else, ctx)
	}
	return state, Outcome{Code: OutcomeNoop}, nil
}

func (itp *Interpreter) execChooseMode(state *GameState, action rules.Action, ctx *ExecContext) (*GameState, Outcome, error) {
	if len(action.Modes) == 0 {
		return state, Outcome{}, fmt.Errorf("choose-mode without modes: %w", ErrInvalidTarget)
	}
	decision, ok := ctx.takeDecision()
	if !ok {
		options := make([]string, len(action.Modes))
		for i := range action.Modes {
			options[i] = fmt.Sprintf("mode %d", i)
		}
		return state, Outcome{}, &PendingDecisionError{Request: DecisionRequest{
			Kind:    DecisionMode,
			Player:  ctx.Player,
			Prompt:  "choose a mode",
			Options: options,
		}}
	}
	if decision.Mode < 0 || decision.Mode >= len(action.Modes) {
		return state, Outcome{}, fmt.Errorf("mode %d of %d: %w", decision.Mode, len(action.Modes), ErrInvalidTarget)
	}
	return itp.ExecuteAll(state, action.Modes[decision.Mode], ctx)
}

// applyReplacement consults the registry for the event and, if a replacement
// commits, pays its cost, runs its action list, and marks it applied. A
// single applicable effect auto-applies; multiple candidates require an
// explicit choice from the decision queue.
func (itp *Interpreter) applyReplacement(state *GameState, event rules.Event, targetOwner string, ctx *ExecContext) (*GameState, bool, Outcome, error) {
	candidates := state.Replacements.Check(event, targetOwner, state.ActivePlayer)
	if len(candidates) == 0 {
		return state, false, Outcome{}, nil
	}

	chosen := candidates[0]
	if len(candidates) > 1 {
		decision, ok := ctx.takeDecision()
		if !ok {
			options := make([]string, len(candidates))
			for i, c := range candidates {
				options[i] = c.ID
			}
			return state, false, Outcome{}, &PendingDecisionError{Request: DecisionRequest{
				Kind:    DecisionReplacement,
				Player:  targetOwner,
				Prompt:  fmt.Sprintf("choose a replacement for %s", event.Type),
				Options: options,
			}}
		}
		if decision.EffectID == "" {
			// Declining all candidates lets the event proceed.
			return state, false, Outcome{}, nil
		}
		found := false
		for _, c := range candidates {
			if c.ID == decision.EffectID {
				chosen = c
				found = true
				break
			}
		}
		if !found {
			return state, false, Outcome{}, fmt.Errorf("replacement %q not applicable: %w", decision.EffectID, ErrInvalidTarget)
		}
	}

	next := state
	if !chosen.Cost.IsFree() {
		paid, err := payCost(next, chosen.Owner, chosen.Cost, chosen.Source)
		if err != nil {
			// An unpayable cost means the replacement cannot commit.
			itp.logger.Debug("replacement cost unpayable, event proceeds",
				zap.String("effect_id", chosen.ID), zap.Error(err))
			return state, false, Outcome{}, nil
		}
		next = paid
	}

	next = next.Clone()
	applied, ok := next.Replacements.MarkApplied(chosen.ID)
	if !ok {
		return state, false, Outcome{}, fmt.Errorf("replacement %q: %w", chosen.ID, ErrReplacementExhausted)
	}
	event.AppliedEffects = append(event.AppliedEffects, applied.ID)

	repCtx := &ExecContext{Player: applied.Owner, Source: applied.Source, Decisions: ctx.Decisions[ctx.next:]}
	after, out, err := itp.ExecuteAll(next, applied.Actions, repCtx)
	ctx.next += repCtx.next
	if err != nil {
		return state, false, Outcome{}, fmt.Errorf("replacement %q actions: %w", applied.ID, err)
	}
	out.Code = OutcomeReplaced
	after.AppendLog("replacement effect %s intercepted %s", applied.ID, event.Type)
	itp.logger.Debug("applied replacement effect",
		zap.String("effect_id", applied.ID),
		zap.String("event", string(event.Type)),
		zap.Int("trigger_count", applied.TriggerCount))
	return after, true, out, nil
}

// resolveInstances expands a selector into concrete in-play instance ids at
// execution time.
func resolveInstances(state *GameState, sel rules.Selector) []int64 {
	if sel.Instance != 0 {
		if _, _, _, ok := state.FindInstance(sel.Instance); ok {
			return []int64{sel.Instance}
		}
		return nil
	}
	var out []int64
	for _, pid := range state.PlayerOrder {
		if sel.Player != "" && sel.Player != pid {
			continue
		}
		if sel.Zone != "" {
			for _, c := range state.ListZone(pid, Zone(sel.Zone)) {
				out = append(out, c.InstanceID)
			}
			continue
		}
		if !sel.Any && sel.Player == "" {
			continue
		}
		p := state.Players[pid]
		if p.Leader != nil {
			out = append(out, p.Leader.InstanceID)
		}
		for _, c := range p.Characters {
			out = append(out, c.InstanceID)
		}
		if p.Stage != nil {
			out = append(out, p.Stage.InstanceID)
		}
	}
	return out
}

// evalCondition evaluates a declarative predicate against the state.
func evalCondition(state *GameState, cond *rules.Condition, ctx *ExecContext) (bool, error) {
	if cond == nil {
		return true, nil
	}
	switch cond.Kind {
	case rules.CondCountAtLeast:
		return state.CountSelector(cond.Selector) >= cond.Amount, nil
	case rules.CondHasTarget:
		return state.CountSelector(cond.Selector) > 0, nil
	case rules.CondIsOwnerTurn:
		return state.ActivePlayer == ctx.Player, nil
	default:
		return false, fmt.Errorf("condition %q: %w", cond.Kind, ErrNotImplemented)
	}
}

// payResources rests n active tokens in the player's pool.
func payResources(state *GameState, player string, n int) (*GameState, error) {
	if n == 0 {
		return state, nil
	}
	p := state.Players[player]
	if p == nil {
		return nil, fmt.Errorf("pay by unknown player %q: %w", player, ErrInvalidTarget)
	}
	if len(p.ActiveResources()) < n {
		return nil, fmt.Errorf("pay %d resources with %d active: %w", n, len(p.ActiveResources()), ErrInsufficientResource)
	}
	next := state.Clone()
	remaining := n
	for _, token := range next.Players[player].ResourceArea {
		if remaining == 0 {
			break
		}
		if token.State == StateActive {
			token.State = StateRested
			remaining--
		}
	}
	return next, nil
}

// payCost pays a structured cost: resource tokens, plus resting the source.
func payCost(state *GameState, player string, cost rules.Cost, source int64) (*GameState, error) {
	next, err := payResources(state, player, cost.Resources)
	if err != nil {
		return nil, err
	}
	if cost.RestSource && source != 0 {
		inst, _, _, ok := next.FindInstance(source)
		if !ok {
			return nil, fmt.Errorf("rest cost source %d: %w", source, ErrNotFound)
		}
		if inst.State == StateRested {
			return nil, fmt.Errorf("rest cost source %d already rested: %w", source, ErrInsufficientResource)
		}
		if next == state {
			next = state.Clone()
			inst, _, _, _ = next.FindInstance(source)
		}
		inst.State = StateRested
	}
	return next, nil
}
