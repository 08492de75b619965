package game

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborline/armada-server-go/internal/game/rules"
)

// BattleStep names a stage of one attack.
type BattleStep string

const (
	StepDeclaring BattleStep = "DECLARING"
	StepAttack    BattleStep = "ATTACK"
	StepBlock     BattleStep = "BLOCK"
	StepCounter   BattleStep = "COUNTER"
	StepDamage    BattleStep = "DAMAGE"
	StepEnd       BattleStep = "END"
)

// BattleState is the in-flight record of a single attack. Target is zero
// only during the declaring step.
type BattleState struct {
	BattleID       string
	AttackerPlayer string
	Attacker       int64
	TargetPlayer   string
	Target         int64
	Step           BattleStep
	BlockerUsed    bool
	CounterPower   int
	CounterTarget  int64
	// Locked refuses declaration cancel once a lock-inducing ability has
	// fired during the declaring step.
	Locked bool
}

// BattleMachine drives one attack from declaration through damage,
// delegating damage and knockouts to the interpreter and KO processor.
type BattleMachine struct {
	itp    *Interpreter
	logger *zap.Logger
}

// NewBattleMachine creates a battle machine over the interpreter.
func NewBattleMachine(itp *Interpreter, logger *zap.Logger) *BattleMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BattleMachine{itp: itp, logger: logger}
}

// Declare commits an attacker. The attacker rests immediately; the target is
// chosen in a separate step so on-attack triggers can fire first.
func (bm *BattleMachine) Declare(state *GameState, attackerID int64, ctx *ExecContext) (*GameState, Outcome, error) {
	if state.Battle != nil {
		return state, Outcome{}, fmt.Errorf("battle already in flight: %w", ErrBadStep)
	}
	attacker, zone, owner, ok := state.FindInstance(attackerID)
	if !ok {
		return state, Outcome{}, fmt.Errorf("attacker %d: %w", attackerID, ErrNotFound)
	}
	if owner != state.ActivePlayer || !zoneInPlay(zone) || zone == ZoneStage {
		return state, Outcome{}, fmt.Errorf("attacker %s: %w", attacker.Name, ErrInvalidTarget)
	}
	if attacker.State != StateActive {
		return state, Outcome{}, fmt.Errorf("attacker %s is rested: %w", attacker.Name, ErrInvalidTarget)
	}
	if attacker.Category == CategoryCharacter &&
		attacker.PlayedTurn == state.Turn && !attacker.HasKeyword(KeywordRush) {
		return state, Outcome{}, fmt.Errorf("attacker %s entered play this turn: %w", attacker.Name, ErrInvalidTarget)
	}

	next := state.Clone()
	inst, _, _, _ := next.FindInstance(attackerID)
	inst.State = StateRested
	next.Battle = &BattleState{
		BattleID:       uuid.NewString(),
		AttackerPlayer: owner,
		Attacker:       attackerID,
		Step:           StepDeclaring,
	}
	next.AppendLog("%s declares an attack with %s", owner, attacker.Name)
	bm.logger.Debug("attack declared",
		zap.String("battle_id", next.Battle.BattleID),
		zap.Int64("attacker", attackerID))

	out := Outcome{Code: OutcomeOK}
	ev := rules.NewEvent(rules.EventAttackDeclared, attackerID, owner)
	ev.Generator = ctx.Player
	out.raise(ev)
	return next, out, nil
}

// Cancel discards an attack declaration and returns the attacker to active.
// Allowed only in the declaring step and only while no lock-inducing ability
// has fired; after that the battle must run to completion.
func (bm *BattleMachine) Cancel(state *GameState) (*GameState, Outcome, error) {
	if state.Battle == nil || state.Battle.Step != StepDeclaring {
		return state, Outcome{}, fmt.Errorf("cancel outside declaring: %w", ErrBadStep)
	}
	if state.Battle.Locked {
		return state, Outcome{}, ErrBattleLocked
	}
	next := state.Clone()
	if inst, _, _, ok := next.FindInstance(next.Battle.Attacker); ok {
		inst.State = StateActive
	}
	next.Battle = nil
	next.AppendLog("attack declaration cancelled")
	return next, Outcome{Code: OutcomeOK}, nil
}

// ChooseTarget selects the defender and advances declaring to attack. Legal
// targets are the opponent's leader or a rested opposing character.
func (bm *BattleMachine) ChooseTarget(state *GameState, targetID int64, ctx *ExecContext) (*GameState, Outcome, error) {
	if state.Battle == nil || state.Battle.Step != StepDeclaring {
		return state, Outcome{}, fmt.Errorf("choose target outside declaring: %w", ErrBadStep)
	}
	target, zone, owner, ok := state.FindInstance(targetID)
	if !ok {
		return state, Outcome{}, fmt.Errorf("target %d: %w", targetID, ErrNotFound)
	}
	if owner == state.Battle.AttackerPlayer {
		return state, Outcome{}, fmt.Errorf("cannot attack own %s: %w", target.Name, ErrInvalidTarget)
	}
	switch {
	case zone == ZoneLeader:
	case zone == ZoneCharacters && target.State == StateRested:
	default:
		return state, Outcome{}, fmt.Errorf("target %s in %s: %w", target.Name, zone, ErrInvalidTarget)
	}

	next := state.Clone()
	next.Battle.TargetPlayer = owner
	next.Battle.Target = targetID
	next.Battle.Step = StepAttack
	next.AppendLog("attack targets %s", target.Name)

	out := Outcome{Code: OutcomeOK}
	ev := rules.NewEvent(rules.EventAttackTargeted, targetID, owner)
	ev.Generator = ctx.Player
	out.raise(ev)
	return next, out, nil
}

// DeclareBlocker substitutes a blocker as the new target during the block
// step. The blocker rests, and any counter bonus already accumulated on the
// original target follows the battle to the new target.
func (bm *BattleMachine) DeclareBlocker(state *GameState, blockerID int64, ctx *ExecContext) (*GameState, Outcome, error) {
	if state.Battle == nil || state.Battle.Step != StepBlock {
		return state, Outcome{}, fmt.Errorf("block outside block step: %w", ErrBadStep)
	}
	if state.Battle.BlockerUsed {
		return state, Outcome{}, fmt.Errorf("blocker already declared: %w", ErrBadStep)
	}
	blocker, zone, owner, ok := state.FindInstance(blockerID)
	if !ok {
		return state, Outcome{}, fmt.Errorf("blocker %d: %w", blockerID, ErrNotFound)
	}
	if owner != state.Battle.TargetPlayer || zone != ZoneCharacters {
		return state, Outcome{}, fmt.Errorf("blocker %s: %w", blocker.Name, ErrInvalidTarget)
	}
	if !blocker.HasKeyword(KeywordBlocker) || blocker.State != StateActive {
		return state, Outcome{}, fmt.Errorf("blocker %s cannot block: %w", blocker.Name, ErrInvalidTarget)
	}

	next := state.Clone()
	inst, _, _, _ := next.FindInstance(blockerID)
	inst.State = StateRested
	next.Battle.Target = blockerID
	next.Battle.BlockerUsed = true
	if next.Battle.CounterTarget != 0 {
		next.Battle.CounterTarget = blockerID
	}
	next.AppendLog("%s blocks", blocker.Name)

	out := Outcome{Code: OutcomeOK}
	ev := rules.NewEvent(rules.EventBlockerDeclared, blockerID, owner)
	ev.Generator = ctx.Player
	out.raise(ev)
	return next, out, nil
}

// PlayCounter adds counter power from a hand card during the counter step.
// The card is trashed and its printed counter value accrues to the current
// target.
func (bm *BattleMachine) PlayCounter(state *GameState, cardID int64, ctx *ExecContext) (*GameState, Outcome, error) {
	if state.Battle == nil || state.Battle.Step != StepCounter {
		return state, Outcome{}, fmt.Errorf("counter outside counter step: %w", ErrBadStep)
	}
	card, zone, owner, ok := state.FindInstance(cardID)
	if !ok {
		return state, Outcome{}, fmt.Errorf("counter card %d: %w", cardID, ErrNotFound)
	}
	if owner != state.Battle.TargetPlayer || zone != ZoneHand {
		return state, Outcome{}, fmt.Errorf("counter card %s: %w", card.Name, ErrInvalidTarget)
	}
	if card.CounterValue <= 0 {
		return state, Outcome{}, fmt.Errorf("counter card %s has no counter value: %w", card.Name, ErrInvalidTarget)
	}

	value := card.CounterValue
	name := card.Name
	next, _, err := state.MoveInstance(cardID, owner, ZoneTrash, MoveOptions{})
	if err != nil {
		return state, Outcome{}, err
	}
	next.Battle.CounterPower += value
	next.Battle.CounterTarget = next.Battle.Target
	next.AppendLog("%s counters with %s (+%d)", owner, name, value)

	out := Outcome{Code: OutcomeOK}
	ev := rules.NewEvent(rules.EventCounterPlayed, next.Battle.Target, owner)
	ev.Generator = ctx.Player
	ev.Amount = value
	out.raise(ev)
	return next, out, nil
}

// Advance moves the battle to its next step. The attack and block steps
// advance explicitly; advancing out of the counter step resolves damage and
// ends the battle, clearing the record and raising battle-end for the rule
// processor to expire this-battle effects.
func (bm *BattleMachine) Advance(state *GameState, ctx *ExecContext) (*GameState, Outcome, error) {
	if state.Battle == nil {
		return state, Outcome{}, fmt.Errorf("no battle in flight: %w", ErrBadStep)
	}
	switch state.Battle.Step {
	case StepAttack:
		next := state.Clone()
		next.Battle.Step = StepBlock
		return next, Outcome{Code: OutcomeOK}, nil
	case StepBlock:
		next := state.Clone()
		next.Battle.Step = StepCounter
		return next, Outcome{Code: OutcomeOK}, nil
	case StepCounter:
		return bm.resolveDamage(state, ctx)
	default:
		return state, Outcome{}, fmt.Errorf("advance from %s: %w", state.Battle.Step, ErrBadStep)
	}
}

// resolveDamage compares effective powers and applies the result. Effective
// values include live continuous modifiers; the accumulated counter power
// counts for the defender when it is bound to the current target. The
// attacker wins ties.
func (bm *BattleMachine) resolveDamage(state *GameState, ctx *ExecContext) (*GameState, Outcome, error) {
	battle := *state.Battle
	next := state.Clone()
	next.Battle.Step = StepDamage

	attackerPower, err := next.EffectivePower(battle.Attacker)
	if err != nil {
		return state, Outcome{}, err
	}
	target, zone, _, ok := next.FindInstance(battle.Target)
	if !ok {
		// Target left play mid-battle; the attack fizzles.
		return bm.endBattle(next, Outcome{Code: OutcomeNoop}, ctx)
	}
	defenderPower, err := next.EffectivePower(battle.Target)
	if err != nil {
		return state, Outcome{}, err
	}
	if battle.CounterTarget == battle.Target {
		defenderPower += battle.CounterPower
	}

	out := Outcome{Code: OutcomeOK}
	ev := rules.NewEvent(rules.EventBattleDamage, battle.Target, battle.TargetPlayer)
	ev.Generator = ctx.Player
	ev.Amount = attackerPower
	out.raise(ev)
	next.AppendLog("battle: %d vs %d", attackerPower, defenderPower)

	if attackerPower >= defenderPower {
		if zone == ZoneLeader {
			damaged, dmgOut, err := bm.itp.Execute(next, rules.Action{
				Kind:   rules.ActionDealDamage,
				Target: rules.Selector{Player: battle.TargetPlayer},
				Count:  1,
			}, ctx)
			if err != nil {
				return state, out, err
			}
			next = damaged
			out.absorb(dmgOut)
		} else {
			koed, koOut, err := bm.itp.KO(next, target.InstanceID, CauseBattle, ctx)
			if err != nil {
				return state, out, err
			}
			next = koed
			out.absorb(koOut)
		}
	}
	return bm.endBattle(next, out, ctx)
}

// endBattle clears the battle record and raises battle-end.
func (bm *BattleMachine) endBattle(state *GameState, out Outcome, ctx *ExecContext) (*GameState, Outcome, error) {
	battle := state.Battle
	next := state.Clone()
	next.Battle = nil
	ev := rules.NewEvent(rules.EventBattleEnd, battle.Attacker, battle.AttackerPlayer)
	ev.Generator = ctx.Player
	out.raise(ev)
	bm.logger.Debug("battle ended", zap.String("battle_id", battle.BattleID))
	return next, out, nil
}
