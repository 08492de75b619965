package game

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/harborline/armada-server-go/internal/game/rules"
)

// KOCause distinguishes battle knockouts from effect knockouts; triggered
// abilities can condition on it.
type KOCause string

const (
	CauseBattle KOCause = "BATTLE"
	CauseEffect KOCause = "EFFECT"
)

// KO knocks out a character. The sequence is fixed:
//
//  1. An instance immune to KO fails the call without any state change.
//  2. The replacement registry is consulted for wouldBeKO against this
//     instance, in precedence order; an accepted replacement is applied
//     (cost paid, actions run, trigger count advanced) and the KO does not
//     occur.
//  3. Otherwise all attached resource tokens return to their owner's pool
//     rested, every continuous effect referencing the instance is stripped,
//     and the card moves to the trash under a new identity.
//  4. on-KO fires for the dying card and character-KO'd broadcasts for the
//     rule processor to resolve.
//
// Only characters can be knocked out by this path; leaders and stages are
// rejected as invalid targets.
func (itp *Interpreter) KO(state *GameState, instanceID int64, cause KOCause, ctx *ExecContext) (*GameState, Outcome, error) {
	inst, zone, owner, ok := state.FindInstance(instanceID)
	if !ok {
		return state, Outcome{}, fmt.Errorf("ko %d: %w", instanceID, ErrNotFound)
	}
	if zone != ZoneCharacters || inst.Category != CategoryCharacter {
		return state, Outcome{}, fmt.Errorf("ko %s in %s: %w", inst.Name, zone, ErrInvalidTarget)
	}
	if inst.HasKeyword(KeywordKOImmune) {
		return state, Outcome{}, fmt.Errorf("ko %s: immune: %w", inst.Name, ErrInvalidTarget)
	}

	event := rules.NewEvent(rules.EventWouldBeKO, instanceID, owner)
	event.Generator = ctx.Player
	event.Data = string(cause)
	replaced, applied, repOut, err := itp.applyReplacement(state, event, owner, ctx)
	if err != nil {
		return state, Outcome{}, err
	}
	if applied {
		itp.logger.Debug("KO replaced",
			zap.Int64("instance", instanceID),
			zap.String("owner", owner))
		repOut.Code = OutcomeReplaced
		return replaced, repOut, nil
	}

	name := inst.Name
	next, trashed, err := state.MoveInstance(instanceID, owner, ZoneTrash, MoveOptions{})
	if err != nil {
		return state, Outcome{}, err
	}
	next.AppendLog("%s was KO'd", name)
	itp.logger.Debug("character KO'd",
		zap.Int64("instance", instanceID),
		zap.Int64("trash_instance", trashed.InstanceID),
		zap.String("cause", string(cause)))

	out := Outcome{Code: OutcomeKOed, Log: fmt.Sprintf("%s was KO'd", name)}
	onKO := rules.NewEvent(rules.EventOnKO, instanceID, owner)
	onKO.Generator = ctx.Player
	onKO.Data = string(cause)
	broadcast := rules.NewEvent(rules.EventCharacterKO, instanceID, owner)
	broadcast.Generator = ctx.Player
	broadcast.Data = string(cause)
	out.raise(onKO, broadcast)
	return next, out, nil
}
