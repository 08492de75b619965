package rules

// ActionKind enumerates the closed set of structured actions the interpreter
// can execute. The interpreter matches exhaustively on this set; anything
// else is rejected as an unknown action kind rather than silently ignored.
type ActionKind string

const (
	ActionMove                ActionKind = "MOVE"
	ActionPlay                ActionKind = "PLAY"
	ActionModifyStat          ActionKind = "MODIFY_STAT"
	ActionKO                  ActionKind = "KO"
	ActionGiveResource        ActionKind = "GIVE_RESOURCE"
	ActionReturnResource      ActionKind = "RETURN_RESOURCE"
	ActionDealDamage          ActionKind = "DEAL_DAMAGE"
	ActionRegisterReplacement ActionKind = "REGISTER_REPLACEMENT"
	ActionConditional         ActionKind = "CONDITIONAL"
	ActionChooseMode          ActionKind = "CHOOSE_MODE"
)

// Stat names a value a continuous modifier can adjust.
type Stat string

const (
	StatPower        Stat = "POWER"
	StatCost         Stat = "COST"
	StatCounterValue Stat = "COUNTER_VALUE"
)

// ModifierMode describes how a continuous modifier combines with a stat.
type ModifierMode string

const (
	// ModeAdd sums with the printed value and every other additive modifier.
	ModeAdd ModifierMode = "ADD"
	// ModeSetBase replaces the printed value; the most recently registered
	// set-base wins.
	ModeSetBase ModifierMode = "SET_BASE"
	// ModePerCount multiplies Amount by a live count of CountSelector,
	// evaluated at query time rather than at registration time.
	ModePerCount ModifierMode = "PER_COUNT"
	// ModeSetBaseFromSource replaces the printed value with the source
	// instance's printed value, resolved at query time.
	ModeSetBaseFromSource ModifierMode = "SET_BASE_FROM_SOURCE"
)

// Duration tags how long a continuous or replacement effect persists.
type Duration string

const (
	DurationThisTurn     Duration = "THIS_TURN"
	DurationThisBattle   Duration = "THIS_BATTLE"
	DurationUntilRefresh Duration = "UNTIL_REFRESH"
	DurationPermanent    Duration = "PERMANENT"
)

// ExpiresAt reports whether the duration is scoped to the given boundary
// event. Until-refresh effects expire only at a refresh step, and only the
// owner's; the owner comparison lives with the ledger and registry, which
// know each effect's controller. Permanent effects only expire when their
// source leaves play, which is handled separately.
func (d Duration) ExpiresAt(boundary EventType) bool {
	switch d {
	case DurationThisBattle:
		return boundary == EventBattleEnd
	case DurationThisTurn:
		return boundary == EventTurnEnd
	case DurationUntilRefresh:
		return boundary == EventRefreshStep
	default:
		return false
	}
}

// Selector identifies the instances or player an action or effect applies to.
// Matching is by instance-id equality, owner equality, or unconditional, in
// that order of specificity.
type Selector struct {
	Instance int64  `yaml:"instance,omitempty"` // exact instance (0 = unset)
	Player   string `yaml:"player,omitempty"`   // owner match ("" = unset)
	Zone     string `yaml:"zone,omitempty"`     // zone scope for counting/listing
	Any      bool   `yaml:"any,omitempty"`      // unconditional match
}

// Matches reports whether the selector applies to the given instance/owner.
func (s Selector) Matches(instance int64, owner string) bool {
	if s.Instance != 0 {
		return s.Instance == instance
	}
	if s.Player != "" {
		return s.Player == owner
	}
	return s.Any
}

// Cost describes what must be paid before an effect runs. Resource tokens
// are rested in the payer's pool; RestSource additionally rests the source
// instance.
type Cost struct {
	Resources  int  `yaml:"resources,omitempty"`
	RestSource bool `yaml:"restSource,omitempty"`
}

// IsFree returns true when nothing needs to be paid.
func (c Cost) IsFree() bool {
	return c.Resources == 0 && !c.RestSource
}

// ConditionKind names a declarative predicate evaluated by the interpreter.
type ConditionKind string

const (
	CondCountAtLeast ConditionKind = "COUNT_AT_LEAST"
	CondHasTarget    ConditionKind = "HAS_TARGET"
	CondIsOwnerTurn  ConditionKind = "IS_OWNER_TURN"
)

// Condition gates a conditional action branch.
type Condition struct {
	Kind     ConditionKind `yaml:"kind"`
	Selector Selector      `yaml:"selector,omitempty"`
	Amount   int           `yaml:"amount,omitempty"`
}

// ReplacementSpec is the register-replacement payload: the declarative form
// of a replacement effect before it is installed into the registry.
type ReplacementSpec struct {
	Event       EventType `yaml:"event"`
	Target      Selector  `yaml:"target"`
	Duration    Duration  `yaml:"duration"`
	Cost        Cost      `yaml:"cost,omitempty"`
	Actions     []Action  `yaml:"actions,omitempty"`
	MaxTriggers int       `yaml:"maxTriggers"`
}

// Action is one structured action descriptor. Kind selects which of the
// type-specific fields are meaningful; the zero value of every other field
// is ignored. Descriptors are plain data so they can live in the card
// catalog, in replay logs, and on the wire unchanged.
type Action struct {
	Kind   ActionKind `yaml:"kind"`
	Target Selector   `yaml:"target,omitempty"`

	// May marks the action optional: the caller must obtain an explicit
	// accept/decline decision before it runs. Decline is a no-op success.
	May       bool       `yaml:"may,omitempty"`
	Condition *Condition `yaml:"condition,omitempty"`

	// Move / Play
	ToZone           string `yaml:"toZone,omitempty"`
	ToPlayer         string `yaml:"toPlayer,omitempty"`
	PreserveIdentity bool   `yaml:"preserveIdentity,omitempty"`
	EnterRested      bool   `yaml:"enterRested,omitempty"`
	WaiveCost        bool   `yaml:"waiveCost,omitempty"`

	// ModifyStat
	Stat          Stat         `yaml:"stat,omitempty"`
	Mode          ModifierMode `yaml:"mode,omitempty"`
	Amount        int          `yaml:"amount,omitempty"`
	Duration      Duration     `yaml:"duration,omitempty"`
	CountSelector *Selector    `yaml:"countSelector,omitempty"`

	// GiveResource / ReturnResource / DealDamage
	Count       int  `yaml:"count,omitempty"`
	AllowRested bool `yaml:"allowRested,omitempty"`

	// RegisterReplacement
	Replacement *ReplacementSpec `yaml:"replacement,omitempty"`

	// Conditional
	Then []Action `yaml:"then,omitempty"`
	Else []Action `yaml:"else,omitempty"`

	// ChooseMode
	Modes [][]Action `yaml:"modes,omitempty"`
}
