package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/harborline/armada-server-go/internal/game/rules"
)

// Timing names when a card ability fires. The engine maps each timing to a
// concrete event subscription (or, for on-play and activated abilities, to a
// direct execution path).
type Timing string

const (
	TimingOnPlay       Timing = "on-play"
	TimingOnAttack     Timing = "on-attack"
	TimingOnBlock      Timing = "on-block"
	TimingOnKO         Timing = "on-ko"
	TimingEndOfTurn    Timing = "end-of-turn"
	TimingTrigger      Timing = "trigger"       // fires when revealed from the life zone
	TimingActivateMain Timing = "activate-main" // player-activated during their main phase
)

// Ability is one card ability as authored in the catalog: a timing, an
// optional frequency/cost gate, and the action sequence the rules engine
// executes when it fires. Abilities are data; the engine never special-cases
// individual cards.
type Ability struct {
	Timing    Timing           `yaml:"timing"`
	Frequency rules.Frequency  `yaml:"frequency,omitempty"`
	Cost      rules.Cost       `yaml:"cost,omitempty"`
	Condition *rules.Condition `yaml:"condition,omitempty"`
	Effect    []rules.Action   `yaml:"effect"`
}

// Card is one printed card definition.
type Card struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Category  string    `yaml:"category"`
	Power     int       `yaml:"power,omitempty"`
	Cost      int       `yaml:"cost,omitempty"`
	Counter   int       `yaml:"counter,omitempty"`
	Life      int       `yaml:"life,omitempty"` // leaders only
	Keywords  []string  `yaml:"keywords,omitempty"`
	Abilities []Ability `yaml:"abilities,omitempty"`
}

// Catalog is an immutable card lookup built from one or more YAML documents.
type Catalog struct {
	cards map[string]Card
}

// New builds a catalog from in-memory card definitions. Duplicate ids are an
// error so content mistakes surface at load time, not mid-game.
func New(cards []Card) (*Catalog, error) {
	c := &Catalog{cards: make(map[string]Card, len(cards))}
	for _, card := range cards {
		if card.ID == "" {
			return nil, fmt.Errorf("card %q has no id", card.Name)
		}
		if _, dup := c.cards[card.ID]; dup {
			return nil, fmt.Errorf("duplicate card id %q", card.ID)
		}
		c.cards[card.ID] = card
	}
	return c, nil
}

// Load reads a YAML card file. The document root is a list of cards.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var cards []Card
	if err := yaml.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(cards)
}

// Card returns a definition by id.
func (c *Catalog) Card(id string) (Card, bool) {
	card, ok := c.cards[id]
	return card, ok
}

// Len returns the number of cards in the catalog.
func (c *Catalog) Len() int {
	return len(c.cards)
}

// Provider is the lookup surface the engine depends on. A *Catalog satisfies
// it; tests substitute small fixed maps.
type Provider interface {
	Card(id string) (Card, bool)
}
