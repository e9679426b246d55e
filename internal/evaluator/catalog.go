package evaluator

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

var ErrInvalidCatalog = errors.New("invalid strategy catalog")

// Entry is the strategy list for one catalog key, e.g. "morning".
type Entry struct {
	Strategies  []string `yaml:"strategies"`
	Explanation string   `yaml:"explanation"`
}

// Rule scores one category.
type Rule struct {
	Category   domain.Category  `yaml:"-"`
	Weight     float64          `yaml:"weight"`
	Strength   string           `yaml:"strength"`
	Suggestion string           `yaml:"suggestion"`
	Entries    map[string]Entry `yaml:"entries"`
}

// Keys lists the rule's entry keys in lexical order.
func (r *Rule) Keys() []string {
	keys := make([]string, 0, len(r.Entries))
	for k := range r.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Catalog holds one rule per category in evaluation order.
type Catalog struct {
	Rules []*Rule
}

// LoadCatalog parses a YAML catalog and validates it.
func LoadCatalog(data []byte) (*Catalog, error) {
	var raw map[string]*Rule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	c := &Catalog{}
	for _, cat := range domain.Categories {
		rule, ok := raw[string(cat)]
		if !ok || rule == nil {
			return nil, fmt.Errorf("%w: missing category %q", ErrInvalidCatalog, cat)
		}
		rule.Category = cat
		c.Rules = append(c.Rules, rule)
	}
	if len(raw) != len(domain.Categories) {
		return nil, fmt.Errorf("%w: unknown categories present", ErrInvalidCatalog)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks weights sum to 1 and every entry has strategies.
func (c *Catalog) Validate() error {
	var total float64
	for _, r := range c.Rules {
		if r.Weight < 0 {
			return fmt.Errorf("%w: negative weight for %q", ErrInvalidCatalog, r.Category)
		}
		total += r.Weight
		if len(r.Entries) == 0 {
			return fmt.Errorf("%w: %q has no entries", ErrInvalidCatalog, r.Category)
		}
		for key, e := range r.Entries {
			if strings.ToLower(strings.TrimSpace(key)) != key {
				return fmt.Errorf("%w: key %q of %q must be lowercase and trimmed", ErrInvalidCatalog, key, r.Category)
			}
			if len(e.Strategies) == 0 {
				return fmt.Errorf("%w: %s.%s has no strategies", ErrInvalidCatalog, r.Category, key)
			}
		}
	}
	if math.Abs(total-1) > 1e-9 {
		return fmt.Errorf("%w: weights sum to %g", ErrInvalidCatalog, total)
	}
	return nil
}

// Rule returns the rule for cat.
func (c *Catalog) Rule(cat domain.Category) *Rule {
	for _, r := range c.Rules {
		if r.Category == cat {
			return r
		}
	}
	return nil
}

// CheckScenario rejects scenario values the catalog has no entry for.
// The scenario must already be normalized.
func (c *Catalog) CheckScenario(s domain.Scenario) error {
	for _, r := range c.Rules {
		key := scenarioKey(s, r.Category)
		if _, ok := r.Entries[key]; !ok {
			return domain.NewMalformedScenarioError(categoryField(r.Category), fmt.Sprintf("has unknown value %q", key))
		}
	}
	return nil
}

func scenarioKey(s domain.Scenario, cat domain.Category) string {
	switch cat {
	case domain.CategoryTime:
		return s.TimeOfDay
	case domain.CategoryLearningStyle:
		return s.LearningStyle
	case domain.CategoryBehavior:
		return s.BehavioralContext.Type
	default:
		return s.Subject
	}
}

func categoryField(cat domain.Category) string {
	switch cat {
	case domain.CategoryTime:
		return "time_of_day"
	case domain.CategoryLearningStyle:
		return "learning_style"
	case domain.CategoryBehavior:
		return "behavioral_context.type"
	default:
		return "subject"
	}
}
