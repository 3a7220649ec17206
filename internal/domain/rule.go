package domain

import "time"

// Rule combination logic values. Anything else defaults to LogicAnd.
const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

// Condition is one declarative comparison inside a rule: a dotted field
// path, an operator, and an operator-dependent expected value (scalar,
// 2-element range, or set).
type Condition struct {
	Field    string `yaml:"field" json:"field"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value" json:"value"`
}

// RuleConfig is one rule document as loaded from a YAML file.
// The rule's name is the file stem, not a field inside the document.
type RuleConfig struct {
	Description string      `yaml:"description" json:"description"`
	Enabled     *bool       `yaml:"enabled" json:"enabled"`
	Severity    string      `yaml:"severity" json:"severity"`
	Score       *float64    `yaml:"score" json:"score"`
	Logic       string      `yaml:"logic" json:"logic"`
	Conditions  []Condition `yaml:"conditions" json:"conditions"`
}

// IsEnabled applies the document default (enabled unless said otherwise).
func (c *RuleConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// BaseScore applies the document default of 0.5.
func (c *RuleConfig) BaseScore() float64 {
	if c.Score == nil {
		return 0.5
	}
	return *c.Score
}

// RuleStats holds per-rule execution counters for one registry
// generation. Counters are reset when rules are reloaded.
type RuleStats struct {
	Evaluations   int64      `json:"evaluations"`
	Triggers      int64      `json:"triggers"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
}

// RuleSummary is the reporting view of a loaded rule.
type RuleSummary struct {
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Enabled       bool       `json:"enabled"`
	Severity      string     `json:"severity"`
	Score         float64    `json:"score"`
	Evaluations   int64      `json:"evaluations"`
	Triggers      int64      `json:"triggers"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
}

// RuleEvaluationResult is the outcome of evaluating one transaction
// against every enabled rule. TriggeredRules follows registry iteration
// order, not score order.
type RuleEvaluationResult struct {
	TriggeredRules []string           `json:"triggered_rules"`
	RuleScores     map[string]float64 `json:"rule_scores"`
	EvaluatedAt    time.Time          `json:"evaluation_timestamp"`
}

// MaxScore returns the highest triggered-rule score, 0 when nothing
// triggered.
func (r *RuleEvaluationResult) MaxScore() float64 {
	max := 0.0
	for _, s := range r.RuleScores {
		if s > max {
			max = s
		}
	}
	return max
}
