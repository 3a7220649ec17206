package rules

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amlguard/amlguard/internal/domain"
)

// Registry holds the active rule set. Readers take an immutable
// snapshot; reload builds a fresh snapshot and swaps a single pointer,
// so an in-flight evaluation always sees a fully old or fully new set.
type Registry struct {
	dir  string
	snap atomic.Pointer[snapshot]
}

// snapshot is one immutable generation of compiled rules plus the
// mutable per-rule counters that belong to it. Stats are recreated with
// each generation; carrying them across reloads is intentionally not
// guaranteed.
type snapshot struct {
	generation uint64
	rules      []*compiledRule
	stats      map[string]*ruleStats
}

// compiledRule is a rule prepared for evaluation: normalized logic,
// defaulted score, pre-compiled conditions.
type compiledRule struct {
	name       string
	config     domain.RuleConfig
	logic      string
	baseScore  float64
	conditions []compiledCondition
}

type ruleStats struct {
	mu            sync.Mutex
	evaluations   int64
	triggers      int64
	lastTriggered *time.Time
}

// NewRegistry creates a registry for the given rule directory and loads
// the initial rule set. A missing directory is reported but not fatal;
// the engine starts with zero rules.
func NewRegistry(dir string) *Registry {
	r := &Registry{dir: dir}
	r.snap.Store(&snapshot{
		generation: 0,
		stats:      make(map[string]*ruleStats),
	})
	r.Reload()
	return r
}

// Reload reads every rule document from the directory and atomically
// replaces the active set. Malformed documents are skipped with a
// logged error; remaining rules still load. Counters restart at zero
// for the new generation.
func (r *Registry) Reload() {
	prev := r.snap.Load()
	next := &snapshot{
		generation: prev.generation + 1,
		stats:      make(map[string]*ruleStats),
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		slog.Warn("rules directory not readable, starting with zero rules",
			"dir", r.dir,
			"error", err,
		)
		r.snap.Store(next)
		return
	}

	var names []string
	loaded := make(map[string]*compiledRule)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ext)
		rule, err := loadRuleFile(filepath.Join(r.dir, entry.Name()), name)
		if err != nil {
			slog.Error("failed to load rule",
				"rule", name,
				"file", entry.Name(),
				"error", err,
			)
			continue
		}

		loaded[name] = rule
		names = append(names, name)
		slog.Info("loaded rule", "rule", name, "enabled", rule.config.IsEnabled())
	}

	// Deterministic iteration order for evaluation and reporting.
	sort.Strings(names)
	for _, name := range names {
		next.rules = append(next.rules, loaded[name])
		next.stats[name] = &ruleStats{}
	}

	r.snap.Store(next)
	slog.Info("rules loaded", "count", len(next.rules), "generation", next.generation)
}

func loadRuleFile(path, name string) (*compiledRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg domain.RuleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rule document: %w", err)
	}

	logic := strings.ToUpper(cfg.Logic)
	if logic != domain.LogicOr {
		logic = domain.LogicAnd
	}

	rule := &compiledRule{
		name:      name,
		config:    cfg,
		logic:     logic,
		baseScore: cfg.BaseScore(),
	}

	for i, cond := range cfg.Conditions {
		cc, err := compileCondition(cond)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		rule.conditions = append(rule.conditions, cc)
	}

	return rule, nil
}

// EvaluateAll evaluates a transaction document against every enabled
// rule in the active snapshot. A failure in one rule is logged and does
// not abort evaluation of the rest.
func (r *Registry) EvaluateAll(doc map[string]any, txID string) *domain.RuleEvaluationResult {
	snap := r.snap.Load()

	result := &domain.RuleEvaluationResult{
		RuleScores:  make(map[string]float64),
		EvaluatedAt: time.Now().UTC(),
	}

	for _, rule := range snap.rules {
		if !rule.config.IsEnabled() {
			continue
		}

		stats := snap.stats[rule.name]
		stats.mu.Lock()
		stats.evaluations++
		stats.mu.Unlock()

		triggered, score, err := safeEvaluateRule(rule, doc)
		if err != nil {
			slog.Error("rule evaluation failed",
				"rule", rule.name,
				"transaction_id", txID,
				"error", err,
			)
			continue
		}

		if triggered {
			result.TriggeredRules = append(result.TriggeredRules, rule.name)
			result.RuleScores[rule.name] = score

			now := time.Now().UTC()
			stats.mu.Lock()
			stats.triggers++
			stats.lastTriggered = &now
			stats.mu.Unlock()

			slog.Info("rule triggered",
				"rule", rule.name,
				"transaction_id", txID,
				"score", score,
			)
		}
	}

	return result
}

// safeEvaluateRule isolates a single rule so an unexpected panic in one
// rule cannot take down evaluation of the remaining rules.
func safeEvaluateRule(rule *compiledRule, doc map[string]any) (triggered bool, score float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			triggered, score = false, 0
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	triggered, score = evaluateRule(rule, doc)
	return triggered, score, nil
}

// evaluateRule applies a rule's combination logic and computes the
// proportional score: base score scaled by the fraction of conditions
// that matched. A rule with no conditions never triggers.
func evaluateRule(rule *compiledRule, doc map[string]any) (bool, float64) {
	if len(rule.conditions) == 0 {
		return false, 0
	}

	matched := 0
	for i := range rule.conditions {
		if rule.conditions[i].evaluate(doc) {
			matched++
		}
	}

	var triggered bool
	switch rule.logic {
	case domain.LogicOr:
		triggered = matched > 0
	default:
		triggered = matched == len(rule.conditions)
	}

	if !triggered {
		return false, 0
	}

	score := rule.baseScore * float64(matched) / float64(len(rule.conditions))
	return true, score
}

// Summaries returns the reporting view of every loaded rule, disabled
// rules included, in registry iteration order.
func (r *Registry) Summaries() []domain.RuleSummary {
	snap := r.snap.Load()

	out := make([]domain.RuleSummary, 0, len(snap.rules))
	for _, rule := range snap.rules {
		severity := rule.config.Severity
		if severity == "" {
			severity = domain.SeverityMedium
		}

		s := domain.RuleSummary{
			Name:        rule.name,
			Description: rule.config.Description,
			Enabled:     rule.config.IsEnabled(),
			Severity:    severity,
			Score:       rule.baseScore,
		}

		if stats := snap.stats[rule.name]; stats != nil {
			stats.mu.Lock()
			s.Evaluations = stats.evaluations
			s.Triggers = stats.triggers
			s.LastTriggered = stats.lastTriggered
			stats.mu.Unlock()
		}

		out = append(out, s)
	}

	return out
}

// Stats returns a point-in-time copy of per-rule counters for the
// current generation.
func (r *Registry) Stats() map[string]domain.RuleStats {
	snap := r.snap.Load()

	out := make(map[string]domain.RuleStats, len(snap.stats))
	for name, stats := range snap.stats {
		stats.mu.Lock()
		out[name] = domain.RuleStats{
			Evaluations:   stats.evaluations,
			Triggers:      stats.triggers,
			LastTriggered: stats.lastTriggered,
		}
		stats.mu.Unlock()
	}

	return out
}

// Generation returns the reload generation of the active snapshot.
// Counters are only comparable within one generation.
func (r *Registry) Generation() uint64 {
	return r.snap.Load().generation
}

// RulesCount returns the number of loaded rules.
func (r *Registry) RulesCount() int {
	return len(r.snap.Load().rules)
}
