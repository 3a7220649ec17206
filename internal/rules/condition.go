// Package rules provides the declarative rule evaluation engine.
package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/amlguard/amlguard/internal/domain"
)

// compiledCondition is a Condition prepared for evaluation. Regex
// patterns are compiled once at rule load so malformed patterns are
// rejected before they reach the hot path.
type compiledCondition struct {
	field    string
	operator string
	value    any
	pattern  *regexp.Regexp // set only for the regex operator
}

// compileCondition validates a condition document. Unknown operators
// are accepted here and evaluate to false later, per the fail-closed
// contract; a malformed regex is a load-time error.
func compileCondition(c domain.Condition) (compiledCondition, error) {
	if c.Field == "" || c.Operator == "" {
		return compiledCondition{}, fmt.Errorf("condition requires field and operator")
	}

	cc := compiledCondition{
		field:    c.Field,
		operator: c.Operator,
		value:    c.Value,
	}

	if c.Operator == "regex" {
		expr, ok := c.Value.(string)
		if !ok {
			return compiledCondition{}, fmt.Errorf("regex condition on %q: value must be a string pattern", c.Field)
		}
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return compiledCondition{}, fmt.Errorf("regex condition on %q: %w", c.Field, err)
		}
		cc.pattern = pattern
	}

	return cc, nil
}

// evaluate resolves the condition's field against the transaction
// document and applies the operator. Every failure mode (missing field,
// type coercion, unknown operator) yields false, never an error.
func (c *compiledCondition) evaluate(doc map[string]any) bool {
	fieldValue, ok := resolveField(doc, c.field)
	if !ok || fieldValue == nil {
		return false
	}
	return c.apply(fieldValue)
}

func (c *compiledCondition) apply(fieldValue any) bool {
	switch c.operator {
	case "equals":
		return looseEqual(fieldValue, c.value)

	case "not_equals":
		return !looseEqual(fieldValue, c.value)

	case "greater_than":
		fv, ev, ok := bothFloats(fieldValue, c.value)
		return ok && fv > ev

	case "less_than":
		fv, ev, ok := bothFloats(fieldValue, c.value)
		return ok && fv < ev

	case "greater_equal":
		fv, ev, ok := bothFloats(fieldValue, c.value)
		return ok && fv >= ev

	case "less_equal":
		fv, ev, ok := bothFloats(fieldValue, c.value)
		return ok && fv <= ev

	case "in":
		return inSet(fieldValue, c.value)

	case "not_in":
		set, ok := asSlice(c.value)
		if !ok {
			return false
		}
		for _, item := range set {
			if looseEqual(fieldValue, item) {
				return false
			}
		}
		return true

	case "contains":
		return strings.Contains(
			strings.ToLower(stringify(fieldValue)),
			strings.ToLower(stringify(c.value)),
		)

	case "not_contains":
		return !strings.Contains(
			strings.ToLower(stringify(fieldValue)),
			strings.ToLower(stringify(c.value)),
		)

	case "regex":
		return c.pattern != nil && c.pattern.MatchString(stringify(fieldValue))

	case "between":
		bounds, ok := asSlice(c.value)
		if !ok || len(bounds) != 2 {
			return false
		}
		fv, lo, ok := bothFloats(fieldValue, bounds[0])
		if !ok {
			return false
		}
		hi, ok2 := toFloat(bounds[1])
		return ok2 && lo <= fv && fv <= hi

	case "near_threshold":
		// Amount just under a reporting threshold: 0.85*T <= amount < T.
		amount, threshold, ok := bothFloats(fieldValue, c.value)
		return ok && threshold*0.85 <= amount && amount < threshold

	default:
		slog.Warn("unknown condition operator", "operator", c.operator, "field", c.field)
		return false
	}
}

// resolveField walks a dotted path through nested mappings. Resolution
// fails if any segment is absent or the current value is not a mapping.
func resolveField(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = doc

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func inSet(fieldValue, expected any) bool {
	set, ok := asSlice(expected)
	if !ok {
		return false
	}
	for _, item := range set {
		if looseEqual(fieldValue, item) {
			return true
		}
	}
	return false
}

// looseEqual compares scalars the way rule documents expect: numeric
// values compare numerically regardless of Go type, everything else by
// string form. YAML decodes ints and JSON decodes float64; a rule
// written as "value: 100" must match an amount of 100.0.
func looseEqual(a, b any) bool {
	if fa, fb, ok := bothFloats(a, b); ok {
		return fa == fb
	}
	return stringify(a) == stringify(b)
}

func bothFloats(a, b any) (float64, float64, bool) {
	fa, ok := toFloat(a)
	if !ok {
		return 0, 0, false
	}
	fb, ok := toFloat(b)
	if !ok {
		return 0, 0, false
	}
	return fa, fb, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asSlice(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
