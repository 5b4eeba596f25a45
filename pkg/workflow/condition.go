package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is one clause of a condition node: Field is a JMESPath
// expression resolved against the context, compared to Value via
// Operator.
type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

const (
	OpEq       = "eq"
	OpNe       = "ne"
	OpGt       = "gt"
	OpLt       = "lt"
	OpContains = "contains"
	OpExists   = "exists"
)

// evaluateConditions combines clause outcomes with and/or logic.
func evaluateConditions(conditions []Condition, logic string, wfCtx map[string]interface{}) bool {
	return combineClauses(evaluateClauses(conditions, wfCtx), logic)
}

// evaluateClauses resolves every clause to its boolean outcome.
func evaluateClauses(conditions []Condition, wfCtx map[string]interface{}) []bool {
	out := make([]bool, len(conditions))
	for i, c := range conditions {
		out[i] = evaluateCondition(c, wfCtx)
	}
	return out
}

// combineClauses folds clause outcomes with and/or logic. An empty
// clause list is vacuously true under "and" and false under "or".
func combineClauses(results []bool, logic string) bool {
	if len(results) == 0 {
		return logic != "or"
	}
	for _, matched := range results {
		if logic == "or" {
			if matched {
				return true
			}
		} else if !matched {
			return false
		}
	}
	return logic != "or"
}

func evaluateCondition(c Condition, wfCtx map[string]interface{}) bool {
	// The bare field path is braced so the whole-string template rule
	// yields the raw value with its type preserved.
	actual := ResolveTemplate("{{"+c.Field+"}}", wfCtx)

	switch c.Operator {
	case OpExists:
		return actual != nil
	case OpEq:
		return valuesEqual(actual, c.Value)
	case OpNe:
		return !valuesEqual(actual, c.Value)
	case OpGt:
		return compareOrdered(actual, c.Value) > 0
	case OpLt:
		return compareOrdered(actual, c.Value) < 0
	case OpContains:
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(c.Value))
	default:
		return false
	}
}

func valuesEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareOrdered compares numerically when both sides coerce, falling
// back to lexicographic comparison of the stringified values.
func compareOrdered(a, b interface{}) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af > bf:
				return 1
			case af < bf:
				return -1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
