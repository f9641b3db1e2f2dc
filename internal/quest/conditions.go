package quest

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/selune/engine/internal/world"
)

// evaluate checks a single condition against the current state and
// player input. Any evaluation error is logged and the condition is
// treated as unmet.
func (e *Engine) evaluate(cond *world.Condition, input string) bool {
	ws := e.store.State()

	var actual any
	switch cond.Type {
	case world.CondAffinity:
		target := cond.Target
		if target == "" {
			target = ws.ActiveCompanion
		}
		actual = ws.Affinity[target]

	case world.CondLocation:
		actual = ws.Location

	case world.CondTime:
		actual = string(ws.Time)

	case world.CondFlag:
		v, ok := ws.Flags[cond.Target]
		if !ok {
			v = false
		}
		if b, isBool := v.(bool); isBool {
			return b == flagWant(cond.Value)
		}
		return fmt.Sprint(v) == fmt.Sprint(cond.Value)

	case world.CondTurnCount:
		actual = ws.Turn

	case world.CondInventory:
		// Inventory lives in a list flag.
		items, _ := ws.Flags["inventory"].([]any)
		has := false
		for _, item := range items {
			if fmt.Sprint(item) == cond.Target {
				has = true
				break
			}
		}
		return has == flagWant(cond.Value)

	case world.CondAction:
		return cond.MatchInput(input)

	case world.CondCompanion:
		actual = ws.ActiveCompanion

	default:
		return false
	}

	ok, err := compare(actual, cond.Operator, cond.Value)
	if err != nil {
		log.Printf("quest condition error type=%s op=%s: %v", cond.Type, cond.Operator, err)
		return false
	}
	return ok
}

func flagWant(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true")
	case nil:
		return true
	}
	return true
}

// compare applies an operator to actual and expected. Ordered operators
// on non-numeric operands are an evaluation error.
func compare(actual any, operator string, expected any) (bool, error) {
	af, aok := asFloat(actual)
	ef, eok := asFloat(expected)
	if aok && eok {
		switch operator {
		case "eq":
			return af == ef, nil
		case "gt":
			return af > ef, nil
		case "lt":
			return af < ef, nil
		case "gte":
			return af >= ef, nil
		case "lte":
			return af <= ef, nil
		default:
			return false, fmt.Errorf("unknown operator %q", operator)
		}
	}

	as := strings.ToLower(fmt.Sprint(actual))
	es := strings.ToLower(fmt.Sprint(expected))
	switch operator {
	case "eq":
		return as == es, nil
	case "contains":
		return strings.Contains(as, es), nil
	case "gt", "lt", "gte", "lte":
		return false, fmt.Errorf("operator %q requires numeric operands, got %T and %T", operator, actual, expected)
	}
	return false, fmt.Errorf("unknown operator %q", operator)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
