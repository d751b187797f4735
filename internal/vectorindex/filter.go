package vectorindex

import "strings"

// Matches evaluates the filter tree against a payload. A nil filter matches
// everything. Comparisons are JSON-value equality for Equals/In and string
// semantics for Contains/StartsWith/EndsWith; Range compares numerically via
// inRange and treats a missing field as out of range.
func (f *Filter) Matches(payload map[string]interface{}) bool {
	if f == nil {
		return true
	}
	if f.Condition != nil {
		return matchCondition(*f.Condition, payload)
	}
	if f.Not != nil {
		return !f.Not.Matches(payload)
	}
	if len(f.And) > 0 {
		for _, child := range f.And {
			if !child.Matches(payload) {
				return false
			}
		}
		return true
	}
	if len(f.Or) > 0 {
		for _, child := range f.Or {
			if child.Matches(payload) {
				return true
			}
		}
		return false
	}
	// An empty, non-leaf filter matches nothing rather than everything, so
	// a malformed tree fails closed instead of silently passing all points.
	return false
}

func matchCondition(c Condition, payload map[string]interface{}) bool {
	val, present := payload[c.Field]
	switch c.Op {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	case OpEquals:
		return present && equalValues(val, c.Value)
	case OpNotEquals:
		return !present || !equalValues(val, c.Value)
	case OpIn:
		if !present {
			return false
		}
		return valueIn(val, c.Value)
	case OpNotIn:
		if !present {
			return true
		}
		return !valueIn(val, c.Value)
	case OpRange:
		if !present {
			return false
		}
		return inRange(val, c.GTE, c.LTE)
	case OpContains:
		return present && stringOp(val, c.Value, strings.Contains)
	case OpStartsWith:
		return present && stringOp(val, c.Value, strings.HasPrefix)
	case OpEndsWith:
		return present && stringOp(val, c.Value, strings.HasSuffix)
	default:
		return false
	}
}

func stringOp(val, target interface{}, op func(s, substr string) bool) bool {
	s, ok := val.(string)
	if !ok {
		return false
	}
	t, ok := target.(string)
	if !ok {
		return false
	}
	return op(s, t)
}

func equalValues(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func valueIn(val, list interface{}) bool {
	items, ok := list.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if equalValues(val, item) {
			return true
		}
	}
	return false
}

func inRange(val, gte, lte interface{}) bool {
	vf, ok := toFloat(val)
	if !ok {
		return false
	}
	if gte != nil {
		if gf, ok := toFloat(gte); ok && vf < gf {
			return false
		}
	}
	if lte != nil {
		if lf, ok := toFloat(lte); ok && vf > lf {
			return false
		}
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
