package script

import (
	"fmt"
	"go/token"
)

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, &RuntimeError{Detail: fmt.Sprintf("cannot convert %T to number", v)}
	}
}

// numericResult keeps whole-valued floats as int64 so scripts that do
// arithmetic on integers don't leak a ".0" into the merged result data.
func numericResult(f float64) interface{} {
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}

func toLength(v interface{}) (int64, error) {
	switch t := v.(type) {
	case string:
		return int64(len(t)), nil
	case []interface{}:
		return int64(len(t)), nil
	case map[string]interface{}:
		return int64(len(t)), nil
	default:
		return 0, &RuntimeError{Detail: fmt.Sprintf("object of type %T has no len()", v)}
	}
}

func toSlice(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case nil:
		return nil
	default:
		return []interface{}{t}
	}
}

func lessValue(a, b interface{}) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as < bs
		}
	}
	af, aerr := toFloat(a)
	bf, berr := toFloat(b)
	if aerr == nil && berr == nil {
		return af < bf
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

func binaryOp(op token.Token, l, r interface{}) (interface{}, error) {
	if op == token.ADD {
		if ls, ok := l.(string); ok {
			rs, ok := r.(string)
			if !ok {
				return nil, &RuntimeError{Detail: "cannot add string and non-string"}
			}
			return ls + rs, nil
		}
	}

	switch op {
	case token.EQL:
		return valuesEqual(l, r), nil
	case token.NEQ:
		return !valuesEqual(l, r), nil
	}

	lf, err := toFloat(l)
	if err != nil {
		return nil, err
	}
	rf, err := toFloat(r)
	if err != nil {
		return nil, err
	}

	switch op {
	case token.ADD:
		return numericResult(lf + rf), nil
	case token.SUB:
		return numericResult(lf - rf), nil
	case token.MUL:
		return numericResult(lf * rf), nil
	case token.QUO:
		if rf == 0 {
			return nil, &RuntimeError{Detail: "division by zero"}
		}
		return numericResult(lf / rf), nil
	case token.REM:
		if rf == 0 {
			return nil, &RuntimeError{Detail: "division by zero"}
		}
		return numericResult(float64(int64(lf) % int64(rf))), nil
	case token.LSS:
		return lf < rf, nil
	case token.LEQ:
		return lf <= rf, nil
	case token.GTR:
		return lf > rf, nil
	case token.GEQ:
		return lf >= rf, nil
	default:
		return nil, &RuntimeError{Detail: fmt.Sprintf("unsupported operator %v", op)}
	}
}

func valuesEqual(l, r interface{}) bool {
	lf, lerr := toFloat(l)
	rf, rerr := toFloat(r)
	if lerr == nil && rerr == nil {
		return lf == rf
	}
	return l == r
}
