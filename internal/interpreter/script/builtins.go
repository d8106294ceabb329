package script

import (
	"fmt"
	"sort"
)

// builtins is the fixed allowlist of callable names. Each one is a
// pragmatic Go-native stand-in for its Python namesake; scripts are a
// restricted expression language, not a Python interpreter, so the
// semantics are "close enough for a workflow data transform", not a
// byte-for-byte port.
var builtins = map[string]bool{
	"abs": true, "all": true, "any": true, "bool": true, "dict": true,
	"enumerate": true, "Exception": true, "float": true, "int": true,
	"isinstance": true, "len": true, "list": true, "max": true, "min": true,
	"range": true, "round": true, "set": true, "sorted": true, "str": true,
	"sum": true, "tuple": true, "zip": true,
}

func callBuiltin(name string, args []interface{}) (interface{}, error) {
	switch name {
	case "abs":
		n, err := toFloat(arg(args, 0))
		if err != nil {
			return nil, err
		}
		if n < 0 {
			n = -n
		}
		return n, nil
	case "bool":
		return truthy(arg(args, 0)), nil
	case "float":
		return toFloat(arg(args, 0))
	case "int":
		f, err := toFloat(arg(args, 0))
		if err != nil {
			return nil, err
		}
		return int64(f), nil
	case "str":
		return fmt.Sprintf("%v", arg(args, 0)), nil
	case "len":
		return toLength(arg(args, 0))
	case "dict":
		return map[string]interface{}{}, nil
	case "list", "tuple", "set":
		items := toSlice(arg(args, 0))
		if name != "set" {
			return items, nil
		}
		return dedupe(items), nil
	case "sorted":
		items := append([]interface{}{}, toSlice(arg(args, 0))...)
		sort.Slice(items, func(i, j int) bool { return lessValue(items[i], items[j]) })
		return items, nil
	case "sum":
		total := 0.0
		for _, v := range toSlice(arg(args, 0)) {
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			total += f
		}
		return total, nil
	case "max", "min":
		items := toSlice(arg(args, 0))
		if len(args) > 1 {
			items = args
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%s() arg is an empty sequence", name)
		}
		best := items[0]
		for _, v := range items[1:] {
			if (name == "max" && lessValue(best, v)) || (name == "min" && lessValue(v, best)) {
				best = v
			}
		}
		return best, nil
	case "round":
		f, err := toFloat(arg(args, 0))
		if err != nil {
			return nil, err
		}
		if f >= 0 {
			return float64(int64(f + 0.5)), nil
		}
		return float64(int64(f - 0.5)), nil
	case "range":
		return buildRange(args)
	case "enumerate":
		items := toSlice(arg(args, 0))
		out := make([]interface{}, len(items))
		for i, v := range items {
			out[i] = []interface{}{int64(i), v}
		}
		return out, nil
	case "zip":
		return zipSlices(args), nil
	case "all":
		for _, v := range toSlice(arg(args, 0)) {
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil
	case "any":
		for _, v := range toSlice(arg(args, 0)) {
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil
	case "isinstance":
		return isInstance(arg(args, 0), arg(args, 1)), nil
	case "Exception":
		return fmt.Errorf("%v", arg(args, 0)), nil
	}
	return nil, fmt.Errorf("call to unknown function %q", name)
}

func arg(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func buildRange(args []interface{}) ([]interface{}, error) {
	toInt := func(v interface{}) (int64, error) {
		f, err := toFloat(v)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	}
	var start, stop, step int64 = 0, 0, 1
	var err error
	switch len(args) {
	case 1:
		stop, err = toInt(args[0])
	case 2:
		start, err = toInt(args[0])
		if err == nil {
			stop, err = toInt(args[1])
		}
	case 3:
		start, err = toInt(args[0])
		if err == nil {
			stop, err = toInt(args[1])
		}
		if err == nil {
			step, err = toInt(args[2])
		}
	default:
		return nil, fmt.Errorf("range() expects 1 to 3 arguments")
	}
	if err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, fmt.Errorf("range() step must not be zero")
	}
	var out []interface{}
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

func zipSlices(args []interface{}) []interface{} {
	slices := make([][]interface{}, len(args))
	minLen := -1
	for i, a := range args {
		slices[i] = toSlice(a)
		if minLen == -1 || len(slices[i]) < minLen {
			minLen = len(slices[i])
		}
	}
	if minLen < 0 {
		minLen = 0
	}
	out := make([]interface{}, minLen)
	for i := 0; i < minLen; i++ {
		tuple := make([]interface{}, len(slices))
		for j := range slices {
			tuple[j] = slices[j][i]
		}
		out[i] = tuple
	}
	return out
}

func dedupe(items []interface{}) []interface{} {
	var out []interface{}
	for _, v := range items {
		found := false
		for _, existing := range out {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}

func isInstance(v interface{}, kind interface{}) bool {
	name, _ := kind.(string)
	switch name {
	case "int":
		_, ok := v.(int64)
		return ok
	case "float":
		_, ok := v.(float64)
		return ok
	case "str":
		_, ok := v.(string)
		return ok
	case "bool":
		_, ok := v.(bool)
		return ok
	case "list":
		_, ok := v.([]interface{})
		return ok
	case "dict":
		_, ok := v.(map[string]interface{})
		return ok
	default:
		return false
	}
}
