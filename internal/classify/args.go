package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TaggedArg is an argument that still carries its OSC type tag, as produced
// by tools that forward decoded OSC as JSON.
type TaggedArg struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

func unwrap(arg any) any {
	switch v := arg.(type) {
	case TaggedArg:
		return v.Value
	case *TaggedArg:
		if v == nil {
			return nil
		}
		return v.Value
	case map[string]any:
		if inner, ok := v["value"]; ok {
			return inner
		}
	}
	return arg
}

func unwrapAll(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = unwrap(a)
	}
	return out
}

// toFloat coerces an argument to a finite float64.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		// Shortest decimal form, so 0.972f reads back as 0.972.
		parsed, err := strconv.ParseFloat(strconv.FormatFloat(float64(n), 'g', -1, 32), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case bool:
		if n {
			f = 1
		}
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toIndex coerces an argument or address segment to a non-negative integer.
func toIndex(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func toBool(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	f, ok := toFloat(v)
	if !ok {
		return false, false
	}
	return f != 0, true
}

// stringify renders an argument as an identifier.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// numerics keeps the arguments that coerce to numbers, in order.
func numerics(args []any) []float64 {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		if f, ok := toFloat(a); ok {
			out = append(out, f)
		}
	}
	return out
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}
