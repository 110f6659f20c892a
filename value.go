package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/goliatone/go-entity/internal/layering"
)

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

func isNaN(value any) bool {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return math.IsNaN(rv.Float())
	default:
		return false
	}
}

// valuesEqual treats every nil form as equal, NaN as unequal to everything
// including itself, entities by identity and everything else by deep equality.
func valuesEqual(a, b any) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	if isNaN(a) || isNaN(b) {
		return false
	}
	if ea, ok := a.(Entity); ok {
		eb, ok := b.(Entity)
		return ok && ea.Core() == eb.Core()
	}
	return reflect.DeepEqual(a, b)
}

func cloneValue(value any) any {
	return layering.Clone(value)
}

// coerce converts a decoded payload value into target. Numbers are converted
// only when no precision is lost; anything else falls back to a JSON round
// trip so structs and typed collections decode naturally.
func coerce(value any, target reflect.Type) (any, error) {
	if isNil(value) {
		return nil, nil
	}
	if target.Kind() == reflect.Interface {
		if target.NumMethod() == 0 {
			return normalizeJSON(value), nil
		}
		if reflect.TypeOf(value).Implements(target) {
			return value, nil
		}
		return nil, typeMismatch(target, value)
	}

	rv := reflect.ValueOf(value)
	if rv.Type() == target {
		return value, nil
	}
	if number, ok := value.(json.Number); ok {
		return coerceNumber(number, target)
	}
	if converted, ok := convertNumeric(rv, target); ok {
		return converted.Interface(), nil
	}
	if isNumericKind(rv.Kind()) && isNumericKind(target.Kind()) {
		return nil, typeMismatch(target, value)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPropertyType, err)
	}
	out := reflect.New(target)
	if err := json.Unmarshal(raw, out.Interface()); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrPropertyType, target, err)
	}
	return out.Elem().Interface(), nil
}

func coerceNumber(number json.Number, target reflect.Type) (any, error) {
	out := reflect.New(target).Elem()
	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := number.Int64()
		if err != nil {
			f, ferr := number.Float64()
			if ferr != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return nil, typeMismatch(target, number)
			}
			i = int64(f)
		}
		if out.OverflowInt(i) {
			return nil, typeMismatch(target, number)
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := strconv.ParseUint(number.String(), 10, 64)
		if err != nil || out.OverflowUint(u) {
			return nil, typeMismatch(target, number)
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := number.Float64()
		if err != nil || out.OverflowFloat(f) {
			return nil, typeMismatch(target, number)
		}
		out.SetFloat(f)
	default:
		return nil, typeMismatch(target, number)
	}
	return out.Interface(), nil
}

func convertNumeric(rv reflect.Value, target reflect.Type) (reflect.Value, bool) {
	if !isNumericKind(rv.Kind()) || !isNumericKind(target.Kind()) {
		return reflect.Value{}, false
	}
	out := reflect.New(target).Elem()
	switch {
	case isFloatKind(rv.Kind()):
		f := rv.Float()
		switch {
		case isFloatKind(target.Kind()):
			if out.OverflowFloat(f) {
				return reflect.Value{}, false
			}
			out.SetFloat(f)
		case isIntKind(target.Kind()):
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
				return reflect.Value{}, false
			}
			out.SetInt(int64(f))
		default:
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
				return reflect.Value{}, false
			}
			out.SetUint(uint64(f))
		}
	case isIntKind(rv.Kind()):
		i := rv.Int()
		switch {
		case isFloatKind(target.Kind()):
			out.SetFloat(float64(i))
		case isIntKind(target.Kind()):
			if out.OverflowInt(i) {
				return reflect.Value{}, false
			}
			out.SetInt(i)
		default:
			if i < 0 || out.OverflowUint(uint64(i)) {
				return reflect.Value{}, false
			}
			out.SetUint(uint64(i))
		}
	default:
		u := rv.Uint()
		switch {
		case isFloatKind(target.Kind()):
			out.SetFloat(float64(u))
		case isIntKind(target.Kind()):
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return reflect.Value{}, false
			}
			out.SetInt(int64(u))
		default:
			if out.OverflowUint(u) {
				return reflect.Value{}, false
			}
			out.SetUint(u)
		}
	}
	return out, true
}

// normalizeJSON turns json.Number into int64 or float64 for untyped slots.
func normalizeJSON(value any) any {
	switch typed := value.(type) {
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalizeJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizeJSON(item)
		}
		return out
	default:
		return value
	}
}

func typeMismatch(target reflect.Type, value any) error {
	return fmt.Errorf("%w: expected %s, got %T(%v)", ErrPropertyType, target, value, value)
}

func isIntKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUintKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isFloatKind(kind reflect.Kind) bool {
	return kind == reflect.Float32 || kind == reflect.Float64
}

func isNumericKind(kind reflect.Kind) bool {
	return isIntKind(kind) || isUintKind(kind) || isFloatKind(kind)
}
