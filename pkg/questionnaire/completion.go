package questionnaire

import (
	"reflect"
	"strings"
)

// emptySentinels are answers that mean "not specified". Compared lower-case and trimmed.
var emptySentinels = map[string]struct{}{
	"not specified":   {},
	"not applicable":  {},
	"unknown":         {},
	"n/a":             {},
	"na":              {},
	"none":            {},
	"-":               {},
	"null":            {},
	"no especificado": {},
	"sin especificar": {},
	"no aplica":       {},
	"desconocido":     {},
	"ninguno":         {},
	"n/d":             {},
}

// EmptySentinels returns the sentinel vocabulary, useful for tests and prompts.
func EmptySentinels() []string {
	out := make([]string, 0, len(emptySentinels))
	for s := range emptySentinels {
		out = append(out, s)
	}
	return out
}

// IsEmpty reports whether value carries no usable answer.
// It accepts a Value, plain scalars, or slices/maps (empty ones count as empty).
func IsEmpty(value interface{}) bool {
	switch t := value.(type) {
	case nil:
		return true
	case Value:
		switch t.Kind() {
		case KindAbsent:
			return true
		case KindBool:
			return false
		}
		s, _ := t.Str()
		return isEmptyString(s)
	case *Value:
		if t == nil {
			return true
		}
		return IsEmpty(*t)
	case string:
		return isEmptyString(t)
	case bool:
		return false
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return IsEmpty(rv.Elem().Interface())
	}
	return false
}

// IsCompleted is the negation of IsEmpty. Every completion count uses it.
func IsCompleted(value interface{}) bool {
	return !IsEmpty(value)
}

func isEmptyString(s string) bool {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "" {
		return true
	}
	_, sentinel := emptySentinels[norm]
	return sentinel
}
