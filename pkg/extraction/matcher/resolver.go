// Package matcher maps raw extracted answers onto the value contract of a question.
package matcher

import (
	"strings"

	"agro-intake-be/pkg/questionnaire"
)

// MatchKind tells which tier of the select policy produced a value.
type MatchKind int

const (
	MatchNone MatchKind = iota // value passed through (non-select question)
	MatchExact
	MatchPartial
	MatchFallback // unrecognised select answer stored verbatim
)

// Resolve converts a raw extracted value into a form value for q.
func Resolve(q questionnaire.Question, raw questionnaire.Value) questionnaire.Value {
	v, _ := ResolveWithKind(q, raw)
	return v
}

// ResolveWithKind is Resolve plus the tier that matched.
//
// Single-select answers are matched case-insensitively against option labels:
// exact label first, then the first option whose label contains the answer or is
// contained by it, otherwise the raw answer is kept unchanged.
func ResolveWithKind(q questionnaire.Question, raw questionnaire.Value) (questionnaire.Value, MatchKind) {
	if q.Type != questionnaire.TypeSelect {
		return raw, MatchNone
	}

	text := raw.String()
	needle := strings.ToLower(text)

	for _, o := range q.Options {
		if strings.ToLower(o.Label) == needle {
			return questionnaire.StringValue(o.Code), MatchExact
		}
	}

	if needle != "" {
		for _, o := range q.Options {
			label := strings.ToLower(o.Label)
			if label == "" {
				continue
			}
			if strings.Contains(label, needle) || strings.Contains(needle, label) {
				return questionnaire.StringValue(o.Code), MatchPartial
			}
		}
	}

	return raw, MatchFallback
}
