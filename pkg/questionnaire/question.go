package questionnaire

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// QuestionType is the closed set of field kinds a question can have.
type QuestionType string

const (
	TypeText    QuestionType = "text"
	TypeSelect  QuestionType = "select"
	TypeBoolean QuestionType = "boolean"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case TypeText, TypeSelect, TypeBoolean:
		return true
	}
	return false
}

// Option is one selectable answer of a single-select question.
type Option struct {
	Code  string `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
}

// Question is a single questionnaire field.
type Question struct {
	ID          string       `json:"id" yaml:"id"`
	Description string       `json:"description" yaml:"description"`
	Order       float64      `json:"order" yaml:"order"`
	Type        QuestionType `json:"type" yaml:"type"`
	Required    bool         `json:"required" yaml:"required"`
	Help        string       `json:"help,omitempty" yaml:"help,omitempty"`
	Options     []Option     `json:"options,omitempty" yaml:"options,omitempty"`
}

// OptionLabels returns the labels of the question options in declaration order.
func (q Question) OptionLabels() []string {
	labels := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		labels = append(labels, o.Label)
	}
	return labels
}

// HasOptionCode reports whether code is one of the question option codes.
func (q Question) HasOptionCode(code string) bool {
	for _, o := range q.Options {
		if o.Code == code {
			return true
		}
	}
	return false
}

// Accepts reports whether v may be stored as a direct answer to q. Absent always
// passes; a select takes one of its option codes and a boolean takes a bool.
func (q Question) Accepts(v Value) bool {
	switch v.Kind() {
	case KindAbsent:
		return true
	case KindBool:
		return q.Type == TypeBoolean
	}
	switch q.Type {
	case TypeSelect:
		return q.HasOptionCode(v.str)
	case TypeBoolean:
		return false
	}
	return true
}

// SortByOrder sorts questions ascending by Order, keeping declaration order on ties.
func SortByOrder(questions []Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Order < questions[j].Order
	})
}

// ValueKind distinguishes the variants a form value can hold.
type ValueKind int

const (
	KindAbsent ValueKind = iota
	KindString
	KindBool
)

// Value is a form answer: absent, a string or a boolean.
type Value struct {
	kind ValueKind
	str  string
	b    bool
}

// Absent is the zero Value. Patches use it to unset a field.
var Absent = Value{}

// StringValue wraps s as a form value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// BoolValue wraps b as a form value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsAbsent() bool  { return v.kind == KindAbsent }

// Equal reports whether both values hold the same variant and payload.
func (v Value) Equal(o Value) bool { return v == o }

// Str returns the string payload and whether v holds a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Bool returns the boolean payload and whether v holds a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Interface converts v into a plain Go value (nil, string or bool).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		return v.b
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	}
	return ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

// ValueOf converts a decoded JSON/YAML scalar into a Value.
// Numbers keep their textual form so that numeric option codes compare as strings.
func ValueOf(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Absent
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case float64:
		return StringValue(strconv.FormatFloat(t, 'f', -1, 64))
	case int:
		return StringValue(strconv.Itoa(t))
	default:
		return StringValue(fmt.Sprint(t))
	}
}

// FormState maps a question id to its current answer.
type FormState map[string]Value

// Clone returns a shallow copy of the form state.
func (f FormState) Clone() FormState {
	out := make(FormState, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Get returns the value for id, Absent when not set.
func (f FormState) Get(id string) Value {
	if f == nil {
		return Absent
	}
	return f[id]
}

// Apply unions patch onto the form. Absent values delete the key.
func (f FormState) Apply(patch map[string]Value) {
	for id, v := range patch {
		if v.IsAbsent() {
			delete(f, id)
			continue
		}
		f[id] = v
	}
}

// Plain returns the form as a map of plain Go values for serialisation.
func (f FormState) Plain() map[string]interface{} {
	out := make(map[string]interface{}, len(f))
	for k, v := range f {
		out[k] = v.Interface()
	}
	return out
}
