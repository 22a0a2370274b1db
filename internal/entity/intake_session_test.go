package entity

import (
	"testing"

	"agro-intake-be/pkg/questionnaire"

	"github.com/stretchr/testify/assert"
)

func TestIntakeFormPatchAndSnapshot(t *testing.T) {
	form := NewIntakeForm()

	form.OnPatch(map[string]questionnaire.Value{
		"q1": questionnaire.StringValue("Maíz"),
		"q2": questionnaire.BoolValue(false),
	}, []string{"q1", "q2"})
	form.OnPatch(map[string]questionnaire.Value{"q1": questionnaire.Absent}, nil)
	form.OnSectionStatusChange(map[string]questionnaire.SectionStatus{"riego": questionnaire.StatusNotApplicable})

	values, statuses := form.Snapshot()
	assert.Equal(t, questionnaire.Absent, values.Get("q1"))
	assert.Equal(t, questionnaire.BoolValue(false), values.Get("q2"))
	assert.Equal(t, questionnaire.StatusNotApplicable, statuses.Of("riego"))

	// snapshots are detached from the live form
	values["q3"] = questionnaire.StringValue("x")
	again, _ := form.Snapshot()
	assert.Equal(t, questionnaire.Absent, again.Get("q3"))
}
