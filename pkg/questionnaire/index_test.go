package questionnaire

import (
	"fmt"
	"testing"

	"agro-intake-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureSections() []Section {
	return []Section{
		{ID: "general", Title: "Datos Generales", General: true, Ranges: []OrderRange{{Min: 1, Max: 5}}},
		{ID: "greenhouses", Title: "Invernaderos", Ranges: []OrderRange{{Min: 10, Max: 19}}},
		{ID: "irrigation", Title: "Riego", Ranges: []OrderRange{{Min: 20, Max: 29}, {Min: 40, Max: 44}}},
	}
}

func numbered(prefix string, from, n int) []Question {
	out := make([]Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Question{
			ID:          fmt.Sprintf("%s-%d", prefix, i+1),
			Description: fmt.Sprintf("%s question %d", prefix, i+1),
			Order:       float64(from + i),
			Type:        TypeText,
		})
	}
	return out
}

func TestSectionOf(t *testing.T) {
	idx := NewIndex(fixtureSections(), nil, logger.NewNopLogger())

	tests := []struct {
		order float64
		want  string
	}{
		{1, "general"},
		{5, "general"},
		{10, "greenhouses"},
		{19, "greenhouses"},
		{42, "irrigation"},
		{7, ""},
		{100, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.order), func(t *testing.T) {
			got := idx.SectionOf(Question{Order: tt.order})
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestUnmappedAndAmbiguousQuestionsAreExcluded(t *testing.T) {
	sections := append(fixtureSections(), Section{ID: "overlap", Ranges: []OrderRange{{Min: 12, Max: 12}}})
	questions := []Question{
		{ID: "mapped", Order: 11},
		{ID: "orphan", Order: 7},
		{ID: "ambiguous", Order: 12},
	}
	idx := NewIndex(sections, questions, logger.NewNopLogger())

	_, ok := idx.MemberOf("mapped")
	assert.True(t, ok)
	_, ok = idx.MemberOf("orphan")
	assert.False(t, ok)
	_, ok = idx.MemberOf("ambiguous")
	assert.False(t, ok)

	p := idx.PendingQuestions("greenhouses", FormState{}, Statuses{"greenhouses": StatusApplicable})
	assert.Equal(t, 1, p.Total)
}

func TestPendingQuestionsPartitions(t *testing.T) {
	questions := numbered("gh", 10, 4)
	idx := NewIndex(fixtureSections(), questions, logger.NewNopLogger())

	form := FormState{
		"gh-1": StringValue("Multitúnel"),
		"gh-2": StringValue("n/a"),
		"gh-4": BoolValue(false),
	}
	p := idx.PendingQuestions("greenhouses", form, Statuses{"greenhouses": StatusApplicable})

	assert.Equal(t, 4, p.Total)
	assert.Equal(t, []string{"gh-1", "gh-4"}, ids(p.Completed))
	assert.Equal(t, []string{"gh-2", "gh-3"}, ids(p.Pending))
}

func TestPendingQuestionsNotApplicableReportsNothing(t *testing.T) {
	questions := numbered("gh", 10, 10)
	form := FormState{}
	for _, q := range questions {
		form[q.ID] = StringValue("answered")
	}
	idx := NewIndex(fixtureSections(), questions, logger.NewNopLogger())

	p := idx.PendingQuestions("greenhouses", form, Statuses{"greenhouses": StatusNotApplicable})
	assert.Equal(t, 0, p.Total)
	assert.Empty(t, p.Pending)
	assert.Empty(t, p.Completed)
}

func TestGeneralSectionIsAlwaysApplicable(t *testing.T) {
	idx := NewIndex(fixtureSections(), numbered("g", 1, 2), logger.NewNopLogger())

	p := idx.PendingQuestions("general", FormState{}, Statuses{"general": StatusNotApplicable})
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, StatusApplicable, idx.StatusOf("general", nil))

	assert.ErrorIs(t, idx.ValidateStatusChange("general", StatusNotApplicable), ErrGeneralSectionLocked)
	assert.NoError(t, idx.ValidateStatusChange("general", StatusApplicable))
	assert.ErrorIs(t, idx.ValidateStatusChange("nope", StatusApplicable), ErrUnknownSection)
	assert.ErrorIs(t, idx.ValidateStatusChange("greenhouses", "maybe"), ErrInvalidStatus)
}

func TestCompletionSummaryOrdersLeastCompleteFirst(t *testing.T) {
	questions := append(numbered("g", 1, 5), numbered("gh", 10, 8)...)
	questions = append(questions, numbered("ir", 20, 3)...)
	form := FormState{}
	for _, q := range questions[:5] {
		form[q.ID] = StringValue("ok")
	}
	form["gh-1"] = StringValue("ok")
	form["gh-2"] = StringValue("ok")

	idx := NewIndex(fixtureSections(), questions, logger.NewNopLogger())
	rows := idx.CompletionSummary(form, Statuses{
		"greenhouses": StatusApplicable,
		"irrigation":  StatusNotApplicable,
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "greenhouses", rows[0].Section.ID)
	assert.Equal(t, 25, rows[0].Percent)
	assert.Equal(t, "general", rows[1].Section.ID)
	assert.Equal(t, 100, rows[1].Percent)
}

func TestPercentRounds(t *testing.T) {
	assert.Equal(t, 54, Percent(7, 13))
	assert.Equal(t, 50, Percent(1, 2))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 0, Percent(0, 0))
}

func ids(questions []Question) []string {
	out := make([]string, 0, len(questions))
	for _, q := range questions {
		out = append(out, q.ID)
	}
	return out
}
