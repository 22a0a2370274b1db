package questionnaire

import (
	"fmt"
	"math"
	"sort"

	"agro-intake-be/internal/pkg/logger"
)

const logModule = "Questionnaire"

// SectionProgress is the completion state of one section.
type SectionProgress struct {
	SectionID string
	Total     int
	Pending   []Question
	Completed []Question
}

// SectionCompletion is one row of a completion summary.
type SectionCompletion struct {
	Section   Section
	Total     int
	Completed int
	Percent   int
}

// Index resolves questions to sections by order ranges and answers completion queries.
type Index struct {
	sections  []Section
	questions []Question

	// membership holds only questions that map to exactly one section
	membership map[string]string
	bySection  map[string][]Question
	byID       map[string]Question
	generalID  string
}

// NewIndex builds the index. Questions whose order matches no section, or more than one,
// are logged and left out of every section-scoped count.
func NewIndex(sections []Section, questions []Question, log logger.ILogger) *Index {
	ordered := make([]Question, len(questions))
	copy(ordered, questions)
	SortByOrder(ordered)

	idx := &Index{
		sections:   sections,
		questions:  ordered,
		membership: make(map[string]string, len(ordered)),
		bySection:  make(map[string][]Question, len(sections)),
		byID:       make(map[string]Question, len(ordered)),
	}

	for _, s := range sections {
		if s.General && idx.generalID == "" {
			idx.generalID = s.ID
		}
	}

	for _, q := range ordered {
		idx.byID[q.ID] = q

		var matches []string
		for _, s := range sections {
			if s.Contains(q.Order) {
				matches = append(matches, s.ID)
			}
		}

		switch len(matches) {
		case 1:
			idx.membership[q.ID] = matches[0]
			idx.bySection[matches[0]] = append(idx.bySection[matches[0]], q)
		case 0:
			if log != nil {
				log.Warn(logModule, "Question order matches no section", map[string]interface{}{
					"question_id": q.ID,
					"order":       q.Order,
				})
			}
		default:
			if log != nil {
				log.Warn(logModule, "Question order matches more than one section", map[string]interface{}{
					"question_id": q.ID,
					"order":       q.Order,
					"sections":    matches,
				})
			}
		}
	}

	return idx
}

func (idx *Index) Sections() []Section   { return idx.sections }
func (idx *Index) Questions() []Question { return idx.questions }

// GeneralSectionID returns the id of the always-applicable section, "" if none is flagged.
func (idx *Index) GeneralSectionID() string { return idx.generalID }

// Section looks a section up by id.
func (idx *Index) Section(id string) (Section, bool) {
	for _, s := range idx.sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// Question looks a question up by id.
func (idx *Index) Question(id string) (Question, bool) {
	q, ok := idx.byID[id]
	return q, ok
}

// SectionOf returns the first section whose ranges contain the question order.
func (idx *Index) SectionOf(q Question) *Section {
	for i := range idx.sections {
		if idx.sections[i].Contains(q.Order) {
			return &idx.sections[i]
		}
	}
	return nil
}

// MemberOf returns the section id a question counts towards, false for unmapped
// or ambiguous questions.
func (idx *Index) MemberOf(questionID string) (string, bool) {
	id, ok := idx.membership[questionID]
	return id, ok
}

// QuestionsOf returns the questions of a section ordered by Order.
func (idx *Index) QuestionsOf(sectionID string) []Question {
	return idx.bySection[sectionID]
}

// StatusOf applies the general-section override on top of statuses.
func (idx *Index) StatusOf(sectionID string, statuses Statuses) SectionStatus {
	if sectionID != "" && sectionID == idx.generalID {
		return StatusApplicable
	}
	return statuses.Of(sectionID)
}

// Eligible reports whether a question may receive extracted answers:
// its section must not be marked not-applicable.
func (idx *Index) Eligible(q Question, statuses Statuses) bool {
	sectionID, ok := idx.membership[q.ID]
	if !ok {
		return true
	}
	return idx.StatusOf(sectionID, statuses) != StatusNotApplicable
}

// PendingQuestions partitions a section's questions by the completion predicate.
// A not-applicable section reports nothing, whatever answers it may still hold.
func (idx *Index) PendingQuestions(sectionID string, form FormState, statuses Statuses) SectionProgress {
	progress := SectionProgress{SectionID: sectionID}
	if idx.StatusOf(sectionID, statuses) == StatusNotApplicable {
		return progress
	}

	for _, q := range idx.bySection[sectionID] {
		progress.Total++
		if IsCompleted(form.Get(q.ID)) {
			progress.Completed = append(progress.Completed, q)
		} else {
			progress.Pending = append(progress.Pending, q)
		}
	}
	return progress
}

// CompletionSummary lists every section with at least one counted question,
// least complete first.
func (idx *Index) CompletionSummary(form FormState, statuses Statuses) []SectionCompletion {
	var rows []SectionCompletion
	for _, s := range idx.sections {
		p := idx.PendingQuestions(s.ID, form, statuses)
		if p.Total == 0 {
			continue
		}
		rows = append(rows, SectionCompletion{
			Section:   s,
			Total:     p.Total,
			Completed: len(p.Completed),
			Percent:   Percent(len(p.Completed), p.Total),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Percent < rows[j].Percent
	})
	return rows
}

// Percent returns round(completed/total*100), 0 when total is 0.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// ValidateStatusChange rejects unknown sections, unknown statuses and any attempt to
// mark the general section as not applicable.
func (idx *Index) ValidateStatusChange(sectionID string, status SectionStatus) error {
	if _, ok := idx.Section(sectionID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSection, sectionID)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if sectionID == idx.generalID && status == StatusNotApplicable {
		return ErrGeneralSectionLocked
	}
	return nil
}
