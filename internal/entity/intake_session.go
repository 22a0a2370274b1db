package entity

import (
	"sync"
	"time"

	"agro-intake-be/pkg/chat"
	"agro-intake-be/pkg/questionnaire"
)

// IntakeForm is the canonical form of one session. Every write goes through it.
type IntakeForm struct {
	mu        sync.RWMutex
	values    questionnaire.FormState
	statuses  questionnaire.Statuses
	updatedAt time.Time
}

func NewIntakeForm() *IntakeForm {
	return &IntakeForm{
		values:    questionnaire.FormState{},
		statuses:  questionnaire.Statuses{},
		updatedAt: time.Now(),
	}
}

// Snapshot returns copies that callers may read freely.
func (f *IntakeForm) Snapshot() (questionnaire.FormState, questionnaire.Statuses) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values.Clone(), f.statuses.Clone()
}

// OnPatch applies a patch; absent values clear the answer.
func (f *IntakeForm) OnPatch(patch map[string]questionnaire.Value, _ []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values.Apply(patch)
	f.updatedAt = time.Now()
}

func (f *IntakeForm) OnSectionStatusChange(statuses map[string]questionnaire.SectionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, st := range statuses {
		f.statuses[id] = st
	}
	f.updatedAt = time.Now()
}

func (f *IntakeForm) UpdatedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.updatedAt
}

var _ chat.FormSynchronizer = (*IntakeForm)(nil)

// IntakeSession ties a form to the dispatcher that drives its conversation.
type IntakeSession struct {
	ID         string
	Form       *IntakeForm
	Dispatcher *chat.Dispatcher
	CreatedAt  time.Time
}
