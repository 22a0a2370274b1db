package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"agro-intake-be/internal/pkg/logger"
	"agro-intake-be/pkg/events"
	"agro-intake-be/pkg/extraction"
	"agro-intake-be/pkg/extraction/cache"
	"agro-intake-be/pkg/questionnaire"
)

type memoryForm struct {
	mu            sync.Mutex
	form          questionnaire.FormState
	statuses      questionnaire.Statuses
	patches       []map[string]questionnaire.Value
	autoCompleted []string
	statusChanges []map[string]questionnaire.SectionStatus
}

func newMemoryForm() *memoryForm {
	return &memoryForm{form: questionnaire.FormState{}, statuses: questionnaire.Statuses{}}
}

func (f *memoryForm) Snapshot() (questionnaire.FormState, questionnaire.Statuses) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form.Clone(), f.statuses.Clone()
}

func (f *memoryForm) OnPatch(patch map[string]questionnaire.Value, autoCompleted []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Apply(patch)
	f.patches = append(f.patches, patch)
	f.autoCompleted = append(f.autoCompleted, autoCompleted...)
}

func (f *memoryForm) OnSectionStatusChange(statuses map[string]questionnaire.SectionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range statuses {
		f.statuses[id] = s
	}
	f.statusChanges = append(f.statusChanges, statuses)
}

func (f *memoryForm) merged() map[string]questionnaire.Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]questionnaire.Value{}
	for _, p := range f.patches {
		for id, v := range p {
			out[id] = v
		}
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Publish(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) typing() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bool
	for _, e := range s.events {
		if e.EventType() == events.TypeTypingChanged {
			out = append(out, e.Payload()["typing"].(bool))
		}
	}
	return out
}

// tableExtractor answers every prompt whose description it knows.
type tableExtractor struct {
	mu      sync.Mutex
	answers map[string]interface{}
	fail    bool
	calls   int
}

func (e *tableExtractor) Extract(_ context.Context, req extraction.Request) (*extraction.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return nil, errors.New("status 502")
	}
	data := map[string]interface{}{}
	for _, p := range req.QuestionPrompts {
		if v, ok := e.answers[p]; ok {
			data[p] = v
		}
	}
	return &extraction.Response{Data: data}, nil
}

func (e *tableExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// gatedExtractor blocks every call until gate is closed.
type gatedExtractor struct {
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func newGatedExtractor() *gatedExtractor {
	return &gatedExtractor{gate: make(chan struct{}), started: make(chan struct{})}
}

func (e *gatedExtractor) Extract(ctx context.Context, _ extraction.Request) (*extraction.Response, error) {
	e.once.Do(func() { close(e.started) })
	select {
	case <-e.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &extraction.Response{Data: map[string]interface{}{}}, nil
}

func numbered(prefix, label string, from, n int) []questionnaire.Question {
	out := make([]questionnaire.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, questionnaire.Question{
			ID:          fmt.Sprintf("%s-%d", prefix, i+1),
			Description: fmt.Sprintf("%s pregunta %d", label, i+1),
			Order:       float64(from + i),
			Type:        questionnaire.TypeText,
		})
	}
	return out
}

// fixtureIndex: general (1-5) with 5 questions, greenhouses (10-19) with 10 and
// irrigation (20-39) with irrigationCount.
func fixtureIndex(irrigationCount int) *questionnaire.Index {
	sections := []questionnaire.Section{
		{ID: "general", Title: "Datos Generales", General: true, Ranges: []questionnaire.OrderRange{{Min: 1, Max: 5}}},
		{ID: "greenhouses", Title: "Invernaderos", Ranges: []questionnaire.OrderRange{{Min: 10, Max: 19}}},
		{ID: "irrigation", Title: "Riego", Ranges: []questionnaire.OrderRange{{Min: 20, Max: 39}}},
	}
	var questions []questionnaire.Question
	questions = append(questions, numbered("g", "General", 1, 5)...)
	questions = append(questions, numbered("inv", "Invernadero", 10, 10)...)
	questions = append(questions, numbered("r", "Riego", 20, irrigationCount)...)
	return questionnaire.NewIndex(sections, questions, logger.NewNopLogger())
}

type harness struct {
	dispatcher *Dispatcher
	form       *memoryForm
	sink       *recordingSink
	extractor  *tableExtractor
}

func newHarness(t *testing.T, idx *questionnaire.Index, answers map[string]interface{}) *harness {
	t.Helper()
	ex := &tableExtractor{answers: answers}
	c := cache.New(cache.NewMemoryStore(0), logger.NewNopLogger())
	orch := extraction.NewOrchestrator(idx, ex, c, logger.NewNopLogger(), extraction.WithProgressInterval(0))
	form := newMemoryForm()
	sink := &recordingSink{}
	d := NewDispatcher("session-1", idx, orch, form, sink, logger.NewNopLogger(), WithDelays(Delays{}))
	t.Cleanup(d.Close)
	return &harness{dispatcher: d, form: form, sink: sink, extractor: ex}
}

func (h *harness) texts() []string {
	var out []string
	for _, m := range h.dispatcher.Messages() {
		out = append(out, m.Text)
	}
	return out
}

func (h *harness) lastSystem(t *testing.T) Message {
	t.Helper()
	msgs := h.dispatcher.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == SenderSystem {
			return msgs[i]
		}
	}
	t.Fatal("no system message")
	return Message{}
}

func (h *harness) withTag(tag Tag) []Message {
	var out []Message
	for _, m := range h.dispatcher.Messages() {
		if m.Tag == tag {
			out = append(out, m)
		}
	}
	return out
}
