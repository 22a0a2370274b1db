package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"agro-intake-be/internal/pkg/logger"
	"agro-intake-be/pkg/extraction/cache"
	"agro-intake-be/pkg/questionnaire"
)

// fakeExtractor answers prompts from a description-keyed table and records every call.
type fakeExtractor struct {
	mu       sync.Mutex
	answers  map[string]interface{}
	failOn   map[int]bool
	blockOn  map[int]bool
	gate     chan struct{}
	calls    []Request
	inflight int
	overlap  bool
}

func newFakeExtractor(answers map[string]interface{}) *fakeExtractor {
	return &fakeExtractor{
		answers: answers,
		failOn:  map[int]bool{},
		blockOn: map[int]bool{},
		gate:    make(chan struct{}),
	}
}

func (f *fakeExtractor) Extract(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.inflight++
	if f.inflight > 1 {
		f.overlap = true
	}
	fail, block := f.failOn[n], f.blockOn[n]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if block {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("service unavailable")
	}

	data := map[string]interface{}{}
	for _, p := range req.QuestionPrompts {
		desc, _, _ := strings.Cut(p, " (opciones: ")
		if v, ok := f.answers[desc]; ok {
			data[p] = v
		}
	}
	return &Response{Data: data}, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExtractor) sentPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.QuestionPrompts...)
	}
	return out
}

// recorder is a Listener that keeps everything it receives.
type recorder struct {
	mu       sync.Mutex
	patches  []Patch
	progress []Progress
	outcomes []Outcome
}

func (r *recorder) OnPatch(p Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, p)
}

func (r *recorder) OnProgress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recorder) OnComplete(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

// merged unions the received patches in arrival order.
func (r *recorder) merged() map[string]questionnaire.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]questionnaire.Value{}
	for _, p := range r.patches {
		for id, v := range p.Values {
			out[id] = v
		}
	}
	return out
}

func (r *recorder) batchOrder() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, p := range r.patches {
		out = append(out, p.Batch)
	}
	return out
}

// fixtureIndex has a general section (1-5), a greenhouse section (10-39) holding
// greenhouseCount text questions and an irrigation section (40-49) with one select question.
func fixtureIndex(greenhouseCount int) *questionnaire.Index {
	sections := []questionnaire.Section{
		{ID: "general", Title: "Datos Generales", General: true, Ranges: []questionnaire.OrderRange{{Min: 1, Max: 5}}},
		{ID: "greenhouses", Title: "Invernaderos", Ranges: []questionnaire.OrderRange{{Min: 10, Max: 39}}},
		{ID: "irrigation", Title: "Riego", Ranges: []questionnaire.OrderRange{{Min: 40, Max: 49}}},
	}
	questions := []questionnaire.Question{
		{ID: "cultivo", Description: "Cultivo", Order: 1, Type: questionnaire.TypeText},
	}
	for i := 0; i < greenhouseCount; i++ {
		questions = append(questions, questionnaire.Question{
			ID:          fmt.Sprintf("inv-%d", i+1),
			Description: fmt.Sprintf("Invernadero dato %d", i+1),
			Order:       float64(10 + i),
			Type:        questionnaire.TypeText,
		})
	}
	questions = append(questions, questionnaire.Question{
		ID:          "sistema-riego",
		Description: "Sistema de riego",
		Order:       40,
		Type:        questionnaire.TypeSelect,
		Options: []questionnaire.Option{
			{Code: "1", Label: "Goteo"},
			{Code: "2", Label: "Aspersión"},
		},
	})
	return questionnaire.NewIndex(sections, questions, logger.NewNopLogger())
}

func newTestOrchestrator(t *testing.T, idx *questionnaire.Index, ex Extractor) (*Orchestrator, *cache.Cache) {
	t.Helper()
	c := cache.New(cache.NewMemoryStore(0), logger.NewNopLogger())
	o := NewOrchestrator(idx, ex, c, logger.NewNopLogger(), WithProgressInterval(0))
	return o, c
}
