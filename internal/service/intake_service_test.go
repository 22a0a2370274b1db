package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"agro-intake-be/internal/dto"
	"agro-intake-be/internal/pkg/logger"
	"agro-intake-be/pkg/chat"
	"agro-intake-be/pkg/events"
	"agro-intake-be/pkg/extraction"
	"agro-intake-be/pkg/extraction/cache"
	"agro-intake-be/pkg/questionnaire"
	"agro-intake-be/pkg/transcription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	data map[string]interface{}
}

func (s *stubExtractor) Extract(_ context.Context, req extraction.Request) (*extraction.Response, error) {
	out := map[string]interface{}{}
	for _, p := range req.QuestionPrompts {
		if v, ok := s.data[p]; ok {
			out[p] = v
		}
	}
	return &extraction.Response{Data: out}, nil
}

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(context.Context, []byte, string) string { return s.text }

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.EventType())
	}
	return out
}

type closerSpy struct {
	mu  sync.Mutex
	ids []string
}

func (c *closerSpy) Disconnect(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
}

func testIndex() *questionnaire.Index {
	sections := []questionnaire.Section{
		{ID: "general", Title: "Información general", General: true, Ranges: []questionnaire.OrderRange{{Min: 1, Max: 9}}},
		{ID: "riego", Title: "Riego", Ranges: []questionnaire.OrderRange{{Min: 10, Max: 19}}},
	}
	questions := []questionnaire.Question{
		{ID: "productor", Description: "Nombre del productor", Order: 1, Type: questionnaire.TypeText},
		{ID: "cultivo", Description: "Cultivo principal", Order: 2, Type: questionnaire.TypeText},
		{ID: "fuente", Description: "Fuente de agua", Order: 10, Type: questionnaire.TypeText},
		{ID: "goteo", Description: "Usa riego por goteo", Order: 11, Type: questionnaire.TypeBoolean},
	}
	return questionnaire.NewIndex(sections, questions, logger.NewNopLogger())
}

type fixture struct {
	svc    IIntakeService
	sink   *eventLog
	closer *closerSpy
}

func newFixture(t *testing.T, data map[string]interface{}, transcribed string) *fixture {
	t.Helper()
	return newFixtureFor(t, testIndex(), data, transcribed)
}

func newFixtureFor(t *testing.T, index *questionnaire.Index, data map[string]interface{}, transcribed string) *fixture {
	t.Helper()
	log := logger.NewNopLogger()
	orch := extraction.NewOrchestrator(index, &stubExtractor{data: data},
		cache.New(cache.NewMemoryStore(0), log), log, extraction.WithProgressInterval(0))

	f := &fixture{sink: &eventLog{}, closer: &closerSpy{}}
	f.svc = NewIntakeService(index, orch, stubTranscriber{text: transcribed}, f.sink, time.Hour, f.closer, log,
		WithDispatcherOptions(chat.WithDelays(chat.Delays{})))
	return f
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t, nil, "")

	res, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.Id)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "system", res.Messages[0].Sender)
	assert.Equal(t, "applicable", res.Statuses["general"])
	assert.Equal(t, "undetermined", res.Statuses["riego"])
	assert.Empty(t, res.Form)
}

func TestSendMessageAppliesExtraction(t *testing.T) {
	f := newFixture(t, map[string]interface{}{
		"Nombre del productor": "Ana Pérez",
		"Cultivo principal":    "Maíz",
	}, "")
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	res, err := f.svc.SendMessage(ctx, sess.Id, &dto.SendMessageRequest{Text: "Soy Ana Pérez y siembro maíz"})
	require.NoError(t, err)

	assert.Equal(t, "Ana Pérez", res.Form["productor"])
	assert.Equal(t, "Maíz", res.Form["cultivo"])
	last := res.Messages[len(res.Messages)-1]
	assert.Equal(t, string(chat.TagExtractionSummary), last.Tag)
	assert.Contains(t, last.Text, "2 campos extraídos")
	assert.Contains(t, f.sink.types(), events.TypePatchReady)
}

func TestUpdateAnswers(t *testing.T) {
	f := newFixture(t, nil, "")
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = f.svc.UpdateAnswers(ctx, sess.Id, &dto.UpdateAnswersRequest{Answers: map[string]interface{}{"nope": "x"}})
	assert.ErrorIs(t, err, ErrUnknownQuestion)

	res, err := f.svc.UpdateAnswers(ctx, sess.Id, &dto.UpdateAnswersRequest{Answers: map[string]interface{}{
		"productor": "Luis",
		"goteo":     false,
	}})
	require.NoError(t, err)
	assert.Equal(t, "Luis", res.Form["productor"])
	assert.Equal(t, false, res.Form["goteo"])

	res, err = f.svc.UpdateAnswers(ctx, sess.Id, &dto.UpdateAnswersRequest{Answers: map[string]interface{}{"productor": nil}})
	require.NoError(t, err)
	assert.NotContains(t, res.Form, "productor")
	assert.Contains(t, f.sink.types(), events.TypePatchReady)
}

func TestUpdateAnswersRejectsValuesOfTheWrongType(t *testing.T) {
	sections := []questionnaire.Section{
		{ID: "general", Title: "Información general", General: true, Ranges: []questionnaire.OrderRange{{Min: 1, Max: 9}}},
		{ID: "agua", Title: "Agua", Ranges: []questionnaire.OrderRange{{Min: 10, Max: 19}}},
	}
	questions := []questionnaire.Question{
		{ID: "productor", Description: "Nombre del productor", Order: 1, Type: questionnaire.TypeText},
		{ID: "riego", Description: "Sistema de riego", Order: 10, Type: questionnaire.TypeSelect,
			Options: []questionnaire.Option{{Code: "1", Label: "Goteo"}}},
		{ID: "goteo", Description: "Usa riego por goteo", Order: 11, Type: questionnaire.TypeBoolean},
	}
	f := newFixtureFor(t, questionnaire.NewIndex(sections, questions, logger.NewNopLogger()), nil, "")
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	tests := []struct {
		name    string
		answers map[string]interface{}
	}{
		{name: "select outside its codes", answers: map[string]interface{}{"riego": "banana"}},
		{name: "select label instead of code", answers: map[string]interface{}{"riego": "Goteo"}},
		{name: "boolean as free text", answers: map[string]interface{}{"goteo": "tal vez"}},
		{name: "text as boolean", answers: map[string]interface{}{"productor": true}},
		{name: "one bad value spoils the edit", answers: map[string]interface{}{"productor": "Ana", "goteo": "sí"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateAnswers(ctx, sess.Id, &dto.UpdateAnswersRequest{Answers: tt.answers})
			assert.ErrorIs(t, err, ErrInvalidAnswer)

			got, err := f.svc.GetSession(ctx, sess.Id)
			require.NoError(t, err)
			assert.Empty(t, got.Form)
		})
	}

	res, err := f.svc.UpdateAnswers(ctx, sess.Id, &dto.UpdateAnswersRequest{Answers: map[string]interface{}{
		"riego": float64(1),
		"goteo": true,
	}})
	require.NoError(t, err)
	assert.Equal(t, "1", res.Form["riego"])
	assert.Equal(t, true, res.Form["goteo"])
}

func TestSectionStatusAndProgress(t *testing.T) {
	f := newFixture(t, nil, "")
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = f.svc.UpdateAnswers(ctx, sess.Id, &dto.UpdateAnswersRequest{Answers: map[string]interface{}{
		"productor": "Luis",
		"fuente":    "Pozo",
	}})
	require.NoError(t, err)

	_, err = f.svc.SetSectionStatus(ctx, sess.Id, "riego", &dto.SectionStatusRequest{Status: "applicable"})
	require.NoError(t, err)

	progress, err := f.svc.GetProgress(ctx, sess.Id)
	require.NoError(t, err)
	assert.Equal(t, 4, progress.Total)
	assert.Equal(t, 2, progress.Completed)
	assert.Equal(t, 50, progress.Percent)

	res, err := f.svc.SetSectionStatus(ctx, sess.Id, "riego", &dto.SectionStatusRequest{Status: "not_applicable"})
	require.NoError(t, err)
	assert.NotContains(t, res.Form, "fuente")
	assert.Equal(t, "not_applicable", res.Statuses["riego"])

	progress, err = f.svc.GetProgress(ctx, sess.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Total)
	assert.Equal(t, 1, progress.Completed)
	assert.Equal(t, 50, progress.Percent)

	_, err = f.svc.SetSectionStatus(ctx, sess.Id, "general", &dto.SectionStatusRequest{Status: "not_applicable"})
	assert.ErrorIs(t, err, questionnaire.ErrGeneralSectionLocked)
}

func TestTranscribe(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		send      bool
		wantText  bool
		wantSent  bool
		wantField bool
	}{
		{name: "placeholder is never sent", text: transcription.Placeholder, send: true},
		{name: "text only", text: "Me llamo Ana Pérez", wantText: true},
		{name: "text handled as narration", text: "Me llamo Ana Pérez", send: true, wantText: true, wantSent: true, wantField: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]interface{}{"Nombre del productor": "Ana Pérez"}, tt.text)
			ctx := context.Background()
			sess, err := f.svc.CreateSession(ctx)
			require.NoError(t, err)

			res, err := f.svc.Transcribe(ctx, sess.Id, []byte("RIFF"), "nota.wav", tt.send)
			require.NoError(t, err)
			assert.Equal(t, tt.text, res.Text)
			assert.Equal(t, tt.wantText, res.Transcribed)
			assert.Equal(t, tt.wantSent, res.Sent)

			got, err := f.svc.GetSession(ctx, sess.Id)
			require.NoError(t, err)
			_, filled := got.Form["productor"]
			assert.Equal(t, tt.wantField, filled)
		})
	}
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t, nil, "")
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSession(ctx, sess.Id))

	_, err = f.svc.GetSession(ctx, sess.Id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.svc.DeleteSession(ctx, sess.Id), ErrSessionNotFound)
	_, err = f.svc.SendMessage(ctx, sess.Id, &dto.SendMessageRequest{Text: "hola"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, []string{sess.Id}, f.closer.ids)
}

func TestGetQuestionnaire(t *testing.T) {
	f := newFixture(t, nil, "")

	res := f.svc.GetQuestionnaire(context.Background())

	require.Len(t, res.Sections, 2)
	require.Len(t, res.Questions, 4)
	assert.Equal(t, "general", res.Questions[0].SectionId)
	assert.Equal(t, "riego", res.Questions[3].SectionId)
	assert.Equal(t, "boolean", res.Questions[3].Type)
}
