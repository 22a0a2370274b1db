// FILE: internal/service/intake_service.go
// PURPOSE: Intake sessions: one form and one chat dispatcher per session, REST-facing.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agro-intake-be/internal/dto"
	"agro-intake-be/internal/entity"
	"agro-intake-be/internal/pkg/logger"
	"agro-intake-be/internal/repository/memory"
	"agro-intake-be/pkg/chat"
	"agro-intake-be/pkg/events"
	"agro-intake-be/pkg/extraction"
	"agro-intake-be/pkg/questionnaire"
	"agro-intake-be/pkg/transcription"

	"github.com/google/uuid"
)

const intakeLogModule = "IntakeService"

var (
	ErrSessionNotFound = errors.New("intake session not found")
	ErrUnknownQuestion = errors.New("unknown question")
	ErrInvalidAnswer   = errors.New("invalid answer")
)

type IIntakeService interface {
	CreateSession(ctx context.Context) (*dto.SessionResponse, error)
	GetSession(ctx context.Context, sessionID string) (*dto.SessionResponse, error)
	SendMessage(ctx context.Context, sessionID string, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error)
	UpdateAnswers(ctx context.Context, sessionID string, req *dto.UpdateAnswersRequest) (*dto.SessionResponse, error)
	SetSectionStatus(ctx context.Context, sessionID, sectionID string, req *dto.SectionStatusRequest) (*dto.SessionResponse, error)
	GetProgress(ctx context.Context, sessionID string) (*dto.ProgressResponse, error)
	Transcribe(ctx context.Context, sessionID string, audio []byte, filename string, send bool) (*dto.TranscriptionResponse, error)
	DeleteSession(ctx context.Context, sessionID string) error
	GetQuestionnaire(ctx context.Context) *dto.QuestionnaireResponse
}

// SessionCloser is told when a session goes away so live listeners can be released.
type SessionCloser interface {
	Disconnect(sessionID string)
}

type intakeService struct {
	index        *questionnaire.Index
	orchestrator *extraction.Orchestrator
	transcriber  transcription.Transcriber
	sessions     *memory.SessionRepository
	sink         events.Sink
	logger       logger.ILogger

	dispatcherOpts []chat.Option
}

type IntakeOption func(*intakeService)

func WithDispatcherOptions(opts ...chat.Option) IntakeOption {
	return func(s *intakeService) { s.dispatcherOpts = append(s.dispatcherOpts, opts...) }
}

func NewIntakeService(
	index *questionnaire.Index,
	orchestrator *extraction.Orchestrator,
	transcriber transcription.Transcriber,
	sink events.Sink,
	sessionTTL time.Duration,
	closer SessionCloser,
	log logger.ILogger,
	opts ...IntakeOption,
) IIntakeService {
	s := &intakeService{
		index:        index,
		orchestrator: orchestrator,
		transcriber:  transcriber,
		sink:         sink,
		logger:       log,
	}
	s.sessions = memory.NewSessionRepository(sessionTTL, func(sess *entity.IntakeSession) {
		sess.Dispatcher.Close()
		if closer != nil {
			closer.Disconnect(sess.ID)
		}
		log.Info(intakeLogModule, "Session closed", map[string]interface{}{"session_id": sess.ID})
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *intakeService) CreateSession(ctx context.Context) (*dto.SessionResponse, error) {
	id := uuid.NewString()
	form := entity.NewIntakeForm()
	sess := &entity.IntakeSession{
		ID:         id,
		Form:       form,
		Dispatcher: chat.NewDispatcher(id, s.index, s.orchestrator, form, s.sink, s.logger, s.dispatcherOpts...),
		CreatedAt:  time.Now(),
	}
	sess.Dispatcher.Greet()
	s.sessions.Save(sess)

	s.logger.Info(intakeLogModule, "Session created", map[string]interface{}{"session_id": id})
	return s.sessionResponse(sess), nil
}

func (s *intakeService) GetSession(ctx context.Context, sessionID string) (*dto.SessionResponse, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}
	return s.sessionResponse(sess), nil
}

func (s *intakeService) SendMessage(ctx context.Context, sessionID string, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}

	if err := sess.Dispatcher.Handle(ctx, req.Text); err != nil {
		if errors.Is(err, chat.ErrDispatcherClosed) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}

	form, _ := sess.Form.Snapshot()
	return &dto.SendMessageResponse{
		Messages:   messagesResponse(sess.Dispatcher.Messages()),
		Form:       form.Plain(),
		Extracting: sess.Dispatcher.Busy(),
	}, nil
}

// UpdateAnswers applies a direct edit made by the user. Null clears the answer.
func (s *intakeService) UpdateAnswers(ctx context.Context, sessionID string, req *dto.UpdateAnswersRequest) (*dto.SessionResponse, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}

	patch := make(map[string]questionnaire.Value, len(req.Answers))
	for id, raw := range req.Answers {
		q, ok := s.index.Question(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, id)
		}
		v := questionnaire.ValueOf(raw)
		if !q.Accepts(v) {
			return nil, fmt.Errorf("%w: %s does not take %q as a %s answer", ErrInvalidAnswer, id, v.String(), q.Type)
		}
		patch[id] = v
	}

	sess.Form.OnPatch(patch, nil)

	data := make(map[string]interface{}, len(patch))
	for id, v := range patch {
		data[id] = v.Interface()
	}
	if err := s.sink.Publish(ctx, events.New(events.TypePatchReady, sessionID, map[string]interface{}{
		"values": data,
		"source": "user",
	})); err != nil {
		s.logger.Warn(intakeLogModule, "Failed to publish direct edit", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}

	return s.sessionResponse(sess), nil
}

func (s *intakeService) SetSectionStatus(ctx context.Context, sessionID, sectionID string, req *dto.SectionStatusRequest) (*dto.SessionResponse, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Dispatcher.SetSectionStatus(ctx, sectionID, questionnaire.SectionStatus(req.Status)); err != nil {
		if errors.Is(err, chat.ErrDispatcherClosed) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}
	return s.sessionResponse(sess), nil
}

// GetProgress lists every section; the overall figures only count applicable ones.
func (s *intakeService) GetProgress(ctx context.Context, sessionID string) (*dto.ProgressResponse, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}
	form, statuses := sess.Form.Snapshot()

	res := &dto.ProgressResponse{Sections: make([]dto.SectionProgressResponse, 0, len(s.index.Sections()))}
	for _, sec := range s.index.Sections() {
		status := s.index.StatusOf(sec.ID, statuses)
		p := s.index.PendingQuestions(sec.ID, form, statuses)
		res.Sections = append(res.Sections, dto.SectionProgressResponse{
			SectionId: sec.ID,
			Title:     sec.Title,
			Status:    string(status),
			Total:     p.Total,
			Completed: len(p.Completed),
			Percent:   questionnaire.Percent(len(p.Completed), p.Total),
		})
		if status == questionnaire.StatusApplicable {
			res.Total += p.Total
			res.Completed += len(p.Completed)
		}
	}
	res.Percent = questionnaire.Percent(res.Completed, res.Total)
	return res, nil
}

// Transcribe turns audio into text. With send set, a successful transcription is
// handled as if the user had typed it.
func (s *intakeService) Transcribe(ctx context.Context, sessionID string, audio []byte, filename string, send bool) (*dto.TranscriptionResponse, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}

	text := s.transcriber.Transcribe(ctx, audio, filename)
	res := &dto.TranscriptionResponse{
		Text:        text,
		Transcribed: text != transcription.Placeholder && strings.TrimSpace(text) != "",
	}
	if !send || !res.Transcribed {
		return res, nil
	}

	if err := sess.Dispatcher.Handle(ctx, text); err != nil {
		if errors.Is(err, chat.ErrDispatcherClosed) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}
	res.Sent = true
	return res, nil
}

func (s *intakeService) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.find(sessionID); err != nil {
		return err
	}
	s.sessions.Delete(sessionID)
	return nil
}

func (s *intakeService) GetQuestionnaire(ctx context.Context) *dto.QuestionnaireResponse {
	res := &dto.QuestionnaireResponse{}
	for _, sec := range s.index.Sections() {
		res.Sections = append(res.Sections, dto.SectionResponse{
			Id:      sec.ID,
			Title:   sec.Title,
			General: sec.General,
		})
	}
	for _, q := range s.index.Questions() {
		item := dto.QuestionResponse{
			Id:          q.ID,
			Description: q.Description,
			Order:       q.Order,
			Type:        string(q.Type),
			Required:    q.Required,
			Help:        q.Help,
		}
		if sectionID, ok := s.index.MemberOf(q.ID); ok {
			item.SectionId = sectionID
		}
		for _, o := range q.Options {
			item.Options = append(item.Options, dto.QuestionOptionResponse{Code: o.Code, Label: o.Label})
		}
		res.Questions = append(res.Questions, item)
	}
	return res
}

func (s *intakeService) find(sessionID string) (*entity.IntakeSession, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

func (s *intakeService) sessionResponse(sess *entity.IntakeSession) *dto.SessionResponse {
	form, statuses := sess.Form.Snapshot()

	res := &dto.SessionResponse{
		Id:         sess.ID,
		Form:       form.Plain(),
		Statuses:   make(map[string]string, len(s.index.Sections())),
		Messages:   messagesResponse(sess.Dispatcher.Messages()),
		Typing:     sess.Dispatcher.Typing(),
		Extracting: sess.Dispatcher.Busy(),
		CreatedAt:  sess.CreatedAt,
	}
	for _, sec := range s.index.Sections() {
		res.Statuses[sec.ID] = string(s.index.StatusOf(sec.ID, statuses))
	}
	if sg := sess.Dispatcher.Suggestion(); sg != nil {
		res.Suggestion = &dto.SuggestionResponse{Kind: string(sg.Kind), Id: sg.ID}
	}
	return res
}

func messagesResponse(msgs []chat.Message) []dto.ChatMessageResponse {
	out := make([]dto.ChatMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, dto.ChatMessageResponse{
			Id:        m.ID,
			Sender:    string(m.Sender),
			Text:      m.Text,
			Tag:       string(m.Tag),
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}
