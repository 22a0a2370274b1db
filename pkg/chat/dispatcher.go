package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"agro-intake-be/internal/pkg/logger"
	"agro-intake-be/pkg/events"
	"agro-intake-be/pkg/extraction"
	"agro-intake-be/pkg/questionnaire"
)

const logModule = "ChatDispatcher"

var ErrDispatcherClosed = errors.New("chat: dispatcher closed")

// FormSynchronizer owns the canonical form state. The dispatcher reads snapshots and
// proposes changes; it never mutates the form itself.
type FormSynchronizer interface {
	Snapshot() (questionnaire.FormState, questionnaire.Statuses)
	OnPatch(patch map[string]questionnaire.Value, autoCompleted []string)
	OnSectionStatusChange(statuses map[string]questionnaire.SectionStatus)
}

// Delays are the artificial pauses of the conversation.
type Delays struct {
	// Typing is the minimum time the typing indicator stays visible.
	Typing time.Duration
	// Suggestion precedes the "next section" suggestion after a progress report.
	Suggestion time.Duration
	// FollowUp precedes the prompt for the first pending question.
	FollowUp time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		Typing:     1500 * time.Millisecond,
		Suggestion: 1500 * time.Millisecond,
		FollowUp:   1800 * time.Millisecond,
	}
}

type SuggestionKind string

const (
	SuggestSection  SuggestionKind = "section"
	SuggestQuestion SuggestionKind = "question"
)

// Suggestion is what the last system prompt offered the user.
type Suggestion struct {
	Kind SuggestionKind `json:"kind"`
	ID   string         `json:"id"`
}

// Dispatcher classifies each user message of one intake session and acts on it.
type Dispatcher struct {
	sessionID    string
	index        *questionnaire.Index
	orchestrator *extraction.Orchestrator
	form         FormSynchronizer
	sink         events.Sink
	logger       logger.ILogger
	log          *Log
	delays       Delays
	phraser      Phraser
	scheduler    *Scheduler

	// runSlot admits one orchestration run at a time, background batches included.
	runSlot chan struct{}

	bgCtx    context.Context
	bgCancel context.CancelFunc
	closedCh chan struct{}

	mu         sync.Mutex
	suggestion *Suggestion
	typing     bool
	turns      int // turns whose typing indicator is still held
	closed     bool
}

type Option func(*Dispatcher)

func WithDelays(d Delays) Option {
	return func(disp *Dispatcher) { disp.delays = d }
}

func WithPhraser(p Phraser) Option {
	return func(disp *Dispatcher) { disp.phraser = p }
}

func WithLog(l *Log) Option {
	return func(disp *Dispatcher) { disp.log = l }
}

func NewDispatcher(
	sessionID string,
	index *questionnaire.Index,
	orchestrator *extraction.Orchestrator,
	form FormSynchronizer,
	sink events.Sink,
	log logger.ILogger,
	opts ...Option,
) *Dispatcher {
	if sink == nil {
		sink = events.NopSink
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sessionID:    sessionID,
		index:        index,
		orchestrator: orchestrator,
		form:         form,
		sink:         sink,
		logger:       log,
		log:          NewLog(),
		delays:       DefaultDelays(),
		scheduler:    NewScheduler(),
		runSlot:      make(chan struct{}, 1),
		bgCtx:        bgCtx,
		bgCancel:     cancel,
		closedCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Messages() []Message { return d.log.Messages() }

// Suggestion returns the pending suggestion, nil when none is armed.
func (d *Dispatcher) Suggestion() *Suggestion {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.suggestion == nil {
		return nil
	}
	s := *d.suggestion
	return &s
}

func (d *Dispatcher) Typing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typing
}

// Busy reports whether an orchestration run still holds the session.
func (d *Dispatcher) Busy() bool {
	return len(d.runSlot) > 0
}

// WaitIdle blocks until no orchestration run holds the session.
func (d *Dispatcher) WaitIdle(ctx context.Context) error {
	select {
	case d.runSlot <- struct{}{}:
		<-d.runSlot
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closedCh:
		return ErrDispatcherClosed
	}
}

// Greet posts the opening message of a session.
func (d *Dispatcher) Greet() {
	d.post(SenderSystem, msgHelpGeneric, TagHelp)
}

// Handle processes one user message. Failures of collaborators are reported in the
// chat; only a closed dispatcher or a cancelled ctx produce an error.
func (d *Dispatcher) Handle(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if d.isClosed() {
		return ErrDispatcherClosed
	}

	d.post(SenderUser, text, TagNone)

	start := time.Now()
	d.holdTyping()
	defer d.releaseTyping(start)

	suggestion := d.takeSuggestion()
	intent := Classify(text, suggestion != nil)

	d.logger.Debug(logModule, "Message classified", map[string]interface{}{
		"session_id": d.sessionID,
		"intent":     intent.String(),
	})

	switch intent {
	case IntentAffirmative:
		d.followUp(*suggestion)
	case IntentProgress:
		d.reportProgress()
	case IntentHelp:
		d.help(suggestion)
	default:
		return d.narrate(ctx, text)
	}
	return nil
}

// SetSectionStatus applies an applicability change. Marking a section not applicable
// unsets every answer held for its questions before the status change is reported.
func (d *Dispatcher) SetSectionStatus(ctx context.Context, sectionID string, status questionnaire.SectionStatus) error {
	if d.isClosed() {
		return ErrDispatcherClosed
	}
	if err := d.index.ValidateStatusChange(sectionID, status); err != nil {
		return err
	}
	section, _ := d.index.Section(sectionID)
	sectionID = section.ID

	cleared := 0
	if status == questionnaire.StatusNotApplicable {
		form, _ := d.form.Snapshot()
		unset := make(map[string]questionnaire.Value)
		for _, q := range d.index.Questions() {
			if !section.Contains(q.Order) {
				continue
			}
			if _, held := form[q.ID]; held {
				unset[q.ID] = questionnaire.Absent
			}
		}
		if len(unset) > 0 {
			d.form.OnPatch(unset, nil)
			d.publish(ctx, events.TypePatchReady, map[string]interface{}{
				"values":         plain(unset),
				"auto_completed": []string{},
				"batch":          0,
			})
			cleared = len(unset)
		}
	}

	change := map[string]questionnaire.SectionStatus{sectionID: status}
	d.form.OnSectionStatusChange(change)
	d.publish(ctx, events.TypeSectionStatus, map[string]interface{}{
		"section_id": sectionID,
		"status":     string(status),
		"cleared":    cleared,
	})

	d.logger.Info(logModule, "Section status changed", map[string]interface{}{
		"session_id": d.sessionID,
		"section_id": sectionID,
		"status":     string(status),
		"cleared":    cleared,
	})

	if cleared > 0 {
		d.post(SenderSystem, fmt.Sprintf(msgSectionCleared, section.Title, cleared), TagNone)
	}
	return nil
}

// Close stops timers and background runs. Nothing is posted afterwards; extraction
// calls already in flight may finish silently.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.typing = false
	d.suggestion = nil
	close(d.closedCh)
	d.mu.Unlock()

	d.bgCancel()
	d.scheduler.Close()
}

func (d *Dispatcher) followUp(s Suggestion) {
	form, statuses := d.form.Snapshot()

	switch s.Kind {
	case SuggestSection:
		section, ok := d.index.Section(s.ID)
		if !ok {
			d.reportProgress()
			return
		}
		progress := d.index.PendingQuestions(section.ID, form, statuses)
		if len(progress.Pending) == 0 {
			d.post(SenderSystem, fmt.Sprintf(msgSectionDone, section.Title), TagNone)
			return
		}
		d.post(SenderSystem, pendingList(section.Title, progress.Pending), TagNone)
		first := progress.Pending[0]
		d.scheduler.After(d.delays.FollowUp, func() { d.ask(first) })

	case SuggestQuestion:
		q, ok := d.index.Question(s.ID)
		if !ok {
			return
		}
		if questionnaire.IsCompleted(form.Get(q.ID)) {
			d.post(SenderSystem, fmt.Sprintf(msgQuestionDone, q.Description), TagNone)
			return
		}
		d.ask(q)
	}
}

func (d *Dispatcher) ask(q questionnaire.Question) {
	if d.isClosed() {
		return
	}
	text := q.Description
	if d.phraser != nil {
		phrased, err := d.phraser.Phrase(d.bgCtx, q)
		if err != nil {
			d.logger.Warn(logModule, "Question phrasing failed, using description", map[string]interface{}{
				"session_id":  d.sessionID,
				"question_id": q.ID,
				"error":       err.Error(),
			})
		} else {
			text = phrased
		}
	}
	d.setSuggestion(&Suggestion{Kind: SuggestQuestion, ID: q.ID})
	d.post(SenderSystem, fmt.Sprintf(msgAskQuestion, text), TagQuestionPrompt)
}

func (d *Dispatcher) reportProgress() {
	form, statuses := d.form.Snapshot()

	var applicable []questionnaire.SectionCompletion
	for _, row := range d.index.CompletionSummary(form, statuses) {
		if d.index.StatusOf(row.Section.ID, statuses) == questionnaire.StatusApplicable {
			applicable = append(applicable, row)
		}
	}
	if len(applicable) == 0 {
		d.post(SenderSystem, msgNothingToComplete, TagProgressReport)
		return
	}

	completed, total := 0, 0
	for _, row := range applicable {
		completed += row.Completed
		total += row.Total
	}
	overall := questionnaire.Percent(completed, total)
	d.post(SenderSystem, fmt.Sprintf(msgProgressOverall, overall, completed, total), TagProgressReport)

	var next *questionnaire.SectionCompletion
	for i := range applicable {
		if applicable[i].Completed < applicable[i].Total {
			next = &applicable[i]
			break
		}
	}

	d.scheduler.After(d.delays.Suggestion, func() {
		if d.isClosed() {
			return
		}
		if next == nil {
			d.post(SenderSystem, msgAllComplete, TagNone)
			return
		}
		d.setSuggestion(&Suggestion{Kind: SuggestSection, ID: next.Section.ID})
		d.post(SenderSystem, fmt.Sprintf(msgSuggestSection, next.Section.Title, next.Percent), TagSectionSuggestion)
	})
}

func (d *Dispatcher) help(s *Suggestion) {
	if s == nil {
		d.post(SenderSystem, msgHelpGeneric, TagHelp)
		return
	}
	// Keep the offer open so the user can still confirm after reading the help.
	d.setSuggestion(s)

	if s.Kind != SuggestQuestion {
		d.post(SenderSystem, msgHelpGeneric, TagHelp)
		return
	}
	q, ok := d.index.Question(s.ID)
	if !ok {
		d.post(SenderSystem, msgHelpGeneric, TagHelp)
		return
	}
	if strings.TrimSpace(q.Help) == "" {
		d.post(SenderSystem, fmt.Sprintf(msgHelpNoDetail, q.Description), TagHelp)
		return
	}
	d.post(SenderSystem, fmt.Sprintf(msgHelpQuestion, q.Description, q.Help), TagHelp)
}

func (d *Dispatcher) narrate(ctx context.Context, text string) error {
	select {
	case d.runSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closedCh:
		return ErrDispatcherClosed
	}

	form, statuses := d.form.Snapshot()
	l := &runListener{d: d}
	res := d.orchestrator.Run(ctx, extraction.Input{
		Narration:  text,
		Form:       form,
		Statuses:   statuses,
		Background: d.bgCtx,
	}, l)

	if res.Pending() {
		go func() {
			<-res.Done()
			<-d.runSlot
		}()
	} else {
		<-d.runSlot
	}

	if res.Batches == 0 && !res.FromCache {
		d.post(SenderSystem, SummaryText(nil), TagExtractionSummary)
	}
	return nil
}

// runListener forwards one orchestration run to the form and the chat.
type runListener struct {
	d *Dispatcher
}

// OnPatch runs for the foreground batch (or the cache hit) before any background batch
// starts, so the foreground summary always precedes background progress in the chat.
func (l *runListener) OnPatch(p extraction.Patch) {
	d := l.d
	if d.isClosed() {
		return
	}
	if len(p.Values) > 0 {
		d.form.OnPatch(p.Values, p.AutoCompleted)
		d.publish(d.bgCtx, events.TypePatchReady, map[string]interface{}{
			"values":         plain(p.Values),
			"auto_completed": p.AutoCompleted,
			"batch":          p.Batch,
		})
	}
	if p.Batch > 1 {
		return
	}

	if p.Batches <= 1 {
		if p.Failed {
			d.post(SenderSystem, msgExtractionFailed, TagError)
			return
		}
		d.post(SenderSystem, SummaryText(describe(d.index, p.AutoCompleted)), TagExtractionSummary)
		return
	}

	// Only the interim message is superseded when the background batches finish.
	// A failed first batch has no summary of its own; the final message reports it.
	if p.Failed {
		d.post(SenderSystem, msgExtractionFailed, TagExtractionRunning)
		return
	}
	d.post(SenderSystem, SummaryText(describe(d.index, p.AutoCompleted)), TagExtractionSummary)
	d.post(SenderSystem, fmt.Sprintf(msgExtractionProgress, 1, p.Batches, questionnaire.Percent(1, p.Batches)), TagExtractionRunning)
}

func (l *runListener) OnProgress(p extraction.Progress) {
	d := l.d
	if d.isClosed() {
		return
	}
	d.replace(TagExtractionRunning,
		newMessage(SenderSystem, fmt.Sprintf(msgExtractionProgress, p.BatchesDone, p.BatchesTotal, p.Percent), TagExtractionRunning))
	d.publish(d.bgCtx, events.TypeProgressUpdated, map[string]interface{}{
		"batches_done":  p.BatchesDone,
		"batches_total": p.BatchesTotal,
		"fields":        p.Fields,
		"percent":       p.Percent,
	})
}

func (l *runListener) OnComplete(o extraction.Outcome) {
	d := l.d
	if d.isClosed() {
		return
	}
	final := newMessage(SenderSystem, SummaryText(describe(d.index, o.AutoCompleted)), TagExtractionSummary)
	if o.FailedBatches == o.Batches {
		final = newMessage(SenderSystem, msgExtractionFailed, TagError)
	}
	d.replace(TagExtractionRunning, final)
	d.publish(d.bgCtx, events.TypeExtractionCompleted, map[string]interface{}{
		"batches":        o.Batches,
		"failed_batches": o.FailedBatches,
		"auto_completed": o.AutoCompleted,
	})
	d.logger.Info(logModule, "Background extraction finished", map[string]interface{}{
		"session_id":     d.sessionID,
		"batches":        o.Batches,
		"failed_batches": o.FailedBatches,
		"fields":         len(o.AutoCompleted),
	})
}

func (d *Dispatcher) post(sender Sender, text string, tag Tag) {
	if d.isClosed() {
		return
	}
	m := newMessage(sender, text, tag)
	d.log.Append(m)
	d.publish(d.bgCtx, events.TypeMessageAppended, map[string]interface{}{"message": m})
}

func (d *Dispatcher) replace(tag Tag, m Message) {
	d.log.ReplaceByTag(tag, m)
	d.publish(d.bgCtx, events.TypeMessagesReplaced, map[string]interface{}{
		"tag":     string(tag),
		"message": m,
	})
}

func (d *Dispatcher) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if err := d.sink.Publish(context.WithoutCancel(ctx), events.New(eventType, d.sessionID, data)); err != nil {
		d.logger.Warn(logModule, "Failed to publish event", map[string]interface{}{
			"session_id": d.sessionID,
			"type":       eventType,
			"error":      err.Error(),
		})
	}
}

func (d *Dispatcher) setTyping(on bool) {
	d.mu.Lock()
	if d.closed || d.typing == on {
		d.mu.Unlock()
		return
	}
	d.typing = on
	d.mu.Unlock()
	d.publish(d.bgCtx, events.TypeTypingChanged, map[string]interface{}{"typing": on})
}

func (d *Dispatcher) holdTyping() {
	d.mu.Lock()
	d.turns++
	d.mu.Unlock()
	d.setTyping(true)
}

// releaseTyping drops the hold of one turn once the indicator has been visible for
// the minimum duration. The indicator clears when no other turn holds it.
func (d *Dispatcher) releaseTyping(start time.Time) {
	remaining := d.delays.Typing - time.Since(start)
	if remaining <= 0 || !d.scheduler.After(remaining, d.dropTyping) {
		d.dropTyping()
	}
}

func (d *Dispatcher) dropTyping() {
	d.mu.Lock()
	d.turns--
	held := d.turns > 0
	d.mu.Unlock()
	if !held {
		d.setTyping(false)
	}
}

func (d *Dispatcher) takeSuggestion() *Suggestion {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.suggestion
	d.suggestion = nil
	return s
}

func (d *Dispatcher) setSuggestion(s *Suggestion) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.suggestion = s
	}
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func plain(values map[string]questionnaire.Value) map[string]interface{} {
	return questionnaire.FormState(values).Plain()
}
