package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser   Sender = "user"
	SenderSystem Sender = "system"
)

// Tag marks system messages the dispatcher may need to find again.
type Tag string

const (
	TagNone              Tag = ""
	TagSectionSuggestion Tag = "section_suggestion"
	TagQuestionPrompt    Tag = "question_prompt"
	TagExtractionRunning Tag = "extraction_progress"
	TagExtractionSummary Tag = "extraction_summary"
	TagProgressReport    Tag = "progress_report"
	TagHelp              Tag = "help"
	TagError             Tag = "error"
)

// Message is one entry of the chat history. Messages are never mutated once appended.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Tag       Tag       `json:"tag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newMessage(sender Sender, text string, tag Tag) Message {
	return Message{
		ID:        uuid.New(),
		Sender:    sender,
		Text:      text,
		Tag:       tag,
		CreatedAt: time.Now(),
	}
}

// Log is the append-only chat history of one session.
type Log struct {
	mu       sync.RWMutex
	messages []Message
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, m)
}

// ReplaceByTag drops every message carrying tag and appends m, rebuilding the history
// instead of editing entries in place. It reports how many messages were dropped.
func (l *Log) ReplaceByTag(tag Tag, m Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := make([]Message, 0, len(l.messages)+1)
	dropped := 0
	for _, existing := range l.messages {
		if tag != TagNone && existing.Tag == tag {
			dropped++
			continue
		}
		kept = append(kept, existing)
	}
	l.messages = append(kept, m)
	return dropped
}

// Messages returns a snapshot of the history in append order.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Last returns the most recent message, false when the history is empty.
func (l *Log) Last() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
