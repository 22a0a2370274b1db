package events

import "time"

// Intake event types.
const (
	TypePatchReady          = "PATCH_READY"
	TypeProgressUpdated     = "PROGRESS_UPDATED"
	TypeMessageAppended     = "MESSAGE_APPENDED"
	TypeMessagesReplaced    = "MESSAGES_REPLACED"
	TypeSectionStatus       = "SECTION_STATUS_CHANGED"
	TypeTypingChanged       = "TYPING_CHANGED"
	TypeExtractionCompleted = "EXTRACTION_COMPLETED"
)

// New builds a BaseEvent scoped to an intake session.
func New(eventType, sessionID string, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["session_id"] = sessionID
	return BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

// SessionID extracts the session id stamped by New, "" if absent.
func SessionID(e Event) string {
	if e == nil || e.Payload() == nil {
		return ""
	}
	id, _ := e.Payload()["session_id"].(string)
	return id
}
