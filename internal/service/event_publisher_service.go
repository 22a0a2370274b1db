package service

import (
	"context"
	"encoding/json"
	"fmt"

	"agro-intake-be/internal/pkg/logger"
	"agro-intake-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	metadataSessionID = "session_id"
	metadataEventType = "event_type"
)

// EventPublisherService puts intake events on the in-process bus and, when a
// mirror is configured, copies them to it.
type EventPublisherService struct {
	topic     string
	publisher message.Publisher
	mirror    events.Sink
	logger    logger.ILogger
}

var _ events.Sink = (*EventPublisherService)(nil)

func NewEventPublisherService(topic string, publisher message.Publisher, mirror events.Sink, log logger.ILogger) *EventPublisherService {
	return &EventPublisherService{
		topic:     topic,
		publisher: publisher,
		mirror:    mirror,
		logger:    log,
	}
}

func (s *EventPublisherService) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(events.BaseEvent{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.EventType(), err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataSessionID, events.SessionID(event))
	msg.Metadata.Set(metadataEventType, event.EventType())
	msg.SetContext(ctx)

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", event.EventType(), err)
	}

	if s.mirror != nil {
		if err := s.mirror.Publish(ctx, event); err != nil {
			s.logger.Warn("EventPublisher", "Failed to mirror event", map[string]interface{}{
				"type":  event.EventType(),
				"error": err.Error(),
			})
		}
	}
	return nil
}
