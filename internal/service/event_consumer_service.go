package service

import (
	"context"

	"agro-intake-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
)

// EventDelivery pushes a serialised event to whoever follows a session.
type EventDelivery interface {
	Send(ctx context.Context, sessionID string, data []byte)
}

type IEventConsumerService interface {
	Consume(ctx context.Context) error
}

type eventConsumerService struct {
	subscriber message.Subscriber
	topicName  string
	delivery   EventDelivery
	logger     logger.ILogger
}

func NewEventConsumerService(
	subscriber message.Subscriber,
	topicName string,
	delivery EventDelivery,
	log logger.ILogger,
) IEventConsumerService {
	return &eventConsumerService{
		subscriber: subscriber,
		topicName:  topicName,
		delivery:   delivery,
		logger:     log,
	}
}

// Consume subscribes to the event topic and forwards messages until ctx is done.
func (cs *eventConsumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *eventConsumerService) processMessage(ctx context.Context, msg *message.Message) {
	sessionID := msg.Metadata.Get(metadataSessionID)
	if sessionID == "" {
		cs.logger.Warn("EventConsumer", "Dropping event without session", map[string]interface{}{
			"message_id": msg.UUID,
			"type":       msg.Metadata.Get(metadataEventType),
		})
		msg.Ack()
		return
	}

	cs.delivery.Send(ctx, sessionID, msg.Payload)
	msg.Ack()
}
