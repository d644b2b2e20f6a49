package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// EventHandler consumes decoded events. Returning an error nacks the message.
type EventHandler interface {
	Name() string
	Handles(eventType EventType) bool
	HandleEvent(ctx context.Context, event *NotificationEvent) error
}

type SubscriberConfig struct {
	KafkaBrokers  []string
	ConsumerGroup string
	Logger        *slog.Logger
}

// NewKafkaSubscriber creates a consumer-group subscriber for the notification topic
func NewKafkaSubscriber(config SubscriberConfig) (message.Subscriber, error) {
	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               config.KafkaBrokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
		ConsumerGroup:         config.ConsumerGroup,
	}, watermill.NewSlogLogger(config.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
	}
	return subscriber, nil
}

// Consumer routes messages from one topic to the registered handlers
type Consumer struct {
	router *message.Router
	logger *slog.Logger
}

func NewConsumer(subscriber message.Subscriber, topic string, logger *slog.Logger, handlers ...EventHandler) (*Consumer, error) {
	wmLogger := watermill.NewSlogLogger(logger)
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event router: %w", err)
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			Logger:          wmLogger,
		}.Middleware,
	)

	for _, h := range handlers {
		handler := h
		router.AddNoPublisherHandler(handler.Name(), topic, subscriber, func(msg *message.Message) error {
			var event NotificationEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				// poison message, retrying will not help
				logger.Error("Dropping undecodable event", "message_uuid", msg.UUID, "error", err)
				return nil
			}
			if !handler.Handles(event.Type) {
				return nil
			}
			return handler.HandleEvent(msg.Context(), &event)
		})
	}

	return &Consumer{router: router, logger: logger}, nil
}

// Run blocks until ctx is cancelled or the router stops
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Starting event consumer")
	return c.router.Run(ctx)
}

// Running is closed once all handlers are subscribed
func (c *Consumer) Running() chan struct{} {
	return c.router.Running()
}

func (c *Consumer) Close() error {
	return c.router.Close()
}
