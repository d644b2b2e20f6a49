package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/form-exam-service/internal/events"
	"github.com/ThreeDotsLabs/watermill/message"
)

// EventConfig holds configuration for event publishing
type EventConfig struct {
	Enabled           bool
	Publisher         string // kafka, gochannel or mock
	KafkaBrokers      string
	NotificationTopic string
	ConsumerGroup     string
}

// GetKafkaBrokers returns Kafka brokers as a slice
func (c *EventConfig) GetKafkaBrokers() []string {
	return parseList(c.KafkaBrokers)
}

// EventBus is the publisher the services use plus, when available, the
// subscriber side that in-process consumers attach to.
type EventBus struct {
	Publisher  events.EventPublisher
	Subscriber message.Subscriber
}

// CreateEventBus builds the publisher and subscriber selected by configuration
func (c *EventConfig) CreateEventBus(logger *slog.Logger) (*EventBus, error) {
	if !c.Enabled {
		logger.Info("Event publishing disabled, using mock publisher")
		return &EventBus{Publisher: events.NewMockEventPublisher(logger)}, nil
	}

	switch strings.ToLower(c.Publisher) {
	case "kafka":
		logger.Info("Creating Kafka event publisher",
			"brokers", c.KafkaBrokers,
			"topic", c.NotificationTopic)

		publisher, err := events.NewKafkaEventPublisher(events.PublisherConfig{
			KafkaBrokers: c.GetKafkaBrokers(),
			TopicName:    c.NotificationTopic,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		subscriber, err := events.NewKafkaSubscriber(events.SubscriberConfig{
			KafkaBrokers:  c.GetKafkaBrokers(),
			ConsumerGroup: c.ConsumerGroup,
			Logger:        logger,
		})
		if err != nil {
			_ = publisher.Close()
			return nil, err
		}
		return &EventBus{Publisher: publisher, Subscriber: subscriber}, nil
	case "gochannel":
		logger.Info("Using in-process event bus", "topic", c.NotificationTopic)
		channel := events.NewGoChannel(logger)
		return &EventBus{
			Publisher:  events.NewWatermillEventPublisher(channel, c.NotificationTopic, logger),
			Subscriber: channel,
		}, nil
	case "mock":
		logger.Info("Using mock event publisher")
		return &EventBus{Publisher: events.NewMockEventPublisher(logger)}, nil
	default:
		return nil, fmt.Errorf("unknown event publisher %q", c.Publisher)
	}
}

// Close releases both sides of the bus
func (b *EventBus) Close() error {
	err := b.Publisher.Close()
	if b.Subscriber != nil {
		if subErr := b.Subscriber.Close(); subErr != nil && err == nil {
			err = subErr
		}
	}
	return err
}
