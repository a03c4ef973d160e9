package notifier

import (
	"context"
	"fmt"

	"github.com/srivardhan-kondu/EmpathyAI/internal/event"
	pkgkafka "github.com/srivardhan-kondu/EmpathyAI/pkg/kafka"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/logger"
)

// DefaultNotificationTopic is where email requests go when no topic is
// configured.
var DefaultNotificationTopic = pkgkafka.Topic("notification", "email_requested")

const eventEmailRequested = "notification.email_requested"

// KafkaNotifier hands messages to a notification service over Kafka.
// Delivery is complete once the broker acknowledges the event.
type KafkaNotifier struct {
	kafka event.Publisher
	topic string
}

// NewKafkaNotifier creates a notifier publishing to topic.
func NewKafkaNotifier(kafka event.Publisher, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultNotificationTopic
	}
	return &KafkaNotifier{kafka: kafka, topic: topic}
}

func (n *KafkaNotifier) Name() string { return DriverKafka }

func (n *KafkaNotifier) Send(ctx context.Context, msg Message) error {
	ev, err := pkgkafka.NewEvent(eventEmailRequested, msg.To, "email", event.SourceIdentityService, msg)
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev.WithCorrelationID(id)
	}
	if err := n.kafka.Publish(ctx, n.topic, ev); err != nil {
		return fmt.Errorf("publish email request: %w", err)
	}
	return nil
}
