package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
	pkgkafka "github.com/srivardhan-kondu/EmpathyAI/pkg/kafka"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/logger"
)

// Kafka topics for identity events.
var (
	TopicUserRegistered    = pkgkafka.Topic("user", "registered")
	TopicUserPasswordReset = pkgkafka.Topic("user", "password_reset")
)

// AggregateTypeUser is the aggregate type of every identity event.
const AggregateTypeUser = "user"

// SourceIdentityService identifies events published by this service.
const SourceIdentityService = "identity-service"

// How an account was created.
const (
	SignupMethodPassword = "password"
	SignupMethodGoogle   = "google"
)

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Method   string `json:"method"`
}

// UserPasswordResetData is the payload for a user.password_reset event.
type UserPasswordResetData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Publisher is the part of pkgkafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes identity domain events. A Producer without a publisher
// drops events, which is how the service runs without Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer. kafka may be nil.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User, method string) error {
	data := UserRegisteredData{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Method:   method,
	}
	return p.publish(ctx, TopicUserRegistered, user.ID, data)
}

// PublishUserPasswordReset publishes a user.password_reset event.
func (p *Producer) PublishUserPasswordReset(ctx context.Context, userID, email string) error {
	data := UserPasswordResetData{
		UserID: userID,
		Email:  email,
	}
	return p.publish(ctx, TopicUserPasswordReset, userID, data)
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	if p == nil || p.kafka == nil {
		return nil
	}

	event, err := pkgkafka.NewEvent(topic, userID, AggregateTypeUser, SourceIdentityService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)
	return nil
}
