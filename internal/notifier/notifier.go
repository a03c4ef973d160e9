package notifier

import (
	"context"
	"log/slog"
)

// Supported NOTIFIER_DRIVER values.
const (
	DriverSMTP  = "smtp"
	DriverKafka = "kafka"
	DriverLog   = "log"
)

// Message is a single email to one recipient.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notifier delivers messages to users. Send returns once the message has
// been handed to the delivery channel; it does not retry.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of delivering them. It is
// meant for development, where the reset link is read from the output.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return DriverLog }

// Send logs the message. The body carries the recovery link and is logged
// under a key the logger does not redact, so never use this driver in
// production.
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "log notifier: message not delivered",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
