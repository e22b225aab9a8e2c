package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Message is one rendered customer notification handed to the delivery
// collaborator.
type Message struct {
	CaseID      string    `json:"case_id"`
	CustomerID  string    `json:"customer_id"`
	To          string    `json:"to"`
	Template    Template  `json:"template_type"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Params      Params    `json:"params"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// Sender delivers messages. Delivery mechanics live behind it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log. Used when no broker is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification requested",
		"case_id", msg.CaseID,
		"customer_id", msg.CustomerID,
		"template", msg.Template,
		"subject", msg.Subject,
	)
	return nil
}

// Publisher writes keyed records to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// KafkaSender publishes messages as JSON keyed by customer so one customer's
// messages stay ordered.
type KafkaSender struct {
	publisher Publisher
	topic     string
}

func NewKafkaSender(publisher Publisher, topic string) *KafkaSender {
	return &KafkaSender{publisher: publisher, topic: topic}
}

func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return s.publisher.Publish(ctx, s.topic, msg.CustomerID, value)
}
