package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community), NATS (Pro) or AMQP.
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	// Reply answers a message received from Request.
	Reply(ctx context.Context, msg *Message, payload []byte) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel", "nats" or "amqp"
	Type string `yaml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `yaml:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `yaml:"natsUrl"`
	NATSToken         string `yaml:"natsToken"`
	NATSMaxReconnects int    `yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `yaml:"natsReconnectWait"` // seconds

	// AMQP settings
	AMQPUrl      string `yaml:"amqpUrl"`
	AMQPExchange string `yaml:"amqpExchange"`
}

// AllTenants subscribes a handler to a topic for every tenant. Messages
// keep the publishing tenant's ID. It is not a valid publish target.
const AllTenants = "*"

// MetadataReplyTo is the message metadata key holding a request's reply
// address.
const MetadataReplyTo = "reply_to"

// Standard topic names for the scoring pipeline.
const (
	TopicStatementSubmitted = "underwriter.statement.submitted"
	TopicScorecardCompleted = "underwriter.scorecard.completed"
	TopicScorecardDeclined  = "underwriter.scorecard.declined"
)

// StatementSubmitted is the payload of TopicStatementSubmitted.
type StatementSubmitted struct {
	RequestID    string        `json:"requestId"`
	Transactions []Transaction `json:"transactions"`
}

// ScorecardCompleted is the payload of TopicScorecardCompleted and TopicScorecardDeclined.
type ScorecardCompleted struct {
	RequestID      string         `json:"requestId"`
	EvaluationID   string         `json:"evaluationId"`
	Score          int            `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
	Error          string         `json:"error,omitempty"`
}
