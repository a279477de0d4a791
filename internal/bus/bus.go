// Package bus provides event bus implementations: Go channels for a single
// process, NATS and AMQP for distributed workers.
package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/underwriter/internal/domain"
)

var (
	ErrTenantRequired = errors.New("tenantID is required")
	ErrClosed         = errors.New("bus is closed")
	ErrNoReplyAddress = errors.New("message has no reply address")
	ErrWildcardTenant = errors.New("cannot publish to all tenants")
)

const defaultRequestTimeout = 30 * time.Second

// New creates a new event bus based on configuration.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "amqp":
		return NewAMQPBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func newMessage(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}

// subject is the tenant-scoped routing name shared by NATS and AMQP.
// For AllTenants the tenant token is "*", which both brokers read as a
// single-token wildcard.
func subject(tenantID, topic string) string {
	return "underwriter." + tenantID + "." + topic
}

// publishTarget rejects tenant IDs that cannot receive a publish.
func publishTarget(tenantID string) error {
	switch tenantID {
	case "":
		return ErrTenantRequired
	case domain.AllTenants:
		return ErrWildcardTenant
	}
	return nil
}

// requestTimeout honors the context deadline, if any.
func requestTimeout(deadline time.Time, ok bool) time.Duration {
	if ok {
		return time.Until(deadline)
	}
	return defaultRequestTimeout
}

func replyAddress(msg *domain.Message) (string, error) {
	if msg == nil || msg.Metadata[domain.MetadataReplyTo] == "" {
		return "", ErrNoReplyAddress
	}
	return msg.Metadata[domain.MetadataReplyTo], nil
}
