// Package events publishes membership status changes to the message bus.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/huntyio/membership/internal/pkg/config"
	"github.com/huntyio/membership/internal/pkg/status"
)

// TopicStatusChanged carries StatusChanged events.
const TopicStatusChanged = "membership.status_changed"

const (
	DriverNone  = "none"
	DriverAMQP  = "amqp"
	DriverKafka = "kafka"
)

// Publisher delivers JSON-encodable messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
	Close() error
}

// StatusSnapshot is a user's status triple at a point in time.
type StatusSnapshot struct {
	StatusID    string `json:"status_id"`
	SubStatusID string `json:"substatus_id"`
	StageID     string `json:"stage_id,omitempty"`
	Name        string `json:"name"`
}

func Snapshot(t status.Transition) StatusSnapshot {
	f := t.Fields()
	return StatusSnapshot{StatusID: f.StatusID, SubStatusID: f.SubStatusID, StageID: f.StageID, Name: t.String()}
}

// StatusChanged is emitted after a pipeline applied a transition.
type StatusChanged struct {
	EventID    string         `json:"event_id"`
	UserID     string         `json:"user_id"`
	Email      string         `json:"email"`
	Pipeline   string         `json:"pipeline"`
	EventType  string         `json:"event_type"`
	Previous   StatusSnapshot `json:"previous"`
	Current    StatusSnapshot `json:"current"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewStatusChanged(userID, email, pipeline, eventType string, prev, next status.Transition, occurredAt time.Time) StatusChanged {
	return StatusChanged{
		EventID:    uuid.NewString(),
		UserID:     userID,
		Email:      email,
		Pipeline:   pipeline,
		EventType:  eventType,
		Previous:   Snapshot(prev),
		Current:    Snapshot(next),
		OccurredAt: occurredAt.UTC(),
	}
}

// NopPublisher drops every message.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                               { return nil }

// NewFromSettings builds the publisher selected by EVENTS_DRIVER.
func NewFromSettings(cfg config.Events) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverNone:
		return NopPublisher{}, nil
	case DriverAMQP:
		return NewRabbitPublisher(cfg.AMQPURL, cfg.Exchange)
	case DriverKafka:
		brokers := splitList(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, fmt.Errorf("EVENTS_KAFKA_BROKERS is empty")
		}
		retry := RetryConfig{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Jitter:      true,
		}
		return NewKafkaPublisher(brokers, []string{TopicStatusChanged}, retry), nil
	default:
		return nil, fmt.Errorf("unknown EVENTS_DRIVER %q", cfg.Driver)
	}
}

// MustNewFromSettings falls back to NopPublisher when the broker is unreachable.
func MustNewFromSettings(cfg config.Events) Publisher {
	p, err := NewFromSettings(cfg)
	if err != nil {
		log.Warnf("[Events] publisher disabled: %v", err)
		return NopPublisher{}
	}
	return p
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// PartitionKey keeps one user's events ordered on a partitioned bus.
func (e StatusChanged) PartitionKey() string { return e.UserID }
