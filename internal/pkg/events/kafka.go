package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/gofiber/fiber/v2/log"
	kafka "github.com/segmentio/kafka-go"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

func (r RetryConfig) withDefaults() RetryConfig {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 5
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = 100 * time.Millisecond
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 10 * time.Second
	}
	return r
}

// Backoff is the delay before retry number attempt+1.
func (r RetryConfig) Backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * r.BaseDelay
	if delay > r.MaxDelay || delay <= 0 {
		delay = r.MaxDelay
	}
	if r.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}
	return delay
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher keeps one writer per topic and retries with exponential backoff.
type KafkaPublisher struct {
	writers map[string]messageWriter
	retry   RetryConfig
}

func NewKafkaPublisher(brokers []string, topics []string, retry RetryConfig) *KafkaPublisher {
	writers := make(map[string]messageWriter, len(topics))
	for _, t := range topics {
		writers[t] = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  t,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		}
	}
	return &KafkaPublisher{writers: writers, retry: retry.withDefaults()}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, v any) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer configured for topic %s", topic)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{Value: data}
	if keyed, ok := v.(interface{ PartitionKey() string }); ok {
		msg.Key = []byte(keyed.PartitionKey())
	}
	return p.publishWithRetry(ctx, writer, msg, topic)
}

func (p *KafkaPublisher) publishWithRetry(ctx context.Context, writer messageWriter, msg kafka.Message, topic string) error {
	var lastErr error
	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		err := writer.WriteMessages(ctx, msg)
		if err == nil {
			if attempt > 0 {
				log.Infof("[Events] published to %s after %d attempts", topic, attempt+1)
			}
			return nil
		}
		lastErr = err
		if attempt == p.retry.MaxAttempts-1 {
			break
		}

		delay := p.retry.Backoff(attempt)
		log.Warnf("[Events] retry %d/%d for %s after %v: %v", attempt+1, p.retry.MaxAttempts, topic, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
	return fmt.Errorf("publish to %s failed after %d attempts: %w", topic, p.retry.MaxAttempts, lastErr)
}

func (p *KafkaPublisher) Close() error {
	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
