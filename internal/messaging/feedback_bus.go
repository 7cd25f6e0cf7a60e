package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/cratedig/spindle/internal/config"
	"github.com/cratedig/spindle/pkg/models"
)

const (
	FeedbackDLQTopic = "feedback-events-dlq"
	ConsumerGroup    = "feedback-processors"
)

// FeedbackBus moves feedback events off the request path. The HTTP
// handler publishes and returns; the consumer applies events to the
// weight learner in the background.
type FeedbackBus struct {
	writer    *kafka.Writer
	reader    *kafka.Reader
	dlqWriter *kafka.Writer
	logger    *logrus.Logger
}

func NewFeedbackBus(cfg *config.KafkaConfig, logger *logrus.Logger) (*FeedbackBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	topic := cfg.Topics.Feedback

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // key by user so one user's events stay ordered
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        ConsumerGroup,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        FeedbackDLQTopic,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &FeedbackBus{
		writer:    writer,
		reader:    reader,
		dlqWriter: dlqWriter,
		logger:    logger,
	}, nil
}

// Publish writes one feedback event, keyed by user id.
func (b *FeedbackBus) Publish(ctx context.Context, ev models.FeedbackEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(ev.UserID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "timestamp", Value: []byte(ev.CreatedAt.Format(time.RFC3339))},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := b.writer.WriteMessages(writeCtx, message); err != nil {
		b.logger.WithError(err).WithField("user_id", ev.UserID).
			Error("Failed to publish feedback event")
		return fmt.Errorf("failed to write feedback event: %w", err)
	}
	return nil
}

// Consume reads feedback events until the context is canceled, retrying
// each with exponential backoff and parking poison messages in the DLQ.
func (b *FeedbackBus) Consume(ctx context.Context, handler func(models.FeedbackEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := b.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				b.logger.WithError(err).Error("Failed to read feedback event")
				continue
			}

			var ev models.FeedbackEvent
			if err := json.Unmarshal(message.Value, &ev); err != nil {
				b.logger.WithError(err).Error("Failed to unmarshal feedback event")
				continue
			}

			if err := b.processWithRetry(ctx, ev, handler); err != nil {
				b.logger.WithError(err).WithField("user_id", ev.UserID).
					Error("Failed to process feedback event after retries")
				if dlqErr := b.sendToDLQ(ctx, message, err); dlqErr != nil {
					b.logger.WithError(dlqErr).Error("Failed to send feedback event to DLQ")
				}
			}
		}
	}
}

func (b *FeedbackBus) processWithRetry(ctx context.Context, ev models.FeedbackEvent, handler func(models.FeedbackEvent) error) error {
	maxRetries := 3
	baseDelay := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := handler(ev)
		if err == nil {
			return nil
		}
		b.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": ev.UserID,
			"attempt": attempt,
		}).Warn("Feedback processing failed")

		if attempt == maxRetries {
			return fmt.Errorf("max retries exceeded: %w", err)
		}
	}
	return fmt.Errorf("unexpected retry loop exit")
}

func (b *FeedbackBus) sendToDLQ(ctx context.Context, original kafka.Message, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_payload": json.RawMessage(original.Value),
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now(),
	}
	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	return b.dlqWriter.WriteMessages(ctx, kafka.Message{
		Key:   original.Key,
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(originalError.Error())},
		},
	})
}

// Close shuts down the producer, consumer, and DLQ writer.
func (b *FeedbackBus) Close() error {
	var firstErr error
	if err := b.writer.Close(); err != nil {
		firstErr = err
	}
	if err := b.reader.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.dlqWriter.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
