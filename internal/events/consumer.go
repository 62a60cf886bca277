package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/taxpilot/efile-service/internal/apperrors"
	"github.com/taxpilot/efile-service/internal/config"
	"github.com/taxpilot/efile-service/internal/service"
	"go.uber.org/zap"
)

// AckMessage is the acknowledgment payload delivered on the provider topic.
type AckMessage struct {
	SubmissionID string    `json:"submission_id"`
	AckCode      string    `json:"ack_code"`
	AckMessage   string    `json:"ack_message"`
	Timestamp    time.Time `json:"timestamp"`
}

// AckConsumer ingests provider acknowledgments from Kafka and feeds them to
// the acknowledgment processor. This is the internal, provider-triggered
// ingestion path; acknowledgments have no public HTTP endpoint.
type AckConsumer struct {
	consumerGroup sarama.ConsumerGroup
	ackService    *service.AckService
	topics        []string
	logger        *zap.Logger
}

// NewAckConsumer creates the acknowledgment consumer group.
func NewAckConsumer(cfg config.KafkaConfig, ackService *service.AckService, logger *zap.Logger) (*AckConsumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Version = sarama.V2_8_0_0

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &AckConsumer{
		consumerGroup: consumerGroup,
		ackService:    ackService,
		topics:        []string{cfg.AckTopic},
		logger:        logger,
	}, nil
}

// Start runs the consume loop until the context is cancelled.
func (c *AckConsumer) Start(ctx context.Context) error {
	handler := &ackConsumerHandler{
		ackService: c.ackService,
		logger:     c.logger,
	}

	for {
		if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
			if ctx.Err() != nil {
				return nil // Context canceled
			}
			c.logger.Error("error from consumer", zap.Error(err))
			time.Sleep(time.Second * 5) // Retry backoff
		}
	}
}

func (c *AckConsumer) Close() error {
	return c.consumerGroup.Close()
}

type ackConsumerHandler struct {
	ackService *service.AckService
	logger     *zap.Logger
}

func (h *ackConsumerHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *ackConsumerHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }
func (h *ackConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.processMessage(session.Context(), message)
		session.MarkMessage(message, "")
	}
	return nil
}

func (h *ackConsumerHandler) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	var ack AckMessage
	if err := json.Unmarshal(msg.Value, &ack); err != nil {
		h.logger.Error("failed to unmarshal acknowledgment", zap.Error(err))
		return // Skip malformed
	}
	if ack.SubmissionID == "" || ack.AckCode == "" {
		h.logger.Error("acknowledgment missing submission_id or ack_code",
			zap.ByteString("payload", msg.Value),
		)
		return
	}

	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		err := h.ackService.Process(ctx, ack.SubmissionID, ack.AckCode, ack.AckMessage, ack.Timestamp)
		if err == nil {
			break
		}
		// Redelivery conflicts and unknown submissions will not heal with
		// retries; persistence failures might.
		if errors.Is(err, apperrors.ErrTerminalState) ||
			errors.Is(err, apperrors.ErrIllegalTransition) ||
			errors.Is(err, apperrors.ErrNotFound) {
			h.logger.Warn("acknowledgment not applicable",
				zap.String("submission_id", ack.SubmissionID),
				zap.String("ack_code", ack.AckCode),
				zap.Error(err),
			)
			break
		}
		h.logger.Error("failed to process acknowledgment",
			zap.String("submission_id", ack.SubmissionID),
			zap.Error(err),
			zap.Int("retry", i+1),
		)
		if i < maxRetries-1 {
			time.Sleep(time.Duration(i+1) * time.Second) // Simple backoff
			continue
		}
		h.logger.Error("dropping acknowledgment after retries",
			zap.String("submission_id", ack.SubmissionID),
		)
	}
}
