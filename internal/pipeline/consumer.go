package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox/payloads"
)

type processResult struct {
	ack  bool
	nack bool
}

type videoProcessor interface {
	Process(ctx context.Context, videoID uuid.UUID) error
}

// JobsConsumer feeds submitted-video jobs from Pub/Sub into the orchestrator.
type JobsConsumer struct {
	processor    videoProcessor
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewJobsConsumer wires the pipeline job subscription to the orchestrator.
func NewJobsConsumer(processor videoProcessor, subscription *pubsub.Subscriber, logg *logger.Logger) (*JobsConsumer, error) {
	if processor == nil {
		return nil, errors.New("video processor is required")
	}
	if subscription == nil {
		return nil, errors.New("jobs subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &JobsConsumer{
		processor:    processor,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes pipeline jobs until the context is canceled.
func (c *JobsConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *JobsConsumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": attrs["event_type"],
	})

	if eventType := attrs["event_type"]; eventType != "" && eventType != string(enums.EventVideoSubmitted) {
		c.logg.Info(logCtx, "skipping non-job event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode job envelope", err)
		return processResult{ack: true}
	}

	var payload payloads.VideoSubmittedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to decode job payload", err)
		return processResult{ack: true}
	}
	if payload.VideoID == uuid.Nil {
		c.logg.Error(logCtx, "job payload missing video id", errors.New("empty video_id"))
		return processResult{ack: true}
	}

	logCtx = c.logg.WithVideoID(logCtx, payload.VideoID.String())
	if err := c.processor.Process(logCtx, payload.VideoID); err != nil {
		c.logg.Error(logCtx, "pipeline run failed, requeueing", err)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}
