package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/clipblaze/clipblaze-backend/internal/quota"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox"
	"github.com/clipblaze/clipblaze-backend/pkg/outbox/payloads"
)

// BillingConsumer applies plan-change events to subscriptions.
type BillingConsumer struct {
	quota        quota.Service
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewBillingConsumer wires the billing subscription to the quota service.
func NewBillingConsumer(quotaSvc quota.Service, subscription *pubsub.Subscriber, logg *logger.Logger) (*BillingConsumer, error) {
	if quotaSvc == nil {
		return nil, errors.New("quota service is required")
	}
	if subscription == nil {
		return nil, errors.New("billing subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &BillingConsumer{
		quota:        quotaSvc,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes plan-change events until the context is canceled.
func (c *BillingConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *BillingConsumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": attrs["event_type"],
	})

	if eventType := attrs["event_type"]; eventType != "" && eventType != string(enums.EventPlanSyncRequested) {
		c.logg.Info(logCtx, "skipping non-billing event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode billing envelope", err)
		return processResult{ack: true}
	}

	var payload payloads.PlanSyncRequestedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to decode billing payload", err)
		return processResult{ack: true}
	}
	if payload.UserID == uuid.Nil {
		c.logg.Error(logCtx, "billing payload missing user id", errors.New("empty user_id"))
		return processResult{ack: true}
	}

	logCtx = c.logg.WithUserID(logCtx, payload.UserID.String())
	if err := c.quota.ApplyPlanChange(logCtx, payload); err != nil {
		if typed := pkgerrors.As(err); typed != nil && !pkgerrors.MetadataFor(typed.Code()).Retryable {
			c.logg.Error(logCtx, "plan change rejected, dropping", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "plan change failed, requeueing", err)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "plan change applied")
	return processResult{ack: true}
}
