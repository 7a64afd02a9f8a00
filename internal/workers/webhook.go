package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gazeta/internal/config"
	"gazeta/internal/metrics"
	"gazeta/internal/model"
	"gazeta/internal/queue"
	"gazeta/internal/store"
	"gazeta/internal/webhook"
)

// WebhookWorker consumes webhook messages and posts notifications to
// subscriber endpoints. The delivery row per notification id is the
// audit trail; the queue enforces backoff between attempts.
type WebhookWorker struct {
	st          *store.Store
	client      *webhook.Client
	maxAttempts int
	logger      *slog.Logger
	track       tracker
}

// NewWebhookWorker builds the webhook stage consumer.
func NewWebhookWorker(st *store.Store, client *webhook.Client, cfg config.WebhookConfig, logger *slog.Logger) *WebhookWorker {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &WebhookWorker{st: st, client: client, maxAttempts: maxAttempts, logger: logger, track: tracker{st: st}}
}

func (w *WebhookWorker) Queue() string { return model.QueueWebhook }

func (w *WebhookWorker) Handle(ctx context.Context, d *queue.Delivery) error {
	var msg model.WebhookMessage
	if err := d.Decode(&msg); err != nil {
		w.track.critical(ctx, "webhook", "decode_message", "WEBHOOK_BAD_PAYLOAD: "+err.Error(), nil)
		return d.Ack(ctx)
	}

	subID, err := uuid.Parse(msg.SubscriptionID)
	if err != nil {
		w.track.critical(ctx, "webhook", "validate_message", "WEBHOOK_BAD_SUBSCRIPTION: "+err.Error(), nil)
		return d.Ack(ctx)
	}

	// A redelivered message whose notification already went out is a
	// no-op; the delivery row is the source of truth.
	if del, err := w.st.GetDeliveryByNotificationID(ctx, msg.MessageID); err == nil && del.Status == model.DeliverySent {
		w.logger.Info("webhook_already_delivered",
			"notification_id", msg.MessageID, "subscription_id", msg.SubscriptionID)
		return d.Ack(ctx)
	}

	sub, err := w.st.GetSubscription(ctx, subID)
	if errors.Is(err, sql.ErrNoRows) {
		w.logger.Warn("webhook_subscription_missing", "subscription_id", msg.SubscriptionID)
		return d.Ack(ctx)
	}
	if err != nil {
		return err
	}
	if !sub.Active {
		return d.Ack(ctx)
	}

	attempt := d.Attempt()
	outcome := w.client.Deliver(ctx, webhook.Target{
		SubscriptionID: sub.ID.String(),
		Endpoint:       sub.Endpoint,
		AuthType:       sub.AuthType,
		AuthToken:      sub.AuthToken.String,
	}, msg.Notification, attempt)

	status := model.DeliveryFailed
	var nextRetry time.Time
	switch {
	case outcome.Success:
		status = model.DeliverySent
	case outcome.Retriable && attempt < w.maxAttempts:
		status = model.DeliveryRetry
		shift := attempt - 1
		if shift < 0 {
			shift = 0
		}
		nextRetry = time.Now().UTC().Add(10 * time.Second << shift)
	}

	var head struct {
		AnalysisJobID string `json:"analysisJobId"`
		EventType     string `json:"eventType"`
	}
	_ = json.Unmarshal(msg.Notification, &head)
	if head.EventType == "" {
		head.EventType = webhook.EventConcursoFindings
	}

	if _, err := w.st.RecordDelivery(ctx, store.DeliveryUpdate{
		NotificationID: msg.MessageID,
		SubscriptionID: sub.ID,
		AnalysisJobID:  head.AnalysisJobID,
		EventType:      head.EventType,
		Status:         status,
		StatusCode:     outcome.StatusCode,
		Attempt:        attempt,
		ResponseBody:   outcome.ResponseBody,
		ErrorMessage:   outcome.ErrorMessage,
		DeliveryTimeMs: outcome.DurationMs,
		NextRetryAt:    nextRetry,
	}); err != nil {
		w.logger.Warn("delivery_record_failed", "notification_id", msg.MessageID, "error", err.Error())
	}
	metrics.RecordWebhook(string(status))

	switch status {
	case model.DeliverySent:
		w.track.step(ctx, msg.Metadata.CrawlJobID, msg.Metadata.TerritoryID, "", "webhook_sent", "success", map[string]any{
			"notificationId": msg.MessageID,
			"statusCode":     outcome.StatusCode,
			"attempt":        attempt,
		})
		w.logger.Info("webhook_sent",
			"notification_id", msg.MessageID, "subscription_id", msg.SubscriptionID,
			"status_code", outcome.StatusCode, "attempt", attempt)
		return d.Ack(ctx)
	case model.DeliveryRetry:
		_, err := d.Retry(ctx, outcome.ErrorMessage)
		return err
	default:
		w.track.warn(ctx, "webhook", "deliver", "WEBHOOK_DELIVERY_FAILED: "+outcome.ErrorMessage, map[string]any{
			"notificationId": msg.MessageID,
			"statusCode":     outcome.StatusCode,
		})
		w.logger.Warn("webhook_failed",
			"notification_id", msg.MessageID, "subscription_id", msg.SubscriptionID,
			"status_code", outcome.StatusCode, "error", outcome.ErrorMessage)
		return d.Ack(ctx)
	}
}
