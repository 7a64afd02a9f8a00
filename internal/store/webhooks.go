package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"gazeta/internal/model"
)

const subscriptionColumns = `id, endpoint, auth_type, auth_token, event_types, active, created_at`

// EnsureSubscription creates a subscription for an endpoint if one does
// not exist. Idempotent, safe to run at every startup.
func (s *Store) EnsureSubscription(ctx context.Context, endpoint, authType, authToken string, eventTypes []string) (WebhookSubscription, error) {
	events, err := json.Marshal(eventTypes)
	if err != nil {
		return WebhookSubscription{}, err
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO webhook_subscriptions (id, endpoint, auth_type, auth_token, event_types)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO NOTHING
		RETURNING `+subscriptionColumns,
		uuid.New(), endpoint, authType, nullString(authToken),
		pqtype.NullRawMessage{RawMessage: events, Valid: true})

	sub, err := scanSubscription(row)
	if err == nil {
		return sub, nil
	}
	if err != sql.ErrNoRows {
		return WebhookSubscription{}, err
	}

	row = s.DB.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE endpoint = $1`, endpoint)
	return scanSubscription(row)
}

// GetSubscription fetches one subscription by id.
func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (WebhookSubscription, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE id = $1`, id)
	return scanSubscription(row)
}

// ListActiveSubscriptions returns every active subscriber endpoint.
func (s *Store) ListActiveSubscriptions(ctx context.Context) ([]WebhookSubscription, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanSubscription(row scanner) (WebhookSubscription, error) {
	var w WebhookSubscription
	err := row.Scan(&w.ID, &w.Endpoint, &w.AuthType, &w.AuthToken, &w.EventTypes, &w.Active, &w.CreatedAt)
	return w, err
}

const deliveryColumns = `id, notification_id, subscription_id, analysis_job_id, event_type, status,
	status_code, attempts, response_body, error_message, delivery_time_ms, created_at, delivered_at, next_retry_at`

// DeliveryUpdate captures the outcome of one webhook POST attempt.
type DeliveryUpdate struct {
	NotificationID string
	SubscriptionID uuid.UUID
	AnalysisJobID  string
	EventType      string
	Status         model.DeliveryStatus
	StatusCode     int
	Attempt        int
	ResponseBody   string
	ErrorMessage   string
	DeliveryTimeMs int64
	NextRetryAt    time.Time
}

// RecordDelivery upserts the single delivery row for a notification.
// Attempts only move forward and a sent row is never downgraded, so
// out-of-order redeliveries cannot clobber a terminal success.
func (s *Store) RecordDelivery(ctx context.Context, up DeliveryUpdate) (WebhookDelivery, error) {
	var deliveredAt sql.NullTime
	if up.Status == model.DeliverySent {
		deliveredAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	var nextRetry sql.NullTime
	if !up.NextRetryAt.IsZero() {
		nextRetry = sql.NullTime{Time: up.NextRetryAt.UTC(), Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO webhook_deliveries (id, notification_id, subscription_id, analysis_job_id, event_type,
			status, status_code, attempts, response_body, error_message, delivery_time_ms, delivered_at, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (notification_id) DO UPDATE
		SET status = CASE WHEN webhook_deliveries.status = 'sent' THEN webhook_deliveries.status ELSE EXCLUDED.status END,
		    status_code = EXCLUDED.status_code,
		    attempts = GREATEST(webhook_deliveries.attempts, EXCLUDED.attempts),
		    response_body = EXCLUDED.response_body,
		    error_message = EXCLUDED.error_message,
		    delivery_time_ms = EXCLUDED.delivery_time_ms,
		    delivered_at = COALESCE(webhook_deliveries.delivered_at, EXCLUDED.delivered_at),
		    next_retry_at = EXCLUDED.next_retry_at
		RETURNING `+deliveryColumns,
		uuid.New(), up.NotificationID, up.SubscriptionID, nullString(up.AnalysisJobID), up.EventType,
		up.Status, nullInt32(up.StatusCode, up.StatusCode > 0), up.Attempt,
		nullString(up.ResponseBody), nullString(up.ErrorMessage),
		nullInt64(up.DeliveryTimeMs, up.DeliveryTimeMs > 0), deliveredAt, nextRetry)
	return scanDelivery(row)
}

// GetDeliveryByNotificationID fetches the delivery row for one
// notification id.
func (s *Store) GetDeliveryByNotificationID(ctx context.Context, notificationID string) (WebhookDelivery, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE notification_id = $1`, notificationID)
	return scanDelivery(row)
}

func scanDelivery(row scanner) (WebhookDelivery, error) {
	var d WebhookDelivery
	err := row.Scan(&d.ID, &d.NotificationID, &d.SubscriptionID, &d.AnalysisJobID, &d.EventType,
		&d.Status, &d.StatusCode, &d.Attempts, &d.ResponseBody, &d.ErrorMessage,
		&d.DeliveryTimeMs, &d.CreatedAt, &d.DeliveredAt, &d.NextRetryAt)
	return d, err
}
