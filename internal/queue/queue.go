// Package queue is the durable queue fabric for the four pipeline
// stages. Messages live in the queue_messages table; delivery is
// at-least-once, so every consumer must be safe under redelivery.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gazeta/internal/metrics"
	"gazeta/internal/store"
)

const (
	defaultRetryBase = 10 * time.Second
	maxRetryDelay    = 10 * time.Minute
)

// Fabric provides named queues over the store.
type Fabric struct {
	st         *store.Store
	maxRetries int
	batchSize  int
	retryBase  time.Duration
	logger     *slog.Logger
}

// New builds a Fabric. maxRetries bounds deliveries per message and
// batchSize bounds the multi-VALUES insert used by SendBatch.
func New(st *store.Store, maxRetries, batchSize int, logger *slog.Logger) *Fabric {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	return &Fabric{
		st:         st,
		maxRetries: maxRetries,
		batchSize:  batchSize,
		retryBase:  defaultRetryBase,
		logger:     logger,
	}
}

// Send enqueues one message.
func (f *Fabric) Send(ctx context.Context, queue string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", queue, err)
	}
	if _, err := f.st.EnqueueMessage(ctx, queue, raw, f.maxRetries); err != nil {
		return fmt.Errorf("enqueue %s message: %w", queue, err)
	}
	metrics.RecordEnqueue(queue, 1)
	return nil
}

// SendBatch enqueues payloads in bounded batches. When a whole batch
// insert fails it falls back to individual sends so one bad payload
// does not sink its neighbours. Returns enqueued and failed counts.
func (f *Fabric) SendBatch(ctx context.Context, queue string, payloads []any) (int, int) {
	var enqueued, failed int

	for start := 0; start < len(payloads); start += f.batchSize {
		end := start + f.batchSize
		if end > len(payloads) {
			end = len(payloads)
		}
		chunk := payloads[start:end]

		raws := make([][]byte, 0, len(chunk))
		encodable := make([]any, 0, len(chunk))
		for _, p := range chunk {
			raw, err := json.Marshal(p)
			if err != nil {
				failed++
				continue
			}
			raws = append(raws, raw)
			encodable = append(encodable, p)
		}
		if len(raws) == 0 {
			continue
		}

		if err := f.st.EnqueueBatch(ctx, queue, raws, f.maxRetries); err == nil {
			enqueued += len(raws)
			continue
		} else if f.logger != nil {
			f.logger.Warn("queue_batch_send_failed", "queue", queue, "size", len(raws), "error", err.Error())
		}

		for _, p := range encodable {
			if err := f.Send(ctx, queue, p); err != nil {
				failed++
			} else {
				enqueued++
			}
		}
	}

	metrics.RecordEnqueue(queue, enqueued)
	return enqueued, failed
}

// Receive claims up to n ready messages from a queue.
func (f *Fabric) Receive(ctx context.Context, queue string, n int) ([]*Delivery, error) {
	if n <= 0 {
		n = 1
	}
	msgs, err := f.st.ClaimMessages(ctx, queue, n)
	if err != nil {
		return nil, err
	}
	out := make([]*Delivery, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &Delivery{msg: m, fabric: f})
	}
	return out, nil
}

// Reap requeues claims that outlived the visibility timeout.
func (f *Fabric) Reap(ctx context.Context, visibility time.Duration) (int64, error) {
	return f.st.ReapExpiredClaims(ctx, visibility)
}

// Depths reports per-status counts for one queue.
func (f *Fabric) Depths(ctx context.Context, queue string) (map[string]int, error) {
	return f.st.QueueDepths(ctx, queue)
}

// Delivery is one claimed message. Consumers settle it exactly once
// with Ack or Retry; the stage runner acks or retries unsettled
// deliveries based on the handler's returned error.
type Delivery struct {
	msg     store.QueueMessage
	fabric  *Fabric
	settled bool
}

// ID returns the message id.
func (d *Delivery) ID() uuid.UUID { return d.msg.ID }

// Queue returns the queue name the message was claimed from.
func (d *Delivery) Queue() string { return d.msg.Queue }

// Attempt returns the 1-based delivery attempt number.
func (d *Delivery) Attempt() int { return d.msg.Attempts }

// Settled reports whether Ack or Retry has already been called.
func (d *Delivery) Settled() bool { return d.settled }

// Decode unmarshals the payload into dest.
func (d *Delivery) Decode(dest any) error {
	return json.Unmarshal(d.msg.Payload, dest)
}

// Ack marks the message consumed.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.settled {
		return nil
	}
	d.settled = true
	metrics.RecordAck(d.msg.Queue)
	return d.fabric.st.AckMessage(ctx, d.msg.ID)
}

// Retry returns the message to the queue with exponential backoff, or
// dead-letters it once attempts are exhausted. Reports dead-lettering.
func (d *Delivery) Retry(ctx context.Context, reason string) (bool, error) {
	if d.settled {
		return false, nil
	}
	d.settled = true

	attempt := d.msg.Attempts
	if attempt < 1 {
		attempt = 1
	}
	delay := d.fabric.retryBase << (attempt - 1)
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}

	dead, err := d.fabric.st.NackMessage(ctx, d.msg.ID, delay, reason)
	if err != nil {
		return false, err
	}
	if dead {
		metrics.RecordDeadLetter(d.msg.Queue)
		if d.fabric.logger != nil {
			d.fabric.logger.Error("queue_message_dead_lettered",
				"queue", d.msg.Queue, "message_id", d.msg.ID.String(),
				"attempts", d.msg.Attempts, "reason", reason)
		}
	} else {
		metrics.RecordRetry(d.msg.Queue)
	}
	return dead, nil
}
