// Package payout turns the commission rows of placed orders into pending
// seller payouts, asynchronously through asynq.
package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TypeOrderPlaced is the asynq task type emitted after an order commits.
	TypeOrderPlaced = "payout:order_placed"
	// Queue is the asynq queue payout tasks run on.
	Queue = "payouts"
)

// OrderPlacedPayload is the JSON body of a TypeOrderPlaced task.
type OrderPlacedPayload struct {
	OrderID uuid.UUID `json:"orderId"`
}

// NewOrderPlacedTask builds the task for orderID. The task id is derived from
// the order so a repeated enqueue collapses into one task.
func NewOrderPlacedTask(orderID uuid.UUID, maxRetry int) (*asynq.Task, error) {
	body, err := json.Marshal(OrderPlacedPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	if maxRetry <= 0 {
		maxRetry = 10
	}
	return asynq.NewTask(TypeOrderPlaced, body,
		asynq.Queue(Queue),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(TypeOrderPlaced+":"+orderID.String()),
		asynq.Retention(24*time.Hour),
	), nil
}

// Enqueuer schedules payout work for placed orders.
type Enqueuer interface {
	EnqueueOrderPlaced(ctx context.Context, orderID uuid.UUID) error
}

// TaskEnqueuer is the subset of *asynq.Client used for enqueueing.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqEnqueuer enqueues payout tasks on an asynq client.
type AsynqEnqueuer struct {
	Client   TaskEnqueuer
	MaxRetry int
}

// EnqueueOrderPlaced implements Enqueuer. A task already queued for the same
// order counts as success.
func (e AsynqEnqueuer) EnqueueOrderPlaced(ctx context.Context, orderID uuid.UUID) error {
	task, err := NewOrderPlacedTask(orderID, e.MaxRetry)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", TypeOrderPlaced, err)
	}
	return nil
}
