package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketplace-pricing/internal/obs"
)

// ErrNoCommissions is returned when an order has no commission rows.
var ErrNoCommissions = errors.New("order has no commission rows")

// Store captures the persistence the payout handler needs.
type Store interface {
	ListCommissions(ctx context.Context, orderID uuid.UUID) ([]Commission, error)
	InsertPayout(ctx context.Context, p Payout) (bool, error)
}

// Handler processes TypeOrderPlaced tasks. Redelivery is harmless: payouts
// are unique per order and store.
type Handler struct {
	Store  Store
	Logger zerolog.Logger
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeOrderPlaced, h.ProcessTask)
}

// ProcessTask implements asynq.HandlerFunc.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	created, err := h.process(ctx, t)
	switch {
	case err == nil:
		obs.RecordPayoutJob(obs.ResultSuccess)
	case errors.Is(err, asynq.SkipRetry):
		obs.RecordPayoutJob(obs.ResultRejected)
		h.Logger.Warn().Err(err).Str("task", t.Type()).Msg("payout_task_dropped")
	default:
		obs.RecordPayoutJob(obs.ResultError)
		h.Logger.Error().Err(err).Str("task", t.Type()).Msg("payout_task_failed")
	}
	if err == nil {
		h.Logger.Info().Int("created", created).Str("task", t.Type()).Msg("payout_task_done")
	}
	return err
}

func (h *Handler) process(ctx context.Context, t *asynq.Task) (int, error) {
	var payload OrderPlacedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return 0, fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.OrderID == uuid.Nil {
		return 0, fmt.Errorf("order id missing: %w", asynq.SkipRetry)
	}
	commissions, err := h.Store.ListCommissions(ctx, payload.OrderID)
	if err != nil {
		return 0, err
	}
	if len(commissions) == 0 {
		return 0, fmt.Errorf("order %s: %w: %w", payload.OrderID, ErrNoCommissions, asynq.SkipRetry)
	}
	created := 0
	for _, c := range commissions {
		ok, err := h.Store.InsertPayout(ctx, Payout{
			ID:               uuid.New(),
			OrderID:          payload.OrderID,
			StoreID:          c.StoreID,
			GrossAmount:      c.GrossAmount,
			CommissionAmount: c.CommissionAmount,
			NetPayout:        c.NetPayout,
			Status:           StatusPending,
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}
