package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/marketplace-pricing/internal/db"
	"github.com/noah-isme/marketplace-pricing/internal/money"
)

// StatusPending is the state of a freshly created payout.
const StatusPending = "pending"

// Commission is one store's commission row on an order.
type Commission struct {
	StoreID          uuid.UUID
	GrossAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	NetPayout        decimal.Decimal
}

// Payout is a seller payout awaiting settlement.
type Payout struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	StoreID          uuid.UUID
	GrossAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	NetPayout        decimal.Decimal
	Status           string
	CreatedAt        time.Time
}

// PostgresStore reads order commissions and writes payouts.
type PostgresStore struct {
	DB db.DBTX
}

// ListCommissions returns the commission rows of orderID ordered by store.
func (s PostgresStore) ListCommissions(ctx context.Context, orderID uuid.UUID) ([]Commission, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT store_id, gross_amount::text, commission_amount::text, net_payout::text
		FROM order_commissions
		WHERE order_id = $1
		ORDER BY store_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order commissions: %w", err)
	}
	defer rows.Close()
	var out []Commission
	for rows.Next() {
		var (
			c                   Commission
			gross, comm, payout string
		)
		if err := rows.Scan(&c.StoreID, &gross, &comm, &payout); err != nil {
			return nil, err
		}
		if c.GrossAmount, err = money.Parse(gross); err != nil {
			return nil, err
		}
		if c.CommissionAmount, err = money.Parse(comm); err != nil {
			return nil, err
		}
		if c.NetPayout, err = money.Parse(payout); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertPayout creates p unless a payout for the same order and store already
// exists. It reports whether a row was written.
func (s PostgresStore) InsertPayout(ctx context.Context, p Payout) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		INSERT INTO seller_payouts (id, order_id, store_id, gross_amount, commission_amount, net_payout, status)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7)
		ON CONFLICT (order_id, store_id) DO NOTHING`,
		p.ID, p.OrderID, p.StoreID, p.GrossAmount.String(), p.CommissionAmount.String(), p.NetPayout.String(), p.Status)
	if err != nil {
		return false, fmt.Errorf("insert seller payout: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
