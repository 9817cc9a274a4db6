// Package checkout places orders: it re-prices a cart inside one database
// transaction, books promo usage and commissions, and hands the order to the
// payout worker.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/marketplace-pricing/internal/cart"
	"github.com/noah-isme/marketplace-pricing/internal/commission"
	"github.com/noah-isme/marketplace-pricing/internal/db"
	"github.com/noah-isme/marketplace-pricing/internal/promo"
)

// StatusPlaced is the status of a freshly placed order.
const StatusPlaced = "placed"

// Order is a placed order header.
type Order struct {
	ID          uuid.UUID
	BuyerID     uuid.UUID
	CartID      uuid.UUID
	PromoCodeID *uuid.UUID
	Currency    string
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Shipping    decimal.Decimal
	Total       decimal.Decimal
	Status      string
	CreatedAt   time.Time
}

// CartStore is the cart persistence used while placing an order.
type CartStore interface {
	GetCartForUpdate(ctx context.Context, id uuid.UUID) (cart.Cart, error)
	ListItems(ctx context.Context, cartID uuid.UUID) ([]cart.Item, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) error
	ClearPromo(ctx context.Context, cartID uuid.UUID) error
}

// PromoStore is the promo persistence used while placing an order.
type PromoStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (promo.Code, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error)
}

// OrderStore writes orders.
type OrderStore interface {
	InsertOrder(ctx context.Context, o Order) error
	InsertItems(ctx context.Context, orderID uuid.UUID, items []cart.Item) error
	InsertCommissions(ctx context.Context, orderID uuid.UUID, results []commission.Result) error
}

// Stores groups the stores bound to one transaction.
type Stores struct {
	Carts  CartStore
	Promos PromoStore
	Orders OrderStore
}

// UnitOfWork runs fn atomically: every write fn makes through Stores commits
// together or not at all.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// PostgresUnit is a UnitOfWork over a Postgres transaction.
type PostgresUnit struct {
	DB db.TxStarter
}

// Do implements UnitOfWork.
func (u PostgresUnit) Do(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	return db.InTx(ctx, u.DB, func(tx pgx.Tx) error {
		return fn(ctx, Stores{
			Carts:  cart.PostgresStore{DB: tx},
			Promos: promo.NewPostgresStore(tx),
			Orders: PostgresStore{DB: tx},
		})
	})
}

// PostgresStore persists orders, their items and commission rows.
type PostgresStore struct {
	DB db.DBTX
}

// InsertOrder writes the order header.
func (s PostgresStore) InsertOrder(ctx context.Context, o Order) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO orders (id, buyer_id, cart_id, promo_code_id, currency, subtotal, discount, shipping, total, status)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10)`,
		o.ID, o.BuyerID, o.CartID, o.PromoCodeID, o.Currency,
		o.Subtotal.String(), o.Discount.String(), o.Shipping.String(), o.Total.String(), o.Status)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// InsertItems copies the cart lines onto the order.
func (s PostgresStore) InsertItems(ctx context.Context, orderID uuid.UUID, items []cart.Item) error {
	for _, it := range items {
		_, err := s.DB.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, store_id, title, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)`,
			uuid.New(), orderID, it.ProductID, it.StoreID, it.Title, it.Quantity, it.UnitPrice.String())
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// InsertCommissions writes one commission row per store.
func (s PostgresStore) InsertCommissions(ctx context.Context, orderID uuid.UUID, results []commission.Result) error {
	for _, r := range results {
		_, err := s.DB.Exec(ctx, `
			INSERT INTO order_commissions (order_id, store_id, gross_amount, commission_rate, commission_amount, net_payout)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric)`,
			orderID, r.StoreID, r.GrossAmount.String(), r.CommissionRate.String(),
			r.CommissionAmount.String(), r.NetPayout.String())
		if err != nil {
			return fmt.Errorf("insert order commission: %w", err)
		}
	}
	return nil
}
