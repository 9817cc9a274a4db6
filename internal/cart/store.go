package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/marketplace-pricing/internal/db"
	"github.com/noah-isme/marketplace-pricing/internal/money"
)

// ErrDuplicateCart is returned when the owner already has a cart row.
var ErrDuplicateCart = errors.New("cart already exists for owner")

const cartColumns = `id, buyer_id, anon_id, applied_promo_code_id, version, expires_at, created_at, updated_at`

const itemColumns = `id, cart_id, product_id, store_id, store_name, title, quantity, unit_price::text, created_at`

// PostgresStore persists carts and their items. It runs against a pool or a
// transaction.
type PostgresStore struct {
	DB db.DBTX
}

// GetCart loads a cart by id.
func (s PostgresStore) GetCart(ctx context.Context, id uuid.UUID) (Cart, error) {
	return scanCart(s.DB.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id))
}

// GetCartForUpdate loads and row-locks a cart. Only meaningful inside a transaction.
func (s PostgresStore) GetCartForUpdate(ctx context.Context, id uuid.UUID) (Cart, error) {
	return scanCart(s.DB.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1 FOR UPDATE`, id))
}

// GetByBuyer loads the buyer's cart, expired or not.
func (s PostgresStore) GetByBuyer(ctx context.Context, buyerID uuid.UUID) (Cart, error) {
	return scanCart(s.DB.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE buyer_id = $1`, buyerID))
}

// GetByAnon loads the guest cart for anonID, expired or not.
func (s PostgresStore) GetByAnon(ctx context.Context, anonID string) (Cart, error) {
	return scanCart(s.DB.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE anon_id = $1`, anonID))
}

// CreateCart inserts c.
func (s PostgresStore) CreateCart(ctx context.Context, c Cart) (Cart, error) {
	out, err := scanCart(s.DB.QueryRow(ctx, `
		INSERT INTO carts (id, buyer_id, anon_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+cartColumns, c.ID, c.BuyerID, c.AnonID, c.ExpiresAt))
	if db.IsUniqueViolation(err) {
		return Cart{}, ErrDuplicateCart
	}
	return out, err
}

// ClaimCart assigns a guest cart to buyerID.
func (s PostgresStore) ClaimCart(ctx context.Context, cartID, buyerID uuid.UUID) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE carts SET buyer_id = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND buyer_id IS NULL`, cartID, buyerID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateCart
		}
		return fmt.Errorf("claim cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOwner
	}
	return nil
}

// Touch extends the cart expiry.
func (s PostgresStore) Touch(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	if _, err := s.DB.Exec(ctx, `UPDATE carts SET expires_at = $2, updated_at = now() WHERE id = $1`, cartID, expiresAt); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

// SetPromo attaches promoID only when no promo is applied yet. It reports
// false when another promo already occupies the slot.
func (s PostgresStore) SetPromo(ctx context.Context, cartID, promoID uuid.UUID) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		UPDATE carts SET applied_promo_code_id = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND applied_promo_code_id IS NULL`, cartID, promoID)
	if err != nil {
		return false, fmt.Errorf("set cart promo: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearPromo detaches any applied promo.
func (s PostgresStore) ClearPromo(ctx context.Context, cartID uuid.UUID) error {
	if _, err := s.DB.Exec(ctx, `
		UPDATE carts SET applied_promo_code_id = NULL, version = version + 1, updated_at = now()
		WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart promo: %w", err)
	}
	return nil
}

// ListItems returns the cart's lines in insertion order.
func (s PostgresStore) ListItems(ctx context.Context, cartID uuid.UUID) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+itemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY created_at, id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItem loads a single line by id.
func (s PostgresStore) GetItem(ctx context.Context, itemID uuid.UUID) (Item, error) {
	return scanItem(s.DB.QueryRow(ctx, `SELECT `+itemColumns+` FROM cart_items WHERE id = $1`, itemID))
}

// AddItem inserts it or, when the product is already in the cart, increments
// the existing line. The existing price snapshot is kept.
func (s PostgresStore) AddItem(ctx context.Context, it Item) (Item, error) {
	out, err := scanItem(s.DB.QueryRow(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, store_id, store_name, title, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING `+itemColumns,
		it.ID, it.CartID, it.ProductID, it.StoreID, it.StoreName, it.Title, it.Quantity, it.UnitPrice.String()))
	if err != nil {
		return Item{}, fmt.Errorf("add cart item: %w", err)
	}
	return out, nil
}

// SetQuantity overwrites a line's quantity.
func (s PostgresStore) SetQuantity(ctx context.Context, itemID uuid.UUID, qty int) error {
	tag, err := s.DB.Exec(ctx, `UPDATE cart_items SET quantity = $2, updated_at = now() WHERE id = $1`, itemID, qty)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// DeleteItem removes a line.
func (s PostgresStore) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ClearItems removes every line from the cart.
func (s PostgresStore) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	if _, err := s.DB.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	return nil
}

func scanCart(row pgx.Row) (Cart, error) {
	var c Cart
	err := row.Scan(&c.ID, &c.BuyerID, &c.AnonID, &c.AppliedPromoCodeID, &c.Version, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}
	return c, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		it    Item
		price string
	)
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.StoreID, &it.StoreName, &it.Title, &it.Quantity, &price, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	if it.UnitPrice, err = money.Parse(price); err != nil {
		return Item{}, err
	}
	return it, nil
}
