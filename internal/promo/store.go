package promo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/marketplace-pricing/internal/db"
	"github.com/noah-isme/marketplace-pricing/internal/money"
)

// ErrDuplicateCode is returned when a code already exists, case-insensitively.
var ErrDuplicateCode = errors.New("promo code already exists")

const codeColumns = `id, code, discount_type, discount_value::text, scope, store_id,
	start_date, end_date, usage_count, usage_limit,
	minimum_order_amount::text, max_discount_amount::text, is_active, created_at, updated_at`

// PostgresStore persists promo codes. It runs against a pool or a transaction.
type PostgresStore struct {
	DB db.DBTX
}

// NewPostgresStore constructs a store over q.
func NewPostgresStore(q db.DBTX) *PostgresStore {
	return &PostgresStore{DB: q}
}

// GetByCode loads a code by its case-insensitive value.
func (s *PostgresStore) GetByCode(ctx context.Context, code string) (Code, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+codeColumns+` FROM promo_codes WHERE upper(code) = upper($1)`, code)
	return scanCode(row)
}

// GetByID loads a code by id.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (Code, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+codeColumns+` FROM promo_codes WHERE id = $1`, id)
	return scanCode(row)
}

// Create inserts c and returns the stored row.
func (s *PostgresStore) Create(ctx context.Context, c Code) (Code, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO promo_codes (id, code, discount_type, discount_value, scope, store_id,
			start_date, end_date, usage_limit, minimum_order_amount, max_discount_amount, is_active)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10::numeric, $11::numeric, $12)
		RETURNING `+codeColumns,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue.String(), string(c.Scope), c.StoreID,
		c.StartDate, c.EndDate, c.UsageLimit, money.FormatOptional(c.MinimumOrderAmount),
		money.FormatOptional(c.MaxDiscountAmount), c.IsActive)
	out, err := scanCode(row)
	if db.IsUniqueViolation(err) {
		return Code{}, ErrDuplicateCode
	}
	return out, err
}

// Update rewrites the mutable fields of c. Usage count is never touched here.
func (s *PostgresStore) Update(ctx context.Context, c Code) (Code, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE promo_codes SET
			discount_type = $2, discount_value = $3::numeric, scope = $4, store_id = $5,
			start_date = $6, end_date = $7, usage_limit = $8,
			minimum_order_amount = $9::numeric, max_discount_amount = $10::numeric,
			is_active = $11, updated_at = now()
		WHERE id = $1
		RETURNING `+codeColumns,
		c.ID, string(c.DiscountType), c.DiscountValue.String(), string(c.Scope), c.StoreID,
		c.StartDate, c.EndDate, c.UsageLimit, money.FormatOptional(c.MinimumOrderAmount),
		money.FormatOptional(c.MaxDiscountAmount), c.IsActive)
	return scanCode(row)
}

// IncrementUsage consumes one use of the code. It reports false when the
// usage limit has already been reached.
func (s *PostgresStore) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		UPDATE promo_codes SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`, id)
	if err != nil {
		return false, fmt.Errorf("increment promo usage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanCode(row pgx.Row) (Code, error) {
	var (
		c            Code
		discountType string
		scope        string
		value        string
		minimum      *string
		maxDiscount  *string
	)
	err := row.Scan(&c.ID, &c.Code, &discountType, &value, &scope, &c.StoreID,
		&c.StartDate, &c.EndDate, &c.UsageCount, &c.UsageLimit,
		&minimum, &maxDiscount, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Code{}, ErrNotFound
		}
		return Code{}, err
	}
	c.DiscountType = DiscountType(discountType)
	c.Scope = Scope(scope)
	if c.DiscountValue, err = money.Parse(value); err != nil {
		return Code{}, err
	}
	if c.MinimumOrderAmount, err = money.ParseOptional(minimum); err != nil {
		return Code{}, err
	}
	if c.MaxDiscountAmount, err = money.ParseOptional(maxDiscount); err != nil {
		return Code{}, err
	}
	return c, nil
}
