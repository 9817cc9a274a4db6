package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/marketplace-pricing/internal/db"
	"github.com/noah-isme/marketplace-pricing/internal/money"
)

// PostgresStore reads products from Postgres.
type PostgresStore struct {
	DB db.DBTX
}

// GetProduct loads a product together with its store name.
func (s PostgresStore) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	var (
		p     Product
		price string
	)
	err := s.DB.QueryRow(ctx, `
		SELECT p.id, p.store_id, s.name, p.title, p.price::text, p.is_active
		FROM products p
		JOIN stores s ON s.id = p.store_id
		WHERE p.id = $1`, id).
		Scan(&p.ID, &p.StoreID, &p.StoreName, &p.Title, &price, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	if p.Price, err = money.Parse(price); err != nil {
		return Product{}, err
	}
	return p, nil
}
