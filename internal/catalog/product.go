// Package catalog resolves the products buyers add to their carts.
package catalog

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrProductNotFound is returned when no product has the requested id.
var ErrProductNotFound = errors.New("product not found")

// Product is the slice of a catalog entry the cart needs.
type Product struct {
	ID        uuid.UUID       `json:"id"`
	StoreID   uuid.UUID       `json:"storeId"`
	StoreName string          `json:"storeName"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	IsActive  bool            `json:"isActive"`
}
