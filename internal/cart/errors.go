package cart

import (
	"github.com/noah-isme/marketplace-pricing/internal/common"
)

func ownerRequired() error {
	return common.Validation("BUYER_ID_REQUIRED", ErrOwnerRequired, "Buyer ID is required.")
}

func productRequired() error {
	return common.Validation("PRODUCT_ID_REQUIRED", ErrProductRequired, "Product ID is required.")
}

func itemRequired() error {
	return common.Validation("ITEM_ID_REQUIRED", ErrItemNotFound, "Item ID is required.")
}

func cartNotFound(err error) error {
	return common.NotFound("CART_NOT_FOUND", err, "Cart not found.")
}

func itemNotFound(err error) error {
	return common.NotFound("CART_ITEM_NOT_FOUND", err, "Cart item not found.")
}

func notOwner() error {
	return common.Unauthorized("CART_FORBIDDEN", ErrNotOwner, "You do not have access to this cart.")
}

func promoAlreadyApplied() error {
	return common.Conflict("PROMO_ALREADY_APPLIED", ErrPromoAlreadyApplied, "A promo code is already applied to this cart.")
}
