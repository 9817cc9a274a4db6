package promo

import (
	"errors"
	"fmt"

	"github.com/noah-isme/marketplace-pricing/internal/common"
	"github.com/noah-isme/marketplace-pricing/internal/money"
)

// Buyer-facing messages for promo failures.
const (
	MsgInvalid       = "Promo code is invalid or does not exist."
	MsgExpired       = "Promo code has expired."
	MsgNotYetActive  = "Promo code is not yet active."
	MsgUsageLimit    = "Promo code has reached its usage limit."
	MsgNotApplicable = "Promo code is not applicable to items in your cart."
	MsgCodeRequired  = "Promo code is required."
)

// Failure classifies a rule failure for code c into an AppError. Errors that
// are not promo rule failures are returned unchanged.
func Failure(err error, c *Code) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return common.NotFound("PROMO_INVALID", err, MsgInvalid)
	case errors.Is(err, ErrExpired):
		return common.Validation("PROMO_EXPIRED", err, MsgExpired)
	case errors.Is(err, ErrNotYetActive):
		return common.Validation("PROMO_NOT_YET_ACTIVE", err, MsgNotYetActive)
	case errors.Is(err, ErrUsageLimitReached):
		return common.Validation("PROMO_USAGE_LIMIT_REACHED", err, MsgUsageLimit)
	case errors.Is(err, ErrNotApplicable):
		return common.Validation("PROMO_NOT_APPLICABLE", err, MsgNotApplicable)
	case errors.Is(err, ErrMinimumOrderNotMet):
		return common.Validation("PROMO_MINIMUM_ORDER_NOT_MET", err, MinimumOrderMessage(c))
	default:
		return err
	}
}

// MinimumOrderMessage renders the minimum-order failure for c.
func MinimumOrderMessage(c *Code) string {
	if c == nil || c.MinimumOrderAmount == nil {
		return "The minimum order amount for this promo code has not been met."
	}
	return fmt.Sprintf("Minimum order amount of %s is required to use this promo code.", money.Format(*c.MinimumOrderAmount))
}
