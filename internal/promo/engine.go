package promo

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/marketplace-pricing/internal/money"
)

var (
	// ErrNotFound is returned for unknown codes and for codes switched off by an admin.
	ErrNotFound = errors.New("promo code not found")
	// ErrNotYetActive is returned before the code's start date.
	ErrNotYetActive = errors.New("promo code not yet active")
	// ErrExpired is returned after the code's end date.
	ErrExpired = errors.New("promo code expired")
	// ErrUsageLimitReached indicates the code has exhausted its global quota.
	ErrUsageLimitReached = errors.New("promo code usage limit reached")
	// ErrNotApplicable is returned when no cart item falls inside the code's scope.
	ErrNotApplicable = errors.New("promo code not applicable")
	// ErrMinimumOrderNotMet indicates the eligible subtotal is below the code's minimum.
	ErrMinimumOrderNotMet = errors.New("promo code minimum order not met")
)

// DiscountType selects how DiscountValue is interpreted.
type DiscountType string

const (
	// Percentage treats DiscountValue as a percent of the eligible subtotal.
	Percentage DiscountType = "percentage"
	// FixedAmount treats DiscountValue as a currency amount.
	FixedAmount DiscountType = "fixed_amount"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == Percentage || t == FixedAmount
}

// Scope selects which cart items a code discounts.
type Scope string

const (
	// ScopePlatform discounts every item in the cart.
	ScopePlatform Scope = "platform"
	// ScopeSeller discounts only the items sold by Code.StoreID.
	ScopeSeller Scope = "seller"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopePlatform || s == ScopeSeller
}

// Code is a promo code as stored. The pricing path treats it as read-only.
type Code struct {
	ID                 uuid.UUID        `json:"id"`
	Code               string           `json:"code"`
	DiscountType       DiscountType     `json:"discountType"`
	DiscountValue      decimal.Decimal  `json:"discountValue"`
	Scope              Scope            `json:"scope"`
	StoreID            *uuid.UUID       `json:"storeId,omitempty"`
	StartDate          time.Time        `json:"startDate"`
	EndDate            *time.Time       `json:"endDate,omitempty"`
	UsageCount         int32            `json:"usageCount"`
	UsageLimit         *int32           `json:"usageLimit,omitempty"`
	MinimumOrderAmount *decimal.Decimal `json:"minimumOrderAmount,omitempty"`
	MaxDiscountAmount  *decimal.Decimal `json:"maxDiscountAmount,omitempty"`
	IsActive           bool             `json:"isActive"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// Item is a priced cart line as seen by the discount rules.
type Item struct {
	StoreID  uuid.UUID
	Subtotal decimal.Decimal
}

// Evaluation is the outcome of a successful evaluation against a cart.
type Evaluation struct {
	Code             string          `json:"code"`
	Scope            Scope           `json:"scope"`
	StoreID          *uuid.UUID      `json:"storeId,omitempty"`
	EligibleSubtotal decimal.Decimal `json:"eligibleSubtotal"`
	Discount         decimal.Decimal `json:"discount"`
}

// NormalizeCode canonicalises a code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check classifies why the code cannot be used at asOf, or returns nil.
// Bounds are inclusive on both ends.
func (c Code) Check(asOf time.Time) error {
	if !c.IsActive {
		return ErrNotFound
	}
	if asOf.Before(c.StartDate) {
		return ErrNotYetActive
	}
	if c.EndDate != nil && asOf.After(*c.EndDate) {
		return ErrExpired
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return ErrUsageLimitReached
	}
	return nil
}

// IsValid reports whether the code is usable at asOf.
func (c Code) IsValid(asOf time.Time) bool {
	return c.Check(asOf) == nil
}

// MeetsMinimumOrderAmount reports whether subtotal reaches the configured minimum.
func (c Code) MeetsMinimumOrderAmount(subtotal decimal.Decimal) bool {
	if c.MinimumOrderAmount == nil {
		return true
	}
	return subtotal.GreaterThanOrEqual(*c.MinimumOrderAmount)
}

// AppliesTo reports whether an item from storeID is inside the code's scope.
func (c Code) AppliesTo(storeID uuid.UUID) bool {
	if c.Scope != ScopeSeller {
		return true
	}
	return c.StoreID != nil && *c.StoreID == storeID
}

// CalculateDiscount computes the discount for an already scope-filtered
// subtotal, rounded to cents.
func (c Code) CalculateDiscount(eligibleSubtotal decimal.Decimal) decimal.Decimal {
	if !eligibleSubtotal.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch c.DiscountType {
	case Percentage:
		amount = money.Percent(eligibleSubtotal, c.DiscountValue)
		if c.MaxDiscountAmount != nil && amount.GreaterThan(*c.MaxDiscountAmount) {
			amount = *c.MaxDiscountAmount
		}
	case FixedAmount:
		amount = money.Min(c.DiscountValue, eligibleSubtotal)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return money.Round2(amount)
}

// EligibleSubtotal sums the items inside the code's scope.
func EligibleSubtotal(items []Item, c Code) (decimal.Decimal, bool) {
	total := decimal.Zero
	matched := false
	for _, item := range items {
		if !c.AppliesTo(item.StoreID) {
			continue
		}
		matched = true
		total = total.Add(item.Subtotal)
	}
	return total, matched
}

// Evaluate runs validity, scope and minimum-order checks in that order and
// computes the discount.
func (c Code) Evaluate(asOf time.Time, items []Item) (Evaluation, error) {
	if err := c.Check(asOf); err != nil {
		return Evaluation{}, err
	}
	eligible, matched := EligibleSubtotal(items, c)
	if !matched {
		return Evaluation{}, ErrNotApplicable
	}
	if !c.MeetsMinimumOrderAmount(eligible) {
		return Evaluation{}, ErrMinimumOrderNotMet
	}
	eval := Evaluation{
		Code:             c.Code,
		Scope:            c.Scope,
		EligibleSubtotal: eligible,
		Discount:         c.CalculateDiscount(eligible),
	}
	if c.Scope == ScopeSeller && c.StoreID != nil {
		id := *c.StoreID
		eval.StoreID = &id
	}
	return eval, nil
}
