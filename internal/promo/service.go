package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/marketplace-pricing/internal/common"
)

var (
	// ErrCodeRequired is returned when an empty code is supplied.
	ErrCodeRequired = errors.New("promo code is required")
	// ErrInvalidDefinition wraps admin input that fails validation.
	ErrInvalidDefinition = errors.New("invalid promo code definition")
)

// Store captures the persistence methods required by the promo service.
type Store interface {
	GetByCode(ctx context.Context, code string) (Code, error)
	GetByID(ctx context.Context, id uuid.UUID) (Code, error)
	Create(ctx context.Context, c Code) (Code, error)
	Update(ctx context.Context, c Code) (Code, error)
}

// Service exposes promo lookup, administration and dry-run evaluation.
type Service struct {
	Store Store
	Now   func() time.Time
}

// Input is the admin-editable definition of a promo code.
type Input struct {
	Code               string
	DiscountType       DiscountType
	DiscountValue      decimal.Decimal
	Scope              Scope
	StoreID            *uuid.UUID
	StartDate          *time.Time
	EndDate            *time.Time
	UsageLimit         *int32
	MinimumOrderAmount *decimal.Decimal
	MaxDiscountAmount  *decimal.Decimal
	IsActive           *bool
}

// Lookup resolves a buyer-supplied code. Unknown codes map to the shared
// invalid-code failure.
func (s *Service) Lookup(ctx context.Context, code string) (Code, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Code{}, common.Validation("PROMO_CODE_REQUIRED", ErrCodeRequired, MsgCodeRequired)
	}
	c, err := s.Store.GetByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Code{}, Failure(err, nil)
		}
		return Code{}, fmt.Errorf("load promo code: %w", err)
	}
	return c, nil
}

// ByID loads the code a cart references.
func (s *Service) ByID(ctx context.Context, id uuid.UUID) (Code, error) {
	c, err := s.Store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Code{}, Failure(err, nil)
		}
		return Code{}, fmt.Errorf("load promo code: %w", err)
	}
	return c, nil
}

// Get returns a code for administration without applying validity rules.
func (s *Service) Get(ctx context.Context, code string) (Code, error) {
	c, err := s.Store.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Code{}, common.NotFound("PROMO_NOT_FOUND", err, "Promo code not found.")
		}
		return Code{}, fmt.Errorf("load promo code: %w", err)
	}
	return c, nil
}

// Create validates in and stores a new code.
func (s *Service) Create(ctx context.Context, in Input) (Code, error) {
	in.Code = NormalizeCode(in.Code)
	start := s.now()
	if in.StartDate != nil {
		start = in.StartDate.UTC()
	}
	if msgs := in.validate(start); len(msgs) > 0 {
		return Code{}, common.Validation("PROMO_INVALID_DEFINITION", ErrInvalidDefinition, msgs...)
	}
	c := Code{ID: uuid.New(), Code: in.Code, StartDate: start, IsActive: true}
	in.applyTo(&c)
	created, err := s.Store.Create(ctx, c)
	if err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return Code{}, common.Conflict("PROMO_DUPLICATE", err, "A promo code with this value already exists.")
		}
		return Code{}, fmt.Errorf("create promo code: %w", err)
	}
	return created, nil
}

// Update replaces the definition of an existing code. The code value itself
// and its usage count are immutable.
func (s *Service) Update(ctx context.Context, code string, in Input) (Code, error) {
	existing, err := s.Get(ctx, code)
	if err != nil {
		return Code{}, err
	}
	in.Code = existing.Code
	start := existing.StartDate
	if in.StartDate != nil {
		start = in.StartDate.UTC()
	}
	if msgs := in.validate(start); len(msgs) > 0 {
		return Code{}, common.Validation("PROMO_INVALID_DEFINITION", ErrInvalidDefinition, msgs...)
	}
	existing.StartDate = start
	in.applyTo(&existing)
	updated, err := s.Store.Update(ctx, existing)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Code{}, common.NotFound("PROMO_NOT_FOUND", err, "Promo code not found.")
		}
		return Code{}, fmt.Errorf("update promo code: %w", err)
	}
	return updated, nil
}

// Preview evaluates code against items without mutating anything.
func (s *Service) Preview(ctx context.Context, code string, items []Item) (Evaluation, error) {
	c, err := s.Lookup(ctx, code)
	if err != nil {
		return Evaluation{}, err
	}
	eval, err := c.Evaluate(s.now(), items)
	if err != nil {
		return Evaluation{}, Failure(err, &c)
	}
	return eval, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (in Input) applyTo(c *Code) {
	c.DiscountType = in.DiscountType
	c.DiscountValue = in.DiscountValue
	c.Scope = in.Scope
	c.StoreID = nil
	if in.Scope == ScopeSeller {
		c.StoreID = in.StoreID
	}
	c.EndDate = nil
	if in.EndDate != nil {
		end := in.EndDate.UTC()
		c.EndDate = &end
	}
	c.UsageLimit = in.UsageLimit
	c.MinimumOrderAmount = in.MinimumOrderAmount
	c.MaxDiscountAmount = in.MaxDiscountAmount
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
}

func (in Input) validate(start time.Time) []string {
	var msgs []string
	if in.Code == "" {
		msgs = append(msgs, MsgCodeRequired)
	}
	if !in.DiscountType.Valid() {
		msgs = append(msgs, "Discount type must be percentage or fixed_amount.")
	}
	if !in.DiscountValue.IsPositive() {
		msgs = append(msgs, "Discount value must be greater than zero.")
	} else if in.DiscountType == Percentage && in.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		msgs = append(msgs, "Percentage discount cannot exceed 100.")
	}
	switch {
	case !in.Scope.Valid():
		msgs = append(msgs, "Scope must be platform or seller.")
	case in.Scope == ScopeSeller && in.StoreID == nil:
		msgs = append(msgs, "Seller-scoped promo codes require a store ID.")
	case in.Scope == ScopePlatform && in.StoreID != nil:
		msgs = append(msgs, "Platform-scoped promo codes cannot target a store.")
	}
	if in.EndDate != nil && in.EndDate.Before(start) {
		msgs = append(msgs, "End date must not be before start date.")
	}
	if in.UsageLimit != nil && *in.UsageLimit <= 0 {
		msgs = append(msgs, "Usage limit must be greater than zero.")
	}
	if in.MinimumOrderAmount != nil && in.MinimumOrderAmount.IsNegative() {
		msgs = append(msgs, "Minimum order amount cannot be negative.")
	}
	if in.MaxDiscountAmount != nil && !in.MaxDiscountAmount.IsPositive() {
		msgs = append(msgs, "Maximum discount amount must be greater than zero.")
	}
	return msgs
}
