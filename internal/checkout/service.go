package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketplace-pricing/internal/cart"
	"github.com/noah-isme/marketplace-pricing/internal/commission"
	"github.com/noah-isme/marketplace-pricing/internal/common"
	"github.com/noah-isme/marketplace-pricing/internal/obs"
	"github.com/noah-isme/marketplace-pricing/internal/payout"
	"github.com/noah-isme/marketplace-pricing/internal/pricing"
	"github.com/noah-isme/marketplace-pricing/internal/promo"
	"github.com/noah-isme/marketplace-pricing/internal/shipping"
)

var (
	// ErrBuyerRequired is returned when checkout is attempted anonymously.
	ErrBuyerRequired = errors.New("buyer is required for checkout")
	// ErrCartRequired is returned for an empty cart id.
	ErrCartRequired = errors.New("cart id is required")
	// ErrCartChanged is returned when the cart was edited between the
	// shipping quote and the order transaction.
	ErrCartChanged = errors.New("cart changed during checkout")
)

// Result is the outcome of a placed order.
type Result struct {
	Order Order
	Quote pricing.Quote
}

// CartReader reads a cart outside the order transaction.
type CartReader interface {
	GetCart(ctx context.Context, id uuid.UUID) (cart.Cart, error)
	ListItems(ctx context.Context, cartID uuid.UUID) ([]cart.Item, error)
}

// Service places orders from carts.
type Service struct {
	Unit     UnitOfWork
	Carts    CartReader
	Shipping shipping.Quoter
	Pricing  pricing.Engine
	Payouts  payout.Enqueuer
	Currency string
	Now      func() time.Time
	Logger   zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Place turns the buyer's cart into an order. The cart is re-priced inside
// the transaction; a promo that no longer validates aborts the order.
func (s *Service) Place(ctx context.Context, buyerID, cartID uuid.UUID) (Result, error) {
	if buyerID == uuid.Nil {
		return Result{}, common.Validation("BUYER_ID_REQUIRED", ErrBuyerRequired, "Buyer ID is required.")
	}
	if cartID == uuid.Nil {
		return Result{}, common.Validation("CART_ID_REQUIRED", ErrCartRequired, "Cart ID is required.")
	}

	var res Result
	ship, err := s.quoteShipping(ctx, buyerID, cartID)
	if err == nil {
		err = s.Unit.Do(ctx, func(ctx context.Context, st Stores) error {
			var err error
			res, err = s.place(ctx, st, buyerID, cartID, ship)
			return err
		})
	}
	obs.RecordCheckout(outcome(err))
	if err != nil {
		return Result{}, err
	}

	for _, c := range res.Quote.Commissions {
		amount, _ := c.CommissionAmount.Float64()
		obs.AddCommission(amount)
	}
	s.Logger.Info().
		Str("order_id", res.Order.ID.String()).
		Str("buyer_id", buyerID.String()).
		Str("total", res.Order.Total.StringFixed(2)).
		Msg("order_placed")

	if s.Payouts != nil {
		// TODO: write the payout task to an outbox table inside the order
		// transaction so a Redis outage cannot drop it.
		if err := s.Payouts.EnqueueOrderPlaced(ctx, res.Order.ID); err != nil {
			s.Logger.Error().Err(err).Str("order_id", res.Order.ID.String()).Msg("payout_enqueue_failed")
		}
	}
	return res, nil
}

// shipment is a shipping quote taken before the order transaction opens.
type shipment struct {
	requests []shipping.Request
	costs    map[uuid.UUID]shipping.Cost
}

// matches reports whether reqs ship the same stores, subtotals and counts
// that were quoted.
func (sh shipment) matches(reqs []shipping.Request) bool {
	if len(reqs) != len(sh.requests) {
		return false
	}
	quoted := make(map[uuid.UUID]shipping.Request, len(sh.requests))
	for _, r := range sh.requests {
		quoted[r.StoreID] = r
	}
	for _, r := range reqs {
		q, ok := quoted[r.StoreID]
		if !ok || q.ItemCount != r.ItemCount || !q.ItemsSubtotal.Equal(r.ItemsSubtotal) {
			return false
		}
	}
	return true
}

// quoteShipping prices shipping from an unlocked read of the cart so slow
// shipping providers never run while the cart row is locked. Missing, foreign
// and empty carts yield an empty shipment; the transaction reports them.
func (s *Service) quoteShipping(ctx context.Context, buyerID, cartID uuid.UUID) (shipment, error) {
	c, err := s.Carts.GetCart(ctx, cartID)
	if errors.Is(err, cart.ErrNotFound) {
		return shipment{}, nil
	}
	if err != nil {
		return shipment{}, fmt.Errorf("load cart: %w", err)
	}
	if c.BuyerID == nil || *c.BuyerID != buyerID {
		return shipment{}, nil
	}
	items, err := s.Carts.ListItems(ctx, c.ID)
	if err != nil {
		return shipment{}, fmt.Errorf("list cart items: %w", err)
	}
	reqs := cart.ShippingRequests(items)
	if len(reqs) == 0 {
		return shipment{}, nil
	}
	costs, err := shipping.QuoteAll(ctx, s.Shipping, reqs)
	if err != nil {
		return shipment{}, fmt.Errorf("quote shipping: %w", err)
	}
	return shipment{requests: reqs, costs: costs}, nil
}

func (s *Service) place(ctx context.Context, st Stores, buyerID, cartID uuid.UUID, ship shipment) (Result, error) {
	c, err := st.Carts.GetCartForUpdate(ctx, cartID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return Result{}, common.NotFound("CART_NOT_FOUND", err, "Cart not found.")
		}
		return Result{}, fmt.Errorf("lock cart: %w", err)
	}
	if c.BuyerID == nil || *c.BuyerID != buyerID {
		return Result{}, common.Unauthorized("CART_FORBIDDEN", cart.ErrNotOwner, "You do not have access to this cart.")
	}
	if c.ExpiresAt.Before(s.now()) {
		return Result{}, common.NotFound("CART_NOT_FOUND", cart.ErrNotFound, "Cart not found.")
	}

	items, err := st.Carts.ListItems(ctx, c.ID)
	if err != nil {
		return Result{}, fmt.Errorf("list cart items: %w", err)
	}
	if len(items) == 0 {
		return Result{}, common.Validation("CART_EMPTY", cart.ErrEmptyCart, "Cart is empty.")
	}

	var pc *promo.Code
	if c.AppliedPromoCodeID != nil {
		code, err := st.Promos.GetByID(ctx, *c.AppliedPromoCodeID)
		if err != nil {
			if errors.Is(err, promo.ErrNotFound) {
				return Result{}, promo.Failure(err, nil)
			}
			return Result{}, fmt.Errorf("load promo code: %w", err)
		}
		pc = &code
	}

	if !ship.matches(cart.ShippingRequests(items)) {
		return Result{}, common.Conflict("CART_CHANGED", ErrCartChanged, "Cart changed during checkout. Please review it and try again.")
	}
	q, err := s.Pricing.Settle(pricing.Input{
		Items:    cart.PricingItems(items),
		Promo:    pc,
		Shipping: ship.costs,
		AsOf:     s.now(),
	})
	if err != nil {
		if errors.Is(err, pricing.ErrEmptyCart) {
			return Result{}, common.Validation("CART_EMPTY", cart.ErrEmptyCart, "Cart is empty.")
		}
		return Result{}, promo.Failure(err, pc)
	}

	// Usage is consumed first so an exhausted code rolls the whole order back.
	if pc != nil {
		ok, err := st.Promos.IncrementUsage(ctx, pc.ID)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, promo.Failure(promo.ErrUsageLimitReached, pc)
		}
	}

	o := Order{
		ID:       uuid.New(),
		BuyerID:  buyerID,
		CartID:   c.ID,
		Currency: s.Currency,
		Subtotal: q.Subtotal,
		Discount: q.Discount,
		Shipping: q.Shipping,
		Total:    q.Total,
		Status:   StatusPlaced,
	}
	if pc != nil {
		id := pc.ID
		o.PromoCodeID = &id
	}
	o.CreatedAt = s.now()

	if err := st.Orders.InsertOrder(ctx, o); err != nil {
		return Result{}, err
	}
	if err := st.Orders.InsertItems(ctx, o.ID, items); err != nil {
		return Result{}, err
	}
	if err := st.Orders.InsertCommissions(ctx, o.ID, sortedCommissions(q)); err != nil {
		return Result{}, err
	}
	if err := st.Carts.ClearItems(ctx, c.ID); err != nil {
		return Result{}, err
	}
	if err := st.Carts.ClearPromo(ctx, c.ID); err != nil {
		return Result{}, err
	}
	return Result{Order: o, Quote: q}, nil
}

// sortedCommissions lists commission rows in store display order.
func sortedCommissions(q pricing.Quote) []commission.Result {
	out := make([]commission.Result, 0, len(q.Commissions))
	for _, s := range q.Stores {
		if c, ok := q.Commissions[s.StoreID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func outcome(err error) string {
	if err == nil {
		return obs.ResultSuccess
	}
	switch common.KindOf(err) {
	case common.KindConflict:
		return obs.ResultConflict
	case common.KindInternal:
		return obs.ResultError
	default:
		return obs.ResultRejected
	}
}
