package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketplace-pricing/internal/catalog"
	"github.com/noah-isme/marketplace-pricing/internal/common"
	"github.com/noah-isme/marketplace-pricing/internal/lock"
	"github.com/noah-isme/marketplace-pricing/internal/obs"
	"github.com/noah-isme/marketplace-pricing/internal/pricing"
	"github.com/noah-isme/marketplace-pricing/internal/promo"
	"github.com/noah-isme/marketplace-pricing/internal/shipping"
)

// Store captures the persistence methods required by the cart service.
type Store interface {
	GetCart(ctx context.Context, id uuid.UUID) (Cart, error)
	GetByBuyer(ctx context.Context, buyerID uuid.UUID) (Cart, error)
	GetByAnon(ctx context.Context, anonID string) (Cart, error)
	CreateCart(ctx context.Context, c Cart) (Cart, error)
	ClaimCart(ctx context.Context, cartID, buyerID uuid.UUID) error
	Touch(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error
	SetPromo(ctx context.Context, cartID, promoID uuid.UUID) (bool, error)
	ClearPromo(ctx context.Context, cartID uuid.UUID) error
	ListItems(ctx context.Context, cartID uuid.UUID) ([]Item, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (Item, error)
	AddItem(ctx context.Context, it Item) (Item, error)
	SetQuantity(ctx context.Context, itemID uuid.UUID, qty int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	ClearItems(ctx context.Context, cartID uuid.UUID) error
}

// ProductLookup resolves catalog products.
type ProductLookup interface {
	Product(ctx context.Context, id uuid.UUID) (catalog.Product, error)
}

// PromoLookup resolves promo codes by buyer-supplied value or by id.
type PromoLookup interface {
	Lookup(ctx context.Context, code string) (promo.Code, error)
	ByID(ctx context.Context, id uuid.UUID) (promo.Code, error)
}

// Locker serialises writers on a key.
type Locker interface {
	Key(parts ...string) string
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service encapsulates cart domain operations.
type Service struct {
	Store    Store
	Products ProductLookup
	Promos   PromoLookup
	Shipping shipping.Quoter
	Pricing  pricing.Engine
	Lock     Locker
	LockTTL  time.Duration
	TTL      time.Duration
	Now      func() time.Time
	Logger   zerolog.Logger
}

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 5 * time.Second
	}
	return s.LockTTL
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ResolveCart loads the caller's active cart, creating one when needed. A
// signed-in buyer presenting a guest token adopts the guest cart when they
// have no cart of their own.
func (s *Service) ResolveCart(ctx context.Context, owner Owner) (Cart, error) {
	if owner.IsZero() {
		return Cart{}, ownerRequired()
	}
	if owner.BuyerID != uuid.Nil {
		buyerID := owner.BuyerID
		c, err := s.Store.GetByBuyer(ctx, buyerID)
		if err == nil {
			return s.refresh(ctx, c)
		}
		if !errors.Is(err, ErrNotFound) {
			return Cart{}, fmt.Errorf("load buyer cart: %w", err)
		}
		if owner.AnonID != "" {
			claimed, ok, err := s.claim(ctx, owner)
			if err != nil {
				return Cart{}, err
			}
			if ok {
				return s.refresh(ctx, claimed)
			}
		}
		return s.create(ctx, Cart{BuyerID: &buyerID}, func(ctx context.Context) (Cart, error) {
			return s.Store.GetByBuyer(ctx, buyerID)
		})
	}

	anonID := owner.AnonID
	c, err := s.Store.GetByAnon(ctx, anonID)
	if err == nil {
		if !c.OwnedBy(owner) {
			return Cart{}, notOwner()
		}
		return s.refresh(ctx, c)
	}
	if !errors.Is(err, ErrNotFound) {
		return Cart{}, fmt.Errorf("load guest cart: %w", err)
	}
	return s.create(ctx, Cart{AnonID: &anonID}, func(ctx context.Context) (Cart, error) {
		return s.Store.GetByAnon(ctx, anonID)
	})
}

func (s *Service) claim(ctx context.Context, owner Owner) (Cart, bool, error) {
	guest, err := s.Store.GetByAnon(ctx, owner.AnonID)
	if errors.Is(err, ErrNotFound) {
		return Cart{}, false, nil
	}
	if err != nil {
		return Cart{}, false, fmt.Errorf("load guest cart: %w", err)
	}
	if guest.BuyerID != nil {
		return Cart{}, false, nil
	}
	err = s.Store.ClaimCart(ctx, guest.ID, owner.BuyerID)
	switch {
	case err == nil:
		buyerID := owner.BuyerID
		guest.BuyerID = &buyerID
		s.Logger.Info().Str("cart_id", guest.ID.String()).Str("buyer_id", buyerID.String()).Msg("guest_cart_claimed")
		return guest, true, nil
	case errors.Is(err, ErrDuplicateCart), errors.Is(err, ErrNotOwner):
		return Cart{}, false, nil
	default:
		return Cart{}, false, err
	}
}

func (s *Service) create(ctx context.Context, c Cart, reload func(context.Context) (Cart, error)) (Cart, error) {
	c.ID = uuid.New()
	c.ExpiresAt = s.now().Add(s.ttl())
	created, err := s.Store.CreateCart(ctx, c)
	if errors.Is(err, ErrDuplicateCart) {
		// Lost a create race with a concurrent request for the same owner.
		return reload(ctx)
	}
	if err != nil {
		return Cart{}, fmt.Errorf("create cart: %w", err)
	}
	return created, nil
}

// refresh extends the expiry of c, emptying it first when it already lapsed.
func (s *Service) refresh(ctx context.Context, c Cart) (Cart, error) {
	if c.ExpiresAt.Before(s.now()) {
		if err := s.Store.ClearItems(ctx, c.ID); err != nil {
			return Cart{}, err
		}
		if err := s.Store.ClearPromo(ctx, c.ID); err != nil {
			return Cart{}, err
		}
		c.AppliedPromoCodeID = nil
	}
	c.ExpiresAt = s.now().Add(s.ttl())
	if err := s.Store.Touch(ctx, c.ID, c.ExpiresAt); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// View returns the cart with its items and a fresh quote.
func (s *Service) View(ctx context.Context, owner Owner, cartID uuid.UUID) (View, error) {
	if owner.IsZero() {
		return View{}, ownerRequired()
	}
	c, err := s.loadOwned(ctx, owner, cartID)
	if err != nil {
		return View{}, err
	}
	return s.price(ctx, c)
}

// AddItem adds qty units of productID, incrementing an existing line.
func (s *Service) AddItem(ctx context.Context, owner Owner, cartID, productID uuid.UUID, qty int) (View, error) {
	if owner.IsZero() {
		return View{}, ownerRequired()
	}
	if productID == uuid.Nil {
		return View{}, productRequired()
	}
	if qty <= 0 {
		return View{}, common.Validation("INVALID_QUANTITY", ErrInvalidQuantity, "Quantity must be greater than zero.")
	}
	err := s.mutate(ctx, owner, cartID, func(ctx context.Context, c Cart) error {
		p, err := s.Products.Product(ctx, productID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return common.NotFound("PRODUCT_NOT_FOUND", err, "Product not found.")
			}
			return fmt.Errorf("load product: %w", err)
		}
		if !p.IsActive {
			return common.Conflict("PRODUCT_NOT_ACTIVE", ErrProductInactive, "Product is not available.")
		}
		_, err = s.Store.AddItem(ctx, Item{
			ID:        uuid.New(),
			CartID:    c.ID,
			ProductID: p.ID,
			StoreID:   p.StoreID,
			StoreName: p.StoreName,
			Title:     p.Title,
			Quantity:  qty,
			UnitPrice: p.Price,
		})
		return err
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx, owner, cartID)
}

// UpdateQuantity sets a line's quantity. Zero removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, owner Owner, cartID, itemID uuid.UUID, qty int) (View, error) {
	if owner.IsZero() {
		return View{}, ownerRequired()
	}
	if itemID == uuid.Nil {
		return View{}, itemRequired()
	}
	if qty < 0 {
		return View{}, common.Validation("INVALID_QUANTITY", ErrInvalidQuantity, "Quantity cannot be negative.")
	}
	err := s.mutate(ctx, owner, cartID, func(ctx context.Context, c Cart) error {
		if err := s.ownedItem(ctx, c, itemID); err != nil {
			return err
		}
		if qty == 0 {
			return s.deleteItem(ctx, itemID)
		}
		if err := s.Store.SetQuantity(ctx, itemID, qty); err != nil {
			if errors.Is(err, ErrItemNotFound) {
				return itemNotFound(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx, owner, cartID)
}

// RemoveItem deletes a line.
func (s *Service) RemoveItem(ctx context.Context, owner Owner, cartID, itemID uuid.UUID) (View, error) {
	if owner.IsZero() {
		return View{}, ownerRequired()
	}
	if itemID == uuid.Nil {
		return View{}, itemRequired()
	}
	err := s.mutate(ctx, owner, cartID, func(ctx context.Context, c Cart) error {
		if err := s.ownedItem(ctx, c, itemID); err != nil {
			return err
		}
		return s.deleteItem(ctx, itemID)
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx, owner, cartID)
}

// Clear empties the cart and detaches its promo.
func (s *Service) Clear(ctx context.Context, owner Owner, cartID uuid.UUID) (View, error) {
	if owner.IsZero() {
		return View{}, ownerRequired()
	}
	err := s.mutate(ctx, owner, cartID, func(ctx context.Context, c Cart) error {
		if err := s.Store.ClearItems(ctx, c.ID); err != nil {
			return err
		}
		return s.Store.ClearPromo(ctx, c.ID)
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx, owner, cartID)
}

// ApplyPromo validates code against the cart and attaches it. Any failure
// leaves the cart unchanged. The stored reference is re-evaluated whenever
// the cart is priced.
func (s *Service) ApplyPromo(ctx context.Context, owner Owner, cartID uuid.UUID, code string) (View, error) {
	err := s.applyPromo(ctx, owner, cartID, code)
	obs.RecordPromoApply(outcome(err))
	if err != nil {
		return View{}, err
	}
	return s.View(ctx, owner, cartID)
}

func (s *Service) applyPromo(ctx context.Context, owner Owner, cartID uuid.UUID, code string) error {
	if owner.IsZero() {
		return ownerRequired()
	}
	if promo.NormalizeCode(code) == "" {
		return common.Validation("PROMO_CODE_REQUIRED", promo.ErrCodeRequired, promo.MsgCodeRequired)
	}
	return s.mutate(ctx, owner, cartID, func(ctx context.Context, c Cart) error {
		if c.AppliedPromoCodeID != nil {
			return promoAlreadyApplied()
		}
		items, err := s.Store.ListItems(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return common.Validation("CART_EMPTY", ErrEmptyCart, "Cannot apply a promo code to an empty cart.")
		}
		pc, err := s.Promos.Lookup(ctx, code)
		if err != nil {
			return err
		}
		if _, err := pc.Evaluate(s.now(), PromoItems(items)); err != nil {
			return promo.Failure(err, &pc)
		}
		ok, err := s.Store.SetPromo(ctx, c.ID, pc.ID)
		if err != nil {
			return err
		}
		if !ok {
			return promoAlreadyApplied()
		}
		return nil
	})
}

// RemovePromo detaches the applied promo. Removing from a cart without a
// promo is a no-op.
func (s *Service) RemovePromo(ctx context.Context, owner Owner, cartID uuid.UUID) (View, error) {
	if owner.IsZero() {
		return View{}, ownerRequired()
	}
	err := s.mutate(ctx, owner, cartID, func(ctx context.Context, c Cart) error {
		if c.AppliedPromoCodeID == nil {
			return nil
		}
		return s.Store.ClearPromo(ctx, c.ID)
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx, owner, cartID)
}

// mutate runs fn on the owned cart under the per-cart lock and extends the
// cart's expiry afterwards.
func (s *Service) mutate(ctx context.Context, owner Owner, cartID uuid.UUID, fn func(context.Context, Cart) error) error {
	run := func(ctx context.Context) error {
		c, err := s.loadOwned(ctx, owner, cartID)
		if err != nil {
			return err
		}
		if err := fn(ctx, c); err != nil {
			return err
		}
		if err := s.Store.Touch(ctx, c.ID, s.now().Add(s.ttl())); err != nil {
			s.Logger.Warn().Err(err).Str("cart_id", c.ID.String()).Msg("cart_touch_failed")
		}
		return nil
	}
	if s.Lock == nil {
		return run(ctx)
	}
	err := s.Lock.WithLock(ctx, s.Lock.Key("cart", cartID.String()), s.lockTTL(), run)
	if errors.Is(err, lock.ErrNotAcquired) {
		return common.Conflict("CART_BUSY", ErrBusy, "Cart is being updated. Please retry.")
	}
	return err
}

func (s *Service) loadOwned(ctx context.Context, owner Owner, cartID uuid.UUID) (Cart, error) {
	c, err := s.Store.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Cart{}, cartNotFound(err)
		}
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	if !c.OwnedBy(owner) {
		return Cart{}, notOwner()
	}
	if c.ExpiresAt.Before(s.now()) {
		return Cart{}, cartNotFound(ErrNotFound)
	}
	return c, nil
}

func (s *Service) ownedItem(ctx context.Context, c Cart, itemID uuid.UUID) error {
	it, err := s.Store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return itemNotFound(err)
		}
		return fmt.Errorf("load cart item: %w", err)
	}
	if it.CartID != c.ID {
		return notOwner()
	}
	return nil
}

func (s *Service) deleteItem(ctx context.Context, itemID uuid.UUID) error {
	if err := s.Store.DeleteItem(ctx, itemID); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return itemNotFound(err)
		}
		return err
	}
	return nil
}

func (s *Service) price(ctx context.Context, c Cart) (View, error) {
	items, err := s.Store.ListItems(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	v := View{Cart: c, Items: items}

	var warning string
	if c.AppliedPromoCodeID != nil {
		pc, err := s.Promos.ByID(ctx, *c.AppliedPromoCodeID)
		switch {
		case err == nil:
			v.Promo = &pc
		case errors.Is(err, promo.ErrNotFound):
			warning = promo.MsgInvalid
		default:
			return View{}, err
		}
	}

	var costs map[uuid.UUID]shipping.Cost
	if len(items) > 0 && s.Shipping != nil {
		costs, err = shipping.QuoteAll(ctx, s.Shipping, ShippingRequests(items))
		if err != nil {
			return View{}, err
		}
	}
	v.Quote = s.Pricing.Quote(pricing.Input{
		Items:    PricingItems(items),
		Promo:    v.Promo,
		Shipping: costs,
		AsOf:     s.now(),
	})
	if v.Quote.PromoWarning == "" {
		v.Quote.PromoWarning = warning
	}
	return v, nil
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
