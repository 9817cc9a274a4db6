package cart

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/marketplace-pricing/internal/catalog"
	"github.com/noah-isme/marketplace-pricing/internal/commission"
	"github.com/noah-isme/marketplace-pricing/internal/lock"
	"github.com/noah-isme/marketplace-pricing/internal/money"
	"github.com/noah-isme/marketplace-pricing/internal/pricing"
	"github.com/noah-isme/marketplace-pricing/internal/promo"
	"github.com/noah-isme/marketplace-pricing/internal/shipping"
)

var (
	testNow  = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	storeA   = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	storeB   = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
	buyerOne = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	buyerTwo = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

type memStore struct {
	mu    sync.Mutex
	carts map[uuid.UUID]Cart
	items map[uuid.UUID]Item
	seq   int
	calls int
}

func newMemStore() *memStore {
	return &memStore{carts: map[uuid.UUID]Cart{}, items: map[uuid.UUID]Item{}}
}

func (s *memStore) touch() {
	s.calls++
}

func (s *memStore) GetCart(_ context.Context, id uuid.UUID) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	c, ok := s.carts[id]
	if !ok {
		return Cart{}, ErrNotFound
	}
	return c, nil
}

func (s *memStore) GetByBuyer(_ context.Context, buyerID uuid.UUID) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	for _, c := range s.carts {
		if c.BuyerID != nil && *c.BuyerID == buyerID {
			return c, nil
		}
	}
	return Cart{}, ErrNotFound
}

func (s *memStore) GetByAnon(_ context.Context, anonID string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	for _, c := range s.carts {
		if c.AnonID != nil && *c.AnonID == anonID {
			return c, nil
		}
	}
	return Cart{}, ErrNotFound
}

func (s *memStore) CreateCart(_ context.Context, c Cart) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	for _, existing := range s.carts {
		if c.BuyerID != nil && existing.BuyerID != nil && *existing.BuyerID == *c.BuyerID {
			return Cart{}, ErrDuplicateCart
		}
		if c.AnonID != nil && existing.AnonID != nil && *existing.AnonID == *c.AnonID {
			return Cart{}, ErrDuplicateCart
		}
	}
	c.CreatedAt = testNow
	c.UpdatedAt = testNow
	s.carts[c.ID] = c
	return c, nil
}

func (s *memStore) ClaimCart(_ context.Context, cartID, buyerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	c, ok := s.carts[cartID]
	if !ok || c.BuyerID != nil {
		return ErrNotOwner
	}
	c.BuyerID = &buyerID
	c.Version++
	s.carts[cartID] = c
	return nil
}

func (s *memStore) Touch(_ context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	c := s.carts[cartID]
	c.ExpiresAt = expiresAt
	s.carts[cartID] = c
	return nil
}

func (s *memStore) SetPromo(_ context.Context, cartID, promoID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	c := s.carts[cartID]
	if c.AppliedPromoCodeID != nil {
		return false, nil
	}
	c.AppliedPromoCodeID = &promoID
	c.Version++
	s.carts[cartID] = c
	return true, nil
}

func (s *memStore) ClearPromo(_ context.Context, cartID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	c := s.carts[cartID]
	c.AppliedPromoCodeID = nil
	c.Version++
	s.carts[cartID] = c
	return nil
}

func (s *memStore) ListItems(_ context.Context, cartID uuid.UUID) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	var out []Item
	for _, it := range s.items {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, func(a, b Item) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *memStore) GetItem(_ context.Context, itemID uuid.UUID) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	it, ok := s.items[itemID]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (s *memStore) AddItem(_ context.Context, it Item) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	for id, existing := range s.items {
		if existing.CartID == it.CartID && existing.ProductID == it.ProductID {
			existing.Quantity += it.Quantity
			s.items[id] = existing
			return existing, nil
		}
	}
	s.seq++
	it.CreatedAt = testNow.Add(time.Duration(s.seq) * time.Second)
	s.items[it.ID] = it
	return it, nil
}

func (s *memStore) SetQuantity(_ context.Context, itemID uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	it, ok := s.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	it.Quantity = qty
	s.items[itemID] = it
	return nil
}

func (s *memStore) DeleteItem(_ context.Context, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if _, ok := s.items[itemID]; !ok {
		return ErrItemNotFound
	}
	delete(s.items, itemID)
	return nil
}

func (s *memStore) ClearItems(_ context.Context, cartID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	for id, it := range s.items {
		if it.CartID == cartID {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *memStore) cart(id uuid.UUID) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[id]
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]catalog.Product
}

func (f *fakeCatalog) Product(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeCatalog) add(store uuid.UUID, storeName, title, price string, active bool) catalog.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := catalog.Product{ID: uuid.New(), StoreID: store, StoreName: storeName, Title: title, Price: money.MustParse(price), IsActive: active}
	f.products[p.ID] = p
	return p
}

func (f *fakeCatalog) setPrice(id uuid.UUID, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[id]
	p.Price = money.MustParse(price)
	f.products[id] = p
}

type promoStore struct {
	mu    sync.Mutex
	codes map[uuid.UUID]promo.Code
}

func (s *promoStore) GetByCode(_ context.Context, code string) (promo.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return promo.Code{}, promo.ErrNotFound
}

func (s *promoStore) GetByID(_ context.Context, id uuid.UUID) (promo.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok {
		return promo.Code{}, promo.ErrNotFound
	}
	return c, nil
}

func (s *promoStore) Create(_ context.Context, c promo.Code) (promo.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[c.ID] = c
	return c, nil
}

func (s *promoStore) Update(ctx context.Context, c promo.Code) (promo.Code, error) {
	return s.Create(ctx, c)
}

type fixture struct {
	redis   *miniredis.Miniredis
	svc     *Service
	store   *memStore
	catalog *fakeCatalog
	promos  *promoStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		redis:   mr,
		store:   newMemStore(),
		catalog: &fakeCatalog{products: map[uuid.UUID]catalog.Product{}},
		promos:  &promoStore{codes: map[uuid.UUID]promo.Code{}},
	}
	clock := func() time.Time { return testNow }
	f.svc = &Service{
		Store:    f.store,
		Products: f.catalog,
		Promos:   &promo.Service{Store: f.promos, Now: clock},
		Shipping: shipping.FlatRate{Rate: money.MustParse("5.00"), FreeThreshold: money.MustParse("100.00")},
		Pricing:  pricing.NewEngine(commission.Default()),
		Lock:     lock.Locker{R: client, Prefix: "lock", RetryBackoff: 2 * time.Millisecond, MaxWait: 2 * time.Second},
		Now:      clock,
		Logger:   zerolog.Nop(),
	}
	return f
}

func (f *fixture) addPromo(c promo.Code) promo.Code {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.StartDate.IsZero() {
		c.StartDate = testNow.Add(-24 * time.Hour)
	}
	c.IsActive = true
	f.promos.mu.Lock()
	f.promos.codes[c.ID] = c
	f.promos.mu.Unlock()
	return c
}

func (f *fixture) buyerCart(t *testing.T, buyer uuid.UUID) Cart {
	t.Helper()
	c, err := f.svc.ResolveCart(context.Background(), Owner{BuyerID: buyer})
	if err != nil {
		t.Fatalf("resolve cart: %v", err)
	}
	return c
}

func percent(code, value string) promo.Code {
	return promo.Code{Code: code, DiscountType: promo.Percentage, DiscountValue: money.MustParse(value), Scope: promo.ScopePlatform}
}

func dec(s string) decimal.Decimal { return money.MustParse(s) }
