package checkout

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/marketplace-pricing/internal/cart"
	"github.com/noah-isme/marketplace-pricing/internal/commission"
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

	errInsertFailed = errors.New("insert failed")
)

// memUnit is an in-memory UnitOfWork. A failed Do restores the state it saw
// on entry.
type memUnit struct {
	mu          sync.Mutex
	carts       map[uuid.UUID]cart.Cart
	items       map[uuid.UUID][]cart.Item
	promos      map[uuid.UUID]promo.Code
	usage       map[uuid.UUID]int32
	orders      map[uuid.UUID]Order
	orderItems  map[uuid.UUID][]cart.Item
	commissions map[uuid.UUID][]commission.Result

	failCommissions bool
	calls           int
	inTx            atomic.Bool
}

func newMemUnit() *memUnit {
	return &memUnit{
		carts:       map[uuid.UUID]cart.Cart{},
		items:       map[uuid.UUID][]cart.Item{},
		promos:      map[uuid.UUID]promo.Code{},
		usage:       map[uuid.UUID]int32{},
		orders:      map[uuid.UUID]Order{},
		orderItems:  map[uuid.UUID][]cart.Item{},
		commissions: map[uuid.UUID][]commission.Result{},
	}
}

func (u *memUnit) Do(ctx context.Context, fn func(context.Context, Stores) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.inTx.Store(true)
	defer u.inTx.Store(false)
	carts, items, usage := maps.Clone(u.carts), maps.Clone(u.items), maps.Clone(u.usage)
	orders, orderItems, commissions := maps.Clone(u.orders), maps.Clone(u.orderItems), maps.Clone(u.commissions)
	err := fn(ctx, Stores{Carts: memCarts{u}, Promos: memPromos{u}, Orders: memOrders{u}})
	if err != nil {
		u.carts, u.items, u.usage = carts, items, usage
		u.orders, u.orderItems, u.commissions = orders, orderItems, commissions
	}
	return err
}

// GetCart and ListItems serve the read taken before the transaction.
func (u *memUnit) GetCart(_ context.Context, id uuid.UUID) (cart.Cart, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	c, ok := u.carts[id]
	if !ok {
		return cart.Cart{}, cart.ErrNotFound
	}
	return c, nil
}

func (u *memUnit) ListItems(_ context.Context, cartID uuid.UUID) ([]cart.Item, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]cart.Item(nil), u.items[cartID]...), nil
}

type memCarts struct{ u *memUnit }

func (m memCarts) GetCartForUpdate(_ context.Context, id uuid.UUID) (cart.Cart, error) {
	c, ok := m.u.carts[id]
	if !ok {
		return cart.Cart{}, cart.ErrNotFound
	}
	return c, nil
}

func (m memCarts) ListItems(_ context.Context, cartID uuid.UUID) ([]cart.Item, error) {
	return append([]cart.Item(nil), m.u.items[cartID]...), nil
}

func (m memCarts) ClearItems(_ context.Context, cartID uuid.UUID) error {
	delete(m.u.items, cartID)
	return nil
}

func (m memCarts) ClearPromo(_ context.Context, cartID uuid.UUID) error {
	c := m.u.carts[cartID]
	c.AppliedPromoCodeID = nil
	c.Version++
	m.u.carts[cartID] = c
	return nil
}

type memPromos struct{ u *memUnit }

func (m memPromos) GetByID(_ context.Context, id uuid.UUID) (promo.Code, error) {
	c, ok := m.u.promos[id]
	if !ok {
		return promo.Code{}, promo.ErrNotFound
	}
	return c, nil
}

// IncrementUsage checks the limit against the live counter, which may be
// ahead of the copy GetByID returned.
func (m memPromos) IncrementUsage(_ context.Context, id uuid.UUID) (bool, error) {
	c := m.u.promos[id]
	if c.UsageLimit != nil && m.u.usage[id] >= *c.UsageLimit {
		return false, nil
	}
	m.u.usage[id]++
	return true, nil
}

type memOrders struct{ u *memUnit }

func (m memOrders) InsertOrder(_ context.Context, o Order) error {
	m.u.orders[o.ID] = o
	return nil
}

func (m memOrders) InsertItems(_ context.Context, orderID uuid.UUID, items []cart.Item) error {
	m.u.orderItems[orderID] = items
	return nil
}

func (m memOrders) InsertCommissions(_ context.Context, orderID uuid.UUID, results []commission.Result) error {
	if m.u.failCommissions {
		return errInsertFailed
	}
	m.u.commissions[orderID] = results
	return nil
}

type fakeEnqueuer struct {
	mu     sync.Mutex
	orders []uuid.UUID
	err    error
}

func (f *fakeEnqueuer) EnqueueOrderPlaced(_ context.Context, orderID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.orders = append(f.orders, orderID)
	return nil
}

type fixture struct {
	unit  *memUnit
	queue *fakeEnqueuer
	svc   *Service
}

func newFixture() *fixture {
	unit := newMemUnit()
	queue := &fakeEnqueuer{}
	return &fixture{
		unit:  unit,
		queue: queue,
		svc: &Service{
			Unit:  unit,
			Carts: unit,
			Shipping: shipping.FlatRate{
				Rate:          money.MustParse("5.00"),
				FreeThreshold: money.MustParse("100.00"),
			},
			Pricing:  pricing.NewEngine(commission.Default()),
			Payouts:  queue,
			Currency: "USD",
			Now:      func() time.Time { return testNow },
		},
	}
}

// buyerCart seeds a cart for buyer holding 2 × 30.00 from store A and
// 1 × 45.00 from store B.
func (f *fixture) buyerCart(buyer uuid.UUID) cart.Cart {
	c := cart.Cart{ID: uuid.New(), BuyerID: &buyer, ExpiresAt: testNow.Add(time.Hour)}
	f.unit.carts[c.ID] = c
	f.unit.items[c.ID] = []cart.Item{
		{ID: uuid.New(), CartID: c.ID, ProductID: uuid.New(), StoreID: storeA, StoreName: "Alpha", Title: "Mug", Quantity: 2, UnitPrice: money.MustParse("30.00")},
		{ID: uuid.New(), CartID: c.ID, ProductID: uuid.New(), StoreID: storeB, StoreName: "Beta", Title: "Lamp", Quantity: 1, UnitPrice: money.MustParse("45.00")},
	}
	return c
}

func (f *fixture) applyPromo(c cart.Cart, pc promo.Code) {
	f.unit.promos[pc.ID] = pc
	f.unit.usage[pc.ID] = pc.UsageCount
	c.AppliedPromoCodeID = &pc.ID
	f.unit.carts[c.ID] = c
}

func percentCode(code, value string) promo.Code {
	return promo.Code{
		ID:            uuid.New(),
		Code:          code,
		DiscountType:  promo.Percentage,
		DiscountValue: money.MustParse(value),
		Scope:         promo.ScopePlatform,
		StartDate:     testNow.Add(-24 * time.Hour),
		IsActive:      true,
	}
}

// hookQuoter wraps a quoter, records whether it was called inside a
// transaction and runs before once ahead of the first quote.
type hookQuoter struct {
	next   shipping.Quoter
	unit   *memUnit
	before func()

	once     sync.Once
	mu       sync.Mutex
	calls    int
	txQuotes int
}

func (q *hookQuoter) Quote(ctx context.Context, req shipping.Request) (shipping.Cost, error) {
	q.mu.Lock()
	q.calls++
	if q.unit.inTx.Load() {
		q.txQuotes++
	}
	q.mu.Unlock()
	if q.before != nil {
		q.once.Do(q.before)
	}
	return q.next.Quote(ctx, req)
}
