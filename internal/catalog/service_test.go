package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketplace-pricing/internal/money"
)

type countingStore struct {
	products map[uuid.UUID]Product
	calls    int
}

func (s *countingStore) GetProduct(_ context.Context, id uuid.UUID) (Product, error) {
	s.calls++
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func newService(t *testing.T, products ...Product) (*Service, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &countingStore{products: map[uuid.UUID]Product{}}
	for _, p := range products {
		store.products[p.ID] = p
	}
	return &Service{Store: store, Cache: NewCache(client, time.Minute), Logger: zerolog.Nop()}, store, mr
}

func sampleProduct() Product {
	return Product{
		ID:        uuid.New(),
		StoreID:   uuid.New(),
		StoreName: "Kopi Kita",
		Title:     "Arabica 250g",
		Price:     money.MustParse("12.50"),
		IsActive:  true,
	}
}

func TestServiceReadsThroughCache(t *testing.T) {
	p := sampleProduct()
	svc, store, mr := newService(t, p)

	got, err := svc.Product(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, p.Price.Equal(got.Price))
	require.True(t, mr.Exists(ProductKey(p.ID)))

	got, err = svc.Product(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Title, got.Title)
	require.Equal(t, 1, store.calls)

	mr.FastForward(2 * time.Minute)
	_, err = svc.Product(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, store.calls)
}

func TestServiceSurvivesCacheOutage(t *testing.T) {
	p := sampleProduct()
	svc, store, mr := newService(t, p)
	mr.Close()

	got, err := svc.Product(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, 1, store.calls)
}

func TestServiceNotFound(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Product(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductDetailHandler(t *testing.T) {
	p := sampleProduct()
	svc, _, _ := newService(t, p)
	r := chi.NewRouter()
	r.Get("/products/{id}", (&Handler{Svc: svc}).ProductDetail)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/"+p.ID.String(), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"price":"12.50"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
