package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/marketplace-pricing/internal/auth"
	"github.com/noah-isme/marketplace-pricing/internal/db"
)

// Fixed ids keep reruns idempotent and give stable fixtures for manual testing.
var (
	storeAlpha = uuid.MustParse("5e1f0000-0000-4000-8000-00000000000a")
	storeBeta  = uuid.MustParse("5e1f0000-0000-4000-8000-00000000000b")
	adminBuyer = uuid.MustParse("b0e70000-0000-4000-8000-000000000001")
	demoBuyer  = uuid.MustParse("b0e70000-0000-4000-8000-000000000002")
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, db.PoolConfig{URL: dbURL, ApplicationName: "seeder"})
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}
	defer pool.Close()

	seedStores(ctx, pool)
	seedProducts(ctx, pool)
	seedPromoCodes(ctx, pool)
	printTokens()

	log.Println("Seeding completed successfully!")
}

func seedStores(ctx context.Context, pool *pgxpool.Pool) {
	stores := []struct {
		ID   uuid.UUID
		Name string
	}{
		{storeAlpha, "Alpha Outfitters"},
		{storeBeta, "Beta Electronics"},
	}

	fmt.Println("Seeding Stores...")
	for _, s := range stores {
		_, err := pool.Exec(ctx, `
			INSERT INTO stores (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name;
		`, s.ID, s.Name)
		if err != nil {
			log.Printf("Failed to seed store %s: %v", s.Name, err)
		}
	}
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) {
	products := []struct {
		ID    string
		Store uuid.UUID
		Title string
		Price string
	}{
		{"9a0d0000-0000-4000-8000-000000000001", storeAlpha, "Trail Running Shoes", "89.90"},
		{"9a0d0000-0000-4000-8000-000000000002", storeAlpha, "Merino Hiking Socks", "14.50"},
		{"9a0d0000-0000-4000-8000-000000000003", storeAlpha, "Packable Rain Jacket", "120.00"},
		{"9a0d0000-0000-4000-8000-000000000004", storeBeta, "Noise Cancelling Headphones", "249.99"},
		{"9a0d0000-0000-4000-8000-000000000005", storeBeta, "USB-C Charger 65W", "39.00"},
		{"9a0d0000-0000-4000-8000-000000000006", storeBeta, "Mechanical Keyboard", "129.00"},
	}

	fmt.Println("Seeding Products...")
	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, store_id, title, price)
			VALUES ($1, $2, $3, $4::numeric)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				price = EXCLUDED.price,
				updated_at = now();
		`, uuid.MustParse(p.ID), p.Store, p.Title, p.Price)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.Title, err)
		}
	}
}

func seedPromoCodes(ctx context.Context, pool *pgxpool.Pool) {
	codes := []struct {
		Code     string
		Type     string
		Value    string
		Scope    string
		Store    *uuid.UUID
		Limit    *int
		MinOrder *string
		MaxDisc  *string
	}{
		{Code: "WELCOME10", Type: "percentage", Value: "10", Scope: "platform", MaxDisc: strPtr("25.00")},
		{Code: "FLAT5", Type: "fixed_amount", Value: "5.00", Scope: "platform", MinOrder: strPtr("30.00")},
		{Code: "ALPHA20", Type: "percentage", Value: "20", Scope: "seller", Store: &storeAlpha, Limit: intPtr(100)},
	}

	fmt.Println("Seeding Promo Codes...")
	for _, c := range codes {
		_, err := pool.Exec(ctx, `
			INSERT INTO promo_codes (id, code, discount_type, discount_value, scope, store_id, start_date, end_date,
				usage_limit, minimum_order_amount, max_discount_amount)
			VALUES ($1, $2, $3, $4::numeric, $5, $6, now(), now() + INTERVAL '1 year', $7, $8::numeric, $9::numeric)
			ON CONFLICT DO NOTHING;
		`, uuid.New(), c.Code, c.Type, c.Value, c.Scope, c.Store, c.Limit, c.MinOrder, c.MaxDisc)
		if err != nil {
			log.Printf("Failed to seed promo code %s: %v", c.Code, err)
		}
	}
}

// printTokens emits bearer tokens for local requests when JWT_SECRET is set.
func printTokens() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return
	}
	v := auth.NewVerifier(secret, os.Getenv("JWT_ISSUER"), os.Getenv("JWT_AUDIENCE"))
	admin, err := v.Sign(adminBuyer, []string{auth.RoleAdmin}, 24*time.Hour)
	if err != nil {
		log.Printf("Failed to sign admin token: %v", err)
		return
	}
	buyer, err := v.Sign(demoBuyer, nil, 24*time.Hour)
	if err != nil {
		log.Printf("Failed to sign buyer token: %v", err)
		return
	}
	fmt.Printf("Admin token (%s):\n%s\n", adminBuyer, admin)
	fmt.Printf("Buyer token (%s):\n%s\n", demoBuyer, buyer)
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
