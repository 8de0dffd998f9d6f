// Command seed-db loads demo reference data and an API key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-order-api/internal/domain/auth"
	"github.com/xenking/sales-order-api/internal/domain/catalog"
	"github.com/xenking/sales-order-api/internal/domain/customer"
	"github.com/xenking/sales-order-api/internal/domain/money"
	"github.com/xenking/sales-order-api/internal/handler"
	"github.com/xenking/sales-order-api/internal/storage/postgres"
)

type seedFile struct {
	Customers []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"customers"`
	Items []struct {
		SKU   string          `json:"sku"`
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
	} `json:"items"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to the customers and catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or SALES_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SALES_APIKEYPEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SALES_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SALES_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SALES_APIKEYPEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, apiKey, pepper string) error {
	seed, err := readSeed(seedPath)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL, 2)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	customers := make([]customer.Customer, len(seed.Customers))
	for i, c := range seed.Customers {
		customers[i] = customer.Customer{ID: c.ID, Name: c.Name}
	}
	if err := postgres.NewCustomerRepository(pool).Upsert(ctx, customers...); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	slog.Info("upserted customers", slog.Int("count", len(customers)))

	items := postgres.NewCatalogRepository(pool)
	for _, it := range seed.Items {
		id, err := items.Upsert(ctx, catalog.Item{SKU: it.SKU, Name: it.Name, Price: it.Price})
		if err != nil {
			return errors.Wrapf(err, "upsert catalog item %s", it.SKU)
		}
		slog.Info("upserted catalog item",
			slog.Int64("id", id),
			slog.String("sku", it.SKU),
			slog.String("price", it.Price.String()),
		)
	}

	key := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: handler.HashKey([]byte(pepper), apiKey),
		Name:    "Default key",
		Scopes:  []string{auth.ScopeOrders},
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("upserted API key", slog.String("id", key.ID), slog.String("name", key.Name))

	return nil
}

func readSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, errors.Wrap(err, "parse seed file")
	}
	for _, it := range seed.Items {
		if it.Price.IsNegative() {
			return nil, errors.Errorf("catalog item %s has negative price %s", it.SKU, it.Price)
		}
		if !money.FitsScale(it.Price, money.DefaultScale) {
			return nil, errors.Errorf("catalog item %s price %s has more than %d fractional digits", it.SKU, it.Price, money.DefaultScale)
		}
	}
	return &seed, nil
}
