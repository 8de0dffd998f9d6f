// Command catalog-import upserts catalog items from gzipped NDJSON feeds.
//
// Each feed line is {"sku":"SKU-001","name":"Blue Widget","price":"19.99"}.
// Feeds are decoded concurrently and written by a single writer, so when a
// SKU appears more than once the last line written wins. Repeated SKUs are
// reported through a bloom filter and may include rare false positives.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/sales-order-api/internal/domain/catalog"
	"github.com/xenking/sales-order-api/internal/domain/money"
	"github.com/xenking/sales-order-api/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000
	maxLineBytes  = 1 << 20
)

// upserter stores one catalog item and returns its ID.
type upserter interface {
	Upsert(ctx context.Context, it catalog.Item) (int64, error)
}

type feedItem struct {
	item   catalog.Item
	source string
	line   int
}

type options struct {
	// capacity is the expected number of distinct SKUs.
	capacity uint
	// scale is the number of fractional digits a price may carry.
	scale int32
}

type stats struct {
	written    int
	skipped    int64
	duplicates int
}

func main() {
	var (
		pattern     string
		databaseURL string
		capacity    uint
		scale       int
	)

	flag.StringVar(&pattern, "feeds", "data/*.ndjson.gz", "glob matching gzipped NDJSON catalog feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&capacity, "expected-items", 1_000_000, "expected number of distinct SKUs, sizes the duplicate filter")
	flag.IntVar(&scale, "money-scale", int(money.DefaultScale), "fractional digits a price may carry, must match the API's Orders.MoneyScale")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if scale < 0 {
		slog.Error("money scale must not be negative", slog.Int("scale", scale))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL, options{capacity: capacity, scale: int32(scale)}); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, opts options) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "match feeds %q", pattern)
	}
	if len(files) == 0 {
		return errors.Errorf("no feeds match %q", pattern)
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL, 4)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	st, err := importFeeds(ctx, files, postgres.NewCatalogRepository(pool), opts)
	if err != nil {
		return err
	}
	slog.Info("import summary",
		slog.Int("feeds", len(files)),
		slog.Int("written", st.written),
		slog.Int64("skipped", st.skipped),
		slog.Int("probable_duplicates", st.duplicates),
	)
	return nil
}

// importFeeds decodes every feed concurrently and upserts the items through
// a single writer.
func importFeeds(ctx context.Context, files []string, store upserter, opts options) (stats, error) {
	var (
		st      stats
		skipped atomic.Int64
		items   = make(chan feedItem, 256)
	)

	g, gctx := errgroup.WithContext(ctx)

	readers, rctx := errgroup.WithContext(gctx)
	for _, f := range files {
		readers.Go(func() error {
			return streamFeed(rctx, f, opts.scale, items, &skipped)
		})
	}
	g.Go(func() error {
		defer close(items)
		return readers.Wait()
	})

	g.Go(func() error {
		seen := bloom.NewWithEstimates(max(opts.capacity, 1), bloomFPR)
		for fi := range items {
			if seen.TestAndAddString(fi.item.SKU) {
				st.duplicates++
				slog.Warn("probable duplicate sku",
					slog.String("sku", fi.item.SKU),
					slog.String("feed", fi.source),
					slog.Int("line", fi.line),
				)
			}
			if _, err := store.Upsert(gctx, fi.item); err != nil {
				return errors.Wrapf(err, "%s:%d", fi.source, fi.line)
			}
			st.written++
			if st.written%progressEvery == 0 {
				slog.Info("write progress", slog.Int("written", st.written))
			}
		}
		return nil
	})

	err := g.Wait()
	st.skipped = skipped.Load()
	return st, err
}

// streamFeed sends every valid line of a gzipped NDJSON feed to out.
// Malformed lines are logged and counted, not fatal.
func streamFeed(ctx context.Context, path string, scale int32, out chan<- feedItem, skipped *atomic.Int64) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		it, err := parseItem(raw, scale)
		if err != nil {
			skipped.Add(1)
			slog.Warn("skipping feed line",
				slog.String("feed", path),
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			continue
		}
		select {
		case out <- feedItem{item: it, source: path, line: line}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	slog.Info("feed complete", slog.String("feed", path), slog.Int("lines", line))
	return nil
}

// parseItem decodes one feed line. Price may be a JSON string or number and
// must not carry more than scale fractional digits.
func parseItem(raw []byte, scale int32) (catalog.Item, error) {
	var (
		it       catalog.Item
		hasPrice bool
	)
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "sku":
			it.SKU, err = d.Str()
		case "name":
			it.Name, err = d.Str()
		case "price":
			it.Price, err = decodePrice(d)
			hasPrice = err == nil
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return catalog.Item{}, errors.Wrap(err, "decode")
	}

	switch {
	case it.SKU == "":
		return catalog.Item{}, errors.New("sku is required")
	case it.Name == "":
		return catalog.Item{}, errors.New("name is required")
	case !hasPrice:
		return catalog.Item{}, errors.New("price is required")
	case it.Price.IsNegative():
		return catalog.Item{}, errors.Errorf("price %s is negative", it.Price)
	case !money.FitsScale(it.Price, scale):
		return catalog.Item{}, errors.Errorf("price %s has more than %d fractional digits", it.Price, scale)
	}
	return it, nil
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.New("price must be a string or number")
	}
}
