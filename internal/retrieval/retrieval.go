package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/stone-age-io/snow-inventory/internal/cache"
	"github.com/stone-age-io/snow-inventory/internal/inventory"
	"go.uber.org/zap"
)

// Source tells where a served inventory came from
type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
)

// Fetcher retrieves the raw records from the CMDB
type Fetcher interface {
	FetchRecords(ctx context.Context) ([]inventory.Record, error)
}

// Notifier is told about every rebuilt inventory
type Notifier interface {
	InventoryRefreshed(ctx context.Context, inv *inventory.Inventory) error
}

// Options controls one retrieval cycle
type Options struct {
	CacheDir     string
	MaxAge       time.Duration
	Lock         bool
	ForceRefresh bool
}

// Result describes how the inventory was produced
type Result struct {
	Source    Source
	CachePath string
	Hosts     int
	Groups    int
	Duration  time.Duration
}

// Retriever serves the inventory from the cache when it is fresh and
// rebuilds it from the CMDB otherwise.
type Retriever struct {
	opts      Options
	gate      *cache.Gate
	fetcher   Fetcher
	builder   inventory.Builder
	predicate inventory.Predicate
	notifier  Notifier
	logger    *zap.Logger
}

// New creates a retriever. predicate may be nil to accept every record.
func New(opts Options, fetcher Fetcher, builder inventory.Builder, predicate inventory.Predicate, logger *zap.Logger) *Retriever {
	if predicate == nil {
		predicate = inventory.Always
	}
	return &Retriever{
		opts:      opts,
		gate:      cache.NewGate(),
		fetcher:   fetcher,
		builder:   builder,
		predicate: predicate,
		logger:    logger,
	}
}

// WithNotifier sets the notifier called after each rebuild
func (r *Retriever) WithNotifier(n Notifier) *Retriever {
	r.notifier = n
	return r
}

// Retrieve runs one cycle: check freshness, then either load the cache or
// fetch, build and persist. Any failure ends the cycle; a corrupt cache is
// reported rather than silently refetched.
func (r *Retriever) Retrieve(ctx context.Context) (*inventory.Inventory, Result, error) {
	start := time.Now()
	res := Result{}

	path, err := cache.Path(r.opts.CacheDir)
	if err != nil {
		return nil, res, fmt.Errorf("failed to prepare cache: %w", err)
	}
	res.CachePath = path

	if r.opts.Lock {
		lock, err := cache.Lock(path)
		if err != nil {
			return nil, res, err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				r.logger.Warn("Failed to release cache lock", zap.String("path", lock.Path()), zap.Error(err))
			}
		}()
	}

	var inv *inventory.Inventory
	if !r.opts.ForceRefresh && r.gate.IsValid(path, r.opts.MaxAge) {
		res.Source = SourceCache
		inv, err = r.fromCache(path)
	} else {
		res.Source = SourceUpstream
		inv, err = r.rebuild(ctx, path)
	}
	res.Duration = time.Since(start)
	if err != nil {
		return nil, res, err
	}

	res.Hosts = inv.HostCount()
	res.Groups = len(inv.Groups)

	r.logger.Info("Inventory ready",
		zap.String("source", string(res.Source)),
		zap.Int("hosts", res.Hosts),
		zap.Int("groups", res.Groups),
		zap.Duration("duration", res.Duration))

	return inv, res, nil
}

func (r *Retriever) fromCache(path string) (*inventory.Inventory, error) {
	age, _ := r.gate.Age(path)
	r.logger.Debug("Serving inventory from cache",
		zap.String("path", path),
		zap.Duration("age", age),
		zap.Duration("max_age", r.opts.MaxAge))

	inv, err := r.gate.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached inventory: %w", err)
	}
	return inv, nil
}

func (r *Retriever) rebuild(ctx context.Context, path string) (*inventory.Inventory, error) {
	r.logger.Debug("Cache stale or disabled, querying ServiceNow",
		zap.String("path", path),
		zap.Bool("forced", r.opts.ForceRefresh))

	records, err := r.fetcher.FetchRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}

	inv, err := r.builder.Build(records, r.predicate)
	if err != nil {
		return nil, fmt.Errorf("failed to build inventory: %w", err)
	}

	if err := r.gate.Persist(inv, path); err != nil {
		return nil, fmt.Errorf("failed to persist inventory: %w", err)
	}
	r.logger.Debug("Cache updated", zap.String("path", path), zap.Int("records", len(records)))

	if r.notifier != nil {
		if err := r.notifier.InventoryRefreshed(ctx, inv); err != nil {
			r.logger.Warn("Failed to announce inventory refresh", zap.Error(err))
		}
	}

	return inv, nil
}
