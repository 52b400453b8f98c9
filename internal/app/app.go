package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/stone-age-io/snow-inventory/internal/config"
	"github.com/stone-age-io/snow-inventory/internal/inventory"
	"github.com/stone-age-io/snow-inventory/internal/logging"
	"github.com/stone-age-io/snow-inventory/internal/metrics"
	natsclient "github.com/stone-age-io/snow-inventory/internal/nats"
	"github.com/stone-age-io/snow-inventory/internal/retrieval"
	"github.com/stone-age-io/snow-inventory/internal/snow"
	"go.uber.org/zap"
)

// Options are the command-line choices for one invocation
type Options struct {
	ConfigPath   string
	Host         string // non-empty selects --host mode
	RefreshCache bool
}

// Run loads configuration, retrieves the inventory and writes it to out as
// JSON indented by four spaces. Nothing is written to out on failure.
func Run(ctx context.Context, opts Options, out io.Writer) error {
	cfg, err := config.Load(resolveConfigPath(opts.ConfigPath))
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	r := NewRetriever(cfg, opts.RefreshCache, logger)

	inv, res, err := r.Retrieve(ctx)
	writeMetrics(cfg.Metrics, res, err == nil, logger)
	if err != nil {
		logFailure(logger, err)
		return err
	}

	var doc any = inv
	if opts.Host != "" {
		doc = inv.HostVars(opts.Host)
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to render inventory: %w", err)
	}
	data = append(data, '\n')

	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("failed to write inventory: %w", err)
	}
	return nil
}

// NewRetriever wires the retrieval cycle from configuration
func NewRetriever(cfg *config.Config, refresh bool, logger *zap.Logger) *retrieval.Retriever {
	builder := inventory.Builder{
		DefaultGroup: cfg.Inventory.DefaultGroup,
		DefaultVars:  cfg.Inventory.DefaultVars,
		Classifier:   inventory.Classifier{HostVarFields: cfg.Inventory.HostVars},
	}
	predicate := inventory.FromFilter(cfg.Filter.Match, cfg.Filter.Groups)

	r := retrieval.New(retrieval.Options{
		CacheDir:     cfg.Cache.Dir,
		MaxAge:       cfg.Cache.MaxAge(),
		Lock:         cfg.Cache.Lock,
		ForceRefresh: refresh,
	}, snow.NewClient(cfg.ServiceNow, logger), builder, predicate, logger)

	if cfg.NATS.Enabled {
		r.WithNotifier(natsclient.NewNotifier(cfg.NATS, logger))
	}
	return r
}

// resolveConfigPath falls back to the platform config file when it exists
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if def := config.GetDefaultConfigPath(); fileExists(def) {
		return def
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func writeMetrics(cfg config.MetricsConfig, res retrieval.Result, ok bool, logger *zap.Logger) {
	if !cfg.Enabled {
		return
	}

	stats := metrics.RunStats{
		Timestamp: time.Now(),
		Duration:  res.Duration,
		Source:    string(res.Source),
		Hosts:     res.Hosts,
		Groups:    res.Groups,
		Success:   ok,
	}
	if err := metrics.WriteTextfile(cfg.Textfile, stats); err != nil {
		logger.Warn("Failed to write metrics textfile", zap.String("path", cfg.Textfile), zap.Error(err))
	}
}

// logFailure records everything known about a failed cycle
func logFailure(logger *zap.Logger, err error) {
	var upErr *snow.UpstreamError
	if errors.As(err, &upErr) {
		logger.Error("ServiceNow request failed",
			zap.Int("status", upErr.StatusCode),
			zap.Any("headers", upErr.Header),
			zap.String("body", upErr.Body),
			zap.String("url", upErr.URL))
		return
	}
	logger.Error("Inventory retrieval failed", zap.Error(err))
}
