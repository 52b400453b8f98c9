package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stone-age-io/snow-inventory/internal/config"
	"github.com/stone-age-io/snow-inventory/internal/inventory"
	"go.uber.org/zap"
)

// RefreshEvent is published after the inventory was rebuilt from ServiceNow
type RefreshEvent struct {
	Timestamp string               `json:"timestamp"`
	Hosts     int                  `json:"hosts"`
	Groups    []string             `json:"groups"`
	Inventory *inventory.Inventory `json:"inventory"`
}

// NewRefreshEvent summarizes a freshly built inventory
func NewRefreshEvent(inv *inventory.Inventory, now time.Time) RefreshEvent {
	return RefreshEvent{
		Timestamp: now.UTC().Format(time.RFC3339),
		Hosts:     inv.HostCount(),
		Groups:    inv.GroupNames(),
		Inventory: inv,
	}
}

// publisher is the part of Client the notifier needs
type publisher interface {
	Publish(subject string, data []byte, timeout time.Duration) error
	Close()
}

// Notifier announces inventory rebuilds on a NATS subject. It connects only
// when there is something to announce, so cache hits never touch NATS.
type Notifier struct {
	cfg     config.NATSConfig
	logger  *zap.Logger
	connect func(*config.NATSConfig, *zap.Logger) (publisher, error)
}

// NewNotifier creates a notifier for the given settings
func NewNotifier(cfg config.NATSConfig, logger *zap.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		logger: logger,
		connect: func(c *config.NATSConfig, l *zap.Logger) (publisher, error) {
			return NewClient(c, l)
		},
	}
}

// InventoryRefreshed publishes a RefreshEvent for inv
func (n *Notifier) InventoryRefreshed(ctx context.Context, inv *inventory.Inventory) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(NewRefreshEvent(inv, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to encode refresh event: %w", err)
	}

	client, err := n.connect(&n.cfg, n.logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Publish(n.cfg.Subject, data, n.cfg.FlushTimeout); err != nil {
		return err
	}

	n.logger.Info("Announced inventory refresh",
		zap.String("subject", n.cfg.Subject),
		zap.Int("hosts", inv.HostCount()))
	return nil
}
