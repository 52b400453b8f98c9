package nats

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stone-age-io/snow-inventory/internal/config"
	"github.com/stone-age-io/snow-inventory/internal/inventory"
	"go.uber.org/zap"
)

type fakePublisher struct {
	subject string
	data    []byte
	timeout time.Duration
	err     error
	closed  bool
}

func (f *fakePublisher) Publish(subject string, data []byte, timeout time.Duration) error {
	f.subject = subject
	f.data = data
	f.timeout = timeout
	return f.err
}

func (f *fakePublisher) Close() { f.closed = true }

func newTestNotifier(pub *fakePublisher, connectErr error) *Notifier {
	n := NewNotifier(config.NATSConfig{
		Subject:      "inventory.snow.refreshed",
		FlushTimeout: 2 * time.Second,
	}, zap.NewNop())
	n.connect = func(*config.NATSConfig, *zap.Logger) (publisher, error) {
		if connectErr != nil {
			return nil, connectErr
		}
		return pub, nil
	}
	return n
}

func sampleInventory() *inventory.Inventory {
	inv := inventory.New("ubuntu", map[string]any{"ansible_shell_type": "csh"})
	inv.EnsureGroup("rhel").Hosts = []string{"db01", "db02"}
	return inv
}

// TestInventoryRefreshedPublishes tests the event reaches the configured subject
func TestInventoryRefreshedPublishes(t *testing.T) {
	pub := &fakePublisher{}
	n := newTestNotifier(pub, nil)

	if err := n.InventoryRefreshed(context.Background(), sampleInventory()); err != nil {
		t.Fatalf("InventoryRefreshed() error = %v", err)
	}

	if pub.subject != "inventory.snow.refreshed" {
		t.Errorf("subject = %q", pub.subject)
	}
	if pub.timeout != 2*time.Second {
		t.Errorf("timeout = %v", pub.timeout)
	}
	if !pub.closed {
		t.Error("connection was not closed")
	}

	var event struct {
		Timestamp string                     `json:"timestamp"`
		Hosts     int                        `json:"hosts"`
		Groups    []string                   `json:"groups"`
		Inventory map[string]json.RawMessage `json:"inventory"`
	}
	if err := json.Unmarshal(pub.data, &event); err != nil {
		t.Fatalf("event is not JSON: %v", err)
	}
	if event.Hosts != 2 {
		t.Errorf("hosts = %d, want 2", event.Hosts)
	}
	if !reflect.DeepEqual(event.Groups, []string{"rhel", "ubuntu"}) {
		t.Errorf("groups = %v", event.Groups)
	}
	if _, ok := event.Inventory[inventory.MetaKey]; !ok {
		t.Error("embedded inventory lacks _meta")
	}
	if _, err := time.Parse(time.RFC3339, event.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", event.Timestamp, err)
	}
}

func TestInventoryRefreshedErrors(t *testing.T) {
	connectErr := errors.New("no servers available for connection")
	if err := newTestNotifier(&fakePublisher{}, connectErr).InventoryRefreshed(context.Background(), sampleInventory()); !errors.Is(err, connectErr) {
		t.Errorf("connect failure: error = %v", err)
	}

	pub := &fakePublisher{err: errors.New("flush timeout")}
	if err := newTestNotifier(pub, nil).InventoryRefreshed(context.Background(), sampleInventory()); err == nil {
		t.Error("publish failure: error = nil")
	}
	if !pub.closed {
		t.Error("connection left open after publish failure")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub = &fakePublisher{}
	if err := newTestNotifier(pub, nil).InventoryRefreshed(ctx, sampleInventory()); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: error = %v", err)
	}
	if pub.data != nil {
		t.Error("published despite cancelled context")
	}
}

func TestCreateTLSConfigMissingCA(t *testing.T) {
	_, err := createTLSConfig(&config.TLSConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"}, zap.NewNop())
	if err == nil {
		t.Fatal("createTLSConfig() accepted a missing CA file")
	}
}
