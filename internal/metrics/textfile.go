package metrics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stone-age-io/snow-inventory/internal/utils"
	"google.golang.org/protobuf/proto"
)

const namespace = "snow_inventory"

// RunStats describes one retrieval cycle
type RunStats struct {
	Timestamp time.Time
	Duration  time.Duration
	Source    string // "cache" or "upstream"
	Hosts     int
	Groups    int
	Success   bool
}

// Families converts the stats into Prometheus metric families
func (s RunStats) Families() []*dto.MetricFamily {
	cacheHit := 0.0
	if s.Source == "cache" {
		cacheHit = 1
	}
	success := 0.0
	if s.Success {
		success = 1
	}

	return []*dto.MetricFamily{
		gauge("last_run_timestamp_seconds", "Unix time of the last inventory run.", float64(s.Timestamp.Unix())),
		gauge("last_run_duration_seconds", "Wall time spent producing the inventory.", utils.Round(s.Duration.Seconds())),
		gauge("last_run_success", "Whether the last run produced an inventory.", success),
		gauge("last_run_cache_hit", "Whether the last run was served from the cache.", cacheHit),
		gauge("hosts", "Host entries in the last inventory, duplicates included.", float64(s.Hosts)),
		gauge("groups", "Groups in the last inventory.", float64(s.Groups)),
	}
}

func gauge(name, help string, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(namespace + "_" + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: proto.Float64(value)}},
		},
	}
}

// Encode renders the stats in the Prometheus text exposition format
func (s RunStats) Encode() ([]byte, error) {
	var buf bytes.Buffer
	for _, mf := range s.Families() {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// WriteTextfile writes the stats for node_exporter's textfile collector.
// The file is written next to its destination and renamed into place so
// the collector never reads a partial file.
func WriteTextfile(path string, s RunStats) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close metrics file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod metrics file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move metrics file into place: %w", err)
	}

	return nil
}
