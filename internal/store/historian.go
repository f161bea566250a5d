package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/me-box/databox-driver-phillipshue/internal/config"
)

const (
	historianMeasurement = "hue"
	historianPingTimeout = 5 * time.Second
)

// pointWriter is the part of the InfluxDB write API the historian uses.
type pointWriter interface {
	WritePoint(point *write.Point)
}

// Historian wraps a Client and archives every accepted telemetry write to
// InfluxDB. Archive writes are batched and asynchronous; their failures are
// logged and never affect the wrapped write.
type Historian struct {
	Client

	influx influxdb2.Client
	flush  func()
	writer pointWriter
	now    func() time.Time

	mu    sync.RWMutex
	types map[string]string // channel id -> descriptor type
}

// NewHistorian connects to InfluxDB and wraps inner.
func NewHistorian(inner Client, cfg config.InfluxConfig) (*Historian, error) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushMs := cfg.FlushInterval.Duration().Milliseconds()
	if flushMs <= 0 {
		flushMs = 10_000
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushMs)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), historianPingTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: influxdb ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: influxdb not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func(errorsCh <-chan error) {
		for err := range errorsCh {
			log.Error().Err(err).Msg("Historian write failed")
		}
	}(writeAPI.Errors())

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("Historian enabled")

	h := newHistorian(inner, writeAPI)
	h.influx = client
	h.flush = writeAPI.Flush
	return h, nil
}

func newHistorian(inner Client, w pointWriter) *Historian {
	return &Historian{
		Client: inner,
		writer: w,
		now:    time.Now,
		types:  make(map[string]string),
	}
}

// RegisterChannel registers with the wrapped client and remembers the
// channel type for tagging archived points.
func (h *Historian) RegisterChannel(ctx context.Context, d Descriptor) error {
	if err := h.Client.RegisterChannel(ctx, d); err != nil {
		return err
	}
	h.mu.Lock()
	h.types[d.ID] = d.Type
	h.mu.Unlock()
	return nil
}

// Write writes through the wrapped client, then archives the value.
func (h *Historian) Write(ctx context.Context, channelID string, value any) error {
	if err := h.Client.Write(ctx, channelID, value); err != nil {
		return err
	}

	h.mu.RLock()
	channelType := h.types[channelID]
	h.mu.RUnlock()

	fields := historianFields(value)
	if len(fields) == 0 {
		return nil
	}
	tags := map[string]string{"channel": channelID}
	if channelType != "" {
		tags["type"] = channelType
	}
	h.writer.WritePoint(write.NewPoint(historianMeasurement, tags, fields, h.now()))
	return nil
}

// Close flushes the archive and closes the wrapped client.
func (h *Historian) Close() error {
	if h.flush != nil {
		h.flush()
	}
	if h.influx != nil {
		h.influx.Close()
	}
	return h.Client.Close()
}

// historianFields maps a telemetry value to point fields. Sensor state maps
// are flattened; nested values are dropped.
func historianFields(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		fields := make(map[string]any, len(v))
		for k, fv := range v {
			if scalar, ok := scalarField(fv); ok {
				fields[k] = scalar
			}
		}
		return fields
	default:
		if scalar, ok := scalarField(v); ok {
			return map[string]any{"value": scalar}
		}
		return nil
	}
}

func scalarField(v any) (any, bool) {
	switch x := v.(type) {
	case bool, string, float64, float32:
		return x, true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	}
	return nil, false
}
