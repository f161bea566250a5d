package hue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amimof/huego"
	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const mdnsService = "_hue._tcp"

// discoverFunc finds bridges through one mechanism.
type discoverFunc func(ctx context.Context) ([]DiscoveredBridge, error)

// Discoverer locates bridges on the local network using mDNS and the
// vendor's cloud discovery endpoint in parallel.
type Discoverer struct {
	timeout time.Duration
	sources map[string]discoverFunc
}

// NewDiscoverer creates a discoverer that waits up to timeout for answers.
func NewDiscoverer(timeout time.Duration) *Discoverer {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &Discoverer{
		timeout: timeout,
		sources: map[string]discoverFunc{
			"mdns":  discoverMDNS,
			"cloud": discoverCloud,
		},
	}
}

// Discover returns every bridge found, deduplicated by address. It returns
// ErrNoBridges when nothing answered, and an error only when every
// mechanism failed outright.
func (d *Discoverer) Discover(ctx context.Context) ([]DiscoveredBridge, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		found  []DiscoveredBridge
		failed []error
	)

	var g errgroup.Group
	for name, source := range d.sources {
		name, source := name, source
		g.Go(func() error {
			bridges, err := source(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("source", name).Msg("Bridge discovery failed")
				failed = append(failed, fmt.Errorf("%s: %w", name, err))
				return nil
			}
			found = append(found, bridges...)
			return nil
		})
	}
	_ = g.Wait()

	bridges := mergeBridges(found)
	if len(bridges) > 0 {
		return bridges, nil
	}
	if len(failed) == len(d.sources) {
		return nil, fmt.Errorf("bridge discovery: %w", errors.Join(failed...))
	}
	return nil, ErrNoBridges
}

// mergeBridges dedupes by address, keeping the first entry that carries an id.
func mergeBridges(in []DiscoveredBridge) []DiscoveredBridge {
	index := make(map[string]int, len(in))
	out := make([]DiscoveredBridge, 0, len(in))
	for _, b := range in {
		b.Address = normalizeAddress(b.Address)
		if b.Address == "" {
			continue
		}
		if i, ok := index[b.Address]; ok {
			if out[i].ID == "" {
				out[i].ID = b.ID
			}
			continue
		}
		index[b.Address] = len(out)
		out = append(out, b)
	}
	return out
}

func discoverMDNS(ctx context.Context) ([]DiscoveredBridge, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("create mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, mdnsService, "local.", entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", mdnsService, err)
	}

	var bridges []DiscoveredBridge
	for entry := range entries {
		if len(entry.AddrIPv4) == 0 {
			continue
		}
		address := entry.AddrIPv4[0].String()
		if entry.Port != 0 && entry.Port != 80 && entry.Port != 443 {
			address = net.JoinHostPort(address, strconv.Itoa(entry.Port))
		}
		bridges = append(bridges, DiscoveredBridge{
			Address: address,
			ID:      txtValue(entry.Text, "bridgeid"),
			Source:  "mdns",
		})
	}
	return bridges, nil
}

func discoverCloud(ctx context.Context) ([]DiscoveredBridge, error) {
	found, err := huego.DiscoverAllContext(ctx)
	if err != nil {
		return nil, err
	}

	bridges := make([]DiscoveredBridge, 0, len(found))
	for _, b := range found {
		bridges = append(bridges, DiscoveredBridge{
			Address: b.Host,
			ID:      b.ID,
			Source:  "cloud",
		})
	}
	return bridges, nil
}

func txtValue(records []string, key string) string {
	prefix := key + "="
	for _, r := range records {
		if strings.HasPrefix(r, prefix) {
			return strings.TrimPrefix(r, prefix)
		}
	}
	return ""
}
