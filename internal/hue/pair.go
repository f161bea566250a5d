package hue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
)

// Pair registers appName with the bridge at address and returns the issued
// credential. The bridge's link button must have been pressed shortly before.
func Pair(ctx context.Context, address, appName string) (string, error) {
	address = normalizeAddress(address)
	if address == "" {
		return "", errors.New("bridge address is empty")
	}

	bridge := huego.New(address, "")
	credential, err := bridge.CreateUserContext(ctx, appName)
	if err != nil {
		var apiErr *huego.APIError
		if (errors.As(err, &apiErr) && apiErr.Type == linkButtonErrorType) || strings.Contains(err.Error(), "link button") {
			return "", fmt.Errorf("pair with %s: %w", address, ErrLinkButton)
		}
		return "", fmt.Errorf("pair with %s: %w", address, err)
	}
	if credential == "" {
		return "", fmt.Errorf("pair with %s: bridge returned an empty credential", address)
	}

	log.Info().Str("address", address).Str("app", appName).Msg("Paired with Hue bridge")
	return credential, nil
}

// Pairing bundles discovery and pairing for the operator surface.
type Pairing struct {
	AppName    string
	Timeout    time.Duration
	Discoverer *Discoverer
}

// NewPairing creates a Pairing using the default discovery mechanisms.
func NewPairing(appName string, timeout, discoveryTimeout time.Duration) *Pairing {
	return &Pairing{
		AppName:    appName,
		Timeout:    timeout,
		Discoverer: NewDiscoverer(discoveryTimeout),
	}
}

// Discover lists bridges on the local network.
func (p *Pairing) Discover(ctx context.Context) ([]DiscoveredBridge, error) {
	return p.Discoverer.Discover(ctx)
}

// Pair pairs with the bridge at address.
func (p *Pairing) Pair(ctx context.Context, address string) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return Pair(ctx, address, p.AppName)
}
