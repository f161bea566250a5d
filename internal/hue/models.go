package hue

import (
	"fmt"
	"strings"
)

// Light is a bulb as reported by the bridge.
// UniqueID is the stable identity; ID is the bridge-local ordinal used in
// API paths and channel ids.
type Light struct {
	ID       string     `json:"id"`
	UniqueID string     `json:"uniqueid"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	ModelID  string     `json:"modelid"`
	State    LightState `json:"state"`
}

// LightState holds the attributes republished for every light.
type LightState struct {
	On        bool `json:"on"`
	Hue       int  `json:"hue"`
	Sat       int  `json:"sat"`
	Bri       int  `json:"bri"`
	CT        int  `json:"ct"`
	Reachable bool `json:"reachable"`
}

// Sensor is a bridge sensor. State is opaque and republished as-is.
type Sensor struct {
	ID       string         `json:"id"`
	UniqueID string         `json:"uniqueid"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	ModelID  string         `json:"modelid"`
	State    map[string]any `json:"state"`
}

// DiscoveredBridge is a bridge found on the local network.
type DiscoveredBridge struct {
	Address string `json:"address"`
	ID      string `json:"id,omitempty"`
	Source  string `json:"source"` // "mdns" or "cloud"
}

// APIError is an error entry returned by the v1 API inside a 200 response.
type APIError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hue api error %d at %s: %s", e.Type, e.Address, e.Description)
}

// v1Result is one element of a v1 write response array.
type v1Result struct {
	Success map[string]any `json:"success,omitempty"`
	Error   *APIError      `json:"error,omitempty"`
}

// normalizeAddress strips any scheme and trailing slash from an address.
func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(address, "http://")
	address = strings.TrimPrefix(address, "https://")
	return strings.TrimSuffix(address, "/")
}
