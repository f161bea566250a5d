package store

import "strings"

// Topics builds the MQTT topic layout under a common prefix.
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	return strings.TrimSuffix(t.Prefix, "/") + "/" + strings.Join(parts, "/")
}

// Catalog is where a channel's descriptor is retained.
func (t Topics) Catalog(channelID string) string {
	return t.join("catalog", channelID)
}

// Data carries records for a channel, in both directions.
func (t Topics) Data(channelID string) string {
	return t.join("data", channelID)
}

// Status carries the driver's retained online/offline marker.
func (t Topics) Status() string {
	return t.join("status")
}
