package registry

import "sync"

// Routes maps a device's channel key to the bridge ordinal it currently
// answers at. The reconciler writes it through the registry; actuation
// listeners read it concurrently.
type Routes struct {
	mu       sync.RWMutex
	ordinals map[string]string
}

// NewRoutes creates an empty routing table.
func NewRoutes() *Routes {
	return &Routes{ordinals: make(map[string]string)}
}

// Resolve returns the current bridge ordinal for channelKey.
func (t *Routes) Resolve(channelKey string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ordinal, ok := t.ordinals[channelKey]
	return ordinal, ok
}

func (t *Routes) set(channelKey, ordinal string) {
	t.mu.Lock()
	t.ordinals[channelKey] = ordinal
	t.mu.Unlock()
}
