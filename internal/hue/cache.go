package hue

import (
	"sort"
	"sync"
	"time"
)

// CachedLight holds the last observed light state with its fetch time.
type CachedLight struct {
	Light     Light
	FetchedAt time.Time
}

// CachedSensor holds the last observed sensor state with its fetch time.
type CachedSensor struct {
	Sensor    Sensor
	FetchedAt time.Time
}

// StateCache is the last-known device state, keyed by unique id.
// The reconciler is its only writer; HTTP handlers read copies.
// It does NOT fetch from network - callers must do that.
type StateCache struct {
	mu      sync.RWMutex
	lights  map[string]*CachedLight
	sensors map[string]*CachedSensor
	now     func() time.Time
}

// NewStateCache creates an empty state cache.
func NewStateCache() *StateCache {
	return &StateCache{
		lights:  make(map[string]*CachedLight),
		sensors: make(map[string]*CachedSensor),
		now:     time.Now,
	}
}

// SetLight stores the latest state of a light.
func (c *StateCache) SetLight(light Light) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lights[light.UniqueID] = &CachedLight{
		Light:     light,
		FetchedAt: c.now(),
	}
}

// SetSensor stores the latest state of a sensor.
func (c *StateCache) SetSensor(sensor Sensor) {
	state := make(map[string]any, len(sensor.State))
	for k, v := range sensor.State {
		state[k] = v
	}
	sensor.State = state

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sensors[sensor.UniqueID] = &CachedSensor{
		Sensor:    sensor,
		FetchedAt: c.now(),
	}
}

// Lights returns a copy of all cached lights sorted by name.
func (c *StateCache) Lights() []CachedLight {
	c.mu.RLock()
	out := make([]CachedLight, 0, len(c.lights))
	for _, l := range c.lights {
		out = append(out, *l)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Light.Name != out[j].Light.Name {
			return out[i].Light.Name < out[j].Light.Name
		}
		return out[i].Light.UniqueID < out[j].Light.UniqueID
	})
	return out
}

// Sensors returns a copy of all cached sensors sorted by name.
func (c *StateCache) Sensors() []CachedSensor {
	c.mu.RLock()
	out := make([]CachedSensor, 0, len(c.sensors))
	for _, s := range c.sensors {
		state := make(map[string]any, len(s.Sensor.State))
		for k, v := range s.Sensor.State {
			state[k] = v
		}
		cp := *s
		cp.Sensor.State = state
		out = append(out, cp)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Sensor.Name != out[j].Sensor.Name {
			return out[i].Sensor.Name < out[j].Sensor.Name
		}
		return out[i].Sensor.UniqueID < out[j].Sensor.UniqueID
	})
	return out
}

// Len returns the number of cached lights and sensors.
func (c *StateCache) Len() (lights, sensors int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lights), len(c.sensors)
}
