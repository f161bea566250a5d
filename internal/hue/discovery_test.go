package hue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticSource(bridges []DiscoveredBridge, err error) discoverFunc {
	return func(context.Context) ([]DiscoveredBridge, error) {
		return bridges, err
	}
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name    string
		sources map[string]discoverFunc
		want    []string
		wantErr error
		anyErr  bool
	}{
		{
			name: "merges and dedupes",
			sources: map[string]discoverFunc{
				"mdns":  staticSource([]DiscoveredBridge{{Address: "192.168.1.2", ID: "001788fffe1", Source: "mdns"}}, nil),
				"cloud": staticSource([]DiscoveredBridge{{Address: "192.168.1.2", Source: "cloud"}}, nil),
			},
			want: []string{"192.168.1.2"},
		},
		{
			name: "one source fails",
			sources: map[string]discoverFunc{
				"mdns":  staticSource(nil, errors.New("no multicast")),
				"cloud": staticSource([]DiscoveredBridge{{Address: "10.0.0.5", Source: "cloud"}}, nil),
			},
			want: []string{"10.0.0.5"},
		},
		{
			name: "nothing answered",
			sources: map[string]discoverFunc{
				"mdns":  staticSource(nil, nil),
				"cloud": staticSource(nil, nil),
			},
			wantErr: ErrNoBridges,
		},
		{
			name: "all sources fail",
			sources: map[string]discoverFunc{
				"mdns":  staticSource(nil, errors.New("no multicast")),
				"cloud": staticSource(nil, errors.New("offline")),
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Discoverer{timeout: time.Second, sources: tt.sources}
			got, err := d.Discover(context.Background())
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				return
			case tt.anyErr:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrNoBridges)
				return
			}
			require.NoError(t, err)

			var addrs []string
			for _, b := range got {
				addrs = append(addrs, b.Address)
			}
			assert.Equal(t, tt.want, addrs)
		})
	}
}

func TestMergeBridgesKeepsID(t *testing.T) {
	got := mergeBridges([]DiscoveredBridge{
		{Address: "http://10.0.0.5/", Source: "cloud"},
		{Address: "10.0.0.5", ID: "abc", Source: "mdns"},
		{Address: ""},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "10.0.0.5", got[0].Address)
	assert.Equal(t, "abc", got[0].ID)
}

func TestTxtValue(t *testing.T) {
	records := []string{"modelid=BSB002", "bridgeid=001788fffe23bfc2"}
	assert.Equal(t, "001788fffe23bfc2", txtValue(records, "bridgeid"))
	assert.Equal(t, "", txtValue(records, "missing"))
}

func TestStateCacheCopies(t *testing.T) {
	cache := NewStateCache()
	cache.SetLight(Light{ID: "1", UniqueID: "u1", Name: "b", State: LightState{On: true}})
	cache.SetLight(Light{ID: "2", UniqueID: "u2", Name: "a"})
	sensorState := map[string]any{"presence": true}
	cache.SetSensor(Sensor{ID: "5", UniqueID: "s1", Name: "motion", State: sensorState})

	lights := cache.Lights()
	require.Len(t, lights, 2)
	assert.Equal(t, "a", lights[0].Light.Name)

	// mutating inputs or outputs must not leak into the cache
	sensorState["presence"] = false
	sensors := cache.Sensors()
	require.Len(t, sensors, 1)
	assert.Equal(t, true, sensors[0].Sensor.State["presence"])
	sensors[0].Sensor.State["presence"] = "x"
	assert.Equal(t, true, cache.Sensors()[0].Sensor.State["presence"])

	assert.Equal(t, "u1", lights[1].Light.UniqueID)
	assert.True(t, lights[1].Light.State.On)

	nl, ns := cache.Len()
	assert.Equal(t, 2, nl)
	assert.Equal(t, 1, ns)
}
