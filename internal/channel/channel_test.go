package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me-box/databox-driver-phillipshue/internal/hue"
)

func TestParseActuator(t *testing.T) {
	tests := []struct {
		id       string
		wantAttr Attribute
		wantID   string
		wantErr  bool
	}{
		{id: "set-bulb-hue-7", wantAttr: Hue, wantID: "7"},
		{id: "set-bulb-on-1", wantAttr: On, wantID: "1"},
		{id: "set-bulb-ct-12", wantAttr: CT, wantID: "12"},
		{id: "garbage", wantErr: true},
		{id: "", wantErr: true},
		{id: "bulb-hue-7", wantErr: true},
		{id: "set-bulb-xy-7", wantErr: true},
		{id: "set-bulb-hue-", wantErr: true},
		{id: "set-bulb-hue-7-extra", wantErr: true},
		{id: "set-bulb-hue-abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			attr, id, err := ParseActuator(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedChannel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAttr, attr)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestActuatorIDsRoundTrip(t *testing.T) {
	for _, id := range ActuatorIDs("42") {
		_, lightID, err := ParseActuator(id)
		require.NoError(t, err, id)
		assert.Equal(t, "42", lightID)
	}
}

func TestLightDescriptors(t *testing.T) {
	light := hue.Light{ID: "3", UniqueID: "00:17:88:01:00:bd:c7:b9-0b", Name: "Kitchen"}
	ds := LightDescriptors(light, "Philips Hue")
	require.Len(t, ds, 10)

	wantIDs := []string{
		"bulb-on-3", "bulb-hue-3", "bulb-bri-3", "bulb-sat-3", "bulb-ct-3",
		"set-bulb-on-3", "set-bulb-hue-3", "set-bulb-bri-3", "set-bulb-sat-3", "set-bulb-ct-3",
	}
	seen := map[string]bool{}
	for i, d := range ds {
		assert.Equal(t, wantIDs[i], d.ID)
		assert.Equal(t, i >= 5, d.IsActuator, d.ID)
		assert.Equal(t, "tsblob", d.StoreType)
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
	assert.Equal(t, "bulb-bri", ds[2].Type)
	assert.Equal(t, "Kitchen brightness value.", ds[2].Description)
	assert.Equal(t, "set-bulb-ct", ds[9].Type)
	assert.Equal(t, "Set Kitchen color temperature value.", ds[9].Description)
}

func TestSensorDescriptor(t *testing.T) {
	s := hue.Sensor{ID: "5", UniqueID: "00:17:88:01:02:03:04:05-02-0406", Name: "Hall", Type: "ZLLPresence"}
	d := SensorDescriptor(s, "Philips Hue")
	assert.Equal(t, "hue-0017880102030405020406", d.ID)
	assert.Equal(t, "hue-ZLLPresence", d.Type)
	assert.False(t, d.IsActuator)

	// derivation is deterministic
	assert.Equal(t, d, SensorDescriptor(s, "Philips Hue"))
}

func TestAttributeValue(t *testing.T) {
	state := hue.LightState{On: true, Hue: 1000, Sat: 20, Bri: 200, CT: 300}
	assert.Equal(t, true, On.Value(state))
	assert.Equal(t, 1000, Hue.Value(state))
	assert.Equal(t, 20, Sat.Value(state))
	assert.Equal(t, 200, Bri.Value(state))
	assert.Equal(t, 300, CT.Value(state))
}
