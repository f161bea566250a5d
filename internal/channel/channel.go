// Package channel derives data store channel ids and descriptors for lights
// and sensors. Derivation is pure: the same device always maps to the same
// channels.
package channel

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/me-box/databox-driver-phillipshue/internal/hue"
	"github.com/me-box/databox-driver-phillipshue/internal/store"
)

// Attribute is a light state attribute with its own channel pair.
type Attribute string

const (
	On  Attribute = "on"
	Hue Attribute = "hue"
	Bri Attribute = "bri"
	Sat Attribute = "sat"
	CT  Attribute = "ct"
)

// Attributes lists light attributes in registration and write order.
var Attributes = []Attribute{On, Hue, Bri, Sat, CT}

// Channel id prefixes.
const (
	TelemetryPrefix = "bulb"
	ActuatorPrefix  = "set-bulb"
	SensorPrefix    = "hue"
)

const contentType = "text/json"

// ErrMalformedChannel is returned for ids that are not actuator channels.
var ErrMalformedChannel = errors.New("malformed actuator channel id")

var (
	actuatorPattern = regexp.MustCompile(`^set-bulb-(on|hue|bri|sat|ct)-([0-9]+)$`)
	nonWord         = regexp.MustCompile(`\W+`)
)

var labels = map[Attribute]string{
	On:  "on off state",
	Hue: "hue value",
	Bri: "brightness value",
	Sat: "saturation value",
	CT:  "color temperature value",
}

// Label is the human readable name used in descriptions.
func (a Attribute) Label() string {
	return labels[a]
}

// Value extracts the attribute from a light state.
func (a Attribute) Value(s hue.LightState) any {
	switch a {
	case On:
		return s.On
	case Hue:
		return s.Hue
	case Bri:
		return s.Bri
	case Sat:
		return s.Sat
	case CT:
		return s.CT
	}
	return nil
}

// TelemetryID returns e.g. "bulb-hue-3".
func TelemetryID(a Attribute, lightID string) string {
	return fmt.Sprintf("%s-%s-%s", TelemetryPrefix, a, lightID)
}

// ActuatorID returns e.g. "set-bulb-hue-3".
func ActuatorID(a Attribute, lightID string) string {
	return fmt.Sprintf("%s-%s-%s", ActuatorPrefix, a, lightID)
}

// SensorID returns "hue-" followed by the unique id with every non-word
// character removed.
func SensorID(uniqueID string) string {
	return SensorPrefix + "-" + nonWord.ReplaceAllString(uniqueID, "")
}

// LightKey is the registry key claimed by a light's channel set.
func LightKey(lightID string) string {
	return TelemetryPrefix + "-" + lightID
}

// ParseActuator splits an actuator channel id into attribute and light id.
func ParseActuator(id string) (Attribute, string, error) {
	m := actuatorPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedChannel, id)
	}
	return Attribute(m[1]), m[2], nil
}

// LightDescriptors returns the ten channels of a light: five telemetry
// channels followed by five actuator channels.
func LightDescriptors(l hue.Light, vendor string) []store.Descriptor {
	out := make([]store.Descriptor, 0, 2*len(Attributes))
	for _, a := range Attributes {
		out = append(out, store.Descriptor{
			ID:          TelemetryID(a, l.ID),
			Type:        TelemetryPrefix + "-" + string(a),
			Description: fmt.Sprintf("%s %s.", l.Name, a.Label()),
			Vendor:      vendor,
			ContentType: contentType,
			StoreType:   store.StoreTypeTSBlob,
		})
	}
	for _, a := range Attributes {
		out = append(out, store.Descriptor{
			ID:          ActuatorID(a, l.ID),
			Type:        ActuatorPrefix + "-" + string(a),
			Description: fmt.Sprintf("Set %s %s.", l.Name, a.Label()),
			Vendor:      vendor,
			ContentType: contentType,
			StoreType:   store.StoreTypeTSBlob,
			IsActuator:  true,
		})
	}
	return out
}

// ActuatorIDs returns the actuator channel ids of a light.
func ActuatorIDs(lightID string) []string {
	out := make([]string, 0, len(Attributes))
	for _, a := range Attributes {
		out = append(out, ActuatorID(a, lightID))
	}
	return out
}

// SensorDescriptor returns the single channel of a sensor.
func SensorDescriptor(s hue.Sensor, vendor string) store.Descriptor {
	return store.Descriptor{
		ID:          SensorID(s.UniqueID),
		Type:        SensorPrefix + "-" + s.Type,
		Description: fmt.Sprintf("Philips hue sensor %s (%s).", s.Name, s.Type),
		Vendor:      vendor,
		ContentType: contentType,
		StoreType:   store.StoreTypeTS,
	}
}
