package actuation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/me-box/databox-driver-phillipshue/internal/channel"
	"github.com/me-box/databox-driver-phillipshue/internal/store"
)

var (
	// ErrMalformedChannel is returned for events on ids that are not actuator channels.
	ErrMalformedChannel = channel.ErrMalformedChannel

	// ErrMalformedPayload is returned when the value cannot be applied to the attribute.
	ErrMalformedPayload = errors.New("malformed actuation payload")
)

// valueRange is the accepted integer range per numeric attribute.
var valueRange = map[channel.Attribute][2]int{
	channel.Hue: {0, 65535},
	channel.Bri: {1, 254},
	channel.Sat: {0, 254},
	channel.CT:  {153, 500},
}

// Command is a decoded actuation event.
type Command struct {
	EventID   string
	ChannelID string
	LightID   string
	Attribute channel.Attribute
	Value     any
}

// State is the partial light state sent to the bridge.
func (c Command) State() map[string]any {
	return map[string]any{string(c.Attribute): c.Value}
}

// Decode turns an event into a command. The payload is either a record
// {"data": value} or a bare JSON value.
func Decode(ev store.Event) (Command, error) {
	attr, lightID, err := channel.ParseActuator(ev.ChannelID)
	if err != nil {
		return Command{}, err
	}

	raw, err := payloadValue(ev.Payload)
	if err != nil {
		return Command{}, err
	}

	value, err := coerce(attr, raw)
	if err != nil {
		return Command{}, err
	}

	return Command{
		EventID:   ev.ID,
		ChannelID: ev.ChannelID,
		LightID:   lightID,
		Attribute: attr,
		Value:     value,
	}, nil
}

func payloadValue(payload []byte) (any, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if obj, ok := v.(map[string]any); ok {
		data, ok := obj["data"]
		if !ok {
			return nil, fmt.Errorf("%w: object without data field", ErrMalformedPayload)
		}
		return data, nil
	}
	return v, nil
}

func coerce(attr channel.Attribute, v any) (any, error) {
	if attr == channel.On {
		return coerceBool(v)
	}

	n, err := coerceInt(v)
	if err != nil {
		return nil, err
	}
	r := valueRange[attr]
	if n < r[0] || n > r[1] {
		return nil, fmt.Errorf("%w: %s %d outside [%d, %d]", ErrMalformedPayload, attr, n, r[0], r[1])
	}
	return n, nil
}

func coerceBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		switch x {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "on", "1":
			return true, nil
		case "false", "off", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %v is not a boolean", ErrMalformedPayload, v)
}

func coerceInt(v any) (int, error) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrMalformedPayload, x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrMalformedPayload, x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %v is not an integer", ErrMalformedPayload, v)
}
