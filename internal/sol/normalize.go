package sol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dokzlo13/solbridge/internal/color"
)

// NewDevice builds a fully defaulted Device from a decoded JSON value.
// Missing or mistyped optional fields take their zero defaults; only a
// non-object payload, a missing id, or a missing/invalid elements array fail.
func NewDevice(raw any, version string) (*Device, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: device is %T, want object", ErrMalformedPayload, raw)
	}

	id, ok := identity(obj["id"])
	if !ok {
		return nil, fmt.Errorf("%w: device has no id", ErrMalformedPayload)
	}

	list, ok := obj["elements"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: device %s has no elements array", ErrMalformedPayload, id)
	}

	elements := make([]Element, 0, len(list))
	for i, item := range list {
		el, err := newElement(item)
		if err != nil {
			return nil, fmt.Errorf("device %s element %d: %w", id, i, err)
		}
		elements = append(elements, el)
	}

	return &Device{
		ID:         id,
		Reference:  stringOr(obj, "reference", id),
		Name:       stringOr(obj, "name", ""),
		Room:       stringOr(obj, "room", ""),
		Bridge:     stringOr(obj, "bridge", ""),
		Type:       ParseType(stringOr(obj, "type", "")),
		Singleton:  boolOr(obj, "singleton"),
		Version:    version,
		Capability: newCapability(obj["capability"]),
		State:      newState(obj["state"]),
		Extra:      obj["extra"],
		Elements:   elements,
	}, nil
}

func newElement(raw any) (Element, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Element{}, fmt.Errorf("%w: element is %T, want object", ErrMalformedPayload, raw)
	}

	id, _ := identity(obj["id"])
	return Element{
		ID:         id,
		Reference:  stringOr(obj, "reference", id),
		Name:       stringOr(obj, "name", ""),
		Checked:    boolOr(obj, "checked"),
		Capability: newCapability(obj["capability"]),
		State:      newState(obj["state"]),
		Extra:      obj["extra"],
	}, nil
}

func newCapability(raw any) Capability {
	obj, _ := raw.(map[string]any)
	return Capability{
		Brightness:  boolOr(obj, "brightness"),
		Color:       boolOr(obj, "color"),
		Switch:      boolOr(obj, "switch"),
		Power:       boolOr(obj, "power"),
		Temperature: boolOr(obj, "temperature"),
		Humidity:    boolOr(obj, "humidity"),
	}
}

func newState(raw any) State {
	obj, _ := raw.(map[string]any)
	s := State{
		Reachable:   boolOr(obj, "reachable"),
		On:          boolOr(obj, "on"),
		Brightness:  numberOr(obj, "brightness"),
		RGB:         stringOr(obj, "rgb", DefaultRGB),
		Power:       numberOr(obj, "power"),
		Temperature: numberOr(obj, "temperature"),
		Humidity:    numberOr(obj, "humidity"),
	}
	if _, err := color.HexToRGB(s.RGB); err != nil {
		s.RGB = DefaultRGB
	}

	if hsb, ok := obj["hsb"].(map[string]any); ok {
		s.HSB = color.HSB{
			Hue:        firstNumber(hsb, "hue", "h"),
			Saturation: firstNumber(hsb, "saturation", "s"),
			Brightness: firstNumber(hsb, "brightness", "b"),
		}
	} else if derived, err := color.FromHex(s.RGB); err == nil {
		s.HSB = derived
	}
	return s
}

// identity accepts ids sent as strings or numbers and renders them as opaque strings.
func identity(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

func stringOr(obj map[string]any, key, def string) string {
	switch t := obj[key].(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return def
	}
}

func boolOr(obj map[string]any, key string) bool {
	switch t := obj[key].(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case float64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	default:
		return false
	}
}

func numberOr(obj map[string]any, key string) float64 {
	switch t := obj[key].(type) {
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func firstNumber(obj map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return numberOr(obj, k)
		}
	}
	return 0
}
