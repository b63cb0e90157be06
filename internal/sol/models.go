package sol

import "github.com/dokzlo13/solbridge/internal/color"

// DefaultRGB is the color reported when SOL omits one.
const DefaultRGB = "#000000"

// Type is the coarse device category that selects the accessory services.
type Type string

const (
	TypeLightbulb Type = "lightbulb"
	TypeDaylight  Type = "daylight"
	TypeSensor    Type = "sensor"
	TypeSwitch    Type = "switch"
)

// ParseType maps the upstream type string onto a known Type.
// Anything unrecognized is treated as a switch.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeLightbulb, TypeDaylight, TypeSensor:
		return Type(s)
	default:
		return TypeSwitch
	}
}

// Capability declares which state dimensions a device or element supports.
type Capability struct {
	Brightness  bool `json:"brightness"`
	Color       bool `json:"color"`
	Switch      bool `json:"switch"`
	Power       bool `json:"power"`
	Temperature bool `json:"temperature"`
	Humidity    bool `json:"humidity"`
}

// State is a live snapshot. RGB and HSB describe the same color but are not
// kept in sync automatically.
type State struct {
	Reachable   bool      `json:"reachable"`
	On          bool      `json:"on"`
	Brightness  float64   `json:"brightness"`
	RGB         string    `json:"rgb"`
	HSB         color.HSB `json:"hsb"`
	Power       float64   `json:"power"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
}

// Element is a sub-component of a device, e.g. one bulb in a fixture.
type Element struct {
	ID         string     `json:"id"`
	Reference  string     `json:"reference"`
	Name       string     `json:"name"`
	Checked    bool       `json:"checked"`
	Capability Capability `json:"capability"`
	State      State      `json:"state"`
	Extra      any        `json:"extra,omitempty"`
}

// Device is the normalized form of one SOL "smarthome" entry.
// Reference is the key SOL expects on mutation calls; ID feeds the identity token.
type Device struct {
	ID         string     `json:"id"`
	Reference  string     `json:"reference"`
	Name       string     `json:"name"`
	Room       string     `json:"room"`
	Bridge     string     `json:"bridge"`
	Type       Type       `json:"type"`
	Singleton  bool       `json:"singleton"`
	Version    string     `json:"version"`
	Capability Capability `json:"capability"`
	State      State      `json:"state"`
	Extra      any        `json:"extra,omitempty"`
	Elements   []Element  `json:"elements"`
}

// Clone returns a copy whose State and Elements can be modified without
// affecting d. Extra is shared since it is never modified.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	c.Elements = make([]Element, len(d.Elements))
	copy(c.Elements, d.Elements)
	return &c
}
