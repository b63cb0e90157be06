package accessory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dokzlo13/solbridge/internal/sol"
)

func TestServices(t *testing.T) {
	tests := []struct {
		name     string
		device   sol.Device
		expected []ServiceSpec
	}{
		{
			name:   "lightbulb/on_only",
			device: sol.Device{Type: sol.TypeLightbulb},
			expected: []ServiceSpec{
				{Kind: ServiceLightbulb, Characteristics: []Characteristic{On}},
			},
		},
		{
			name:   "lightbulb/full",
			device: sol.Device{Type: sol.TypeLightbulb, Capability: sol.Capability{Brightness: true, Color: true, Temperature: true}},
			expected: []ServiceSpec{
				{Kind: ServiceLightbulb, Characteristics: []Characteristic{On, Brightness, Saturation, Hue}},
				{Kind: ServiceTemperatureSensor, Characteristics: []Characteristic{CurrentTemperature}},
			},
		},
		{
			name:   "daylight",
			device: sol.Device{Type: sol.TypeDaylight, Capability: sol.Capability{Temperature: true}},
			expected: []ServiceSpec{
				{Kind: ServiceLightSensor, Characteristics: []Characteristic{CurrentAmbientLightLevel}},
			},
		},
		{
			name:   "sensor/humidity_and_temperature",
			device: sol.Device{Type: sol.TypeSensor, Capability: sol.Capability{Humidity: true, Temperature: true}},
			expected: []ServiceSpec{
				{Kind: ServiceHumiditySensor, Characteristics: []Characteristic{CurrentRelativeHumidity}},
				{Kind: ServiceTemperatureSensor, Characteristics: []Characteristic{CurrentTemperature}},
			},
		},
		{
			name:     "sensor/no_capabilities",
			device:   sol.Device{Type: sol.TypeSensor},
			expected: nil,
		},
		{
			name:   "switch",
			device: sol.Device{Type: sol.TypeSwitch, Capability: sol.Capability{Brightness: true}},
			expected: []ServiceSpec{
				{Kind: ServiceSwitch, Characteristics: []Characteristic{On}},
			},
		},
		{
			name:   "unknown_type_falls_back_to_switch",
			device: sol.Device{Type: "thermostat"},
			expected: []ServiceSpec{
				{Kind: ServiceSwitch, Characteristics: []Characteristic{On}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.device
			assert.Equal(t, tt.expected, Services(&d))
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"Zimmer Mats-Ole":   "Zimmer Mats Ole",
		"Küche":             "Küche",
		"  Lamp #2  ":       "Lamp 2",
		"Bob's Light":       "Bob's Light",
		"'quoted'":          "quoted",
		"---":               "SOL Device",
		"":                  "SOL Device",
		"Wohnzimmer (Ecke)": "Wohnzimmer Ecke",
	}
	for in, want := range tests {
		assert.Equal(t, want, DisplayName(in), "DisplayName(%q)", in)
	}
}

func TestInfoFor(t *testing.T) {
	info := InfoFor(&sol.Device{ID: "abc", Name: "Flur-Licht", Version: "5"})
	assert.Equal(t, Info{
		Name:             "Flur Licht",
		Manufacturer:     Manufacturer,
		Model:            "Flur-Licht",
		SerialNumber:     "abc",
		FirmwareRevision: "5",
	}, info)
}
