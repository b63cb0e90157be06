package accessory

import "github.com/dokzlo13/solbridge/internal/sol"

// Characteristic names a single readable or writable value on an accessory.
type Characteristic string

const (
	On                       Characteristic = "On"
	Brightness               Characteristic = "Brightness"
	Hue                      Characteristic = "Hue"
	Saturation               Characteristic = "Saturation"
	CurrentTemperature       Characteristic = "CurrentTemperature"
	CurrentRelativeHumidity  Characteristic = "CurrentRelativeHumidity"
	CurrentAmbientLightLevel Characteristic = "CurrentAmbientLightLevel"

	// Color is not a host characteristic; it carries raw hex writes.
	Color Characteristic = "Color"
)

// ServiceKind names a host service grouping characteristics.
type ServiceKind string

const (
	ServiceLightbulb         ServiceKind = "Lightbulb"
	ServiceLightSensor       ServiceKind = "LightSensor"
	ServiceTemperatureSensor ServiceKind = "TemperatureSensor"
	ServiceHumiditySensor    ServiceKind = "HumiditySensor"
	ServiceSwitch            ServiceKind = "Switch"
)

// ServiceSpec tells the host which service to expose and which accessors to wire on it.
type ServiceSpec struct {
	Kind            ServiceKind      `json:"kind"`
	Characteristics []Characteristic `json:"characteristics"`
}

type profile func(sol.Capability) []ServiceSpec

// profiles maps a device type to the services it exposes. Adding a type is
// one entry here.
var profiles = map[sol.Type]profile{
	sol.TypeLightbulb: lightbulbServices,
	sol.TypeDaylight:  daylightServices,
	sol.TypeSensor:    sensorServices,
	sol.TypeSwitch:    switchServices,
}

// Services returns the service layout for d, selected by type and gated by capability.
func Services(d *sol.Device) []ServiceSpec {
	p, ok := profiles[d.Type]
	if !ok {
		p = switchServices
	}
	return p(d.Capability)
}

func lightbulbServices(c sol.Capability) []ServiceSpec {
	bulb := ServiceSpec{Kind: ServiceLightbulb, Characteristics: []Characteristic{On}}
	if c.Brightness {
		bulb.Characteristics = append(bulb.Characteristics, Brightness)
	}
	if c.Color {
		bulb.Characteristics = append(bulb.Characteristics, Saturation, Hue)
	}

	services := []ServiceSpec{bulb}
	if c.Temperature {
		services = append(services, temperatureService())
	}
	return services
}

func daylightServices(sol.Capability) []ServiceSpec {
	return []ServiceSpec{{Kind: ServiceLightSensor, Characteristics: []Characteristic{CurrentAmbientLightLevel}}}
}

func sensorServices(c sol.Capability) []ServiceSpec {
	var services []ServiceSpec
	if c.Humidity {
		services = append(services, ServiceSpec{Kind: ServiceHumiditySensor, Characteristics: []Characteristic{CurrentRelativeHumidity}})
	}
	if c.Temperature {
		services = append(services, temperatureService())
	}
	return services
}

func switchServices(sol.Capability) []ServiceSpec {
	return []ServiceSpec{{Kind: ServiceSwitch, Characteristics: []Characteristic{On}}}
}

func temperatureService() ServiceSpec {
	return ServiceSpec{Kind: ServiceTemperatureSensor, Characteristics: []Characteristic{CurrentTemperature}}
}
