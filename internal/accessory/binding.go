// Package accessory binds a normalized SOL device to the characteristic
// accessors an accessory host wires onto its services.
package accessory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/solbridge/internal/color"
	"github.com/dokzlo13/solbridge/internal/metrics"
	"github.com/dokzlo13/solbridge/internal/sol"
)

// Ambient light levels reported for daylight devices, in lux.
const (
	DaylightLux = 100000
	DarkLux     = 0.0001
)

// ErrInvalidValue is returned for NaN or infinite characteristic values.
var ErrInvalidValue = errors.New("invalid characteristic value")

// Writer applies state changes to SOL. Implementations return the confirmed
// device, or nil when the change could not be applied.
type Writer interface {
	SetSwitch(ctx context.Context, d *sol.Device, enabled bool) *sol.Device
	SetBrightness(ctx context.Context, d *sol.Device, value int) *sol.Device
	SetColor(ctx context.Context, d *sol.Device, hex string) *sol.Device
}

// Write describes a finished characteristic write.
type Write struct {
	Characteristic Characteristic
	Value          any
	Confirmed      bool
}

// Binding is one accessory: a stable identity token plus the last known
// device. The device pointer is swapped whole, never modified in place.
type Binding struct {
	token  string
	writer Writer

	mu       sync.RWMutex
	device   *sol.Device
	onWrite  func(*Binding, Write)
	services []ServiceSpec

	// writeMu serializes writes so hue and saturation sent back to back
	// each merge with the other's confirmed value.
	writeMu sync.Mutex
}

// New creates a binding for d under token.
func New(token string, d *sol.Device, w Writer) *Binding {
	return &Binding{
		token:    token,
		writer:   w,
		device:   d,
		services: Services(d),
	}
}

// Token returns the identity token.
func (b *Binding) Token() string {
	return b.token
}

// Device returns the current device. Callers must not modify it.
func (b *Binding) Device() *sol.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.device
}

// Services returns the service layout computed when the binding was created.
// Refresh does not rewire services.
func (b *Binding) Services() []ServiceSpec {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.services
}

// Info returns the accessory information block for the current device.
func (b *Binding) Info() Info {
	return InfoFor(b.Device())
}

// Refresh replaces the cached device with a freshly fetched one.
func (b *Binding) Refresh(d *sol.Device) {
	if d == nil {
		return
	}
	b.mu.Lock()
	b.device = d
	b.mu.Unlock()
}

// OnWrite registers a callback invoked after every write attempt.
func (b *Binding) OnWrite(fn func(*Binding, Write)) {
	b.mu.Lock()
	b.onWrite = fn
	b.mu.Unlock()
}

func (b *Binding) On() bool {
	return b.Device().State.On
}

func (b *Binding) Brightness() float64 {
	return b.Device().State.Brightness
}

func (b *Binding) Hue() float64 {
	return b.Device().State.HSB.Hue
}

func (b *Binding) Saturation() float64 {
	return b.Device().State.HSB.Saturation
}

func (b *Binding) CurrentTemperature() float64 {
	return b.Device().State.Temperature
}

func (b *Binding) CurrentHumidity() float64 {
	return b.Device().State.Humidity
}

// AmbientLight reports full daylight when the sensor is on, darkness otherwise.
func (b *Binding) AmbientLight() float64 {
	if b.Device().State.On {
		return DaylightLux
	}
	return DarkLux
}

// Value reads a characteristic by name.
func (b *Binding) Value(c Characteristic) (any, bool) {
	switch c {
	case On:
		return b.On(), true
	case Brightness:
		return b.Brightness(), true
	case Hue:
		return b.Hue(), true
	case Saturation:
		return b.Saturation(), true
	case CurrentTemperature:
		return b.CurrentTemperature(), true
	case CurrentRelativeHumidity:
		return b.CurrentHumidity(), true
	case CurrentAmbientLightLevel:
		return b.AmbientLight(), true
	case Color:
		return b.Device().State.RGB, true
	default:
		return nil, false
	}
}

// Values reads every characteristic wired on the binding's services.
func (b *Binding) Values() map[Characteristic]any {
	out := make(map[Characteristic]any)
	for _, s := range b.Services() {
		for _, c := range s.Characteristics {
			if v, ok := b.Value(c); ok {
				out[c] = v
			}
		}
	}
	return out
}

// SetOn switches the device.
func (b *Binding) SetOn(ctx context.Context, on bool) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	d := b.Device()
	log.Debug().Str("name", d.Name).Bool("value", on).Msg("Set characteristic On")
	b.confirm(On, on, b.writer.SetSwitch(ctx, d, on), func(s *sol.State) {
		s.On = on
	})
	return nil
}

// SetBrightness sets brightness in percent, clamped to 0..100.
func (b *Binding) SetBrightness(ctx context.Context, value int) error {
	value = min(max(value, 0), 100)

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	d := b.Device()
	log.Debug().Str("name", d.Name).Int("value", value).Msg("Set characteristic Brightness")
	b.confirm(Brightness, value, b.writer.SetBrightness(ctx, d, value), func(s *sol.State) {
		s.Brightness = float64(value)
	})
	return nil
}

// SetHue sends the color with hue replaced, holding saturation and brightness.
// Hue is wrapped into [0, 360).
func (b *Binding) SetHue(ctx context.Context, hue float64) error {
	if !finite(hue) {
		return fmt.Errorf("%w: hue %v", ErrInvalidValue, hue)
	}
	hue = wrapHue(hue)

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	d := b.Device()
	hex := d.State.HSB.HueHex(hue)
	log.Debug().Str("name", d.Name).Float64("value", hue).Str("hex", hex).Msg("Set characteristic Hue")
	b.confirm(Hue, hue, b.writer.SetColor(ctx, d, hex), func(s *sol.State) {
		s.HSB.Hue = hue
	})
	return nil
}

// SetSaturation sends the color with saturation replaced, holding hue and brightness.
// Saturation is clamped to 0..100.
func (b *Binding) SetSaturation(ctx context.Context, saturation float64) error {
	if !finite(saturation) {
		return fmt.Errorf("%w: saturation %v", ErrInvalidValue, saturation)
	}
	saturation = min(max(saturation, 0), 100)

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	d := b.Device()
	hex := d.State.HSB.SaturationHex(saturation)
	log.Debug().Str("name", d.Name).Float64("value", saturation).Str("hex", hex).Msg("Set characteristic Saturation")
	b.confirm(Saturation, saturation, b.writer.SetColor(ctx, d, hex), func(s *sol.State) {
		s.HSB.Saturation = saturation
	})
	return nil
}

// SetColor sends a raw hex color. An unparseable hex string returns
// color.ErrInvalidFormat without contacting SOL.
func (b *Binding) SetColor(ctx context.Context, hex string) error {
	hsb, err := color.FromHex(hex)
	if err != nil {
		metrics.CharacteristicWrites.WithLabelValues(string(Color), metrics.OutcomeInvalid).Inc()
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	rgb, _ := color.HexToRGB(hex)
	canonical := color.RGBToHex(rgb)
	d := b.Device()
	log.Debug().Str("name", d.Name).Str("value", canonical).Msg("Set color")
	b.confirm(Color, canonical, b.writer.SetColor(ctx, d, canonical), func(s *sol.State) {
		s.RGB = "#" + canonical
		s.HSB = hsb
	})
	return nil
}

// Set parses raw and writes it to characteristic c.
func (b *Binding) Set(ctx context.Context, c Characteristic, raw string) error {
	raw = strings.TrimSpace(raw)
	switch c {
	case On:
		v, err := parseBool(raw)
		if err != nil {
			return err
		}
		return b.SetOn(ctx, v)
	case Brightness:
		v, err := parseNumber(c, raw)
		if err != nil {
			return err
		}
		return b.SetBrightness(ctx, int(math.Round(min(max(v, 0), 100))))
	case Hue:
		v, err := parseNumber(c, raw)
		if err != nil {
			return err
		}
		return b.SetHue(ctx, v)
	case Saturation:
		v, err := parseNumber(c, raw)
		if err != nil {
			return err
		}
		return b.SetSaturation(ctx, v)
	case Color:
		return b.SetColor(ctx, raw)
	default:
		return fmt.Errorf("characteristic %q is read-only or unknown", c)
	}
}

// parseNumber parses a finite float; NaN and infinities are rejected.
func parseNumber(c Characteristic, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", strings.ToLower(string(c)), raw, err)
	}
	if !finite(v) {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidValue, strings.ToLower(string(c)), raw)
	}
	return v, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// wrapHue maps any finite hue into [0, 360).
func wrapHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("on %q: %w", raw, err)
	}
	return v, nil
}

// confirm adopts the confirmed device and mirrors the requested value onto
// it. Without confirmation the cached device is left untouched; the next
// poll reconciles.
func (b *Binding) confirm(c Characteristic, value any, updated *sol.Device, apply func(*sol.State)) {
	w := Write{Characteristic: c, Value: value, Confirmed: updated != nil}

	if updated == nil {
		metrics.CharacteristicWrites.WithLabelValues(string(c), metrics.OutcomeTransport).Inc()
		log.Warn().Str("token", b.token).Str("characteristic", string(c)).Msg("Write not confirmed, keeping cached state")
	} else {
		next := updated.Clone()
		apply(&next.State)
		b.mu.Lock()
		b.device = next
		b.mu.Unlock()
		metrics.CharacteristicWrites.WithLabelValues(string(c), metrics.OutcomeOK).Inc()
	}

	b.mu.RLock()
	fn := b.onWrite
	b.mu.RUnlock()
	if fn != nil {
		fn(b, w)
	}
}
