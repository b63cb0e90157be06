// Package color converts between the hex RGB strings SOL accepts and the
// hue/saturation/brightness triples the accessory host negotiates.
package color

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidFormat is returned when a hex color string cannot be parsed.
var ErrInvalidFormat = errors.New("invalid hex color")

// RGB holds red, green and blue channels in the range 0..255.
// Channels are floats so HSBToRGB output can be handed back unrounded.
type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// HSB holds hue in degrees [0,360) and saturation/brightness in percent [0,100].
type HSB struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Brightness float64 `json:"brightness"`
}

// HexToRGB parses a 3 or 6 digit hex color, with or without a leading '#'.
func HexToRGB(hex string) (RGB, error) {
	s := strings.TrimPrefix(hex, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidFormat, hex)
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidFormat, hex)
	}

	return RGB{
		R: float64((v >> 16) & 0xff),
		G: float64((v >> 8) & 0xff),
		B: float64(v & 0xff),
	}, nil
}

// RGBToHex renders rgb as six lowercase hex digits without a '#' prefix.
func RGBToHex(rgb RGB) string {
	return fmt.Sprintf("%02x%02x%02x", channel(rgb.R), channel(rgb.G), channel(rgb.B))
}

func channel(v float64) uint8 {
	v = math.Round(v)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// RGBToHSB decomposes rgb by its max and min channels.
// Achromatic colors (r == g == b) yield hue 0 and saturation 0.
func RGBToHSB(rgb RGB) HSB {
	r, g, b := rgb.R/255, rgb.G/255, rgb.B/255
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	out := HSB{Brightness: maxC * 100}
	if delta == 0 {
		return out
	}
	if maxC > 0 {
		out.Saturation = delta / maxC * 100
	}

	var h float64
	switch maxC {
	case r:
		h = math.Mod((g-b)/delta, 6)
	case g:
		h = (b-r)/delta + 2
	default:
		h = (r-g)/delta + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	out.Hue = h
	return out
}

// HSBToRGB reconstructs rgb from a hue sector. Channels are not rounded.
func HSBToRGB(hsb HSB) RGB {
	h := math.Mod(hsb.Hue, 360)
	if h < 0 {
		h += 360
	}
	s := clamp(hsb.Saturation, 0, 100) / 100
	v := clamp(hsb.Brightness, 0, 100) / 100

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch sector := int(h / 60); sector {
	case 0:
		r, g, b = c, x, 0
	case 1:
		r, g, b = x, c, 0
	case 2:
		r, g, b = 0, c, x
	case 3:
		r, g, b = 0, x, c
	case 4:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return RGB{
		R: (r + m) * 255,
		G: (g + m) * 255,
		B: (b + m) * 255,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// SaturationToHex substitutes saturation while holding hue and brightness.
func SaturationToHex(saturation, hue, brightness float64) string {
	return HSB{Hue: hue, Saturation: saturation, Brightness: brightness}.Hex()
}

// HueToHex substitutes hue while holding saturation and brightness.
func HueToHex(hue, saturation, brightness float64) string {
	return HSB{Hue: hue, Saturation: saturation, Brightness: brightness}.Hex()
}

// Hex converts the triple to a hex string via RGB.
func (c HSB) Hex() string {
	return RGBToHex(HSBToRGB(c))
}

// SaturationHex returns the hex color for c with its saturation replaced.
func (c HSB) SaturationHex(saturation float64) string {
	return SaturationToHex(saturation, c.Hue, c.Brightness)
}

// HueHex returns the hex color for c with its hue replaced.
func (c HSB) HueHex(hue float64) string {
	return HueToHex(hue, c.Saturation, c.Brightness)
}

// FromHex parses hex and decomposes it into HSB.
func FromHex(hex string) (HSB, error) {
	rgb, err := HexToRGB(hex)
	if err != nil {
		return HSB{}, err
	}
	return RGBToHSB(rgb), nil
}
