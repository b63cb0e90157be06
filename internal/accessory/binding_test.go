package accessory

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/solbridge/internal/color"
	"github.com/dokzlo13/solbridge/internal/sol"
)

// fakeWriter echoes each request back as a confirmed device unless fail is set.
type fakeWriter struct {
	mu     sync.Mutex
	fail   bool
	colors []string
	calls  int
}

func (f *fakeWriter) respond(d *sol.Device, mutate func(*sol.State)) *sol.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil
	}
	next := d.Clone()
	next.Version = "2"
	mutate(&next.State)
	return next
}

func (f *fakeWriter) SetSwitch(_ context.Context, d *sol.Device, enabled bool) *sol.Device {
	return f.respond(d, func(s *sol.State) { s.On = enabled })
}

func (f *fakeWriter) SetBrightness(_ context.Context, d *sol.Device, value int) *sol.Device {
	return f.respond(d, func(s *sol.State) { s.Brightness = float64(value) })
}

func (f *fakeWriter) SetColor(_ context.Context, d *sol.Device, hex string) *sol.Device {
	f.mu.Lock()
	f.colors = append(f.colors, hex)
	f.mu.Unlock()
	return f.respond(d, func(s *sol.State) { s.RGB = "#" + hex })
}

func lamp() *sol.Device {
	return &sol.Device{
		ID:         "lamp-1",
		Reference:  "ref-1",
		Name:       "Desk Lamp",
		Type:       sol.TypeLightbulb,
		Version:    "1",
		Capability: sol.Capability{Brightness: true, Color: true},
		State: sol.State{
			On:         false,
			Brightness: 10,
			RGB:        "#ff0000",
			HSB:        color.HSB{Hue: 0, Saturation: 100, Brightness: 100},
		},
		Elements: []sol.Element{},
	}
}

func TestBinding_Reads(t *testing.T) {
	d := lamp()
	d.State.Temperature = 21
	d.State.Humidity = 40
	b := New("tok", d, &fakeWriter{})

	assert.Equal(t, "tok", b.Token())
	assert.False(t, b.On())
	assert.Equal(t, 10.0, b.Brightness())
	assert.Equal(t, 0.0, b.Hue())
	assert.Equal(t, 100.0, b.Saturation())
	assert.Equal(t, 21.0, b.CurrentTemperature())
	assert.Equal(t, 40.0, b.CurrentHumidity())
	assert.Equal(t, DarkLux, b.AmbientLight())

	v, ok := b.Value(Color)
	assert.True(t, ok)
	assert.Equal(t, "#ff0000", v)
	_, ok = b.Value("Bogus")
	assert.False(t, ok)
}

func TestBinding_Values(t *testing.T) {
	b := New("tok", lamp(), &fakeWriter{})
	assert.Equal(t, map[Characteristic]any{
		On:         false,
		Brightness: 10.0,
		Saturation: 100.0,
		Hue:        0.0,
	}, b.Values())
}

func TestBinding_AmbientLightOn(t *testing.T) {
	d := lamp()
	d.Type = sol.TypeDaylight
	d.State.On = true
	b := New("tok", d, &fakeWriter{})
	assert.Equal(t, float64(DaylightLux), b.AmbientLight())
}

func TestBinding_SetOnConfirmed(t *testing.T) {
	w := &fakeWriter{}
	b := New("tok", lamp(), w)

	var got []Write
	b.OnWrite(func(_ *Binding, wr Write) { got = append(got, wr) })

	require.NoError(t, b.SetOn(context.Background(), true))
	assert.True(t, b.On())
	assert.Equal(t, "2", b.Device().Version)
	require.Len(t, got, 1)
	assert.Equal(t, Write{Characteristic: On, Value: true, Confirmed: true}, got[0])
}

func TestBinding_WriteFailureKeepsCache(t *testing.T) {
	w := &fakeWriter{fail: true}
	original := lamp()
	b := New("tok", original, w)

	var got []Write
	b.OnWrite(func(_ *Binding, wr Write) { got = append(got, wr) })

	require.NoError(t, b.SetOn(context.Background(), true))
	require.NoError(t, b.SetBrightness(context.Background(), 90))
	require.NoError(t, b.SetHue(context.Background(), 120))

	assert.Same(t, original, b.Device())
	assert.False(t, b.On())
	assert.Equal(t, 10.0, b.Brightness())
	assert.Equal(t, 0.0, b.Hue())
	require.Len(t, got, 3)
	for _, wr := range got {
		assert.False(t, wr.Confirmed)
	}
}

func TestBinding_SetHueHoldsSaturationAndBrightness(t *testing.T) {
	w := &fakeWriter{}
	b := New("tok", lamp(), w)

	require.NoError(t, b.SetHue(context.Background(), 120))
	require.Equal(t, []string{"00ff00"}, w.colors)
	assert.Equal(t, 120.0, b.Hue())
	assert.Equal(t, 100.0, b.Saturation())
	assert.Equal(t, "#00ff00", b.Device().State.RGB)
}

func TestBinding_HueThenSaturationMerge(t *testing.T) {
	w := &fakeWriter{}
	b := New("tok", lamp(), w)

	require.NoError(t, b.SetHue(context.Background(), 240))
	require.NoError(t, b.SetSaturation(context.Background(), 50))

	require.Equal(t, []string{"0000ff", "8080ff"}, w.colors)
	assert.Equal(t, 240.0, b.Hue())
	assert.Equal(t, 50.0, b.Saturation())
}

func TestBinding_SetBrightness(t *testing.T) {
	b := New("tok", lamp(), &fakeWriter{})
	require.NoError(t, b.SetBrightness(context.Background(), 65))
	assert.Equal(t, 65.0, b.Brightness())
}

func TestBinding_SetColorInvalid(t *testing.T) {
	w := &fakeWriter{}
	b := New("tok", lamp(), w)

	err := b.SetColor(context.Background(), "not-a-color")
	assert.True(t, errors.Is(err, color.ErrInvalidFormat))
	assert.Zero(t, w.calls)
}

func TestBinding_SetColor(t *testing.T) {
	w := &fakeWriter{}
	b := New("tok", lamp(), w)

	require.NoError(t, b.SetColor(context.Background(), "#0F0"))
	assert.Equal(t, []string{"00ff00"}, w.colors)
	assert.Equal(t, "#00ff00", b.Device().State.RGB)
	assert.InDelta(t, 120, b.Hue(), 0.01)
}

func TestBinding_Set(t *testing.T) {
	w := &fakeWriter{}
	b := New("tok", lamp(), w)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, On, "ON"))
	assert.True(t, b.On())
	require.NoError(t, b.Set(ctx, On, "false"))
	assert.False(t, b.On())
	require.NoError(t, b.Set(ctx, Brightness, "42.6"))
	assert.Equal(t, 43.0, b.Brightness())
	require.NoError(t, b.Set(ctx, Saturation, "0"))
	assert.Equal(t, 0.0, b.Saturation())

	assert.Error(t, b.Set(ctx, On, "maybe"))
	assert.Error(t, b.Set(ctx, Hue, "red"))
	assert.Error(t, b.Set(ctx, CurrentTemperature, "20"))
}

func TestBinding_Refresh(t *testing.T) {
	b := New("tok", lamp(), &fakeWriter{})
	services := b.Services()

	next := lamp()
	next.State.On = true
	next.Capability = sol.Capability{}
	b.Refresh(next)
	b.Refresh(nil)

	assert.Same(t, next, b.Device())
	assert.True(t, b.On())
	assert.Equal(t, services, b.Services(), "refresh keeps the wired services")
}

func TestBinding_ConcurrentAccess(t *testing.T) {
	b := New("tok", lamp(), &fakeWriter{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = b.SetHue(ctx, float64(i*10))
		}(i)
		go func() {
			defer wg.Done()
			next := lamp()
			b.Refresh(next)
			_ = b.Hue()
		}()
	}
	wg.Wait()
	assert.NotNil(t, b.Device())
}

func TestBinding_SetNormalizesRange(t *testing.T) {
	tests := []struct {
		name  string
		c     Characteristic
		raw   string
		read  func(*Binding) float64
		want  float64
		color string
	}{
		{name: "hue/negative_wraps", c: Hue, raw: "-30", read: (*Binding).Hue, want: 330, color: "ff0080"},
		{name: "hue/full_turn_wraps", c: Hue, raw: "360", read: (*Binding).Hue, want: 0, color: "ff0000"},
		{name: "hue/above_turn_wraps", c: Hue, raw: "480", read: (*Binding).Hue, want: 120, color: "00ff00"},
		{name: "saturation/above_clamps", c: Saturation, raw: "250", read: (*Binding).Saturation, want: 100, color: "ff0000"},
		{name: "saturation/below_clamps", c: Saturation, raw: "-5", read: (*Binding).Saturation, want: 0, color: "ffffff"},
		{name: "brightness/above_clamps", c: Brightness, raw: "500", read: (*Binding).Brightness, want: 100},
		{name: "brightness/below_clamps", c: Brightness, raw: "-20", read: (*Binding).Brightness, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{}
			b := New("tok", lamp(), w)

			require.NoError(t, b.Set(context.Background(), tt.c, tt.raw))
			assert.InDelta(t, tt.want, tt.read(b), 0.0001)
			if tt.color != "" {
				assert.Equal(t, []string{tt.color}, w.colors)
			}

			_, err := json.Marshal(b.Device())
			assert.NoError(t, err)
		})
	}
}

func TestBinding_SetBrightnessSendsClamped(t *testing.T) {
	w := &brightnessRecorder{}
	b := New("tok", lamp(), w)

	require.NoError(t, b.SetBrightness(context.Background(), 500))
	require.NoError(t, b.SetBrightness(context.Background(), -3))
	assert.Equal(t, []int{100, 0}, w.sent)
}

func TestBinding_RejectsNonFinite(t *testing.T) {
	ctx := context.Background()
	for _, c := range []Characteristic{Hue, Saturation, Brightness} {
		for _, raw := range []string{"NaN", "Inf", "-Inf", "+Inf"} {
			w := &fakeWriter{}
			b := New("tok", lamp(), w)

			err := b.Set(ctx, c, raw)
			assert.ErrorIs(t, err, ErrInvalidValue, "%s=%s", c, raw)
			assert.Zero(t, w.calls, "%s=%s", c, raw)
		}
	}

	b := New("tok", lamp(), &fakeWriter{})
	assert.ErrorIs(t, b.SetHue(ctx, math.NaN()), ErrInvalidValue)
	assert.ErrorIs(t, b.SetSaturation(ctx, math.Inf(1)), ErrInvalidValue)

	_, err := json.Marshal(b.Values())
	assert.NoError(t, err)
}

// brightnessRecorder records brightness values sent to SOL.
type brightnessRecorder struct {
	fakeWriter
	sent []int
}

func (r *brightnessRecorder) SetBrightness(ctx context.Context, d *sol.Device, value int) *sol.Device {
	r.sent = append(r.sent, value)
	return r.fakeWriter.SetBrightness(ctx, d, value)
}
