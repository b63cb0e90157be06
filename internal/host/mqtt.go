package host

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/solbridge/internal/accessory"
	"github.com/dokzlo13/solbridge/internal/sol"
)

// DefaultTopicPrefix roots every accessory topic.
const DefaultTopicPrefix = "solbridge"

// DefaultWriteTimeout bounds a write driven by a set message.
const DefaultWriteTimeout = 15 * time.Second

// configMessage is the retained description published on <prefix>/<token>/config.
type configMessage struct {
	Token    string                  `json:"token"`
	Type     sol.Type                `json:"type"`
	Info     accessory.Info          `json:"info"`
	Services []accessory.ServiceSpec `json:"services"`
}

// MQTT mirrors accessories to a broker. Each accessory gets a retained
// config and state topic and accepts writes on <prefix>/<token>/set/<characteristic>.
type MQTT struct {
	client       Client
	prefix       string
	writeTimeout time.Duration

	mu       sync.RWMutex
	bindings map[string]*accessory.Binding

	// base bounds writes driven by set messages; cancelled on shutdown
	base      context.Context
	writes    sync.WaitGroup
	closeOnce sync.Once
}

// NewMQTT creates a host publishing under prefix.
func NewMQTT(client Client, prefix string, writeTimeout time.Duration) *MQTT {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &MQTT{
		client:       client,
		prefix:       strings.TrimSuffix(prefix, "/"),
		writeTimeout: writeTimeout,
		bindings:     make(map[string]*accessory.Binding),
		base:         context.Background(),
	}
}

// Start subscribes to set topics for all accessories. Writes started by
// set messages inherit ctx, so cancelling it aborts them.
func (h *MQTT) Start(ctx context.Context) error {
	h.mu.Lock()
	h.base = ctx
	h.mu.Unlock()

	topic := h.prefix + "/+/set/+"
	if err := h.client.Subscribe(topic, h.handleSet); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker and waits for in-flight writes until
// ctx is done. Calling Close more than once only waits again.
func (h *MQTT) Close(ctx context.Context) {
	h.closeOnce.Do(h.client.Disconnect)

	done := make(chan struct{})
	go func() {
		h.writes.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("MQTT writes still running at shutdown")
	}
}

func (h *MQTT) Register(b *accessory.Binding) error {
	h.mu.Lock()
	h.bindings[b.Token()] = b
	h.mu.Unlock()

	d := b.Device()
	payload, err := json.Marshal(configMessage{
		Token:    b.Token(),
		Type:     d.Type,
		Info:     b.Info(),
		Services: b.Services(),
	})
	if err != nil {
		return fmt.Errorf("marshal config for %s: %w", b.Token(), err)
	}
	if err := h.client.Publish(h.topic(b.Token(), "config"), payload, true); err != nil {
		return fmt.Errorf("publish config for %s: %w", b.Token(), err)
	}

	log.Info().Str("token", b.Token()).Str("name", d.Name).Msg("Accessory published to MQTT")
	return h.publishState(b)
}

func (h *MQTT) Update(b *accessory.Binding) error {
	h.mu.RLock()
	_, ok := h.bindings[b.Token()]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownAccessory
	}
	return h.publishState(b)
}

// Unregister clears the retained topics of token.
func (h *MQTT) Unregister(token string) error {
	h.mu.Lock()
	delete(h.bindings, token)
	h.mu.Unlock()

	for _, leaf := range []string{"config", "state"} {
		if err := h.client.Publish(h.topic(token, leaf), nil, true); err != nil {
			return fmt.Errorf("clear %s for %s: %w", leaf, token, err)
		}
	}
	log.Info().Str("token", token).Msg("Accessory removed from MQTT")
	return nil
}

func (h *MQTT) publishState(b *accessory.Binding) error {
	payload, err := json.Marshal(b.Values())
	if err != nil {
		return fmt.Errorf("marshal state for %s: %w", b.Token(), err)
	}
	if err := h.client.Publish(h.topic(b.Token(), "state"), payload, true); err != nil {
		return fmt.Errorf("publish state for %s: %w", b.Token(), err)
	}
	return nil
}

func (h *MQTT) topic(token, leaf string) string {
	return h.prefix + "/" + token + "/" + leaf
}

// handleSet dispatches <prefix>/<token>/set/<characteristic> to the binding.
// The write runs off the broker callback so slow SOL calls do not stall it.
func (h *MQTT) handleSet(topic string, payload []byte) {
	parts := strings.Split(strings.TrimPrefix(topic, h.prefix+"/"), "/")
	if len(parts) != 3 || parts[1] != "set" {
		log.Debug().Str("topic", topic).Msg("Ignoring unexpected MQTT topic")
		return
	}
	token, c := parts[0], accessory.Characteristic(parts[2])

	h.mu.RLock()
	b, ok := h.bindings[token]
	base := h.base
	h.mu.RUnlock()
	if !ok {
		log.Warn().Str("token", token).Msg("Set for unknown accessory")
		return
	}
	if base.Err() != nil {
		log.Debug().Str("token", token).Msg("Ignoring set during shutdown")
		return
	}

	value := string(payload)
	h.writes.Add(1)
	go func() {
		defer h.writes.Done()
		ctx, cancel := context.WithTimeout(base, h.writeTimeout)
		defer cancel()
		if err := b.Set(ctx, c, value); err != nil {
			log.Warn().Err(err).Str("token", token).Str("characteristic", string(c)).Str("value", value).Msg("MQTT set rejected")
		}
	}()
}
