// Package host contains the accessory hosts the reconciler exposes bindings
// through: an in-process registry and an MQTT mirror.
package host

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/solbridge/internal/accessory"
)

// ErrUnknownAccessory is returned when updating a token that was never registered.
var ErrUnknownAccessory = errors.New("unknown accessory")

// Memory is an in-process registry. It only records and logs bindings.
type Memory struct {
	mu          sync.RWMutex
	accessories map[string]*accessory.Binding
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{accessories: make(map[string]*accessory.Binding)}
}

func (m *Memory) Register(b *accessory.Binding) error {
	m.mu.Lock()
	m.accessories[b.Token()] = b
	m.mu.Unlock()

	info := b.Info()
	kinds := make([]string, 0, len(b.Services()))
	for _, s := range b.Services() {
		kinds = append(kinds, string(s.Kind))
	}
	log.Info().
		Str("token", b.Token()).
		Str("name", info.Name).
		Strs("services", kinds).
		Msg("Accessory registered")
	return nil
}

func (m *Memory) Update(b *accessory.Binding) error {
	m.mu.RLock()
	_, ok := m.accessories[b.Token()]
	m.mu.RUnlock()
	if !ok {
		return ErrUnknownAccessory
	}
	log.Debug().Str("token", b.Token()).Interface("values", b.Values()).Msg("Accessory updated")
	return nil
}

func (m *Memory) Unregister(token string) error {
	m.mu.Lock()
	delete(m.accessories, token)
	m.mu.Unlock()
	log.Info().Str("token", token).Msg("Accessory unregistered")
	return nil
}

// Tokens lists registered tokens in order.
func (m *Memory) Tokens() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.accessories))
	for token := range m.accessories {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}
