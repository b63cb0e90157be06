// Package reconcile keeps the set of accessory bindings in step with the
// devices SOL reports. Each pass fetches the device list and creates a
// binding for every identity token it has not seen before, refreshing the
// ones it already knows.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/solbridge/internal/accessory"
	"github.com/dokzlo13/solbridge/internal/eventbus"
	"github.com/dokzlo13/solbridge/internal/metrics"
	"github.com/dokzlo13/solbridge/internal/sol"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 30 * time.Second

// DeviceSource lists the devices currently known to SOL.
// An empty result means "nothing known right now", never an error.
type DeviceSource interface {
	ListDevices(ctx context.Context) []*sol.Device
}

// Host is the accessory host the bindings are exposed through.
type Host interface {
	Register(b *accessory.Binding) error
	Update(b *accessory.Binding) error
	Unregister(token string) error
}

// Publisher receives accessory lifecycle and write events.
type Publisher interface {
	Publish(event eventbus.Event)
}

// Cache keeps the last known device per identity token across restarts.
// storage.TypedStore[sol.Device] satisfies it.
type Cache interface {
	Set(token string, d sol.Device) error
	Delete(token string) error
	GetAll() (map[string]sol.Device, map[string]int64, error)
}

// Result summarizes one reconciliation pass.
type Result struct {
	Fetched int
	Created int
	Updated int
	Pruned  int
}

// Reconciler owns the token to binding map.
type Reconciler struct {
	source DeviceSource
	writer accessory.Writer
	host   Host
	cache  Cache     // optional
	events Publisher // optional

	interval     time.Duration
	pruneMissing bool

	mu         sync.RWMutex
	bindings   map[string]*accessory.Binding
	registered map[string]bool

	trigger chan struct{}
	passes  sync.WaitGroup
	ready   atomic.Bool
}

// New creates a reconciler. cache and events may be nil.
func New(source DeviceSource, writer accessory.Writer, host Host, cache Cache, events Publisher, interval time.Duration, pruneMissing bool) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		source:       source,
		writer:       writer,
		host:         host,
		cache:        cache,
		events:       events,
		interval:     interval,
		pruneMissing: pruneMissing,
		bindings:     make(map[string]*accessory.Binding),
		registered:   make(map[string]bool),
		trigger:      make(chan struct{}, 1),
	}
}

// Trigger requests an extra pass outside the regular interval.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// Ready reports whether at least one pass has completed.
func (r *Reconciler) Ready() bool {
	return r.ready.Load()
}

// Run reconciles once immediately and then once per interval until ctx is
// cancelled. Each pass runs on its own goroutine, so a slow fetch does not
// delay the next tick. Run waits for in-flight passes before returning.
func (r *Reconciler) Run(ctx context.Context) error {
	log.Info().Dur("interval", r.interval).Bool("prune_missing", r.pruneMissing).Msg("Reconciler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciler stopping")
			r.passes.Wait()
			return nil
		case <-r.trigger:
			r.spawn(ctx)
		case <-ticker.C:
			r.spawn(ctx)
		}
	}
}

func (r *Reconciler) spawn(ctx context.Context) {
	r.passes.Add(1)
	go func() {
		defer r.passes.Done()
		r.Reconcile(ctx)
	}()
}

// Reconcile runs one pass: fetch, then create or refresh a binding for each
// device in fetch order. Safe to call concurrently.
func (r *Reconciler) Reconcile(ctx context.Context) Result {
	start := time.Now()
	devices := r.source.ListDevices(ctx)
	res := Result{Fetched: len(devices)}

	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		if d == nil {
			continue
		}
		token := IdentityToken(d.ID)
		seen[token] = struct{}{}

		b, created, registered := r.upsert(token, d)
		if created {
			if r.register(b, eventbus.EventAccessoryCreated) {
				res.Created++
			}
		} else {
			if registered {
				if err := r.host.Update(b); err != nil {
					log.Error().Err(err).Str("token", token).Msg("Host update failed")
				}
			}
			r.publish(eventbus.EventAccessoryUpdated, token, deviceData(d))
			res.Updated++
		}
		r.persist(token, d)
	}

	if r.pruneMissing && len(devices) > 0 {
		res.Pruned = r.prune(seen)
	}

	metrics.ReconcilePasses.Inc()
	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	r.ready.Store(true)

	log.Debug().
		Int("fetched", res.Fetched).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("pruned", res.Pruned).
		Dur("took", time.Since(start)).
		Msg("Reconcile pass completed")
	return res
}

// upsert looks the token up and inserts a new binding when absent, in one
// critical section so overlapping passes agree on a single binding.
func (r *Reconciler) upsert(token string, d *sol.Device) (b *accessory.Binding, created, registered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bindings[token]; ok {
		b.Refresh(d)
		return b, false, r.registered[token]
	}

	b = r.newBinding(token, d)
	r.bindings[token] = b
	metrics.Accessories.Set(float64(len(r.bindings)))
	return b, true, false
}

// register hands a freshly inserted binding to the host. On failure the
// binding is dropped so the next pass retries.
func (r *Reconciler) register(b *accessory.Binding, event eventbus.EventType) bool {
	token := b.Token()
	d := b.Device()

	if err := r.host.Register(b); err != nil {
		log.Error().Err(err).Str("token", token).Str("name", d.Name).Msg("Host registration failed")
		r.mu.Lock()
		if r.bindings[token] == b {
			delete(r.bindings, token)
			metrics.Accessories.Set(float64(len(r.bindings)))
		}
		r.mu.Unlock()
		return false
	}

	r.mu.Lock()
	if r.bindings[token] == b {
		r.registered[token] = true
	}
	r.mu.Unlock()

	log.Info().Str("token", token).Str("id", d.ID).Str("name", d.Name).Str("type", string(d.Type)).Msg("Accessory added")
	r.publish(event, token, deviceData(d))
	return true
}

func (r *Reconciler) newBinding(token string, d *sol.Device) *accessory.Binding {
	b := accessory.New(token, d, r.writer)
	b.OnWrite(r.onWrite)
	return b
}

// onWrite records write outcomes and pushes confirmed state to the host.
func (r *Reconciler) onWrite(b *accessory.Binding, w accessory.Write) {
	data := map[string]interface{}{
		"characteristic": string(w.Characteristic),
		"value":          w.Value,
	}
	if !w.Confirmed {
		r.publish(eventbus.EventWriteFailed, b.Token(), data)
		return
	}

	r.publish(eventbus.EventWriteConfirmed, b.Token(), data)
	r.persist(b.Token(), b.Device())

	r.mu.RLock()
	registered := r.registered[b.Token()]
	r.mu.RUnlock()
	if registered {
		if err := r.host.Update(b); err != nil {
			log.Error().Err(err).Str("token", b.Token()).Msg("Host update after write failed")
		}
	}
}

// prune removes bindings whose token was not in the latest fetch.
func (r *Reconciler) prune(seen map[string]struct{}) int {
	r.mu.Lock()
	var stale []string
	for token := range r.bindings {
		if _, ok := seen[token]; !ok {
			stale = append(stale, token)
			delete(r.bindings, token)
			delete(r.registered, token)
		}
	}
	metrics.Accessories.Set(float64(len(r.bindings)))
	r.mu.Unlock()

	sort.Strings(stale)
	for _, token := range stale {
		if err := r.host.Unregister(token); err != nil {
			log.Error().Err(err).Str("token", token).Msg("Host unregister failed")
		}
		if r.cache != nil {
			if err := r.cache.Delete(token); err != nil {
				log.Warn().Err(err).Str("token", token).Msg("Failed to drop cached device")
			}
		}
		log.Info().Str("token", token).Msg("Accessory pruned")
		r.publish(eventbus.EventAccessoryPruned, token, nil)
	}
	return len(stale)
}

// Restore re-creates bindings for the devices in the cache, so accessories
// are available before the first fetch completes. Tokens that already have
// a binding are left alone.
func (r *Reconciler) Restore(ctx context.Context) (int, error) {
	if r.cache == nil {
		return 0, nil
	}

	devices, _, err := r.cache.GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to load accessory cache: %w", err)
	}

	tokens := make([]string, 0, len(devices))
	for token := range devices {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	restored := 0
	for _, token := range tokens {
		if ctx.Err() != nil {
			return restored, ctx.Err()
		}
		d := devices[token]

		r.mu.Lock()
		if _, ok := r.bindings[token]; ok {
			r.mu.Unlock()
			continue
		}
		b := r.newBinding(token, &d)
		r.bindings[token] = b
		metrics.Accessories.Set(float64(len(r.bindings)))
		r.mu.Unlock()

		if r.register(b, eventbus.EventAccessoryRestored) {
			restored++
		}
	}

	log.Info().Int("count", restored).Msg("Restored cached accessories")
	return restored, nil
}

// Bindings returns a snapshot of the known bindings ordered by token.
func (r *Reconciler) Bindings() []*accessory.Binding {
	r.mu.RLock()
	out := make([]*accessory.Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Token() < out[j].Token() })
	return out
}

// Binding looks up one binding by identity token.
func (r *Reconciler) Binding(token string) (*accessory.Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[token]
	return b, ok
}

func (r *Reconciler) persist(token string, d *sol.Device) {
	if r.cache == nil || d == nil {
		return
	}
	if err := r.cache.Set(token, *d); err != nil {
		log.Warn().Err(err).Str("token", token).Msg("Failed to cache device")
	}
}

func (r *Reconciler) publish(t eventbus.EventType, token string, data map[string]interface{}) {
	if r.events == nil {
		return
	}
	r.events.Publish(eventbus.Event{Type: t, Token: token, Data: data})
}

func deviceData(d *sol.Device) map[string]interface{} {
	return map[string]interface{}{
		"id":      d.ID,
		"name":    d.Name,
		"type":    string(d.Type),
		"version": d.Version,
	}
}
