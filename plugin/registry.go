package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/event"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting an event only touches the
// plugins that implement the matching hook.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onEvent               []OnEvent
	onTransfer            []OnTransfer
	onInvocationFailed    []OnInvocationFailed
	onInitialized         []OnInitialized
	onAgentChanged        []OnAgentChanged
	onFeeUpdated          []OnFeeUpdated
	onPauseChanged        []OnPauseChanged
	onFeesWithdrawn       []OnFeesWithdrawn
	onDailyLimitSet       []OnDailyLimitSet
	onRemittanceCreated   []OnRemittanceCreated
	onRemittanceCompleted []OnRemittanceCompleted
	onRemittanceCancelled []OnRemittanceCancelled
	onSettlementCompleted []OnSettlementCompleted
	onBatchStarted        []OnBatchStarted
	onBatchCompleted      []OnBatchCompleted
	onBatchFailed         []OnBatchFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	cache(p, &r.onInit)
	cache(p, &r.onShutdown)
	cache(p, &r.onEvent)
	cache(p, &r.onTransfer)
	cache(p, &r.onInvocationFailed)
	cache(p, &r.onInitialized)
	cache(p, &r.onAgentChanged)
	cache(p, &r.onFeeUpdated)
	cache(p, &r.onPauseChanged)
	cache(p, &r.onFeesWithdrawn)
	cache(p, &r.onDailyLimitSet)
	cache(p, &r.onRemittanceCreated)
	cache(p, &r.onRemittanceCompleted)
	cache(p, &r.onRemittanceCancelled)
	cache(p, &r.onSettlementCompleted)
	cache(p, &r.onBatchStarted)
	cache(p, &r.onBatchCompleted)
	cache(p, &r.onBatchFailed)

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

func cache[T Plugin](p Plugin, list *[]T) {
	if v, ok := p.(T); ok {
		*list = append(*list, v)
	}
}

// implementedInterfaces returns the hook names implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type) {
		if v.Implements(iface) {
			interfaces = append(interfaces, iface.Name())
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem())
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem())
	check(reflect.TypeOf((*OnEvent)(nil)).Elem())
	check(reflect.TypeOf((*OnTransfer)(nil)).Elem())
	check(reflect.TypeOf((*OnInvocationFailed)(nil)).Elem())
	check(reflect.TypeOf((*OnRemittanceCreated)(nil)).Elem())
	check(reflect.TypeOf((*OnRemittanceCompleted)(nil)).Elem())
	check(reflect.TypeOf((*OnRemittanceCancelled)(nil)).Elem())
	check(reflect.TypeOf((*OnBatchCompleted)(nil)).Elem())
	check(reflect.TypeOf((*OnBatchFailed)(nil)).Elem())

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	dispatch(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	dispatch(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitTransfer reports an executed custody move.
func (r *Registry) EmitTransfer(ctx context.Context, m custody.Move) {
	r.mu.RLock()
	plugins := r.onTransfer
	r.mu.RUnlock()

	dispatch(ctx, r, "OnTransfer", plugins, func(p OnTransfer) error {
		return p.OnTransfer(ctx, m)
	})
}

// EmitInvocationFailed reports an aborted operation.
func (r *Registry) EmitInvocationFailed(ctx context.Context, op string, err error) {
	r.mu.RLock()
	plugins := r.onInvocationFailed
	r.mu.RUnlock()

	dispatch(ctx, r, "OnInvocationFailed", plugins, func(p OnInvocationFailed) error {
		return p.OnInvocationFailed(ctx, op, err)
	})
}

// Emit delivers ev to OnEvent plugins and then to the typed hook matching
// its payload.
func (r *Registry) Emit(ctx context.Context, ev event.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dispatch(ctx, r, "OnEvent", r.onEvent, func(p OnEvent) error {
		return p.OnEvent(ctx, ev)
	})

	switch e := ev.Payload.(type) {
	case event.Initialized:
		dispatch(ctx, r, "OnInitialized", r.onInitialized, func(p OnInitialized) error {
			return p.OnInitialized(ctx, e)
		})
	case event.AgentChanged:
		dispatch(ctx, r, "OnAgentChanged", r.onAgentChanged, func(p OnAgentChanged) error {
			return p.OnAgentChanged(ctx, e)
		})
	case event.FeeUpdated:
		dispatch(ctx, r, "OnFeeUpdated", r.onFeeUpdated, func(p OnFeeUpdated) error {
			return p.OnFeeUpdated(ctx, e)
		})
	case event.PauseChanged:
		dispatch(ctx, r, "OnPauseChanged", r.onPauseChanged, func(p OnPauseChanged) error {
			return p.OnPauseChanged(ctx, e)
		})
	case event.FeesWithdrawn:
		dispatch(ctx, r, "OnFeesWithdrawn", r.onFeesWithdrawn, func(p OnFeesWithdrawn) error {
			return p.OnFeesWithdrawn(ctx, e)
		})
	case event.DailyLimitSet:
		dispatch(ctx, r, "OnDailyLimitSet", r.onDailyLimitSet, func(p OnDailyLimitSet) error {
			return p.OnDailyLimitSet(ctx, e)
		})
	case event.RemittanceCreated:
		dispatch(ctx, r, "OnRemittanceCreated", r.onRemittanceCreated, func(p OnRemittanceCreated) error {
			return p.OnRemittanceCreated(ctx, e)
		})
	case event.RemittanceCompleted:
		dispatch(ctx, r, "OnRemittanceCompleted", r.onRemittanceCompleted, func(p OnRemittanceCompleted) error {
			return p.OnRemittanceCompleted(ctx, e)
		})
	case event.RemittanceCancelled:
		dispatch(ctx, r, "OnRemittanceCancelled", r.onRemittanceCancelled, func(p OnRemittanceCancelled) error {
			return p.OnRemittanceCancelled(ctx, e)
		})
	case event.SettlementCompleted:
		dispatch(ctx, r, "OnSettlementCompleted", r.onSettlementCompleted, func(p OnSettlementCompleted) error {
			return p.OnSettlementCompleted(ctx, e)
		})
	case event.BatchStarted:
		dispatch(ctx, r, "OnBatchStarted", r.onBatchStarted, func(p OnBatchStarted) error {
			return p.OnBatchStarted(ctx, e)
		})
	case event.BatchCompleted:
		dispatch(ctx, r, "OnBatchCompleted", r.onBatchCompleted, func(p OnBatchCompleted) error {
			return p.OnBatchCompleted(ctx, e)
		})
	case event.BatchFailed:
		dispatch(ctx, r, "OnBatchFailed", r.onBatchFailed, func(p OnBatchFailed) error {
			return p.OnBatchFailed(ctx, e)
		})
	}
}

// dispatch calls fn for every plugin, logging failures.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout. A panic in the
// plugin is returned as an error.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, p)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
