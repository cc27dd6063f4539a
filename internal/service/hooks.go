package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"authlog-service/internal/models"
	"authlog-service/internal/util"
)

// HookFunc is the callable hook shape. Hooks observe a persisted record;
// they cannot veto or alter the event.
type HookFunc func(ctx context.Context, record *models.AuthLog)

// HookExecutor runs per-event hooks after the event pipeline finishes. A
// hook can be bound as a function or resolved by registered name; either
// way its failures (including panics) are logged and never propagate into
// the event path.
type HookExecutor struct {
	mu       sync.RWMutex
	registry map[string]HookFunc
	bound    map[models.EventLevel][]HookFunc
	named    map[models.EventLevel]string
	logger   *zap.Logger
}

func NewHookExecutor(logger *zap.Logger) *HookExecutor {
	return &HookExecutor{
		registry: make(map[string]HookFunc),
		bound:    make(map[models.EventLevel][]HookFunc),
		named:    make(map[models.EventLevel]string),
		logger:   logger,
	}
}

// RegisterHandler makes a named hook available for configuration lookup.
func (h *HookExecutor) RegisterHandler(name string, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registry[name] = fn
}

// RegisteredHandlers returns the sorted names of all registered handlers.
func (h *HookExecutor) RegisteredHandlers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.registry))
	for name := range h.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind attaches a callable hook to an event level.
func (h *HookExecutor) Bind(level models.EventLevel, fn HookFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bound[level] = append(h.bound[level], fn)
}

// BindNamed attaches a registered handler to an event level by name. An
// empty name is a no-op; an unknown name is an error so misconfiguration
// surfaces at startup rather than as silently skipped hooks.
func (h *HookExecutor) BindNamed(level models.EventLevel, name string) error {
	if name == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.registry[name]; !ok {
		return fmt.Errorf("unknown hook handler %q for event %s", name, level)
	}
	h.named[level] = name
	return nil
}

// Run executes all hooks bound to the event level. Hook errors and panics
// are contained per hook; one misbehaving hook does not stop the others.
func (h *HookExecutor) Run(ctx context.Context, level models.EventLevel, record *models.AuthLog) {
	h.mu.RLock()
	hooks := make([]HookFunc, 0, len(h.bound[level])+1)
	hooks = append(hooks, h.bound[level]...)
	if name, ok := h.named[level]; ok {
		if fn, found := h.registry[name]; found {
			hooks = append(hooks, fn)
		}
	}
	h.mu.RUnlock()

	for _, fn := range hooks {
		h.runOne(ctx, level, record, fn)
	}
}

func (h *HookExecutor) runOne(ctx context.Context, level models.EventLevel, record *models.AuthLog, fn HookFunc) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("event hook panicked",
				util.String("event", string(level)),
				util.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(ctx, record)
}
