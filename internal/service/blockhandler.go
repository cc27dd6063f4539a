package service

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"authlog-service/internal/models"
)

// BlockHandler turns a suspicious login record into the response that stops
// the attempt. Handlers are pure; side effects belong in hooks.
type BlockHandler func(record *models.AuthLog) *models.BlockResponse

// BlockHandlerRegistry resolves configured handler names. Resolution happens
// once at startup so a bad name fails loudly instead of at the first
// suspicious login.
type BlockHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]BlockHandler
}

func NewBlockHandlerRegistry() *BlockHandlerRegistry {
	r := &BlockHandlerRegistry{handlers: make(map[string]BlockHandler)}
	r.Register("generic", GenericBlockHandler)
	r.Register("redirect", RedirectBlockHandler("/login"))
	return r
}

func (r *BlockHandlerRegistry) Register(name string, handler BlockHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Resolve returns the handler registered under name, or an error naming the
// available handlers when the lookup fails.
func (r *BlockHandlerRegistry) Resolve(name string) (BlockHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[name]
	if !ok {
		names := make([]string, 0, len(r.handlers))
		for n := range r.handlers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("block handler %q is not registered (available: %v)", name, names)
	}
	return handler, nil
}

// GenericBlockHandler denies the login with a neutral message that reveals
// nothing about why it was flagged.
func GenericBlockHandler(_ *models.AuthLog) *models.BlockResponse {
	return &models.BlockResponse{
		StatusCode: http.StatusForbidden,
		Message:    "Access denied.",
	}
}

// RedirectBlockHandler sends the client to the given path instead of
// returning an error body.
func RedirectBlockHandler(target string) BlockHandler {
	return func(_ *models.AuthLog) *models.BlockResponse {
		return &models.BlockResponse{
			StatusCode: http.StatusFound,
			RedirectTo: target,
		}
	}
}
