package shutdown

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
)

func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Hooks collects teardown functions and runs them in reverse registration
// order, so resources close after everything that depends on them.
type Hooks struct {
	mu  sync.Mutex
	fns []hook
}

type hook struct {
	name string
	fn   func(context.Context) error
}

func (h *Hooks) Add(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, hook{name: name, fn: fn})
	h.mu.Unlock()
}

// Run executes every hook once, even if earlier hooks fail, and joins the errors.
func (h *Hooks) Run(ctx context.Context) error {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i].fn(ctx); err != nil {
			errs = append(errs, errors.New(fns[i].name+": "+err.Error()))
		}
	}
	return errors.Join(errs...)
}
