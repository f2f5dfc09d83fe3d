// Package scope associates "memory is on, for this agent" with a span of
// execution. The association rides on context.Context, so concurrent call
// chains are isolated and nested activations shadow and restore for free.
package scope

import (
	"context"
	"sync"

	"github.com/agentic-learning/go-learning/pkg/capability"
)

// Config is the active scope configuration. It is immutable once created; a
// new activation builds a new value, never mutates an existing one.
type Config struct {
	// Agent names the memory-service agent turns are attributed to.
	Agent string

	// Client is the capability surface used for retrieval and capture.
	Client capability.Client

	// CaptureOnly disables memory injection while still persisting turns.
	CaptureOnly bool

	// MemoryBlocks selects the block labels a newly created agent starts
	// with.
	MemoryBlocks []string

	// Model is the default model recorded on a newly created agent.
	Model string
}

type ctxKey struct{}

var (
	installMu   sync.Mutex
	installHook func()
	installOnce sync.Once
)

// SetInstallHook registers the function run on the first activation in the
// process. The interceptor registry uses it to install itself lazily without
// this package importing it.
func SetInstallHook(fn func()) {
	installMu.Lock()
	installHook = fn
	installMu.Unlock()
}

func runInstallHook() {
	installOnce.Do(func() {
		installMu.Lock()
		fn := installHook
		installMu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// With activates the configuration for the returned context's lifetime. Work
// derived from the returned context observes cfg via Current; the parent
// context is untouched, so "exit" is simply returning to it.
func With(ctx context.Context, cfg Config) context.Context {
	runInstallHook()
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// Current returns the configuration active for this execution path, or false
// when none is.
func Current(ctx context.Context) (Config, bool) {
	cfg, ok := ctx.Value(ctxKey{}).(Config)
	return cfg, ok
}

// Run activates cfg around fn. Restoration is inherent: the scoped context
// dies with the callback on every exit path, panics included.
func Run(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	return fn(With(ctx, cfg))
}
