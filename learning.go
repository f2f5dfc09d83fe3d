// Package learning adds transparent, cross-call conversational memory to LLM
// client invocations. Activate a scope around ordinary SDK calls and every
// call made under it is observed: stored memory context is injected into the
// request and the completed exchange is captured to the memory service,
// without the call sites changing.
//
//	ctx := learning.With(context.Background(), learning.WithAgent("quickstart-demo"))
//	resp, err := client.CreateChatCompletion(ctx, req) // observed and remembered
package learning

import (
	"context"

	"github.com/agentic-learning/go-learning/pkg/capability"
	"github.com/agentic-learning/go-learning/pkg/intercept"
	"github.com/agentic-learning/go-learning/pkg/scope"
)

// Config is the active scope configuration, as returned by Current.
type Config = scope.Config

// Option configures a scope activation.
type Option func(*scope.Config)

// WithAgent names the memory-service agent turns are attributed to.
func WithAgent(name string) Option {
	return func(c *scope.Config) { c.Agent = name }
}

// WithClient sets the capability client; without it a default HTTP client for
// the configured memory service is used.
func WithClient(client capability.Client) Option {
	return func(c *scope.Config) { c.Client = client }
}

// WithCaptureOnly disables memory injection while still persisting turns.
func WithCaptureOnly() Option {
	return func(c *scope.Config) { c.CaptureOnly = true }
}

// WithMemoryBlocks selects the block labels a newly created agent starts
// with.
func WithMemoryBlocks(labels ...string) Option {
	return func(c *scope.Config) { c.MemoryBlocks = labels }
}

// WithModel records a default model on a newly created agent.
func WithModel(model string) Option {
	return func(c *scope.Config) { c.Model = model }
}

func buildConfig(opts []Option) scope.Config {
	var cfg scope.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Client == nil {
		cfg.Client = capability.NewHTTPClient("")
	}
	return cfg
}

// With activates a learning scope on the returned context. The first
// activation in the process installs the available interceptors.
func With(ctx context.Context, opts ...Option) context.Context {
	return scope.With(ctx, buildConfig(opts))
}

// Run activates a learning scope around fn, releasing it on every exit path.
func Run(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	return scope.Run(ctx, buildConfig(opts), fn)
}

// Current returns the configuration active on ctx, or false when none is.
func Current(ctx context.Context) (Config, bool) {
	return scope.Current(ctx)
}

// Uninstall tears down the process-wide interceptor install, restoring the
// transport that was in place before the first activation.
func Uninstall() {
	intercept.DefaultRegistry().Uninstall()
}
