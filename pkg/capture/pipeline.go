// Package capture turns completed provider exchanges into persisted memory.
// Everything here is a side channel: failures are swallowed, dispatch is
// asynchronous, and the provider call path is never blocked on it.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/agentic-learning/go-learning/pkg/capability"
	"github.com/agentic-learning/go-learning/pkg/debuglog"
	"github.com/agentic-learning/go-learning/pkg/scope"
)

// Pipeline resolves the active scope, resolves or creates the target agent,
// and hands turns to the capability client's capture operation.
type Pipeline struct {
	wg      sync.WaitGroup
	timeout time.Duration
}

// NewPipeline creates a pipeline. Dispatches run in the background with the
// given per-turn timeout; zero means a 30s default.
func NewPipeline(timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pipeline{timeout: timeout}
}

// Capture dispatches one turn for the scope active on ctx. It never blocks on
// the network, never returns an error to its caller, and is a no-op when no
// scope is active.
func (p *Pipeline) Capture(ctx context.Context, provider capability.Provider, model string, request []capability.ChatMessage, response capability.ChatMessage) {
	cfg, ok := scope.Current(ctx)
	if !ok || cfg.Client == nil || cfg.Agent == "" {
		return
	}
	turn := capability.Turn{
		Provider:        provider,
		Model:           model,
		RequestMessages: request,
		Response:        response,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				debuglog.Printf("[CAPTURE] dispatch panicked: %v", r)
			}
		}()

		// The caller's context may already be done by the time the turn is
		// persisted; dispatch gets its own deadline.
		dctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.ensureAgent(dctx, cfg); err != nil {
			debuglog.Printf("[CAPTURE] agent %q unavailable: %v", cfg.Agent, err)
			return
		}
		if err := cfg.Client.CaptureTurn(dctx, cfg.Agent, turn); err != nil {
			debuglog.Printf("[CAPTURE] capture failed for agent %q: %v", cfg.Agent, err)
			return
		}
		debuglog.Printf("[CAPTURE] stored %s turn for agent %q", provider, cfg.Agent)
	}()
}

// ensureAgent resolves the scope's agent by name, creating it with the
// scope's memory-block selection and model default when absent.
func (p *Pipeline) ensureAgent(ctx context.Context, cfg scope.Config) error {
	agent, err := cfg.Client.GetAgent(ctx, cfg.Agent)
	if err != nil {
		return err
	}
	if agent != nil {
		return nil
	}
	_, err = cfg.Client.CreateAgent(ctx, cfg.Agent, cfg.MemoryBlocks, cfg.Model)
	return err
}

// Flush blocks until every dispatched turn has settled or ctx expires. Meant
// for tests and graceful shutdown; the hot path never calls it.
func (p *Pipeline) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var defaultPipeline = NewPipeline(0)

// Default returns the process-wide pipeline used by the installed
// interceptors.
func Default() *Pipeline { return defaultPipeline }
