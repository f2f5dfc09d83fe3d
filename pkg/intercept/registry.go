package intercept

import (
	"net/http"
	"os"
	"os/exec"
	"sync"

	"github.com/agentic-learning/go-learning/pkg/capability"
	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/debuglog"
	"github.com/agentic-learning/go-learning/pkg/scope"
)

// Interceptor is one provider's registration: an availability probe plus the
// wire codec the tap routes through. Variants intercepted at construction
// time rather than on the wire (the Claude CLI transport) register with a nil
// codec so they still show up in availability reporting.
type Interceptor interface {
	Provider() capability.Provider
	Available() bool
	Codec() Codec
}

type envInterceptor struct {
	codec   Codec
	envKeys []string
}

func (e envInterceptor) Provider() capability.Provider { return e.codec.Provider() }
func (e envInterceptor) Codec() Codec                  { return e.codec }

// Available probes for credentials the way the SDKs themselves resolve them.
// It never errors: no key means the provider simply stays unintercepted.
func (e envInterceptor) Available() bool {
	if len(e.envKeys) == 0 {
		return true
	}
	for _, key := range e.envKeys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// NewOpenAIInterceptor intercepts chat-completions calls.
func NewOpenAIInterceptor() Interceptor {
	return envInterceptor{codec: OpenAICodec{}, envKeys: []string{"OPENAI_API_KEY", "OPENAI_KEY"}}
}

// NewAnthropicInterceptor intercepts Messages API calls.
func NewAnthropicInterceptor() Interceptor {
	return envInterceptor{codec: AnthropicCodec{}, envKeys: []string{"ANTHROPIC_API_KEY"}}
}

// NewGeminiInterceptor intercepts generateContent calls.
func NewGeminiInterceptor() Interceptor {
	return envInterceptor{codec: GeminiCodec{}, envKeys: []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}}
}

// NewOllamaInterceptor intercepts local Ollama calls. No credentials exist to
// probe; the codec's path matching keeps it inert otherwise.
func NewOllamaInterceptor() Interceptor {
	return envInterceptor{codec: OllamaCodec{}}
}

type cliInterceptor struct{ binary string }

func (c cliInterceptor) Provider() capability.Provider { return capability.ProviderClaude }
func (c cliInterceptor) Codec() Codec                  { return nil }
func (c cliInterceptor) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// NewClaudeInterceptor reports availability of the Claude CLI. Its
// interception happens inside the claudecli transport at construction time,
// not on the wire.
func NewClaudeInterceptor() Interceptor {
	return cliInterceptor{binary: "claude"}
}

// Registry tracks registered interceptors and owns the process-wide install
// over http.DefaultTransport. It is an explicit object so tests and embedders
// can run isolated instances with their own lifetime.
type Registry struct {
	mu           sync.Mutex
	interceptors []Interceptor
	pipeline     *capture.Pipeline
	original     http.RoundTripper
	tap          *Transport
	installed    []capability.Provider
}

// NewRegistry creates an empty registry dispatching through the pipeline; nil
// means the process default pipeline.
func NewRegistry(pipeline *capture.Pipeline) *Registry {
	if pipeline == nil {
		pipeline = capture.Default()
	}
	return &Registry{pipeline: pipeline}
}

// Register adds an interceptor. Registering the same provider again is a
// no-op, so package init paths may register freely.
func (r *Registry) Register(in Interceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.interceptors {
		if existing.Provider() == in.Provider() {
			return
		}
	}
	r.interceptors = append(r.interceptors, in)
}

// Install probes every registered interceptor and patches
// http.DefaultTransport with a tap routing the available codecs. The swap is
// synchronous and the pre-patch transport is stored exactly once, so a second
// Install refreshes the codec set without ever stashing an already-patched
// transport, and Uninstall can restore the original byte for byte.
func (r *Registry) Install() []capability.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	var codecs []Codec
	r.installed = r.installed[:0]
	for _, in := range r.interceptors {
		if !in.Available() {
			debuglog.Printf("[INTERCEPT] provider %s unavailable, skipping", in.Provider())
			continue
		}
		r.installed = append(r.installed, in.Provider())
		if c := in.Codec(); c != nil {
			codecs = append(codecs, c)
		}
	}

	if r.original == nil {
		r.original = http.DefaultTransport
	}
	r.tap = NewTransport(r.original, r.pipeline, codecs...)
	http.DefaultTransport = r.tap
	debuglog.Printf("[INTERCEPT] installed providers: %v", r.installed)
	return append([]capability.Provider(nil), r.installed...)
}

// Uninstall restores the transport captured by the first Install. It is
// idempotent and a no-op if Install never ran; if something else has swapped
// the transport since, it is left alone.
func (r *Registry) Uninstall() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.original != nil && http.DefaultTransport == http.RoundTripper(r.tap) {
		http.DefaultTransport = r.original
	}
	r.original = nil
	r.tap = nil
	r.installed = nil
}

// Installed lists the providers the last Install found available.
func (r *Registry) Installed() []capability.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capability.Provider(nil), r.installed...)
}

var defaultRegistry = func() *Registry {
	r := NewRegistry(nil)
	r.Register(NewOpenAIInterceptor())
	r.Register(NewAnthropicInterceptor())
	r.Register(NewGeminiInterceptor())
	r.Register(NewOllamaInterceptor())
	r.Register(NewClaudeInterceptor())
	return r
}()

// DefaultRegistry returns the process-wide registry holding the built-in
// interceptors.
func DefaultRegistry() *Registry { return defaultRegistry }

// AutoInstall installs the default registry. The scope package invokes it on
// the first activation in the process.
func AutoInstall() { defaultRegistry.Install() }

func init() {
	scope.SetInstallHook(AutoInstall)
}
