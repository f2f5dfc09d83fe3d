package intercept

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/agentic-learning/go-learning/pkg/capability"
	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/debuglog"
	"github.com/agentic-learning/go-learning/pkg/scope"
)

// tappedKey marks a request that has already passed through a tap, so
// stacked taps (an explicitly wrapped client running while the global
// install is active) observe each call once.
type tappedKey struct{}

// Transport is the wire tap: an http.RoundTripper that injects memory into
// matching provider requests and captures their responses. With no active
// scope on the request context it is a strict passthrough.
type Transport struct {
	inner    http.RoundTripper
	codecs   []Codec
	pipeline *capture.Pipeline
}

// NewTransport wraps inner with interception for the given codecs. A nil
// inner falls back to http.DefaultTransport as it was at construction time.
func NewTransport(inner http.RoundTripper, pipeline *capture.Pipeline, codecs ...Codec) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	if pipeline == nil {
		pipeline = capture.Default()
	}
	return &Transport{inner: inner, codecs: codecs, pipeline: pipeline}
}

func (t *Transport) match(req *http.Request) Codec {
	for _, c := range t.codecs {
		if c.Match(req) {
			return c
		}
	}
	return nil
}

// RoundTrip implements http.RoundTripper. Only the real call's failure ever
// reaches the caller; every auxiliary failure falls back to passthrough.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	cfg, active := scope.Current(ctx)
	if !active || ctx.Value(tappedKey{}) != nil {
		return t.inner.RoundTrip(req)
	}
	codec := t.match(req)
	if codec == nil || req.Body == nil {
		return t.inner.RoundTrip(req)
	}

	original, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		// The unpatched call would have failed the same way.
		return nil, err
	}

	body := original
	if !cfg.CaptureOnly && cfg.Client != nil && cfg.Agent != "" {
		if memoryText, err := cfg.Client.RetrieveMemoryContext(ctx, cfg.Agent); err != nil {
			debuglog.Printf("[INTERCEPT] %s: memory retrieval failed, proceeding uninjected: %v", codec.Provider(), err)
		} else if memoryText != "" {
			if injected, err := codec.InjectMemory(original, memoryText); err != nil {
				debuglog.Printf("[INTERCEPT] %s: memory injection failed, proceeding uninjected: %v", codec.Provider(), err)
			} else {
				body = injected
			}
		}
	}

	out := req.Clone(context.WithValue(ctx, tappedKey{}, true))
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := t.inner.RoundTrip(out)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}

	requestMessages := codec.ExtractRequestMessages(original)
	streaming := codec.IsStreaming(req, original, resp)
	resp.Body = newCaptureBody(resp.Body, func(raw []byte) {
		t.dispatch(ctx, codec, req, original, raw, streaming, requestMessages)
	})
	return resp, nil
}

// dispatch runs when the response body is exhausted or closed, including
// early consumer cancellation; whatever was seen by then is captured.
func (t *Transport) dispatch(ctx context.Context, codec Codec, req *http.Request, reqBody, raw []byte, streaming bool, requestMessages []capability.ChatMessage) {
	defer func() {
		if r := recover(); r != nil {
			debuglog.Printf("[INTERCEPT] %s: capture reconstruction panicked: %v", codec.Provider(), r)
		}
	}()

	var text, model string
	if streaming {
		chunks := codec.SplitChunks(raw)
		text = codec.Reconstruct(chunks)
		model = codec.ModelName(req, reqBody, nil)
	} else {
		text = codec.ExtractResponseText(raw)
		model = codec.ModelName(req, reqBody, raw)
	}
	if len(requestMessages) == 0 && text == "" {
		return
	}
	t.pipeline.Capture(ctx, codec.Provider(), model, requestMessages,
		capability.ChatMessage{Role: "assistant", Content: text})
}

// captureBody tees a response body. Every read reaches the caller unmodified
// and in order; the accumulated bytes are handed to onDone exactly once, when
// the stream ends or the caller closes early.
type captureBody struct {
	rc     io.ReadCloser
	buf    bytes.Buffer
	once   sync.Once
	onDone func(raw []byte)
}

func newCaptureBody(rc io.ReadCloser, onDone func([]byte)) *captureBody {
	return &captureBody{rc: rc, onDone: onDone}
}

func (b *captureBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.buf.Write(p[:n])
	}
	if err != nil {
		b.finish()
	}
	return n, err
}

func (b *captureBody) Close() error {
	err := b.rc.Close()
	b.finish()
	return err
}

func (b *captureBody) finish() {
	b.once.Do(func() {
		b.onDone(b.buf.Bytes())
	})
}

// WrapClient returns a copy of c whose transport intercepts the default
// provider codecs. The original client is not modified. This is the
// preferred, explicit alternative to installing over http.DefaultTransport.
func WrapClient(c *http.Client, pipeline *capture.Pipeline) *http.Client {
	if c == nil {
		c = &http.Client{}
	}
	wrapped := *c
	wrapped.Transport = NewTransport(c.Transport, pipeline, defaultCodecs()...)
	return &wrapped
}

func defaultCodecs() []Codec {
	return []Codec{OpenAICodec{}, AnthropicCodec{}, GeminiCodec{}, OllamaCodec{}}
}
