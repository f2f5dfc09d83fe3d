// Package claudecli intercepts the Claude CLI's duplex stream-json
// transport. Unlike the wire-tapped HTTP providers there is no single call to
// observe: outgoing writes and incoming reads are intercepted independently.
// The write side buffers the latest user message, the read side accumulates
// assistant text, and the two halves are combined into one captured turn when
// the CLI reports the turn's result.
//
// Memory is injected once, synchronously, at transport construction, by
// rewriting the appended system prompt before the subprocess starts. A
// long-lived transport therefore sees memory as of connect time; that is a
// deliberate trade for keeping transport setup synchronous.
package claudecli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/agentic-learning/go-learning/pkg/capability"
	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/debuglog"
	"github.com/agentic-learning/go-learning/pkg/scope"
)

// DefaultBinary is the CLI executable resolved on PATH.
const DefaultBinary = "claude"

// Available reports whether the Claude CLI can be resolved. It never errors.
func Available() bool {
	_, err := exec.LookPath(DefaultBinary)
	return err == nil
}

// Event is one record read from the CLI's output stream.
type Event struct {
	// Type is the record's type field: "system", "assistant", "result", ...
	Type string

	// Text is the assistant text carried by the record, if any.
	Text string

	// Raw is the unparsed record for callers that need the full envelope.
	Raw []byte
}

// Options configure a transport.
type Options struct {
	// Binary overrides the executable; empty means DefaultBinary.
	Binary string

	// Model passes --model to the CLI.
	Model string

	// SystemPrompt is the caller's own appended system prompt. Injected
	// memory is prepended to it.
	SystemPrompt string

	// Args are extra CLI arguments appended verbatim.
	Args []string

	// Pipeline overrides the capture pipeline; nil means the process
	// default.
	Pipeline *capture.Pipeline
}

// Transport is one running CLI session.
type Transport struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	events   chan Event
	pipeline *capture.Pipeline

	// done tells readLoop the consumer is gone; loopDone reports that
	// readLoop has drained stdout and exited, so Wait cannot block on a
	// subprocess stuck writing.
	done     chan struct{}
	loopDone chan struct{}

	// ctx carries the scope active at construction; capture attribution
	// follows it for the transport's whole lifetime.
	ctx    context.Context
	active bool

	mu        sync.Mutex
	lastUser  string
	assistant strings.Builder
	model     string
	closeOnce sync.Once
	closeErr  error
}

// Connect starts the CLI in duplex stream-json mode. When a scope is active
// on ctx and not capture-only, the agent's memory context is retrieved
// synchronously and prepended to the appended system prompt; any failure
// there leaves the prompt untouched and the session proceeds.
func Connect(ctx context.Context, opts Options) (*Transport, error) {
	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	cfg, active := scope.Current(ctx)
	systemPrompt := opts.SystemPrompt
	if active && !cfg.CaptureOnly && cfg.Client != nil && cfg.Agent != "" {
		if memoryText, err := cfg.Client.RetrieveMemoryContext(ctx, cfg.Agent); err != nil {
			debuglog.Printf("[CLAUDECLI] memory retrieval failed, starting uninjected: %v", err)
		} else if memoryText != "" {
			if systemPrompt != "" {
				systemPrompt = memoryText + "\n\n" + systemPrompt
			} else {
				systemPrompt = memoryText
			}
		}
	}

	args := []string{
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--verbose",
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if systemPrompt != "" {
		args = append(args, "--append-system-prompt", systemPrompt)
	}
	args = append(args, opts.Args...)

	cmd := exec.CommandContext(ctx, binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline = capture.Default()
	}
	t := &Transport{
		cmd:      cmd,
		stdin:    stdin,
		events:   make(chan Event, 16),
		pipeline: pipeline,
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		active:   active,
		model:    opts.Model,
	}
	go t.readLoop(stdout)
	return t, nil
}

// Query writes one user message to the CLI. The outgoing side of the
// interception buffers it as the turn's request content.
func (t *Transport) Query(_ context.Context, text string) error {
	if t.active {
		t.mu.Lock()
		t.lastUser = text
		t.mu.Unlock()
	}

	record := []byte(`{"type":"user","message":{"role":"user","content":[{"type":"text","text":""}]}}`)
	record, err := sjson.SetBytes(record, "message.content.0.text", text)
	if err != nil {
		return err
	}
	_, err = t.stdin.Write(append(record, '\n'))
	return err
}

// Receive returns the stream of CLI records. The channel closes when the
// session ends.
func (t *Transport) Receive() <-chan Event { return t.events }

// readLoop is the incoming side of the interception: every record is
// re-delivered to the consumer unmodified and in order, while assistant text
// accumulates for capture.
func (t *Transport) readLoop(stdout io.Reader) {
	defer close(t.loopDone)
	defer close(t.events)
	// Whatever was accumulated when the stream dies is still captured.
	defer t.flushTurn()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := append([]byte(nil), line...)
		parsed := gjson.ParseBytes(raw)
		evt := Event{Type: parsed.Get("type").String(), Raw: raw}

		switch evt.Type {
		case "system":
			if m := parsed.Get("model"); m.Exists() && t.model == "" {
				t.mu.Lock()
				t.model = m.String()
				t.mu.Unlock()
			}
		case "assistant":
			var b strings.Builder
			for _, block := range parsed.Get("message.content").Array() {
				if block.Get("type").String() == "text" {
					b.WriteString(block.Get("text").String())
				}
			}
			evt.Text = b.String()
			if t.active && evt.Text != "" {
				t.mu.Lock()
				t.assistant.WriteString(evt.Text)
				t.mu.Unlock()
			}
		case "result":
			t.flushTurn()
		}
		select {
		case t.events <- evt:
		case <-t.done:
			// Consumer gone; keep draining stdout so the subprocess can
			// finish writing and exit.
		}
	}
}

// flushTurn combines the buffered user message and accumulated assistant
// text into one turn and dispatches it. Partial turns are accepted.
func (t *Transport) flushTurn() {
	if !t.active {
		return
	}
	t.mu.Lock()
	user := t.lastUser
	text := t.assistant.String()
	model := t.model
	t.lastUser = ""
	t.assistant.Reset()
	t.mu.Unlock()

	if user == "" && text == "" {
		return
	}
	var request []capability.ChatMessage
	if user != "" {
		request = []capability.ChatMessage{{Role: "user", Content: user}}
	}
	t.pipeline.Capture(t.ctx, capability.ProviderClaude, model, request,
		capability.ChatMessage{Role: "assistant", Content: text})
}

// Close ends the session: stdin closes so the CLI drains and exits, readLoop
// runs stdout to EOF (flushing any accumulated partial turn), then the
// process is reaped. Safe to call with events still pending and more than
// once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.stdin.Close()
		<-t.loopDone
		t.closeErr = t.cmd.Wait()
	})
	return t.closeErr
}
