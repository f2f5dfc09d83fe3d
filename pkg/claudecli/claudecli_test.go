package claudecli

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentic-learning/go-learning/pkg/capability"
	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/memory"
	"github.com/agentic-learning/go-learning/pkg/scope"
)

// fakeCLI writes a shell script that speaks one turn of the stream-json
// protocol: it waits for a user record, then emits an init record, two
// assistant fragments, and a result record.
func fakeCLI(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI script requires a POSIX shell")
	}
	script := `#!/bin/sh
read line
printf '{"type":"system","subtype":"init","model":"claude-test"}\n'
printf '{"type":"assistant","message":{"content":[{"type":"text","text":"Mock "}]}}\n'
printf '{"type":"assistant","message":{"content":[{"type":"text","text":"response"}]}}\n'
printf '{"type":"result","subtype":"success"}\n'
`
	path := filepath.Join(t.TempDir(), "claude-fake")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

type recordingClient struct {
	mu       sync.Mutex
	blocks   []memory.Block
	agents   map[string]*capability.Agent
	captured []capability.Turn
}

func newRecordingClient(blocks ...memory.Block) *recordingClient {
	return &recordingClient{agents: make(map[string]*capability.Agent), blocks: blocks}
}

func (r *recordingClient) GetAgent(_ context.Context, name string) (*capability.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[name], nil
}

func (r *recordingClient) CreateAgent(_ context.Context, name string, blocks []string, model string) (*capability.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent := &capability.Agent{ID: name, Name: name, Model: model, MemoryBlocks: blocks}
	r.agents[name] = agent
	return agent, nil
}

func (r *recordingClient) ListMemoryBlocks(context.Context, string) ([]memory.Block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]memory.Block(nil), r.blocks...), nil
}

func (r *recordingClient) RetrieveMemoryContext(ctx context.Context, agent string) (string, error) {
	blocks, _ := r.ListMemoryBlocks(ctx, agent)
	return memory.FormatBlocks(blocks), nil
}

func (r *recordingClient) CaptureTurn(_ context.Context, _ string, turn capability.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captured = append(r.captured, turn)
	return nil
}

func (r *recordingClient) SendTurn(context.Context, string, capability.Turn) (string, error) {
	return "", nil
}

func (r *recordingClient) SearchMemory(context.Context, string, string) ([]capability.Message, error) {
	return nil, nil
}

func (r *recordingClient) turns() []capability.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capability.Turn(nil), r.captured...)
}

func drain(t *testing.T, tr *Transport) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case evt, ok := <-tr.Receive():
			if !ok {
				return events
			}
			events = append(events, evt)
		case <-timeout:
			t.Fatal("transport never finished")
		}
	}
}

func TestTransport_CapturesTurn(t *testing.T) {
	client := newRecordingClient()
	pipeline := capture.NewPipeline(time.Second)
	ctx := scope.With(context.Background(), scope.Config{Agent: "a1", Client: client})

	tr, err := Connect(ctx, Options{Binary: fakeCLI(t), Pipeline: pipeline})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Query(ctx, "My name is Alice"); err != nil {
		t.Fatal(err)
	}

	events := drain(t, tr)
	tr.Close()

	var text string
	for _, evt := range events {
		text += evt.Text
	}
	if text != "Mock response" {
		t.Errorf("assistant text delivered to consumer = %q", text)
	}

	fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pipeline.Flush(fctx); err != nil {
		t.Fatal(err)
	}
	turns := client.turns()
	if len(turns) != 1 {
		t.Fatalf("captured %d turns, want 1", len(turns))
	}
	turn := turns[0]
	if turn.Provider != capability.ProviderClaude {
		t.Errorf("provider = %s", turn.Provider)
	}
	if turn.Model != "claude-test" {
		t.Errorf("model = %q", turn.Model)
	}
	if len(turn.RequestMessages) != 1 || turn.RequestMessages[0].Content != "My name is Alice" {
		t.Errorf("request = %+v", turn.RequestMessages)
	}
	if turn.Response.Content != "Mock response" {
		t.Errorf("response = %+v", turn.Response)
	}
}

func TestClose_AbandonedConsumerUnblocksAndCaptures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI script requires a POSIX shell")
	}
	// Emit well past a pipe buffer of records so an unread stdout would
	// wedge the subprocess.
	script := `#!/bin/sh
read line
printf '{"type":"system","subtype":"init","model":"claude-test"}\n'
i=0
while [ $i -lt 4000 ]; do
  printf '{"type":"assistant","message":{"content":[{"type":"text","text":"chunk"}]}}\n'
  i=$((i+1))
done
printf '{"type":"result","subtype":"success"}\n'
cat >/dev/null
`
	path := filepath.Join(t.TempDir(), "claude-fake")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	client := newRecordingClient()
	pipeline := capture.NewPipeline(time.Second)
	ctx := scope.With(context.Background(), scope.Config{Agent: "a1", Client: client})
	tr, err := Connect(ctx, Options{Binary: path, Pipeline: pipeline})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Query(ctx, "hello"); err != nil {
		t.Fatal(err)
	}

	// Read a single event, then walk away with thousands still pending.
	select {
	case <-tr.Receive():
	case <-time.After(10 * time.Second):
		t.Fatal("first event never arrived")
	}

	closed := make(chan error, 1)
	go func() { closed <- tr.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Close blocked with an abandoned consumer")
	}

	// The turn accumulated up to that point still reaches memory.
	fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pipeline.Flush(fctx); err != nil {
		t.Fatal(err)
	}
	turns := client.turns()
	if len(turns) != 1 {
		t.Fatalf("captured %d turns, want 1", len(turns))
	}
	if len(turns[0].RequestMessages) != 1 || turns[0].RequestMessages[0].Content != "hello" {
		t.Errorf("request = %+v", turns[0].RequestMessages)
	}
	if !strings.Contains(turns[0].Response.Content, "chunk") {
		t.Errorf("accumulated assistant text lost: %q", turns[0].Response.Content)
	}
}

func TestConnect_NoScopeIsTransparent(t *testing.T) {
	pipeline := capture.NewPipeline(time.Second)
	tr, err := Connect(context.Background(), Options{Binary: fakeCLI(t), Pipeline: pipeline})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Query(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	events := drain(t, tr)
	tr.Close()
	if len(events) == 0 {
		t.Fatal("events not delivered without scope")
	}

	fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pipeline.Flush(fctx)
}

func TestConnect_InjectsMemoryIntoSystemPrompt(t *testing.T) {
	// The fake CLI echoes its arguments so the test can observe the
	// constructed command line.
	script := `#!/bin/sh
printf '{"type":"system","subtype":"init","args":"%s"}\n' "$*"
`
	path := filepath.Join(t.TempDir(), "claude-fake")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	client := newRecordingClient(memory.Block{Label: "human", Value: "User prefers Go"})
	pipeline := capture.NewPipeline(time.Second)

	// Injection happens at construction when a scope is active.
	ctx := scope.With(context.Background(), scope.Config{Agent: "a1", Client: client})
	tr, err := Connect(ctx, Options{Binary: path, Pipeline: pipeline, SystemPrompt: "Be terse."})
	if err != nil {
		t.Fatal(err)
	}
	events := drain(t, tr)
	tr.Close()

	// The injected prompt spans lines, so the echo arrives as several
	// records; inspect the whole output.
	var raw strings.Builder
	for _, evt := range events {
		raw.Write(evt.Raw)
		raw.WriteByte('\n')
	}
	for _, want := range []string{"--append-system-prompt", "User prefers Go", "Be terse."} {
		if !strings.Contains(raw.String(), want) {
			t.Errorf("command line missing %q:\n%s", want, raw.String())
		}
	}

	// Capture-only scopes start uninjected.
	coCtx := scope.With(context.Background(), scope.Config{Agent: "a1", Client: client, CaptureOnly: true})
	tr2, err := Connect(coCtx, Options{Binary: path, Pipeline: pipeline})
	if err != nil {
		t.Fatal(err)
	}
	events2 := drain(t, tr2)
	tr2.Close()
	for _, evt := range events2 {
		if strings.Contains(string(evt.Raw), "User prefers Go") {
			t.Error("capture-only transport received injected memory")
		}
	}
}
