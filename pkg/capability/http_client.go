package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/agentic-learning/go-learning/pkg/debuglog"
	"github.com/agentic-learning/go-learning/pkg/memory"
)

// HTTPClient talks to a memory-service deployment over REST. The capture
// payload shape {provider, request_messages, response_dict, model} is the
// compatibility surface for existing deployments.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) HTTPOption {
	return func(c *HTTPClient) { c.apiKey = key }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.httpc = httpc }
}

// NewHTTPClient creates a client for the memory service at baseURL. An empty
// baseURL falls back to AGENTIC_LEARNING_BASE_URL, then LETTA_BASE_URL, then
// the local default.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	if baseURL == "" {
		baseURL = os.Getenv("AGENTIC_LEARNING_BASE_URL")
	}
	if baseURL == "" {
		baseURL = os.Getenv("LETTA_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8283"
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  os.Getenv("LETTA_API_KEY"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

var errNotFound = fmt.Errorf("not found")

// GetAgent returns the named agent, or nil when the service reports 404.
func (c *HTTPClient) GetAgent(ctx context.Context, name string) (*Agent, error) {
	var agent Agent
	err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(name), nil, &agent)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// CreateAgent creates an agent with the given memory-block selection and
// default model.
func (c *HTTPClient) CreateAgent(ctx context.Context, name string, memoryBlocks []string, model string) (*Agent, error) {
	payload := map[string]any{"name": name}
	if len(memoryBlocks) > 0 {
		payload["memory_blocks"] = memoryBlocks
	}
	if model != "" {
		payload["model"] = model
	}
	var agent Agent
	if err := c.do(ctx, http.MethodPost, "/v1/agents", payload, &agent); err != nil {
		return nil, err
	}
	debuglog.Printf("[CAPABILITY] created agent %q (%s)", agent.Name, agent.ID)
	return &agent, nil
}

// ListMemoryBlocks returns the agent's memory blocks.
func (c *HTTPClient) ListMemoryBlocks(ctx context.Context, agent string) ([]memory.Block, error) {
	var blocks []memory.Block
	path := "/v1/agents/" + url.PathEscape(agent) + "/memory/blocks"
	if err := c.do(ctx, http.MethodGet, path, nil, &blocks); err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, err
	}
	return blocks, nil
}

// RetrieveMemoryContext lists the agent's blocks and formats them into one
// injectable context block. Formatting happens client-side so that every
// backend shares the same rendering.
func (c *HTTPClient) RetrieveMemoryContext(ctx context.Context, agent string) (string, error) {
	blocks, err := c.ListMemoryBlocks(ctx, agent)
	if err != nil {
		return "", err
	}
	return memory.FormatBlocks(blocks), nil
}

// UpsertMemoryBlock creates or replaces the labeled block on the agent.
func (c *HTTPClient) UpsertMemoryBlock(ctx context.Context, agent string, block memory.Block) error {
	path := "/v1/agents/" + url.PathEscape(agent) + "/memory/blocks/" + url.PathEscape(block.Label)
	return c.do(ctx, http.MethodPut, path, block, nil)
}

// CaptureTurn persists a completed turn without triggering the agent. Non-2xx
// responses surface as errors; callers on the interception path swallow them.
func (c *HTTPClient) CaptureTurn(ctx context.Context, agent string, turn Turn) error {
	path := "/v1/agents/" + url.PathEscape(agent) + "/messages/capture"
	return c.do(ctx, http.MethodPost, path, turn, nil)
}

// SendTurn sends the turn's request messages through the agent and returns
// its reply text.
func (c *HTTPClient) SendTurn(ctx context.Context, agent string, turn Turn) (string, error) {
	path := "/v1/agents/" + url.PathEscape(agent) + "/messages"
	var out struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, http.MethodPost, path, turn, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// SearchMemory runs a semantic search over the agent's stored messages.
func (c *HTTPClient) SearchMemory(ctx context.Context, agent string, query string) ([]Message, error) {
	path := "/v1/agents/" + url.PathEscape(agent) + "/memory/search?q=" + url.QueryEscape(query)
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, err
	}
	return msgs, nil
}

// ListMessages returns up to limit stored messages for the agent, newest
// last.
func (c *HTTPClient) ListMessages(ctx context.Context, agent string, limit int) ([]Message, error) {
	path := "/v1/agents/" + url.PathEscape(agent) + "/messages?limit=" + fmt.Sprint(limit)
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, err
	}
	return msgs, nil
}
