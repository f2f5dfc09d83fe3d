// Package capability is the client surface for the memory service: agents,
// memory blocks, turn capture and semantic search. Two implementations exist,
// an HTTP client for real deployments and an in-process chromem-go store.
package capability

import (
	"context"
	"time"

	"github.com/agentic-learning/go-learning/pkg/memory"
)

// Provider identifies which vendor integration produced a turn.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderClaude    Provider = "claude"
	ProviderOllama    Provider = "ollama"
)

// ChatMessage is one message of a turn in provider-neutral form.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is one completed request/response exchange. The field names mirror the
// memory service's capture payload.
type Turn struct {
	Provider        Provider      `json:"provider"`
	Model           string        `json:"model,omitempty"`
	RequestMessages []ChatMessage `json:"request_messages"`
	Response        ChatMessage   `json:"response_dict"`
}

// Agent is a memory-service agent record.
type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	MemoryBlocks []string `json:"memory_blocks,omitempty"`
}

// Message is one stored message in an agent's history.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Client is the capability surface the interception path depends on.
// Implementations must be safe for concurrent use.
type Client interface {
	// GetAgent returns the named agent, or (nil, nil) when it does not
	// exist; absence is not an error.
	GetAgent(ctx context.Context, name string) (*Agent, error)

	// CreateAgent creates an agent with the given memory-block selection and
	// default model.
	CreateAgent(ctx context.Context, name string, memoryBlocks []string, model string) (*Agent, error)

	// ListMemoryBlocks returns the agent's memory blocks.
	ListMemoryBlocks(ctx context.Context, agent string) ([]memory.Block, error)

	// RetrieveMemoryContext renders the agent's blocks into one injectable
	// context block; "" means nothing to inject.
	RetrieveMemoryContext(ctx context.Context, agent string) (string, error)

	// CaptureTurn persists a completed turn without triggering the agent.
	CaptureTurn(ctx context.Context, agent string, turn Turn) error

	// SendTurn sends the turn's request messages through the agent and
	// returns its reply text.
	SendTurn(ctx context.Context, agent string, turn Turn) (string, error)

	// SearchMemory runs a semantic search over the agent's stored messages.
	SearchMemory(ctx context.Context, agent string, query string) ([]Message, error)
}
