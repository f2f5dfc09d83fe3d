package capability

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/agentic-learning/go-learning/pkg/debuglog"
	"github.com/agentic-learning/go-learning/pkg/memory"
)

// Embedder turns text into a vector for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// HashEmbedder is a deterministic byte-histogram embedder. It is no
// substitute for a learned model but keeps Memstore self-contained for tests
// and local runs.
func HashEmbedder(dim int) Embedder {
	if dim <= 0 {
		dim = 256
	}
	return EmbedderFunc(func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dim)
		for i, ch := range []byte(text) {
			vec[i%dim] += float32(ch) / 255.0
		}
		var norm float32
		for _, v := range vec {
			norm += v * v
		}
		if norm > 0 {
			inv := float32(1.0 / math.Sqrt(float64(norm)))
			for i := range vec {
				vec[i] *= inv
			}
		}
		return vec, nil
	})
}

// Memstore is an in-process Client backed by chromem-go vector collections.
// It serves tests, local development, and offline semantic search; a real
// deployment uses HTTPClient instead.
type Memstore struct {
	mu       sync.RWMutex
	db       *chromem.DB
	embedder Embedder
	agents   map[string]*Agent
	blocks   map[string][]memory.Block
	messages map[string][]Message
	cols     map[string]*chromem.Collection
}

// NewMemstore creates an empty in-process store. A nil embedder falls back to
// HashEmbedder.
func NewMemstore(embedder Embedder) *Memstore {
	if embedder == nil {
		embedder = HashEmbedder(256)
	}
	return &Memstore{
		db:       chromem.NewDB(),
		embedder: embedder,
		agents:   make(map[string]*Agent),
		blocks:   make(map[string][]memory.Block),
		messages: make(map[string][]Message),
		cols:     make(map[string]*chromem.Collection),
	}
}

func (s *Memstore) collection(agent string) (*chromem.Collection, error) {
	if col, ok := s.cols[agent]; ok {
		return col, nil
	}
	col, err := s.db.CreateCollection("agent_"+agent, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.cols[agent] = col
	return col, nil
}

func (s *Memstore) GetAgent(_ context.Context, name string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[name]
	if !ok {
		return nil, nil
	}
	copied := *agent
	return &copied, nil
}

func (s *Memstore) CreateAgent(_ context.Context, name string, memoryBlocks []string, model string) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.agents[name]; ok {
		copied := *existing
		return &copied, nil
	}
	agent := &Agent{
		ID:           uuid.NewString(),
		Name:         name,
		Model:        model,
		MemoryBlocks: append([]string(nil), memoryBlocks...),
	}
	s.agents[name] = agent
	// Seed the selected labels as empty blocks so they are listable.
	for _, label := range memoryBlocks {
		s.blocks[name] = append(s.blocks[name], memory.Block{Label: label})
	}
	copied := *agent
	return &copied, nil
}

func (s *Memstore) ListMemoryBlocks(_ context.Context, agent string) ([]memory.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]memory.Block(nil), s.blocks[agent]...), nil
}

func (s *Memstore) RetrieveMemoryContext(ctx context.Context, agent string) (string, error) {
	blocks, err := s.ListMemoryBlocks(ctx, agent)
	if err != nil {
		return "", err
	}
	return memory.FormatBlocks(blocks), nil
}

// UpsertMemoryBlock creates or replaces the labeled block on the agent.
func (s *Memstore) UpsertMemoryBlock(_ context.Context, agent string, block memory.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.blocks[agent] {
		if existing.Label == block.Label {
			s.blocks[agent][i] = block
			return nil
		}
	}
	s.blocks[agent] = append(s.blocks[agent], block)
	return nil
}

// CaptureTurn stores the turn's messages and indexes them for search.
func (s *Memstore) CaptureTurn(ctx context.Context, agent string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.collection(agent)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	store := func(role, content string) error {
		if content == "" {
			return nil
		}
		msg := Message{ID: uuid.NewString(), Role: role, Content: content, CreatedAt: now}
		s.messages[agent] = append(s.messages[agent], msg)

		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("embed message: %w", err)
		}
		return col.AddDocument(ctx, chromem.Document{
			ID:        msg.ID,
			Content:   content,
			Embedding: vec,
			Metadata:  map[string]string{"role": role, "provider": string(turn.Provider), "model": turn.Model},
		})
	}

	for _, m := range turn.RequestMessages {
		if err := store(m.Role, m.Content); err != nil {
			return err
		}
	}
	if err := store(turn.Response.Role, turn.Response.Content); err != nil {
		return err
	}
	debuglog.Printf("[MEMSTORE] captured %s turn for agent %q (%d request messages)",
		turn.Provider, agent, len(turn.RequestMessages))
	return nil
}

// SendTurn is not supported by the in-process store; there is no model behind
// it to generate a reply.
func (s *Memstore) SendTurn(context.Context, string, Turn) (string, error) {
	return "", fmt.Errorf("memstore: send is not supported")
}

// SearchMemory returns the stored messages nearest to the query.
func (s *Memstore) SearchMemory(ctx context.Context, agent string, query string) ([]Message, error) {
	s.mu.RLock()
	col, ok := s.cols[agent]
	stored := len(s.messages[agent])
	byID := make(map[string]Message, stored)
	for _, m := range s.messages[agent] {
		byID[m.ID] = m
	}
	s.mu.RUnlock()
	if !ok || stored == 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	limit := 5
	if count := col.Count(); count < limit {
		limit = count
	}
	if limit == 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, vec, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	msgs := make([]Message, 0, len(results))
	for _, r := range results {
		if m, ok := byID[r.ID]; ok {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// ListMessages returns up to limit stored messages for the agent, oldest
// first.
func (s *Memstore) ListMessages(_ context.Context, agent string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[agent]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...), nil
}
