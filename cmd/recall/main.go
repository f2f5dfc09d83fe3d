// Capture-only demo against the in-process Memstore. Ollama calls are
// observed without any memory injection, then the captured turns are searched
// semantically.
//
//	ollama serve &
//	go run ./cmd/recall -model llama3.2
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	ollamaapi "github.com/ollama/ollama/api"

	learning "github.com/agentic-learning/go-learning"
	"github.com/agentic-learning/go-learning/pkg/capability"
	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/intercept/ollamaclient"
)

func main() {
	modelName := flag.String("model", "llama3.2", "Ollama model name")
	query := flag.String("query", "favorite hobby", "search query to run afterwards")
	flag.Parse()
	godotenv.Load()

	store := capability.NewMemstore(nil)
	client, err := ollamaclient.New("", nil)
	if err != nil {
		log.Fatalf("failed to create ollama client: %v", err)
	}

	ctx := learning.With(context.Background(),
		learning.WithAgent("recall-demo"),
		learning.WithClient(store),
		learning.WithCaptureOnly(),
	)

	prompts := []string{
		"I spend my weekends rock climbing in the mountains.",
		"My day job is database engineering.",
	}
	stream := false
	for _, prompt := range prompts {
		req := &ollamaapi.ChatRequest{
			Model:    *modelName,
			Messages: []ollamaapi.Message{{Role: "user", Content: prompt}},
			Stream:   &stream,
		}
		err := client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
			fmt.Printf("User: %s\nAssistant: %s\n\n", prompt, resp.Message.Content)
			return nil
		})
		if err != nil {
			log.Fatalf("chat failed: %v", err)
		}
	}

	fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := capture.Default().Flush(fctx); err != nil {
		log.Printf("capture flush: %v", err)
	}

	results, err := store.SearchMemory(context.Background(), "recall-demo", *query)
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}
	fmt.Printf("Search %q:\n", *query)
	for _, msg := range results {
		fmt.Printf("  [%s] %s\n", msg.Role, msg.Content)
	}
}
