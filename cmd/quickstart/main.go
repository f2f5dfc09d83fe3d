// Quickstart: wrap ordinary Anthropic SDK calls in a learning scope and every
// exchange is remembered across calls.
//
//	export ANTHROPIC_API_KEY=...
//	export LETTA_BASE_URL=http://localhost:8283
//	go run ./cmd/quickstart
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"

	learning "github.com/agentic-learning/go-learning"
	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/intercept/anthropicclient"
)

func main() {
	agentName := flag.String("agent", "quickstart-demo", "memory agent name")
	modelName := flag.String("model", "claude-sonnet-4-20250514", "Anthropic model ID")
	flag.Parse()
	godotenv.Load()

	client := anthropicclient.New("", nil)
	ctx := learning.With(context.Background(),
		learning.WithAgent(*agentName),
		learning.WithModel(*modelName),
	)

	ask := func(message string) {
		fmt.Printf("User: %s\n", message)
		msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(*modelName),
			MaxTokens: 1024,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(message)),
			},
		})
		if err != nil {
			log.Fatalf("anthropic call failed: %v", err)
		}
		for _, block := range msg.Content {
			if block.Type == "text" {
				fmt.Printf("Assistant: %s\n\n", block.Text)
			}
		}
	}

	// Memory persists across these calls with no change at the call site.
	ask("My name is Alice and I love Go.")
	ask("What's my name and favorite language?")

	fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := capture.Default().Flush(fctx); err != nil {
		log.Printf("capture flush: %v", err)
	}
}
