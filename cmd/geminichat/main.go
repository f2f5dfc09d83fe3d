// Gemini chat under a learning scope. Memory rides in the request's system
// instruction and the exchange is captured on the way back.
//
//	export GOOGLE_API_KEY=...
//	go run ./cmd/geminichat -prompt "Remind me what I told you yesterday"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"

	learning "github.com/agentic-learning/go-learning"
	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/intercept/geminiclient"
)

func main() {
	agentName := flag.String("agent", "gemini-chat-demo", "memory agent name")
	modelName := flag.String("model", "gemini-2.0-flash", "Gemini model name")
	prompt := flag.String("prompt", "What do you remember about me?", "user message")
	flag.Parse()
	godotenv.Load()

	ctx := learning.With(context.Background(),
		learning.WithAgent(*agentName),
		learning.WithModel(*modelName),
	)

	client, err := geminiclient.New(ctx, "", nil)
	if err != nil {
		log.Fatalf("failed to create gemini client: %v", err)
	}
	defer client.Close()

	model := client.GenerativeModel(*modelName)
	resp, err := model.GenerateContent(ctx, genai.Text(*prompt))
	if err != nil {
		log.Fatalf("generate failed: %v", err)
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				fmt.Println(string(text))
			}
		}
	}

	fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := capture.Default().Flush(fctx); err != nil {
		log.Printf("capture flush: %v", err)
	}
}
