// Streaming chat against OpenAI. The streamed response is reconstructed from
// its chunks and captured to memory once the stream is drained.
//
//	export OPENAI_API_KEY=...
//	go run ./cmd/openaichat -prompt "Tell me a short story"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"

	learning "github.com/agentic-learning/go-learning"
	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/intercept/openaiclient"
)

func main() {
	agentName := flag.String("agent", "openai-chat-demo", "memory agent name")
	modelName := flag.String("model", openai.GPT4o, "OpenAI model ID")
	prompt := flag.String("prompt", "What did we talk about last time?", "user message")
	flag.Parse()
	godotenv.Load()

	client := openaiclient.New("", nil)
	ctx := learning.With(context.Background(),
		learning.WithAgent(*agentName),
		learning.WithModel(*modelName),
	)

	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: *modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: *prompt},
		},
		Stream: true,
	})
	if err != nil {
		log.Fatalf("failed to open stream: %v", err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("stream recv: %v", err)
		}
		if len(chunk.Choices) > 0 {
			fmt.Print(chunk.Choices[0].Delta.Content)
		}
	}
	fmt.Println()

	fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := capture.Default().Flush(fctx); err != nil {
		log.Printf("capture flush: %v", err)
	}
}
