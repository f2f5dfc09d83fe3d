// Interactive chat over the Claude CLI's stream-json transport. Requires the
// `claude` binary on PATH. Memory context is injected into the appended
// system prompt at connect time, and every turn is captured on the way out.
//
//	go run ./cmd/claudechat -agent my-agent
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	learning "github.com/agentic-learning/go-learning"
	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/claudecli"
)

func main() {
	agentName := flag.String("agent", "claude-cli-demo", "memory agent name")
	modelName := flag.String("model", "", "model passed to the CLI (optional)")
	flag.Parse()
	godotenv.Load()

	if !claudecli.Available() {
		log.Fatalf("claude CLI not found on PATH")
	}

	ctx := learning.With(context.Background(), learning.WithAgent(*agentName))
	transport, err := claudecli.Connect(ctx, claudecli.Options{Model: *modelName})
	if err != nil {
		log.Fatalf("failed to start claude session: %v", err)
	}
	defer transport.Close()

	// Print assistant text as it arrives.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range transport.Receive() {
			if evt.Type == "assistant" && evt.Text != "" {
				fmt.Println(evt.Text)
			}
		}
	}()

	fmt.Println("Type a message, or an empty line to quit.")
	stdin := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !stdin.Scan() || stdin.Text() == "" {
			break
		}
		if err := transport.Query(ctx, stdin.Text()); err != nil {
			log.Fatalf("query failed: %v", err)
		}
	}

	transport.Close()
	<-done

	fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := capture.Default().Flush(fctx); err != nil {
		log.Printf("capture flush: %v", err)
	}
}
