// Package ollamaclient builds Ollama API clients whose calls are observed by
// the interception tap.
package ollamaclient

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/intercept"
)

// New returns an Ollama client with interception wired in. An empty host
// falls back to OLLAMA_HOST, then the local default.
func New(host string, pipeline *capture.Pipeline) (*ollama.Client, error) {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	httpc := intercept.WrapClient(&http.Client{Timeout: 120 * time.Second}, pipeline)
	return ollama.NewClient(u, httpc), nil
}
