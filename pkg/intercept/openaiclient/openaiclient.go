// Package openaiclient builds go-openai clients whose calls are observed by
// the interception tap. Construction-time wrapping is the explicit
// alternative to the process-wide install.
package openaiclient

import (
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/intercept"
)

// New returns an OpenAI client with interception wired in. An empty apiKey
// falls back to OPENAI_API_KEY, then OPENAI_KEY.
func New(apiKey string, pipeline *capture.Pipeline) *openai.Client {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY")
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = intercept.WrapClient(&http.Client{}, pipeline)
	return openai.NewClientWithConfig(cfg)
}

// NewWithConfig wires interception into an existing client configuration,
// preserving base URL, org and any custom HTTP client it already carries.
func NewWithConfig(cfg openai.ClientConfig, pipeline *capture.Pipeline) *openai.Client {
	base, _ := cfg.HTTPClient.(*http.Client)
	cfg.HTTPClient = intercept.WrapClient(base, pipeline)
	return openai.NewClientWithConfig(cfg)
}
