// Package geminiclient builds generative-ai-go clients whose calls are
// observed by the interception tap.
package geminiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/intercept"
)

// apiKeyTransport stamps the API key header on every request. Supplying a
// custom HTTP client disables the library's own credential handling, so the
// key has to ride with the transport.
type apiKeyTransport struct {
	key   string
	inner http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Set("x-goog-api-key", t.key)
	return t.inner.RoundTrip(out)
}

// New returns a Gemini client with interception wired in. An empty apiKey
// falls back to GOOGLE_API_KEY, then GEMINI_API_KEY.
func New(ctx context.Context, apiKey string, pipeline *capture.Pipeline) (*genai.Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}

	tapped := intercept.WrapClient(&http.Client{}, pipeline)
	httpc := &http.Client{
		Transport: &apiKeyTransport{key: apiKey, inner: tapped.Transport},
	}
	client, err := genai.NewClient(ctx, option.WithHTTPClient(httpc))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return client, nil
}
