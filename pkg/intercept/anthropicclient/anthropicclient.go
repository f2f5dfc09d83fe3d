// Package anthropicclient builds anthropic-sdk-go clients whose calls are
// observed by the interception tap.
package anthropicclient

import (
	"net/http"
	"os"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentic-learning/go-learning/pkg/capture"
	"github.com/agentic-learning/go-learning/pkg/intercept"
)

// New returns an Anthropic client with interception wired in. An empty apiKey
// falls back to ANTHROPIC_API_KEY.
func New(apiKey string, pipeline *capture.Pipeline, opts ...anthropicopt.RequestOption) *anthropic.Client {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	all := append([]anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(apiKey),
		anthropicopt.WithHTTPClient(intercept.WrapClient(&http.Client{}, pipeline)),
	}, opts...)
	cl := anthropic.NewClient(all...)
	return &cl
}
