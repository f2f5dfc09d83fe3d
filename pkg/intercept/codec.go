// Package intercept observes provider HTTP calls, rewrites their requests
// with stored memory context, and captures the completed exchange, all
// without the call site's knowledge. Interception happens at the
// http.RoundTripper layer: scope rides on the request context, and a
// per-provider codec knows the wire shapes to read and rewrite.
package intercept

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/agentic-learning/go-learning/pkg/capability"
)

// Codec is the provider-specific half of an interceptor: everything that
// depends on one vendor's request and response wire format.
type Codec interface {
	// Provider tags turns produced through this codec.
	Provider() capability.Provider

	// Match reports whether the request is a model call this codec handles.
	Match(req *http.Request) bool

	// ModelName extracts the model identifier, preferring the response when
	// available.
	ModelName(req *http.Request, reqBody, respBody []byte) string

	// ExtractRequestMessages pulls the user-facing message list out of the
	// original (pre-injection) request body.
	ExtractRequestMessages(reqBody []byte) []capability.ChatMessage

	// InjectMemory rewrites the request body so the memory text rides in the
	// provider's instruction channel. The original body is never modified.
	InjectMemory(reqBody []byte, memoryText string) ([]byte, error)

	// IsStreaming reports whether the response will arrive as a chunk
	// stream rather than a single value.
	IsStreaming(req *http.Request, reqBody []byte, resp *http.Response) bool

	// ExtractResponseText pulls the assistant text out of a non-streaming
	// response body.
	ExtractResponseText(respBody []byte) string

	// SplitChunks separates an accumulated stream payload into the ordered
	// chunk payloads the provider emitted.
	SplitChunks(raw []byte) [][]byte

	// Reconstruct collapses the ordered chunks into a single assistant
	// message, concatenating text fragments in arrival order. Chunks that
	// yield no text under any known shape are skipped.
	Reconstruct(chunks [][]byte) string
}

// splitSSE splits a server-sent-events payload into its data payloads,
// dropping comments and the terminal [DONE] sentinel. Multi-line data fields
// are joined with newlines per the event-stream format.
func splitSSE(raw []byte) [][]byte {
	var chunks [][]byte
	var data []string
	flush := func() {
		if len(data) == 0 {
			return
		}
		joined := strings.Join(data, "\n")
		data = data[:0]
		if strings.TrimSpace(joined) == "[DONE]" {
			return
		}
		chunks = append(chunks, []byte(joined))
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	flush()
	return chunks
}

// splitNDJSON splits newline-delimited JSON into its lines.
func splitNDJSON(raw []byte) [][]byte {
	var chunks [][]byte
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		chunks = append(chunks, line)
	}
	return chunks
}

func isEventStream(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	return strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
}
