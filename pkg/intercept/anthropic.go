package intercept

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/agentic-learning/go-learning/pkg/capability"
)

// AnthropicCodec handles the Messages API wire format.
type AnthropicCodec struct{}

func (AnthropicCodec) Provider() capability.Provider { return capability.ProviderAnthropic }

func (AnthropicCodec) Match(req *http.Request) bool {
	if req.Method != http.MethodPost {
		return false
	}
	if strings.Contains(req.URL.Host, "anthropic.com") {
		return strings.Contains(req.URL.Path, "/messages") ||
			strings.Contains(req.URL.Path, "/complete")
	}
	// Compatible gateways: the SDK always stamps its version header, which
	// keeps unrelated /messages routes from matching.
	return strings.HasSuffix(req.URL.Path, "/messages") &&
		req.Header.Get("Anthropic-Version") != ""
}

func (AnthropicCodec) ModelName(_ *http.Request, reqBody, respBody []byte) string {
	if m := gjson.GetBytes(respBody, "model"); m.Exists() {
		return m.String()
	}
	return gjson.GetBytes(reqBody, "model").String()
}

func (AnthropicCodec) ExtractRequestMessages(reqBody []byte) []capability.ChatMessage {
	var msgs []capability.ChatMessage
	for _, m := range gjson.GetBytes(reqBody, "messages").Array() {
		role := m.Get("role").String()
		text := messageText(m.Get("content"))
		if role == "" || text == "" {
			continue
		}
		msgs = append(msgs, capability.ChatMessage{Role: role, Content: text})
	}
	return msgs
}

// InjectMemory prepends the memory text to the request's system field,
// whichever of its two wire shapes is present.
func (AnthropicCodec) InjectMemory(reqBody []byte, memoryText string) ([]byte, error) {
	system := gjson.GetBytes(reqBody, "system")
	switch {
	case !system.Exists():
		return sjson.SetBytes(reqBody, "system", memoryText)
	case system.Type == gjson.String:
		return sjson.SetBytes(reqBody, "system", memoryText+"\n\n"+system.String())
	case system.IsArray():
		return prependMessage(reqBody, "system", map[string]any{
			"type": "text",
			"text": memoryText,
		})
	default:
		return nil, fmt.Errorf("anthropic: unrecognized system field shape")
	}
}

func (AnthropicCodec) IsStreaming(_ *http.Request, reqBody []byte, resp *http.Response) bool {
	return gjson.GetBytes(reqBody, "stream").Bool() || isEventStream(resp)
}

func (AnthropicCodec) ExtractResponseText(respBody []byte) string {
	var b strings.Builder
	for _, block := range gjson.GetBytes(respBody, "content").Array() {
		if block.Get("type").String() == "text" {
			b.WriteString(block.Get("text").String())
		}
	}
	if b.Len() > 0 {
		return b.String()
	}
	// Legacy Text Completions shape.
	return gjson.GetBytes(respBody, "completion").String()
}

func (AnthropicCodec) SplitChunks(raw []byte) [][]byte { return splitSSE(raw) }

func (AnthropicCodec) Reconstruct(chunks [][]byte) string {
	var b strings.Builder
	for _, chunk := range chunks {
		// Only text deltas contribute; message_start, ping, tool deltas and
		// stop events carry no assistant text.
		for _, path := range []string{"delta.text", "content_block.text", "completion"} {
			if t := gjson.GetBytes(chunk, path); t.Exists() && t.Type == gjson.String {
				b.WriteString(t.String())
				break
			}
		}
	}
	return b.String()
}
