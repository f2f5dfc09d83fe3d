package intercept

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/agentic-learning/go-learning/pkg/capability"
)

// OllamaCodec handles the local Ollama chat and generate endpoints, which
// stream newline-delimited JSON rather than SSE.
type OllamaCodec struct{}

func (OllamaCodec) Provider() capability.Provider { return capability.ProviderOllama }

func (OllamaCodec) Match(req *http.Request) bool {
	if req.Method != http.MethodPost {
		return false
	}
	return strings.HasSuffix(req.URL.Path, "/api/chat") ||
		strings.HasSuffix(req.URL.Path, "/api/generate")
}

func (OllamaCodec) ModelName(_ *http.Request, reqBody, respBody []byte) string {
	if m := gjson.GetBytes(respBody, "model"); m.Exists() {
		return m.String()
	}
	return gjson.GetBytes(reqBody, "model").String()
}

func (OllamaCodec) ExtractRequestMessages(reqBody []byte) []capability.ChatMessage {
	if prompt := gjson.GetBytes(reqBody, "prompt"); prompt.Exists() {
		return []capability.ChatMessage{{Role: "user", Content: prompt.String()}}
	}
	var msgs []capability.ChatMessage
	for _, m := range gjson.GetBytes(reqBody, "messages").Array() {
		role := m.Get("role").String()
		text := m.Get("content").String()
		if role == "" || text == "" {
			continue
		}
		msgs = append(msgs, capability.ChatMessage{Role: role, Content: text})
	}
	return msgs
}

func (OllamaCodec) InjectMemory(reqBody []byte, memoryText string) ([]byte, error) {
	// Generate-style requests carry a dedicated system field.
	if gjson.GetBytes(reqBody, "prompt").Exists() {
		if system := gjson.GetBytes(reqBody, "system"); system.Exists() {
			return sjson.SetBytes(reqBody, "system", memoryText+"\n\n"+system.String())
		}
		return sjson.SetBytes(reqBody, "system", memoryText)
	}
	first := gjson.GetBytes(reqBody, "messages.0")
	if first.Get("role").String() == "system" {
		merged := memoryText + "\n\n" + first.Get("content").String()
		return sjson.SetBytes(reqBody, "messages.0.content", merged)
	}
	return prependMessage(reqBody, "messages", map[string]any{
		"role":    "system",
		"content": memoryText,
	})
}

// IsStreaming: Ollama streams unless the request opts out.
func (OllamaCodec) IsStreaming(_ *http.Request, reqBody []byte, resp *http.Response) bool {
	if stream := gjson.GetBytes(reqBody, "stream"); stream.Exists() {
		return stream.Bool()
	}
	if resp != nil && strings.Contains(resp.Header.Get("Content-Type"), "ndjson") {
		return true
	}
	return resp == nil
}

func (OllamaCodec) ExtractResponseText(respBody []byte) string {
	if t := gjson.GetBytes(respBody, "message.content"); t.Exists() {
		return t.String()
	}
	return gjson.GetBytes(respBody, "response").String()
}

func (OllamaCodec) SplitChunks(raw []byte) [][]byte { return splitNDJSON(raw) }

func (OllamaCodec) Reconstruct(chunks [][]byte) string {
	var b strings.Builder
	for _, chunk := range chunks {
		for _, path := range []string{"message.content", "response"} {
			if t := gjson.GetBytes(chunk, path); t.Exists() && t.Type == gjson.String {
				b.WriteString(t.String())
				break
			}
		}
	}
	return b.String()
}
