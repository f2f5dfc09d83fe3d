package intercept

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/agentic-learning/go-learning/pkg/capability"
)

// GeminiCodec handles the generateContent wire format, including its
// multi-modal part lists and its two streaming framings (SSE and a streamed
// JSON array).
type GeminiCodec struct{}

func (GeminiCodec) Provider() capability.Provider { return capability.ProviderGemini }

// Match claims only the generate endpoints. The same host also serves
// embedContent, countTokens and media uploads, whose bodies must pass through
// untouched.
func (GeminiCodec) Match(req *http.Request) bool {
	if req.Method != http.MethodPost {
		return false
	}
	return strings.Contains(req.URL.Path, ":generateContent") ||
		strings.Contains(req.URL.Path, ":streamGenerateContent")
}

// ModelName reads the model out of the request path; generateContent bodies
// do not carry it.
func (GeminiCodec) ModelName(req *http.Request, _, respBody []byte) string {
	if m := gjson.GetBytes(respBody, "modelVersion"); m.Exists() {
		return m.String()
	}
	if req == nil {
		return ""
	}
	path := req.URL.Path
	i := strings.LastIndex(path, "models/")
	if i < 0 {
		return ""
	}
	model := path[i+len("models/"):]
	if j := strings.IndexByte(model, ':'); j >= 0 {
		model = model[:j]
	}
	return model
}

func partsText(parts gjson.Result) string {
	var b strings.Builder
	for _, part := range parts.Array() {
		if t := part.Get("text"); t.Exists() {
			b.WriteString(t.String())
		}
	}
	return b.String()
}

func (GeminiCodec) ExtractRequestMessages(reqBody []byte) []capability.ChatMessage {
	var msgs []capability.ChatMessage
	for _, content := range gjson.GetBytes(reqBody, "contents").Array() {
		role := content.Get("role").String()
		if role == "" {
			role = "user"
		}
		if role == "model" {
			role = "assistant"
		}
		text := partsText(content.Get("parts"))
		if text == "" {
			continue
		}
		msgs = append(msgs, capability.ChatMessage{Role: role, Content: text})
	}
	return msgs
}

// InjectMemory prepends a text part to the system instruction, creating the
// field when the request has none. Both key spellings occur in the wild.
func (GeminiCodec) InjectMemory(reqBody []byte, memoryText string) ([]byte, error) {
	for _, key := range []string{"systemInstruction", "system_instruction"} {
		if gjson.GetBytes(reqBody, key).Exists() {
			return prependMessage(reqBody, key+".parts", map[string]any{"text": memoryText})
		}
	}
	return sjson.SetBytes(reqBody, "systemInstruction", map[string]any{
		"parts": []map[string]any{{"text": memoryText}},
	})
}

func (GeminiCodec) IsStreaming(req *http.Request, _ []byte, resp *http.Response) bool {
	if req != nil && strings.Contains(req.URL.Path, ":streamGenerateContent") {
		return true
	}
	return isEventStream(resp)
}

func (GeminiCodec) ExtractResponseText(respBody []byte) string {
	return partsText(gjson.GetBytes(respBody, "candidates.0.content.parts"))
}

// SplitChunks handles both streaming framings: alt=sse produces data lines,
// the default produces one streamed JSON array of envelopes.
func (GeminiCodec) SplitChunks(raw []byte) [][]byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var chunks [][]byte
		for _, el := range gjson.ParseBytes(trimmed).Array() {
			chunks = append(chunks, []byte(el.Raw))
		}
		return chunks
	}
	return splitSSE(raw)
}

func (GeminiCodec) Reconstruct(chunks [][]byte) string {
	var b strings.Builder
	for _, chunk := range chunks {
		if text := partsText(gjson.GetBytes(chunk, "candidates.0.content.parts")); text != "" {
			b.WriteString(text)
			continue
		}
		// Older envelopes nest the text one level shallower.
		if t := gjson.GetBytes(chunk, "text"); t.Type == gjson.String {
			b.WriteString(t.String())
		}
	}
	return b.String()
}
