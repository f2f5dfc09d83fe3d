package intercept

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/agentic-learning/go-learning/pkg/capability"
)

// OpenAICodec handles the chat-completions wire format, used by the OpenAI
// API and the many services that imitate it, plus the Responses API
// (instructions + input, output message items).
type OpenAICodec struct{}

func (OpenAICodec) Provider() capability.Provider { return capability.ProviderOpenAI }

func (OpenAICodec) Match(req *http.Request) bool {
	if req.Method != http.MethodPost {
		return false
	}
	if strings.Contains(req.URL.Host, "openai.com") {
		return strings.Contains(req.URL.Path, "/chat/completions") ||
			strings.HasSuffix(req.URL.Path, "/completions") ||
			strings.HasSuffix(req.URL.Path, "/responses")
	}
	// Compatible proxies keep the distinctive path.
	return strings.HasSuffix(req.URL.Path, "/chat/completions")
}

func (OpenAICodec) ModelName(_ *http.Request, reqBody, respBody []byte) string {
	if m := gjson.GetBytes(respBody, "model"); m.Exists() {
		return m.String()
	}
	return gjson.GetBytes(reqBody, "model").String()
}

// messageText flattens a chat message content field that may be a plain
// string or a list of typed parts.
func messageText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		var b strings.Builder
		for _, part := range content.Array() {
			if t := part.Get("text"); t.Exists() {
				b.WriteString(t.String())
			}
		}
		return b.String()
	}
	return ""
}

func (OpenAICodec) ExtractRequestMessages(reqBody []byte) []capability.ChatMessage {
	if input := gjson.GetBytes(reqBody, "input"); input.Exists() {
		return responsesInput(input)
	}
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

func (OpenAICodec) InjectMemory(reqBody []byte, memoryText string) ([]byte, error) {
	// Responses requests carry instructions instead of a system message.
	if gjson.GetBytes(reqBody, "input").Exists() {
		if instr := gjson.GetBytes(reqBody, "instructions"); instr.Type == gjson.String {
			return sjson.SetBytes(reqBody, "instructions", memoryText+"\n\n"+instr.String())
		}
		return sjson.SetBytes(reqBody, "instructions", memoryText)
	}
	msgs := gjson.GetBytes(reqBody, "messages")
	if !msgs.Exists() {
		return nil, fmt.Errorf("openai: request carries no messages array")
	}
	first := msgs.Get("0")
	role := first.Get("role").String()
	if (role == "system" || role == "developer") && first.Get("content").Type == gjson.String {
		merged := memoryText + "\n\n" + first.Get("content").String()
		return sjson.SetBytes(reqBody, "messages.0.content", merged)
	}
	return prependMessage(reqBody, "messages", map[string]any{
		"role":    "system",
		"content": memoryText,
	})
}

func (OpenAICodec) IsStreaming(_ *http.Request, reqBody []byte, resp *http.Response) bool {
	return gjson.GetBytes(reqBody, "stream").Bool() || isEventStream(resp)
}

func (OpenAICodec) ExtractResponseText(respBody []byte) string {
	if t := gjson.GetBytes(respBody, "choices.0.message.content"); t.Exists() {
		return messageText(t)
	}
	// Responses shape: output message items carrying output_text parts.
	if output := gjson.GetBytes(respBody, "output"); output.IsArray() {
		var b strings.Builder
		for _, item := range output.Array() {
			b.WriteString(messageText(item.Get("content")))
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	// Legacy completions shape.
	return gjson.GetBytes(respBody, "choices.0.text").String()
}

func (OpenAICodec) SplitChunks(raw []byte) [][]byte { return splitSSE(raw) }

func (OpenAICodec) Reconstruct(chunks [][]byte) string {
	var b strings.Builder
	for _, chunk := range chunks {
		// Responses streams tag every event; only text deltas contribute.
		if gjson.GetBytes(chunk, "type").String() == "response.output_text.delta" {
			b.WriteString(gjson.GetBytes(chunk, "delta").String())
			continue
		}
		// Chunk envelopes differ across SDK and API generations; take the
		// first shape that yields text and skip silent chunks.
		for _, path := range []string{"choices.0.delta.content", "choices.0.text", "delta.content"} {
			if t := gjson.GetBytes(chunk, path); t.Exists() && t.Type == gjson.String {
				b.WriteString(t.String())
				break
			}
		}
	}
	return b.String()
}

// responsesInput normalizes the Responses API input field, which is either a
// bare user string or a list of role-tagged items.
func responsesInput(input gjson.Result) []capability.ChatMessage {
	if input.Type == gjson.String {
		return []capability.ChatMessage{{Role: "user", Content: input.String()}}
	}
	var msgs []capability.ChatMessage
	for _, item := range input.Array() {
		role := item.Get("role").String()
		text := messageText(item.Get("content"))
		if role == "" || text == "" {
			continue
		}
		msgs = append(msgs, capability.ChatMessage{Role: role, Content: text})
	}
	return msgs
}

// prependMessage inserts a new leading entry into the JSON array at path,
// leaving every existing entry in place.
func prependMessage(body []byte, path string, entry map[string]any) ([]byte, error) {
	head, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	existing := gjson.GetBytes(body, path)
	rest := strings.TrimSpace(existing.Raw)
	var raw string
	switch {
	case !existing.Exists() || rest == "" || rest == "[]":
		raw = "[" + string(head) + "]"
	case !existing.IsArray():
		return nil, fmt.Errorf("%s is not an array", path)
	default:
		raw = "[" + string(head) + "," + rest[1:]
	}
	return sjson.SetRawBytes(body, path, []byte(raw))
}
