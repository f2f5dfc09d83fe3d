package intercept

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func postReq(t *testing.T, rawurl string, header http.Header) *http.Request {
	t.Helper()
	u, err := url.Parse(rawurl)
	if err != nil {
		t.Fatal(err)
	}
	req := &http.Request{Method: http.MethodPost, URL: u, Header: header}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	return req
}

func TestOpenAICodec_InjectMergesLeadingSystem(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","messages":[{"role":"system","content":"Be terse."},{"role":"user","content":"hi"}]}`)
	out, err := OpenAICodec{}.InjectMemory(body, "MEM")
	if err != nil {
		t.Fatal(err)
	}
	msgs := gjson.GetBytes(out, "messages").Array()
	if len(msgs) != 2 {
		t.Fatalf("message count changed: %d", len(msgs))
	}
	first := msgs[0].Get("content").String()
	if !strings.HasPrefix(first, "MEM") || !strings.Contains(first, "Be terse.") {
		t.Errorf("system content not merged: %q", first)
	}
	if msgs[1].Get("content").String() != "hi" {
		t.Errorf("user message disturbed: %s", msgs[1].Raw)
	}
}

func TestOpenAICodec_InjectPrependsWhenNoSystem(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	out, err := OpenAICodec{}.InjectMemory(body, "MEM")
	if err != nil {
		t.Fatal(err)
	}
	msgs := gjson.GetBytes(out, "messages").Array()
	if len(msgs) != 2 {
		t.Fatalf("expected prepended system entry, got %d messages", len(msgs))
	}
	if msgs[0].Get("role").String() != "system" || msgs[0].Get("content").String() != "MEM" {
		t.Errorf("leading entry = %s", msgs[0].Raw)
	}
}

func TestOpenAICodec_ExtractPartsContent(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"},{"type":"image_url","image_url":{"url":"data:x"}}]}]}`)
	msgs := OpenAICodec{}.ExtractRequestMessages(body)
	if len(msgs) != 1 || msgs[0].Content != "part one part two" {
		t.Errorf("multi-part extraction = %+v", msgs)
	}
}

func TestOpenAICodec_Reconstruct(t *testing.T) {
	cases := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"empty", nil, ""},
		{"single", []string{`{"choices":[{"delta":{"content":"only"}}]}`}, "only"},
		{"many", []string{
			`{"choices":[{"delta":{"role":"assistant"}}]}`,
			`{"choices":[{"delta":{"content":"a"}}]}`,
			`{"choices":[{"delta":{"content":"b"}}]}`,
			`{"choices":[{"text":"c"}]}`,
			`{"choices":[{"finish_reason":"stop","delta":{}}]}`,
		}, "abc"},
		{"garbage skipped", []string{`not json`, `{"choices":[{"delta":{"content":"x"}}]}`}, "x"},
	}
	for _, tc := range cases {
		var chunks [][]byte
		for _, c := range tc.chunks {
			chunks = append(chunks, []byte(c))
		}
		if got := (OpenAICodec{}).Reconstruct(chunks); got != tc.want {
			t.Errorf("%s: Reconstruct = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestOpenAICodec_InjectRejectsMalformedMessages(t *testing.T) {
	if _, err := (OpenAICodec{}).InjectMemory([]byte(`{"messages":"x"}`), "MEM"); err == nil {
		t.Error("non-array messages field must fail injection, not splice raw JSON")
	}
}

func TestOpenAICodec_ResponsesInject(t *testing.T) {
	codec := OpenAICodec{}

	out, err := codec.InjectMemory([]byte(`{"model":"gpt-4o","input":"My name is Alice."}`), "MEM")
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(out, "instructions").String() != "MEM" {
		t.Errorf("instructions not created: %s", out)
	}
	if gjson.GetBytes(out, "input").String() != "My name is Alice." {
		t.Errorf("input disturbed: %s", out)
	}

	out, err = codec.InjectMemory([]byte(`{"model":"gpt-4o","instructions":"Be terse.","input":"hi"}`), "MEM")
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(out, "instructions").String(); got != "MEM\n\nBe terse." {
		t.Errorf("instructions not merged: %q", got)
	}
}

func TestOpenAICodec_ResponsesExtractRequest(t *testing.T) {
	codec := OpenAICodec{}

	msgs := codec.ExtractRequestMessages([]byte(`{"model":"gpt-4o","input":"My name is Alice."}`))
	if len(msgs) != 1 || msgs[0].Role != "user" || msgs[0].Content != "My name is Alice." {
		t.Errorf("string input = %+v", msgs)
	}

	body := []byte(`{"input":[{"role":"user","content":[{"type":"input_text","text":"first"}]},{"role":"assistant","content":[{"type":"output_text","text":"second"}]}]}`)
	msgs = codec.ExtractRequestMessages(body)
	if len(msgs) != 2 || msgs[0].Content != "first" || msgs[1].Role != "assistant" {
		t.Errorf("item-list input = %+v", msgs)
	}
}

func TestOpenAICodec_ResponsesExtractResponse(t *testing.T) {
	resp := []byte(`{"model":"gpt-4o","output":[{"type":"reasoning","summary":[]},{"type":"message","role":"assistant","content":[{"type":"output_text","text":"Hello "},{"type":"output_text","text":"Alice"}]}]}`)
	if got := (OpenAICodec{}).ExtractResponseText(resp); got != "Hello Alice" {
		t.Errorf("output text = %q", got)
	}
}

func TestOpenAICodec_ResponsesReconstruct(t *testing.T) {
	chunks := [][]byte{
		[]byte(`{"type":"response.created","response":{"id":"r1"}}`),
		[]byte(`{"type":"response.output_text.delta","delta":"Hel"}`),
		[]byte(`{"type":"response.function_call_arguments.delta","delta":"{\"x\":"}`),
		[]byte(`{"type":"response.output_text.delta","delta":"lo"}`),
		[]byte(`{"type":"response.completed"}`),
	}
	if got := (OpenAICodec{}).Reconstruct(chunks); got != "Hello" {
		t.Errorf("responses stream = %q", got)
	}
}

func TestAnthropicCodec_Match(t *testing.T) {
	codec := AnthropicCodec{}
	if !codec.Match(postReq(t, "https://api.anthropic.com/v1/messages", nil)) {
		t.Error("real endpoint should match")
	}
	versioned := http.Header{}
	versioned.Set("Anthropic-Version", "2023-06-01")
	if !codec.Match(postReq(t, "https://gateway.internal/v1/messages", versioned)) {
		t.Error("versioned gateway call should match")
	}
	// A memory-service capture POST also ends in /messages but carries no
	// version header; it must never be treated as a provider call.
	if codec.Match(postReq(t, "http://localhost:8283/v1/agents/a1/messages", nil)) {
		t.Error("capability-client route must not match")
	}
}

func TestAnthropicCodec_InjectSystemShapes(t *testing.T) {
	codec := AnthropicCodec{}

	out, err := codec.InjectMemory([]byte(`{"model":"claude-sonnet-4-20250514","messages":[]}`), "MEM")
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(out, "system").String() != "MEM" {
		t.Errorf("absent system: %s", out)
	}

	out, err = codec.InjectMemory([]byte(`{"system":"Be terse.","messages":[]}`), "MEM")
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(out, "system").String(); got != "MEM\n\nBe terse." {
		t.Errorf("string system: %q", got)
	}

	out, err = codec.InjectMemory([]byte(`{"system":[{"type":"text","text":"Be terse."}],"messages":[]}`), "MEM")
	if err != nil {
		t.Fatal(err)
	}
	blocks := gjson.GetBytes(out, "system").Array()
	if len(blocks) != 2 || blocks[0].Get("text").String() != "MEM" {
		t.Errorf("array system: %s", out)
	}
}

func TestAnthropicCodec_ResponseAndChunks(t *testing.T) {
	codec := AnthropicCodec{}
	resp := []byte(`{"model":"claude-sonnet-4-20250514","content":[{"type":"text","text":"Hello"},{"type":"tool_use","name":"t"},{"type":"text","text":" world"}]}`)
	if got := codec.ExtractResponseText(resp); got != "Hello world" {
		t.Errorf("response text = %q", got)
	}

	chunks := [][]byte{
		[]byte(`{"type":"message_start","message":{"role":"assistant"}}`),
		[]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`),
		[]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`),
		[]byte(`{"type":"message_stop"}`),
	}
	if got := codec.Reconstruct(chunks); got != "Hello" {
		t.Errorf("reconstruct = %q", got)
	}
}

func TestGeminiCodec_MatchOnlyGenerateEndpoints(t *testing.T) {
	codec := GeminiCodec{}
	for _, rawurl := range []string{
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent",
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:streamGenerateContent?alt=sse",
		"https://gateway.internal/v1beta/models/gemini-2.0-flash:generateContent",
	} {
		if !codec.Match(postReq(t, rawurl, nil)) {
			t.Errorf("generate call should match: %s", rawurl)
		}
	}
	// Same host, different operations: these bodies have no systemInstruction
	// field and must never be rewritten.
	for _, rawurl := range []string{
		"https://generativelanguage.googleapis.com/v1beta/models/text-embedding-004:embedContent",
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:countTokens",
		"https://generativelanguage.googleapis.com/upload/v1beta/files",
	} {
		if codec.Match(postReq(t, rawurl, nil)) {
			t.Errorf("non-generate call must pass through: %s", rawurl)
		}
	}
}

func TestGeminiCodec_ModelFromPath(t *testing.T) {
	codec := GeminiCodec{}
	req := postReq(t, "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:streamGenerateContent?alt=sse", nil)
	if got := codec.ModelName(req, nil, nil); got != "gemini-2.0-flash" {
		t.Errorf("model = %q", got)
	}
	if !codec.IsStreaming(req, nil, nil) {
		t.Error("streamGenerateContent should stream")
	}
}

func TestGeminiCodec_InjectSystemInstruction(t *testing.T) {
	codec := GeminiCodec{}
	out, err := codec.InjectMemory([]byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`), "MEM")
	if err != nil {
		t.Fatal(err)
	}
	if got := gjson.GetBytes(out, "systemInstruction.parts.0.text").String(); got != "MEM" {
		t.Errorf("created instruction: %s", out)
	}

	out, err = codec.InjectMemory(out, "MORE")
	if err != nil {
		t.Fatal(err)
	}
	parts := gjson.GetBytes(out, "systemInstruction.parts").Array()
	if len(parts) != 2 || parts[0].Get("text").String() != "MORE" {
		t.Errorf("prepend into existing instruction: %s", out)
	}
}

func TestGeminiCodec_SplitChunks_BothFramings(t *testing.T) {
	codec := GeminiCodec{}
	sse := []byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"a\"}]}}]}\r\n\r\ndata: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"b\"}]}}]}\r\n\r\n")
	if got := codec.Reconstruct(codec.SplitChunks(sse)); got != "ab" {
		t.Errorf("sse framing = %q", got)
	}
	arr := []byte(`[{"candidates":[{"content":{"parts":[{"text":"a"}]}}]},{"candidates":[{"content":{"parts":[{"text":"b"}]}}]}]`)
	if got := codec.Reconstruct(codec.SplitChunks(arr)); got != "ab" {
		t.Errorf("array framing = %q", got)
	}
}

func TestOllamaCodec_GenerateAndChat(t *testing.T) {
	codec := OllamaCodec{}

	out, err := codec.InjectMemory([]byte(`{"model":"llama3","prompt":"hi"}`), "MEM")
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(out, "system").String() != "MEM" {
		t.Errorf("generate injection: %s", out)
	}

	msgs := codec.ExtractRequestMessages([]byte(`{"model":"llama3","prompt":"hi"}`))
	if len(msgs) != 1 || msgs[0].Role != "user" || msgs[0].Content != "hi" {
		t.Errorf("prompt extraction = %+v", msgs)
	}

	ndjson := []byte("{\"message\":{\"content\":\"He\"},\"done\":false}\n{\"message\":{\"content\":\"y\"},\"done\":false}\n{\"done\":true}\n")
	if got := codec.Reconstruct(codec.SplitChunks(ndjson)); got != "Hey" {
		t.Errorf("ndjson reconstruction = %q", got)
	}

	if !codec.IsStreaming(nil, []byte(`{"model":"llama3"}`), nil) {
		t.Error("ollama defaults to streaming")
	}
	if codec.IsStreaming(nil, []byte(`{"stream":false}`), nil) {
		t.Error("explicit stream:false must not stream")
	}
}

func TestSplitSSE_MultilineData(t *testing.T) {
	raw := []byte("event: delta\ndata: {\"a\":\ndata: 1}\n\ndata: [DONE]\n\n")
	chunks := splitSSE(raw)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1 (sentinel dropped)", len(chunks))
	}
	if gjson.GetBytes(chunks[0], "a").Int() != 1 {
		t.Errorf("joined data payload = %s", chunks[0])
	}
}
