package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nidohq/nido/internal/llm"
)

func sseServer(t *testing.T, lines []string, check func(r *http.Request, body []byte)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if check != nil {
			check(r, body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			w.Write([]byte(line + "\n\n"))
		}
	}))
}

func collect(t *testing.T, events <-chan llm.Event) (string, error) {
	t.Helper()
	var b strings.Builder
	for ev := range events {
		if ev.Err != nil {
			return b.String(), ev.Err
		}
		b.WriteString(ev.Delta)
	}
	return b.String(), nil
}

func TestStream(t *testing.T) {
	var gotBody []byte
	var gotAuth string
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
		`data: {"choices":[{"delta":{"content":" world"}}]}`,
		`data: [DONE]`,
	}, func(r *http.Request, body []byte) {
		gotAuth = r.Header.Get("Authorization")
		gotBody = body
	})
	defer srv.Close()

	client := New(llm.Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini", MaxTokens: 128})
	events, err := client.Stream(context.Background(), &llm.Request{
		System:   "be brief",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	reply, err := collect(t, events)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if reply != "Hello world" {
		t.Errorf("reply = %q, want Hello world", reply)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer key", gotAuth)
	}

	var req chatRequest
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatalf("request body unmarshal error = %v", err)
	}
	if !req.Stream || req.Model != "gpt-4o-mini" || req.MaxTokens != 128 {
		t.Errorf("request = %+v, want streaming gpt-4o-mini with max_tokens", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hi" {
		t.Errorf("messages = %+v, want system then user", req.Messages)
	}
}

func TestStreamAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(llm.Config{APIKey: "sk-test", BaseURL: srv.URL})
	if _, err := client.Stream(context.Background(), &llm.Request{}); err == nil {
		t.Fatal("Stream() error = nil, want API error")
	}
}

func TestStreamMalformedChunk(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"ok"}}]}`,
		`data: {not json`,
	}, nil)
	defer srv.Close()

	client := New(llm.Config{APIKey: "sk-test", BaseURL: srv.URL})
	events, err := client.Stream(context.Background(), &llm.Request{})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	reply, streamErr := collect(t, events)
	if streamErr == nil {
		t.Fatal("stream error = nil, want unmarshal failure")
	}
	if reply != "ok" {
		t.Errorf("reply before error = %q, want ok", reply)
	}
}

func TestDefaultBaseURL(t *testing.T) {
	client := New(llm.Config{APIKey: "sk-test"})
	if client.baseURL != defaultBaseURL {
		t.Errorf("baseURL = %q, want default", client.baseURL)
	}
	client = New(llm.Config{APIKey: "sk-test", BaseURL: "http://example.test/v1/"})
	if client.baseURL != "http://example.test/v1" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
	}
}
