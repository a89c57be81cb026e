package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sseServer(t *testing.T, status int, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var body anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !body.Stream {
			t.Error("expected stream=true")
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "event: x\ndata: %s\n\n", ev)
		}
	}))
}

func delta(text string) string {
	b, _ := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": 0,
		"delta": map[string]string{"type": "text_delta", "text": text},
	})
	return string(b)
}

func TestClaudeStream_YieldsDeltas(t *testing.T) {
	srv := sseServer(t, http.StatusOK,
		`{"type":"message_start","message":{"id":"m1"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		delta("<SECTION>"),
		`{"type":"ping"}`,
		delta("<P>hi</P>"),
		delta("</SECTION>"),
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_stop"}`,
	)
	defer srv.Close()

	c := NewClaudeClient("test-key", "claude-test", srv.URL)
	defer c.Close()
	var chunks []string
	for chunk, err := range c.Stream(context.Background(), Request{Prompt: "x"}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		chunks = append(chunks, chunk)
	}
	if got := strings.Join(chunks, ""); got != "<SECTION><P>hi</P></SECTION>" {
		t.Errorf("unexpected text %q", got)
	}
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(chunks))
	}
}

func TestClaudeStream_RateLimitIsRetryable(t *testing.T) {
	srv := sseServer(t, http.StatusTooManyRequests)
	defer srv.Close()

	c := NewClaudeClient("test-key", "claude-test", srv.URL)
	_, err := Collect(c.Stream(context.Background(), Request{Prompt: "x"}))
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRetryable(err) {
		t.Errorf("expected retryable error, got %v", err)
	}
}

func TestClaudeStream_BadRequestNotRetryable(t *testing.T) {
	srv := sseServer(t, http.StatusBadRequest)
	defer srv.Close()

	c := NewClaudeClient("test-key", "claude-test", srv.URL)
	_, err := Collect(c.Stream(context.Background(), Request{Prompt: "x"}))
	if err == nil || IsRetryable(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
}

func TestClaudeStream_ErrorEventMidStream(t *testing.T) {
	srv := sseServer(t, http.StatusOK,
		delta("<SECTION>"),
		`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
	)
	defer srv.Close()

	c := NewClaudeClient("test-key", "claude-test", srv.URL)
	out, err := Collect(c.Stream(context.Background(), Request{Prompt: "x"}))
	if out != "<SECTION>" {
		t.Errorf("expected partial output kept, got %q", out)
	}
	if !IsRetryable(err) {
		t.Errorf("expected overloaded error to be retryable, got %v", err)
	}
}

func TestClaudeStream_EarlyBreak(t *testing.T) {
	srv := sseServer(t, http.StatusOK, delta("a"), delta("b"), delta("c"))
	defer srv.Close()

	c := NewClaudeClient("test-key", "claude-test", srv.URL)
	n := 0
	for range c.Stream(context.Background(), Request{Prompt: "x"}) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("expected to stop after one chunk, got %d", n)
	}
}

func TestPrompts(t *testing.T) {
	o := OutlinePrompt(OutlineRequest{Prompt: "Solar power", NumSlides: 6, Reference: "ref text"})
	if !strings.Contains(o.Prompt, "Number of slides: 6") || !strings.Contains(o.Prompt, "ref text") {
		t.Errorf("unexpected outline prompt %q", o.Prompt)
	}
	if !strings.Contains(o.System, "<TITLE>") {
		t.Error("expected outline system prompt to ask for a title marker")
	}

	s := SlidesPrompt(SlidesRequest{Title: "Solar", Outline: []string{"Why", "How"}})
	if !strings.Contains(s.Prompt, "1. Why\n2. How\n") {
		t.Errorf("unexpected slides prompt %q", s.Prompt)
	}
	if !strings.Contains(s.Prompt, "Tone: professional") {
		t.Error("expected default tone")
	}
	for _, tag := range []string{"<SECTION", "<PROS-CONS>", "<CHART", "<ARROW-VERTICAL>"} {
		if !strings.Contains(s.System, tag) {
			t.Errorf("expected slides system prompt to mention %s", tag)
		}
	}
}
