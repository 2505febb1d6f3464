package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antoniostano/whatsline/internal/transcript"
)

func testTurns() []transcript.Turn {
	return []transcript.Turn{
		{Role: transcript.RoleSystem, Content: "persona"},
		{Role: transcript.RoleUser, Content: "Hola"},
	}
}

func newTestClient(url string) *OpenAIClient {
	c := NewOpenAIClient(OpenAIConfig{BaseURL: url, APIKey: "test-key", Model: "gpt-4"})
	c.backoffBase = time.Millisecond
	c.backoffLimit = 5 * time.Millisecond
	return c
}

func completionBody(content string) string {
	return `{"choices":[{"message":{"content":` + mustJSON(content) + `}}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestCompleteSuccess(t *testing.T) {
	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(completionBody("Hola, soy Laura.")))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Complete(context.Background(), testTurns())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "Hola, soy Laura." {
		t.Fatalf("Complete() = %q", got)
	}
	if gotReq.Model != "gpt-4" {
		t.Fatalf("request model = %q, want gpt-4", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Content != "Hola" {
		t.Fatalf("request messages = %+v", gotReq.Messages)
	}
}

func TestCompleteDoesNotMutateTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	turns := testTurns()
	if _, err := newTestClient(srv.URL).Complete(context.Background(), turns); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(turns) != 2 || turns[1].Content != "Hola" {
		t.Fatalf("transcript mutated: %+v", turns)
	}
}

func TestCompleteProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), testTurns())
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if pe.StatusCode != http.StatusUnauthorized || pe.Message != "bad key" {
		t.Fatalf("provider error = %+v", pe)
	}
}

func TestCompleteRetriesRetryableStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(completionBody("recovered")))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Complete(context.Background(), testTurns())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "recovered" {
		t.Fatalf("Complete() = %q", got)
	}
	if calls != 2 {
		t.Fatalf("provider called %d times, want 2", calls)
	}
}

func TestCompleteNoRetryOnClientError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Complete(context.Background(), testTurns()); err == nil {
		t.Fatalf("Complete() expected error")
	}
	if calls != 1 {
		t.Fatalf("provider called %d times, want 1", calls)
	}
}

func TestCompleteEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), testTurns())
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestCompleteBlankContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody("   ")))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), testTurns())
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestMockClientEchoesLastUserTurn(t *testing.T) {
	got, err := NewMockClient().Complete(context.Background(), testTurns())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "I heard you: Hola" {
		t.Fatalf("mock reply = %q", got)
	}
}
