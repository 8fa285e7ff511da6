package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amishk599/jobradar/internal/model"
)

func makeTestServer(t *testing.T, status int, header http.Header, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range header {
			w.Header()[k] = v
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func contentResponse(content string) chatResponse {
	return chatResponse{Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: content}}}}
}

func TestComplete_Success(t *testing.T) {
	srv := makeTestServer(t, http.StatusOK, nil, contentResponse(`{"score": 8, "why_me": ["a","b","c"]}`))
	provider := NewOpenAIProvider(srv.URL+"/", "test-key", "test-model", srv.Client())

	got, err := provider.Complete(context.Background(), "rate this")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"score": 8, "why_me": ["a","b","c"]}` {
		t.Errorf("unexpected content %q", got)
	}
}

func TestComplete_RateLimited(t *testing.T) {
	srv := makeTestServer(t, http.StatusTooManyRequests, http.Header{"Retry-After": {"21"}},
		map[string]any{"error": map[string]string{"message": "Rate limit reached"}})
	provider := NewOpenAIProvider(srv.URL, "test-key", "test-model", srv.Client())

	_, err := provider.Complete(context.Background(), "rate this")
	if !errors.Is(err, model.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.RetryAfter != 21*time.Second {
		t.Errorf("expected Retry-After of 21s, got %+v", httpErr)
	}
}

func TestComplete_ServerError(t *testing.T) {
	srv := makeTestServer(t, http.StatusServiceUnavailable, nil, map[string]string{"error": "overloaded"})
	_, err := NewOpenAIProvider(srv.URL, "k", "m", srv.Client()).Complete(context.Background(), "p")

	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 HTTPError, got %v", err)
	}
	if errors.Is(err, model.ErrRateLimitExceeded) {
		t.Error("503 must not be reported as rate limiting")
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := makeTestServer(t, http.StatusOK, nil, chatResponse{})
	_, err := NewOpenAIProvider(srv.URL, "k", "m", srv.Client()).Complete(context.Background(), "p")
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestComplete_SendsStructuredOutputFormat(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(contentResponse(`{"score": 2, "why_me": []}`))
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(srv.URL, "my-secret-key", "gpt-4o-mini", srv.Client())
	if _, err := provider.Complete(context.Background(), "rate this"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer my-secret-key" {
		t.Errorf("Authorization header = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" || gotReq.Temperature != 0 {
		t.Errorf("unexpected request %+v", gotReq)
	}
	if gotReq.ResponseFormat.Type != "json_schema" || gotReq.ResponseFormat.JSONSchema.Name != "fit_score" {
		t.Errorf("unexpected response_format %+v", gotReq.ResponseFormat)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Content != "rate this" {
		t.Errorf("unexpected messages %+v", gotReq.Messages)
	}
}
