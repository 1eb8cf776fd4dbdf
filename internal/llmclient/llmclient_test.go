package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestSendReturnsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected Authorization header, got %q", got)
		}
		w.Write([]byte(`{"content":"hello"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL, APIKey: "test-key"})
	inv, err := client.Send(context.Background(), json.RawMessage(`{"messages":[]}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(inv.Response) != `{"content":"hello"}` {
		t.Errorf("unexpected response: %s", inv.Response)
	}
}

func TestSendRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL, MaxAttempts: 5, HTTPClient: srv.Client()})
	inv, err := client.Send(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(inv.Response) != `{"ok":true}` {
		t.Errorf("unexpected response: %s", inv.Response)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestSendDoesNotRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL, MaxAttempts: 5})
	_, err := client.Send(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for 4xx response")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a non-retryable status, got %d", calls)
	}
}

func TestSendExhaustsAttemptsOnPersistent5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL, MaxAttempts: 2})
	_, err := client.Send(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
}
