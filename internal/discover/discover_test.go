package discover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDiscover_FirstRespondingServerWins(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead.Close()

	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data":[{"id":"qwen2.5-coder"},{"id":"other"}]}`))
	}))
	defer live.Close()

	srv, err := Discover(context.Background(), []string{dead.URL, live.URL}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if srv.BaseURL != live.URL {
		t.Fatalf("got %q want %q", srv.BaseURL, live.URL)
	}
	if srv.Model != "qwen2.5-coder" {
		t.Fatalf("model wrong: %q", srv.Model)
	}
}

func TestDiscover_Non200Skipped(t *testing.T) {
	errSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer errSrv.Close()

	_, err := Discover(context.Background(), []string{errSrv.URL}, nil)
	if err == nil {
		t.Fatal("expected discovery failure")
	}
	if !strings.Contains(err.Error(), "no inference server found") {
		t.Fatalf("error message wrong: %v", err)
	}
}

func TestDiscover_EmptyModelListTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	got, err := Discover(context.Background(), []string{srv.URL}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Model != "" {
		t.Fatalf("expected empty model, got %q", got.Model)
	}
}

func TestDefaultCandidates(t *testing.T) {
	urls := DefaultCandidates()
	if len(urls) != len(DefaultPorts) {
		t.Fatalf("got %d candidates", len(urls))
	}
	if urls[0] != "http://localhost:8080" {
		t.Fatalf("first candidate wrong: %q", urls[0])
	}
}
