package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveDisabled(t *testing.T) {
	c := NewClient("", "photomind-test")
	addr, err := c.Resolve(context.Background(), 36.06, 120.38)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr != "" {
		t.Fatalf("expected no address from disabled client, got %q", addr)
	}
}

func TestResolveStructuredAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("lat") == "" || r.URL.Query().Get("lon") == "" {
			t.Fatalf("missing coordinates in query")
		}
		w.Write([]byte(`{"display_name":"somewhere long","address":{"country":"China","state":"Shandong","city":"Qingdao"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "photomind-test")
	addr, err := c.Resolve(context.Background(), 36.06, 120.38)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr != "China, Shandong, Qingdao" {
		t.Fatalf("unexpected address %q", addr)
	}
}

func TestResolveFallsBackToDisplayName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"display_name":"Golden Sands Beach","address":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "photomind-test")
	addr, err := c.Resolve(context.Background(), 36.0, 120.3)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr != "Golden Sands Beach" {
		t.Fatalf("unexpected address %q", addr)
	}
}

func TestResolveProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "photomind-test")
	if _, err := c.Resolve(context.Background(), 1, 2); err == nil {
		t.Fatalf("expected error on provider failure")
	}
}
