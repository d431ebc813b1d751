package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "photos of the beach at sunset"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "")
	text, err := c.Transcribe(context.Background(), "query.webm", strings.NewReader("audio-bytes"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "photos of the beach at sunset" {
		t.Fatalf("text = %q", text)
	}
}

func TestTranscribeProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	if _, err := c.Transcribe(context.Background(), "q.webm", strings.NewReader("x")); err == nil {
		t.Fatal("expected error on provider 503")
	}
}

func TestEnabled(t *testing.T) {
	if NewClient("", "", "").Enabled() {
		t.Fatal("client without base URL reported enabled")
	}
	if !NewClient("http://localhost", "", "").Enabled() {
		t.Fatal("configured client reported disabled")
	}
}
