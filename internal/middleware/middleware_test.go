package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestTraceAssignsID(t *testing.T) {
	var got string
	h := Trace(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = TraceID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got == "" {
		t.Fatal("no trace id in context")
	}
	if echoed := rec.Header().Get(TraceHeader); echoed != got {
		t.Fatalf("response header %q != context id %q", echoed, got)
	}
}

func TestTraceHonorsClientID(t *testing.T) {
	var got string
	h := Trace(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "client-supplied")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "client-supplied" {
		t.Fatalf("trace id = %q", got)
	}
}

func TestRecoveryConvertsPanic(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestLoggingPreservesStatus(t *testing.T) {
	h := Logging(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
}
