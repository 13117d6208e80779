package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}), RequestID, Logging)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if seen == "" {
		t.Fatal("handler did not see a request id")
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response id %q != request id %q", got, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seen != "abc" || w.Header().Get(RequestIDHeader) != "abc" {
		t.Errorf("incoming id not reused: %q", seen)
	}
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), RequestID, Logging, Recovery)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/readings", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestLoggingCapturesStatus(t *testing.T) {
	var rw *responseWriter
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	if rw.status != http.StatusTeapot || rw.size != len("short and stout") {
		t.Errorf("captured status=%d size=%d", rw.status, rw.size)
	}
}

func TestRoute(t *testing.T) {
	tests := map[string]string{
		"/":                 "/",
		"":                  "/",
		"/readings":         "/readings",
		"/readings/r-1":     "/readings",
		"/settings/user-1/": "/settings",
	}
	for in, want := range tests {
		if got := Route(in); got != want {
			t.Errorf("Route(%q) = %q, want %q", in, got, want)
		}
	}
}
