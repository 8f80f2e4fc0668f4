package shaping

import (
	"net/http/httptest"
	"testing"
)

func TestForwardedValue_NoPrior(t *testing.T) {
	got := ForwardedValue("", "127.0.0.1:5000", "127.0.0.1:8080", "x")
	want := "for=127.0.0.1:5000;by=127.0.0.1:8080;host=x"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestForwardedValue_WithPrior(t *testing.T) {
	got := ForwardedValue("for=1.2.3.4;by=proxy1;host=a", "127.0.0.1:5000", "127.0.0.1:8080", "x")
	want := "for=1.2.3.4;by=proxy1;host=a, for=127.0.0.1:5000;by=127.0.0.1:8080;host=x"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWriteNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNotFound(w)
	if w.Code != 404 {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
	if w.Header().Get("Server") != ServerHeaderValue {
		t.Fatalf("server header: got %q", w.Header().Get("Server"))
	}
	if w.Header().Get("Content-Type") != "text/plain" {
		t.Fatalf("content-type: got %q", w.Header().Get("Content-Type"))
	}
	if w.Body.String() != "HTTP 404 NOT FOUND" {
		t.Fatalf("body: got %q", w.Body.String())
	}
}

func TestWriteBadGateway(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBadGateway(w)
	if w.Code != 502 {
		t.Fatalf("status: got %d, want 502", w.Code)
	}
	if w.Body.String() != "HTTP 502 BAD GATEWAY" {
		t.Fatalf("body: got %q", w.Body.String())
	}
}
