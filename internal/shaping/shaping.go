// Package shaping attaches the Forwarded header to upstream requests,
// stamps the Server header on outgoing responses, and provides the
// canned 404/502 bodies — the request/response shaping described in
// spec.md §4.9, generalized from the teacher's X-Forwarded-* helpers in
// internal/handler/gateway.go to the single standard Forwarded header
// this spec requires.
package shaping

import (
	"fmt"
	"net/http"
)

// Version is the process-wide identifier stamped in the Server header,
// following spec.md §4.9's "rxh/<version>" format.
const Version = "0.1.0"

// ServerHeaderValue is the exact value stamped on every response this
// proxy emits, including canned 404/502 bodies.
var ServerHeaderValue = "rxh/" + Version

// StampServer sets the Server header on an outgoing response.
func StampServer(h http.Header) {
	h.Set("Server", ServerHeaderValue)
}

// ForwardedValue computes the Forwarded header value per spec.md §4.5
// step 3: "for=<client>;by=<proxy_id or server_addr>;host=<Host header
// or server_addr>". If prior is non-empty (an inbound Forwarded header
// already existed), the new segment is appended after "<prior>, ".
func ForwardedValue(prior, client, by, host string) string {
	seg := fmt.Sprintf("for=%s;by=%s;host=%s", client, by, host)
	if prior == "" {
		return seg
	}
	return prior + ", " + seg
}

// WriteNotFound writes the canned text/plain 404 body and stamps the
// Server header.
func WriteNotFound(w http.ResponseWriter) {
	StampServer(w.Header())
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("HTTP 404 NOT FOUND"))
}

// WriteBadGateway writes the canned text/plain 502 body and stamps the
// Server header.
func WriteBadGateway(w http.ResponseWriter) {
	StampServer(w.Header())
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte("HTTP 502 BAD GATEWAY"))
}
