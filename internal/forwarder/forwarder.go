// Package forwarder implements the proxy forwarder (spec.md §4.5): it
// dials a chosen backend, hand-rolls an HTTP/1 client round-trip
// (Request.Write / http.ReadResponse — the codec spec.md §1 explicitly
// leaves to any conforming implementation), attaches the Forwarded
// header, relays the response, and — when the backend answers 101
// Switching Protocols — splices the two TCP halves into a raw tunnel.
//
// Grounded on internal/proxy/http1.go's dial/header-rewrite/RoundTrip
// shape for the request/response path, and internal/proxy/tcp.go's
// io.Copy-plus-CloseWrite byte splice for the tunnel.
package forwarder

import (
	"bufio"
	"io"
	"log"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rxh-go/rxh/internal/shaping"
)

// DefaultDialTimeout mirrors the teacher's upstream dial timeout.
const DefaultDialTimeout = 5 * time.Second

// Forwarder forwards requests to a single chosen backend address per
// call. ProxyID, when set, is used as the Forwarded header's "by"
// value; otherwise the local server address is used (spec.md §4.5
// step 3).
type Forwarder struct {
	ProxyID     string
	DialTimeout time.Duration
}

// New builds a Forwarder. proxyID may be empty.
func New(proxyID string) *Forwarder {
	return &Forwarder{ProxyID: proxyID, DialTimeout: DefaultDialTimeout}
}

func (f *Forwarder) dialTimeout() time.Duration {
	if f.DialTimeout > 0 {
		return f.DialTimeout
	}
	return DefaultDialTimeout
}

// Forward implements the steps of spec.md §4.5 for one request against
// one already-scheduled backend address.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, clientAddr, serverAddr, target string) {
	conn, err := net.DialTimeout("tcp", target, f.dialTimeout())
	if err != nil {
		log.Printf("forwarder: dial %s: %v", target, err)
		shaping.WriteBadGateway(w)
		return
	}

	wantsUpgrade := r.Header.Get("Upgrade") != ""

	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""
	outReq.URL.Scheme = "http"
	outReq.URL.Host = target
	outReq.Host = r.Host

	by := f.ProxyID
	if by == "" {
		by = serverAddr
	}
	host := r.Host
	if host == "" {
		host = serverAddr
	}
	prior := outReq.Header.Get("Forwarded")
	outReq.Header.Set("Forwarded", shaping.ForwardedValue(prior, clientAddr, by, host))

	if !wantsUpgrade {
		dropHopByHop(outReq.Header)
	}

	if err := outReq.Write(conn); err != nil {
		_ = conn.Close()
		log.Printf("forwarder: write upstream request: %v", err)
		shaping.WriteBadGateway(w)
		return
	}

	upstreamReader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(upstreamReader, outReq)
	if err != nil {
		_ = conn.Close()
		log.Printf("forwarder: read upstream response: %v", err)
		shaping.WriteBadGateway(w)
		return
	}

	if resp.StatusCode == http.StatusSwitchingProtocols {
		if !wantsUpgrade {
			_ = resp.Body.Close()
			_ = conn.Close()
			log.Printf("forwarder: upstream sent 101 without a request Upgrade: protocol error")
			shaping.WriteBadGateway(w)
			return
		}
		f.tunnel(w, resp, conn, upstreamReader)
		return
	}

	dropHopByHop(resp.Header)
	shaping.StampServer(resp.Header)
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("forwarder: relay response body from %s: %v", target, err)
	}
	_ = resp.Body.Close()
	_ = conn.Close()
}

// tunnel hands the original 101 response back to the client over a
// hijacked connection, then spawns the splice task that relays bytes
// in both directions independently of the request/response machinery
// until either side closes.
func (f *Forwarder) tunnel(w http.ResponseWriter, resp *http.Response, upstreamConn net.Conn, upstreamReader *bufio.Reader) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		_ = resp.Body.Close()
		_ = upstreamConn.Close()
		log.Printf("forwarder: response writer does not support hijacking, cannot tunnel")
		shaping.WriteBadGateway(w)
		return
	}
	clientConn, clientBuf, err := hj.Hijack()
	if err != nil {
		_ = resp.Body.Close()
		_ = upstreamConn.Close()
		log.Printf("forwarder: hijack client connection: %v", err)
		return
	}

	shaping.StampServer(resp.Header)
	if err := resp.Write(clientBuf.Writer); err != nil || clientBuf.Writer.Flush() != nil {
		log.Printf("forwarder: write 101 response to client: %v", err)
		_ = clientConn.Close()
		_ = upstreamConn.Close()
		return
	}

	go spliceTunnel(clientConn, clientBuf.Reader, upstreamConn, upstreamReader)
}

// spliceTunnel copies bytes in both directions until either half
// closes. Failures are logged and close the tunnel only; they are
// never surfaced to the request/response machinery, which has already
// returned.
func spliceTunnel(client net.Conn, clientReader *bufio.Reader, upstream net.Conn, upstreamReader *bufio.Reader) {
	defer client.Close()
	defer upstream.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := io.Copy(upstream, clientReader); err != nil {
			log.Printf("forwarder: tunnel client->upstream: %v", err)
		}
		if c, ok := upstream.(*net.TCPConn); ok {
			_ = c.CloseWrite()
		}
	}()

	if _, err := io.Copy(client, upstreamReader); err != nil {
		log.Printf("forwarder: tunnel upstream->client: %v", err)
	}
	if c, ok := client.(*net.TCPConn); ok {
		_ = c.CloseWrite()
	}
	<-done
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"TE":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func dropHopByHop(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, k := range strings.Split(f, ",") {
			k = textproto.TrimString(k)
			if k != "" {
				h.Del(k)
			}
		}
	}
	for k := range hopByHop {
		h.Del(k)
	}
}
