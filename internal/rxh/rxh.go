// Package rxh is the request router (spec.md §4.4, the "Rxh service"):
// given an immutable server configuration it picks the first pattern
// whose uri is a prefix of the request path and dispatches to the
// forwarder or the static file server.
//
// One Router is built per listener replica (internal/server) and
// shared, read-only, by every connection it accepts; this is also
// where each Forward pattern's scheduler is materialized, satisfying
// spec.md §3's "scheduler is listener-local, not config-local" —
// cloning a config.Server onto a second listen address and building a
// second Router for it produces an independent scheduler with its own
// cursor.
//
// Grounded on internal/router/router.go's Table.Match prefix-scan, kept
// deliberately simpler than internal/proxy/router.go's segment-aware
// matching: spec.md §9 Open Question (a) decides plain first-prefix-
// match-wins semantics.
package rxh

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rxh-go/rxh/internal/config"
	"github.com/rxh-go/rxh/internal/forwarder"
	"github.com/rxh-go/rxh/internal/scheduler"
	"github.com/rxh-go/rxh/internal/shaping"
	"github.com/rxh-go/rxh/internal/staticfiles"
)

type compiledPattern struct {
	uri       string
	kind      config.ActionKind
	scheduler scheduler.Scheduler
	root      string
}

// Router holds the compiled, listener-local pattern table for one
// Server config.
type Router struct {
	patterns   []compiledPattern
	forwarder  *forwarder.Forwarder
	serverAddr string
}

// New compiles srv's pattern table for one listener replica bound at
// serverAddr. proxyID, if non-empty, becomes the Forwarded header's
// "by" value (spec.md §4.5 step 3); otherwise serverAddr is used.
func New(srv config.Server, serverAddr, proxyID string) (*Router, error) {
	patterns := make([]compiledPattern, 0, len(srv.Patterns))
	for i, p := range srv.Patterns {
		switch p.Action.Kind {
		case config.ActionForward:
			s, err := scheduler.New(p.Action.Forward.Algorithm, p.Action.Forward.Backends)
			if err != nil {
				return nil, fmt.Errorf("rxh: patterns[%d]: %w", i, err)
			}
			patterns = append(patterns, compiledPattern{uri: p.URI, kind: config.ActionForward, scheduler: s})
		case config.ActionServe:
			patterns = append(patterns, compiledPattern{uri: p.URI, kind: config.ActionServe, root: p.Action.Root})
		default:
			return nil, fmt.Errorf("rxh: patterns[%d]: pattern has no action", i)
		}
	}
	return &Router{
		patterns:   patterns,
		forwarder:  forwarder.New(proxyID),
		serverAddr: serverAddr,
	}, nil
}

// ForConnection returns an http.Handler bound to one accepted
// connection's client address. The returned handler shares this
// Router's compiled pattern table and schedulers; only the client
// address differs between connections.
func (rt *Router) ForConnection(clientAddr string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.serve(w, r, clientAddr)
	})
}

func (rt *Router) serve(w http.ResponseWriter, r *http.Request, clientAddr string) {
	p := rt.match(r.URL.Path)
	if p == nil {
		shaping.WriteNotFound(w)
		return
	}
	switch p.kind {
	case config.ActionForward:
		target := p.scheduler.Next()
		rt.forwarder.Forward(w, r, clientAddr, rt.serverAddr, target)
	case config.ActionServe:
		suffix := strings.TrimPrefix(r.URL.Path, p.uri)
		if !strings.HasPrefix(suffix, "/") {
			suffix = "/" + suffix
		}
		// Stamped before ServeFile, which calls http.ServeContent:
		// headers must be set before the first WriteHeader.
		shaping.StampServer(w.Header())
		if err := staticfiles.ServeFile(w, r, p.root, suffix); err != nil {
			shaping.WriteNotFound(w)
		}
	}
}

// match returns the first pattern whose uri is a prefix of path, or
// nil if none match.
func (rt *Router) match(path string) *compiledPattern {
	for i := range rt.patterns {
		if strings.HasPrefix(path, rt.patterns[i].uri) {
			return &rt.patterns[i]
		}
	}
	return nil
}
