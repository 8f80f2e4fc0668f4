// Package server implements one listener replica (spec.md §4.7): a
// listener, a connection-count semaphore sized to max_connections, a
// shutdown notifier, a state latch, and the accept loop that ties them
// together.
//
// Grounded on the teacher's cmd/gateway/main.go for the overall
// listen/serve/signal-driven-shutdown shape, generalized from a single
// global http.Server into one http.Server per accepted connection so
// that each connection can be independently drained against its own
// notify.Subscription rather than relying on http.Server.Shutdown's
// coarser, server-wide idle-connection wait.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/rxh-go/rxh/internal/config"
	"github.com/rxh-go/rxh/internal/notify"
	"github.com/rxh-go/rxh/internal/rxh"
	"github.com/rxh-go/rxh/internal/rxherr"
)

// ListenBacklog is the listener backlog, hard-coded independent of
// max_connections (spec.md §9 Open Question (c)).
const ListenBacklog = 1024

// StateKind discriminates the values of the server's state latch
// (spec.md §3's "Server state").
type StateKind int

const (
	Starting StateKind = iota
	Listening
	MaxConnectionsReached
	ShuttingDownPending
	ShuttingDownDone
)

// State is one value of the single-writer/multi-reader latch described
// in spec.md §3. N is the connection cap for MaxConnectionsReached and
// the pending-connection count for ShuttingDownPending; it is unused
// otherwise.
type State struct {
	Kind StateKind
	N    int
}

func (s State) String() string {
	switch s.Kind {
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case MaxConnectionsReached:
		return fmt.Sprintf("max connections reached: %d", s.N)
	case ShuttingDownPending:
		return fmt.Sprintf("shutting down, %d pending connections", s.N)
	case ShuttingDownDone:
		return "shutdown complete"
	default:
		return "unknown"
	}
}

// latch is the state publication point: single writer (the accept loop
// and Run), many readers.
type latch struct {
	mu sync.RWMutex
	s  State
}

func (l *latch) publish(s State) {
	l.mu.Lock()
	l.s = s
	l.mu.Unlock()
}

func (l *latch) load() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.s
}

// Server owns one listener replica: one (config.Server, listen
// address) pair.
type Server struct {
	cfg     config.Server
	addr    string
	proxyID string

	sem      chan struct{}
	notifier *notify.Notifier
	latch    latch
	ready    chan string

	router *rxh.Router // set once, before the accept loop starts
}

// New builds a Server for one listener replica. It does not bind a
// socket; call Run to do that. proxyID, if non-empty, becomes the
// Forwarded header's "by" value for every request this replica
// forwards.
func New(cfg config.Server, addr, proxyID string) *Server {
	max := cfg.MaxConnections
	if max <= 0 {
		max = config.DefaultMaxConnections
	}
	s := &Server{
		cfg:      cfg,
		addr:     addr,
		proxyID:  proxyID,
		sem:      make(chan struct{}, max),
		notifier: notify.New(),
		ready:    make(chan string, 1),
	}
	s.latch.publish(State{Kind: Starting})
	return s
}

// State reports the server's latest published state.
func (s *Server) State() State { return s.latch.load() }

// Ready yields the bound local address exactly once, as soon as Run
// has successfully listened. Mainly useful in tests that pass
// "host:0" and need the OS-assigned port.
func (s *Server) Ready() <-chan string { return s.ready }

// Run binds the listener and runs the accept loop until ctx is done,
// then drains in-flight connections and returns (spec.md §4.7 "Run").
// A non-nil error means the listener failed for a reason other than
// the shutdown-triggered close.
func (s *Server) Run(ctx context.Context) error {
	// net.Listen does not expose a configurable backlog (it takes the
	// platform's SOMAXCONN); ListenBacklog documents the value spec.md
	// §9 Open Question (c) retains rather than wiring it.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return rxherr.Wrap(rxherr.IO, "server.Run", fmt.Errorf("listen %s: %w", s.addr, err))
	}
	boundAddr := ln.Addr().String()

	rt, err := rxh.New(s.cfg, boundAddr, s.proxyID)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("server: %s: %w", s.cfg.LogName(), err)
	}
	s.router = rt

	select {
	case s.ready <- boundAddr:
	default:
	}

	s.latch.publish(State{Kind: Listening})
	log.Printf("%s => Listening for requests", s.cfg.LogName())

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- s.acceptLoop(ln) }()

	var runErr error
	select {
	case runErr = <-acceptErr:
	case <-ctx.Done():
	}
	_ = ln.Close()

	log.Printf("%s => Received shutdown signal", s.cfg.LogName())
	n, sendErr := s.notifier.Send(notify.Shutdown)
	if sendErr == nil {
		s.latch.publish(State{Kind: ShuttingDownPending, N: n})
		log.Printf("%s => Can't shutdown yet, %d pending connections", s.cfg.LogName(), n)
	}
	s.notifier.CollectAcknowledgements()

	s.latch.publish(State{Kind: ShuttingDownDone})
	log.Printf("%s => Shutdown complete", s.cfg.LogName())
	return runErr
}

// acceptLoop implements spec.md §4.7's accept loop pseudocode exactly:
// acquire a semaphore permit (publishing MaxConnectionsReached and
// remembering to republish Listening if none were free), accept,
// subscribe to the notifier, and hand the connection to a detached
// task that releases its permit when done.
func (s *Server) acceptLoop(ln net.Listener) error {
	max := cap(s.sem)
	needRepublish := false
	for {
		select {
		case s.sem <- struct{}{}:
		default:
			s.latch.publish(State{Kind: MaxConnectionsReached, N: max})
			log.Printf("%s => Reached max connections: %d", s.cfg.LogName(), max)
			needRepublish = true
			s.sem <- struct{}{}
		}
		if needRepublish {
			s.latch.publish(State{Kind: Listening})
			log.Printf("%s => Accepting connections again", s.cfg.LogName())
			needRepublish = false
		}

		conn, err := ln.Accept()
		if err != nil {
			<-s.sem
			return err
		}

		sub := s.notifier.Subscribe()
		go s.handle(conn, sub)
	}
}

// handle runs the HTTP engine over one accepted connection and, once
// it ends, resolves the connection's notify.Subscription exactly once
// per spec.md §4.3: Ack if Shutdown was observed, Done otherwise.
//
// An upgraded connection's tunnel (internal/forwarder's spliceTunnel)
// is a detached task per spec.md §4.5 step 6 ("spawn a tunnel task"):
// it is not part of this connection's accounting. Serve returns as
// soon as the 101 response is hijacked, which releases this
// connection's semaphore permit and resolves its subscription at that
// point, not when the spliced bytes stop flowing.
func (s *Server) handle(conn net.Conn, sub *notify.Subscription) {
	defer func() { <-s.sem }()

	clientAddr := conn.RemoteAddr().String()
	ln := newOneConnListener(conn)
	hijacked := make(chan struct{})
	httpSrv := &http.Server{
		Handler: s.router.ForConnection(clientAddr),
		ConnState: func(_ net.Conn, state http.ConnState) {
			if state == http.StateHijacked {
				close(hijacked)
			}
			if state == http.StateClosed || state == http.StateHijacked {
				ln.Close()
			}
		},
	}
	// A hijacked connection now belongs to the tunnel; closing it here
	// would cut the tunnel off as soon as Serve returns.
	defer func() {
		select {
		case <-hijacked:
		default:
			_ = conn.Close()
		}
	}()

	// A keep-alive connection sitting idle between requests never calls
	// back into this package, so Poll alone would leave it blocking
	// Serve (and therefore CollectAcknowledgements) until the client
	// hangs up on its own. Watch Notified instead: as soon as Shutdown
	// arrives, disable keep-alives on this connection's http.Server,
	// which closes it immediately if it's idle right now, or lets its
	// in-flight request finish and then closes it rather than reading
	// another.
	shutdownSeen := make(chan struct{})
	go func() {
		select {
		case <-sub.Notified():
			httpSrv.SetKeepAlivesEnabled(false)
			close(shutdownSeen)
		case <-ln.Done():
		}
	}()

	if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("%s => connection from %s: %v", s.cfg.LogName(), clientAddr, err)
	}

	select {
	case <-shutdownSeen:
		sub.Ack()
	default:
		sub.Done()
	}
}

// oneConnListener is a net.Listener that yields a single, already
// accepted connection, then blocks its second Accept call until
// Close is called. It lets net/http's own request/response and
// keep-alive engine run over a connection this package accepted
// itself, with ConnState as the signal for when that connection is
// truly finished (Serve's accept loop does not wait for in-flight
// connections, only for the listener to report an error).
type oneConnListener struct {
	conn net.Conn

	mu       sync.Mutex
	accepted bool
	closed   bool
	closeCh  chan struct{}
}

func newOneConnListener(conn net.Conn) *oneConnListener {
	return &oneConnListener{conn: conn, closeCh: make(chan struct{})}
}

func (l *oneConnListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if !l.accepted {
		l.accepted = true
		conn := l.conn
		l.mu.Unlock()
		return conn, nil
	}
	l.mu.Unlock()
	<-l.closeCh
	return nil, io.EOF
}

func (l *oneConnListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.closeCh)
	}
	return nil
}

func (l *oneConnListener) Addr() net.Addr { return l.conn.LocalAddr() }

// Done reports when Close has been called, so a goroutine racing a
// shutdown notification against this connection's own natural end can
// stop waiting once the connection is gone either way.
func (l *oneConnListener) Done() <-chan struct{} { return l.closeCh }
