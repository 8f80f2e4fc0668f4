// Package master implements the top-level supervisor (spec.md §4.8):
// one internal/server.Server per (server config, listen replica) pair,
// a single broadcast shutdown trigger propagated to all of them, and
// first-error collection.
//
// Grounded on the teacher's cmd/gateway/main.go signal-driven shutdown
// (context cancellation as the termination future), generalized from
// one listener to many and from "log and exit" to "collect the first
// error and propagate shutdown to every other replica".
package master

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/rxh-go/rxh/internal/config"
	"github.com/rxh-go/rxh/internal/server"
)

// Master owns one server.Server per listener replica.
type Master struct {
	proxyID string
	servers []*server.Server
}

// New instantiates one server.Server per (Server, listen address) pair
// in cfg, per spec.md §4.8 "init". proxyID, if non-empty, is forwarded
// to every replica as the Forwarded header's "by" value.
func New(cfg config.Config, proxyID string) *Master {
	m := &Master{proxyID: proxyID}
	for _, srv := range cfg.Servers {
		for _, addr := range srv.Listen {
			m.servers = append(m.servers, server.New(srv, addr, proxyID))
		}
	}
	return m
}

// Servers exposes the instantiated replicas, mainly for tests that
// need to observe individual listener state or bound addresses.
func (m *Master) Servers() []*server.Server { return m.servers }

// Run spawns every replica's Run, installs ctx as the shared
// termination future (spec.md §4.8's "shutdown_on"), and propagates a
// single shutdown to every other replica as soon as any one of them
// exits with an error or ctx is done. It joins all replicas and
// returns the first error observed, or nil.
func (m *Master) Run(ctx context.Context) error {
	if len(m.servers) == 0 {
		return fmt.Errorf("master: no listen addresses configured")
	}

	runCtx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	errs := make(chan error, len(m.servers))
	var wg sync.WaitGroup
	for _, s := range m.servers {
		wg.Add(1)
		go func(s *server.Server) {
			defer wg.Done()
			errs <- s.Run(runCtx)
		}(s)
	}

	var firstErr error
	for range m.servers {
		if err := <-errs; err != nil {
			if firstErr == nil {
				firstErr = err
				log.Printf("master: replica failed: %v", err)
				shutdown()
			} else {
				log.Printf("master: additional replica error (ignored): %v", err)
			}
		}
	}
	wg.Wait()
	return firstErr
}
