// Package config is the typed representation of the proxy's
// configuration: a sequence of Server entries, each with one or more
// listen addresses, an ordered pattern table, and a connection cap.
//
// The on-disk format is YAML (following the teacher's own loader); the
// core only cares about the parsed tree shape described in spec.md §6,
// not the file format itself.
package config

import (
	"fmt"
	"strings"
)

// AlgorithmWRR is the only scheduling algorithm implemented; the
// Algorithm field is an extension point for future policies.
const AlgorithmWRR = "WRR"

// DefaultMaxConnections is applied to any Server that does not set
// max_connections explicitly.
const DefaultMaxConnections = 1024

// Config is the full, immutable, parsed configuration: a sequence of
// Server entries. It is materialized once at startup and never mutated
// afterward.
type Config struct {
	Servers []Server
}

// Server is one logical proxy: one or more listen addresses (each
// becomes an independent listener replica), an ordered pattern table,
// and a per-listener connection cap.
type Server struct {
	Name           string
	Listen         []string
	Patterns       []Pattern
	MaxConnections int
}

// LogName is the identifier used in the status log lines of spec.md §6.
// It falls back to the first listen address when Name is empty.
func (s Server) LogName() string {
	if s.Name != "" {
		return s.Name
	}
	if len(s.Listen) > 0 {
		return s.Listen[0]
	}
	return "server"
}

// Pattern is a (uri, action) pair. Exactly one of Forward/Serve is set;
// ActionKind reports which.
type Pattern struct {
	URI    string
	Action Action
}

// ActionKind discriminates Pattern.Action's two variants.
type ActionKind int

const (
	// ActionForward routes matching requests to a backend chosen by
	// the pattern's scheduler.
	ActionForward ActionKind = iota
	// ActionServe serves a file from a configured document root.
	ActionServe
)

// Action is the sum type Forward(Forward) | Serve(root path). Kind
// selects which of Forward and Root is meaningful.
type Action struct {
	Kind    ActionKind
	Forward Forward
	Root    string // valid when Kind == ActionServe
}

// Forward is a load-balanced target: a non-empty list of backends and
// the scheduling algorithm used to pick among them.
//
// Forward carries no scheduler of its own — scheduler state (the ring
// cursor) is listener-local, not config-local, so it is materialized
// fresh for every listener replica by internal/rxh. Cloning a Forward
// (e.g. a config.Server shared across two listen addresses) is exactly
// copying this struct; the receiving package is responsible for
// building its own scheduler from Backends+Algorithm.
type Forward struct {
	Backends  []Backend
	Algorithm string
}

// Backend is an upstream origin: a socket address and a positive
// integer weight.
type Backend struct {
	Address string
	Weight  int
}

// Validate enforces the invariants from spec.md §3: every Server has at
// least one listen address and one pattern, every Forward has at least
// one backend, and listen addresses are unique across the whole config
// (spec.md §9 Open Question (b), decided: reject duplicates).
func (c Config) Validate() error {
	seen := make(map[string]string) // addr -> server name
	for i, s := range c.Servers {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("servers[%d]", i)
		}
		if len(s.Listen) == 0 {
			return fmt.Errorf("%s: listen: at least one address is required", label)
		}
		if len(s.Patterns) == 0 {
			return fmt.Errorf("%s: patterns: at least one is required", label)
		}
		for _, addr := range s.Listen {
			if prior, dup := seen[addr]; dup {
				return fmt.Errorf("%s: listen %q duplicates address already used by %q", label, addr, prior)
			}
			seen[addr] = label
		}
		for j, p := range s.Patterns {
			if err := p.validate(); err != nil {
				return fmt.Errorf("%s: patterns[%d]: %w", label, j, err)
			}
		}
		if s.MaxConnections < 0 {
			return fmt.Errorf("%s: max_connections must be >= 0", label)
		}
	}
	return nil
}

func (p Pattern) validate() error {
	uri := p.URI
	if uri == "" {
		uri = "/"
	}
	if !strings.HasPrefix(uri, "/") {
		return fmt.Errorf("uri must start with '/', got %q", p.URI)
	}
	switch p.Action.Kind {
	case ActionForward:
		if len(p.Action.Forward.Backends) == 0 {
			return fmt.Errorf("forward: at least one backend is required")
		}
		for i, b := range p.Action.Forward.Backends {
			if b.Address == "" {
				return fmt.Errorf("forward.backends[%d]: address is required", i)
			}
			if b.Weight < 1 {
				return fmt.Errorf("forward.backends[%d]: weight must be >= 1", i)
			}
		}
	case ActionServe:
		if p.Action.Root == "" {
			return fmt.Errorf("serve: root path is required")
		}
	default:
		return fmt.Errorf("pattern has no action")
	}
	return nil
}

// normalizeDefaults fills in the uri="/" and max_connections defaults
// documented in spec.md §3, run once by Load after parsing.
func (c *Config) normalizeDefaults() {
	for si := range c.Servers {
		s := &c.Servers[si]
		if s.MaxConnections == 0 {
			s.MaxConnections = DefaultMaxConnections
		}
		for pi := range s.Patterns {
			p := &s.Patterns[pi]
			if p.URI == "" {
				p.URI = "/"
			}
			if p.Action.Kind == ActionForward && p.Action.Forward.Algorithm == "" {
				p.Action.Forward.Algorithm = AlgorithmWRR
			}
		}
	}
}
