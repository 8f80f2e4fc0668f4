package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rxh-go/rxh/internal/rxherr"
)

// rawConfig mirrors the on-disk shape from spec.md §6: a list of
// servers, each either in "simple" form (uri/forward/serve at the
// server level) or "multi" form (a match list), never both.
type rawConfig struct {
	Server []rawServer `yaml:"server"`
}

type rawServer struct {
	Listen         rawStringList `yaml:"listen"`
	Name           string        `yaml:"name"`
	Connections    int           `yaml:"connections"`
	URI            string        `yaml:"uri"`
	Forward        *rawForward   `yaml:"forward"`
	Serve          *string       `yaml:"serve"`
	Match          []rawMatch    `yaml:"match"`
}

type rawMatch struct {
	URI     string      `yaml:"uri"`
	Forward *rawForward `yaml:"forward"`
	Serve   *string     `yaml:"serve"`
}

// rawForward accepts a bare address, a list of addresses, or the full
// { algorithm, backends } object, per spec.md §6.
type rawForward struct {
	simple   rawStringList
	full     *rawForwardFull
	isObject bool
}

type rawForwardFull struct {
	Algorithm string          `yaml:"algorithm"`
	Backends  []rawBackend    `yaml:"backends"`
}

// rawBackend accepts a bare address (weight defaults to 1) or an
// { address, weight } object.
type rawBackend struct {
	Address string
	Weight  int
}

func (b *rawBackend) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		b.Address = node.Value
		b.Weight = 1
		return nil
	}
	var obj struct {
		Address string `yaml:"address"`
		Weight  int    `yaml:"weight"`
	}
	if err := node.Decode(&obj); err != nil {
		return err
	}
	b.Address = obj.Address
	b.Weight = obj.Weight
	if b.Weight == 0 {
		b.Weight = 1
	}
	return nil
}

func (f *rawForward) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		f.simple = rawStringList{node.Value}
		return nil
	case yaml.SequenceNode:
		return node.Decode(&f.simple)
	case yaml.MappingNode:
		f.isObject = true
		full := &rawForwardFull{}
		if err := node.Decode(full); err != nil {
			return err
		}
		f.full = full
		return nil
	default:
		return fmt.Errorf("forward: unsupported YAML node kind")
	}
}

// rawStringList accepts either a single scalar string or a YAML
// sequence of strings, matching spec.md's `<addr> | [<addr>, ...]`.
type rawStringList []string

func (l *rawStringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = rawStringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return err
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("expected scalar or sequence")
	}
}

// Load reads and parses a YAML config file into a validated Config.
// Read failures are tagged rxherr.IO, parse/validation failures
// rxherr.Config, so callers (cmd/rxh) can tell a missing file from a
// malformed one.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, rxherr.Wrap(rxherr.IO, "config.Load", fmt.Errorf("read %s: %w", path, err))
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, rxherr.Wrap(rxherr.Config, "config.Load", err)
	}
	return cfg, nil
}

// Parse parses raw YAML bytes into a validated Config. Exposed
// separately from Load so tests and embedders can avoid the
// filesystem.
func Parse(b []byte) (*Config, error) {
	var rc rawConfig
	if err := yaml.Unmarshal(b, &rc); err != nil {
		return nil, fmt.Errorf("config: yaml: %w", err)
	}

	var servers []Server
	for i, rs := range rc.Server {
		s, err := rs.toServer()
		if err != nil {
			return nil, fmt.Errorf("server[%d]: %w", i, err)
		}
		servers = append(servers, s)
	}

	cfg := &Config{Servers: servers}
	cfg.normalizeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (rs rawServer) toServer() (Server, error) {
	if len(rs.Listen) == 0 {
		return Server{}, fmt.Errorf("listen is required")
	}

	hasSimple := rs.URI != "" || rs.Forward != nil || rs.Serve != nil
	hasMulti := len(rs.Match) > 0

	var patterns []Pattern
	switch {
	case hasSimple && hasMulti:
		return Server{}, fmt.Errorf("either use 'match' for multiple patterns or describe a single pattern")
	case hasSimple:
		action, err := toAction(rs.Forward, rs.Serve)
		if err != nil {
			return Server{}, err
		}
		patterns = []Pattern{{URI: rs.URI, Action: action}}
	case hasMulti:
		for i, m := range rs.Match {
			action, err := toAction(m.Forward, m.Serve)
			if err != nil {
				return Server{}, fmt.Errorf("match[%d]: %w", i, err)
			}
			patterns = append(patterns, Pattern{URI: m.URI, Action: action})
		}
	default:
		return Server{}, fmt.Errorf("missing 'match' or simple configuration")
	}

	return Server{
		Name:           strings.TrimSpace(rs.Name),
		Listen:         rs.Listen,
		Patterns:       patterns,
		MaxConnections: rs.Connections,
	}, nil
}

func toAction(fwd *rawForward, serve *string) (Action, error) {
	if fwd != nil && serve != nil {
		return Action{}, fmt.Errorf("use either 'forward' or 'serve', if you need multiple patterns use 'match'")
	}
	switch {
	case fwd != nil:
		f, err := fwd.toForward()
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActionForward, Forward: f}, nil
	case serve != nil:
		return Action{Kind: ActionServe, Root: *serve}, nil
	default:
		return Action{}, fmt.Errorf("use either 'forward' or 'serve', if you need multiple patterns use 'match'")
	}
}

func (f rawForward) toForward() (Forward, error) {
	if f.isObject {
		backends := make([]Backend, 0, len(f.full.Backends))
		for _, b := range f.full.Backends {
			backends = append(backends, Backend{Address: b.Address, Weight: b.Weight})
		}
		return Forward{Backends: backends, Algorithm: f.full.Algorithm}, nil
	}
	backends := make([]Backend, 0, len(f.simple))
	for _, addr := range f.simple {
		backends = append(backends, Backend{Address: addr, Weight: 1})
	}
	return Forward{Backends: backends}, nil
}
