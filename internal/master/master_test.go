package master

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rxh-go/rxh/internal/config"
)

func waitListening(t *testing.T, addrCh <-chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case addr := <-addrCh:
		return addr
	case <-time.After(timeout):
		t.Fatal("replica never reported ready")
		return ""
	}
}

func TestMaster_RunsOneReplicaPerListenAddress(t *testing.T) {
	root := t.TempDir()
	cfg := config.Config{Servers: []config.Server{
		{
			Name:   "dual",
			Listen: []string{"127.0.0.1:0", "127.0.0.1:0"},
			Patterns: []config.Pattern{
				{URI: "/", Action: config.Action{Kind: config.ActionServe, Root: root}},
			},
		},
	}}
	m := New(cfg, "")
	if len(m.Servers()) != 2 {
		t.Fatalf("got %d replicas, want 2", len(m.Servers()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	addrs := make([]string, 0, 2)
	for _, s := range m.Servers() {
		addrs = append(addrs, waitListening(t, s.Ready(), time.Second))
	}

	// DisableKeepAlives keeps this test's shutdown independent of
	// idle-connection draining, which internal/server tests on its own.
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	for _, addr := range addrs {
		resp, err := client.Get("http://" + addr + "/missing")
		if err != nil {
			t.Fatalf("GET %s: %v", addr, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status from %s: got %d", addr, resp.StatusCode)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMaster_NoListenAddressesErrors(t *testing.T) {
	m := New(config.Config{}, "")
	if err := m.Run(context.Background()); err == nil {
		t.Fatal("expected an error with zero configured replicas")
	}
}

func TestMaster_ReplicaFailurePropagatesShutdownToSiblings(t *testing.T) {
	root := t.TempDir()
	cfg := config.Config{Servers: []config.Server{
		{
			Listen: []string{"127.0.0.1:0"},
			Patterns: []config.Pattern{
				{URI: "/", Action: config.Action{Kind: config.ActionServe, Root: root}},
			},
		},
		{
			// An address that cannot be bound makes this replica's Run
			// fail immediately with a listen error.
			Listen: []string{"not-a-valid-host:0"},
			Patterns: []config.Pattern{
				{URI: "/", Action: config.Action{Kind: config.ActionServe, Root: root}},
			},
		},
	}}
	m := New(cfg, "")

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the bad listener's error to propagate")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after a sibling replica failed")
	}
}
