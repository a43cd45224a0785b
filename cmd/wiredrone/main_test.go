package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredrone/internal/auth"
	"github.com/vovakirdan/wiredrone/internal/config"
	"github.com/vovakirdan/wiredrone/internal/emulator"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, b *syncBuffer, want string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %q:\n%s", want, b.String())
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("WIREDRONE_JWT_SECRET", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{
		"token", "--config", path,
		"--client", "abc",
		"--data", `{"name":"alice"}`,
		"--allow", "chat=ps",
		"--allow", "observable-.*=s",
	})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	claims, err := auth.ValidateToken(&auth.JWTConfig{Secret: []byte("s3cret"), Issuer: "wiredrone"}, strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("minted token does not validate: %v", err)
	}
	if claims.Client != "abc" || claims.Channel != config.Default().Channel {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.CanPublish("chat") || claims.CanPublish("observable-x") || !claims.CanSubscribe("observable-x") {
		t.Fatalf("unexpected permissions: %+v", claims.Permissions)
	}
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"token", "--config", path})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestParsePermissions(t *testing.T) {
	perms, err := parsePermissions([]string{"a=p", "b=s", "c=ps"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if perms["a"] != (auth.Permission{Publish: true}) ||
		perms["b"] != (auth.Permission{Subscribe: true}) ||
		perms["c"] != (auth.Permission{Publish: true, Subscribe: true}) {
		t.Fatalf("unexpected permissions: %+v", perms)
	}

	for _, bad := range []string{"nopattern", "=p", "a=x"} {
		if _, err := parsePermissions([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if perms, err := parsePermissions(nil); err != nil || perms != nil {
		t.Fatalf("no specs should mean no permissions")
	}
}

func TestChatSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := emulator.NewHub(emulator.Config{}, nil, nil)
	go hub.Run(ctx)
	ts := httptest.NewServer(emulator.NewRouter(hub, nil, nil, nil))
	defer ts.Close()

	cfg := config.Default()
	cfg.URL = strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	cfg.Room = "observable-lobby"
	cfg.CallTimeout = 2 * time.Second

	nop := zerolog.Nop()
	out := &syncBuffer{}
	s := &chatSession{cfg: cfg, name: "alice", out: out, log: &nop}

	in, input := io.Pipe()
	defer input.Close()

	done := make(chan error, 1)
	go func() { done <- s.run(ctx, in) }()

	waitFor(t, out, "[observable-lobby] joined")
	waitFor(t, out, "[observable-lobby] 1 member(s) online")

	if _, err := io.WriteString(input, "hello\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, out, "[observable-lobby] alice: hello")

	if _, err := io.WriteString(input, "/members\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, out, "  alice\n")

	if _, err := io.WriteString(input, "/quit\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("chat session did not stop")
	}
}
