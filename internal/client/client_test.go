package client

import (
	"errors"
	"net"
	"testing"

	"github.com/jassi-singh/kvs/internal/engine"
	"github.com/jassi-singh/kvs/internal/server"
)

func startRealServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	eng, err := engine.Open(dir, 1024)
	if err != nil {
		t.Fatalf("engine.Open() error = %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	addr := listener.Addr().String()

	srv := server.New(eng, addr)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go srv.ServeConn(conn)
		}
	}()
	t.Cleanup(func() { listener.Close() })

	return addr
}

func TestClientSetGetRemove(t *testing.T) {
	addr := startRealServer(t)

	if err := Set(addr, "hello", "world"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	val, err := Get(addr, "hello")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != "world" {
		t.Fatalf("Get() = %q, want %q", val, "world")
	}

	if err := Remove(addr, "hello"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if err := Remove(addr, "hello"); err == nil {
		t.Fatalf("Remove() on missing key: want error, got nil")
	}
}

func TestClientGetMissingKey(t *testing.T) {
	addr := startRealServer(t)

	_, err := Get(addr, "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on missing key error = %v, want ErrNotFound", err)
	}
}

func TestClientSetThenOverwrite(t *testing.T) {
	addr := startRealServer(t)

	if err := Set(addr, "a", "1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := Set(addr, "a", "2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	val, err := Get(addr, "a")
	if err != nil || val != "2" {
		t.Fatalf("Get() = (%q, %v), want (2, nil)", val, err)
	}
}
