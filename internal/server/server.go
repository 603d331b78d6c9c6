// Package server implements the TCP front end that exposes an engine over
// the wire protocol: one request, one response, per connection.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/jassi-singh/kvs/internal/engine"
	"github.com/jassi-singh/kvs/internal/protocol"
)

// engineMarkerName is the file recording which engine first initialized a
// store directory.
const engineMarkerName = "engine"

// ErrEngineMismatch is returned when the configured engine name does not
// match the name already recorded for a store directory.
var ErrEngineMismatch = errors.New("server: engine name does not match store's recorded engine")

// Server owns one engine and serves it over a TCP listener. Connections
// are accepted and serviced concurrently, but every dispatch into the
// engine is serialized by mu, matching the single-threaded engine
// contract while keeping the accept loop responsive.
type Server struct {
	mu     sync.Mutex
	engine engine.Engine
	addr   string
}

// New wires up a Server over eng, to be bound at addr.
func New(eng engine.Engine, addr string) *Server {
	return &Server{engine: eng, addr: addr}
}

// EnsureEngineMarker reads (or writes) the engine marker file in dir. If
// the marker already exists and names a different engine than name, it
// returns ErrEngineMismatch — the caller should fail fast rather than
// open a store with the wrong codec.
func EnsureEngineMarker(dir, name string) error {
	path := filepath.Join(dir, engineMarkerName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			return fmt.Errorf("server: writing engine marker: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("server: reading engine marker: %w", err)
	}

	recorded := string(data)
	if recorded != name {
		return fmt.Errorf("%w: store recorded %q, configured %q", ErrEngineMismatch, recorded, name)
	}
	return nil
}

// Serve binds s.addr and accepts connections until the listener is closed
// or an unrecoverable accept error occurs.
func (s *Server) Serve() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: binding %s: %w", s.addr, err)
	}
	defer listener.Close()

	slog.Info("server: listening", "addr", s.addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.ServeConn(conn)
	}
}

// ServeConn services exactly one request/response exchange on conn, then
// closes it. Exported so tests and alternative listeners can drive a
// single connection directly.
func (s *Server) ServeConn(conn net.Conn) {
	defer conn.Close()

	connID := uuid.New().String()
	log := slog.With("conn", connID, "remote", conn.RemoteAddr())

	req, err := protocol.Decode(conn)
	if err != nil {
		log.Error("server: decoding request", "error", err)
		return
	}

	resp := s.dispatch(req, log)

	if _, err := conn.Write(protocol.Encode(resp)); err != nil {
		log.Error("server: writing response", "error", err)
	}
}

// dispatch executes the single engine operation a request packet encodes.
// Engine access is serialized: only one request is in flight against the
// engine at a time, regardless of how many connections are open.
func (s *Server) dispatch(req protocol.Packet, log *slog.Logger) protocol.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Type {
	case protocol.TypeGet:
		key := string(req.Body)
		val, found, err := s.engine.Get(key)
		if err != nil {
			log.Error("server: get failed", "key", key, "error", err)
			return protocol.NewError(err.Error())
		}
		if !found {
			return protocol.NewOK(nil)
		}
		log.Info("server: get", "key", key)
		return protocol.NewOK([]byte(val))

	case protocol.TypeSet:
		key := string(req.Body)
		val := string(req.Extra)
		if err := s.engine.Set(key, val); err != nil {
			log.Error("server: set failed", "key", key, "error", err)
			return protocol.NewError(err.Error())
		}
		log.Info("server: set", "key", key)
		return protocol.NewOK(nil)

	case protocol.TypeRemove:
		key := string(req.Body)
		if err := s.engine.Remove(key); err != nil {
			log.Info("server: remove failed", "key", key, "error", err)
			return protocol.NewError(err.Error())
		}
		log.Info("server: remove", "key", key)
		return protocol.NewOK(nil)

	default:
		log.Error("server: unrecognized request type", "type", req.Type)
		return protocol.NewError(fmt.Sprintf("unrecognized request type %d", req.Type))
	}
}
