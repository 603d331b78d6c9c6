// Package client implements the one-shot request/response client used by
// the kvs-client binary: one TCP connection per invocation.
package client

import (
	"errors"
	"fmt"
	"net"

	"github.com/jassi-singh/kvs/internal/protocol"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("client: key not found")

// RemoteError wraps an Error packet's message so callers can distinguish
// a server-reported failure from a transport failure.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// halfCloser is satisfied by *net.TCPConn; it lets the client signal the
// end of a multi-segment request without tearing down the connection
// before the response can be read.
type halfCloser interface {
	CloseWrite() error
}

// Get opens a connection to addr, requests key, and returns its value.
// ErrNotFound is returned if the key does not exist.
func Get(addr, key string) (string, error) {
	resp, err := roundTrip(addr, protocol.NewGet(key), false)
	if err != nil {
		return "", err
	}
	if resp.Type == protocol.TypeOK && len(resp.Body) == 0 {
		return "", ErrNotFound
	}
	return string(resp.Body), nil
}

// Set opens a connection to addr and stores key -> value.
func Set(addr, key, value string) error {
	_, err := roundTrip(addr, protocol.NewSet(key, value), true)
	return err
}

// Remove opens a connection to addr and deletes key. It returns the
// server's reported error (typically "Key not found") if the key did not
// exist.
func Remove(addr, key string) error {
	_, err := roundTrip(addr, protocol.NewRemove(key), false)
	return err
}

// roundTrip sends req over a fresh connection to addr and returns the
// decoded response. isDouble must be true for requests whose wire form
// carries two segments (Set), so the write side can be half-closed to
// delimit the request without closing the whole connection.
func roundTrip(addr string, req protocol.Packet, isDouble bool) (protocol.Packet, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return protocol.Packet{}, fmt.Errorf("client: dialing %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(protocol.Encode(req)); err != nil {
		return protocol.Packet{}, fmt.Errorf("client: sending request: %w", err)
	}

	if isDouble {
		if hc, ok := conn.(halfCloser); ok {
			if err := hc.CloseWrite(); err != nil {
				return protocol.Packet{}, fmt.Errorf("client: half-closing connection: %w", err)
			}
		}
	}

	resp, err := protocol.Decode(conn)
	if err != nil {
		return protocol.Packet{}, fmt.Errorf("client: reading response: %w", err)
	}

	if resp.Type == protocol.TypeError {
		return protocol.Packet{}, &RemoteError{Message: string(resp.Body)}
	}

	return resp, nil
}
