// Package protocol implements the wire framing shared by the server and
// client: a fixed 6-byte header followed by one or two body segments.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Type identifies what a packet carries.
type Type uint8

const (
	TypeOK     Type = 0
	TypeError  Type = 1
	TypeGet    Type = 2
	TypeSet    Type = 3
	TypeRemove Type = 4
)

// HeaderSize is the size in bytes of the fixed packet header:
// [0:1] type, [1:2] is_double, [2:6] body_length (big-endian).
const HeaderSize = 6

// MaxBodyLength bounds a single body segment to guard against a
// misbehaving peer declaring an unreasonable length.
const MaxBodyLength = 64 * 1024 * 1024

var ErrBodyTooLarge = errors.New("protocol: declared body length exceeds maximum")

// Packet is one framed message. Body holds the first (and for most types,
// only) segment. Extra holds the second segment, present only on a Set
// request, where it carries the value that follows the key.
type Packet struct {
	Type  Type
	Body  []byte
	Extra []byte
}

// NewOK builds a success packet whose body is the returned value, if any.
func NewOK(body []byte) Packet {
	return Packet{Type: TypeOK, Body: body}
}

// NewError builds an error packet carrying a UTF-8 message.
func NewError(message string) Packet {
	return Packet{Type: TypeError, Body: []byte(message)}
}

// NewGet builds a Get request for key.
func NewGet(key string) Packet {
	return Packet{Type: TypeGet, Body: []byte(key)}
}

// NewSet builds a Set request for key -> value. The wire form marks this
// as a double-segment packet: body carries the key, extra carries the
// value.
func NewSet(key, value string) Packet {
	return Packet{Type: TypeSet, Body: []byte(key), Extra: []byte(value)}
}

// NewRemove builds a Remove request for key.
func NewRemove(key string) Packet {
	return Packet{Type: TypeRemove, Body: []byte(key)}
}

// isDouble reports whether p carries a second segment on the wire. Only a
// Set request does.
func (p Packet) isDouble() bool {
	return p.Type == TypeSet
}

// Encode serializes p into its wire form: header, body, and (for Set)
// extra appended directly after the body with no additional framing — the
// transport (one packet per connection direction) delimits the overall
// message.
func Encode(p Packet) []byte {
	isDouble := byte(0)
	if p.isDouble() {
		isDouble = 1
	}

	buf := make([]byte, HeaderSize+len(p.Body)+len(p.Extra))
	buf[0] = byte(p.Type)
	buf[1] = isDouble
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(p.Body)))
	copy(buf[HeaderSize:HeaderSize+len(p.Body)], p.Body)
	copy(buf[HeaderSize+len(p.Body):], p.Extra)

	return buf
}

// Decode reads one packet from r. The first body segment is read exactly
// per the declared body_length; if is_double is set, everything remaining
// in r is read as the second segment — correct for a transport that
// carries exactly one packet per direction per connection.
func Decode(r io.Reader) (Packet, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Packet{}, fmt.Errorf("protocol: reading header: %w", err)
	}

	typ := Type(header[0])
	isDouble := header[1] == 1
	bodyLen := binary.BigEndian.Uint32(header[2:6])
	if bodyLen > MaxBodyLength {
		return Packet{}, ErrBodyTooLarge
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Packet{}, fmt.Errorf("protocol: reading body: %w", err)
	}

	p := Packet{Type: typ, Body: body}

	if isDouble {
		extra, err := io.ReadAll(r)
		if err != nil {
			return Packet{}, fmt.Errorf("protocol: reading extra segment: %w", err)
		}
		p.Extra = extra
	}

	return p, nil
}
