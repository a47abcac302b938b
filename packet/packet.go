package packet

import (
	"github.com/vinayprograms/pollsock/errors"
)

// Type identifies a packet kind.
type Type string

// Packet types.
const (
	Open    Type = "open"
	Close   Type = "close"
	Ping    Type = "ping"
	Pong    Type = "pong"
	Message Type = "message"
	Upgrade Type = "upgrade"

	// Error has no wire code. It only appears as the result of a failed decode.
	Error Type = "error"
)

// Packet is the minimal protocol unit. An empty Data means no data.
type Packet struct {
	Type Type
	Data string
}

// ErrorPacket is returned for anything that cannot be decoded.
var ErrorPacket = Packet{Type: Error, Data: "parser error"}

// codes and types form a fixed bijection between wire codes and types.
var (
	codes = map[Type]byte{
		Open:    '0',
		Close:   '1',
		Ping:    '2',
		Pong:    '3',
		Message: '4',
		Upgrade: '5',
	}
	types = func() map[byte]Type {
		m := make(map[byte]Type, len(codes))
		for t, c := range codes {
			m[c] = t
		}
		return m
	}()
)

// String returns the type name.
func (t Type) String() string {
	return string(t)
}

// Code returns the wire code for t.
func (t Type) Code() (byte, bool) {
	c, ok := codes[t]
	return c, ok
}

// ParseType resolves a type name. The error type is not accepted since it
// cannot be sent.
func ParseType(name string) (Type, bool) {
	t := Type(name)
	_, ok := codes[t]
	return t, ok
}

// IsError reports whether p is the decode failure sentinel.
func IsError(p Packet) bool {
	return p == ErrorPacket
}

// Encode renders a packet as <code><data>.
func Encode(p Packet) (string, error) {
	c, ok := codes[p.Type]
	if !ok {
		return "", errors.Newf(errors.ErrCodeParse, "packet type %q has no wire code", p.Type)
	}
	return string(c) + p.Data, nil
}

// Decode parses a single encoded packet. Unknown codes and empty input yield
// ErrorPacket.
func Decode(s string) Packet {
	if s == "" {
		return ErrorPacket
	}
	t, ok := types[s[0]]
	if !ok {
		return ErrorPacket
	}
	return Packet{Type: t, Data: s[1:]}
}
