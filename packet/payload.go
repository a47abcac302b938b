package packet

import (
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// EmptyPayload is the encoding of a payload without packets.
const EmptyPayload = "0:"

// maxLengthDigits bounds the length token so a hostile peer cannot make the
// decoder accumulate an unbounded prefix or overflow the integer.
const maxLengthDigits = 10

// EncodePayload frames packets as <len>:<packet>... The length counts bytes.
func EncodePayload(ps []Packet) (string, error) {
	if len(ps) == 0 {
		return EmptyPayload, nil
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for _, p := range ps {
		enc, err := Encode(p)
		if err != nil {
			return "", err
		}
		buf.B = strconv.AppendInt(buf.B, int64(len(enc)), 10)
		buf.B = append(buf.B, ':')
		buf.B = append(buf.B, enc...)
	}
	return buf.String(), nil
}

// DecodePayload parses a framed payload. Any malformed frame invalidates the
// whole payload and the result is []Packet{ErrorPacket}.
func DecodePayload(s string) []Packet {
	if s == "" {
		return []Packet{ErrorPacket}
	}

	packets := []Packet{}
	start := 0 // start of the current length token
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			if s[i] < '0' || s[i] > '9' || i-start >= maxLengthDigits {
				return []Packet{ErrorPacket}
			}
			continue
		}

		token := s[start:i]
		if token == "" {
			return []Packet{ErrorPacket}
		}
		n, err := strconv.Atoi(token)
		if err != nil {
			return []Packet{ErrorPacket}
		}

		body := i + 1
		if n > len(s)-body {
			return []Packet{ErrorPacket}
		}

		if n > 0 {
			p := Decode(s[body : body+n])
			if IsError(p) {
				return []Packet{ErrorPacket}
			}
			packets = append(packets, p)
		}

		i = body + n - 1
		start = body + n
	}

	if start != len(s) {
		// trailing length fragment without a frame
		return []Packet{ErrorPacket}
	}
	return packets
}
