// Package session turns the server handshake into a session descriptor and
// derives the URLs a socket polls.
package session

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vinayprograms/pollsock/errors"
)

// Handshake keys.
const (
	KeyID       = "id"
	KeyInterval = "interval"
)

// Session is the server-issued descriptor from the open packet.
// It is immutable once parsed.
type Session struct {
	ID           string
	PollInterval time.Duration

	params url.Values // every decoded pair, id and interval included
}

// Param returns a handshake value by key.
func (s *Session) Param(key string) string {
	return s.params.Get(key)
}

// Parse decodes open packet data of the form id=<sid>&interval=<ms>.
// Keys without '=' are recorded with the value "true". The interval is read
// from its leading digits and defaults to 0.
func Parse(data string) (*Session, error) {
	params, err := decodePairs(data)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeHandshake, "decode handshake")
	}

	id := params.Get(KeyID)
	switch id {
	case "":
		return nil, errors.New(errors.ErrCodeHandshake, "handshake has no session id")
	case ".", "..":
		// dot segments would resolve away from the session path
		return nil, errors.Newf(errors.ErrCodeHandshake, "session id %q is not a path segment", id)
	}

	return &Session{
		ID:           id,
		PollInterval: time.Duration(leadingInt(params.Get(KeyInterval))) * time.Millisecond,
		params:       params,
	}, nil
}

// decodePairs splits on '&' and percent-decodes each key and value.
// '+' is kept literally. Later duplicates win.
func decodePairs(data string) (url.Values, error) {
	out := url.Values{}
	if data == "" {
		return out, nil
	}
	for _, part := range strings.Split(data, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, hasValue := strings.Cut(part, "=")
		key, err := url.PathUnescape(rawKey)
		if err != nil {
			return nil, err
		}
		if !hasValue {
			out.Set(key, "true")
			continue
		}
		value, err := url.PathUnescape(rawValue)
		if err != nil {
			return nil, err
		}
		out.Set(key, value)
	}
	return out, nil
}

// leadingInt parses the leading decimal digits of s, ignoring surrounding
// whitespace. Anything unparseable or negative yields 0.
func leadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	// keep the duration multiplication in range
	if n > int64(time.Duration(1<<62)/time.Millisecond) {
		return 0
	}
	return n
}

// HTTPURL maps a socket URL onto the URL used for polling requests:
// ws becomes http, wss becomes https, and http(s) are kept as they are.
func HTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeSyntax, "parse socket url")
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
		u.Scheme = strings.ToLower(u.Scheme)
	default:
		return nil, errors.Newf(errors.ErrCodeSyntax, "unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.Syntax("socket url has no host")
	}
	if u.Fragment != "" {
		return nil, errors.Syntax("socket url must not contain a fragment")
	}
	return u, nil
}

// PollURL appends the escaped session id to base as a path segment.
// The base query string is kept.
func PollURL(base *url.URL, s *Session) string {
	return base.JoinPath(url.PathEscape(s.ID)).String()
}
