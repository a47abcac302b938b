package socket

import (
	"context"
	"testing"
	"time"

	"github.com/vinayprograms/pollsock/packet"
	"github.com/vinayprograms/pollsock/transport"
)

const testURL = "ws://example.com/sock"

// pendingRequest is a request the test answers by hand.
type pendingRequest struct {
	ctx    context.Context
	method string
	url    string
	body   string
	reply  chan reply
}

type reply struct {
	body string
	err  error
}

func (r *pendingRequest) respond(body string) {
	r.reply <- reply{body: body}
}

func (r *pendingRequest) fail(err error) {
	r.reply <- reply{err: err}
}

// fakeRequester hands every request to the test through a channel per method.
type fakeRequester struct {
	gets  chan *pendingRequest
	posts chan *pendingRequest
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{
		gets:  make(chan *pendingRequest, 16),
		posts: make(chan *pendingRequest, 16),
	}
}

func (f *fakeRequester) Request(ctx context.Context, method, url, body string) (string, error) {
	req := &pendingRequest{ctx: ctx, method: method, url: url, body: body, reply: make(chan reply, 1)}
	if method == transport.MethodGet {
		f.gets <- req
	} else {
		f.posts <- req
	}
	select {
	case r := <-req.reply:
		return r.body, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeRequester) nextGet(t *testing.T) *pendingRequest {
	t.Helper()
	select {
	case r := <-f.gets:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a receive request")
		return nil
	}
}

func (f *fakeRequester) nextPost(t *testing.T) *pendingRequest {
	t.Helper()
	select {
	case r := <-f.posts:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a send request")
		return nil
	}
}

func (f *fakeRequester) noPost(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case r := <-f.posts:
		t.Fatalf("unexpected send request with body %q", r.body)
	case <-time.After(wait):
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartDelay = 0
	cfg.MaxFlushRetries = 0
	return cfg
}

// payload encodes packets for a scripted server reply.
func payload(t *testing.T, ps ...packet.Packet) string {
	t.Helper()
	out, err := packet.EncodePayload(ps)
	if err != nil {
		t.Fatalf("EncodePayload() error = %v", err)
	}
	return out
}

func openPacket(data string) packet.Packet {
	return packet.Packet{Type: packet.Open, Data: data}
}

func messagePacket(data string) packet.Packet {
	return packet.Packet{Type: packet.Message, Data: data}
}

// newTestSocket creates a socket that has not yet received its handshake.
func newTestSocket(t *testing.T, f *fakeRequester, cfg Config) *Socket {
	t.Helper()
	s, err := New(testURL, nil, f, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// openSocket creates a socket and completes the handshake with session "abc".
func openSocket(t *testing.T, f *fakeRequester, cfg Config) *Socket {
	t.Helper()
	s := newTestSocket(t, f, cfg)
	f.nextGet(t).respond(payload(t, openPacket("id=abc&interval=0")))
	eventually(t, func() bool { return s.ReadyState() == Open })
	return s
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func waitDone(t *testing.T, s *Socket) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("socket did not finish")
	}
}

// recorder collects notifications as strings, in delivery order.
type recorder struct {
	ch chan string
}

func record(s *Socket) *recorder {
	r := &recorder{ch: make(chan string, 64)}
	s.OnOpen(func() { r.ch <- "open" })
	s.OnMessage(func(ev MessageEvent) { r.ch <- "message:" + ev.Data })
	s.OnError(func(err error) { r.ch <- "error" })
	s.OnClose(func(ev CloseEvent) { r.ch <- "close" })
	return r
}

func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a notification")
		return ""
	}
}

func (r *recorder) expect(t *testing.T, want ...string) {
	t.Helper()
	for _, w := range want {
		if got := r.next(t); got != w {
			t.Fatalf("notification = %q, want %q", got, w)
		}
	}
}
