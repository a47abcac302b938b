package socket

import (
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/packet"
	"github.com/vinayprograms/pollsock/transport"
)

func closeEvents(s *Socket) chan CloseEvent {
	ch := make(chan CloseEvent, 4)
	s.OnClose(func(ev CloseEvent) { ch <- ev })
	return ch
}

func errorEvents(s *Socket) chan error {
	ch := make(chan error, 4)
	s.OnError(func(err error) { ch <- err })
	return ch
}

func nextClose(t *testing.T, ch chan CloseEvent) CloseEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close")
		return CloseEvent{}
	}
}

func nextError(t *testing.T, ch chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
		return nil
	}
}

// --- Construction ---

func TestNew_Errors(t *testing.T) {
	f := newFakeRequester()
	tests := []struct {
		name      string
		url       string
		protocols []string
		requester transport.Requester
	}{
		{"nil requester", testURL, nil, nil},
		{"bad scheme", "ftp://example.com/sock", nil, f},
		{"no host", "ws:///sock", nil, f},
		{"fragment", "ws://example.com/sock#x", nil, f},
		{"empty protocol", testURL, []string{""}, f},
		{"duplicate protocol", testURL, []string{"chat", "chat"}, f},
		{"protocol with space", testURL, []string{"a b"}, f},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.url, tt.protocols, tt.requester, testConfig())
			if err == nil {
				s.Close()
				t.Fatal("New() expected error")
			}
			if !errors.Is(err, errors.ErrCodeSyntax) {
				t.Errorf("error code = %s, want SYNTAX", errors.Code(err))
			}
		})
	}
}

func TestAccessors(t *testing.T) {
	f := newFakeRequester()
	protocols := []string{"chat", "superchat"}
	s, err := New(testURL, protocols, f, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if s.URL() != testURL {
		t.Errorf("URL() = %q", s.URL())
	}
	if s.ReadyState() != Connecting {
		t.Errorf("ReadyState() = %v, want CONNECTING", s.ReadyState())
	}
	if s.BinaryType() != "blob" {
		t.Errorf("BinaryType() = %q", s.BinaryType())
	}
	if s.Protocol() != "" || s.Extensions() != "" {
		t.Errorf("Protocol() = %q, Extensions() = %q", s.Protocol(), s.Extensions())
	}
	if s.ID() == "" {
		t.Error("ID() is empty")
	}
	if s.Session() != nil {
		t.Error("Session() should be nil while connecting")
	}

	got := s.Protocols()
	got[0] = "changed"
	if s.Protocols()[0] != "chat" {
		t.Error("Protocols() should return a copy")
	}
	protocols[1] = "changed"
	if s.Protocols()[1] != "superchat" {
		t.Error("New() should copy protocols")
	}
}

// --- Handshake and poll loop ---

func TestHandshake_PollURL(t *testing.T) {
	f := newFakeRequester()
	s, err := New("ws://example.com/sock?token=t1", nil, f, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()
	ev := record(s)

	first := f.nextGet(t)
	if first.method != transport.MethodGet {
		t.Errorf("method = %s, want GET", first.method)
	}
	if first.url != "http://example.com/sock?token=t1" {
		t.Errorf("handshake url = %q", first.url)
	}
	first.respond(payload(t, openPacket("id=a b&interval=0")))
	ev.expect(t, "open")

	if s.ReadyState() != Open {
		t.Errorf("ReadyState() = %v, want OPEN", s.ReadyState())
	}
	if sess := s.Session(); sess == nil || sess.ID != "a b" {
		t.Errorf("Session() = %+v", sess)
	}

	second := f.nextGet(t)
	if second.url != "http://example.com/sock/a%20b?token=t1" {
		t.Errorf("poll url = %q", second.url)
	}
}

func TestHandshake_WSS(t *testing.T) {
	f := newFakeRequester()
	s, err := New("wss://example.com/sock", nil, f, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if got := f.nextGet(t).url; got != "https://example.com/sock" {
		t.Errorf("url = %q", got)
	}
}

func TestHandshake_MissingID(t *testing.T) {
	f := newFakeRequester()
	s := newTestSocket(t, f, testConfig())
	errs := errorEvents(s)
	closes := closeEvents(s)

	f.nextGet(t).respond(payload(t, openPacket("interval=5")))

	if err := nextError(t, errs); !errors.Is(err, errors.ErrCodeHandshake) {
		t.Errorf("error = %v, want HANDSHAKE", err)
	}
	ev := nextClose(t, closes)
	if ev.WasClean || ev.Code != CloseProtocolError {
		t.Errorf("close = %+v", ev)
	}
}

func TestPoll_StartDelay(t *testing.T) {
	f := newFakeRequester()
	cfg := testConfig()
	cfg.StartDelay = 50 * time.Millisecond

	start := time.Now()
	newTestSocket(t, f, cfg)
	f.nextGet(t)
	if elapsed := time.Since(start); elapsed < 45*time.Millisecond {
		t.Errorf("first receive after %v, want >= 50ms", elapsed)
	}
}

func TestPoll_Interval(t *testing.T) {
	f := newFakeRequester()
	s := newTestSocket(t, f, testConfig())

	f.nextGet(t).respond(payload(t, openPacket("id=abc&interval=50")))
	eventually(t, func() bool { return s.ReadyState() == Open })

	start := time.Now()
	get := f.nextGet(t)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("poll after %v, want about 50ms", elapsed)
	}

	start = time.Now()
	get.respond("")
	f.nextGet(t)
	if elapsed := time.Since(start); elapsed < 45*time.Millisecond {
		t.Errorf("poll after heartbeat after %v, want >= 50ms", elapsed)
	}
}

func TestPoll_SingleReceiveInFlight(t *testing.T) {
	f := newFakeRequester()
	openSocket(t, f, testConfig())

	f.nextGet(t)
	select {
	case r := <-f.gets:
		t.Fatalf("second concurrent receive to %s", r.url)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPoll_Heartbeat(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	ev := record(s)

	f.nextGet(t).respond("")
	f.nextGet(t).respond(packet.EmptyPayload)
	f.nextGet(t)

	select {
	case got := <-ev.ch:
		t.Fatalf("unexpected notification %q", got)
	default:
	}
	if s.ReadyState() != Open {
		t.Errorf("ReadyState() = %v", s.ReadyState())
	}
}

func TestMessages_OrderAndOrigin(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	got := make(chan MessageEvent, 4)
	s.OnMessage(func(ev MessageEvent) { got <- ev })

	f.nextGet(t).respond(payload(t, messagePacket("first"), messagePacket("second")))

	for _, want := range []string{"first", "second"} {
		select {
		case ev := <-got:
			if ev.Data != want {
				t.Errorf("Data = %q, want %q", ev.Data, want)
			}
			if ev.Origin != "http://example.com" {
				t.Errorf("Origin = %q", ev.Origin)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing message %q", want)
		}
	}
}

func TestMessages_WhileConnecting(t *testing.T) {
	f := newFakeRequester()
	s := newTestSocket(t, f, testConfig())
	ev := record(s)

	f.nextGet(t).respond(payload(t, messagePacket("early"), openPacket("id=abc")))
	ev.expect(t, "message:early", "open")
}

func TestRedundantOpenIgnored(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	ev := record(s)

	f.nextGet(t).respond(payload(t, openPacket("id=zzz"), messagePacket("after")))
	ev.expect(t, "message:after")

	if s.ReadyState() != Open {
		t.Errorf("ReadyState() = %v", s.ReadyState())
	}
	if s.Session().ID != "abc" {
		t.Errorf("session replaced by %q", s.Session().ID)
	}
	if got := f.nextGet(t).url; !strings.HasSuffix(got, "/sock/abc") {
		t.Errorf("poll url = %q", got)
	}
}

func TestPingReply(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	f.nextGet(t).respond(payload(t, packet.Packet{Type: packet.Ping, Data: "beat"}))

	post := f.nextPost(t)
	if post.body != "5:3beat" {
		t.Errorf("pong body = %q", post.body)
	}
	if s.BufferedAmount() != 0 {
		t.Errorf("BufferedAmount() = %d, pongs are not counted", s.BufferedAmount())
	}
	post.respond("")
}

func TestPingBeforeOpen(t *testing.T) {
	f := newFakeRequester()
	newTestSocket(t, f, testConfig())

	f.nextGet(t).respond(payload(t, packet.Packet{Type: packet.Ping}, openPacket("id=abc")))

	post := f.nextPost(t)
	if post.body != "1:3" {
		t.Errorf("pong body = %q", post.body)
	}
	if !strings.HasSuffix(post.url, "/sock/abc") {
		t.Errorf("pong url = %q", post.url)
	}
}

// --- Send and flush ---

func TestSend_Connecting(t *testing.T) {
	f := newFakeRequester()
	s := newTestSocket(t, f, testConfig())

	ok, err := s.Send("x")
	if ok || !errors.Is(err, errors.ErrCodeInvalidState) {
		t.Fatalf("Send() = %v, %v; want INVALID_STATE", ok, err)
	}
	if !errors.IsUsage(err) {
		t.Error("INVALID_STATE should be a usage error")
	}
	if s.BufferedAmount() != 0 {
		t.Errorf("BufferedAmount() = %d", s.BufferedAmount())
	}
}

func TestSend_Open(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	ok, err := s.Send("hello")
	if !ok || err != nil {
		t.Fatalf("Send() = %v, %v", ok, err)
	}
	if s.BufferedAmount() != 5 {
		t.Errorf("BufferedAmount() = %d, want 5", s.BufferedAmount())
	}

	post := f.nextPost(t)
	if post.method != transport.MethodPost {
		t.Errorf("method = %s", post.method)
	}
	if post.url != "http://example.com/sock/abc" {
		t.Errorf("url = %q", post.url)
	}
	if post.body != "6:4hello" {
		t.Errorf("body = %q", post.body)
	}

	post.respond("")
	eventually(t, func() bool { return s.BufferedAmount() == 0 })
}

func TestSend_BatchesWhileInFlight(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	s.Send("a")
	first := f.nextPost(t)
	s.Send("bb")
	s.Send("ccc")
	f.noPost(t, 30*time.Millisecond)

	first.respond("")
	second := f.nextPost(t)
	if second.body != "3:4bb4:4ccc" {
		t.Errorf("second body = %q", second.body)
	}
	if got := s.BufferedAmount(); got != 5 {
		t.Errorf("BufferedAmount() = %d, want 5", got)
	}
	second.respond("")
	eventually(t, func() bool { return s.BufferedAmount() == 0 })
}

func TestFlush_FailureKeepsQueue(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	s.Send("a")
	first := f.nextPost(t)
	s.Send("b")
	s.Send("c")
	first.fail(stderrors.New("connection reset"))

	f.noPost(t, 50*time.Millisecond)
	if s.BufferedAmount() != 3 {
		t.Errorf("BufferedAmount() = %d, want 3", s.BufferedAmount())
	}
	if s.ReadyState() != Open {
		t.Errorf("send failure should not close, state = %v", s.ReadyState())
	}

	s.Flush()
	retry := f.nextPost(t)
	if retry.body != "2:4a2:4b2:4c" {
		t.Errorf("retry body = %q", retry.body)
	}
	retry.respond("")
	eventually(t, func() bool { return s.BufferedAmount() == 0 })
	f.noPost(t, 30*time.Millisecond)
}

func TestFlush_FailedBatchRetriedWhole(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	s.Send("x")
	first := f.nextPost(t)
	s.Send("a")
	s.Send("b")
	s.Send("c")
	first.respond("")

	batch := f.nextPost(t)
	if batch.body != "2:4a2:4b2:4c" {
		t.Fatalf("batch body = %q, want all three queued messages", batch.body)
	}
	s.Send("d")
	batch.fail(stderrors.New("connection reset"))

	f.noPost(t, 50*time.Millisecond)
	if s.BufferedAmount() != 4 {
		t.Errorf("BufferedAmount() = %d, want 4", s.BufferedAmount())
	}

	s.Flush()
	retry := f.nextPost(t)
	if !strings.HasPrefix(retry.body, batch.body) {
		t.Errorf("retry body = %q, want prefix %q", retry.body, batch.body)
	}
	if retry.body != "2:4a2:4b2:4c2:4d" {
		t.Errorf("retry body = %q", retry.body)
	}
	retry.respond("")
	eventually(t, func() bool { return s.BufferedAmount() == 0 })
	f.noPost(t, 30*time.Millisecond)
}

func TestFlush_NextSendRetries(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	s.Send("a")
	f.nextPost(t).fail(stderrors.New("down"))
	f.noPost(t, 30*time.Millisecond)

	s.Send("b")
	post := f.nextPost(t)
	if post.body != "2:4a2:4b" {
		t.Errorf("body = %q", post.body)
	}
	post.respond("")
}

func TestFlush_BackoffRetry(t *testing.T) {
	f := newFakeRequester()
	cfg := testConfig()
	cfg.MaxFlushRetries = 2
	cfg.RetryInitialInterval = 5 * time.Millisecond
	cfg.RetryMaxInterval = 10 * time.Millisecond
	s := openSocket(t, f, cfg)

	s.Send("a")
	f.nextPost(t).fail(stderrors.New("down"))
	for i := 0; i < 2; i++ {
		post := f.nextPost(t)
		if post.body != "2:4a" {
			t.Fatalf("retry %d body = %q", i+1, post.body)
		}
		post.fail(stderrors.New("down"))
	}
	f.noPost(t, 100*time.Millisecond)

	s.Flush()
	f.nextPost(t).respond("")
	eventually(t, func() bool { return s.BufferedAmount() == 0 })
}

func TestFlush_NothingQueued(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	s.Flush()
	f.noPost(t, 30*time.Millisecond)
}

func TestSend_AfterClose(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	s.Close()
	ok, err := s.Send("late")
	if ok || err != nil {
		t.Errorf("Send() = %v, %v; want false, nil", ok, err)
	}
	s.Flush()
	f.noPost(t, 30*time.Millisecond)
}

func TestSend_InFlightSurvivesClose(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	s.Send("a")
	post := f.nextPost(t)
	s.Close()

	if post.ctx.Err() != nil {
		t.Error("Close should not abort an in-flight send")
	}
	post.respond("")
	waitDone(t, s)
	if s.ReadyState() != Closed {
		t.Errorf("ReadyState() = %v", s.ReadyState())
	}
	if s.BufferedAmount() != 1 {
		t.Errorf("a send response after close must be ignored, BufferedAmount() = %d", s.BufferedAmount())
	}
}

// --- Close ---

func TestClose(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	get := f.nextGet(t)
	closes := closeEvents(s)
	errs := errorEvents(s)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.ReadyState() != Closed {
		t.Errorf("ReadyState() = %v, want CLOSED", s.ReadyState())
	}
	ev := nextClose(t, closes)
	if !ev.WasClean || ev.Code != CloseNoStatus || ev.Reason != "" {
		t.Errorf("close = %+v", ev)
	}
	eventually(t, func() bool { return get.ctx.Err() != nil })

	s.Close()
	s.CloseWithStatus(CloseNormal, "again")
	waitDone(t, s)
	if len(closes) != 0 {
		t.Error("close notification fired more than once")
	}
	if len(errs) != 0 {
		t.Error("clean close should not report an error")
	}
}

func TestCloseWithStatus(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	closes := closeEvents(s)

	if err := s.CloseWithStatus(4000, "bye"); err != nil {
		t.Fatalf("CloseWithStatus() error = %v", err)
	}
	ev := nextClose(t, closes)
	if !ev.WasClean || ev.Code != 4000 || ev.Reason != "bye" {
		t.Errorf("close = %+v", ev)
	}
}

func TestCloseWithStatus_Invalid(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	for _, code := range []int{0, 999, 1001, 1005, 2999, 5000} {
		err := s.CloseWithStatus(code, "")
		if !errors.Is(err, errors.ErrCodeInvalidAccess) {
			t.Errorf("CloseWithStatus(%d) error = %v, want INVALID_ACCESS", code, err)
		}
	}
	err := s.CloseWithStatus(CloseNormal, strings.Repeat("x", maxCloseReason+1))
	if !errors.Is(err, errors.ErrCodeSyntax) {
		t.Errorf("long reason error = %v, want SYNTAX", err)
	}
	if s.ReadyState() != Open {
		t.Errorf("ReadyState() = %v, want OPEN", s.ReadyState())
	}
	if err := s.CloseWithStatus(CloseNormal, strings.Repeat("x", maxCloseReason)); err != nil {
		t.Errorf("123-byte reason error = %v", err)
	}
}

func TestClose_WhileConnecting(t *testing.T) {
	f := newFakeRequester()
	s := newTestSocket(t, f, testConfig())
	get := f.nextGet(t)
	closes := closeEvents(s)

	s.Close()
	ev := nextClose(t, closes)
	if !ev.WasClean || ev.Code != CloseNoStatus {
		t.Errorf("close = %+v", ev)
	}
	eventually(t, func() bool { return get.ctx.Err() != nil })
}

func TestClose_FromListener(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	closes := closeEvents(s)
	s.OnMessage(func(ev MessageEvent) {
		if ev.Data == "quit" {
			s.CloseWithStatus(CloseNormal, "asked")
		}
	})

	f.nextGet(t).respond(payload(t, messagePacket("quit")))
	ev := nextClose(t, closes)
	if ev.Code != CloseNormal || ev.Reason != "asked" {
		t.Errorf("close = %+v", ev)
	}
}

func TestContextCancel(t *testing.T) {
	f := newFakeRequester()
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewContext(ctx, testURL, nil, f, testConfig())
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	ev := record(s)
	f.nextGet(t).respond(payload(t, openPacket("id=abc")))
	ev.expect(t, "open")
	get := f.nextGet(t)

	cancel()
	ev.expect(t, "close")
	waitDone(t, s)

	if s.ReadyState() != Closed {
		t.Errorf("ReadyState() = %v", s.ReadyState())
	}
	if get.ctx.Err() == nil {
		t.Error("receive should be aborted")
	}
	if len(ev.ch) != 0 {
		t.Errorf("unexpected notification %q", <-ev.ch)
	}
}

func TestContextCancel_CloseEvent(t *testing.T) {
	f := newFakeRequester()
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewContext(ctx, testURL, nil, f, testConfig())
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	closes := closeEvents(s)
	f.nextGet(t)

	cancel()
	ev := nextClose(t, closes)
	if !ev.WasClean || ev.Code != CloseGoingAway {
		t.Errorf("close = %+v", ev)
	}
}

// --- Server-driven disconnects ---

func TestServerClose(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	ev := record(s)
	closes := closeEvents(s)

	f.nextGet(t).respond(payload(t, packet.Packet{Type: packet.Close}, messagePacket("late")))

	ev.expect(t, "close")
	got := nextClose(t, closes)
	if got.WasClean || got.Code != CloseAbnormal {
		t.Errorf("close = %+v", got)
	}
	waitDone(t, s)
	if len(ev.ch) != 0 {
		t.Errorf("dispatch should stop after close, got %q", <-ev.ch)
	}
}

func TestMalformedPayload(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	ev := record(s)
	errs := errorEvents(s)
	closes := closeEvents(s)

	f.nextGet(t).respond("5:4abc")

	ev.expect(t, "error", "close")
	if err := nextError(t, errs); !errors.Is(err, errors.ErrCodeParse) {
		t.Errorf("error = %v, want PARSE", err)
	}
	got := nextClose(t, closes)
	if got.WasClean || got.Code != CloseAbnormal {
		t.Errorf("close = %+v", got)
	}
}

func TestUnexpectedPacket(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	errs := errorEvents(s)
	closes := closeEvents(s)

	f.nextGet(t).respond(payload(t, packet.Packet{Type: packet.Upgrade}))

	if err := nextError(t, errs); !errors.Is(err, errors.ErrCodeProtocol) {
		t.Errorf("error = %v, want PROTOCOL", err)
	}
	got := nextClose(t, closes)
	if got.WasClean || got.Code != CloseProtocolError {
		t.Errorf("close = %+v", got)
	}
}

func TestTransportFailure(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	ev := record(s)
	errs := errorEvents(s)
	closes := closeEvents(s)

	f.nextGet(t).fail(stderrors.New("connection refused"))

	ev.expect(t, "error", "close")
	err := nextError(t, errs)
	if !errors.Is(err, errors.ErrCodeNetworkErr) || !errors.IsRetryable(err) {
		t.Errorf("error = %v, want retryable NETWORK_ERR", err)
	}
	got := nextClose(t, closes)
	if got.WasClean || got.Code != CloseAbnormal {
		t.Errorf("close = %+v", got)
	}
}

func TestTransportBadStatus(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	errs := errorEvents(s)

	f.nextGet(t).fail(&transport.StatusError{Method: "GET", URL: "x", Status: 502, Text: "Bad Gateway"})

	err := nextError(t, errs)
	if !errors.Is(err, errors.ErrCodeBadStatus) {
		t.Errorf("error = %v, want BAD_STATUS", err)
	}
	var se *transport.StatusError
	if !stderrors.As(err, &se) || se.Status != 502 {
		t.Errorf("status error not in chain: %v", err)
	}
}

// --- Notifications ---

func TestListenerPanicIsolated(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	s.OnMessage(func(MessageEvent) { panic("listener bug") })
	got := make(chan string, 1)
	s.OnMessage(func(ev MessageEvent) { got <- ev.Data })

	f.nextGet(t).respond(payload(t, messagePacket("hi")))
	select {
	case d := <-got:
		if d != "hi" {
			t.Errorf("Data = %q", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second listener not called")
	}
	if s.ReadyState() != Open {
		t.Errorf("ReadyState() = %v", s.ReadyState())
	}
}

func TestUnsubscribe(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	var removed atomic.Int32
	unsubscribe := s.OnMessage(func(MessageEvent) { removed.Add(1) })
	unsubscribe()
	unsubscribe()

	got := make(chan string, 1)
	s.OnMessage(func(ev MessageEvent) { got <- ev.Data })

	f.nextGet(t).respond(payload(t, messagePacket("hi")))
	<-got
	if removed.Load() != 0 {
		t.Error("unsubscribed listener was called")
	}
}

func TestSendFromListener(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())
	s.OnMessage(func(ev MessageEvent) { s.Send("echo:" + ev.Data) })

	f.nextGet(t).respond(payload(t, messagePacket("x")))
	if post := f.nextPost(t); post.body != "7:4echo:x" {
		t.Errorf("body = %q", post.body)
	}
}

func TestDone(t *testing.T) {
	f := newFakeRequester()
	s := openSocket(t, f, testConfig())

	var delivered atomic.Bool
	s.OnClose(func(CloseEvent) {
		time.Sleep(10 * time.Millisecond)
		delivered.Store(true)
	})

	select {
	case <-s.Done():
		t.Fatal("Done closed before the socket closed")
	default:
	}
	s.Close()
	waitDone(t, s)
	if !delivered.Load() {
		t.Error("Done closed before the close notification finished")
	}
}
