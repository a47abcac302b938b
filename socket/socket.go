package socket

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/logging"
	"github.com/vinayprograms/pollsock/metrics"
	"github.com/vinayprograms/pollsock/packet"
	"github.com/vinayprograms/pollsock/session"
	"github.com/vinayprograms/pollsock/transport"
)

// Config holds socket configuration.
type Config struct {
	// StartDelay postpones the first receive so listeners can subscribe.
	// Default: 10ms
	StartDelay time.Duration

	// MaxFlushRetries bounds automatic redelivery of a failed flush
	// (0 = only retry on the next Send or Flush).
	MaxFlushRetries int

	// RetryInitialInterval is the first automatic retry delay.
	RetryInitialInterval time.Duration

	// RetryMaxInterval caps the retry delay.
	RetryMaxInterval time.Duration

	// Logger receives socket logs (nil = discard).
	Logger *logging.Logger

	// Metrics records socket activity (nil = disabled).
	Metrics *metrics.Collector
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StartDelay:           10 * time.Millisecond,
		MaxFlushRetries:      5,
		RetryInitialInterval: 250 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
	}
}

// Socket is a socket-like client over a polling transport.
type Socket struct {
	rawURL    string
	base      *url.URL
	origin    string
	protocols []string
	id        string

	requester transport.Requester
	config    Config
	log       *logging.Logger
	metrics   *metrics.Collector
	ctx       context.Context

	tasks   chan func()
	stopped chan struct{}

	state    atomic.Int32
	buffered atomic.Int64
	sess     atomic.Pointer[session.Session]

	// Owned by the event loop.
	quit       bool
	epoch      uint64
	pollURL    string
	queue      sendQueue
	flushing   bool
	recvCancel context.CancelFunc
	pollTimer  *time.Timer
	retryTimer *time.Timer
	retry      backoff.BackOff
	stopWatch  func() bool

	onOpen    registry[struct{}]
	onMessage registry[MessageEvent]
	onClose   registry[CloseEvent]
	onError   registry[error]
	events    *dispatcher
}

// New creates a socket and starts connecting.
func New(rawURL string, protocols []string, requester transport.Requester, cfg Config) (*Socket, error) {
	return NewContext(context.Background(), rawURL, protocols, requester, cfg)
}

// NewContext is like New, but cancelling ctx closes the socket cleanly with
// status 1001 and aborts the in-flight receive. Sends already in flight are
// not aborted.
func NewContext(ctx context.Context, rawURL string, protocols []string, requester transport.Requester, cfg Config) (*Socket, error) {
	if requester == nil {
		return nil, errors.Syntax("a requester is required")
	}
	base, err := session.HTTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	if err := validateProtocols(protocols); err != nil {
		return nil, err
	}

	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = DefaultConfig().RetryInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = DefaultConfig().RetryMaxInterval
	}
	if cfg.MaxFlushRetries < 0 {
		cfg.MaxFlushRetries = 0
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	id := uuid.NewString()

	s := &Socket{
		rawURL:    rawURL,
		base:      base,
		origin:    base.Scheme + "://" + base.Host,
		protocols: append([]string(nil), protocols...),
		id:        id,
		requester: requester,
		config:    cfg,
		log:       log.WithComponent("socket").WithConnID(id),
		metrics:   cfg.Metrics,
		ctx:       ctx,
		tasks:     make(chan func()),
		stopped:   make(chan struct{}),
		retry:     newRetryPolicy(cfg),
		events:    newDispatcher(),
	}

	// Both callbacks only post, so they wait for the loop to start.
	s.stopWatch = context.AfterFunc(ctx, func() {
		s.post(func() { s.close(CloseGoingAway, "context canceled") })
	})
	epoch := s.epoch
	s.pollTimer = time.AfterFunc(cfg.StartDelay, func() {
		s.post(func() { s.poll(epoch) })
	})

	go s.run()
	return s, nil
}

func newRetryPolicy(cfg Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryInitialInterval
	b.MaxInterval = cfg.RetryMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(cfg.MaxFlushRetries))
}

// validateProtocols rejects empty, duplicate or non-token subprotocol names.
func validateProtocols(protocols []string) error {
	seen := make(map[string]bool, len(protocols))
	for _, p := range protocols {
		if p == "" || strings.ContainsAny(p, " \t\r\n,;\"()<>@:/[]?={}\\") {
			return errors.Newf(errors.ErrCodeSyntax, "invalid protocol %q", p)
		}
		if seen[p] {
			return errors.Newf(errors.ErrCodeSyntax, "duplicate protocol %q", p)
		}
		seen[p] = true
	}
	return nil
}

// --- event loop ---

// run executes posted callbacks until the socket is closed.
func (s *Socket) run() {
	defer close(s.stopped)
	for !s.quit {
		fn := <-s.tasks
		fn()
	}
}

// post hands fn to the event loop. It returns false once the loop has
// stopped, in which case fn never runs.
func (s *Socket) post(fn func()) bool {
	select {
	case s.tasks <- fn:
		return true
	case <-s.stopped:
		return false
	}
}

// call runs fn on the event loop and waits for it to finish.
func (s *Socket) call(fn func()) bool {
	done := make(chan struct{})
	if !s.post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	<-done
	return true
}

func (s *Socket) readyState() ReadyState {
	return ReadyState(s.state.Load())
}

// setState moves the state machine forward. Backward or skipping moves are
// refused and logged.
func (s *Socket) setState(next ReadyState) bool {
	cur := s.readyState()
	if !cur.canTransition(next) {
		s.log.Error("invalid_transition", map[string]interface{}{
			"from": cur.String(),
			"to":   next.String(),
		})
		return false
	}
	s.state.Store(int32(next))
	s.log.StateChange(cur.String(), next.String())
	return true
}

// --- public surface ---

// URL returns the URL the socket was created with.
func (s *Socket) URL() string {
	return s.rawURL
}

// ID returns the local connection id used in logs.
func (s *Socket) ID() string {
	return s.id
}

// ReadyState returns the current state.
func (s *Socket) ReadyState() ReadyState {
	return s.readyState()
}

// BufferedAmount returns the number of message bytes queued but not yet
// confirmed delivered.
func (s *Socket) BufferedAmount() int64 {
	return s.buffered.Load()
}

// BinaryType is always "blob"; binary payloads are not supported.
func (s *Socket) BinaryType() string {
	return "blob"
}

// Protocol returns the negotiated subprotocol. Polling sessions never
// negotiate one.
func (s *Socket) Protocol() string {
	return ""
}

// Extensions returns the negotiated extensions, always empty.
func (s *Socket) Extensions() string {
	return ""
}

// Protocols returns the subprotocols requested at construction.
func (s *Socket) Protocols() []string {
	return append([]string(nil), s.protocols...)
}

// Send queues data for delivery. It fails with an INVALID_STATE error while
// connecting and returns false without queueing once closing or closed.
func (s *Socket) Send(data string) (bool, error) {
	var (
		ok  bool
		err error
	)
	if !s.call(func() { ok, err = s.send(data) }) {
		return false, nil
	}
	return ok, err
}

// Flush retries delivery of the send queue now. It does nothing if a flush
// is already in flight or the socket is not open.
func (s *Socket) Flush() {
	s.call(s.flush)
}

// Close closes the socket without a status code.
func (s *Socket) Close() error {
	s.call(func() { s.close(0, "") })
	return nil
}

// CloseWithStatus closes the socket with an application status. The code
// must be 1000 or within 3000-4999 and the reason at most 123 bytes.
func (s *Socket) CloseWithStatus(code int, reason string) error {
	if !validCloseCode(code) {
		return errors.Newf(errors.ErrCodeInvalidAccess, "close code %d is not allowed", code)
	}
	if len(reason) > maxCloseReason {
		return errors.Syntax("close reason longer than 123 bytes")
	}
	s.call(func() { s.close(code, reason) })
	return nil
}

// --- state machine ---

func (s *Socket) send(data string) (bool, error) {
	switch s.readyState() {
	case Connecting:
		return false, errors.InvalidState("socket is still connecting")
	case Closing, Closed:
		return false, nil
	}
	s.enqueue(packet.Packet{Type: packet.Message, Data: data})
	s.flush()
	return true, nil
}

func (s *Socket) close(code int, reason string) {
	if s.readyState() >= Closing {
		return
	}
	s.setState(Closing)
	s.abortReceive()
	if code == 0 {
		code = CloseNoStatus
	}
	s.disconnect(true, code, reason, nil)
}

// disconnect finishes the connection: CLOSED, stale callbacks disarmed,
// one error notification when cause is set, then one close notification.
func (s *Socket) disconnect(clean bool, code int, reason string, cause error) {
	if s.readyState() == Closed {
		return
	}
	if s.readyState() < Closing {
		s.setState(Closing)
	}
	s.abortReceive()
	s.stopTimers()
	s.setState(Closed)

	s.epoch++
	s.quit = true
	if s.stopWatch != nil {
		s.stopWatch()
	}

	s.metrics.QueueAdd(-s.queue.len())
	s.metrics.RecordClose(clean)
	s.log.Disconnected(clean, code, reason)

	if cause != nil {
		s.emitError(cause)
	}
	s.emitClose(CloseEvent{WasClean: clean, Code: code, Reason: reason})
}

func (s *Socket) abortReceive() {
	if s.recvCancel != nil {
		s.recvCancel()
		s.recvCancel = nil
	}
}

func (s *Socket) stopTimers() {
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}
