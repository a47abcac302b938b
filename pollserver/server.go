package pollserver

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/logging"
	"github.com/vinayprograms/pollsock/packet"
	"github.com/vinayprograms/pollsock/session"
)

// Config holds server configuration.
type Config struct {
	// Path is where the endpoints are mounted.
	// Default: /sock
	Path string

	// PollTimeout is how long a receive is held open without packets
	// before it is answered with an empty body.
	// Default: 25s
	PollTimeout time.Duration

	// Interval is the poll interval advertised in the handshake.
	Interval time.Duration

	// IdleTimeout drops sessions without requests for this long.
	// Default: 60s
	IdleTimeout time.Duration

	// CleanupInterval is how often idle sessions are looked for.
	// Default: 10s
	CleanupInterval time.Duration

	// MaxBodyBytes limits uploaded payloads. Larger uploads get 413.
	// Default: 1MB
	MaxBodyBytes int64

	// Logger receives server logs (nil = discard).
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:            "/sock",
		PollTimeout:     25 * time.Second,
		IdleTimeout:     60 * time.Second,
		CleanupInterval: 10 * time.Second,
		MaxBodyBytes:    1024 * 1024, // 1MB
	}
}

// Server serves the polling protocol.
type Server struct {
	config   Config
	sessions cmap.ConcurrentMap[string, *Session]
	router   chi.Router
	log      *logging.Logger

	mu        sync.RWMutex
	onSession func(*Session)
	onMessage func(*Session, string)
	onClose   func(*Session)

	done      chan struct{}
	closeOnce sync.Once
	reaperWG  sync.WaitGroup
}

// New creates a server and starts its idle session reaper.
func New(cfg Config) *Server {
	def := DefaultConfig()
	cfg.Path = strings.TrimRight(cfg.Path, "/")
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	s := &Server{
		config:   cfg,
		sessions: cmap.New[*Session](),
		log:      log.WithComponent("pollserver"),
		done:     make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route(cfg.Path, func(r chi.Router) {
		r.Get("/", s.handleHandshake)
		r.Get("/{sid}", s.handlePoll)
		r.Post("/{sid}", s.handlePost)
	})
	s.router = r

	s.reaperWG.Add(1)
	go s.reapLoop()

	return s
}

// Handler returns the HTTP handler serving the endpoints.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Path returns the mount path.
func (s *Server) Path() string {
	return s.config.Path
}

// OnSession sets the callback run for every new session, before the
// handshake is answered.
func (s *Server) OnSession(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSession = fn
}

// OnMessage sets the callback run for every uploaded message.
func (s *Server) OnMessage(fn func(*Session, string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// OnClose sets the callback run when a session is dropped.
func (s *Server) OnClose(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// Session looks up a live session.
func (s *Server) Session(id string) (*Session, bool) {
	return s.sessions.Get(id)
}

// Count returns the number of live sessions.
func (s *Server) Count() int {
	return s.sessions.Count()
}

// Close closes every session and stops the reaper. Receives in progress
// deliver the close packet before returning.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		for item := range s.sessions.IterBuffered() {
			item.Val.Close()
		}
	})
	s.reaperWG.Wait()
	return nil
}

func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.done:
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	default:
	}

	sess := newSession(uuid.NewString())
	s.sessions.Set(sess.id, sess)

	s.mu.RLock()
	onSession := s.onSession
	s.mu.RUnlock()
	if onSession != nil {
		onSession(sess)
	}

	data := url.Values{
		session.KeyID:       {sess.id},
		session.KeyInterval: {strconv.FormatInt(s.config.Interval.Milliseconds(), 10)},
	}.Encode()
	body, _ := packet.EncodePayload([]packet.Packet{{Type: packet.Open, Data: data}})

	s.log.Info("session_open", map[string]interface{}{"sid": sess.id})
	writeText(w, http.StatusOK, body)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "sid"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if !sess.beginPoll() {
		http.Error(w, "receive already in progress", http.StatusBadRequest)
		return
	}
	defer sess.endPoll()

	timer := time.NewTimer(s.config.PollTimeout)
	defer timer.Stop()

	for {
		if ps, final := sess.drain(); len(ps) > 0 {
			body, err := packet.EncodePayload(ps)
			if err != nil {
				s.writeError(w, errors.WrapWithCode(err, errors.ErrCodeInternal, "encode payload"))
				return
			}
			writeText(w, http.StatusOK, body)
			if final {
				s.drop(sess, "closed")
			}
			return
		}

		select {
		case <-sess.wake:
		case <-timer.C:
			writeText(w, http.StatusOK, "")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "sid"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	sess.touch()

	limit := s.config.MaxBodyBytes
	raw, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if int64(len(raw)) > limit {
		s.writeError(w, errors.TooLarge(limit, errors.WithRequest(r.Method, r.URL.Path)))
		return
	}

	ps := packet.DecodePayload(string(raw))
	if len(ps) == 1 && packet.IsError(ps[0]) {
		s.writeError(w, errors.Parse("malformed payload"))
		return
	}

	s.mu.RLock()
	onMessage := s.onMessage
	s.mu.RUnlock()

	for _, p := range ps {
		switch p.Type {
		case packet.Message:
			if onMessage != nil {
				onMessage(sess, p.Data)
			}
		case packet.Pong:
			// touch above is all a pong needs
		case packet.Close:
			s.drop(sess, "client close")
		default:
			s.log.Warn("packet_dropped", map[string]interface{}{
				"sid":  sess.id,
				"type": p.Type.String(),
			})
		}
	}
	writeText(w, http.StatusOK, "ok")
}

// drop removes a session from the table once.
func (s *Server) drop(sess *Session, why string) {
	if !s.sessions.RemoveCb(sess.id, func(_ string, v *Session, exists bool) bool {
		return exists && v == sess
	}) {
		return
	}

	s.log.Info("session_closed", map[string]interface{}{
		"sid":    sess.id,
		"reason": why,
	})

	s.mu.RLock()
	onClose := s.onClose
	s.mu.RUnlock()
	if onClose != nil {
		onClose(sess)
	}
}

func (s *Server) reapLoop() {
	defer s.reaperWG.Done()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reapIdle()
		case <-s.done:
			return
		}
	}
}

// reapIdle drops sessions that have seen no request for IdleTimeout.
func (s *Server) reapIdle() {
	cutoff := time.Now().Add(-s.config.IdleTimeout)
	var expired []*Session
	for item := range s.sessions.IterBuffered() {
		if item.Val.idleSince(cutoff) {
			expired = append(expired, item.Val)
		}
	}
	for _, sess := range expired {
		sess.Close()
		s.drop(sess, "idle")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrCodeTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.IsCategory(err, errors.CategoryFraming):
		status = http.StatusBadRequest
	}
	s.log.Warn("request_failed", map[string]interface{}{
		"code":  string(errors.Code(err)),
		"error": err.Error(),
	})
	http.Error(w, err.Error(), status)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
