package socket

import (
	"context"
	"time"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/packet"
	"github.com/vinayprograms/pollsock/session"
	"github.com/vinayprograms/pollsock/transport"
)

// poll issues one receive request unless one is already in flight.
func (s *Socket) poll(epoch uint64) {
	if epoch != s.epoch || s.readyState() > Open || s.recvCancel != nil {
		return
	}
	s.pollTimer = nil

	target := s.pollURL
	if target == "" {
		target = s.base.String()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.recvCancel = cancel

	go func() {
		body, err := s.requester.Request(ctx, transport.MethodGet, target, "")
		s.post(func() { s.onPoll(epoch, body, err) })
	}()
}

func (s *Socket) onPoll(epoch uint64, body string, err error) {
	if epoch != s.epoch {
		return
	}
	s.abortReceive()

	if err != nil {
		s.metrics.RecordPoll(false)
		if errors.IsAborted(err) {
			s.disconnect(true, CloseGoingAway, "context canceled", nil)
			return
		}
		s.disconnect(false, CloseAbnormal, "", errors.Wrap(err, "receive failed"))
		return
	}
	s.metrics.RecordPoll(true)

	if body != "" {
		s.dispatch(body)
	}
	if epoch == s.epoch && s.readyState() <= Open {
		s.schedulePoll()
	}
}

// schedulePoll arms the next receive after the session poll interval.
func (s *Socket) schedulePoll() {
	var interval time.Duration
	if sess := s.sess.Load(); sess != nil {
		interval = sess.PollInterval
	}
	epoch := s.epoch
	s.pollTimer = time.AfterFunc(interval, func() {
		s.post(func() { s.poll(epoch) })
	})
}

// dispatch handles the packets of one payload in order, stopping as soon as
// the socket is no longer connecting or open.
func (s *Socket) dispatch(body string) {
	for _, p := range packet.DecodePayload(body) {
		if s.readyState() > Open {
			return
		}
		s.handlePacket(p)
	}
}

func (s *Socket) handlePacket(p packet.Packet) {
	s.metrics.RecordPacketIn(p.Type.String())

	switch p.Type {
	case packet.Message:
		s.emitMessage(MessageEvent{Data: p.Data, Origin: s.origin})
	case packet.Ping:
		s.enqueue(packet.Packet{Type: packet.Pong, Data: p.Data})
		s.flush()
	case packet.Open:
		s.handleOpen(p)
	case packet.Close:
		s.disconnect(false, CloseAbnormal, "", nil)
	case packet.Error:
		s.metrics.RecordParseError()
		s.disconnect(false, CloseAbnormal, "", errors.Parse(errors.ErrCodeParse.Description()))
	default:
		s.disconnect(false, CloseProtocolError, "",
			errors.Newf(errors.ErrCodeProtocol, "unexpected %s packet", p.Type))
	}
}

// handleOpen establishes the session. Later open packets are ignored.
func (s *Socket) handleOpen(p packet.Packet) {
	if s.readyState() != Connecting {
		s.log.PacketDropped(p.Type.String(), "session already open")
		return
	}
	sess, err := session.Parse(p.Data)
	if err != nil {
		s.disconnect(false, CloseProtocolError, "", err)
		return
	}

	s.sess.Store(sess)
	s.pollURL = session.PollURL(s.base, sess)
	s.setState(Open)
	s.metrics.RecordOpen()
	s.log.SessionOpened(sess.ID, sess.PollInterval)
	s.emitOpen()

	// Replies queued before the session existed.
	s.flush()
}

// Session returns the session established by the handshake, or nil if the
// socket never opened.
func (s *Socket) Session() *session.Session {
	return s.sess.Load()
}
