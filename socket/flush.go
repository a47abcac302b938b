package socket

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/packet"
	"github.com/vinayprograms/pollsock/transport"
)

func (s *Socket) enqueue(p packet.Packet) {
	s.queue.push(p)
	s.buffered.Add(bufferedBytes(p))
	s.metrics.QueueAdd(1)
}

// flush posts the whole queue if the socket is open and no send is in
// flight.
func (s *Socket) flush() {
	if s.readyState() != Open || s.flushing || s.queue.len() == 0 {
		return
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}

	batch := s.queue.snapshot()
	body, err := packet.EncodePayload(batch)
	if err != nil {
		s.disconnect(false, CloseAbnormal, "", errors.WrapWithCode(err, errors.ErrCodeInternal, "encode send queue"))
		return
	}

	s.flushing = true
	epoch := s.epoch
	target := s.pollURL
	// Close aborts receives only. A send already on the wire runs to completion.
	ctx := context.WithoutCancel(s.ctx)

	go func() {
		_, err := s.requester.Request(ctx, transport.MethodPost, target, body)
		s.post(func() { s.onFlush(epoch, batch, err) })
	}()
}

func (s *Socket) onFlush(epoch uint64, batch []packet.Packet, err error) {
	if epoch != s.epoch {
		return
	}
	s.flushing = false
	if s.readyState() != Open {
		return
	}

	if err != nil {
		s.metrics.RecordFlush(false, nil, 0)
		s.scheduleRetry(len(batch), err)
		return
	}

	s.retry.Reset()
	s.queue.ack(len(batch))

	var sent int64
	types := make([]string, len(batch))
	for i, p := range batch {
		sent += bufferedBytes(p)
		types[i] = p.Type.String()
	}
	s.buffered.Add(-sent)
	s.metrics.QueueAdd(-len(batch))
	s.metrics.RecordFlush(true, types, int(sent))

	s.flush()
}

// scheduleRetry arms the next automatic flush. Once the retry budget is
// spent the queue waits for the next Send or Flush.
func (s *Socket) scheduleRetry(count int, err error) {
	wait := s.retry.NextBackOff()
	if wait == backoff.Stop {
		s.retry.Reset()
		s.log.FlushFailed(count, 0, err)
		return
	}
	s.log.FlushFailed(count, wait, err)

	var timer *time.Timer
	timer = time.AfterFunc(wait, func() {
		s.post(func() {
			if s.retryTimer != timer {
				return
			}
			s.retryTimer = nil
			s.flush()
		})
	})
	s.retryTimer = timer
}
