package socket

import (
	"sync"

	"github.com/vinayprograms/pollsock/errors"
)

// MessageEvent carries a message received from the server.
type MessageEvent struct {
	Data   string
	Origin string
}

// CloseEvent reports how the socket closed.
type CloseEvent struct {
	WasClean bool
	Code     int
	Reason   string
}

// registry holds the listeners of one notification kind in subscription order.
type registry[T any] struct {
	mu      sync.Mutex
	next    uint64
	entries []listener[T]
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// add subscribes fn and returns a func that unsubscribes it.
func (r *registry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	r.entries = append(r.entries, listener[T]{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, l := range r.entries {
			if l.id == id {
				r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
				return
			}
		}
	}
}

func (r *registry[T]) snapshot() []func(T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fns := make([]func(T), len(r.entries))
	for i, l := range r.entries {
		fns[i] = l.fn
	}
	return fns
}

// dispatcher runs notification jobs one at a time, in the order they were
// enqueued, off the event loop.
type dispatcher struct {
	mu       sync.Mutex
	queue    []func()
	finished bool
	wake     chan struct{}
	done     chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(job func()) {
	d.mu.Lock()
	if d.finished {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, job)
	d.mu.Unlock()
	d.signal()
}

// finish lets the dispatcher exit once every queued job has run.
func (d *dispatcher) finish() {
	d.mu.Lock()
	d.finished = true
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			finished := d.finished
			d.mu.Unlock()
			if finished {
				return
			}
			<-d.wake
			continue
		}
		job := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		job()
	}
}

// OnOpen subscribes to the open notification.
func (s *Socket) OnOpen(fn func()) (unsubscribe func()) {
	return s.onOpen.add(func(struct{}) { fn() })
}

// OnMessage subscribes to incoming messages.
func (s *Socket) OnMessage(fn func(MessageEvent)) (unsubscribe func()) {
	return s.onMessage.add(fn)
}

// OnClose subscribes to the close notification. It fires exactly once.
func (s *Socket) OnClose(fn func(CloseEvent)) (unsubscribe func()) {
	return s.onClose.add(fn)
}

// OnError subscribes to error notifications. An error is always followed
// by a close notification.
func (s *Socket) OnError(fn func(error)) (unsubscribe func()) {
	return s.onError.add(fn)
}

// Done is closed after the close notification has been delivered.
func (s *Socket) Done() <-chan struct{} {
	return s.events.done
}

func (s *Socket) emitOpen() {
	s.events.enqueue(func() {
		for _, fn := range s.onOpen.snapshot() {
			s.deliver("open", func() { fn(struct{}{}) })
		}
	})
}

func (s *Socket) emitMessage(ev MessageEvent) {
	s.events.enqueue(func() {
		for _, fn := range s.onMessage.snapshot() {
			s.deliver("message", func() { fn(ev) })
		}
	})
}

func (s *Socket) emitError(err error) {
	s.events.enqueue(func() {
		for _, fn := range s.onError.snapshot() {
			s.deliver("error", func() { fn(err) })
		}
	})
}

func (s *Socket) emitClose(ev CloseEvent) {
	s.events.enqueue(func() {
		for _, fn := range s.onClose.snapshot() {
			s.deliver("close", func() { fn(ev) })
		}
	})
	s.events.finish()
}

// deliver invokes one listener, recovering a panic so later listeners and
// the socket itself are unaffected.
func (s *Socket) deliver(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.RecoverPanic(r)
			s.metrics.RecordListenerPanic()
			s.log.Error("listener_panic", map[string]interface{}{
				"event": kind,
				"error": err.Error(),
			})
		}
	}()
	fn()
}
