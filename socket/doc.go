// Package socket provides a socket-compatible client over a polling
// request/response transport.
//
// # Overview
//
// A Socket looks like a persistent duplex connection but is made of plain
// requests: a GET loop receives payloads from the server and single-flight
// POSTs deliver queued messages. The first GET returns the handshake, an open
// packet carrying the session id and poll interval; every later request goes
// to the session URL.
//
//	s, err := socket.New("ws://example.com/sock", nil,
//	    transport.NewHTTPRequester(transport.DefaultHTTPConfig()),
//	    socket.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	s.OnOpen(func() { s.Send("hello") })
//	s.OnMessage(func(ev socket.MessageEvent) { fmt.Println(ev.Data) })
//	s.OnClose(func(ev socket.CloseEvent) { fmt.Println("closed", ev.Code) })
//	<-s.Done()
//
// # Ready States
//
// A socket moves CONNECTING -> OPEN -> CLOSING -> CLOSED, or skips OPEN when
// it fails or is closed before the handshake. It never moves backwards.
//
// # Concurrency
//
// All socket state is owned by one event-loop goroutine. Request completions
// and timers are posted to it as callbacks, and public methods post and wait.
// Every callback remembers the epoch it was scheduled under and does nothing
// once the socket has disconnected.
//
// Notifications are delivered in order on a separate goroutine, so listeners
// may call Send and Close. A panicking listener is recovered and logged; the
// remaining listeners still run.
package socket
