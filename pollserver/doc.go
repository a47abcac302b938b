// Package pollserver is the server side of the polling protocol. It hands
// out sessions, holds receive requests open until packets are queued
// (long polling) and accepts uploaded payloads.
//
// Routes, relative to Config.Path:
//
//	GET  {path}        handshake, answers with an open packet
//	GET  {path}/{sid}  receive, answers with queued packets or an empty body
//	POST {path}/{sid}  send, body is a payload of message and pong packets
//
// Example:
//
//	srv := pollserver.New(pollserver.DefaultConfig())
//	srv.OnMessage(func(s *pollserver.Session, data string) {
//	    s.Send(data)
//	})
//	defer srv.Close()
//	http.ListenAndServe(":8080", srv.Handler())
package pollserver
