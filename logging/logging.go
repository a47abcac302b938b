// Package logging provides leveled, line-oriented log output for pollsock.
// Every socket gets a child logger tagged with its component and connection
// id so interleaved output from several sockets stays readable.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(s string) (Level, error) {
	lvl := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelPriority[lvl]; !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// sink is shared by a logger and every child derived from it.
type sink struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
}

// Logger writes structured log lines.
type Logger struct {
	sink      *sink
	component string
	connID    string
}

// New creates a new Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		sink: &sink{output: os.Stdout, minLevel: LevelInfo},
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{
		sink: &sink{output: io.Discard, minLevel: LevelError},
	}
}

// WithComponent returns a child logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{sink: l.sink, component: component, connID: l.connID}
}

// WithConnID returns a child logger tagged with a connection id.
func (l *Logger) WithConnID(id string) *Logger {
	return &Logger{sink: l.sink, component: l.component, connID: id}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	l.sink.minLevel = level
	l.sink.mu.Unlock()
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.output = w
	l.sink.mu.Unlock()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields renders fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

// log writes: LEVEL TIMESTAMP [component] message conn=<id> key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if levelPriority[level] < levelPriority[l.sink.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if l.connID != "" {
		fieldStr = " conn=" + l.connID
	}
	if len(fields) > 0 && fields[0] != nil {
		fieldStr += formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.sink.output.Write([]byte(line))
}

// --- Socket lifecycle helpers ---

// StateChange logs a ready state transition.
func (l *Logger) StateChange(from, to string) {
	l.Debug("state_change", map[string]interface{}{
		"from": from,
		"to":   to,
	})
}

// SessionOpened logs a completed handshake.
func (l *Logger) SessionOpened(sid string, interval time.Duration) {
	l.Info("session_open", map[string]interface{}{
		"sid":      sid,
		"interval": interval.String(),
	})
}

// Disconnected logs the end of a connection.
func (l *Logger) Disconnected(clean bool, code int, reason string) {
	fields := map[string]interface{}{
		"clean": clean,
		"code":  code,
	}
	if reason != "" {
		fields["reason"] = reason
	}
	if clean {
		l.Info("disconnect", fields)
	} else {
		l.Warn("disconnect", fields)
	}
}

// PacketDropped logs a packet that was ignored.
func (l *Logger) PacketDropped(packetType, why string) {
	l.Warn("packet_dropped", map[string]interface{}{
		"type":   packetType,
		"reason": why,
	})
}

// FlushFailed logs a failed send flush.
func (l *Logger) FlushFailed(count int, retryIn time.Duration, err error) {
	fields := map[string]interface{}{
		"messages": count,
		"error":    err.Error(),
	}
	if retryIn > 0 {
		fields["retry_in"] = retryIn.String()
	}
	l.Warn("flush_failed", fields)
}

// Request logs a completed transport request.
func (l *Logger) Request(method, url string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"method":   method,
		"url":      url,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Debug("request_error", fields)
	} else {
		l.Debug("request", fields)
	}
}
