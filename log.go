package websocket

import (
	"log"
	"os"
)

// Logger is the narrow logging surface this module depends on, matching
// the verb set the teacher's *Server itself exposes (Noticef/Errorf/
// Debugf/Tracef) rather than adopting a structured logging library:
// spec.md explicitly keeps logging an external collaborator, so the
// module only needs an interface a caller's real logger can satisfy.
type Logger interface {
	Noticef(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Tracef(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Noticef(string, ...interface{}) {}
func (nopLogger) Errorf(string, ...interface{})  {}
func (nopLogger) Debugf(string, ...interface{})  {}
func (nopLogger) Tracef(string, ...interface{})  {}

// StdLogger adapts the standard library's log.Logger to the Logger
// interface, tagging every line with its level the way the teacher's
// wsCaptureHTTPServerLog forwards http.Server's log lines into its own
// Errorf.
type StdLogger struct {
	l *log.Logger
}

// NewStdLogger returns a Logger that writes to stderr with the given
// prefix (typically the connection's correlation id).
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{l: log.New(os.Stderr, prefix+" ", log.LstdFlags)}
}

func (s *StdLogger) Noticef(format string, v ...interface{}) { s.l.Printf("[NOTICE] "+format, v...) }
func (s *StdLogger) Errorf(format string, v ...interface{})  { s.l.Printf("[ERROR] "+format, v...) }
func (s *StdLogger) Debugf(format string, v ...interface{})  { s.l.Printf("[DEBUG] "+format, v...) }
func (s *StdLogger) Tracef(format string, v ...interface{})  { s.l.Printf("[TRACE] "+format, v...) }
