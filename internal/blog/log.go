// Package blog provides a small leveled-logging façade used throughout
// backy. It gives every component the same Debug/Verbose/Warning/Error/
// Fatal vocabulary, plus Check/CheckError assertions for invariants that
// should never be violated in a correctly running daemon, while letting
// callers plug in per-repository log files.
package blog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger with the level vocabulary and assertion
// helpers the rest of the codebase is written against. A nil *Logger is
// valid and logs to stderr, mirroring the teacher's "log may be nil"
// convention so components can be exercised in tests without wiring one
// up explicitly.
type Logger struct {
	mu      sync.Mutex
	entry   *logrus.Entry
	verbose bool
	debug   bool
}

// New returns a Logger that writes to w (typically os.Stderr or a
// per-repository backy.log file) with the given verbosity flags.
func New(w io.Writer, verbose, debug bool) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level := logrus.InfoLevel
	if debug {
		level = logrus.DebugLevel
	}
	base.SetLevel(level)
	return &Logger{entry: logrus.NewEntry(base), verbose: verbose, debug: debug}
}

// With returns a copy of the logger annotated with the given structured
// fields, mirroring the teacher's per-repository/per-job log scoping.
func (l *Logger) With(fields logrus.Fields) *Logger {
	if l == nil {
		return New(os.Stderr, false, false).With(fields)
	}
	return &Logger{entry: l.entry.WithFields(fields), verbose: l.verbose, debug: l.debug}
}

func (l *Logger) Debug(f string, args ...interface{}) {
	if l == nil || !l.debug {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.Debugf(f, args...)
}

func (l *Logger) Verbose(f string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.Infof(f, args...)
}

func (l *Logger) Print(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, f, args...)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.Infof(f, args...)
}

func (l *Logger) Warning(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, f, args...)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.Warnf(f, args...)
}

func (l *Logger) Error(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, f, args...)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.Errorf(f, args...)
}

// Fatal logs at error level and terminates the process. It must only be
// used from top-level command entry points, never from library code that
// a daemon depends on staying alive (the scheduler must never die because
// one job misbehaved; see spec.md §7).
func (l *Logger) Fatal(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, f, args...)
		os.Exit(1)
	}
	l.mu.Lock()
	l.entry.Errorf(f, args...)
	l.mu.Unlock()
	os.Exit(1)
}

// Check terminates the process if v is false. Used for conditions that
// indicate a programming error rather than a runtime failure.
func (l *Logger) Check(v bool, msg ...interface{}) {
	if v {
		return
	}
	if len(msg) == 0 {
		l.Fatal("check failed\n")
		return
	}
	f := msg[0].(string)
	l.Fatal(f, msg[1:]...)
}

// CheckError terminates the process if err is non-nil.
func (l *Logger) CheckError(err error, msg ...interface{}) {
	if err == nil {
		return
	}
	if len(msg) == 0 {
		l.Fatal("error: %+v\n", err)
		return
	}
	f := msg[0].(string)
	l.Fatal(f, msg[1:]...)
}
