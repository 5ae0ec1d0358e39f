// Package logging is a small leveled logger over the standard log
// package, with optional rotation of a log file.
package logging

import (
	"io"
	"log"
	"sync"
	"time"
)

type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

// Logger records messages at different severities.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})

	// Shutdown makes sure logs are closed.
	Shutdown()
}

var (
	mu sync.RWMutex

	mode   ModeFlag = InfoMode
	logger Logger   = stdLogger{}
)

// SetLogMode sets the severity required for a message to be printed.
// SilentMode turns off all logging.
func SetLogMode(newMode ModeFlag) {
	mu.Lock()
	mode = newMode
	mu.Unlock()
}

// LogMode returns the current severity threshold.
func LogMode() ModeFlag {
	mu.RLock()
	defer mu.RUnlock()
	return mode
}

// SetOutput sends log lines to w instead of the current destination.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func enabled(m ModeFlag) bool { return LogMode() <= m }

func current() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debugf(format string, args ...interface{}) {
	if enabled(DebugMode) {
		current().Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if enabled(InfoMode) {
		current().Infof(format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if enabled(WarningMode) {
		current().Warningf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if enabled(ErrorMode) {
		current().Errorf(format, args...)
	}
}

func Criticalf(format string, args ...interface{}) {
	if enabled(CriticalMode) {
		current().Criticalf(format, args...)
	}
}

// Shutdown closes the log file, if any.
func Shutdown() { current().Shutdown() }

// TimeLog appends the time elapsed since its creation to each message.
//
//	tlog := logging.NewTimeLog()
//	...
//	tlog.Infof("wrote %d units", n) // "wrote 12 units: 1.2s"
type TimeLog struct {
	logger Logger
	start  time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{current(), time.Now()}
}

// Elapsed returns the time since the TimeLog was created.
func (t TimeLog) Elapsed() time.Duration { return time.Since(t.start) }

func (t TimeLog) Debugf(format string, args ...interface{}) {
	if enabled(DebugMode) {
		t.logger.Debugf(format+": %s", append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	if enabled(InfoMode) {
		t.logger.Infof(format+": %s", append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	if enabled(WarningMode) {
		t.logger.Warningf(format+": %s", append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Errorf(format string, args ...interface{}) {
	if enabled(ErrorMode) {
		t.logger.Errorf(format+": %s", append(args, time.Since(t.start))...)
	}
}
