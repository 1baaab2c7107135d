// Package logging provides a small component-tagged wrapper over the
// standard logger, matching the "component: message" call-site convention
// used throughout the teacher feeder (log.Printf("ipc: connected to %s",
// ...), log.Printf("%s: disconnected (%v), reconnecting in 3s...", ...)).
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger tags every line with a component name.
type Logger struct {
	component string
	std       *log.Logger
}

// New returns a Logger writing to stderr, tagged with component.
func New(component string) *Logger {
	return &Logger{
		component: component,
		std:       log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// Infof logs a component-tagged informational line.
func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf("%s: %s", l.component, fmt.Sprintf(format, args...))
}

// Warnf logs a component-tagged warning line.
func (l *Logger) Warnf(format string, args ...any) {
	l.std.Printf("%s: WARN %s", l.component, fmt.Sprintf(format, args...))
}

// Errorf logs a component-tagged error line.
func (l *Logger) Errorf(format string, args ...any) {
	l.std.Printf("%s: ERROR %s", l.component, fmt.Sprintf(format, args...))
}

// Fatalf logs a component-tagged error line and exits the process with the
// given code — used only at initialization per spec.md §7 ("Fatal
// conditions surface at initialization only").
func (l *Logger) Fatalf(code int, format string, args ...any) {
	l.std.Printf("%s: FATAL %s", l.component, fmt.Sprintf(format, args...))
	os.Exit(code)
}

// With returns a Logger for a sub-component, joined by "/".
func (l *Logger) With(sub string) *Logger {
	return &Logger{component: strings.Join([]string{l.component, sub}, "/"), std: l.std}
}
