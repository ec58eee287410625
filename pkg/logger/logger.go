// Package logger provides the plain bootstrap logger used before the
// structured logger is configured.
package logger

import (
	"io"
	"log"
	"os"
)

// New returns a stdlib logger writing to stderr with a component prefix.
func New(component string) *log.Logger {
	return NewTo(os.Stderr, component)
}

// NewTo is New with an explicit destination.
func NewTo(w io.Writer, component string) *log.Logger {
	return log.New(w, "morningpulse/"+component+": ", log.LstdFlags|log.Lmsgprefix)
}
