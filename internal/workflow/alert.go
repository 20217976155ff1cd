package workflow

import (
	"fmt"
	"io"
	"sync"
)

// Alerter presents a blocking message to the user.
type Alerter interface {
	Alert(message string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(message string)

// Alert calls f.
func (f AlertFunc) Alert(message string) {
	f(message)
}

// WriterAlerter prints each alert on its own line.
type WriterAlerter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterAlerter builds an alerter over w.
func NewWriterAlerter(w io.Writer) *WriterAlerter {
	return &WriterAlerter{w: w}
}

// Alert writes the message.
func (a *WriterAlerter) Alert(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.w, "! %s\n", message)
}
