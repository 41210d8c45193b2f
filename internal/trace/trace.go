// Package trace defines the structured logging sink the emulation core
// publishes significant events to: frame boundaries, mapper IRQ edges,
// illegal-opcode encounters. Components take a Sink rather than calling
// log.Printf directly, so a host can redirect, filter, or discard the
// stream without touching core code.
package trace

import (
	"fmt"
	"io"
	"time"
)

// Record is one structured trace event. Fields beyond Component/Event
// are free-form and rendered by the sink, not interpreted by emitters.
type Record struct {
	Component string
	Event     string
	Fields    map[string]any
}

// Sink receives trace records. Implementations must not block the
// emulation loop for long; a file sink should buffer internally.
type Sink interface {
	Emit(Record)
}

// NopSink discards every record. It is the default sink so components
// can always call Emit without a nil check.
type NopSink struct{}

// Emit discards rec.
func (NopSink) Emit(Record) {}

// WriterSink renders each record as a single line of text to an
// io.Writer, in the teacher's log.Printf style (component-tagged,
// space-separated key=value fields) rather than a structured encoding
// no pack example reaches for.
type WriterSink struct {
	w    io.Writer
	now  func() time.Time
}

// NewWriterSink wraps w. Timestamps use time.Now unless overridden.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w, now: time.Now}
}

// Emit writes rec to the underlying writer. Write errors are ignored:
// tracing must never be able to halt emulation.
func (s *WriterSink) Emit(rec Record) {
	line := fmt.Sprintf("%s [%s] %s", s.now().Format("15:04:05.000"), rec.Component, rec.Event)
	for k, v := range rec.Fields {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	fmt.Fprintln(s.w, line)
}
