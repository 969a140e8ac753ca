package adapter

import (
	"fmt"
	"io"
	"sync"
)

// OutputSink receives the full diagnostic output of running targets.
type OutputSink interface {
	WriteLine(label string, stream Stream, line string)
}

// WriterOutputSink prefixes each line with its target label and writes it whole,
// so lines from concurrently running targets never interleave inside a line.
type WriterOutputSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterOutputSink wraps w. A nil writer discards output.
func NewWriterOutputSink(w io.Writer) *WriterOutputSink {
	if w == nil {
		w = io.Discard
	}

	return &WriterOutputSink{w: w}
}

// WriteLine writes "[label] line" as a single write.
func (s *WriterOutputSink) WriteLine(label string, stream Stream, line string) {
	prefix := label
	if stream == Stderr {
		prefix += " !"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = fmt.Fprintf(s.w, "[%s] %s\n", prefix, line)
}
