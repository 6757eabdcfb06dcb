package engine

import (
	"bytes"
	"sync"
)

// OutputBuffer collects engine output. It keeps the full text and,
// separately, the text written since the last call to Recent. One writer and
// one reader may use it concurrently; no byte is lost or returned twice by
// Recent.
type OutputBuffer struct {
	mu     sync.Mutex
	all    bytes.Buffer
	recent bytes.Buffer
}

// NewOutputBuffer returns an empty buffer.
func NewOutputBuffer() *OutputBuffer {
	return &OutputBuffer{}
}

// Write implements io.Writer.
func (b *OutputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent.Write(p)
	return b.all.Write(p)
}

// WriteString implements io.StringWriter.
func (b *OutputBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// String returns everything written so far.
func (b *OutputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.all.String()
}

// Recent returns the text written since the previous call and drains it.
func (b *OutputBuffer) Recent() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.recent.String()
	b.recent.Reset()
	return s
}

// Len returns the total number of bytes written.
func (b *OutputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.all.Len()
}
