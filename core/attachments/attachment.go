// Package attachments holds the binary audio delivered alongside directives.
// An attachment is written to in chunks as it arrives from the transport and
// read from concurrently by whoever plays it; reads block until more data
// arrives or the writer is done.
package attachments

import (
	"fmt"
	"io"
	"sync"
)

// Attachment is a growable chunk buffer with a single blocking reader. The
// writer appends with Write and seals the attachment with CloseWrite; the
// reader consumes through Read and signals disinterest with Close.
type Attachment struct {
	mu sync.Mutex

	chunks [][]byte

	readhead   int
	chunkIndex int

	writesClosed bool
	readerClosed bool

	updateSignal chan struct{}
}

func newAttachment() *Attachment {
	return &Attachment{
		updateSignal: make(chan struct{}, 1),
	}
}

// Write appends a copy of p to the attachment.
func (a *Attachment) Write(p []byte) (int, error) {
	a.mu.Lock()
	if a.writesClosed {
		a.mu.Unlock()
		return 0, fmt.Errorf("attachment is closed for writes")
	}
	if a.readerClosed {
		// The consumer is gone; discard silently so the transport can keep
		// draining the stream.
		a.mu.Unlock()
		return len(p), nil
	}

	chunk := make([]byte, len(p))
	copy(chunk, p)
	a.chunks = append(a.chunks, chunk)
	a.mu.Unlock()

	a.signalUpdate()
	return len(p), nil
}

// CloseWrite marks the attachment complete. Readers drain the remaining
// chunks and then see io.EOF.
func (a *Attachment) CloseWrite() {
	a.mu.Lock()
	a.writesClosed = true
	a.mu.Unlock()
	a.signalUpdate()
}

// Read copies buffered bytes into p, blocking while the attachment is empty
// but still being written.
func (a *Attachment) Read(p []byte) (int, error) {
	for {
		a.mu.Lock()
		if a.readerClosed {
			a.mu.Unlock()
			return 0, io.ErrClosedPipe
		}

		if a.chunkIndex < len(a.chunks) {
			n := a.consumeLocked(p)
			a.mu.Unlock()
			return n, nil
		}

		if a.writesClosed {
			a.mu.Unlock()
			return 0, io.EOF
		}
		a.mu.Unlock()

		<-a.updateSignal
	}
}

// consumeLocked copies as much buffered audio as fits into p and advances the
// read position. Caller holds mu and guarantees data is available.
func (a *Attachment) consumeLocked(p []byte) int {
	total := 0
	for total < len(p) && a.chunkIndex < len(a.chunks) {
		chunk := a.chunks[a.chunkIndex]
		n := copy(p[total:], chunk[a.readhead:])
		total += n
		a.readhead += n

		if a.readhead == len(chunk) {
			a.chunks[a.chunkIndex] = nil
			a.chunkIndex++
			a.readhead = 0
		}
	}
	return total
}

// Close abandons the reader side. Subsequent writes are discarded and a
// blocked Read is released.
func (a *Attachment) Close() error {
	a.mu.Lock()
	a.readerClosed = true
	a.mu.Unlock()
	a.signalUpdate()
	return nil
}

func (a *Attachment) signalUpdate() {
	select {
	case a.updateSignal <- struct{}{}:
	default:
	}
}
