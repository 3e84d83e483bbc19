// Package ringbuf provides the bounded byte channel linking pipeline stages.
//
// A Buffer has exactly one writer and one reader on opposite ends of a stage
// boundary. Both ends block: Write waits for free space, Read waits for data.
// The writer signals graceful end-of-stream with SetDone, after which the
// reader drains remaining bytes and then receives io.EOF. Abort wakes every
// blocked caller with an error and is reserved for forced teardown.
package ringbuf

import (
	"errors"
	"io"
	"sync"
)

// ErrDone is returned by Write after the end-of-stream marker has been set.
var ErrDone = errors.New("ringbuf: write after end-of-stream")

// Buffer is a bounded blocking FIFO of bytes with an end-of-stream marker.
type Buffer struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []byte
	head, tail int64
	done       bool
	abortErr   error
}

// New returns a Buffer with the given capacity in bytes.
func New(size int) *Buffer {
	if size <= 0 {
		size = 1
	}
	b := &Buffer{buf: make([]byte, size)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write copies p into the buffer, blocking while it is full. It returns
// ErrDone after SetDone and the abort error after Abort. On success the
// whole slice has been accepted.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	for written < len(p) {
		if b.abortErr != nil {
			return written, b.abortErr
		}
		if b.done {
			return written, ErrDone
		}

		free := len(b.buf) - int(b.tail-b.head)
		if free == 0 {
			b.cond.Wait()
			continue
		}

		n := len(p) - written
		if n > free {
			n = free
		}
		tail := int(b.tail % int64(len(b.buf)))
		if tail+n <= len(b.buf) {
			copy(b.buf[tail:], p[written:written+n])
		} else {
			k := copy(b.buf[tail:], p[written:written+n])
			copy(b.buf, p[written+k:written+n])
		}
		b.tail += int64(n)
		written += n
		b.cond.Broadcast()
	}
	return written, nil
}

// Read copies buffered bytes into p, blocking while the buffer is empty.
// Once the end-of-stream marker is set and the buffer has drained, Read
// returns io.EOF.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.head == b.tail {
		if b.abortErr != nil {
			return 0, b.abortErr
		}
		if b.done {
			return 0, io.EOF
		}
		b.cond.Wait()
	}

	avail := int(b.tail - b.head)
	head := int(b.head % int64(len(b.buf)))

	var n int
	if head+avail <= len(b.buf) {
		n = copy(p, b.buf[head:head+avail])
	} else {
		n = copy(p, b.buf[head:])
		n += copy(p[n:], b.buf[:avail-n])
	}

	b.head += int64(n)
	b.cond.Broadcast()
	return n, nil
}

// SetDone marks graceful end-of-stream. The reader drains remaining bytes
// and then sees io.EOF; further writes fail with ErrDone. Idempotent.
func (b *Buffer) SetDone() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	b.cond.Broadcast()
}

// Done reports whether the end-of-stream marker has been set.
func (b *Buffer) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Abort wakes every blocked reader and writer with err. Buffered data is
// discarded. A nil err is replaced with io.ErrClosedPipe.
func (b *Buffer) Abort(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.abortErr != nil {
		return
	}
	b.abortErr = err
	b.head = b.tail
	b.cond.Broadcast()
}

// Reset clears data, the end-of-stream marker, and any abort error so the
// buffer can be reused by a fresh pipeline run.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.tail = 0
	b.done = false
	b.abortErr = nil
	b.cond.Broadcast()
}

// Len reports the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.tail - b.head)
}

// Cap reports the buffer capacity in bytes.
func (b *Buffer) Cap() int {
	return len(b.buf)
}
