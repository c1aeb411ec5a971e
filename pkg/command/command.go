// Package command decodes the single-character control commands accepted by
// the range finder and provides byte sources polled with a bounded wait.
package command

import (
	"io"
	"time"
)

// Command is a decoded control input.
type Command uint8

const (
	// None is any input that is not a command.
	None Command = iota
	// Start enables measurements ('s' or 'S').
	Start
	// Stop disables measurements ('p' or 'P').
	Stop
)

func (c Command) String() string {
	switch c {
	case Start:
		return "start"
	case Stop:
		return "stop"
	default:
		return "none"
	}
}

// Byte returns the canonical character for c, or 0 for None.
func (c Command) Byte() byte {
	switch c {
	case Start:
		return 's'
	case Stop:
		return 'p'
	default:
		return 0
	}
}

// Parse decodes one input character. Everything unrecognized is None.
func Parse(b byte) Command {
	switch b {
	case 's', 'S':
		return Start
	case 'p', 'P':
		return Stop
	default:
		return None
	}
}

// Source yields input characters. Poll waits at most timeout for one byte.
type Source interface {
	Poll(timeout time.Duration) (byte, bool)
}

// Queue is an in-memory Source fed by Push.
type Queue struct {
	ch chan byte
}

// NewQueue returns a Queue buffering up to size bytes.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 16
	}
	return &Queue{ch: make(chan byte, size)}
}

// Push enqueues b. It reports false when the queue is full.
func (q *Queue) Push(b byte) bool {
	select {
	case q.ch <- b:
		return true
	default:
		return false
	}
}

// Poll implements Source.
func (q *Queue) Poll(timeout time.Duration) (byte, bool) {
	return poll(q.ch, timeout)
}

// Reader adapts an io.Reader, such as a terminal or a UART stream, into a
// Source. A background goroutine reads until the reader fails.
type Reader struct {
	ch   chan byte
	done chan struct{}
	err  error
}

// NewReader starts reading r.
func NewReader(r io.Reader) *Reader {
	rd := &Reader{
		ch:   make(chan byte, 64),
		done: make(chan struct{}),
	}
	go rd.read(r)
	return rd
}

func (rd *Reader) read(r io.Reader) {
	defer close(rd.done)

	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			rd.ch <- b
		}
		if err != nil {
			if err != io.EOF {
				rd.err = err
			}
			return
		}
	}
}

// Poll implements Source.
func (rd *Reader) Poll(timeout time.Duration) (byte, bool) {
	return poll(rd.ch, timeout)
}

// Done is closed when the underlying reader is exhausted.
func (rd *Reader) Done() <-chan struct{} {
	return rd.done
}

// Err returns the read error that stopped the reader, if any. Valid after
// Done is closed.
func (rd *Reader) Err() error {
	<-rd.done
	return rd.err
}

func poll(ch <-chan byte, timeout time.Duration) (byte, bool) {
	select {
	case b := <-ch:
		return b, true
	default:
	}
	if timeout <= 0 {
		return 0, false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case b := <-ch:
		return b, true
	case <-t.C:
		return 0, false
	}
}
