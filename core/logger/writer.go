package logger

import (
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// writeOp is either a line to write or, when ack is set, a flush barrier.
type writeOp struct {
	line []byte
	ack  chan error
}

// asyncWriter fans lines out to its sinks from one goroutine. Lines reach
// every sink in order; a failing sink does not stop the others.
type asyncWriter struct {
	ops   chan writeOp
	done  chan struct{}
	sinks []io.Writer

	// state guards closed; senders hold it shared so Close waits for them.
	state  sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newAsyncWriter(sinks []io.Writer, queue int) *asyncWriter {
	if queue <= 0 {
		queue = 1024
	}
	w := &asyncWriter{
		ops:  make(chan writeOp, queue),
		done: make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			w.sinks = append(w.sinks, s)
		}
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for op := range w.ops {
		if op.ack != nil {
			op.ack <- w.firstErr()
			continue
		}
		for _, s := range w.sinks {
			if _, err := s.Write(op.line); err != nil {
				w.fail(err)
			}
		}
	}
}

// Write queues a copy of line. It blocks only when the queue is full.
func (w *asyncWriter) Write(line []byte) error {
	if len(line) == 0 {
		return nil
	}
	op := writeOp{line: append([]byte(nil), line...)}
	w.state.RLock()
	defer w.state.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.ops <- op
	return nil
}

// Flush returns once every line queued before it has been written.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	w.state.RLock()
	if w.closed {
		w.state.RUnlock()
		return w.firstErr()
	}
	w.ops <- writeOp{ack: ack}
	w.state.RUnlock()
	return <-ack
}

// Close drains the queue and reports the first write error.
func (w *asyncWriter) Close() error {
	w.state.Lock()
	if !w.closed {
		w.closed = true
		close(w.ops)
	}
	w.state.Unlock()
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) fail(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *asyncWriter) firstErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
