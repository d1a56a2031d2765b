package result

import "sync"

// DefaultBuffer is the stream capacity used when none is given.
const DefaultBuffer = 256

// Sink consumes records. Sinks are called from the single pump goroutine,
// one record at a time, so they need no locking against each other.
type Sink interface {
	Handle(rec Record)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec Record)

func (f SinkFunc) Handle(rec Record) { f(rec) }

// Stream is a multiple-producer, single-consumer queue of records.
// Emit may be called from any number of goroutines; exactly one goroutine
// should read Records (normally through Pump).
type Stream struct {
	mu     sync.RWMutex
	ch     chan Record
	closed bool
}

// NewStream creates a stream with the given buffer size.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{ch: make(chan Record, buffer)}
}

// Emit enqueues rec, blocking while the buffer is full. Records are never
// dropped while the stream is open. It reports false if the stream was
// already closed.
func (s *Stream) Emit(rec Record) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.ch <- rec
	return true
}

// Close stops accepting records once in-progress Emits have been delivered
// to the buffer. The consumer keeps draining until the channel is empty.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Records exposes the receive side for the consumer.
func (s *Stream) Records() <-chan Record {
	return s.ch
}

// Pump delivers every record from records to each sink in order until the
// channel is closed, and returns how many records it delivered.
func Pump(records <-chan Record, sinks ...Sink) int64 {
	var delivered int64
	for rec := range records {
		for _, sink := range sinks {
			if sink != nil {
				sink.Handle(rec)
			}
		}
		delivered++
	}
	return delivered
}
