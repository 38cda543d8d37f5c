package channel

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pithecene-io/tally/wire"
)

// Stream is a subscriber over length-prefixed frames on a byte stream
// (a capture file, stdin, a pipe). EOF on a frame boundary ends the stream
// normally; frame errors are returned as wire errors. Close before EOF is a
// forced closure.
type Stream struct {
	rc      io.ReadCloser
	results chan frameResult
	done    chan struct{}

	interruptCh chan struct{}
	interrupt   sync.Once
	closeOnce   sync.Once
	closeErr    error
	startOnce   sync.Once

	// terminal is the error that ended the read loop; only the single
	// consumer touches it.
	terminal error
}

type frameResult struct {
	payload []byte
	err     error
}

// NewStream creates a subscriber reading frames from rc. Close closes rc.
func NewStream(rc io.ReadCloser) *Stream {
	return &Stream{
		rc:          rc,
		results:     make(chan frameResult),
		done:        make(chan struct{}),
		interruptCh: make(chan struct{}),
	}
}

func (s *Stream) start() {
	go func() {
		dec := wire.NewFrameDecoder(s.rc)
		for {
			payload, err := dec.ReadFrame()
			select {
			case s.results <- frameResult{payload: payload, err: err}:
			case <-s.done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// Receive implements Subscriber.
func (s *Stream) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-s.interruptCh:
		return nil, ErrInterrupted
	default:
	}
	if s.terminal != nil {
		return nil, s.terminal
	}
	if s.closed() {
		return nil, ErrInterrupted
	}
	s.startOnce.Do(s.start)

	select {
	case r := <-s.results:
		if r.err != nil && s.closed() {
			// The read failed because Close pulled rc away.
			return nil, ErrInterrupted
		}
		if r.err != nil {
			s.terminal = r.err
			if errors.Is(r.err, io.EOF) {
				s.terminal = ErrClosed
			}
			return nil, s.terminal
		}
		return r.payload, nil
	case <-s.interruptCh:
		return nil, ErrInterrupted
	case <-s.done:
		return nil, ErrInterrupted
	case <-ctx.Done():
		return nil, Interrupted(ctx.Err())
	}
}

func (s *Stream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Interrupt forcibly closes the stream; blocked Receive calls return
// ErrInterrupted.
func (s *Stream) Interrupt() {
	s.interrupt.Do(func() { close(s.interruptCh) })
}

// Close implements Subscriber.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.rc.Close()
	})
	return s.closeErr
}

// StreamWriter is a publisher writing length-prefixed frames to a byte
// stream. Concurrent publishes are serialized; each frame is written whole.
type StreamWriter struct {
	wc  io.WriteCloser
	enc *wire.FrameEncoder

	mu     sync.Mutex
	closed bool
}

// NewStreamWriter creates a publisher writing frames to wc. Close closes wc.
func NewStreamWriter(wc io.WriteCloser) *StreamWriter {
	return &StreamWriter{wc: wc, enc: wire.NewFrameEncoder(wc)}
}

// Publish implements Publisher.
func (w *StreamWriter) Publish(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrPublisherClosed
	}
	return w.enc.WriteFrame(msg)
}

// Close implements Publisher.
func (w *StreamWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.wc.Close()
}

var (
	_ Subscriber  = (*Stream)(nil)
	_ Interrupter = (*Stream)(nil)
	_ Publisher   = (*StreamWriter)(nil)
)
