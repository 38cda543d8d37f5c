package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/pithecene-io/tally/types"
	"github.com/pithecene-io/tally/wire"
)

func framedStream(t *testing.T, msgs ...types.Message) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	enc := wire.NewFrameEncoder(&buf)
	for _, m := range msgs {
		if err := enc.WriteMessage(m); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}
	return io.NopCloser(&buf)
}

func TestStream_ReadsUntilEOF(t *testing.T) {
	defer leaktest.Check(t)()

	s := NewStream(framedStream(t,
		types.NewOpen(0, 1, nil),
		types.NewRecord([]byte("x")),
		types.NewClose(0, 1),
	))
	defer func() { _ = s.Close() }()

	var kinds []types.MessageKind
	for {
		payload, err := s.Receive(context.Background())
		if IsClosed(err) {
			break
		}
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		m, err := wire.Decode(payload)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		kinds = append(kinds, m.Kind)
	}

	want := []types.MessageKind{types.KindOpen, types.KindRecord, types.KindClose}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}

	// Terminal result is sticky.
	if _, err := s.Receive(context.Background()); !IsClosed(err) {
		t.Errorf("expected ErrClosed again, got %v", err)
	}
}

func TestStream_PartialFrame(t *testing.T) {
	defer leaktest.Check(t)()

	s := NewStream(io.NopCloser(bytes.NewReader([]byte{0, 0, 0, 9, 'R', 'E'})))
	defer func() { _ = s.Close() }()

	_, err := s.Receive(context.Background())
	if !wire.IsFrameError(err) {
		t.Fatalf("expected frame error, got %v", err)
	}
	if IsClosed(err) || IsInterrupted(err) {
		t.Error("frame error must not look like a channel closure")
	}
}

func TestStream_InterruptWhileBlocked(t *testing.T) {
	defer leaktest.Check(t)()

	pr, pw := io.Pipe()
	s := NewStream(pr)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.Interrupt()

	select {
	case err := <-errCh:
		if !IsInterrupted(err) {
			t.Errorf("expected ErrInterrupted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Interrupt")
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	_ = pw.Close()
}

func TestStream_CloseWhileBlockedInterrupts(t *testing.T) {
	defer leaktest.Check(t)()

	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()
	s := NewStream(pr)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errCh:
		if !IsInterrupted(err) {
			t.Errorf("expected ErrInterrupted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}

	if _, err := s.Receive(context.Background()); !IsInterrupted(err) {
		t.Errorf("Receive after Close: expected ErrInterrupted, got %v", err)
	}
}

func TestStream_ContextDeadline(t *testing.T) {
	defer leaktest.Check(t)()

	pr, pw := io.Pipe()
	s := NewStream(pr)
	defer func() { _ = pw.Close() }()
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Receive(ctx); !IsInterrupted(err) {
		t.Errorf("expected interruption, got %v", err)
	}
}

type nopWriteCloser struct {
	io.Writer
	closed int
}

func (n *nopWriteCloser) Close() error {
	n.closed++
	return nil
}

func TestStreamWriter_RoundTrip(t *testing.T) {
	defer leaktest.Check(t)()

	var buf bytes.Buffer
	wc := &nopWriteCloser{Writer: &buf}
	w := NewStreamWriter(wc)

	msgs := []types.Message{
		types.NewOpen(0, 1, []byte{1, 2}),
		types.NewRecord([]byte("payload")),
		types.NewClose(0, 1),
	}
	for _, m := range msgs {
		b, err := wire.Encode(m)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if err := w.Publish(context.Background(), b); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if wc.closed != 1 {
		t.Errorf("underlying writer closed %d times, want 1", wc.closed)
	}
	if err := w.Publish(context.Background(), []byte("REC\n")); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("expected ErrPublisherClosed, got %v", err)
	}

	s := NewStream(io.NopCloser(&buf))
	defer func() { _ = s.Close() }()
	for i, want := range msgs {
		payload, err := s.Receive(context.Background())
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		got, err := wire.Decode(payload)
		if err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if got.String() != want.String() {
			t.Errorf("message %d = %s, want %s", i, got, want)
		}
	}
	if _, err := s.Receive(context.Background()); !IsClosed(err) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
