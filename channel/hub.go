package channel

import (
	"context"
	"errors"
	"sync"
)

// Hub is an in-memory transport. Publishers never block: messages queue
// until the subscriber receives them.
//
// The hub ends normally once Seal has been called and every publisher it
// minted has closed; queued messages are still delivered before ErrClosed.
// Interrupt, or Close while the hub has not ended, forces closure.
type Hub struct {
	mu          sync.Mutex
	queue       [][]byte
	open        int
	sealed      bool
	interrupted bool
	subClosed   bool
	// ended records that the hub had ended normally when Close was called.
	ended bool

	notify      chan struct{}
	interruptCh chan struct{}
	once        sync.Once
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		notify:      make(chan struct{}, 1),
		interruptCh: make(chan struct{}),
	}
}

// Publisher mints a new independent publisher endpoint.
func (h *Hub) Publisher() (Publisher, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sealed {
		return nil, errors.New("hub is sealed")
	}
	if h.interrupted || h.subClosed {
		return nil, ErrClosed
	}
	h.open++
	return &hubPublisher{hub: h}, nil
}

// Seal declares that no further publishers will be minted.
func (h *Hub) Seal() {
	h.mu.Lock()
	h.sealed = true
	h.mu.Unlock()
	h.wake()
}

// Interrupt forcibly closes the hub. Blocked and future Receive calls
// return ErrInterrupted.
func (h *Hub) Interrupt() {
	h.mu.Lock()
	h.interrupted = true
	h.mu.Unlock()
	h.once.Do(func() { close(h.interruptCh) })
}

// Pending returns the number of queued messages.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// Receive implements Subscriber.
func (h *Hub) Receive(ctx context.Context) ([]byte, error) {
	for {
		h.mu.Lock()
		switch {
		case h.interrupted:
			h.mu.Unlock()
			return nil, ErrInterrupted
		case h.subClosed:
			ended := h.ended
			h.mu.Unlock()
			if ended {
				return nil, ErrClosed
			}
			return nil, ErrInterrupted
		case len(h.queue) > 0:
			msg := h.queue[0]
			h.queue[0] = nil
			h.queue = h.queue[1:]
			h.mu.Unlock()
			return msg, nil
		case h.sealed && h.open == 0:
			h.mu.Unlock()
			return nil, ErrClosed
		}
		h.mu.Unlock()

		select {
		case <-h.notify:
		case <-h.interruptCh:
		case <-ctx.Done():
			return nil, Interrupted(ctx.Err())
		}
	}
}

// Close implements Subscriber. Queued messages are dropped and further
// publishes fail with ErrClosed. Unless the hub had already ended normally,
// blocked and future Receive calls return ErrInterrupted.
func (h *Hub) Close() error {
	h.mu.Lock()
	if !h.subClosed {
		h.ended = h.sealed && h.open == 0 && len(h.queue) == 0
	}
	h.subClosed = true
	h.queue = nil
	h.mu.Unlock()
	h.wake()
	return nil
}

func (h *Hub) wake() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *Hub) publish(msg []byte) error {
	cp := make([]byte, len(msg))
	copy(cp, msg)

	h.mu.Lock()
	switch {
	case h.interrupted:
		h.mu.Unlock()
		return ErrInterrupted
	case h.subClosed:
		h.mu.Unlock()
		return ErrClosed
	}
	h.queue = append(h.queue, cp)
	h.mu.Unlock()
	h.wake()
	return nil
}

func (h *Hub) release() {
	h.mu.Lock()
	h.open--
	h.mu.Unlock()
	h.wake()
}

type hubPublisher struct {
	hub    *Hub
	mu     sync.Mutex
	closed bool
}

// Publish implements Publisher. It never blocks on the subscriber.
func (p *hubPublisher) Publish(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	return p.hub.publish(msg)
}

// Close implements Publisher.
func (p *hubPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.hub.release()
	return nil
}

var (
	_ Subscriber  = (*Hub)(nil)
	_ Interrupter = (*Hub)(nil)
)
