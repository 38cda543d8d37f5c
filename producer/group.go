package producer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/tally/channel"
)

// PublisherFactory mints the publisher for producer index.
type PublisherFactory func(index int) (channel.Publisher, error)

// ProduceFunc emits one producer's elements. The emitter is already open;
// the group closes it afterwards.
type ProduceFunc func(ctx context.Context, e *Emitter) error

// Group runs Parallelism producers concurrently.
type Group struct {
	// Parallelism is the number of producers (required, >= 1).
	Parallelism int
	// NewPublisher mints one publisher per producer (required).
	NewPublisher PublisherFactory
	// Limit bounds how many producers run at once; 0 means no limit.
	Limit int
	// Options apply to every emitter.
	Options []Option
}

// HubPublishers returns a factory minting publishers from hub.
func HubPublishers(hub *channel.Hub) PublisherFactory {
	return func(int) (channel.Publisher, error) {
		return hub.Publisher()
	}
}

// Run starts every producer and waits for all of them. A producer whose
// produce func fails is aborted without CLOSE; the first such error is
// returned.
func (g *Group) Run(ctx context.Context, produce ProduceFunc) error {
	if g.Parallelism < 1 {
		return fmt.Errorf("parallelism must be >= 1, got %d", g.Parallelism)
	}
	if g.NewPublisher == nil || produce == nil {
		return errors.New("group requires a publisher factory and a produce func")
	}

	// Mint every publisher up front so a hub can be sealed right after Run
	// starts without racing producer goroutines.
	emitters := make([]*Emitter, g.Parallelism)
	for i := range emitters {
		pub, err := g.NewPublisher(i)
		if err != nil {
			abortAll(emitters[:i])
			return fmt.Errorf("producer %d: publisher: %w", i, err)
		}
		e, err := NewEmitter(pub, i, g.Parallelism, g.Options...)
		if err != nil {
			_ = pub.Close()
			abortAll(emitters[:i])
			return fmt.Errorf("producer %d: %w", i, err)
		}
		emitters[i] = e
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if g.Limit > 0 {
		eg.SetLimit(g.Limit)
	}
	for _, e := range emitters {
		eg.Go(func() error {
			if err := e.Open(egCtx); err != nil {
				_ = e.Abort()
				return fmt.Errorf("producer %d: %w", e.Index(), err)
			}
			if err := produce(egCtx, e); err != nil {
				_ = e.Abort()
				return fmt.Errorf("producer %d: %w", e.Index(), err)
			}
			if err := e.Close(egCtx); err != nil {
				return fmt.Errorf("producer %d: %w", e.Index(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func abortAll(emitters []*Emitter) {
	for _, e := range emitters {
		_ = e.Abort()
	}
}
