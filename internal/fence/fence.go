// Package fence orders a producer and a consumer of frames: a frame can be
// produced only once the previous one was consumed, and consumed only once
// produced.
package fence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by waits on a closed fence.
var ErrClosed = errors.New("fence: closed")

// Fence is a two-stage signal. The zero value is not usable, use New.
type Fence struct {
	free  chan struct{}
	ready chan struct{}
	done  chan struct{}
	once  sync.Once

	produced atomic.Uint64
	consumed atomic.Uint64
}

// New returns a fence ready to produce.
func New() *Fence {
	f := &Fence{
		free:  make(chan struct{}, 1),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	f.free <- struct{}{}
	return f
}

// wait takes the token from ch.
func (f *Fence) wait(ctx context.Context, ch chan struct{}) error {
	select {
	case <-f.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-f.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Produce waits for the previous frame to be consumed, runs fn and marks
// the frame produced. When fn fails nothing is produced and the fence is
// ready for another attempt.
func (f *Fence) Produce(ctx context.Context, fn func() error) error {
	if err := f.wait(ctx, f.free); err != nil {
		return err
	}
	if err := fn(); err != nil {
		f.free <- struct{}{}
		return err
	}
	f.produced.Add(1)
	f.ready <- struct{}{}
	return nil
}

// Consume waits for a produced frame, runs fn and releases the producer.
// The frame counts as consumed even when fn fails.
func (f *Fence) Consume(ctx context.Context, fn func() error) error {
	if err := f.wait(ctx, f.ready); err != nil {
		return err
	}
	err := fn()
	f.consumed.Add(1)
	f.free <- struct{}{}
	return err
}

// Counts returns how many frames were produced and consumed.
func (f *Fence) Counts() (produced, consumed uint64) {
	return f.produced.Load(), f.consumed.Load()
}

// Close wakes every waiter with ErrClosed. It is safe to call twice.
func (f *Fence) Close() {
	f.once.Do(func() { close(f.done) })
}
