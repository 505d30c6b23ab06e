package fence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nop() error { return nil }

func TestAlternates(t *testing.T) {
	f := New()
	ctx := context.Background()

	var (
		mu    sync.Mutex
		trace []string
		wg    sync.WaitGroup
	)
	record := func(s string) func() error {
		return func() error {
			mu.Lock()
			trace = append(trace, s)
			mu.Unlock()
			return nil
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 3 {
			assert.NoError(t, f.Consume(ctx, record("c")))
		}
	}()
	for range 3 {
		require.NoError(t, f.Produce(ctx, record("p")))
	}
	wg.Wait()

	assert.Equal(t, []string{"p", "c", "p", "c", "p", "c"}, trace)
	p, c := f.Counts()
	assert.Equal(t, uint64(3), p)
	assert.Equal(t, uint64(3), c)
}

func TestProduceWaitsForConsumer(t *testing.T) {
	f := New()
	require.NoError(t, f.Produce(context.Background(), nop))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Produce(ctx, nop), context.DeadlineExceeded)
}

func TestFailedProduceReleasesSlot(t *testing.T) {
	f := New()
	boom := errors.New("boom")
	assert.ErrorIs(t, f.Produce(context.Background(), func() error { return boom }), boom)
	require.NoError(t, f.Produce(context.Background(), nop))

	p, _ := f.Counts()
	assert.Equal(t, uint64(1), p)
}

func TestClose(t *testing.T) {
	f := New()
	errc := make(chan error, 1)
	go func() { errc <- f.Consume(context.Background(), nop) }()

	f.Close()
	f.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("consumer not woken")
	}
	assert.ErrorIs(t, f.Produce(context.Background(), nop), ErrClosed)
}
