package pool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueWait(t *testing.T) {
	p := New(3)
	defer p.Close()

	var sum atomic.Int64
	ids := make([]ID, 0, 20)
	for i := 1; i <= 20; i++ {
		n := int64(i)
		ids = append(ids, p.Enqueue(func() {
			time.Sleep(time.Millisecond)
			sum.Add(n)
		}))
	}
	p.Wait(ids...)

	assert.Equal(t, int64(210), sum.Load())
	assert.Equal(t, int64(20), p.Processed())

	// handles are unique and joining twice is harmless
	seen := map[ID]bool{}
	for _, id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	p.Wait(ids...)
	p.Wait(ID(9999))
}

func TestWaitSubset(t *testing.T) {
	p := New(2)
	defer p.Close()

	release := make(chan struct{})
	blocked := p.Enqueue(func() { <-release })
	var ran atomic.Bool
	quick := p.Enqueue(func() { ran.Store(true) })

	p.Wait(quick)
	assert.True(t, ran.Load())

	close(release)
	p.Wait(blocked)
}

func TestCloseDrains(t *testing.T) {
	p := New(1)
	var n atomic.Int32
	for i := 0; i < 5; i++ {
		p.Enqueue(func() { n.Add(1) })
	}
	p.Close()
	p.Close()
	assert.Equal(t, int32(5), n.Load())
}
