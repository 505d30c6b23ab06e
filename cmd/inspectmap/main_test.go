package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projection-mapper/internal/blendmap"
)

func TestSummarize(t *testing.T) {
	m := blendmap.New(4, 1)
	m.Set(0, 0, blendmap.Bias+64)
	m.Set(1, 0, 2*blendmap.Bias+10)
	m.Set(2, 0, 2*blendmap.Bias+30)

	sums := summarize(m)
	require.Len(t, sums, 2)
	assert.Equal(t, 1, sums[1].texels)
	assert.Equal(t, 64.0, sums[1].mean)
	assert.Zero(t, sums[1].std)

	two := sums[2]
	assert.Equal(t, 2, two.texels)
	assert.Equal(t, 20.0, two.mean)
	assert.Equal(t, 10.0, two.min)
	assert.Equal(t, 30.0, two.max)
	assert.Equal(t, 10.0, two.median)
}
