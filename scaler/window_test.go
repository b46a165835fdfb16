package scaler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func trailingMean(t *testing.T, w *WindowedAverager) float64 {
	t.Helper()
	mean, ok := w.TrailingHalfMean()
	assert.True(t, ok, "trailing half has samples")
	return mean
}

func TestWindowedAverager_TrailingHalfMean_UsesUpperHalfOnly(t *testing.T) {
	w := NewWindowedAverager(4)
	w.Put(1, 1000) // leading half: ignored
	w.Put(2, 30)
	w.Put(3, 50)
	w.Put(0, 2000) // leading half: ignored

	assert.InDelta(t, 40.0, trailingMean(t, w), 1e-12)
}

func TestWindowedAverager_OddLength_TrailingHalfIsLonger(t *testing.T) {
	w := NewWindowedAverager(3)
	w.Put(0, 100)
	w.Put(1, 10)
	w.Put(2, 20)

	assert.InDelta(t, 15.0, trailingMean(t, w), 1e-12)
}

func TestWindowedAverager_SingleSlot(t *testing.T) {
	w := NewWindowedAverager(1)
	w.Put(0, 42)
	assert.InDelta(t, 42.0, trailingMean(t, w), 1e-12)
}

func TestWindowedAverager_OverwritesInPlace(t *testing.T) {
	w := NewWindowedAverager(2)
	w.Put(1, 10)
	w.Put(1, 20)
	assert.Equal(t, 20.0, w.At(1))
	assert.Equal(t, 2, w.Len())
}

func TestWindowedAverager_InvalidatedSlot_LeftOutOfMean(t *testing.T) {
	w := NewWindowedAverager(4)
	for sub, v := range []float64{32, 32, 32, 32} {
		w.Put(sub, v) // a window at one worker
	}
	// Next window: sub-step 2 is dropped, so its 32 from the previous window
	// must not count.
	w.Put(1, 9.6)
	w.Invalidate(2)
	w.Put(3, 9.6)
	w.Put(0, 9.6)

	assert.True(t, math.IsNaN(w.At(2)))
	assert.InDelta(t, 9.6, trailingMean(t, w), 1e-12)
}

func TestWindowedAverager_NoTrailingSamples(t *testing.T) {
	w := NewWindowedAverager(4)
	w.Put(0, 10)
	w.Put(1, 10)
	_, ok := w.TrailingHalfMean()
	assert.False(t, ok, "fresh slots are empty")

	w.Put(2, 10)
	w.Put(3, 10)
	w.Invalidate(2)
	w.Invalidate(3)
	mean, ok := w.TrailingHalfMean()
	assert.False(t, ok)
	assert.Zero(t, mean)
}

func TestWindowedAverager_PanicsOutOfRange(t *testing.T) {
	w := NewWindowedAverager(4)
	assert.Panics(t, func() { w.Put(4, 1) })
	assert.Panics(t, func() { w.Put(-1, 1) })
	assert.Panics(t, func() { w.At(4) })
	assert.Panics(t, func() { w.Invalidate(4) })
	assert.Panics(t, func() { NewWindowedAverager(0) })
}
