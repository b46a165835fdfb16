package scaler

import (
	"fmt"
	"math"
)

// WindowedAverager is a pre-allocated circular buffer of per-step throughput
// indexed by sub-step (step mod window length).
//
// The buffer is never cleared between windows. TrailingHalfMean reads
// whatever occupies the trailing slots, so it is only meaningful at sub-step
// 0, right after the current worker count filled the window. The leading half
// is skipped to let throughput settle after a resize.
//
// A slot that never received a sample, or whose step was dropped, holds NaN
// and is left out of the mean.
type WindowedAverager struct {
	slots []float64
}

// NewWindowedAverager panics if changeStep < 1.
func NewWindowedAverager(changeStep int) *WindowedAverager {
	if changeStep < 1 {
		panic(fmt.Sprintf("WindowedAverager: window length must be positive, got %d", changeStep))
	}
	slots := make([]float64, changeStep)
	for i := range slots {
		slots[i] = math.NaN()
	}
	return &WindowedAverager{slots: slots}
}

// Len returns the window length.
func (w *WindowedAverager) Len() int { return len(w.slots) }

// Put overwrites the slot for subStep. Panics if subStep is out of range.
func (w *WindowedAverager) Put(subStep int, throughput float64) {
	w.checkSlot(subStep)
	w.slots[subStep] = throughput
}

// Invalidate empties the slot for subStep so the sample it held from an
// earlier window does not count toward the current one.
func (w *WindowedAverager) Invalidate(subStep int) {
	w.checkSlot(subStep)
	w.slots[subStep] = math.NaN()
}

// At returns the current contents of a slot; NaN when it is empty.
func (w *WindowedAverager) At(subStep int) float64 {
	w.checkSlot(subStep)
	return w.slots[subStep]
}

// TrailingHalfMean averages the filled slots in [len/2, len). ok is false
// when every trailing slot is empty.
// Precondition: called at sub-step 0 of the step that completed the window.
func (w *WindowedAverager) TrailingHalfMean() (mean float64, ok bool) {
	sum, n := 0.0, 0
	for _, v := range w.slots[len(w.slots)/2:] {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (w *WindowedAverager) checkSlot(subStep int) {
	if subStep < 0 || subStep >= len(w.slots) {
		panic(fmt.Sprintf("WindowedAverager: sub-step %d outside window of %d", subStep, len(w.slots)))
	}
}
