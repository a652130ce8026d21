package executor

import "time"

const speedSamples = 20

// speedWindow : rolling mean of units per millisecond over the last samples. samples taken
// with a different number of running tasks are not comparable and reset the window
type speedWindow struct {
	samples   []float64
	next      int
	full      bool
	prevTime  time.Time
	executing int
	completed int64
}

func newSpeedWindow(n int) *speedWindow {
	return &speedWindow{samples: make([]float64, n)}
}

func (w *speedWindow) add(now time.Time, executing int, completed int64) {
	if w.prevTime.IsZero() {
		w.prevTime, w.executing, w.completed = now, executing, completed
		return
	}
	if executing != w.executing {
		w.reset()
	}
	if ms := now.Sub(w.prevTime).Milliseconds(); ms > 0 {
		w.samples[w.next] = float64(completed-w.completed) / float64(ms)
		w.next = (w.next + 1) % len(w.samples)
		if w.next == 0 {
			w.full = true
		}
	}
	w.prevTime, w.executing, w.completed = now, executing, completed
}

func (w *speedWindow) reset() {
	w.next = 0
	w.full = false
}

func (w *speedWindow) count() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

func (w *speedWindow) mean() float64 {
	n := w.count()
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range w.samples[:n] {
		sum += s
	}
	return sum / float64(n)
}
