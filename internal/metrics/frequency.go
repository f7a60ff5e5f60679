package metrics

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidWindow indicates a non-positive sliding window.
var ErrInvalidWindow = errors.New("metrics: frequency window must be positive")

const initialSamples = 16

type sample struct {
	at    time.Time
	count int64
}

// FrequencyCounter estimates an event rate over a trailing window.
//
// Samples are kept in a circular history that doubles in size instead of
// overwriting its oldest entry while that entry is still inside the window,
// so short bursts do not lose precision. At least two samples are always
// retained once they exist. A clock that moves backwards resets the history.
type FrequencyCounter struct {
	mu     sync.Mutex
	clock  Clock
	window time.Duration

	samples []sample
	start   int
	n       int
	total   int64 // sum of counts excluding the oldest sample
}

func NewFrequencyCounter(window time.Duration, clock Clock) (*FrequencyCounter, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &FrequencyCounter{
		clock:   clock,
		window:  window,
		samples: make([]sample, initialSamples),
	}, nil
}

func (f *FrequencyCounter) Window() time.Duration { return f.window }

func (f *FrequencyCounter) at(i int) *sample {
	return &f.samples[(f.start+i)%len(f.samples)]
}

// Update records n events at the current clock reading.
func (f *FrequencyCounter) Update(n int64) {
	now := f.clock.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.n > 0 {
		last := f.at(f.n - 1)
		switch {
		case now.Equal(last.at):
			last.count += n
			if f.n > 1 {
				f.total += n
			}
			return
		case now.Before(last.at):
			f.resetLocked()
		}
	}

	f.appendLocked(sample{at: now, count: n})
	f.evictLocked(now)
}

func (f *FrequencyCounter) appendLocked(s sample) {
	if f.n == len(f.samples) {
		oldest := f.at(0)
		if s.at.Sub(oldest.at) <= f.window {
			f.growLocked()
		} else {
			f.dropOldestLocked()
		}
	}
	*f.at(f.n) = s
	if f.n > 0 {
		f.total += s.count
	}
	f.n++
}

func (f *FrequencyCounter) growLocked() {
	grown := make([]sample, len(f.samples)*2)
	for i := 0; i < f.n; i++ {
		grown[i] = *f.at(i)
	}
	f.samples = grown
	f.start = 0
}

// dropOldestLocked removes the oldest sample. The next sample becomes the
// window's left edge, so its count leaves the running total.
func (f *FrequencyCounter) dropOldestLocked() {
	f.start = (f.start + 1) % len(f.samples)
	f.n--
	if f.n > 0 {
		f.total -= f.at(0).count
	}
}

func (f *FrequencyCounter) evictLocked(now time.Time) {
	cutoff := now.Add(-f.window)
	for f.n > 2 && f.at(0).at.Before(cutoff) {
		f.dropOldestLocked()
	}
}

func (f *FrequencyCounter) resetLocked() {
	f.start = 0
	f.n = 0
	f.total = 0
}

// Reset discards all samples.
func (f *FrequencyCounter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
}

// Samples reports how many samples are currently retained.
func (f *FrequencyCounter) Samples() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

// Frequency returns events per second across the retained samples, measured
// from the oldest sample to now. It is 0 until two samples exist.
func (f *FrequencyCounter) Frequency() float64 {
	now := f.clock.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.n < 2 {
		return 0
	}
	elapsed := now.Sub(f.at(0).at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(f.total) / elapsed
}
