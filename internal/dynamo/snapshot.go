package dynamo

import "sort"

// Snapshot is a contiguous, time-ordered run of cached frames. It holds no
// reference back into the engine's history.
type Snapshot struct {
	frames []*Frame
}

func (s *Snapshot) Len() int           { return len(s.frames) }
func (s *Snapshot) At(i int) *Frame    { return s.frames[i] }
func (s *Snapshot) Oldest() *Frame     { return s.frames[0] }
func (s *Snapshot) Newest() *Frame     { return s.frames[len(s.frames)-1] }
func (s *Snapshot) StartTime() float64 { return s.Oldest().time }
func (s *Snapshot) EndTime() float64   { return s.Newest().time }

// Frames returns a copy of the frame slice.
func (s *Snapshot) Frames() []*Frame {
	out := make([]*Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Query extracts the frames covering [start, end]. Bounds snap to the
// nearest cached frame. It reports false when start > end, start is after
// the newest frame, or end is before the oldest frame.
func (e *Engine) Query(start, end float64) (*Snapshot, bool) {
	n := e.history.Len()
	if n == 0 || !finite(start) || !finite(end) || start > end {
		return nil, false
	}
	timeAt := func(i int) float64 {
		f, _ := e.history.At(i)
		return f.time
	}
	if start > timeAt(n-1) || end < timeAt(0) {
		return nil, false
	}

	lo, hi := lowerBound(n, start, timeAt), upperBound(n, end, timeAt)
	frames, err := e.history.Slice(lo, hi)
	if err != nil {
		return nil, false
	}
	return &Snapshot{frames: frames}, true
}

// upperBound finds the smallest index whose time is >= t, or the closer of
// the two frames straddling t. Ties go to the later frame.
func upperBound(n int, t float64, timeAt func(int) float64) int {
	k := sort.Search(n, func(i int) bool { return timeAt(i) >= t })
	switch {
	case k == n:
		return n - 1
	case k == 0 || timeAt(k) == t:
		return k
	}
	if t-timeAt(k-1) < timeAt(k)-t {
		return k - 1
	}
	return k
}

// lowerBound finds the largest index whose time is <= t, or the closer of
// the two frames straddling t. Ties go to the earlier frame.
func lowerBound(n int, t float64, timeAt func(int) float64) int {
	k := sort.Search(n, func(i int) bool { return timeAt(i) > t }) - 1
	switch {
	case k < 0:
		return 0
	case k == n-1 || timeAt(k) == t:
		return k
	}
	if timeAt(k+1)-t < t-timeAt(k) {
		return k + 1
	}
	return k
}
