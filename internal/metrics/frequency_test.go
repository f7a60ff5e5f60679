package metrics

import (
	"errors"
	"math"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFrequencyUniformStream(t *testing.T) {
	tests := []struct {
		name   string
		events int
		span   time.Duration
		window time.Duration
	}{
		{"100Hz over 10s", 1000, 10 * time.Second, 5 * time.Second},
		{"1kHz over 2s", 2000, 2 * time.Second, time.Second},
		{"window wider than stream", 300, 3 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewManualClock(epoch)
			fc, err := NewFrequencyCounter(tt.window, clock)
			if err != nil {
				t.Fatalf("NewFrequencyCounter: %v", err)
			}
			step := tt.span / time.Duration(tt.events)
			for i := 0; i < tt.events; i++ {
				clock.Advance(step)
				fc.Update(1)
			}

			want := float64(tt.events) / tt.span.Seconds()
			got := fc.Frequency()
			if math.Abs(got-want)/want > 0.03 {
				t.Errorf("Frequency() = %.3f, want %.3f within 3%%", got, want)
			}
		})
	}
}

func TestFrequencyNeedsTwoSamples(t *testing.T) {
	clock := NewManualClock(epoch)
	fc, _ := NewFrequencyCounter(time.Second, clock)

	if got := fc.Frequency(); got != 0 {
		t.Errorf("empty counter Frequency() = %v, want 0", got)
	}
	fc.Update(10)
	clock.Advance(100 * time.Millisecond)
	if got := fc.Frequency(); got != 0 {
		t.Errorf("single sample Frequency() = %v, want 0", got)
	}
}

func TestFrequencySameTimestampAccumulates(t *testing.T) {
	clock := NewManualClock(epoch)
	fc, _ := NewFrequencyCounter(time.Second, clock)

	fc.Update(1)
	clock.Advance(100 * time.Millisecond)
	fc.Update(5)
	fc.Update(5)

	if fc.Samples() != 2 {
		t.Fatalf("Samples() = %d, want 2", fc.Samples())
	}
	if got := fc.Frequency(); math.Abs(got-100) > 1e-9 {
		t.Errorf("Frequency() = %v, want 100", got)
	}
}

func TestFrequencyClockRegressionResets(t *testing.T) {
	clock := NewManualClock(epoch)
	fc, _ := NewFrequencyCounter(time.Second, clock)

	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Millisecond)
		fc.Update(1)
	}
	clock.Set(epoch)
	fc.Update(1)

	if fc.Samples() != 1 {
		t.Errorf("Samples() after regression = %d, want 1", fc.Samples())
	}
	if got := fc.Frequency(); got != 0 {
		t.Errorf("Frequency() after regression = %v, want 0", got)
	}
}

func TestFrequencyGrowsWithinWindow(t *testing.T) {
	clock := NewManualClock(epoch)
	fc, _ := NewFrequencyCounter(10*time.Second, clock)

	for i := 0; i < 100; i++ {
		clock.Advance(time.Millisecond)
		fc.Update(1)
	}
	if fc.Samples() != 100 {
		t.Errorf("Samples() = %d, want 100", fc.Samples())
	}
}

func TestFrequencyEvictionKeepsTwo(t *testing.T) {
	clock := NewManualClock(epoch)
	fc, _ := NewFrequencyCounter(time.Second, clock)

	fc.Update(1)
	clock.Advance(10 * time.Second)
	fc.Update(4)

	if fc.Samples() != 2 {
		t.Fatalf("Samples() = %d, want 2", fc.Samples())
	}
	if got := fc.Frequency(); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("Frequency() = %v, want 0.4", got)
	}
}

func TestFrequencyEvictsOutsideWindow(t *testing.T) {
	clock := NewManualClock(epoch)
	fc, _ := NewFrequencyCounter(time.Second, clock)

	for i := 0; i < 50; i++ {
		clock.Advance(100 * time.Millisecond)
		fc.Update(1)
	}
	if n := fc.Samples(); n > 11 {
		t.Errorf("Samples() = %d, want at most 11 for a 1s window at 10Hz", n)
	}
}

func TestFrequencyInvalidWindow(t *testing.T) {
	for _, w := range []time.Duration{0, -time.Second} {
		if _, err := NewFrequencyCounter(w, nil); !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("NewFrequencyCounter(%v) error = %v, want ErrInvalidWindow", w, err)
		}
	}
}

func TestFrequencyReset(t *testing.T) {
	clock := NewManualClock(epoch)
	fc, _ := NewFrequencyCounter(time.Second, clock)
	fc.Update(1)
	clock.Advance(time.Millisecond)
	fc.Update(1)
	fc.Reset()
	if fc.Samples() != 0 || fc.Frequency() != 0 {
		t.Errorf("after Reset: Samples=%d Frequency=%v", fc.Samples(), fc.Frequency())
	}
}
