package throttle

import "fmt"

// ShouldAnalyze reports whether the frame at frameIndex (1-based) is an analysis frame.
// An interval below 1 never analyzes.
func ShouldAnalyze(frameIndex, interval int) bool {
	if interval < 1 {
		return false
	}
	return frameIndex%interval == 0
}

// Throttle counts frames and gates analysis to every interval-th one.
type Throttle struct {
	interval int
	count    int
}

// New returns a Throttle with a zero counter. Interval must be >= 1.
func New(interval int) (*Throttle, error) {
	if interval < 1 {
		return nil, fmt.Errorf("interval must be >= 1, got %d", interval)
	}
	return &Throttle{interval: interval}, nil
}

// Next advances the counter and returns the new frame index and the gate decision.
func (t *Throttle) Next() (int, bool) {
	t.count++
	return t.count, ShouldAnalyze(t.count, t.interval)
}

// Count is the number of frames seen so far.
func (t *Throttle) Count() int { return t.count }

// Interval returns the configured interval.
func (t *Throttle) Interval() int { return t.interval }
