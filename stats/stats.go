/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"math"

	"github.com/eclesh/welford"
)

// Stat accumulates one quantity (offset, frequency, or path delay) over a
// fixed-size window and reports rms/max/mean/stddev, the way clock.c's
// "struct stats" and stats_add_value/stats_get_result do, backed by a
// running-variance estimator instead of a full sample buffer.
type Stat struct {
	w        *welford.Stats
	max      float64
	sqSum    float64
	maxCount int
	count    int
}

// NewStat returns a Stat that summarizes after maxCount samples.
func NewStat(maxCount int) *Stat {
	return &Stat{w: welford.New(), maxCount: maxCount}
}

// Add records one sample.
func (s *Stat) Add(value float64) {
	s.w.Add(value)
	s.sqSum += value * value
	abs := value
	if abs < 0 {
		abs = -abs
	}
	if abs > s.max {
		s.max = abs
	}
	s.count++
}

// Full reports whether the window has collected maxCount samples.
func (s *Stat) Full() bool { return s.maxCount > 0 && s.count >= s.maxCount }

// Result is the summary clock_stats_update logs once a window fills:
// root-mean-square, peak absolute value, mean and standard deviation.
type Result struct {
	RMS    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Result computes the current window's summary.
func (s *Stat) Result() Result {
	if s.count == 0 {
		return Result{}
	}
	return Result{
		RMS:    math.Sqrt(s.sqSum / float64(s.count)),
		Max:    s.max,
		Mean:   s.w.Mean(),
		StdDev: s.w.Stddev(),
	}
}

// Reset clears the window, the way clock_stats_update resets offset/freq/delay
// after each log line.
func (s *Stat) Reset() {
	s.w = welford.New()
	s.max = 0
	s.sqSum = 0
	s.count = 0
}

// ClockStats bundles the three windows clock_stats_update maintains:
// offset, frequency adjustment, and (when measured) path delay.
type ClockStats struct {
	Offset *Stat
	Freq   *Stat
	Delay  *Stat // nil unless NewClockStats was called with withDelay; clockcore.Core passes false
}

// NewClockStats returns a ClockStats with the given window size, delay
// included only if withDelay is true (clock.c only allocates c->stats.delay
// once clock_path_delay/clock_peer_delay have produced a measurement).
func NewClockStats(maxCount int, withDelay bool) *ClockStats {
	cs := &ClockStats{
		Offset: NewStat(maxCount),
		Freq:   NewStat(maxCount),
	}
	if withDelay {
		cs.Delay = NewStat(maxCount)
	}
	return cs
}

// Full reports whether the offset window (the one always present) has
// collected a full batch.
func (c *ClockStats) Full() bool { return c.Offset.Full() }

// ResetAll clears every window after a summary has been produced.
func (c *ClockStats) ResetAll() {
	c.Offset.Reset()
	c.Freq.Reset()
	if c.Delay != nil {
		c.Delay.Reset()
	}
}
