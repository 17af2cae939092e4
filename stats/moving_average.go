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

// Package stats accumulates the offset/frequency/delay samples the clock
// core produces on every synchronization, the way linuxptp's clock.c
// tracks a moving average of path delay plus periodic rms/max/stddev
// summaries for diagnostics.
package stats

import "github.com/quietremote/ptpd/tmv"

// DefaultMovingAverageLength is clock.c's MAVE_LENGTH: the default number
// of path-delay samples averaged together before being handed to the
// synchronization pipeline.
const DefaultMovingAverageLength = 10

// MovingAverage is a fixed-length ring of path-delay samples, grounded on
// clock.c's "struct mave"/mave_accumulate/mave_reset.
type MovingAverage struct {
	samples []tmv.T
	length  int
	next    int
	filled  bool
}

// NewMovingAverage returns a MovingAverage of the given length (clock.c's
// MAVE_LENGTH if length <= 0).
func NewMovingAverage(length int) *MovingAverage {
	if length <= 0 {
		length = DefaultMovingAverageLength
	}
	return &MovingAverage{samples: make([]tmv.T, length), length: length}
}

// Accumulate adds a new sample and returns the resulting average, the way
// mave_accumulate both updates and reads the running average in one call.
func (m *MovingAverage) Accumulate(sample tmv.T) tmv.T {
	m.samples[m.next] = sample
	m.next = (m.next + 1) % m.length
	if m.next == 0 {
		m.filled = true
	}
	n := m.length
	if !m.filled {
		n = m.next
		if n == 0 {
			n = 1
		}
	}
	var sum tmv.T
	count := n
	if m.filled {
		count = m.length
	}
	for i := 0; i < count; i++ {
		sum = tmv.Add(sum, m.samples[i])
	}
	return tmv.Div(sum, int64(count))
}

// Reset clears the accumulated samples, the way a fresh best master clock
// selection resets clock.c's avg_delay via mave_reset.
func (m *MovingAverage) Reset() {
	for i := range m.samples {
		m.samples[i] = 0
	}
	m.next = 0
	m.filled = false
}
