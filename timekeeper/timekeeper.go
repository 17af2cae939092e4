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

// Package timekeeper discplines a local clock: it reads and writes the
// frequency offset and applies time steps, the two primitives the clock
// core's servo loop needs regardless of which clock (a PHC, or the system
// clock) is being steered.
package timekeeper

import "time"

// Timekeeper is the clock-discipline capability the clock core depends on.
// clock_ppb/clock_ppb_read/clock_step in clock.c are the three operations
// this interface exposes; Now lets free-running frequency-ratio estimation
// (clock_no_adjust) capture ingress timestamps without depending on a
// particular clock source.
type Timekeeper interface {
	// ReadPPB reads the clock's current frequency offset in parts per billion.
	ReadPPB() (float64, error)
	// WritePPB sets the clock's frequency offset in parts per billion.
	WritePPB(freqPPB float64) error
	// Step steps the clock's time by the given signed duration.
	Step(step time.Duration) error
	// Now returns the clock's current time.
	Now() (time.Time, error)
}

// MaxFreqPPB is the default frequency adjustment limit honored by servos
// before they hand a value to a Timekeeper, mirroring phc.DefaultMaxClockFreqPPB.
const MaxFreqPPB = 500000.0

// ppbToTimexPPM converts a PPB frequency offset to the timex ppm scale
// (16-bit fractional parts-per-million), man clock_adjtime(2).
const ppbToTimexPPM = 65.536
