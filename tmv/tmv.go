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

// Package tmv implements the scalar time-value type the clock core uses
// internally to represent offsets, delays and timestamps as signed
// nanosecond counts, independent of how they were captured or where they
// will be sent.
package tmv

import (
	"time"

	ptp "github.com/quietremote/ptpd/protocol"
)

// T is a signed count of nanoseconds. It plays the role linuxptp's tmv_t
// plays: every offset, delay and timestamp the clock core touches is
// converted to a T as soon as it crosses into this package, and back out
// again only at the edges (wire TLVs, syscalls).
type T int64

// Zero is the additive identity.
const Zero T = 0

// Add returns a+b.
func Add(a, b T) T { return a + b }

// Sub returns a-b.
func Sub(a, b T) T { return a - b }

// Div returns a/n.
func Div(a T, n int64) T { return a / T(n) }

// Eq reports whether a and b hold the same value.
func Eq(a, b T) bool { return a == b }

// IsZero reports whether t is exactly zero.
func IsZero(t T) bool { return t == 0 }

// Dbl returns t as a float64 number of nanoseconds, for use in ratio
// computations where integer division would lose precision.
func Dbl(t T) float64 { return float64(t) }

// FromDuration converts a time.Duration to T.
func FromDuration(d time.Duration) T { return T(d) }

// Duration converts T to a time.Duration.
func (t T) Duration() time.Duration { return time.Duration(t) }

// FromTime converts an absolute time.Time to T, counting nanoseconds
// since the Unix epoch the same way linuxptp's timestamp_to_tmv treats a
// captured struct timespec/timestamp.
func FromTime(ts time.Time) T {
	return T(ts.UnixNano())
}

// Time converts a T produced by FromTime back to a time.Time.
func (t T) Time() time.Time {
	return time.Unix(0, int64(t))
}

// FromTimeInterval converts a wire scaled-nanosecond TimeInterval (as
// carried in Announce/Sync/FollowUp correction fields and management
// datasets) to T.
func FromTimeInterval(ti ptp.TimeInterval) T {
	return T(ti.Nanoseconds())
}

// ToTimeInterval converts t to the wire scaled-nanosecond representation.
func (t T) ToTimeInterval() ptp.TimeInterval {
	return ptp.NewTimeInterval(float64(t))
}

// Abs returns the absolute value of t.
func (t T) Abs() T {
	if t < 0 {
		return -t
	}
	return t
}
