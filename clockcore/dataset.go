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

// Package clockcore implements the clock aggregator: it owns a clock's
// PTP ports, runs Best Master Clock selection across them, drives a
// servo, steers a timekeeper, estimates path delay and frequency ratio,
// and routes PTP management messages. Everything else (per-port state
// machines, transports, servo math, hardware clock access) is a
// collaborator reached through an interface.
package clockcore

import (
	ptp "github.com/quietremote/ptpd/protocol"
	"github.com/quietremote/ptpd/tmv"
)

// PathTraceMax bounds ParentDS's path trace the way clock.c's
// PATH_TRACE_MAX does.
const PathTraceMax = 32

// DefaultDS holds the clock's properties fixed at construction time,
// clock.c's "struct defaultDS".
type DefaultDS struct {
	ClockIdentity ptp.ClockIdentity
	ClockQuality  ptp.ClockQuality
	Priority1     uint8
	Priority2     uint8
	DomainNumber  uint8
	NumberPorts   uint16
	SlaveOnly     bool
	FreeRunning   bool
}

// CurrentDS is the mutable summary of the clock's present synchronization
// state, clock.c's "struct currentDS".
type CurrentDS struct {
	StepsRemoved     uint16
	OffsetFromMaster tmv.T
	MeanPathDelay    tmv.T
}

// ParentDS names the port this clock tracks (or its own identity, when it
// is the grandmaster) plus the grandmaster's attributes, clock.c's
// "struct parentDS".
type ParentDS struct {
	ParentPortIdentity      ptp.PortIdentity
	GrandmasterIdentity     ptp.ClockIdentity
	GrandmasterClockQuality ptp.ClockQuality
	GrandmasterPriority1    uint8
	GrandmasterPriority2    uint8
	PathTrace               []ptp.ClockIdentity
}

// TimePropertiesDS describes how this PTP domain's time relates to UTC,
// clock.c's "struct timePropertiesDS".
type TimePropertiesDS struct {
	CurrentUTCOffset int16
	Flags            uint8
	TimeSource       ptp.TimeSource
}

// TimeStatus is the servo-facing snapshot TIME_STATUS_NP reports,
// clock.c's "struct clock.status" plus the fields computed on demand in
// clock_management_get_response.
type TimeStatus struct {
	MasterOffsetNS             int64
	IngressTimeNS              int64
	CumulativeScaledRateOffset float64 // (nrr - 1), pre-scaling
	GrandmasterIdentity        ptp.ClockIdentity
}

// GMPresent reports whether a grandmaster other than the local clock is
// currently tracked, the flag TIME_STATUS_NP derives from comparing
// GrandmasterIdentity to DefaultDS.ClockIdentity.
func (ts TimeStatus) GMPresent(self ptp.ClockIdentity) bool {
	return ts.GrandmasterIdentity != self
}

// FrequencyEstimator computes the apparent local-clock error against a
// free-running master by comparing two widely separated Sync samples,
// clock.c's "struct freq_estimator".
type FrequencyEstimator struct {
	origin1  tmv.T
	ingress1 tmv.T
	set      bool
	count    int
	maxCount int
}

// NewFrequencyEstimator returns an estimator with the given max_count.
func NewFrequencyEstimator(maxCount int) *FrequencyEstimator {
	if maxCount < 1 {
		maxCount = 1
	}
	return &FrequencyEstimator{maxCount: maxCount}
}

// Reset clears the captured reference pair, forcing the next sync to
// re-seed it (clock.c resets this on every fresh best master clock).
func (f *FrequencyEstimator) Reset() {
	f.set = false
	f.count = 0
}

// SetMaxCount updates the window length, as SetSyncInterval recalibration does.
func (f *FrequencyEstimator) SetMaxCount(maxCount int) {
	if maxCount < 1 {
		maxCount = 1
	}
	f.maxCount = maxCount
}

// MaxCount reports the estimator's current window length.
func (f *FrequencyEstimator) MaxCount() int { return f.maxCount }

// FreqEstMaxCount computes max_count = 1 << max(0, interval-n), saturating
// at 62 bits the way clock.c's integer shift does, with the caller
// responsible for logging the saturation warning.
func FreqEstMaxCount(interval, n int) (maxCount int, saturated bool) {
	shift := interval - n
	if shift < 0 {
		shift = 0
	}
	if shift >= 62 {
		return 1 << 62, true
	}
	return 1 << uint(shift), false
}
