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

// Package bmc implements the Best Master Clock dataset comparison and the
// per-port state decision algorithm the clock core drives on every
// STATE_DECISION_EVENT.
package bmc

import (
	ptp "github.com/quietremote/ptpd/protocol"
)

// ComparisonResult is the outcome of comparing two Announce-derived datasets.
type ComparisonResult int8

const (
	// ABetterTopo means A is better on the topology tiebreak (lower sending port identity).
	ABetterTopo ComparisonResult = 2
	// ABetter means A is better based on Announce content (grandmaster quality).
	ABetter ComparisonResult = 1
	// Unknown means the two datasets are identical.
	Unknown ComparisonResult = 0
	// BBetter means B is better based on Announce content.
	BBetter ComparisonResult = -1
	// BBetterTopo means B is better based on network topology.
	BBetterTopo ComparisonResult = -2
)

// ComparePortIdentity orders two port identities, used to break topology ties.
func ComparePortIdentity(this, that ptp.PortIdentity) int64 {
	diff := int64(this.ClockIdentity) - int64(that.ClockIdentity)
	if diff == 0 {
		diff = int64(this.PortNumber) - int64(that.PortNumber)
	}
	return diff
}

// Dscmp2 finds the better Announce based on network topology: a
// steps-removed difference of two or more decides outright (ABetter or
// BBetter); otherwise the lower sending port identity wins (ABetterTopo or
// BBetterTopo).
func Dscmp2(a, b *ptp.Announce) ComparisonResult {
	if a.StepsRemoved+1 < b.StepsRemoved {
		return ABetter
	}
	if b.StepsRemoved+1 < a.StepsRemoved {
		return BBetter
	}

	diff := ComparePortIdentity(a.SourcePortIdentity, b.SourcePortIdentity)
	if diff < 0 {
		return ABetterTopo
	}
	if diff > 0 {
		return BBetterTopo
	}
	return Unknown
}

// Dscmp finds the better Announce based on its full dataset: Announces from
// the same grandmaster are compared by topology (Dscmp2); otherwise
// priority1, clock class, clock accuracy, offset scaled log variance and
// priority2 are compared in turn, and the lower grandmaster identity breaks
// a remaining tie, per the IEEE 1588 data set comparison algorithm.
func Dscmp(a, b *ptp.Announce) ComparisonResult {
	if a.AnnounceBody == b.AnnounceBody {
		return Unknown
	}
	diff := int64(a.GrandmasterIdentity) - int64(b.GrandmasterIdentity)
	if diff == 0 {
		return Dscmp2(a, b)
	}
	if a.GrandmasterPriority1 < b.GrandmasterPriority1 {
		return ABetter
	}
	if a.GrandmasterPriority1 > b.GrandmasterPriority1 {
		return BBetter
	}

	if a.GrandmasterClockQuality.ClockClass < b.GrandmasterClockQuality.ClockClass {
		return ABetter
	}
	if a.GrandmasterClockQuality.ClockClass > b.GrandmasterClockQuality.ClockClass {
		return BBetter
	}
	if a.GrandmasterClockQuality.ClockAccuracy < b.GrandmasterClockQuality.ClockAccuracy {
		return ABetter
	}
	if a.GrandmasterClockQuality.ClockAccuracy > b.GrandmasterClockQuality.ClockAccuracy {
		return BBetter
	}
	if a.GrandmasterClockQuality.OffsetScaledLogVariance < b.GrandmasterClockQuality.OffsetScaledLogVariance {
		return ABetter
	}
	if a.GrandmasterClockQuality.OffsetScaledLogVariance > b.GrandmasterClockQuality.OffsetScaledLogVariance {
		return BBetter
	}
	if a.GrandmasterPriority2 < b.GrandmasterPriority2 {
		return ABetter
	}
	if a.GrandmasterPriority2 > b.GrandmasterPriority2 {
		return BBetter
	}
	if diff < 0 {
		return ABetter
	}
	return BBetter
}
