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

package port

import ptp "github.com/quietremote/ptpd/protocol"

// BestRef names the clock-wide best master clock by the port that heard
// it, rather than by holding a copy of (or a raw pointer into) that
// port's ForeignClock. A generation counter invalidates stale refs across
// a state-decision pass: any BestRef captured before a re-run compares
// unequal to the one captured after, even if the winning port happens to
// be the same, so callers never compare a ForeignClock to one a port has
// since overwritten.
type BestRef struct {
	PortIdentity ptp.PortIdentity
	generation   uint64
}

// Generation identifies the state-decision pass a BestRef was captured
// in.
func (r BestRef) Generation() uint64 {
	return r.generation
}

// Valid reports whether r names a port at all (the zero value never
// resolves to anything).
func (r BestRef) Valid() bool {
	return r.generation != 0
}

// BestRefTracker hands out BestRef values tagged with a monotonic
// generation counter and resolves them back against a live port set,
// so the clock core can hold a "best master" handle across a poll cycle
// without aliasing a specific ForeignClock value that may be overwritten
// or freed by the next Announce a port receives.
type BestRefTracker struct {
	generation uint64
}

// Advance starts a new generation and returns a BestRef naming portID as
// the clock-wide best for that generation.
func (t *BestRefTracker) Advance(portID ptp.PortIdentity) BestRef {
	t.generation++
	return BestRef{PortIdentity: portID, generation: t.generation}
}

// Current reports the generation counter's present value.
func (t *BestRefTracker) Current() uint64 {
	return t.generation
}

// Stale reports whether ref was captured in an earlier generation than
// the tracker's current one.
func (t *BestRefTracker) Stale(ref BestRef) bool {
	return ref.generation != t.generation
}

// Resolve looks up the ForeignClock a BestRef names among the given
// ports. It returns nil if ref is stale, invalid, or its port is no
// longer present.
func (t *BestRefTracker) Resolve(ref BestRef, ports []Port) *ForeignClock {
	if !ref.Valid() || t.Stale(ref) {
		return nil
	}
	for _, p := range ports {
		if p.Identity() == ref.PortIdentity {
			return p.BestForeign()
		}
	}
	return nil
}
