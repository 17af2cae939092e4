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

package bmc

import ptp "github.com/quietremote/ptpd/protocol"

// Decision is the outcome of the per-port state-decision algorithm run
// once a fresh best master clock has been picked, the Go shape of the
// state each port's bmc_state_decision() produces in clock.c.
type Decision uint8

// Per-port decisions. Listening and Fault are degenerate outcomes: a port
// with no qualifying Announce yet stays Listening, and any decision this
// package doesn't recognize maps to Fault so the caller can flag it.
const (
	DecisionListening Decision = iota
	DecisionGrandMaster
	DecisionMaster
	DecisionPassive
	DecisionSlave
	DecisionFault
)

func (d Decision) String() string {
	switch d {
	case DecisionListening:
		return "LISTENING"
	case DecisionGrandMaster:
		return "GRAND_MASTER"
	case DecisionMaster:
		return "MASTER"
	case DecisionPassive:
		return "PASSIVE"
	case DecisionSlave:
		return "SLAVE"
	case DecisionFault:
		return "FAULT"
	}
	return "UNKNOWN_DECISION"
}

// ToPortState converts a Decision to the corresponding PortState, the
// direction port_state_update() pushes it in clock.c.
func (d Decision) ToPortState() ptp.PortState {
	switch d {
	case DecisionListening:
		return ptp.PortStateListening
	case DecisionGrandMaster:
		return ptp.PortStateGrandMaster
	case DecisionMaster:
		return ptp.PortStateMaster
	case DecisionPassive:
		return ptp.PortStatePassive
	case DecisionSlave:
		return ptp.PortStateSlave
	}
	return ptp.PortStateFaulty
}

// StateDecision decides a single port's next state once the clock-wide
// best master clock has been chosen:
//
//   - haveForeignMaster reports whether any port heard a qualifying
//     foreign Announce at all; if not, every port is this clock's own
//     Announce segment and the clock is itself the grandmaster.
//   - isBestPort reports whether the clock-wide best was received on this
//     very port; that port becomes the slave tracking it.
//   - ownBeatsBest reports whether Dscmp(this port's own best received
//     Announce, the clock-wide best) favors (or ties) this port's own
//     dataset — meaning this port sits on a path back toward the same or
//     a better master, so it must stay passive rather than advertise.
func StateDecision(haveForeignMaster, isBestPort, ownBeatsBest bool) Decision {
	if !haveForeignMaster {
		return DecisionGrandMaster
	}
	if isBestPort {
		return DecisionSlave
	}
	if ownBeatsBest {
		return DecisionPassive
	}
	return DecisionMaster
}
