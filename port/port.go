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

// Package port declares the contract the clock core drives each PTP port
// through. The state machine that sends and receives wire messages lives
// outside this module (a real Transport-backed implementation is a
// collaborator, not part of the clock aggregator); this package carries
// only the interface, the foreign-master bookkeeping the BMC algorithm
// reads, and a minimal in-memory double used to exercise the clock core's
// own tests.
package port

import (
	ptp "github.com/quietremote/ptpd/protocol"
)

// Event is the tagged union of outcomes a port can report back to the
// clock core after an I/O-ready dispatch or a state-decision pass,
// mirroring the enum event_t from clock.c/port.c.
type Event uint8

// Events a Port can raise.
const (
	EventNone Event = iota
	EventStateDecision
	EventAnnounceReceiptTimeoutExpires
	EventSynchronizationFault
	EventFaultDetected
	EventRsGrandMaster
	EventRsMaster
	EventRsSlave
	EventRsPassive
	EventFaultCleared
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "NONE"
	case EventStateDecision:
		return "STATE_DECISION"
	case EventAnnounceReceiptTimeoutExpires:
		return "ANNOUNCE_RECEIPT_TIMEOUT_EXPIRES"
	case EventSynchronizationFault:
		return "SYNCHRONIZATION_FAULT"
	case EventFaultDetected:
		return "FAULT_DETECTED"
	case EventRsGrandMaster:
		return "RS_GRAND_MASTER"
	case EventRsMaster:
		return "RS_MASTER"
	case EventRsSlave:
		return "RS_SLAVE"
	case EventRsPassive:
		return "RS_PASSIVE"
	case EventFaultCleared:
		return "FAULT_CLEARED"
	}
	return "UNKNOWN_EVENT"
}

// ForeignClock is the dataset extracted from a port's most recently
// qualified Announce message, the raw material bmc.Dscmp compares to pick
// a best master clock, grounded on clock.c's "struct foreign_clock".
type ForeignClock struct {
	PortIdentity ptp.PortIdentity
	Announce     *ptp.Announce
}

// Port is every operation the clock core performs against a PTP port: its
// identity, current state, the descriptors to poll, a way to turn a
// ready descriptor into an Event, its most recently qualified Announce
// (the input to BMC), and a way to hand it a management message to
// either answer directly or relay onward.
type Port interface {
	// Identity returns the port's PortIdentity.
	Identity() ptp.PortIdentity
	// State returns the port's current PortState.
	State() ptp.PortState
	// FDs returns the file descriptors the event loop should poll for
	// this port (event socket, general socket). The clock core polls
	// each port's fault timer in a slot of its own, outside this slice.
	FDs() []int
	// EventForSlot turns a ready poll slot into the Event it represents.
	EventForSlot(slot int) (Event, error)
	// BestForeign returns the dataset of the best Announce this port has
	// currently qualified, or nil if the port has heard no qualifying
	// master.
	BestForeign() *ForeignClock
	// Dispatch applies a decided Event (and, for RS_* events, whether the
	// best master clock actually changed) to the port's own state
	// machine.
	Dispatch(ev Event, freshBest bool) error
	// Manage hands the port a management message addressed to it (or
	// forwarded to it); it returns true if the port answered it.
	Manage(mgmt ptp.ManagementPacket) (bool, error)
	// Forward serializes mgmt through this port's wire codec exactly
	// once and sends it out, the relaying half of the management
	// fabric (clock_forward_mgmt_frame in clock.c).
	Forward(mgmt ptp.ManagementPacket) error
	// Forwarding reports whether this port currently participates in
	// management message relaying (clock.c's forwarding(): MASTER,
	// GRAND_MASTER, SLAVE, UNCALIBRATED, PRE_MASTER all qualify).
	Forwarding() bool
}

// Forwarding reports whether state qualifies for management relaying.
func Forwarding(state ptp.PortState) bool {
	switch state {
	case ptp.PortStateMaster, ptp.PortStateGrandMaster, ptp.PortStateSlave,
		ptp.PortStateUncalibrated, ptp.PortStatePreMaster:
		return true
	}
	return false
}
