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

import (
	"fmt"

	ptp "github.com/quietremote/ptpd/protocol"
)

// SimPort is a minimal in-memory stand-in for a real port, built only to
// exercise the clock core's own tests: it has no sockets, no timers, and
// no wire encoding. Fault and descriptor handling are deliberately bare
// bones; tests that need to drive a fault timer should set FaultEvent and
// pop it through EventForSlot directly rather than modeling real poll
// geometry.
type SimPort struct {
	identity   ptp.PortIdentity
	state      ptp.PortState
	best       *ForeignClock
	fds        []int
	FaultEvent Event

	// Dispatched records every call to Dispatch, in order, for tests to
	// assert on.
	Dispatched []DispatchCall

	// Managed records every management packet handed to Manage.
	Managed []ptp.ManagementPacket
	// Answer, if non-nil, is returned by Manage as the "did I answer"
	// bool; defaults to true.
	Answer *bool

	// Forwarded records every management packet handed to Forward, in order.
	Forwarded []ptp.ManagementPacket
	// ForwardErr, if non-nil, is returned by every call to Forward.
	ForwardErr error
}

// DispatchCall records one Dispatch invocation against a SimPort.
type DispatchCall struct {
	Event     Event
	FreshBest bool
}

// NewSimPort builds a SimPort starting in PortStateListening with no
// qualified foreign master.
func NewSimPort(identity ptp.PortIdentity) *SimPort {
	return &SimPort{
		identity: identity,
		state:    ptp.PortStateListening,
		fds:      []int{-1, -1},
	}
}

// Identity implements Port.
func (p *SimPort) Identity() ptp.PortIdentity { return p.identity }

// State implements Port.
func (p *SimPort) State() ptp.PortState { return p.state }

// SetState lets a test force the port into a given state directly.
func (p *SimPort) SetState(s ptp.PortState) { p.state = s }

// FDs implements Port.
func (p *SimPort) FDs() []int { return p.fds }

// EventForSlot implements Port. SimPort has no real descriptors; it
// reports FaultEvent once and then resets to EventNone, so a test can
// arm exactly one fault per poll cycle.
func (p *SimPort) EventForSlot(slot int) (Event, error) {
	if slot < 0 || slot >= len(p.fds) {
		return EventNone, fmt.Errorf("port %s: no poll slot %d", p.identity, slot)
	}
	ev := p.FaultEvent
	p.FaultEvent = EventNone
	return ev, nil
}

// SetBestForeign lets a test seed the Announce this port has qualified.
func (p *SimPort) SetBestForeign(fc *ForeignClock) { p.best = fc }

// BestForeign implements Port.
func (p *SimPort) BestForeign() *ForeignClock { return p.best }

// Dispatch implements Port: it records the call and moves state per the
// RS_* event it was given, matching port_state_update() in clock.c
// closely enough for the clock core's own tests.
func (p *SimPort) Dispatch(ev Event, freshBest bool) error {
	p.Dispatched = append(p.Dispatched, DispatchCall{Event: ev, FreshBest: freshBest})
	switch ev {
	case EventRsGrandMaster:
		p.state = ptp.PortStateGrandMaster
	case EventRsMaster:
		p.state = ptp.PortStateMaster
	case EventRsSlave:
		p.state = ptp.PortStateSlave
	case EventRsPassive:
		p.state = ptp.PortStatePassive
	}
	return nil
}

// Manage implements Port.
func (p *SimPort) Manage(mgmt ptp.ManagementPacket) (bool, error) {
	p.Managed = append(p.Managed, mgmt)
	if p.Answer != nil {
		return *p.Answer, nil
	}
	return true, nil
}

// Forward implements Port.
func (p *SimPort) Forward(mgmt ptp.ManagementPacket) error {
	if p.ForwardErr != nil {
		return p.ForwardErr
	}
	p.Forwarded = append(p.Forwarded, mgmt)
	return nil
}

// Forwarding implements Port.
func (p *SimPort) Forwarding() bool {
	return Forwarding(p.state)
}

var _ Port = (*SimPort)(nil)
