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

package clockcore

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	ptp "github.com/quietremote/ptpd/protocol"
	"github.com/quietremote/ptpd/port"
)

type slotKind uint8

const (
	slotData slotKind = iota
	slotFault
	slotMgmt
)

// pollSlot names what a flat poll-vector position corresponds to: a data
// port's own descriptor, that port's fault timer, or the management
// endpoint. Slot indices within a port's own FDs() are stable for the
// port's lifetime, per spec.md §9's fixed poll geometry note.
type pollSlot struct {
	kind    slotKind
	portIdx int
	slot    int
}

func (c *Core) buildPollSet() ([]unix.PollFd, []pollSlot) {
	var pfds []unix.PollFd
	var slots []pollSlot

	for i, p := range c.ports {
		for slot, fd := range p.FDs() {
			pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
			slots = append(slots, pollSlot{kind: slotData, portIdx: i, slot: slot})
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(c.faultFD(i)), Events: unix.POLLIN})
		slots = append(slots, pollSlot{kind: slotFault, portIdx: i})
	}
	for slot, fd := range c.mgmt.FDs() {
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		slots = append(slots, pollSlot{kind: slotMgmt, slot: slot})
	}
	return pfds, slots
}

// Run blocks in the poll-driven event loop until stop is closed or an
// unrecoverable poll error occurs. Shutdown is cooperative: stop is only
// observed between poll passes, since the loop's one suspension point is
// the blocking multiplexed wait itself, per spec.md §5.
func (c *Core) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if err := c.pollOnce(); err != nil {
			return err
		}
	}
}

// pollOnce runs exactly one pass of the event loop: block on poll, then
// dispatch every readable slot in registration order, then run the
// deferred state-decision and lost-master handling at most once each.
func (c *Core) pollOnce() error {
	pfds, slots := c.buildPollSet()

	_, err := unix.Poll(pfds, -1)
	if err == unix.EINTR {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clockcore: poll failed: %w", err)
	}

	sawStateDecision := false
	sawLost := false

	for i, pfd := range pfds {
		if pfd.Revents == 0 {
			continue
		}
		slot := slots[i]
		switch slot.kind {
		case slotData:
			p := c.ports[slot.portIdx]
			ev, err := p.EventForSlot(slot.slot)
			if err != nil {
				log.WithField("port", p.Identity()).WithError(err).Warning("clockcore: port_event failed")
				continue
			}
			if err := p.Dispatch(ev, false); err != nil {
				log.WithField("port", p.Identity()).WithError(err).Warning("clockcore: port_dispatch failed")
			}
			switch ev {
			case port.EventStateDecision:
				sawStateDecision = true
			case port.EventAnnounceReceiptTimeoutExpires:
				sawLost = true
			}
			if p.State() == ptp.PortStateFaulty {
				if err := c.armFault(slot.portIdx); err != nil {
					log.WithError(err).Warning("clockcore: arming fault timer failed")
				}
			}
		case slotFault:
			c.fireFault(slot.portIdx)
		case slotMgmt:
			// The management endpoint's event path is read (draining the
			// descriptor) but deliberately not dispatched through the
			// event switch above: preserved from the source, which reads
			// UDS events without routing them through port_dispatch.
			if _, err := c.mgmt.EventForSlot(slot.slot); err != nil {
				log.WithError(err).Warning("clockcore: management endpoint event read failed")
			}
		}
	}

	if sawStateDecision {
		c.handleStateDecisionEvent()
	}
	if sawLost {
		c.handleLostMaster()
	}
	return nil
}

// handleLostMaster implements spec.md §4.1's reset-to-self-grandmaster
// path: if, after a poll pass in which some port's announce receipt timer
// expired, every port is non-SLAVE, the clock resets its parent and time
// properties to self-as-grandmaster.
func (c *Core) handleLostMaster() {
	for _, p := range c.ports {
		if p.State() == ptp.PortStateSlave {
			return
		}
	}
	c.setParentSelf()
	c.TimeProperties = TimePropertiesDS{}
}
