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

	"github.com/quietremote/ptpd/port"
)

// armFault arms data port i's fault back-off timer for 2^k seconds, where
// k is that port's configured fault_timeout exponent. Arming is a no-op
// while already armed: repeated faults before expiry are idempotent on
// the timer, per spec.md §4.7.
func (c *Core) armFault(i int) error {
	ft := &c.faults[i]
	if ft.armed {
		return nil
	}
	if ft.fd < 0 {
		fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK)
		if err != nil {
			return fmt.Errorf("clockcore: creating fault timer for port %s: %w", ft.portIdentity, err)
		}
		ft.fd = fd
	}
	seconds := int64(1) << uint(ft.exponent)
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(seconds * 1_000_000_000),
	}
	if err := unix.TimerfdSettime(ft.fd, 0, &spec, nil); err != nil {
		return fmt.Errorf("clockcore: arming fault timer for port %s: %w", ft.portIdentity, err)
	}
	ft.armed = true
	log.WithField("port", ft.portIdentity).WithField("seconds", seconds).
		Debug("clockcore: armed fault back-off timer")
	return nil
}

// disarmFault cancels data port i's fault timer without dispatching
// FAULT_CLEARED (firing is handled by fireFault). Nothing in this package
// calls it.
func (c *Core) disarmFault(i int) error {
	ft := &c.faults[i]
	if !ft.armed || ft.fd < 0 {
		return nil
	}
	zero := unix.ItimerSpec{}
	if err := unix.TimerfdSettime(ft.fd, 0, &zero, nil); err != nil {
		return fmt.Errorf("clockcore: disarming fault timer for port %s: %w", ft.portIdentity, err)
	}
	ft.armed = false
	return nil
}

// fireFault disarms data port i's fault timer and dispatches
// FAULT_CLEARED; called when the timer's descriptor is poll-readable.
func (c *Core) fireFault(i int) {
	ft := &c.faults[i]
	var buf [8]byte
	unix.Read(ft.fd, buf[:])
	ft.armed = false
	p := c.ports[i]
	if err := p.Dispatch(port.EventFaultCleared, false); err != nil {
		log.WithField("port", p.Identity()).Warning("clockcore: dispatching FAULT_CLEARED failed")
	}
}

// faultFD reports the poll descriptor for data port i's fault timer, or
// -1 if none has been created yet.
func (c *Core) faultFD(i int) int {
	return c.faults[i].fd
}
