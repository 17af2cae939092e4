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

package config

import (
	"fmt"

	"github.com/jsimonetti/rtnetlink/rtnl"

	ptp "github.com/quietremote/ptpd/protocol"
)

// ResolveClockIdentity derives a ClockIdentity from iface's hardware
// address over netlink, the same role NewClockIdentity plays everywhere
// else in the pack it's fed a MAC from. Used when Config.ClockIdentity is
// left unset in favor of PrimaryInterface.
func ResolveClockIdentity(iface string) (ptp.ClockIdentity, error) {
	conn, err := rtnl.Dial(nil)
	if err != nil {
		return 0, fmt.Errorf("config: opening netlink connection: %w", err)
	}
	defer conn.Close()

	link, err := conn.Link(0, iface)
	if err != nil {
		return 0, fmt.Errorf("config: looking up interface %s: %w", iface, err)
	}

	if len(link.Attributes.Address) == 0 {
		return 0, fmt.Errorf("config: interface %s has no hardware address", iface)
	}

	id, err := ptp.NewClockIdentity(link.Attributes.Address)
	if err != nil {
		return 0, fmt.Errorf("config: deriving clock identity from %s: %w", iface, err)
	}
	return id, nil
}

// ResolveClockIdentity picks Config.ClockIdentity when set, otherwise
// derives one from PrimaryInterface's MAC address.
func (c *Config) ResolveClockIdentity() (ptp.ClockIdentity, error) {
	if c.ClockIdentity != 0 {
		return c.ClockIdentity, nil
	}
	return ResolveClockIdentity(c.PrimaryInterface)
}
