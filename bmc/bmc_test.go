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

import (
	"testing"

	"github.com/stretchr/testify/require"

	ptp "github.com/quietremote/ptpd/protocol"
)

func announce(gmIdentity ptp.ClockIdentity, prio1, prio2 uint8, class ptp.ClockClass) *ptp.Announce {
	a := &ptp.Announce{}
	a.GrandmasterIdentity = gmIdentity
	a.GrandmasterPriority1 = prio1
	a.GrandmasterPriority2 = prio2
	a.GrandmasterClockQuality.ClockClass = class
	return a
}

func TestDscmpPriority1Wins(t *testing.T) {
	a := announce(1, 100, 128, ptp.ClockClass6)
	b := announce(2, 110, 128, ptp.ClockClass6)
	require.Equal(t, ABetter, Dscmp(a, b))
	require.Equal(t, BBetter, Dscmp(b, a))
}

func TestDscmpIdenticalIsUnknown(t *testing.T) {
	a := announce(1, 100, 128, ptp.ClockClass6)
	b := announce(1, 100, 128, ptp.ClockClass6)
	require.Equal(t, Unknown, Dscmp(a, b))
}

func TestDscmp2StepsRemoved(t *testing.T) {
	a := &ptp.Announce{}
	a.StepsRemoved = 1
	b := &ptp.Announce{}
	b.StepsRemoved = 3
	require.Equal(t, ABetter, Dscmp2(a, b))
}

func TestStateDecisionNoForeignMasterIsGrandMaster(t *testing.T) {
	require.Equal(t, DecisionGrandMaster, StateDecision(false, false, false))
}

func TestStateDecisionBestPortIsSlave(t *testing.T) {
	require.Equal(t, DecisionSlave, StateDecision(true, true, false))
}

func TestStateDecisionOtherPortsPassiveOrMaster(t *testing.T) {
	require.Equal(t, DecisionPassive, StateDecision(true, false, true))
	require.Equal(t, DecisionMaster, StateDecision(true, false, false))
}
