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
	"testing"

	"github.com/stretchr/testify/require"

	ptp "github.com/quietremote/ptpd/protocol"
)

func testIdentity(n uint16) ptp.PortIdentity {
	return ptp.PortIdentity{ClockIdentity: ptp.ClockIdentity(1), PortNumber: n}
}

func TestForwarding(t *testing.T) {
	require.True(t, Forwarding(ptp.PortStateMaster))
	require.True(t, Forwarding(ptp.PortStateGrandMaster))
	require.True(t, Forwarding(ptp.PortStateSlave))
	require.False(t, Forwarding(ptp.PortStateListening))
	require.False(t, Forwarding(ptp.PortStatePassive))
}

func TestSimPortDispatchMovesState(t *testing.T) {
	p := NewSimPort(testIdentity(1))
	require.Equal(t, ptp.PortStateListening, p.State())

	require.NoError(t, p.Dispatch(EventRsSlave, true))
	require.Equal(t, ptp.PortStateSlave, p.State())
	require.Len(t, p.Dispatched, 1)
	require.True(t, p.Dispatched[0].FreshBest)
}

func TestSimPortBestForeign(t *testing.T) {
	p := NewSimPort(testIdentity(1))
	require.Nil(t, p.BestForeign())

	fc := &ForeignClock{PortIdentity: testIdentity(1), Announce: &ptp.Announce{}}
	p.SetBestForeign(fc)
	require.Same(t, fc, p.BestForeign())
}

func TestSimPortEventForSlotConsumesFaultOnce(t *testing.T) {
	p := NewSimPort(testIdentity(1))
	p.FaultEvent = EventFaultDetected

	ev, err := p.EventForSlot(0)
	require.NoError(t, err)
	require.Equal(t, EventFaultDetected, ev)

	ev, err = p.EventForSlot(0)
	require.NoError(t, err)
	require.Equal(t, EventNone, ev)
}

func TestSimPortEventForSlotOutOfRange(t *testing.T) {
	p := NewSimPort(testIdentity(1))
	_, err := p.EventForSlot(5)
	require.Error(t, err)
}

func TestSimPortManageRecordsAndAnswers(t *testing.T) {
	p := NewSimPort(testIdentity(1))
	mgmt := &ptp.ManagementMsgDefaultDataSet{}

	answered, err := p.Manage(mgmt)
	require.NoError(t, err)
	require.True(t, answered)
	require.Len(t, p.Managed, 1)

	no := false
	p.Answer = &no
	answered, err = p.Manage(mgmt)
	require.NoError(t, err)
	require.False(t, answered)
}

func TestSimPortForwardRecordsAndErrors(t *testing.T) {
	p := NewSimPort(testIdentity(1))
	mgmt := &ptp.ManagementMsgDefaultDataSet{}

	require.NoError(t, p.Forward(mgmt))
	require.Len(t, p.Forwarded, 1)

	p.ForwardErr = fmt.Errorf("send failed")
	require.Error(t, p.Forward(mgmt))
	require.Len(t, p.Forwarded, 1)
}

func TestBestRefTrackerAdvanceAndResolve(t *testing.T) {
	var tracker BestRefTracker
	p1 := NewSimPort(testIdentity(1))
	p2 := NewSimPort(testIdentity(2))
	fc := &ForeignClock{PortIdentity: testIdentity(1), Announce: &ptp.Announce{}}
	p1.SetBestForeign(fc)
	ports := []Port{p1, p2}

	ref := tracker.Advance(testIdentity(1))
	require.True(t, ref.Valid())
	require.Same(t, fc, tracker.Resolve(ref, ports))

	tracker.Advance(testIdentity(2))
	require.True(t, tracker.Stale(ref))
	require.Nil(t, tracker.Resolve(ref, ports))
}

func TestBestRefZeroValueInvalid(t *testing.T) {
	var ref BestRef
	require.False(t, ref.Valid())
}
