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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quietremote/ptpd/port"
	ptp "github.com/quietremote/ptpd/protocol"
	"github.com/quietremote/ptpd/servo"
	"github.com/quietremote/ptpd/tmv"
)

// fakeServo is a minimal servo.Servo double: it returns whatever Next
// dictates and records every Sample call for assertions.
type fakeServo struct {
	Next        float64
	NextState   servo.State
	Samples     []tmv.T
	SyncSeconds []float64
	Unlocked    int
}

func (s *fakeServo) Sample(offset tmv.T, _ time.Time) (float64, servo.State) {
	s.Samples = append(s.Samples, offset)
	return s.Next, s.NextState
}

func (s *fakeServo) SyncInterval(seconds float64) { s.SyncSeconds = append(s.SyncSeconds, seconds) }
func (s *fakeServo) Unlock()                       { s.Unlocked++ }

var _ servo.Servo = (*fakeServo)(nil)

// fakeTimekeeper is a minimal timekeeper.Timekeeper double recording every
// actuation a test can assert against.
type fakeTimekeeper struct {
	PPBWrites []float64
	Steps     []time.Duration
	WriteErr  error
	StepErr   error
}

func (t *fakeTimekeeper) ReadPPB() (float64, error) { return 0, nil }

func (t *fakeTimekeeper) WritePPB(freqPPB float64) error {
	t.PPBWrites = append(t.PPBWrites, freqPPB)
	return t.WriteErr
}

func (t *fakeTimekeeper) Step(step time.Duration) error {
	t.Steps = append(t.Steps, step)
	return t.StepErr
}

func (t *fakeTimekeeper) Now() (time.Time, error) { return time.Unix(0, 0), nil }

func testIdentity(n uint16) ptp.PortIdentity {
	return ptp.PortIdentity{ClockIdentity: ptp.ClockIdentity(n), PortNumber: n}
}

func newTestCore(t *testing.T, sv servo.Servo, tk *fakeTimekeeper, dataPorts []port.Port) *Core {
	t.Helper()
	mgmt := port.NewSimPort(testIdentity(99))
	cfg := Config{
		FreqEstInterval: 4,
		StatsInterval:   0,
		LogSyncInterval: 0,
		ClockDesc:       "test clock",
		DefaultDS: DefaultDS{
			ClockIdentity: ptp.ClockIdentity(1),
			Priority1:     128,
			Priority2:     128,
		},
	}
	c, err := NewCore(cfg, sv, tk, dataPorts, mgmt)
	require.NoError(t, err)
	return c
}

func TestNewCoreRejectsMissingCollaborators(t *testing.T) {
	dp := []port.Port{port.NewSimPort(testIdentity(1))}
	mgmt := port.NewSimPort(testIdentity(99))
	sv := &fakeServo{}
	tk := &fakeTimekeeper{}

	_, err := NewCore(Config{}, nil, tk, dp, mgmt)
	require.Error(t, err)

	_, err = NewCore(Config{}, sv, nil, dp, mgmt)
	require.Error(t, err)

	_, err = NewCore(Config{}, sv, tk, dp, nil)
	require.Error(t, err)

	_, err = NewCore(Config{}, sv, tk, nil, mgmt)
	require.Error(t, err)
}

func TestNewCoreStartsAsOwnGrandmaster(t *testing.T) {
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{port.NewSimPort(testIdentity(1))})
	require.Equal(t, uint16(0), c.Current.StepsRemoved)
	require.Equal(t, c.Default.ClockIdentity, c.Parent.GrandmasterIdentity)
	require.Equal(t, c.Default.ClockIdentity, c.Status.GrandmasterIdentity)
	require.False(t, c.Status.GMPresent(c.Default.ClockIdentity))
}

// TestSynchronizeBeforePathDelayPublishesOffsetOnly exercises scenario 3:
// a Sync/FollowUp pair completed before any path delay has been measured
// publishes the raw offset but never touches the servo or timekeeper.
func TestSynchronizeBeforePathDelayPublishesOffsetOnly(t *testing.T) {
	sv := &fakeServo{}
	tk := &fakeTimekeeper{}
	c := newTestCore(t, sv, tk, []port.Port{port.NewSimPort(testIdentity(1))})

	state := c.Synchronize(tmv.T(1_000_000_000), tmv.T(999_999_000), 0, 0)

	require.Equal(t, servo.StateUnlocked, state)
	require.Equal(t, tmv.T(1000), c.Current.OffsetFromMaster)
	require.Empty(t, sv.Samples)
	require.Empty(t, tk.PPBWrites)
	require.Empty(t, tk.Steps)
}

// TestSynchronizeJumpStepsAndZeroesCapture exercises scenario 4: once a
// path delay is known and the servo asks for a JUMP, the core writes the
// negated frequency, steps the negated offset, and invalidates t1/t2.
func TestSynchronizeJumpStepsAndZeroesCapture(t *testing.T) {
	sv := &fakeServo{Next: 250.0, NextState: servo.StateJump}
	tk := &fakeTimekeeper{}
	c := newTestCore(t, sv, tk, []port.Port{port.NewSimPort(testIdentity(1))})
	c.Current.MeanPathDelay = tmv.T(500)

	state := c.Synchronize(tmv.T(950_500), tmv.T(1_000_000), 0, 0)

	require.Equal(t, servo.StateJump, state)
	require.Equal(t, tmv.T(-50_000), c.Current.OffsetFromMaster)
	require.Equal(t, []float64{-250.0}, tk.PPBWrites)
	require.Len(t, tk.Steps, 1)
	require.Equal(t, tmv.T(50_000).Duration(), tk.Steps[0])
	require.Equal(t, tmv.T(0), c.t1)
	require.Equal(t, tmv.T(0), c.t2)
}

func TestSynchronizeLockedWritesFrequencyOnly(t *testing.T) {
	sv := &fakeServo{Next: 10.0, NextState: servo.StateLocked}
	tk := &fakeTimekeeper{}
	c := newTestCore(t, sv, tk, []port.Port{port.NewSimPort(testIdentity(1))})
	c.Current.MeanPathDelay = tmv.T(500)

	state := c.Synchronize(tmv.T(1_000_000), tmv.T(999_000), 0, 0)

	require.Equal(t, servo.StateLocked, state)
	require.Equal(t, []float64{-10.0}, tk.PPBWrites)
	require.Empty(t, tk.Steps)
}

func TestSynchronizeFreeRunningNeverTouchesServo(t *testing.T) {
	sv := &fakeServo{Next: 10.0, NextState: servo.StateLocked}
	tk := &fakeTimekeeper{}
	c := newTestCore(t, sv, tk, []port.Port{port.NewSimPort(testIdentity(1))})
	c.Default.FreeRunning = true
	c.Current.MeanPathDelay = tmv.T(500)

	state := c.Synchronize(tmv.T(1_000_000), tmv.T(999_000), 0, 0)

	require.Equal(t, servo.StateUnlocked, state)
	require.Empty(t, sv.Samples)
	require.Empty(t, tk.PPBWrites)
}

func TestPathDelayFoldsIntoMovingAverage(t *testing.T) {
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{port.NewSimPort(testIdentity(1))})
	c.t1 = tmv.T(1000)
	c.t2 = tmv.T(2000)

	c.PathDelay(tmv.T(1100), tmv.T(2100), 0)

	require.Equal(t, tmv.T(1000), c.Current.MeanPathDelay)
}

func TestPeerDelayStoresDirectlyNoAveraging(t *testing.T) {
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{port.NewSimPort(testIdentity(1))})
	c.Current.MeanPathDelay = tmv.T(999)

	c.PeerDelay(tmv.T(42), 1.000000250)

	require.Equal(t, tmv.T(42), c.Current.MeanPathDelay)
	require.InDelta(t, 0.000000250, c.Status.CumulativeScaledRateOffset, 1e-12)
}

// TestNoAdjustWaitsForMaxCount exercises scenario 6: the estimator seeds a
// reference pair on its first sample and only logs a ratio once it has
// accumulated max_count further samples.
func TestNoAdjustWaitsForMaxCount(t *testing.T) {
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{port.NewSimPort(testIdentity(1))})
	c.freqEst.SetMaxCount(2)

	c.noAdjust(tmv.T(0), tmv.T(0))
	require.Equal(t, 0, c.freqEst.count)

	c.noAdjust(tmv.T(1_000_000_000), tmv.T(1_000_000_000))
	require.Equal(t, 1, c.freqEst.count)

	c.noAdjust(tmv.T(2_000_000_000), tmv.T(2_000_000_100))
	// max_count reached: estimator re-seeds with this sample as the new
	// reference pair.
	require.Equal(t, 0, c.freqEst.count)
	require.Equal(t, tmv.T(2_000_000_000), c.freqEst.origin1)
}

func TestSetSyncIntervalRecalibratesWindows(t *testing.T) {
	sv := &fakeServo{}
	c := newTestCore(t, sv, &fakeTimekeeper{}, []port.Port{port.NewSimPort(testIdentity(1))})

	c.SetSyncInterval(-3)

	require.Equal(t, -3, c.logSyncInterval)
	require.Equal(t, []float64{0.125}, sv.SyncSeconds)
}

func announceFrom(gmID uint64, priority1 uint8, stepsRemoved uint16) *ptp.Announce {
	return &ptp.Announce{
		AnnounceBody: ptp.AnnounceBody{
			GrandmasterPriority1: priority1,
			GrandmasterIdentity:  ptp.ClockIdentity(gmID),
			StepsRemoved:         stepsRemoved,
		},
	}
}

// TestHandleStateDecisionEventPicksBestAndDispatches exercises the bulk of
// the BMC wiring: two ports each qualify a foreign master, the better one
// wins, every port is dispatched the mapped event, and the winning port's
// announce becomes the new parent.
func TestHandleStateDecisionEventPicksBestAndDispatches(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	p2 := port.NewSimPort(testIdentity(2))
	p1.SetBestForeign(&port.ForeignClock{PortIdentity: p1.Identity(), Announce: announceFrom(100, 10, 0)})
	p2.SetBestForeign(&port.ForeignClock{PortIdentity: p2.Identity(), Announce: announceFrom(200, 200, 0)})

	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1, p2})
	c.handleStateDecisionEvent()

	require.Equal(t, ptp.ClockIdentity(100), c.Parent.GrandmasterIdentity)
	require.Equal(t, uint16(1), c.Current.StepsRemoved)
	require.Len(t, p1.Dispatched, 1)
	require.Equal(t, port.EventRsSlave, p1.Dispatched[0].Event)
	require.True(t, p1.Dispatched[0].FreshBest)
	require.Len(t, p2.Dispatched, 1)
	require.Equal(t, port.EventRsMaster, p2.Dispatched[0].Event)
}

func TestHandleStateDecisionEventNoCandidatesLeavesParentUnchanged(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1})
	before := c.Parent

	c.handleStateDecisionEvent()

	require.Equal(t, before, c.Parent)
	require.Empty(t, p1.Dispatched)
}

func TestHandleStateDecisionEventFreshBestResetsEstimators(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	p1.SetBestForeign(&port.ForeignClock{PortIdentity: p1.Identity(), Announce: announceFrom(100, 10, 0)})

	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1})
	c.Current.MeanPathDelay = tmv.T(777)
	c.freqEst.set = true

	c.handleStateDecisionEvent()

	require.Equal(t, tmv.T(0), c.Current.MeanPathDelay)
	require.False(t, c.freqEst.set)
}

// TestManageForwardsToOtherForwardingPorts exercises scenario 5: a
// management message received on one forwarding port relays out every
// other forwarding port (and the management endpoint), with
// boundaryHops decremented for the relay and restored afterward.
func TestManageForwardsToOtherForwardingPorts(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	p1.SetState(ptp.PortStateSlave)
	p2 := port.NewSimPort(testIdentity(2))
	p2.SetState(ptp.PortStateMaster)

	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1, p2})

	req := &ptp.ManagementMsgCurrentDataSet{
		ManagementMsgHead: ptp.ManagementMsgHead{
			Header:               ptp.Header{MessageLength: 54},
			TargetPortIdentity:   ptp.PortIdentity{ClockIdentity: ptp.AllOnesClockIdentity},
			BoundaryHops:         1,
			StartingBoundaryHops: 1,
			ActionField:          ptp.GET,
		},
		ManagementTLVHead: ptp.ManagementTLVHead{
			TLVHead:      ptp.TLVHead{LengthField: 2},
			ManagementID: ptp.IDCurrentDataSet,
		},
	}

	err := c.Manage(p1, req)
	require.NoError(t, err)

	require.Len(t, p2.Forwarded, 1)
	require.Equal(t, uint8(1), req.BoundaryHops)
	mgmtPort := c.mgmt.(*port.SimPort)
	require.Len(t, mgmtPort.Forwarded, 1)
	// p1 itself is skipped by the relay (it is the receiving port) but
	// still gets the clock-scope GET response handed back through it.
	require.Len(t, p1.Forwarded, 1)
	_, isResponse := p1.Forwarded[0].(*ptp.ManagementMsgCurrentDataSet)
	require.True(t, isResponse)
}

func TestManageAnswersClockScopeGet(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1})

	req := &ptp.ManagementMsgCurrentDataSet{
		ManagementMsgHead: ptp.ManagementMsgHead{
			Header:             ptp.Header{MessageLength: 54},
			TargetPortIdentity: ptp.PortIdentity{ClockIdentity: c.Default.ClockIdentity},
			ActionField:        ptp.GET,
		},
		ManagementTLVHead: ptp.ManagementTLVHead{
			TLVHead:      ptp.TLVHead{LengthField: 2},
			ManagementID: ptp.IDCurrentDataSet,
		},
	}

	err := c.Manage(p1, req)
	require.NoError(t, err)
	require.Len(t, p1.Forwarded, 1)

	resp, ok := p1.Forwarded[0].(*ptp.ManagementMsgCurrentDataSet)
	require.True(t, ok)
	require.Equal(t, ptp.RESPONSE, resp.ActionField)
	require.Equal(t, c.Current.StepsRemoved, resp.StepsRemoved)
}

func TestManageSetAgainstGetOnlyIDRepliesNotSupported(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1})

	req := &ptp.ManagementMsgCurrentDataSet{
		ManagementMsgHead: ptp.ManagementMsgHead{
			Header:             ptp.Header{MessageLength: 60},
			TargetPortIdentity: ptp.PortIdentity{ClockIdentity: c.Default.ClockIdentity},
			ActionField:        ptp.SET,
		},
		ManagementTLVHead: ptp.ManagementTLVHead{
			TLVHead:      ptp.TLVHead{LengthField: 8},
			ManagementID: ptp.IDCurrentDataSet,
		},
	}

	err := c.Manage(p1, req)
	require.NoError(t, err)
	require.Len(t, p1.Forwarded, 1)

	errResp, ok := p1.Forwarded[0].(*ptp.ManagementMsgErrorStatus)
	require.True(t, ok)
	require.Equal(t, ptp.ErrorNotSupported, errResp.ManagementErrorID)
}

func TestManagePolicesWrongLength(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1})

	req := &ptp.ManagementMsgCurrentDataSet{
		ManagementMsgHead: ptp.ManagementMsgHead{
			Header:             ptp.Header{MessageLength: 62},
			TargetPortIdentity: ptp.PortIdentity{ClockIdentity: c.Default.ClockIdentity},
			ActionField:        ptp.GET,
		},
		ManagementTLVHead: ptp.ManagementTLVHead{
			TLVHead:      ptp.TLVHead{LengthField: 10},
			ManagementID: ptp.IDCurrentDataSet,
		},
	}

	err := c.Manage(p1, req)
	require.NoError(t, err)
	require.Len(t, p1.Forwarded, 1)

	errResp, ok := p1.Forwarded[0].(*ptp.ManagementMsgErrorStatus)
	require.True(t, ok)
	require.Equal(t, ptp.ErrorWrongLength, errResp.ManagementErrorID)
}

// TestManageDropsMessageWithExtraTLVBytes exercises spec.md §4.6 step 2's
// TLV-count check: a message whose MessageLength accounts for more bytes
// than this one TLV (as if a second TLV followed it on the wire) is
// silently dropped before any response is sent.
func TestManageDropsMessageWithExtraTLVBytes(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1})

	req := &ptp.ManagementMsgCurrentDataSet{
		ManagementMsgHead: ptp.ManagementMsgHead{
			Header:             ptp.Header{MessageLength: 54 + 12},
			TargetPortIdentity: ptp.PortIdentity{ClockIdentity: c.Default.ClockIdentity},
			ActionField:        ptp.GET,
		},
		ManagementTLVHead: ptp.ManagementTLVHead{
			TLVHead:      ptp.TLVHead{LengthField: 2},
			ManagementID: ptp.IDCurrentDataSet,
		},
	}

	err := c.Manage(p1, req)
	require.NoError(t, err)
	require.Empty(t, p1.Forwarded)
	require.Empty(t, p1.Managed)
}

func TestManageOffersPortScopeIDsToEachPort(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	answer := false
	p1.Answer = &answer
	p2 := port.NewSimPort(testIdentity(2))
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1, p2})

	req := &ptp.ManagementMsgDefaultDataSet{
		ManagementMsgHead: ptp.ManagementMsgHead{
			Header:             ptp.Header{MessageLength: 54},
			TargetPortIdentity: ptp.PortIdentity{ClockIdentity: c.Default.ClockIdentity},
			ActionField:        ptp.GET,
		},
		ManagementTLVHead: ptp.ManagementTLVHead{
			TLVHead:      ptp.TLVHead{LengthField: 2},
			ManagementID: ptp.IDPortDataSet,
		},
	}

	err := c.Manage(p1, req)
	require.NoError(t, err)
	require.Len(t, p1.Managed, 1)
	require.Len(t, p2.Managed, 1)
}

func TestManageWrongTargetIsDropped(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1})

	req := &ptp.ManagementMsgCurrentDataSet{
		ManagementMsgHead: ptp.ManagementMsgHead{
			Header:             ptp.Header{MessageLength: 54},
			TargetPortIdentity: ptp.PortIdentity{ClockIdentity: ptp.ClockIdentity(9999)},
			ActionField:        ptp.GET,
		},
		ManagementTLVHead: ptp.ManagementTLVHead{
			TLVHead:      ptp.TLVHead{LengthField: 2},
			ManagementID: ptp.IDCurrentDataSet,
		},
	}

	err := c.Manage(p1, req)
	require.NoError(t, err)
	require.Empty(t, p1.Forwarded)
	require.Empty(t, p1.Managed)
}

func TestForwardPropagatesPerPortErrorsWithoutAborting(t *testing.T) {
	p1 := port.NewSimPort(testIdentity(1))
	p1.SetState(ptp.PortStateSlave)
	p2 := port.NewSimPort(testIdentity(2))
	p2.SetState(ptp.PortStateMaster)
	p2.ForwardErr = fmt.Errorf("link down")
	p3 := port.NewSimPort(testIdentity(3))
	p3.SetState(ptp.PortStateMaster)

	c := newTestCore(t, &fakeServo{}, &fakeTimekeeper{}, []port.Port{p1, p2, p3})

	req := &ptp.ManagementMsgCurrentDataSet{
		ManagementMsgHead: ptp.ManagementMsgHead{
			Header:               ptp.Header{MessageLength: 54},
			TargetPortIdentity:   ptp.PortIdentity{ClockIdentity: ptp.AllOnesClockIdentity},
			BoundaryHops:         1,
			StartingBoundaryHops: 1,
			ActionField:          ptp.GET,
		},
		ManagementTLVHead: ptp.ManagementTLVHead{
			TLVHead:      ptp.TLVHead{LengthField: 2},
			ManagementID: ptp.IDCurrentDataSet,
		},
	}

	err := c.Manage(p1, req)
	require.NoError(t, err)
	require.Empty(t, p2.Forwarded)
	require.Len(t, p3.Forwarded, 1)
}
