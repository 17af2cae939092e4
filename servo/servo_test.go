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

package servo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quietremote/ptpd/tmv"
)

func TestPiServoLocksAfterTwoSamples(t *testing.T) {
	cfg := DefaultPiServoCfg()
	cfg.PiKp = 0
	cfg.PiKi = 0
	pi := NewPiServo(DefaultConfig(), cfg, 0)
	pi.SyncInterval(1.0)

	base := time.Unix(0, 0)
	_, state := pi.Sample(tmv.T(1000), base)
	require.Equal(t, StateUnlocked, state)

	_, state = pi.Sample(tmv.T(1000), base.Add(2*time.Second))
	require.Equal(t, StateLocked, state)

	_, state = pi.Sample(tmv.T(500), base.Add(4*time.Second))
	require.Equal(t, StateLocked, state)
}

func TestPiServoUnlockResetsCount(t *testing.T) {
	cfg := DefaultPiServoCfg()
	pi := NewPiServo(DefaultConfig(), cfg, 0)
	pi.SyncInterval(1.0)
	base := time.Unix(0, 0)
	pi.Sample(tmv.T(1000), base)
	pi.Sample(tmv.T(1000), base.Add(2*time.Second))
	require.Equal(t, StateLocked, pi.GetState())

	pi.Unlock()
	require.Equal(t, StateUnlocked, pi.GetState())
}

func TestNullfServoNeverAdjusts(t *testing.T) {
	n := NewNullfServo(DefaultConfig())
	ppb, state := n.Sample(tmv.T(123456), time.Now())
	require.Equal(t, 0.0, ppb)
	require.Equal(t, StateLocked, state)
}

func TestLinregServoLocksAfterWindowFills(t *testing.T) {
	l := NewLinregServo(DefaultConfig(), 3)
	base := time.Unix(0, 0)
	var state State
	for i := 0; i < 3; i++ {
		_, state = l.Sample(tmv.T(int64(i)*1000), base.Add(time.Duration(i)*time.Second))
	}
	require.Equal(t, StateLocked, state)
}

func TestLinregServoUnlockClearsWindow(t *testing.T) {
	l := NewLinregServo(DefaultConfig(), 3)
	base := time.Unix(0, 0)
	l.Sample(tmv.T(0), base)
	l.Sample(tmv.T(1000), base.Add(time.Second))
	l.Unlock()
	require.Empty(t, l.window)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "UNLOCKED", StateUnlocked.String())
	require.Equal(t, "JUMP", StateJump.String())
	require.Equal(t, "LOCKED", StateLocked.String())
	require.Equal(t, "FILTER", StateFilter.String())
}
