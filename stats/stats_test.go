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

package stats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietremote/ptpd/tmv"
)

func TestMovingAverageFillsThenAverages(t *testing.T) {
	m := NewMovingAverage(2)
	require.Equal(t, tmv.T(10), m.Accumulate(tmv.T(10)))
	require.Equal(t, tmv.T(15), m.Accumulate(tmv.T(20)))
	require.Equal(t, tmv.T(20), m.Accumulate(tmv.T(20)))
}

func TestMovingAverageReset(t *testing.T) {
	m := NewMovingAverage(2)
	m.Accumulate(tmv.T(100))
	m.Reset()
	require.Equal(t, tmv.T(10), m.Accumulate(tmv.T(10)))
}

func TestStatFullAndResult(t *testing.T) {
	s := NewStat(3)
	require.False(t, s.Full())
	s.Add(10)
	s.Add(-10)
	s.Add(10)
	require.True(t, s.Full())
	res := s.Result()
	require.InDelta(t, 10.0, res.Max, 0.0001)
	require.InDelta(t, 10.0, res.RMS, 0.0001)
}

func TestClockStatsWithoutDelay(t *testing.T) {
	cs := NewClockStats(2, false)
	require.Nil(t, cs.Delay)
	cs.Offset.Add(1)
	cs.Offset.Add(2)
	require.True(t, cs.Full())
	cs.ResetAll()
	require.False(t, cs.Full())
}
