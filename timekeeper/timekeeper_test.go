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

package timekeeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFdToClockID(t *testing.T) {
	// the CLOCKFD encoding is ((~fd) << 3) | 3; fd=0 is the canonical case
	// used throughout phc's tests.
	require.Equal(t, int32((^0<<3)|3), fdToClockID(0))
	require.Equal(t, int32((^3<<3)|3), fdToClockID(3))
}

func TestSimTimekeeperWritePPB(t *testing.T) {
	k := NewSimTimekeeper()
	require.NoError(t, k.WritePPB(-250.0))
	got, err := k.ReadPPB()
	require.NoError(t, err)
	require.Equal(t, -250.0, got)
}

func TestSimTimekeeperStep(t *testing.T) {
	k := NewSimTimekeeper()
	require.NoError(t, k.Step(50 * time.Microsecond))
	require.Len(t, k.Steps, 1)
	require.Equal(t, 50*time.Microsecond, k.Steps[0])
	now, err := k.Now()
	require.NoError(t, err)
	require.Equal(t, time.Unix(0, 0).Add(50*time.Microsecond), now)
}
