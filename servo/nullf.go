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
	"time"

	"github.com/quietremote/ptpd/tmv"
)

// NullfServo is linuxptp's "nullf" servo: it never touches frequency at
// all and always reports the offset as already absorbed, the servo a
// free-running clock (one that only estimates its syntonization ratio
// and never disciplines a local oscillator) is paired with.
type NullfServo struct {
	Config
}

// NewNullfServo creates a no-op servo.
func NewNullfServo(c Config) *NullfServo {
	return &NullfServo{Config: c}
}

// Sample always reports state LOCKED and a zero frequency correction:
// nullf never adjusts anything, it only exists to satisfy the Servo
// contract for a free-running clock core.
func (s *NullfServo) Sample(_ tmv.T, _ time.Time) (float64, State) {
	return 0, StateLocked
}

// SyncInterval is a no-op: nullf has no gains to rescale.
func (s *NullfServo) SyncInterval(_ float64) {}

// Unlock is a no-op: nullf has no internal state to reset.
func (s *NullfServo) Unlock() {}
