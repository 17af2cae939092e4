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

// Package servo turns a stream of time offsets into a frequency correction,
// the control loop the clock core drives on every synchronized sample.
package servo

import (
	"time"

	"github.com/quietremote/ptpd/tmv"
)

// Servo is the capability every frequency-correction strategy the clock
// core can drive must implement. Sample feeds it the latest offset from
// master (already corrected for path delay and UTC/TAI) plus the local
// ingress time it was measured at, and gets back the frequency
// adjustment to apply (in PPB) and the servo's resulting state.
type Servo interface {
	Sample(offset tmv.T, ingress time.Time) (freqPPB float64, state State)
	// SyncInterval informs the servo of the master's current sync
	// interval in seconds, used to rescale the PI gains.
	SyncInterval(seconds float64)
	// Unlock resets the servo back to its initial, unsynchronized state.
	Unlock()
}

// Config holds values common to any type of servo.
type Config struct {
	maxFreq            float64
	StepThreshold      int64
	FirstStepThreshold int64
	FirstUpdate        bool
	OffsetThreshold    int64
	numOffsetValues    int
	currOffsetValues   int
}

// State provides the result of servo calculation
type State uint8

// All the states of servo, matching linuxptp's SERVO_UNLOCKED/SERVO_JUMP/SERVO_LOCKED.
const (
	StateUnlocked State = 0
	StateJump     State = 1
	StateLocked   State = 2
	StateFilter   State = 3
)

func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "UNLOCKED"
	case StateJump:
		return "JUMP"
	case StateLocked:
		return "LOCKED"
	case StateFilter:
		return "FILTER"
	}
	return "UNSUPPORTED"
}

// DefaultConfig generates the default common servo configuration.
func DefaultConfig() Config {
	return Config{
		maxFreq:            900000000,
		StepThreshold:      0,
		FirstStepThreshold: 20000,
		FirstUpdate:        false,
		OffsetThreshold:    0,
		numOffsetValues:    0,
		currOffsetValues:   0,
	}
}
