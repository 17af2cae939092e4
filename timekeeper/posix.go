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
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// PosixTimekeeper disciplines CLOCK_REALTIME directly via CLOCK_ADJTIME,
// used for an ordinary clock with no PHC-capable NIC, or in tests.
type PosixTimekeeper struct{}

// NewPosixTimekeeper returns a Timekeeper backed by CLOCK_REALTIME.
func NewPosixTimekeeper() *PosixTimekeeper { return &PosixTimekeeper{} }

// ReadPPB reads CLOCK_REALTIME's current frequency offset in PPB.
func (k *PosixTimekeeper) ReadPPB() (float64, error) {
	tx := &unix.Timex{}
	state, err := clockAdjtime(unix.CLOCK_REALTIME, tx)
	freqPPB := float64(tx.Freq) / ppbToTimexPPM
	if err == nil && state != unix.TIME_OK {
		return freqPPB, fmt.Errorf("CLOCK_REALTIME state %d is not TIME_OK", state)
	}
	return freqPPB, err
}

// WritePPB sets CLOCK_REALTIME's frequency offset in PPB.
func (k *PosixTimekeeper) WritePPB(freqPPB float64) error {
	tx := &unix.Timex{
		Freq:  int64(freqPPB * ppbToTimexPPM),
		Modes: unix.ADJ_FREQUENCY,
	}
	state, err := clockAdjtime(unix.CLOCK_REALTIME, tx)
	if err == nil && state != unix.TIME_OK {
		return fmt.Errorf("CLOCK_REALTIME state %d is not TIME_OK", state)
	}
	return err
}

// Step steps CLOCK_REALTIME by the given signed duration.
func (k *PosixTimekeeper) Step(step time.Duration) error {
	sign := int64(1)
	if step < 0 {
		sign = -1
		step = -step
	}
	tx := &unix.Timex{Modes: unix.ADJ_SETOFFSET | unix.ADJ_NANO}
	tx.Time.Sec = sign * int64(step/time.Second)
	tx.Time.Usec = sign * int64(step%time.Second)
	if tx.Time.Usec < 0 {
		tx.Time.Sec--
		tx.Time.Usec += 1000000000
	}
	state, err := clockAdjtime(unix.CLOCK_REALTIME, tx)
	if err == nil && state != unix.TIME_OK {
		return fmt.Errorf("CLOCK_REALTIME state %d is not TIME_OK", state)
	}
	return err
}

// Now returns the current wall-clock time.
func (k *PosixTimekeeper) Now() (time.Time, error) {
	return time.Now(), nil
}
