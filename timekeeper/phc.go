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
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fdToClockID turns an open device fd into the dynamic clockid_t that
// addresses it, per the CLOCKFD encoding used by clock_gettime(2)/
// clock_adjtime(2) for POSIX dynamic clocks: ((~fd) << 3) | 3.
func fdToClockID(fd uintptr) int32 {
	return int32((^int(fd) << 3) | 3)
}

func clockAdjtime(clockid int32, tx *unix.Timex) (state int, err error) {
	r0, _, errno := unix.Syscall(unix.SYS_CLOCK_ADJTIME, uintptr(clockid), uintptr(unsafe.Pointer(tx)), 0)
	state = int(r0)
	if errno != 0 {
		err = errno
	}
	return state, err
}

// PHCTimekeeper disciplines a PTP Hardware Clock character device
// (/dev/ptp*) via CLOCK_ADJTIME, the way phc/adjtime.go's ClockAdjFreq and
// ClockStep do.
type PHCTimekeeper struct {
	device string
}

// NewPHCTimekeeper returns a Timekeeper backed by the named PHC device.
func NewPHCTimekeeper(device string) *PHCTimekeeper {
	return &PHCTimekeeper{device: device}
}

func (k *PHCTimekeeper) open() (*os.File, error) {
	f, err := os.OpenFile(k.device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening PHC device %q: %w", k.device, err)
	}
	return f, nil
}

// ReadPPB reads the PHC's current frequency offset in PPB.
func (k *PHCTimekeeper) ReadPPB() (float64, error) {
	f, err := k.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	tx := &unix.Timex{}
	state, err := clockAdjtime(fdToClockID(f.Fd()), tx)
	freqPPB := float64(tx.Freq) / ppbToTimexPPM
	if err == nil && state != unix.TIME_OK {
		return freqPPB, fmt.Errorf("PHC %q state %d is not TIME_OK", k.device, state)
	}
	return freqPPB, err
}

// WritePPB sets the PHC's frequency offset in PPB.
func (k *PHCTimekeeper) WritePPB(freqPPB float64) error {
	f, err := k.open()
	if err != nil {
		return err
	}
	defer f.Close()
	tx := &unix.Timex{
		Freq:  int64(freqPPB * ppbToTimexPPM),
		Modes: unix.ADJ_FREQUENCY,
	}
	state, err := clockAdjtime(fdToClockID(f.Fd()), tx)
	if err == nil && state != unix.TIME_OK {
		return fmt.Errorf("PHC %q state %d is not TIME_OK", k.device, state)
	}
	return err
}

// Step steps the PHC's time by the given signed duration.
func (k *PHCTimekeeper) Step(step time.Duration) error {
	f, err := k.open()
	if err != nil {
		return err
	}
	defer f.Close()
	sign := int64(1)
	if step < 0 {
		sign = -1
		step = -step
	}
	tx := &unix.Timex{Modes: unix.ADJ_SETOFFSET | unix.ADJ_NANO}
	tx.Time.Sec = sign * int64(step/time.Second)
	tx.Time.Usec = sign * int64(step%time.Second)
	// the value of a timeval is the sum of its fields, but tv_usec must
	// always be non-negative.
	if tx.Time.Usec < 0 {
		tx.Time.Sec--
		tx.Time.Usec += 1000000000
	}
	state, err := clockAdjtime(fdToClockID(f.Fd()), tx)
	if err == nil && state != unix.TIME_OK {
		return fmt.Errorf("PHC %q state %d is not TIME_OK", k.device, state)
	}
	return err
}

// Now reads the PHC's current time via clock_gettime.
func (k *PHCTimekeeper) Now() (time.Time, error) {
	f, err := k.open()
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()
	var ts unix.Timespec
	if err := unix.ClockGettime(fdToClockID(f.Fd()), &ts); err != nil {
		return time.Time{}, fmt.Errorf("reading PHC %q time: %w", k.device, err)
	}
	return time.Unix(ts.Sec, ts.Nsec), nil
}
