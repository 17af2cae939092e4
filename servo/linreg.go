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

	log "github.com/sirupsen/logrus"

	"github.com/quietremote/ptpd/tmv"
)

// defaultLinregWindow is the number of (ingress, offset) pairs the
// regression is fit over before it starts reporting LOCKED.
const defaultLinregWindow = 4

type linregSample struct {
	t      float64 // seconds since the first sample in the window
	offset float64 // nanoseconds
}

// LinregServo is linuxptp's "linreg" servo: rather than integrating the
// offset the way PiServo does, it fits a line through the most recent
// window of (ingress time, offset) samples and reads the frequency
// correction straight off the fitted slope.
type LinregServo struct {
	Config
	window   []*linregSample
	size     int
	t0       time.Time
	lastFreq float64
	count    int
}

// NewLinregServo creates a linear-regression servo with the given window size.
func NewLinregServo(c Config, size int) *LinregServo {
	if size <= 1 {
		size = defaultLinregWindow
	}
	return &LinregServo{Config: c, size: size}
}

// Sample adds (ingress, offset) to the regression window and returns the
// frequency correction read off the fitted slope, in PPB.
func (s *LinregServo) Sample(offset tmv.T, ingress time.Time) (float64, State) {
	if s.count == 0 {
		s.t0 = ingress
	}
	sample := &linregSample{
		t:      ingress.Sub(s.t0).Seconds(),
		offset: float64(offset),
	}
	s.window = append(s.window, sample)
	if len(s.window) > s.size {
		s.window = s.window[len(s.window)-s.size:]
	}
	s.count++

	if len(s.window) < 2 {
		return s.lastFreq, StateUnlocked
	}

	slope, ok := s.fit()
	if !ok {
		return s.lastFreq, StateUnlocked
	}
	// offset is in nanoseconds, t in seconds: slope is ns/s == ppb directly.
	freq := slope
	if freq < -s.maxFreq {
		freq = -s.maxFreq
	} else if freq > s.maxFreq {
		freq = s.maxFreq
	}
	s.lastFreq = freq

	sOffset := offset
	if sOffset < 0 {
		sOffset = -sOffset
	}
	if s.StepThreshold > 0 && int64(sOffset) > s.StepThreshold {
		return freq, StateJump
	}
	if len(s.window) < s.size {
		return freq, StateUnlocked
	}
	return freq, StateLocked
}

// fit computes the least-squares slope of offset against t over the
// current window.
func (s *LinregServo) fit() (float64, bool) {
	n := float64(len(s.window))
	var sumT, sumO, sumTT, sumTO float64
	for _, sample := range s.window {
		sumT += sample.t
		sumO += sample.offset
		sumTT += sample.t * sample.t
		sumTO += sample.t * sample.offset
	}
	denom := n*sumTT - sumT*sumT
	if denom == 0 {
		log.Debug("linreg: degenerate window, all samples at the same time")
		return 0, false
	}
	return (n*sumTO - sumT*sumO) / denom, true
}

// SyncInterval is a no-op: the regression window is sized in samples, not
// wall-clock seconds, so it does not need rescaling on sync interval changes.
func (s *LinregServo) SyncInterval(_ float64) {}

// Unlock discards the regression window and starts over.
func (s *LinregServo) Unlock() {
	s.window = nil
	s.count = 0
	s.lastFreq = 0
}
