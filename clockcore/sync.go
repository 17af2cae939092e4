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
	"math"

	log "github.com/sirupsen/logrus"

	ptp "github.com/quietremote/ptpd/protocol"
	"github.com/quietremote/ptpd/servo"
	"github.com/quietremote/ptpd/tmv"
)

const nanosecondsPerSecond tmv.T = 1_000_000_000

// correctionToTmv converts a wire Correction to T, treating "too big to
// represent" as the largest representable magnitude rather than +Inf.
func correctionToTmv(c ptp.Correction) tmv.T {
	if c.TooBig() {
		return tmv.T(math.MaxInt64)
	}
	return tmv.T(int64(c.Nanoseconds()))
}

// Synchronize feeds one completed Sync/FollowUp pair into the clock core,
// per spec.md §4.3. ingress is this clock's local receive time for the
// Sync; origin is the master's Sync origin timestamp; c1/c2 are the
// correction fields the Sync and FollowUp carried.
func (c *Core) Synchronize(ingress, origin tmv.T, c1, c2 ptp.Correction) servo.State {
	c.t1 = origin
	c.t2 = ingress
	c.c1 = c1
	c.c2 = c2

	masterOffset := c.t2 - (c.t1 + c.Current.MeanPathDelay + correctionToTmv(c1) + correctionToTmv(c2))

	if c.utcTimescale && c.TimeProperties.Flags&uint8(ptp.FlagPTPTimescale) != 0 {
		masterOffset += tmv.T(c.effectiveUTCOffset()) * nanosecondsPerSecond
	}

	c.Current.OffsetFromMaster = masterOffset

	if tmv.IsZero(c.Current.MeanPathDelay) {
		c.metrics.recordSync(masterOffset, c.Current.MeanPathDelay, 0, servo.StateUnlocked)
		return servo.StateUnlocked
	}

	if c.Default.FreeRunning {
		c.noAdjust(origin+correctionToTmv(c1)+correctionToTmv(c2), ingress)
		c.metrics.recordSync(masterOffset, c.Current.MeanPathDelay, 0, servo.StateUnlocked)
		return servo.StateUnlocked
	}

	ingressTime := ingress.Time()
	adjPPB, state := c.servo.Sample(masterOffset, ingressTime)

	switch state {
	case servo.StateJump:
		if err := c.timekeeper.WritePPB(-adjPPB); err != nil {
			log.WithError(err).Warning("clockcore: frequency write failed on JUMP")
		}
		if err := c.timekeeper.Step(-masterOffset.Duration()); err != nil {
			log.WithError(err).Warning("clockcore: step failed on JUMP")
		}
		c.t1 = 0
		c.t2 = 0
	case servo.StateLocked:
		if err := c.timekeeper.WritePPB(-adjPPB); err != nil {
			log.WithError(err).Warning("clockcore: frequency write failed")
		}
	}

	c.recordStats(masterOffset, adjPPB)
	c.metrics.recordSync(masterOffset, c.Current.MeanPathDelay, adjPPB, state)
	return state
}

// effectiveUTCOffset picks between the master's advertised currentUtcOffset
// and the compiled-in baseline, per spec.md §4.3 step 3.
func (c *Core) effectiveUTCOffset() int16 {
	if c.TimeProperties.Flags&uint8(ptp.FlagCurrentUTCOffsetValid) != 0 || c.TimeProperties.CurrentUTCOffset > baselineUTCOffset {
		return c.TimeProperties.CurrentUTCOffset
	}
	return baselineUTCOffset
}

// recordStats folds one sample into the stats window, flushing (logging a
// summary and resetting) once the window fills, or logging a single line
// per sample when the window is disabled (<=1).
func (c *Core) recordStats(masterOffset tmv.T, adjPPB float64) {
	if window, _ := FreqEstMaxCount(c.statsInterval, c.logSyncInterval); window <= 1 {
		log.WithField("offset_ns", tmv.Dbl(masterOffset)).WithField("freq_ppb", adjPPB).
			Info("clockcore: synchronized")
		return
	}
	c.statsWindow.Offset.Add(tmv.Dbl(masterOffset))
	c.statsWindow.Freq.Add(adjPPB)
	if c.statsWindow.Full() {
		res := c.statsWindow.Offset.Result()
		freqRes := c.statsWindow.Freq.Result()
		log.WithField("offset_rms", res.RMS).WithField("offset_max", res.Max).
			WithField("freq_mean", freqRes.Mean).
			Info("clockcore: stats window summary")
		c.statsWindow.ResetAll()
	}
}

// PathDelay computes a new end-to-end path delay sample from a completed
// Delay-Req/Delay-Resp exchange and folds it into the moving average, per
// spec.md §4.4. t3 is this clock's Delay-Req egress time, t4 the master's
// Delay-Resp ingress timestamp, c3 the Delay-Resp correction field.
func (c *Core) PathDelay(t3, t4 tmv.T, c3 ptp.Correction) {
	pd := ((c.t2 - t3) + (t4 - c.t1) - (correctionToTmv(c.c1) + correctionToTmv(c.c2) + correctionToTmv(c3))) / 2
	if pd < 0 {
		log.WithField("t1", c.t1).WithField("t2", c.t2).WithField("t3", t3).WithField("t4", t4).
			WithField("path_delay_ns", pd).
			Warning("clockcore: negative path delay")
	}
	avg := c.delayAvg.Accumulate(pd)
	c.Current.MeanPathDelay = avg
}

// PeerDelay records a pre-computed peer path delay and neighbor-rate-ratio
// directly, no averaging at this layer (the port already averaged it), per
// spec.md §4.4.
func (c *Core) PeerDelay(pd tmv.T, nrr float64) {
	c.Current.MeanPathDelay = pd
	c.Status.CumulativeScaledRateOffset = nrr - 1
}

// noAdjust is the free-running frequency-ratio estimator, clock.c's
// clock_no_adjust: origin is t1 already folded with its correction fields
// (origin_i = t1_i + c1_i + c2_i), ingress is t2_i, per spec.md §4.4.
func (c *Core) noAdjust(origin, ingress tmv.T) {
	fe := c.freqEst
	if !fe.set {
		fe.origin1 = origin
		fe.ingress1 = ingress
		fe.set = true
		fe.count = 0
		return
	}

	fe.count++
	if fe.count < fe.maxCount {
		return
	}

	if ingress == fe.ingress1 {
		log.Warning("clockcore: frequency estimator saw equal ingress timestamps, dropping sample")
		return
	}

	r := tmv.Dbl(origin-fe.origin1) / tmv.Dbl(ingress-fe.ingress1)
	ppb := (1 - r) * 1e9
	log.WithField("freq_ratio_ppb", ppb).Info("clockcore: free-running frequency ratio estimate")

	fe.origin1 = origin
	fe.ingress1 = ingress
	fe.count = 0
}
