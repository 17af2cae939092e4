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

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	ptp "github.com/quietremote/ptpd/protocol"
	"github.com/quietremote/ptpd/port"
	"github.com/quietremote/ptpd/servo"
	"github.com/quietremote/ptpd/stats"
	"github.com/quietremote/ptpd/timekeeper"
	"github.com/quietremote/ptpd/tmv"
)

// baselineUTCOffset is the compile-time minimum currentUtcOffset (leap
// seconds as of TAI-UTC = 37s at the time this value was pinned), mirroring
// clock.c's UTC_OFFSET constant.
const baselineUTCOffset int16 = 37

// Config carries every value the clock core needs at construction time
// (spec.md's enumerated "configured parameters"). Interface-level fields
// (timestamping mode, per-port PHC/label/remote/vclock plumbing) are not
// consumed here; they flow to whatever builds the concrete Port values
// handed to NewCore.
type Config struct {
	FreeRunning       bool
	UTCTimescale      bool
	FreqEstInterval   int
	StatsInterval     int
	LogSyncInterval   int
	ClockDesc         string
	DefaultDS         DefaultDS
	FaultResetInterval map[ptp.PortIdentity]uint8
}

// faultTimer tracks one data port's fault back-off timer: a back-off
// exponent k, a present armed state, and the real poll-multiplexed
// descriptor behind it.
type faultTimer struct {
	portIdentity ptp.PortIdentity
	exponent     uint8
	armed        bool
	fd           int
}

// Core is the clock aggregator: it owns every PTP port, runs Best Master
// Clock selection, feeds the servo, steers the timekeeper, estimates path
// delay and frequency ratio, and routes management traffic.
type Core struct {
	Default        DefaultDS
	Current        CurrentDS
	Parent         ParentDS
	TimeProperties TimePropertiesDS
	Status         TimeStatus

	servo      servo.Servo
	timekeeper timekeeper.Timekeeper

	delayAvg    *stats.MovingAverage
	statsWindow *stats.ClockStats

	freqEst         *FrequencyEstimator
	freqEstInterval int
	statsInterval   int
	logSyncInterval int

	bestTracker  port.BestRefTracker
	bestRef      port.BestRef
	ports        []port.Port
	mgmt         port.Port
	faults       []faultTimer

	metrics *metrics

	utcTimescale    bool
	clockDesc       ptp.PTPText
	faultTimeouts   map[ptp.PortIdentity]uint8

	// t1/t2/c1/c2 are the most recent Sync/FollowUp capture; t1==t2==0
	// after a JUMP actuation invalidates them, per spec.md's invariant.
	t1, t2 tmv.T
	c1, c2 ptp.Correction
}

// NewCore constructs a Core ready to run. servoHandle/timekeeperHandle are
// the collaborators synchronize actuates; dataPorts are this clock's data
// ports in registration order; mgmt is the local management endpoint.
// Construction-time failures (the only error class the core ever
// surfaces to its caller, per spec.md §7) come back as a non-nil error
// with no partial Core returned.
func NewCore(cfg Config, servoHandle servo.Servo, timekeeperHandle timekeeper.Timekeeper, dataPorts []port.Port, mgmt port.Port) (*Core, error) {
	if servoHandle == nil {
		return nil, fmt.Errorf("clockcore: servo must not be nil")
	}
	if timekeeperHandle == nil {
		return nil, fmt.Errorf("clockcore: timekeeper must not be nil")
	}
	if mgmt == nil {
		return nil, fmt.Errorf("clockcore: management endpoint must not be nil")
	}
	if len(dataPorts) == 0 {
		return nil, fmt.Errorf("clockcore: at least one data port is required")
	}

	maxCount, _ := FreqEstMaxCount(cfg.FreqEstInterval, cfg.LogSyncInterval)
	statsMaxCount, _ := FreqEstMaxCount(cfg.StatsInterval, cfg.LogSyncInterval)

	c := &Core{
		Default:         cfg.DefaultDS,
		servo:           servoHandle,
		timekeeper:      timekeeperHandle,
		delayAvg:        stats.NewMovingAverage(stats.DefaultMovingAverageLength),
		statsWindow:     stats.NewClockStats(statsMaxCount, false),
		freqEst:         NewFrequencyEstimator(maxCount),
		freqEstInterval: cfg.FreqEstInterval,
		statsInterval:   cfg.StatsInterval,
		logSyncInterval: cfg.LogSyncInterval,
		ports:           dataPorts,
		mgmt:            mgmt,
		utcTimescale:    cfg.UTCTimescale,
		clockDesc:       ptp.PTPText(cfg.ClockDesc),
		faultTimeouts:   cfg.FaultResetInterval,
		metrics:         newMetrics(nil),
	}
	c.setParentSelf()

	c.faults = make([]faultTimer, len(dataPorts))
	for i, p := range dataPorts {
		k := uint8(0)
		if cfg.FaultResetInterval != nil {
			k = cfg.FaultResetInterval[p.Identity()]
		}
		c.faults[i] = faultTimer{portIdentity: p.Identity(), exponent: k, fd: -1}
	}

	return c, nil
}

// setParentSelf records this clock as its own grandmaster: stepsRemoved
// resets to zero and ParentDS mirrors DefaultDS, the state every port
// reaches when no foreign master has ever been heard (spec.md scenario 1).
func (c *Core) setParentSelf() {
	c.Current.StepsRemoved = 0
	c.Parent = ParentDS{
		ParentPortIdentity:      ptp.PortIdentity{ClockIdentity: c.Default.ClockIdentity, PortNumber: 0},
		GrandmasterIdentity:     c.Default.ClockIdentity,
		GrandmasterClockQuality: c.Default.ClockQuality,
		GrandmasterPriority1:    c.Default.Priority1,
		GrandmasterPriority2:    c.Default.Priority2,
	}
	c.Status.GrandmasterIdentity = c.Default.ClockIdentity
}

// updateParentFromAnnounce records bestAnnounce (received on bestPort) as
// the tracked grandmaster, advancing stepsRemoved by one over whatever it
// reported for itself.
func (c *Core) updateParentFromAnnounce(bestAnnounce *ptp.Announce, bestPort ptp.PortIdentity) {
	c.Current.StepsRemoved = bestAnnounce.StepsRemoved + 1
	c.Parent = ParentDS{
		ParentPortIdentity:      bestPort,
		GrandmasterIdentity:     bestAnnounce.GrandmasterIdentity,
		GrandmasterClockQuality: bestAnnounce.GrandmasterClockQuality,
		GrandmasterPriority1:    bestAnnounce.GrandmasterPriority1,
		GrandmasterPriority2:    bestAnnounce.GrandmasterPriority2,
	}
	c.Status.GrandmasterIdentity = bestAnnounce.GrandmasterIdentity
	c.pathTraceAppend(bestAnnounce.GrandmasterIdentity)
}

func (c *Core) pathTraceAppend(id ptp.ClockIdentity) {
	if len(c.Parent.PathTrace) >= PathTraceMax {
		log.Warning("clockcore: path trace full, dropping oldest entry")
		c.Parent.PathTrace = c.Parent.PathTrace[1:]
	}
	c.Parent.PathTrace = append(c.Parent.PathTrace, id)
}

// SetSyncInterval recalibrates the frequency estimator's and stats
// windows' max_count whenever the effective log-sync-interval changes,
// per spec.md §4.5.
func (c *Core) SetSyncInterval(n int) {
	c.logSyncInterval = n
	maxCount, saturated := FreqEstMaxCount(c.freqEstInterval, n)
	if saturated {
		log.WithField("interval", c.freqEstInterval).WithField("n", n).
			Warning("clockcore: frequency estimator max_count saturated")
	}
	c.freqEst.SetMaxCount(maxCount)

	statsMaxCount, statsSaturated := FreqEstMaxCount(c.statsInterval, n)
	if statsSaturated {
		log.WithField("interval", c.statsInterval).WithField("n", n).
			Warning("clockcore: stats window max_count saturated")
	}
	c.statsWindow = stats.NewClockStats(statsMaxCount, c.statsWindow.Delay != nil)

	c.servo.SyncInterval(syncIntervalSeconds(n))
}

// Collectors returns this Core's prometheus gauges, for a caller to
// register against whichever registry serves its metrics endpoint
// (promhttp.Handler()'s default registry, typically).
func (c *Core) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.metrics.offsetFromMaster, c.metrics.meanPathDelay, c.metrics.freqAdjustmentPPB,
		c.metrics.stepsRemoved, c.metrics.servoState, c.metrics.slavePorts, c.metrics.gmPresent,
	}
}

func syncIntervalSeconds(logInterval int) float64 {
	if logInterval >= 0 {
		return float64(int64(1) << uint(logInterval))
	}
	return 1.0 / float64(int64(1)<<uint(-logInterval))
}
