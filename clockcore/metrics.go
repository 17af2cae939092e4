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
	"github.com/prometheus/client_golang/prometheus"

	ptp "github.com/quietremote/ptpd/protocol"
	"github.com/quietremote/ptpd/servo"
	"github.com/quietremote/ptpd/tmv"
)

// metrics holds the gauges a running Core exports, registered once at
// construction and updated from the event loop and the sync pipeline.
// Grounded on the registry-of-gauges shape sptp/stats's prometheus
// exporter uses, adapted here to direct instrumentation rather than a
// scrape-and-flatten counter map, since Core already has typed fields to
// read from.
type metrics struct {
	offsetFromMaster prometheus.Gauge
	meanPathDelay    prometheus.Gauge
	freqAdjustmentPPB prometheus.Gauge
	stepsRemoved     prometheus.Gauge
	servoState       prometheus.Gauge
	slavePorts       prometheus.Gauge
	gmPresent        prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		offsetFromMaster: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpclockd_offset_from_master_ns",
			Help: "Most recently published offset from the tracked master, in nanoseconds.",
		}),
		meanPathDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpclockd_mean_path_delay_ns",
			Help: "Current moving-average path delay estimate, in nanoseconds.",
		}),
		freqAdjustmentPPB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpclockd_freq_adjustment_ppb",
			Help: "Most recent frequency correction applied to the timekeeper, in PPB.",
		}),
		stepsRemoved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpclockd_steps_removed",
			Help: "CurrentDS.stepsRemoved: hop count from this clock to the grandmaster.",
		}),
		servoState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpclockd_servo_state",
			Help: "Servo state as reported by the last Sample call (0=UNLOCKED,1=JUMP,2=LOCKED,3=FILTER).",
		}),
		slavePorts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpclockd_slave_ports",
			Help: "Number of ports currently in the SLAVE state.",
		}),
		gmPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptpclockd_grandmaster_present",
			Help: "1 when tracking a grandmaster other than this clock, 0 when self-grandmaster.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.offsetFromMaster, m.meanPathDelay, m.freqAdjustmentPPB,
			m.stepsRemoved, m.servoState, m.slavePorts, m.gmPresent)
	}
	return m
}

// recordSync updates the per-sample gauges after one Synchronize call.
func (m *metrics) recordSync(masterOffset tmv.T, meanPathDelay tmv.T, adjPPB float64, state servo.State) {
	if m == nil {
		return
	}
	m.offsetFromMaster.Set(tmv.Dbl(masterOffset))
	m.meanPathDelay.Set(tmv.Dbl(meanPathDelay))
	m.freqAdjustmentPPB.Set(adjPPB)
	m.servoState.Set(float64(state))
}

// recordTopology updates the gauges that change on a state decision.
func (m *metrics) recordTopology(stepsRemoved uint16, slaveCount int, gmPresent bool) {
	if m == nil {
		return
	}
	m.stepsRemoved.Set(float64(stepsRemoved))
	m.slavePorts.Set(float64(slaveCount))
	if gmPresent {
		m.gmPresent.Set(1)
	} else {
		m.gmPresent.Set(0)
	}
}

// slaveCount counts the ports currently in PortStateSlave.
func (c *Core) slaveCount() int {
	n := 0
	for _, p := range c.ports {
		if p.State() == ptp.PortStateSlave {
			n++
		}
	}
	return n
}
