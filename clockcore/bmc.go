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
	log "github.com/sirupsen/logrus"

	"github.com/quietremote/ptpd/bmc"
	"github.com/quietremote/ptpd/port"
)

// decisionEvent maps a per-port bmc.Decision to the fsm_event driven into
// that port, Table in spec.md §4.2.
func decisionEvent(d bmc.Decision) port.Event {
	switch d {
	case bmc.DecisionListening:
		return port.EventNone
	case bmc.DecisionGrandMaster:
		return port.EventRsGrandMaster
	case bmc.DecisionMaster:
		return port.EventRsMaster
	case bmc.DecisionPassive:
		return port.EventRsPassive
	case bmc.DecisionSlave:
		return port.EventRsSlave
	}
	return port.EventFaultDetected
}

// handleStateDecisionEvent runs the Best Master Clock selection across
// every data port and drives each port's state machine with the result.
// It is invoked at most once per poll pass, after all per-port event
// handling of that pass, per spec.md §4.1/§4.2.
func (c *Core) handleStateDecisionEvent() {
	defer func() {
		c.metrics.recordTopology(c.Current.StepsRemoved, c.slaveCount(), c.Status.GMPresent(c.Default.ClockIdentity))
	}()

	var bestPort port.Port
	var bestFC *port.ForeignClock

	for _, p := range c.ports {
		fc := p.BestForeign()
		if fc == nil {
			continue
		}
		if bestFC == nil || bmc.Dscmp(fc.Announce, bestFC.Announce) > bmc.Unknown {
			bestFC = fc
			bestPort = p
		}
	}
	if bestFC == nil {
		// No candidate survives: best is left unchanged.
		return
	}

	freshBest := bestFC.Announce.GrandmasterIdentity != c.Parent.GrandmasterIdentity
	if freshBest {
		c.freqEst.Reset()
		c.delayAvg.Reset()
		c.Current.MeanPathDelay = 0
	}
	c.bestRef = c.bestTracker.Advance(bestPort.Identity())

	for _, p := range c.ports {
		isBestPort := p.Identity() == bestPort.Identity()
		ownBeatsBest := false
		if own := p.BestForeign(); own != nil {
			cmp := bmc.Dscmp(own.Announce, bestFC.Announce)
			ownBeatsBest = cmp != bmc.BBetter && cmp != bmc.BBetterTopo
		}

		decision := bmc.StateDecision(true, isBestPort, ownBeatsBest)
		ev := decisionEvent(decision)
		if err := p.Dispatch(ev, freshBest); err != nil {
			log.WithField("port", p.Identity()).WithField("event", ev).
				Warning("clockcore: port failed to dispatch state-decision event")
		}

		if decision == bmc.DecisionSlave && isBestPort {
			c.updateParentFromAnnounce(bestFC.Announce, bestPort.Identity())
		}
	}
}
