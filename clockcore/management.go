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
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	ptp "github.com/quietremote/ptpd/protocol"
	"github.com/quietremote/ptpd/port"
)

const scaledRateOffsetBase = 1 << 41

// managementTLVBaseSize is the size of the ManagementID field, which
// LengthField counts in addition to the payload, per Table 58.
const managementTLVBaseSize uint16 = 2

// managementMsgHeadSize is the management message head's wire size per
// Table 56: the 34-byte common Header plus TargetPortIdentity (10),
// StartingBoundaryHops, BoundaryHops, ActionField and Reserved (1 each).
const managementMsgHeadSize uint16 = 48

// tlvWireHeadSize is a TLV's TLVType+LengthField prefix (Table 51), the
// two fields that precede the LengthField-counted bytes on the wire.
const tlvWireHeadSize uint16 = 4

// hasExactlyOneTLV checks spec.md §4.6 step 2's TLV-count requirement
// against the message's own decoded Header.MessageLength: a message
// carrying exactly one TLV accounts for managementMsgHeadSize plus that
// TLV's wire head plus its TLVLength, with nothing left over. A second
// TLV appended after the first would inflate MessageLength past that,
// which this checks directly rather than assuming anything about how
// req was decoded.
func hasExactlyOneTLV(req ptp.ManagementPacket) bool {
	head := req.Head()
	want := managementMsgHeadSize + tlvWireHeadSize + req.TLVLength()
	return head.Header.MessageLength == want
}

// forwardingPorts returns every port currently participating in
// management relaying: data ports in a forwarding state plus the
// management endpoint, which always forwards regardless of its own
// state, per spec.md §4.6.
func (c *Core) forwardingPorts() []port.Port {
	out := make([]port.Port, 0, len(c.ports)+1)
	for _, p := range c.ports {
		if p.Forwarding() {
			out = append(out, p)
		}
	}
	out = append(out, c.mgmt)
	return out
}

// Manage routes one management message received on receivingPort,
// implementing spec.md §4.6 in order: forward, target and TLV-count
// check, police length, answer clock-scope IDs, then offer port-scope
// IDs to each port.
func (c *Core) Manage(receivingPort port.Port, req ptp.ManagementPacket) error {
	head := req.Head()

	if (receivingPort.Forwarding() || receivingPort == c.mgmt) && head.BoundaryHops > 0 {
		c.forward(receivingPort, req)
	}

	if head.TargetPortIdentity.ClockIdentity != ptp.AllOnesClockIdentity &&
		head.TargetPortIdentity.ClockIdentity != c.Default.ClockIdentity {
		return nil
	}

	if !hasExactlyOneTLV(req) {
		return nil
	}

	if violated, err := c.policeLength(receivingPort, req); violated {
		return err
	}

	if req.Action() == ptp.GET && ptp.IsNotSupported(req.MgmtID()) {
		resp := c.managementGetResponse(req)
		return receivingPort.Forward(resp)
	}

	if ptp.IsNotSupported(req.MgmtID()) {
		// SET/COMMAND against one of the GET-only clock-scope IDs: the
		// same table GET never reaches reports NOT_SUPPORTED here,
		// matching clock_management_set's empty switch.
		return c.sendManagementError(receivingPort, req, req.MgmtID(), ptp.ErrorNotSupported)
	}

	for _, p := range c.ports {
		answered, err := p.Manage(req)
		if err != nil {
			log.WithField("port", p.Identity()).WithError(err).Warning("clockcore: port management handling failed")
			continue
		}
		if answered {
			return nil
		}
	}
	return nil
}

// forward relays req out every other forwarding port, decrementing
// boundaryHops exactly once for the duration of the relay and restoring
// it afterward. Per-port forward failures are logged; other destinations
// are still attempted.
func (c *Core) forward(receivingPort port.Port, req ptp.ManagementPacket) {
	head := req.Head()
	saved := head.BoundaryHops
	head.BoundaryHops = saved - 1
	defer func() { head.BoundaryHops = saved }()

	for _, p := range c.forwardingPorts() {
		if p == receivingPort {
			continue
		}
		if err := p.Forward(req); err != nil {
			log.WithField("port", p.Identity()).WithError(err).Warning("clockcore: forwarding management message failed")
		}
	}
}

// policeLength enforces spec.md §4.6 step 3: GET/COMMAND bodies must be
// exactly header-sized; SET bodies may be header-sized only for
// NULL_MANAGEMENT. violated reports whether a WRONG_LENGTH reply was sent
// (and processing must stop here); err carries a transmission failure for
// the caller to log, independent of violated.
func (c *Core) policeLength(receivingPort port.Port, req ptp.ManagementPacket) (violated bool, err error) {
	const bodyOnlyHeader = 2
	bodyLen := req.TLVLength()

	wrongLength := false
	switch req.Action() {
	case ptp.GET, ptp.COMMAND:
		wrongLength = bodyLen != bodyOnlyHeader
	case ptp.SET:
		wrongLength = bodyLen == bodyOnlyHeader && req.MgmtID() != ptp.IDNullPTPManagement
	}
	if !wrongLength {
		return false, nil
	}
	return true, c.sendManagementError(receivingPort, req, req.MgmtID(), ptp.ErrorWrongLength)
}

func (c *Core) sendManagementError(receivingPort port.Port, req ptp.ManagementPacket, id ptp.ManagementID, errID ptp.ManagementErrorID) error {
	errPkt := ptp.NewManagementError(req.Head(), id, errID)
	return receivingPort.Forward(errPkt)
}

// managementGetResponse builds the GET response for one of the clock-scope
// managementIds this clock answers directly, per spec.md §4.6 step 4.
func (c *Core) managementGetResponse(req ptp.ManagementPacket) ptp.ManagementPacket {
	switch req.MgmtID() {
	case ptp.IDUserDescription:
		tlv := ptp.UserDescriptionTLV{UserDescription: c.clockDesc}
		size := uint16(1 + len(c.clockDesc))
		if size%2 != 0 {
			size++
		}
		return &ptp.ManagementMsgUserDescription{
			ManagementMsgHead:  c.responseHead(req),
			ManagementTLVHead:  c.responseTLVHead(req, size),
			UserDescriptionTLV: tlv,
		}
	case ptp.IDDefaultDataSet:
		tlv := ptp.DefaultDataSetTLV{
			NumberPorts:   uint16(len(c.ports)),
			Priority1:     c.Default.Priority1,
			ClockQuality:  c.Default.ClockQuality,
			Priority2:     c.Default.Priority2,
			ClockIdentity: c.Default.ClockIdentity,
			DomainNumber:  c.Default.DomainNumber,
		}
		return &ptp.ManagementMsgDefaultDataSet{
			ManagementMsgHead: c.responseHead(req),
			ManagementTLVHead: c.responseTLVHead(req, uint16(binary.Size(tlv))),
			DefaultDataSetTLV: tlv,
		}
	case ptp.IDCurrentDataSet:
		tlv := ptp.CurrentDataSetTLV{
			StepsRemoved:     c.Current.StepsRemoved,
			OffsetFromMaster: c.Current.OffsetFromMaster.ToTimeInterval(),
			MeanPathDelay:    c.Current.MeanPathDelay.ToTimeInterval(),
		}
		return &ptp.ManagementMsgCurrentDataSet{
			ManagementMsgHead: c.responseHead(req),
			ManagementTLVHead: c.responseTLVHead(req, uint16(binary.Size(tlv))),
			CurrentDataSetTLV: tlv,
		}
	case ptp.IDParentDataSet:
		tlv := ptp.ParentDataSetTLV{
			ParentPortIdentity:      c.Parent.ParentPortIdentity,
			GrandmasterPriority1:    c.Parent.GrandmasterPriority1,
			GrandmasterClockQuality: c.Parent.GrandmasterClockQuality,
			GrandmasterPriority2:    c.Parent.GrandmasterPriority2,
			GrandmasterIdentity:     c.Parent.GrandmasterIdentity,
		}
		return &ptp.ManagementMsgParentDataSet{
			ManagementMsgHead: c.responseHead(req),
			ManagementTLVHead: c.responseTLVHead(req, uint16(binary.Size(tlv))),
			ParentDataSetTLV:  tlv,
		}
	case ptp.IDTimePropertiesDataSet:
		tlv := ptp.TimePropertiesDataSetTLV{
			CurrentUTCOffset: c.TimeProperties.CurrentUTCOffset,
			Flags:            c.TimeProperties.Flags,
			TimeSource:       c.TimeProperties.TimeSource,
		}
		return &ptp.ManagementMsgTimePropertiesDataSet{
			ManagementMsgHead:        c.responseHead(req),
			ManagementTLVHead:        c.responseTLVHead(req, uint16(binary.Size(tlv))),
			TimePropertiesDataSetTLV: tlv,
		}
	case ptp.IDTimeStatusNP:
		gmPresent := int32(0)
		if c.Status.GMPresent(c.Default.ClockIdentity) {
			gmPresent = 1
		}
		tlv := ptp.TimeStatusNP{
			MasterOffsetNS:             int64(c.Current.OffsetFromMaster),
			IngressTimeNS:              int64(c.t2),
			CumulativeScaledRateOffset: int32(c.Status.CumulativeScaledRateOffset * scaledRateOffsetBase),
			GMPresent:                  gmPresent,
			GMIdentity:                 c.Status.GrandmasterIdentity,
		}
		return &ptp.ManagementMsgTimeStatusNP{
			ManagementMsgHead: c.responseHead(req),
			ManagementTLVHead: c.responseTLVHead(req, uint16(binary.Size(tlv))),
			TimeStatusNP:      tlv,
		}
	}
	panic("clockcore: managementGetResponse called for an ID outside the clock-scope table")
}

// responseHead builds the common management message head for a RESPONSE
// to req, sent from this clock back to req's sender.
func (c *Core) responseHead(req ptp.ManagementPacket) ptp.ManagementMsgHead {
	reqHead := req.Head()
	return ptp.ManagementMsgHead{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageManagement, 0),
			Version:            ptp.Version,
			SourcePortIdentity: ptp.PortIdentity{ClockIdentity: c.Default.ClockIdentity},
			SequenceID:         reqHead.Header.SequenceID,
		},
		TargetPortIdentity:   reqHead.Header.SourcePortIdentity,
		StartingBoundaryHops: reqHead.StartingBoundaryHops,
		BoundaryHops:         reqHead.StartingBoundaryHops,
		ActionField:          ptp.RESPONSE,
	}
}

// responseTLVHead builds the management TLV head carrying req's
// managementId back with the response payload's size.
func (c *Core) responseTLVHead(req ptp.ManagementPacket, payloadSize uint16) ptp.ManagementTLVHead {
	return ptp.ManagementTLVHead{
		TLVHead: ptp.TLVHead{
			TLVType:     ptp.TLVManagement,
			LengthField: managementTLVBaseSize + payloadSize,
		},
		ManagementID: req.MgmtID(),
	}
}
