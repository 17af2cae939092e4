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

// Package protocol holds the IEEE 1588 wire types the clock core reads
// and writes: message headers, clock/port identities, datasets and the
// management TLVs used to query and steer a running instance.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"time"
)

// all field layouts are given for IEEE 1588-2019 Standard tables

// 2 ** 16
const twoPow16 = 65536

// what version of PTP protocol we implement
const (
	MajorVersion uint8 = 2
	Version      uint8 = MajorVersion
)

// MessageType is type for Message Types
type MessageType uint8

// As per Table 36 Values of messageType field
const (
	MessageSync       MessageType = 0x0
	MessageDelayReq   MessageType = 0x1
	MessagePDelayReq  MessageType = 0x2
	MessagePDelayResp MessageType = 0x3
	MessageFollowUp   MessageType = 0x8
	MessageDelayResp  MessageType = 0x9
	MessageAnnounce   MessageType = 0xB
	MessageSignaling  MessageType = 0xC
	MessageManagement MessageType = 0xD
)

var messageTypeToString = map[MessageType]string{
	MessageSync:       "SYNC",
	MessageDelayReq:   "DELAY_REQ",
	MessagePDelayReq:  "PDELAY_REQ",
	MessagePDelayResp: "PDELAY_RESP",
	MessageFollowUp:   "FOLLOW_UP",
	MessageDelayResp:  "DELAY_RESP",
	MessageAnnounce:   "ANNOUNCE",
	MessageSignaling:  "SIGNALING",
	MessageManagement: "MANAGEMENT",
}

func (m MessageType) String() string { return messageTypeToString[m] }

// SdoIDAndMsgType packs SdoID (top 4 bits) and MessageType (bottom 4 bits).
type SdoIDAndMsgType uint8

// MsgType extracts MessageType from SdoIDAndMsgType
func (m SdoIDAndMsgType) MsgType() MessageType {
	return MessageType(m & 0xf)
}

// NewSdoIDAndMsgType builds a new SdoIDAndMsgType from a MessageType and SdoID
func NewSdoIDAndMsgType(msgType MessageType, sdoID uint8) SdoIDAndMsgType {
	return SdoIDAndMsgType(sdoID<<4 | uint8(msgType))
}

// IntFloat is a float64 stored as int64, scaled by 2**16.
type IntFloat int64

// Value decodes IntFloat to float64
func (t IntFloat) Value() float64 { return float64(t) / twoPow16 }

// TimeInterval is a time interval expressed in nanoseconds, scaled by 2**16,
// as carried in Announce/Sync/management dataset fields.
type TimeInterval IntFloat

// Nanoseconds decodes TimeInterval to nanoseconds
func (t TimeInterval) Nanoseconds() float64 { return IntFloat(t).Value() }

func (t TimeInterval) String() string {
	return fmt.Sprintf("TimeInterval(%.3fns)", t.Nanoseconds())
}

// NewTimeInterval returns a TimeInterval built from a nanosecond count
func NewTimeInterval(ns float64) TimeInterval {
	return TimeInterval(ns * twoPow16)
}

// Correction is the correctionField of a PTP message header: nanoseconds
// scaled by 2**16. All-ones (except the sign bit) means "too big to represent".
type Correction IntFloat

const correctionTooBig Correction = 0x7fffffffffffffff

// Nanoseconds decodes Correction to nanoseconds
func (t Correction) Nanoseconds() float64 {
	if t.TooBig() {
		return math.Inf(1)
	}
	return IntFloat(t).Value()
}

// Duration converts Correction to time.Duration, treating TooBig as zero.
func (t Correction) Duration() time.Duration {
	if t.TooBig() {
		return 0
	}
	return time.Duration(t.Nanoseconds())
}

// TooBig reports whether the correction overflowed the wire representation.
func (t Correction) TooBig() bool { return t == correctionTooBig }

// NewCorrection returns a Correction built from a nanosecond count
func NewCorrection(ns float64) Correction {
	scaled := ns * twoPow16
	if scaled > float64(correctionTooBig) {
		return correctionTooBig
	}
	return Correction(scaled)
}

// ClockIdentity uniquely identifies a PTP Instance within a PTP Network.
type ClockIdentity uint64

// AllOnesClockIdentity is the canonical wildcard used to address any clock.
const AllOnesClockIdentity ClockIdentity = 0xffffffffffffffff

// String formats ClockIdentity the way ptp4l's pmc client does
func (c ClockIdentity) String() string {
	ptr := make([]byte, 8)
	binary.BigEndian.PutUint64(ptr, uint64(c))
	return fmt.Sprintf("%02x%02x%02x.%02x%02x.%02x%02x%02x",
		ptr[0], ptr[1], ptr[2], ptr[3],
		ptr[4], ptr[5], ptr[6], ptr[7],
	)
}

// MAC turns ClockIdentity into the MAC address it was derived from (EUI-48 assumed).
func (c ClockIdentity) MAC() net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	mac[0] = byte(c >> 56)
	mac[1] = byte(c >> 48)
	mac[2] = byte(c >> 40)
	mac[3] = byte(c >> 16)
	mac[4] = byte(c >> 8)
	mac[5] = byte(c)
	return mac
}

// NewClockIdentity creates a ClockIdentity from a MAC address (EUI-48 or EUI-64).
func NewClockIdentity(mac net.HardwareAddr) (ClockIdentity, error) {
	b := [8]byte{}
	switch len(mac) {
	case 6: // EUI-48
		b[0], b[1], b[2] = mac[0], mac[1], mac[2]
		b[3], b[4] = 0xFF, 0xFE
		b[5], b[6], b[7] = mac[3], mac[4], mac[5]
	case 8: // EUI-64
		copy(b[:], mac)
	default:
		return 0, fmt.Errorf("unsupported MAC %v, must be either EUI48 or EUI64", mac)
	}
	return ClockIdentity(binary.BigEndian.Uint64(b[:])), nil
}

// PortIdentity identifies a PTP port: the clock it belongs to plus a port number.
// Port number 0 denotes the clock itself.
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

// WildcardPortIdentity addresses every clock; used as a management target.
var WildcardPortIdentity = PortIdentity{ClockIdentity: AllOnesClockIdentity, PortNumber: 0xffff}

func (p PortIdentity) String() string {
	return fmt.Sprintf("%s-%d", p.ClockIdentity, p.PortNumber)
}

// Compare returns -1/0/1 the way bytes.Compare does, ordering first by
// clock identity then by port number.
func (p PortIdentity) Compare(q PortIdentity) int {
	switch {
	case p.ClockIdentity < q.ClockIdentity:
		return -1
	case p.ClockIdentity > q.ClockIdentity:
		return 1
	case p.PortNumber < q.PortNumber:
		return -1
	case p.PortNumber > q.PortNumber:
		return 1
	}
	return 0
}

// Less reports whether p sorts before q.
func (p PortIdentity) Less(q PortIdentity) bool { return p.Compare(q) == -1 }

// ClockClass represents a PTP clock class, see Table 5.
type ClockClass uint8

// Well-known clock classes.
const (
	ClockClass6         ClockClass = 6
	ClockClass7         ClockClass = 7
	ClockClass13        ClockClass = 13
	ClockClass14        ClockClass = 14
	ClockClass52        ClockClass = 52
	ClockClass58        ClockClass = 58
	ClockClassSlaveOnly ClockClass = 255
)

// ClockAccuracy represents a PTP clock accuracy, see Table 6.
type ClockAccuracy uint8

// Standard clock accuracy values.
const (
	ClockAccuracyNanosecond25   ClockAccuracy = 0x20
	ClockAccuracyNanosecond100  ClockAccuracy = 0x21
	ClockAccuracyNanosecond250  ClockAccuracy = 0x22
	ClockAccuracyMicrosecond1   ClockAccuracy = 0x23
	ClockAccuracyMicrosecond2p5 ClockAccuracy = 0x24
	ClockAccuracyMicrosecond10  ClockAccuracy = 0x25
	ClockAccuracyMicrosecond25  ClockAccuracy = 0x26
	ClockAccuracyMicrosecond100 ClockAccuracy = 0x27
	ClockAccuracyMicrosecond250 ClockAccuracy = 0x28
	ClockAccuracyMillisecond1   ClockAccuracy = 0x29
	ClockAccuracyMillisecond2p5 ClockAccuracy = 0x2A
	ClockAccuracyMillisecond10  ClockAccuracy = 0x2B
	ClockAccuracyMillisecond25  ClockAccuracy = 0x2C
	ClockAccuracyMillisecond100 ClockAccuracy = 0x2D
	ClockAccuracyMillisecond250 ClockAccuracy = 0x2E
	ClockAccuracySecond1        ClockAccuracy = 0x2F
	ClockAccuracySecond10       ClockAccuracy = 0x30
	ClockAccuracySecondGT10     ClockAccuracy = 0x31
	ClockAccuracyUnknown        ClockAccuracy = 0xFE
)

// ClockQuality is the (clockClass, clockAccuracy, offsetScaledLogVariance) triple.
type ClockQuality struct {
	ClockClass              ClockClass
	ClockAccuracy           ClockAccuracy
	OffsetScaledLogVariance uint16
}

// TimeSource indicates the immediate source of time used by a grandmaster.
type TimeSource uint8

// TimeSource values, Table 7.
const (
	TimeSourceAtomicClock        TimeSource = 0x10
	TimeSourceGNSS               TimeSource = 0x20
	TimeSourceTerrestrialRadio   TimeSource = 0x30
	TimeSourceSerialTimeCode     TimeSource = 0x39
	TimeSourcePTP                TimeSource = 0x40
	TimeSourceNTP                TimeSource = 0x50
	TimeSourceHandSet            TimeSource = 0x60
	TimeSourceOther              TimeSource = 0x90
	TimeSourceInternalOscillator TimeSource = 0xa0
)

// PortState enumerates the states of a port's state machine, Table 19.
type PortState uint8

// Port states.
const (
	PortStateInitializing PortState = iota + 1
	PortStateFaulty
	PortStateDisabled
	PortStateListening
	PortStatePreMaster
	PortStateMaster
	PortStatePassive
	PortStateUncalibrated
	PortStateSlave
	PortStateGrandMaster // non-standard extension used by ptp4l/linuxptp
)

var portStateToString = map[PortState]string{
	PortStateInitializing: "INITIALIZING",
	PortStateFaulty:       "FAULTY",
	PortStateDisabled:     "DISABLED",
	PortStateListening:    "LISTENING",
	PortStatePreMaster:    "PRE_MASTER",
	PortStateMaster:       "MASTER",
	PortStatePassive:      "PASSIVE",
	PortStateUncalibrated: "UNCALIBRATED",
	PortStateSlave:        "SLAVE",
	PortStateGrandMaster:  "GRAND_MASTER",
}

func (ps PortState) String() string { return portStateToString[ps] }

// flags used in the header FlagField, Table 37.
const (
	FlagAlternateMaster uint16 = 1 << (8 + 0)
	FlagTwoStep         uint16 = 1 << (8 + 1)
	FlagUnicast         uint16 = 1 << (8 + 2)

	FlagLeap61                   uint16 = 1 << 0
	FlagLeap59                   uint16 = 1 << 1
	FlagCurrentUTCOffsetValid    uint16 = 1 << 2
	FlagPTPTimescale             uint16 = 1 << 3
	FlagTimeTraceable            uint16 = 1 << 4
	FlagFrequencyTraceable       uint16 = 1 << 5
	FlagSynchronizationUncertain uint16 = 1 << 6
)

// Header is the common PTP message header, Table 35.
type Header struct {
	SdoIDAndMsgType     SdoIDAndMsgType
	Version             uint8
	MessageLength       uint16
	DomainNumber        uint8
	MinorSdoID          uint8
	FlagField           uint16
	CorrectionField     Correction
	MessageTypeSpecific uint32
	SourcePortIdentity  PortIdentity
	SequenceID          uint16
	ControlField        uint8
	LogMessageInterval  int8
}

const headerSize = 34

func unmarshalHeader(p *Header, b []byte) {
	p.SdoIDAndMsgType = SdoIDAndMsgType(b[0])
	p.Version = b[1]
	p.MessageLength = binary.BigEndian.Uint16(b[2:])
	p.DomainNumber = b[4]
	p.MinorSdoID = b[5]
	p.FlagField = binary.BigEndian.Uint16(b[6:])
	p.CorrectionField = Correction(binary.BigEndian.Uint64(b[8:]))
	p.MessageTypeSpecific = binary.BigEndian.Uint32(b[16:])
	p.SourcePortIdentity.ClockIdentity = ClockIdentity(binary.BigEndian.Uint64(b[20:]))
	p.SourcePortIdentity.PortNumber = binary.BigEndian.Uint16(b[28:])
	p.SequenceID = binary.BigEndian.Uint16(b[30:])
	p.ControlField = b[32]
	p.LogMessageInterval = int8(b[33])
}

func headerMarshalBinaryTo(p *Header, b []byte) int {
	b[0] = byte(p.SdoIDAndMsgType)
	b[1] = p.Version
	binary.BigEndian.PutUint16(b[2:], p.MessageLength)
	b[4] = p.DomainNumber
	b[5] = p.MinorSdoID
	binary.BigEndian.PutUint16(b[6:], p.FlagField)
	binary.BigEndian.PutUint64(b[8:], uint64(p.CorrectionField))
	binary.BigEndian.PutUint32(b[16:], p.MessageTypeSpecific)
	binary.BigEndian.PutUint64(b[20:], uint64(p.SourcePortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[28:], p.SourcePortIdentity.PortNumber)
	binary.BigEndian.PutUint16(b[30:], p.SequenceID)
	b[32] = p.ControlField
	b[33] = byte(p.LogMessageInterval)
	return headerSize
}

// MessageType returns the message type encoded in the header.
func (p *Header) MessageType() MessageType { return p.SdoIDAndMsgType.MsgType() }

// SetSequence populates the SequenceID field.
func (p *Header) SetSequence(sequence uint16) { p.SequenceID = sequence }

func checkPacketLength(p *Header, l int) error {
	if int(p.MessageLength) > l {
		return fmt.Errorf("cannot decode message of length %d from %d bytes", p.MessageLength, l)
	}
	return nil
}

// AnnounceBody carries the fields unique to an Announce message, Table 43.
type AnnounceBody struct {
	OriginTimestampSeconds     [6]uint8
	OriginTimestampNanoseconds uint32
	CurrentUTCOffset           int16
	Reserved                   uint8
	GrandmasterPriority1       uint8
	GrandmasterClockQuality    ClockQuality
	GrandmasterPriority2       uint8
	GrandmasterIdentity        ClockIdentity
	StepsRemoved               uint16
	TimeSource                 TimeSource
}

// Announce is a full Announce packet (header + body; TLVs are not retained,
// the clock core only needs the fixed-size body to build a foreign dataset).
type Announce struct {
	Header
	AnnounceBody
}

// UnmarshalBinary decodes an Announce message.
func (p *Announce) UnmarshalBinary(b []byte) error {
	if len(b) < headerSize+30 {
		return fmt.Errorf("not enough data to decode Announce")
	}
	unmarshalHeader(&p.Header, b)
	if err := checkPacketLength(&p.Header, len(b)); err != nil {
		return err
	}
	n := headerSize
	copy(p.OriginTimestampSeconds[:], b[n:])
	p.OriginTimestampNanoseconds = binary.BigEndian.Uint32(b[n+6:])
	p.CurrentUTCOffset = int16(binary.BigEndian.Uint16(b[n+10:]))
	p.Reserved = b[n+12]
	p.GrandmasterPriority1 = b[n+13]
	p.GrandmasterClockQuality.ClockClass = ClockClass(b[n+14])
	p.GrandmasterClockQuality.ClockAccuracy = ClockAccuracy(b[n+15])
	p.GrandmasterClockQuality.OffsetScaledLogVariance = binary.BigEndian.Uint16(b[n+16:])
	p.GrandmasterPriority2 = b[n+18]
	p.GrandmasterIdentity = ClockIdentity(binary.BigEndian.Uint64(b[n+19:]))
	p.StepsRemoved = binary.BigEndian.Uint16(b[n+27:])
	p.TimeSource = TimeSource(b[n+29])
	return nil
}

// MarshalBinaryTo encodes an Announce message into b, returning the bytes written.
func (p *Announce) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < headerSize+30 {
		return 0, fmt.Errorf("not enough buffer to write Announce")
	}
	n := headerMarshalBinaryTo(&p.Header, b)
	copy(b[n:], p.OriginTimestampSeconds[:])
	binary.BigEndian.PutUint32(b[n+6:], p.OriginTimestampNanoseconds)
	binary.BigEndian.PutUint16(b[n+10:], uint16(p.CurrentUTCOffset))
	b[n+12] = p.Reserved
	b[n+13] = p.GrandmasterPriority1
	b[n+14] = byte(p.GrandmasterClockQuality.ClockClass)
	b[n+15] = byte(p.GrandmasterClockQuality.ClockAccuracy)
	binary.BigEndian.PutUint16(b[n+16:], p.GrandmasterClockQuality.OffsetScaledLogVariance)
	b[n+18] = p.GrandmasterPriority2
	binary.BigEndian.PutUint64(b[n+19:], uint64(p.GrandmasterIdentity))
	binary.BigEndian.PutUint16(b[n+27:], p.StepsRemoved)
	b[n+29] = byte(p.TimeSource)
	return n + 30, nil
}

// Packet is an interface to abstract over the different PTP message types
// the clock core is ever handed (only Announce and management messages in
// this package; Sync/FollowUp/DelayReq/DelayResp/PDelay wire shapes belong
// to the Port/Transport collaborators, out of scope here).
type Packet interface {
	MessageType() MessageType
	SetSequence(uint16)
}

// DecodePacket decodes an Announce or management message. Other message
// types are reported as unsupported: this package only carries the shapes
// the clock core itself inspects.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("empty packet")
	}
	msgType := SdoIDAndMsgType(b[0]).MsgType()
	switch msgType {
	case MessageAnnounce:
		p := &Announce{}
		if err := p.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return p, nil
	case MessageManagement:
		return decodeMgmtPacket(b)
	default:
		return nil, fmt.Errorf("unsupported message type %s for decoding in this package", msgType)
	}
}

// PTPText represents textual material in PTP messages (length-prefixed UTF-8).
type PTPText string

// UnmarshalBinary populates a PTPText from its wire form.
func (p *PTPText) UnmarshalBinary(rawBytes []byte) error {
	if len(rawBytes) == 0 {
		return fmt.Errorf("reading PTPText LengthField: empty input")
	}
	length := int(rawBytes[0])
	if length == 0 {
		*p = ""
		return nil
	}
	if len(rawBytes) < length+1 {
		return fmt.Errorf("text field is too short, need %d got %d", length+1, len(rawBytes))
	}
	*p = PTPText(rawBytes[1 : 1+length])
	return nil
}

// MarshalBinary converts a PTPText to its wire form, even-padded.
func (p *PTPText) MarshalBinary() ([]byte, error) {
	rawText := []byte(*p)
	if len(rawText) > 255 {
		return nil, fmt.Errorf("text is too long")
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(len(rawText)))
	buf.Write(rawText)
	if len(rawText)%2 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}
