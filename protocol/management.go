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

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

var identity PortIdentity

// base struct sizes
const tlvBaseSize uint16 = 2

func init() {
	// store our PID as identity that we use to talk to a running instance
	identity.PortNumber = uint16(os.Getpid())
}

// TLVType is the type tag of a type-length-value block, Table 52.
type TLVType uint16

// TLV types relevant to management traffic.
const (
	TLVManagement            TLVType = 0x0001
	TLVManagementErrorStatus TLVType = 0x0002
)

// TLVHead is the common prefix of every TLV, Table 51.
type TLVHead struct {
	TLVType     TLVType
	LengthField uint16
}

// ManagementTLVHead Table 58 - Management TLV fields
type ManagementTLVHead struct {
	TLVHead

	ManagementID ManagementID
}

// MgmtID returns ManagementID
func (p *ManagementTLVHead) MgmtID() ManagementID { return p.ManagementID }

// TLVLength returns the TLV's LengthField, the total byte count following
// it (ManagementID plus payload) -- tlvBaseSize(2) alone means a bodyless
// request, per Table 58.
func (p *ManagementTLVHead) TLVLength() uint16 { return p.LengthField }

// ManagementMsgHead Table 56 - Management message fields
type ManagementMsgHead struct {
	Header

	TargetPortIdentity   PortIdentity
	StartingBoundaryHops uint8
	BoundaryHops         uint8
	ActionField          Action
	Reserved             uint8
}

// Action returns ActionField
func (p *ManagementMsgHead) Action() Action { return p.ActionField }

// Head returns the message head itself, letting callers that only hold a
// ManagementPacket reach TargetPortIdentity/BoundaryHops without a type
// switch over every concrete management message shape.
func (p *ManagementMsgHead) Head() *ManagementMsgHead { return p }

// Action indicates the action to be taken on receipt of the message, Table 57.
type Action uint8

// actions as in Table 57 Values of the actionField
const (
	GET Action = iota
	SET
	RESPONSE
	COMMAND
	ACKNOWLEDGE
)

func (a Action) String() string {
	switch a {
	case GET:
		return "GET"
	case SET:
		return "SET"
	case RESPONSE:
		return "RESPONSE"
	case COMMAND:
		return "COMMAND"
	case ACKNOWLEDGE:
		return "ACKNOWLEDGE"
	}
	return "UNKNOWN_ACTION"
}

// ManagementID is type for Management IDs, Table 59.
type ManagementID uint16

// Management IDs this package knows how to encode or decode.
const (
	IDNullPTPManagement        ManagementID = 0x0000
	IDClockDescription         ManagementID = 0x0001
	IDUserDescription          ManagementID = 0x0002
	IDSaveInNonVolatileStorage ManagementID = 0x0003
	IDResetNonVolatileStorage  ManagementID = 0x0004
	IDInitialize               ManagementID = 0x0005
	IDFaultLog                 ManagementID = 0x0006
	IDFaultLogReset            ManagementID = 0x0007

	IDDefaultDataSet        ManagementID = 0x2000
	IDCurrentDataSet        ManagementID = 0x2001
	IDParentDataSet         ManagementID = 0x2002
	IDTimePropertiesDataSet ManagementID = 0x2003
	IDPortDataSet           ManagementID = 0x2004

	// IDTimeStatusNP is ptp4l's non-standard TIME_STATUS_NP, carrying
	// servo-facing state (master offset, ingress time, GM identity) that
	// has no standard managementId of its own.
	IDTimeStatusNP ManagementID = 0xC000
)

// idsWithNoGetOrSetSupport lists the managementIds for which the bottom
// dispatch reports NOT_SUPPORTED on SET and COMMAND even though GET against
// the same ID returns real data through managementGetResponse. This mirrors
// clock_manage()/clock_management_get_response()/clock_management_set() in
// linuxptp's clock.c: a successful GET response returns before ever
// reaching the NOT_SUPPORTED switch, but clock_management_set is an empty
// switch (every SET is silently a no-op that still counts as "handled" by
// the caller's fallthrough), and COMMAND never calls get/set at all, so
// both land in the same NOT_SUPPORTED case list GET never visits.
var idsWithNoGetOrSetSupport = map[ManagementID]bool{
	IDUserDescription:       true,
	IDDefaultDataSet:        true,
	IDCurrentDataSet:        true,
	IDParentDataSet:         true,
	IDTimePropertiesDataSet: true,
	IDTimeStatusNP:          true,
}

// ManagementErrorID is an enum for possible management errors, Table 109.
type ManagementErrorID uint16

// Table 109 ManagementErrorID enumeration
const (
	ErrorResponseTooBig ManagementErrorID = 0x0001
	ErrorNoSuchID       ManagementErrorID = 0x0002
	ErrorWrongLength    ManagementErrorID = 0x0003
	ErrorWrongValue     ManagementErrorID = 0x0004
	ErrorNotSetable     ManagementErrorID = 0x0005
	ErrorNotSupported   ManagementErrorID = 0x0006
	ErrorUnpopulated    ManagementErrorID = 0x0007
	ErrorGeneralError   ManagementErrorID = 0xFFFE
)

var managementErrorIDToString = map[ManagementErrorID]string{
	ErrorResponseTooBig: "RESPONSE_TOO_BIG",
	ErrorNoSuchID:       "NO_SUCH_ID",
	ErrorWrongLength:    "WRONG_LENGTH",
	ErrorWrongValue:     "WRONG_VALUE",
	ErrorNotSetable:     "NOT_SETABLE",
	ErrorNotSupported:   "NOT_SUPPORTED",
	ErrorUnpopulated:    "UNPOPULATED",
	ErrorGeneralError:   "GENERAL_ERROR",
}

func (t ManagementErrorID) String() string {
	if s, ok := managementErrorIDToString[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_ERROR_ID=%d", uint16(t))
}

func (t ManagementErrorID) Error() string { return t.String() }

// ManagementPacket abstracts over the different management packet shapes.
type ManagementPacket interface {
	Packet

	Action() Action
	MgmtID() ManagementID
	Head() *ManagementMsgHead
	TLVLength() uint16
}

// CurrentDataSetTLV Table 84 - CURRENT_DATA_SET management TLV data field
type CurrentDataSetTLV struct {
	StepsRemoved     uint16
	OffsetFromMaster TimeInterval
	MeanPathDelay    TimeInterval
}

// ManagementMsgCurrentDataSet is header + CurrentDataSet
type ManagementMsgCurrentDataSet struct {
	ManagementMsgHead
	ManagementTLVHead
	CurrentDataSetTLV
}

// DefaultDataSetTLV Table 69 - DEFAULT_DATA_SET management TLV data field
type DefaultDataSetTLV struct {
	SoTSC         uint8
	Reserved0     uint8
	NumberPorts   uint16
	Priority1     uint8
	ClockQuality  ClockQuality
	Priority2     uint8
	ClockIdentity ClockIdentity
	DomainNumber  uint8
	Reserved1     uint8
}

// ManagementMsgDefaultDataSet is header + DefaultDataSet
type ManagementMsgDefaultDataSet struct {
	ManagementMsgHead
	ManagementTLVHead
	DefaultDataSetTLV
}

// ParentDataSetTLV Table 85 - PARENT_DATA_SET management TLV data field
type ParentDataSetTLV struct {
	ParentPortIdentity                    PortIdentity
	PS                                    uint8
	Reserved                              uint8
	ObservedParentOffsetScaledLogVariance uint16
	ObservedParentClockPhaseChangeRate    uint32
	GrandmasterPriority1                  uint8
	GrandmasterClockQuality               ClockQuality
	GrandmasterPriority2                  uint8
	GrandmasterIdentity                   ClockIdentity
}

// ManagementMsgParentDataSet is header + ParentDataSet
type ManagementMsgParentDataSet struct {
	ManagementMsgHead
	ManagementTLVHead
	ParentDataSetTLV
}

// TimePropertiesDataSetTLV Table 86 - TIME_PROPERTIES_DATA_SET management
// TLV data field. Not present in the retained pack sources; authored fresh
// in the same fixed-layout idiom as its CurrentDataSet/ParentDataSet
// siblings, since the clock core's TimePropertiesDS (spec.md §3) needs a
// wire form to answer management GETs against.
type TimePropertiesDataSetTLV struct {
	CurrentUTCOffset      int16
	Flags                 uint8
	TimeSource            TimeSource
}

// ManagementMsgTimePropertiesDataSet is header + TimePropertiesDataSet
type ManagementMsgTimePropertiesDataSet struct {
	ManagementMsgHead
	ManagementTLVHead
	TimePropertiesDataSetTLV
}

// UserDescriptionTLV carries the USER_DESCRIPTION managementId's payload,
// a single PTPText (clock.c's clock_management_get_response USER_DESCRIPTION
// case just copies clock->desc.userDescription verbatim).
type UserDescriptionTLV struct {
	UserDescription PTPText
}

// ManagementMsgUserDescription is header + UserDescriptionTLV
type ManagementMsgUserDescription struct {
	ManagementMsgHead
	ManagementTLVHead
	UserDescriptionTLV
}

// MarshalBinary encodes a ManagementMsgUserDescription, the only management
// message in this package whose body is variable-length.
func (p *ManagementMsgUserDescription) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	be := binary.BigEndian
	if err := binary.Write(&buf, be, &p.ManagementMsgHead); err != nil {
		return nil, fmt.Errorf("writing ManagementMsgUserDescription ManagementMsgHead: %w", err)
	}
	if err := binary.Write(&buf, be, &p.ManagementTLVHead); err != nil {
		return nil, fmt.Errorf("writing ManagementMsgUserDescription ManagementTLVHead: %w", err)
	}
	dd, err := p.UserDescription.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("writing ManagementMsgUserDescription UserDescription: %w", err)
	}
	buf.Write(dd)
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a ManagementMsgUserDescription.
func (p *ManagementMsgUserDescription) UnmarshalBinary(rawBytes []byte) error {
	reader := bytes.NewReader(rawBytes)
	be := binary.BigEndian
	if err := binary.Read(reader, be, &p.ManagementMsgHead); err != nil {
		return fmt.Errorf("reading ManagementMsgUserDescription ManagementMsgHead: %w", err)
	}
	if err := binary.Read(reader, be, &p.ManagementTLVHead); err != nil {
		return fmt.Errorf("reading ManagementMsgUserDescription ManagementTLVHead: %w", err)
	}
	rest := make([]byte, reader.Len())
	if _, err := io.ReadFull(reader, rest); err != nil {
		return err
	}
	return p.UserDescription.UnmarshalBinary(rest)
}

// ScaledNS is a 96-bit scaled nanosecond quantity (Table 50-ish
// non-standard field used by TIME_STATUS_NP), stored as two halves the
// way ptp4l encodes scaledLastGmPhaseChange on the wire.
type ScaledNS struct {
	NanosecondsMSB uint16
	NanosecondsLSB uint64
	FractionalNanoseconds uint16
}

// TimeStatusNP is ptp4l's non-standard TIME_STATUS_NP payload: a snapshot
// of the servo-facing quantities clock_management_get_response computes
// from clock->master_offset, clock->status and the current best clock,
// handed out over the management endpoint for diagnostic tooling.
type TimeStatusNP struct {
	MasterOffsetNS             int64
	IngressTimeNS              int64
	CumulativeScaledRateOffset int32
	ScaledLastGmPhaseChange    int32
	GMTimeBaseIndicator        uint16
	LastGmPhaseChange          ScaledNS
	GMPresent                  int32
	GMIdentity                 ClockIdentity
}

// ManagementMsgTimeStatusNP is header + TimeStatusNP
type ManagementMsgTimeStatusNP struct {
	ManagementMsgHead
	ManagementTLVHead
	TimeStatusNP
}

// ManagementErrorStatusTLV Table 108 MANAGEMENT_ERROR_STATUS TLV format
type ManagementErrorStatusTLV struct {
	TLVHead

	ManagementErrorID ManagementErrorID
	ManagementID      ManagementID
	Reserved          int32
	DisplayData       PTPText
}

// MgmtID returns the managementId the error status is reporting against,
// not the error TLV's own (fixed) type.
func (p *ManagementErrorStatusTLV) MgmtID() ManagementID { return p.ManagementID }

// TLVLength returns the error TLV's LengthField.
func (p *ManagementErrorStatusTLV) TLVLength() uint16 { return p.LengthField }

// ManagementMsgErrorStatus is header + ManagementErrorStatusTLV
type ManagementMsgErrorStatus struct {
	ManagementMsgHead
	ManagementErrorStatusTLV
}

// UnmarshalBinary parses []byte and populates struct fields
func (p *ManagementMsgErrorStatus) UnmarshalBinary(rawBytes []byte) error {
	reader := bytes.NewReader(rawBytes)
	be := binary.BigEndian
	if err := binary.Read(reader, be, &p.ManagementMsgHead); err != nil {
		return fmt.Errorf("reading ManagementMsgErrorStatus ManagementMsgHead: %w", err)
	}
	if err := binary.Read(reader, be, &p.ManagementErrorStatusTLV.TLVHead); err != nil {
		return fmt.Errorf("reading ManagementMsgErrorStatus TLVHead: %w", err)
	}
	if err := binary.Read(reader, be, &p.ManagementErrorStatusTLV.ManagementErrorID); err != nil {
		return fmt.Errorf("reading ManagementMsgErrorStatus ManagementErrorID: %w", err)
	}
	if err := binary.Read(reader, be, &p.ManagementErrorStatusTLV.ManagementID); err != nil {
		return fmt.Errorf("reading ManagementMsgErrorStatus ManagementID: %w", err)
	}
	if err := binary.Read(reader, be, &p.ManagementErrorStatusTLV.Reserved); err != nil {
		return fmt.Errorf("reading ManagementMsgErrorStatus Reserved: %w", err)
	}
	if reader.Len() == 0 {
		// DisplayData is completely optional
		return nil
	}
	data := make([]byte, reader.Len())
	if _, err := io.ReadFull(reader, data); err != nil {
		return err
	}
	return p.DisplayData.UnmarshalBinary(data)
}

// MarshalBinary converts packet to []bytes
func (p *ManagementMsgErrorStatus) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	be := binary.BigEndian
	if err := binary.Write(&buf, be, &p.ManagementMsgHead); err != nil {
		return nil, fmt.Errorf("writing ManagementMsgErrorStatus ManagementMsgHead: %w", err)
	}
	if err := binary.Write(&buf, be, &p.ManagementErrorStatusTLV.TLVHead); err != nil {
		return nil, fmt.Errorf("writing ManagementMsgErrorStatus TLVHead: %w", err)
	}
	if err := binary.Write(&buf, be, &p.ManagementErrorStatusTLV.ManagementErrorID); err != nil {
		return nil, fmt.Errorf("writing ManagementMsgErrorStatus ManagementErrorID: %w", err)
	}
	if err := binary.Write(&buf, be, &p.ManagementErrorStatusTLV.ManagementID); err != nil {
		return nil, fmt.Errorf("writing ManagementMsgErrorStatus ManagementID: %w", err)
	}
	if err := binary.Write(&buf, be, &p.ManagementErrorStatusTLV.Reserved); err != nil {
		return nil, fmt.Errorf("writing ManagementMsgErrorStatus Reserved: %w", err)
	}
	if p.DisplayData != "" {
		dd, err := p.DisplayData.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("writing ManagementMsgErrorStatus DisplayData: %w", err)
		}
		buf.Write(dd)
	}
	return buf.Bytes(), nil
}

// NewManagementError builds a ready-to-send MANAGEMENT_ERROR_STATUS reply
// to req, the way clock_management_send_error assembles one in clock.c.
func NewManagementError(req *ManagementMsgHead, id ManagementID, errID ManagementErrorID) *ManagementMsgErrorStatus {
	size := uint16(2 + 2 + 4) // ManagementErrorID + ManagementID + Reserved
	return &ManagementMsgErrorStatus{
		ManagementMsgHead: ManagementMsgHead{
			Header: Header{
				SdoIDAndMsgType:    NewSdoIDAndMsgType(MessageManagement, 0),
				Version:            Version,
				MessageLength:      headerSize + size,
				SourcePortIdentity: identity,
			},
			TargetPortIdentity:   req.SourcePortIdentity,
			StartingBoundaryHops: req.StartingBoundaryHops,
			BoundaryHops:         req.StartingBoundaryHops,
			ActionField:          RESPONSE,
		},
		ManagementErrorStatusTLV: ManagementErrorStatusTLV{
			TLVHead: TLVHead{
				TLVType:     TLVManagementErrorStatus,
				LengthField: tlvBaseSize + size,
			},
			ManagementErrorID: errID,
			ManagementID:      id,
		},
	}
}

// CurrentDataSetRequest prepares request packet for CURRENT_DATA_SET request
func CurrentDataSetRequest() *ManagementMsgCurrentDataSet {
	size := uint16(binary.Size(CurrentDataSetTLV{}))
	return &ManagementMsgCurrentDataSet{
		ManagementMsgHead: ManagementMsgHead{
			Header: Header{
				SdoIDAndMsgType:    NewSdoIDAndMsgType(MessageManagement, 0),
				Version:            Version,
				MessageLength:      headerSize + size,
				SourcePortIdentity: identity,
			},
			TargetPortIdentity:   WildcardPortIdentity,
			StartingBoundaryHops: 1,
			BoundaryHops:         1,
			ActionField:          GET,
		},
		ManagementTLVHead: ManagementTLVHead{
			TLVHead: TLVHead{
				TLVType:     TLVManagement,
				LengthField: tlvBaseSize + size,
			},
			ManagementID: IDCurrentDataSet,
		},
	}
}

// DefaultDataSetRequest prepares request packet for DEFAULT_DATA_SET request
func DefaultDataSetRequest() *ManagementMsgDefaultDataSet {
	size := uint16(binary.Size(DefaultDataSetTLV{}))
	return &ManagementMsgDefaultDataSet{
		ManagementMsgHead: ManagementMsgHead{
			Header: Header{
				SdoIDAndMsgType:    NewSdoIDAndMsgType(MessageManagement, 0),
				Version:            Version,
				MessageLength:      headerSize + size,
				SourcePortIdentity: identity,
			},
			TargetPortIdentity:   WildcardPortIdentity,
			StartingBoundaryHops: 1,
			BoundaryHops:         1,
			ActionField:          GET,
		},
		ManagementTLVHead: ManagementTLVHead{
			TLVHead: TLVHead{
				TLVType:     TLVManagement,
				LengthField: tlvBaseSize + size,
			},
			ManagementID: IDDefaultDataSet,
		},
	}
}

// ParentDataSetRequest prepares request packet for PARENT_DATA_SET request
func ParentDataSetRequest() *ManagementMsgParentDataSet {
	size := uint16(binary.Size(ParentDataSetTLV{}))
	return &ManagementMsgParentDataSet{
		ManagementMsgHead: ManagementMsgHead{
			Header: Header{
				SdoIDAndMsgType:    NewSdoIDAndMsgType(MessageManagement, 0),
				Version:            Version,
				MessageLength:      headerSize + size,
				SourcePortIdentity: identity,
			},
			TargetPortIdentity:   WildcardPortIdentity,
			StartingBoundaryHops: 1,
			BoundaryHops:         1,
			ActionField:          GET,
		},
		ManagementTLVHead: ManagementTLVHead{
			TLVHead: TLVHead{
				TLVType:     TLVManagement,
				LengthField: tlvBaseSize + size,
			},
			ManagementID: IDParentDataSet,
		},
	}
}

// IsNotSupported reports whether id falls in the NOT_SUPPORTED table for
// SET and COMMAND actions, per idsWithNoGetOrSetSupport above.
func IsNotSupported(id ManagementID) bool { return idsWithNoGetOrSetSupport[id] }

func decodeMgmtPacket(data []byte) (Packet, error) {
	var err error
	head := ManagementMsgHead{}
	tlvHead := ManagementTLVHead{}
	r := bytes.NewReader(data)
	if err = binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.BigEndian, &tlvHead.TLVHead); err != nil {
		return nil, err
	}
	if tlvHead.TLVType == TLVManagementErrorStatus {
		errorPacket := new(ManagementMsgErrorStatus)
		if err := errorPacket.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("got Management Error in response but failed to decode it: %w", err)
		}
		return errorPacket, nil
	}

	if tlvHead.TLVType != TLVManagement {
		return nil, fmt.Errorf("got TLV type 0x%x instead of 0x%x", tlvHead.TLVType, TLVManagement)
	}

	if err = binary.Read(r, binary.BigEndian, &tlvHead.ManagementID); err != nil {
		return nil, err
	}
	switch tlvHead.ManagementID {
	case IDDefaultDataSet:
		tlv := &DefaultDataSetTLV{}
		if err := binary.Read(r, binary.BigEndian, tlv); err != nil {
			return nil, err
		}
		return &ManagementMsgDefaultDataSet{
			ManagementMsgHead: head,
			ManagementTLVHead: tlvHead,
			DefaultDataSetTLV: *tlv,
		}, nil
	case IDCurrentDataSet:
		tlv := &CurrentDataSetTLV{}
		if err := binary.Read(r, binary.BigEndian, tlv); err != nil {
			return nil, err
		}
		return &ManagementMsgCurrentDataSet{
			ManagementMsgHead: head,
			ManagementTLVHead: tlvHead,
			CurrentDataSetTLV: *tlv,
		}, nil
	case IDParentDataSet:
		tlv := &ParentDataSetTLV{}
		if err := binary.Read(r, binary.BigEndian, tlv); err != nil {
			return nil, err
		}
		return &ManagementMsgParentDataSet{
			ManagementMsgHead: head,
			ManagementTLVHead: tlvHead,
			ParentDataSetTLV:  *tlv,
		}, nil
	case IDTimePropertiesDataSet:
		tlv := &TimePropertiesDataSetTLV{}
		if err := binary.Read(r, binary.BigEndian, tlv); err != nil {
			return nil, err
		}
		return &ManagementMsgTimePropertiesDataSet{
			ManagementMsgHead:        head,
			ManagementTLVHead:        tlvHead,
			TimePropertiesDataSetTLV: *tlv,
		}, nil
	case IDUserDescription:
		p := &ManagementMsgUserDescription{}
		if err := p.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return p, nil
	case IDTimeStatusNP:
		tlv := &TimeStatusNP{}
		if err := binary.Read(r, binary.BigEndian, tlv); err != nil {
			return nil, err
		}
		return &ManagementMsgTimeStatusNP{
			ManagementMsgHead: head,
			ManagementTLVHead: tlvHead,
			TimeStatusNP:      *tlv,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported management TLV 0x%x", tlvHead.ManagementID)
	}
}
