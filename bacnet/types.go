// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bacnet implements the BACnet/IP wire codec: tagged application values,
// service message marshalling, the APDU envelope, the NPDU network header and the
// BVLC virtual-link framing carried in UDP datagrams.
//
// Every encode and decode function is a pure function of its arguments and is safe
// for concurrent use.
package bacnet

import "fmt"

// DefaultPort is the standard BACnet/IP UDP port
const DefaultPort = 47808

// MaxAPDULength is the maximum APDU length for BACnet/IP
const MaxAPDULength = 1476

// BVLCType is the BVLC protocol identifier
type BVLCType uint8

const (
	BVLCTypeBACnetIP BVLCType = 0x81
)

// BVLCFunction selects the BVLC message variant
type BVLCFunction uint8

const (
	BVLCResult                            BVLCFunction = 0x00
	BVLCWriteBroadcastDistributionTable   BVLCFunction = 0x01
	BVLCReadBroadcastDistributionTable    BVLCFunction = 0x02
	BVLCReadBroadcastDistributionTableAck BVLCFunction = 0x03
	BVLCForwardedNPDU                     BVLCFunction = 0x04
	BVLCRegisterForeignDevice             BVLCFunction = 0x05
	BVLCReadForeignDeviceTable            BVLCFunction = 0x06
	BVLCReadForeignDeviceTableAck         BVLCFunction = 0x07
	BVLCDeleteForeignDeviceTableEntry     BVLCFunction = 0x08
	BVLCDistributeBroadcastToNetwork      BVLCFunction = 0x09
	BVLCOriginalUnicastNPDU               BVLCFunction = 0x0A
	BVLCOriginalBroadcastNPDU             BVLCFunction = 0x0B
	BVLCSecureBVLL                        BVLCFunction = 0x0C
)

func (f BVLCFunction) String() string {
	names := map[BVLCFunction]string{
		BVLCResult:                            "Result",
		BVLCWriteBroadcastDistributionTable:   "Write-Broadcast-Distribution-Table",
		BVLCReadBroadcastDistributionTable:    "Read-Broadcast-Distribution-Table",
		BVLCReadBroadcastDistributionTableAck: "Read-Broadcast-Distribution-Table-Ack",
		BVLCForwardedNPDU:                     "Forwarded-NPDU",
		BVLCRegisterForeignDevice:             "Register-Foreign-Device",
		BVLCReadForeignDeviceTable:            "Read-Foreign-Device-Table",
		BVLCReadForeignDeviceTableAck:         "Read-Foreign-Device-Table-Ack",
		BVLCDeleteForeignDeviceTableEntry:     "Delete-Foreign-Device-Table-Entry",
		BVLCDistributeBroadcastToNetwork:      "Distribute-Broadcast-To-Network",
		BVLCOriginalUnicastNPDU:               "Original-Unicast-NPDU",
		BVLCOriginalBroadcastNPDU:             "Original-Broadcast-NPDU",
		BVLCSecureBVLL:                        "Secure-BVLL",
	}
	if name, ok := names[f]; ok {
		return name
	}
	return fmt.Sprintf("bvlc-function(0x%02x)", uint8(f))
}

// NPDUControl holds the bits of the NPDU control octet
type NPDUControl uint8

const (
	NPDUControlNetworkLayerMessage NPDUControl = 0x80
	NPDUControlDestSpecifier       NPDUControl = 0x20
	NPDUControlSourceSpecifier     NPDUControl = 0x08
	NPDUControlExpectingReply      NPDUControl = 0x04

	// Bits 6 and 4 are reserved and must be zero.
	npduControlReserved NPDUControl = 0x50
	npduControlPriority NPDUControl = 0x03
)

// Priority is the two-bit network priority carried in the NPDU control octet
type Priority uint8

const (
	PriorityNormal     Priority = 0
	PriorityUrgent     Priority = 1
	PriorityCritical   Priority = 2
	PriorityLifeSafety Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityUrgent:
		return "urgent"
	case PriorityCritical:
		return "critical-equipment"
	case PriorityLifeSafety:
		return "life-safety"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// NetworkMessageType identifies a network layer message
type NetworkMessageType uint8

const (
	NetworkMessageWhoIsRouterToNetwork          NetworkMessageType = 0x00
	NetworkMessageIAmRouterToNetwork            NetworkMessageType = 0x01
	NetworkMessageICouldBeRouterToNetwork       NetworkMessageType = 0x02
	NetworkMessageRejectMessageToNetwork        NetworkMessageType = 0x03
	NetworkMessageRouterBusyToNetwork           NetworkMessageType = 0x04
	NetworkMessageRouterAvailableToNetwork      NetworkMessageType = 0x05
	NetworkMessageInitializeRoutingTable        NetworkMessageType = 0x06
	NetworkMessageInitializeRoutingTableAck     NetworkMessageType = 0x07
	NetworkMessageEstablishConnectionToNetwork  NetworkMessageType = 0x08
	NetworkMessageDisconnectConnectionToNetwork NetworkMessageType = 0x09
	NetworkMessageWhatIsNetworkNumber           NetworkMessageType = 0x12
	NetworkMessageNetworkNumberIs               NetworkMessageType = 0x13

	// Message types from 0x80 carry a vendor identifier.
	NetworkMessageVendorProprietary NetworkMessageType = 0x80
)

// PDUType is the APDU type found in the high nibble of the first octet
type PDUType uint8

const (
	PDUTypeConfirmedRequest   PDUType = 0x00
	PDUTypeUnconfirmedRequest PDUType = 0x10
	PDUTypeSimpleAck          PDUType = 0x20
	PDUTypeComplexAck         PDUType = 0x30
	PDUTypeSegmentAck         PDUType = 0x40
	PDUTypeError              PDUType = 0x50
	PDUTypeReject             PDUType = 0x60
	PDUTypeAbort              PDUType = 0x70
)

func (t PDUType) String() string {
	names := map[PDUType]string{
		PDUTypeConfirmedRequest:   "Confirmed-Request",
		PDUTypeUnconfirmedRequest: "Unconfirmed-Request",
		PDUTypeSimpleAck:          "SimpleACK",
		PDUTypeComplexAck:         "ComplexACK",
		PDUTypeSegmentAck:         "SegmentACK",
		PDUTypeError:              "Error",
		PDUTypeReject:             "Reject",
		PDUTypeAbort:              "Abort",
	}
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("pdu-type(0x%02x)", uint8(t))
}

// PDU flag bits in the low nibble of the first APDU octet
const (
	PDUFlagSegmented            uint8 = 0x08
	PDUFlagMoreFollows          uint8 = 0x04
	PDUFlagSegmentedResponseAck uint8 = 0x02
)

// ConfirmedServiceChoice identifies a confirmed service
type ConfirmedServiceChoice uint8

const (
	ServiceAcknowledgeAlarm           ConfirmedServiceChoice = 0
	ServiceConfirmedCOVNotification   ConfirmedServiceChoice = 1
	ServiceConfirmedEventNotification ConfirmedServiceChoice = 2
	ServiceGetAlarmSummary            ConfirmedServiceChoice = 3
	ServiceGetEnrollmentSummary       ConfirmedServiceChoice = 4
	ServiceSubscribeCOV               ConfirmedServiceChoice = 5
	ServiceAtomicReadFile             ConfirmedServiceChoice = 6
	ServiceAtomicWriteFile            ConfirmedServiceChoice = 7
	ServiceAddListElement             ConfirmedServiceChoice = 8
	ServiceRemoveListElement          ConfirmedServiceChoice = 9
	ServiceCreateObject               ConfirmedServiceChoice = 10
	ServiceDeleteObject               ConfirmedServiceChoice = 11
	ServiceReadProperty               ConfirmedServiceChoice = 12
	ServiceReadPropertyMultiple       ConfirmedServiceChoice = 14
	ServiceWriteProperty              ConfirmedServiceChoice = 15
	ServiceWritePropertyMultiple      ConfirmedServiceChoice = 16
	ServiceDeviceCommunicationControl ConfirmedServiceChoice = 17
	ServiceConfirmedPrivateTransfer   ConfirmedServiceChoice = 18
	ServiceConfirmedTextMessage       ConfirmedServiceChoice = 19
	ServiceReinitializeDevice         ConfirmedServiceChoice = 20
	ServiceReadRange                  ConfirmedServiceChoice = 26
	ServiceSubscribeCOVProperty       ConfirmedServiceChoice = 28
	ServiceGetEventInformation        ConfirmedServiceChoice = 29
)

func (s ConfirmedServiceChoice) String() string {
	names := map[ConfirmedServiceChoice]string{
		ServiceAcknowledgeAlarm:           "AcknowledgeAlarm",
		ServiceConfirmedCOVNotification:   "ConfirmedCOVNotification",
		ServiceConfirmedEventNotification: "ConfirmedEventNotification",
		ServiceGetAlarmSummary:            "GetAlarmSummary",
		ServiceGetEnrollmentSummary:       "GetEnrollmentSummary",
		ServiceSubscribeCOV:               "SubscribeCOV",
		ServiceAtomicReadFile:             "AtomicReadFile",
		ServiceAtomicWriteFile:            "AtomicWriteFile",
		ServiceAddListElement:             "AddListElement",
		ServiceRemoveListElement:          "RemoveListElement",
		ServiceCreateObject:               "CreateObject",
		ServiceDeleteObject:               "DeleteObject",
		ServiceReadProperty:               "ReadProperty",
		ServiceReadPropertyMultiple:       "ReadPropertyMultiple",
		ServiceWriteProperty:              "WriteProperty",
		ServiceWritePropertyMultiple:      "WritePropertyMultiple",
		ServiceDeviceCommunicationControl: "DeviceCommunicationControl",
		ServiceConfirmedPrivateTransfer:   "ConfirmedPrivateTransfer",
		ServiceConfirmedTextMessage:       "ConfirmedTextMessage",
		ServiceReinitializeDevice:         "ReinitializeDevice",
		ServiceReadRange:                  "ReadRange",
		ServiceSubscribeCOVProperty:       "SubscribeCOVProperty",
		ServiceGetEventInformation:        "GetEventInformation",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// UnconfirmedServiceChoice identifies an unconfirmed service
type UnconfirmedServiceChoice uint8

const (
	ServiceIAm                          UnconfirmedServiceChoice = 0
	ServiceIHave                        UnconfirmedServiceChoice = 1
	ServiceUnconfirmedCOVNotification   UnconfirmedServiceChoice = 2
	ServiceUnconfirmedEventNotification UnconfirmedServiceChoice = 3
	ServiceUnconfirmedPrivateTransfer   UnconfirmedServiceChoice = 4
	ServiceUnconfirmedTextMessage       UnconfirmedServiceChoice = 5
	ServiceTimeSynchronization          UnconfirmedServiceChoice = 6
	ServiceWhoHas                       UnconfirmedServiceChoice = 7
	ServiceWhoIs                        UnconfirmedServiceChoice = 8
	ServiceUTCTimeSynchronization       UnconfirmedServiceChoice = 9
	ServiceWriteGroup                   UnconfirmedServiceChoice = 10
)

func (s UnconfirmedServiceChoice) String() string {
	names := map[UnconfirmedServiceChoice]string{
		ServiceIAm:                          "I-Am",
		ServiceIHave:                        "I-Have",
		ServiceUnconfirmedCOVNotification:   "UnconfirmedCOVNotification",
		ServiceUnconfirmedEventNotification: "UnconfirmedEventNotification",
		ServiceUnconfirmedPrivateTransfer:   "UnconfirmedPrivateTransfer",
		ServiceUnconfirmedTextMessage:       "UnconfirmedTextMessage",
		ServiceTimeSynchronization:          "TimeSynchronization",
		ServiceWhoHas:                       "Who-Has",
		ServiceWhoIs:                        "Who-Is",
		ServiceUTCTimeSynchronization:       "UTCTimeSynchronization",
		ServiceWriteGroup:                   "WriteGroup",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// ObjectType represents BACnet object types
type ObjectType uint16

const (
	ObjectTypeAnalogInput       ObjectType = 0
	ObjectTypeAnalogOutput      ObjectType = 1
	ObjectTypeAnalogValue       ObjectType = 2
	ObjectTypeBinaryInput       ObjectType = 3
	ObjectTypeBinaryOutput      ObjectType = 4
	ObjectTypeBinaryValue       ObjectType = 5
	ObjectTypeCalendar          ObjectType = 6
	ObjectTypeCommand           ObjectType = 7
	ObjectTypeDevice            ObjectType = 8
	ObjectTypeEventEnrollment   ObjectType = 9
	ObjectTypeFile              ObjectType = 10
	ObjectTypeGroup             ObjectType = 11
	ObjectTypeLoop              ObjectType = 12
	ObjectTypeMultiStateInput   ObjectType = 13
	ObjectTypeMultiStateOutput  ObjectType = 14
	ObjectTypeNotificationClass ObjectType = 15
	ObjectTypeProgram           ObjectType = 16
	ObjectTypeSchedule          ObjectType = 17
	ObjectTypeAveraging         ObjectType = 18
	ObjectTypeMultiStateValue   ObjectType = 19
	ObjectTypeTrendLog          ObjectType = 20
	ObjectTypeNetworkPort       ObjectType = 56
)

var objectTypeNames = map[ObjectType]string{
	ObjectTypeAnalogInput:       "analog-input",
	ObjectTypeAnalogOutput:      "analog-output",
	ObjectTypeAnalogValue:       "analog-value",
	ObjectTypeBinaryInput:       "binary-input",
	ObjectTypeBinaryOutput:      "binary-output",
	ObjectTypeBinaryValue:       "binary-value",
	ObjectTypeCalendar:          "calendar",
	ObjectTypeCommand:           "command",
	ObjectTypeDevice:            "device",
	ObjectTypeEventEnrollment:   "event-enrollment",
	ObjectTypeFile:              "file",
	ObjectTypeGroup:             "group",
	ObjectTypeLoop:              "loop",
	ObjectTypeMultiStateInput:   "multi-state-input",
	ObjectTypeMultiStateOutput:  "multi-state-output",
	ObjectTypeNotificationClass: "notification-class",
	ObjectTypeProgram:           "program",
	ObjectTypeSchedule:          "schedule",
	ObjectTypeAveraging:         "averaging",
	ObjectTypeMultiStateValue:   "multi-state-value",
	ObjectTypeTrendLog:          "trend-log",
	ObjectTypeNetworkPort:       "network-port",
}

func (o ObjectType) String() string {
	if name, ok := objectTypeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("vendor-specific(%d)", uint16(o))
}

// ParseObjectType parses a string to ObjectType
func ParseObjectType(s string) (ObjectType, bool) {
	aliases := map[string]ObjectType{
		"ai":  ObjectTypeAnalogInput,
		"ao":  ObjectTypeAnalogOutput,
		"av":  ObjectTypeAnalogValue,
		"bi":  ObjectTypeBinaryInput,
		"bo":  ObjectTypeBinaryOutput,
		"bv":  ObjectTypeBinaryValue,
		"dev": ObjectTypeDevice,
		"msi": ObjectTypeMultiStateInput,
		"mso": ObjectTypeMultiStateOutput,
		"msv": ObjectTypeMultiStateValue,
		"tl":  ObjectTypeTrendLog,
	}
	if t, ok := aliases[s]; ok {
		return t, true
	}
	for t, name := range objectTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// PropertyIdentifier represents BACnet property identifiers
type PropertyIdentifier uint32

const (
	PropertyAll                        PropertyIdentifier = 8
	PropertyApplicationSoftwareVersion PropertyIdentifier = 12
	PropertyCOVIncrement               PropertyIdentifier = 22
	PropertyDescription                PropertyIdentifier = 28
	PropertyEventState                 PropertyIdentifier = 36
	PropertyFirmwareRevision           PropertyIdentifier = 44
	PropertyLocation                   PropertyIdentifier = 58
	PropertyMaxApduLengthAccepted      PropertyIdentifier = 62
	PropertyModelName                  PropertyIdentifier = 70
	PropertyObjectIdentifier           PropertyIdentifier = 75
	PropertyObjectList                 PropertyIdentifier = 76
	PropertyObjectName                 PropertyIdentifier = 77
	PropertyObjectType                 PropertyIdentifier = 79
	PropertyOutOfService               PropertyIdentifier = 81
	PropertyPresentValue               PropertyIdentifier = 85
	PropertyPriorityArray              PropertyIdentifier = 87
	PropertyProtocolVersion            PropertyIdentifier = 98
	PropertyReliability                PropertyIdentifier = 103
	PropertyRelinquishDefault          PropertyIdentifier = 104
	PropertySegmentationSupported      PropertyIdentifier = 107
	PropertyStatusFlags                PropertyIdentifier = 111
	PropertySystemStatus               PropertyIdentifier = 112
	PropertyUnits                      PropertyIdentifier = 117
	PropertyVendorIdentifier           PropertyIdentifier = 120
	PropertyVendorName                 PropertyIdentifier = 121
	PropertyProtocolRevision           PropertyIdentifier = 139
	PropertyDatabaseRevision           PropertyIdentifier = 155
)

var propertyNames = map[PropertyIdentifier]string{
	PropertyAll:                        "all",
	PropertyApplicationSoftwareVersion: "application-software-version",
	PropertyCOVIncrement:               "cov-increment",
	PropertyDescription:                "description",
	PropertyEventState:                 "event-state",
	PropertyFirmwareRevision:           "firmware-revision",
	PropertyLocation:                   "location",
	PropertyMaxApduLengthAccepted:      "max-apdu-length-accepted",
	PropertyModelName:                  "model-name",
	PropertyObjectIdentifier:           "object-identifier",
	PropertyObjectList:                 "object-list",
	PropertyObjectName:                 "object-name",
	PropertyObjectType:                 "object-type",
	PropertyOutOfService:               "out-of-service",
	PropertyPresentValue:               "present-value",
	PropertyPriorityArray:              "priority-array",
	PropertyProtocolVersion:            "protocol-version",
	PropertyReliability:                "reliability",
	PropertyRelinquishDefault:          "relinquish-default",
	PropertySegmentationSupported:      "segmentation-supported",
	PropertyStatusFlags:                "status-flags",
	PropertySystemStatus:               "system-status",
	PropertyUnits:                      "units",
	PropertyVendorIdentifier:           "vendor-identifier",
	PropertyVendorName:                 "vendor-name",
	PropertyProtocolRevision:           "protocol-revision",
	PropertyDatabaseRevision:           "database-revision",
}

func (p PropertyIdentifier) String() string {
	if name, ok := propertyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("property(%d)", uint32(p))
}

// ParsePropertyIdentifier parses a string to PropertyIdentifier
func ParsePropertyIdentifier(s string) (PropertyIdentifier, bool) {
	aliases := map[string]PropertyIdentifier{
		"oid":  PropertyObjectIdentifier,
		"name": PropertyObjectName,
		"type": PropertyObjectType,
		"pv":   PropertyPresentValue,
		"desc": PropertyDescription,
		"sf":   PropertyStatusFlags,
		"oos":  PropertyOutOfService,
		"pa":   PropertyPriorityArray,
		"rd":   PropertyRelinquishDefault,
	}
	if p, ok := aliases[s]; ok {
		return p, true
	}
	for p, name := range propertyNames {
		if name == s {
			return p, true
		}
	}
	return 0, false
}

// Segmentation represents the BACnet segmentation capability
type Segmentation uint8

const (
	SegmentationBoth     Segmentation = 0
	SegmentationTransmit Segmentation = 1
	SegmentationReceive  Segmentation = 2
	SegmentationNone     Segmentation = 3
)

func (s Segmentation) String() string {
	names := map[Segmentation]string{
		SegmentationBoth:     "segmented-both",
		SegmentationTransmit: "segmented-transmit",
		SegmentationReceive:  "segmented-receive",
		SegmentationNone:     "no-segmentation",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("segmentation(%d)", uint8(s))
}

// TagClass is the class bit of a tag octet
type TagClass uint8

const (
	TagClassApplication TagClass = 0
	TagClassContext     TagClass = 1
)

// ApplicationTag is the tag number of an application-tagged value
type ApplicationTag uint8

const (
	TagNull            ApplicationTag = 0
	TagBoolean         ApplicationTag = 1
	TagUnsignedInt     ApplicationTag = 2
	TagSignedInt       ApplicationTag = 3
	TagReal            ApplicationTag = 4
	TagDouble          ApplicationTag = 5
	TagOctetString     ApplicationTag = 6
	TagCharacterString ApplicationTag = 7
	TagBitString       ApplicationTag = 8
	TagEnumerated      ApplicationTag = 9
	TagDate            ApplicationTag = 10
	TagTime            ApplicationTag = 11
	TagObjectID        ApplicationTag = 12
)

func (t ApplicationTag) String() string {
	names := map[ApplicationTag]string{
		TagNull:            "null",
		TagBoolean:         "boolean",
		TagUnsignedInt:     "unsigned",
		TagSignedInt:       "signed",
		TagReal:            "real",
		TagDouble:          "double",
		TagOctetString:     "octet-string",
		TagCharacterString: "character-string",
		TagBitString:       "bit-string",
		TagEnumerated:      "enumerated",
		TagDate:            "date",
		TagTime:            "time",
		TagObjectID:        "object-identifier",
	}
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("application-tag(%d)", uint8(t))
}

// ObjectIdentifier represents a BACnet object identifier (type + instance)
type ObjectIdentifier struct {
	Type     ObjectType
	Instance uint32
}

// MaxInstance is the largest object instance number
const MaxInstance = 0x3FFFFF

// NewObjectIdentifier creates a new ObjectIdentifier
func NewObjectIdentifier(objectType ObjectType, instance uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     objectType,
		Instance: instance,
	}
}

// Encode packs the object identifier into its 32-bit wire value
func (o ObjectIdentifier) Encode() uint32 {
	return (uint32(o.Type&0x3FF) << 22) | (o.Instance & MaxInstance)
}

// DecodeObjectIdentifier unpacks a 32-bit wire value
func DecodeObjectIdentifier(value uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     ObjectType((value >> 22) & 0x3FF),
		Instance: value & MaxInstance,
	}
}

func (o ObjectIdentifier) String() string {
	return fmt.Sprintf("%s:%d", o.Type.String(), o.Instance)
}
