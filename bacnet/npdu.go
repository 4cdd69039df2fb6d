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

package bacnet

import (
	"encoding/binary"
	"fmt"
)

// ProtocolVersion is the only NPDU protocol version
const ProtocolVersion uint8 = 0x01

// GlobalBroadcastNetwork addresses every network when used as a destination
const GlobalBroadcastNetwork uint16 = 0xFFFF

// DefaultHopCount is the hop count given to routed messages
const DefaultHopCount uint8 = 255

// NetworkAddress is a network number and the MAC address of a station on it.
// An empty MAC is a broadcast on that network.
type NetworkAddress struct {
	Net uint16
	MAC []byte
}

// NPDU is a network-layer message. HopCount is carried only with a Destination.
// MessageType and VendorID are carried only for network-layer messages, VendorID
// only from NetworkMessageVendorProprietary upwards.
type NPDU struct {
	ExpectingReply bool
	Priority       Priority
	Destination    *NetworkAddress
	HopCount       uint8
	Source         *NetworkAddress
	NetworkMessage bool
	MessageType    NetworkMessageType
	VendorID       uint16
	Data           []byte
}

// NewRequest wraps an encoded APDU in a local NPDU with normal priority.
// ExpectingReply is set when the APDU is a confirmed request.
func NewRequest(apdu []byte) *NPDU {
	return &NPDU{
		ExpectingReply: ExpectsReply(apdu),
		Priority:       PriorityNormal,
		Data:           apdu,
	}
}

// ExpectsReply reports whether an encoded APDU is a confirmed request
func ExpectsReply(apdu []byte) bool {
	return len(apdu) > 0 && PDUType(apdu[0]&0xF0) == PDUTypeConfirmedRequest
}

// Control returns the control octet for the message
func (n *NPDU) Control() NPDUControl {
	control := NPDUControl(n.Priority) & npduControlPriority
	if n.NetworkMessage {
		control |= NPDUControlNetworkLayerMessage
	}
	if n.Destination != nil {
		control |= NPDUControlDestSpecifier
	}
	if n.Source != nil {
		control |= NPDUControlSourceSpecifier
	}
	if n.ExpectingReply {
		control |= NPDUControlExpectingReply
	}
	return control
}

// Encode encodes the network header followed by Data
func (n *NPDU) Encode() ([]byte, error) {
	buf := make([]byte, 0, 2+len(n.Data)+16)
	buf = append(buf, ProtocolVersion, byte(n.Control()))

	if n.Destination != nil {
		if len(n.Destination.MAC) > 0xFF {
			return nil, fmt.Errorf("%w: destination address of %d octets", ErrInvalidNPDU, len(n.Destination.MAC))
		}
		buf = binary.BigEndian.AppendUint16(buf, n.Destination.Net)
		buf = append(buf, byte(len(n.Destination.MAC)))
		buf = append(buf, n.Destination.MAC...)
	}
	if n.Source != nil {
		if len(n.Source.MAC) > 0xFF {
			return nil, fmt.Errorf("%w: source address of %d octets", ErrInvalidNPDU, len(n.Source.MAC))
		}
		buf = binary.BigEndian.AppendUint16(buf, n.Source.Net)
		buf = append(buf, byte(len(n.Source.MAC)))
		buf = append(buf, n.Source.MAC...)
	}
	if n.Destination != nil {
		buf = append(buf, n.HopCount)
	}
	if n.NetworkMessage {
		buf = append(buf, byte(n.MessageType))
		if n.MessageType >= NetworkMessageVendorProprietary {
			buf = binary.BigEndian.AppendUint16(buf, n.VendorID)
		}
	}

	return append(buf, n.Data...), nil
}

// DecodeNPDU decodes a network-layer message. Addresses are copied; Data
// aliases data.
func DecodeNPDU(data []byte) (*NPDU, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %d octets", ErrInvalidNPDU, len(data))
	}
	if data[0] != ProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidNPDU, data[0])
	}

	control := NPDUControl(data[1])
	if control&npduControlReserved != 0 {
		return nil, fmt.Errorf("%w: reserved control bits set in 0x%02x", ErrInvalidNPDU, uint8(control))
	}

	npdu := &NPDU{
		ExpectingReply: control&NPDUControlExpectingReply != 0,
		Priority:       Priority(control & npduControlPriority),
		NetworkMessage: control&NPDUControlNetworkLayerMessage != 0,
	}
	offset := 2

	if control&NPDUControlDestSpecifier != 0 {
		addr, n, err := decodeNetworkAddress(data[offset:], "destination")
		if err != nil {
			return nil, err
		}
		npdu.Destination = addr
		offset += n
	}

	if control&NPDUControlSourceSpecifier != 0 {
		addr, n, err := decodeNetworkAddress(data[offset:], "source")
		if err != nil {
			return nil, err
		}
		npdu.Source = addr
		offset += n
	}

	if npdu.Destination != nil {
		if len(data) < offset+1 {
			return nil, fmt.Errorf("%w: missing hop count", ErrInvalidNPDU)
		}
		npdu.HopCount = data[offset]
		offset++
	}

	if npdu.NetworkMessage {
		if len(data) < offset+1 {
			return nil, fmt.Errorf("%w: missing message type", ErrInvalidNPDU)
		}
		npdu.MessageType = NetworkMessageType(data[offset])
		offset++

		if npdu.MessageType >= NetworkMessageVendorProprietary {
			if len(data) < offset+2 {
				return nil, fmt.Errorf("%w: missing vendor identifier", ErrInvalidNPDU)
			}
			npdu.VendorID = binary.BigEndian.Uint16(data[offset:])
			offset += 2
		}
	}

	npdu.Data = data[offset:]
	return npdu, nil
}

func decodeNetworkAddress(data []byte, which string) (*NetworkAddress, int, error) {
	if len(data) < 3 {
		return nil, 0, fmt.Errorf("%w: truncated %s specifier", ErrInvalidNPDU, which)
	}
	addr := &NetworkAddress{Net: binary.BigEndian.Uint16(data)}
	macLen := int(data[2])
	if len(data) < 3+macLen {
		return nil, 0, fmt.Errorf("%w: truncated %s address", ErrInvalidNPDU, which)
	}
	if macLen > 0 {
		addr.MAC = make([]byte, macLen)
		copy(addr.MAC, data[3:3+macLen])
	}
	return addr, 3 + macLen, nil
}
