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
	"math"
	"net/netip"
)

// BVLCHeaderLength is the size of the fixed BVLC header
const BVLCHeaderLength = 4

// BVLCResultCode is the result carried by a BVLC-Result frame
type BVLCResultCode uint16

const (
	BVLCResultSuccessful                         BVLCResultCode = 0x0000
	BVLCResultWriteBroadcastDistributionTableNAK BVLCResultCode = 0x0010
	BVLCResultReadBroadcastDistributionTableNAK  BVLCResultCode = 0x0020
	BVLCResultRegisterForeignDeviceNAK           BVLCResultCode = 0x0030
	BVLCResultReadForeignDeviceTableNAK          BVLCResultCode = 0x0040
	BVLCResultDeleteForeignDeviceTableEntryNAK   BVLCResultCode = 0x0050
	BVLCResultDistributeBroadcastToNetworkNAK    BVLCResultCode = 0x0060
)

func (c BVLCResultCode) String() string {
	switch c {
	case BVLCResultSuccessful:
		return "successful"
	case BVLCResultWriteBroadcastDistributionTableNAK:
		return "write-bdt-nak"
	case BVLCResultReadBroadcastDistributionTableNAK:
		return "read-bdt-nak"
	case BVLCResultRegisterForeignDeviceNAK:
		return "register-foreign-device-nak"
	case BVLCResultReadForeignDeviceTableNAK:
		return "read-fdt-nak"
	case BVLCResultDeleteForeignDeviceTableEntryNAK:
		return "delete-fdt-entry-nak"
	case BVLCResultDistributeBroadcastToNetworkNAK:
		return "distribute-broadcast-nak"
	default:
		return fmt.Sprintf("bvlc-result(0x%04x)", uint16(c))
	}
}

// Frame is a BACnet/IP virtual-link message. The concrete type selects the BVLC
// function.
type Frame interface {
	Function() BVLCFunction
	appendPayload(buf []byte) ([]byte, error)
}

// OriginalUnicast carries an NPDU to a single station
type OriginalUnicast struct {
	NPDU []byte
}

// OriginalBroadcast carries an NPDU to every station on the local subnet
type OriginalBroadcast struct {
	NPDU []byte
}

// Forwarded carries a broadcast NPDU relayed by a broadcast management device,
// together with the address of the station that originated it.
type Forwarded struct {
	Origin netip.AddrPort
	NPDU   []byte
}

// DistributeBroadcast asks a broadcast management device to broadcast an NPDU
// on behalf of a foreign device.
type DistributeBroadcast struct {
	NPDU []byte
}

// RegisterForeignDevice registers the sender as a foreign device for TTL seconds
type RegisterForeignDevice struct {
	TTL uint16
}

// Result answers a BVLC control request
type Result struct {
	Code BVLCResultCode
}

func (OriginalUnicast) Function() BVLCFunction       { return BVLCOriginalUnicastNPDU }
func (OriginalBroadcast) Function() BVLCFunction     { return BVLCOriginalBroadcastNPDU }
func (Forwarded) Function() BVLCFunction             { return BVLCForwardedNPDU }
func (DistributeBroadcast) Function() BVLCFunction   { return BVLCDistributeBroadcastToNetwork }
func (RegisterForeignDevice) Function() BVLCFunction { return BVLCRegisterForeignDevice }
func (Result) Function() BVLCFunction                { return BVLCResult }

func (f OriginalUnicast) appendPayload(buf []byte) ([]byte, error) {
	return append(buf, f.NPDU...), nil
}

func (f OriginalBroadcast) appendPayload(buf []byte) ([]byte, error) {
	return append(buf, f.NPDU...), nil
}

func (f Forwarded) appendPayload(buf []byte) ([]byte, error) {
	addr := f.Origin.Addr().Unmap()
	if !addr.Is4() {
		return nil, fmt.Errorf("%w: forwarded origin %s is not IPv4", ErrInvalidBVLC, f.Origin)
	}
	ip := addr.As4()
	buf = append(buf, ip[:]...)
	buf = binary.BigEndian.AppendUint16(buf, f.Origin.Port())
	return append(buf, f.NPDU...), nil
}

func (f DistributeBroadcast) appendPayload(buf []byte) ([]byte, error) {
	return append(buf, f.NPDU...), nil
}

func (f RegisterForeignDevice) appendPayload(buf []byte) ([]byte, error) {
	return binary.BigEndian.AppendUint16(buf, f.TTL), nil
}

func (f Result) appendPayload(buf []byte) ([]byte, error) {
	return binary.BigEndian.AppendUint16(buf, uint16(f.Code)), nil
}

// FrameNPDU returns the NPDU carried by f, if its function carries one
func FrameNPDU(f Frame) ([]byte, bool) {
	switch t := f.(type) {
	case OriginalUnicast:
		return t.NPDU, true
	case OriginalBroadcast:
		return t.NPDU, true
	case Forwarded:
		return t.NPDU, true
	case DistributeBroadcast:
		return t.NPDU, true
	default:
		return nil, false
	}
}

// EncodeFrame encodes f with its BVLC header. It fails with ErrFrameTooLarge when
// the frame would not fit the 16-bit length field.
func EncodeFrame(f Frame) ([]byte, error) {
	buf := make([]byte, BVLCHeaderLength, 64)
	buf[0] = byte(BVLCTypeBACnetIP)
	buf[1] = byte(f.Function())

	buf, err := f.appendPayload(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d octets", ErrFrameTooLarge, len(buf))
	}
	binary.BigEndian.PutUint16(buf[2:], uint16(len(buf)))
	return buf, nil
}

// DecodeFrame decodes one UDP datagram. NPDU payloads alias data.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < BVLCHeaderLength {
		return nil, fmt.Errorf("%w: %d octets", ErrTruncatedFrame, len(data))
	}
	if BVLCType(data[0]) != BVLCTypeBACnetIP {
		return nil, fmt.Errorf("%w: 0x%02x", ErrProtocolMismatch, data[0])
	}
	if length := int(binary.BigEndian.Uint16(data[2:])); length != len(data) {
		return nil, fmt.Errorf("%w: header says %d, datagram has %d", ErrLengthMismatch, length, len(data))
	}

	payload := data[BVLCHeaderLength:]
	switch fn := BVLCFunction(data[1]); fn {
	case BVLCOriginalUnicastNPDU:
		return OriginalUnicast{NPDU: payload}, nil

	case BVLCOriginalBroadcastNPDU:
		return OriginalBroadcast{NPDU: payload}, nil

	case BVLCDistributeBroadcastToNetwork:
		return DistributeBroadcast{NPDU: payload}, nil

	case BVLCForwardedNPDU:
		if len(payload) < 6 {
			return nil, fmt.Errorf("%w: forwarded origin", ErrTruncatedFrame)
		}
		ip := netip.AddrFrom4([4]byte(payload[:4]))
		port := binary.BigEndian.Uint16(payload[4:6])
		return Forwarded{Origin: netip.AddrPortFrom(ip, port), NPDU: payload[6:]}, nil

	case BVLCRegisterForeignDevice:
		if len(payload) < 2 {
			return nil, fmt.Errorf("%w: register foreign device", ErrTruncatedFrame)
		}
		return RegisterForeignDevice{TTL: binary.BigEndian.Uint16(payload)}, nil

	case BVLCResult:
		if len(payload) < 2 {
			return nil, fmt.Errorf("%w: result", ErrTruncatedFrame)
		}
		return Result{Code: BVLCResultCode(binary.BigEndian.Uint16(payload))}, nil

	default:
		return nil, fmt.Errorf("%w %s", ErrUnknownFunction, fn)
	}
}
