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

import "fmt"

// ApduHeader is the outer envelope of an application-layer message. The
// concrete type selects the PDU type code.
type ApduHeader interface {
	PDUType() PDUType
	appendTo(buf []byte) []byte
}

// ConfirmedRequest heads a request that expects an acknowledgement. MaxSegments
// and MaxAPDU are the 3-bit and 4-bit codes of the octet they share.
// SequenceNumber and ProposedWindowSize are present only when PDUFlags has
// PDUFlagSegmented.
type ConfirmedRequest struct {
	PDUFlags           uint8
	MaxSegments        uint8
	MaxAPDU            uint8
	InvokeID           uint8
	Service            uint8
	SequenceNumber     uint8
	ProposedWindowSize uint8
}

// UnconfirmedRequest heads a request that expects no acknowledgement
type UnconfirmedRequest struct {
	Service uint8
}

// SimpleAck acknowledges a confirmed request that returns no data
type SimpleAck struct {
	InvokeID uint8
	Service  uint8
}

// ComplexAck acknowledges a confirmed request with service data
type ComplexAck struct {
	PDUFlags           uint8
	InvokeID           uint8
	Service            uint8
	SequenceNumber     uint8
	ProposedWindowSize uint8
}

// SegmentAck acknowledges one or more segments
type SegmentAck struct {
	NegativeAck      bool
	Server           bool
	InvokeID         uint8
	SequenceNumber   uint8
	ActualWindowSize uint8
}

// ErrorPDU reports that a confirmed request failed. The error class and code
// follow as ServiceError data.
type ErrorPDU struct {
	InvokeID uint8
	Service  uint8
}

// RejectPDU rejects a malformed or unsupported confirmed request
type RejectPDU struct {
	InvokeID uint8
	Reason   RejectReason
}

// AbortPDU terminates a transaction
type AbortPDU struct {
	Server   bool
	InvokeID uint8
	Reason   AbortReason
}

func (ConfirmedRequest) PDUType() PDUType   { return PDUTypeConfirmedRequest }
func (UnconfirmedRequest) PDUType() PDUType { return PDUTypeUnconfirmedRequest }
func (SimpleAck) PDUType() PDUType          { return PDUTypeSimpleAck }
func (ComplexAck) PDUType() PDUType         { return PDUTypeComplexAck }
func (SegmentAck) PDUType() PDUType         { return PDUTypeSegmentAck }
func (ErrorPDU) PDUType() PDUType           { return PDUTypeError }
func (RejectPDU) PDUType() PDUType          { return PDUTypeReject }
func (AbortPDU) PDUType() PDUType           { return PDUTypeAbort }

// Segmented reports whether the segmentation fields are present
func (h ConfirmedRequest) Segmented() bool { return h.PDUFlags&PDUFlagSegmented != 0 }

// Segmented reports whether the segmentation fields are present
func (h ComplexAck) Segmented() bool { return h.PDUFlags&PDUFlagSegmented != 0 }

func (h ConfirmedRequest) appendTo(buf []byte) []byte {
	buf = append(buf,
		uint8(PDUTypeConfirmedRequest)|h.PDUFlags&0x0F,
		(h.MaxSegments&0x07)<<4|h.MaxAPDU&0x0F,
		h.InvokeID,
	)
	if h.Segmented() {
		buf = append(buf, h.SequenceNumber, h.ProposedWindowSize)
	}
	return append(buf, h.Service)
}

func (h UnconfirmedRequest) appendTo(buf []byte) []byte {
	return append(buf, uint8(PDUTypeUnconfirmedRequest), h.Service)
}

func (h SimpleAck) appendTo(buf []byte) []byte {
	return append(buf, uint8(PDUTypeSimpleAck), h.InvokeID, h.Service)
}

func (h ComplexAck) appendTo(buf []byte) []byte {
	buf = append(buf, uint8(PDUTypeComplexAck)|h.PDUFlags&0x0F, h.InvokeID)
	if h.Segmented() {
		buf = append(buf, h.SequenceNumber, h.ProposedWindowSize)
	}
	return append(buf, h.Service)
}

func (h SegmentAck) appendTo(buf []byte) []byte {
	b := uint8(PDUTypeSegmentAck)
	if h.NegativeAck {
		b |= 0x02
	}
	if h.Server {
		b |= 0x01
	}
	return append(buf, b, h.InvokeID, h.SequenceNumber, h.ActualWindowSize)
}

func (h ErrorPDU) appendTo(buf []byte) []byte {
	return append(buf, uint8(PDUTypeError), h.InvokeID, h.Service)
}

func (h RejectPDU) appendTo(buf []byte) []byte {
	return append(buf, uint8(PDUTypeReject), h.InvokeID, uint8(h.Reason))
}

func (h AbortPDU) appendTo(buf []byte) []byte {
	b := uint8(PDUTypeAbort)
	if h.Server {
		b |= 0x01
	}
	return append(buf, b, h.InvokeID, uint8(h.Reason))
}

// APDU is a decoded application-layer message
type APDU struct {
	Header ApduHeader
	Data   []byte
}

// AppendAPDUHeader appends the encoded header to buf
func AppendAPDUHeader(buf []byte, h ApduHeader) []byte {
	return h.appendTo(buf)
}

// EncodeAPDU encodes a header followed by its service data
func EncodeAPDU(h ApduHeader, data []byte) []byte {
	buf := make([]byte, 0, 6+len(data))
	buf = h.appendTo(buf)
	return append(buf, data...)
}

// DecodeAPDU decodes an APDU. The returned Data aliases data.
func DecodeAPDU(data []byte) (*APDU, error) {
	h, n, err := DecodeAPDUHeader(data)
	if err != nil {
		return nil, err
	}
	return &APDU{Header: h, Data: data[n:]}, nil
}

// DecodeAPDUHeader decodes the header at the start of data and returns the
// number of octets it occupies.
func DecodeAPDUHeader(data []byte) (ApduHeader, int, error) {
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("%w: empty", ErrInvalidAPDU)
	}

	pduType := PDUType(data[0] & 0xF0)
	flags := data[0] & 0x0F

	need := func(n int) error {
		if len(data) < n {
			return fmt.Errorf("%w: truncated %s, %d of %d octets", ErrInvalidAPDU, pduType, len(data), n)
		}
		return nil
	}

	switch pduType {
	case PDUTypeConfirmedRequest:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		h := ConfirmedRequest{
			PDUFlags:    flags,
			MaxSegments: (data[1] >> 4) & 0x07,
			MaxAPDU:     data[1] & 0x0F,
			InvokeID:    data[2],
		}
		if !h.Segmented() {
			h.Service = data[3]
			return h, 4, nil
		}
		if err := need(6); err != nil {
			return nil, 0, err
		}
		h.SequenceNumber = data[3]
		h.ProposedWindowSize = data[4]
		h.Service = data[5]
		return h, 6, nil

	case PDUTypeUnconfirmedRequest:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return UnconfirmedRequest{Service: data[1]}, 2, nil

	case PDUTypeSimpleAck:
		if err := need(3); err != nil {
			return nil, 0, err
		}
		return SimpleAck{InvokeID: data[1], Service: data[2]}, 3, nil

	case PDUTypeComplexAck:
		if err := need(3); err != nil {
			return nil, 0, err
		}
		h := ComplexAck{PDUFlags: flags, InvokeID: data[1]}
		if !h.Segmented() {
			h.Service = data[2]
			return h, 3, nil
		}
		if err := need(5); err != nil {
			return nil, 0, err
		}
		h.SequenceNumber = data[2]
		h.ProposedWindowSize = data[3]
		h.Service = data[4]
		return h, 5, nil

	case PDUTypeSegmentAck:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return SegmentAck{
			NegativeAck:      flags&0x02 != 0,
			Server:           flags&0x01 != 0,
			InvokeID:         data[1],
			SequenceNumber:   data[2],
			ActualWindowSize: data[3],
		}, 4, nil

	case PDUTypeError:
		if err := need(3); err != nil {
			return nil, 0, err
		}
		return ErrorPDU{InvokeID: data[1], Service: data[2]}, 3, nil

	case PDUTypeReject:
		if err := need(3); err != nil {
			return nil, 0, err
		}
		return RejectPDU{InvokeID: data[1], Reason: RejectReason(data[2])}, 3, nil

	case PDUTypeAbort:
		if err := need(3); err != nil {
			return nil, 0, err
		}
		return AbortPDU{Server: flags&0x01 != 0, InvokeID: data[1], Reason: AbortReason(data[2])}, 3, nil

	default:
		return nil, 0, fmt.Errorf("%w 0x%02x", ErrUnknownPDUType, uint8(pduType))
	}
}

// MaxAPDUCode returns the 4-bit code announcing the largest accepted APDU
// that does not exceed length.
func MaxAPDUCode(length int) uint8 {
	code := uint8(0)
	for i, l := range maxAPDULengths {
		if length >= l {
			code = uint8(i)
		}
	}
	return code
}

// MaxAPDULengthOf decodes a 4-bit max APDU code. Reserved codes return 0.
func MaxAPDULengthOf(code uint8) int {
	if int(code) < len(maxAPDULengths) {
		return maxAPDULengths[code]
	}
	return 0
}

var maxAPDULengths = []int{50, 128, 206, 480, 1024, MaxAPDULength}
