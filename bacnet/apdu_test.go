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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPDUHeaderEncoding(t *testing.T) {
	tests := []struct {
		name   string
		header ApduHeader
		want   []byte
	}{
		{"unconfirmed who-is", UnconfirmedRequest{Service: uint8(ServiceWhoIs)}, []byte{0x10, 0x08}},
		{"unconfirmed i-am", UnconfirmedRequest{Service: 0}, []byte{0x10, 0x00}},
		{"confirmed zero max apdu", ConfirmedRequest{InvokeID: 7, Service: 12}, []byte{0x00, 0x00, 0x07, 0x0C}},
		{"confirmed read-property", ConfirmedRequest{MaxAPDU: 5, InvokeID: 1, Service: uint8(ServiceReadProperty)}, []byte{0x00, 0x05, 0x01, 0x0C}},
		{"segmented confirmed", ConfirmedRequest{
			PDUFlags:           PDUFlagSegmented,
			MaxAPDU:            5,
			InvokeID:           1,
			SequenceNumber:     2,
			ProposedWindowSize: 4,
			Service:            uint8(ServiceReadProperty),
		}, []byte{0x08, 0x05, 0x01, 0x02, 0x04, 0x0C}},
		{"simple ack", SimpleAck{InvokeID: 7, Service: uint8(ServiceWriteProperty)}, []byte{0x20, 0x07, 0x0F}},
		{"complex ack", ComplexAck{InvokeID: 1, Service: uint8(ServiceReadProperty)}, []byte{0x30, 0x01, 0x0C}},
		{"segmented complex ack", ComplexAck{
			PDUFlags:           PDUFlagSegmented | PDUFlagMoreFollows,
			InvokeID:           1,
			SequenceNumber:     0,
			ProposedWindowSize: 8,
			Service:            uint8(ServiceReadProperty),
		}, []byte{0x3C, 0x01, 0x00, 0x08, 0x0C}},
		{"segment ack", SegmentAck{NegativeAck: true, Server: true, InvokeID: 3, SequenceNumber: 4, ActualWindowSize: 5}, []byte{0x43, 0x03, 0x04, 0x05}},
		{"error", ErrorPDU{InvokeID: 9, Service: uint8(ServiceReadProperty)}, []byte{0x50, 0x09, 0x0C}},
		{"reject", RejectPDU{InvokeID: 9, Reason: RejectReasonUnrecognizedService}, []byte{0x60, 0x09, 0x09}},
		{"abort", AbortPDU{Server: true, InvokeID: 9, Reason: AbortReasonSegmentationNotSupported}, []byte{0x71, 0x09, 0x04}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AppendAPDUHeader(nil, tt.header))

			h, n, err := DecodeAPDUHeader(tt.want)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
			assert.Equal(t, tt.header, h)
			assert.Equal(t, tt.header.PDUType(), h.PDUType())
		})
	}
}

func TestEncodeAPDU(t *testing.T) {
	data := []byte{0x09, 0x01, 0x1A, 0xC3, 0x50}
	apdu := EncodeAPDU(UnconfirmedRequest{Service: uint8(ServiceWhoIs)}, data)
	assert.Equal(t, []byte{0x10, 0x08, 0x09, 0x01, 0x1A, 0xC3, 0x50}, apdu)

	decoded, err := DecodeAPDU(apdu)
	require.NoError(t, err)
	assert.Equal(t, UnconfirmedRequest{Service: uint8(ServiceWhoIs)}, decoded.Header)
	assert.Equal(t, data, decoded.Data)
}

func TestDecodeAPDUErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrInvalidAPDU},
		{"truncated unconfirmed", []byte{0x10}, ErrInvalidAPDU},
		{"truncated confirmed", []byte{0x00, 0x05, 0x01}, ErrInvalidAPDU},
		{"truncated segmented confirmed", []byte{0x08, 0x05, 0x01, 0x02, 0x04}, ErrInvalidAPDU},
		{"truncated complex ack", []byte{0x38, 0x01, 0x00, 0x08}, ErrInvalidAPDU},
		{"truncated segment ack", []byte{0x40, 0x01, 0x02}, ErrInvalidAPDU},
		{"truncated abort", []byte{0x70, 0x01}, ErrInvalidAPDU},
		{"unknown type", []byte{0x80, 0x00, 0x00}, ErrUnknownPDUType},
		{"unknown high type", []byte{0xF0, 0x00, 0x00}, ErrUnknownPDUType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apdu, err := DecodeAPDU(tt.data)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidAPDU)
			assert.Nil(t, apdu)
		})
	}
}

func TestMaxAPDUCode(t *testing.T) {
	tests := []struct {
		length int
		want   uint8
	}{
		{MaxAPDULength, 5},
		{2000, 5},
		{1024, 4},
		{480, 3},
		{500, 3},
		{206, 2},
		{128, 1},
		{50, 0},
		{10, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaxAPDUCode(tt.length), "length %d", tt.length)
	}

	assert.Equal(t, MaxAPDULength, MaxAPDULengthOf(5))
	assert.Equal(t, 480, MaxAPDULengthOf(3))
	assert.Equal(t, 0, MaxAPDULengthOf(9))
}

func TestExpectsReply(t *testing.T) {
	assert.True(t, ExpectsReply([]byte{0x00, 0x05, 0x01, 0x0C}))
	assert.False(t, ExpectsReply([]byte{0x10, 0x08}))
	assert.False(t, ExpectsReply(nil))
}
