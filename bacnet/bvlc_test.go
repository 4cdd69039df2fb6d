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
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var whoIsBroadcast = []byte{0x81, 0x0B, 0x00, 0x0D, 0x01, 0x00, 0x10, 0x08, 0x09, 0x00, 0x1A, 0x03, 0xE7}

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame(OriginalBroadcast{NPDU: whoIsBroadcast[4:]})
	require.NoError(t, err)
	assert.Equal(t, whoIsBroadcast, frame)

	got, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, OriginalBroadcast{NPDU: whoIsBroadcast[4:]}, got)
}

func TestFrameRoundTrip(t *testing.T) {
	npdu := []byte{0x01, 0x00, 0x10, 0x08}
	tests := []struct {
		name  string
		frame Frame
	}{
		{"unicast", OriginalUnicast{NPDU: npdu}},
		{"broadcast", OriginalBroadcast{NPDU: npdu}},
		{"distribute", DistributeBroadcast{NPDU: npdu}},
		{"forwarded", Forwarded{Origin: netip.MustParseAddrPort("192.168.1.20:47808"), NPDU: npdu}},
		{"register", RegisterForeignDevice{TTL: 60}},
		{"result", Result{Code: BVLCResultRegisterForeignDeviceNAK}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeFrame(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, byte(BVLCTypeBACnetIP), data[0])
			assert.Equal(t, byte(tt.frame.Function()), data[1])
			assert.Equal(t, len(data), int(data[2])<<8|int(data[3]))

			got, err := DecodeFrame(data)
			require.NoError(t, err)
			assert.Equal(t, tt.frame, got)
		})
	}
}

func TestFrameEncodings(t *testing.T) {
	data, err := EncodeFrame(RegisterForeignDevice{TTL: 60})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81, 0x05, 0x00, 0x06, 0x00, 0x3C}, data)

	data, err = EncodeFrame(Result{Code: BVLCResultSuccessful})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81, 0x00, 0x00, 0x06, 0x00, 0x00}, data)

	data, err = EncodeFrame(Forwarded{Origin: netip.MustParseAddrPort("10.0.0.1:47808"), NPDU: []byte{0x01, 0x00}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81, 0x04, 0x00, 0x0C, 10, 0, 0, 1, 0xBA, 0xC0, 0x01, 0x00}, data)
}

func TestFrameNPDU(t *testing.T) {
	npdu := []byte{0x01, 0x00}

	got, ok := FrameNPDU(Forwarded{NPDU: npdu})
	assert.True(t, ok)
	assert.Equal(t, npdu, got)

	_, ok = FrameNPDU(Result{})
	assert.False(t, ok)
	_, ok = FrameNPDU(RegisterForeignDevice{TTL: 10})
	assert.False(t, ok)
}

func TestDecodeFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", []byte{0x81, 0x0A, 0x00}, ErrTruncatedFrame},
		{"wrong protocol", []byte{0x82, 0x0A, 0x00, 0x04}, ErrProtocolMismatch},
		{"length too long", []byte{0x81, 0x0A, 0x00, 0x08, 0x01, 0x00}, ErrLengthMismatch},
		{"length too short", []byte{0x81, 0x0A, 0x00, 0x04, 0x01, 0x00}, ErrLengthMismatch},
		{"unknown function", []byte{0x81, 0x01, 0x00, 0x04}, ErrUnknownFunction},
		{"secure bvll", []byte{0x81, 0x0C, 0x00, 0x04}, ErrUnknownFunction},
		{"truncated forwarded", []byte{0x81, 0x04, 0x00, 0x08, 10, 0, 0, 1}, ErrTruncatedFrame},
		{"truncated register", []byte{0x81, 0x05, 0x00, 0x05, 0x00}, ErrTruncatedFrame},
		{"truncated result", []byte{0x81, 0x00, 0x00, 0x04}, ErrTruncatedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeFrame(tt.data)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidBVLC)
			assert.Nil(t, frame)
		})
	}
}

func TestEncodeFrameErrors(t *testing.T) {
	_, err := EncodeFrame(Forwarded{Origin: netip.MustParseAddrPort("[2001:db8::1]:47808")})
	assert.ErrorIs(t, err, ErrInvalidBVLC)

	_, err = EncodeFrame(OriginalUnicast{NPDU: make([]byte, 65536-BVLCHeaderLength)})
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	data, err := EncodeFrame(OriginalUnicast{NPDU: make([]byte, 65535-BVLCHeaderLength)})
	require.NoError(t, err)
	assert.Len(t, data, 65535)
}

func TestForwardedMappedOrigin(t *testing.T) {
	origin := netip.AddrPortFrom(netip.MustParseAddr("::ffff:192.168.0.5"), 47809)
	data, err := EncodeFrame(Forwarded{Origin: origin, NPDU: []byte{0x01, 0x00}})
	require.NoError(t, err)

	got, err := DecodeFrame(data)
	require.NoError(t, err)
	fwd, ok := got.(Forwarded)
	require.True(t, ok)
	assert.Equal(t, "192.168.0.5:47809", fwd.Origin.String())
}

func TestWhoIsPipeline(t *testing.T) {
	msg := WhoIs{DeviceInstanceLow: 1, DeviceInstanceHigh: 50000}

	apdu := EncodeAPDU(UnconfirmedRequest{Service: uint8(ServiceWhoIs)}, EncodeServiceData(&msg))
	npdu, err := NewRequest(apdu).Encode()
	require.NoError(t, err)
	frame, err := EncodeFrame(OriginalUnicast{NPDU: npdu})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81, 0x0A, 0x00, 0x0D, 0x01, 0x00, 0x10, 0x08, 0x09, 0x01, 0x1A, 0xC3, 0x50}, frame)

	f, err := DecodeFrame(frame)
	require.NoError(t, err)
	payload, ok := FrameNPDU(f)
	require.True(t, ok)
	n, err := DecodeNPDU(payload)
	require.NoError(t, err)
	a, err := DecodeAPDU(n.Data)
	require.NoError(t, err)
	got, err := DecodeService(a)
	require.NoError(t, err)
	assert.Equal(t, &msg, got)
}

func TestReadPropertyPipeline(t *testing.T) {
	ack := ReadPropertyAck{
		Object:   NewObjectIdentifier(ObjectTypeDevice, 1234),
		Property: PropertyObjectName,
		Value:    ValueSequence{ApplicationValue{Value: CharacterString("AHU-1")}},
	}
	apdu := EncodeAPDU(ComplexAck{InvokeID: 42, Service: uint8(ServiceReadProperty)}, EncodeServiceData(&ack))
	npdu, err := (&NPDU{
		Source: &NetworkAddress{Net: 7, MAC: []byte{0x05}},
		Data:   apdu,
	}).Encode()
	require.NoError(t, err)
	frame, err := EncodeFrame(OriginalUnicast{NPDU: npdu})
	require.NoError(t, err)

	f, err := DecodeFrame(frame)
	require.NoError(t, err)
	payload, _ := FrameNPDU(f)
	n, err := DecodeNPDU(payload)
	require.NoError(t, err)
	assert.Equal(t, &NetworkAddress{Net: 7, MAC: []byte{0x05}}, n.Source)

	a, err := DecodeAPDU(n.Data)
	require.NoError(t, err)
	assert.Equal(t, ComplexAck{InvokeID: 42, Service: uint8(ServiceReadProperty)}, a.Header)

	got, err := DecodeService(a)
	require.NoError(t, err)
	assert.Equal(t, &ack, got)
}
