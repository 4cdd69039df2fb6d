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

package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet/bacnet"
)

func fieldValue(fields []frameField, layer, name string) (string, bool) {
	for _, f := range fields {
		if f.Layer == layer && f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func TestParseHex(t *testing.T) {
	want := []byte{0x81, 0x0b, 0x00, 0x0d}
	for _, in := range []string{"810b000d", "81 0b 00 0d", "81:0b:00:0d", "0x81 0x0b 0x00 0x0d"} {
		got, err := parseHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseHex("81 0")
	assert.Error(t, err)
}

func TestDescribeWhoIsBroadcast(t *testing.T) {
	data, err := parseHex("81 0b 00 0d 01 00 10 08 09 00 1a 03 e7")
	require.NoError(t, err)

	fields, err := describeFrame(data)
	require.NoError(t, err)

	checks := map[[2]string]string{
		{"bvlc", "function"}:      fmt.Sprint(bacnet.BVLCOriginalBroadcastNPDU),
		{"bvlc", "length"}:        "13",
		{"npdu", "control"}:       "0x00",
		{"apdu", "type"}:          fmt.Sprint(bacnet.PDUTypeUnconfirmedRequest),
		{"apdu", "service"}:       fmt.Sprint(bacnet.ServiceWhoIs),
		{"service", "low_limit"}:  "0",
		{"service", "high_limit"}: "999",
	}
	for key, want := range checks {
		got, ok := fieldValue(fields, key[0], key[1])
		require.True(t, ok, "%s.%s", key[0], key[1])
		assert.Equal(t, want, got, "%s.%s", key[0], key[1])
	}
}

func TestDescribeWhoIsWithoutLimits(t *testing.T) {
	data, err := parseHex("81 0a 00 08 01 00 10 08")
	require.NoError(t, err)

	fields, err := describeFrame(data)
	require.NoError(t, err)

	checks := map[[2]string]string{
		{"service", "limits"}:     "none",
		{"service", "low_limit"}:  "0",
		{"service", "high_limit"}: fmt.Sprint(bacnet.MaxInstance),
	}
	for key, want := range checks {
		got, ok := fieldValue(fields, key[0], key[1])
		require.True(t, ok, "%s.%s", key[0], key[1])
		assert.Equal(t, want, got, "%s.%s", key[0], key[1])
	}
}

func TestDescribeErrorPDU(t *testing.T) {
	se := bacnet.ServiceError{Class: bacnet.ErrorClassObject, Code: bacnet.ErrorCodeUnknownObject}
	apdu := bacnet.EncodeAPDU(bacnet.ErrorPDU{InvokeID: 4, Service: uint8(bacnet.ServiceReadProperty)}, bacnet.EncodeServiceData(&se))
	frame, err := buildFrame("unicast", 0, apdu)
	require.NoError(t, err)

	fields, err := describeFrame(frame)
	require.NoError(t, err)

	got, ok := fieldValue(fields, "service", "error_code")
	require.True(t, ok)
	assert.Equal(t, bacnet.ErrorCodeUnknownObject.String(), got)
	got, ok = fieldValue(fields, "apdu", "invoke_id")
	require.True(t, ok)
	assert.Equal(t, "4", got)
}

func TestDescribeFramePartial(t *testing.T) {
	// Valid BVLC and NPDU, truncated APDU
	fields, err := describeFrame([]byte{0x81, 0x0A, 0x00, 0x07, 0x01, 0x00, 0x10})
	assert.ErrorIs(t, err, bacnet.ErrInvalidAPDU)
	_, ok := fieldValue(fields, "npdu", "control")
	assert.True(t, ok)

	_, err = describeFrame([]byte{0x81, 0x0A, 0x00})
	assert.ErrorIs(t, err, bacnet.ErrInvalidBVLC)
}

func TestBuildFrame(t *testing.T) {
	apdu := []byte{0x10, 0x08, 0x09, 0x00, 0x1A, 0x03, 0xE7}

	frame, err := buildFrame("broadcast", 0, apdu)
	require.NoError(t, err)
	assert.Equal(t, "810b000d0100100809001a03e7", formatHex(frame, false))

	frame, err = buildFrame("unicast", 0, apdu)
	require.NoError(t, err)
	assert.Equal(t, byte(bacnet.BVLCOriginalUnicastNPDU), frame[1])

	frame, err = buildFrame("distribute", 5, apdu)
	require.NoError(t, err)
	assert.Equal(t, "81 09 00 11 01 20 00 05 00 ff", formatHex(frame[:10], true))

	_, err = buildFrame("forwarded", 0, apdu)
	assert.Error(t, err)
}

func TestParseObjectIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bacnet.ObjectIdentifier
	}{
		{"analog-input:1", bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)},
		{"ai:1", bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)},
		{"AI:7", bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 7)},
		{"8:1234", bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1234)},
	}
	for _, tt := range tests {
		got, err := parseObjectIdentifier(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, in := range []string{"ai", "ai:x", "ai:4194304", "bogus:1"} {
		_, err := parseObjectIdentifier(in)
		assert.Error(t, err, in)
	}
}

func TestParsePropertyIdentifier(t *testing.T) {
	got, err := parsePropertyIdentifier("present-value")
	require.NoError(t, err)
	assert.Equal(t, bacnet.PropertyPresentValue, got)

	got, err = parsePropertyIdentifier("85")
	require.NoError(t, err)
	assert.Equal(t, bacnet.PropertyPresentValue, got)

	_, err = parsePropertyIdentifier("no-such-property")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want bacnet.PrimitiveValue
	}{
		{"null", bacnet.Null{}},
		{"true", bacnet.Boolean(true)},
		{"inactive", bacnet.Boolean(false)},
		{"21.5", bacnet.Real(21.5)},
		{"42", bacnet.Unsigned(42)},
		{"-3", bacnet.Signed(-3)},
		{"4000000000", bacnet.Unsigned(4000000000)},
		{`"42"`, bacnet.CharacterString("42")},
		{"hello", bacnet.CharacterString("hello")},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseTypedValue(t *testing.T) {
	got, err := parseTypedValue("enum", "3")
	require.NoError(t, err)
	assert.Equal(t, bacnet.Enumerated(3), got)

	got, err = parseTypedValue("double", "1.25")
	require.NoError(t, err)
	assert.Equal(t, bacnet.Double(1.25), got)

	got, err = parseTypedValue("object", "device:9")
	require.NoError(t, err)
	assert.Equal(t, bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 9), got)

	got, err = parseTypedValue("octets", "0a ff")
	require.NoError(t, err)
	assert.Equal(t, bacnet.OctetString{0x0A, 0xFF}, got)

	got, err = parseTypedValue("bits", "0110")
	require.NoError(t, err)
	assert.Equal(t, bacnet.BitString{false, true, true, false}, got)

	_, err = parseTypedValue("bits", "012")
	assert.Error(t, err)
	_, err = parseTypedValue("unsigned", "-1")
	assert.Error(t, err)
	_, err = parseTypedValue("timestamp", "00")
	assert.Error(t, err)
}

func TestFormatNetworkAddress(t *testing.T) {
	assert.Equal(t, "5:broadcast", formatNetworkAddress(&bacnet.NetworkAddress{Net: 5}))
	assert.Equal(t, "2:0a0b", formatNetworkAddress(&bacnet.NetworkAddress{Net: 2, MAC: []byte{0x0A, 0x0B}}))
}

func TestDescribeReadPropertyMultipleAck(t *testing.T) {
	ai := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	index := uint32(2)
	ack := bacnet.ReadPropertyMultipleAck{Results: []bacnet.ReadAccessResult{{
		Object: ai,
		Results: []bacnet.PropertyResult{
			{Property: bacnet.PropertyPresentValue, Value: bacnet.ValueSequence{bacnet.ApplicationValue{Value: bacnet.Real(21.5)}}},
			{Property: bacnet.PropertyPriorityArray, ArrayIndex: &index, Error: &bacnet.ServiceError{Class: bacnet.ErrorClassProperty, Code: bacnet.ErrorCodeUnknownProperty}},
		},
	}}}
	apdu := bacnet.EncodeAPDU(bacnet.ComplexAck{InvokeID: 9, Service: uint8(bacnet.ServiceReadPropertyMultiple)}, bacnet.EncodeServiceData(&ack))
	frame, err := buildFrame("unicast", 0, apdu)
	require.NoError(t, err)

	fields, err := describeFrame(frame)
	require.NoError(t, err)

	got, ok := fieldValue(fields, "service", "analog-input:1.present-value")
	require.True(t, ok)
	assert.Equal(t, "21.5000", got)
	got, ok = fieldValue(fields, "service", "analog-input:1.priority-array[2]")
	require.True(t, ok)
	assert.Contains(t, got, "unknown-property")
}

func TestDescribeCOVNotification(t *testing.T) {
	n := bacnet.COVNotification{
		SubscriberProcessID: 3,
		InitiatingDevice:    bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1234),
		Object:              bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		TimeRemaining:       60,
		Values: []bacnet.PropertyValue{
			{Property: bacnet.PropertyPresentValue, Value: bacnet.ValueSequence{bacnet.ApplicationValue{Value: bacnet.Real(22)}}},
		},
	}
	apdu := bacnet.EncodeAPDU(bacnet.UnconfirmedRequest{Service: uint8(bacnet.ServiceUnconfirmedCOVNotification)}, bacnet.EncodeServiceData(&n))
	frame, err := buildFrame("unicast", 0, apdu)
	require.NoError(t, err)

	fields, err := describeFrame(frame)
	require.NoError(t, err)

	checks := map[string]string{
		"process_id":     "3",
		"device":         "device:1234",
		"object":         "analog-input:1",
		"time_remaining": "60",
		"present-value":  "22.0000",
	}
	for name, want := range checks {
		got, ok := fieldValue(fields, "service", name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}

func TestDescribeSubscribeCOVCancel(t *testing.T) {
	req := bacnet.SubscribeCOV{SubscriberProcessID: 3, Object: bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1), Cancel: true}
	apdu := bacnet.EncodeAPDU(bacnet.ConfirmedRequest{InvokeID: 1, Service: uint8(bacnet.ServiceSubscribeCOV)}, bacnet.EncodeServiceData(&req))
	frame, err := buildFrame("unicast", 0, apdu)
	require.NoError(t, err)

	fields, err := describeFrame(frame)
	require.NoError(t, err)

	got, ok := fieldValue(fields, "service", "cancel")
	require.True(t, ok)
	assert.Equal(t, "true", got)
	_, ok = fieldValue(fields, "service", "lifetime")
	assert.False(t, ok)
}
