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

package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet/bacnet"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithLocalAddress("127.0.0.1:0"),
		WithLogger(discardLogger),
		WithTimeout(time.Second),
	}, opts...)

	c, err := NewClient(opts...)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func encodeUnicast(apdu []byte) []byte {
	npdu, _ := bacnet.NewRequest(apdu).Encode()
	frame, _ := bacnet.EncodeFrame(bacnet.OriginalUnicast{NPDU: npdu})
	return frame
}

func decodeAPDU(data []byte) (*bacnet.APDU, error) {
	frame, err := bacnet.DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	payload, ok := bacnet.FrameNPDU(frame)
	if !ok {
		return nil, bacnet.ErrInvalidBVLC
	}
	npdu, err := bacnet.DecodeNPDU(payload)
	if err != nil {
		return nil, err
	}
	return bacnet.DecodeAPDU(npdu.Data)
}

// fakeDevice answers confirmed requests with whatever reply returns. A nil
// reply sends nothing.
type fakeDevice struct {
	conn *net.UDPConn
}

func newFakeDevice(t *testing.T, reply func(h bacnet.ConfirmedRequest, data []byte) []byte) *fakeDevice {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, from, err := conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				return
			}
			apdu, err := decodeAPDU(buf[:n])
			if err != nil {
				continue
			}
			h, ok := apdu.Header.(bacnet.ConfirmedRequest)
			if !ok {
				continue
			}
			if resp := reply(h, apdu.Data); resp != nil {
				_, _ = conn.WriteToUDPAddrPort(encodeUnicast(resp), from)
			}
		}
	}()

	return &fakeDevice{conn: conn}
}

func (d *fakeDevice) addr() netip.AddrPort {
	return d.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (d *fakeDevice) info(instance uint32) DeviceInfo {
	return DeviceInfo{
		ObjectID:      bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, instance),
		Address:       d.addr(),
		MaxAPDULength: bacnet.MaxAPDULength,
		Segmentation:  bacnet.SegmentationNone,
	}
}

func TestNewClientRejectsDeviceID(t *testing.T) {
	_, err := NewClient(WithDeviceID(bacnet.MaxInstance + 1))
	assert.Error(t, err)

	c, err := NewClient(WithDeviceID(bacnet.MaxInstance))
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnectClose(t *testing.T) {
	c, err := NewClient(WithLocalAddress("127.0.0.1:0"), WithLogger(discardLogger))
	require.NoError(t, err)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())
	assert.True(t, c.LocalAddr().IsValid())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)

	require.NoError(t, c.Close())
	assert.Equal(t, StateDisconnected, c.State())
	require.NoError(t, c.Close())

	s := c.Metrics().Snapshot()
	assert.Equal(t, int64(1), s.ConnectAttempts)
	assert.Equal(t, int64(1), s.ConnectSuccesses)
	assert.Equal(t, int64(1), s.Disconnects)
}

func TestRequestsRequireConnection(t *testing.T) {
	c, err := NewClient(WithLogger(discardLogger))
	require.NoError(t, err)
	c.AddDevice(DeviceInfo{
		ObjectID: bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1),
		Address:  netip.MustParseAddrPort("127.0.0.1:47808"),
	})

	_, err = c.ReadProperty(context.Background(), 1, bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1), bacnet.PropertyObjectName)
	assert.ErrorIs(t, err, ErrNotConnected)

	err = c.Broadcast(context.Background(), bacnet.ServiceWhoIs, &bacnet.WhoIs{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWhoIsDiscoversDevice(t *testing.T) {
	responder := newTestClient(t, WithDeviceID(1234), WithVendorID(260))
	requester := newTestClient(t)

	seen := make(chan bacnet.UnconfirmedServiceChoice, 4)
	responder.OnUnconfirmed(func(_ netip.AddrPort, choice bacnet.UnconfirmedServiceChoice, msg bacnet.ServiceMessage) {
		if _, ok := msg.(*bacnet.WhoIs); ok {
			seen <- choice
		}
	})

	devices, err := requester.WhoIs(context.Background(),
		WithDeviceRange(1000, 2000),
		WithDiscoveryTarget(responder.LocalAddr()),
		WithDiscoveryTimeout(500*time.Millisecond),
	)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	dev := devices[0]
	assert.Equal(t, bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1234), dev.ObjectID)
	assert.Equal(t, responder.LocalAddr(), dev.Address)
	assert.Equal(t, uint16(260), dev.VendorID)
	assert.Equal(t, uint32(bacnet.MaxAPDULength), dev.MaxAPDULength)
	assert.Equal(t, bacnet.SegmentationNone, dev.Segmentation)
	assert.Nil(t, dev.Network)

	got, ok := requester.GetDevice(1234)
	require.True(t, ok)
	assert.Equal(t, dev, got)

	select {
	case choice := <-seen:
		assert.Equal(t, bacnet.ServiceWhoIs, choice)
	case <-time.After(time.Second):
		t.Fatal("responder handler not called")
	}

	assert.Equal(t, int64(1), requester.Metrics().WhoIsSent.Value())
	assert.Equal(t, int64(1), requester.Metrics().DevicesDiscovered.Value())
	assert.Equal(t, int64(1), responder.Metrics().WhoIsAnswered.Value())
}

func TestWhoIsOutOfRange(t *testing.T) {
	responder := newTestClient(t, WithDeviceID(1234))
	requester := newTestClient(t)

	devices, err := requester.WhoIs(context.Background(),
		WithDeviceRange(0, 10),
		WithDiscoveryTarget(responder.LocalAddr()),
		WithDiscoveryTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.Equal(t, int64(0), responder.Metrics().WhoIsAnswered.Value())
}

func TestDevicesOrdered(t *testing.T) {
	c, err := NewClient(WithLogger(discardLogger))
	require.NoError(t, err)

	for _, id := range []uint32{30, 10, 20} {
		c.AddDevice(DeviceInfo{ObjectID: bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, id)})
	}

	devices := c.Devices()
	require.Len(t, devices, 3)
	assert.Equal(t, uint32(10), devices[0].ObjectID.Instance)
	assert.Equal(t, uint32(20), devices[1].ObjectID.Instance)
	assert.Equal(t, uint32(30), devices[2].ObjectID.Instance)

	_, ok := c.GetDevice(40)
	assert.False(t, ok)
}

func TestReadProperty(t *testing.T) {
	dev := newFakeDevice(t, func(h bacnet.ConfirmedRequest, data []byte) []byte {
		var req bacnet.ReadProperty
		if h.Service != uint8(bacnet.ServiceReadProperty) || bacnet.DecodeServiceData(data, &req) != nil {
			return nil
		}
		ack := bacnet.ReadPropertyAck{
			Object:     req.Object,
			Property:   req.Property,
			ArrayIndex: req.ArrayIndex,
			Value:      bacnet.ValueSequence{bacnet.ApplicationValue{Value: bacnet.Real(72.5)}},
		}
		return bacnet.EncodeAPDU(bacnet.ComplexAck{InvokeID: h.InvokeID, Service: h.Service}, bacnet.EncodeServiceData(&ack))
	})

	c := newTestClient(t)
	c.AddDevice(dev.info(5))

	oid := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	ack, err := c.ReadProperty(context.Background(), 5, oid, bacnet.PropertyPresentValue, WithArrayIndex(0))
	require.NoError(t, err)

	assert.Equal(t, oid, ack.Object)
	assert.Equal(t, bacnet.PropertyPresentValue, ack.Property)
	require.NotNil(t, ack.ArrayIndex)
	assert.Equal(t, uint32(0), *ack.ArrayIndex)
	assert.Equal(t, []bacnet.PrimitiveValue{bacnet.Real(72.5)}, bacnet.ApplicationValues(ack.Value))

	s := c.Metrics().Snapshot()
	assert.Equal(t, int64(1), s.RequestsSucceeded)
	assert.Equal(t, int64(1), s.LatencyStats.Count)
	assert.Equal(t, int64(0), s.ActiveRequests)
}

func TestWriteProperty(t *testing.T) {
	written := make(chan bacnet.WriteProperty, 1)
	dev := newFakeDevice(t, func(h bacnet.ConfirmedRequest, data []byte) []byte {
		var req bacnet.WriteProperty
		if bacnet.DecodeServiceData(data, &req) != nil {
			return nil
		}
		written <- req
		return bacnet.EncodeAPDU(bacnet.SimpleAck{InvokeID: h.InvokeID, Service: h.Service}, nil)
	})

	c := newTestClient(t)
	c.AddDevice(dev.info(5))

	oid := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogValue, 2)
	err := c.WriteProperty(context.Background(), 5, oid, bacnet.PropertyPresentValue, bacnet.Real(21.5), WithPriority(8))
	require.NoError(t, err)

	req := <-written
	assert.Equal(t, oid, req.Object)
	assert.Equal(t, bacnet.ValueSequence{bacnet.ApplicationValue{Value: bacnet.Real(21.5)}}, req.Value)
	require.NotNil(t, req.Priority)
	assert.Equal(t, uint8(8), *req.Priority)
	assert.Nil(t, req.ArrayIndex)
}

func TestReadPropertyMultiple(t *testing.T) {
	requests := make(chan bacnet.ReadPropertyMultiple, 1)
	dev := newFakeDevice(t, func(h bacnet.ConfirmedRequest, data []byte) []byte {
		var req bacnet.ReadPropertyMultiple
		if h.Service != uint8(bacnet.ServiceReadPropertyMultiple) || bacnet.DecodeServiceData(data, &req) != nil {
			return nil
		}
		requests <- req
		ack := bacnet.ReadPropertyMultipleAck{Results: []bacnet.ReadAccessResult{{
			Object: req.Specs[0].Object,
			Results: []bacnet.PropertyResult{
				{
					Property: bacnet.PropertyPresentValue,
					Value:    bacnet.ValueSequence{bacnet.ApplicationValue{Value: bacnet.Real(20)}},
				},
				{
					Property: bacnet.PropertyUnits,
					Error:    &bacnet.ServiceError{Class: bacnet.ErrorClassProperty, Code: bacnet.ErrorCodeUnknownProperty},
				},
			},
		}}}
		return bacnet.EncodeAPDU(bacnet.ComplexAck{InvokeID: h.InvokeID, Service: h.Service}, bacnet.EncodeServiceData(&ack))
	})

	c := newTestClient(t)
	c.AddDevice(dev.info(5))

	oid := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	accesses := []bacnet.ReadAccessSpec{{
		Object: oid,
		Properties: []bacnet.PropertyReference{
			{Property: bacnet.PropertyPresentValue},
			{Property: bacnet.PropertyUnits},
		},
	}}
	ack, err := c.ReadPropertyMultiple(context.Background(), 5, accesses)
	require.NoError(t, err)
	assert.Equal(t, accesses, (<-requests).Specs)

	pv, ok := ack.Result(oid, bacnet.PropertyPresentValue)
	require.True(t, ok)
	assert.Nil(t, pv.Error)
	assert.Equal(t, []bacnet.PrimitiveValue{bacnet.Real(20)}, bacnet.ApplicationValues(pv.Value))

	units, ok := ack.Result(oid, bacnet.PropertyUnits)
	require.True(t, ok)
	require.NotNil(t, units.Error)
	assert.ErrorIs(t, units.Error.Err(), bacnet.NewBACnetError(bacnet.ErrorClassProperty, bacnet.ErrorCodeUnknownProperty))

	_, ok = ack.Result(oid, bacnet.PropertyObjectName)
	assert.False(t, ok)
}

// objectListDevice serves an object list of three entries. With whole set the
// list is returned in one read; otherwise that read is aborted and entry 2
// answers with an error.
func objectListDevice(t *testing.T, whole bool, objects []bacnet.ObjectIdentifier) *fakeDevice {
	return newFakeDevice(t, func(h bacnet.ConfirmedRequest, data []byte) []byte {
		var req bacnet.ReadProperty
		if bacnet.DecodeServiceData(data, &req) != nil || req.Property != bacnet.PropertyObjectList {
			return nil
		}
		ack := bacnet.ReadPropertyAck{Object: req.Object, Property: req.Property, ArrayIndex: req.ArrayIndex}
		switch {
		case req.ArrayIndex == nil && whole:
			for _, oid := range objects {
				ack.Value = append(ack.Value, bacnet.ApplicationValue{Value: oid})
			}
		case req.ArrayIndex == nil:
			return bacnet.EncodeAPDU(bacnet.AbortPDU{Server: true, InvokeID: h.InvokeID, Reason: bacnet.AbortReasonSegmentationNotSupported}, nil)
		case *req.ArrayIndex == 0:
			ack.Value = bacnet.ValueSequence{bacnet.ApplicationValue{Value: bacnet.Unsigned(len(objects))}}
		case *req.ArrayIndex == 2:
			se := bacnet.ServiceError{Class: bacnet.ErrorClassProperty, Code: bacnet.ErrorCodeInvalidArrayIndex}
			return bacnet.EncodeAPDU(bacnet.ErrorPDU{InvokeID: h.InvokeID, Service: h.Service}, bacnet.EncodeServiceData(&se))
		default:
			ack.Value = bacnet.ValueSequence{bacnet.ApplicationValue{Value: objects[*req.ArrayIndex-1]}}
		}
		return bacnet.EncodeAPDU(bacnet.ComplexAck{InvokeID: h.InvokeID, Service: h.Service}, bacnet.EncodeServiceData(&ack))
	})
}

func TestGetObjectList(t *testing.T) {
	objects := []bacnet.ObjectIdentifier{
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 5),
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1),
		bacnet.NewObjectIdentifier(bacnet.ObjectTypeBinaryInput, 2),
	}

	t.Run("whole", func(t *testing.T) {
		dev := objectListDevice(t, true, objects)
		c := newTestClient(t)
		c.AddDevice(dev.info(5))

		got, err := c.GetObjectList(context.Background(), 5)
		require.NoError(t, err)
		assert.Equal(t, objects, got)
	})

	t.Run("by index", func(t *testing.T) {
		dev := objectListDevice(t, false, objects)
		c := newTestClient(t)
		c.AddDevice(dev.info(5))

		got, err := c.GetObjectList(context.Background(), 5)
		require.NoError(t, err)
		assert.Equal(t, []bacnet.ObjectIdentifier{objects[0], objects[2]}, got)
	})
}

func TestGetObjectListTimeout(t *testing.T) {
	dev := newFakeDevice(t, func(bacnet.ConfirmedRequest, []byte) []byte { return nil })

	c := newTestClient(t, WithTimeout(100*time.Millisecond))
	c.AddDevice(dev.info(5))

	_, err := c.GetObjectList(context.Background(), 5)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestConfirmedRequestFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply func(h bacnet.ConfirmedRequest) []byte
		check func(t *testing.T, err error)
	}{
		{
			name: "error",
			reply: func(h bacnet.ConfirmedRequest) []byte {
				se := bacnet.ServiceError{Class: bacnet.ErrorClassProperty, Code: bacnet.ErrorCodeUnknownProperty}
				return bacnet.EncodeAPDU(bacnet.ErrorPDU{InvokeID: h.InvokeID, Service: h.Service}, bacnet.EncodeServiceData(&se))
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, bacnet.NewBACnetError(bacnet.ErrorClassProperty, bacnet.ErrorCodeUnknownProperty))
			},
		},
		{
			name: "reject",
			reply: func(h bacnet.ConfirmedRequest) []byte {
				return bacnet.EncodeAPDU(bacnet.RejectPDU{InvokeID: h.InvokeID, Reason: bacnet.RejectReasonUnrecognizedService}, nil)
			},
			check: func(t *testing.T, err error) {
				var rej *bacnet.RejectError
				require.True(t, errors.As(err, &rej))
				assert.Equal(t, bacnet.RejectReasonUnrecognizedService, rej.Reason)
			},
		},
		{
			name: "abort",
			reply: func(h bacnet.ConfirmedRequest) []byte {
				return bacnet.EncodeAPDU(bacnet.AbortPDU{Server: true, InvokeID: h.InvokeID, Reason: bacnet.AbortReasonOutOfResources}, nil)
			},
			check: func(t *testing.T, err error) {
				var abort *bacnet.AbortError
				require.True(t, errors.As(err, &abort))
				assert.True(t, abort.Server)
				assert.Equal(t, bacnet.AbortReasonOutOfResources, abort.Reason)
			},
		},
		{
			name: "malformed ack",
			reply: func(h bacnet.ConfirmedRequest) []byte {
				return bacnet.EncodeAPDU(bacnet.ComplexAck{InvokeID: h.InvokeID, Service: h.Service}, []byte{0x21, 0x01})
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidResponse)
			},
		},
		{
			name: "simple ack",
			reply: func(h bacnet.ConfirmedRequest) []byte {
				return bacnet.EncodeAPDU(bacnet.SimpleAck{InvokeID: h.InvokeID, Service: h.Service}, nil)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidResponse)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice(t, func(h bacnet.ConfirmedRequest, _ []byte) []byte {
				return tt.reply(h)
			})
			c := newTestClient(t)
			c.AddDevice(dev.info(9))

			_, err := c.ReadProperty(context.Background(), 9, bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 9), bacnet.PropertyObjectName)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestConfirmedRequestTimeout(t *testing.T) {
	dev := newFakeDevice(t, func(bacnet.ConfirmedRequest, []byte) []byte { return nil })

	c := newTestClient(t, WithTimeout(100*time.Millisecond))
	c.AddDevice(dev.info(3))

	_, err := c.ReadProperty(context.Background(), 3, bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 3), bacnet.PropertyObjectName)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int64(1), c.Metrics().RequestsTimedOut.Value())
}

func TestDeviceNotFound(t *testing.T) {
	sink, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sink.Close()

	c := newTestClient(t, WithBroadcastAddress(sink.LocalAddr().(*net.UDPAddr).AddrPort()))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = c.ReadProperty(ctx, 77, bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 77), bacnet.PropertyObjectName)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestClientRejectsConfirmedRequests(t *testing.T) {
	c := newTestClient(t)

	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	req := bacnet.ReadProperty{Object: bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1), Property: bacnet.PropertyObjectName}
	apdu := bacnet.EncodeAPDU(bacnet.ConfirmedRequest{MaxAPDU: 5, InvokeID: 9, Service: uint8(bacnet.ServiceReadProperty)}, bacnet.EncodeServiceData(&req))
	_, err = peer.WriteToUDPAddrPort(encodeUnicast(apdu), c.LocalAddr())
	require.NoError(t, err)

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, _, err := peer.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)

	reply, err := decodeAPDU(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, bacnet.RejectPDU{InvokeID: 9, Reason: bacnet.RejectReasonUnrecognizedService}, reply.Header)
}

func TestWhoIsWithoutLimitsAnswered(t *testing.T) {
	c := newTestClient(t, WithDeviceID(1234), WithVendorID(260))

	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	_, err = peer.WriteToUDPAddrPort([]byte{0x81, 0x0A, 0x00, 0x08, 0x01, 0x00, 0x10, 0x08}, c.LocalAddr())
	require.NoError(t, err)

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, _, err := peer.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)

	reply, err := decodeAPDU(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, bacnet.UnconfirmedRequest{Service: uint8(bacnet.ServiceIAm)}, reply.Header)

	var iam bacnet.IAm
	require.NoError(t, bacnet.DecodeServiceData(reply.Data, &iam))
	assert.Equal(t, bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1234), iam.Device)
	assert.Equal(t, uint16(260), iam.VendorID)

	assert.Eventually(t, func() bool {
		return c.Metrics().Snapshot().WhoIsAnswered == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, c.Metrics().Snapshot().FramesDropped)
}

func TestDecodeUnconfirmed(t *testing.T) {
	msg, err := decodeUnconfirmed(bacnet.ServiceWhoIs, &bacnet.APDU{Header: bacnet.UnconfirmedRequest{Service: uint8(bacnet.ServiceWhoIs)}})
	require.NoError(t, err)
	assert.Equal(t, &bacnet.WhoIs{DeviceInstanceLow: 0, DeviceInstanceHigh: bacnet.MaxInstance}, msg)

	// Only Who-Is may omit its service data
	_, err = decodeUnconfirmed(bacnet.ServiceIAm, &bacnet.APDU{Header: bacnet.UnconfirmedRequest{Service: uint8(bacnet.ServiceIAm)}})
	assert.True(t, bacnet.IsRequiredValueNotProvided(err))
}

func TestInboundFrameAccounting(t *testing.T) {
	c := newTestClient(t)

	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	send := func(data []byte) {
		_, err := peer.WriteToUDPAddrPort(data, c.LocalAddr())
		require.NoError(t, err)
	}

	// Malformed at the BVLC, NPDU and APDU layers
	send([]byte{0x82, 0x0A, 0x00, 0x04})
	send([]byte{0x81, 0x0A, 0x00, 0x06, 0x02, 0x00})
	send([]byte{0x81, 0x0A, 0x00, 0x07, 0x01, 0x00, 0x80})

	// Well formed but unhandled
	send(encodeUnicast(bacnet.EncodeAPDU(bacnet.SimpleAck{InvokeID: 200, Service: 15}, nil)))
	send(encodeUnicast(bacnet.EncodeAPDU(bacnet.UnconfirmedRequest{Service: 0x20}, nil)))

	assert.Eventually(t, func() bool {
		s := c.Metrics().Snapshot()
		return s.FramesReceived == 5 && s.FramesDropped == 3 && s.FramesIgnored == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWritePriorityRange(t *testing.T) {
	opts := &WriteOptions{}
	WithPriority(0)(opts)
	assert.Nil(t, opts.Priority)
	WithPriority(17)(opts)
	assert.Nil(t, opts.Priority)
	WithPriority(16)(opts)
	require.NotNil(t, opts.Priority)
	assert.Equal(t, uint8(16), *opts.Priority)
}
