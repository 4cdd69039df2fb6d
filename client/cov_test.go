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
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet/bacnet"
)

func covNotification(pid uint32, object bacnet.ObjectIdentifier, value bacnet.PrimitiveValue) bacnet.COVNotification {
	return bacnet.COVNotification{
		SubscriberProcessID: pid,
		InitiatingDevice:    bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 5),
		Object:              object,
		TimeRemaining:       60,
		Values: []bacnet.PropertyValue{
			{Property: bacnet.PropertyPresentValue, Value: bacnet.ValueSequence{bacnet.ApplicationValue{Value: value}}},
		},
	}
}

func TestSubscribeCOV(t *testing.T) {
	requests := make(chan bacnet.SubscribeCOV, 2)
	dev := newFakeDevice(t, func(h bacnet.ConfirmedRequest, data []byte) []byte {
		var req bacnet.SubscribeCOV
		if h.Service != uint8(bacnet.ServiceSubscribeCOV) || bacnet.DecodeServiceData(data, &req) != nil {
			return nil
		}
		requests <- req
		return bacnet.EncodeAPDU(bacnet.SimpleAck{InvokeID: h.InvokeID, Service: h.Service}, nil)
	})

	c := newTestClient(t)
	c.AddDevice(dev.info(5))

	notified := make(chan *bacnet.COVNotification, 1)
	oid := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 3)
	pid, err := c.SubscribeCOV(context.Background(), 5, oid, func(_ netip.AddrPort, n *bacnet.COVNotification) {
		notified <- n
	}, WithSubscriptionLifetime(300))
	require.NoError(t, err)

	req := <-requests
	assert.Equal(t, pid, req.SubscriberProcessID)
	assert.Equal(t, oid, req.Object)
	assert.False(t, req.Cancel)
	assert.False(t, req.IssueConfirmed)
	require.NotNil(t, req.Lifetime)
	assert.Equal(t, uint32(300), *req.Lifetime)

	subs := c.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, pid, subs[0].ProcessID)
	assert.Equal(t, uint32(5), subs[0].DeviceID)
	assert.Equal(t, int64(1), c.Metrics().ActiveSubscriptions.Value())

	n := covNotification(pid, oid, bacnet.Real(19.5))
	apdu := bacnet.EncodeAPDU(bacnet.UnconfirmedRequest{Service: uint8(bacnet.ServiceUnconfirmedCOVNotification)}, bacnet.EncodeServiceData(&n))
	_, err = dev.conn.WriteToUDPAddrPort(encodeUnicast(apdu), c.LocalAddr())
	require.NoError(t, err)

	select {
	case got := <-notified:
		assert.Equal(t, oid, got.Object)
		value, ok := got.Value(bacnet.PropertyPresentValue)
		require.True(t, ok)
		assert.Equal(t, []bacnet.PrimitiveValue{bacnet.Real(19.5)}, bacnet.ApplicationValues(value))
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	require.NoError(t, c.UnsubscribeCOV(context.Background(), pid))
	cancel := <-requests
	assert.True(t, cancel.Cancel)
	assert.Equal(t, pid, cancel.SubscriberProcessID)

	assert.Empty(t, c.Subscriptions())
	s := c.Metrics().Snapshot()
	assert.Equal(t, int64(1), s.COVSubscriptions)
	assert.Equal(t, int64(1), s.COVNotifications)
	assert.Equal(t, int64(0), s.ActiveSubscriptions)

	assert.ErrorIs(t, c.UnsubscribeCOV(context.Background(), pid), ErrSubscriptionNotFound)
}

func TestSubscribeCOVRefused(t *testing.T) {
	dev := newFakeDevice(t, func(h bacnet.ConfirmedRequest, _ []byte) []byte {
		se := bacnet.ServiceError{Class: bacnet.ErrorClassObject, Code: bacnet.ErrorCodeUnknownObject}
		return bacnet.EncodeAPDU(bacnet.ErrorPDU{InvokeID: h.InvokeID, Service: h.Service}, bacnet.EncodeServiceData(&se))
	})

	c := newTestClient(t)
	c.AddDevice(dev.info(5))

	_, err := c.SubscribeCOV(context.Background(), 5, bacnet.NewObjectIdentifier(bacnet.ObjectTypeBinaryInput, 1), nil)
	assert.ErrorIs(t, err, bacnet.NewBACnetError(bacnet.ErrorClassObject, bacnet.ErrorCodeUnknownObject))
	assert.Empty(t, c.Subscriptions())
	assert.Equal(t, int64(0), c.Metrics().ActiveSubscriptions.Value())
}

func TestConfirmedCOVNotification(t *testing.T) {
	c := newTestClient(t)

	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	exchange := func(apdu []byte) *bacnet.APDU {
		t.Helper()
		_, err := peer.WriteToUDPAddrPort(encodeUnicast(apdu), c.LocalAddr())
		require.NoError(t, err)

		require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
		buf := make([]byte, 1500)
		n, _, err := peer.ReadFromUDPAddrPort(buf)
		require.NoError(t, err)
		reply, err := decodeAPDU(buf[:n])
		require.NoError(t, err)
		return reply
	}

	header := bacnet.ConfirmedRequest{MaxAPDU: 5, InvokeID: 4, Service: uint8(bacnet.ServiceConfirmedCOVNotification)}

	n := covNotification(77, bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogValue, 1), bacnet.Real(1))
	reply := exchange(bacnet.EncodeAPDU(header, bacnet.EncodeServiceData(&n)))
	assert.Equal(t, bacnet.SimpleAck{InvokeID: 4, Service: uint8(bacnet.ServiceConfirmedCOVNotification)}, reply.Header)

	// Subscriber process identifier only
	header.InvokeID = 5
	reply = exchange(bacnet.EncodeAPDU(header, []byte{0x09, 0x4D}))
	assert.Equal(t, bacnet.RejectPDU{InvokeID: 5, Reason: bacnet.RejectReasonMissingRequiredParameter}, reply.Header)

	assert.Eventually(t, func() bool {
		s := c.Metrics().Snapshot()
		return s.COVNotifications == 1 && s.FramesDropped == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCOVNotificationForOtherObject(t *testing.T) {
	c, err := NewClient(WithLogger(discardLogger))
	require.NoError(t, err)

	called := false
	oid := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	c.covSubs[9] = &Subscription{ProcessID: 9, Object: oid, active: true, handler: func(netip.AddrPort, *bacnet.COVNotification) {
		called = true
	}}

	n := covNotification(9, bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 2), bacnet.Real(1))
	c.handleCOVNotification(&n, netip.MustParseAddrPort("127.0.0.1:47808"))
	assert.False(t, called)

	n.Object = oid
	c.handleCOVNotification(&n, netip.MustParseAddrPort("127.0.0.1:47808"))
	assert.True(t, called)
	assert.Equal(t, int64(2), c.Metrics().COVNotifications.Value())
}
