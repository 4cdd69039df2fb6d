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
	"fmt"
	"log/slog"
	"net/netip"
	"sort"

	"github.com/edgeo-scada/bacnet/bacnet"
)

// COVHandler receives the change-of-value notifications of one subscription.
// Handlers run on receive goroutines and must not block.
type COVHandler func(src netip.AddrPort, n *bacnet.COVNotification)

// Subscription describes a COV subscription held by the client
type Subscription struct {
	ProcessID uint32
	DeviceID  uint32
	Object    bacnet.ObjectIdentifier
	Confirmed bool
	Lifetime  *uint32

	handler COVHandler
	active  bool
}

// SubscribeCOV asks a device to notify changes of value of one object and
// returns the subscriber process identifier naming the subscription.
func (c *Client) SubscribeCOV(ctx context.Context, deviceID uint32, objectID bacnet.ObjectIdentifier, handler COVHandler, opts ...SubscribeOption) (uint32, error) {
	options := &SubscribeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	dev, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	// Registered before the request so that a notification sent right after
	// the acknowledgement finds its handler.
	sub := &Subscription{
		ProcessID: c.processID.Add(1),
		DeviceID:  deviceID,
		Object:    objectID,
		Confirmed: options.Confirmed,
		Lifetime:  options.Lifetime,
		handler:   handler,
	}
	c.covMu.Lock()
	c.covSubs[sub.ProcessID] = sub
	c.covMu.Unlock()

	req := bacnet.SubscribeCOV{
		SubscriberProcessID: sub.ProcessID,
		Object:              objectID,
		IssueConfirmed:      options.Confirmed,
		Lifetime:            options.Lifetime,
	}

	resp, err := c.sendRequest(ctx, dev, bacnet.ServiceSubscribeCOV, &req)
	if err == nil {
		if _, ok := resp.Header.(bacnet.SimpleAck); !ok {
			err = fmt.Errorf("%w: subscribe-cov answered with %s", ErrInvalidResponse, resp.Header.PDUType())
		}
	}
	if err != nil {
		c.covMu.Lock()
		delete(c.covSubs, sub.ProcessID)
		c.covMu.Unlock()
		return 0, err
	}

	c.covMu.Lock()
	sub.active = true
	c.covMu.Unlock()

	c.metrics.COVSubscriptions.Inc()
	c.metrics.ActiveSubscriptions.Inc()

	c.logger.Debug("cov subscription accepted",
		slog.Uint64("device_id", uint64(deviceID)),
		slog.String("object", objectID.String()),
		slog.Uint64("process_id", uint64(sub.ProcessID)),
	)

	return sub.ProcessID, nil
}

// UnsubscribeCOV cancels a subscription made with SubscribeCOV
func (c *Client) UnsubscribeCOV(ctx context.Context, processID uint32) error {
	c.covMu.RLock()
	sub, ok := c.covSubs[processID]
	c.covMu.RUnlock()
	if !ok {
		return ErrSubscriptionNotFound
	}

	dev, err := c.resolveDevice(ctx, sub.DeviceID)
	if err != nil {
		return err
	}

	req := bacnet.SubscribeCOV{
		SubscriberProcessID: processID,
		Object:              sub.Object,
		Cancel:              true,
	}
	if _, err := c.sendRequest(ctx, dev, bacnet.ServiceSubscribeCOV, &req); err != nil {
		return err
	}

	c.covMu.Lock()
	if s, ok := c.covSubs[processID]; ok {
		delete(c.covSubs, processID)
		if s.active {
			c.metrics.ActiveSubscriptions.Dec()
		}
	}
	c.covMu.Unlock()

	return nil
}

// Subscriptions returns the accepted subscriptions ordered by process identifier
func (c *Client) Subscriptions() []Subscription {
	c.covMu.RLock()
	subs := make([]Subscription, 0, len(c.covSubs))
	for _, s := range c.covSubs {
		if s.active {
			subs = append(subs, *s)
		}
	}
	c.covMu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].ProcessID < subs[j].ProcessID })
	return subs
}

// handleCOVNotification hands a notification to the subscription it names.
// Notifications for unknown subscriptions are counted and logged only.
func (c *Client) handleCOVNotification(n *bacnet.COVNotification, src netip.AddrPort) {
	c.metrics.COVNotifications.Inc()

	c.covMu.RLock()
	sub, ok := c.covSubs[n.SubscriberProcessID]
	c.covMu.RUnlock()

	if !ok || sub.Object != n.Object {
		c.logger.Debug("cov notification without subscription",
			slog.String("src", src.String()),
			slog.Uint64("process_id", uint64(n.SubscriberProcessID)),
			slog.String("object", n.Object.String()),
		)
		return
	}
	if sub.handler != nil {
		sub.handler(src, n)
	}
}

// handleConfirmedRequest serves confirmed COV notifications and rejects every
// other confirmed service, which the client does not implement.
func (c *Client) handleConfirmedRequest(h bacnet.ConfirmedRequest, apdu *bacnet.APDU, src netip.AddrPort, npdu *bacnet.NPDU) {
	service := bacnet.ConfirmedServiceChoice(h.Service)
	if service != bacnet.ServiceConfirmedCOVNotification {
		c.reply(src, npdu, bacnet.RejectPDU{InvokeID: h.InvokeID, Reason: bacnet.RejectReasonUnrecognizedService})
		return
	}
	if h.Segmented() {
		c.reply(src, npdu, bacnet.AbortPDU{Server: true, InvokeID: h.InvokeID, Reason: bacnet.AbortReasonSegmentationNotSupported})
		return
	}

	var n bacnet.COVNotification
	if err := bacnet.DecodeServiceData(apdu.Data, &n); err != nil {
		c.drop(src, "invalid "+service.String(), err)
		reason := bacnet.RejectReasonInvalidParameterDataType
		if bacnet.IsRequiredValueNotProvided(err) {
			reason = bacnet.RejectReasonMissingRequiredParameter
		}
		c.reply(src, npdu, bacnet.RejectPDU{InvokeID: h.InvokeID, Reason: reason})
		return
	}

	c.reply(src, npdu, bacnet.SimpleAck{InvokeID: h.InvokeID, Service: h.Service})
	c.handleCOVNotification(&n, src)
}

// reply sends a data-less answer to a confirmed request
func (c *Client) reply(src netip.AddrPort, npdu *bacnet.NPDU, header bacnet.ApduHeader) {
	apdu := bacnet.EncodeAPDU(header, nil)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.timeout)
	defer cancel()

	if err := c.sendNPDU(ctx, src, false, c.newNPDU(apdu, npdu.Source)); err != nil {
		c.logger.Debug("failed to answer request",
			slog.String("pdu", header.PDUType().String()),
			slog.String("error", err.Error()),
		)
	}
}
