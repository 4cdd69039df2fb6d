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

// Package client is a BACnet/IP driver built on the bacnet codec. It discovers
// devices, issues confirmed property requests, and dispatches inbound
// unconfirmed services to registered handlers.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/internal/transport"
)

// ConnectionState represents the client connection state
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a device that announced itself with I-Am
type DeviceInfo struct {
	ObjectID      bacnet.ObjectIdentifier
	Address       netip.AddrPort
	Network       *bacnet.NetworkAddress // set when the device sits behind a router
	MaxAPDULength uint32
	Segmentation  bacnet.Segmentation
	VendorID      uint16
	LastSeen      time.Time
}

// UnconfirmedHandler receives every decoded unconfirmed service request
type UnconfirmedHandler func(src netip.AddrPort, choice bacnet.UnconfirmedServiceChoice, msg bacnet.ServiceMessage)

type pendingRequest struct {
	addr netip.AddrPort
	ch   chan *bacnet.APDU
}

// Client is a BACnet/IP client
type Client struct {
	opts      *clientOptions
	transport *transport.UDPTransport
	bbmd      netip.AddrPort

	state    atomic.Int32
	invokeID atomic.Uint32

	// Pending confirmed requests by invoke ID
	pendingMu sync.Mutex
	pending   map[uint8]*pendingRequest

	// Discovered devices
	devicesMu sync.RWMutex
	devices   map[uint32]*DeviceInfo

	handlersMu sync.RWMutex
	handlers   []UnconfirmedHandler

	// COV subscriptions by subscriber process identifier
	covMu     sync.RWMutex
	covSubs   map[uint32]*Subscription
	processID atomic.Uint32

	metrics *Metrics
	logger  *slog.Logger

	receiverCancel context.CancelFunc
	receiverDone   chan struct{}
}

// NewClient creates a new BACnet client
func NewClient(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.localDeviceID != NoDeviceID && options.localDeviceID > bacnet.MaxInstance {
		return nil, fmt.Errorf("device instance %d out of range", options.localDeviceID)
	}

	c := &Client{
		opts:    options,
		pending: make(map[uint8]*pendingRequest),
		devices: make(map[uint32]*DeviceInfo),
		covSubs: make(map[uint32]*Subscription),
		metrics: NewMetrics(),
		logger:  options.logger,
	}

	c.transport = transport.NewUDPTransport(options.localAddress)
	c.transport.SetReadTimeout(options.timeout)
	c.transport.SetWriteTimeout(options.timeout)

	return c, nil
}

// Connect opens the UDP socket and starts receiving
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	c.metrics.ConnectAttempts.Inc()

	if err := c.transport.Open(ctx); err != nil {
		c.state.Store(int32(StateDisconnected))
		c.metrics.ConnectFailures.Inc()
		return fmt.Errorf("open transport: %w", err)
	}

	receiverCtx, cancel := context.WithCancel(context.Background())
	c.receiverCancel = cancel
	c.receiverDone = make(chan struct{})
	go c.receiver(receiverCtx)

	c.state.Store(int32(StateConnected))
	c.metrics.ConnectSuccesses.Inc()

	c.logger.Info("connected",
		slog.String("local_addr", c.transport.LocalAddr().String()),
	)

	if c.opts.bbmdAddress != "" {
		if err := c.registerForeignDevice(ctx); err != nil {
			c.logger.Warn("failed to register as foreign device",
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// Close stops the receiver, fails pending requests and closes the socket
func (c *Client) Close() error {
	if c.state.Swap(int32(StateDisconnected)) == int32(StateDisconnected) {
		return nil
	}

	c.metrics.Disconnects.Inc()

	if c.receiverCancel != nil {
		c.receiverCancel()
	}

	c.pendingMu.Lock()
	for id, p := range c.pending {
		close(p.ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	err := c.transport.Close()
	if c.receiverDone != nil {
		<-c.receiverDone
	}
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}

	c.logger.Info("disconnected")
	return nil
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Metrics returns the client metrics
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// LocalAddr returns the bound UDP address
func (c *Client) LocalAddr() netip.AddrPort {
	return c.transport.LocalAddr()
}

// OnUnconfirmed registers a handler for inbound unconfirmed services. Handlers
// run on receive goroutines and must not block.
func (c *Client) OnUnconfirmed(h UnconfirmedHandler) {
	c.handlersMu.Lock()
	c.handlers = append(c.handlers, h)
	c.handlersMu.Unlock()
}

// AddDevice records a device whose address is known without discovery
func (c *Client) AddDevice(dev DeviceInfo) {
	c.devicesMu.Lock()
	c.devices[dev.ObjectID.Instance] = &dev
	c.devicesMu.Unlock()
}

// GetDevice returns information about a discovered device
func (c *Client) GetDevice(deviceID uint32) (*DeviceInfo, bool) {
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()

	dev, ok := c.devices[deviceID]
	return dev, ok
}

// Devices returns every known device ordered by instance
func (c *Client) Devices() []*DeviceInfo {
	return c.devicesInRange(0, bacnet.MaxInstance)
}

func (c *Client) devicesInRange(low, high uint32) []*DeviceInfo {
	c.devicesMu.RLock()
	devices := make([]*DeviceInfo, 0, len(c.devices))
	for id, dev := range c.devices {
		if id >= low && id <= high {
			devices = append(devices, dev)
		}
	}
	c.devicesMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ObjectID.Instance < devices[j].ObjectID.Instance
	})
	return devices
}

// receiver handles incoming datagrams
func (c *Client) receiver(ctx context.Context) {
	defer close(c.receiverDone)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, addr, err := c.transport.ReceiveWithTimeout(100 * time.Millisecond)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if c.transport.IsClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Debug("receive error", slog.String("error", err.Error()))
			continue
		}

		c.metrics.FramesReceived.Inc()
		c.metrics.BytesReceived.Add(int64(len(data)))
		c.metrics.RecordActivity()

		go c.handlePacket(data, addr)
	}
}

// handlePacket decodes one datagram down to its APDU and dispatches it.
// Malformed input and frames the client has no use for are logged and dropped.
func (c *Client) handlePacket(data []byte, src netip.AddrPort) {
	frame, err := bacnet.DecodeFrame(data)
	if err != nil {
		c.drop(src, "invalid BVLC", err)
		return
	}

	switch f := frame.(type) {
	case bacnet.Result:
		c.handleBVLCResult(f, src)
		return
	case bacnet.Forwarded:
		src = f.Origin
	}

	payload, ok := bacnet.FrameNPDU(frame)
	if !ok {
		c.ignore(src, "unexpected BVLC function "+frame.Function().String())
		return
	}

	npdu, err := bacnet.DecodeNPDU(payload)
	if err != nil {
		c.drop(src, "invalid NPDU", err)
		return
	}

	if npdu.NetworkMessage {
		c.ignore(src, "network layer message "+strconv.Itoa(int(npdu.MessageType)))
		return
	}

	apdu, err := bacnet.DecodeAPDU(npdu.Data)
	if err != nil {
		c.drop(src, "invalid APDU", err)
		return
	}

	c.metrics.ResponsesReceived.Inc()

	switch h := apdu.Header.(type) {
	case bacnet.UnconfirmedRequest:
		c.handleUnconfirmedRequest(h, apdu, src, npdu)

	case bacnet.ConfirmedRequest:
		c.handleConfirmedRequest(h, apdu, src, npdu)

	case bacnet.SimpleAck:
		c.handleResponse(h.InvokeID, src, apdu)

	case bacnet.ComplexAck:
		c.handleResponse(h.InvokeID, src, apdu)

	case bacnet.ErrorPDU:
		c.metrics.ErrorsReceived.Inc()
		c.handleResponse(h.InvokeID, src, apdu)

	case bacnet.RejectPDU:
		c.metrics.RejectsReceived.Inc()
		c.handleResponse(h.InvokeID, src, apdu)

	case bacnet.AbortPDU:
		c.metrics.AbortsReceived.Inc()
		c.handleResponse(h.InvokeID, src, apdu)

	default:
		c.ignore(src, "unexpected "+apdu.Header.PDUType().String())
	}
}

func (c *Client) drop(src netip.AddrPort, msg string, err error) {
	c.metrics.FramesDropped.Inc()
	c.logger.Debug(msg,
		slog.String("src", src.String()),
		slog.String("error", err.Error()),
	)
}

func (c *Client) ignore(src netip.AddrPort, reason string) {
	c.metrics.FramesIgnored.Inc()
	c.logger.Debug("ignoring frame",
		slog.String("src", src.String()),
		slog.String("reason", reason),
	)
}

// handleBVLCResult logs the answer to a foreign device registration
func (c *Client) handleBVLCResult(r bacnet.Result, src netip.AddrPort) {
	if r.Code != bacnet.BVLCResultSuccessful {
		c.logger.Warn("BVLC request refused",
			slog.String("src", src.String()),
			slog.String("result", r.Code.String()),
		)
		return
	}
	c.logger.Debug("BVLC request accepted", slog.String("src", src.String()))
}

// handleUnconfirmedRequest decodes an unconfirmed service and dispatches it
func (c *Client) handleUnconfirmedRequest(h bacnet.UnconfirmedRequest, apdu *bacnet.APDU, src netip.AddrPort, npdu *bacnet.NPDU) {
	choice := bacnet.UnconfirmedServiceChoice(h.Service)

	msg, err := decodeUnconfirmed(choice, apdu)
	if errors.Is(err, bacnet.ErrUnknownService) {
		c.ignore(src, "unsupported service "+choice.String())
		return
	}
	if err != nil {
		c.drop(src, "invalid "+choice.String(), err)
		return
	}

	switch m := msg.(type) {
	case *bacnet.IAm:
		c.handleIAm(m, src, npdu)
	case *bacnet.WhoIs:
		c.handleWhoIs(m, src, npdu)
	case *bacnet.COVNotification:
		c.handleCOVNotification(m, src)
	}

	c.handlersMu.RLock()
	handlers := c.handlers
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(src, choice, msg)
	}
}

// decodeUnconfirmed decodes an unconfirmed service. A Who-Is without limits
// stands for every device instance.
func decodeUnconfirmed(choice bacnet.UnconfirmedServiceChoice, apdu *bacnet.APDU) (bacnet.ServiceMessage, error) {
	if choice == bacnet.ServiceWhoIs && len(apdu.Data) == 0 {
		all := bacnet.WhoIsAll()
		return &all, nil
	}
	return bacnet.DecodeService(apdu)
}

// handleIAm records the announcing device
func (c *Client) handleIAm(msg *bacnet.IAm, src netip.AddrPort, npdu *bacnet.NPDU) {
	c.metrics.IAmReceived.Inc()

	if msg.Device.Type != bacnet.ObjectTypeDevice {
		return
	}

	device := &DeviceInfo{
		ObjectID:      msg.Device,
		Address:       src,
		Network:       npdu.Source,
		MaxAPDULength: msg.MaxAPDULength,
		Segmentation:  msg.Segmentation,
		VendorID:      msg.VendorID,
		LastSeen:      time.Now(),
	}

	c.devicesMu.Lock()
	_, exists := c.devices[msg.Device.Instance]
	c.devices[msg.Device.Instance] = device
	c.devicesMu.Unlock()

	if !exists {
		c.metrics.DevicesDiscovered.Inc()
	}

	c.logger.Debug("device discovered",
		slog.Uint64("device_id", uint64(msg.Device.Instance)),
		slog.String("address", src.String()),
		slog.Uint64("vendor_id", uint64(msg.VendorID)),
	)
}

// handleWhoIs answers with I-Am when the client acts as a device in range
func (c *Client) handleWhoIs(msg *bacnet.WhoIs, src netip.AddrPort, npdu *bacnet.NPDU) {
	id := c.opts.localDeviceID
	if id == NoDeviceID || !msg.Matches(id) {
		return
	}

	iam := bacnet.IAm{
		Device:        bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, id),
		MaxAPDULength: uint32(c.opts.maxAPDULength),
		Segmentation:  c.opts.segmentation,
		VendorID:      c.opts.vendorID,
	}
	apdu := bacnet.EncodeAPDU(bacnet.UnconfirmedRequest{Service: uint8(bacnet.ServiceIAm)}, bacnet.EncodeServiceData(&iam))

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.timeout)
	defer cancel()

	if err := c.sendNPDU(ctx, src, false, c.newNPDU(apdu, npdu.Source)); err != nil {
		c.logger.Debug("failed to answer who-is", slog.String("error", err.Error()))
		return
	}
	c.metrics.WhoIsAnswered.Inc()
}

// handleResponse hands a reply to the request waiting on its invoke ID
func (c *Client) handleResponse(invokeID uint8, src netip.AddrPort, apdu *bacnet.APDU) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	p, ok := c.pending[invokeID]
	if !ok || p.addr != src {
		c.metrics.FramesIgnored.Inc()
		c.logger.Debug("unsolicited response",
			slog.String("src", src.String()),
			slog.Int("invoke_id", int(invokeID)),
		)
		return
	}

	select {
	case p.ch <- apdu:
	default:
	}
}

// newNPDU wraps an APDU, routing it to dest when the peer is on a remote network
func (c *Client) newNPDU(apdu []byte, dest *bacnet.NetworkAddress) *bacnet.NPDU {
	npdu := bacnet.NewRequest(apdu)
	if dest != nil {
		npdu.Destination = dest
		npdu.HopCount = bacnet.DefaultHopCount
	}
	return npdu
}

// sendNPDU frames and sends an NPDU. Broadcasts go through the BBMD when the
// client is registered as a foreign device.
func (c *Client) sendNPDU(ctx context.Context, to netip.AddrPort, broadcast bool, npdu *bacnet.NPDU) error {
	payload, err := npdu.Encode()
	if err != nil {
		return err
	}

	var frame bacnet.Frame
	switch {
	case broadcast && c.bbmd.IsValid():
		frame = bacnet.DistributeBroadcast{NPDU: payload}
		to = c.bbmd
	case broadcast:
		frame = bacnet.OriginalBroadcast{NPDU: payload}
		to = c.opts.broadcastAddress
	default:
		frame = bacnet.OriginalUnicast{NPDU: payload}
	}

	data, err := bacnet.EncodeFrame(frame)
	if err != nil {
		return err
	}

	if err := c.transport.Send(ctx, to, data); err != nil {
		return err
	}
	c.metrics.BytesSent.Add(int64(len(data)))
	return nil
}

// register reserves a free invoke ID for a request to addr
func (c *Client) register(addr netip.AddrPort) (uint8, *pendingRequest, error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for i := 0; i < 256; i++ {
		id := uint8(c.invokeID.Add(1))
		if _, busy := c.pending[id]; busy {
			continue
		}
		p := &pendingRequest{addr: addr, ch: make(chan *bacnet.APDU, 1)}
		c.pending[id] = p
		return id, p, nil
	}
	return 0, nil, ErrNoInvokeID
}

func (c *Client) unregister(id uint8, p *pendingRequest) {
	c.pendingMu.Lock()
	if c.pending[id] == p {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// sendRequest sends a confirmed request and waits for its acknowledgement
func (c *Client) sendRequest(ctx context.Context, dev *DeviceInfo, service bacnet.ConfirmedServiceChoice, msg bacnet.ServiceMessage) (*bacnet.APDU, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}

	invokeID, p, err := c.register(dev.Address)
	if err != nil {
		return nil, err
	}
	defer c.unregister(invokeID, p)

	header := bacnet.ConfirmedRequest{
		MaxAPDU:  bacnet.MaxAPDUCode(int(c.opts.maxAPDULength)),
		InvokeID: invokeID,
		Service:  uint8(service),
	}
	apdu := bacnet.EncodeAPDU(header, bacnet.EncodeServiceData(msg))

	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	start := time.Now()
	c.metrics.RequestsSent.Inc()
	c.metrics.ActiveRequests.Inc()
	defer c.metrics.ActiveRequests.Dec()

	if err := c.sendNPDU(ctx, dev.Address, false, c.newNPDU(apdu, dev.Network)); err != nil {
		c.metrics.RequestsFailed.Inc()
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		c.metrics.RequestsTimedOut.Inc()
		return nil, ErrTimeout

	case resp, ok := <-p.ch:
		c.metrics.RequestLatency.Record(time.Since(start))
		if !ok {
			return nil, ErrConnectionClosed
		}

		switch h := resp.Header.(type) {
		case bacnet.SimpleAck, bacnet.ComplexAck:
			c.metrics.RequestsSucceeded.Inc()
			return resp, nil

		case bacnet.ErrorPDU:
			c.metrics.RequestsFailed.Inc()
			var se bacnet.ServiceError
			if err := bacnet.DecodeServiceData(resp.Data, &se); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			}
			return nil, se.Err()

		case bacnet.RejectPDU:
			c.metrics.RequestsFailed.Inc()
			return nil, &bacnet.RejectError{InvokeID: h.InvokeID, Reason: h.Reason}

		case bacnet.AbortPDU:
			c.metrics.RequestsFailed.Inc()
			return nil, &bacnet.AbortError{InvokeID: h.InvokeID, Server: h.Server, Reason: h.Reason}

		default:
			return nil, fmt.Errorf("%w: unexpected %s", ErrInvalidResponse, resp.Header.PDUType())
		}
	}
}

// SendUnconfirmed sends an unconfirmed service request to one address
func (c *Client) SendUnconfirmed(ctx context.Context, to netip.AddrPort, choice bacnet.UnconfirmedServiceChoice, msg bacnet.ServiceMessage) error {
	return c.sendUnconfirmedRequest(ctx, to, false, nil, choice, msg)
}

// Broadcast sends an unconfirmed service request to the local network
func (c *Client) Broadcast(ctx context.Context, choice bacnet.UnconfirmedServiceChoice, msg bacnet.ServiceMessage) error {
	return c.sendUnconfirmedRequest(ctx, netip.AddrPort{}, true, nil, choice, msg)
}

// sendUnconfirmedRequest sends an unconfirmed request
func (c *Client) sendUnconfirmedRequest(ctx context.Context, to netip.AddrPort, broadcast bool, dest *bacnet.NetworkAddress, choice bacnet.UnconfirmedServiceChoice, msg bacnet.ServiceMessage) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	apdu := bacnet.EncodeAPDU(bacnet.UnconfirmedRequest{Service: uint8(choice)}, bacnet.EncodeServiceData(msg))

	c.metrics.RequestsSent.Inc()
	if err := c.sendNPDU(ctx, to, broadcast, c.newNPDU(apdu, dest)); err != nil {
		c.metrics.RequestsFailed.Inc()
		return fmt.Errorf("send unconfirmed request: %w", err)
	}
	c.metrics.RequestsSucceeded.Inc()
	return nil
}

// registerForeignDevice registers as a foreign device with the BBMD
func (c *Client) registerForeignDevice(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(c.opts.bbmdAddress, strconv.Itoa(c.opts.bbmdPort)))
	if err != nil {
		return fmt.Errorf("resolve BBMD address: %w", err)
	}
	bbmd := netip.AddrPortFrom(addr.AddrPort().Addr().Unmap(), addr.AddrPort().Port())

	data, err := bacnet.EncodeFrame(bacnet.RegisterForeignDevice{TTL: uint16(c.opts.foreignDeviceTTL.Seconds())})
	if err != nil {
		return err
	}

	if err := c.transport.Send(ctx, bbmd, data); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}
	c.bbmd = bbmd

	c.logger.Info("registered as foreign device",
		slog.String("bbmd", bbmd.String()),
		slog.Duration("ttl", c.opts.foreignDeviceTTL),
	)

	return nil
}

// WhoIs sends a Who-Is request and returns the devices in range that answered
// before the discovery timeout. Without a range every instance is addressed.
func (c *Client) WhoIs(ctx context.Context, opts ...DiscoverOption) ([]*DeviceInfo, error) {
	options := defaultDiscoverOptions()
	for _, opt := range opts {
		opt(options)
	}

	msg := bacnet.WhoIs{DeviceInstanceLow: 0, DeviceInstanceHigh: bacnet.MaxInstance}
	if options.LowLimit != nil && options.HighLimit != nil {
		msg.DeviceInstanceLow = *options.LowLimit
		msg.DeviceInstanceHigh = *options.HighLimit
	}

	var dest *bacnet.NetworkAddress
	if options.Network != 0 {
		dest = &bacnet.NetworkAddress{Net: options.Network}
	}

	var err error
	if options.Target != nil {
		err = c.sendUnconfirmedRequest(ctx, *options.Target, false, dest, bacnet.ServiceWhoIs, &msg)
	} else {
		err = c.sendUnconfirmedRequest(ctx, netip.AddrPort{}, true, dest, bacnet.ServiceWhoIs, &msg)
	}
	if err != nil {
		return nil, err
	}

	c.metrics.WhoIsSent.Inc()

	timer := time.NewTimer(options.Timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	return c.devicesInRange(msg.DeviceInstanceLow, msg.DeviceInstanceHigh), nil
}

// resolveDevice finds a device's address, discovering it if needed
func (c *Client) resolveDevice(ctx context.Context, deviceID uint32) (*DeviceInfo, error) {
	if dev, ok := c.GetDevice(deviceID); ok {
		return dev, nil
	}

	if _, err := c.WhoIs(ctx, WithDeviceRange(deviceID, deviceID), WithDiscoveryTimeout(2*time.Second)); err != nil {
		return nil, err
	}

	dev, ok := c.GetDevice(deviceID)
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return dev, nil
}

// ReadProperty reads a property from a BACnet object
func (c *Client) ReadProperty(ctx context.Context, deviceID uint32, objectID bacnet.ObjectIdentifier, propertyID bacnet.PropertyIdentifier, opts ...ReadOption) (*bacnet.ReadPropertyAck, error) {
	options := &ReadOptions{}
	for _, opt := range opts {
		opt(options)
	}

	dev, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	req := bacnet.ReadProperty{
		Object:     objectID,
		Property:   propertyID,
		ArrayIndex: options.ArrayIndex,
	}

	resp, err := c.sendRequest(ctx, dev, bacnet.ServiceReadProperty, &req)
	if err != nil {
		return nil, err
	}

	if _, ok := resp.Header.(bacnet.ComplexAck); !ok {
		return nil, fmt.Errorf("%w: read-property answered with %s", ErrInvalidResponse, resp.Header.PDUType())
	}

	var ack bacnet.ReadPropertyAck
	if err := bacnet.DecodeServiceData(resp.Data, &ack); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &ack, nil
}

// WriteProperty writes a property of a BACnet object
func (c *Client) WriteProperty(ctx context.Context, deviceID uint32, objectID bacnet.ObjectIdentifier, propertyID bacnet.PropertyIdentifier, value bacnet.PrimitiveValue, opts ...WriteOption) error {
	options := &WriteOptions{}
	for _, opt := range opts {
		opt(options)
	}

	dev, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	req := bacnet.WriteProperty{
		Object:     objectID,
		Property:   propertyID,
		ArrayIndex: options.ArrayIndex,
		Value:      bacnet.ValueSequence{bacnet.ApplicationValue{Value: value}},
		Priority:   options.Priority,
	}

	_, err = c.sendRequest(ctx, dev, bacnet.ServiceWriteProperty, &req)
	return err
}

// ReadPropertyMultiple reads several properties of several objects in one
// request. Properties the device could not read carry an Error in the result.
func (c *Client) ReadPropertyMultiple(ctx context.Context, deviceID uint32, accesses []bacnet.ReadAccessSpec) (*bacnet.ReadPropertyMultipleAck, error) {
	if len(accesses) == 0 {
		return &bacnet.ReadPropertyMultipleAck{}, nil
	}

	dev, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	req := bacnet.ReadPropertyMultiple{Specs: accesses}
	resp, err := c.sendRequest(ctx, dev, bacnet.ServiceReadPropertyMultiple, &req)
	if err != nil {
		return nil, err
	}

	if _, ok := resp.Header.(bacnet.ComplexAck); !ok {
		return nil, fmt.Errorf("%w: read-property-multiple answered with %s", ErrInvalidResponse, resp.Header.PDUType())
	}

	var ack bacnet.ReadPropertyMultipleAck
	if err := bacnet.DecodeServiceData(resp.Data, &ack); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &ack, nil
}

// GetObjectList returns the object identifiers listed by a device. The whole
// list is read at once; a device that refuses that is read one index at a
// time, skipping entries that fail.
func (c *Client) GetObjectList(ctx context.Context, deviceID uint32) ([]bacnet.ObjectIdentifier, error) {
	device := bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, deviceID)

	ack, err := c.ReadProperty(ctx, deviceID, device, bacnet.PropertyObjectList)
	if err == nil {
		return objectIdentifiers(ack.Value), nil
	}
	if !refused(err) {
		return nil, err
	}

	c.logger.Debug("reading object list by index",
		slog.Uint64("device_id", uint64(deviceID)),
		slog.String("reason", err.Error()),
	)

	ack, err = c.ReadProperty(ctx, deviceID, device, bacnet.PropertyObjectList, WithArrayIndex(0))
	if err != nil {
		return nil, err
	}
	values := bacnet.ApplicationValues(ack.Value)
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: object-list length holds %d values", ErrInvalidResponse, len(values))
	}
	length, ok := values[0].(bacnet.Unsigned)
	if !ok {
		return nil, fmt.Errorf("%w: object-list length is %s", ErrInvalidResponse, values[0].Tag())
	}

	objects := make([]bacnet.ObjectIdentifier, 0, min(int(length), 1024))
	for i := uint32(1); i <= uint32(length); i++ {
		ack, err := c.ReadProperty(ctx, deviceID, device, bacnet.PropertyObjectList, WithArrayIndex(i))
		if err != nil {
			if ctx.Err() != nil {
				return objects, ctx.Err()
			}
			continue
		}
		objects = append(objects, objectIdentifiers(ack.Value)...)
	}
	return objects, nil
}

// refused reports whether a device answered a request with an error, reject or
// abort, as opposed to not answering at all.
func refused(err error) bool {
	var (
		bacErr    *bacnet.BACnetError
		rejectErr *bacnet.RejectError
		abortErr  *bacnet.AbortError
	)
	return errors.As(err, &bacErr) || errors.As(err, &rejectErr) || errors.As(err, &abortErr)
}

func objectIdentifiers(seq bacnet.ValueSequence) []bacnet.ObjectIdentifier {
	var out []bacnet.ObjectIdentifier
	for _, v := range bacnet.ApplicationValues(seq) {
		if oid, ok := v.(bacnet.ObjectIdentifier); ok {
			out = append(out, oid)
		}
	}
	return out
}
