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
	"log/slog"
	"net/netip"
	"time"

	"github.com/edgeo-scada/bacnet/bacnet"
)

// NoDeviceID marks a client that does not act as a device. Such a client never
// answers Who-Is.
const NoDeviceID = 0xFFFFFFFF

// clientOptions holds configuration for the BACnet client
type clientOptions struct {
	// Device configuration
	localDeviceID uint32
	vendorID      uint16
	localAddress  string

	// Network configuration
	broadcastAddress netip.AddrPort
	bbmdAddress      string
	bbmdPort         int
	foreignDeviceTTL time.Duration

	// Timeouts
	timeout time.Duration

	// APDU configuration
	maxAPDULength uint16
	segmentation  bacnet.Segmentation

	// Logging
	logger *slog.Logger
}

// defaultOptions returns the default client options
func defaultOptions() *clientOptions {
	return &clientOptions{
		localDeviceID:    NoDeviceID,
		broadcastAddress: netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), bacnet.DefaultPort),
		timeout:          3 * time.Second,
		maxAPDULength:    bacnet.MaxAPDULength,
		segmentation:     bacnet.SegmentationNone,
		logger:           slog.Default(),
	}
}

// Option is a functional option for configuring the client
type Option func(*clientOptions)

// WithDeviceID makes the client answer matching Who-Is requests with an I-Am
// for this device instance
func WithDeviceID(id uint32) Option {
	return func(o *clientOptions) {
		o.localDeviceID = id
	}
}

// WithVendorID sets the vendor identifier announced in I-Am
func WithVendorID(id uint16) Option {
	return func(o *clientOptions) {
		o.vendorID = id
	}
}

// WithLocalAddress sets the local address to bind to
func WithLocalAddress(addr string) Option {
	return func(o *clientOptions) {
		o.localAddress = addr
	}
}

// WithBroadcastAddress sets the destination of local broadcasts
func WithBroadcastAddress(addr netip.AddrPort) Option {
	return func(o *clientOptions) {
		o.broadcastAddress = addr
	}
}

// WithBBMD registers the client as a foreign device with a BACnet Broadcast
// Management Device. Broadcasts are then distributed through it.
func WithBBMD(addr string, port int, ttl time.Duration) Option {
	return func(o *clientOptions) {
		o.bbmdAddress = addr
		o.bbmdPort = port
		o.foreignDeviceTTL = ttl
	}
}

// WithTimeout sets the confirmed request timeout
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithMaxAPDULength sets the maximum APDU length accepted
func WithMaxAPDULength(length uint16) Option {
	return func(o *clientOptions) {
		o.maxAPDULength = length
	}
}

// WithSegmentation sets the segmentation capability announced in I-Am
func WithSegmentation(seg bacnet.Segmentation) Option {
	return func(o *clientOptions) {
		o.segmentation = seg
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// DiscoverOptions holds configuration for device discovery
type DiscoverOptions struct {
	// Range limits for Who-Is. Both or neither must be set.
	LowLimit  *uint32
	HighLimit *uint32

	// Timeout for discovery
	Timeout time.Duration

	// Remote network to search (0 = local)
	Network uint16

	// Target receives a unicast Who-Is instead of a broadcast
	Target *netip.AddrPort
}

// DiscoverOption is a functional option for discovery
type DiscoverOption func(*DiscoverOptions)

// defaultDiscoverOptions returns default discovery options
func defaultDiscoverOptions() *DiscoverOptions {
	return &DiscoverOptions{
		Timeout: 5 * time.Second,
	}
}

// WithDeviceRange sets the device ID range for discovery
func WithDeviceRange(low, high uint32) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.LowLimit = &low
		o.HighLimit = &high
	}
}

// WithDiscoveryTimeout sets the discovery timeout
func WithDiscoveryTimeout(d time.Duration) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.Timeout = d
	}
}

// WithTargetNetwork sets the target network for discovery
func WithTargetNetwork(net uint16) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.Network = net
	}
}

// WithDiscoveryTarget sends the Who-Is to one address
func WithDiscoveryTarget(addr netip.AddrPort) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.Target = &addr
	}
}

// ReadOptions holds configuration for read operations
type ReadOptions struct {
	ArrayIndex *uint32
}

// ReadOption is a functional option for read operations
type ReadOption func(*ReadOptions)

// WithArrayIndex sets the array index for reading array properties
func WithArrayIndex(index uint32) ReadOption {
	return func(o *ReadOptions) {
		o.ArrayIndex = &index
	}
}

// WriteOptions holds configuration for write operations
type WriteOptions struct {
	ArrayIndex *uint32
	Priority   *uint8
}

// WriteOption is a functional option for write operations
type WriteOption func(*WriteOptions)

// WithWriteArrayIndex sets the array index for writing array properties
func WithWriteArrayIndex(index uint32) WriteOption {
	return func(o *WriteOptions) {
		o.ArrayIndex = &index
	}
}

// WithPriority sets the priority for writing (1-16, where 1 is highest)
func WithPriority(priority uint8) WriteOption {
	return func(o *WriteOptions) {
		if priority >= 1 && priority <= 16 {
			o.Priority = &priority
		}
	}
}

// SubscribeOptions holds configuration for COV subscriptions
type SubscribeOptions struct {
	// Lifetime in seconds. Nil asks for an indefinite subscription.
	Lifetime  *uint32
	Confirmed bool
}

// SubscribeOption is a functional option for COV subscriptions
type SubscribeOption func(*SubscribeOptions)

// WithSubscriptionLifetime sets the subscription lifetime in seconds
func WithSubscriptionLifetime(seconds uint32) SubscribeOption {
	return func(o *SubscribeOptions) {
		o.Lifetime = &seconds
	}
}

// WithConfirmedNotifications requests confirmed COV notifications
func WithConfirmedNotifications(confirmed bool) SubscribeOption {
	return func(o *SubscribeOptions) {
		o.Confirmed = confirmed
	}
}
