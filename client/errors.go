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

import "errors"

// Client errors
var (
	ErrNotConnected     = errors.New("bacnet: client not connected")
	ErrAlreadyConnected = errors.New("bacnet: client already connected")
	ErrConnectionClosed = errors.New("bacnet: connection closed")
	ErrTimeout          = errors.New("bacnet: request timed out")
	ErrDeviceNotFound   = errors.New("bacnet: device not found")
	ErrInvalidResponse  = errors.New("bacnet: invalid response")
	ErrNoInvokeID       = errors.New("bacnet: no free invoke ID")
)

// ErrSubscriptionNotFound is returned when cancelling an unknown COV subscription
var ErrSubscriptionNotFound = errors.New("bacnet: subscription not found")
