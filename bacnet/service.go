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
	"fmt"
	"sync"
)

// ServiceMessage is a typed service request or acknowledgement that converts to
// and from a value sequence.
//
// Marshall never fails. Unmarshall returns a *RequiredValueError when a mandatory
// value is absent or holds the wrong primitive type. For every valid message m,
// unmarshalling m.Marshall() into a zero message yields m.
type ServiceMessage interface {
	Marshall() ValueSequence
	Unmarshall(seq ValueSequence) error
}

// SchemaProvider is implemented by messages that carry context-tagged primitives
type SchemaProvider interface {
	Schema() *Schema
}

// EncodeServiceData returns the service data octets of msg
func EncodeServiceData(msg ServiceMessage) []byte {
	return EncodeValueSequence(msg.Marshall())
}

// DecodeServiceData decodes service data octets into msg
func DecodeServiceData(data []byte, msg ServiceMessage) error {
	var schema *Schema
	if p, ok := msg.(SchemaProvider); ok {
		schema = p.Schema()
	}
	seq, err := DecodeValueSequence(data, schema)
	if err != nil {
		return err
	}
	return msg.Unmarshall(seq)
}

// Registries of service message constructors, keyed by service choice.
var (
	registryMu  sync.RWMutex
	unconfirmed = make(map[UnconfirmedServiceChoice]func() ServiceMessage)
	confirmed   = make(map[ConfirmedServiceChoice]func() ServiceMessage)
	complexAcks = make(map[ConfirmedServiceChoice]func() ServiceMessage)
)

// RegisterUnconfirmedService makes a message type available for an unconfirmed
// service choice. It panics if the choice is already registered.
func RegisterUnconfirmedService(choice UnconfirmedServiceChoice, newMessage func() ServiceMessage) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := unconfirmed[choice]; dup {
		panic(fmt.Sprintf("bacnet: unconfirmed service %s registered twice", choice))
	}
	unconfirmed[choice] = newMessage
}

// RegisterConfirmedService makes a request type available for a confirmed
// service choice. It panics if the choice is already registered.
func RegisterConfirmedService(choice ConfirmedServiceChoice, newMessage func() ServiceMessage) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := confirmed[choice]; dup {
		panic(fmt.Sprintf("bacnet: confirmed service %s registered twice", choice))
	}
	confirmed[choice] = newMessage
}

// RegisterComplexAckService makes an acknowledgement type available for the
// ComplexAck of a confirmed service. It panics if the choice is already registered.
func RegisterComplexAckService(choice ConfirmedServiceChoice, newMessage func() ServiceMessage) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := complexAcks[choice]; dup {
		panic(fmt.Sprintf("bacnet: complex ack %s registered twice", choice))
	}
	complexAcks[choice] = newMessage
}

// NewUnconfirmedService returns a zero message for choice
func NewUnconfirmedService(choice UnconfirmedServiceChoice) (ServiceMessage, error) {
	registryMu.RLock()
	newMessage, ok := unconfirmed[choice]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unconfirmed %s", ErrUnknownService, choice)
	}
	return newMessage(), nil
}

// NewConfirmedService returns a zero request for choice
func NewConfirmedService(choice ConfirmedServiceChoice) (ServiceMessage, error) {
	registryMu.RLock()
	newMessage, ok := confirmed[choice]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: confirmed %s", ErrUnknownService, choice)
	}
	return newMessage(), nil
}

// NewComplexAckService returns a zero acknowledgement for choice
func NewComplexAckService(choice ConfirmedServiceChoice) (ServiceMessage, error) {
	registryMu.RLock()
	newMessage, ok := complexAcks[choice]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: complex ack %s", ErrUnknownService, choice)
	}
	return newMessage(), nil
}

// DecodeService decodes the service carried by an APDU using the registries.
// Error, Reject, Abort, SimpleAck and SegmentAck carry no service message and
// return ErrUnknownService.
func DecodeService(apdu *APDU) (ServiceMessage, error) {
	var (
		msg ServiceMessage
		err error
	)
	switch h := apdu.Header.(type) {
	case UnconfirmedRequest:
		msg, err = NewUnconfirmedService(UnconfirmedServiceChoice(h.Service))
	case ConfirmedRequest:
		msg, err = NewConfirmedService(ConfirmedServiceChoice(h.Service))
	case ComplexAck:
		msg, err = NewComplexAckService(ConfirmedServiceChoice(h.Service))
	default:
		return nil, fmt.Errorf("%w: %s carries no service data", ErrUnknownService, apdu.Header.PDUType())
	}
	if err != nil {
		return nil, err
	}
	if err := DecodeServiceData(apdu.Data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
