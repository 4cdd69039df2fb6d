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

// ReadProperty requests one property of an object
type ReadProperty struct {
	Object     ObjectIdentifier
	Property   PropertyIdentifier
	ArrayIndex *uint32
}

// ReadPropertyAck carries the value of a property read. Value holds the
// contents of the property-value construct. Context-tagged primitives inside
// it decode as OctetString, since their type depends on the property.
type ReadPropertyAck struct {
	Object     ObjectIdentifier
	Property   PropertyIdentifier
	ArrayIndex *uint32
	Value      ValueSequence
}

var readPropertySchema = &Schema{
	Primitives: map[Context]ApplicationTag{
		0: TagObjectID,
		1: TagEnumerated,
		2: TagUnsignedInt,
	},
	Sequences: map[Context]*Schema{3: AnyValue},
}

func init() {
	RegisterConfirmedService(ServiceReadProperty, func() ServiceMessage { return new(ReadProperty) })
	RegisterComplexAckService(ServiceReadProperty, func() ServiceMessage { return new(ReadPropertyAck) })
}

func (m ReadProperty) Marshall() ValueSequence {
	return appendPropertyReference(nil, m.Object, m.Property, m.ArrayIndex)
}

func (m *ReadProperty) Unmarshall(seq ValueSequence) error {
	var out ReadProperty
	var err error
	out.Object, out.Property, out.ArrayIndex, err = propertyReference("read-property", seq)
	if err != nil {
		return err
	}
	*m = out
	return nil
}

func (ReadProperty) Schema() *Schema { return readPropertySchema }

func (m ReadPropertyAck) Marshall() ValueSequence {
	seq := appendPropertyReference(nil, m.Object, m.Property, m.ArrayIndex)
	return append(seq, ContextValueSequence{Context: 3, Values: m.Value})
}

func (m *ReadPropertyAck) Unmarshall(seq ValueSequence) error {
	var out ReadPropertyAck
	var err error
	out.Object, out.Property, out.ArrayIndex, err = propertyReference("read-property-ack", seq)
	if err != nil {
		return err
	}
	value, ok := FindContextSequence(seq, 3)
	if !ok {
		return requiredValue("read-property-ack", 3)
	}
	out.Value = value
	*m = out
	return nil
}

func (ReadPropertyAck) Schema() *Schema { return readPropertySchema }

// appendPropertyReference appends the object, property and optional array index
// shared by the property access services as contexts 0, 1 and 2.
func appendPropertyReference(seq ValueSequence, oid ObjectIdentifier, prop PropertyIdentifier, index *uint32) ValueSequence {
	seq = append(seq,
		ContextValue{Context: 0, Value: oid},
		ContextValue{Context: 1, Value: Enumerated(prop)},
	)
	if index != nil {
		seq = append(seq, ContextValue{Context: 2, Value: Unsigned(*index)})
	}
	return seq
}

func propertyReference(service string, seq ValueSequence) (ObjectIdentifier, PropertyIdentifier, *uint32, error) {
	oid, ok := ContextObjectIdentifier(seq, 0)
	if !ok {
		return ObjectIdentifier{}, 0, nil, requiredValue(service, 0)
	}
	prop, ok := ContextEnumerated(seq, 1)
	if !ok {
		return ObjectIdentifier{}, 0, nil, requiredValue(service, 1)
	}
	var index *uint32
	if hasContext(seq, 2) {
		i, ok := ContextUnsigned(seq, 2)
		if !ok {
			return ObjectIdentifier{}, 0, nil, requiredValue(service, 2)
		}
		index = &i
	}
	return oid, PropertyIdentifier(prop), index, nil
}
