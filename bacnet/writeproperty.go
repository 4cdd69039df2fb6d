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

// WriteProperty writes one property of an object. Priority is the optional
// command priority, 1 (highest) to 16.
type WriteProperty struct {
	Object     ObjectIdentifier
	Property   PropertyIdentifier
	ArrayIndex *uint32
	Value      ValueSequence
	Priority   *uint8
}

var writePropertySchema = &Schema{
	Primitives: map[Context]ApplicationTag{
		0: TagObjectID,
		1: TagEnumerated,
		2: TagUnsignedInt,
		4: TagUnsignedInt,
	},
	Sequences: map[Context]*Schema{3: AnyValue},
}

func init() {
	RegisterConfirmedService(ServiceWriteProperty, func() ServiceMessage { return new(WriteProperty) })
}

func (m WriteProperty) Marshall() ValueSequence {
	seq := appendPropertyReference(nil, m.Object, m.Property, m.ArrayIndex)
	seq = append(seq, ContextValueSequence{Context: 3, Values: m.Value})
	if m.Priority != nil {
		seq = append(seq, ContextValue{Context: 4, Value: Unsigned(*m.Priority)})
	}
	return seq
}

func (m *WriteProperty) Unmarshall(seq ValueSequence) error {
	var out WriteProperty
	var err error
	out.Object, out.Property, out.ArrayIndex, err = propertyReference("write-property", seq)
	if err != nil {
		return err
	}
	value, ok := FindContextSequence(seq, 3)
	if !ok {
		return requiredValue("write-property", 3)
	}
	out.Value = value
	if hasContext(seq, 4) {
		p, ok := ContextUnsigned(seq, 4)
		if !ok || p > 0xFF {
			return requiredValue("write-property", 4)
		}
		priority := uint8(p)
		out.Priority = &priority
	}
	*m = out
	return nil
}

func (WriteProperty) Schema() *Schema { return writePropertySchema }
