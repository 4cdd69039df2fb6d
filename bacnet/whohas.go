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

// WhoHas asks devices which hold an object, named either by identifier or by
// name, to answer with I-Have. Without limits every device is addressed.
//
// The limits are meaningful only when HasLimits is set, and ObjectName only
// when Object is nil. Marshall encodes the Normalized form, so a message with
// both Object and ObjectName, or with limits but no HasLimits, decodes back as
// its normalized form.
type WhoHas struct {
	HasLimits          bool
	DeviceInstanceLow  uint32
	DeviceInstanceHigh uint32
	Object             *ObjectIdentifier
	ObjectName         string
}

var whoHasSchema = &Schema{
	Primitives: map[Context]ApplicationTag{
		0: TagUnsignedInt,
		1: TagUnsignedInt,
		2: TagObjectID,
		3: TagCharacterString,
	},
}

func init() {
	RegisterUnconfirmedService(ServiceWhoHas, func() ServiceMessage { return new(WhoHas) })
}

// Normalized returns m with the fields that do not reach the wire cleared
func (m WhoHas) Normalized() WhoHas {
	if !m.HasLimits {
		m.DeviceInstanceLow, m.DeviceInstanceHigh = 0, 0
	}
	if m.Object != nil {
		m.ObjectName = ""
	}
	return m
}

func (m WhoHas) Marshall() ValueSequence {
	m = m.Normalized()

	var seq ValueSequence
	if m.HasLimits {
		seq = append(seq,
			ContextValue{Context: 0, Value: Unsigned(m.DeviceInstanceLow)},
			ContextValue{Context: 1, Value: Unsigned(m.DeviceInstanceHigh)},
		)
	}
	if m.Object != nil {
		return append(seq, ContextValue{Context: 2, Value: *m.Object})
	}
	return append(seq, ContextValue{Context: 3, Value: CharacterString(m.ObjectName)})
}

func (m *WhoHas) Unmarshall(seq ValueSequence) error {
	var out WhoHas

	// The limits are optional but must appear together.
	if hasContext(seq, 0) || hasContext(seq, 1) {
		low, ok := ContextUnsigned(seq, 0)
		if !ok {
			return requiredValue("who-has", 0)
		}
		high, ok := ContextUnsigned(seq, 1)
		if !ok {
			return requiredValue("who-has", 1)
		}
		out.HasLimits = true
		out.DeviceInstanceLow = low
		out.DeviceInstanceHigh = high
	}

	if oid, ok := ContextObjectIdentifier(seq, 2); ok {
		out.Object = &oid
	} else if name, ok := ContextCharacterString(seq, 3); ok {
		out.ObjectName = name
	} else {
		return requiredValue("who-has", 2)
	}

	*m = out
	return nil
}

func (WhoHas) Schema() *Schema { return whoHasSchema }
