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

// PropertyValue is one property reported by a change-of-value notification
type PropertyValue struct {
	Property   PropertyIdentifier
	ArrayIndex *uint32
	Value      ValueSequence
	Priority   *uint8
}

// COVNotification reports the current values of a subscribed object. It is
// carried by both the confirmed and the unconfirmed COV notification services.
// TimeRemaining is the subscription lifetime left in seconds, zero when the
// subscription is indefinite.
type COVNotification struct {
	SubscriberProcessID uint32
	InitiatingDevice    ObjectIdentifier
	Object              ObjectIdentifier
	TimeRemaining       uint32
	Values              []PropertyValue
}

var covNotificationSchema = &Schema{
	Primitives: map[Context]ApplicationTag{
		0: TagUnsignedInt,
		1: TagObjectID,
		2: TagObjectID,
		3: TagUnsignedInt,
	},
	Sequences: map[Context]*Schema{
		4: {
			Primitives: map[Context]ApplicationTag{
				0: TagEnumerated,
				1: TagUnsignedInt,
				3: TagUnsignedInt,
			},
			Sequences: map[Context]*Schema{2: AnyValue},
		},
	},
}

func init() {
	RegisterUnconfirmedService(ServiceUnconfirmedCOVNotification, func() ServiceMessage { return new(COVNotification) })
	RegisterConfirmedService(ServiceConfirmedCOVNotification, func() ServiceMessage { return new(COVNotification) })
}

func (m COVNotification) Marshall() ValueSequence {
	var values ValueSequence
	for _, pv := range m.Values {
		values = append(values, ContextValue{Context: 0, Value: Enumerated(pv.Property)})
		if pv.ArrayIndex != nil {
			values = append(values, ContextValue{Context: 1, Value: Unsigned(*pv.ArrayIndex)})
		}
		values = append(values, ContextValueSequence{Context: 2, Values: pv.Value})
		if pv.Priority != nil {
			values = append(values, ContextValue{Context: 3, Value: Unsigned(*pv.Priority)})
		}
	}
	return ValueSequence{
		ContextValue{Context: 0, Value: Unsigned(m.SubscriberProcessID)},
		ContextValue{Context: 1, Value: m.InitiatingDevice},
		ContextValue{Context: 2, Value: m.Object},
		ContextValue{Context: 3, Value: Unsigned(m.TimeRemaining)},
		ContextValueSequence{Context: 4, Values: values},
	}
}

func (m *COVNotification) Unmarshall(seq ValueSequence) error {
	const service = "cov-notification"

	var out COVNotification
	var ok bool
	if out.SubscriberProcessID, ok = ContextUnsigned(seq, 0); !ok {
		return requiredValue(service, 0)
	}
	if out.InitiatingDevice, ok = ContextObjectIdentifier(seq, 1); !ok {
		return requiredValue(service, 1)
	}
	if out.Object, ok = ContextObjectIdentifier(seq, 2); !ok {
		return requiredValue(service, 2)
	}
	if out.TimeRemaining, ok = ContextUnsigned(seq, 3); !ok {
		return requiredValue(service, 3)
	}
	list, ok := FindContextSequence(seq, 4)
	if !ok {
		return requiredValue(service, 4)
	}

	values, err := propertyValues(service, list)
	if err != nil {
		return err
	}
	out.Values = values

	*m = out
	return nil
}

func (COVNotification) Schema() *Schema { return covNotificationSchema }

// Value returns the reported value of property
func (m COVNotification) Value(property PropertyIdentifier) (ValueSequence, bool) {
	for _, pv := range m.Values {
		if pv.Property == property {
			return pv.Value, true
		}
	}
	return nil, false
}

// propertyValues walks a list of property, optional index, value construct and
// optional priority entries.
func propertyValues(service string, list ValueSequence) ([]PropertyValue, error) {
	var out []PropertyValue
	var current *PropertyValue
	hasValue := false

	for _, v := range list {
		switch t := v.(type) {
		case ContextValue:
			switch {
			case t.Context == 0:
				if current != nil && !hasValue {
					return nil, requiredValue(service, 2)
				}
				prop, ok := t.Value.(Enumerated)
				if !ok {
					return nil, requiredValue(service, 0)
				}
				if current != nil {
					out = append(out, *current)
				}
				current = &PropertyValue{Property: PropertyIdentifier(prop)}
				hasValue = false
			case t.Context == 1 && current != nil && !hasValue && current.ArrayIndex == nil:
				index, ok := t.Value.(Unsigned)
				if !ok {
					return nil, requiredValue(service, 1)
				}
				i := uint32(index)
				current.ArrayIndex = &i
			case t.Context == 3 && current != nil && hasValue && current.Priority == nil:
				priority, ok := t.Value.(Unsigned)
				if !ok || priority < 1 || priority > 16 {
					return nil, requiredValue(service, 3)
				}
				p := uint8(priority)
				current.Priority = &p
			case current == nil:
				return nil, requiredValue(service, 0)
			default:
				return nil, requiredValue(service, 2)
			}

		case ContextValueSequence:
			if current == nil {
				return nil, requiredValue(service, 0)
			}
			if t.Context != 2 || hasValue {
				return nil, requiredValue(service, 2)
			}
			current.Value = t.Values
			hasValue = true

		default:
			return nil, requiredValue(service, 0)
		}
	}

	if current != nil {
		if !hasValue {
			return nil, requiredValue(service, 2)
		}
		out = append(out, *current)
	}
	return out, nil
}
