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

// PropertyReference names a property, or one element of an array property
type PropertyReference struct {
	Property   PropertyIdentifier
	ArrayIndex *uint32
}

// ReadAccessSpec lists the properties to read from one object
type ReadAccessSpec struct {
	Object     ObjectIdentifier
	Properties []PropertyReference
}

// ReadPropertyMultiple reads several properties of several objects in one
// request.
type ReadPropertyMultiple struct {
	Specs []ReadAccessSpec
}

// PropertyResult is the outcome of reading one property. A result carries
// either a value or, when Error is set, the reason the read failed.
type PropertyResult struct {
	Property   PropertyIdentifier
	ArrayIndex *uint32
	Value      ValueSequence
	Error      *ServiceError
}

// ReadAccessResult holds the results for one object, in request order
type ReadAccessResult struct {
	Object  ObjectIdentifier
	Results []PropertyResult
}

// ReadPropertyMultipleAck answers ReadPropertyMultiple
type ReadPropertyMultipleAck struct {
	Results []ReadAccessResult
}

var readPropertyMultipleSchema = &Schema{
	Primitives: map[Context]ApplicationTag{0: TagObjectID},
	Sequences: map[Context]*Schema{
		1: {Primitives: map[Context]ApplicationTag{
			0: TagEnumerated,
			1: TagUnsignedInt,
		}},
	},
}

var readPropertyMultipleAckSchema = &Schema{
	Primitives: map[Context]ApplicationTag{0: TagObjectID},
	Sequences: map[Context]*Schema{
		1: {
			Primitives: map[Context]ApplicationTag{
				2: TagEnumerated,
				3: TagUnsignedInt,
			},
			Sequences: map[Context]*Schema{4: AnyValue},
		},
	},
}

func init() {
	RegisterConfirmedService(ServiceReadPropertyMultiple, func() ServiceMessage { return new(ReadPropertyMultiple) })
	RegisterComplexAckService(ServiceReadPropertyMultiple, func() ServiceMessage { return new(ReadPropertyMultipleAck) })
}

func (m ReadPropertyMultiple) Marshall() ValueSequence {
	var seq ValueSequence
	for _, access := range m.Specs {
		var refs ValueSequence
		for _, ref := range access.Properties {
			refs = append(refs, ContextValue{Context: 0, Value: Enumerated(ref.Property)})
			if ref.ArrayIndex != nil {
				refs = append(refs, ContextValue{Context: 1, Value: Unsigned(*ref.ArrayIndex)})
			}
		}
		seq = append(seq,
			ContextValue{Context: 0, Value: access.Object},
			ContextValueSequence{Context: 1, Values: refs},
		)
	}
	return seq
}

func (m *ReadPropertyMultiple) Unmarshall(seq ValueSequence) error {
	const service = "read-property-multiple"

	groups, err := objectGroups(service, seq)
	if err != nil {
		return err
	}

	var out ReadPropertyMultiple
	for _, g := range groups {
		access := ReadAccessSpec{Object: g.object}
		for _, v := range g.values {
			cv, ok := v.(ContextValue)
			if !ok {
				return requiredValue(service, 0)
			}
			switch {
			case cv.Context == 0:
				prop, ok := cv.Value.(Enumerated)
				if !ok {
					return requiredValue(service, 0)
				}
				access.Properties = append(access.Properties, PropertyReference{Property: PropertyIdentifier(prop)})
			case cv.Context == 1 && len(access.Properties) > 0:
				last := &access.Properties[len(access.Properties)-1]
				index, ok := cv.Value.(Unsigned)
				if !ok || last.ArrayIndex != nil {
					return requiredValue(service, 1)
				}
				i := uint32(index)
				last.ArrayIndex = &i
			default:
				return requiredValue(service, 0)
			}
		}
		if len(access.Properties) == 0 {
			return requiredValue(service, 0)
		}
		out.Specs = append(out.Specs, access)
	}

	*m = out
	return nil
}

func (ReadPropertyMultiple) Schema() *Schema { return readPropertyMultipleSchema }

func (m ReadPropertyMultipleAck) Marshall() ValueSequence {
	var seq ValueSequence
	for _, r := range m.Results {
		var results ValueSequence
		for _, pr := range r.Results {
			results = append(results, ContextValue{Context: 2, Value: Enumerated(pr.Property)})
			if pr.ArrayIndex != nil {
				results = append(results, ContextValue{Context: 3, Value: Unsigned(*pr.ArrayIndex)})
			}
			if pr.Error != nil {
				results = append(results, ContextValueSequence{Context: 5, Values: pr.Error.Marshall()})
			} else {
				results = append(results, ContextValueSequence{Context: 4, Values: pr.Value})
			}
		}
		seq = append(seq,
			ContextValue{Context: 0, Value: r.Object},
			ContextValueSequence{Context: 1, Values: results},
		)
	}
	return seq
}

func (m *ReadPropertyMultipleAck) Unmarshall(seq ValueSequence) error {
	const service = "read-property-multiple-ack"

	groups, err := objectGroups(service, seq)
	if err != nil {
		return err
	}

	var out ReadPropertyMultipleAck
	for _, g := range groups {
		result := ReadAccessResult{Object: g.object}

		// Each result is a property, an optional index, then a value or an error.
		var current *PropertyResult
		for _, v := range g.values {
			switch t := v.(type) {
			case ContextValue:
				switch {
				case t.Context == 2 && current == nil:
					prop, ok := t.Value.(Enumerated)
					if !ok {
						return requiredValue(service, 2)
					}
					current = &PropertyResult{Property: PropertyIdentifier(prop)}
				case t.Context == 3 && current != nil && current.ArrayIndex == nil:
					index, ok := t.Value.(Unsigned)
					if !ok {
						return requiredValue(service, 3)
					}
					i := uint32(index)
					current.ArrayIndex = &i
				case current == nil:
					return requiredValue(service, 2)
				default:
					return requiredValue(service, 4)
				}

			case ContextValueSequence:
				if current == nil {
					return requiredValue(service, 2)
				}
				switch t.Context {
				case 4:
					current.Value = t.Values
				case 5:
					var se ServiceError
					if err := se.Unmarshall(t.Values); err != nil {
						return err
					}
					current.Error = &se
				default:
					return requiredValue(service, 4)
				}
				result.Results = append(result.Results, *current)
				current = nil

			default:
				return requiredValue(service, 2)
			}
		}
		if current != nil {
			return requiredValue(service, 4)
		}
		out.Results = append(out.Results, result)
	}

	*m = out
	return nil
}

func (ReadPropertyMultipleAck) Schema() *Schema { return readPropertyMultipleAckSchema }

// Result returns the outcome for one property of one object
func (m ReadPropertyMultipleAck) Result(object ObjectIdentifier, property PropertyIdentifier) (PropertyResult, bool) {
	for _, r := range m.Results {
		if r.Object != object {
			continue
		}
		for _, pr := range r.Results {
			if pr.Property == property {
				return pr, true
			}
		}
	}
	return PropertyResult{}, false
}

type objectGroup struct {
	object ObjectIdentifier
	values ValueSequence
}

// objectGroups splits a sequence of object identifier [0] and list [1] pairs
func objectGroups(service string, seq ValueSequence) ([]objectGroup, error) {
	if len(seq) == 0 {
		return nil, requiredValue(service, 0)
	}

	var groups []objectGroup
	for i := 0; i < len(seq); i += 2 {
		cv, ok := seq[i].(ContextValue)
		if !ok || cv.Context != 0 {
			return nil, requiredValue(service, 0)
		}
		oid, ok := cv.Value.(ObjectIdentifier)
		if !ok {
			return nil, requiredValue(service, 0)
		}
		if i+1 >= len(seq) {
			return nil, requiredValue(service, 1)
		}
		list, ok := seq[i+1].(ContextValueSequence)
		if !ok || list.Context != 1 {
			return nil, requiredValue(service, 1)
		}
		groups = append(groups, objectGroup{object: oid, values: list.Values})
	}
	return groups, nil
}
