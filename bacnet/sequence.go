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

import "fmt"

// MaxNestingDepth bounds how many constructed values may enclose each other
// in decoded input.
const MaxNestingDepth = 32

// Schema gives the application type of context-tagged primitives, which the wire
// does not carry. Sequences holds the schema of each constructed context value.
// A nil *Schema knows no contexts.
//
// A Lenient schema decodes context primitives it does not list as OctetString
// holding the raw content, and applies itself to constructed values it does
// not list. It suits values whose structure depends on data, such as the value
// of a property.
type Schema struct {
	Primitives map[Context]ApplicationTag
	Sequences  map[Context]*Schema
	Lenient    bool
}

// AnyValue is a lenient schema that accepts any tagged content
var AnyValue = &Schema{Lenient: true}

func (s *Schema) primitive(ctx Context) (ApplicationTag, bool) {
	if s == nil {
		return 0, false
	}
	if tag, ok := s.Primitives[ctx]; ok {
		return tag, true
	}
	return TagOctetString, s.Lenient
}

func (s *Schema) sequence(ctx Context) *Schema {
	if s == nil {
		return nil
	}
	if child, ok := s.Sequences[ctx]; ok {
		return child
	}
	if s.Lenient {
		return s
	}
	return nil
}

// EncodeValueSequence encodes seq as tagged octets
func EncodeValueSequence(seq ValueSequence) []byte {
	return AppendValueSequence(nil, seq)
}

// AppendValueSequence appends the tagged encoding of seq to buf
func AppendValueSequence(buf []byte, seq ValueSequence) []byte {
	for _, v := range seq {
		switch t := v.(type) {
		case ApplicationValue:
			buf = AppendPrimitive(buf, t.Value)
		case ContextValue:
			buf = AppendContextPrimitive(buf, t.Context, t.Value)
		case ContextValueSequence:
			buf = AppendOpeningTag(buf, uint8(t.Context))
			buf = AppendValueSequence(buf, t.Values)
			buf = AppendClosingTag(buf, uint8(t.Context))
		}
	}
	return buf
}

// DecodeValueSequence decodes tagged octets into a value sequence. Context-tagged
// primitives are typed through schema; one missing from the schema fails with
// ErrInvalidTag.
func DecodeValueSequence(data []byte, schema *Schema) (ValueSequence, error) {
	seq, _, err := decodeValueSequence(data, schema, 0, -1)
	return seq, err
}

// decodeValueSequence decodes until the end of data or, when closing is a
// context number, until its closing tag. It returns the octets consumed.
func decodeValueSequence(data []byte, schema *Schema, depth int, closing int) (ValueSequence, int, error) {
	seq := ValueSequence{}
	offset := 0

	for offset < len(data) {
		tag, err := DecodeTag(data[offset:])
		if err != nil {
			return nil, 0, err
		}
		offset += tag.HeaderLen

		switch {
		case tag.Closing:
			if int(tag.Number) != closing {
				return nil, 0, fmt.Errorf("%w: unexpected closing tag %d", ErrInvalidTag, tag.Number)
			}
			return seq, offset, nil

		case tag.Opening:
			if depth+1 > MaxNestingDepth {
				return nil, 0, fmt.Errorf("%w: more than %d levels", ErrNestingTooDeep, MaxNestingDepth)
			}
			ctx := Context(tag.Number)
			children, n, err := decodeValueSequence(data[offset:], schema.sequence(ctx), depth+1, int(tag.Number))
			if err != nil {
				return nil, 0, err
			}
			offset += n
			seq = append(seq, ContextValueSequence{Context: ctx, Values: children})

		case tag.IsApplicationBoolean():
			if tag.Length > 1 {
				return nil, 0, fmt.Errorf("%w: boolean value %d", ErrInvalidTag, tag.Length)
			}
			seq = append(seq, ApplicationValue{Value: Boolean(tag.Length == 1)})

		default:
			if uint64(tag.Length) > uint64(len(data)-offset) {
				return nil, 0, fmt.Errorf("%w: tag %d declares %d octets, %d remain",
					ErrInvalidTag, tag.Number, tag.Length, len(data)-offset)
			}
			content := data[offset : offset+int(tag.Length)]
			offset += int(tag.Length)

			if tag.Class == TagClassApplication {
				v, err := DecodePrimitiveContent(ApplicationTag(tag.Number), content)
				if err != nil {
					return nil, 0, err
				}
				seq = append(seq, ApplicationValue{Value: v})
				continue
			}

			ctx := Context(tag.Number)
			appTag, ok := schema.primitive(ctx)
			if !ok {
				return nil, 0, fmt.Errorf("%w: no type known for context tag %d", ErrInvalidTag, ctx)
			}
			v, err := DecodePrimitiveContent(appTag, content)
			if err != nil {
				return nil, 0, err
			}
			seq = append(seq, ContextValue{Context: ctx, Value: v})
		}
	}

	if closing >= 0 {
		return nil, 0, fmt.Errorf("%w: missing closing tag %d", ErrInvalidTag, closing)
	}
	return seq, offset, nil
}
