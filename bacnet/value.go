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
	"encoding/hex"
	"fmt"
	"strings"
)

// PrimitiveValue is a scalar BACnet application value. The concrete type
// determines the application tag used on the wire.
type PrimitiveValue interface {
	Tag() ApplicationTag
	isPrimitive()
}

// Primitive value types
type (
	Null            struct{}
	Boolean         bool
	Unsigned        uint32
	Signed          int32
	Real            float32
	Double          float64
	CharacterString string
	Enumerated      uint32

	// OctetString is an opaque run of octets. Context-tagged primitives whose
	// type is unknown to a lenient schema also decode as OctetString.
	OctetString []byte

	// BitString holds bits in wire order, bit 0 first.
	BitString []bool
)

// Date is a calendar date. Year counts from 1900, Weekday runs from 1 (Monday)
// to 7. A field holding 0xFF is unspecified.
type Date struct {
	Year    uint8
	Month   uint8
	Day     uint8
	Weekday uint8
}

// Time is a time of day. A field holding 0xFF is unspecified.
type Time struct {
	Hour       uint8
	Minute     uint8
	Second     uint8
	Hundredths uint8
}

// Unspecified marks a Date or Time field without a value
const Unspecified uint8 = 0xFF

func (Null) Tag() ApplicationTag             { return TagNull }
func (Boolean) Tag() ApplicationTag          { return TagBoolean }
func (Unsigned) Tag() ApplicationTag         { return TagUnsignedInt }
func (Signed) Tag() ApplicationTag           { return TagSignedInt }
func (Real) Tag() ApplicationTag             { return TagReal }
func (Double) Tag() ApplicationTag           { return TagDouble }
func (CharacterString) Tag() ApplicationTag  { return TagCharacterString }
func (Enumerated) Tag() ApplicationTag       { return TagEnumerated }
func (ObjectIdentifier) Tag() ApplicationTag { return TagObjectID }
func (OctetString) Tag() ApplicationTag      { return TagOctetString }
func (BitString) Tag() ApplicationTag        { return TagBitString }
func (Date) Tag() ApplicationTag             { return TagDate }
func (Time) Tag() ApplicationTag             { return TagTime }

func (Null) isPrimitive()             {}
func (Boolean) isPrimitive()          {}
func (Unsigned) isPrimitive()         {}
func (Signed) isPrimitive()           {}
func (Real) isPrimitive()             {}
func (Double) isPrimitive()           {}
func (CharacterString) isPrimitive()  {}
func (Enumerated) isPrimitive()       {}
func (ObjectIdentifier) isPrimitive() {}
func (OctetString) isPrimitive()      {}
func (BitString) isPrimitive()        {}
func (Date) isPrimitive()             {}
func (Time) isPrimitive()             {}

func (Null) String() string { return "null" }

func (o OctetString) String() string { return hex.EncodeToString(o) }

func (b BitString) String() string {
	var sb strings.Builder
	for _, bit := range b {
		if bit {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (d Date) String() string {
	field := func(v uint8, offset int, width int) string {
		if v == Unspecified {
			return strings.Repeat("*", width)
		}
		return fmt.Sprintf("%0*d", width, int(v)+offset)
	}
	return field(d.Year, 1900, 4) + "-" + field(d.Month, 0, 2) + "-" + field(d.Day, 0, 2)
}

func (t Time) String() string {
	field := func(v uint8) string {
		if v == Unspecified {
			return "**"
		}
		return fmt.Sprintf("%02d", v)
	}
	return field(t.Hour) + ":" + field(t.Minute) + ":" + field(t.Second) + "." + field(t.Hundredths)
}

// Context names the role of a value within its enclosing sequence. Its meaning is
// local to the service message.
type Context uint8

// SequenceableValue is one element of a ValueSequence.
type SequenceableValue interface {
	isSequenceable()
}

// ApplicationValue is a self-describing, application-tagged primitive.
type ApplicationValue struct {
	Value PrimitiveValue
}

// ContextValue is a context-tagged primitive.
type ContextValue struct {
	Context Context
	Value   PrimitiveValue
}

// ContextValueSequence is a constructed value enclosed by opening and closing
// context tags.
type ContextValueSequence struct {
	Context Context
	Values  ValueSequence
}

func (ApplicationValue) isSequenceable()     {}
func (ContextValue) isSequenceable()         {}
func (ContextValueSequence) isSequenceable() {}

func (v ApplicationValue) String() string {
	return fmt.Sprintf("%s(%v)", v.Value.Tag(), v.Value)
}

func (v ContextValue) String() string {
	return fmt.Sprintf("[%d]%s(%v)", v.Context, v.Value.Tag(), v.Value)
}

func (v ContextValueSequence) String() string {
	return fmt.Sprintf("[%d]%v", v.Context, v.Values)
}

// ValueSequence is an ordered list of tagged values. Duplicate context numbers are
// permitted; services decide how to interpret them.
type ValueSequence []SequenceableValue
