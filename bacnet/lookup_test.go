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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindContextValue(t *testing.T) {
	seq := ValueSequence{
		ApplicationValue{Value: Unsigned(1)},
		ContextValueSequence{Context: 0, Values: ValueSequence{}},
		ContextValue{Context: 0, Value: Unsigned(2)},
		ContextValue{Context: 0, Value: Unsigned(3)},
		ContextValue{Context: 1, Value: CharacterString("x")},
	}

	v, ok := FindContextValue(seq, 0)
	assert.True(t, ok)
	assert.Equal(t, Unsigned(2), v)

	_, ok = FindContextValue(seq, 5)
	assert.False(t, ok)

	children, ok := FindContextSequence(seq, 0)
	assert.True(t, ok)
	assert.Empty(t, children)

	_, ok = FindContextSequence(seq, 1)
	assert.False(t, ok)
}

func TestContextAccessors(t *testing.T) {
	oid := NewObjectIdentifier(ObjectTypeBinaryInput, 3)
	seq := ValueSequence{
		ContextValue{Context: 0, Value: Unsigned(10)},
		ContextValue{Context: 1, Value: Enumerated(4)},
		ContextValue{Context: 2, Value: oid},
		ContextValue{Context: 3, Value: CharacterString("room")},
	}

	u, ok := ContextUnsigned(seq, 0)
	assert.True(t, ok)
	assert.Equal(t, uint32(10), u)

	e, ok := ContextEnumerated(seq, 1)
	assert.True(t, ok)
	assert.Equal(t, uint32(4), e)

	o, ok := ContextObjectIdentifier(seq, 2)
	assert.True(t, ok)
	assert.Equal(t, oid, o)

	s, ok := ContextCharacterString(seq, 3)
	assert.True(t, ok)
	assert.Equal(t, "room", s)

	// Wrong primitive type reads as absent
	_, ok = ContextUnsigned(seq, 1)
	assert.False(t, ok)
	_, ok = ContextEnumerated(seq, 0)
	assert.False(t, ok)
	_, ok = ContextObjectIdentifier(seq, 3)
	assert.False(t, ok)
	_, ok = ContextCharacterString(seq, 2)
	assert.False(t, ok)
	_, ok = ContextUnsigned(seq, 9)
	assert.False(t, ok)
}

func TestApplicationValues(t *testing.T) {
	seq := ValueSequence{
		ApplicationValue{Value: Real(1)},
		ContextValue{Context: 0, Value: Unsigned(2)},
		ApplicationValue{Value: Null{}},
	}
	assert.Equal(t, []PrimitiveValue{Real(1), Null{}}, ApplicationValues(seq))
	assert.Empty(t, ApplicationValues(nil))
}

func TestSequenceableValueString(t *testing.T) {
	assert.Equal(t, "unsigned(5)", ApplicationValue{Value: Unsigned(5)}.String())
	assert.Equal(t, "[1]enumerated(3)", ContextValue{Context: 1, Value: Enumerated(3)}.String())
	assert.Equal(t, "null", Null{}.String())
}
