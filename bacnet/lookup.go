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

// FindContextValue returns the primitive of the first ContextValue tagged ctx.
// ApplicationValue and ContextValueSequence entries never match.
func FindContextValue(seq ValueSequence, ctx Context) (PrimitiveValue, bool) {
	for _, v := range seq {
		if cv, ok := v.(ContextValue); ok && cv.Context == ctx {
			return cv.Value, true
		}
	}
	return nil, false
}

// FindContextSequence returns the children of the first ContextValueSequence
// tagged ctx.
func FindContextSequence(seq ValueSequence, ctx Context) (ValueSequence, bool) {
	for _, v := range seq {
		if cs, ok := v.(ContextValueSequence); ok && cs.Context == ctx {
			return cs.Values, true
		}
	}
	return nil, false
}

// ApplicationValues returns the application-tagged primitives of seq in order.
func ApplicationValues(seq ValueSequence) []PrimitiveValue {
	var out []PrimitiveValue
	for _, v := range seq {
		if av, ok := v.(ApplicationValue); ok {
			out = append(out, av.Value)
		}
	}
	return out
}

// ContextUnsigned returns the Unsigned tagged ctx
func ContextUnsigned(seq ValueSequence, ctx Context) (uint32, bool) {
	v, ok := FindContextValue(seq, ctx)
	if !ok {
		return 0, false
	}
	u, ok := v.(Unsigned)
	return uint32(u), ok
}

// ContextEnumerated returns the Enumerated tagged ctx
func ContextEnumerated(seq ValueSequence, ctx Context) (uint32, bool) {
	v, ok := FindContextValue(seq, ctx)
	if !ok {
		return 0, false
	}
	e, ok := v.(Enumerated)
	return uint32(e), ok
}

// ContextObjectIdentifier returns the ObjectIdentifier tagged ctx
func ContextObjectIdentifier(seq ValueSequence, ctx Context) (ObjectIdentifier, bool) {
	v, ok := FindContextValue(seq, ctx)
	if !ok {
		return ObjectIdentifier{}, false
	}
	oid, ok := v.(ObjectIdentifier)
	return oid, ok
}

// ContextCharacterString returns the CharacterString tagged ctx
func ContextCharacterString(seq ValueSequence, ctx Context) (string, bool) {
	v, ok := FindContextValue(seq, ctx)
	if !ok {
		return "", false
	}
	s, ok := v.(CharacterString)
	return string(s), ok
}

// hasContext reports whether any entry, primitive or constructed, is tagged ctx.
func hasContext(seq ValueSequence, ctx Context) bool {
	for _, v := range seq {
		switch t := v.(type) {
		case ContextValue:
			if t.Context == ctx {
				return true
			}
		case ContextValueSequence:
			if t.Context == ctx {
				return true
			}
		}
	}
	return false
}
