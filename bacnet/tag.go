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
	"encoding/binary"
	"fmt"
	"math"
)

// Length/value/type field values with a special meaning
const (
	lvtExtended uint8 = 5
	lvtOpening  uint8 = 6
	lvtClosing  uint8 = 7

	tagNumberExtended uint8 = 0x0F
)

// CharacterSetUTF8 is the only character set produced by this package
const CharacterSetUTF8 uint8 = 0

// Tag is a decoded tag header
type Tag struct {
	Number  uint8
	Class   TagClass
	Opening bool
	Closing bool

	// Length is the content length in octets. For an application Boolean it
	// holds the value itself and no content follows.
	Length uint32

	// HeaderLen is the number of octets the tag header occupies
	HeaderLen int
}

// IsApplicationBoolean reports whether the tag carries its value in the LVT field
func (t Tag) IsApplicationBoolean() bool {
	return t.Class == TagClassApplication && ApplicationTag(t.Number) == TagBoolean
}

// AppendTag appends a tag header for a primitive of the given content length
func AppendTag(buf []byte, number uint8, class TagClass, length uint32) []byte {
	lvt := lvtExtended
	if length < uint32(lvtExtended) {
		lvt = uint8(length)
	}
	buf = appendTagOctet(buf, number, class, lvt)

	if lvt == lvtExtended {
		switch {
		case length < 254:
			buf = append(buf, byte(length))
		case length <= math.MaxUint16:
			buf = append(buf, 254)
			buf = binary.BigEndian.AppendUint16(buf, uint16(length))
		default:
			buf = append(buf, 255)
			buf = binary.BigEndian.AppendUint32(buf, length)
		}
	}
	return buf
}

// AppendOpeningTag appends the opening tag of a constructed context value
func AppendOpeningTag(buf []byte, number uint8) []byte {
	return appendTagOctet(buf, number, TagClassContext, lvtOpening)
}

// AppendClosingTag appends the closing tag of a constructed context value
func AppendClosingTag(buf []byte, number uint8) []byte {
	return appendTagOctet(buf, number, TagClassContext, lvtClosing)
}

func appendTagOctet(buf []byte, number uint8, class TagClass, lvt uint8) []byte {
	if number >= tagNumberExtended {
		return append(buf, tagNumberExtended<<4|uint8(class)<<3|lvt, number)
	}
	return append(buf, number<<4|uint8(class)<<3|lvt)
}

// DecodeTag decodes the tag header at the start of data
func DecodeTag(data []byte) (Tag, error) {
	if len(data) < 1 {
		return Tag{}, fmt.Errorf("%w: empty tag", ErrInvalidTag)
	}

	t := Tag{
		Number:    data[0] >> 4,
		Class:     TagClass((data[0] >> 3) & 0x01),
		HeaderLen: 1,
	}
	lvt := data[0] & 0x07

	if t.Number == tagNumberExtended {
		if len(data) < 2 {
			return Tag{}, fmt.Errorf("%w: truncated extended tag number", ErrInvalidTag)
		}
		t.Number = data[1]
		t.HeaderLen = 2
	}

	switch {
	case lvt == lvtOpening || lvt == lvtClosing:
		if t.Class != TagClassContext {
			return Tag{}, fmt.Errorf("%w: application tag %d with length code %d", ErrInvalidTag, t.Number, lvt)
		}
		t.Opening = lvt == lvtOpening
		t.Closing = lvt == lvtClosing
		return t, nil

	case lvt == lvtExtended && !t.IsApplicationBoolean():
		rest := data[t.HeaderLen:]
		if len(rest) < 1 {
			return Tag{}, fmt.Errorf("%w: truncated extended length", ErrInvalidTag)
		}
		switch rest[0] {
		case 254:
			if len(rest) < 3 {
				return Tag{}, fmt.Errorf("%w: truncated extended length", ErrInvalidTag)
			}
			t.Length = uint32(binary.BigEndian.Uint16(rest[1:]))
			t.HeaderLen += 3
		case 255:
			if len(rest) < 5 {
				return Tag{}, fmt.Errorf("%w: truncated extended length", ErrInvalidTag)
			}
			t.Length = binary.BigEndian.Uint32(rest[1:])
			t.HeaderLen += 5
		default:
			t.Length = uint32(rest[0])
			t.HeaderLen++
		}
		return t, nil

	default:
		t.Length = uint32(lvt)
		return t, nil
	}
}

// AppendPrimitive appends v with an application tag
func AppendPrimitive(buf []byte, v PrimitiveValue) []byte {
	if b, ok := v.(Boolean); ok {
		var lvt uint32
		if b {
			lvt = 1
		}
		return AppendTag(buf, uint8(TagBoolean), TagClassApplication, lvt)
	}
	content := EncodePrimitiveContent(v)
	buf = AppendTag(buf, uint8(v.Tag()), TagClassApplication, uint32(len(content)))
	return append(buf, content...)
}

// AppendContextPrimitive appends v with a context tag
func AppendContextPrimitive(buf []byte, ctx Context, v PrimitiveValue) []byte {
	content := EncodePrimitiveContent(v)
	buf = AppendTag(buf, uint8(ctx), TagClassContext, uint32(len(content)))
	return append(buf, content...)
}

// EncodePrimitiveContent returns the content octets of v, without a tag. A
// Boolean encodes as one octet, which is the context-tagged form.
func EncodePrimitiveContent(v PrimitiveValue) []byte {
	switch t := v.(type) {
	case Null:
		return nil
	case Boolean:
		if t {
			return []byte{1}
		}
		return []byte{0}
	case Unsigned:
		return EncodeUnsigned(uint32(t))
	case Signed:
		return EncodeSigned(int32(t))
	case Real:
		return EncodeReal(float32(t))
	case Double:
		return EncodeDouble(float64(t))
	case CharacterString:
		return EncodeCharacterString(string(t))
	case Enumerated:
		return EncodeUnsigned(uint32(t))
	case ObjectIdentifier:
		return EncodeObjectIdentifier(t)
	case OctetString:
		return append([]byte(nil), t...)
	case BitString:
		return EncodeBitString(t)
	case Date:
		return []byte{t.Year, t.Month, t.Day, t.Weekday}
	case Time:
		return []byte{t.Hour, t.Minute, t.Second, t.Hundredths}
	default:
		panic(fmt.Sprintf("bacnet: unsupported primitive %T", v))
	}
}

// DecodePrimitiveContent decodes content octets as the given application type
func DecodePrimitiveContent(tag ApplicationTag, content []byte) (PrimitiveValue, error) {
	switch tag {
	case TagNull:
		if len(content) != 0 {
			return nil, fmt.Errorf("%w: null with %d content octets", ErrInvalidTag, len(content))
		}
		return Null{}, nil
	case TagBoolean:
		if len(content) != 1 {
			return nil, fmt.Errorf("%w: boolean with %d content octets", ErrInvalidTag, len(content))
		}
		return Boolean(content[0] != 0), nil
	case TagUnsignedInt:
		v, err := DecodeUnsigned(content)
		return Unsigned(v), err
	case TagSignedInt:
		v, err := DecodeSigned(content)
		return Signed(v), err
	case TagReal:
		v, err := DecodeReal(content)
		return Real(v), err
	case TagDouble:
		v, err := DecodeDouble(content)
		return Double(v), err
	case TagCharacterString:
		v, err := DecodeCharacterString(content)
		return CharacterString(v), err
	case TagEnumerated:
		v, err := DecodeUnsigned(content)
		return Enumerated(v), err
	case TagObjectID:
		v, err := DecodeObjectIdentifierContent(content)
		return v, err
	case TagOctetString:
		return OctetString(append([]byte{}, content...)), nil
	case TagBitString:
		v, err := DecodeBitString(content)
		return v, err
	case TagDate:
		if len(content) != 4 {
			return nil, fmt.Errorf("%w: date with %d content octets", ErrInvalidTag, len(content))
		}
		return Date{Year: content[0], Month: content[1], Day: content[2], Weekday: content[3]}, nil
	case TagTime:
		if len(content) != 4 {
			return nil, fmt.Errorf("%w: time with %d content octets", ErrInvalidTag, len(content))
		}
		return Time{Hour: content[0], Minute: content[1], Second: content[2], Hundredths: content[3]}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported application tag %s", ErrInvalidTag, tag)
	}
}

// EncodeUnsigned encodes an unsigned integer in the fewest octets
func EncodeUnsigned(value uint32) []byte {
	switch {
	case value < 0x100:
		return []byte{byte(value)}
	case value < 0x10000:
		return []byte{byte(value >> 8), byte(value)}
	case value < 0x1000000:
		return []byte{byte(value >> 16), byte(value >> 8), byte(value)}
	default:
		return binary.BigEndian.AppendUint32(nil, value)
	}
}

// EncodeSigned encodes a signed integer in the fewest two's complement octets
func EncodeSigned(value int32) []byte {
	switch {
	case value >= -128 && value < 128:
		return []byte{byte(value)}
	case value >= -32768 && value < 32768:
		return []byte{byte(value >> 8), byte(value)}
	case value >= -8388608 && value < 8388608:
		return []byte{byte(value >> 16), byte(value >> 8), byte(value)}
	default:
		return binary.BigEndian.AppendUint32(nil, uint32(value))
	}
}

// EncodeReal encodes an IEEE-754 single
func EncodeReal(value float32) []byte {
	return binary.BigEndian.AppendUint32(nil, math.Float32bits(value))
}

// EncodeDouble encodes an IEEE-754 double
func EncodeDouble(value float64) []byte {
	return binary.BigEndian.AppendUint64(nil, math.Float64bits(value))
}

// EncodeCharacterString encodes a UTF-8 character string
func EncodeCharacterString(s string) []byte {
	buf := make([]byte, 0, len(s)+1)
	buf = append(buf, CharacterSetUTF8)
	return append(buf, s...)
}

// EncodeObjectIdentifier encodes an object identifier
func EncodeObjectIdentifier(oid ObjectIdentifier) []byte {
	return binary.BigEndian.AppendUint32(nil, oid.Encode())
}

// EncodeBitString encodes bits behind an octet counting the unused trailing bits
func EncodeBitString(bits BitString) []byte {
	buf := make([]byte, 1+(len(bits)+7)/8)
	buf[0] = byte((8 - len(bits)%8) % 8)
	for i, bit := range bits {
		if bit {
			buf[1+i/8] |= 0x80 >> (i % 8)
		}
	}
	return buf
}

// DecodeUnsigned decodes a 1 to 4 octet unsigned integer
func DecodeUnsigned(data []byte) (uint32, error) {
	if len(data) < 1 || len(data) > 4 {
		return 0, fmt.Errorf("%w: unsigned with %d content octets", ErrInvalidTag, len(data))
	}
	var v uint32
	for _, b := range data {
		v = v<<8 | uint32(b)
	}
	return v, nil
}

// DecodeSigned decodes a 1 to 4 octet two's complement integer
func DecodeSigned(data []byte) (int32, error) {
	switch len(data) {
	case 1:
		return int32(int8(data[0])), nil
	case 2:
		return int32(int16(binary.BigEndian.Uint16(data))), nil
	case 3:
		v := uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
		if data[0]&0x80 != 0 {
			v |= 0xFF000000
		}
		return int32(v), nil
	case 4:
		return int32(binary.BigEndian.Uint32(data)), nil
	default:
		return 0, fmt.Errorf("%w: signed with %d content octets", ErrInvalidTag, len(data))
	}
}

// DecodeReal decodes an IEEE-754 single
func DecodeReal(data []byte) (float32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("%w: real with %d content octets", ErrInvalidTag, len(data))
	}
	return math.Float32frombits(binary.BigEndian.Uint32(data)), nil
}

// DecodeDouble decodes an IEEE-754 double
func DecodeDouble(data []byte) (float64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: double with %d content octets", ErrInvalidTag, len(data))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
}

// DecodeCharacterString decodes a character string. Only UTF-8 is accepted.
func DecodeCharacterString(data []byte) (string, error) {
	if len(data) < 1 {
		return "", fmt.Errorf("%w: character string without character set", ErrInvalidTag)
	}
	if data[0] != CharacterSetUTF8 {
		return "", fmt.Errorf("%w: unsupported character set %d", ErrInvalidTag, data[0])
	}
	return string(data[1:]), nil
}

// DecodeBitString decodes a bit string
func DecodeBitString(data []byte) (BitString, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: bit string without unused bit count", ErrInvalidTag)
	}
	unused := int(data[0])
	if unused > 7 || (len(data) == 1 && unused != 0) {
		return nil, fmt.Errorf("%w: bit string with %d unused bits", ErrInvalidTag, unused)
	}
	bits := make(BitString, (len(data)-1)*8-unused)
	for i := range bits {
		bits[i] = data[1+i/8]&(0x80>>(i%8)) != 0
	}
	return bits, nil
}

// DecodeObjectIdentifierContent decodes a 4 octet object identifier
func DecodeObjectIdentifierContent(data []byte) (ObjectIdentifier, error) {
	if len(data) != 4 {
		return ObjectIdentifier{}, fmt.Errorf("%w: object identifier with %d content octets", ErrInvalidTag, len(data))
	}
	return DecodeObjectIdentifier(binary.BigEndian.Uint32(data)), nil
}
