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

// IAm announces a device. Its parameters are application tagged, in order.
type IAm struct {
	Device        ObjectIdentifier
	MaxAPDULength uint32
	Segmentation  Segmentation
	VendorID      uint16
}

func init() {
	RegisterUnconfirmedService(ServiceIAm, func() ServiceMessage { return new(IAm) })
}

func (m IAm) Marshall() ValueSequence {
	return ValueSequence{
		ApplicationValue{Value: m.Device},
		ApplicationValue{Value: Unsigned(m.MaxAPDULength)},
		ApplicationValue{Value: Enumerated(m.Segmentation)},
		ApplicationValue{Value: Unsigned(m.VendorID)},
	}
}

func (m *IAm) Unmarshall(seq ValueSequence) error {
	values := ApplicationValues(seq)
	at := func(i int) PrimitiveValue {
		if i < len(values) {
			return values[i]
		}
		return nil
	}

	device, ok := at(0).(ObjectIdentifier)
	if !ok {
		return requiredValue("i-am", 0)
	}
	maxAPDU, ok := at(1).(Unsigned)
	if !ok {
		return requiredValue("i-am", 1)
	}
	seg, ok := at(2).(Enumerated)
	if !ok || seg > 0xFF {
		return requiredValue("i-am", 2)
	}
	vendor, ok := at(3).(Unsigned)
	if !ok || vendor > 0xFFFF {
		return requiredValue("i-am", 3)
	}

	*m = IAm{
		Device:        device,
		MaxAPDULength: uint32(maxAPDU),
		Segmentation:  Segmentation(seg),
		VendorID:      uint16(vendor),
	}
	return nil
}
