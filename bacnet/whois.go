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

// WhoIs asks devices whose instance number lies within the limits to announce
// themselves with I-Am.
type WhoIs struct {
	DeviceInstanceLow  uint32
	DeviceInstanceHigh uint32
}

var whoIsSchema = &Schema{
	Primitives: map[Context]ApplicationTag{
		0: TagUnsignedInt,
		1: TagUnsignedInt,
	},
}

func init() {
	RegisterUnconfirmedService(ServiceWhoIs, func() ServiceMessage { return new(WhoIs) })
}

func (m WhoIs) Marshall() ValueSequence {
	return ValueSequence{
		ContextValue{Context: 0, Value: Unsigned(m.DeviceInstanceLow)},
		ContextValue{Context: 1, Value: Unsigned(m.DeviceInstanceHigh)},
	}
}

func (m *WhoIs) Unmarshall(seq ValueSequence) error {
	low, ok := ContextUnsigned(seq, 0)
	if !ok {
		return requiredValue("who-is", 0)
	}
	high, ok := ContextUnsigned(seq, 1)
	if !ok {
		return requiredValue("who-is", 1)
	}
	*m = WhoIs{DeviceInstanceLow: low, DeviceInstanceHigh: high}
	return nil
}

func (WhoIs) Schema() *Schema { return whoIsSchema }

// WhoIsAll returns the range addressed by a Who-Is sent without limits. Such a
// request carries no service data and does not unmarshall as a WhoIs.
func WhoIsAll() WhoIs {
	return WhoIs{DeviceInstanceLow: 0, DeviceInstanceHigh: MaxInstance}
}

// Matches reports whether a device instance falls within the limits
func (m WhoIs) Matches(instance uint32) bool {
	return instance >= m.DeviceInstanceLow && instance <= m.DeviceInstanceHigh
}
