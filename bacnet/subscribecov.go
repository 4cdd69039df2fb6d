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

// SubscribeCOV asks a device to report changes of value of one object. A
// request carrying neither IssueConfirmed nor a lifetime cancels the
// subscription, which Cancel reflects. A nil Lifetime asks for an indefinite
// subscription.
type SubscribeCOV struct {
	SubscriberProcessID uint32
	Object              ObjectIdentifier
	Cancel              bool
	IssueConfirmed      bool
	Lifetime            *uint32
}

var subscribeCOVSchema = &Schema{
	Primitives: map[Context]ApplicationTag{
		0: TagUnsignedInt,
		1: TagObjectID,
		2: TagBoolean,
		3: TagUnsignedInt,
	},
}

func init() {
	RegisterConfirmedService(ServiceSubscribeCOV, func() ServiceMessage { return new(SubscribeCOV) })
}

func (m SubscribeCOV) Marshall() ValueSequence {
	seq := ValueSequence{
		ContextValue{Context: 0, Value: Unsigned(m.SubscriberProcessID)},
		ContextValue{Context: 1, Value: m.Object},
	}
	if m.Cancel {
		return seq
	}
	seq = append(seq, ContextValue{Context: 2, Value: Boolean(m.IssueConfirmed)})
	if m.Lifetime != nil {
		seq = append(seq, ContextValue{Context: 3, Value: Unsigned(*m.Lifetime)})
	}
	return seq
}

func (m *SubscribeCOV) Unmarshall(seq ValueSequence) error {
	const service = "subscribe-cov"

	var out SubscribeCOV
	pid, ok := ContextUnsigned(seq, 0)
	if !ok {
		return requiredValue(service, 0)
	}
	out.SubscriberProcessID = pid
	if out.Object, ok = ContextObjectIdentifier(seq, 1); !ok {
		return requiredValue(service, 1)
	}

	if !hasContext(seq, 2) && !hasContext(seq, 3) {
		out.Cancel = true
		*m = out
		return nil
	}

	v, _ := FindContextValue(seq, 2)
	confirmed, ok := v.(Boolean)
	if !ok {
		return requiredValue(service, 2)
	}
	out.IssueConfirmed = bool(confirmed)
	if hasContext(seq, 3) {
		lifetime, ok := ContextUnsigned(seq, 3)
		if !ok {
			return requiredValue(service, 3)
		}
		out.Lifetime = &lifetime
	}

	*m = out
	return nil
}

func (SubscribeCOV) Schema() *Schema { return subscribeCOVSchema }
