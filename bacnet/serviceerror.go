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

// ServiceError is the body of an Error PDU: an application-tagged error class
// followed by an error code.
type ServiceError struct {
	Class ErrorClass
	Code  ErrorCode
}

func (m ServiceError) Marshall() ValueSequence {
	return ValueSequence{
		ApplicationValue{Value: Enumerated(m.Class)},
		ApplicationValue{Value: Enumerated(m.Code)},
	}
}

func (m *ServiceError) Unmarshall(seq ValueSequence) error {
	values := ApplicationValues(seq)
	if len(values) < 1 {
		return requiredValue("error", 0)
	}
	class, ok := values[0].(Enumerated)
	if !ok || class > 0xFF {
		return requiredValue("error", 0)
	}
	if len(values) < 2 {
		return requiredValue("error", 1)
	}
	code, ok := values[1].(Enumerated)
	if !ok || code > 0xFF {
		return requiredValue("error", 1)
	}
	*m = ServiceError{Class: ErrorClass(class), Code: ErrorCode(code)}
	return nil
}

// Err returns the error as a *BACnetError
func (m ServiceError) Err() *BACnetError {
	return NewBACnetError(m.Class, m.Code)
}
