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
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrInvalidAPDU              = errors.New("bacnet: invalid APDU")
	ErrInvalidNPDU              = errors.New("bacnet: invalid NPDU")
	ErrInvalidBVLC              = errors.New("bacnet: invalid BVLC header")
	ErrInvalidTag               = errors.New("bacnet: invalid tag")
	ErrNestingTooDeep           = errors.New("bacnet: value nesting too deep")
	ErrRequiredValueNotProvided = errors.New("bacnet: required value not provided")
	ErrUnknownService           = errors.New("bacnet: unknown service")
	ErrFrameTooLarge            = errors.New("bacnet: frame too large")
)

// Detailed decode failures. Each one matches its layer sentinel with errors.Is.
var (
	ErrUnknownPDUType   = fmt.Errorf("%w: unknown PDU type", ErrInvalidAPDU)
	ErrTruncatedFrame   = fmt.Errorf("%w: truncated frame", ErrInvalidBVLC)
	ErrProtocolMismatch = fmt.Errorf("%w: protocol identifier mismatch", ErrInvalidBVLC)
	ErrLengthMismatch   = fmt.Errorf("%w: length mismatch", ErrInvalidBVLC)
	ErrUnknownFunction  = fmt.Errorf("%w: unknown function", ErrInvalidBVLC)
)

// RequiredValueError reports a mandatory context value that is missing from a
// value sequence or holds the wrong primitive type. For services built from
// application-tagged parameters, Context is the parameter position.
type RequiredValueError struct {
	Service string
	Context Context
}

func (e *RequiredValueError) Error() string {
	return fmt.Sprintf("%s: %s context %d", ErrRequiredValueNotProvided, e.Service, e.Context)
}

func (e *RequiredValueError) Unwrap() error {
	return ErrRequiredValueNotProvided
}

func requiredValue(service string, ctx Context) error {
	return &RequiredValueError{Service: service, Context: ctx}
}

// ErrorClass represents BACnet error classes
type ErrorClass uint8

const (
	ErrorClassDevice        ErrorClass = 0
	ErrorClassObject        ErrorClass = 1
	ErrorClassProperty      ErrorClass = 2
	ErrorClassResources     ErrorClass = 3
	ErrorClassSecurity      ErrorClass = 4
	ErrorClassServices      ErrorClass = 5
	ErrorClassVT            ErrorClass = 6
	ErrorClassCommunication ErrorClass = 7
)

func (e ErrorClass) String() string {
	names := map[ErrorClass]string{
		ErrorClassDevice:        "device",
		ErrorClassObject:        "object",
		ErrorClassProperty:      "property",
		ErrorClassResources:     "resources",
		ErrorClassSecurity:      "security",
		ErrorClassServices:      "services",
		ErrorClassVT:            "vt",
		ErrorClassCommunication: "communication",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("error-class(%d)", uint8(e))
}

// ErrorCode represents BACnet error codes
type ErrorCode uint8

const (
	ErrorCodeOther                   ErrorCode = 0
	ErrorCodeConfigurationInProgress ErrorCode = 2
	ErrorCodeDeviceBusy              ErrorCode = 3
	ErrorCodeInvalidDataType         ErrorCode = 9
	ErrorCodeMissingRequiredParam    ErrorCode = 16
	ErrorCodeReadAccessDenied        ErrorCode = 27
	ErrorCodeServiceRequestDenied    ErrorCode = 29
	ErrorCodeUnknownObject           ErrorCode = 31
	ErrorCodeUnknownProperty         ErrorCode = 32
	ErrorCodeValueOutOfRange         ErrorCode = 37
	ErrorCodeWriteAccessDenied       ErrorCode = 40
	ErrorCodeInvalidArrayIndex       ErrorCode = 42
	ErrorCodeUnknownDevice           ErrorCode = 70
)

func (e ErrorCode) String() string {
	names := map[ErrorCode]string{
		ErrorCodeOther:                   "other",
		ErrorCodeConfigurationInProgress: "configuration-in-progress",
		ErrorCodeDeviceBusy:              "device-busy",
		ErrorCodeInvalidDataType:         "invalid-data-type",
		ErrorCodeMissingRequiredParam:    "missing-required-parameter",
		ErrorCodeReadAccessDenied:        "read-access-denied",
		ErrorCodeServiceRequestDenied:    "service-request-denied",
		ErrorCodeUnknownObject:           "unknown-object",
		ErrorCodeUnknownProperty:         "unknown-property",
		ErrorCodeValueOutOfRange:         "value-out-of-range",
		ErrorCodeWriteAccessDenied:       "write-access-denied",
		ErrorCodeInvalidArrayIndex:       "invalid-array-index",
		ErrorCodeUnknownDevice:           "unknown-device",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("error-code(%d)", uint8(e))
}

// BACnetError represents a BACnet protocol error returned by a peer
type BACnetError struct {
	Class ErrorClass
	Code  ErrorCode
}

func (e *BACnetError) Error() string {
	return fmt.Sprintf("bacnet error: class=%s, code=%s", e.Class, e.Code)
}

func (e *BACnetError) Is(target error) bool {
	t, ok := target.(*BACnetError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewBACnetError creates a new BACnet error
func NewBACnetError(class ErrorClass, code ErrorCode) *BACnetError {
	return &BACnetError{
		Class: class,
		Code:  code,
	}
}

// RejectReason represents BACnet reject reasons
type RejectReason uint8

const (
	RejectReasonOther                    RejectReason = 0
	RejectReasonBufferOverflow           RejectReason = 1
	RejectReasonInconsistentParameters   RejectReason = 2
	RejectReasonInvalidParameterDataType RejectReason = 3
	RejectReasonInvalidTag               RejectReason = 4
	RejectReasonMissingRequiredParameter RejectReason = 5
	RejectReasonParameterOutOfRange      RejectReason = 6
	RejectReasonTooManyArguments         RejectReason = 7
	RejectReasonUndefinedEnumeration     RejectReason = 8
	RejectReasonUnrecognizedService      RejectReason = 9
)

func (r RejectReason) String() string {
	names := map[RejectReason]string{
		RejectReasonOther:                    "other",
		RejectReasonBufferOverflow:           "buffer-overflow",
		RejectReasonInconsistentParameters:   "inconsistent-parameters",
		RejectReasonInvalidParameterDataType: "invalid-parameter-data-type",
		RejectReasonInvalidTag:               "invalid-tag",
		RejectReasonMissingRequiredParameter: "missing-required-parameter",
		RejectReasonParameterOutOfRange:      "parameter-out-of-range",
		RejectReasonTooManyArguments:         "too-many-arguments",
		RejectReasonUndefinedEnumeration:     "undefined-enumeration",
		RejectReasonUnrecognizedService:      "unrecognized-service",
	}
	if name, ok := names[r]; ok {
		return name
	}
	return fmt.Sprintf("reject-reason(%d)", uint8(r))
}

// RejectError represents a BACnet reject response
type RejectError struct {
	InvokeID uint8
	Reason   RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("bacnet reject: invoke-id=%d, reason=%s", e.InvokeID, e.Reason)
}

// AbortReason represents BACnet abort reasons
type AbortReason uint8

const (
	AbortReasonOther                         AbortReason = 0
	AbortReasonBufferOverflow                AbortReason = 1
	AbortReasonInvalidApduInThisState        AbortReason = 2
	AbortReasonPreemptedByHigherPriorityTask AbortReason = 3
	AbortReasonSegmentationNotSupported      AbortReason = 4
	AbortReasonSecurityError                 AbortReason = 5
	AbortReasonInsufficientSecurity          AbortReason = 6
	AbortReasonWindowSizeOutOfRange          AbortReason = 7
	AbortReasonApplicationExceededReplyTime  AbortReason = 8
	AbortReasonOutOfResources                AbortReason = 9
	AbortReasonTsmTimeout                    AbortReason = 10
	AbortReasonApduTooLong                   AbortReason = 11
)

func (a AbortReason) String() string {
	names := map[AbortReason]string{
		AbortReasonOther:                         "other",
		AbortReasonBufferOverflow:                "buffer-overflow",
		AbortReasonInvalidApduInThisState:        "invalid-apdu-in-this-state",
		AbortReasonPreemptedByHigherPriorityTask: "preempted-by-higher-priority-task",
		AbortReasonSegmentationNotSupported:      "segmentation-not-supported",
		AbortReasonSecurityError:                 "security-error",
		AbortReasonInsufficientSecurity:          "insufficient-security",
		AbortReasonWindowSizeOutOfRange:          "window-size-out-of-range",
		AbortReasonApplicationExceededReplyTime:  "application-exceeded-reply-time",
		AbortReasonOutOfResources:                "out-of-resources",
		AbortReasonTsmTimeout:                    "tsm-timeout",
		AbortReasonApduTooLong:                   "apdu-too-long",
	}
	if name, ok := names[a]; ok {
		return name
	}
	return fmt.Sprintf("abort-reason(%d)", uint8(a))
}

// AbortError represents a BACnet abort response
type AbortError struct {
	InvokeID uint8
	Server   bool
	Reason   AbortReason
}

func (e *AbortError) Error() string {
	origin := "client"
	if e.Server {
		origin = "server"
	}
	return fmt.Sprintf("bacnet abort: invoke-id=%d, origin=%s, reason=%s", e.InvokeID, origin, e.Reason)
}

// IsRequiredValueNotProvided reports whether err came from a service unmarshall
// that found a mandatory value missing or mistyped
func IsRequiredValueNotProvided(err error) bool {
	return errors.Is(err, ErrRequiredValueNotProvided)
}

// IsMalformed reports whether err is a decode failure at any layer
func IsMalformed(err error) bool {
	return errors.Is(err, ErrInvalidBVLC) ||
		errors.Is(err, ErrInvalidNPDU) ||
		errors.Is(err, ErrInvalidAPDU) ||
		errors.Is(err, ErrInvalidTag) ||
		errors.Is(err, ErrNestingTooDeep)
}
