/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"fmt"
)

// Error represents an error details returned in a response body.
// Details are rendered as additional fields of the error object.
type Error struct {
	Code    string
	Type    string
	Message string
	Details map[string]interface{}
}

// Error types and codes.
// We are using "var" here because some services may want to use different error codes.
var (
	ErrTypeInternal = "INTERNAL_ERROR"
	ErrCodeInternal = "SYS_001"
)

// Error messages.
// We are using "var" here because some services may want to use different error messages.
var (
	ErrMessageInternal = "Internal error."
)

// NewError creates a new Error with specified params.
func NewError(code, errType, message string) *Error {
	return &Error{Code: code, Type: errType, Message: message}
}

// NewInternalError creates a new internal error.
func NewInternalError() *Error {
	return NewError(ErrCodeInternal, ErrTypeInternal, ErrMessageInternal)
}

// AddDetail adds a field to the error object.
func (e *Error) AddDetail(field string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[field] = value
	return e
}

// Error implements error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Type, e.Message)
}

// MarshalJSON renders the error as a flat JSON object.
// Details cannot override code, type and message.
func (e *Error) MarshalJSON() ([]byte, error) {
	obj := make(map[string]interface{}, len(e.Details)+3)
	for k, v := range e.Details {
		obj[k] = v
	}
	obj["code"] = e.Code
	obj["type"] = e.Type
	if e.Message != "" {
		obj["message"] = e.Message
	}
	return json.Marshal(obj)
}
