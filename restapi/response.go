/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package restapi contains helpers for writing JSON responses and errors in a uniform way.
package restapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/acronis/go-resourcekit/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// Does JSON marshaling with disabled HTML escaping
func jsonMarshal(v interface{}) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	err := encoder.Encode(v)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes()[:buffer.Len()-1], nil
}

// RespondJSON sends response with 200 HTTP status code, does JSON marshaling of data and writes result in response's body.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON sends a response with the passed status code and sets the "Content-Type"
// to "application/json" if it's not already set. It performs JSON marshaling of the data and
// writes the result to the response's body.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}

	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}

	respJSON, err := jsonMarshal(respData)
	if err != nil {
		if logger != nil {
			logger.Error("error while marshaling json for response body", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(statusCode)
	if _, err = rw.Write(respJSON); err != nil {
		if logger != nil {
			logger.Error("error while writing response body", log.Error(err))
		}
	}
}

// ErrorResponseData is used for answer on requests with error.
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

// RespondError sets HTTP status code in response and writes error ({"error": {...}}) in body in JSON format.
// Also, it logs info (code and message) about error: client errors are logged at the warning level, server errors at the error level.
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	if logger != nil {
		fields := []log.Field{log.String("error_code", err.Code), log.String("error_type", err.Type),
			log.String("error_message", err.Message), log.Int("status", httpStatusCode)}
		if httpStatusCode >= http.StatusInternalServerError {
			logger.Error("error in response", fields...)
		} else {
			logger.Warn("error in response", fields...)
		}
	}
	RespondCodeAndJSON(rw, httpStatusCode, ErrorResponseData{err}, logger)
}

// RespondInternalError sends response with 500 HTTP status code and internal error in body in JSON format.
func RespondInternalError(rw http.ResponseWriter, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(), logger)
}
