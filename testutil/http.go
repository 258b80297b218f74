/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type errorRespData struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

type wrappedErrorRespData struct {
	Error errorRespData `json:"error"`
}

// RequireErrorInRecorder asserts that passing httptest.ResponseRecorder contains the error ({"error": {"type": ..., "code": ...}})
// with the given HTTP status code.
func RequireErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrType, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantErrType, wantErrCode)
}

// RequireErrorInResponse asserts that passing http.Response contains the error with the given HTTP status code.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrType, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantErrType, wantErrCode)
}

func requireErrorInResponse(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, wantErrType, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var errResp wrappedErrorRespData
	require.NoError(t, json.NewDecoder(body).Decode(&errResp))
	require.Equal(t, wantErrType, errResp.Error.Type)
	require.Equal(t, wantErrCode, errResp.Error.Code)
}

// RequireJSONInRecorder asserts that passing httptest.ResponseRecorder contains the data in json format.
func RequireJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireJSONInResponse(t, resp.Header(), resp.Body, want, dest)
}

// RequireJSONInResponse asserts that passing http.Response contains the data in json format.
func RequireJSONInResponse(t require.TestingT, resp *http.Response, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireJSONInResponse(t, resp.Header, resp.Body, want, dest)
}

func requireJSONInResponse(t require.TestingT, header http.Header, body io.Reader, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	bodyBytes, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(bodyBytes, dest))
	require.Equal(t, want, dest)
}

// RequireStringJSONInRecorder asserts that passing httptest.ResponseRecorder contains the json string.
func RequireStringJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, resp.Header().Get("Content-Type"))
	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, want, string(bodyBytes))
}
