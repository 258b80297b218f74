/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireErrorInRecorder(t *testing.T) {
	tests := []struct {
		name            string
		respCode        int
		respContentType string
		respBody        string
		wantFailed      bool
	}{
		{
			name:            "ok",
			respCode:        429,
			respContentType: contentTypeAppJSON,
			respBody:        `{"error":{"code":"RL_001","type":"RATE_LIMIT_EXCEEDED","limit":10}}`,
		},
		{
			name:            "wrong status code",
			respCode:        503,
			respContentType: contentTypeAppJSON,
			respBody:        `{"error":{"code":"RL_001","type":"RATE_LIMIT_EXCEEDED"}}`,
			wantFailed:      true,
		},
		{
			name:            "wrong content type",
			respCode:        429,
			respContentType: "text/html",
			respBody:        `{"error":{"code":"RL_001","type":"RATE_LIMIT_EXCEEDED"}}`,
			wantFailed:      true,
		},
		{
			name:            "wrong error code",
			respCode:        429,
			respContentType: contentTypeAppJSON,
			respBody:        `{"error":{"code":"RL_002","type":"RATE_LIMIT_EXCEEDED"}}`,
			wantFailed:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			resp.Header().Set("Content-Type", tt.respContentType)
			resp.WriteHeader(tt.respCode)
			_, err := resp.WriteString(tt.respBody)
			require.NoError(t, err)

			mockT := &MockT{}
			RequireErrorInRecorder(mockT, resp, 429, "RATE_LIMIT_EXCEEDED", "RL_001")
			require.Equal(t, tt.wantFailed, mockT.Failed)
		})
	}
}

func TestRequireJSONInRecorder(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	resp := httptest.NewRecorder()
	resp.Header().Set("Content-Type", contentTypeAppJSON)
	_, err := resp.WriteString(`{"name":"alice"}`)
	require.NoError(t, err)

	mockT := &MockT{}
	RequireJSONInRecorder(mockT, resp, &payload{Name: "alice"}, &payload{})
	require.False(t, mockT.Failed)
}
