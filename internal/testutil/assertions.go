package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Envelope is the API response wrapper
type Envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// ReadEnvelope decodes the response body into an Envelope
func ReadEnvelope(t *testing.T, resp *http.Response) Envelope {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	var env Envelope
	require.NoError(t, json.Unmarshal(body, &env), "failed to unmarshal response: %s", string(body))
	return env
}

// DecodeEnvelope verifies a successful envelope and decodes its data into v
func DecodeEnvelope(t *testing.T, resp *http.Response, v any) Envelope {
	t.Helper()

	env := ReadEnvelope(t, resp)
	require.True(t, env.Success, "expected success envelope, got: %s", env.Message)
	require.Equal(t, resp.StatusCode, env.StatusCode)
	if v != nil {
		require.NoError(t, json.Unmarshal(env.Data, v), "failed to decode data: %s", string(env.Data))
	}
	return env
}

// AssertErrorResponse verifies error response with expected status and message
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedMessage string) {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	env := ReadEnvelope(t, resp)
	assert.False(t, env.Success)
	assert.Equal(t, expectedStatus, env.StatusCode)
	assert.Contains(t, env.Message, expectedMessage, "error message mismatch")
}

// FindCookie returns the named cookie set by resp, or nil
func FindCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AssertNoSecrets verifies a serialized user carries no credential fields
func AssertNoSecrets(t *testing.T, raw json.RawMessage) {
	t.Helper()

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"password", "passwordHash", "PasswordHash", "refreshToken", "RefreshToken"} {
		assert.NotContains(t, fields, key)
	}
}
