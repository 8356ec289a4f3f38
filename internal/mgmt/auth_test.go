package mgmt

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "jwt-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func authed(t *testing.T, method, path, token string) *http.Request {
	t.Helper()
	req, _ := http.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuth_NoAuth_Mode(t *testing.T) {
	app, _ := testApp(t, "none", "")

	resp, err := app.Test(authed(t, "GET", "/api/v1/stats", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_APIKey_Valid(t *testing.T) {
	app, _ := testApp(t, "api-key", "test-secret-key")

	resp, err := app.Test(authed(t, "GET", "/api/v1/stats", "test-secret-key"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_APIKey_Missing(t *testing.T) {
	app, _ := testApp(t, "api-key", "test-secret-key")

	resp, err := app.Test(authed(t, "GET", "/api/v1/stats", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "missing_auth", problem.Type)
}

func TestAuth_APIKey_Invalid(t *testing.T) {
	app, _ := testApp(t, "api-key", "test-secret-key")

	resp, err := app.Test(authed(t, "GET", "/api/v1/stats", "wrong-key"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "invalid_api_key", problem.Type)
}

func TestAuth_InvalidScheme(t *testing.T) {
	app, _ := testApp(t, "api-key", "test-secret-key")

	req, _ := http.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var problem ProblemDetail
	decode(t, resp, &problem)
	assert.Equal(t, "invalid_auth_scheme", problem.Type)
}

func TestAuth_RoleKeys(t *testing.T) {
	d := newTestDeps()
	app := testServer(t, AuthConfig{
		Mode:   "api-key",
		APIKey: "admin-key",
		Roles:  map[string]Role{"viewer-key": RoleReadOnly},
	}, d)

	resp, err := app.Test(authed(t, "GET", "/api/v1/stats", "viewer-key"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(authed(t, "DELETE", "/api/v1/sessions/U1", "viewer-key"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, d.admin.actors)

	resp, err = app.Test(authed(t, "DELETE", "/api/v1/sessions/U1", "admin-key"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"mgmt:api-key"}, d.admin.actors)
}

func TestAuth_JWT(t *testing.T) {
	d := newTestDeps()
	app := testServer(t, AuthConfig{Mode: "jwt", JWTSecret: testJWTSecret}, d)
	exp := time.Now().Add(time.Hour).Unix()

	operator := signToken(t, testJWTSecret, jwt.MapClaims{"sub": "ops@example.com", "role": "operator", "exp": exp})
	resp, err := app.Test(authed(t, "DELETE", "/api/v1/sessions/U1", operator), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"mgmt:ops@example.com"}, d.admin.actors)

	// Operators cannot read the audit trail.
	resp, err = app.Test(authed(t, "GET", "/api/v1/audit", operator), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Unknown roles fall back to read-only.
	viewer := signToken(t, testJWTSecret, jwt.MapClaims{"sub": "bob", "role": "superuser", "exp": exp})
	resp, err = app.Test(authed(t, "GET", "/api/v1/stats", viewer), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, err = app.Test(authed(t, "POST", "/api/v1/sweep", viewer), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAuth_JWT_Rejected(t *testing.T) {
	app := testServer(t, AuthConfig{Mode: "jwt", JWTSecret: testJWTSecret}, newTestDeps())
	exp := time.Now().Add(time.Hour).Unix()

	tests := map[string]string{
		"wrong secret": signToken(t, "other-secret", jwt.MapClaims{"sub": "a", "exp": exp}),
		"expired":      signToken(t, testJWTSecret, jwt.MapClaims{"sub": "a", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no subject":   signToken(t, testJWTSecret, jwt.MapClaims{"role": "admin", "exp": exp}),
		"garbage":      "not.a.token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			resp, err := app.Test(authed(t, "GET", "/api/v1/stats", tok), -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			var problem ProblemDetail
			decode(t, resp, &problem)
			assert.Equal(t, "invalid_token", problem.Type)
		})
	}
}

func TestAuth_ProbesSkipAuth(t *testing.T) {
	app, _ := testApp(t, "jwt", "")

	resp, err := app.Test(authed(t, "GET", "/healthz", ""), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
