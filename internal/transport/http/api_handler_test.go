package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"emsi-preparator/internal/app"
	"emsi-preparator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, shell *testShell, method, path, session string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, shell.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func login(t *testing.T, shell *testShell) string {
	t.Helper()
	resp := doJSON(t, shell, http.MethodPost, "/api/login", "", map[string]string{"email": "sara@emsi.ma", "password": "secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.SessionID)
	assert.Equal(t, domain.ID("7"), out.User.ID)
	return out.SessionID
}

func TestLoginStoresIdentityForSession(t *testing.T) {
	shell := newTestShell(t)
	session := login(t, shell)

	resp := doJSON(t, shell, http.MethodGet, "/api/me", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var user domain.UserIdentity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.Equal(t, "Sara B", user.FullName)

	resp = doJSON(t, shell, http.MethodPost, "/api/logout", session, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, shell, http.MethodGet, "/api/me", session, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginIssuesFreshSessionID(t *testing.T) {
	shell := newTestShell(t)
	planted := "planted-session"
	require.NoError(t, shell.identities.Save(context.Background(), planted, domain.UserIdentity{ID: "9"}))

	resp := doJSON(t, shell, http.MethodPost, "/api/login", planted, map[string]string{"email": "sara@emsi.ma", "password": "secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEqual(t, planted, out.SessionID)

	resp = doJSON(t, shell, http.MethodGet, "/api/me", planted, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = doJSON(t, shell, http.MethodGet, "/api/me", out.SessionID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginFailures(t *testing.T) {
	shell := newTestShell(t)

	resp := doJSON(t, shell, http.MethodPost, "/api/login", "", map[string]string{"email": "sara@emsi.ma", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var msg messageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, "Invalid email or password", msg.Message)

	resp = doJSON(t, shell, http.MethodPost, "/api/login", "", map[string]string{"email": "not-an-email", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterConflict(t *testing.T) {
	shell := newTestShell(t)

	resp := doJSON(t, shell, http.MethodPost, "/api/register", "", map[string]string{
		"fullName": "Taken", "email": "taken@emsi.ma", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var msg messageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, "Email is already in use. Please use a different email.", msg.Message)

	resp = doJSON(t, shell, http.MethodPost, "/api/register", "", map[string]string{
		"fullName": "New", "email": "new@emsi.ma", "password": "secret1",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHistoryEndpoints(t *testing.T) {
	shell := newTestShell(t)
	session := login(t, shell)

	resp := doJSON(t, shell, http.MethodGet, "/api/history", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []app.HistoryRow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Python", rows[0].Topic)
	assert.Equal(t, 67, rows[0].DisplayScore)

	resp = doJSON(t, shell, http.MethodGet, "/api/history/a1", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep domain.AttemptReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	require.Len(t, rep.Lines, 2)
	assert.Equal(t, domain.NotAvailable, rep.Lines[1].YourAnswer)

	resp = doJSON(t, shell, http.MethodGet, "/api/history/missing", session, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, shell, http.MethodGet, "/api/dashboard", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d app.Dashboard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	assert.Equal(t, 2, d.TotalAttempts)
	assert.Equal(t, 90, d.BestScore)
}

func TestReportPDF(t *testing.T) {
	shell := newTestShell(t)
	session := login(t, shell)

	resp := doJSON(t, shell, http.MethodGet, "/api/history/a1/report.pdf", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "quiz_report_Python_a1.pdf")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "%PDF-"))
}

func TestHistoryRequiresSession(t *testing.T) {
	shell := newTestShell(t)

	resp := doJSON(t, shell, http.MethodGet, "/api/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, shell, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
