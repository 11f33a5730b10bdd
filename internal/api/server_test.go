package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsolve/chatbot/internal/access"
	"github.com/finsolve/chatbot/internal/auth"
	"github.com/finsolve/chatbot/internal/chat"
	"github.com/finsolve/chatbot/internal/compose"
	"github.com/finsolve/chatbot/internal/log"
)

type stubAuth struct {
	users map[string]auth.Identity // username -> identity, password is username + "-pw"
}

func (s *stubAuth) Authenticate(_ context.Context, username, password string) (auth.Identity, error) {
	id, ok := s.users[username]
	if !ok || password != username+"-pw" {
		return auth.Identity{}, auth.ErrInvalidCredentials
	}
	return id, nil
}

func (s *stubAuth) IssueToken(id auth.Identity) (string, error) {
	return "tok-" + id.UserID, nil
}

func (s *stubAuth) VerifyToken(token string) (auth.Identity, error) {
	user, ok := strings.CutPrefix(token, "tok-")
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	id, ok := s.users[user]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return id, nil
}

type stubChat struct {
	lastUser  string
	lastRole  access.Role
	lastQuery string
	resp      compose.Response
	err       error
	cleared   []string
}

func (s *stubChat) Chat(_ context.Context, userID string, role access.Role, query string) (compose.Response, error) {
	s.lastUser = userID
	s.lastRole = role
	s.lastQuery = query
	if s.err != nil {
		return compose.Response{}, s.err
	}
	return s.resp, nil
}

func (s *stubChat) ClearMemory(userID string) {
	s.cleared = append(s.cleared, userID)
}

func newTestServer(t *testing.T, chatSvc chatService) (*Server, *stubAuth) {
	t.Helper()

	authSvc := &stubAuth{users: map[string]auth.Identity{
		"peter": {UserID: "peter", Role: access.RoleFinance},
		"emma":  {UserID: "emma", Role: access.RoleEmployee},
	}}

	srv, err := NewServer(ServerConfig{
		Logger: log.NewNop(),
		Chat:   chatSvc,
		Auth:   authSvc,
	})
	require.NoError(t, err)
	return srv, authSvc
}

func doRequest(srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(ServerConfig{Chat: &stubChat{}})
	assert.Error(t, err)

	_, err = NewServer(ServerConfig{Auth: &stubAuth{}})
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	srv, _ := newTestServer(t, &stubChat{})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.SetBasicAuth("peter", "peter-pw")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok-peter", resp.Token)
	assert.Equal(t, "peter", resp.User)
	assert.Equal(t, "finance", resp.Role)
}

func TestLogin_BadCredentials(t *testing.T) {
	srv, _ := newTestServer(t, &stubChat{})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.SetBasicAuth("peter", "wrong")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_NoBasicAuth(t *testing.T) {
	srv, _ := newTestServer(t, &stubChat{})

	rec := doRequest(srv, http.MethodPost, "/login", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
}

func TestChat(t *testing.T) {
	chatSvc := &stubChat{resp: compose.Response{
		Answer: "Revenue grew 12% in Q4.",
		Sources: []compose.Source{
			{File: "finance/q4_report.md", Department: "finance", Relevance: 0.91},
		},
	}}
	srv, _ := newTestServer(t, chatSvc)

	rec := doRequest(srv, http.MethodPost, "/chat", "tok-peter", `{"message":"how did Q4 go?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Revenue grew 12% in Q4.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "finance/q4_report.md", resp.Sources[0].File)

	assert.Equal(t, "peter", chatSvc.lastUser)
	assert.Equal(t, access.RoleFinance, chatSvc.lastRole)
	assert.Equal(t, "how did Q4 go?", chatSvc.lastQuery)
}

func TestChat_Unauthenticated(t *testing.T) {
	chatSvc := &stubChat{}
	srv, _ := newTestServer(t, chatSvc)

	rec := doRequest(srv, http.MethodPost, "/chat", "", `{"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, chatSvc.lastQuery)

	rec = doRequest(srv, http.MethodPost, "/chat", "forged", `{"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, chatSvc.lastQuery)
}

func TestChat_BadBody(t *testing.T) {
	srv, _ := newTestServer(t, &stubChat{})

	rec := doRequest(srv, http.MethodPost, "/chat", "tok-peter", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/chat", "tok-peter", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_GenerationUnavailable(t *testing.T) {
	chatSvc := &stubChat{err: chat.ErrGenerationUnavailable}
	srv, _ := newTestServer(t, chatSvc)

	rec := doRequest(srv, http.MethodPost, "/chat", "tok-peter", `{"message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "generation_unavailable", resp.Error.Code)
}

func TestChat_InternalError(t *testing.T) {
	chatSvc := &stubChat{err: fmt.Errorf("pool exhausted")}
	srv, _ := newTestServer(t, chatSvc)

	rec := doRequest(srv, http.MethodPost, "/chat", "tok-peter", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pool exhausted")
}

func TestChatClear(t *testing.T) {
	chatSvc := &stubChat{}
	srv, _ := newTestServer(t, chatSvc)

	rec := doRequest(srv, http.MethodPost, "/chat/clear", "tok-emma", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"emma"}, chatSvc.cleared)
}

func TestAccessibleData(t *testing.T) {
	srv, _ := newTestServer(t, &stubChat{})

	rec := doRequest(srv, http.MethodGet, "/user/accessible-data", "tok-emma", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp accessibleDataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "employee", resp.Role)
	assert.Equal(t, []access.Department{access.DeptGeneral}, resp.Departments)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubChat{})

	rec := doRequest(srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

type stubPinger struct{ err error }

func (p *stubPinger) Ping(context.Context) error { return p.err }

func TestReady(t *testing.T) {
	authSvc := &stubAuth{users: map[string]auth.Identity{}}

	srv, err := NewServer(ServerConfig{
		Logger: log.NewNop(),
		Chat:   &stubChat{},
		Auth:   authSvc,
		Pinger: &stubPinger{},
	})
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	srv, err = NewServer(ServerConfig{
		Logger: log.NewNop(),
		Chat:   &stubChat{},
		Auth:   authSvc,
		Pinger: &stubPinger{err: fmt.Errorf("connection refused")},
	})
	require.NoError(t, err)

	rec = doRequest(srv, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := log.NewNop()
	handler := recoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
