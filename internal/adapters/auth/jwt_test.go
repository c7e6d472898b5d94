package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("test-secret", "signage", time.Hour)
	require.NoError(t, err)
	return m
}

func TestIssueVerify(t *testing.T) {
	m := newManager(t)
	user, _ := domain.NewUser("u1", "a@example.com")

	tok, err := m.Issue(user, RoleEditor)
	require.NoError(t, err)

	got, claims, err := m.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, user, got)
	assert.Equal(t, RoleEditor, claims.Role)
}

func TestSubject(t *testing.T) {
	m := newManager(t)
	user, _ := domain.NewUser("u1", "a@example.com")
	tok, err := m.Issue(user, RoleEditor)
	require.NoError(t, err)

	got, err := Subject(tok)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = Subject("not-a-token")
	assert.ErrorIs(t, err, core.ErrAuthentication)
}

func TestVerify_Rejects(t *testing.T) {
	m := newManager(t)
	user, _ := domain.NewUser("u1", "")
	tok, err := m.Issue(user, RoleEditor)
	require.NoError(t, err)

	other, err := NewManager("other-secret", "signage", time.Hour)
	require.NoError(t, err)
	_, _, err = other.Verify(tok)
	assert.ErrorIs(t, err, core.ErrAuthentication)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, _, err = m.Verify(tok)
	assert.ErrorIs(t, err, core.ErrAuthentication)

	_, _, err = m.Verify("garbage")
	assert.ErrorIs(t, err, core.ErrAuthentication)
}

func TestNewManager_NoSecret(t *testing.T) {
	_, err := NewManager("", "", 0)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/ws?token=q", nil)
	assert.Equal(t, "q", BearerToken(r))
	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", BearerToken(r))
	r.Header.Set("Authorization", "Basic x")
	assert.Empty(t, BearerToken(r))
}

func TestMiddleware_Roles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	r := gin.New()
	r.POST("/events", m.Middleware(RoleService), func(c *gin.Context) {
		u, ok := UserFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, string(u.ID))
	})

	call := func(token string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, call("").Code)

	editor, _ := m.Issue(&domain.User{ID: "u1"}, RoleEditor)
	assert.Equal(t, http.StatusForbidden, call(editor).Code)

	svc, _ := m.Issue(&domain.User{ID: "store"}, RoleService)
	w := call(svc)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "store", w.Body.String())
}
