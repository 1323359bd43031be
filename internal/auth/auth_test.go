package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qrattend/internal/httpmiddleware"
	"qrattend/internal/identity"
)

func testSigner() Signer {
	return Signer{Key: "test-key", Issuer: "qrattend-test", AccessTTL: time.Minute, RefreshTTL: time.Hour}
}

func TestIssueAndParse(t *testing.T) {
	s := testSigner()
	pair, err := s.Issue("user-1", identity.RoleTeacher)
	require.NoError(t, err)

	claims, err := s.Parse(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, identity.Actor{ID: "user-1", Role: identity.RoleTeacher}, claims.Actor())

	_, err = s.Parse(pair.RefreshToken, TypeAccess)
	assert.Error(t, err, "refresh token must not authenticate requests")

	_, err = s.Parse(pair.RefreshToken, TypeRefresh)
	assert.NoError(t, err)
}

func TestParseRejects(t *testing.T) {
	s := testSigner()
	pair, err := s.Issue("user-1", identity.RoleStudent)
	require.NoError(t, err)

	other := s
	other.Key = "another-key"
	_, err = other.Parse(pair.AccessToken, TypeAccess)
	assert.Error(t, err)

	otherIssuer := s
	otherIssuer.Issuer = "someone-else"
	_, err = otherIssuer.Parse(pair.AccessToken, TypeAccess)
	assert.Error(t, err)

	expired := s
	expired.AccessTTL = -time.Minute
	stale, err := expired.Issue("user-1", identity.RoleStudent)
	require.NoError(t, err)
	_, err = s.Parse(stale.AccessToken, TypeAccess)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := testSigner()

	r := gin.New()
	r.GET("/me", Required(s), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Subject)
	})
	r.GET("/manage", Required(s), RequireClassManager(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	student, err := s.Issue("stu", identity.RoleStudent)
	require.NoError(t, err)
	teacher, err := s.Issue("tea", identity.RoleTeacher)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"no token", "/me", "", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"refresh token", "/me", "Bearer " + student.RefreshToken, http.StatusUnauthorized},
		{"student me", "/me", "Bearer " + student.AccessToken, http.StatusOK},
		{"student manage", "/manage", "Bearer " + student.AccessToken, http.StatusForbidden},
		{"teacher manage", "/manage", "bearer " + teacher.AccessToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestSubjectOrIPSharedAddress(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := testSigner()

	r := gin.New()
	limiter := httpmiddleware.NewTokenBucket(1, 1)
	r.Use(httpmiddleware.RateLimit(limiter, SubjectOrIP(s, httpmiddleware.ClientIP), zaptest.NewLogger(t)))
	r.POST("/mark", func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/mark", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// Every student behind the same address gets a bucket of their own.
	for _, id := range []string{"s1", "s2", "s3"} {
		pair, err := s.Issue(id, identity.RoleStudent)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, send(pair.AccessToken), id)
	}
	pair, err := s.Issue("s1", identity.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, send(pair.AccessToken))

	assert.Equal(t, http.StatusCreated, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send("garbage"), "invalid tokens share the address bucket")
}
