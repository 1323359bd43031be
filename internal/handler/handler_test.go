package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/classes"
	"qrattend/internal/identity"
	"qrattend/internal/queue"
	"qrattend/internal/sessions"
	"qrattend/internal/store/storetest"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T, checks map[string]HealthCheck) *testServer {
	gin.SetMode(gin.TestMode)
	db := storetest.Open(t)
	logger := zaptest.NewLogger(t)

	userRepo := identity.NewRepository(db)
	users := identity.NewService(userRepo, logger)
	classRepo := classes.NewRepository(db)
	sessionRepo := sessions.NewRepository(db)
	ledger := attendance.NewRepository(db)
	calendar := attendance.NewCalendar(time.UTC)
	signer := auth.Signer{Key: "test-key", Issuer: "qrattend-test", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour}

	h, err := New(Deps{
		Users:   users,
		Tokens:  auth.NewTokens(signer, userRepo),
		Classes: classes.NewService(classRepo, users, logger),
		Issuer:  sessions.NewIssuer(sessionRepo, classRepo, 5*time.Minute, logger),
		Marks:   attendance.NewService(sessionRepo, classRepo, ledger, queue.NewInMemory(64), calendar, logger),
		Reports: attendance.NewReports(ledger, classRepo, calendar),
		Checks:  checks,
		Logger:  logger,
	})
	require.NoError(t, err)

	r := gin.New()
	h.Register(r)
	return &testServer{t: t, router: r}
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (s *testServer) signup(name, email, role string) string {
	s.t.Helper()
	w, body := s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"name": name, "email": email, "password": "secret123", "role": role,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return body["token"].(string)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"name": "A", "email": "nope", "password": "secret123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email must be a valid email", body["message"])

	w, _ = s.do(http.MethodPost, "/api/auth/register", "", gin.H{"name": "A", "email": "a@b.co", "password": "secret123", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.signup("Ada", "ada@example.com", "student")
	w, _ = s.do(http.MethodPost, "/api/auth/register", "", gin.H{"name": "Ada", "email": "ADA@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", body["message"])

	w, body = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	access := body["token"].(string)
	refresh := body["refreshToken"].(string)

	w, body = s.do(http.MethodGet, "/api/auth/me", access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@example.com", body["email"])
	assert.NotContains(t, body, "passwordHash")

	w, body = s.do(http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	rotated := body["refreshToken"].(string)

	w, _ = s.do(http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodPost, "/api/auth/logout", "", gin.H{"refreshToken": rotated})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceFlow(t *testing.T) {
	s := newTestServer(t, nil)
	teacher := s.signup("Tess", "tess@example.com", "teacher")
	alice := s.signup("Alice", "alice@example.com", "student")
	bob := s.signup("Bob", "bob@example.com", "student")

	w, body := s.do(http.MethodPost, "/api/classes", teacher, gin.H{"name": "Data Structures", "code": "CS 201"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "code must be 2-20 letters, digits or dashes", body["message"])

	w, _ = s.do(http.MethodPost, "/api/classes", alice, gin.H{"name": "Mine", "code": "MINE"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(http.MethodPost, "/api/classes", teacher, gin.H{
		"name": "Data Structures", "code": "cs201", "schedule": gin.H{"day": "Mon", "time": "09:00"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	classID := body["id"].(string)
	assert.Equal(t, "CS201", body["code"])

	w, _ = s.do(http.MethodPost, "/api/classes/join/cs201", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, body = s.do(http.MethodPost, "/api/classes/join/CS201", alice, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Already enrolled in this class", body["message"])

	w, _ = s.do(http.MethodPost, "/api/classes/join", bob, gin.H{"code": "CS201"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = s.do(http.MethodGet, "/api/classes/"+classID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["students"], 2)

	w, body = s.do(http.MethodGet, "/api/attendance/active-session/"+classID, teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["hasActiveSession"])

	w, body = s.do(http.MethodPost, "/api/attendance/generate-qr/"+classID, alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(http.MethodPost, "/api/attendance/generate-qr/"+classID, teacher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	code := body["sessionCode"].(string)
	qrData := body["qrData"].(string)
	assert.Equal(t, "Data Structures", body["className"])

	w, body = s.do(http.MethodGet, "/api/attendance/active-session/"+classID, teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["hasActiveSession"])
	assert.Equal(t, code, body["sessionCode"])

	w, _ = s.do(http.MethodPost, "/api/attendance/mark", "", gin.H{"sessionCode": code})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = s.do(http.MethodPost, "/api/attendance/mark", alice, gin.H{"sessionCode": code, "classId": classID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Attendance marked successfully", body["message"])
	assert.Equal(t, "Data Structures", body["attendance"].(map[string]any)["class"])

	w, body = s.do(http.MethodPost, "/api/attendance/mark", alice, gin.H{"sessionCode": code})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Attendance already marked for today", body["message"])

	w, _ = s.do(http.MethodPost, "/api/attendance/mark", bob, gin.H{"sessionCode": code, "classId": "another"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/attendance/mark", bob, gin.H{"qrCode": qrData})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, body = s.do(http.MethodPost, "/api/attendance/mark", bob, gin.H{"sessionCode": "deadbeef"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid or expired QR code", body["message"])

	w, _ = s.do(http.MethodPost, "/api/attendance/mark", bob, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodGet, "/api/attendance/stats/"+classID, alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodGet, "/api/attendance/stats/"+classID, teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats []attendance.StudentStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Len(t, stats, 2)
	for _, st := range stats {
		require.NotNil(t, st.Percentage)
		assert.Equal(t, 100.0, *st.Percentage)
	}

	w, body = s.do(http.MethodGet, "/api/attendance/summary/"+classID, teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100.0, body["averageAttendance"])

	w, _ = s.do(http.MethodGet, "/api/attendance/class/"+classID+"?date="+time.Now().UTC().Format("2006-01-02"), teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []attendance.ClassEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	w, _ = s.do(http.MethodGet, "/api/attendance/my-attendance?classId="+classID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []attendance.StudentEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "CS201", mine[0].ClassCode)

	w, _ = s.do(http.MethodDelete, "/api/classes/"+classID, alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodDelete, "/api/classes/"+classID, teacher, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(http.MethodGet, "/api/classes/"+classID, teacher, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidateAndAddStudent(t *testing.T) {
	s := newTestServer(t, nil)
	teacher := s.signup("Tess", "tess@example.com", "teacher")
	carol := s.signup("Carol", "carol@example.com", "student")

	w, body := s.do(http.MethodPost, "/api/classes", teacher, gin.H{"name": "Physics", "code": "PHY-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	classID := body["id"].(string)

	w, _ = s.do(http.MethodPost, "/api/classes/"+classID+"/students", teacher, gin.H{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, body = s.do(http.MethodPost, "/api/classes/"+classID+"/students", teacher, gin.H{"email": "carol@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Student added successfully", body["message"])

	w, body = s.do(http.MethodPost, "/api/attendance/generate-qr/"+classID, teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessionID := body["sessionId"].(string)
	code := body["sessionCode"].(string)

	w, _ = s.do(http.MethodPost, "/api/attendance/sessions/"+sessionID+"/invalidate", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(http.MethodPost, "/api/attendance/mark", carol, gin.H{"sessionCode": code})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid or expired QR code", body["message"])
}

func TestHealth(t *testing.T) {
	ok := newTestServer(t, map[string]HealthCheck{
		"db": func(context.Context) error { return nil },
	})
	w, body := ok.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["db"])

	degraded := newTestServer(t, map[string]HealthCheck{
		"db":    func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("down") },
	})
	w, body = degraded.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, body["redis"])
	assert.Equal(t, "degraded", body["status"])
}
