package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/sse"
	"github.com/cmlabs-hris/hrms-backend-go/internal/repository/memory"
	attendanceService "github.com/cmlabs-hris/hrms-backend-go/internal/service/attendance"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handlerTestSecret = "test-secret-key-for-jwt"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type handlerEnv struct {
	router     http.Handler
	jwtService jwt.Service
	store      *memory.Store
	clock      *testClock
	employeeID string
	adminID    string
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	loc := time.UTC
	clk := &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, loc)}
	store := memory.NewStore(loc)

	deptID := uuid.NewString()
	store.AddDepartment(deptID, "Engineering")

	env := &handlerEnv{
		jwtService: jwt.NewJWTService(handlerTestSecret, "1h"),
		store:      store,
		clock:      clk,
		employeeID: uuid.NewString(),
		adminID:    uuid.NewString(),
	}
	store.AddEmployee(employee.Employee{
		ID:               env.employeeID,
		EmployeeCode:     "EMP-001",
		FullName:         "Alice",
		DepartmentID:     &deptID,
		EmploymentStatus: employee.EmploymentStatusActive,
	})
	store.AddEmployee(employee.Employee{
		ID:               env.adminID,
		EmployeeCode:     "EMP-002",
		FullName:         "Bob",
		DepartmentID:     &deptID,
		EmploymentStatus: employee.EmploymentStatusActive,
	})

	hub := sse.NewHub(8)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := attendanceService.NewAttendanceService(
		store.Transactor(),
		memory.NewAttendanceRepository(store),
		memory.NewEmployeeRepository(store),
		env.jwtService,
		hub,
		attendanceService.Options{
			Location:          loc,
			Clock:             clk,
			Policy:            attendance.DefaultShiftPolicy(),
			TransitionRetries: 2,
			Logger:            logger,
		},
	)

	env.router = NewRouter(env.jwtService, NewAttendanceHandler(svc), NewStreamHandler(env.jwtService, hub, time.Minute), RouterOptions{
		Logger: logger,
	})
	return env
}

func (e *handlerEnv) token(t *testing.T, employeeID string, role user.Role) string {
	t.Helper()
	token, _, err := e.jwtService.GenerateAccessToken(uuid.NewString(), "someone@example.com", &employeeID, role)
	require.NoError(t, err)
	return token
}

func (e *handlerEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	}
	return w, resp
}

func data(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", resp)
	return d
}

func TestAttendanceHandler_MyStatusBeforeCheckIn(t *testing.T) {
	env := newHandlerEnv(t)
	token := env.token(t, env.employeeID, user.RoleEmployee)

	w, resp := env.do(t, http.MethodGet, "/api/v1/attendance/my-status", token, nil)

	require.Equal(t, http.StatusOK, w.Code)
	d := data(t, resp)
	rec := d["attendance"].(map[string]interface{})
	assert.Equal(t, "not_checked_in", rec["current_state"])
	assert.Nil(t, rec["id"])
	assert.Equal(t, []interface{}{"check_in"}, rec["allowed_commands"])
	assert.Equal(t, "Alice", d["employee"].(map[string]interface{})["full_name"])
}

func TestAttendanceHandler_FullDay(t *testing.T) {
	env := newHandlerEnv(t)
	token := env.token(t, env.employeeID, user.RoleEmployee)

	steps := []struct {
		path    string
		advance time.Duration
		state   string
	}{
		{"/api/v1/attendance/check-in", 0, "working"},
		{"/api/v1/attendance/lunch/start", 3 * time.Hour, "lunch_break"},
		{"/api/v1/attendance/lunch/end", 30 * time.Minute, "working"},
		{"/api/v1/attendance/check-out", 5*time.Hour + 30*time.Minute, "checked_out"},
	}

	var last map[string]interface{}
	for _, step := range steps {
		env.clock.Advance(step.advance)
		w, resp := env.do(t, http.MethodPost, step.path, token, nil)
		require.Equal(t, http.StatusOK, w.Code, "path %s: %v", step.path, resp)
		last = data(t, resp)
		assert.Equal(t, step.state, last["current_state"], step.path)
	}

	assert.EqualValues(t, 540, last["total_working_minutes"])
	assert.EqualValues(t, 30, last["total_break_minutes"])
	assert.Len(t, last["work_sessions"], 1)
	assert.Equal(t, "realtime", last["origin"])
}

func TestAttendanceHandler_IllegalTransitionConflict(t *testing.T) {
	env := newHandlerEnv(t)
	token := env.token(t, env.employeeID, user.RoleEmployee)

	w, _ := env.do(t, http.MethodPost, "/api/v1/attendance/lunch/start", token, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/attendance/check-in", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodPost, "/api/v1/attendance/check-in", token, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, resp["success"].(bool))
	errBody := resp["error"].(map[string]interface{})
	assert.Equal(t, "ILLEGAL_TRANSITION", errBody["code"])
	assert.Equal(t, attendance.ErrAlreadyCheckedIn.Error(), errBody["message"])
}

func TestAttendanceHandler_BreakWithReason(t *testing.T) {
	env := newHandlerEnv(t)
	token := env.token(t, env.employeeID, user.RoleEmployee)

	w, _ := env.do(t, http.MethodPost, "/api/v1/attendance/check-in", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	env.clock.Advance(time.Hour)
	w, resp := env.do(t, http.MethodPost, "/api/v1/attendance/break/start", token, map[string]string{"reason": "doctor"})
	require.Equal(t, http.StatusOK, w.Code)
	d := data(t, resp)
	assert.Equal(t, "personal_break", d["current_state"])
	breaks := d["personal_breaks"].([]interface{})
	require.Len(t, breaks, 1)
	assert.Equal(t, "doctor", breaks[0].(map[string]interface{})["reason"])

	w, resp = env.do(t, http.MethodPost, "/api/v1/attendance/break/start", token, map[string]string{"reason": strings.Repeat("x", 300)})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, resp)
}

func TestAttendanceHandler_Authentication(t *testing.T) {
	env := newHandlerEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/v1/attendance/my-status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	streamToken, _, err := env.jwtService.GenerateStreamToken(uuid.NewString(), env.employeeID)
	require.NoError(t, err)
	w, _ = env.do(t, http.MethodGet, "/api/v1/attendance/my-status", streamToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceHandler_Permissions(t *testing.T) {
	env := newHandlerEnv(t)
	employeeToken := env.token(t, env.employeeID, user.RoleEmployee)
	hrToken := env.token(t, env.adminID, user.RoleHR)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"employee cannot list", http.MethodGet, "/api/v1/attendance", employeeToken, http.StatusForbidden},
		{"employee cannot summarize", http.MethodGet, "/api/v1/attendance/summary", employeeToken, http.StatusForbidden},
		{"employee cannot mark", http.MethodPost, "/api/v1/attendance", employeeToken, http.StatusForbidden},
		{"hr cannot delete", http.MethodDelete, "/api/v1/attendance/" + uuid.NewString(), hrToken, http.StatusForbidden},
		{"hr can list", http.MethodGet, "/api/v1/attendance", hrToken, http.StatusOK},
		{"hr can summarize", http.MethodGet, "/api/v1/attendance/summary", hrToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body interface{}
			if tt.method == http.MethodPost {
				body = map[string]string{}
			}
			w, _ := env.do(t, tt.method, tt.path, tt.token, body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAttendanceHandler_UnknownProfile(t *testing.T) {
	env := newHandlerEnv(t)
	token := env.token(t, uuid.NewString(), user.RoleEmployee)

	w, _ := env.do(t, http.MethodPost, "/api/v1/attendance/check-in", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttendanceHandler_MarkThenTransitionRejected(t *testing.T) {
	env := newHandlerEnv(t)
	adminToken := env.token(t, env.adminID, user.RoleAdmin)
	employeeToken := env.token(t, env.employeeID, user.RoleEmployee)

	w, resp := env.do(t, http.MethodPost, "/api/v1/attendance", adminToken, map[string]interface{}{
		"employee": env.employeeID,
		"date":     "2025-03-10",
		"status":   "present",
		"check_in": "2025-03-10T08:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	marked := data(t, resp)
	assert.Equal(t, "manual", marked["origin"])
	assert.Equal(t, "working", marked["current_state"])

	w, _ = env.do(t, http.MethodPost, "/api/v1/attendance/check-out", employeeToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	id := marked["id"].(string)
	w, resp = env.do(t, http.MethodGet, "/api/v1/attendance/"+id, employeeToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, data(t, resp)["id"])

	w, resp = env.do(t, http.MethodPut, "/api/v1/attendance/"+id, adminToken, map[string]interface{}{
		"check_out": "2025-03-10T17:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code, resp)
	updated := data(t, resp)
	assert.Equal(t, "checked_out", updated["current_state"])
	assert.EqualValues(t, 540, updated["total_working_minutes"])

	w, _ = env.do(t, http.MethodDelete, "/api/v1/attendance/"+id, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/attendance/"+id, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttendanceHandler_GetOthersRecordForbidden(t *testing.T) {
	env := newHandlerEnv(t)
	adminToken := env.token(t, env.adminID, user.RoleAdmin)
	employeeToken := env.token(t, env.employeeID, user.RoleEmployee)

	w, resp := env.do(t, http.MethodPost, "/api/v1/attendance/check-in", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	id := data(t, resp)["id"].(string)

	w, _ = env.do(t, http.MethodGet, "/api/v1/attendance/"+id, employeeToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAttendanceHandler_ListAndHistory(t *testing.T) {
	env := newHandlerEnv(t)
	hrToken := env.token(t, env.adminID, user.RoleHR)
	employeeToken := env.token(t, env.employeeID, user.RoleEmployee)

	w, _ := env.do(t, http.MethodPost, "/api/v1/attendance/check-in", employeeToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/v1/attendance?startDate=2025-03-10&endDate=2025-03-10", hrToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := data(t, resp)
	assert.EqualValues(t, 1, list["total_count"])
	meta, ok := resp["meta"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, meta["total_items"])
	assert.EqualValues(t, 1, meta["page"])
	assert.Equal(t, "1-1 of 1", meta["showing"])

	w, _ = env.do(t, http.MethodGet, "/api/v1/attendance?start_date=2025-03-11&end_date=2025-03-10", hrToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, resp = env.do(t, http.MethodGet, "/api/v1/attendance/my-history?limit=5", employeeToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"], 1)
}

func TestAttendanceHandler_Summary(t *testing.T) {
	env := newHandlerEnv(t)
	hrToken := env.token(t, env.adminID, user.RoleHR)
	employeeToken := env.token(t, env.employeeID, user.RoleEmployee)

	w, _ := env.do(t, http.MethodPost, "/api/v1/attendance/check-in", employeeToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodGet, "/api/v1/attendance/summary?date=2025-03-10", hrToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := data(t, resp)
	assert.EqualValues(t, 2, summary["total_employees"])
	assert.EqualValues(t, 1, summary["present"])
	assert.EqualValues(t, 1, summary["absent"])
	assert.EqualValues(t, 1, summary["working"])
}

func TestStreamHandler_DeliversUpdates(t *testing.T) {
	env := newHandlerEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	employeeToken := env.token(t, env.employeeID, user.RoleEmployee)
	w, resp := env.do(t, http.MethodPost, "/api/v1/attendance/stream-token", employeeToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	streamToken := data(t, resp)["token"].(string)

	res, err := http.Get(server.URL + "/api/v1/attendance/stream?token=" + streamToken)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	events := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(res.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events <- name
			}
		}
		close(events)
	}()

	require.Equal(t, "connected", <-events)

	w, _ = env.do(t, http.MethodPost, "/api/v1/attendance/check-in", employeeToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case name := <-events:
		assert.Equal(t, attendance.EventUpdated, name)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestStreamHandler_RejectsAccessToken(t *testing.T) {
	env := newHandlerEnv(t)
	token := env.token(t, env.employeeID, user.RoleEmployee)

	w, _ := env.do(t, http.MethodGet, "/api/v1/attendance/stream?token="+token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/attendance/stream", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
