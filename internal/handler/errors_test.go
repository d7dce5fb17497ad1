package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serveError(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { respondError(c, err) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{errs.ErrTicketNotFound, http.StatusNotFound, "ticket not found"},
		{fmt.Errorf("get: %w", errs.ErrBuggyNotFound), http.StatusNotFound, "buggy not found"},
		{errs.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{errs.ErrForbidden, http.StatusForbidden, "forbidden for this role"},
		{fmt.Errorf("buggy B-7: %w", errs.ErrDuplicateBuggy), http.StatusConflict, "Buggy B-7 already exists"},
		{errs.ErrBuggyAtDealer, http.StatusConflict, "This buggy is already at dealer."},
		{fmt.Errorf("start ticket 4: %w", errs.ErrConcurrentUpdate), http.StatusConflict, errs.ErrConcurrentUpdate.Error()},
		{fmt.Errorf("login: %w", errs.ErrInvalidCredentials), http.StatusUnauthorized, "invalid credentials"},
		{errs.ErrInvalidTransition, http.StatusConflict, errs.ErrInvalidTransition.Error()},
		{errs.ErrTestDriveNotPending, http.StatusConflict, errs.ErrTestDriveNotPending.Error()},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "operation failed, retry"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			code, body := serveError(t, tc.err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.msg, body["error"])
		})
	}
}

func TestRespondError_Unauthorized_HasLoginURL(t *testing.T) {
	_, body := serveError(t, errs.ErrUnauthenticated)
	assert.Equal(t, "/login", body["login_url"])
}

func TestRespondError_Validation(t *testing.T) {
	var v errs.Validation
	v.Add("description", "is required")
	code, body := serveError(t, v.Err())
	assert.Equal(t, http.StatusBadRequest, code)
	fields, ok := body["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "is required", fields["description"])
}

func TestDayRange(t *testing.T) {
	run := func(query string) (int, time.Time, time.Time) {
		var from, to time.Time
		r := gin.New()
		r.GET("/x", func(c *gin.Context) {
			var ok bool
			if from, to, ok = dayRange(c); ok {
				c.Status(http.StatusNoContent)
			}
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?"+query, nil))
		return w.Code, from, to
	}

	code, from, to := run("date_from=2025-04-01&date_to=2025-04-01")
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC), to, "day is inclusive")

	code, _, to = run("date_to=2025-04-01T12:00:00Z")
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC), to, "timestamps are exact")

	code, _, _ = run("date_from=yesterday")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestParseID(t *testing.T) {
	r := gin.New()
	r.GET("/t/:id", func(c *gin.Context) {
		if id, ok := parseID(c, "id"); ok {
			c.String(http.StatusOK, "%d", id)
		}
	})
	for path, code := range map[string]int{"/t/5": http.StatusOK, "/t/0": http.StatusBadRequest, "/t/abc": http.StatusBadRequest} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, w.Code, path)
	}
}
