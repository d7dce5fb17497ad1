package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/workshop-service/internal/auth"
	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/psds-microservice/workshop-service/internal/listing"
	"github.com/psds-microservice/workshop-service/internal/middleware"
)

const dayLayout = "2006-01-02"

// statusOf: доменная ошибка -> HTTP-код. Клиент видит текст самого sentinel, без обёрток.
var statusOf = []struct {
	err  error
	code int
}{
	{errs.ErrInvalidCredentials, http.StatusUnauthorized},
	{errs.ErrUnauthenticated, http.StatusUnauthorized},
	{errs.ErrForbidden, http.StatusForbidden},
	{errs.ErrTicketNotFound, http.StatusNotFound},
	{errs.ErrBuggyNotFound, http.StatusNotFound},
	{errs.ErrVisitNotFound, http.StatusNotFound},
	{errs.ErrAccountNotFound, http.StatusNotFound},
	{errs.ErrConcurrentUpdate, http.StatusConflict},
	{errs.ErrInvalidTransition, http.StatusConflict},
	{errs.ErrAlreadyDone, http.StatusConflict},
	{errs.ErrTestDriveNotPending, http.StatusConflict},
	{errs.ErrVisitReturned, http.StatusConflict},
	{errs.ErrDuplicateAccount, http.StatusConflict},
}

// respondError — единственное место, где доменные ошибки превращаются в HTTP.
func respondError(c *gin.Context, err error) {
	if ve, ok := errs.IsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": ve.Fields})
		return
	}
	switch {
	case errors.Is(err, errs.ErrDuplicateBuggy):
		// "buggy B-7: ..." -> "Buggy B-7 already exists"
		c.JSON(http.StatusConflict, gin.H{"error": duplicateBuggyMessage(err)})
		return
	case errors.Is(err, errs.ErrBuggyAtDealer):
		c.JSON(http.StatusConflict, gin.H{"error": "This buggy is already at dealer."})
		return
	}
	for _, s := range statusOf {
		if !errors.Is(err, s.err) {
			continue
		}
		body := gin.H{"error": s.err.Error()}
		if s.code == http.StatusUnauthorized {
			body["login_url"] = auth.LoginPath(middleware.Actor(c).Role)
		}
		c.JSON(s.code, body)
		return
	}
	_ = c.Error(err)
	slog.Error("request failed",
		"route", c.FullPath(),
		"request_id", middleware.GetRequestID(c),
		"error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed, retry"})
}

func duplicateBuggyMessage(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, "buggy "); ok {
		if i := strings.Index(rest, ":"); i > 0 {
			return fmt.Sprintf("Buggy %s already exists", rest[:i])
		}
	}
	return "Buggy already exists"
}

func badRequest(c *gin.Context, field, msg string) {
	badRequestFields(c, map[string]string{field: msg})
}

func badRequestFields(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, name, "invalid id")
		return 0, false
	}
	return id, true
}

// queryUint: пустое значение -> 0.
func queryUint(c *gin.Context, name string) (uint64, bool) {
	v := c.Query(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		badRequest(c, name, "must be a positive integer")
		return 0, false
	}
	return n, true
}

func queryPage(c *gin.Context) int {
	p, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || p < 1 {
		return 1
	}
	return min(p, listing.MaxPage)
}

// dayRange читает date_from/date_to (YYYY-MM-DD или RFC3339).
// date_to в виде дня включительный: граница сдвигается на начало следующего дня.
func dayRange(c *gin.Context) (from, to time.Time, ok bool) {
	if v := c.Query("date_from"); v != "" {
		t, _, err := parseDay(v)
		if err != nil {
			badRequest(c, "date_from", "must be YYYY-MM-DD or RFC3339")
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	if v := c.Query("date_to"); v != "" {
		t, isDay, err := parseDay(v)
		if err != nil {
			badRequest(c, "date_to", "must be YYYY-MM-DD or RFC3339")
			return time.Time{}, time.Time{}, false
		}
		if isDay {
			t = t.AddDate(0, 0, 1)
		}
		to = t
	}
	return from, to, true
}

func parseDay(v string) (time.Time, bool, error) {
	if t, err := time.Parse(dayLayout, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, false, err
}

// listResponse: общий конверт для постраничных списков.
type listResponse struct {
	Items interface{} `json:"items"`
	Meta  interface{} `json:"meta"`
}
