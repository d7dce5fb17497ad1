package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/workshop-service/internal/listing"
	"github.com/psds-microservice/workshop-service/internal/middleware"
	"github.com/psds-microservice/workshop-service/internal/service"
)

type HoursHandler struct {
	svc *service.HoursService
}

func NewHoursHandler(svc *service.HoursService) *HoursHandler {
	return &HoursHandler{svc: svc}
}

type logHoursRequest struct {
	BuggyID   uint64     `json:"buggy_id" binding:"required"`
	Hours     float64    `json:"hours" binding:"min=0,max=10000000"`
	ReadingAt *time.Time `json:"reading_at"`
	Note      string     `json:"note"`
}

func (h *HoursHandler) Log(c *gin.Context) {
	var req logHoursRequest
	if !bindJSON(c, &req) {
		return
	}
	l, err := h.svc.Log(c.Request.Context(), middleware.Actor(c), service.LogHoursInput{
		BuggyID:   req.BuggyID,
		Hours:     req.Hours,
		ReadingAt: req.ReadingAt,
		Note:      req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h *HoursHandler) Mine(c *gin.Context) {
	items, err := h.svc.Mine(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []service.HoursLogView{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// List — фильтр админа: buggy_id, date_from, date_to.
func (h *HoursHandler) List(c *gin.Context) {
	buggyID, ok := queryUint(c, "buggy_id")
	if !ok {
		return
	}
	from, to, ok := dayRange(c)
	if !ok {
		return
	}
	f := service.HoursFilter{BuggyID: buggyID, From: from, To: to}
	st := listing.Resume(listing.TicketPageSize, f, queryPage(c), c.Query("filter_key"))
	items, total, err := h.svc.List(c.Request.Context(), st)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []service.HoursLogView{}
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Meta: st.Meta(total)})
}
