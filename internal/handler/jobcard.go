package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/workshop-service/internal/listing"
	"github.com/psds-microservice/workshop-service/internal/middleware"
	"github.com/psds-microservice/workshop-service/internal/service"
)

type JobCardHandler struct {
	svc *service.JobCardService
}

func NewJobCardHandler(svc *service.JobCardService) *JobCardHandler {
	return &JobCardHandler{svc: svc}
}

type createJobCardRequest struct {
	BuggyID    uint64     `json:"buggy_id" binding:"required"`
	ReportedAt *time.Time `json:"reported_at"`
	Hours      float64    `json:"hours" binding:"min=0,max=10000000"`
	Km         float64    `json:"km" binding:"min=0,max=10000000"`
	Location   string     `json:"location" binding:"required,max=255"`
	Issue      string     `json:"issue" binding:"max=200"`
}

func (h *JobCardHandler) Create(c *gin.Context) {
	var req createJobCardRequest
	if !bindJSON(c, &req) {
		return
	}
	jc, err := h.svc.Create(c.Request.Context(), middleware.Actor(c), service.CreateJobCardInput{
		BuggyID:    req.BuggyID,
		ReportedAt: req.ReportedAt,
		Hours:      req.Hours,
		Km:         req.Km,
		Location:   req.Location,
		Issue:      req.Issue,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, jc)
}

func (h *JobCardHandler) List(c *gin.Context) {
	buggyID, ok := queryUint(c, "buggy_id")
	if !ok {
		return
	}
	from, to, ok := dayRange(c)
	if !ok {
		return
	}
	f := service.JobCardFilter{BuggyID: buggyID, From: from, To: to}
	st := listing.Resume(listing.JobCardPageSize, f, queryPage(c), c.Query("filter_key"))
	items, total, err := h.svc.List(c.Request.Context(), st)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []service.JobCardView{}
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Meta: st.Meta(total)})
}
