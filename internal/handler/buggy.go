package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/workshop-service/internal/service"
)

type BuggyHandler struct {
	svc *service.BuggyService
}

func NewBuggyHandler(svc *service.BuggyService) *BuggyHandler {
	return &BuggyHandler{svc: svc}
}

type createBuggyRequest struct {
	Number string `json:"number" binding:"required,max=32"`
	Model  string `json:"model" binding:"max=128"`
}

func (h *BuggyHandler) Create(c *gin.Context) {
	var req createBuggyRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.svc.Create(c.Request.Context(), req.Number, req.Model)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *BuggyHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	b, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// List — ростер с вычисленным статусом и сводкой.
func (h *BuggyHandler) List(c *gin.Context) {
	items, summary, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []service.BuggyView{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "summary": summary})
}
