package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/workshop-service/internal/listing"
	"github.com/psds-microservice/workshop-service/internal/middleware"
	"github.com/psds-microservice/workshop-service/internal/service"
)

type DealerHandler struct {
	svc *service.DealerService
}

func NewDealerHandler(svc *service.DealerService) *DealerHandler {
	return &DealerHandler{svc: svc}
}

// Lock: GET /dealer-visits/lock?buggy_id=
func (h *DealerHandler) Lock(c *gin.Context) {
	buggyID, ok := queryUint(c, "buggy_id")
	if !ok {
		return
	}
	if buggyID == 0 {
		badRequest(c, "buggy_id", "is required")
		return
	}
	v, err := h.svc.Lock(c.Request.Context(), buggyID)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"buggy_id": buggyID, "locked": v != nil}
	if v != nil {
		resp["visit"] = v
	}
	c.JSON(http.StatusOK, resp)
}

type giveRequest struct {
	BuggyID uint64 `json:"buggy_id" binding:"required"`
	Issue   string `json:"issue" binding:"required"`
}

func (h *DealerHandler) Give(c *gin.Context) {
	var req giveRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.svc.Give(c.Request.Context(), middleware.Actor(c), req.BuggyID, req.Issue)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *DealerHandler) Return(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.Return(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// ReturnActive закрывает активный визит по багги (кнопка у механика).
func (h *DealerHandler) ReturnActive(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.ReturnActive(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *DealerHandler) List(c *gin.Context) {
	buggyID, ok := queryUint(c, "buggy_id")
	if !ok {
		return
	}
	f := service.DealerFilter{BuggyID: buggyID, ActiveOnly: c.Query("active") == "true"}
	st := listing.Resume(listing.TicketPageSize, f, queryPage(c), c.Query("filter_key"))
	items, total, err := h.svc.List(c.Request.Context(), st)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []service.DealerVisitView{}
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Meta: st.Meta(total)})
}
