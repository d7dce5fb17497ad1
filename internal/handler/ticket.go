package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/workshop-service/internal/lifecycle"
	"github.com/psds-microservice/workshop-service/internal/listing"
	"github.com/psds-microservice/workshop-service/internal/middleware"
	"github.com/psds-microservice/workshop-service/internal/model"
	"github.com/psds-microservice/workshop-service/internal/service"
)

type TicketHandler struct {
	svc service.TicketServicer
}

func NewTicketHandler(svc service.TicketServicer) *TicketHandler {
	return &TicketHandler{svc: svc}
}

type createTicketRequest struct {
	BuggyID     *uint64 `json:"buggy_id" binding:"omitempty,min=1"`
	Description string  `json:"description" binding:"required,max=2000"`
	Priority    string  `json:"priority" binding:"omitempty,oneof=low medium high"`
	HoursIn     *int    `json:"hours_in" binding:"omitempty,min=0,max=10000000"`
	Km          *int    `json:"km" binding:"omitempty,min=0,max=10000000"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.svc.Create(c.Request.Context(), middleware.Actor(c), service.CreateTicketInput{
		BuggyID:     req.BuggyID,
		Description: req.Description,
		Priority:    model.Priority(req.Priority),
		HoursIn:     req.HoursIn,
		Km:          req.Km,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// List: обзор админа. Фильтры status, priority, buggy, assignee, date_from, date_to.
func (h *TicketHandler) List(c *gin.Context) {
	f, ok := ticketFilter(c)
	if !ok {
		return
	}
	h.page(c, listing.TicketPageSize, f)
}

// Feed — лента механика: только активные тикеты.
func (h *TicketHandler) Feed(c *gin.Context) {
	f, ok := ticketFilter(c)
	if !ok {
		return
	}
	f.ActiveOnly = true
	if c.Query("mine") == "true" {
		f.Assignee = middleware.Actor(c).ID
	}
	h.page(c, listing.FeedPageSize, f)
}

// Mine: открытые тикеты, созданные гидом.
func (h *TicketHandler) Mine(c *gin.Context) {
	f := service.TicketFilter{CreatedBy: middleware.Actor(c).ID, ActiveOnly: true}
	h.page(c, listing.TicketPageSize, f)
}

func (h *TicketHandler) page(c *gin.Context, size int, f service.TicketFilter) {
	st := listing.Resume(size, f, queryPage(c), c.Query("filter_key"))
	items, total, err := h.svc.List(c.Request.Context(), st)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []service.TicketView{}
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Meta: st.Meta(total)})
}

func ticketFilter(c *gin.Context) (service.TicketFilter, bool) {
	buggyID, ok := queryUint(c, "buggy_id")
	if !ok {
		return service.TicketFilter{}, false
	}
	from, to, ok := dayRange(c)
	if !ok {
		return service.TicketFilter{}, false
	}
	return service.TicketFilter{
		Status:      model.TicketStatus(c.Query("status")),
		Priority:    model.Priority(c.Query("priority")),
		BuggyID:     buggyID,
		BuggyNumber: c.Query("buggy"),
		Assignee:    c.Query("assignee"),
		From:        from,
		To:          to,
	}, true
}

type transitionRequest struct {
	HoursOut *int `json:"hours_out" binding:"omitempty,min=0,max=10000000"`
}

// Transition возвращает хендлер для одного действия жизненного цикла.
func (h *TicketHandler) Transition(action lifecycle.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		var req transitionRequest
		if c.Request.ContentLength > 0 {
			if !bindJSON(c, &req) {
				return
			}
		}
		t, err := h.svc.Transition(c.Request.Context(), id, action, middleware.Actor(c),
			service.TransitionOptions{HoursOut: req.HoursOut})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

type readingsRequest struct {
	HoursIn  *int `json:"hours_in" binding:"omitempty,min=0,max=10000000"`
	HoursOut *int `json:"hours_out" binding:"omitempty,min=0,max=10000000"`
	Km       *int `json:"km" binding:"omitempty,min=0,max=10000000"`
}

func (h *TicketHandler) SaveReadings(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req readingsRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.svc.SaveReadings(c.Request.Context(), id, middleware.Actor(c), service.ReadingsInput{
		HoursIn:  req.HoursIn,
		HoursOut: req.HoursOut,
		Km:       req.Km,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type worklogRequest struct {
	Note    string `json:"note" binding:"required"`
	Minutes int    `json:"minutes" binding:"min=0"`
}

func (h *TicketHandler) AddWorklog(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req worklogRequest
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.svc.AddWorklog(c.Request.Context(), id, middleware.Actor(c), req.Note, req.Minutes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *TicketHandler) ListWorklogs(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	items, err := h.svc.ListWorklogs(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []model.Worklog{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
