package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/workshop-service/internal/auth"
	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/psds-microservice/workshop-service/internal/middleware"
	"github.com/psds-microservice/workshop-service/internal/model"
	"github.com/psds-microservice/workshop-service/internal/service"
)

type AuthHandler struct {
	svc *service.AccountService
}

func NewAuthHandler(svc *service.AccountService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type loginRequest struct {
	Role     string `json:"role" binding:"omitempty,oneof=admin mechanic guide"`
	Slug     string `json:"slug" binding:"max=64"`
	Email    string `json:"email" binding:"max=128"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.svc.Login(c.Request.Context(), service.LoginInput{
		Role:     model.Role(req.Role),
		Slug:     req.Slug,
		Email:    req.Email,
		Password: req.Password,
	})
	if errors.Is(err, errs.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     errs.ErrInvalidCredentials.Error(),
			"login_url": auth.LoginPath(model.Role(req.Role)),
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Roster: список для выбора имени на экране входа.
func (h *AuthHandler) Roster(c *gin.Context) {
	items, err := h.svc.Roster(c.Request.Context(), model.Role(c.Query("role")))
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []service.RosterEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *AuthHandler) Me(c *gin.Context) {
	p, err := h.svc.Profile(c.Request.Context(), middleware.Actor(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type createAccountRequest struct {
	Role     string `json:"role" binding:"required,oneof=admin mechanic guide"`
	Slug     string `json:"slug" binding:"max=64"`
	Name     string `json:"name" binding:"required,max=128"`
	Password string `json:"password" binding:"required,min=4"`
}

func (h *AuthHandler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.svc.Create(c.Request.Context(), service.CreateAccountInput{
		Role:     model.Role(req.Role),
		Slug:     req.Slug,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}
