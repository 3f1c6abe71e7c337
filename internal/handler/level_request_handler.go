package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/level-portal-api/internal/dto"
	"github.com/noah-isme/level-portal-api/internal/models"
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
	"github.com/noah-isme/level-portal-api/pkg/response"
)

type levelRequestService interface {
	Create(ctx context.Context, studentID string, req dto.CreateLevelRequest) (*models.LevelRequest, error)
	Approve(ctx context.Context, id string, req dto.DecisionRequest) (*models.LevelRequest, error)
	Reject(ctx context.Context, id string, req dto.DecisionRequest) (*models.LevelRequest, error)
	ListAll(ctx context.Context) ([]models.LevelRequestDetail, error)
	ListPending(ctx context.Context) ([]models.LevelRequestDetail, error)
	ListMine(ctx context.Context, studentID string) ([]models.LevelRequest, error)
	PendingCount(ctx context.Context) (int, bool, error)
}

// LevelRequestHandler serves the level-request workflow.
type LevelRequestHandler struct {
	service levelRequestService
}

// NewLevelRequestHandler constructs the handler.
func NewLevelRequestHandler(svc levelRequestService) *LevelRequestHandler {
	return &LevelRequestHandler{service: svc}
}

// Create godoc
// @Summary Request a higher level
// @Tags Level Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateLevelRequest true "Request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /level-requests [post]
func (h *LevelRequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid level request payload"))
		return
	}
	created, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created, "level request submitted")
}

// Mine godoc
// @Summary Own level requests
// @Tags Level Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /level-requests/my-requests [get]
func (h *LevelRequestHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.service.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// List godoc
// @Summary All level requests
// @Tags Level Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /level-requests [get]
func (h *LevelRequestHandler) List(c *gin.Context) {
	items, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Pending godoc
// @Summary Pending level requests
// @Tags Level Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /level-requests/pending [get]
func (h *LevelRequestHandler) Pending(c *gin.Context) {
	items, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// PendingCount godoc
// @Summary Pending request count
// @Tags Level Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /level-requests/pending/count [get]
func (h *LevelRequestHandler) PendingCount(c *gin.Context) {
	start := time.Now()
	count, hit, err := h.service.PendingCount(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, dto.PendingCountResponse{Count: count}, hit, start)
}

// Approve godoc
// @Summary Approve level request
// @Tags Level Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /level-requests/{id}/approve [post]
func (h *LevelRequestHandler) Approve(c *gin.Context) {
	req, ok := bindDecision(c)
	if !ok {
		return
	}
	decided, err := h.service.Approve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "level request approved", decided)
}

// Reject godoc
// @Summary Reject level request
// @Tags Level Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /level-requests/{id}/reject [post]
func (h *LevelRequestHandler) Reject(c *gin.Context) {
	req, ok := bindDecision(c)
	if !ok {
		return
	}
	decided, err := h.service.Reject(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "level request rejected", decided)
}

// bindDecision accepts an empty body as a decision without a response.
func bindDecision(c *gin.Context) (dto.DecisionRequest, bool) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, invalidPayload(err, "invalid decision payload"))
		return req, false
	}
	return req, true
}
