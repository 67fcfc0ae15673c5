package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/faculty-ledger-api/internal/service"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
	"github.com/noah-isme/faculty-ledger-api/pkg/response"
)

// AppealHandler wires HTTP endpoints to the appeal service.
type AppealHandler struct {
	appeals *service.AppealService
}

// NewAppealHandler creates a new handler.
func NewAppealHandler(appeals *service.AppealService) *AppealHandler {
	return &AppealHandler{appeals: appeals}
}

// Create godoc
// @Summary File an appeal
// @Description File an appeal against a decided negative record
// @Tags Appeals
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.CreateAppealRequest true "Appeal payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /credits/{id}/appeal [post]
// @Security BearerAuth
func (h *AppealHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid appeal payload"))
		return
	}

	appeal, err := h.appeals.Create(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, appeal)
}

// Decide godoc
// @Summary Decide a pending appeal
// @Description Accept or reject a pending appeal
// @Tags Appeals
// @Accept json
// @Produce json
// @Param id path string true "Appeal ID"
// @Param payload body service.DecideAppealRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appeals/{id}/decision [post]
// @Security BearerAuth
func (h *AppealHandler) Decide(c *gin.Context) {
	var req service.DecideAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	result, err := h.appeals.Decide(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	var meta map[string]interface{}
	if result.Warning != "" {
		meta = map[string]interface{}{"warning": result.Warning}
	}
	response.JSON(c, http.StatusOK, result.Record, nil, meta)
}
