package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
	"github.com/noah-isme/faculty-ledger-api/internal/service"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
	"github.com/noah-isme/faculty-ledger-api/pkg/response"
)

// CreditHandler wires HTTP endpoints to the credit record service.
type CreditHandler struct {
	credits *service.CreditService
}

// NewCreditHandler creates a new handler.
func NewCreditHandler(credits *service.CreditService) *CreditHandler {
	return &CreditHandler{credits: credits}
}

// Create godoc
// @Summary Create credit record
// @Description Submit a positive record (faculty) or record a remark (admin)
// @Tags Credits
// @Accept json
// @Produce json
// @Param payload body service.CreateCreditRequest true "Credit payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /credits [post]
// @Security BearerAuth
func (h *CreditHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid credit payload"))
		return
	}
	if req.FacultyID == "" && claims.Role == models.RoleFaculty {
		req.FacultyID = claims.UserID
	}

	result, err := h.credits.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	var meta map[string]interface{}
	if result.Warning != "" {
		meta = map[string]interface{}{"warning": result.Warning}
	}
	response.JSON(c, http.StatusCreated, result.Record, nil, meta)
}

// Decide godoc
// @Summary Decide a pending credit record
// @Description Approve or reject a pending record
// @Tags Credits
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.CreditDecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /credits/{id}/decision [post]
// @Security BearerAuth
func (h *CreditHandler) Decide(c *gin.Context) {
	var req service.CreditDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	record, err := h.credits.Decide(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, record, nil)
}

// Get godoc
// @Summary Get a credit record
// @Description Returns one record with its appeal, if any
// @Tags Credits
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /credits/{id} [get]
// @Security BearerAuth
func (h *CreditHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	record, err := h.credits.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role == models.RoleFaculty && record.FacultyID != claims.UserID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	response.JSON(c, http.StatusOK, record, nil)
}

// List godoc
// @Summary List credit records
// @Description Faculty members see their own records; admins may filter by faculty
// @Tags Credits
// @Produce json
// @Param faculty_id query string false "Faculty ID (admin only)"
// @Param type query string false "Comma separated types"
// @Param status query string false "Comma separated statuses"
// @Param academic_year query string false "Academic year, e.g. 2024-25"
// @Param date_from query string false "RFC3339 lower bound"
// @Param date_to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /credits [get]
// @Security BearerAuth
func (h *CreditHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req := service.CreditListRequest{
		FacultyID:    c.Query("faculty_id"),
		Types:        splitParam(c.Query("type")),
		Statuses:     splitParam(c.Query("status")),
		AcademicYear: c.Query("academic_year"),
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "page_size", 50),
	}
	if claims.Role == models.RoleFaculty {
		req.FacultyID = claims.UserID
	}
	if raw := c.Query("date_from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_from must be RFC3339"))
			return
		}
		req.DateFrom = &t
	}
	if raw := c.Query("date_to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_to must be RFC3339"))
			return
		}
		req.DateTo = &t
	}

	records, pagination, err := h.credits.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, records, pagination)
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
