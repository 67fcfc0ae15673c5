package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/faculty-ledger-api/internal/middleware"
	"github.com/noah-isme/faculty-ledger-api/internal/models"
	"github.com/noah-isme/faculty-ledger-api/internal/service"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
	"github.com/noah-isme/faculty-ledger-api/pkg/response"
)

// LedgerHandler wires HTTP endpoints to the aggregation and statement
// services. Faculty members may only read their own ledger.
type LedgerHandler struct {
	ledger     *service.LedgerService
	statements *service.StatementService
}

// NewLedgerHandler creates a new handler.
func NewLedgerHandler(ledger *service.LedgerService, statements *service.StatementService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, statements: statements}
}

func (h *LedgerHandler) authorizeFaculty(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	facultyID := c.Param("facultyId")
	if claims.Role == models.RoleFaculty && claims.UserID != facultyID {
		response.Error(c, appErrors.ErrForbidden)
		return "", false
	}
	return facultyID, true
}

// Balance godoc
// @Summary Ledger balance
// @Description All-time sum of effective points for a faculty member
// @Tags Ledger
// @Produce json
// @Param facultyId path string true "Faculty ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /ledger/{facultyId}/balance [get]
// @Security BearerAuth
func (h *LedgerHandler) Balance(c *gin.Context) {
	facultyID, ok := h.authorizeFaculty(c)
	if !ok {
		return
	}

	balance, hit, err := h.ledger.Balance(c.Request.Context(), facultyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)

	response.JSON(c, http.StatusOK, balance, nil, middleware.ExtractMeta(c))
}

// YearStats godoc
// @Summary Per-year ledger statistics
// @Description Points and record counts for one academic year
// @Tags Ledger
// @Produce json
// @Param facultyId path string true "Faculty ID"
// @Param year path string true "Academic year, e.g. 2024-25"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /ledger/{facultyId}/years/{year} [get]
// @Security BearerAuth
func (h *LedgerHandler) YearStats(c *gin.Context) {
	facultyID, ok := h.authorizeFaculty(c)
	if !ok {
		return
	}

	stats, hit, err := h.ledger.YearStats(c.Request.Context(), facultyID, c.Param("year"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)

	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Series godoc
// @Summary Ledger trend series
// @Description Effective points bucketed by period
// @Tags Ledger
// @Produce json
// @Param facultyId path string true "Faculty ID"
// @Param granularity query string false "daily, weekly or monthly (default monthly)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /ledger/{facultyId}/series [get]
// @Security BearerAuth
func (h *LedgerHandler) Series(c *gin.Context) {
	facultyID, ok := h.authorizeFaculty(c)
	if !ok {
		return
	}

	granularity := models.SeriesGranularity(c.DefaultQuery("granularity", string(models.GranularityMonthly)))
	series, hit, err := h.ledger.Series(c.Request.Context(), facultyID, granularity)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)

	response.JSON(c, http.StatusOK, series, nil, middleware.ExtractMeta(c))
}

// Statement godoc
// @Summary Generate a ledger statement
// @Description Renders the full ledger as CSV or PDF and returns a signed download token
// @Tags Ledger
// @Produce json
// @Param facultyId path string true "Faculty ID"
// @Param format query string false "csv or pdf (default csv)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /ledger/{facultyId}/statement [get]
// @Security BearerAuth
func (h *LedgerHandler) Statement(c *gin.Context) {
	facultyID, ok := h.authorizeFaculty(c)
	if !ok {
		return
	}

	format := service.StatementFormat(c.DefaultQuery("format", string(service.StatementCSV)))
	download, err := h.statements.Generate(c.Request.Context(), facultyID, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, download)
}

// Download godoc
// @Summary Download a statement
// @Description Streams a previously generated statement; authenticated by the signed token
// @Tags Ledger
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /statements/download [get]
func (h *LedgerHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, name, err := h.statements.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat statement"))
		return
	}

	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, map[string]string{
		"Content-Disposition": `attachment; filename="` + name + `"`,
	})
}
