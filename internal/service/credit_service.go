package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
	"github.com/noah-isme/faculty-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
)

type creditRepository interface {
	Create(ctx context.Context, record *models.CreditRecord) error
	FindByID(ctx context.Context, id string) (*models.CreditRecord, error)
	List(ctx context.Context, filter models.CreditRecordFilter) ([]models.CreditRecord, int, error)
	UpdateStatus(ctx context.Context, id string, status models.CreditStatus, version int) error
}

type ledgerNotifier interface {
	Notify(ctx context.Context, facultyID, subject, body string) error
}

type ledgerCacheInvalidator interface {
	InvalidateFaculty(ctx context.Context, facultyID string)
}

// CreditService owns credit record creation and the review state machine.
// Only pending records accept an admin decision; approved, rejected and
// appealed are reached exactly once and every invalid request fails before
// anything is written.
type CreditService struct {
	repo      creditRepository
	notifier  ledgerNotifier
	cache     ledgerCacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCreditService constructs the service.
func NewCreditService(repo creditRepository, notifier ledgerNotifier, cache ledgerCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *CreditService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditService{repo: repo, notifier: notifier, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// CreateCreditRequest describes a new ledger entry. Faculty members submit
// positive records for their own work; administrators record remarks against
// a faculty member.
type CreateCreditRequest struct {
	FacultyID string  `json:"faculty_id" validate:"required"`
	Type      string  `json:"type" validate:"required,oneof=positive negative"`
	Title     string  `json:"title" validate:"required"`
	Notes     string  `json:"notes"`
	Points    int     `json:"points"`
	ProofRef  *string `json:"proof_ref,omitempty"`
}

// CreditDecisionRequest carries the admin decision on a pending record.
type CreditDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
}

// CreditListRequest describes filters for listing ledger records.
type CreditListRequest struct {
	FacultyID    string     `json:"faculty_id"`
	Types        []string   `json:"types"`
	Statuses     []string   `json:"statuses"`
	AcademicYear string     `json:"academic_year"`
	DateFrom     *time.Time `json:"date_from"`
	DateTo       *time.Time `json:"date_to"`
	Page         int        `json:"page"`
	PageSize     int        `json:"page_size"`
}

// CreateResult pairs the stored record with a delivery warning, if any.
type CreateResult struct {
	Record  *models.CreditRecord `json:"record"`
	Warning string               `json:"warning,omitempty"`
}

// Create validates and stores a new credit record in pending state. Negative
// records require a rationale and trigger a best-effort notification to the
// faculty member concerned.
func (s *CreditService) Create(ctx context.Context, actor *models.JWTClaims, req CreateCreditRequest) (*CreateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit payload")
	}

	creditType := models.CreditType(req.Type)
	switch creditType {
	case models.CreditPositive:
		if actor.Role == models.RoleFaculty && actor.UserID != req.FacultyID {
			return nil, appErrors.Clone(appErrors.ErrNotOwner, "faculty members submit work on their own behalf")
		}
		if req.Points < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "positive records carry a non-negative point magnitude")
		}
	case models.CreditNegative:
		if actor.Role != models.RoleAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators record remarks")
		}
		if req.Points > 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "negative records carry a non-positive point magnitude")
		}
		if req.Notes == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "remarks require a rationale in notes")
		}
	}

	now := s.now().UTC()
	record := &models.CreditRecord{
		FacultyID:    req.FacultyID,
		Type:         creditType,
		Title:        req.Title,
		Notes:        req.Notes,
		Points:       req.Points,
		Status:       models.CreditPending,
		AcademicYear: models.AcademicYear(now),
		ProofRef:     req.ProofRef,
		CreatedAt:    now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create credit record")
	}

	result := &CreateResult{Record: record}
	if creditType == models.CreditNegative && s.notifier != nil {
		subject := fmt.Sprintf("Remark recorded: %s", record.Title)
		body := fmt.Sprintf("A remark worth %d points was recorded against your ledger. Rationale: %s", record.Points, record.Notes)
		if err := s.notifier.Notify(ctx, record.FacultyID, subject, body); err != nil {
			result.Warning = appErrors.Clone(appErrors.ErrDependency, "notification could not be queued").Message
		}
	}
	return result, nil
}

// Decide applies an admin decision to a pending record. The transition is
// guarded twice: the in-memory status check gives a precise error, and the
// repository's version check rejects the loser of a decision race.
func (s *CreditService) Decide(ctx context.Context, recordID string, req CreditDecisionRequest) (*models.CreditRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	record, err := s.findRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.CreditPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot decide a record in status %q", record.Status))
	}

	target := models.CreditStatus(req.Decision)
	if err := s.repo.UpdateStatus(ctx, record.ID, target, record.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "record was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply decision")
	}

	record.Status = target
	record.Version++
	record.UpdatedAt = s.now().UTC()
	s.invalidateLedger(ctx, record.FacultyID)
	return record, nil
}

// Get returns a single record with its appeal.
func (s *CreditService) Get(ctx context.Context, recordID string) (*models.CreditRecord, error) {
	return s.findRecord(ctx, recordID)
}

// List returns ledger records with pagination.
func (s *CreditService) List(ctx context.Context, req CreditListRequest) ([]models.CreditRecord, *models.Pagination, error) {
	filter := models.CreditRecordFilter{
		FacultyID:    req.FacultyID,
		AcademicYear: req.AcademicYear,
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	for _, t := range req.Types {
		filter.Types = append(filter.Types, models.CreditType(t))
	}
	for _, st := range req.Statuses {
		filter.Statuses = append(filter.Statuses, models.CreditStatus(st))
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list credit records")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return records, pagination, nil
}

func (s *CreditService) findRecord(ctx context.Context, recordID string) (*models.CreditRecord, error) {
	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "credit record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credit record")
	}
	return record, nil
}

func (s *CreditService) invalidateLedger(ctx context.Context, facultyID string) {
	if s.cache != nil {
		s.cache.InvalidateFaculty(ctx, facultyID)
	}
}
