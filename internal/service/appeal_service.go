package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
	"github.com/noah-isme/faculty-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
)

type appealRepository interface {
	FindByID(ctx context.Context, id string) (*models.CreditRecord, error)
	CreateAppeal(ctx context.Context, appeal *models.Appeal, recordVersion int) error
	FindAppealByID(ctx context.Context, id string) (*models.Appeal, error)
	DecideAppeal(ctx context.Context, id string, decision models.AppealStatus, adminNotes string, decidedAt time.Time) error
}

// AppealPolicyConfig carries the filing constraints.
type AppealPolicyConfig struct {
	Window     time.Duration
	MaxAppeals int
}

// AppealService enforces the appeal policy: who may file, against what,
// when, and how the admin outcome folds back into the record's effective
// state. All preconditions are checked before anything is written.
type AppealService struct {
	repo     appealRepository
	notifier ledgerNotifier
	cache    ledgerCacheInvalidator
	logger   *zap.Logger
	now      func() time.Time
	cfg      AppealPolicyConfig
}

// NewAppealService constructs the service.
func NewAppealService(repo appealRepository, notifier ledgerNotifier, cache ledgerCacheInvalidator, cfg AppealPolicyConfig, logger *zap.Logger) *AppealService {
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	if cfg.MaxAppeals <= 0 {
		cfg.MaxAppeals = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppealService{repo: repo, notifier: notifier, cache: cache, cfg: cfg, logger: logger, now: time.Now}
}

// CreateAppealRequest is the faculty filing payload.
type CreateAppealRequest struct {
	Reason   string `json:"reason"`
	ProofRef string `json:"proof_ref"`
}

// DecideAppealRequest carries the admin outcome for a pending appeal.
type DecideAppealRequest struct {
	Decision   string `json:"decision" validate:"required,oneof=accepted rejected"`
	AdminNotes string `json:"admin_notes"`
}

// DecideResult pairs the updated record with a notification warning, if any.
type DecideResult struct {
	Record  *models.CreditRecord `json:"record"`
	Warning string               `json:"warning,omitempty"`
}

// Create files an appeal against a decided negative record. Each failed
// precondition maps to its own error so the portal can tell the member
// exactly why filing was refused.
func (s *AppealService) Create(ctx context.Context, actor *models.JWTClaims, recordID string, req CreateAppealRequest) (*models.Appeal, error) {
	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "credit record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credit record")
	}

	if record.FacultyID != actor.UserID {
		return nil, appErrors.ErrNotOwner
	}
	if record.Type != models.CreditNegative {
		return nil, appErrors.ErrWrongType
	}
	if record.Appeal != nil || record.Status == models.CreditAppealed {
		return nil, appErrors.ErrAlreadyAppealed
	}
	if record.Status == models.CreditPending {
		return nil, appErrors.ErrNotDecided
	}
	if s.now().UTC().Sub(record.CreatedAt) > s.cfg.Window {
		return nil, appErrors.ErrWindowExpired
	}
	if req.Reason == "" {
		return nil, appErrors.ErrMissingReason
	}
	if req.ProofRef == "" {
		return nil, appErrors.ErrMissingProof
	}

	appeal := &models.Appeal{
		RecordID:  record.ID,
		By:        actor.UserID,
		Reason:    req.Reason,
		ProofRef:  req.ProofRef,
		Status:    models.AppealPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateAppeal(ctx, appeal, record.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyAppealed, "record was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to file appeal")
	}

	s.invalidateLedger(ctx, record.FacultyID)
	return appeal, nil
}

// Decide resolves a pending appeal. The record keeps the appealed status in
// storage; the appeal outcome is what point visibility derives from. A
// notification is fired after the decision commits and its failure is
// surfaced as a warning, never as a rollback.
func (s *AppealService) Decide(ctx context.Context, appealID string, req DecideAppealRequest) (*DecideResult, error) {
	decision := models.AppealStatus(req.Decision)
	if decision != models.AppealAccepted && decision != models.AppealRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be accepted or rejected")
	}

	appeal, err := s.repo.FindAppealByID(ctx, appealID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appeal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appeal")
	}
	if appeal.Status != models.AppealPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("appeal already decided as %q", appeal.Status))
	}

	decidedAt := s.now().UTC()
	if err := s.repo.DecideAppeal(ctx, appeal.ID, decision, req.AdminNotes, decidedAt); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "appeal was decided concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decide appeal")
	}

	record, err := s.repo.FindByID(ctx, appeal.RecordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload record after decision")
	}

	s.invalidateLedger(ctx, record.FacultyID)

	result := &DecideResult{Record: record}
	if s.notifier != nil {
		subject := fmt.Sprintf("Appeal %s: %s", decision, record.Title)
		body := fmt.Sprintf("Your appeal on %q was %s.", record.Title, decision)
		if req.AdminNotes != "" {
			body = fmt.Sprintf("%s Notes: %s", body, req.AdminNotes)
		}
		if err := s.notifier.Notify(ctx, record.FacultyID, subject, body); err != nil {
			result.Warning = appErrors.Clone(appErrors.ErrDependency, "notification could not be queued").Message
		}
	}
	return result, nil
}

func (s *AppealService) invalidateLedger(ctx context.Context, facultyID string) {
	if s.cache != nil {
		s.cache.InvalidateFaculty(ctx, facultyID)
	}
}
