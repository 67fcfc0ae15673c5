package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
	"github.com/noah-isme/faculty-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
)

type mockAppealRepo struct {
	record       *models.CreditRecord
	appeal       *models.Appeal
	createErr    error
	decideErr    error
	created      *models.Appeal
	decidedWith  models.AppealStatus
	decidedNotes string
}

func (m *mockAppealRepo) FindByID(ctx context.Context, id string) (*models.CreditRecord, error) {
	if m.record == nil || m.record.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *m.record
	return &clone, nil
}

func (m *mockAppealRepo) CreateAppeal(ctx context.Context, appeal *models.Appeal, recordVersion int) error {
	if m.createErr != nil {
		return m.createErr
	}
	appeal.ID = "apl-1"
	m.created = appeal
	m.record.Status = models.CreditAppealed
	m.record.Appeal = appeal
	return nil
}

func (m *mockAppealRepo) FindAppealByID(ctx context.Context, id string) (*models.Appeal, error) {
	if m.appeal == nil || m.appeal.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *m.appeal
	return &clone, nil
}

func (m *mockAppealRepo) DecideAppeal(ctx context.Context, id string, decision models.AppealStatus, adminNotes string, decidedAt time.Time) error {
	if m.decideErr != nil {
		return m.decideErr
	}
	m.decidedWith = decision
	m.decidedNotes = adminNotes
	m.appeal.Status = decision
	m.appeal.DecidedAt = &decidedAt
	if m.record != nil {
		m.record.Appeal = m.appeal
	}
	return nil
}

func decidedNegativeRecord(decidedAgo time.Duration, now time.Time) *models.CreditRecord {
	return &models.CreditRecord{
		ID:        "rec-1",
		FacultyID: "fac-1",
		Type:      models.CreditNegative,
		Status:    models.CreditApproved,
		Points:    -5,
		Version:   2,
		CreatedAt: now.Add(-decidedAgo),
	}
}

func newAppealService(repo *mockAppealRepo, now time.Time) *AppealService {
	svc := NewAppealService(repo, nil, nil, AppealPolicyConfig{Window: 7 * 24 * time.Hour}, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func validAppealRequest() CreateAppealRequest {
	return CreateAppealRequest{Reason: "I attended the meeting", ProofRef: "doc://minutes-2025-09-01"}
}

func TestFileAppealSucceeds(t *testing.T) {
	now := time.Date(2025, time.September, 5, 10, 0, 0, 0, time.UTC)
	repo := &mockAppealRepo{record: decidedNegativeRecord(48*time.Hour, now)}
	svc := newAppealService(repo, now)

	appeal, err := svc.Create(context.Background(), facultyClaims("fac-1"), "rec-1", validAppealRequest())
	require.NoError(t, err)
	assert.Equal(t, models.AppealPending, appeal.Status)
	assert.Equal(t, "fac-1", appeal.By)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.CreditAppealed, repo.record.Status)
}

func TestFileAppealRecordNotFound(t *testing.T) {
	now := time.Now().UTC()
	svc := newAppealService(&mockAppealRepo{}, now)

	_, err := svc.Create(context.Background(), facultyClaims("fac-1"), "missing", validAppealRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFileAppealNotOwner(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockAppealRepo{record: decidedNegativeRecord(time.Hour, now)}
	svc := newAppealService(repo, now)

	_, err := svc.Create(context.Background(), facultyClaims("fac-2"), "rec-1", validAppealRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotOwner.Code, appErrors.FromError(err).Code)
}

func TestFileAppealWrongType(t *testing.T) {
	now := time.Now().UTC()
	record := decidedNegativeRecord(time.Hour, now)
	record.Type = models.CreditPositive
	svc := newAppealService(&mockAppealRepo{record: record}, now)

	_, err := svc.Create(context.Background(), facultyClaims("fac-1"), "rec-1", validAppealRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrWrongType.Code, appErrors.FromError(err).Code)
}

func TestFileAppealAgainstPendingRecord(t *testing.T) {
	now := time.Now().UTC()
	record := decidedNegativeRecord(time.Hour, now)
	record.Status = models.CreditPending
	svc := newAppealService(&mockAppealRepo{record: record}, now)

	_, err := svc.Create(context.Background(), facultyClaims("fac-1"), "rec-1", validAppealRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotDecided.Code, appErrors.FromError(err).Code)
}

func TestFileAppealTwice(t *testing.T) {
	now := time.Now().UTC()
	record := decidedNegativeRecord(time.Hour, now)
	record.Status = models.CreditAppealed
	record.Appeal = &models.Appeal{ID: "apl-1", Status: models.AppealPending}
	svc := newAppealService(&mockAppealRepo{record: record}, now)

	_, err := svc.Create(context.Background(), facultyClaims("fac-1"), "rec-1", validAppealRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyAppealed.Code, appErrors.FromError(err).Code)
}

func TestFileAppealWindowExpired(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockAppealRepo{record: decidedNegativeRecord(8*24*time.Hour, now)}
	svc := newAppealService(repo, now)

	_, err := svc.Create(context.Background(), facultyClaims("fac-1"), "rec-1", validAppealRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrWindowExpired.Code, appErrors.FromError(err).Code)
}

func TestFileAppealMissingReasonAndProof(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockAppealRepo{record: decidedNegativeRecord(time.Hour, now)}
	svc := newAppealService(repo, now)

	_, err := svc.Create(context.Background(), facultyClaims("fac-1"), "rec-1", CreateAppealRequest{ProofRef: "doc://x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingReason.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), facultyClaims("fac-1"), "rec-1", CreateAppealRequest{Reason: "because"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingProof.Code, appErrors.FromError(err).Code)
}

func TestFileAppealLosesRace(t *testing.T) {
	now := time.Now().UTC()
	repo := &mockAppealRepo{
		record:    decidedNegativeRecord(time.Hour, now),
		createErr: repository.ErrVersionConflict,
	}
	svc := newAppealService(repo, now)

	_, err := svc.Create(context.Background(), facultyClaims("fac-1"), "rec-1", validAppealRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyAppealed.Code, appErrors.FromError(err).Code)
}

func TestDecideAppealAccepted(t *testing.T) {
	now := time.Now().UTC()
	record := decidedNegativeRecord(time.Hour, now)
	record.Status = models.CreditAppealed
	appeal := &models.Appeal{ID: "apl-1", RecordID: "rec-1", By: "fac-1", Status: models.AppealPending}
	record.Appeal = appeal
	repo := &mockAppealRepo{record: record, appeal: appeal}
	invalidator := &mockInvalidator{}
	notifier := &mockNotifier{}
	svc := NewAppealService(repo, notifier, invalidator, AppealPolicyConfig{}, nil)
	svc.now = func() time.Time { return now }

	result, err := svc.Decide(context.Background(), "apl-1", DecideAppealRequest{Decision: "accepted", AdminNotes: "proof checks out"})
	require.NoError(t, err)
	assert.Equal(t, models.AppealAccepted, repo.decidedWith)
	assert.Equal(t, "proof checks out", repo.decidedNotes)
	assert.Equal(t, 0, result.Record.EffectivePoints(), "accepted appeal voids the remark")
	assert.Equal(t, []string{"fac-1"}, invalidator.invalidated)
	require.Len(t, notifier.targets, 1)
}

func TestDecideAppealRejectedRestoresPoints(t *testing.T) {
	now := time.Now().UTC()
	record := decidedNegativeRecord(time.Hour, now)
	record.Status = models.CreditAppealed
	appeal := &models.Appeal{ID: "apl-1", RecordID: "rec-1", By: "fac-1", Status: models.AppealPending}
	record.Appeal = appeal
	repo := &mockAppealRepo{record: record, appeal: appeal}
	svc := NewAppealService(repo, nil, nil, AppealPolicyConfig{}, nil)
	svc.now = func() time.Time { return now }

	result, err := svc.Decide(context.Background(), "apl-1", DecideAppealRequest{Decision: "rejected"})
	require.NoError(t, err)
	assert.Equal(t, -5, result.Record.EffectivePoints())
}

func TestDecideAppealAlreadyDecided(t *testing.T) {
	now := time.Now().UTC()
	appeal := &models.Appeal{ID: "apl-1", RecordID: "rec-1", Status: models.AppealAccepted}
	repo := &mockAppealRepo{appeal: appeal}
	svc := NewAppealService(repo, nil, nil, AppealPolicyConfig{}, nil)
	svc.now = func() time.Time { return now }

	_, err := svc.Decide(context.Background(), "apl-1", DecideAppealRequest{Decision: "rejected"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}
