package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
	"github.com/noah-isme/faculty-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
)

type mockCreditRepo struct {
	records      map[string]*models.CreditRecord
	createErr    error
	updateErr    error
	lastStatus   models.CreditStatus
	lastVersion  int
	createdCount int
}

func newMockCreditRepo() *mockCreditRepo {
	return &mockCreditRepo{records: make(map[string]*models.CreditRecord)}
}

func (m *mockCreditRepo) Create(ctx context.Context, record *models.CreditRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	if record.ID == "" {
		record.ID = "rec-1"
	}
	record.Version = 1
	m.records[record.ID] = record
	m.createdCount++
	return nil
}

func (m *mockCreditRepo) FindByID(ctx context.Context, id string) (*models.CreditRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *record
	return &clone, nil
}

func (m *mockCreditRepo) List(ctx context.Context, filter models.CreditRecordFilter) ([]models.CreditRecord, int, error) {
	out := make([]models.CreditRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockCreditRepo) UpdateStatus(ctx context.Context, id string, status models.CreditStatus, version int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	record, ok := m.records[id]
	if !ok || record.Version != version {
		return repository.ErrVersionConflict
	}
	record.Status = status
	record.Version++
	m.lastStatus = status
	m.lastVersion = version
	return nil
}

type mockNotifier struct {
	err      error
	subjects []string
	targets  []string
}

func (m *mockNotifier) Notify(ctx context.Context, facultyID, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.targets = append(m.targets, facultyID)
	m.subjects = append(m.subjects, subject)
	return nil
}

type mockInvalidator struct {
	invalidated []string
}

func (m *mockInvalidator) InvalidateFaculty(ctx context.Context, facultyID string) {
	m.invalidated = append(m.invalidated, facultyID)
}

func facultyClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleFaculty}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func TestCreateOwnPositiveRecord(t *testing.T) {
	repo := newMockCreditRepo()
	notifier := &mockNotifier{}
	svc := NewCreditService(repo, notifier, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, time.September, 10, 8, 0, 0, 0, time.UTC) }

	result, err := svc.Create(context.Background(), facultyClaims("fac-1"), CreateCreditRequest{
		FacultyID: "fac-1",
		Type:      "positive",
		Title:     "Published research paper",
		Points:    15,
	})
	require.NoError(t, err)

	assert.Equal(t, models.CreditPending, result.Record.Status)
	assert.Equal(t, "2025-26", result.Record.AcademicYear)
	assert.Empty(t, result.Warning)
	assert.Empty(t, notifier.targets, "positive records do not notify")
}

func TestCreatePositiveForAnotherFaculty(t *testing.T) {
	svc := NewCreditService(newMockCreditRepo(), nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), facultyClaims("fac-1"), CreateCreditRequest{
		FacultyID: "fac-2",
		Type:      "positive",
		Title:     "Guest lecture",
		Points:    5,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotOwner.Code, appErrors.FromError(err).Code)
}

func TestCreateNegativeRequiresAdmin(t *testing.T) {
	svc := NewCreditService(newMockCreditRepo(), nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), facultyClaims("fac-1"), CreateCreditRequest{
		FacultyID: "fac-1",
		Type:      "negative",
		Title:     "Missed committee meeting",
		Notes:     "unexcused",
		Points:    -5,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateNegativeRequiresRationale(t *testing.T) {
	svc := NewCreditService(newMockCreditRepo(), nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), adminClaims(), CreateCreditRequest{
		FacultyID: "fac-1",
		Type:      "negative",
		Title:     "Missed committee meeting",
		Points:    -5,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateNegativeNotifiesFaculty(t *testing.T) {
	repo := newMockCreditRepo()
	notifier := &mockNotifier{}
	svc := NewCreditService(repo, notifier, nil, nil, nil)

	result, err := svc.Create(context.Background(), adminClaims(), CreateCreditRequest{
		FacultyID: "fac-1",
		Type:      "negative",
		Title:     "Missed committee meeting",
		Notes:     "unexcused absence on 2025-09-01",
		Points:    -5,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	require.Len(t, notifier.targets, 1)
	assert.Equal(t, "fac-1", notifier.targets[0])
}

func TestCreateNegativeNotificationFailureIsWarning(t *testing.T) {
	repo := newMockCreditRepo()
	notifier := &mockNotifier{err: errors.New("smtp down")}
	svc := NewCreditService(repo, notifier, nil, nil, nil)

	result, err := svc.Create(context.Background(), adminClaims(), CreateCreditRequest{
		FacultyID: "fac-1",
		Type:      "negative",
		Title:     "Late grade submission",
		Notes:     "grades submitted two weeks late",
		Points:    -3,
	})
	require.NoError(t, err, "delivery failure never blocks the write")
	assert.NotEmpty(t, result.Warning)
	assert.Equal(t, 1, repo.createdCount)
}

func TestDecideApprovesPendingRecord(t *testing.T) {
	repo := newMockCreditRepo()
	repo.records["rec-1"] = &models.CreditRecord{
		ID: "rec-1", FacultyID: "fac-1", Type: models.CreditPositive,
		Status: models.CreditPending, Points: 10, Version: 1,
	}
	invalidator := &mockInvalidator{}
	svc := NewCreditService(repo, nil, invalidator, nil, nil)

	record, err := svc.Decide(context.Background(), "rec-1", CreditDecisionRequest{Decision: "approved"})
	require.NoError(t, err)
	assert.Equal(t, models.CreditApproved, record.Status)
	assert.Equal(t, 2, record.Version)
	assert.Equal(t, []string{"fac-1"}, invalidator.invalidated)
}

func TestDecideRejectsNonPendingRecord(t *testing.T) {
	repo := newMockCreditRepo()
	repo.records["rec-1"] = &models.CreditRecord{
		ID: "rec-1", FacultyID: "fac-1", Type: models.CreditPositive,
		Status: models.CreditApproved, Points: 10, Version: 2,
	}
	svc := NewCreditService(repo, nil, nil, nil, nil)

	_, err := svc.Decide(context.Background(), "rec-1", CreditDecisionRequest{Decision: "rejected"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestDecideVersionConflict(t *testing.T) {
	repo := newMockCreditRepo()
	repo.records["rec-1"] = &models.CreditRecord{
		ID: "rec-1", FacultyID: "fac-1", Type: models.CreditPositive,
		Status: models.CreditPending, Points: 10, Version: 1,
	}
	repo.updateErr = repository.ErrVersionConflict
	svc := NewCreditService(repo, nil, nil, nil, nil)

	_, err := svc.Decide(context.Background(), "rec-1", CreditDecisionRequest{Decision: "approved"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestDecideUnknownRecord(t *testing.T) {
	svc := NewCreditService(newMockCreditRepo(), nil, nil, nil, nil)

	_, err := svc.Decide(context.Background(), "missing", CreditDecisionRequest{Decision: "approved"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
