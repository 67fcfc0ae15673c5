package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
)

type mockLedgerRepo struct {
	records []models.CreditRecord
	calls   int
}

func (m *mockLedgerRepo) ListByFaculty(ctx context.Context, facultyID string) ([]models.CreditRecord, error) {
	m.calls++
	return m.records, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func sampleLedger() []models.CreditRecord {
	return []models.CreditRecord{
		{ID: "r1", Type: models.CreditPositive, Points: 10, Status: models.CreditApproved, AcademicYear: "2025-26", CreatedAt: day(2025, time.September, 1)},
		{ID: "r2", Type: models.CreditPositive, Points: 20, Status: models.CreditPending, AcademicYear: "2025-26", CreatedAt: day(2025, time.September, 2)},
		{ID: "r3", Type: models.CreditPositive, Points: 7, Status: models.CreditRejected, AcademicYear: "2025-26", CreatedAt: day(2025, time.September, 3)},
		{ID: "r4", Type: models.CreditNegative, Points: -5, Status: models.CreditApproved, AcademicYear: "2025-26", CreatedAt: day(2025, time.October, 6)},
		{ID: "r5", Type: models.CreditNegative, Points: -4, Status: models.CreditRejected, AcademicYear: "2025-26", CreatedAt: day(2025, time.October, 7)},
		{
			ID: "r6", Type: models.CreditNegative, Points: -8, Status: models.CreditAppealed,
			AcademicYear: "2025-26", CreatedAt: day(2025, time.October, 8),
			Appeal: &models.Appeal{Status: models.AppealAccepted},
		},
		{
			ID: "r7", Type: models.CreditNegative, Points: -2, Status: models.CreditAppealed,
			AcademicYear: "2024-25", CreatedAt: day(2025, time.March, 3),
			Appeal: &models.Appeal{Status: models.AppealRejected},
		},
	}
}

func TestBalanceAppliesVisibilityRules(t *testing.T) {
	repo := &mockLedgerRepo{records: sampleLedger()}
	svc := NewLedgerService(repo, nil, time.Minute, nil)

	balance, hit, err := svc.Balance(context.Background(), "fac-1")
	require.NoError(t, err)
	assert.False(t, hit)

	// 10 (approved) - 5 (approved remark) - 4 (rejected remark still counts)
	// - 2 (appeal rejected). Pending, rejected positives and the accepted
	// appeal contribute nothing.
	assert.Equal(t, -1, balance.Balance)
	assert.Equal(t, 7, balance.RecordCount)
}

func TestYearStatsFiltersByAcademicYear(t *testing.T) {
	repo := &mockLedgerRepo{records: sampleLedger()}
	svc := NewLedgerService(repo, nil, time.Minute, nil)

	stats, _, err := svc.YearStats(context.Background(), "fac-1", "2025-26")
	require.NoError(t, err)
	assert.Equal(t, 10, stats.PositivePoints)
	assert.Equal(t, -9, stats.NegativePoints)
	assert.Equal(t, 1, stats.Net)
	assert.Equal(t, 1, stats.TotalPositiveCount)
	assert.Equal(t, 2, stats.TotalNegativeCount)

	prior, _, err := svc.YearStats(context.Background(), "fac-1", "2024-25")
	require.NoError(t, err)
	assert.Equal(t, -2, prior.Net)
}

func TestYearStatsRejectsMalformedYear(t *testing.T) {
	svc := NewLedgerService(&mockLedgerRepo{}, nil, time.Minute, nil)

	_, _, err := svc.YearStats(context.Background(), "fac-1", "2025")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSeriesMonthlyBuckets(t *testing.T) {
	repo := &mockLedgerRepo{records: sampleLedger()}
	svc := NewLedgerService(repo, nil, time.Minute, nil)

	series, _, err := svc.Series(context.Background(), "fac-1", models.GranularityMonthly)
	require.NoError(t, err)
	require.Len(t, series, 3)

	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), series[0].Period)
	assert.Equal(t, -2, series[0].Net)

	assert.Equal(t, time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC), series[1].Period)
	assert.Equal(t, 10, series[1].Net)

	assert.Equal(t, time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC), series[2].Period)
	assert.Equal(t, -9, series[2].Net)
}

func TestSeriesWeeklyBucketsStartMonday(t *testing.T) {
	records := []models.CreditRecord{
		// Wed Oct 8 and Sun Oct 12 share the week of Mon Oct 6.
		{ID: "r1", Type: models.CreditPositive, Points: 3, Status: models.CreditApproved, CreatedAt: day(2025, time.October, 8)},
		{ID: "r2", Type: models.CreditPositive, Points: 4, Status: models.CreditApproved, CreatedAt: day(2025, time.October, 12)},
		{ID: "r3", Type: models.CreditPositive, Points: 5, Status: models.CreditApproved, CreatedAt: day(2025, time.October, 13)},
	}
	svc := NewLedgerService(&mockLedgerRepo{records: records}, nil, time.Minute, nil)

	series, _, err := svc.Series(context.Background(), "fac-1", models.GranularityWeekly)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, time.Date(2025, time.October, 6, 0, 0, 0, 0, time.UTC), series[0].Period)
	assert.Equal(t, 7, series[0].Net)
	assert.Equal(t, time.Date(2025, time.October, 13, 0, 0, 0, 0, time.UTC), series[1].Period)
	assert.Equal(t, 5, series[1].Net)
}

func TestSeriesRejectsUnknownGranularity(t *testing.T) {
	svc := NewLedgerService(&mockLedgerRepo{}, nil, time.Minute, nil)

	_, _, err := svc.Series(context.Background(), "fac-1", "hourly")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBalanceEmptyLedger(t *testing.T) {
	svc := NewLedgerService(&mockLedgerRepo{}, nil, time.Minute, nil)

	balance, _, err := svc.Balance(context.Background(), "fac-1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance.Balance)
	assert.Equal(t, 0, balance.RecordCount)
}
