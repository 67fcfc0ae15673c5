package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
)

type ledgerRepository interface {
	ListByFaculty(ctx context.Context, facultyID string) ([]models.CreditRecord, error)
}

var academicYearToken = regexp.MustCompile(`^\d{4}-\d{2}$`)

// LedgerService computes balances, per-year stats and trend series from the
// full record set. Every figure is derived through the point-visibility
// rules at read time over a single repository snapshot; the redis cache in
// front is invalidated on each committed transition, so a cached aggregate
// can never survive a state change.
type LedgerService struct {
	repo   ledgerRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewLedgerService constructs the service.
func NewLedgerService(repo ledgerRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *LedgerService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{repo: repo, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// Balance returns the all-time sum of effective points. The boolean reports
// cache utilisation.
func (s *LedgerService) Balance(ctx context.Context, facultyID string) (*models.LedgerBalance, bool, error) {
	if facultyID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "facultyId is required")
	}
	cacheKey := fmt.Sprintf("ledger:%s:balance", facultyID)
	var cached models.LedgerBalance
	if hit := s.tryCache(ctx, cacheKey, &cached); hit {
		return &cached, true, nil
	}

	records, err := s.load(ctx, facultyID)
	if err != nil {
		return nil, false, err
	}
	balance := &models.LedgerBalance{
		FacultyID:   facultyID,
		RecordCount: len(records),
		ComputedAt:  s.now().UTC(),
	}
	for i := range records {
		balance.Balance += records[i].EffectivePoints()
	}
	s.persistCache(ctx, cacheKey, balance)
	return balance, false, nil
}

// YearStats restricts the sum to one academic year and adds cardinalities
// of the contributing records by type.
func (s *LedgerService) YearStats(ctx context.Context, facultyID, academicYear string) (*models.YearStats, bool, error) {
	if facultyID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "facultyId is required")
	}
	if !academicYearToken.MatchString(academicYear) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, `academic year must look like "2024-25"`)
	}
	cacheKey := fmt.Sprintf("ledger:%s:year:%s", facultyID, academicYear)
	var cached models.YearStats
	if hit := s.tryCache(ctx, cacheKey, &cached); hit {
		return &cached, true, nil
	}

	records, err := s.load(ctx, facultyID)
	if err != nil {
		return nil, false, err
	}
	stats := &models.YearStats{FacultyID: facultyID, AcademicYear: academicYear}
	for i := range records {
		record := &records[i]
		if record.AcademicYear != academicYear {
			continue
		}
		points := record.EffectivePoints()
		if points == 0 && !record.Counted() {
			continue
		}
		switch record.Type {
		case models.CreditPositive:
			stats.PositivePoints += points
			stats.TotalPositiveCount++
		case models.CreditNegative:
			stats.NegativePoints += points
			stats.TotalNegativeCount++
		}
	}
	stats.Net = stats.PositivePoints + stats.NegativePoints
	s.persistCache(ctx, cacheKey, stats)
	return stats, false, nil
}

// Series buckets effective points by record creation time truncated to the
// granularity boundary. Only periods holding at least one record are
// emitted, in chronological order; gap filling is a presentation concern.
func (s *LedgerService) Series(ctx context.Context, facultyID string, granularity models.SeriesGranularity) ([]models.SeriesPoint, bool, error) {
	if facultyID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "facultyId is required")
	}
	if !granularity.Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "granularity must be daily, weekly or monthly")
	}
	cacheKey := fmt.Sprintf("ledger:%s:series:%s", facultyID, granularity)
	var cached []models.SeriesPoint
	if hit := s.tryCache(ctx, cacheKey, &cached); hit {
		return cached, true, nil
	}

	records, err := s.load(ctx, facultyID)
	if err != nil {
		return nil, false, err
	}
	buckets := make(map[time.Time]*models.SeriesPoint)
	for i := range records {
		record := &records[i]
		period := truncatePeriod(record.CreatedAt.UTC(), granularity)
		point, ok := buckets[period]
		if !ok {
			point = &models.SeriesPoint{Period: period}
			buckets[period] = point
		}
		effective := record.EffectivePoints()
		switch record.Type {
		case models.CreditPositive:
			point.PositivePoints += effective
		case models.CreditNegative:
			point.NegativePoints += effective
		}
		point.Net += effective
	}
	series := make([]models.SeriesPoint, 0, len(buckets))
	for _, point := range buckets {
		series = append(series, *point)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Period.Before(series[j].Period) })
	s.persistCache(ctx, cacheKey, series)
	return series, false, nil
}

// InvalidateFaculty drops every cached aggregate for the faculty member.
// Called by the transition engine and appeal policy after each commit.
func (s *LedgerService) InvalidateFaculty(ctx context.Context, facultyID string) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	pattern := fmt.Sprintf("ledger:%s:*", facultyID)
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		s.logger.Warn("ledger cache invalidation failed", zap.String("faculty_id", facultyID), zap.Error(err))
	}
}

func (s *LedgerService) load(ctx context.Context, facultyID string) ([]models.CreditRecord, error) {
	records, err := s.repo.ListByFaculty(ctx, facultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty ledger")
	}
	return records, nil
}

func (s *LedgerService) tryCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil || !s.cache.Enabled() {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		return false
	}
	return hit
}

func (s *LedgerService) persistCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	_ = s.cache.Set(ctx, key, value, s.ttl)
}

// truncatePeriod maps a timestamp onto its bucket boundary: midnight for
// daily, the preceding Monday for weekly, the first of the month for
// monthly. All in UTC.
func truncatePeriod(t time.Time, granularity models.SeriesGranularity) time.Time {
	switch granularity {
	case models.GranularityWeekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case models.GranularityMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}
