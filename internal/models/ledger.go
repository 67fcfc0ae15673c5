package models

import "time"

// SeriesGranularity selects the bucketing interval for trend series.
type SeriesGranularity string

const (
	GranularityDaily   SeriesGranularity = "daily"
	GranularityWeekly  SeriesGranularity = "weekly"
	GranularityMonthly SeriesGranularity = "monthly"
)

// Valid reports whether the granularity is one of the supported intervals.
func (g SeriesGranularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	default:
		return false
	}
}

// LedgerBalance is the running total of effective points for one faculty
// member across all years.
type LedgerBalance struct {
	FacultyID   string    `json:"faculty_id"`
	Balance     int       `json:"balance"`
	RecordCount int       `json:"record_count"`
	ComputedAt  time.Time `json:"computed_at"`
}

// YearStats summarises counted records within one academic year.
type YearStats struct {
	FacultyID          string `json:"faculty_id"`
	AcademicYear       string `json:"academic_year"`
	PositivePoints     int    `json:"positive_points"`
	NegativePoints     int    `json:"negative_points"`
	Net                int    `json:"net"`
	TotalPositiveCount int    `json:"total_positive_count"`
	TotalNegativeCount int    `json:"total_negative_count"`
}

// SeriesPoint is one bucket of the ledger trend series. Period is the
// truncated boundary timestamp of the bucket in UTC.
type SeriesPoint struct {
	Period         time.Time `json:"period"`
	PositivePoints int       `json:"positive_points"`
	NegativePoints int       `json:"negative_points"`
	Net            int       `json:"net"`
}
