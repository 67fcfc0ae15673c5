package models

import (
	"fmt"
	"time"
)

// academicYearStartMonth is the month the institutional year rolls over.
const academicYearStartMonth = time.June

// AcademicYear returns the "YYYY-YY" token for the institutional year the
// given date falls in. The year starts in June: June 2024 through May 2025
// is "2024-25". Record creation and year filtering must share this rule,
// otherwise yearStats would silently drop records near the boundary.
func AcademicYear(date time.Time) string {
	year := date.Year()
	if date.Month() < academicYearStartMonth {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}
