package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountedPositiveRecords(t *testing.T) {
	record := CreditRecord{Type: CreditPositive, Points: 10}

	record.Status = CreditPending
	assert.False(t, record.Counted())
	assert.Equal(t, 0, record.EffectivePoints())

	record.Status = CreditApproved
	assert.True(t, record.Counted())
	assert.Equal(t, 10, record.EffectivePoints())

	record.Status = CreditRejected
	assert.False(t, record.Counted())
	assert.Equal(t, 0, record.EffectivePoints())
}

func TestCountedNegativeWithoutAppeal(t *testing.T) {
	record := CreditRecord{Type: CreditNegative, Points: -5}

	record.Status = CreditPending
	assert.False(t, record.Counted())

	record.Status = CreditApproved
	assert.True(t, record.Counted())
	assert.Equal(t, -5, record.EffectivePoints())

	record.Status = CreditRejected
	assert.True(t, record.Counted())
	assert.Equal(t, -5, record.EffectivePoints())
}

func TestCountedNegativeWithAppeal(t *testing.T) {
	record := CreditRecord{
		Type:   CreditNegative,
		Points: -8,
		Status: CreditAppealed,
		Appeal: &Appeal{Status: AppealPending},
	}

	assert.False(t, record.Counted(), "undecided appeal suspends the points")
	assert.Equal(t, 0, record.EffectivePoints())

	record.Appeal.Status = AppealAccepted
	assert.False(t, record.Counted(), "accepted appeal voids the remark")
	assert.Equal(t, 0, record.EffectivePoints())

	record.Appeal.Status = AppealRejected
	assert.True(t, record.Counted(), "rejected appeal restores the remark")
	assert.Equal(t, -8, record.EffectivePoints())
}

func TestCountedAppealOverridesRecordStatus(t *testing.T) {
	// Once an appeal exists, only its outcome matters.
	record := CreditRecord{
		Type:   CreditNegative,
		Points: -3,
		Status: CreditAppealed,
		Appeal: &Appeal{Status: AppealAccepted},
	}
	assert.Equal(t, 0, record.EffectivePoints())
}

func TestAcademicYearRollover(t *testing.T) {
	cases := []struct {
		date time.Time
		want string
	}{
		{time.Date(2025, time.May, 31, 23, 59, 0, 0, time.UTC), "2024-25"},
		{time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), "2025-26"},
		{time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC), "2024-25"},
		{time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC), "2025-26"},
		{time.Date(1999, time.July, 1, 0, 0, 0, 0, time.UTC), "1999-00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AcademicYear(tc.date), "date %s", tc.date)
	}
}
