package models

import "time"

// CreditType distinguishes good-work submissions from remarks.
type CreditType string

const (
	CreditPositive CreditType = "positive"
	CreditNegative CreditType = "negative"
)

// CreditStatus is the review state of a credit record.
type CreditStatus string

const (
	CreditPending  CreditStatus = "pending"
	CreditApproved CreditStatus = "approved"
	CreditRejected CreditStatus = "rejected"
	CreditAppealed CreditStatus = "appealed"
)

// AppealStatus is the review state of an appeal on a negative record.
type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealAccepted AppealStatus = "accepted"
	AppealRejected AppealStatus = "rejected"
)

// CreditRecord is a single entry in a faculty member's credit ledger.
// Points carry the signed magnitude assigned at creation and never change;
// the contribution actually counted is derived via EffectivePoints.
type CreditRecord struct {
	ID           string       `db:"id" json:"id"`
	FacultyID    string       `db:"faculty_id" json:"faculty_id"`
	Type         CreditType   `db:"type" json:"type"`
	Title        string       `db:"title" json:"title"`
	Notes        string       `db:"notes" json:"notes"`
	Points       int          `db:"points" json:"points"`
	Status       CreditStatus `db:"status" json:"status"`
	AcademicYear string       `db:"academic_year" json:"academic_year"`
	ProofRef     *string      `db:"proof_ref" json:"proof_ref,omitempty"`
	Version      int          `db:"version" json:"-"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
	Appeal       *Appeal      `db:"-" json:"appeal,omitempty"`
}

// Appeal is the single challenge a faculty member may raise against a
// decided negative record.
type Appeal struct {
	ID         string       `db:"id" json:"id"`
	RecordID   string       `db:"record_id" json:"record_id"`
	By         string       `db:"filed_by" json:"filed_by"`
	Reason     string       `db:"reason" json:"reason"`
	ProofRef   string       `db:"proof_ref" json:"proof_ref"`
	Status     AppealStatus `db:"status" json:"status"`
	AdminNotes string       `db:"admin_notes" json:"admin_notes,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	DecidedAt  *time.Time   `db:"decided_at" json:"decided_at,omitempty"`
}

// Counted reports whether the record's points currently count toward the
// faculty balance. The rules form the point-visibility contract:
//
//   - positive records count only once approved;
//   - negative records with no appeal deduct once decided, approved or
//     rejected alike (the deduction stands unless overturned);
//   - negative records with an appeal deduct only when the appeal itself
//     was rejected. A pending appeal suspends the deduction, an accepted
//     appeal reverses it permanently.
//
// The outcome is derived on every read and never stored: an appeal decision
// flips it without touching Points or Status.
func (r *CreditRecord) Counted() bool {
	if r.Type == CreditPositive {
		return r.Status == CreditApproved
	}
	if r.Appeal != nil {
		return r.Appeal.Status == AppealRejected
	}
	return r.Status == CreditApproved || r.Status == CreditRejected
}

// EffectivePoints returns the record's current contribution to the balance:
// the stored signed magnitude when Counted, zero otherwise.
func (r *CreditRecord) EffectivePoints() int {
	if r.Counted() {
		return r.Points
	}
	return 0
}

// CreditRecordFilter allows listing ledger records.
type CreditRecordFilter struct {
	FacultyID    string
	Types        []CreditType
	Statuses     []CreditStatus
	AcademicYear string
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
}
