package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
)

// ErrVersionConflict signals that a concurrent writer already advanced the
// record. Callers retry or surface a conflict to the client.
var ErrVersionConflict = errors.New("credit record version conflict")

const creditColumns = "id, faculty_id, type, title, notes, points, status, academic_year, proof_ref, version, created_at, updated_at"
const appealColumns = "id, record_id, filed_by, reason, proof_ref, status, admin_notes, created_at, decided_at"

// CreditRepository manages persistence for credit records and their appeals.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository constructs a new repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// Create inserts a new credit record with version 1.
func (r *CreditRepository) Create(ctx context.Context, record *models.CreditRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.Version = 1
	query := `INSERT INTO credit_records (id, faculty_id, type, title, notes, points, status, academic_year, proof_ref, version, created_at, updated_at)
VALUES (:id, :faculty_id, :type, :title, :notes, :points, :status, :academic_year, :proof_ref, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create credit record: %w", err)
	}
	return nil
}

// FindByID loads a record together with its appeal when present.
func (r *CreditRepository) FindByID(ctx context.Context, id string) (*models.CreditRecord, error) {
	var record models.CreditRecord
	query := fmt.Sprintf("SELECT %s FROM credit_records WHERE id = $1 LIMIT 1", creditColumns)
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, fmt.Errorf("find credit record: %w", err)
	}
	appeal, err := r.findAppealByRecord(ctx, r.db, record.ID)
	if err != nil {
		return nil, err
	}
	record.Appeal = appeal
	return &record, nil
}

// List returns records per provided filter with their appeals attached.
func (r *CreditRepository) List(ctx context.Context, filter models.CreditRecordFilter) ([]models.CreditRecord, int, error) {
	base := "FROM credit_records"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.FacultyID != "" {
		where = append(where, fmt.Sprintf("faculty_id = $%d", len(args)+1))
		args = append(args, filter.FacultyID)
	}
	if filter.AcademicYear != "" {
		where = append(where, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if len(filter.Types) > 0 {
		values := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			values[i] = string(t)
		}
		where = append(where, fmt.Sprintf("type = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(values))
	}
	if len(filter.Statuses) > 0 {
		values := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			values[i] = string(s)
		}
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(values))
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d", creditColumns, base, whereClause, size, offset)
	var records []models.CreditRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list credit records: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count credit records: %w", err)
	}
	if err := r.attachAppeals(ctx, r.db, records); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListByFaculty returns every record for one faculty member in a single
// repeatable-read transaction so aggregation never observes a half-applied
// transition between the record scan and the appeal scan.
func (r *CreditRepository) ListByFaculty(ctx context.Context, facultyID string) ([]models.CreditRecord, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin ledger snapshot: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var records []models.CreditRecord
	query := fmt.Sprintf("SELECT %s FROM credit_records WHERE faculty_id = $1 ORDER BY created_at ASC", creditColumns)
	if err := tx.SelectContext(ctx, &records, query, facultyID); err != nil {
		return nil, fmt.Errorf("list faculty records: %w", err)
	}
	if err := r.attachAppeals(ctx, tx, records); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ledger snapshot: %w", err)
	}
	return records, nil
}

// UpdateStatus applies a status change guarded by an optimistic version
// check. Two concurrent decisions on the same record cannot both pass: the
// slower one sees zero affected rows and gets ErrVersionConflict.
func (r *CreditRepository) UpdateStatus(ctx context.Context, id string, status models.CreditStatus, version int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credit_records SET status = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4`,
		string(status), time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("update credit status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credit status: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// CreateAppeal inserts the appeal and flips the record to appealed in one
// transaction, again guarded by the record version.
func (r *CreditRepository) CreateAppeal(ctx context.Context, appeal *models.Appeal, recordVersion int) error {
	if appeal.ID == "" {
		appeal.ID = uuid.NewString()
	}
	if appeal.CreatedAt.IsZero() {
		appeal.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create appeal: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `INSERT INTO appeals (id, record_id, filed_by, reason, proof_ref, status, admin_notes, created_at)
VALUES (:id, :record_id, :filed_by, :reason, :proof_ref, :status, :admin_notes, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, appeal); err != nil {
		return fmt.Errorf("create appeal: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE credit_records SET status = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4`,
		string(models.CreditAppealed), time.Now().UTC(), appeal.RecordID, recordVersion)
	if err != nil {
		return fmt.Errorf("mark record appealed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark record appealed: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create appeal: %w", err)
	}
	return nil
}

// FindAppealByID loads a single appeal.
func (r *CreditRepository) FindAppealByID(ctx context.Context, id string) (*models.Appeal, error) {
	var appeal models.Appeal
	query := fmt.Sprintf("SELECT %s FROM appeals WHERE id = $1 LIMIT 1", appealColumns)
	if err := r.db.GetContext(ctx, &appeal, query, id); err != nil {
		return nil, fmt.Errorf("find appeal: %w", err)
	}
	return &appeal, nil
}

// DecideAppeal records the admin outcome. The status guard in the WHERE
// clause makes the operation race-safe: a decide racing another decide (or
// arriving after one) affects zero rows.
func (r *CreditRepository) DecideAppeal(ctx context.Context, id string, decision models.AppealStatus, adminNotes string, decidedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE appeals SET status = $1, admin_notes = $2, decided_at = $3 WHERE id = $4 AND status = $5`,
		string(decision), adminNotes, decidedAt, id, string(models.AppealPending))
	if err != nil {
		return fmt.Errorf("decide appeal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decide appeal: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

type queryer interface {
	sqlx.QueryerContext
}

func (r *CreditRepository) findAppealByRecord(ctx context.Context, q queryer, recordID string) (*models.Appeal, error) {
	var appeal models.Appeal
	query := fmt.Sprintf("SELECT %s FROM appeals WHERE record_id = $1 LIMIT 1", appealColumns)
	if err := sqlx.GetContext(ctx, q, &appeal, query, recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find appeal for record: %w", err)
	}
	return &appeal, nil
}

func (r *CreditRepository) attachAppeals(ctx context.Context, q queryer, records []models.CreditRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	index := make(map[string]int, len(records))
	for i := range records {
		ids[i] = records[i].ID
		index[records[i].ID] = i
	}
	var appeals []models.Appeal
	query := fmt.Sprintf("SELECT %s FROM appeals WHERE record_id = ANY($1)", appealColumns)
	if err := sqlx.SelectContext(ctx, q, &appeals, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("attach appeals: %w", err)
	}
	for i := range appeals {
		if pos, ok := index[appeals[i].RecordID]; ok {
			records[pos].Appeal = &appeals[i]
		}
	}
	return nil
}
