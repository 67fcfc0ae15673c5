package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
	"github.com/noah-isme/faculty-ledger-api/pkg/export"
	"github.com/noah-isme/faculty-ledger-api/pkg/storage"
)

type statementRepository interface {
	ListByFaculty(ctx context.Context, facultyID string) ([]models.CreditRecord, error)
}

// StatementFormat enumerates supported statement renderings.
type StatementFormat string

const (
	StatementCSV StatementFormat = "csv"
	StatementPDF StatementFormat = "pdf"
)

// StatementDownload describes a generated statement and its signed link.
type StatementDownload struct {
	StatementID string    `json:"statement_id"`
	FacultyID   string    `json:"faculty_id"`
	Format      string    `json:"format"`
	RecordCount int       `json:"record_count"`
	Balance     int       `json:"balance"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	GeneratedAt time.Time `json:"generated_at"`
}

// StatementService renders a faculty member's full ledger as a downloadable
// file. Files land on local disk and are handed out through short-lived
// signed tokens rather than raw paths.
type StatementService struct {
	repo    statementRepository
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	now     func() time.Time
}

// NewStatementService constructs the service.
func NewStatementService(repo statementRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *StatementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementService{
		repo:    repo,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		storage: store,
		signer:  signer,
		logger:  logger,
		now:     time.Now,
	}
}

var statementHeaders = []string{"Date", "Academic Year", "Type", "Title", "Status", "Appeal", "Points", "Effective"}

// Generate renders and stores a statement, returning the signed download
// token. Effective points follow the same visibility rules as the ledger
// aggregates, so the file always matches what the balance endpoint reports.
func (s *StatementService) Generate(ctx context.Context, facultyID string, format StatementFormat) (*StatementDownload, error) {
	if facultyID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "facultyId is required")
	}
	if format != StatementCSV && format != StatementPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	records, err := s.repo.ListByFaculty(ctx, facultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty ledger")
	}

	dataset := export.Dataset{Headers: statementHeaders, Rows: make([]map[string]string, 0, len(records))}
	balance := 0
	for i := range records {
		record := &records[i]
		effective := record.EffectivePoints()
		balance += effective
		appealState := "-"
		if record.Appeal != nil {
			appealState = string(record.Appeal.Status)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":          record.CreatedAt.UTC().Format("2006-01-02"),
			"Academic Year": record.AcademicYear,
			"Type":          string(record.Type),
			"Title":         record.Title,
			"Status":        string(record.Status),
			"Appeal":        appealState,
			"Points":        strconv.Itoa(record.Points),
			"Effective":     strconv.Itoa(effective),
		})
	}

	var payload []byte
	switch format {
	case StatementPDF:
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("Ledger statement %s", facultyID))
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}

	now := s.now().UTC()
	statementID := uuid.NewString()
	filename := path.Join(facultyID, fmt.Sprintf("%s-%s.%s", now.Format("20060102T150405"), statementID[:8], format))
	if _, err := s.storage.Save(filename, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store statement")
	}

	token, expiresAt, err := s.signer.Generate(statementID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign statement link")
	}

	return &StatementDownload{
		StatementID: statementID,
		FacultyID:   facultyID,
		Format:      string(format),
		RecordCount: len(records),
		Balance:     balance,
		Token:       token,
		ExpiresAt:   expiresAt,
		GeneratedAt: now,
	}, nil
}

// Open validates a download token and returns the stored file. The caller
// owns closing the handle.
func (s *StatementService) Open(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired statement token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "statement no longer available")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open statement")
	}
	return file, path.Base(relPath), nil
}

// Cleanup removes statements older than the TTL. Wired as a periodic job.
func (s *StatementService) Cleanup(ttl time.Duration) {
	deleted, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("statement cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("statements cleaned up", zap.Int("count", len(deleted)))
	}
}
