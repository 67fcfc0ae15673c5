package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
	appErrors "github.com/noah-isme/faculty-ledger-api/pkg/errors"
	"github.com/noah-isme/faculty-ledger-api/pkg/storage"
)

func newStatementService(t *testing.T, records []models.CreditRecord) *StatementService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewStatementService(&mockLedgerRepo{records: records}, store, signer, nil)
}

func TestGenerateCSVStatement(t *testing.T) {
	svc := newStatementService(t, sampleLedger())

	download, err := svc.Generate(context.Background(), "fac-1", StatementCSV)
	require.NoError(t, err)
	assert.Equal(t, "csv", download.Format)
	assert.Equal(t, 7, download.RecordCount)
	assert.Equal(t, -1, download.Balance, "statement balance matches the ledger aggregate")
	assert.NotEmpty(t, download.Token)

	file, name, err := svc.Open(download.Token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	assert.True(t, strings.HasSuffix(name, ".csv"))

	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Academic Year")
	assert.Contains(t, string(content), "Effective")
}

func TestGeneratePDFStatement(t *testing.T) {
	svc := newStatementService(t, sampleLedger())

	download, err := svc.Generate(context.Background(), "fac-1", StatementPDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf", download.Format)

	file, _, err := svc.Open(download.Token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	header := make([]byte, 4)
	_, err = file.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))
}

func TestGenerateRejectsUnknownFormat(t *testing.T) {
	svc := newStatementService(t, nil)

	_, err := svc.Generate(context.Background(), "fac-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestOpenRejectsTamperedToken(t *testing.T) {
	svc := newStatementService(t, sampleLedger())

	download, err := svc.Generate(context.Background(), "fac-1", StatementCSV)
	require.NoError(t, err)

	_, _, err = svc.Open(download.Token + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
