package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
)

// Recomputes every faculty balance straight from the database and reports
// rows whose stored state violates the ledger invariants. Intended to run
// against a live database after migrations or bulk imports.

type mismatch struct {
	FacultyID string
	Reason    string
	RecordID  string
}

func main() {
	var (
		dsn     string
		timeout time.Duration
	)

	flag.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	if dsn == "" {
		log.Fatal("provide -dsn or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close() //nolint:errcheck

	records, err := loadRecords(ctx, db)
	if err != nil {
		log.Fatalf("load records: %v", err)
	}

	balances := make(map[string]int)
	var problems []mismatch
	for i := range records {
		record := &records[i]
		problems = append(problems, checkInvariants(record)...)
		balances[record.FacultyID] += record.EffectivePoints()
	}

	printReport(balances, problems)
	if len(problems) > 0 {
		os.Exit(1)
	}
}

func loadRecords(ctx context.Context, db *sqlx.DB) ([]models.CreditRecord, error) {
	var records []models.CreditRecord
	query := `SELECT id, faculty_id, type, title, notes, points, status, academic_year, proof_ref, version, created_at, updated_at
FROM credit_records ORDER BY faculty_id, created_at`
	if err := db.SelectContext(ctx, &records, query); err != nil {
		return nil, err
	}

	var appeals []models.Appeal
	if err := db.SelectContext(ctx, &appeals,
		`SELECT id, record_id, filed_by, reason, proof_ref, status, admin_notes, created_at, decided_at FROM appeals`); err != nil {
		return nil, err
	}
	byRecord := make(map[string]*models.Appeal, len(appeals))
	for i := range appeals {
		byRecord[appeals[i].RecordID] = &appeals[i]
	}
	for i := range records {
		records[i].Appeal = byRecord[records[i].ID]
	}
	return records, nil
}

func checkInvariants(record *models.CreditRecord) []mismatch {
	var out []mismatch
	add := func(reason string) {
		out = append(out, mismatch{FacultyID: record.FacultyID, RecordID: record.ID, Reason: reason})
	}

	switch record.Type {
	case models.CreditPositive:
		if record.Points < 0 {
			add("positive record with negative points")
		}
		if record.Appeal != nil {
			add("positive record carries an appeal")
		}
	case models.CreditNegative:
		if record.Points > 0 {
			add("negative record with positive points")
		}
	default:
		add(fmt.Sprintf("unknown type %q", record.Type))
	}

	if record.Status == models.CreditAppealed && record.Appeal == nil {
		add("status appealed but no appeal row")
	}
	if record.Appeal != nil && record.Status != models.CreditAppealed {
		add(fmt.Sprintf("appeal row exists but record status is %q", record.Status))
	}
	if record.Appeal != nil {
		appeal := record.Appeal
		if appeal.Status != models.AppealPending && appeal.DecidedAt == nil {
			add("decided appeal without decided_at")
		}
		if appeal.Status == models.AppealPending && appeal.DecidedAt != nil {
			add("pending appeal with decided_at set")
		}
	}
	if record.Version < 1 {
		add("version below 1")
	}
	return out
}

func printReport(balances map[string]int, problems []mismatch) {
	fmt.Println("Ledger Audit Report")
	fmt.Println("===================")
	for facultyID, balance := range balances {
		fmt.Printf("  %s: balance %d\n", facultyID, balance)
	}
	if len(problems) == 0 {
		fmt.Println("No invariant violations found.")
		return
	}
	fmt.Printf("%d invariant violation(s):\n", len(problems))
	for _, p := range problems {
		fmt.Printf("  [%s] record %s: %s\n", p.FacultyID, p.RecordID, p.Reason)
	}
}
