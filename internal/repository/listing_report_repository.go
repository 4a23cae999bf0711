package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/card-market-api/internal/lifecycle"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/database"
)

const reportColumns = `id, listing_id, reporter_user_id, reason, details, status, resolved_by, resolved_at,
	resolution_note, created_at, updated_at`

var reportTransitionColumns = columns("resolved_by", "resolved_at", "resolution_note")

// ListingReportRepository persists listing reports.
type ListingReportRepository struct {
	db *sqlx.DB
}

// NewListingReportRepository constructs the repository.
func NewListingReportRepository(db *sqlx.DB) *ListingReportRepository {
	return &ListingReportRepository{db: db}
}

// Create inserts a report. A second OPEN report by the same reporter on the
// same listing fails with a unique violation.
func (r *ListingReportRepository) Create(ctx context.Context, report *models.ListingReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.ReportOpen
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	report.UpdatedAt = report.CreatedAt

	const query = `INSERT INTO listing_reports
	(id, listing_id, reporter_user_id, reason, details, status, created_at, updated_at)
	VALUES (:id, :listing_id, :reporter_user_id, :reason, :details, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, report); err != nil {
		return fmt.Errorf("create listing report: %w", err)
	}
	return nil
}

// FindByID fetches a report by id.
func (r *ListingReportRepository) FindByID(ctx context.Context, id string) (*models.ListingReport, error) {
	var report models.ListingReport
	query := `SELECT ` + reportColumns + ` FROM listing_reports WHERE id = $1`
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// List returns reports, oldest first.
func (r *ListingReportRepository) List(ctx context.Context, filter models.ReportFilter) ([]models.ListingReport, int, error) {
	var where whereBuilder
	if filter.Status != "" {
		where.add("status = $%d", string(filter.Status))
	}

	conn := database.Conn(ctx, r.db)
	var total int
	if err := sqlx.GetContext(ctx, conn, &total, `SELECT COUNT(*) FROM listing_reports`+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count listing reports: %w", err)
	}

	limit, args := where.page(filter.Page)
	query := `SELECT ` + reportColumns + ` FROM listing_reports` + where.String() + ` ORDER BY created_at, id` + limit
	reports := make([]models.ListingReport, 0)
	if err := sqlx.SelectContext(ctx, conn, &reports, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list listing reports: %w", err)
	}
	return reports, total, nil
}

// UpdateStatus performs a conditional status write.
func (r *ListingReportRepository) UpdateStatus(ctx context.Context, change lifecycle.Change[models.ReportStatus]) (int64, error) {
	query, args, err := buildStatusUpdate("listing_reports", reportTransitionColumns, change)
	if err != nil {
		return 0, err
	}
	return execAffected(ctx, database.Conn(ctx, r.db), query, args...)
}

// StatusOf returns the stored status.
func (r *ListingReportRepository) StatusOf(ctx context.Context, id string) (models.ReportStatus, error) {
	var status models.ReportStatus
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &status, `SELECT status FROM listing_reports WHERE id = $1`, id); err != nil {
		return "", err
	}
	return status, nil
}
