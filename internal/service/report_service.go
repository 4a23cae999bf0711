package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/lifecycle"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/internal/repository"
	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
	"github.com/noah-isme/card-market-api/pkg/ratelimit"
)

type reportRepository interface {
	lifecycle.Store[models.ReportStatus]
	Create(ctx context.Context, report *models.ListingReport) error
	FindByID(ctx context.Context, id string) (*models.ListingReport, error)
	List(ctx context.Context, filter models.ReportFilter) ([]models.ListingReport, int, error)
}

// ReportService files listing reports and lets admins triage them.
type ReportService struct {
	repo      reportRepository
	listings  listingLookup
	events    eventLog
	limiter   ratelimit.Limiter
	tx        lifecycle.Transactor
	guard     *lifecycle.Guard[models.ReportStatus]
	validator *validator.Validate
	logger    *zap.Logger
	opts      options
}

// NewReportService constructs the service. events is the listing event log.
// A nil limiter disables throttling.
func NewReportService(repo reportRepository, listings listingLookup, events eventLog, limiter ratelimit.Limiter,
	tx lifecycle.Transactor, validate *validator.Validate, logger *zap.Logger, opts ...Option) *ReportService {
	validate, logger = defaults(validate, logger)
	o := buildOptions(opts)
	return &ReportService{
		repo:      repo,
		listings:  listings,
		events:    events,
		limiter:   limiter,
		tx:        tx,
		guard:     lifecycle.NewGuard(ReportMachine, repo, tx, o.observer).WithClock(o.now),
		validator: validate,
		logger:    logger,
		opts:      o,
	}
}

// Create reports listingID on behalf of actor. One OPEN report per reporter
// and listing is allowed; the unique index decides races.
func (s *ReportService) Create(ctx context.Context, listingID string, req dto.CreateReportRequest, actor *models.JWTClaims) (*models.ListingReport, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid report payload")
	}
	if err := s.allow(ctx, actor.UserID); err != nil {
		return nil, err
	}

	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, notFoundOr(err, "listing")
	}
	if listing.IsOwnedBy(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot report your own listing")
	}
	if !listing.IsPublic() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "listing not found")
	}

	now := s.opts.now()
	report := &models.ListingReport{
		ListingID:      listing.ID,
		ReporterUserID: actor.UserID,
		Reason:         req.Reason,
		Details:        req.Details,
		Status:         models.ReportOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, report); err != nil {
			return err
		}
		return s.events.Append(ctx, &models.Event{
			EntityID:    listing.ID,
			EventType:   models.EventReported,
			ActorUserID: actor.UserID,
			Metadata:    metadata(map[string]interface{}{"reportId": report.ID, "reason": report.Reason}),
			CreatedAt:   now,
		})
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.ErrAlreadyReported
		}
		return nil, appErrors.Internal(err, "failed to create report")
	}
	return report, nil
}

// allow consults the per-actor limiter. A limiter failure lets the request
// through.
func (s *ReportService) allow(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "report:"+userID)
	if err != nil {
		s.logger.Warn("report rate limiter unavailable", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrRateLimited, "too many reports; try again later")
	}
	return nil
}

// List returns reports for admins, optionally narrowed by status.
func (s *ReportService) List(ctx context.Context, query dto.StatusQuery, actor *models.JWTClaims) ([]models.ListingReport, *models.Pagination, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, nil, err
	}
	status := models.ReportStatus(query.Status)
	if status != "" && !ReportMachine.Valid(status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown report status")
	}
	page := models.NormalizePage(query.Page, query.PageSize)
	items, total, err := s.repo.List(ctx, models.ReportFilter{Status: status, Page: page})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list reports")
	}
	return items, page.Pagination(total), nil
}

// Resolve closes a report as acted upon.
func (s *ReportService) Resolve(ctx context.Context, id string, req dto.ResolveReportRequest, actor *models.JWTClaims) (*models.ListingReport, error) {
	return s.close(ctx, id, req, actor, models.ReportResolved, models.EventReportResolved)
}

// Reject closes a report as unfounded.
func (s *ReportService) Reject(ctx context.Context, id string, req dto.ResolveReportRequest, actor *models.JWTClaims) (*models.ListingReport, error) {
	return s.close(ctx, id, req, actor, models.ReportRejected, models.EventReportRejected)
}

func (s *ReportService) close(ctx context.Context, id string, req dto.ResolveReportRequest, actor *models.JWTClaims,
	to models.ReportStatus, eventType models.EventType) (*models.ListingReport, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid resolution payload")
	}
	report, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "report")
	}

	now := s.opts.now()
	set := []lifecycle.Assignment{
		lifecycle.Set("resolved_by", actor.UserID),
		lifecycle.Set("resolved_at", now),
	}
	if req.Note != "" {
		set = append(set, lifecycle.Set("resolution_note", req.Note))
	}
	err = s.guard.Apply(ctx, lifecycle.Transition[models.ReportStatus]{
		ID:  id,
		To:  to,
		At:  now,
		Set: set,
		Record: func(ctx context.Context) error {
			return s.events.Append(ctx, &models.Event{
				EntityID:    report.ListingID,
				EventType:   eventType,
				ActorUserID: actor.UserID,
				Metadata:    metadata(map[string]interface{}{"reportId": id}),
				CreatedAt:   now,
			})
		},
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to update report")
	}

	report, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "report")
	}
	s.opts.notify(ctx, models.Notification{
		UserID:     report.ReporterUserID,
		Kind:       "report." + strings.ToLower(string(to)),
		EntityType: models.EntityReport,
		EntityID:   report.ID,
		Payload:    metadata(map[string]interface{}{"status": report.Status, "listingId": report.ListingID}),
		CreatedAt:  now,
	})
	return report, nil
}
