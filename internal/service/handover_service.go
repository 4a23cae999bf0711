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
)

type handoverRepository interface {
	lifecycle.Store[models.HandoverStatus]
	Create(ctx context.Context, h *models.Handover) error
	FindByID(ctx context.Context, id string) (*models.Handover, error)
	HasPending(ctx context.Context, listingID, tradeOfferID *string) (bool, error)
	List(ctx context.Context, filter models.HandoverFilter) ([]models.Handover, int, error)
}

type tradeOfferLookup interface {
	FindByID(ctx context.Context, id string) (*models.TradeOffer, error)
}

// HandoverService lets parties request verification of a completed sale or
// trade and lets admins settle those requests.
type HandoverService struct {
	repo          handoverRepository
	listings      listingLookup
	offers        tradeOfferLookup
	listingEvents eventLog
	tradeEvents   eventLog
	tx            lifecycle.Transactor
	guard         *lifecycle.Guard[models.HandoverStatus]
	validator     *validator.Validate
	logger        *zap.Logger
	opts          options
}

// NewHandoverService constructs the service.
func NewHandoverService(repo handoverRepository, listings listingLookup, offers tradeOfferLookup, listingEvents, tradeEvents eventLog,
	tx lifecycle.Transactor, validate *validator.Validate, logger *zap.Logger, opts ...Option) *HandoverService {
	validate, logger = defaults(validate, logger)
	o := buildOptions(opts)
	return &HandoverService{
		repo:          repo,
		listings:      listings,
		offers:        offers,
		listingEvents: listingEvents,
		tradeEvents:   tradeEvents,
		tx:            tx,
		guard:         lifecycle.NewGuard(HandoverMachine, repo, tx, o.observer).WithClock(o.now),
		validator:     validate,
		logger:        logger,
		opts:          o,
	}
}

// Create opens a PENDING_VERIFICATION handover for a listing or a trade offer.
func (s *HandoverService) Create(ctx context.Context, req dto.CreateHandoverRequest, actor *models.JWTClaims) (*models.Handover, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "exactly one of listingId and tradeOfferId is required")
	}

	handover := &models.Handover{
		RequesterUserID: actor.UserID,
		Notes:           req.Notes,
		Status:          models.HandoverPending,
	}
	if req.HasListing() {
		listing, err := s.listings.FindByID(ctx, *req.ListingID)
		if err != nil {
			return nil, notFoundOr(err, "listing")
		}
		if !listing.IsOwnedBy(actor.UserID) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the seller may request a handover for a listing")
		}
		handover.ListingID = stringPtr(listing.ID)
	} else {
		offer, err := s.offers.FindByID(ctx, *req.TradeOfferID)
		if err != nil {
			return nil, notFoundOr(err, "trade offer")
		}
		if !offer.IsParty(actor.UserID) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only a party may request a handover for a trade offer")
		}
		handover.TradeOfferID = stringPtr(offer.ID)
	}

	pending, err := s.repo.HasPending(ctx, handover.ListingID, handover.TradeOfferID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check pending handovers")
	}
	if pending {
		return nil, errPendingHandover
	}

	now := s.opts.now()
	handover.CreatedAt = now
	handover.UpdatedAt = now
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, handover); err != nil {
			return err
		}
		return s.parentLog(handover).Append(ctx, &models.Event{
			EntityID:    handover.ParentID(),
			EventType:   models.EventHandoverRequested,
			ActorUserID: actor.UserID,
			Metadata:    metadata(map[string]interface{}{"handoverId": handover.ID}),
			CreatedAt:   now,
		})
	})
	if err != nil {
		switch {
		case repository.IsUniqueViolation(err):
			return nil, errPendingHandover
		case repository.IsCheckViolation(err):
			return nil, validationError(err, "exactly one of listingId and tradeOfferId is required")
		}
		return nil, appErrors.Internal(err, "failed to create handover")
	}
	return handover, nil
}

var errPendingHandover = appErrors.Clone(appErrors.ErrConflict, "a handover is already awaiting verification")

// Get returns a handover to its requester or an admin.
func (s *HandoverService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Handover, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	handover, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "handover")
	}
	if handover.RequesterUserID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requester may view this handover")
	}
	return handover, nil
}

// List returns handovers for admins, optionally narrowed by status.
func (s *HandoverService) List(ctx context.Context, query dto.StatusQuery, actor *models.JWTClaims) ([]models.Handover, *models.Pagination, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, nil, err
	}
	status := models.HandoverStatus(query.Status)
	if status != "" && !HandoverMachine.Valid(status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown handover status")
	}
	page := models.NormalizePage(query.Page, query.PageSize)
	items, total, err := s.repo.List(ctx, models.HandoverFilter{Status: status, Page: page})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list handovers")
	}
	return items, page.Pagination(total), nil
}

// Verify confirms a pending handover.
func (s *HandoverService) Verify(ctx context.Context, id string, actor *models.JWTClaims) (*models.Handover, error) {
	return s.settle(ctx, id, actor, models.HandoverVerified, "")
}

// Reject turns a pending handover down with a reason.
func (s *HandoverService) Reject(ctx context.Context, id string, req dto.RejectHandoverRequest, actor *models.JWTClaims) (*models.Handover, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "a rejection reason is required")
	}
	return s.settle(ctx, id, actor, models.HandoverRejected, req.Reason)
}

func (s *HandoverService) settle(ctx context.Context, id string, actor *models.JWTClaims, to models.HandoverStatus, reason string) (*models.Handover, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	handover, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "handover")
	}

	now := s.opts.now()
	set := []lifecycle.Assignment{
		lifecycle.Set("verified_by", actor.UserID),
		lifecycle.Set("verified_at", now),
	}
	eventType, meta := models.EventHandoverVerified, map[string]interface{}{"handoverId": id}
	if to == models.HandoverRejected {
		set = append(set, lifecycle.Set("rejection_reason", reason))
		eventType = models.EventHandoverRejected
		meta["reason"] = reason
	}

	err = s.guard.Apply(ctx, lifecycle.Transition[models.HandoverStatus]{
		ID:  id,
		To:  to,
		At:  now,
		Set: set,
		Record: func(ctx context.Context) error {
			return s.parentLog(handover).Append(ctx, &models.Event{
				EntityID:    handover.ParentID(),
				EventType:   eventType,
				ActorUserID: actor.UserID,
				Metadata:    metadata(meta),
				CreatedAt:   now,
			})
		},
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to update handover")
	}

	handover, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "handover")
	}
	s.opts.notify(ctx, models.Notification{
		UserID:     handover.RequesterUserID,
		Kind:       "handover." + strings.ToLower(string(to)),
		EntityType: models.EntityHandover,
		EntityID:   handover.ID,
		Payload:    metadata(map[string]interface{}{"status": handover.Status}),
		CreatedAt:  now,
	})
	return handover, nil
}

// parentLog picks the event log of the listing or trade offer a handover
// belongs to.
func (s *HandoverService) parentLog(h *models.Handover) eventLog {
	if h.ForListing() {
		return s.listingEvents
	}
	return s.tradeEvents
}
