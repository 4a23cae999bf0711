package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/lifecycle"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/internal/repository"
	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
)

type tradeOfferRepository interface {
	lifecycle.Store[models.TradeOfferStatus]
	Create(ctx context.Context, offer *models.TradeOffer) error
	FindByID(ctx context.Context, id string) (*models.TradeOffer, error)
	List(ctx context.Context, filter models.TradeOfferFilter) ([]models.TradeOffer, int, error)
	ListLapsedIDs(ctx context.Context, userID string, now time.Time) ([]string, error)
}

type listingLookup interface {
	FindByID(ctx context.Context, id string) (*models.Listing, error)
}

// TradeOfferConfig bounds offer expiry.
type TradeOfferConfig struct {
	DefaultExpiryHours int
	MaxExpiryHours     int
	ExpiryConcurrency  int
}

// TradeOfferService implements the trade offer lifecycle. Offers past their
// deadline are expired lazily by the reads that observe them.
type TradeOfferService struct {
	repo      tradeOfferRepository
	listings  listingLookup
	events    eventLog
	tx        lifecycle.Transactor
	guard     *lifecycle.Guard[models.TradeOfferStatus]
	config    TradeOfferConfig
	validator *validator.Validate
	logger    *zap.Logger
	opts      options
}

// NewTradeOfferService constructs the service.
func NewTradeOfferService(repo tradeOfferRepository, listings listingLookup, events eventLog, tx lifecycle.Transactor,
	config TradeOfferConfig, validate *validator.Validate, logger *zap.Logger, opts ...Option) *TradeOfferService {
	validate, logger = defaults(validate, logger)
	if config.DefaultExpiryHours <= 0 {
		config.DefaultExpiryHours = 72
	}
	if config.MaxExpiryHours <= 0 {
		config.MaxExpiryHours = 168
	}
	if config.ExpiryConcurrency <= 0 {
		config.ExpiryConcurrency = 4
	}
	o := buildOptions(opts)
	return &TradeOfferService{
		repo:      repo,
		listings:  listings,
		events:    events,
		tx:        tx,
		guard:     lifecycle.NewGuard(TradeOfferMachine, repo, tx, o.observer).WithClock(o.now),
		config:    config,
		validator: validate,
		logger:    logger,
		opts:      o,
	}
}

// Create opens a PENDING offer from actor to the receiver.
func (s *TradeOfferService) Create(ctx context.Context, req dto.CreateTradeOfferRequest, actor *models.JWTClaims) (*models.TradeOffer, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid trade offer payload")
	}
	if req.ReceiverUserID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot send a trade offer to yourself")
	}
	hours := s.config.DefaultExpiryHours
	if req.ExpiresInHours != nil {
		hours = *req.ExpiresInHours
	}
	if hours < 1 || hours > s.config.MaxExpiryHours {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiresInHours is out of range")
	}
	if req.ListingID != nil {
		if err := s.checkListing(ctx, *req.ListingID, req.ReceiverUserID); err != nil {
			return nil, err
		}
	}

	offered, err := itemsJSON(req.OfferedItems)
	if err != nil {
		return nil, validationError(err, "invalid offered items")
	}
	requested, err := itemsJSON(req.RequestedItems)
	if err != nil {
		return nil, validationError(err, "invalid requested items")
	}

	now := s.opts.now()
	offer := &models.TradeOffer{
		CreatorUserID:  actor.UserID,
		ReceiverUserID: req.ReceiverUserID,
		ListingID:      req.ListingID,
		Message:        req.Message,
		OfferedItems:   offered,
		RequestedItems: requested,
		Status:         models.TradePending,
		ExpiresAt:      now.Add(time.Duration(hours) * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, offer); err != nil {
			return err
		}
		return s.events.Append(ctx, &models.Event{
			EntityID:    offer.ID,
			EventType:   models.EventCreated,
			ActorUserID: actor.UserID,
			CreatedAt:   now,
		})
	})
	if err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, validationError(err, "unknown receiver or listing")
		}
		return nil, appErrors.Internal(err, "failed to create trade offer")
	}

	s.opts.notify(ctx, tradeNotification(offer, offer.ReceiverUserID, "trade_offer.created", now))
	return offer, nil
}

func (s *TradeOfferService) checkListing(ctx context.Context, listingID, receiverID string) error {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return notFoundOr(err, "listing")
	}
	if listing.Status != models.ListingPublished {
		if !listing.IsPublic() {
			return appErrors.Clone(appErrors.ErrNotFound, "listing not found")
		}
		return appErrors.Clone(appErrors.ErrConflict, "listing is "+string(listing.Status))
	}
	if listing.UserID != receiverID {
		return appErrors.Clone(appErrors.ErrConflict, "listing does not belong to the receiver")
	}
	return nil
}

// Get returns an offer to one of its parties, expiring it first if its
// deadline has passed.
func (s *TradeOfferService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.TradeOffer, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	offer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "trade offer")
	}
	if !offer.IsParty(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a party to this trade offer")
	}
	if !offer.IsLapsed(s.opts.now()) {
		return offer, nil
	}
	if err := s.expire(ctx, id); err != nil {
		return nil, err
	}
	offer, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "trade offer")
	}
	return offer, nil
}

// List returns actor's offers after expiring the lapsed ones.
func (s *TradeOfferService) List(ctx context.Context, query dto.TradeOfferQuery, actor *models.JWTClaims) ([]models.TradeOffer, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	box := models.TradeBox(query.Box)
	switch box {
	case "":
		box = models.TradeBoxAll
	case models.TradeBoxSent, models.TradeBoxReceived, models.TradeBoxAll:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "box must be sent, received or all")
	}
	var statuses []models.TradeOfferStatus
	if query.Status != "" {
		status := models.TradeOfferStatus(query.Status)
		if !TradeOfferMachine.Valid(status) {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown trade offer status")
		}
		statuses = []models.TradeOfferStatus{status}
	}

	if err := s.ExpireLapsed(ctx, actor.UserID); err != nil {
		return nil, nil, err
	}

	page := models.NormalizePage(query.Page, query.PageSize)
	items, total, err := s.repo.List(ctx, models.TradeOfferFilter{
		UserID:   actor.UserID,
		Box:      box,
		Statuses: statuses,
		Page:     page,
	})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list trade offers")
	}
	return items, page.Pagination(total), nil
}

// ExpireLapsed moves every pending offer of userID past its deadline to
// EXPIRED, a bounded number at a time.
func (s *TradeOfferService) ExpireLapsed(ctx context.Context, userID string) error {
	ids, err := s.repo.ListLapsedIDs(ctx, userID, s.opts.now())
	if err != nil {
		return appErrors.Internal(err, "failed to scan expired trade offers")
	}
	if len(ids) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.ExpiryConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return s.expire(gctx, id)
		})
	}
	return g.Wait()
}

// expire applies PENDING -> EXPIRED as the system actor. Losing the race to a
// concurrent expiry is not an error and writes no second event.
func (s *TradeOfferService) expire(ctx context.Context, id string) error {
	now := s.opts.now()
	err := s.guard.Apply(ctx, lifecycle.Transition[models.TradeOfferStatus]{
		ID: id,
		To: models.TradeExpired,
		At: now,
		Record: func(ctx context.Context) error {
			exists, err := s.events.Exists(ctx, id, models.EventExpired)
			if err != nil || exists {
				return err
			}
			return s.events.Append(ctx, &models.Event{
				EntityID:    id,
				EventType:   models.EventExpired,
				ActorUserID: models.SystemActor,
				CreatedAt:   now,
			})
		},
	})
	if err == nil || appErrors.HasCode(err, appErrors.ErrConflict) {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Internal(err, "failed to expire trade offer")
}

// Accept is the receiver taking the offer.
func (s *TradeOfferService) Accept(ctx context.Context, id string, actor *models.JWTClaims) (*models.TradeOffer, error) {
	return s.respond(ctx, id, actor, models.TradeAccepted)
}

// Reject is the receiver declining the offer.
func (s *TradeOfferService) Reject(ctx context.Context, id string, actor *models.JWTClaims) (*models.TradeOffer, error) {
	return s.respond(ctx, id, actor, models.TradeRejected)
}

// Cancel is the creator withdrawing the offer.
func (s *TradeOfferService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.TradeOffer, error) {
	return s.respond(ctx, id, actor, models.TradeCancelled)
}

var tradeResponseEvents = map[models.TradeOfferStatus]models.EventType{
	models.TradeAccepted:  models.EventAccepted,
	models.TradeRejected:  models.EventRejected,
	models.TradeCancelled: models.EventCancelled,
}

func (s *TradeOfferService) respond(ctx context.Context, id string, actor *models.JWTClaims, to models.TradeOfferStatus) (*models.TradeOffer, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	offer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "trade offer")
	}
	if !offer.IsParty(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a party to this trade offer")
	}

	// A party touching a lapsed offer settles it, whatever the action.
	now := s.opts.now()
	lapsed := offer.IsLapsed(now)
	if lapsed {
		if err := s.expire(ctx, id); err != nil {
			return nil, err
		}
	}
	switch to {
	case models.TradeCancelled:
		if offer.CreatorUserID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the creator may cancel a trade offer")
		}
	default:
		if offer.ReceiverUserID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the receiver may respond to a trade offer")
		}
	}
	if lapsed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "trade offer has expired")
	}

	err = s.guard.Apply(ctx, lifecycle.Transition[models.TradeOfferStatus]{
		ID:  id,
		To:  to,
		At:  now,
		Set: []lifecycle.Assignment{lifecycle.Set("responded_at", now)},
		Record: func(ctx context.Context) error {
			return s.events.Append(ctx, &models.Event{
				EntityID:    id,
				EventType:   tradeResponseEvents[to],
				ActorUserID: actor.UserID,
				CreatedAt:   now,
			})
		},
	})
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrConflict) {
			s.expireIfLapsed(ctx, id)
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to update trade offer")
	}

	offer, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "trade offer")
	}
	kind := "trade_offer." + strings.ToLower(string(to))
	s.opts.notify(ctx, tradeNotification(offer, offer.CounterParty(actor.UserID), kind, now))
	return offer, nil
}

// expireIfLapsed persists the expiry a conflicting write just observed.
func (s *TradeOfferService) expireIfLapsed(ctx context.Context, id string) {
	status, err := s.repo.StatusOf(ctx, id)
	if err != nil || status != models.TradeExpired {
		return
	}
	if err := s.expire(ctx, id); err != nil {
		s.logger.Warn("lazy trade offer expiry failed", zap.String("trade_offer_id", id), zap.Error(err))
	}
}

// Events returns the audit log of an offer to one of its parties.
func (s *TradeOfferService) Events(ctx context.Context, id string, actor *models.JWTClaims) ([]models.Event, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	offer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "trade offer")
	}
	if !offer.IsParty(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a party to this trade offer")
	}
	if offer.IsLapsed(s.opts.now()) {
		if err := s.expire(ctx, id); err != nil {
			return nil, err
		}
	}
	events, err := s.events.ListByEntity(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load trade offer events")
	}
	return events, nil
}

func itemsJSON(items []models.TradeItem) (types.JSONText, error) {
	if items == nil {
		items = []models.TradeItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return types.JSONText(raw), nil
}

func tradeNotification(offer *models.TradeOffer, userID, kind string, at time.Time) models.Notification {
	return models.Notification{
		UserID:     userID,
		Kind:       kind,
		EntityType: models.EntityTradeOffer,
		EntityID:   offer.ID,
		Payload:    metadata(map[string]interface{}{"status": offer.Status}),
		CreatedAt:  at,
	}
}
