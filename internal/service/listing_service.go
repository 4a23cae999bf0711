package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/lifecycle"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/internal/repository"
	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
)

type listingRepository interface {
	lifecycle.Store[models.ListingStatus]
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id string) (*models.Listing, error)
	List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, int, error)
	UpdateDraft(ctx context.Context, id, ownerID string, patch models.ListingPatch, at time.Time) (int64, error)
}

type inventoryRepository interface {
	Decrement(ctx context.Context, key models.InventoryKey, qty int, at time.Time) (int64, error)
	DeleteEmpty(ctx context.Context, key models.InventoryKey) error
}

// ListingService implements the sale listing lifecycle.
type ListingService struct {
	repo      listingRepository
	events    eventLog
	inventory inventoryRepository
	tx        lifecycle.Transactor
	guard     *lifecycle.Guard[models.ListingStatus]
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	opts      options
}

// NewListingService constructs the service. cache may be nil.
func NewListingService(repo listingRepository, events eventLog, inventory inventoryRepository, tx lifecycle.Transactor,
	cache *CacheService, validate *validator.Validate, logger *zap.Logger, opts ...Option) *ListingService {
	validate, logger = defaults(validate, logger)
	o := buildOptions(opts)
	return &ListingService{
		repo:      repo,
		events:    events,
		inventory: inventory,
		tx:        tx,
		guard:     lifecycle.NewGuard(ListingMachine, repo, tx, o.observer).WithClock(o.now),
		cache:     cache,
		validator: validate,
		logger:    logger,
		opts:      o,
	}
}

func publicListingKey(id string) string {
	return "listing:public:" + id
}

// Create stores a new draft listing owned by actor.
func (s *ListingService) Create(ctx context.Context, req dto.CreateListingRequest, actor *models.JWTClaims) (*models.Listing, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid listing payload")
	}

	now := s.opts.now()
	listing := &models.Listing{
		UserID:      actor.UserID,
		CardID:      req.CardID,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		Quantity:    req.Quantity,
		Language:    req.Language,
		Condition:   req.Condition,
		Status:      models.ListingDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, listing); err != nil {
			return err
		}
		return s.events.Append(ctx, &models.Event{
			EntityID:    listing.ID,
			EventType:   models.EventCreated,
			ActorUserID: actor.UserID,
			CreatedAt:   now,
		})
	})
	if err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, validationError(err, "unknown card")
		}
		return nil, appErrors.Internal(err, "failed to create listing")
	}
	return listing, nil
}

// Get returns a listing. Drafts and archived listings are only visible to the
// owner; everyone else gets NOT_FOUND.
func (s *ListingService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Listing, error) {
	var cached models.Listing
	if hit, _ := s.cache.Get(ctx, publicListingKey(id), &cached); hit {
		return &cached, nil
	}

	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "listing")
	}
	if !listing.IsPublic() {
		if !listing.IsOwnedBy(actorID(actor)) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "listing not found")
		}
		return listing, nil
	}
	s.fill(ctx, listing)
	return listing, nil
}

// fill caches a public listing, then re-reads the row. A change committed
// between the first read and the write is dropped again, since its own
// invalidation may have run before the write landed.
func (s *ListingService) fill(ctx context.Context, listing *models.Listing) {
	if !s.cache.Enabled() {
		return
	}
	key := publicListingKey(listing.ID)
	if err := s.cache.Set(ctx, key, listing, 0); err != nil {
		return
	}
	fresh, err := s.repo.FindByID(ctx, listing.ID)
	if err != nil || fresh.Status != listing.Status || !fresh.UpdatedAt.Equal(listing.UpdatedAt) {
		s.invalidate(ctx, listing.ID)
	}
}

// List returns public listings. status may narrow to PUBLISHED or SOLD.
func (s *ListingService) List(ctx context.Context, query dto.ListingQuery) ([]models.Listing, *models.Pagination, error) {
	statuses := []models.ListingStatus{models.ListingPublished}
	switch status := models.ListingStatus(query.Status); status {
	case "":
	case models.ListingPublished, models.ListingSold:
		statuses = []models.ListingStatus{status}
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "status must be PUBLISHED or SOLD")
	}

	page := models.NormalizePage(query.Page, query.PageSize)
	items, total, err := s.repo.List(ctx, models.ListingFilter{
		Statuses: statuses,
		CardID:   query.CardID,
		SellerID: query.SellerID,
		Page:     page,
	})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list listings")
	}
	return items, page.Pagination(total), nil
}

// ListMine returns every listing of actor regardless of status.
func (s *ListingService) ListMine(ctx context.Context, query dto.PageQuery, actor *models.JWTClaims) ([]models.Listing, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	page := models.NormalizePage(query.Page, query.PageSize)
	items, total, err := s.repo.List(ctx, models.ListingFilter{SellerID: actor.UserID, Page: page})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list listings")
	}
	return items, page.Pagination(total), nil
}

// Update edits a draft listing of actor.
func (s *ListingService) Update(ctx context.Context, id string, req dto.UpdateListingRequest, actor *models.JWTClaims) (*models.Listing, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid listing payload")
	}
	patch := req.Patch()
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}

	now := s.opts.now()
	var updated int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if updated, err = s.repo.UpdateDraft(ctx, id, actor.UserID, patch, now); err != nil || updated == 0 {
			return err
		}
		return s.events.Append(ctx, &models.Event{
			EntityID:    id,
			EventType:   models.EventUpdated,
			ActorUserID: actor.UserID,
			Metadata:    patchMetadata(patch),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update listing")
	}
	if updated == 0 {
		return nil, s.explainEdit(ctx, id, actor.UserID)
	}
	return s.reload(ctx, id)
}

func (s *ListingService) explainEdit(ctx context.Context, id, userID string) error {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "listing")
	}
	if !listing.IsOwnedBy(userID) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the seller may edit a listing")
	}
	return appErrors.Clone(appErrors.ErrConflict, "listing is "+string(listing.Status)+"; only drafts can be edited")
}

// Publish moves a draft to PUBLISHED.
func (s *ListingService) Publish(ctx context.Context, id string, actor *models.JWTClaims) (*models.Listing, error) {
	return s.transition(ctx, id, actor, models.ListingPublished, "published_at", models.EventPublished, nil)
}

// Archive withdraws a draft or published listing.
func (s *ListingService) Archive(ctx context.Context, id string, actor *models.JWTClaims) (*models.Listing, error) {
	return s.transition(ctx, id, actor, models.ListingArchived, "archived_at", models.EventArchived, nil)
}

// MarkSold moves a published listing to SOLD. Listings tied to a catalog card
// take the sold copies out of the seller's collection in the same
// transaction; a shortfall fails with INSUFFICIENT_QUANTITY and changes
// nothing.
func (s *ListingService) MarkSold(ctx context.Context, id string, actor *models.JWTClaims) (*models.Listing, error) {
	return s.transition(ctx, id, actor, models.ListingSold, "sold_at", models.EventSold, s.takeFromInventory)
}

func (s *ListingService) takeFromInventory(ctx context.Context, listing *models.Listing, at time.Time) error {
	key, ok := listing.InventoryKey()
	if !ok {
		return nil
	}
	n, err := s.inventory.Decrement(ctx, key, listing.Quantity, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrInsufficientQuantity
	}
	return s.inventory.DeleteEmpty(ctx, key)
}

type sideEffect func(ctx context.Context, listing *models.Listing, at time.Time) error

func (s *ListingService) transition(ctx context.Context, id string, actor *models.JWTClaims, to models.ListingStatus,
	stampColumn string, eventType models.EventType, effect sideEffect) (*models.Listing, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "listing")
	}
	if !listing.IsOwnedBy(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the seller may change a listing")
	}

	now := s.opts.now()
	err = s.guard.Apply(ctx, lifecycle.Transition[models.ListingStatus]{
		ID:  id,
		To:  to,
		At:  now,
		Set: []lifecycle.Assignment{lifecycle.Set(stampColumn, now)},
		Record: func(ctx context.Context) error {
			if effect != nil {
				// The conditional write holds the row; read what was actually sold.
				sold, err := s.repo.FindByID(ctx, id)
				if err != nil {
					return err
				}
				if err := effect(ctx, sold, now); err != nil {
					return err
				}
			}
			return s.events.Append(ctx, &models.Event{
				EntityID:    id,
				EventType:   eventType,
				ActorUserID: actor.UserID,
				CreatedAt:   now,
			})
		},
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Internal(err, "failed to update listing")
	}

	s.invalidate(ctx, id)
	return s.reload(ctx, id)
}

// Events returns the audit log of a listing to its owner or an admin.
func (s *ListingService) Events(ctx context.Context, id string, actor *models.JWTClaims) ([]models.Event, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "listing")
	}
	if !listing.IsOwnedBy(actor.UserID) && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the seller may view listing events")
	}
	events, err := s.events.ListByEntity(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load listing events")
	}
	return events, nil
}

func (s *ListingService) reload(ctx context.Context, id string) (*models.Listing, error) {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "listing not found")
		}
		return nil, appErrors.Internal(err, "failed to load listing")
	}
	return listing, nil
}

// invalidate drops the public cache entry. Failures are logged by the cache
// service and leave the entry to expire on its TTL.
func (s *ListingService) invalidate(ctx context.Context, id string) {
	_ = s.cache.Invalidate(ctx, publicListingKey(id))
}

func patchMetadata(p models.ListingPatch) types.JSONText {
	fields := make([]string, 0, 7)
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Price != nil {
		fields = append(fields, "price")
	}
	if p.Currency != nil {
		fields = append(fields, "currency")
	}
	if p.Quantity != nil {
		fields = append(fields, "quantity")
	}
	if p.Language != nil {
		fields = append(fields, "language")
	}
	if p.Condition != nil {
		fields = append(fields, "condition")
	}
	return metadata(map[string]interface{}{"fields": fields})
}

func metadata(values map[string]interface{}) types.JSONText {
	raw, err := json.Marshal(values)
	if err != nil {
		return types.JSONText("{}")
	}
	return types.JSONText(raw)
}
