package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/internal/repository"
	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
)

type collectionRepository interface {
	Add(ctx context.Context, item *models.CollectionItem) (*models.CollectionItem, error)
	ListByUser(ctx context.Context, userID string, page models.Page) ([]models.CollectionItem, int, error)
}

// CollectionService manages a user's card inventory.
type CollectionService struct {
	repo      collectionRepository
	validator *validator.Validate
	logger    *zap.Logger
	opts      options
}

// NewCollectionService constructs the service.
func NewCollectionService(repo collectionRepository, validate *validator.Validate, logger *zap.Logger, opts ...Option) *CollectionService {
	validate, logger = defaults(validate, logger)
	return &CollectionService{repo: repo, validator: validate, logger: logger, opts: buildOptions(opts)}
}

// List returns actor's collection.
func (s *CollectionService) List(ctx context.Context, query dto.PageQuery, actor *models.JWTClaims) ([]models.CollectionItem, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	page := models.NormalizePage(query.Page, query.PageSize)
	items, total, err := s.repo.ListByUser(ctx, actor.UserID, page)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list collection")
	}
	return items, page.Pagination(total), nil
}

// Add puts copies of a card into actor's collection, merging with an
// existing row of the same card, language and condition.
func (s *CollectionService) Add(ctx context.Context, req dto.AddCollectionItemRequest, actor *models.JWTClaims) (*models.CollectionItem, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid collection item")
	}
	now := s.opts.now()
	item, err := s.repo.Add(ctx, &models.CollectionItem{
		UserID:    actor.UserID,
		CardID:    req.CardID,
		Language:  req.Language,
		Condition: req.Condition,
		Quantity:  req.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, validationError(err, "unknown card")
		}
		return nil, appErrors.Internal(err, "failed to add collection item")
	}
	return item, nil
}
