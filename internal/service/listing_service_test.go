package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/models"
	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
)

func TestListingCreateStartsAsDraft(t *testing.T) {
	f := newFixture(t)
	listing, err := f.listings.Create(context.Background(), listingRequest(), user("seller"))
	require.NoError(t, err)

	assert.Equal(t, models.ListingDraft, listing.Status)
	assert.Equal(t, "seller", listing.UserID)
	assert.Equal(t, 1, f.db.countEvents(false, listing.ID, models.EventCreated))
}

func TestListingCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := listingRequest()
	req.Currency = "euro"
	_, err := f.listings.Create(ctx, req, user("seller"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	req = listingRequest()
	req.CardID = stringPtr("card-unknown")
	_, err = f.listings.Create(ctx, req, user("seller"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	assert.Equal(t, "unknown card", appErrors.FromError(err).Message)
	assert.Empty(t, f.db.listingEvents)

	_, err = f.listings.Create(ctx, listingRequest(), nil)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))
}

func TestListingVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.listings.Create(ctx, listingRequest(), user("seller"))
	require.NoError(t, err)

	_, err = f.listings.Get(ctx, draft.ID, user("stranger"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
	_, err = f.listings.Get(ctx, draft.ID, nil)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))

	own, err := f.listings.Get(ctx, draft.ID, user("seller"))
	require.NoError(t, err)
	assert.Equal(t, models.ListingDraft, own.Status)

	published := f.publishedListing(t, "seller")
	got, err := f.listings.Get(ctx, published.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ListingPublished, got.Status)

	items, page, err := f.listings.List(ctx, dto.ListingQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, published.ID, items[0].ID)
	assert.Equal(t, 1, page.TotalCount)

	_, _, err = f.listings.List(ctx, dto.ListingQuery{Status: "DRAFT"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	mine, page, err := f.listings.ListMine(ctx, dto.PageQuery{}, user("seller"))
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	assert.Equal(t, 2, page.TotalCount)
}

func TestListingUpdateOnlyWhileDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.listings.Create(ctx, listingRequest(), user("seller"))
	require.NoError(t, err)

	title := "Black Lotus (Alpha)"
	updated, err := f.listings.Update(ctx, draft.ID, dto.UpdateListingRequest{Title: &title}, user("seller"))
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, 1, f.db.countEvents(false, draft.ID, models.EventUpdated))

	_, err = f.listings.Update(ctx, draft.ID, dto.UpdateListingRequest{}, user("seller"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	_, err = f.listings.Update(ctx, draft.ID, dto.UpdateListingRequest{Title: &title}, user("stranger"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	_, err = f.listings.Update(ctx, "missing", dto.UpdateListingRequest{Title: &title}, user("seller"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))

	_, err = f.listings.Publish(ctx, draft.ID, user("seller"))
	require.NoError(t, err)
	_, err = f.listings.Update(ctx, draft.ID, dto.UpdateListingRequest{Title: &title}, user("seller"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	assert.Equal(t, 1, f.db.countEvents(false, draft.ID, models.EventUpdated))
}

func TestListingTransitionConflictNamesActualState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.publishedListing(t, "seller")

	_, err := f.listings.Publish(ctx, listing.ID, user("seller"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "listing is PUBLISHED; cannot transition to PUBLISHED", appErr.Message)

	_, err = f.listings.Archive(ctx, listing.ID, user("stranger"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	archived, err := f.listings.Archive(ctx, listing.ID, user("seller"))
	require.NoError(t, err)
	assert.Equal(t, models.ListingArchived, archived.Status)
	assert.NotNil(t, archived.ArchivedAt)

	_, err = f.listings.MarkSold(ctx, listing.ID, user("seller"))
	assert.Equal(t, "listing is ARCHIVED; cannot transition to SOLD", appErrors.FromError(err).Message)
}

func TestListingLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.listings.Create(ctx, listingRequest(), user("seller"))
	require.NoError(t, err)
	_, err = f.listings.Publish(ctx, draft.ID, user("seller"))
	require.NoError(t, err)

	public, err := f.listings.Get(ctx, draft.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ListingPublished, public.Status)
	require.NotNil(t, public.PublishedAt)
	assert.Equal(t, f.clock.Now(), *public.PublishedAt)

	title := "too late"
	_, err = f.listings.Update(ctx, draft.ID, dto.UpdateListingRequest{Title: &title}, user("seller"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))

	_, err = f.listings.MarkSold(ctx, draft.ID, user("seller"))
	require.NoError(t, err)

	sold, err := f.listings.Get(ctx, draft.ID, user("buyer"))
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, sold.Status)
	assert.NotNil(t, sold.SoldAt)

	events, err := f.listings.Events(ctx, draft.ID, user("seller"))
	require.NoError(t, err)
	types := make([]models.EventType, len(events))
	for i, e := range events {
		types[i] = e.EventType
	}
	assert.Equal(t, []models.EventType{models.EventCreated, models.EventPublished, models.EventSold}, types)
}

func TestListingMarkSoldConsumesExactInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.publishedListing(t, "seller", func(r *dto.CreateListingRequest) {
		r.CardID = stringPtr("card-1")
		r.Quantity = 2
	})
	key, ok := listing.InventoryKey()
	require.True(t, ok)
	f.db.putInventory(key, 2)

	sold, err := f.listings.MarkSold(ctx, listing.ID, user("seller"))
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, sold.Status)
	assert.NotNil(t, sold.SoldAt)

	_, exists := f.db.inventory[key]
	assert.False(t, exists, "empty inventory rows are removed")
}

func TestListingMarkSoldKeepsRemainder(t *testing.T) {
	f := newFixture(t)
	listing := f.publishedListing(t, "seller", func(r *dto.CreateListingRequest) {
		r.CardID = stringPtr("card-1")
	})
	key, _ := listing.InventoryKey()
	f.db.putInventory(key, 3)

	_, err := f.listings.MarkSold(context.Background(), listing.ID, user("seller"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.db.inventory[key].Quantity)
}

func TestListingMarkSoldInsufficientInventoryChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.publishedListing(t, "seller", func(r *dto.CreateListingRequest) {
		r.CardID = stringPtr("card-1")
		r.Quantity = 3
	})
	key, _ := listing.InventoryKey()
	f.db.putInventory(key, 2)

	_, err := f.listings.MarkSold(ctx, listing.ID, user("seller"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInsufficientQuantity))

	current, err := f.listings.Get(ctx, listing.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ListingPublished, current.Status)
	assert.Nil(t, current.SoldAt)
	assert.Equal(t, 2, f.db.inventory[key].Quantity)
	assert.Zero(t, f.db.countEvents(false, listing.ID, models.EventSold))
}

func TestListingConcurrentMarkSoldHasOneWinner(t *testing.T) {
	f := newFixture(t)
	listing := f.publishedListing(t, "seller")

	errs := runConcurrently(2, func() error {
		_, err := f.listings.MarkSold(context.Background(), listing.ID, user("seller"))
		return err
	})

	assert.Equal(t, 1, countNil(errs))
	for _, err := range errs {
		if err != nil {
			assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
		}
	}
	assert.Equal(t, 1, f.db.countEvents(false, listing.ID, models.EventSold))
}

func TestListingEventsAreRestricted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.publishedListing(t, "seller")

	_, err := f.listings.Events(ctx, listing.ID, user("stranger"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	events, err := f.listings.Events(ctx, listing.ID, admin("mod"))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestListingTransitionsAreObserved(t *testing.T) {
	f := newFixture(t)
	listing := f.publishedListing(t, "seller")
	_, _ = f.listings.Publish(context.Background(), listing.ID, user("seller"))

	assert.Equal(t, []string{
		"listing:PUBLISHED:applied",
		"listing:PUBLISHED:conflict",
	}, f.observed.outcomes)
}

func TestListingConcurrentMarkSoldTakesInventoryOnce(t *testing.T) {
	f := newFixture(t)
	listing := f.publishedListing(t, "seller", func(r *dto.CreateListingRequest) {
		r.CardID = stringPtr("card-1")
		r.Quantity = 2
	})
	key, _ := listing.InventoryKey()
	f.db.putInventory(key, 5)

	errs := runConcurrently(2, func() error {
		_, err := f.listings.MarkSold(context.Background(), listing.ID, user("seller"))
		return err
	})

	assert.Equal(t, 1, countNil(errs))
	for _, err := range errs {
		if err != nil {
			assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
		}
	}
	assert.Equal(t, 1, f.db.countEvents(false, listing.ID, models.EventSold))
	assert.Equal(t, 3, f.db.inventory[key].Quantity)
}

// interleavedListings runs hook once, right after the first FindByID has
// taken its snapshot, to interleave a concurrent writer.
type interleavedListings struct {
	memListings
	once sync.Once
	hook func()
}

func (r *interleavedListings) FindByID(ctx context.Context, id string) (*models.Listing, error) {
	listing, err := r.memListings.FindByID(ctx, id)
	r.once.Do(r.hook)
	return listing, err
}

func TestListingMarkSoldUsesQuantityAtSaleTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := listingRequest()
	req.CardID = stringPtr("card-1")
	draft, err := f.listings.Create(ctx, req, user("seller"))
	require.NoError(t, err)
	key, _ := draft.InventoryKey()
	f.db.putInventory(key, 5)

	repo := &interleavedListings{memListings: memListings{f.db}}
	repo.hook = func() {
		qty := 3
		_, err := f.listings.Update(ctx, draft.ID, dto.UpdateListingRequest{Quantity: &qty}, user("seller"))
		require.NoError(t, err)
		_, err = f.listings.Publish(ctx, draft.ID, user("seller"))
		require.NoError(t, err)
	}
	svc := NewListingService(repo, memEvents{db: f.db}, memCollection{f.db}, f.db, nil, nil, nil, WithClock(f.clock.Now))

	sold, err := svc.MarkSold(ctx, draft.ID, user("seller"))
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, sold.Status)
	assert.Equal(t, 3, sold.Quantity)
	assert.Equal(t, 2, f.db.inventory[key].Quantity)
}

func TestListingCacheDropsCopyChangedWhileFilling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.publishedListing(t, "seller")
	store := newCacheRepoStub()
	cache := NewCacheService(store, nil, time.Minute, nil, true)

	repo := &interleavedListings{memListings: memListings{f.db}}
	repo.hook = func() {
		_, err := f.listings.MarkSold(ctx, listing.ID, user("seller"))
		require.NoError(t, err)
	}
	svc := NewListingService(repo, memEvents{db: f.db}, memCollection{f.db}, f.db, cache, nil, nil, WithClock(f.clock.Now))

	_, err := svc.Get(ctx, listing.ID, nil)
	require.NoError(t, err)
	store.mu.Lock()
	_, cached := store.entries[publicListingKey(listing.ID)]
	store.mu.Unlock()
	assert.False(t, cached, "a copy read before the sale must not stay cached")

	got, err := svc.Get(ctx, listing.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, got.Status)

	got, err = svc.Get(ctx, listing.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, got.Status)
	store.mu.Lock()
	_, cached = store.entries[publicListingKey(listing.ID)]
	store.mu.Unlock()
	assert.True(t, cached)
}
