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

func TestTradeOfferCreate(t *testing.T) {
	f := newFixture(t)
	offer, err := f.offers.Create(context.Background(), tradeRequest("bob"), user("alice"))
	require.NoError(t, err)

	assert.Equal(t, models.TradePending, offer.Status)
	assert.Equal(t, f.clock.Now().Add(72*time.Hour), offer.ExpiresAt)
	assert.JSONEq(t, `[{"cardId":"card-1","language":"EN","condition":"GOOD","quantity":1}]`, string(offer.OfferedItems))
	assert.JSONEq(t, `[]`, string(offer.RequestedItems))
	assert.Equal(t, 1, f.db.countEvents(true, offer.ID, models.EventCreated))
	assert.Equal(t, []string{"trade_offer.created"}, f.notifier.kinds())
}

func TestTradeOfferCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.offers.Create(ctx, tradeRequest("alice"), user("alice"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	empty := dto.CreateTradeOfferRequest{ReceiverUserID: "bob"}
	_, err = f.offers.Create(ctx, empty, user("alice"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	tooLong := tradeRequest("bob")
	hours := 169
	tooLong.ExpiresInHours = &hours
	_, err = f.offers.Create(ctx, tooLong, user("alice"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestTradeOfferCreateChecksListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.publishedListing(t, "bob")

	req := tradeRequest("bob")
	req.ListingID = stringPtr(listing.ID)
	_, err := f.offers.Create(ctx, req, user("alice"))
	require.NoError(t, err)

	req = tradeRequest("carol")
	req.ListingID = stringPtr(listing.ID)
	_, err = f.offers.Create(ctx, req, user("alice"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))

	req = tradeRequest("bob")
	req.ListingID = stringPtr("missing")
	_, err = f.offers.Create(ctx, req, user("alice"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestTradeOfferActorChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer, err := f.offers.Create(ctx, tradeRequest("bob"), user("alice"))
	require.NoError(t, err)

	_, err = f.offers.Get(ctx, offer.ID, user("mallory"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	_, err = f.offers.Accept(ctx, offer.ID, user("alice"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	_, err = f.offers.Cancel(ctx, offer.ID, user("bob"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	_, err = f.offers.Accept(ctx, "missing", user("bob"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))

	_, err = f.offers.Events(ctx, offer.ID, user("mallory"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestTradeOfferAcceptTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer, err := f.offers.Create(ctx, tradeRequest("bob"), user("alice"))
	require.NoError(t, err)

	accepted, err := f.offers.Accept(ctx, offer.ID, user("bob"))
	require.NoError(t, err)
	assert.Equal(t, models.TradeAccepted, accepted.Status)
	assert.NotNil(t, accepted.RespondedAt)

	_, err = f.offers.Accept(ctx, offer.ID, user("bob"))
	require.Error(t, err)
	assert.Equal(t, "trade offer is ACCEPTED; cannot transition to ACCEPTED", appErrors.FromError(err).Message)
	assert.Equal(t, 1, f.db.countEvents(true, offer.ID, models.EventAccepted))
	assert.Equal(t, []string{"trade_offer.created", "trade_offer.accepted"}, f.notifier.kinds())
}

func TestTradeOfferConcurrentResponsesHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer, err := f.offers.Create(ctx, tradeRequest("bob"), user("alice"))
	require.NoError(t, err)

	errs := runConcurrently(2, func() error {
		_, err := f.offers.Accept(ctx, offer.ID, user("bob"))
		return err
	})
	assert.Equal(t, 1, countNil(errs))
	assert.Equal(t, 1, f.db.countEvents(true, offer.ID, models.EventAccepted))

	offer2, err := f.offers.Create(ctx, tradeRequest("bob"), user("alice"))
	require.NoError(t, err)
	var wg sync.WaitGroup
	var acceptErr, cancelErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, acceptErr = f.offers.Accept(ctx, offer2.ID, user("bob"))
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = f.offers.Cancel(ctx, offer2.ID, user("alice"))
	}()
	wg.Wait()

	assert.True(t, (acceptErr == nil) != (cancelErr == nil), "exactly one of accept and cancel wins")
	events := f.db.countEvents(true, offer2.ID, models.EventAccepted) + f.db.countEvents(true, offer2.ID, models.EventCancelled)
	assert.Equal(t, 1, events)
}

func TestTradeOfferGetExpiresLapsedOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer, err := f.offers.Create(ctx, tradeRequest("bob"), user("alice"))
	require.NoError(t, err)

	f.clock.Advance(73 * time.Hour)
	got, err := f.offers.Get(ctx, offer.ID, user("alice"))
	require.NoError(t, err)
	assert.Equal(t, models.TradeExpired, got.Status)

	events, err := f.offers.Events(ctx, offer.ID, user("bob"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventExpired, events[1].EventType)
	assert.Equal(t, models.SystemActor, events[1].ActorUserID)
}

func TestTradeOfferConcurrentReadsExpireOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		offer, err := f.offers.Create(ctx, tradeRequest("bob"), user("alice"))
		require.NoError(t, err)
		ids = append(ids, offer.ID)
	}
	f.clock.Advance(100 * time.Hour)

	errs := runConcurrently(6, func() error {
		if _, err := f.offers.Get(ctx, ids[0], user("bob")); err != nil {
			return err
		}
		_, _, err := f.offers.List(ctx, dto.TradeOfferQuery{Box: "received"}, user("bob"))
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	for _, id := range ids {
		assert.Equal(t, models.TradeExpired, f.db.offers[id].Status)
		assert.Equal(t, 1, f.db.countEvents(true, id, models.EventExpired), id)
	}
}

func TestTradeOfferBackdatedAcceptScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hours := 1
	req := tradeRequest("bob")
	req.ExpiresInHours = &hours
	offer, err := f.offers.Create(ctx, req, user("alice"))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	_, err = f.offers.Accept(ctx, offer.ID, user("bob"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	assert.Equal(t, "trade offer has expired", appErrors.FromError(err).Message)

	got, err := f.offers.Get(ctx, offer.ID, user("bob"))
	require.NoError(t, err)
	assert.Equal(t, models.TradeExpired, got.Status)
	assert.Nil(t, got.RespondedAt)
	assert.Equal(t, 1, f.db.countEvents(true, offer.ID, models.EventExpired))
	assert.Zero(t, f.db.countEvents(true, offer.ID, models.EventAccepted))
}

func TestTradeOfferListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.offers.Create(ctx, tradeRequest("bob"), user("alice"))
	require.NoError(t, err)
	_, err = f.offers.Create(ctx, tradeRequest("alice"), user("bob"))
	require.NoError(t, err)

	sent, page, err := f.offers.List(ctx, dto.TradeOfferQuery{Box: "sent"}, user("alice"))
	require.NoError(t, err)
	assert.Len(t, sent, 1)
	assert.Equal(t, 1, page.TotalCount)

	all, _, err := f.offers.List(ctx, dto.TradeOfferQuery{}, user("alice"))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, _, err = f.offers.List(ctx, dto.TradeOfferQuery{Box: "outbox"}, user("alice"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	_, _, err = f.offers.List(ctx, dto.TradeOfferQuery{Status: "LOST"}, user("alice"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestTradeOfferWrongActionOnLapsedOfferStillExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer, err := f.offers.Create(ctx, tradeRequest("bob"), user("alice"))
	require.NoError(t, err)
	f.clock.Advance(73 * time.Hour)

	_, err = f.offers.Accept(ctx, offer.ID, user("alice"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
	assert.Equal(t, models.TradeExpired, f.db.offers[offer.ID].Status)
	assert.Equal(t, 1, f.db.countEvents(true, offer.ID, models.EventExpired))

	_, err = f.offers.Cancel(ctx, offer.ID, user("mallory"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
	assert.Equal(t, 1, f.db.countEvents(true, offer.ID, models.EventExpired))
}

func TestTradeOfferEventsSettleLapsedOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	offer, err := f.offers.Create(ctx, tradeRequest("bob"), user("alice"))
	require.NoError(t, err)
	f.clock.Advance(73 * time.Hour)

	events, err := f.offers.Events(ctx, offer.ID, user("alice"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventExpired, events[1].EventType)
	assert.Equal(t, models.TradeExpired, f.db.offers[offer.ID].Status)
}
