package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/models"
	"github.com/noah-isme/card-market-api/pkg/ratelimit"
)

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeLog) ObserveTransition(entity, to, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, entity+":"+to+":"+outcome)
}

type fixture struct {
	clock    *testClock
	db       *memDB
	notifier *memNotifier
	observed *outcomeLog

	listings   *ListingService
	offers     *TradeOfferService
	handovers  *HandoverService
	reports    *ReportService
	collection *CollectionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	db := newMemDB(clock.Now)
	notifier := &memNotifier{}
	observed := &outcomeLog{}
	opts := []Option{WithClock(clock.Now), WithNotifier(notifier), WithObserver(observed)}

	limiter, err := ratelimit.NewMemory(3, time.Hour, 100, clock.Now)
	require.NoError(t, err)

	listingEvents := memEvents{db: db}
	tradeEvents := memEvents{db: db, trading: true}
	return &fixture{
		clock:      clock,
		db:         db,
		notifier:   notifier,
		observed:   observed,
		listings:   NewListingService(memListings{db}, listingEvents, memCollection{db}, db, nil, nil, nil, opts...),
		offers:     NewTradeOfferService(memOffers{db}, memListings{db}, tradeEvents, db, TradeOfferConfig{ExpiryConcurrency: 2}, nil, nil, opts...),
		handovers:  NewHandoverService(memHandovers{db}, memListings{db}, memOffers{db}, listingEvents, tradeEvents, db, nil, nil, opts...),
		reports:    NewReportService(memReports{db}, memListings{db}, listingEvents, limiter, db, nil, nil, opts...),
		collection: NewCollectionService(memCollection{db}, nil, nil, opts...),
	}
}

func listingRequest() dto.CreateListingRequest {
	return dto.CreateListingRequest{
		Title:     "Black Lotus",
		Price:     decimal.RequireFromString("250.00"),
		Currency:  "EUR",
		Quantity:  1,
		Language:  "EN",
		Condition: models.ConditionNearMint,
	}
}

// publishedListing creates and publishes a listing owned by seller.
func (f *fixture) publishedListing(t *testing.T, seller string, mutate ...func(*dto.CreateListingRequest)) *models.Listing {
	t.Helper()
	req := listingRequest()
	for _, m := range mutate {
		m(&req)
	}
	listing, err := f.listings.Create(context.Background(), req, user(seller))
	require.NoError(t, err)
	listing, err = f.listings.Publish(context.Background(), listing.ID, user(seller))
	require.NoError(t, err)
	return listing
}

func tradeRequest(receiver string) dto.CreateTradeOfferRequest {
	return dto.CreateTradeOfferRequest{
		ReceiverUserID: receiver,
		OfferedItems: []models.TradeItem{{
			CardID: "card-1", Language: "EN", Condition: models.ConditionGood, Quantity: 1,
		}},
	}
}

// runConcurrently starts n copies of fn at once and collects their errors.
func runConcurrently(n int, fn func() error) []error {
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func countNil(errs []error) int {
	n := 0
	for _, err := range errs {
		if err == nil {
			n++
		}
	}
	return n
}
