package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/card-market-api/internal/lifecycle"
	"github.com/noah-isme/card-market-api/internal/models"
)

// memDB is an in-memory stand-in for the postgres schema. Units of work are
// serialised and roll back by restoring a snapshot, which is enough to
// reproduce the conditional update semantics the services rely on.
type memDB struct {
	mu   sync.Mutex
	txMu sync.Mutex
	now  func() time.Time

	cards         map[string]bool
	listings      map[string]models.Listing
	offers        map[string]models.TradeOffer
	handovers     map[string]models.Handover
	reports       map[string]models.ListingReport
	inventory     map[models.InventoryKey]models.CollectionItem
	listingEvents []models.Event
	tradeEvents   []models.Event
	notifications []models.Notification
}

type memSnapshot struct {
	listings      map[string]models.Listing
	offers        map[string]models.TradeOffer
	handovers     map[string]models.Handover
	reports       map[string]models.ListingReport
	inventory     map[models.InventoryKey]models.CollectionItem
	listingEvents []models.Event
	tradeEvents   []models.Event
}

type memTxKey struct{}

func newMemDB(now func() time.Time) *memDB {
	return &memDB{
		now:       now,
		cards:     map[string]bool{"card-1": true, "card-2": true},
		listings:  make(map[string]models.Listing),
		offers:    make(map[string]models.TradeOffer),
		handovers: make(map[string]models.Handover),
		reports:   make(map[string]models.ListingReport),
		inventory: make(map[models.InventoryKey]models.CollectionItem),
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return memSnapshot{
		listings:      copyMap(db.listings),
		offers:        copyMap(db.offers),
		handovers:     copyMap(db.handovers),
		reports:       copyMap(db.reports),
		inventory:     copyMap(db.inventory),
		listingEvents: append([]models.Event(nil), db.listingEvents...),
		tradeEvents:   append([]models.Event(nil), db.tradeEvents...),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.listings = s.listings
	db.offers = s.offers
	db.handovers = s.handovers
	db.reports = s.reports
	db.inventory = s.inventory
	db.listingEvents = s.listingEvents
	db.tradeEvents = s.tradeEvents
}

// WithinTx implements lifecycle.Transactor.
func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()
	snap := db.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func uniqueViolation(constraint string) error {
	return fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: constraint})
}

func foreignKeyViolation(constraint string) error {
	return fmt.Errorf("insert: %w", &pq.Error{Code: "23503", Constraint: constraint})
}

func containsStatus[S ~string](set []S, s S) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func timeValue(v interface{}) *time.Time {
	t := v.(time.Time)
	return &t
}

func stringValue(v interface{}) *string {
	s := v.(string)
	return &s
}

func paginate[T any](items []T, page models.Page) []T {
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// listings

type memListings struct{ db *memDB }

func (r memListings) Create(_ context.Context, l *models.Listing) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if l.CardID != nil && !r.db.cards[*l.CardID] {
		return foreignKeyViolation("listings_card_id_fkey")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	r.db.listings[l.ID] = *l
	return nil
}

func (r memListings) FindByID(_ context.Context, id string) (*models.Listing, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l, ok := r.db.listings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &l, nil
}

func (r memListings) List(_ context.Context, f models.ListingFilter) ([]models.Listing, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Listing, 0)
	for _, l := range r.db.listings {
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, l.Status) {
			continue
		}
		if f.SellerID != "" && l.UserID != f.SellerID {
			continue
		}
		if f.CardID != "" && (l.CardID == nil || *l.CardID != f.CardID) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Page), len(out), nil
}

func (r memListings) UpdateDraft(_ context.Context, id, ownerID string, p models.ListingPatch, at time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l, ok := r.db.listings[id]
	if !ok || l.UserID != ownerID || l.Status != models.ListingDraft {
		return 0, nil
	}
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Price != nil {
		l.Price = *p.Price
	}
	if p.Currency != nil {
		l.Currency = *p.Currency
	}
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.Language != nil {
		l.Language = *p.Language
	}
	if p.Condition != nil {
		l.Condition = *p.Condition
	}
	l.UpdatedAt = at
	r.db.listings[id] = l
	return 1, nil
}

func (r memListings) UpdateStatus(_ context.Context, c lifecycle.Change[models.ListingStatus]) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l, ok := r.db.listings[c.ID]
	if !ok || !containsStatus(c.From, l.Status) {
		return 0, nil
	}
	l.Status, l.UpdatedAt = c.To, c.At
	for _, a := range c.Set {
		switch a.Column {
		case "published_at":
			l.PublishedAt = timeValue(a.Value)
		case "sold_at":
			l.SoldAt = timeValue(a.Value)
		case "archived_at":
			l.ArchivedAt = timeValue(a.Value)
		default:
			return 0, fmt.Errorf("listings: unexpected column %s", a.Column)
		}
	}
	r.db.listings[c.ID] = l
	return 1, nil
}

func (r memListings) StatusOf(_ context.Context, id string) (models.ListingStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l, ok := r.db.listings[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	return l.Status, nil
}

// trade offers

type memOffers struct{ db *memDB }

func (r memOffers) Create(_ context.Context, o *models.TradeOffer) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	r.db.offers[o.ID] = *o
	return nil
}

func (r memOffers) FindByID(_ context.Context, id string) (*models.TradeOffer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.offers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &o, nil
}

func (r memOffers) List(_ context.Context, f models.TradeOfferFilter) ([]models.TradeOffer, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.TradeOffer, 0)
	for _, o := range r.db.offers {
		switch f.Box {
		case models.TradeBoxSent:
			if o.CreatorUserID != f.UserID {
				continue
			}
		case models.TradeBoxReceived:
			if o.ReceiverUserID != f.UserID {
				continue
			}
		default:
			if !o.IsParty(f.UserID) {
				continue
			}
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, o.Status) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Page), len(out), nil
}

func (r memOffers) ListLapsedIDs(_ context.Context, userID string, now time.Time) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ids := make([]string, 0)
	for id, o := range r.db.offers {
		if o.Status == models.TradePending && o.ExpiresAt.Before(now) && o.IsParty(userID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r memOffers) UpdateStatus(_ context.Context, c lifecycle.Change[models.TradeOfferStatus]) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.offers[c.ID]
	if !ok || !containsStatus(c.From, o.Status) {
		return 0, nil
	}
	if c.To == models.TradeExpired && !o.ExpiresAt.Before(c.At) {
		return 0, nil
	}
	if c.To != models.TradeExpired && !o.ExpiresAt.After(c.At) {
		return 0, nil
	}
	o.Status, o.UpdatedAt = c.To, c.At
	for _, a := range c.Set {
		if a.Column != "responded_at" {
			return 0, fmt.Errorf("trade_offers: unexpected column %s", a.Column)
		}
		o.RespondedAt = timeValue(a.Value)
	}
	r.db.offers[c.ID] = o
	return 1, nil
}

func (r memOffers) StatusOf(_ context.Context, id string) (models.TradeOfferStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.offers[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	return o.EffectiveStatus(r.db.now()), nil
}

// handovers

type memHandovers struct{ db *memDB }

func (r memHandovers) Create(_ context.Context, h *models.Handover) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, other := range r.db.handovers {
		if other.Status == models.HandoverPending && other.ParentID() == h.ParentID() {
			return uniqueViolation("uq_handovers_pending")
		}
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	r.db.handovers[h.ID] = *h
	return nil
}

func (r memHandovers) FindByID(_ context.Context, id string) (*models.Handover, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	h, ok := r.db.handovers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &h, nil
}

func (r memHandovers) HasPending(_ context.Context, listingID, tradeOfferID *string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, h := range r.db.handovers {
		if h.Status != models.HandoverPending {
			continue
		}
		if listingID != nil && h.ListingID != nil && *h.ListingID == *listingID {
			return true, nil
		}
		if tradeOfferID != nil && h.TradeOfferID != nil && *h.TradeOfferID == *tradeOfferID {
			return true, nil
		}
	}
	return false, nil
}

func (r memHandovers) List(_ context.Context, f models.HandoverFilter) ([]models.Handover, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Handover, 0)
	for _, h := range r.db.handovers {
		if f.Status == "" || h.Status == f.Status {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, f.Page), len(out), nil
}

func (r memHandovers) UpdateStatus(_ context.Context, c lifecycle.Change[models.HandoverStatus]) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	h, ok := r.db.handovers[c.ID]
	if !ok || !containsStatus(c.From, h.Status) {
		return 0, nil
	}
	h.Status, h.UpdatedAt = c.To, c.At
	for _, a := range c.Set {
		switch a.Column {
		case "verified_by":
			h.VerifiedBy = stringValue(a.Value)
		case "verified_at":
			h.VerifiedAt = timeValue(a.Value)
		case "rejection_reason":
			h.RejectionReason = stringValue(a.Value)
		default:
			return 0, fmt.Errorf("handovers: unexpected column %s", a.Column)
		}
	}
	r.db.handovers[c.ID] = h
	return 1, nil
}

func (r memHandovers) StatusOf(_ context.Context, id string) (models.HandoverStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	h, ok := r.db.handovers[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	return h.Status, nil
}

// reports

type memReports struct{ db *memDB }

func (r memReports) Create(_ context.Context, rep *models.ListingReport) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, other := range r.db.reports {
		if other.Status == models.ReportOpen && other.ListingID == rep.ListingID && other.ReporterUserID == rep.ReporterUserID {
			return uniqueViolation("uq_listing_reports_open")
		}
	}
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	r.db.reports[rep.ID] = *rep
	return nil
}

func (r memReports) FindByID(_ context.Context, id string) (*models.ListingReport, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rep, ok := r.db.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rep, nil
}

func (r memReports) List(_ context.Context, f models.ReportFilter) ([]models.ListingReport, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.ListingReport, 0)
	for _, rep := range r.db.reports {
		if f.Status == "" || rep.Status == f.Status {
			out = append(out, rep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, f.Page), len(out), nil
}

func (r memReports) UpdateStatus(_ context.Context, c lifecycle.Change[models.ReportStatus]) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rep, ok := r.db.reports[c.ID]
	if !ok || !containsStatus(c.From, rep.Status) {
		return 0, nil
	}
	rep.Status, rep.UpdatedAt = c.To, c.At
	for _, a := range c.Set {
		switch a.Column {
		case "resolved_by":
			rep.ResolvedBy = stringValue(a.Value)
		case "resolved_at":
			rep.ResolvedAt = timeValue(a.Value)
		case "resolution_note":
			rep.ResolutionNote = stringValue(a.Value)
		default:
			return 0, fmt.Errorf("listing_reports: unexpected column %s", a.Column)
		}
	}
	r.db.reports[c.ID] = rep
	return 1, nil
}

func (r memReports) StatusOf(_ context.Context, id string) (models.ReportStatus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rep, ok := r.db.reports[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	return rep.Status, nil
}

// collection

type memCollection struct{ db *memDB }

func (r memCollection) Add(_ context.Context, item *models.CollectionItem) (*models.CollectionItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if !r.db.cards[item.CardID] {
		return nil, foreignKeyViolation("collection_items_card_id_fkey")
	}
	key := models.InventoryKey{UserID: item.UserID, CardID: item.CardID, Language: item.Language, Condition: item.Condition}
	row, ok := r.db.inventory[key]
	if ok {
		row.Quantity += item.Quantity
		row.UpdatedAt = item.UpdatedAt
	} else {
		row = *item
		row.ID = uuid.NewString()
	}
	r.db.inventory[key] = row
	return &row, nil
}

func (r memCollection) ListByUser(_ context.Context, userID string, page models.Page) ([]models.CollectionItem, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.CollectionItem, 0)
	for key, row := range r.db.inventory {
		if key.UserID == userID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, page), len(out), nil
}

func (r memCollection) Decrement(_ context.Context, key models.InventoryKey, qty int, at time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	row, ok := r.db.inventory[key]
	if !ok || row.Quantity < qty {
		return 0, nil
	}
	row.Quantity -= qty
	row.UpdatedAt = at
	r.db.inventory[key] = row
	return 1, nil
}

func (r memCollection) DeleteEmpty(_ context.Context, key models.InventoryKey) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if row, ok := r.db.inventory[key]; ok && row.Quantity == 0 {
		delete(r.db.inventory, key)
	}
	return nil
}

func (db *memDB) putInventory(key models.InventoryKey, qty int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.inventory[key] = models.CollectionItem{
		ID: uuid.NewString(), UserID: key.UserID, CardID: key.CardID,
		Language: key.Language, Condition: key.Condition, Quantity: qty,
	}
}

// events

type memEvents struct {
	db      *memDB
	trading bool
}

func (r memEvents) log() *[]models.Event {
	if r.trading {
		return &r.db.tradeEvents
	}
	return &r.db.listingEvents
}

func (r memEvents) Append(_ context.Context, e *models.Event) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	log := r.log()
	*log = append(*log, *e)
	return nil
}

func (r memEvents) ListByEntity(_ context.Context, entityID string) ([]models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Event, 0)
	for _, e := range *r.log() {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memEvents) Exists(_ context.Context, entityID string, eventType models.EventType) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, e := range *r.log() {
		if e.EntityID == entityID && e.EventType == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (db *memDB) countEvents(trading bool, entityID string, eventType models.EventType) int {
	events, _ := memEvents{db: db, trading: trading}.ListByEntity(context.Background(), entityID)
	n := 0
	for _, e := range events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// notifications

type memNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *memNotifier) Notify(_ context.Context, msg models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *memNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, m := range n.sent {
		out[i] = m.Kind
	}
	return out
}

// testClock is a settable clock shared by services and stores.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func user(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Roles: []models.UserRole{models.RoleUser}}
}

func admin(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Roles: []models.UserRole{models.RoleAdmin}}
}
