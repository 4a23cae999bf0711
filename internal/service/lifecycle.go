package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/lifecycle"
	"github.com/noah-isme/card-market-api/internal/models"
	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
)

// State machines of the four stateful entities.
var (
	ListingMachine = lifecycle.NewMachine("listing", map[models.ListingStatus][]models.ListingStatus{
		models.ListingPublished: {models.ListingDraft},
		models.ListingArchived:  {models.ListingDraft, models.ListingPublished},
		models.ListingSold:      {models.ListingPublished},
	})

	TradeOfferMachine = lifecycle.NewMachine("trade offer", map[models.TradeOfferStatus][]models.TradeOfferStatus{
		models.TradeAccepted:  {models.TradePending},
		models.TradeRejected:  {models.TradePending},
		models.TradeCancelled: {models.TradePending},
		models.TradeExpired:   {models.TradePending},
	})

	HandoverMachine = lifecycle.NewMachine("handover", map[models.HandoverStatus][]models.HandoverStatus{
		models.HandoverVerified: {models.HandoverPending},
		models.HandoverRejected: {models.HandoverPending},
	})

	ReportMachine = lifecycle.NewMachine("report", map[models.ReportStatus][]models.ReportStatus{
		models.ReportResolved: {models.ReportOpen},
		models.ReportRejected: {models.ReportOpen},
	})
)

// eventLog is an append-only audit log keyed by listing or trade offer id.
type eventLog interface {
	Append(ctx context.Context, event *models.Event) error
	ListByEntity(ctx context.Context, entityID string) ([]models.Event, error)
	Exists(ctx context.Context, entityID string, eventType models.EventType) (bool, error)
}

// Notifier delivers notifications after a change committed. Delivery is best
// effort and never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Option customises a lifecycle service.
type Option func(*options)

type options struct {
	now      func() time.Time
	observer lifecycle.Observer
	notifier Notifier
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithObserver reports transition outcomes, typically to metrics.
func WithObserver(observer lifecycle.Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithNotifier sets where counter-party notifications go.
func WithNotifier(notifier Notifier) Option {
	return func(o *options) { o.notifier = notifier }
}

func buildOptions(opts []Option) options {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) notify(ctx context.Context, n models.Notification) {
	if o.notifier == nil || n.UserID == "" {
		return
	}
	o.notifier.Notify(ctx, n)
}

func defaults(validate *validator.Validate, logger *zap.Logger) (*validator.Validate, *zap.Logger) {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return validate, logger
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// notFoundOr maps sql.ErrNoRows to NOT_FOUND and anything else to INTERNAL.
func notFoundOr(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return appErrors.Internal(err, "failed to load "+entity)
}

func actorID(actor *models.JWTClaims) string {
	if actor == nil {
		return ""
	}
	return actor.UserID
}

func requireActor(actor *models.JWTClaims) error {
	if actor == nil || actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	return nil
}

func requireAdmin(actor *models.JWTClaims) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	return nil
}

func stringPtr(s string) *string {
	return &s
}
