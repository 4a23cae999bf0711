package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/noah-isme/card-market-api/pkg/errors"
)

// Outcomes reported to an Observer.
const (
	OutcomeApplied  = "applied"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Assignment is an extra column written alongside the status.
type Assignment struct {
	Column string
	Value  interface{}
}

// Set is shorthand for an Assignment.
func Set(column string, value interface{}) Assignment {
	return Assignment{Column: column, Value: value}
}

// Change is the conditional write a Store must perform: move row ID into To
// only while its status is one of From.
type Change[S ~string] struct {
	ID   string
	From []S
	To   S
	At   time.Time
	Set  []Assignment
}

// Store persists one entity's status.
type Store[S ~string] interface {
	// UpdateStatus performs the conditional write and returns affected rows.
	UpdateStatus(ctx context.Context, change Change[S]) (int64, error)
	// StatusOf returns the status a reader would observe now, or
	// sql.ErrNoRows when the row does not exist.
	StatusOf(ctx context.Context, id string) (S, error)
}

// Transactor runs fn as one unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Observer receives the outcome of every applied transition.
type Observer interface {
	ObserveTransition(entity, to, outcome string)
}

// Transition requests moving entity ID into To.
type Transition[S ~string] struct {
	ID string
	To S
	// From optionally narrows the machine's allowed sources.
	From []S
	// Set lists extra columns written with the status.
	Set []Assignment
	// At stamps updated_at; defaults to the guard clock.
	At time.Time
	// Record runs in the same unit of work after the status changed. An
	// error undoes the status change.
	Record func(ctx context.Context) error
}

var errStale = errors.New("lifecycle: status changed concurrently")

// Guard applies transitions for one entity.
type Guard[S ~string] struct {
	machine  *Machine[S]
	store    Store[S]
	tx       Transactor
	observer Observer
	now      func() time.Time
}

// NewGuard wires a guard. observer may be nil.
func NewGuard[S ~string](machine *Machine[S], store Store[S], tx Transactor, observer Observer) *Guard[S] {
	return &Guard[S]{
		machine:  machine,
		store:    store,
		tx:       tx,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for At.
func (g *Guard[S]) WithClock(now func() time.Time) *Guard[S] {
	if now != nil {
		g.now = now
	}
	return g
}

// Machine exposes the guard's state machine.
func (g *Guard[S]) Machine() *Machine[S] {
	return g.machine
}

// Apply performs t. When the conditional write matches no row, the unit of
// work is rolled back and the current status is re-read to explain why:
// NOT_FOUND when the row is gone, CONFLICT naming the actual status otherwise.
func (g *Guard[S]) Apply(ctx context.Context, t Transition[S]) error {
	entity := g.machine.Entity()
	sources, err := g.machine.restrict(t.To, t.From)
	if err != nil {
		g.observe(t.To, OutcomeError)
		return appErrors.Internal(err, "invalid state transition")
	}

	at := t.At
	if at.IsZero() {
		at = g.now()
	}
	change := Change[S]{ID: t.ID, From: sources, To: t.To, At: at, Set: t.Set}

	err = g.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := g.store.UpdateStatus(ctx, change)
		if err != nil {
			return fmt.Errorf("update %s status: %w", entity, err)
		}
		if n == 0 {
			return errStale
		}
		if t.Record != nil {
			return t.Record(ctx)
		}
		return nil
	})

	switch {
	case err == nil:
		g.observe(t.To, OutcomeApplied)
		return nil
	case errors.Is(err, errStale):
		return g.explain(ctx, t.ID, t.To)
	default:
		g.observe(t.To, OutcomeError)
		return err
	}
}

func (g *Guard[S]) explain(ctx context.Context, id string, to S) error {
	entity := g.machine.Entity()
	actual, err := g.store.StatusOf(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			g.observe(to, OutcomeNotFound)
			return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
		}
		g.observe(to, OutcomeError)
		return appErrors.Internal(err, "failed to load "+entity)
	}
	g.observe(to, OutcomeConflict)
	return ConflictError(entity, string(actual), string(to))
}

// ConflictError is the error returned when entity is in actual and cannot
// move to target.
func ConflictError(entity, actual, target string) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrConflict,
		fmt.Sprintf("%s is %s; cannot transition to %s", entity, actual, target))
}

func (g *Guard[S]) observe(to S, outcome string) {
	if g.observer != nil {
		g.observer.ObserveTransition(g.machine.Entity(), string(to), outcome)
	}
}
