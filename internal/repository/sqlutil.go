package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/card-market-api/internal/lifecycle"
	"github.com/noah-isme/card-market-api/internal/models"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// IsUniqueViolation reports whether err is a postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	return pqCode(err) == pqUniqueViolation
}

// IsForeignKeyViolation reports whether err references a missing row.
func IsForeignKeyViolation(err error) bool {
	return pqCode(err) == pqForeignKeyViolation
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	return pqCode(err) == pqCheckViolation
}

// ConstraintName returns the violated constraint, if any.
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

type columnSet map[string]struct{}

func columns(names ...string) columnSet {
	set := make(columnSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// buildStatusUpdate renders the conditional write for a lifecycle change:
//
//	UPDATE <table> SET status = $1, updated_at = $2[, col = $n...]
//	WHERE id = $i AND status = ANY($j)
//
// Only whitelisted columns may ride along with the status.
func buildStatusUpdate[S ~string](table string, allowed columnSet, change lifecycle.Change[S]) (string, []interface{}, error) {
	if len(change.From) == 0 {
		return "", nil, fmt.Errorf("%s: status change without source states", table)
	}

	args := []interface{}{string(change.To), change.At}
	sets := []string{"status = $1", "updated_at = $2"}
	for _, a := range change.Set {
		if _, ok := allowed[a.Column]; !ok {
			return "", nil, fmt.Errorf("%s: column %q cannot change with status", table, a.Column)
		}
		args = append(args, a.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", a.Column, len(args)))
	}

	from := make([]string, len(change.From))
	for i, s := range change.From {
		from[i] = string(s)
	}
	args = append(args, change.ID, pq.Array(from))

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND status = ANY($%d)",
		table, strings.Join(sets, ", "), len(args)-1, len(args))
	return query, args, nil
}

func execAffected(ctx context.Context, conn sqlx.ExecerContext, query string, args ...interface{}) (int64, error) {
	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// whereBuilder accumulates positional conditions.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(format string, value interface{}) {
	w.args = append(w.args, value)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

func (w *whereBuilder) raw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *whereBuilder) page(p models.Page) (string, []interface{}) {
	args := append(append([]interface{}(nil), w.args...), p.PageSize, p.Offset())
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func stringsOf[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
