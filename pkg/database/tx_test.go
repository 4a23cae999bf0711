package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestWithinTxCommits(t *testing.T) {
	db, mock := newMock(t)
	tr := NewTransactor(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE listings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		_, ok := TxFrom(ctx)
		require.True(t, ok)
		_, err := Conn(ctx, db).ExecContext(ctx, "UPDATE listings SET status = 'SOLD'")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	tr := NewTransactor(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := tr.WithinTx(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxJoinsOuterTransaction(t *testing.T) {
	db, mock := newMock(t)
	tr := NewTransactor(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := tr.WithinTx(context.Background(), func(outer context.Context) error {
		outerTx, _ := TxFrom(outer)
		return tr.WithinTx(outer, func(inner context.Context) error {
			innerTx, _ := TxFrom(inner)
			assert.Same(t, outerTx, innerTx)
			return nil
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnFallsBackToDB(t *testing.T) {
	db, _ := newMock(t)
	assert.Equal(t, sqlx.ExtContext(db), Conn(context.Background(), db))
}
