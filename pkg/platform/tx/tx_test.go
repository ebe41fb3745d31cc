package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectBegin()
		mock.ExpectCommit()

		err = Run(context.Background(), db, func(ctx context.Context) error {
			_, ok := From(ctx)
			assert.True(t, ok, "fn sees the transaction")
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = Run(context.Background(), db, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("joins an outer transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectBegin()
		mock.ExpectCommit()

		err = Run(context.Background(), db, func(outer context.Context) error {
			outerTx, _ := From(outer)
			return Run(outer, db, func(inner context.Context) error {
				innerTx, _ := From(inner)
				assert.Same(t, outerTx, innerTx)
				return nil
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil tx leaves context untouched", func(t *testing.T) {
		ctx := WithTx(context.Background(), nil)
		_, ok := From(ctx)
		assert.False(t, ok)
	})
}
