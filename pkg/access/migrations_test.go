package access

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	ctx := context.Background()

	t.Run("applies only unapplied versions", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS access_migrations").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT version FROM access_migrations").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

		// Version 1 is already applied; only version 2 runs.
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS form_permissions").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO access_migrations").
			WithArgs(2, "Create form_permissions table").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, RunMigrations(ctx, db))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version scan iteration error aborts the run", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS access_migrations").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT version FROM access_migrations").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).
				AddRow(1).
				RowError(0, errors.New("connection reset")))

		err = RunMigrations(ctx, db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read migration versions")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed migration rolls back and is not recorded", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS access_migrations").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT version FROM access_migrations").
			WillReturnRows(sqlmock.NewRows([]string{"version"}))

		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS forms").
			WillReturnError(errors.New("permission denied"))
		mock.ExpectRollback()

		err = RunMigrations(ctx, db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to execute migration 1")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
