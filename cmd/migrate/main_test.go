package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func expectLock(mock sqlmock.Sqlmock, acquired bool) {
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(acquired))
}

func expectLedger(mock sqlmock.Sqlmock, applied ...string) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crm_schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"version"})
	for _, v := range applied {
		rows.AddRow(v)
	}
	mock.ExpectQuery("SELECT version FROM crm_schema_migrations").WillReturnRows(rows)
}

func TestMigrate_AppliesPendingFiles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := writeMigrations(t, map[string]string{
		"001_crm_prospects.sql": "CREATE TABLE crm_companies (id uuid);",
		"002_crm_notes.sql":     "CREATE TABLE crm_notes (id uuid);",
		"003_empty.sql":         "  \n",
		"README.txt":            "not a migration",
	})

	expectLock(mock, true)
	expectLedger(mock, "001_crm_prospects.sql")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE crm_notes (id uuid);")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO crm_schema_migrations").
		WithArgs("002_crm_notes.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, migrate(context.Background(), db, dir))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_StopsAtFirstFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := writeMigrations(t, map[string]string{
		"001_a.sql": "CREATE TABLE a (id int);",
		"002_b.sql": "CREATE TABLE b (id int);",
	})

	expectLock(mock, true)
	expectLedger(mock)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a (id int);")).
		WillReturnError(errors.New(`relation "a" already exists`))
	mock.ExpectRollback()
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	err = migrate(context.Background(), db, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_a.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_CommitFailureIsReported(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := writeMigrations(t, map[string]string{"001_a.sql": "CREATE TABLE a (id int);"})
	boom := errors.New("could not serialize access")

	expectLock(mock, true)
	expectLedger(mock)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a (id int);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO crm_schema_migrations").WithArgs("001_a.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(boom)
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))

	err = migrate(context.Background(), db, dir)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RefusesConcurrentRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dir := writeMigrations(t, map[string]string{"001_a.sql": "CREATE TABLE a (id int);"})
	expectLock(mock, false)

	err = migrate(context.Background(), db, dir)
	assert.ErrorIs(t, err, errLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_MissingDir(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = migrate(context.Background(), db, filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT tablename FROM pg_tables").
		WillReturnRows(sqlmock.NewRows([]string{"tablename"}).AddRow("crm_companies").AddRow("crm_contacts"))

	var out bytes.Buffer
	require.NoError(t, list(context.Background(), db, &out))
	assert.Equal(t, "  crm_companies\n  crm_contacts\nTotal: 2 tables\n", out.String())
}

func TestList_RowError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection lost")
	mock.ExpectQuery("SELECT tablename FROM pg_tables").
		WillReturnRows(sqlmock.NewRows([]string{"tablename"}).AddRow("crm_companies").RowError(0, boom))

	var out bytes.Buffer
	err = list(context.Background(), db, &out)
	assert.ErrorIs(t, err, boom)
	assert.NotContains(t, out.String(), "Total")
}
