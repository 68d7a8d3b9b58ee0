package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/prospect-crm/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestProspectRepo_InsertCompany(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProspectRepo(db)

	mock.ExpectQuery("INSERT INTO crm_companies").
		WithArgs(sqlmock.AnyArg(), "FormaPro", "Formation", "", "Paris", "75001", "", "", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("co-1"))

	id, err := repo.InsertCompany(context.Background(), "user-1", &domain.ParsedCompany{
		RaisonSocial: "FormaPro", Activite: "Formation", City: "Paris", PostalCode: "75001",
	})
	require.NoError(t, err)
	assert.Equal(t, "co-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepo_InsertCompanyError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProspectRepo(db)

	boom := errors.New("duplicate key")
	mock.ExpectQuery("INSERT INTO crm_companies").WillReturnError(boom)

	_, err := repo.InsertCompany(context.Background(), "user-1", &domain.ParsedCompany{RaisonSocial: "X"})
	assert.ErrorIs(t, err, boom)
}

func TestProspectRepo_InsertContact(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProspectRepo(db)

	mock.ExpectQuery("INSERT INTO crm_contacts").
		WithArgs(sqlmock.AnyArg(), "co-1", "Dupont", "Jean", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ct-1"))

	id, err := repo.InsertContact(context.Background(), "user-1", "co-1", &domain.ParsedContact{Nom: "Dupont", Prenom: "Jean"})
	require.NoError(t, err)
	assert.Equal(t, "ct-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepo_InsertPhonesBatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProspectRepo(db)

	mock.ExpectExec("INSERT INTO crm_phones").
		WithArgs(sqlmock.AnyArg(), "ct-1", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.InsertPhones(context.Background(), "user-1", "ct-1", []domain.Phone{
		{Number: "0611223344", Label: "principal"},
		{Number: "0698765432", Label: "tel_2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProspectRepo_InsertPhonesEmpty(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProspectRepo(db)

	n, err := repo.InsertPhones(context.Background(), "user-1", "ct-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportJobRepo_Lifecycle(t *testing.T) {
	db, mock := newMock(t)
	repo := NewImportJobRepo(db)

	mock.ExpectExec("INSERT INTO crm_import_jobs").
		WithArgs(sqlmock.AnyArg(), "sess-1", "prospects.csv", "user-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE crm_import_jobs").
		WithArgs("failed", 1, 2, 3, "connection reset", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &domain.ImportJob{SessionID: "sess-1", Filename: "prospects.csv", ImportedBy: "user-1", Total: 3}
	id, err := repo.Start(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, domain.ImportJobRunning, job.Status)

	err = repo.Fail(context.Background(), id, domain.ImportCounts{Companies: 1, Contacts: 2, Phones: 3}, "connection reset")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportJobRepo_CompleteUnknown(t *testing.T) {
	db, mock := newMock(t)
	repo := NewImportJobRepo(db)

	mock.ExpectExec("UPDATE crm_import_jobs").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Complete(context.Background(), "missing", domain.ImportCounts{})
	assert.ErrorIs(t, err, ErrImportJobNotFound)
}

func TestImportJobRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewImportJobRepo(db)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM crm_import_jobs").WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "filename", "imported_by", "status", "total_companies",
			"companies_count", "contacts_count", "phones_count", "error_message", "started_at", "completed_at",
		}).AddRow("job-1", "sess-1", "prospects.csv", "user-1", "completed", 2, 2, 3, 4, "", started, started))

	job, err := repo.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ImportJobCompleted, job.Status)
	assert.Equal(t, domain.ImportCounts{Companies: 2, Contacts: 3, Phones: 4}, job.Counts)
	require.NotNil(t, job.CompletedAt)

	mock.ExpectQuery("FROM crm_import_jobs").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrImportJobNotFound)
}
