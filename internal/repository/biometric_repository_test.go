package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campusops/attendance-engine/internal/models"
)

func newScanRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBiometricRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewBiometricRepository(db)
	rows := sqlmock.NewRows([]string{"id"}).AddRow("scan-1")
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO biometric_scans")).
		WillReturnRows(rows)

	created, err := repo.Insert(context.Background(), &models.BiometricScan{
		DeviceID:    "gate-1",
		BiometricID: "SN-1001",
		ScanTime:    time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBiometricRepositoryInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewBiometricRepository(db)
	// ON CONFLICT DO NOTHING returns nothing on redelivery.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO biometric_scans")).
		WillReturnError(sql.ErrNoRows)

	created, err := repo.Insert(context.Background(), &models.BiometricScan{
		DeviceID:    "gate-1",
		BiometricID: "SN-1001",
		ScanTime:    time.Now().UTC(),
	})
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBiometricRepositoryClaim(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewBiometricRepository(db)
	recordID := "rec-1"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE biometric_scans")).
		WithArgs(&recordID, sqlmock.AnyArg(), "scan-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.Claim(context.Background(), "scan-1", &recordID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBiometricRepositoryClaimAlreadyProcessed(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewBiometricRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE biometric_scans")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.Claim(context.Background(), "scan-1", nil, time.Now().UTC())
	require.NoError(t, err)
	require.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}
