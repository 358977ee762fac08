package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

func newOfferRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestOfferRepositoryFindByAcronym(t *testing.T) {
	db, mock, cleanup := newOfferRepoMock(t)
	defer cleanup()
	repo := NewOfferRepository(db)

	now := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "acronym", "academic_year", "title", "entity_acronym", "created_at", "updated_at"}).
		AddRow("offer-1", "DROI1BA", 2024, "Bachelier en droit", "DRT", now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM offers WHERE acronym = $1 AND academic_year = $2")).
		WithArgs("DROI1BA", 2024).
		WillReturnRows(rows)

	offer, err := repo.FindByAcronym(context.Background(), "DROI1BA", 2024)
	require.NoError(t, err)
	assert.Equal(t, "offer-1", offer.ID)
	assert.Equal(t, "Bachelier en droit", offer.Title)
}

func TestOfferRepositoryFindAddressByOfferNone(t *testing.T) {
	db, mock, cleanup := newOfferRepoMock(t)
	defer cleanup()
	repo := NewOfferRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM score_sheet_addresses sa")).
		WithArgs("offer-1").
		WillReturnError(sql.ErrNoRows)

	address, err := repo.FindAddressByOffer(context.Background(), "offer-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.Nil(t, address)
}

func TestOfferRepositoryUpsertAddress(t *testing.T) {
	db, mock, cleanup := newOfferRepoMock(t)
	defer cleanup()
	repo := NewOfferRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO score_sheet_addresses")).
		WithArgs(sqlmock.AnyArg(), "offer-1", string(models.AddressModeCustom),
			nil, "Faculté de droit", "Place Montesquieu 2", "1348", "Louvain-la-Neuve",
			"Belgique", nil, nil, "secretariat@example.org", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	recipient := "Faculté de droit"
	location := "Place Montesquieu 2"
	postal := "1348"
	city := "Louvain-la-Neuve"
	country := "Belgique"
	email := "secretariat@example.org"
	address := &models.ScoreSheetAddress{
		OfferID:    "offer-1",
		Mode:       models.AddressModeCustom,
		Recipient:  &recipient,
		Location:   &location,
		PostalCode: &postal,
		City:       &city,
		Country:    &country,
		Email:      &email,
	}
	require.NoError(t, repo.UpsertAddress(context.Background(), address))
	assert.NotEmpty(t, address.ID)
	assert.False(t, address.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
