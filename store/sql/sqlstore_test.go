package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/redemption-core/money"
	"github.com/warp/redemption-core/store"
)

func sqlNoRows() error { return sql.ErrNoRows }

func errUnique(msg string) error { return errors.New(msg) }

func moneyAmounts(t *testing.T) (totalBill, discount, final money.Amount) {
	t.Helper()
	var err error
	totalBill, err = money.FromString("50.00")
	require.NoError(t, err)
	discount, err = money.FromString("10.00")
	require.NoError(t, err)
	final, err = money.FromString("40.00")
	require.NoError(t, err)
	return
}

func newMockStore(t *testing.T, dialect string) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &SQLStore{db: db, dialect: dialect}, mock
}

func TestGetOfferSQLiteScansIntegerBooleans(t *testing.T) {
	s, mock := newMockStore(t, "sqlite3")

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "merchant_id", "category_id", "offer_type", "discount_value",
		"original_price", "discounted_price", "valid_from", "valid_until", "time_from", "time_until",
		"valid_weekdays", "is_active", "max_total_claims", "total_claims", "is_featured",
	}).AddRow("o1", "m1", "c1", "PERCENTAGE", "20%", "50.00", "40.00", now, now.Add(24*time.Hour),
		nil, nil, nil, 1, nil, int64(3), 0)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, merchant_id, category_id, offer_type, discount_value,
		original_price, discounted_price, valid_from, valid_until, time_from, time_until,
		valid_weekdays, is_active, max_total_claims, total_claims, is_featured
		FROM offers WHERE id = ?`)).
		WithArgs("o1").
		WillReturnRows(rows)

	offer, err := s.GetOffer(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, offer.IsActive)
	assert.False(t, offer.IsFeatured)
	assert.Equal(t, int64(3), offer.TotalClaims)
	assert.Equal(t, "40.00", offer.DiscountedPrice.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOfferNotFound(t *testing.T) {
	s, mock := newMockStore(t, "sqlite3")
	mock.ExpectQuery(`SELECT id, merchant_id`).
		WithArgs("missing").
		WillReturnError(sqlNoRows())

	_, err := s.GetOffer(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementOfferClaimsPostgresRebindsPlaceholders(t *testing.T) {
	s, mock := newMockStore(t, "postgres")
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE offers SET total_claims = total_claims + 1 WHERE id = $1`)).
		WithArgs("o1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.IncrementOfferClaims(context.Background(), "o1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCASEntitlementStateMismatchReturnsErrCASMismatch(t *testing.T) {
	s, mock := newMockStore(t, "sqlite3")
	mock.ExpectExec(`UPDATE entitlements SET state`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.CASEntitlementState(context.Background(), "e1", store.StateActive, store.StatePendingConfirmation, store.EntitlementUpdate{})
	assert.ErrorIs(t, err, store.ErrCASMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCASEntitlementStateSuccess(t *testing.T) {
	s, mock := newMockStore(t, "sqlite3")
	mock.ExpectExec(`UPDATE entitlements SET state`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CASEntitlementState(context.Background(), "e1", store.StateActive, store.StatePendingConfirmation, store.EntitlementUpdate{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEntitlementUniqueViolationMapsToErrUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t, "sqlite3")
	mock.ExpectExec(`INSERT INTO entitlements`).
		WillReturnError(errUnique("UNIQUE constraint failed: entitlements.user_id"))

	err := s.InsertEntitlement(context.Background(), store.Entitlement{
		ID: "e1", UserID: "u1", OfferID: "o1", State: store.StateActive,
		ClaimedAt: time.Now(), ExpiresAt: time.Now(),
	})
	assert.ErrorIs(t, err, store.ErrUniqueViolation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRedemptionAndUseEntitlementCommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t, "sqlite3")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO redemptions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE entitlements SET state`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	totalBill, discount, final := moneyAmounts(t)
	err := s.InsertRedemptionAndUseEntitlement(context.Background(), store.Redemption{
		ID: "r1", MerchantID: "m1", OfferID: "o1", UserID: "u1",
		OfferType: store.OfferPercentage, TotalBill: totalBill, DiscountAmount: discount,
		FinalAmount: final, RedeemedAt: time.Now(),
	}, "e1", time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRedemptionAndUseEntitlementRollsBackOnCASMismatch(t *testing.T) {
	s, mock := newMockStore(t, "sqlite3")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO redemptions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE entitlements SET state`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	totalBill, discount, final := moneyAmounts(t)
	err := s.InsertRedemptionAndUseEntitlement(context.Background(), store.Redemption{
		ID: "r1", MerchantID: "m1", OfferID: "o1", UserID: "u1",
		OfferType: store.OfferPercentage, TotalBill: totalBill, DiscountAmount: discount,
		FinalAmount: final, RedeemedAt: time.Now(),
	}, "e1", time.Now())
	assert.ErrorIs(t, err, store.ErrCASMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQRebindsOnlyForPostgres(t *testing.T) {
	sqliteStore := &SQLStore{dialect: "sqlite3"}
	assert.Equal(t, "WHERE id = ?", sqliteStore.q("WHERE id = ?"))

	pgStore := &SQLStore{dialect: "postgres"}
	assert.Equal(t, "WHERE id = $1 AND state = $2", pgStore.q("WHERE id = ? AND state = ?"))
}
