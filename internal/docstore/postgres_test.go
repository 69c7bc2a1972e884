package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewPostgres(gormDB), mock
}

func TestPostgresGetNotFound(t *testing.T) {
	store, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT \* FROM "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"collection", "id", "data", "created_at", "updated_at"}))

	_, err := store.Get(context.Background(), "bookings", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetDecodesTimes(t *testing.T) {
	store, mock := newMockPostgres(t)
	entry := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := encodeFields(Fields{"entryTime": entry, "slotId": 3, "status": "active"})
	require.NoError(t, err)

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"collection", "id", "data", "created_at", "updated_at"}).
			AddRow("bookings", "b1", data, now, now))

	doc, err := store.Get(context.Background(), "bookings", "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", doc.ID)

	got, ok := doc.Fields["entryTime"].(time.Time)
	require.True(t, ok, "entryTime should decode to time.Time")
	assert.True(t, entry.Equal(got))
	assert.Equal(t, int64(3), doc.Fields["slotId"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetUpserts(t *testing.T) {
	store, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO "documents" .* ON CONFLICT \("collection","id"\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Set(context.Background(), "bookings", "b1", Fields{"status": "completed"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeDecodeRoundTripKeepsNesting(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	data, err := encodeFields(Fields{
		"slots":     []interface{}{map[string]interface{}{"id": 1, "occupied": true}},
		"updatedAt": at,
	})
	require.NoError(t, err)

	fields, err := decodeFields(data)
	require.NoError(t, err)
	slot, ok := AsFields(fields.Slice("slots")[0])
	require.True(t, ok)
	assert.Equal(t, int64(1), slot["id"])
	assert.Equal(t, true, slot["occupied"])
	ts, ok := fields.Time("updatedAt")
	assert.True(t, ok)
	assert.True(t, at.Equal(ts))
}
