package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventCols = []string{"id", "event_id", "event_type", "status", "payload", "received_at", "processed_at",
	"attempt_count", "last_error", "created_at", "updated_at"}

func TestPostgresRepository_InsertReportsDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO webhook_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO webhook_events").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	repo := NewPostgresRepository(mock)
	ev := Event{ID: uuid.New(), EventID: "evt-1", Status: StatusPending, Payload: []byte(`{}`)}
	inserted, err := repo.Insert(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Insert(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListRetryableOldestFirst(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("WHERE status IN").
		WithArgs(5, 100).
		WillReturnRows(pgxmock.NewRows(eventCols).
			AddRow(uuid.New(), "evt-1", "PAYMENT_STATUS_CHANGED", "FAILED", []byte(`{}`), now, (*time.Time)(nil), 2, "gateway down", now, now))

	events, err := NewPostgresRepository(mock).ListRetryable(context.Background(), 5, 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, StatusFailed, events[0].Status)
	assert.Equal(t, 2, events[0].AttemptCount)
	assert.Nil(t, events[0].ProcessedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
