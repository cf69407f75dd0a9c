package db

// Note: mockDBTX is defined in notification_repo_test.go.

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pushgate/internal/types"
)

// logMockRows implements pgx.Rows for the log archival queries.
type logMockRows struct {
	data    []logRowData
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

type logRowData struct {
	id             int64
	notificationID string
	userID         *string
	event          string
	message        *string
	createdAt      time.Time
}

func (r *logMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx <= len(r.data)
}

func (r *logMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx-1]
	*dest[0].(*int64) = row.id
	*dest[1].(*string) = row.notificationID
	*dest[2].(**string) = row.userID
	*dest[3].(*string) = row.event
	*dest[4].(**string) = row.message
	*dest[5].(*time.Time) = row.createdAt
	return nil
}

func (r *logMockRows) Close()                                       { r.closed = true }
func (r *logMockRows) Err() error                                   { return r.errVal }
func (r *logMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *logMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *logMockRows) RawValues() [][]byte                          { return nil }
func (r *logMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *logMockRows) Conn() *pgx.Conn                              { return nil }

// ============================================================
// Append Tests
// ============================================================

func TestLogRepository_Append_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, "notif-1", sqlArgs[0])
			assert.Equal(t, "u1", sqlArgs[1])
			assert.Equal(t, "received", sqlArgs[2])
			assert.Equal(t, "accepted for delivery", sqlArgs[3])
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Append(ctx, "notif-1", "u1", types.LogEventReceived, "accepted for delivery")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestLogRepository_Append_EmptyOptionalsWriteNull(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Nil(t, sqlArgs[1], "empty user id should be NULL")
			assert.Nil(t, sqlArgs[3], "empty message should be NULL")
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Append(ctx, "notif-1", "", types.LogEventSent, "")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestLogRepository_Append_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Append(ctx, "notif-1", "u1", types.LogEventFailed, "gateway timeout")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	db.AssertExpectations(t)
}

// ============================================================
// ListOlderThan Tests
// ============================================================

func TestLogRepository_ListOlderThan_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogRepository(db)
	ctx := context.Background()

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u1 := "u1"
	msg := "retry scheduled"
	rows := &logMockRows{
		data: []logRowData{
			{id: 1, notificationID: "notif-1", userID: &u1, event: "received",
				createdAt: cutoff.Add(-48 * time.Hour)},
			{id: 2, notificationID: "notif-1", userID: &u1, event: "retry",
				message: &msg, createdAt: cutoff.Add(-47 * time.Hour)},
		},
	}

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, cutoff, sqlArgs[0])
			assert.Equal(t, 100, sqlArgs[1])
		}).
		Return(rows, nil)

	entries, err := repo.ListOlderThan(ctx, cutoff, 100)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, types.LogEventReceived, entries[0].Event)
	assert.Empty(t, entries[0].Message)
	assert.Equal(t, types.LogEventRetry, entries[1].Event)
	assert.Equal(t, "retry scheduled", entries[1].Message)
	assert.True(t, rows.closed, "rows must be closed after iteration")
	db.AssertExpectations(t)
}

func TestLogRepository_ListOlderThan_DefaultLimit(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogRepository(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, 500, sqlArgs[1], "default batch size should be 500")
		}).
		Return(&logMockRows{}, nil)

	entries, err := repo.ListOlderThan(ctx, time.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	db.AssertExpectations(t)
}

func TestLogRepository_ListOlderThan_ScanError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogRepository(db)
	ctx := context.Background()

	rows := &logMockRows{
		data:    []logRowData{{id: 1, notificationID: "notif-1"}},
		scanErr: errors.New("type mismatch"),
	}
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	_, err := repo.ListOlderThan(ctx, time.Now(), 10)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

// ============================================================
// DeleteByIDs Tests
// ============================================================

func TestLogRepository_DeleteByIDs_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, []int64{1, 2, 3}, sqlArgs[0])
		}).
		Return(pgconn.NewCommandTag("DELETE 3"), nil)

	n, err := repo.DeleteByIDs(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	db.AssertExpectations(t)
}

func TestLogRepository_DeleteByIDs_EmptySkipsQuery(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogRepository(db)
	ctx := context.Background()

	n, err := repo.DeleteByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	db.AssertNotCalled(t, "Exec")
}

func TestLogRepository_DeleteByIDs_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLogRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := repo.DeleteByIDs(ctx, []int64{1})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}
