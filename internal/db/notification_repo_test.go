package db

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

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Mock Rows ---

// recordMockRows implements pgx.Rows for the notification list queries.
type recordMockRows struct {
	data    []recordRowData
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

type recordRowData struct {
	notificationID string
	idempotencyKey string
	userID         string
	platform       string
	title          string
	body           string
	deviceTokens   []string
	status         string
	attempts       int
	providerResp   types.ProviderResponse
	errorMessage   *string
	createdAt      time.Time
	updatedAt      time.Time
}

func (r *recordMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx <= len(r.data)
}

func (r *recordMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx-1]
	*dest[0].(*string) = row.notificationID
	*dest[1].(*string) = row.idempotencyKey
	*dest[2].(*string) = row.userID
	*dest[3].(*string) = row.platform
	*dest[4].(*string) = row.title
	*dest[5].(*string) = row.body
	*dest[6].(*[]string) = row.deviceTokens
	*dest[7].(*string) = row.status
	*dest[8].(*int) = row.attempts
	*dest[9].(*types.ProviderResponse) = row.providerResp
	*dest[10].(**string) = row.errorMessage
	*dest[11].(*time.Time) = row.createdAt
	*dest[12].(*time.Time) = row.updatedAt
	return nil
}

func (r *recordMockRows) Close()                                       { r.closed = true }
func (r *recordMockRows) Err() error                                   { return r.errVal }
func (r *recordMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *recordMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *recordMockRows) RawValues() [][]byte                          { return nil }
func (r *recordMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *recordMockRows) Conn() *pgx.Conn                              { return nil }

func testRecord() *types.NotificationRecord {
	return &types.NotificationRecord{
		NotificationID: "notif-1",
		IdempotencyKey: "evt-1",
		UserID:         "u1",
		Platform:       types.PlatformAndroid,
		Title:          "Welcome",
		Body:           "Hello from PushGate",
		DeviceTokens:   []string{"tok-a", "tok-b"},
		Status:         types.StatusProcessing,
		Attempts:       0,
	}
}

// ============================================================
// Upsert Tests
// ============================================================

func TestNotificationRepository_Upsert_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Upsert(ctx, testRecord())
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestNotificationRepository_Upsert_DefaultsStatus(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	rec := testRecord()
	rec.Status = ""

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			// status is the 8th argument ($8)
			assert.Equal(t, "pending", sqlArgs[7], "empty status should default to 'pending'")
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Upsert(ctx, rec)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestNotificationRepository_Upsert_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Upsert(ctx, testRecord())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	db.AssertExpectations(t)
}

// ============================================================
// UpdateStatus Tests
// ============================================================

func TestNotificationRepository_UpdateStatus_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, "sent", sqlArgs[0])
			assert.Equal(t, 1, sqlArgs[1])
			assert.Equal(t, "notif-1", sqlArgs[4])
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.UpdateStatus(ctx, "notif-1", types.StatusSent, 1,
		types.ProviderResponse{"message_id": "prov-123"}, "")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestNotificationRepository_UpdateStatus_EmptyOptionalsWriteNull(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Nil(t, sqlArgs[3], "empty error message should be NULL")
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.UpdateStatus(ctx, "notif-1", types.StatusSent, 1, nil, "")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestNotificationRepository_UpdateStatus_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.UpdateStatus(ctx, "notif-missing", types.StatusFailed, 3, nil, "gateway timeout")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeNotFoundNotification, types.CodeOf(err))
	db.AssertExpectations(t)
}

func TestNotificationRepository_UpdateStatus_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.UpdateStatus(ctx, "notif-1", types.StatusFailed, 3, nil, "gateway timeout")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	db.AssertExpectations(t)
}

// ============================================================
// Get Tests
// ============================================================

func TestNotificationRepository_Get_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	errMsg := "provider rejected tokens"

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "notif-1"
			*dest[1].(*string) = "evt-1"
			*dest[2].(*string) = "u1"
			*dest[3].(*string) = "android"
			*dest[4].(*string) = "Welcome"
			*dest[5].(*string) = "Hello from PushGate"
			*dest[6].(*[]string) = []string{"tok-a"}
			*dest[7].(*string) = "failed"
			*dest[8].(*int) = 3
			*dest[9].(*types.ProviderResponse) = types.ProviderResponse{"code": "UNREGISTERED"}
			*dest[10].(**string) = &errMsg
			*dest[11].(*time.Time) = createdAt
			*dest[12].(*time.Time) = createdAt.Add(10 * time.Second)
			return nil
		},
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(row)

	rec, err := repo.Get(ctx, "notif-1")
	require.NoError(t, err)
	assert.Equal(t, "notif-1", rec.NotificationID)
	assert.Equal(t, types.PlatformAndroid, rec.Platform)
	assert.Equal(t, types.StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, "provider rejected tokens", rec.ErrorMessage)
	assert.Equal(t, types.ProviderResponse{"code": "UNREGISTERED"}, rec.ProviderResponse)
	db.AssertExpectations(t)
}

func TestNotificationRepository_Get_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	rec, err := repo.Get(ctx, "notif-missing")
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, types.ErrCodeNotFoundNotification, types.CodeOf(err))
	db.AssertExpectations(t)
}

// ============================================================
// List Tests
// ============================================================

func TestNotificationRepository_ListByUser_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := &recordMockRows{
		data: []recordRowData{
			{notificationID: "notif-2", idempotencyKey: "evt-2", userID: "u1",
				platform: "android", title: "B", body: "b", status: "sent",
				attempts: 1, createdAt: now, updatedAt: now},
			{notificationID: "notif-1", idempotencyKey: "evt-1", userID: "u1",
				platform: "ios", title: "A", body: "a", status: "failed",
				attempts: 3, createdAt: now.Add(-time.Hour), updatedAt: now},
		},
	}

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, "u1", sqlArgs[0])
			assert.Equal(t, 100, sqlArgs[1], "default limit should be 100")
		}).
		Return(rows, nil)

	recs, err := repo.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "notif-2", recs[0].NotificationID)
	assert.Equal(t, types.StatusSent, recs[0].Status)
	assert.Equal(t, "notif-1", recs[1].NotificationID)
	assert.True(t, rows.closed, "rows must be closed after iteration")
	db.AssertExpectations(t)
}

func TestNotificationRepository_ListByUser_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&recordMockRows{}, nil)

	recs, err := repo.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
	db.AssertExpectations(t)
}

func TestNotificationRepository_ListFailed_UsesStatusFilterAndDefaultLimit(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, "failed", sqlArgs[0])
			assert.Equal(t, 50, sqlArgs[1], "default limit should be 50")
		}).
		Return(&recordMockRows{}, nil)

	_, err := repo.ListFailed(ctx, 0)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestNotificationRepository_List_ScanError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	rows := &recordMockRows{
		data:    []recordRowData{{notificationID: "notif-1"}},
		scanErr: errors.New("type mismatch"),
	}
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	_, err := repo.ListByUser(ctx, "u1", 10)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestNotificationRepository_List_RowsError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	rows := &recordMockRows{errVal: errors.New("connection reset mid-stream")}
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	_, err := repo.ListFailed(ctx, 10)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

// ============================================================
// DeleteBefore Tests
// ============================================================

func TestNotificationRepository_DeleteBefore_ReturnsCount(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	cutoff := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Equal(t, cutoff, sqlArgs[0])
		}).
		Return(pgconn.NewCommandTag("DELETE 42"), nil)

	n, err := repo.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	db.AssertExpectations(t)
}

func TestNotificationRepository_DeleteBefore_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := repo.DeleteBefore(ctx, time.Now())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}
