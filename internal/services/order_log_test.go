package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/thebridge/bridge-checkout/internal/models"
)

const trackedOrdersDDL = `CREATE TABLE tracked_orders (
	id TEXT PRIMARY KEY,
	member_id TEXT NOT NULL,
	pub_track_id TEXT,
	order_id INTEGER,
	kind TEXT NOT NULL,
	processor_id INTEGER,
	amount REAL,
	outcome TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER,
	message TEXT,
	request TEXT DEFAULT '{}',
	placed_at DATETIME NOT NULL,
	resolved_at DATETIME,
	created_at DATETIME,
	updated_at DATETIME
)`

func newTestOrderLog(t *testing.T) (*GormOrderLog, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "orders.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec(trackedOrdersDDL).Error)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewGormOrderLog(db), db
}

func placed(memberID, pubTrackID string, at time.Time) *models.TrackedOrder {
	return &models.TrackedOrder{
		ID:          uuid.New(),
		MemberID:    memberID,
		PubTrackID:  pubTrackID,
		Kind:        models.OrderKindMembership,
		ProcessorID: int(models.ProcessorPayPal),
		Outcome:     "pending",
		Request:     []byte(`{"membershipId":2}`),
		PlacedAt:    at,
	}
}

func TestGormOrderLog_RecordOutcomeUpdatesLatestPlacement(t *testing.T) {
	log, db := newTestOrderLog(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	older := placed("member-1", "TRK-1", base)
	newer := placed("member-1", "TRK-1", base.Add(time.Minute))
	foreign := placed("member-2", "TRK-1", base.Add(2*time.Minute))
	for _, o := range []*models.TrackedOrder{older, newer, foreign} {
		require.NoError(t, log.RecordPlacement(ctx, o))
	}

	resolvedAt := base.Add(5 * time.Minute)
	require.NoError(t, log.RecordOutcome(ctx, "member-1", "TRK-1", "completed", 3, "", resolvedAt))

	var rows []models.TrackedOrder
	require.NoError(t, db.Order("placed_at ASC").Find(&rows).Error)
	require.Len(t, rows, 3)

	assert.Equal(t, older.ID, rows[0].ID)
	assert.Equal(t, "pending", rows[0].Outcome)
	assert.Nil(t, rows[0].ResolvedAt)

	assert.Equal(t, newer.ID, rows[1].ID)
	assert.Equal(t, "completed", rows[1].Outcome)
	assert.Equal(t, 3, rows[1].Attempts)
	require.NotNil(t, rows[1].ResolvedAt)
	assert.True(t, resolvedAt.Equal(*rows[1].ResolvedAt))

	assert.Equal(t, "pending", rows[2].Outcome, "other members' orders are untouched")
}

func TestGormOrderLog_SettledOutcomeIsKept(t *testing.T) {
	log, _ := newTestOrderLog(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, log.RecordPlacement(ctx, placed("member-1", "TRK-1", now)))

	require.NoError(t, log.RecordOutcome(ctx, "member-1", "TRK-1", "query_error", 2, "We could not confirm your payment status.", now))
	require.NoError(t, log.RecordOutcome(ctx, "member-1", "TRK-1", "completed", 4, "", now))
	require.NoError(t, log.RecordOutcome(ctx, "member-1", "TRK-1", "aborted", 1, "Payment tracking was stopped.", now))

	orders, err := log.ListForMember(ctx, "member-1", 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "completed", orders[0].Outcome)
	assert.Equal(t, 4, orders[0].Attempts)
	assert.Empty(t, orders[0].Message)
}

func TestGormOrderLog_RecordOutcomeWithoutPlacement(t *testing.T) {
	log, _ := newTestOrderLog(t)

	err := log.RecordOutcome(context.Background(), "member-1", "TRK-missing", "completed", 1, "", time.Now())

	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGormOrderLog_Listing(t *testing.T) {
	log, _ := newTestOrderLog(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"TRK-1", "TRK-2", "TRK-3"} {
		require.NoError(t, log.RecordPlacement(ctx, placed("member-1", id, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, log.RecordPlacement(ctx, placed("member-2", "TRK-9", base.Add(time.Hour))))

	mine, err := log.ListForMember(ctx, "member-1", 2)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "TRK-3", mine[0].PubTrackID)
	assert.Equal(t, "TRK-2", mine[1].PubTrackID)
	assert.JSONEq(t, `{"membershipId":2}`, string(mine[0].Request))

	recent, err := log.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, "member-2", recent[0].MemberID)
}
