package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormSyncLogRepository(t *testing.T) {
	db := setupBillingDB(t)
	repo := NewGormSyncLogRepository(db.DB)
	ctx := context.Background()

	_, err := repo.FindLatest(ctx)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	base := time.Now().Add(-time.Hour)
	newLog := func(name string, fileType billing.FileType, offset time.Duration) *billing.SyncLog {
		l, err := billing.NewSyncLog(name, fileType)
		require.NoError(t, err)
		l.StartedAt = base.Add(offset)
		require.NoError(t, repo.Save(ctx, l))
		return l
	}

	agent := newLog("koinor-sync-agent", billing.FileTypeAgent, 0)
	ledger := newLog("estado.xml", billing.FileTypeUnknown, 10*time.Minute)
	snapshot := newLog("cxc.xml", billing.FileTypeSnapshot, 20*time.Minute)

	t.Run("save updates an existing run", func(t *testing.T) {
		ledger.SetFileType(billing.FileTypeLedger)
		require.NoError(t, ledger.Complete(billing.RunCounters{TotalRows: 3, Created: 2, Errors: 1},
			[]billing.ErrorDetail{{Record: "group 2", Code: "MISSING_FIELD", Message: "numdoc is required"}}))
		require.NoError(t, repo.Save(ctx, ledger))

		got, err := repo.FindLatest(ctx, billing.FileTypeLedger)
		require.NoError(t, err)
		assert.Equal(t, ledger.ID, got.ID)
		assert.Equal(t, billing.RunStatusPartial, got.Status)
		assert.Equal(t, 2, got.Counters.Created)
		require.Len(t, got.ErrorDetails, 1)
		assert.Equal(t, "MISSING_FIELD", got.ErrorDetails[0].Code)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("latest across types orders by completion", func(t *testing.T) {
		got, err := repo.FindLatest(ctx)
		require.NoError(t, err)
		// the ledger run completed just now, after the snapshot started
		assert.Equal(t, ledger.ID, got.ID)
	})

	t.Run("latest of a type", func(t *testing.T) {
		got, err := repo.FindLatest(ctx, billing.FileTypeAgent)
		require.NoError(t, err)
		assert.Equal(t, agent.ID, got.ID)
	})

	t.Run("recent is newest first and limited", func(t *testing.T) {
		got, err := repo.FindRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, ledger.ID, got[0].ID)
		assert.Equal(t, snapshot.ID, got[1].ID)
	})
}
