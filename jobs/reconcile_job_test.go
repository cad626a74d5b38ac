package jobs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-review-server/database"
	"project-review-server/middleware"
	"project-review-server/services"
	"project-review-server/storage"
)

type stubRefs struct {
	refs       []string
	mismatches []database.RatingMismatch
}

func (s stubRefs) FileRefs(context.Context) ([]string, error) { return s.refs, nil }

func (s stubRefs) RatingMismatches(context.Context) ([]database.RatingMismatch, error) {
	return s.mismatches, nil
}

// openOnlyStore hides List so the sweep sees a backend it cannot enumerate.
type openOnlyStore struct{ storage.Store }

func saveAged(t *testing.T, store *storage.LocalStore, name string, age time.Duration) string {
	t.Helper()
	ref, err := store.Save(context.Background(), name, strings.NewReader("x"), 1)
	require.NoError(t, err)
	at := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(filepath.Join(store.Dir(), ref), at, at))
	return ref
}

func TestReconcileSweepsOnlyOldOrphans(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	referenced := saveAged(t, store, "kept-1.txt", 48*time.Hour)
	oldOrphan := saveAged(t, store, "orphan-1.txt", 48*time.Hour)
	freshOrphan := saveAged(t, store, "fresh-1.txt", time.Minute)

	revoker := services.NewMemoryRevoker()
	require.NoError(t, revoker.Revoke(context.Background(), "expired", time.Now().Add(-time.Minute)))
	require.NoError(t, revoker.Revoke(context.Background(), "live", time.Now().Add(time.Hour)))

	job := NewReconcileJob(stubRefs{
		refs:       []string{referenced},
		mismatches: []database.RatingMismatch{{ProjectID: 3, RatingCount: 2, FeedbackCount: 1}},
	}, store, ReconcileConfig{
		GracePeriod: 24 * time.Hour,
		Revoker:     revoker,
		Limiter:     middleware.NewRateLimiter(),
	})

	report := job.RunOnce(context.Background())
	assert.True(t, report.SweepSupported)
	assert.Equal(t, 1, report.OrphansDeleted)
	assert.Equal(t, 1, report.RatingMismatch)
	assert.Equal(t, 1, report.TokensPurged)

	for ref, want := range map[string]bool{referenced: true, oldOrphan: false, freshOrphan: true} {
		rc, err := store.Open(context.Background(), ref)
		if want {
			require.NoError(t, err, ref)
			_, _ = io.ReadAll(rc)
			rc.Close()
		} else {
			assert.ErrorIs(t, err, storage.ErrNotFound, ref)
		}
	}
}

func TestReconcileSkipsStoresWithoutListing(t *testing.T) {
	local, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	orphan := saveAged(t, local, "orphan-1.txt", 48*time.Hour)

	job := NewReconcileJob(stubRefs{}, openOnlyStore{local}, ReconcileConfig{GracePeriod: time.Hour})
	report := job.RunOnce(context.Background())
	assert.False(t, report.SweepSupported)
	assert.Zero(t, report.OrphansDeleted)

	rc, err := local.Open(context.Background(), orphan)
	require.NoError(t, err)
	rc.Close()
}

func TestReconcileStartStop(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	job := NewReconcileJob(stubRefs{}, store, ReconcileConfig{Interval: 10 * time.Millisecond})
	job.Start()
	time.Sleep(30 * time.Millisecond)
	job.Stop()
	job.Stop()
}
