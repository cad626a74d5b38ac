package jobs

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"project-review-server/database"
	"project-review-server/middleware"
	"project-review-server/services"
	"project-review-server/storage"
)

// ReferenceSource reports which artifacts are still referenced and which rating aggregates drifted
type ReferenceSource interface {
	FileRefs(ctx context.Context) ([]string, error)
	RatingMismatches(ctx context.Context) ([]database.RatingMismatch, error)
}

// ReconcileConfig tunes the reconciliation job. Revoker and Limiter are optional.
type ReconcileConfig struct {
	Interval    time.Duration
	GracePeriod time.Duration
	Revoker     *services.MemoryRevoker
	Limiter     *middleware.RateLimiter
}

// ReconcileReport summarizes one pass
type ReconcileReport struct {
	OrphansDeleted int
	RatingMismatch int
	TokensPurged   int
	LimitersPurged int
	SweepSupported bool
}

// ReconcileJob removes orphaned artifacts, reports rating drift and purges expired in-memory state
type ReconcileJob struct {
	refs     ReferenceSource
	store    storage.Store
	cfg      ReconcileConfig
	now      func() time.Time
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewReconcileJob creates a new reconciliation job
func NewReconcileJob(refs ReferenceSource, store storage.Store, cfg ReconcileConfig) *ReconcileJob {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &ReconcileJob{
		refs:     refs,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs one pass immediately and then every interval
func (j *ReconcileJob) Start() {
	go j.run()
	log.Printf("🚀 Reconcile job started (every %v)", j.cfg.Interval)
}

// Stop stops the job and waits for an in-flight pass to finish
func (j *ReconcileJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopChan)
		<-j.done
		log.Println("🛑 Reconcile job stopped")
	})
}

func (j *ReconcileJob) run() {
	defer close(j.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-j.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	j.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.stopChan:
			return
		}
	}
}

// RunOnce performs a single reconciliation pass
func (j *ReconcileJob) RunOnce(ctx context.Context) ReconcileReport {
	var report ReconcileReport

	deleted, supported, err := j.sweepOrphans(ctx)
	if err != nil {
		log.Printf("❌ Orphan sweep failed: %v", err)
	}
	report.OrphansDeleted = deleted
	report.SweepSupported = supported

	mismatches, err := j.refs.RatingMismatches(ctx)
	if err != nil {
		log.Printf("❌ Rating consistency check failed: %v", err)
	}
	for _, m := range mismatches {
		log.Printf("⚠️ Project %d has ratingCount=%d but %d rated feedback rows", m.ProjectID, m.RatingCount, m.FeedbackCount)
	}
	report.RatingMismatch = len(mismatches)

	if j.cfg.Revoker != nil {
		report.TokensPurged = j.cfg.Revoker.Cleanup()
	}
	if j.cfg.Limiter != nil {
		report.LimitersPurged = j.cfg.Limiter.Cleanup(time.Hour)
	}

	if report.OrphansDeleted > 0 || report.RatingMismatch > 0 || report.TokensPurged > 0 {
		log.Printf("✅ Reconcile: %d orphaned artifacts deleted, %d rating mismatches, %d revoked tokens purged",
			report.OrphansDeleted, report.RatingMismatch, report.TokensPurged)
	}
	return report
}

// sweepOrphans deletes stored artifacts that nothing references and that are older than the grace period.
// The grace period covers uploads whose project row has not been written yet.
func (j *ReconcileJob) sweepOrphans(ctx context.Context) (int, bool, error) {
	lister, ok := j.store.(storage.Lister)
	if !ok {
		return 0, false, nil
	}

	objects, err := lister.List(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrListUnsupported) {
			return 0, false, nil
		}
		return 0, true, err
	}

	refs, err := j.refs.FileRefs(ctx)
	if err != nil {
		return 0, true, err
	}
	referenced := make(map[string]bool, len(refs))
	for _, ref := range refs {
		referenced[ref] = true
	}

	cutoff := j.now().Add(-j.cfg.GracePeriod)
	deleted := 0
	for _, obj := range objects {
		if referenced[obj.Ref] || obj.ModTime.After(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, obj.Ref); err != nil {
			log.Printf("⚠️ Failed to delete orphaned artifact %s: %v", obj.Ref, err)
			continue
		}
		log.Printf("🧹 Deleted orphaned artifact %s", obj.Ref)
		deleted++
	}
	return deleted, true, nil
}
