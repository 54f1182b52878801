// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"classcal/internal/apperrors"
	"classcal/internal/auxstore"
	appLog "classcal/internal/log"
	"classcal/internal/metrics"
	"classcal/internal/model"
)

const runTimeout = 5 * time.Minute

// Locator finds the partition holding a session id. A missing session is
// apperrors.ErrSessionNotFound.
type Locator interface {
	Locate(ctx context.Context, id string) (model.Partition, error)
}

// Reconciler removes auxiliary records whose session no longer exists in
// either partition.
type Reconciler struct {
	aux     auxstore.Store
	locator Locator
}

func NewReconciler(aux auxstore.Store, locator Locator) *Reconciler {
	return &Reconciler{aux: aux, locator: locator}
}

// Run sweeps the aux store once and returns how many records it removed.
// Ids whose lookup fails for any reason other than not-found are kept.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	records, err := r.aux.All(ctx)
	if err != nil {
		return 0, err
	}

	removed, skipped := 0, 0
	for id := range records {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		_, err := r.locator.Locate(ctx, id)
		switch {
		case err == nil:
			continue
		case apperrors.Is(err, apperrors.ErrSessionNotFound):
			if derr := r.aux.Delete(ctx, id); derr != nil {
				appLog.Error("reconcile: delete orphan failed", derr, "id", id)
				continue
			}
			removed++
		default:
			skipped++
			appLog.Warn("reconcile: lookup failed, keeping record", "id", id, "err", err)
		}
	}

	metrics.AuxOrphansRemoved(removed)
	appLog.Info("reconcile finished", "records", len(records), "removed", removed, "skipped", skipped)
	return removed, nil
}

// StartReconcile schedules r on spec. The returned cron is already running;
// the caller stops it. An empty spec disables the job and returns nil.
func StartReconcile(ctx context.Context, spec string, r *Reconciler) (*cron.Cron, error) {
	if spec == "" {
		appLog.Info("reconcile job disabled")
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		if _, err := r.Run(runCtx); err != nil {
			appLog.Error("reconcile run failed", err)
		}
	})
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrValidation, "reconcile", "bad cron spec "+spec, err)
	}
	c.Start()
	appLog.Info("reconcile job scheduled", "spec", spec)
	return c, nil
}
