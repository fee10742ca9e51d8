package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const reconcileTimeout = 5 * time.Minute

// Reconcilable is a store that can repair its cross-document references.
type Reconcilable interface {
	Reconcile(ctx context.Context) (models.ReconcileReport, error)
}

// ReconcileRecorder counts reconciliation passes.
type ReconcileRecorder interface {
	RecordReconcile(report models.ReconcileReport, err error)
}

// Reconciler periodically repairs references left inconsistent by
// multi-document writes that failed halfway.
type Reconciler struct {
	store   Reconcilable
	events  services.EventServiceProvider
	metrics ReconcileRecorder
	cron    *cron.Cron
}

// NewReconciler creates a Reconciler running on schedule, which accepts
// standard cron expressions and descriptors such as "@every 10m".
func NewReconciler(store Reconcilable, events services.EventServiceProvider, metrics ReconcileRecorder, schedule string) (*Reconciler, error) {
	logger := cronLogger{}
	r := &Reconciler{
		store:   store,
		events:  events,
		metrics: metrics,
		cron:    cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
	}

	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start runs the schedule in the background.
func (r *Reconciler) Start() {
	log.Info().Msg("Starting background reconciler...")
	r.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
	log.Info().Msg("Stopped background reconciler.")
}

func (r *Reconciler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()
	_, _ = r.RunOnce(ctx)
}

// RunOnce performs a single reconciliation pass and records its outcome.
func (r *Reconciler) RunOnce(ctx context.Context) (models.ReconcileReport, error) {
	start := time.Now()
	report, err := r.store.Reconcile(ctx)
	r.metrics.RecordReconcile(report, err)
	if err != nil {
		log.Error().Err(err).Msg("Reconciler: pass failed")
		return report, err
	}

	log.Info().
		Int("dangling_replies", report.DanglingReplies).
		Int("followers_repaired", report.FollowersRepaired).
		Int("following_repaired", report.FollowingRepaired).
		Dur("duration", time.Since(start)).
		Msg("Reconciler: pass complete")

	if report.Total() > 0 {
		r.events.Record(ctx, models.Event{
			Type: models.EventSystemReconcile,
			Message: fmt.Sprintf("Repaired %d dangling replies, %d follower and %d following references",
				report.DanglingReplies, report.FollowersRepaired, report.FollowingRepaired),
		})
	}
	return report, nil
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
