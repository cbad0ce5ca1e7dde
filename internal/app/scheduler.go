package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mercato/backoffice/internal/repository"
	"github.com/mercato/backoffice/pkg/health"
)

// Job is one scheduled batch. Every job isolates per-item failures
// internally, so Run returning an error means the whole batch could not
// start.
type Job interface {
	Run(ctx context.Context) error
}

// RunScheduler wires the batch jobs onto a cron runner: payment
// reconciliation, membership billing and termination, and settlement
// payouts. It is the single wiring point for the scheduler binary.
func RunScheduler(ctx context.Context, lg *zap.Logger, m *app.Metrics, cfg *Config) error {
	lg.Info("Initializing scheduler")

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	services, err := BuildServices(pool, cfg)
	if err != nil {
		return errors.Wrap(err, "build services")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)
	defer healthSvc.Stop()

	runner := cron.New(cron.WithSeconds())

	jobs := []struct {
		name    string
		spec    string
		timeout time.Duration
		job     Job
	}{
		{"reconcile", cfg.Reconcile.Spec, 10 * time.Minute, services.Reconciler},
		{"membership-billing", cfg.Membership.BillingSpec, 30 * time.Minute, services.Billing},
		{"membership-termination", cfg.Membership.TerminationSpec, 10 * time.Minute, services.Termination},
		{"settlement-payout", cfg.Settlement.PayoutSpec, time.Hour, services.Payouts},
	}
	for _, j := range jobs {
		if _, err := runner.AddFunc(j.spec, runJob(ctx, lg, j.name, j.timeout, j.job)); err != nil {
			return errors.Wrapf(err, "schedule %s", j.name)
		}
		lg.Info("Job scheduled", zap.String("job", j.name), zap.String("spec", j.spec))
	}

	probeServer := &http.Server{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: time.Second,
		Handler:           probeMux(healthSvc),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runner.Start()
		<-gctx.Done()

		healthSvc.SetReady(false)
		stopCtx := runner.Stop()
		select {
		case <-stopCtx.Done():
			lg.Info("Cron jobs stopped")
		case <-time.After(cfg.Graceful.ShutdownTimeout):
			lg.Warn("Cron jobs forced to stop after timeout")
		}
		return nil
	})
	g.Go(func() error {
		if err := probeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "probe server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()
		return probeServer.Shutdown(shutdownCtx)
	})

	lg.Info("Scheduler running", zap.String("addr", cfg.Addr))
	return g.Wait()
}

// runJob adapts a batch job to a cron entry: per-run timeout, logger in
// context, and error logging. A failed run is logged and retried on the next
// tick; the scheduler itself never stops.
func runJob(ctx context.Context, lg *zap.Logger, name string, timeout time.Duration, job Job) func() {
	jobLg := lg.With(zap.String("job", name))
	return func() {
		runCtx, cancel := context.WithTimeout(zctx.Base(ctx, jobLg), timeout)
		defer cancel()

		jobLg.Info("Job started")
		if err := job.Run(runCtx); err != nil {
			jobLg.Error("Job failed", zap.Error(err))
			return
		}
		jobLg.Info("Job finished")
	}
}

func probeMux(healthSvc *health.Health) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	return mux
}
