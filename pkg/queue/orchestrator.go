package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/config"
	"github.com/falconlabs/falcon/pkg/events"
	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/metrics"
	"github.com/falconlabs/falcon/pkg/storage"
	"github.com/falconlabs/falcon/pkg/types"
)

// PipelineRunner executes the work a claimed job names. The wiki pipeline is
// the production implementation.
type PipelineRunner interface {
	Execute(ctx context.Context, wikiID string) error
}

// Orchestrator is the durable bounded-concurrency job queue. It claims
// queued jobs atomically, runs each as its own task, retries failures up to
// the job's budget, and recovers jobs orphaned by a crash at startup.
type Orchestrator struct {
	store        *storage.WikiStore
	bus          *events.Bus
	pipeline     PipelineRunner
	workerID     string
	pollInterval time.Duration

	slots  chan struct{}
	active atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// New creates an orchestrator. Concurrency and poll cadence come from
// configuration; each instance gets its own worker id for claim attribution.
func New(store *storage.WikiStore, bus *events.Bus, pipeline PipelineRunner, cfg *config.Settings) *Orchestrator {
	maxJobs := cfg.MaxConcurrentJobs
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &Orchestrator{
		store:        store,
		bus:          bus,
		pipeline:     pipeline,
		workerID:     uuid.NewString(),
		pollInterval: cfg.JobPollInterval(),
		slots:        make(chan struct{}, maxJobs),
		logger:       log.WithComponent("orchestrator"),
	}
}

// Start recovers orphaned jobs and begins polling. It returns once the poll
// loop is running; jobs execute on background goroutines until Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	recovered, err := o.store.RecoverOrphanedJobs(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		o.logger.Info().Int("jobs", recovered).Msg("Recovered orphaned jobs")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return nil // already started
	}
	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	o.wg.Add(1)
	go o.pollLoop(runCtx)

	o.logger.Info().
		Str("worker_id", o.workerID).
		Int("max_concurrent", cap(o.slots)).
		Dur("poll_interval", o.pollInterval).
		Msg("Orchestrator started")
	return nil
}

// Stop halts polling, cancels every in-flight job, and waits for all of them
// to finish. In-flight jobs are requeued or terminally failed by their own
// teardown, so no row is left in status running.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	o.wg.Wait()
	o.logger.Info().Msg("Orchestrator stopped")
}

// ActiveJobs reports how many jobs are currently executing.
func (o *Orchestrator) ActiveJobs() int {
	return int(o.active.Load())
}

func (o *Orchestrator) pollLoop(ctx context.Context) {
	defer o.wg.Done()
	for {
		// A slot must be free before a claim is attempted, so claimed jobs
		// never queue up in memory.
		select {
		case <-ctx.Done():
			return
		case o.slots <- struct{}{}:
		}

		job, err := o.store.ClaimNextJob(ctx, o.workerID)
		switch {
		case err != nil:
			<-o.slots
			if ctx.Err() != nil {
				return
			}
			o.logger.Error().Err(err).Msg("Failed to claim job")
			o.sleep(ctx)
		case job == nil:
			<-o.slots
			o.sleep(ctx)
		default:
			o.wg.Add(1)
			go o.runJob(ctx, job)
		}
	}
}

func (o *Orchestrator) sleep(ctx context.Context) {
	timer := time.NewTimer(o.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// runJob executes one claimed job and retires it: completed on success,
// requeued while retry budget remains, terminally failed otherwise. Terminal
// failure also fails the owning wiki and notifies subscribers. Store updates
// during teardown use a fresh context so a cancelled job still lands in a
// consistent state.
func (o *Orchestrator) runJob(ctx context.Context, job *types.Job) {
	defer o.wg.Done()
	defer func() { <-o.slots }()

	o.active.Add(1)
	defer o.active.Add(-1)

	logger := o.logger.With().
		Str("job_id", job.ID).
		Str("wiki_id", job.WikiID).
		Int("attempt", job.Attempts).
		Logger()
	logger.Info().Msg("Job started")

	err := o.pipeline.Execute(ctx, job.WikiID)
	if err == nil {
		if cerr := o.store.CompleteJob(context.Background(), job.ID); cerr != nil {
			logger.Error().Err(cerr).Msg("Failed to mark job completed")
		}
		metrics.JobsTotal.WithLabelValues("completed").Inc()
		logger.Info().Msg("Job completed")
		return
	}

	if job.Attempts < job.MaxAttempts {
		logger.Warn().Err(err).
			Int("max_attempts", job.MaxAttempts).
			Msg("Job failed, requeueing")
		if rerr := o.store.RequeueJob(context.Background(), job.ID, err.Error()); rerr != nil {
			logger.Error().Err(rerr).Msg("Failed to requeue job")
		}
		metrics.JobsTotal.WithLabelValues("requeued").Inc()
		return
	}

	logger.Error().Err(err).Msg("Job failed, retries exhausted")
	if ferr := o.store.FailJob(context.Background(), job.ID, err.Error()); ferr != nil {
		logger.Error().Err(ferr).Msg("Failed to mark job failed")
	}
	metrics.JobsTotal.WithLabelValues("failed").Inc()

	o.bus.Publish(job.WikiID, types.Event{
		Type: types.EventStatusChange,
		Data: map[string]any{"status": string(types.WikiStatusFailed), "error": err.Error()},
	})
	o.bus.Publish(job.WikiID, types.Event{
		Type: types.EventError,
		Data: map[string]any{"message": err.Error()},
	})
}
