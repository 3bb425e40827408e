package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falconlabs/falcon/pkg/types"
)

func TestClaimNextJobEmptyQueue(t *testing.T) {
	store := newTestWikiStore(t)
	job, err := store.ClaimNextJob(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNextJobStampsClaim(t *testing.T) {
	store := newTestWikiStore(t)
	ctx := context.Background()
	wiki, queued := createWiki(t, store)

	job, err := store.ClaimNextJob(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queued.ID, job.ID)
	assert.Equal(t, wiki.ID, job.WikiID)
	assert.Equal(t, types.JobStatusRunning, job.Status)
	assert.Equal(t, "worker-1", job.WorkerID)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.StartedAt)

	// The queue is now empty from any worker's point of view.
	next, err := store.ClaimNextJob(ctx, "worker-2")
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestClaimOrdering(t *testing.T) {
	store := newTestWikiStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	ids := make([]string, 3)
	for i := range ids {
		w := newWiki()
		w.Owner = fmt.Sprintf("owner%d", i)
		j := newJob(w.ID)
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateWikiWithJob(ctx, w, j))
		ids[i] = j.ID
	}

	// Bump the newest job's priority; it should be claimed first, then the
	// rest oldest-first.
	_, err := store.db.ExecContext(ctx, "UPDATE jobs SET priority = 10 WHERE id = ?", ids[2])
	require.NoError(t, err)

	var order []string
	for {
		job, err := store.ClaimNextJob(ctx, "w")
		require.NoError(t, err)
		if job == nil {
			break
		}
		order = append(order, job.ID)
	}
	assert.Equal(t, []string{ids[2], ids[0], ids[1]}, order)
}

func TestClaimExclusivity(t *testing.T) {
	store := newTestWikiStore(t)
	ctx := context.Background()

	const jobs = 100
	const workers = 8
	for i := 0; i < jobs; i++ {
		w := newWiki()
		w.Owner = fmt.Sprintf("owner%d", i)
		require.NoError(t, store.CreateWikiWithJob(ctx, w, newJob(w.ID)))
	}

	var mu sync.Mutex
	claimed := make(map[string]string) // job id -> worker
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				job, err := store.ClaimNextJob(ctx, worker)
				if err != nil {
					t.Errorf("claim failed: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				prev, dup := claimed[job.ID]
				claimed[job.ID] = worker
				mu.Unlock()
				if dup {
					t.Errorf("job %s claimed by both %s and %s", job.ID, prev, worker)
				}
			}
		}(fmt.Sprintf("worker-%d", i))
	}
	wg.Wait()

	assert.Len(t, claimed, jobs, "every job claimed exactly once")
	running, err := store.CountJobsByStatus(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, jobs, running)
}

func TestRecoverOrphanedJobs(t *testing.T) {
	store := newTestWikiStore(t)
	ctx := context.Background()
	_, job := createWiki(t, store)

	claimed, err := store.ClaimNextJob(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	n, err := store.RecoverOrphanedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusQueued, got.Status)
	assert.Empty(t, got.WorkerID)
	assert.Equal(t, 1, got.Attempts, "attempts are not refunded on recovery")

	// The recovered job is claimable again.
	again, err := store.ClaimNextJob(ctx, "worker-2")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
}

func TestRetryBudgetExhaustion(t *testing.T) {
	store := newTestWikiStore(t)
	ctx := context.Background()
	_, job := createWiki(t, store) // max_attempts = 3

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := store.ClaimNextJob(ctx, "worker-1")
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d should be claimable", attempt)
		assert.Equal(t, attempt, claimed.Attempts)
		require.NoError(t, store.RequeueJob(ctx, claimed.ID, "codex exited 1"))
	}

	// Budget spent: the job sits queued but is never handed out again.
	claimed, err := store.ClaimNextJob(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, claimed)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusQueued, got.Status)
	assert.Equal(t, "codex exited 1", got.ErrorMessage)
}

func TestFailJobMarksWikiFailed(t *testing.T) {
	store := newTestWikiStore(t)
	ctx := context.Background()
	wiki, job := createWiki(t, store)

	_, err := store.ClaimNextJob(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, store.FailJob(ctx, job.ID, "clone failed: repository not found"))

	gotJob, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, gotJob.Status)
	assert.Equal(t, "clone failed: repository not found", gotJob.ErrorMessage)
	require.NotNil(t, gotJob.CompletedAt)

	gotWiki, err := store.GetWiki(ctx, wiki.ID)
	require.NoError(t, err)
	assert.Equal(t, types.WikiStatusFailed, gotWiki.Status)
	assert.Equal(t, "clone failed: repository not found", gotWiki.ErrorMessage)
	require.NotNil(t, gotWiki.CompletedAt)
}

func TestCompleteJob(t *testing.T) {
	store := newTestWikiStore(t)
	ctx := context.Background()
	_, job := createWiki(t, store)

	_, err := store.ClaimNextJob(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, store.CompleteJob(ctx, job.ID))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	n, err := store.CountJobsByStatus(ctx, "completed")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetJobByWiki(t *testing.T) {
	store := newTestWikiStore(t)
	ctx := context.Background()
	wiki, job := createWiki(t, store)

	got, err := store.GetJobByWiki(ctx, wiki.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = store.GetJobByWiki(ctx, uuid.NewString())
	assert.ErrorIs(t, err, types.ErrNotFound)
}
