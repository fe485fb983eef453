package sql_test

import (
	"context"
	"testing"
	"time"

	"github.com/renderqueue/core/job"
	gsql "github.com/renderqueue/core/queue/sql"
)

func TestClaimAndCompleteStep(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "test-worker", 0)

	spec := job.NewSpec("render", "video.compose", nil)
	id, _, err := ingestor.Ingest(ctx, spec, 0)
	if err != nil {
		t.Fatal(err)
	}

	jobs, err := claimer.Claim(ctx, "render", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Id != id {
		t.Fatalf("expected to claim the ingested job, got %v", jobs)
	}

	jb := jobs[0]
	if jb.Status != job.Processing {
		t.Fatalf("expected Processing, got %v", jb.Status)
	}

	if err := claimer.CompleteStep(ctx, jb, 0, []byte("ok")); err != nil {
		t.Fatal(err)
	}
	if jb.Status != job.Completed {
		t.Fatalf("expected Completed after last step, got %v", jb.Status)
	}
}

func TestClaimOrdersByPriority(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "test-worker", 0)

	low := job.NewSpec("render", "video.compose", nil)
	low.Priority = job.Low
	urgent := job.NewSpec("render", "video.compose", nil)
	urgent.Priority = job.Urgent

	if _, _, err := ingestor.Ingest(ctx, low, 0); err != nil {
		t.Fatal(err)
	}
	urgentID, _, err := ingestor.Ingest(ctx, urgent, 0)
	if err != nil {
		t.Fatal(err)
	}

	jobs, err := claimer.Claim(ctx, "render", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Id != urgentID {
		t.Fatalf("expected the urgent job claimed first, got %v", jobs)
	}
}

func TestRetryAndDeadLetter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "test-worker", 0)

	spec := job.NewSpec("render", "video.compose", nil)
	spec.MaxAttempts = 1
	if _, _, err := ingestor.Ingest(ctx, spec, 0); err != nil {
		t.Fatal(err)
	}

	jobs, err := claimer.Claim(ctx, "render", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	jb := jobs[0]

	if err := claimer.FailStep(ctx, jb, 0, "boom"); err != nil {
		t.Fatal(err)
	}
	if err := claimer.Retry(ctx, jb, 0, time.Millisecond, "boom"); err != nil {
		t.Fatal(err)
	}
	if jb.Status != job.Pending {
		t.Fatalf("expected Pending after retry, got %v", jb.Status)
	}

	time.Sleep(2 * time.Millisecond)
	jobs, err = claimer.Claim(ctx, "render", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	jb = jobs[0]
	if jb.Attempts != 2 {
		t.Fatalf("expected attempts=2 after re-claim, got %d", jb.Attempts)
	}

	if err := claimer.FailStep(ctx, jb, 0, "boom again"); err != nil {
		t.Fatal(err)
	}
	if err := claimer.DeadLetter(ctx, jb, 0, "boom again"); err != nil {
		t.Fatal(err)
	}
	if jb.Status != job.DeadLetter {
		t.Fatalf("expected DeadLetter, got %v", jb.Status)
	}

	archive := gsql.NewArchive(db, ingestor)
	entries, err := archive.List(ctx, "render", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 archive entry, got %d", len(entries))
	}
}

func TestCancel(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "test-worker", 0)
	observer := gsql.NewObserver(db)

	spec := job.NewSpec("render", "video.compose", nil)
	id, _, err := ingestor.Ingest(ctx, spec, 0)
	if err != nil {
		t.Fatal(err)
	}

	jb, err := observer.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	if err := claimer.Cancel(ctx, jb); err != nil {
		t.Fatal(err)
	}
	if jb.Status != job.Cancelled {
		t.Fatalf("expected Cancelled, got %v", jb.Status)
	}
}

func TestSweepExpired(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "test-worker", 0)

	spec := job.NewSpec("render", "video.compose", nil)
	if _, _, err := ingestor.Ingest(ctx, spec, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := claimer.Claim(ctx, "render", 1, time.Millisecond*20); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond * 40)

	count, err := claimer.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stalled job recovered, got %d", count)
	}

	jobs, err := claimer.Claim(ctx, "render", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Status != job.Processing {
		t.Fatalf("expected the stalled job to be reclaimable after sweep, got %v", jobs)
	}
}

func TestSweepExpiredDeadLettersWhenAttemptsExhausted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "test-worker", 0)

	spec := job.NewSpec("render", "video.compose", nil)
	spec.MaxAttempts = 1
	if _, _, err := ingestor.Ingest(ctx, spec, 0); err != nil {
		t.Fatal(err)
	}

	jobs, err := claimer.Claim(ctx, "render", 1, time.Millisecond*20)
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].Attempts != 1 {
		t.Fatalf("expected attempts=1 after first claim, got %d", jobs[0].Attempts)
	}
	time.Sleep(time.Millisecond * 40)

	count, err := claimer.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stalled job resolved, got %d", count)
	}

	archive := gsql.NewArchive(db, ingestor)
	entries, err := archive.List(ctx, "render", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the attempts-exhausted stall to be dead-lettered, got %d archive entries", len(entries))
	}

	jobs, err = claimer.Claim(ctx, "render", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected the dead-lettered job not to be claimable, got %v", jobs)
	}
}

func TestReclaimOwn(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "worker-a", 0)

	spec := job.NewSpec("render", "video.compose", nil)
	if _, _, err := ingestor.Ingest(ctx, spec, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := claimer.Claim(ctx, "render", 1, time.Hour); err != nil {
		t.Fatal(err)
	}

	// A lease that has not expired is not picked up by SweepExpired...
	swept, err := claimer.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if swept != 0 {
		t.Fatalf("expected SweepExpired to ignore a live lease, got %d", swept)
	}

	// ...but ReclaimOwn recovers it immediately since it belongs to
	// this worker id.
	reclaimed, err := claimer.ReclaimOwn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 job reclaimed, got %d", reclaimed)
	}

	jobs, err := claimer.Claim(ctx, "render", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected the reclaimed job to be claimable again, got %v", jobs)
	}
}

func TestScheduledJobBecomesClaimableAfterDelay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ingestor := gsql.NewIngestor(db)
	claimer := gsql.NewClaimer(db, "test-worker", 0)

	spec := job.NewSpec("render", "video.compose", nil)
	id, _, err := ingestor.Ingest(ctx, spec, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	jobs, err := claimer.Claim(ctx, "render", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected a scheduled job not yet due to be unclaimable, got %v", jobs)
	}

	time.Sleep(40 * time.Millisecond)

	jobs, err = claimer.Claim(ctx, "render", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Id != id {
		t.Fatalf("expected the scheduled job to become claimable once due, got %v", jobs)
	}
}
