package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"storagebooking/internal/clock"
	"storagebooking/internal/database"
	"storagebooking/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	err   error
	calls []models.OutboxTask
}

func (r *recorder) handle(_ context.Context, task models.OutboxTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, task)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestWorker(t *testing.T, rdb *redis.Client, retry RetryPolicy) (*OutboxWorker, *database.DB, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(testNow)
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger, database.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	w := NewOutboxWorker(db, rdb, clk, Options{Retry: retry, PollInterval: 10 * time.Millisecond}, &logger)
	return w, db, clk
}

func enqueue(t *testing.T, w *OutboxWorker) *models.OutboxTask {
	t.Helper()
	task := &models.OutboxTask{TaskType: TaskRefund, AggregateID: 7, Payload: `{"transaction_id":1}`}
	require.NoError(t, w.Enqueue(context.Background(), task))
	require.NotZero(t, task.ID)
	return task
}

func TestProcessTaskSuccess(t *testing.T) {
	w, db, _ := newTestWorker(t, nil, RetryPolicy{})
	rec := &recorder{}
	w.Register(TaskRefund, rec.handle)
	ctx := context.Background()

	enqueue(t, w)
	queued, ok := w.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	w.processQueued(ctx, queued)

	stored, err := db.GetOutboxTask(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxCompleted, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Nil(t, stored.NextRetryAt)
	assert.NotNil(t, stored.ProcessedAt)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, `{"transaction_id":1}`, rec.calls[0].Payload)

	// A second delivery of a completed task is ignored.
	w.processQueued(ctx, queued)
	assert.Equal(t, 1, rec.count())
}

func TestProcessTaskRetry(t *testing.T) {
	w, db, clk := newTestWorker(t, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second})
	rec := &recorder{err: errors.New("boom")}
	w.Register(TaskRefund, rec.handle)
	ctx := context.Background()

	task := enqueue(t, w)
	assert.Equal(t, 1, w.PollOnce(ctx))

	stored, err := db.GetOutboxTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxRetry, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.NextRetryAt)
	assert.True(t, stored.NextRetryAt.Equal(testNow.Add(time.Second)))
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "boom", *stored.LastError)

	assert.Equal(t, 0, w.PollOnce(ctx), "task is not due yet")

	clk.Add(time.Second)
	rec.err = nil
	assert.Equal(t, 1, w.PollOnce(ctx))

	stored, err = db.GetOutboxTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxCompleted, stored.Status)
}

func TestProcessTaskFail(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	w, db, _ := newTestWorker(t, rdb, RetryPolicy{MaxRetries: 1})
	w.Register(TaskRefund, (&recorder{err: errors.New("fatal")}).handle)
	ctx := context.Background()

	task := enqueue(t, w)
	w.PollOnce(ctx)

	stored, err := db.GetOutboxTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxFailed, stored.Status)

	dead, err := mr.List("outbox:deadletter")
	require.NoError(t, err)
	require.Len(t, dead, 1)
	var decoded models.OutboxTask
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &decoded))
	assert.Equal(t, task.ID, decoded.ID)
}

func TestProcessTaskPermanentError(t *testing.T) {
	w, db, _ := newTestWorker(t, nil, RetryPolicy{MaxRetries: 5})
	w.Register(TaskRefund, func(context.Context, models.OutboxTask) error {
		return fmt.Errorf("bad payload: %w", ErrPermanent)
	})
	ctx := context.Background()

	task := enqueue(t, w)
	w.PollOnce(ctx)

	stored, err := db.GetOutboxTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxFailed, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
}

func TestProcessTaskUnknownType(t *testing.T) {
	w, db, _ := newTestWorker(t, nil, RetryPolicy{})
	ctx := context.Background()

	task := &models.OutboxTask{TaskType: "mystery", AggregateID: 1}
	require.NoError(t, db.CreateOutboxTask(ctx, task))
	w.PollOnce(ctx)

	failed, err := db.GetFailedOutboxTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, task.ID, failed[0].ID)
}

func TestEnqueueValidation(t *testing.T) {
	w, _, _ := newTestWorker(t, nil, RetryPolicy{})
	ctx := context.Background()

	assert.Error(t, w.Enqueue(ctx, &models.OutboxTask{AggregateID: 1}))
	assert.Error(t, w.Enqueue(ctx, &models.OutboxTask{TaskType: TaskRefund}))
}

func TestDispatchViaRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	w, _, _ := newTestWorker(t, rdb, RetryPolicy{})
	ctx := context.Background()

	task := enqueue(t, w)
	_, local := w.tryLocalQueue()
	assert.False(t, local, "redis delivery must bypass the local queue")

	queued, err := mr.List("outbox:queue")
	require.NoError(t, err)
	require.Len(t, queued, 1)

	got, ok := w.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, task.ID, got.ID)
}

func TestDispatchRedisDownFallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	w, _, _ := newTestWorker(t, rdb, RetryPolicy{})
	task := enqueue(t, w)

	got, ok := w.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, task.ID, got.ID)
}

func TestStartProcessesAndStops(t *testing.T) {
	w, db, _ := newTestWorker(t, nil, RetryPolicy{})
	rec := &recorder{}
	w.Register(TaskRefund, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	task := enqueue(t, w)
	require.Eventually(t, func() bool {
		stored, err := db.GetOutboxTask(context.Background(), task.ID)
		return err == nil && stored.Status == models.OutboxCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, 1, rec.count())
}
