package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"storagebooking/internal/clock"
	"storagebooking/internal/domain"
	"storagebooking/internal/metrics"
	"storagebooking/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskRefund = "refund"
)

// Handler executes one outbox task. A returned error schedules a retry.
type Handler func(ctx context.Context, task models.OutboxTask) error

// ErrPermanent marks a handler error that must not be retried.
var ErrPermanent = errors.New("permanent task failure")

type Options struct {
	Retry        RetryPolicy
	PollInterval time.Duration
	BatchSize    int
}

// OutboxWorker executes tasks from the outbox table. Tasks are delivered
// through redis when available, then an in-memory channel, then polling.
type OutboxWorker struct {
	store         domain.OutboxStore
	redis         *redis.Client
	clock         clock.Clock
	retryPolicy   RetryPolicy
	queue         chan models.OutboxTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewOutboxWorker builds a worker with sane defaults. redisClient may be nil.
func NewOutboxWorker(store domain.OutboxStore, redisClient *redis.Client, clk clock.Clock, opts Options, logger *zerolog.Logger) *OutboxWorker {
	retry := opts.Retry.withDefaults()
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	wl := logger.With().Str("component", "outbox_worker").Logger()

	return &OutboxWorker{
		store:         store,
		redis:         redisClient,
		clock:         clk,
		retryPolicy:   retry,
		queue:         make(chan models.OutboxTask, 128),
		redisQueueKey: "outbox:queue",
		deadLetterKey: "outbox:deadletter",
		pollInterval:  opts.PollInterval,
		batchSize:     opts.BatchSize,
		logger:        &wl,
		handlers:      make(map[string]Handler),
	}
}

func (w *OutboxWorker) Register(taskType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[taskType] = h
}

// Enqueue persists a task and dispatches it.
func (w *OutboxWorker) Enqueue(ctx context.Context, task *models.OutboxTask) error {
	if task.TaskType == "" {
		return errors.New("task type is required")
	}
	if task.AggregateID == 0 {
		return errors.New("aggregate id is required")
	}
	if err := w.store.CreateOutboxTask(ctx, task); err != nil {
		return fmt.Errorf("persist outbox task: %w", err)
	}
	w.Dispatch(ctx, *task)
	return nil
}

// Dispatch schedules an already persisted task. Polling picks it up if both
// redis and the local queue are unavailable.
func (w *OutboxWorker) Dispatch(ctx context.Context, task models.OutboxTask) {
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
}

// Start launches main loop; stops when ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processQueued(ctx, t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processQueued(ctx, t)
			continue
		}

		if n := w.PollOnce(ctx); n == 0 {
			w.sleep(ctx)
		}
	}
}

// PollOnce processes one batch of due tasks and returns how many were handled.
func (w *OutboxWorker) PollOnce(ctx context.Context) int {
	tasks, err := w.store.GetPendingOutboxTasks(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("fetch pending outbox tasks")
		}
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *OutboxWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *OutboxWorker) tryLocalQueue() (models.OutboxTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.OutboxTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.OutboxTask, bool) {
	if w.redis == nil {
		return models.OutboxTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.OutboxTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.OutboxTask{}, false
	}
	if len(res) != 2 {
		return models.OutboxTask{}, false
	}
	var task models.OutboxTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.OutboxTask{}, false
	}
	return task, true
}

// processQueued reloads the task so a delivery that raced with polling is not run twice.
func (w *OutboxWorker) processQueued(ctx context.Context, queued models.OutboxTask) {
	task, err := w.store.GetOutboxTask(ctx, queued.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", queued.ID).Msg("reload queued task")
		return
	}
	if task.Status == models.OutboxCompleted || task.Status == models.OutboxFailed {
		return
	}
	w.processTask(ctx, task)
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.OutboxTask) {
	w.mu.RLock()
	handler, ok := w.handlers[task.TaskType]
	w.mu.RUnlock()
	if !ok {
		w.failTask(ctx, task, fmt.Errorf("unknown task type: %s", task.TaskType))
		return
	}

	if err := handler(ctx, *task); err != nil {
		if errors.Is(err, ErrPermanent) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
	metrics.IncOutbox(task.TaskType, models.OutboxCompleted)
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := w.retryPolicy.NextRunAt(w.clock.Now(), attempt)
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("task scheduled for retry")
	metrics.IncOutbox(task.TaskType, models.OutboxRetry)
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.OutboxTask, cause error) {
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("task failed permanently")
	metrics.IncOutbox(task.TaskType, models.OutboxFailed)
	w.pushDeadLetter(ctx, task)
}

func (w *OutboxWorker) pushRedis(ctx context.Context, task models.OutboxTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, task *models.OutboxTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
