package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker consumes ticket called tasks.
type Worker struct {
	server    *asynq.Server
	announcer Announcer
	logger    *slog.Logger
}

// NewWorker creates a worker processing up to concurrency tasks at once.
func NewWorker(redisOpt asynq.RedisConnOpt, concurrency int, announcer Announcer, logger *slog.Logger) *Worker {
	logger = logger.With("component", "notify_worker")
	if concurrency <= 0 {
		concurrency = 1
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	return &Worker{
		server:    srv,
		announcer: announcer,
		logger:    logger,
	}
}

// Handler returns the task mux served by the worker.
func (w *Worker) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTicketCalled, w.HandleTicketCalled)
	return mux
}

// HandleTicketCalled announces a called ticket.
func (w *Worker) HandleTicketCalled(ctx context.Context, t *asynq.Task) error {
	payload, err := ParseTicketCalled(t)
	if err != nil {
		return err
	}

	if err := w.announcer.Announce(ctx, payload); err != nil {
		return fmt.Errorf("announce ticket %s: %w", payload.TicketNumber, err)
	}
	return nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.Handler()); err != nil {
		return fmt.Errorf("start notify worker: %w", err)
	}
	w.logger.Info("notify worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("notify worker stopped")
	return nil
}
