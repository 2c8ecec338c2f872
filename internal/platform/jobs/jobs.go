package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Dispatcher submits deferred jobs for execution at or after processAt and
// returns an opaque handle identifying the submitted job. Implementations
// must not block on job execution.
type Dispatcher interface {
	Enqueue(ctx context.Context, taskType string, payload interface{}, processAt time.Time) (string, error)
}

// AsynqDispatcher implements Dispatcher on top of an asynq client backed by
// Redis. The returned handle is the asynq task id.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(redisAddr string) *AsynqDispatcher {
	return &AsynqDispatcher{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
	}
}

func (d *AsynqDispatcher) Enqueue(ctx context.Context, taskType string, payload interface{}, processAt time.Time) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskType, b)
	info, err := d.client.EnqueueContext(ctx, task, asynq.ProcessAt(processAt))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// Server wraps an asynq worker that consumes deferred jobs from Redis.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewServer(redisAddr string, concurrency int, logger zerolog.Logger) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error().
					Err(err).
					Str("task_type", task.Type()).
					Msg("task failed")
			}),
		},
	)

	return &Server{
		srv: srv,
		mux: asynq.NewServeMux(),
	}
}

// HandleFunc registers a handler for the given task type.
func (s *Server) HandleFunc(taskType string, handler func(context.Context, *asynq.Task) error) {
	s.mux.HandleFunc(taskType, handler)
}

// Run starts processing tasks and blocks until Shutdown is called or the
// server fails.
func (s *Server) Run() error {
	return s.srv.Run(s.mux)
}

// Shutdown stops the server gracefully, waiting for in-flight tasks.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}
