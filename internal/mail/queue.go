package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"roomchat/pkg/logger"
)

const (
	TaskInvitationEmail = "email:invitation"
	queueName           = "mail"
)

// QueueMailer hands invitations to an asynq queue. SendInvitation only
// fails when the task cannot be enqueued; delivery errors are retried by
// the worker.
type QueueMailer struct {
	client *asynq.Client
}

func NewQueueMailer(redisURL string) (*QueueMailer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("mail queue: parse REDIS_URL: %w", err)
	}
	return &QueueMailer{client: asynq.NewClient(opt)}, nil
}

func NewInvitationTask(email InvitationEmail) (*asynq.Task, error) {
	payload, err := json.Marshal(email)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvitationEmail, payload), nil
}

func (m *QueueMailer) SendInvitation(ctx context.Context, email InvitationEmail) error {
	task, err := NewInvitationTask(email)
	if err != nil {
		return fmt.Errorf("encode invitation task: %w", err)
	}
	if _, err := m.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	); err != nil {
		return fmt.Errorf("enqueue invitation: %w", err)
	}
	return nil
}

func (m *QueueMailer) Close() error {
	return m.client.Close()
}

// Worker consumes invitation tasks and delivers them through a Mailer.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redisURL string, concurrency int, delivery Mailer) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("mail worker: parse REDIS_URL: %w", err)
	}

	log := logger.Module("mail.worker")
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
		Logger:      asynqLogger{log: log},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("type", task.Type()).Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskInvitationEmail, HandleInvitationTask(delivery))
	return &Worker{server: srv, mux: mux}, nil
}

// HandleInvitationTask decodes a task payload and delivers it.
func HandleInvitationTask(delivery Mailer) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var email InvitationEmail
		if err := json.Unmarshal(t.Payload(), &email); err != nil {
			return fmt.Errorf("decode invitation task: %v: %w", err, asynq.SkipRetry)
		}
		return delivery.SendInvitation(ctx, email)
	}
}

// Run starts the worker and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
