package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server   *asynq.Server
	log      *logrus.Entry
	chapters ChapterWriter
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(redisOpt asynq.RedisClientOpt, chapters ChapterWriter, concurrency int, logger *logrus.Logger) *WorkerServer {
	if chapters == nil {
		panic("ChapterWriter cannot be nil for WorkerServer")
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID := ""
				if rw := task.ResultWriter(); rw != nil {
					taskID = rw.TaskID()
				}
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_id":   taskID,
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
			Logger:   logEntry,
			LogLevel: asynq.WarnLevel,
		},
	)

	return &WorkerServer{
		server:   server,
		log:      logEntry,
		chapters: chapters,
	}
}

// NewServeMux 注册所有任务处理器
func NewServeMux(chapters ChapterWriter) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeChapterFlush, NewChapterFlushHandler(chapters))
	return mux
}

// Start 启动任务处理，不阻塞。进程信号由调用者处理，之后调用 Shutdown。
func (ws *WorkerServer) Start() error {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Start(NewServeMux(ws.chapters)); err != nil {
		if errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Info("Worker server already stopped.")
			return nil
		}
		ws.log.WithError(err).Error("Could not start worker server")
		return err
	}
	return nil
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
