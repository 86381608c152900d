package workload

import "context"

// FailureLogger logs failed units.
type FailureLogger interface {
	LogFailure(err error)
}

// loggingTask wraps a Task with failure logging.
type loggingTask struct {
	inner  Task
	logger FailureLogger
}

// WithLogging wraps a Task to log failures. A nil logger returns task unchanged.
//
// There is no retry counterpart: a retried unit would be timed twice.
func WithLogging(task Task, logger FailureLogger) Task {
	if logger == nil {
		return task
	}
	return &loggingTask{
		inner:  task,
		logger: logger,
	}
}

func (l *loggingTask) Do(ctx context.Context) error {
	err := l.inner.Do(ctx)
	if err != nil && l.logger != nil {
		l.logger.LogFailure(err)
	}
	return err
}
