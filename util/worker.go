package util

import (
	"errors"
	"sync"

	"github.com/mohitkumar/ticketflow/logger"
	"go.uber.org/zap"
)

var ErrWorkerStopped = errors.New("worker stopped")

// Worker drains a buffered channel of tasks on a single goroutine.
type Worker[T any] struct {
	name     string
	stop     chan struct{}
	stopOnce sync.Once
	wg       *sync.WaitGroup
	handler  func(T) error
	taskChan chan T
}

func NewWorker[T any](name string, wg *sync.WaitGroup, handler func(T) error, capacity int) *Worker[T] {
	return &Worker[T]{
		name:     name,
		stop:     make(chan struct{}),
		wg:       wg,
		handler:  handler,
		taskChan: make(chan T, capacity),
	}
}

func (w *Worker[T]) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case task := <-w.taskChan:
				if err := w.handler(task); err != nil {
					logger.Error("error in executing task in worker", zap.String("worker", w.name), zap.Any("task", task), zap.Error(err))
				}
			case <-w.stop:
				logger.Info("stopping worker", zap.String("worker", w.name))
				return
			}
		}
	}()
}

// Send enqueues a task, blocking while the buffer is full.
func (w *Worker[T]) Send(task T) error {
	select {
	case <-w.stop:
		return ErrWorkerStopped
	default:
	}
	select {
	case w.taskChan <- task:
		return nil
	case <-w.stop:
		return ErrWorkerStopped
	}
}

func (w *Worker[T]) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}
