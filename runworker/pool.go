package runworker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Queue is the run-execution job source, backed in production by
// AMQPQueue (adapted to this typed payload rather than worker/pool.go's
// generic interface{} job). Dequeue blocks up to timeout and returns
// (nil, nil) on an empty queue, matching worker/pool.go's contract.
type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*RunExecutionPayload, error)
	Ack(payload *RunExecutionPayload) error
	Nack(payload *RunExecutionPayload, requeue bool) error
}

// Pool runs a fixed number of worker goroutines pulling RunExecutionPayloads
// off queue and handing them to executor.Execute, adapted directly from
// worker/pool.go's Pool/Worker split — generalized from its generic job
// interface to this module's typed payload, and from log.Printf to
// logrus per the ambient logging convention (common/logging.go).
type Pool struct {
	queue    Queue
	executor *Executor
	workers  int
	logger   *logrus.Logger
	stopChan chan struct{}
	tracker  *Tracker
}

// NewPool builds a Pool with workers concurrent goroutines.
func NewPool(queue Queue, executor *Executor, workers int, logger *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pool{
		queue:    queue,
		executor: executor,
		workers:  workers,
		logger:   logger,
		stopChan: make(chan struct{}),
		tracker:  NewTracker(1000),
	}
}

// Tracker exposes the pool's in-memory view of run operations, for an
// operator dashboard endpoint to poll.
func (p *Pool) Tracker() *Tracker {
	return p.tracker
}

// Start launches the worker goroutines. It returns immediately; call Stop
// to shut them down.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.runWorker(ctx, i)
	}
}

// Stop signals every worker to exit after its current job.
func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	p.logger.WithField("worker_id", id).Info("run worker started")
	for {
		select {
		case <-p.stopChan:
			p.logger.WithField("worker_id", id).Info("run worker stopped")
			return
		case <-ctx.Done():
			return
		default:
			p.processNext(ctx, id)
		}
	}
}

func (p *Pool) processNext(ctx context.Context, id int) {
	payload, err := p.queue.Dequeue(ctx, 5*time.Second)
	if err != nil {
		p.logger.WithFields(logrus.Fields{"worker_id": id, "error": err}).Error("dequeue failed")
		time.Sleep(time.Second)
		return
	}
	if payload == nil {
		return
	}

	log := p.logger.WithFields(logrus.Fields{"worker_id": id, "run_id": payload.RunID})
	log.Info("executing run")

	attempt := p.tracker.Start(payload.RunID, id)

	if err := p.executor.Execute(ctx, *payload); err != nil {
		log.WithError(err).Error("run execution failed")
		p.tracker.Finish(payload.RunID, attempt, err)
		_ = p.queue.Nack(payload, false)
		return
	}

	log.Info("run execution completed")
	p.tracker.Finish(payload.RunID, attempt, nil)
	if err := p.queue.Ack(payload); err != nil {
		log.WithError(err).Error("ack failed")
	}
}
