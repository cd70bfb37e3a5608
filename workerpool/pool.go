// Package workerpool implements the read/write worker pools of spec.md
// §4.3: a named FIFO job queue per role (reader or writer), serviced by a
// fixed number of worker goroutines, with a future returned at submission
// time and a crash/respawn policy after MAX_WORKER_ERRORS consecutive
// failures on one worker.
//
// It descends from the teacher's broker/fragment/persister.go queue idiom
// (a mutex-guarded slice drained by a dedicated goroutine) and
// async.Promise's wait-for-resolution idiom, generalized from Persister's
// one fixed job (persist a Spool) to arbitrary Jobs, and from Promise's
// void resolution to a (value, error) result.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"go.chainindex.dev/core/config"
)

// Role names a pool's two queues, per spec.md §4.3 ("writer-count <= 1
// serializes all writes to a store; readers may run concurrently").
type Role string

const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
)

// Pool is one of the six named pools of spec.md §4.3 (core, data, gql,
// debug, moderation, bundles): a reader queue and a writer queue, each
// serviced by its own fixed set of worker goroutines.
type Pool struct {
	name    string
	readers *queue
	writers *queue
	wg      sync.WaitGroup
}

// New starts a Pool named name with the given reader and writer worker
// counts. A zero count for a role means that role accepts no jobs (e.g.
// the debug and gql pools are read-only, per spec.md §4.3).
func New(name string, readerCount, writerCount int) *Pool {
	var p = &Pool{name: name, readers: newQueue(), writers: newQueue()}
	for i := 0; i < readerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(RoleReader, p.readers)
	}
	for i := 0; i < writerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(RoleWriter, p.writers)
	}
	return p
}

// SubmitRead enqueues job on the reader queue and returns its Future.
func (p *Pool) SubmitRead(ctx context.Context, job Job) *Future { return p.submit(ctx, RoleReader, job) }

// SubmitWrite enqueues job on the writer queue and returns its Future.
func (p *Pool) SubmitWrite(ctx context.Context, job Job) *Future { return p.submit(ctx, RoleWriter, job) }

func (p *Pool) submit(ctx context.Context, role Role, job Job) *Future {
	var f = newFuture()
	var q = p.queueFor(role)
	q.push(&queuedJob{ctx: ctx, job: job, future: f})
	jobsSubmittedTotal.WithLabelValues(p.name, string(role)).Inc()
	queueDepth.WithLabelValues(p.name, string(role)).Set(float64(q.len()))
	return f
}

func (p *Pool) queueFor(role Role) *queue {
	if role == RoleWriter {
		return p.writers
	}
	return p.readers
}

// Close closes both queues and waits for every job already queued to finish
// before returning. Submission does not check for a closed pool: a job
// submitted after Close is still queued, and runs only if a worker has not
// yet exited; otherwise its Future never resolves.
func (p *Pool) Close() {
	p.readers.close()
	p.writers.close()
	p.wg.Wait()
}

// runWorker drains q, respawning itself (a fresh goroutine with a reset
// error count) after MAX_WORKER_ERRORS consecutive job failures, per
// spec.md §4.3 ("a worker that errors repeatedly is presumed wedged; it is
// discarded and replaced rather than left to spin").
func (p *Pool) runWorker(role Role, q *queue) {
	defer p.wg.Done()

	var consecutiveErrors int
	for {
		var qj, ok = q.pop()
		if !ok {
			return // queue closed and drained.
		}

		var result interface{}
		var err error
		var started = time.Now()
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = errorsFromRecover(r)
				}
			}()
			result, err = qj.job(qj.ctx)
		}()
		jobDurationSeconds.WithLabelValues(p.name, string(role)).Observe(time.Since(started).Seconds())
		queueDepth.WithLabelValues(p.name, string(role)).Set(float64(q.len()))

		qj.future.resolve(result, err)

		if err != nil {
			log.WithFields(log.Fields{"pool": p.name, "role": role, "job_id": qj.future.ID(), "err": err}).
				Warn("job failed")
			jobsFailedTotal.WithLabelValues(p.name, string(role)).Inc()
			consecutiveErrors++
		} else {
			consecutiveErrors = 0
		}

		if consecutiveErrors >= config.MaxWorkerErrors {
			log.WithFields(log.Fields{"pool": p.name, "role": role, "errors": consecutiveErrors}).
				Warn("worker exceeded MAX_WORKER_ERRORS, respawning")
			workerRespawnsTotal.WithLabelValues(p.name, string(role)).Inc()
			p.wg.Add(1)
			go p.runWorker(role, q)
			return
		}
	}
}

func errorsFromRecover(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{r}
}

type panicError struct{ v interface{} }

func (p *panicError) Error() string { return fmt.Sprintf("workerpool: job panicked: %v", p.v) }
