// Package jobqueue runs prioritized background work on a bounded pool of
// worker goroutines.
//
// Jobs are dispatched strictly by type priority, FIFO within a type. Some
// types carry a concurrency limit; a job whose type is at its limit waits
// while lower priority jobs run.
package jobqueue

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/prque"
	"github.com/rs/zerolog"
)

// seqBits is the width of the FIFO sequence inside a priority key.
const seqBits = 40

// Job is one unit of queued work.
type Job struct {
	Type   JobType
	Name   string
	fn     func()
	seq    uint64
	queued time.Time
}

func (j *Job) key() int64 {
	return int64(j.Type)<<seqBits - int64(j.seq&(1<<seqBits-1))
}

// Config sizes the worker pool.
type Config struct {
	// Workers is the number of worker goroutines; zero means one per CPU.
	Workers int
	// MaxQueueDepth marks the queue overloaded once this many jobs wait.
	// Zero disables the check.
	MaxQueueDepth int
}

// JobQueue is a priority job scheduler backed by a worker pool.
type JobQueue struct {
	mu   sync.Mutex
	cond *sync.Cond // workers
	idle *sync.Cond // Rendezvous
	// queue holds dispatchable jobs. A job popped while its type is at its
	// limit parks in deferred until a job of that type finishes.
	queue    *prque.Prque[int64, *Job]
	deferred [numJobTypes]*prque.Prque[int64, *Job]
	waiting  int
	seq      uint64

	// Running counts under mu, used to enforce per-type limits.
	active   [numJobTypes]int
	inFlight int

	monitors [numJobTypes]*LoadMonitor

	workers  int
	target   int
	stopping bool
	maxDepth int

	wg  sync.WaitGroup
	log zerolog.Logger
	now func() time.Time
}

// New creates a queue and starts its workers.
func New(cfg Config, logger zerolog.Logger) *JobQueue {
	q := &JobQueue{
		queue:    prque.New[int64, *Job](nil),
		maxDepth: cfg.MaxQueueDepth,
		log:      logger,
		now:      time.Now,
	}
	q.cond = sync.NewCond(&q.mu)
	q.idle = sync.NewCond(&q.mu)
	for i := range q.monitors {
		q.monitors[i] = newLoadMonitor(jobTypes[i])
		q.deferred[i] = prque.New[int64, *Job](nil)
	}
	q.SetThreadCount(cfg.Workers)
	return q
}

// AddJob enqueues fn under the given type. It returns false, without
// queueing, when the type is unknown or the queue is shutting down.
func (q *JobQueue) AddJob(t JobType, name string, fn func()) bool {
	if !t.Valid() || fn == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopping {
		q.monitors[t].dropped.Add(1)
		return false
	}

	q.seq++
	job := &Job{Type: t, Name: name, fn: fn, seq: q.seq, queued: q.now()}
	q.monitors[t].waiting.Add(1)
	metricWaiting.WithLabelValues(t.String()).Inc()
	q.queue.Push(job, job.key())
	q.waiting++
	q.cond.Signal()
	return true
}

// GetJobCount returns the number of waiting jobs of type t.
func (q *JobQueue) GetJobCount(t JobType) int {
	if !t.Valid() {
		return 0
	}
	return int(q.monitors[t].waiting.Load())
}

// GetJobCountTotal returns waiting plus running jobs of type t.
func (q *JobQueue) GetJobCountTotal(t JobType) int {
	if !t.Valid() {
		return 0
	}
	m := q.monitors[t]
	return int(m.waiting.Load() + m.running.Load())
}

// GetJobCountGE returns the number of waiting jobs whose type has priority
// t or higher.
func (q *JobQueue) GetJobCountGE(t JobType) int {
	if t < 0 {
		t = 0
	}
	total := 0
	for i := t; i < numJobTypes; i++ {
		total += int(q.monitors[i].waiting.Load())
	}
	return total
}

// IsOverloaded reports whether any job type misses its latency target or the
// total backlog exceeds MaxQueueDepth.
func (q *JobQueue) IsOverloaded() bool {
	var waiting int64
	for _, m := range q.monitors {
		if m.IsOver() {
			return true
		}
		waiting += m.waiting.Load()
	}
	return q.maxDepth > 0 && waiting > int64(q.maxDepth)
}

// SetThreadCount resizes the worker pool. Zero selects one worker per CPU.
func (q *JobQueue) SetThreadCount(n int) {
	if n <= 0 {
		n = runtime.NumCPU()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopping {
		return
	}
	q.target = n
	for q.workers < q.target {
		q.workers++
		q.wg.Add(1)
		go q.worker()
	}
	// Surplus workers notice the lower target and exit.
	q.cond.Broadcast()
	q.log.Debug().Int("workers", n).Msg("job queue thread count set")
}

// ThreadCount returns the configured number of workers.
func (q *JobQueue) ThreadCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.target
}

// Stats returns a snapshot of every job type.
func (q *JobQueue) Stats() []TypeStats {
	out := make([]TypeStats, 0, numJobTypes)
	for _, m := range q.monitors {
		out = append(out, m.snapshot())
	}
	return out
}

// Rendezvous blocks until no job is waiting or running.
func (q *JobQueue) Rendezvous() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.waiting > 0 || q.inFlight > 0 {
		q.idle.Wait()
	}
}

// Shutdown stops accepting jobs, lets the workers drain what is queued and
// waits for them to exit. It is safe to call more than once.
func (q *JobQueue) Shutdown() {
	q.mu.Lock()
	if !q.stopping {
		q.stopping = true
		q.log.Info().Int("pending", q.waiting).Msg("job queue shutting down")
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
}

// IsStopping reports whether Shutdown has been called.
func (q *JobQueue) IsStopping() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopping
}

func (q *JobQueue) worker() {
	defer q.wg.Done()

	q.mu.Lock()
	for {
		if q.workers > q.target {
			q.workers--
			// Pass on a wakeup this worker may have consumed.
			q.cond.Signal()
			q.mu.Unlock()
			return
		}

		job := q.nextLocked()
		if job == nil {
			if q.stopping && q.waiting == 0 {
				q.workers--
				q.cond.Broadcast()
				q.mu.Unlock()
				return
			}
			q.cond.Wait()
			continue
		}

		q.active[job.Type]++
		q.inFlight++
		q.waiting--
		// Counted as running before it stops counting as waiting.
		q.monitors[job.Type].running.Add(1)
		q.monitors[job.Type].waiting.Add(-1)
		q.mu.Unlock()

		q.run(job)

		q.mu.Lock()
		q.active[job.Type]--
		q.inFlight--
		// The freed slot goes to the oldest parked job of the same type.
		if d := q.deferred[job.Type]; !d.Empty() {
			next, _ := d.Pop()
			q.queue.Push(next, next.key())
			q.cond.Signal()
		}
		if q.waiting == 0 {
			if q.inFlight == 0 {
				q.idle.Broadcast()
			}
			if q.stopping {
				q.cond.Broadcast()
			}
		}
	}
}

// nextLocked pops the highest priority job whose type is below its limit.
// Jobs of a type at its limit move to that type's deferred queue, so each
// job is skipped at most once per freed slot.
func (q *JobQueue) nextLocked() *Job {
	for !q.queue.Empty() {
		job, _ := q.queue.Pop()
		if q.active[job.Type] < jobTypes[job.Type].Limit {
			return job
		}
		q.deferred[job.Type].Push(job, job.key())
	}
	return nil
}

func (q *JobQueue) run(job *Job) {
	m := q.monitors[job.Type]
	label := job.Type.String()

	latency := q.now().Sub(job.queued)
	m.addSample(latency)
	metricWaiting.WithLabelValues(label).Dec()
	metricRunning.WithLabelValues(label).Inc()
	metricLatency.WithLabelValues(label).Observe(latency.Seconds())

	defer func() {
		if r := recover(); r != nil {
			q.log.Error().
				Str("type", label).
				Str("job", job.Name).
				Str("panic", fmt.Sprint(r)).
				Msg("job panicked")
		}
		m.running.Add(-1)
		m.completed.Add(1)
		metricRunning.WithLabelValues(label).Dec()
		metricCompleted.WithLabelValues(label).Inc()
	}()

	job.fn()
}
