package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

/*
LEARNING: SHARDED WORKER POOL

Presence writes are fire-and-forget: a slow database must never stall the
realtime gateway. Jobs go into bounded queues drained by a fixed set of
workers, like any worker pool, with one twist: every job for a session id is
hashed onto the same worker. A session's touch and its later remove are
therefore applied in the order they were submitted, so a quick
join-then-disconnect can't leave a ghost row behind.
*/

type presenceOp int

const (
	presenceTouch presenceOp = iota
	presenceRemove
)

func (op presenceOp) String() string {
	if op == presenceRemove {
		return "remove"
	}
	return "touch"
}

const presenceWriteTimeout = 5 * time.Second

// PresenceJob is one queued write against the session store.
type PresenceJob struct {
	op        presenceOp
	ListID    uint
	SessionID string
	UserAgent string
}

// PresenceWriterImpl applies presence writes in the background.
type PresenceWriterImpl struct {
	store  SessionStore
	queues []chan PresenceJob
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	log *logrus.Entry
}

// NewPresenceWriter builds the pool; call Start before submitting.
func NewPresenceWriter(store SessionStore, workers, queueSize int) *PresenceWriterImpl {
	if workers < 1 {
		workers = 1
	}
	queues := make([]chan PresenceJob, workers)
	for i := range queues {
		queues[i] = make(chan PresenceJob, queueSize)
	}
	return &PresenceWriterImpl{
		store:  store,
		queues: queues,
		log:    logrus.WithField("component", "presence_writer"),
	}
}

func (w *PresenceWriterImpl) Start() {
	w.log.WithField("workers", len(w.queues)).Info("🔧 Starting presence writer")
	for i, q := range w.queues {
		w.wg.Add(1)
		go w.worker(i, q)
	}
}

// Touch queues an upsert of the session's presence row.
func (w *PresenceWriterImpl) Touch(listID uint, sessionID, userAgent string) error {
	return w.submit(PresenceJob{op: presenceTouch, ListID: listID, SessionID: sessionID, UserAgent: userAgent})
}

// Remove queues deletion of the session's presence row.
func (w *PresenceWriterImpl) Remove(sessionID string) error {
	return w.submit(PresenceJob{op: presenceRemove, SessionID: sessionID})
}

// submit never blocks. A full queue drops the job.
func (w *PresenceWriterImpl) submit(job PresenceJob) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return fmt.Errorf("%w: writer is shut down", ErrPersistenceUnavailable)
	}

	select {
	case w.queues[w.shard(job.SessionID)] <- job:
		return nil
	default:
		return fmt.Errorf("%w: %s queue full for session %s", ErrPersistenceUnavailable, job.op, job.SessionID)
	}
}

func (w *PresenceWriterImpl) shard(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(w.queues)))
}

func (w *PresenceWriterImpl) worker(id int, jobs <-chan PresenceJob) {
	defer w.wg.Done()

	// Drains the queue until Shutdown closes it
	for job := range jobs {
		if err := w.apply(job); err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{
				"worker":     id,
				"op":         job.op.String(),
				"session_id": job.SessionID,
			}).Warn("⚠️  Presence write failed")
		}
	}
}

func (w *PresenceWriterImpl) apply(job PresenceJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
	defer cancel()

	switch job.op {
	case presenceRemove:
		return w.store.Remove(ctx, job.SessionID)
	default:
		return w.store.Touch(ctx, job.ListID, job.SessionID, job.UserAgent)
	}
}

// Shutdown stops accepting jobs, lets the workers finish what is queued and
// waits for them.
func (w *PresenceWriterImpl) Shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for _, q := range w.queues {
		close(q)
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.log.Info("✓ Presence writer shutdown complete")
}

// QueueLength returns the number of pending jobs across all workers.
func (w *PresenceWriterImpl) QueueLength() int {
	n := 0
	for _, q := range w.queues {
		n += len(q)
	}
	return n
}
