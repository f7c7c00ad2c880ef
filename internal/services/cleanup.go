package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const cleanupInitialDelay = 10 * time.Second

// CleanupWorker periodically deletes lists whose expiry has passed.
type CleanupWorker struct {
	lists        ExpiredListDeleter
	interval     time.Duration
	initialDelay time.Duration
	now          func() time.Time

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	log  *logrus.Entry
}

func NewCleanupWorker(lists ExpiredListDeleter, interval time.Duration) *CleanupWorker {
	return &CleanupWorker{
		lists:        lists,
		interval:     interval,
		initialDelay: cleanupInitialDelay,
		now:          time.Now,
		done:         make(chan struct{}),
		log:          logrus.WithField("component", "cleanup"),
	}
}

// Start runs the first sweep after a short delay, then every interval.
func (c *CleanupWorker) Start() {
	c.log.WithField("interval", c.interval.String()).Info("🔄 Starting expired list cleanup")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		timer := time.NewTimer(c.initialDelay)
		defer timer.Stop()

		select {
		case <-c.done:
			return
		case <-timer.C:
			c.RunOnce(context.Background())
		}

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.RunOnce(context.Background())
			}
		}
	}()
}

// RunOnce performs a single sweep and returns how many lists were deleted.
func (c *CleanupWorker) RunOnce(ctx context.Context) int {
	deleted, err := c.lists.DeleteExpired(ctx, c.now())
	if err != nil {
		c.log.WithError(err).WithField("deleted", deleted).Error("❌ Expired list cleanup failed")
		return deleted
	}
	if deleted > 0 {
		c.log.WithField("deleted", deleted).Info("✓ Deleted expired lists")
	}
	return deleted
}

func (c *CleanupWorker) Shutdown() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}
