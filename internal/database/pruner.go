package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"callcore/internal/logging"
)

// PruneInterval is how often the pruner deletes expired call logs.
const PruneInterval = 10 * time.Minute

// LogPruner deletes call logs older than the configured retention.
type LogPruner interface {
	PruneCallLogs(ctx context.Context, before time.Time) (int64, error)
}

// PruneCallLogs deletes logs created before the cutoff.
func (r *Repository) PruneCallLogs(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM callcore_call_log WHERE created_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("pruning call logs: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// RetentionCleaner periodically prunes expired call logs.
type RetentionCleaner struct {
	repo      LogPruner
	retention time.Duration
	interval  time.Duration
	log       *logrus.Entry
	now       func() time.Time

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewRetentionCleaner creates a cleaner keeping retention worth of logs.
func NewRetentionCleaner(repo LogPruner, retention time.Duration) *RetentionCleaner {
	return &RetentionCleaner{
		repo:      repo,
		retention: retention,
		interval:  PruneInterval,
		log:       logging.For("history"),
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the cleaner worker. It prunes once right away.
func (c *RetentionCleaner) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run()
	c.log.Infof("Retention cleaner started, keeping %s of call logs", c.retention)
}

// Stop stops the cleaner.
func (c *RetentionCleaner) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()
	c.log.Info("Retention cleaner stopped")
}

func (c *RetentionCleaner) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.prune()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.prune()
		}
	}
}

func (c *RetentionCleaner) prune() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	rows, err := c.repo.PruneCallLogs(ctx, c.now().Add(-c.retention))
	if err != nil {
		c.log.WithError(err).Error("Pruning call logs")
		return 0
	}
	if rows > 0 {
		c.log.Infof("Pruned %d expired call logs", rows)
	}
	return rows
}
