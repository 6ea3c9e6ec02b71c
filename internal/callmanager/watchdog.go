package callmanager

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"callcore/internal/logging"
)

// Watchdog periodically hangs up outgoing calls that have been dialing or
// alerting for longer than the configured limit, so a radio that never
// reports an outcome cannot leave a phone stuck off hook.
type Watchdog struct {
	manager    *CallManager
	interval   time.Duration
	maxDialAge time.Duration
	now        func() time.Time
	log        *logrus.Entry

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewWatchdog creates a watchdog over m.
func NewWatchdog(m *CallManager, interval, maxDialAge time.Duration) *Watchdog {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watchdog{
		manager:    m,
		interval:   interval,
		maxDialAge: maxDialAge,
		now:        time.Now,
		log:        logging.For("watchdog"),
		stopChan:   make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (w *Watchdog) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.wg.Add(1)
	w.mu.Unlock()

	go w.run()
	w.log.Infof("Started (interval=%s, max dial age=%s)", w.interval, w.maxDialAge)
}

// Stop stops the sweep loop.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.log.Info("Stopped")
}

func (w *Watchdog) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			w.sweep(ctx)
			cancel()
		}
	}
}

// sweep hangs up every stale dialing foreground call and returns how many
// phones it acted on.
func (w *Watchdog) sweep(ctx context.Context) int {
	if w.maxDialAge <= 0 {
		return 0
	}
	snaps, err := w.manager.Snapshots(ctx)
	if err != nil {
		w.log.WithError(err).Warn("Sweep failed")
		return 0
	}
	threshold := w.now().Add(-w.maxDialAge)
	cleaned := 0
	for _, s := range snaps {
		if !s.Foreground.State.IsDialing() {
			continue
		}
		stale := false
		for _, c := range s.Foreground.Connections {
			if c.State.IsDialing() && c.CreateTime.Before(threshold) {
				stale = true
			}
		}
		if !stale {
			continue
		}
		if err := w.manager.Hangup(ctx, s.Foreground); err != nil {
			w.log.WithError(err).Warnf("Hangup of stale call on %s failed", s.Phone)
			continue
		}
		cleaned++
		w.log.Warnf("Hung up call on %s stuck in %s", s.Phone, s.Foreground.State)
	}
	return cleaned
}
