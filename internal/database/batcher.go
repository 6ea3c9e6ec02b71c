package database

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"callcore/internal/logging"
	"callcore/internal/telephony"
)

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 2 * time.Second
	BufferSize           = 5000
	flushTimeout         = 10 * time.Second
)

// LogWriter stores a batch of call logs. Repository implements it.
type LogWriter interface {
	InsertCallLogs(ctx context.Context, logs []CallLog) error
}

// Recorder is a telephony.Sink that records every disconnected connection.
// Logs are buffered and written in batches by a background worker, so
// OnDisconnect never blocks the tracker.
type Recorder struct {
	telephony.NopSink

	writer        LogWriter
	batchSize     int
	flushInterval time.Duration
	log           *logrus.Entry

	logs      chan CallLog
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	dropped   int
}

// NewRecorder creates a recorder. Non-positive sizes and intervals take
// the defaults.
func NewRecorder(w LogWriter, batchSize int, flushInterval time.Duration) *Recorder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &Recorder{
		writer:        w,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		log:           logging.For("history"),
		logs:          make(chan CallLog, BufferSize),
	}
}

// Start launches the background worker.
func (b *Recorder) Start() {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return
	}
	b.isRunning = true
	b.wg.Add(1)
	b.mu.Unlock()

	go b.worker()
	b.log.Info("Recorder started")
}

// Stop flushes what is buffered and stops the worker. Logs queued after
// Stop are dropped.
func (b *Recorder) Stop() {
	b.mu.Lock()
	if !b.isRunning {
		b.mu.Unlock()
		return
	}
	b.isRunning = false
	close(b.logs)
	b.mu.Unlock()

	b.wg.Wait()
	b.log.Info("Recorder stopped")
}

// OnDisconnect implements telephony.Sink.
func (b *Recorder) OnDisconnect(c telephony.ConnectionInfo, cause telephony.DisconnectCause) {
	b.Queue(CallLogFromConnection(c, cause))
}

// Queue adds a log to the buffer without blocking.
func (b *Recorder) Queue(l CallLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isRunning {
		b.dropped++
		return
	}
	select {
	case b.logs <- l:
	default:
		b.dropped++
		b.log.Warnf("Buffer full, dropping call log %s", l.TelecomCallID)
	}
}

// Dropped returns how many logs were discarded.
func (b *Recorder) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Recorder) worker() {
	defer b.wg.Done()

	buffer := make([]CallLog, 0, b.batchSize)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case l, ok := <-b.logs:
			if !ok {
				if len(buffer) > 0 {
					b.flush(buffer)
				}
				return
			}
			buffer = append(buffer, l)
			if len(buffer) >= b.batchSize {
				b.flush(buffer)
				buffer = buffer[:0]
			}
		case <-ticker.C:
			if len(buffer) > 0 {
				b.flush(buffer)
				buffer = buffer[:0]
			}
		}
	}
}

func (b *Recorder) flush(logs []CallLog) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	batch := append([]CallLog(nil), logs...)
	if err := b.writer.InsertCallLogs(ctx, batch); err != nil {
		b.log.WithError(err).Errorf("Flushing batch of %d call logs", len(batch))
		return
	}
	b.log.Debugf("Flushed %d call logs in %v", len(batch), time.Since(start))
}
