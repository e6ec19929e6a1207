package audit

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Onyemech/teemplot-sub006/pkg/logger"
)

// Sink accepts entries that must stay visible even when the business
// transaction that produced them rolled back
type Sink interface {
	Record(entry *Entry)
}

// AsyncSinkConfig holds configuration for the out-of-band sink
type AsyncSinkConfig struct {
	// DB is an independent connection pool; entries written here are not
	// part of any business transaction
	DB *pgxpool.Pool
	// BufferSize is the size of the async buffer (default: 1000)
	BufferSize int
	// FlushInterval is how often to flush the buffer (default: 5 seconds)
	FlushInterval time.Duration
	// BatchSize is the maximum number of entries per flush (default: 100)
	BatchSize int
}

// AsyncSink buffers entries and writes them through its own pool on a
// background worker. Used for admission failures: the primary transaction
// aborted, but operators keep visibility into what was rejected and why.
type AsyncSink struct {
	config    *AsyncSinkConfig
	buffer    chan *Entry
	wg        sync.WaitGroup
	closeOnce sync.Once

	// For testing: collect entries instead of writing to DB
	testMode    bool
	testEntries []*Entry
	testMu      sync.Mutex
}

// NewAsyncSink creates the sink and starts its worker
func NewAsyncSink(config *AsyncSinkConfig) *AsyncSink {
	if config == nil {
		config = &AsyncSinkConfig{}
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	s := &AsyncSink{
		config: config,
		buffer: make(chan *Entry, config.BufferSize),
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// Record adds an entry to the buffer without blocking; when the buffer is
// full the entry is dropped rather than slowing the request path
func (s *AsyncSink) Record(entry *Entry) {
	select {
	case s.buffer <- entry:
	default:
		logger.Warn("audit sink buffer full, dropping entry",
			zap.String("company_id", entry.CompanyID),
			zap.String("action", string(entry.Action)),
		)
	}
}

// Close flushes remaining entries and stops the worker
func (s *AsyncSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.buffer)
		s.wg.Wait()
	})
	return nil
}

// SetTestMode enables collecting entries in memory instead of writing to DB
func (s *AsyncSink) SetTestMode(enabled bool) {
	s.testMu.Lock()
	defer s.testMu.Unlock()
	s.testMode = enabled
	if enabled {
		s.testEntries = make([]*Entry, 0)
	}
}

// TestEntries returns collected entries (test mode only)
func (s *AsyncSink) TestEntries() []*Entry {
	s.testMu.Lock()
	defer s.testMu.Unlock()
	result := make([]*Entry, len(s.testEntries))
	copy(result, s.testEntries)
	return result
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, s.config.BatchSize)

	for {
		select {
		case entry, ok := <-s.buffer:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= s.config.BatchSize {
				s.flush(batch)
				batch = make([]*Entry, 0, s.config.BatchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = make([]*Entry, 0, s.config.BatchSize)
			}
		}
	}
}

func (s *AsyncSink) flush(entries []*Entry) {
	if len(entries) == 0 {
		return
	}

	s.testMu.Lock()
	if s.testMode {
		s.testEntries = append(s.testEntries, entries...)
		s.testMu.Unlock()
		return
	}
	s.testMu.Unlock()

	if s.config.DB == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, entry := range entries {
		if err := Insert(ctx, s.config.DB, entry); err != nil {
			// Audit writes must never block or fail the application
			logger.Warn("failed to write audit entry",
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
		}
	}
}
