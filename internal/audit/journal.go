package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alitto/pond"
	"go.uber.org/zap"
)

// Journal is the append-only JSON-lines audit log. Writes are synchronous
// from the caller's perspective (ordering is preserved) but the flush-to-disk
// step is handed to a bounded worker pool so a slow disk never stalls the
// single decision-core goroutine (spec §5's resource policy). The pool is
// taken as a raw *pond.WorkerPool rather than pkg/concurrency's wrapper:
// the wrapper's logging hook is shaped for the arbitrage-engine adapters
// and pulls in that subsystem's dependency chain for no benefit here.
type Journal interface {
	Write(e Event) error
	Flush() error
	Close() error
	EventCount() int
}

type fileJournal struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	pool   *pond.WorkerPool
	count  int
	logger *zap.Logger
}

// NewFileJournal opens (creating if needed) outputDir/filename for append
// and returns a Journal backed by it. pool may be nil, in which case every
// write flushes synchronously.
func NewFileJournal(outputDir, filename string, pool *pond.WorkerPool, logger *zap.Logger) (Journal, error) {
	if filename == "" {
		filename = "audit_events.jsonl"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create output dir: %w", err)
	}
	path := filepath.Join(outputDir, filename)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open journal file: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &fileJournal{
		file:   f,
		writer: bufio.NewWriter(f),
		pool:   pool,
		logger: logger,
	}, nil
}

// Write appends one JSON line and requires the event to carry its kind's
// mandatory fields (spec §9: the dispatcher refuses to write an incomplete event).
func (j *fileJournal) Write(e Event) error {
	if missing := e.missingRequiredFields(); len(missing) > 0 {
		return fmt.Errorf("audit: event kind %q missing required fields: %v", e.Kind, missing)
	}

	line, err := json.Marshal(e.ToMap())
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}

	j.mu.Lock()
	if _, err := j.writer.Write(line); err != nil {
		j.mu.Unlock()
		return fmt.Errorf("audit: write event: %w", err)
	}
	if _, err := j.writer.WriteString("\n"); err != nil {
		j.mu.Unlock()
		return fmt.Errorf("audit: write newline: %w", err)
	}
	j.count++
	j.mu.Unlock()

	flush := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if err := j.writer.Flush(); err != nil {
			j.logger.Error("audit journal flush failed", zap.Error(err))
			return
		}
		if err := j.file.Sync(); err != nil {
			j.logger.Error("audit journal sync failed", zap.Error(err))
		}
	}

	if j.pool != nil {
		return j.pool.Submit(flush)
	}
	flush()
	return nil
}

func (j *fileJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writer.Flush()
}

func (j *fileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

func (j *fileJournal) EventCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// NullJournal discards every event. Used in tests.
type NullJournal struct{}

func (NullJournal) Write(Event) error { return nil }
func (NullJournal) Flush() error      { return nil }
func (NullJournal) Close() error      { return nil }
func (NullJournal) EventCount() int   { return 0 }
