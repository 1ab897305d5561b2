// CLAUDE:SUMMARY Store-operation timings — named operations keyed by evaluation ID, logged and batched into store_ops
// Package trace times store operations and writes them in batches to a
// store_ops table next to the data they describe.
//
//	store := trace.NewStore(sqlDB, logger)
//	store.Init()
//	defer store.Close()
//	database.SetTracer(store)
package trace

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/pkg/kit"
)

const (
	queueSize = 1024
	batchSize = 64
	flushTick = 500 * time.Millisecond
	slowOp    = 100 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS store_ops (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	subject TEXT,
	request_id TEXT,
	query TEXT NOT NULL,
	duration_us INTEGER NOT NULL,
	error TEXT,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_store_ops_subject ON store_ops(subject) WHERE subject != '';
CREATE INDEX IF NOT EXISTS idx_store_ops_ts ON store_ops(ts);
`

// Op is one timed store operation. Subject is the evaluation it touched,
// empty for listings.
type Op struct {
	Name    string
	Subject string
	Query   string
	Elapsed time.Duration
	Err     error
}

// Stats counts operations accepted and discarded since the store started.
type Stats struct {
	Recorded int64 `json:"recorded"`
	Dropped  int64 `json:"dropped"`
}

type row struct {
	name, subject, requestID, query, errMsg string
	durationUs, ts                          int64
}

// Store logs every Op and persists it from a single writer goroutine. When
// the queue is full the row is dropped and counted, the caller never blocks.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	queue  chan row
	done   chan struct{}
	once   sync.Once

	recorded atomic.Int64
	dropped  atomic.Int64
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:     db,
		logger: logger,
		queue:  make(chan row, queueSize),
		done:   make(chan struct{}),
	}
	go s.writer()
	return s
}

func (s *Store) Init() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Record(ctx context.Context, op Op) {
	r := row{
		name:       op.Name,
		subject:    op.Subject,
		requestID:  kit.GetRequestID(ctx),
		query:      strings.Join(strings.Fields(op.Query), " "),
		durationUs: op.Elapsed.Microseconds(),
		ts:         time.Now().UnixMicro(),
	}

	level := slog.LevelDebug
	switch {
	case op.Err != nil:
		level = slog.LevelError
		r.errMsg = op.Err.Error()
	case op.Elapsed > slowOp:
		level = slog.LevelWarn
	}
	if s.logger.Enabled(ctx, level) {
		s.logger.LogAttrs(ctx, level, "store op",
			slog.String("op", op.Name),
			slog.String("subject", op.Subject),
			slog.Duration("elapsed", op.Elapsed),
			slog.String("error", r.errMsg))
	}

	select {
	case s.queue <- r:
		s.recorded.Add(1)
	default:
		s.dropped.Add(1)
	}
}

func (s *Store) Stats() Stats {
	return Stats{Recorded: s.recorded.Load(), Dropped: s.dropped.Load()}
}

// Close flushes queued rows and stops the writer. Safe to call twice.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.queue)
		<-s.done
	})
	return nil
}

func (s *Store) writer() {
	defer close(s.done)
	tick := time.NewTicker(flushTick)
	defer tick.Stop()

	var pending []row
	for {
		select {
		case r, ok := <-s.queue:
			if !ok {
				s.flush(pending)
				return
			}
			if pending = append(pending, r); len(pending) >= batchSize {
				s.flush(pending)
				pending = nil
			}
		case <-tick.C:
			s.flush(pending)
			pending = nil
		}
	}
}

// flush writes rows with one multi-row INSERT.
func (s *Store) flush(rows []row) {
	if len(rows) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO store_ops (name, subject, request_id, query, duration_us, error, ts) VALUES `)
	args := make([]any, 0, len(rows)*7)
	for i, r := range rows {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, r.name, r.subject, r.requestID, r.query, r.durationUs, r.errMsg, r.ts)
	}
	if _, err := s.db.Exec(b.String(), args...); err != nil {
		s.logger.Error("writing store ops", "rows", len(rows), "error", err)
	}
}
