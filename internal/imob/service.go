package imob

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long an idle session is kept before pruning.
const DefaultSessionTTL = 30 * time.Minute

// Datastore is the remote tabular store the pipeline talks to. It is the
// only collaborator: the pipeline never owns storage.
type Datastore interface {
	// ExistingKeys returns the subset of keys already present in the
	// imob table. A pure read.
	ExistingKeys(ctx context.Context, keys []string) ([]string, error)

	// LookupLojas fetches reference entries for the given loja ids.
	// A pure read.
	LookupLojas(ctx context.Context, ids []int64) ([]Loja, error)

	// InsertRows appends one batch of rows to the imob table. Each call
	// is atomic on its own; there is no atomicity across calls.
	InsertRows(ctx context.Context, rows []Record) error
}

// Options tunes the pipeline. Zero values fall back to the defaults
// declared in this package.
type Options struct {
	ChunkSize        int
	ChunkConcurrency int
	PreviewLimit     int
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	SessionTTL       time.Duration
}

// Service runs import sessions against a Datastore. It is safe for
// concurrent use; each session serializes its own cycles.
type Service struct {
	db   Datastore
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a Service with the given collaborator and tuning.
func NewService(db Datastore, opts Options) *Service {
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = DefaultPreviewLimit
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		db:       db,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// CreateSession registers a new import session and returns it.
func (s *Service) CreateSession() *Session {
	sess := &Session{
		ID:       uuid.New().String(),
		created:  time.Now(),
		lastUsed: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// Session returns a session by id.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// PruneSessions drops sessions idle past the TTL and returns how many
// were removed.
func (s *Service) PruneSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, sess := range s.sessions {
		if sess.idle(s.opts.SessionTTL) {
			delete(s.sessions, id)
			pruned++
		}
	}
	return pruned
}

// StartSessionJanitor prunes idle sessions periodically until ctx is done.
func (s *Service) StartSessionJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.PruneSessions(); n > 0 {
				slog.Debug("pruned idle import sessions", "count", n)
			}
		}
	}
}

// ProcessInput is the operator's paste plus the selected classification.
type ProcessInput struct {
	Data    string `json:"data"`
	Empresa string `json:"empresa"`
	Produto string `json:"produto"`
}

// Process runs the read side of the pipeline for one paste: parse, filter
// out rows already ingested, enrich via the lojas table, and transform.
// The transformed rows replace the session's pending buffer and a bounded
// preview is returned.
//
// Input errors (ErrEmptyInput, ErrMissingSelectors, ErrNoValidKeys) are
// raised before any remote call and mutate nothing. A failed existence or
// lookup chunk aborts the whole run fail-closed: partial in-memory results
// are discarded and the remote error is returned for the operator to see.
func (s *Service) Process(ctx context.Context, sessionID string, in ProcessInput) (*Preview, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.begin(); err != nil {
		return nil, err
	}
	defer sess.end()

	if strings.TrimSpace(in.Data) == "" {
		return nil, ErrEmptyInput
	}
	if in.Empresa == "" || in.Produto == "" {
		return nil, ErrMissingSelectors
	}

	records := Parse(in.Data)

	hasKey := false
	for _, rec := range records {
		if stringValue(rec, ColSeq) != "" {
			hasKey = true
			break
		}
	}
	if !hasKey {
		return nil, ErrNoValidKeys
	}

	copts := s.chunkOptions()

	filtered, err := FilterNew(ctx, records, s.db.ExistingKeys, copts)
	if err != nil {
		return nil, err
	}

	lookup, err := BuildLookup(ctx, filtered.New, s.db.LookupLojas, copts)
	if err != nil {
		return nil, err
	}

	rows := Transform(filtered.New, lookup, in.Empresa, in.Produto, time.Now())

	summary := Summary{
		TotalParsed: len(records),
		Duplicates:  filtered.Duplicates,
		MissingKey:  filtered.MissingKey,
		NewRows:     len(rows),
	}

	sess.mu.Lock()
	sess.pending = rows
	sess.summary = summary
	sess.mu.Unlock()

	slog.Info("paste processed",
		"session_id", sess.ID,
		"total", summary.TotalParsed,
		"duplicates", summary.Duplicates,
		"missing_key", summary.MissingKey,
		"new", summary.NewRows,
	)

	return BuildPreview(rows, summary, s.opts.PreviewLimit), nil
}

// Insert drains the session's pending buffer into the remote store in
// sequential batches.
//
// On full success the buffer is cleared and the report covers every row.
// On a batch failure the rows of accepted batches stay persisted, the
// unsent tail (including the failed batch) stays in the buffer, and the
// report names the failing batch index. A later Insert resubmits the whole
// remaining buffer from scratch; nothing tracks which rows inside a failed
// batch did or did not land.
func (s *Service) Insert(ctx context.Context, sessionID string) (InsertReport, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return InsertReport{}, err
	}
	if err := sess.begin(); err != nil {
		return InsertReport{}, err
	}
	defer sess.end()

	sess.mu.Lock()
	pending := sess.pending
	sess.mu.Unlock()

	if len(pending) == 0 {
		return InsertReport{}, ErrNothingToInsert
	}

	report, insertErr := InsertAll(ctx, pending, s.db.InsertRows, s.opts.ChunkSize)

	sess.mu.Lock()
	sess.pending = pending[report.Inserted:]
	sess.mu.Unlock()

	if insertErr != nil {
		slog.Warn("insert stopped on batch failure",
			"session_id", sess.ID,
			"failed_batch", report.FailedBatch,
			"inserted", report.Inserted,
			"remaining", report.Remaining,
		)
		return report, insertErr
	}

	slog.Info("rows inserted", "session_id", sess.ID, "count", report.Inserted)
	return report, nil
}

// Preview re-renders the session's current pending state without running
// the pipeline.
func (s *Service) Preview(sessionID string) (*Preview, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	pending := sess.pending
	summary := sess.summary
	sess.mu.Unlock()

	return BuildPreview(pending, summary, s.opts.PreviewLimit), nil
}

func (s *Service) chunkOptions() ChunkOptions {
	return ChunkOptions{
		Size:          s.opts.ChunkSize,
		Concurrency:   s.opts.ChunkConcurrency,
		RetryAttempts: s.opts.RetryAttempts,
		RetryBase:     s.opts.RetryBaseDelay,
	}
}

// String implements fmt.Stringer for debug logging of options.
func (o Options) String() string {
	return fmt.Sprintf("Options{ChunkSize: %d, Concurrency: %d, PreviewLimit: %d, RetryAttempts: %d}",
		o.ChunkSize, o.ChunkConcurrency, o.PreviewLimit, o.RetryAttempts)
}
