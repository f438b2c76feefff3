package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenPendantBridge/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	journalBufferSize   = 256
	journalWriteTimeout = 2 * time.Second
	defaultListLimit    = 100
)

// InsertJournalEntry stores one entry.
func (p *PostgresClient) InsertJournalEntry(ctx context.Context, e *JournalEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO pendant_journal (id, session_id, kind, source, text, dry_run, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.SessionID, string(e.Kind), e.Source, e.Text, e.DryRun, e.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

// ListJournalEntries returns the newest entries of a session.
func (p *PostgresClient) ListJournalEntries(ctx context.Context, sessionID uuid.UUID, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, kind, source, text, dry_run, created_at
		FROM pendant_journal
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (JournalEntry, error) {
		var e JournalEntry
		var kind string
		err := row.Scan(&e.ID, &e.SessionID, &kind, &e.Source, &e.Text, &e.DryRun, &e.CreatedAt)
		e.Kind = EntryKind(kind)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan journal: %w", err)
	}
	return entries, nil
}

// EntryWriter persists journal entries.
type EntryWriter interface {
	InsertJournalEntry(ctx context.Context, e *JournalEntry) error
}

// Journal records bridge activity asynchronously. Entries are dropped
// when the writer falls behind; the bridge loop never waits on the database.
type Journal struct {
	sessionID uuid.UUID
	writer    EntryWriter
	logger    *zap.Logger
	entries   chan *JournalEntry
	now       func() time.Time
}

func NewJournal(sessionID uuid.UUID, writer EntryWriter, logger *zap.Logger) *Journal {
	return &Journal{
		sessionID: sessionID,
		writer:    writer,
		logger:    logger.With(zap.String("component", "journal")),
		entries:   make(chan *JournalEntry, journalBufferSize),
		now:       time.Now,
	}
}

// Run writes queued entries until ctx is cancelled.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-j.entries:
			wctx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
			if err := j.writer.InsertJournalEntry(wctx, e); err != nil {
				j.logger.Warn("Journal write failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func (j *Journal) OnCommand(cmd types.Command, dryRun bool) {
	j.record(EntryCommand, string(cmd.Source), cmd.Text, dryRun)
}

func (j *Journal) OnDiagnostic(err error) {
	j.record(EntryDiagnostic, "", err.Error(), false)
}

func (j *Journal) OnDisplayMode(workCoords bool) {
	mode := "machine"
	if workCoords {
		mode = "work"
	}
	j.record(EntryDisplayMode, "", mode, false)
}

func (j *Journal) record(kind EntryKind, source, text string, dryRun bool) {
	e := &JournalEntry{
		ID:        uuid.New(),
		SessionID: j.sessionID,
		Kind:      kind,
		Source:    source,
		Text:      text,
		DryRun:    dryRun,
		CreatedAt: j.now(),
	}

	select {
	case j.entries <- e:
	default:
		// Channel full, skip
		j.logger.Warn("Journal buffer full, entry dropped", zap.String("kind", string(kind)))
	}
}
