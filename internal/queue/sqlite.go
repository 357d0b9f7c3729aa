package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/exifmeta"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS upload_queue (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT    NOT NULL UNIQUE,
	content         BLOB    NOT NULL,
	mime_type       TEXT    NOT NULL DEFAULT '',
	size            INTEGER NOT NULL,
	filename        TEXT    NOT NULL DEFAULT '',
	job_id          TEXT    NOT NULL,
	business_id     TEXT    NOT NULL,
	category        TEXT    NOT NULL DEFAULT '',
	description     TEXT    NOT NULL DEFAULT '',
	gps             TEXT,
	metadata        TEXT,
	enqueued_at     INTEGER NOT NULL,
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_attempt_at INTEGER,
	last_error      TEXT    NOT NULL DEFAULT '',
	status          TEXT    NOT NULL,
	preview_ref     TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_upload_queue_status ON upload_queue(status, enqueued_at, seq);
CREATE INDEX IF NOT EXISTS idx_upload_queue_enqueued ON upload_queue(enqueued_at, seq);
CREATE INDEX IF NOT EXISTS idx_upload_queue_job ON upload_queue(job_id);
`

// SQLiteStore keeps the queue in a single SQLite file. It holds one
// connection and begins every transaction IMMEDIATE, so a capacity check and
// the insert that follows it cannot interleave with another writer.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (creating if needed) the queue database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping queue db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create queue schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(FULL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, fn)
}

func (s *SQLiteStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, fn)
}

func (s *SQLiteStore) run(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin queue tx: %w", err)
	}
	if err := fn(&sqliteTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit queue tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type itemRow struct {
	Seq           int64          `db:"seq"`
	ID            string         `db:"id"`
	Content       []byte         `db:"content"`
	MimeType      string         `db:"mime_type"`
	Size          int64          `db:"size"`
	Filename      string         `db:"filename"`
	JobID         string         `db:"job_id"`
	BusinessID    string         `db:"business_id"`
	Category      string         `db:"category"`
	Description   string         `db:"description"`
	GPS           sql.NullString `db:"gps"`
	Metadata      sql.NullString `db:"metadata"`
	EnqueuedAt    int64          `db:"enqueued_at"`
	Attempts      int            `db:"attempts"`
	LastAttemptAt sql.NullInt64  `db:"last_attempt_at"`
	LastError     string         `db:"last_error"`
	Status        string         `db:"status"`
	PreviewRef    string         `db:"preview_ref"`
}

func toRow(it *Item) (itemRow, error) {
	r := itemRow{
		Seq:         it.Seq,
		ID:          it.ID,
		Content:     it.Content,
		MimeType:    it.MimeType,
		Size:        it.Size,
		Filename:    it.Filename,
		JobID:       it.JobID,
		BusinessID:  it.BusinessID,
		Category:    it.Category,
		Description: it.Description,
		EnqueuedAt:  it.EnqueuedAt.UnixNano(),
		Attempts:    it.Attempts,
		LastError:   it.LastError,
		Status:      string(it.Status),
		PreviewRef:  it.PreviewRef,
	}
	if r.Content == nil {
		r.Content = []byte{}
	}
	if it.LastAttemptAt != nil {
		r.LastAttemptAt = sql.NullInt64{Int64: it.LastAttemptAt.UnixNano(), Valid: true}
	}
	if it.GPS != nil {
		b, err := json.Marshal(it.GPS)
		if err != nil {
			return r, fmt.Errorf("encode gps: %w", err)
		}
		r.GPS = sql.NullString{String: string(b), Valid: true}
	}
	if it.Metadata != nil {
		b, err := json.Marshal(it.Metadata)
		if err != nil {
			return r, fmt.Errorf("encode metadata: %w", err)
		}
		r.Metadata = sql.NullString{String: string(b), Valid: true}
	}
	return r, nil
}

func (r itemRow) item() (*Item, error) {
	it := &Item{
		Seq:         r.Seq,
		ID:          r.ID,
		Content:     r.Content,
		MimeType:    r.MimeType,
		Size:        r.Size,
		Filename:    r.Filename,
		JobID:       r.JobID,
		BusinessID:  r.BusinessID,
		Category:    r.Category,
		Description: r.Description,
		EnqueuedAt:  time.Unix(0, r.EnqueuedAt).UTC(),
		Attempts:    r.Attempts,
		LastError:   r.LastError,
		Status:      constants.UploadStatus(r.Status),
		PreviewRef:  r.PreviewRef,
	}
	if r.LastAttemptAt.Valid {
		t := time.Unix(0, r.LastAttemptAt.Int64).UTC()
		it.LastAttemptAt = &t
	}
	if r.GPS.Valid {
		var gps exifmeta.GPSPosition
		if err := json.Unmarshal([]byte(r.GPS.String), &gps); err != nil {
			return nil, fmt.Errorf("decode gps of %s: %w", r.ID, err)
		}
		it.GPS = &gps
	}
	if r.Metadata.Valid {
		var md exifmeta.Metadata
		if err := json.Unmarshal([]byte(r.Metadata.String), &md); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
		}
		it.Metadata = &md
	}
	return it, nil
}

type sqliteTx struct {
	ctx context.Context
	tx  *sqlx.Tx
}

func (t *sqliteTx) Get(id string) (*Item, error) {
	var r itemRow
	err := t.tx.GetContext(t.ctx, &r, `SELECT * FROM upload_queue WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return r.item()
}

func (t *sqliteTx) Insert(item *Item) error {
	r, err := toRow(item)
	if err != nil {
		return err
	}
	res, err := t.tx.NamedExecContext(t.ctx, `
		INSERT INTO upload_queue (id, content, mime_type, size, filename, job_id, business_id,
			category, description, gps, metadata, enqueued_at, attempts, last_attempt_at,
			last_error, status, preview_ref)
		VALUES (:id, :content, :mime_type, :size, :filename, :job_id, :business_id,
			:category, :description, :gps, :metadata, :enqueued_at, :attempts, :last_attempt_at,
			:last_error, :status, :preview_ref)`, r)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return errDuplicateID
		}
		return fmt.Errorf("insert queue item: %w", err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		item.Seq = seq
	}
	return nil
}

func (t *sqliteTx) Update(item *Item) error {
	r, err := toRow(item)
	if err != nil {
		return err
	}
	res, err := t.tx.NamedExecContext(t.ctx, `
		UPDATE upload_queue SET
			mime_type = :mime_type, size = :size, filename = :filename,
			category = :category, description = :description, gps = :gps, metadata = :metadata,
			attempts = :attempts, last_attempt_at = :last_attempt_at, last_error = :last_error,
			status = :status, preview_ref = :preview_ref
		WHERE id = :id`, r)
	if err != nil {
		return fmt.Errorf("update queue item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errMissingID
	}
	return nil
}

func (t *sqliteTx) Delete(id string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM upload_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete queue item: %w", err)
	}
	return nil
}

func (t *sqliteTx) List(f Filter) ([]*Item, error) {
	query := `SELECT * FROM upload_queue`
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, f.JobID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY enqueued_at, seq"

	var rows []itemRow
	if err := t.tx.SelectContext(t.ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	out := make([]*Item, 0, len(rows))
	for _, r := range rows {
		it, err := r.item()
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (t *sqliteTx) Totals() (int, int64, error) {
	var totals struct {
		Count int   `db:"n"`
		Bytes int64 `db:"bytes"`
	}
	err := t.tx.GetContext(t.ctx, &totals, `SELECT COUNT(*) AS n, COALESCE(SUM(size), 0) AS bytes FROM upload_queue`)
	if err != nil {
		return 0, 0, fmt.Errorf("queue totals: %w", err)
	}
	return totals.Count, totals.Bytes, nil
}
