package cache

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gptscan/gptscan/internal/errors"
	"github.com/gptscan/gptscan/internal/record"
)

// Entry is one committed cache value: the records of a completed fetch run
// plus its metadata. The ingestion layer is the only writer.
type Entry struct {
	Key       Key
	Records   []record.GPT
	ETag      string
	RunID     string
	FetchedAt time.Time
}

// Age returns how long ago the entry was committed.
func (e *Entry) Age() time.Duration {
	return time.Since(e.FetchedAt)
}

// IsStale reports whether the entry has outlived maxAge. Purely a function
// of the fetched-at timestamp; force-refresh bypasses this check entirely.
func (e *Entry) IsStale(maxAge time.Duration) bool {
	return e.Age() > maxAge
}

// Store reads and writes cache entries over a SQLite database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// NewStore creates a Store over an initialized database.
func NewStore(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// Get returns the committed entry for key, or nil on a miss. A corrupt
// payload is treated as a miss: the row is dropped and a re-fetch will
// repopulate it. Get never touches the network.
func (s *Store) Get(key Key) (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT payload, etag, run_id, record_count, fetched_at FROM entries WHERE cache_key = ?`,
		key.String(),
	)

	var (
		payload   string
		etag      sql.NullString
		runID     sql.NullString
		count     int
		fetchedAt int64
	)
	err := row.Scan(&payload, &etag, &runID, &count, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	var records []record.GPT
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		s.log.Warn("dropping corrupt cache entry", "key", key.String(), "error", err)
		if _, delErr := s.db.Exec(`DELETE FROM entries WHERE cache_key = ?`, key.String()); delErr != nil {
			return nil, errors.NewInternal(delErr)
		}
		return nil, nil
	}

	return &Entry{
		Key:       key,
		Records:   records,
		ETag:      etag.String,
		RunID:     runID.String,
		FetchedAt: time.Unix(0, fetchedAt),
	}, nil
}

// Put atomically replaces the entry for its key. Readers observe either the
// prior entry or the new one, never a half-written row. At most one entry
// exists per key at any time.
func (s *Store) Put(entry *Entry) error {
	payload, err := json.Marshal(entry.Records)
	if err != nil {
		return errors.NewInternal(err)
	}

	_, err = s.db.Exec(`
		INSERT INTO entries (cache_key, workspace_id, resource, params_hash, payload, etag, run_id, record_count, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
		  payload = excluded.payload,
		  etag = excluded.etag,
		  run_id = excluded.run_id,
		  record_count = excluded.record_count,
		  fetched_at = excluded.fetched_at`,
		entry.Key.String(), entry.Key.WorkspaceID, entry.Key.Resource, entry.Key.ParamsHash(),
		string(payload), nullable(entry.ETag), nullable(entry.RunID),
		len(entry.Records), entry.FetchedAt.UnixNano(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Invalidate removes the entry for key, if present.
func (s *Store) Invalidate(key Key) error {
	if _, err := s.db.Exec(`DELETE FROM entries WHERE cache_key = ?`, key.String()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// InvalidateWorkspace removes every entry for a workspace and returns how
// many were dropped. Used by forced refresh and `cache clear`.
func (s *Store) InvalidateWorkspace(workspaceID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM entries WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// EntryInfo summarizes a committed entry without its payload.
type EntryInfo struct {
	Key         string    `json:"key"`
	WorkspaceID string    `json:"workspace_id"`
	Resource    string    `json:"resource"`
	RecordCount int       `json:"record_count"`
	RunID       string    `json:"run_id,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
	AgeHours    float64   `json:"age_hours"`
}

// Status lists the committed entries for a workspace, newest first.
func (s *Store) Status(workspaceID string) ([]EntryInfo, error) {
	rows, err := s.db.Query(`
		SELECT cache_key, workspace_id, resource, record_count, run_id, fetched_at
		FROM entries WHERE workspace_id = ? ORDER BY fetched_at DESC`,
		workspaceID,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var infos []EntryInfo
	for rows.Next() {
		var (
			info      EntryInfo
			runID     sql.NullString
			fetchedAt int64
		)
		if err := rows.Scan(&info.Key, &info.WorkspaceID, &info.Resource, &info.RecordCount, &runID, &fetchedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		info.RunID = runID.String
		info.FetchedAt = time.Unix(0, fetchedAt)
		info.AgeHours = time.Since(info.FetchedAt).Hours()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return infos, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
