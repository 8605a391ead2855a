package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLedger stores the plan and markers in a single SQLite database.
type SQLiteLedger struct {
	db      *sql.DB
	path    string
	staging string
}

// OpenSQLite opens (or creates) ledger.db under stateDir.
func OpenSQLite(stateDir string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	dbPath := filepath.Join(stateDir, "ledger.db")

	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{
		db:      db,
		path:    dbPath,
		staging: filepath.Join(stateDir, stagingName),
	}
	if err := l.init(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) init() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			idx    INTEGER PRIMARY KEY,
			files  INTEGER NOT NULL,
			size   INTEGER NOT NULL,
			record BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS done (
			idx INTEGER PRIMARY KEY,
			at  INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (l *SQLiteLedger) Path() string { return l.path }

func (l *SQLiteLedger) Planned() (bool, error) {
	var v string
	err := l.db.QueryRow("SELECT value FROM meta WHERE key = 'planned'").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query plan state: %w", err)
	}
	return true, nil
}

// SavePlan inserts every chunk and the planned flag in one transaction.
func (l *SQLiteLedger) SavePlan(chunks []Chunk) error {
	planned, err := l.Planned()
	if err != nil {
		return err
	}
	if planned {
		return ErrPlanExists
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, q := range []string{"DELETE FROM chunks", "DELETE FROM done"} {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("clear ledger: %w", err)
		}
	}

	stmt, err := tx.Prepare("INSERT INTO chunks (idx, files, size, record) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("chunk at position %d has index %d", i, c.Index)
		}
		data, err := encodeChunk(c)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(i, len(c.Files), c.Size, data); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES ('planned', ?)",
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("commit plan: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit plan: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) LoadPlan() ([]Chunk, error) { return loadPlan(l) }

func (l *SQLiteLedger) ChunkCount() (int, error) {
	var n int
	if err := l.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (l *SQLiteLedger) Chunk(index int) (Chunk, error) {
	var data []byte
	err := l.db.QueryRow("SELECT record FROM chunks WHERE idx = ?", index).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Chunk{}, fmt.Errorf("%w: %d", ErrChunkNotFound, index)
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("load chunk %d: %w", index, err)
	}
	return decodeChunk(data, index)
}

// ListChunks reads metadata from the index columns without decoding records.
func (l *SQLiteLedger) ListChunks() ([]ChunkInfo, error) {
	rows, err := l.db.Query(`
		SELECT c.idx, c.files, c.size, d.idx IS NOT NULL
		FROM chunks c LEFT JOIN done d ON d.idx = c.idx
		ORDER BY c.idx`)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var infos []ChunkInfo
	for rows.Next() {
		var ci ChunkInfo
		if err := rows.Scan(&ci.Index, &ci.Files, &ci.Size, &ci.Done); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		infos = append(infos, ci)
	}
	return infos, rows.Err()
}

func (l *SQLiteLedger) IsDone(index int) (bool, error) {
	var n int
	err := l.db.QueryRow("SELECT COUNT(*) FROM done WHERE idx = ?", index).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query done %d: %w", index, err)
	}
	return n > 0, nil
}

func (l *SQLiteLedger) MarkDone(index int) error {
	res, err := l.db.Exec(`
		INSERT OR IGNORE INTO done (idx, at)
		SELECT idx, ? FROM chunks WHERE idx = ?`, time.Now().UnixNano(), index)
	if err != nil {
		return fmt.Errorf("mark chunk %d done: %w", index, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		done, err := l.IsDone(index)
		if err != nil {
			return err
		}
		if !done {
			return fmt.Errorf("mark done: %w: %d", ErrChunkNotFound, index)
		}
	}
	return nil
}

func (l *SQLiteLedger) DoneIndices() ([]int, error) {
	rows, err := l.db.Query("SELECT idx FROM done ORDER BY idx")
	if err != nil {
		return nil, fmt.Errorf("list done: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var i int
		if err := rows.Scan(&i); err != nil {
			return nil, fmt.Errorf("scan done: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Check() ([]Inconsistency, error) {
	count, err := l.ChunkCount()
	if err != nil {
		return nil, err
	}
	done, err := l.DoneIndices()
	if err != nil {
		return nil, err
	}
	return findInconsistencies(count, done), nil
}

func (l *SQLiteLedger) Reset() error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, q := range []string{"DELETE FROM chunks", "DELETE FROM done", "DELETE FROM meta"} {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("reset ledger: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	if err := os.RemoveAll(l.staging); err != nil {
		return fmt.Errorf("reset staging: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) StagingDir() string { return l.staging }

func (l *SQLiteLedger) Close() error { return l.db.Close() }
