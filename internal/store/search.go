package store

import (
	"strings"
)

// statements that provision the FTS5 index. The triggers keep it in lockstep
// with the records table.
var ftsSetup = []string{
	`CREATE VIRTUAL TABLE records_fts USING fts5(
		title,
		body,
		content='records',
		content_rowid='rowid'
	)`,
	`CREATE TRIGGER records_fts_ai AFTER INSERT ON records BEGIN
		INSERT INTO records_fts(rowid, title, body) VALUES (new.rowid, new.title, new.body);
	END`,
	`CREATE TRIGGER records_fts_ad AFTER DELETE ON records BEGIN
		INSERT INTO records_fts(records_fts, rowid, title, body) VALUES ('delete', old.rowid, old.title, old.body);
	END`,
	`CREATE TRIGGER records_fts_au AFTER UPDATE ON records BEGIN
		INSERT INTO records_fts(records_fts, rowid, title, body) VALUES ('delete', old.rowid, old.title, old.body);
		INSERT INTO records_fts(rowid, title, body) VALUES (new.rowid, new.title, new.body);
	END`,
}

// initSearch provisions the FTS5 index when the running binary's SQLite
// carries the fts5 module (mattn/go-sqlite3 compiles it in under the
// sqlite_fts5 build tag). Without the module, search degrades to LIKE
// matching; schema setup never fails over it.
func (db *DB) initSearch() error {
	// Check first: the table may already exist from a previous run, or may
	// exist in the schema while this binary lacks the module.
	var n int
	err := db.QueryRow(`SELECT count(*) FROM records_fts`).Scan(&n)
	switch {
	case err == nil:
		db.fts = true
		return nil
	case strings.Contains(err.Error(), "no such module: fts5"):
		// The table is in the schema but this binary cannot use it.
		return nil
	case !strings.Contains(err.Error(), "no such table: records_fts"):
		return err
	}

	for _, stmt := range ftsSetup {
		if _, err := db.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "no such module: fts5") {
				return nil
			}
			return err
		}
	}
	// Index rows written before the table existed (fts5-less runs of the
	// same database file).
	if _, err := db.Exec(`INSERT INTO records_fts(records_fts) VALUES ('rebuild')`); err != nil {
		return err
	}
	db.fts = true
	return nil
}

// SearchRecords performs a full-text search over record titles and bodies.
// With FTS5 available it ranks matches and returns highlighted snippets;
// otherwise it falls back to case-insensitive substring matching.
func (db *DB) SearchRecords(query string, entityType string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if db.fts {
		return db.searchFTS(query, entityType, limit)
	}
	return db.searchLike(query, entityType, limit)
}

func (db *DB) searchFTS(query, entityType string, limit int) ([]SearchResult, error) {
	q := `
		SELECT r.id, r.entity_type, r.title, r.body, r.state, r.due_at,
		       r.last_modified, r.sync_status,
		       snippet(records_fts, 1, '<<', '>>', '...', 32)
		FROM records_fts
		JOIN records r ON r.rowid = records_fts.rowid
		WHERE records_fts MATCH ?`

	args := []any{query}
	if entityType != "" {
		q += " AND r.entity_type = ?"
		args = append(args, entityType)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	return db.scanSearch(q, args, nil)
}

func (db *DB) searchLike(query, entityType string, limit int) ([]SearchResult, error) {
	pattern := "%" + escapeLike(query) + "%"
	q := `
		SELECT r.id, r.entity_type, r.title, r.body, r.state, r.due_at,
		       r.last_modified, r.sync_status
		FROM records r
		WHERE (r.title LIKE ? ESCAPE '\' OR r.body LIKE ? ESCAPE '\')`

	args := []any{pattern, pattern}
	if entityType != "" {
		q += " AND r.entity_type = ?"
		args = append(args, entityType)
	}
	q += " ORDER BY r.last_modified DESC LIMIT ?"
	args = append(args, limit)

	return db.scanSearch(q, args, func(r *SearchResult) {
		r.Snippet = snippetAround(r.Record.Body, query, 32)
	})
}

func (db *DB) scanSearch(q string, args []any, post func(*SearchResult)) ([]SearchResult, error) {
	withSnippet := post == nil

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		dest := []any{
			&r.Record.ID, &r.Record.EntityType, &r.Record.Title, &r.Record.Body,
			&r.Record.State, &r.Record.DueAt, &r.Record.LastModified,
			&r.Record.SyncStatus,
		}
		if withSnippet {
			dest = append(dest, &r.Snippet)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if post != nil {
			post(&r)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// snippetAround extracts a window of context characters on either side of
// the first case-insensitive match, mimicking the FTS snippet() shape.
func snippetAround(body, query string, context int) string {
	idx := strings.Index(strings.ToLower(body), strings.ToLower(query))
	if idx < 0 {
		return ""
	}
	start := idx - context
	if start < 0 {
		start = 0
	}
	end := idx + len(query) + context
	if end > len(body) {
		end = len(body)
	}
	out := body[start:idx] + "<<" + body[idx:idx+len(query)] + ">>" + body[idx+len(query):end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(body) {
		out += "..."
	}
	return out
}
