package db

import "fmt"

// LoadImportSkips returns all persisted import skip entries as
// a map from file_path to file_mtime. Files in the map are not
// re-parsed until their mtime changes.
func (db *DB) LoadImportSkips() (map[string]int64, error) {
	rows, err := db.reader.Query(
		"SELECT file_path, file_mtime FROM import_skips",
	)
	if err != nil {
		return nil, fmt.Errorf("loading import skips: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var path string
		var mtime int64
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, fmt.Errorf("scanning import skip: %w", err)
		}
		result[path] = mtime
	}
	return result, rows.Err()
}

// ReplaceImportSkips replaces all skip entries in one
// transaction, called after each sync cycle to persist the
// engine's in-memory skip cache.
func (db *DB) ReplaceImportSkips(entries map[string]int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM import_skips"); err != nil {
		return fmt.Errorf("clearing import skips: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO import_skips (file_path, file_mtime) VALUES (?, ?)",
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for path, mtime := range entries {
		if _, err := stmt.Exec(path, mtime); err != nil {
			return fmt.Errorf("inserting import skip %s: %w", path, err)
		}
	}

	return tx.Commit()
}
