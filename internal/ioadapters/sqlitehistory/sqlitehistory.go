// Package sqlitehistory reads a prior-allocation HistorySnapshot from a
// read-only SQLite database, the persistent history storage medium named
// as an external collaborator in spec §1 — this adapter only ever reads;
// the medium itself (how it is written, rotated, migrated) stays out of
// scope for the core.
package sqlitehistory

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/rezahh107/Matrix2/internal/domain"
	"github.com/rezahh107/Matrix2/internal/normalize"
)

// Read opens the SQLite database at path and loads every row of its
// `history` table into a domain.HistorySnapshot, keyed by normalized
// national code. The expected schema is:
//
//	CREATE TABLE history (
//	  national_code TEXT PRIMARY KEY,
//	  mentor_id TEXT NOT NULL,
//	  center_code TEXT,
//	  last_allocation_date TEXT
//	)
func Read(path string) (domain.HistorySnapshot, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT national_code, mentor_id, center_code, last_allocation_date FROM history`)
	if err != nil {
		return nil, fmt.Errorf("query history table: %w", err)
	}
	defer rows.Close()

	snapshot := make(domain.HistorySnapshot)
	for rows.Next() {
		var code, mentorID, centerCode, lastDate sql.NullString
		if err := rows.Scan(&code, &mentorID, &centerCode, &lastDate); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		normalizedCode := normalize.NationalCode(code.String)
		if normalizedCode == "" {
			continue
		}
		snapshot[normalizedCode] = domain.HistoryEntry{
			MentorID:           mentorID.String,
			CenterCode:         centerCode.String,
			LastAllocationDate: lastDate.String,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return snapshot, nil
}
