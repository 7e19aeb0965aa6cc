// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package knowledge

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// loadSource reads a catalog from a JSON, YAML or SQLite file.
func loadSource(path string) ([]Supplement, error) {
	var (
		supps []Supplement
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		supps, err = loadJSON(path)
	case ".yaml", ".yml":
		supps, err = loadYAML(path)
	case ".db", ".sqlite", ".sqlite3":
		supps, err = loadSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported knowledge file %q (want .json, .yaml or .db)", path)
	}
	if err != nil {
		return nil, err
	}
	if err := validate(supps); err != nil {
		return nil, fmt.Errorf("knowledge file %s: %w", path, err)
	}
	return supps, nil
}

func loadJSON(path string) ([]Supplement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	var c catalog
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse knowledge JSON %s: %w", path, err)
	}
	return c.Supplements, nil
}

func loadYAML(path string) ([]Supplement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	supps, err := decodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("parse knowledge YAML %s: %w", path, err)
	}
	return supps, nil
}

func decodeYAML(data []byte) ([]Supplement, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c.Supplements, nil
}

// Schema for SQLite catalogs. relevant_goals holds a JSON array of strings.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS supplements (
	name           TEXT PRIMARY KEY,
	description    TEXT NOT NULL DEFAULT '',
	dosage         TEXT NOT NULL DEFAULT '',
	cautions       TEXT NOT NULL DEFAULT '',
	evidence_level TEXT NOT NULL DEFAULT '',
	relevant_goals TEXT NOT NULL DEFAULT '[]',
	referral_link  TEXT NOT NULL DEFAULT ''
);`

func loadSQLite(path string) ([]Supplement, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open knowledge database: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT name, description, dosage, cautions, evidence_level, relevant_goals, referral_link
		FROM supplements ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query supplements: %w", err)
	}
	defer rows.Close()

	var out []Supplement
	for rows.Next() {
		var s Supplement
		var goals string
		if err := rows.Scan(&s.Name, &s.Description, &s.Dosage, &s.Cautions, &s.EvidenceLevel, &goals, &s.ReferralLink); err != nil {
			return nil, fmt.Errorf("scan supplement: %w", err)
		}
		if goals != "" {
			if err := json.Unmarshal([]byte(goals), &s.RelevantGoals); err != nil {
				return nil, fmt.Errorf("supplement %q: relevant_goals: %w", s.Name, err)
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read supplements: %w", err)
	}
	return out, nil
}

// WriteSQLite stores supplements in a SQLite catalog at path, replacing any
// rows with the same name.
func WriteSQLite(path string, supps []Supplement) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open knowledge database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO supplements
		(name, description, dosage, cautions, evidence_level, relevant_goals, referral_link)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range supps {
		goals, err := json.Marshal(s.RelevantGoals)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(s.Name, s.Description, s.Dosage, s.Cautions, s.EvidenceLevel, string(goals), s.ReferralLink); err != nil {
			return fmt.Errorf("insert %q: %w", s.Name, err)
		}
	}
	return tx.Commit()
}
