package database

import (
	"database/sql"
	"fmt"
	"strings"
)

var _ TextRepository = (*SQLTextRepository)(nil)

// SQLTextRepository persists the durable Text records created from imported
// articles, along with the sentence and token rows the reading UI consumes.
type SQLTextRepository struct {
	db *DB
}

func NewTextRepository(db *DB) *SQLTextRepository {
	return &SQLTextRepository{db: db}
}

// CreateText stores a new text and its derived sentence and token rows in a
// single transaction.
func (r *SQLTextRepository) CreateText(languageID int64, title, body, audioURI, sourceURI, tag string) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin text creation: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO texts (language_id, title, body, audio_uri, source_uri, tag)
		VALUES (?, ?, ?, ?, ?, ?)
	`, languageID, title, body, audioURI, sourceURI, tag)
	if err != nil {
		return 0, fmt.Errorf("failed to insert text: %w", err)
	}

	textID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted text id: %w", err)
	}

	sentenceStmt, err := tx.Prepare(`INSERT INTO sentences (text_id, seq, body) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare sentence insert: %w", err)
	}
	defer sentenceStmt.Close()

	tokenStmt, err := tx.Prepare(`INSERT INTO text_items (text_id, seq, token) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare token insert: %w", err)
	}
	defer tokenStmt.Close()

	tokenSeq := 0
	for seq, sentence := range splitSentences(body) {
		if _, err := sentenceStmt.Exec(textID, seq, sentence); err != nil {
			return 0, fmt.Errorf("failed to insert sentence: %w", err)
		}

		for _, token := range strings.Fields(sentence) {
			if _, err := tokenStmt.Exec(textID, tokenSeq, token); err != nil {
				return 0, fmt.Errorf("failed to insert token: %w", err)
			}
			tokenSeq++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit text creation: %w", err)
	}

	return textID, nil
}

// SourceURIExists reports whether a text was already imported from this
// source, archived or not.
func (r *SQLTextRepository) SourceURIExists(uri string) (bool, error) {
	var one int
	err := r.db.QueryRow(`SELECT 1 FROM texts WHERE source_uri = ? LIMIT 1`, uri).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check source URI: %w", err)
	}
	return true, nil
}

// ArchiveOldTexts keeps the newest keep unarchived texts for a tag and
// archives the rest, deleting their sentence and token rows. keep <= 0
// disables retention for the tag.
func (r *SQLTextRepository) ArchiveOldTexts(tag string, keep int) (ArchiveResult, error) {
	var result ArchiveResult
	if tag == "" || keep <= 0 {
		return result, nil
	}

	rows, err := r.db.Query(`
		SELECT id FROM texts
		WHERE tag = ? AND archived = 0
		ORDER BY id DESC
		LIMIT -1 OFFSET ?
	`, tag, keep)
	if err != nil {
		return result, fmt.Errorf("failed to select texts to archive: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return result, fmt.Errorf("failed to scan text id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("error iterating text ids: %w", err)
	}

	if len(ids) == 0 {
		return result, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return result, fmt.Errorf("failed to begin archiving: %w", err)
	}
	defer tx.Rollback()

	args := int64Args(ids)
	in := placeholders(len(ids))

	res, err := tx.Exec(`DELETE FROM sentences WHERE text_id IN (`+in+`)`, args...)
	if err != nil {
		return result, fmt.Errorf("failed to delete archived sentences: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		result.Sentences = int(n)
	}

	res, err = tx.Exec(`DELETE FROM text_items WHERE text_id IN (`+in+`)`, args...)
	if err != nil {
		return result, fmt.Errorf("failed to delete archived tokens: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		result.TextItems = int(n)
	}

	res, err = tx.Exec(`UPDATE texts SET archived = 1 WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return result, fmt.Errorf("failed to archive texts: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		result.Archived = int(n)
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit archiving: %w", err)
	}

	return result, nil
}

// splitSentences is a deliberately simple splitter; language-aware
// segmentation happens in the product's NLP service, not here.
func splitSentences(body string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, r := range body {
		current.WriteRune(r)
		switch r {
		case '.', '!', '?', '\n', '。', '！', '？':
			flush()
		}
	}
	flush()

	return sentences
}
