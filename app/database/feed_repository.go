package database

import (
	"database/sql"
	"fmt"
	"strings"
)

var _ FeedRepository = (*SQLFeedRepository)(nil)

// SQLFeedRepository handles database operations for feeds
type SQLFeedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) *SQLFeedRepository {
	return &SQLFeedRepository{db: db}
}

const feedColumns = `id, language_id, name, source_uri, article_selector, filter_selector, last_update, options, created_at`

func (r *SQLFeedRepository) Find(id int64) (*Feed, error) {
	row := r.db.QueryRow(`
		SELECT `+feedColumns+`
		FROM feeds
		WHERE id = ?
	`, id)

	f, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed by ID: %w", err)
	}

	return f, nil
}

func (r *SQLFeedRepository) FindAll() ([]Feed, error) {
	rows, err := r.db.Query(`
		SELECT ` + feedColumns + `
		FROM feeds
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	return scanFeeds(rows)
}

func (r *SQLFeedRepository) FindByLanguage(languageID int64) ([]Feed, error) {
	rows, err := r.db.Query(`
		SELECT `+feedColumns+`
		FROM feeds
		WHERE language_id = ?
		ORDER BY name, id
	`, languageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds by language: %w", err)
	}
	defer rows.Close()

	return scanFeeds(rows)
}

// FindNeedingAutoUpdate returns feeds carrying an autoupdate option. Whether
// a candidate is actually due depends on its interval, which lives inside the
// options string; the pipeline decides that.
func (r *SQLFeedRepository) FindNeedingAutoUpdate() ([]Feed, error) {
	rows, err := r.db.Query(`
		SELECT ` + feedColumns + `
		FROM feeds
		WHERE options LIKE '%autoupdate=%'
		ORDER BY last_update, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list autoupdate feeds: %w", err)
	}
	defer rows.Close()

	return scanFeeds(rows)
}

func (r *SQLFeedRepository) CountFeeds(languageID int64, nameLike string) (int, error) {
	query := `SELECT COUNT(*) FROM feeds WHERE 1=1`
	var args []interface{}

	if languageID > 0 {
		query += ` AND language_id = ?`
		args = append(args, languageID)
	}
	if nameLike != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+nameLike+"%")
	}

	var count int
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count feeds: %w", err)
	}
	return count, nil
}

// Save inserts the feed when it has no id yet and updates it otherwise,
// returning the persisted id. LastUpdate is never written here; only
// UpdateTimestamp advances it.
func (r *SQLFeedRepository) Save(f *Feed) (int64, error) {
	if f.ID == 0 {
		result, err := r.db.Exec(`
			INSERT INTO feeds (language_id, name, source_uri, article_selector, filter_selector, options)
			VALUES (?, ?, ?, ?, ?, ?)
		`, f.LanguageID, f.Name, f.SourceURI, f.ArticleSelector, f.FilterSelector, f.Options)
		if err != nil {
			return 0, fmt.Errorf("failed to insert feed: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get inserted feed id: %w", err)
		}
		f.ID = id
		return id, nil
	}

	_, err := r.db.Exec(`
		UPDATE feeds
		SET language_id = ?, name = ?, source_uri = ?, article_selector = ?, filter_selector = ?, options = ?
		WHERE id = ?
	`, f.LanguageID, f.Name, f.SourceURI, f.ArticleSelector, f.FilterSelector, f.Options, f.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to update feed: %w", err)
	}

	return f.ID, nil
}

func (r *SQLFeedRepository) DeleteMultiple(ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.Exec(
		`DELETE FROM feeds WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete feeds: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted feeds: %w", err)
	}
	return int(deleted), nil
}

// UpdateTimestamp advances the last successful fetch marker. Callers pass the
// epoch explicitly so the due/not-due transition is testable.
func (r *SQLFeedRepository) UpdateTimestamp(id int64, epoch int64) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET last_update = ?
		WHERE id = ?
	`, epoch, id)
	if err != nil {
		return fmt.Errorf("failed to update feed timestamp: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	var f Feed
	err := row.Scan(
		&f.ID, &f.LanguageID, &f.Name, &f.SourceURI, &f.ArticleSelector,
		&f.FilterSelector, &f.LastUpdate, &f.Options, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanFeeds(rows *sql.Rows) ([]Feed, error) {
	var feeds []Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}
	return feeds, nil
}

// placeholders returns "?, ?, ..." for an IN clause of n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
