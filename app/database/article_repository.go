package database

import (
	"database/sql"
	"fmt"
)

var _ ArticleRepository = (*SQLArticleRepository)(nil)

// SQLArticleRepository handles database operations for fetched articles
type SQLArticleRepository struct {
	db *DB
}

func NewArticleRepository(db *DB) *SQLArticleRepository {
	return &SQLArticleRepository{db: db}
}

const articleColumns = `id, feed_id, title, link, description, date, audio, text, status, created_at`

// InsertBatch inserts raw items for a feed. The clean link is the dedup key
// within the feed: items whose link already exists are counted as duplicates
// and not re-inserted. Each item's insert is atomic with respect to the
// dedup check (UNIQUE(feed_id, link) with INSERT OR IGNORE).
func (r *SQLArticleRepository) InsertBatch(feedID int64, items []Article) (InsertResult, error) {
	var result InsertResult
	if len(items) == 0 {
		return result, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return result, fmt.Errorf("failed to begin batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO articles (feed_id, title, link, description, date, audio)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if item.Link == "" {
			continue
		}

		res, err := stmt.Exec(feedID, item.Title, item.Link, item.Description, item.Date, item.Audio)
		if err != nil {
			return result, fmt.Errorf("failed to insert article: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("failed to read insert result: %w", err)
		}

		if affected > 0 {
			result.Inserted++
		} else {
			result.Duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit batch insert: %w", err)
	}

	return result, nil
}

var articleSortColumns = map[string]string{
	"id":         "id",
	"title":      "title",
	"link":       "link",
	"date":       "date",
	"created_at": "created_at",
}

func (r *SQLArticleRepository) FindByFeedsWithStatus(feedIDs []int64, status string, offset, limit int, sortColumn, sortDir, search string) ([]Article, error) {
	if len(feedIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + articleColumns + ` FROM articles WHERE feed_id IN (` + placeholders(len(feedIDs)) + `)`
	args := int64Args(feedIDs)

	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if search != "" {
		query += ` AND (title LIKE ? OR description LIKE ?)`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}

	column, ok := articleSortColumns[sortColumn]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if sortDir == "desc" || sortDir == "DESC" {
		direction = "DESC"
	}
	query += fmt.Sprintf(` ORDER BY %s %s, id %s`, column, direction, direction)

	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	return scanArticles(rows)
}

func (r *SQLArticleRepository) FindByIDs(ids []int64) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(
		`SELECT `+articleColumns+` FROM articles WHERE id IN (`+placeholders(len(ids))+`) ORDER BY feed_id, id`,
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles by ids: %w", err)
	}
	defer rows.Close()

	return scanArticles(rows)
}

func (r *SQLArticleRepository) CountByFeeds(feedIDs []int64, search string) (int, error) {
	if len(feedIDs) == 0 {
		return 0, nil
	}

	query := `SELECT COUNT(*) FROM articles WHERE feed_id IN (` + placeholders(len(feedIDs)) + `)`
	args := int64Args(feedIDs)

	if search != "" {
		query += ` AND (title LIKE ? OR description LIKE ?)`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}

	var count int
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

// UpdateText stores the extracted body for an article.
func (r *SQLArticleRepository) UpdateText(id int64, text string) error {
	_, err := r.db.Exec(`UPDATE articles SET text = ? WHERE id = ?`, text, id)
	if err != nil {
		return fmt.Errorf("failed to update article text: %w", err)
	}
	return nil
}

// MarkAsError flips the article with this link into the error state. The
// link itself stays clean, so the dedup key is unaffected and a later reset
// restores the article to an importable state unchanged.
func (r *SQLArticleRepository) MarkAsError(link string) error {
	_, err := r.db.Exec(`UPDATE articles SET status = ? WHERE link = ?`, ArticleStatusError, link)
	if err != nil {
		return fmt.Errorf("failed to mark article as error: %w", err)
	}
	return nil
}

func (r *SQLArticleRepository) ResetErrorsByFeeds(feedIDs []int64) (int, error) {
	if len(feedIDs) == 0 {
		return 0, nil
	}

	args := append([]interface{}{ArticleStatusActive, ArticleStatusError}, int64Args(feedIDs)...)
	result, err := r.db.Exec(
		`UPDATE articles SET status = ? WHERE status = ? AND feed_id IN (`+placeholders(len(feedIDs))+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset article errors: %w", err)
	}

	reset, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset articles: %w", err)
	}
	return int(reset), nil
}

func (r *SQLArticleRepository) DeleteByFeeds(feedIDs []int64) (int, error) {
	if len(feedIDs) == 0 {
		return 0, nil
	}

	result, err := r.db.Exec(
		`DELETE FROM articles WHERE feed_id IN (`+placeholders(len(feedIDs))+`)`,
		int64Args(feedIDs)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete articles by feeds: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted articles: %w", err)
	}
	return int(deleted), nil
}

func (r *SQLArticleRepository) DeleteByIDs(ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.Exec(
		`DELETE FROM articles WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete articles: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted articles: %w", err)
	}
	return int(deleted), nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		var a Article
		err := rows.Scan(
			&a.ID, &a.FeedID, &a.Title, &a.Link, &a.Description,
			&a.Date, &a.Audio, &a.Text, &a.Status, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}
	return articles, nil
}
