package database

// InsertResult reports the outcome of a dedup-aware batch insert.
type InsertResult struct {
	Inserted   int
	Duplicates int
}

// ArchiveResult reports what archiving trimmed: archived text rows plus the
// sentence and token rows deleted for them.
type ArchiveResult struct {
	Archived  int
	Sentences int
	TextItems int
}

type FeedRepository interface {
	Find(id int64) (*Feed, error)
	FindAll() ([]Feed, error)
	FindByLanguage(languageID int64) ([]Feed, error)
	FindNeedingAutoUpdate() ([]Feed, error)
	CountFeeds(languageID int64, nameLike string) (int, error)

	Save(f *Feed) (int64, error)
	DeleteMultiple(ids []int64) (int, error)
	UpdateTimestamp(id int64, epoch int64) error
}

type ArticleRepository interface {
	InsertBatch(feedID int64, items []Article) (InsertResult, error)
	FindByFeedsWithStatus(feedIDs []int64, status string, offset, limit int, sortColumn, sortDir, search string) ([]Article, error)
	FindByIDs(ids []int64) ([]Article, error)
	CountByFeeds(feedIDs []int64, search string) (int, error)

	UpdateText(id int64, text string) error
	MarkAsError(link string) error
	ResetErrorsByFeeds(feedIDs []int64) (int, error)

	DeleteByFeeds(feedIDs []int64) (int, error)
	DeleteByIDs(ids []int64) (int, error)
}

// TextRepository is the sink for imported articles: durable Text records
// owned by the reading side of the product.
type TextRepository interface {
	CreateText(languageID int64, title, body, audioURI, sourceURI, tag string) (int64, error)
	SourceURIExists(uri string) (bool, error)
	ArchiveOldTexts(tag string, keep int) (ArchiveResult, error)
}
