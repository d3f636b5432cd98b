package database

import (
	"time"
)

// Article status values. Status is explicit state alongside an unmodified
// link; the dedup key is always the clean link.
const (
	ArticleStatusActive = "active"
	ArticleStatusError  = "error"
)

type Feed struct {
	ID              int64
	LanguageID      int64
	Name            string
	SourceURI       string
	ArticleSelector string
	FilterSelector  string
	LastUpdate      int64 // epoch seconds of the last successful fetch, 0 = never
	Options         string
	CreatedAt       time.Time
}

type Article struct {
	ID          int64
	FeedID      int64
	Title       string
	Link        string
	Description string
	Date        string // opaque source timestamp
	Audio       string
	Text        string // extracted body, empty until import-time extraction
	Status      string
	CreatedAt   time.Time
}

// HasError reports whether the article's content could not be fetched or
// extracted and a reset is needed before it can be imported.
func (a Article) HasError() bool {
	return a.Status == ArticleStatusError
}

type Text struct {
	ID         int64
	LanguageID int64
	Title      string
	Body       string
	AudioURI   string
	SourceURI  string
	Tag        string
	Archived   bool
	CreatedAt  time.Time
}
