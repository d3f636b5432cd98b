package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lingofeed/lingofeed/app/database"
)

// LoadConfig describes which feeds a scheduler sweep or a manual "refresh
// now" action should load.
type LoadConfig struct {
	Feeds []database.Feed `json:"feeds"`
	Count int             `json:"count"`
}

// Pipeline composes parsing, extraction, and persistence into the feed
// synchronization operations: scheduled refresh, manual refresh, selective
// import, and due-feed discovery. It performs no internal threading;
// concurrent refreshes of different feeds are safe because the dedup key is
// per feed and per link.
type Pipeline struct {
	parser      *Parser
	extractor   *Extractor
	feedRepo    database.FeedRepository
	articleRepo database.ArticleRepository
	textRepo    database.TextRepository
	now         func() time.Time
}

func NewPipeline(parser *Parser, extractor *Extractor, feedRepo database.FeedRepository,
	articleRepo database.ArticleRepository, textRepo database.TextRepository) *Pipeline {
	return &Pipeline{
		parser:      parser,
		extractor:   extractor,
		feedRepo:    feedRepo,
		articleRepo: articleRepo,
		textRepo:    textRepo,
		now:         time.Now,
	}
}

// CreateFeed validates and persists a new subscription.
func (p *Pipeline) CreateFeed(languageID int64, name, sourceURI, articleSelector, filterSelector string, options Options) (*database.Feed, error) {
	if err := validateFeed(languageID, name, sourceURI); err != nil {
		return nil, err
	}

	f := &database.Feed{
		LanguageID:      languageID,
		Name:            name,
		SourceURI:       sourceURI,
		ArticleSelector: articleSelector,
		FilterSelector:  filterSelector,
		Options:         options.String(),
	}

	if _, err := p.feedRepo.Save(f); err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateFeed validates and persists changes to an existing subscription.
// The last-update timestamp is untouched; only a successful refresh moves it.
func (p *Pipeline) UpdateFeed(id, languageID int64, name, sourceURI, articleSelector, filterSelector string, options Options) (*database.Feed, error) {
	if err := validateFeed(languageID, name, sourceURI); err != nil {
		return nil, err
	}

	f, err := p.feedRepo.Find(id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrFeedNotFound
	}

	f.LanguageID = languageID
	f.Name = name
	f.SourceURI = sourceURI
	f.ArticleSelector = articleSelector
	f.FilterSelector = filterSelector
	f.Options = options.String()

	if _, err := p.feedRepo.Save(f); err != nil {
		return nil, err
	}
	return f, nil
}

// RefreshFeed fetches the feed and inserts its items with dedup. The batch
// insert completes strictly before the timestamp advances, and the timestamp
// only advances when the fetch itself succeeded, independent of how many
// items were duplicates. A failed fetch leaves the feed due for retry on the
// next sweep.
func (p *Pipeline) RefreshFeed(ctx context.Context, feedID int64) (RefreshResult, error) {
	var result RefreshResult

	f, err := p.feedRepo.Find(feedID)
	if err != nil {
		return result, err
	}
	if f == nil {
		return result, ErrFeedNotFound
	}

	items, err := p.parser.Parse(ctx, f.SourceURI, f.ArticleSelector)
	if err != nil {
		return result, fmt.Errorf("failed to fetch feed %q: %w", f.Name, err)
	}

	inserted, err := p.articleRepo.InsertBatch(f.ID, rawItemsToArticles(f.ID, items))
	if err != nil {
		return result, err
	}

	if err := p.feedRepo.UpdateTimestamp(f.ID, p.now().Unix()); err != nil {
		return result, err
	}

	result.Inserted = inserted.Inserted
	result.Duplicates = inserted.Duplicates

	slog.Info("Feed refreshed",
		"feed", f.Name,
		"total", len(items),
		"inserted", result.Inserted,
		"duplicates", result.Duplicates)

	return result, nil
}

// DueForRefresh returns the feeds whose autoupdate interval has elapsed
// since their last successful fetch. Feeds without an autoupdate option are
// never auto-due.
func (p *Pipeline) DueForRefresh() ([]database.Feed, error) {
	candidates, err := p.feedRepo.FindNeedingAutoUpdate()
	if err != nil {
		return nil, err
	}

	now := p.now().Unix()
	var due []database.Feed
	for _, f := range candidates {
		interval, ok := ParseInterval(ParseOptions(f.Options).AutoUpdate())
		if !ok {
			continue
		}
		if now-f.LastUpdate >= interval {
			due = append(due, f)
		}
	}

	return due, nil
}

// ImportArticles extracts the selected articles and converts them into Text
// records. Content already imported (by source URI) is skipped; extraction
// failures are per-item errors that mark the article and never abort the
// batch; persistence failures do. Afterwards retained history is bounded per
// distinct tag touched.
func (p *Pipeline) ImportArticles(ctx context.Context, articleIDs []int64) (ImportResult, error) {
	var result ImportResult

	articles, err := p.articleRepo.FindByIDs(articleIDs)
	if err != nil {
		return result, err
	}

	touchedTags := make(map[string]int)

	for _, group := range groupByFeed(articles) {
		f, err := p.feedRepo.Find(group.feedID)
		if err != nil {
			return result, err
		}
		if f == nil {
			result.Errors += len(group.articles)
			slog.Warn("Articles reference a missing feed, skipping", "feed_id", group.feedID, "count", len(group.articles))
			continue
		}

		options := ParseOptions(f.Options)

		items := make([]RawItem, len(group.articles))
		for i, a := range group.articles {
			items[i] = RawItem{
				Title:       a.Title,
				Link:        a.Link,
				Description: a.Description,
				Date:        a.Date,
				Audio:       a.Audio,
			}
		}

		extracted := p.extractor.Extract(ctx, items, f.ArticleSelector, f.FilterSelector, options.Charset())

		for i, a := range group.articles {
			article, ok := extracted[i]
			if !ok {
				result.Errors++
				if err := p.articleRepo.MarkAsError(a.Link); err != nil {
					return result, err
				}
				continue
			}

			if err := p.articleRepo.UpdateText(a.ID, article.Text); err != nil {
				return result, err
			}

			exists, err := p.textRepo.SourceURIExists(article.SourceURI)
			if err != nil {
				return result, err
			}
			if exists {
				result.Skipped++
				continue
			}

			textID, err := p.textRepo.CreateText(f.LanguageID, article.Title, article.Text,
				article.AudioURI, article.SourceURI, options.Tag())
			if err != nil {
				return result, err
			}
			result.Imported++

			if tag := options.Tag(); tag != "" {
				touchedTags[tag] = options.MaxTexts()
			}

			slog.Debug("Article imported", "article_id", a.ID, "text_id", textID)
		}
	}

	for tag, maxTexts := range touchedTags {
		archived, err := p.textRepo.ArchiveOldTexts(tag, maxTexts)
		if err != nil {
			return result, err
		}
		if archived.Archived > 0 {
			slog.Info("Archived old texts",
				"tag", tag,
				"archived", archived.Archived,
				"sentences", archived.Sentences,
				"text_items", archived.TextItems)
		}
	}

	return result, nil
}

// DeleteFeeds removes the feeds and explicitly cascades deletion of their
// articles, returning both counts.
func (p *Pipeline) DeleteFeeds(ids []int64) (DeleteResult, error) {
	var result DeleteResult

	articles, err := p.articleRepo.DeleteByFeeds(ids)
	if err != nil {
		return result, err
	}

	feeds, err := p.feedRepo.DeleteMultiple(ids)
	if err != nil {
		return result, err
	}

	result.Feeds = feeds
	result.Articles = articles
	return result, nil
}

// MarkArticleError flags the article with this link as unreachable or
// unparseable. The state is durable until reset.
func (p *Pipeline) MarkArticleError(link string) error {
	return p.articleRepo.MarkAsError(link)
}

// ResetFeedErrors clears the error state of all articles in the given feeds,
// making them importable again.
func (p *Pipeline) ResetFeedErrors(feedIDs []int64) (int, error) {
	return p.articleRepo.ResetErrorsByFeeds(feedIDs)
}

// GetLoadConfig resolves what a caller should refresh: all due feeds when
// autoUpdateOnly is set, otherwise the single named feed if it exists.
func (p *Pipeline) GetLoadConfig(feedID int64, autoUpdateOnly bool) (LoadConfig, error) {
	if autoUpdateOnly {
		due, err := p.DueForRefresh()
		if err != nil {
			return LoadConfig{}, err
		}
		return LoadConfig{Feeds: due, Count: len(due)}, nil
	}

	f, err := p.feedRepo.Find(feedID)
	if err != nil {
		return LoadConfig{}, err
	}
	if f == nil {
		return LoadConfig{Feeds: []database.Feed{}, Count: 0}, nil
	}

	return LoadConfig{Feeds: []database.Feed{*f}, Count: 1}, nil
}

func validateFeed(languageID int64, name, sourceURI string) error {
	if languageID <= 0 {
		return validationErrorf("language is required")
	}
	if name == "" {
		return validationErrorf("feed name is required")
	}
	if sourceURI == "" {
		return validationErrorf("feed source URI is required")
	}
	return nil
}

func rawItemsToArticles(feedID int64, items []RawItem) []database.Article {
	articles := make([]database.Article, len(items))
	for i, item := range items {
		articles[i] = database.Article{
			FeedID:      feedID,
			Title:       item.Title,
			Link:        item.Link,
			Description: item.Description,
			Date:        item.Date,
			Audio:       item.Audio,
		}
	}
	return articles
}

type feedGroup struct {
	feedID   int64
	articles []database.Article
}

// groupByFeed buckets articles by owning feed, preserving encounter order.
func groupByFeed(articles []database.Article) []feedGroup {
	index := make(map[int64]int)
	var groups []feedGroup

	for _, a := range articles {
		i, ok := index[a.FeedID]
		if !ok {
			i = len(groups)
			index[a.FeedID] = i
			groups = append(groups, feedGroup{feedID: a.FeedID})
		}
		groups[i].articles = append(groups[i].articles, a)
	}

	return groups
}
