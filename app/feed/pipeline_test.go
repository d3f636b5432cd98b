package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lingofeed/lingofeed/app/database"
)

type fakeFeedRepo struct {
	feeds  map[int64]database.Feed
	nextID int64
}

func newFakeFeedRepo() *fakeFeedRepo {
	return &fakeFeedRepo{feeds: make(map[int64]database.Feed), nextID: 1}
}

func (r *fakeFeedRepo) Find(id int64) (*database.Feed, error) {
	f, ok := r.feeds[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (r *fakeFeedRepo) FindAll() ([]database.Feed, error) {
	var all []database.Feed
	for _, f := range r.feeds {
		all = append(all, f)
	}
	return all, nil
}

func (r *fakeFeedRepo) FindByLanguage(languageID int64) ([]database.Feed, error) {
	var matched []database.Feed
	for _, f := range r.feeds {
		if f.LanguageID == languageID {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

func (r *fakeFeedRepo) FindNeedingAutoUpdate() ([]database.Feed, error) {
	var candidates []database.Feed
	for _, f := range r.feeds {
		if _, ok := ParseOptions(f.Options).Get(OptionAutoUpdate); ok {
			candidates = append(candidates, f)
		}
	}
	return candidates, nil
}

func (r *fakeFeedRepo) CountFeeds(languageID int64, nameLike string) (int, error) {
	return len(r.feeds), nil
}

func (r *fakeFeedRepo) Save(f *database.Feed) (int64, error) {
	if f.ID == 0 {
		f.ID = r.nextID
		r.nextID++
	}
	r.feeds[f.ID] = *f
	return f.ID, nil
}

func (r *fakeFeedRepo) DeleteMultiple(ids []int64) (int, error) {
	deleted := 0
	for _, id := range ids {
		if _, ok := r.feeds[id]; ok {
			delete(r.feeds, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeFeedRepo) UpdateTimestamp(id int64, epoch int64) error {
	f, ok := r.feeds[id]
	if !ok {
		return errors.New("feed not found")
	}
	f.LastUpdate = epoch
	r.feeds[id] = f
	return nil
}

type fakeArticleRepo struct {
	articles []database.Article
	nextID   int64
}

func (r *fakeArticleRepo) InsertBatch(feedID int64, items []database.Article) (database.InsertResult, error) {
	var result database.InsertResult
	for _, item := range items {
		if item.Link == "" {
			continue
		}
		if r.hasLink(feedID, item.Link) {
			result.Duplicates++
			continue
		}
		r.nextID++
		item.ID = r.nextID
		item.FeedID = feedID
		item.Status = database.ArticleStatusActive
		r.articles = append(r.articles, item)
		result.Inserted++
	}
	return result, nil
}

func (r *fakeArticleRepo) hasLink(feedID int64, link string) bool {
	for _, a := range r.articles {
		if a.FeedID == feedID && a.Link == link {
			return true
		}
	}
	return false
}

func (r *fakeArticleRepo) FindByFeedsWithStatus(feedIDs []int64, status string, offset, limit int, sortColumn, sortDir, search string) ([]database.Article, error) {
	return nil, nil
}

func (r *fakeArticleRepo) FindByIDs(ids []int64) ([]database.Article, error) {
	var matched []database.Article
	for _, id := range ids {
		for _, a := range r.articles {
			if a.ID == id {
				matched = append(matched, a)
			}
		}
	}
	return matched, nil
}

func (r *fakeArticleRepo) CountByFeeds(feedIDs []int64, search string) (int, error) {
	return len(r.articles), nil
}

func (r *fakeArticleRepo) UpdateText(id int64, text string) error {
	for i, a := range r.articles {
		if a.ID == id {
			r.articles[i].Text = text
			return nil
		}
	}
	return errors.New("article not found")
}

func (r *fakeArticleRepo) MarkAsError(link string) error {
	for i, a := range r.articles {
		if a.Link == link {
			r.articles[i].Status = database.ArticleStatusError
		}
	}
	return nil
}

func (r *fakeArticleRepo) ResetErrorsByFeeds(feedIDs []int64) (int, error) {
	reset := 0
	for i, a := range r.articles {
		for _, feedID := range feedIDs {
			if a.FeedID == feedID && a.Status == database.ArticleStatusError {
				r.articles[i].Status = database.ArticleStatusActive
				reset++
			}
		}
	}
	return reset, nil
}

func (r *fakeArticleRepo) DeleteByFeeds(feedIDs []int64) (int, error) {
	var kept []database.Article
	deleted := 0
	for _, a := range r.articles {
		remove := false
		for _, feedID := range feedIDs {
			if a.FeedID == feedID {
				remove = true
			}
		}
		if remove {
			deleted++
		} else {
			kept = append(kept, a)
		}
	}
	r.articles = kept
	return deleted, nil
}

func (r *fakeArticleRepo) DeleteByIDs(ids []int64) (int, error) {
	var kept []database.Article
	deleted := 0
	for _, a := range r.articles {
		remove := false
		for _, id := range ids {
			if a.ID == id {
				remove = true
			}
		}
		if remove {
			deleted++
		} else {
			kept = append(kept, a)
		}
	}
	r.articles = kept
	return deleted, nil
}

type archiveCall struct {
	tag  string
	keep int
}

type fakeTextRepo struct {
	sourceURIs   map[string]bool
	created      int
	archiveCalls []archiveCall
}

func newFakeTextRepo() *fakeTextRepo {
	return &fakeTextRepo{sourceURIs: make(map[string]bool)}
}

func (r *fakeTextRepo) CreateText(languageID int64, title, body, audioURI, sourceURI, tag string) (int64, error) {
	r.created++
	r.sourceURIs[sourceURI] = true
	return int64(r.created), nil
}

func (r *fakeTextRepo) SourceURIExists(uri string) (bool, error) {
	return r.sourceURIs[uri], nil
}

func (r *fakeTextRepo) ArchiveOldTexts(tag string, keep int) (database.ArchiveResult, error) {
	r.archiveCalls = append(r.archiveCalls, archiveCall{tag: tag, keep: keep})
	return database.ArchiveResult{}, nil
}

func newTestPipeline(feedRepo *fakeFeedRepo, articleRepo *fakeArticleRepo, textRepo *fakeTextRepo) *Pipeline {
	client := http.DefaultClient
	return NewPipeline(
		NewParser(client, "Lingofeed-Test/1.0"),
		NewExtractor(client, "Lingofeed-Test/1.0"),
		feedRepo, articleRepo, textRepo)
}

func TestRefreshFeedInsertsAndDeduplicates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFixture))
	}))
	defer server.Close()

	feedRepo := newFakeFeedRepo()
	articleRepo := &fakeArticleRepo{}
	pipeline := newTestPipeline(feedRepo, articleRepo, newFakeTextRepo())

	now := time.Unix(1700000000, 0)
	pipeline.now = func() time.Time { return now }

	f := &database.Feed{LanguageID: 1, Name: "Test", SourceURI: server.URL}
	feedRepo.Save(f)

	result, err := pipeline.RefreshFeed(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Inserted != 2 || result.Duplicates != 0 {
		t.Errorf("Expected 2 inserted / 0 duplicates, got: %d / %d", result.Inserted, result.Duplicates)
	}

	saved, _ := feedRepo.Find(f.ID)
	if saved.LastUpdate != now.Unix() {
		t.Errorf("Expected timestamp %d after refresh, got: %d", now.Unix(), saved.LastUpdate)
	}

	// Second refresh of the same content is a no-op apart from dedup counts.
	result, err = pipeline.RefreshFeed(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Inserted != 0 || result.Duplicates != 2 {
		t.Errorf("Expected 0 inserted / 2 duplicates, got: %d / %d", result.Inserted, result.Duplicates)
	}
}

func TestRefreshFeedFailureKeepsTimestamp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	feedRepo := newFakeFeedRepo()
	pipeline := newTestPipeline(feedRepo, &fakeArticleRepo{}, newFakeTextRepo())

	f := &database.Feed{LanguageID: 1, Name: "Broken", SourceURI: server.URL, LastUpdate: 12345}
	feedRepo.Save(f)

	if _, err := pipeline.RefreshFeed(context.Background(), f.ID); err == nil {
		t.Fatal("Expected error for failed fetch")
	}

	saved, _ := feedRepo.Find(f.ID)
	if saved.LastUpdate != 12345 {
		t.Errorf("Expected timestamp untouched after failed fetch, got: %d", saved.LastUpdate)
	}
}

func TestRefreshFeedNotFound(t *testing.T) {
	pipeline := newTestPipeline(newFakeFeedRepo(), &fakeArticleRepo{}, newFakeTextRepo())

	_, err := pipeline.RefreshFeed(context.Background(), 42)
	if !errors.Is(err, ErrFeedNotFound) {
		t.Errorf("Expected ErrFeedNotFound, got: %v", err)
	}
}

func TestDueForRefresh(t *testing.T) {
	feedRepo := newFakeFeedRepo()
	pipeline := newTestPipeline(feedRepo, &fakeArticleRepo{}, newFakeTextRepo())

	now := time.Unix(1700000000, 0)
	pipeline.now = func() time.Time { return now }

	overdue := &database.Feed{LanguageID: 1, Name: "Overdue", SourceURI: "https://a.example.com",
		Options: "autoupdate=1h", LastUpdate: now.Unix() - 7200}
	fresh := &database.Feed{LanguageID: 1, Name: "Fresh", SourceURI: "https://b.example.com",
		Options: "autoupdate=1h", LastUpdate: now.Unix() - 1800}
	malformed := &database.Feed{LanguageID: 1, Name: "Malformed", SourceURI: "https://c.example.com",
		Options: "autoupdate=xh", LastUpdate: 0}
	manual := &database.Feed{LanguageID: 1, Name: "Manual", SourceURI: "https://d.example.com",
		LastUpdate: 0}

	feedRepo.Save(overdue)
	feedRepo.Save(fresh)
	feedRepo.Save(malformed)
	feedRepo.Save(manual)

	due, err := pipeline.DueForRefresh()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(due) != 1 {
		t.Fatalf("Expected 1 due feed, got: %d", len(due))
	}
	if due[0].Name != "Overdue" {
		t.Errorf("Expected 'Overdue' to be due, got: %s", due[0].Name)
	}
}

func TestImportArticles(t *testing.T) {
	feedRepo := newFakeFeedRepo()
	articleRepo := &fakeArticleRepo{}
	textRepo := newFakeTextRepo()
	pipeline := newTestPipeline(feedRepo, articleRepo, textRepo)

	f := &database.Feed{LanguageID: 1, Name: "Test", SourceURI: "https://example.com/feed",
		ArticleSelector: "description", Options: "tag=news,max_texts=5"}
	feedRepo.Save(f)

	articleRepo.InsertBatch(f.ID, []database.Article{
		{Title: "One", Link: "https://example.com/1", Description: "<p>Body one.</p>"},
		{Title: "Two", Link: "https://example.com/2", Description: "<p>Body two.</p>"},
		{Title: "Broken", Link: "https://example.com/3"},
	})

	result, err := pipeline.ImportArticles(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Imported != 2 {
		t.Errorf("Expected 2 imported, got: %d", result.Imported)
	}
	if result.Errors != 1 {
		t.Errorf("Expected 1 error, got: %d", result.Errors)
	}
	if textRepo.created != 2 {
		t.Errorf("Expected 2 texts created, got: %d", textRepo.created)
	}

	// Extracted text is saved back to the article.
	if articleRepo.articles[0].Text == "" {
		t.Error("Expected article text to be updated after import")
	}

	// The failed article is durably marked.
	if articleRepo.articles[2].Status != database.ArticleStatusError {
		t.Errorf("Expected failed article to be marked as error, got: %s", articleRepo.articles[2].Status)
	}

	// Retention runs once per touched tag with the feed's max_texts.
	if len(textRepo.archiveCalls) != 1 {
		t.Fatalf("Expected 1 archive call, got: %d", len(textRepo.archiveCalls))
	}
	if textRepo.archiveCalls[0].tag != "news" || textRepo.archiveCalls[0].keep != 5 {
		t.Errorf("Expected archive call (news, 5), got: (%s, %d)",
			textRepo.archiveCalls[0].tag, textRepo.archiveCalls[0].keep)
	}

	// A second import of the same articles is skipped by source URI.
	result, err = pipeline.ImportArticles(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Imported != 0 || result.Skipped != 2 {
		t.Errorf("Expected 0 imported / 2 skipped, got: %d / %d", result.Imported, result.Skipped)
	}
}

func TestImportArticlesMissingFeed(t *testing.T) {
	articleRepo := &fakeArticleRepo{}
	pipeline := newTestPipeline(newFakeFeedRepo(), articleRepo, newFakeTextRepo())

	articleRepo.InsertBatch(99, []database.Article{
		{Title: "Orphan", Link: "https://example.com/1", Description: "<p>Body.</p>"},
	})

	result, err := pipeline.ImportArticles(context.Background(), []int64{1})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Errors != 1 {
		t.Errorf("Expected 1 error for orphaned article, got: %d", result.Errors)
	}
	if result.Imported != 0 {
		t.Errorf("Expected 0 imported, got: %d", result.Imported)
	}
}

func TestResetFeedErrorsRestoresImportability(t *testing.T) {
	feedRepo := newFakeFeedRepo()
	articleRepo := &fakeArticleRepo{}
	pipeline := newTestPipeline(feedRepo, articleRepo, newFakeTextRepo())

	f := &database.Feed{LanguageID: 1, Name: "Test", SourceURI: "https://example.com/feed"}
	feedRepo.Save(f)

	articleRepo.InsertBatch(f.ID, []database.Article{
		{Title: "One", Link: "https://example.com/1"},
		{Title: "Two", Link: "https://example.com/2"},
	})

	pipeline.MarkArticleError("https://example.com/1")

	reset, err := pipeline.ResetFeedErrors([]int64{f.ID})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if reset != 1 {
		t.Errorf("Expected 1 article reset, got: %d", reset)
	}
	if articleRepo.articles[0].Status != database.ArticleStatusActive {
		t.Errorf("Expected article restored to active, got: %s", articleRepo.articles[0].Status)
	}
}

func TestDeleteFeedsCascadesArticles(t *testing.T) {
	feedRepo := newFakeFeedRepo()
	articleRepo := &fakeArticleRepo{}
	pipeline := newTestPipeline(feedRepo, articleRepo, newFakeTextRepo())

	f := &database.Feed{LanguageID: 1, Name: "Test", SourceURI: "https://example.com/feed"}
	feedRepo.Save(f)
	articleRepo.InsertBatch(f.ID, []database.Article{
		{Title: "One", Link: "https://example.com/1"},
		{Title: "Two", Link: "https://example.com/2"},
	})

	result, err := pipeline.DeleteFeeds([]int64{f.ID})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Feeds != 1 {
		t.Errorf("Expected 1 feed deleted, got: %d", result.Feeds)
	}
	if result.Articles != 2 {
		t.Errorf("Expected 2 articles deleted, got: %d", result.Articles)
	}
}

func TestCreateFeedValidation(t *testing.T) {
	pipeline := newTestPipeline(newFakeFeedRepo(), &fakeArticleRepo{}, newFakeTextRepo())

	var validationErr *ValidationError

	_, err := pipeline.CreateFeed(0, "Name", "https://example.com", "", "", Options{})
	if !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for missing language, got: %v", err)
	}

	_, err = pipeline.CreateFeed(1, "", "https://example.com", "", "", Options{})
	if !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for missing name, got: %v", err)
	}

	_, err = pipeline.CreateFeed(1, "Name", "", "", "", Options{})
	if !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error for missing source URI, got: %v", err)
	}
}

func TestUpdateFeedPreservesTimestamp(t *testing.T) {
	feedRepo := newFakeFeedRepo()
	pipeline := newTestPipeline(feedRepo, &fakeArticleRepo{}, newFakeTextRepo())

	f := &database.Feed{LanguageID: 1, Name: "Old", SourceURI: "https://example.com/feed", LastUpdate: 555}
	feedRepo.Save(f)

	updated, err := pipeline.UpdateFeed(f.ID, 2, "New", "https://example.com/other", "div.a", "div.b", Options{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if updated.Name != "New" || updated.LanguageID != 2 {
		t.Errorf("Expected updated fields, got: %s / %d", updated.Name, updated.LanguageID)
	}
	if updated.LastUpdate != 555 {
		t.Errorf("Expected last update preserved, got: %d", updated.LastUpdate)
	}
}

func TestGetLoadConfig(t *testing.T) {
	feedRepo := newFakeFeedRepo()
	pipeline := newTestPipeline(feedRepo, &fakeArticleRepo{}, newFakeTextRepo())

	f := &database.Feed{LanguageID: 1, Name: "Test", SourceURI: "https://example.com/feed"}
	feedRepo.Save(f)

	config, err := pipeline.GetLoadConfig(f.ID, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.Count != 1 || len(config.Feeds) != 1 {
		t.Errorf("Expected 1 feed in load config, got: %d", config.Count)
	}

	config, err = pipeline.GetLoadConfig(999, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.Count != 0 {
		t.Errorf("Expected empty load config for unknown feed, got: %d", config.Count)
	}
}
