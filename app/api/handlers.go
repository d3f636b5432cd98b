package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lingofeed/lingofeed/app/database"
	"github.com/lingofeed/lingofeed/app/feed"
	"github.com/lingofeed/lingofeed/app/tasks"
)

func NewHandler(pipeline *feed.Pipeline, parser *feed.Parser, feedRepo database.FeedRepository,
	articleRepo database.ArticleRepository, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		pipeline:    pipeline,
		parser:      parser,
		feedRepo:    feedRepo,
		articleRepo: articleRepo,
		scheduler:   scheduler,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.CountFeeds(0, ""); err == nil {
		health["feeds"] = feedCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListFeeds(c *gin.Context) {
	var (
		feeds []database.Feed
		err   error
	)

	if raw := c.Query("language_id"); raw != "" {
		languageID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid language_id parameter"})
			return
		}
		feeds, err = h.feedRepo.FindByLanguage(languageID)
	} else {
		feeds, err = h.feedRepo.FindAll()
	}

	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]gin.H, 0, len(feeds))
	for _, f := range feeds {
		response = append(response, feedResponse(f))
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": response,
		"total": len(response),
	})
}

func (h *Handler) GetFeed(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	f, err := h.feedRepo.Find(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	c.JSON(http.StatusOK, feedResponse(*f))
}

func (h *Handler) CreateFeed(c *gin.Context) {
	var req feedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	f, err := h.pipeline.CreateFeed(req.LanguageID, req.Name, req.URL,
		req.ArticleSelector, req.FilterSelector, buildOptions(req.Options))
	if err != nil {
		h.renderPipelineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, feedResponse(*f))
}

func (h *Handler) UpdateFeed(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req feedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	f, err := h.pipeline.UpdateFeed(id, req.LanguageID, req.Name, req.URL,
		req.ArticleSelector, req.FilterSelector, buildOptions(req.Options))
	if err != nil {
		h.renderPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, feedResponse(*f))
}

func (h *Handler) DeleteFeeds(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing feed ids"})
		return
	}

	result, err := h.pipeline.DeleteFeeds(req.IDs)
	if err != nil {
		slog.Error("Failed to delete feeds", "ids", req.IDs, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete feeds"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// RefreshFeed performs a synchronous fetch so the caller sees the outcome.
// A failed fetch leaves the feed's timestamp untouched and it stays due.
func (h *Handler) RefreshFeed(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	result, err := h.pipeline.RefreshFeed(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, feed.ErrFeedNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Feed not found"})
			return
		}
		slog.Error("Feed refresh failed", "feed_id", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"inserted":   result.Inserted,
		"duplicates": result.Duplicates,
	})
}

func (h *Handler) ListDueFeeds(c *gin.Context) {
	due, err := h.pipeline.DueForRefresh()
	if err != nil {
		slog.Error("Failed to resolve due feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]gin.H, 0, len(due))
	for _, f := range due {
		response = append(response, feedResponse(f))
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": response,
		"total": len(response),
	})
}

// RefreshDueFeeds enqueues every due feed for background refresh and returns
// immediately; the worker pool does the fetching.
func (h *Handler) RefreshDueFeeds(c *gin.Context) {
	due, err := h.pipeline.DueForRefresh()
	if err != nil {
		slog.Error("Failed to resolve due feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	enqueued := 0
	for _, f := range due {
		task := tasks.NewRefreshFeedTask(f.ID, f.Name, h.pipeline)
		if err := h.scheduler.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue refresh task", "feed", f.Name, "error", err)
			continue
		}
		enqueued++
	}

	c.JSON(http.StatusAccepted, gin.H{
		"due":      len(due),
		"enqueued": enqueued,
	})
}

// DetectFeed is the feed wizard: it resolves a page or feed URL into parsed
// items plus the feed's own title and description, without persisting
// anything.
func (h *Handler) DetectFeed(c *gin.Context) {
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url"})
		return
	}

	items, title, description, err := h.parser.DetectAndParse(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"title":       title,
		"description": description,
		"items":       items,
		"total":       len(items),
	})
}

func (h *Handler) ResetFeedErrors(c *gin.Context) {
	var req feedIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.FeedIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing feed_ids"})
		return
	}

	count, err := h.pipeline.ResetFeedErrors(req.FeedIDs)
	if err != nil {
		slog.Error("Failed to reset feed errors", "feed_ids", req.FeedIDs, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset errors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset": count})
}

func (h *Handler) GetLoadConfig(c *gin.Context) {
	autoUpdateOnly := c.Query("auto_update_only") == "true" || c.Query("auto_update_only") == "1"

	var feedID int64
	if raw := c.Query("feed_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed_id parameter"})
			return
		}
		feedID = parsed
	}

	config, err := h.pipeline.GetLoadConfig(feedID, autoUpdateOnly)
	if err != nil {
		slog.Error("Failed to resolve load config", "feed_id", feedID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, config)
}

func (h *Handler) ListArticles(c *gin.Context) {
	feedIDs, ok := parseFeedIDsQuery(c)
	if !ok {
		return
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sortColumn := c.DefaultQuery("sort", "created_at")
	sortDir := c.DefaultQuery("dir", "desc")
	search := c.Query("search")
	status := c.Query("status")

	articles, err := h.articleRepo.FindByFeedsWithStatus(feedIDs, status, offset, limit, sortColumn, sortDir, search)
	if err != nil {
		slog.Error("Database error", "operation", "list_articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	total, err := h.articleRepo.CountByFeeds(feedIDs, search)
	if err != nil {
		slog.Error("Database error", "operation", "count_articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]gin.H, 0, len(articles))
	for _, a := range articles {
		response = append(response, gin.H{
			"id":          a.ID,
			"feed_id":     a.FeedID,
			"title":       a.Title,
			"link":        a.Link,
			"description": a.Description,
			"date":        a.Date,
			"audio":       a.Audio,
			"has_text":    a.Text != "",
			"has_error":   a.HasError(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": response,
		"total":    total,
	})
}

func (h *Handler) ImportArticles(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing article ids"})
		return
	}

	result, err := h.pipeline.ImportArticles(c.Request.Context(), req.IDs)
	if err != nil {
		slog.Error("Article import failed", "ids", req.IDs, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Import failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) DeleteArticles(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing article ids"})
		return
	}

	deleted, err := h.articleRepo.DeleteByIDs(req.IDs)
	if err != nil {
		slog.Error("Failed to delete articles", "ids", req.IDs, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete articles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *Handler) renderPipelineError(c *gin.Context, err error) {
	var validationErr *feed.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
	case errors.Is(err, feed.ErrFeedNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
	default:
		slog.Error("Pipeline error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func feedResponse(f database.Feed) gin.H {
	options := feed.ParseOptions(f.Options)

	sinceRefresh := "never"
	if f.LastUpdate > 0 {
		sinceRefresh = feed.FormatSinceRefresh(time.Now().Unix() - f.LastUpdate)
	}

	return gin.H{
		"id":               f.ID,
		"language_id":      f.LanguageID,
		"name":             f.Name,
		"source_uri":       f.SourceURI,
		"article_selector": f.ArticleSelector,
		"filter_selector":  f.FilterSelector,
		"last_update":      f.LastUpdate,
		"since_refresh":    sinceRefresh,
		"options":          options.All(),
	}
}

func buildOptions(raw map[string]string) feed.Options {
	var options feed.Options
	for key, value := range raw {
		options.Set(key, value)
	}
	return options
}

func parseIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed id"})
		return 0, false
	}
	return id, true
}

func parseFeedIDsQuery(c *gin.Context) ([]int64, bool) {
	raw := c.Query("feed_ids")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing feed_ids parameter"})
		return nil, false
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed_ids parameter"})
			return nil, false
		}
		ids = append(ids, id)
	}

	return ids, true
}
