package api

import (
	"github.com/lingofeed/lingofeed/app/database"
	"github.com/lingofeed/lingofeed/app/feed"
	"github.com/lingofeed/lingofeed/app/tasks"
)

type Handler struct {
	pipeline    *feed.Pipeline
	parser      *feed.Parser
	feedRepo    database.FeedRepository
	articleRepo database.ArticleRepository
	scheduler   tasks.TaskSchedulerInterface
}

type feedRequest struct {
	LanguageID      int64             `json:"language_id"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	ArticleSelector string            `json:"article_selector"`
	FilterSelector  string            `json:"filter_selector"`
	Options         map[string]string `json:"options"`
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

type feedIDsRequest struct {
	FeedIDs []int64 `json:"feed_ids"`
}

type detectRequest struct {
	URL string `json:"url"`
}
