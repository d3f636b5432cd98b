package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lingofeed/lingofeed/app/database"
	"github.com/lingofeed/lingofeed/app/feed"
)

// RegisterFeedTask persists a bootstrap feed definition at startup. A feed
// already subscribed to the same source URI is left alone.
type RegisterFeedTask struct {
	Task
	Definition feed.Definition
	pipeline   *feed.Pipeline
	feedRepo   database.FeedRepository
}

func NewRegisterFeedTask(definition feed.Definition, pipeline *feed.Pipeline, feedRepo database.FeedRepository) *RegisterFeedTask {
	return &RegisterFeedTask{
		Task:       NewTask(TaskTypeRegisterFeed, definition.Name),
		Definition: definition,
		pipeline:   pipeline,
		feedRepo:   feedRepo,
	}
}

func (t *RegisterFeedTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	existing, err := t.feedRepo.FindAll()
	if err != nil {
		return fmt.Errorf("failed to list feeds: %w", err)
	}

	for _, f := range existing {
		if f.SourceURI == t.Definition.URL {
			slog.Debug("Feed already registered", "feed", t.FeedName, "url", t.Definition.URL)
			return nil
		}
	}

	f, err := t.pipeline.CreateFeed(
		t.Definition.LanguageID,
		t.Definition.Name,
		t.Definition.URL,
		t.Definition.ArticleSelector,
		t.Definition.FilterSelector,
		t.Definition.BuildOptions())
	if err != nil {
		return fmt.Errorf("failed to register feed definition: %w", err)
	}

	slog.Info("Task completed",
		"type", "RegisterFeed",
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"feed_id", f.ID)

	return nil
}
