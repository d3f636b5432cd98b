package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lingofeed/lingofeed/app/feed"
)

type RefreshFeedTask struct {
	Task
	FeedID   int64
	pipeline *feed.Pipeline
}

func NewRefreshFeedTask(feedID int64, feedName string, pipeline *feed.Pipeline) *RefreshFeedTask {
	return &RefreshFeedTask{
		Task:     NewTask(TaskTypeRefreshFeed, feedName),
		FeedID:   feedID,
		pipeline: pipeline,
	}
}

func (t *RefreshFeedTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.pipeline.RefreshFeed(ctx, t.FeedID)
	if err != nil {
		return fmt.Errorf("failed to refresh feed: %w", err)
	}

	slog.Info("Task completed",
		"type", "RefreshFeed",
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"inserted", result.Inserted,
		"duplicates", result.Duplicates)

	return nil
}
