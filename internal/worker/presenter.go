package worker

import (
	"context"
	"log/slog"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

// LogPresenter writes fired notifications to the log. It is used when no
// push delivery is configured.
type LogPresenter struct {
	logger *slog.Logger
}

func NewLogPresenter(logger *slog.Logger) *LogPresenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPresenter{logger: logger}
}

func (p *LogPresenter) Present(_ context.Context, n model.ScheduledNotification) error {
	p.logger.Info("Notification",
		"identifier", n.Identifier,
		"title", n.Content.Title,
		"body", n.Content.Body,
		"category", n.Content.CategoryIdentifier,
		"plant_id", n.PlantID())
	return nil
}
