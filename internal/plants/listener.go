package plants

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

const (
	changesChannel   = "plants_changes"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// listen holds a dedicated connection on the plants_changes channel and
// reconnects with backoff until ctx is cancelled.
func listen(ctx context.Context, dbURL string, out chan<- model.PlantChange, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, out, logger)
		if ctx.Err() != nil {
			logger.Info("Plant change listener stopped")
			return
		}

		logger.Error("Plant change listener disconnected, reconnecting",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

func listenLoop(ctx context.Context, dbURL string, out chan<- model.PlantChange, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+changesChannel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", changesChannel, err)
	}
	logger.Info("Plant change listener connected", "channel", changesChannel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		change, err := decodeChange(n.Payload)
		if err != nil {
			logger.Warn("Failed to parse plant change", "payload", n.Payload, "error", err)
			continue
		}

		select {
		case out <- change:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeChange(payload string) (model.PlantChange, error) {
	var change model.PlantChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return model.PlantChange{}, err
	}
	switch change.EventType {
	case model.ChangeInsert, model.ChangeUpdate, model.ChangeDelete:
		return change, nil
	}
	return model.PlantChange{}, fmt.Errorf("unknown event type %q", change.EventType)
}
