package publish

import (
	"context"
	"log/slog"
)

// LogChannel records messages instead of sending them. Used for dry runs.
type LogChannel struct {
	Log *slog.Logger
}

func (c LogChannel) SendText(ctx context.Context, chatID, text string) error {
	c.logger().Info("dry-run text", "chat_id", chatID, "chars", len([]rune(text)), "text", text)
	return nil
}

func (c LogChannel) SendPhoto(ctx context.Context, chatID, photoURL, caption string) error {
	c.logger().Info("dry-run photo", "chat_id", chatID, "photo", photoURL, "caption", caption)
	return nil
}

func (c LogChannel) logger() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}
