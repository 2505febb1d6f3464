package convlog

import (
	"context"
	"strings"
)

// SinkConfig selects the conversation-log backend.
type SinkConfig struct {
	Sheets      SheetsConfig
	DatabaseURL string
}

// NewSink creates a sheets-backed sink when credentials are configured, a
// postgres-backed sink when a database URL is set, otherwise a no-op.
func NewSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	if strings.TrimSpace(cfg.Sheets.CredentialsFile) != "" {
		return NewSheetsSink(cfg.Sheets)
	}
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		return NewPostgresSink(ctx, cfg.DatabaseURL)
	}
	return NoopSink{}, nil
}
