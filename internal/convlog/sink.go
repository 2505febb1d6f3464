// Package convlog records a summary of escalated conversations to an
// external sink. Everything here is best-effort: a broken sink is reported
// and counted, never allowed to touch the user-facing path.
package convlog

import (
	"context"
	"time"
)

// Record is one appended conversation-log row.
type Record struct {
	Timestamp          time.Time
	UserID             string
	Summary            string
	LastUserMessage    string
	LastAssistantReply string
}

// Sink appends conversation records to external storage.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// NoopSink discards records; used when no sink is configured.
type NoopSink struct{}

func (NoopSink) Append(context.Context, Record) error { return nil }
func (NoopSink) Close() error                         { return nil }
