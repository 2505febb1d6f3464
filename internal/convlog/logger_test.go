package convlog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/antoniostano/whatsline/internal/transcript"
)

type stubCompletions struct {
	reply    string
	err      error
	gotTurns []transcript.Turn
}

func (s *stubCompletions) Complete(_ context.Context, turns []transcript.Turn) (string, error) {
	s.gotTurns = make([]transcript.Turn, len(turns))
	copy(s.gotTurns, turns)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type captureSink struct {
	records []Record
	err     error
}

func (s *captureSink) Append(_ context.Context, rec Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *captureSink) Close() error { return nil }

func sampleTurns() []transcript.Turn {
	return []transcript.Turn{
		{Role: transcript.RoleSystem, Content: "persona"},
		{Role: transcript.RoleUser, Content: "Tuve un accidente"},
		{Role: transcript.RoleAssistant, Content: "Cuentame mas [human]"},
	}
}

func TestLogSummaryAppendsRecord(t *testing.T) {
	completions := &stubCompletions{reply: "Juan necesita ayuda urgente tras un accidente."}
	sink := &captureSink{}
	l := NewLogger(completions, sink, nil)

	l.LogSummary(context.Background(), "5551234", sampleTurns())

	if len(sink.records) != 1 {
		t.Fatalf("sink has %d records, want 1", len(sink.records))
	}
	rec := sink.records[0]
	if rec.UserID != "5551234" || rec.Summary != completions.reply {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Fatalf("record timestamp not set")
	}
	if rec.LastUserMessage != "Tuve un accidente" || rec.LastAssistantReply != "Cuentame mas [human]" {
		t.Fatalf("last turns = %q / %q", rec.LastUserMessage, rec.LastAssistantReply)
	}
}

func TestLogSummaryAppendsInstructionWithoutMutating(t *testing.T) {
	completions := &stubCompletions{reply: "resumen"}
	l := NewLogger(completions, &captureSink{}, nil)

	turns := sampleTurns()
	l.LogSummary(context.Background(), "u", turns)

	if len(completions.gotTurns) != len(turns)+1 {
		t.Fatalf("prompt has %d turns, want %d", len(completions.gotTurns), len(turns)+1)
	}
	last := completions.gotTurns[len(completions.gotTurns)-1]
	if last.Role != transcript.RoleUser || !strings.Contains(last.Content, "una sola oracion") {
		t.Fatalf("instruction turn = %+v", last)
	}
	if len(turns) != 3 {
		t.Fatalf("caller transcript mutated to %d turns", len(turns))
	}
}

func TestLogSummarySinkFailureSwallowed(t *testing.T) {
	l := NewLogger(&stubCompletions{reply: "resumen"}, &captureSink{err: errors.New("sink down")}, nil)
	// Must not panic or propagate.
	l.LogSummary(context.Background(), "u", sampleTurns())
}

func TestLogSummaryFallsBackOnCompletionFailure(t *testing.T) {
	sink := &captureSink{}
	l := NewLogger(&stubCompletions{err: errors.New("provider down")}, sink, nil)

	l.LogSummary(context.Background(), "u", sampleTurns())

	if len(sink.records) != 1 {
		t.Fatalf("sink has %d records, want 1", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Summary != "" || rec.LastUserMessage == "" {
		t.Fatalf("fallback record = %+v", rec)
	}
}
