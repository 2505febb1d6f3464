package convlog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/whatsline/internal/completion"
	"github.com/antoniostano/whatsline/internal/transcript"
)

const summaryInstruction = "Resume esta conversacion en una sola oracion " +
	"que incluya el nombre del usuario, lo que necesita y su urgencia."

// Logger summarizes escalated conversations and appends them to a sink.
type Logger struct {
	completions completion.Client
	sink        Sink
	log         *zap.Logger
}

func NewLogger(completions completion.Client, sink Sink, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{completions: completions, sink: sink, log: log}
}

// LogSummary computes a one-sentence summary of the transcript via the
// completion client and appends a timestamped record. Failures are logged
// and swallowed; the inbound event must never fail because of this path.
// The passed transcript is not mutated.
func (l *Logger) LogSummary(ctx context.Context, userID string, turns []transcript.Turn) {
	rec := Record{
		Timestamp:          time.Now().UTC(),
		UserID:             userID,
		LastUserMessage:    transcript.LastContent(turns, transcript.RoleUser),
		LastAssistantReply: transcript.LastContent(turns, transcript.RoleAssistant),
	}

	prompt := make([]transcript.Turn, len(turns), len(turns)+1)
	copy(prompt, turns)
	prompt = append(prompt, transcript.Turn{
		Role:    transcript.RoleUser,
		Content: summaryInstruction,
	})

	summary, err := l.completions.Complete(ctx, prompt)
	if err != nil {
		l.log.Warn("conversation summary failed, logging last turns instead",
			zap.String("user_id", userID), zap.Error(err))
	} else {
		rec.Summary = summary
	}

	if err := l.sink.Append(ctx, rec); err != nil {
		l.log.Warn("conversation log append failed",
			zap.String("user_id", userID), zap.Error(err))
	}
}
