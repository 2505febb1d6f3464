package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/antoniostano/whatsline/internal/transcript"
)

// ErrEmptyResponse is returned when the provider answered successfully but
// produced no assistant content.
var ErrEmptyResponse = errors.New("completion provider returned no content")

// ProviderError carries the provider's status and message for a failed
// completion call.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion provider status %d: %s", e.StatusCode, e.Message)
}

// Client produces the next assistant turn for a transcript. Implementations
// must not mutate the passed slice.
type Client interface {
	Complete(ctx context.Context, turns []transcript.Turn) (string, error)
}
