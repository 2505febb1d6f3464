package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/whatsline/internal/transcript"
)

// MockClient provides deterministic local replies when no provider key is
// configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Complete(ctx context.Context, turns []transcript.Turn) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	last := strings.TrimSpace(transcript.LastContent(turns, transcript.RoleUser))
	if last == "" {
		return "I am listening.", nil
	}
	return fmt.Sprintf("I heard you: %s", last), nil
}
