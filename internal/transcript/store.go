package transcript

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownUser is returned by Append when no conversation exists yet for
// the user. Callers must go through GetOrCreate (or Do) first.
var ErrUnknownUser = errors.New("no conversation for user")

type conversation struct {
	mu         sync.Mutex
	turns      []Turn
	lastActive time.Time
}

// Store owns every conversation transcript, keyed by the stable inbound
// user handle (phone number or platform user id). Conversations are created
// lazily on first contact, seeded with a single system turn carrying the
// persona prompt. Events for different users proceed concurrently; events
// for the same user serialize on the per-conversation lock.
type Store struct {
	mu      sync.RWMutex
	byUser  map[string]*conversation
	persona string
	ttl     time.Duration
}

// NewStore creates a Store seeding new transcripts with the persona prompt.
// ttl <= 0 disables idle eviction; conversations then live for the process
// lifetime.
func NewStore(persona string, ttl time.Duration) *Store {
	return &Store{
		byUser:  make(map[string]*conversation),
		persona: persona,
		ttl:     ttl,
	}
}

func (s *Store) getOrCreate(userID string) *conversation {
	s.mu.RLock()
	c, ok := s.byUser[userID]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byUser[userID]; ok {
		return c
	}
	now := time.Now().UTC()
	c = &conversation{
		turns: []Turn{{
			ID:        uuid.NewString(),
			Role:      RoleSystem,
			Content:   s.persona,
			CreatedAt: now,
		}},
		lastActive: now,
	}
	s.byUser[userID] = c
	return c
}

// GetOrCreate returns a snapshot of the user's transcript, creating and
// seeding it on first contact. The first turn is always the system persona
// turn; repeated calls never reseed.
func (s *Store) GetOrCreate(userID string) []Turn {
	c := s.getOrCreate(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot(c.turns)
}

// Append adds a turn to an existing conversation. It fails with
// ErrUnknownUser when the conversation has not been created yet.
func (s *Store) Append(userID string, role Role, content string) (Turn, error) {
	s.mu.RLock()
	c, ok := s.byUser[userID]
	s.mu.RUnlock()
	if !ok {
		return Turn{}, ErrUnknownUser
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.append(role, content), nil
}

func (c *conversation) append(role Role, content string) Turn {
	t := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	c.turns = append(c.turns, t)
	c.lastActive = t.CreatedAt
	return t
}

// Conversation is a locked view handed to Do callbacks. It is only valid
// for the duration of the callback.
type Conversation struct {
	userID string
	c      *conversation
}

// UserID returns the conversation's owning user handle.
func (v *Conversation) UserID() string { return v.userID }

// Turns returns a snapshot of the transcript.
func (v *Conversation) Turns() []Turn { return snapshot(v.c.turns) }

// Append adds a turn under the lock already held by Do.
func (v *Conversation) Append(role Role, content string) Turn {
	return v.c.append(role, content)
}

// Do runs fn while holding the user's conversation lock, creating the
// conversation first if needed. Two near-simultaneous events for one user
// cannot interleave their appends or race the dispatch policy against a
// stale turn count.
func (s *Store) Do(ctx context.Context, userID string, fn func(*Conversation) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := s.getOrCreate(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(&Conversation{userID: userID, c: c})
}

// ActiveCount reports the number of live conversations.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser)
}

// StartJanitor evicts conversations idle beyond the configured TTL. It is a
// no-op when eviction is disabled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictIdle()
			}
		}
	}()
}

func (s *Store) evictIdle() {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, c := range s.byUser {
		c.mu.Lock()
		idle := now.Sub(c.lastActive) >= s.ttl
		c.mu.Unlock()
		if idle {
			delete(s.byUser, userID)
		}
	}
}

func snapshot(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
