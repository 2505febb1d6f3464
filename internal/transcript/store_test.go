package transcript

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"
)

const testPersona = "You are a helpful intake assistant."

func TestGetOrCreateSeedsSystemTurn(t *testing.T) {
	s := NewStore(testPersona, 0)

	turns := s.GetOrCreate("5551234")
	if len(turns) != 1 {
		t.Fatalf("new transcript has %d turns, want 1", len(turns))
	}
	if turns[0].Role != RoleSystem || turns[0].Content != testPersona {
		t.Fatalf("seed turn = %+v, want system persona turn", turns[0])
	}

	// Repeated calls must not reseed.
	again := s.GetOrCreate("5551234")
	if len(again) != 1 {
		t.Fatalf("repeated GetOrCreate grew transcript to %d turns", len(again))
	}
	if again[0].ID != turns[0].ID {
		t.Fatalf("seed turn changed identity across calls")
	}
}

func TestAppendBeforeCreateFails(t *testing.T) {
	s := NewStore(testPersona, 0)
	if _, err := s.Append("unknown", RoleUser, "hola"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("Append() error = %v, want ErrUnknownUser", err)
	}
}

func TestAppendOrder(t *testing.T) {
	s := NewStore(testPersona, 0)
	s.GetOrCreate("u1")

	for i := 0; i < 5; i++ {
		if _, err := s.Append("u1", RoleUser, strconv.Itoa(i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	turns := s.GetOrCreate("u1")
	if len(turns) != 6 {
		t.Fatalf("transcript has %d turns, want 6", len(turns))
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].Content != strconv.Itoa(i-1) {
			t.Fatalf("turn %d content = %q, want %q", i, turns[i].Content, strconv.Itoa(i-1))
		}
	}
}

func TestNoCrossUserLeakage(t *testing.T) {
	s := NewStore(testPersona, 0)
	s.GetOrCreate("alice")
	s.GetOrCreate("bob")
	if _, err := s.Append("alice", RoleUser, "secret"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	for _, turn := range s.GetOrCreate("bob") {
		if turn.Content == "secret" {
			t.Fatalf("alice's turn leaked into bob's transcript")
		}
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore(testPersona, 0)
	turns := s.GetOrCreate("u1")
	turns[0].Content = "mutated"

	fresh := s.GetOrCreate("u1")
	if fresh[0].Content != testPersona {
		t.Fatalf("store state mutated through snapshot")
	}
}

func TestDoSerializesPerUser(t *testing.T) {
	s := NewStore(testPersona, 0)
	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				err := s.Do(context.Background(), "shared", func(c *Conversation) error {
					// Each callback appends a pair; serialization means the
					// pairs never interleave.
					n := len(c.Turns())
					c.Append(RoleUser, fmt.Sprintf("q-%d", n))
					c.Append(RoleAssistant, fmt.Sprintf("a-%d", n))
					return nil
				})
				if err != nil {
					t.Errorf("Do() error = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	turns := s.GetOrCreate("shared")
	want := 1 + workers*perWorker*2
	if len(turns) != want {
		t.Fatalf("transcript has %d turns, want %d", len(turns), want)
	}
	for i := 1; i < len(turns); i += 2 {
		wantQ := fmt.Sprintf("q-%d", i)
		wantA := fmt.Sprintf("a-%d", i)
		if turns[i].Content != wantQ || turns[i+1].Content != wantA {
			t.Fatalf("interleaved pair at %d: %q / %q", i, turns[i].Content, turns[i+1].Content)
		}
	}
}

func TestDifferentUsersConcurrent(t *testing.T) {
	s := NewStore(testPersona, 0)
	var wg sync.WaitGroup
	for u := 0; u < 10; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", u)
			for i := 0; i < 20; i++ {
				_ = s.Do(context.Background(), user, func(c *Conversation) error {
					c.Append(RoleUser, strconv.Itoa(i))
					return nil
				})
			}
		}(u)
	}
	wg.Wait()

	if got := s.ActiveCount(); got != 10 {
		t.Fatalf("ActiveCount() = %d, want 10", got)
	}
	for u := 0; u < 10; u++ {
		turns := s.GetOrCreate(fmt.Sprintf("user-%d", u))
		if len(turns) != 21 {
			t.Fatalf("user-%d has %d turns, want 21", u, len(turns))
		}
	}
}

func TestJanitorEvictsIdle(t *testing.T) {
	s := NewStore(testPersona, 30*time.Millisecond)
	s.GetOrCreate("idle")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for s.ActiveCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("idle conversation never evicted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJanitorDisabledByDefault(t *testing.T) {
	s := NewStore(testPersona, 0)
	s.GetOrCreate("u1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount() = %d after disabled janitor, want 1", got)
	}
}
