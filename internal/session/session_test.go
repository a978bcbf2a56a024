package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// stores returns each Store implementation under a fresh state.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening sqlite store: %v", err)
	}
	mem := NewMemoryStore(0)

	t.Cleanup(func() {
		sqlite.Close()
		mem.Close()
	})
	return map[string]Store{"memory": mem, "sqlite": sqlite}
}

func TestStore_UnseenSessionEmpty(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			turns, err := s.History(context.Background(), "never-seen")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(turns) != 0 {
				t.Errorf("history = %v, want empty", turns)
			}
		})
	}
}

func TestStore_AppendAndHistory(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const n = 4
			for i := 0; i < n; i++ {
				err := s.Append(ctx, "s1",
					Turn{Role: RoleUser, Content: fmt.Sprintf("question %d", i)},
					Turn{Role: RoleAssistant, Content: fmt.Sprintf("answer %d", i)},
				)
				if err != nil {
					t.Fatalf("Append: %v", err)
				}
			}

			turns, err := s.History(ctx, "s1")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(turns) != 2*n {
				t.Fatalf("len = %d, want %d", len(turns), 2*n)
			}
			for i := 0; i < n; i++ {
				u, a := turns[2*i], turns[2*i+1]
				if u.Role != RoleUser || u.Content != fmt.Sprintf("question %d", i) {
					t.Errorf("turn %d = %+v, want user question %d", 2*i, u, i)
				}
				if a.Role != RoleAssistant || a.Content != fmt.Sprintf("answer %d", i) {
					t.Errorf("turn %d = %+v, want assistant answer %d", 2*i+1, a, i)
				}
			}
		})
	}
}

func TestStore_SessionsIsolated(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Append(ctx, "a", Turn{Role: RoleUser, Content: "for a"})
			s.Append(ctx, "b", Turn{Role: RoleUser, Content: "for b"})

			turns, err := s.History(ctx, "a")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(turns) != 1 || turns[0].Content != "for a" {
				t.Errorf("history(a) = %v", turns)
			}
		})
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers = 8
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				w := w
				wg.Add(1)
				go func() {
					defer wg.Done()
					// Paired appends must land adjacently even under
					// concurrency with other sessions.
					id := fmt.Sprintf("s%d", w%2)
					s.Append(ctx, id,
						Turn{Role: RoleUser, Content: "q"},
						Turn{Role: RoleAssistant, Content: "a"},
					)
				}()
			}
			wg.Wait()

			for _, id := range []string{"s0", "s1"} {
				turns, err := s.History(ctx, id)
				if err != nil {
					t.Fatalf("History(%s): %v", id, err)
				}
				if len(turns)%2 != 0 {
					t.Fatalf("history(%s) has odd length %d", id, len(turns))
				}
				for i := 0; i < len(turns); i += 2 {
					if turns[i].Role != RoleUser || turns[i+1].Role != RoleAssistant {
						t.Errorf("history(%s) interleaved at %d: %v", id, i, turns)
					}
				}
			}
		})
	}
}

func TestMemoryStore_HistoryIsCopy(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	s.Append(ctx, "s1", Turn{Role: RoleUser, Content: "original"})
	turns, _ := s.History(ctx, "s1")
	turns[0].Content = "mutated"

	again, _ := s.History(ctx, "s1")
	if again[0].Content != "original" {
		t.Errorf("store state mutated through returned slice")
	}
}

func TestMemoryStore_TTLEviction(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	s.Append(ctx, "stale", Turn{Role: RoleUser, Content: "hi"})
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}

	// Drive eviction directly rather than racing the sweeper.
	s.evictIdle(time.Now().Add(time.Minute))
	if s.Len() != 0 {
		t.Errorf("Len = %d after eviction, want 0", s.Len())
	}
	turns, _ := s.History(ctx, "stale")
	if len(turns) != 0 {
		t.Errorf("history after eviction = %v, want empty", turns)
	}
}

func TestSQLiteStore_Migrations(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	// Re-running migrate against the same database must be a no-op.
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSQLiteStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	ctx := context.Background()
	if err := s.Append(ctx, "s1", Turn{Role: RoleUser, Content: "persisted"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Close()

	// Reopen: the turn survives the restart.
	s2, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s2.Close()
	turns, err := s2.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "persisted" {
		t.Errorf("history = %v", turns)
	}
}
