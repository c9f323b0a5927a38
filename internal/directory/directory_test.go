package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dialcraft/router/internal/types"
	"github.com/rs/zerolog"
)

type stubAgentStore struct {
	agents map[string][]types.Agent
}

func (s *stubAgentStore) ListAgents(_ context.Context, workspaceID string) ([]types.Agent, error) {
	return s.agents[workspaceID], nil
}

func (s *stubAgentStore) UpdateAgentAssignment(context.Context, string, time.Time, int) error {
	return nil
}

func seeded() *Directory {
	d := New(nil, zerolog.Nop())
	now := time.Now()
	d.Upsert(types.Agent{
		ID: "a1", WorkspaceID: "ws1", Status: types.StatusAvailable, Role: types.RoleAgent,
		Skills:       []types.Skill{{Name: "sales", Level: 2}},
		Location:     types.Location{City: "Austin", State: "TX", Country: "US", Timezone: "America/Chicago"},
		LastCallTime: now.Add(-10 * time.Minute),
	})
	d.Upsert(types.Agent{
		ID: "a2", WorkspaceID: "ws1", Status: types.StatusAvailable, Role: types.RoleSupervisor,
		Skills:       []types.Skill{{Name: "sales", Level: 4}},
		Location:     types.Location{City: "Dallas", State: "TX", Country: "US", Timezone: "America/Chicago"},
		LastCallTime: now.Add(-30 * time.Minute),
	})
	d.Upsert(types.Agent{
		ID: "a3", WorkspaceID: "ws1", Status: types.StatusBusy, Role: types.RoleAgent,
		Skills: []types.Skill{{Name: "sales", Level: 5}},
	})
	return d
}

func TestAvailableFiltersStatus(t *testing.T) {
	d := seeded()
	got := d.Available("ws1")
	if len(got) != 2 {
		t.Fatalf("expected 2 available agents, got %d", len(got))
	}
	for _, a := range got {
		if a.ID == "a3" {
			t.Error("busy agent a3 should not be available")
		}
	}
}

func TestAvailableWithSkillRespectsMinLevel(t *testing.T) {
	d := seeded()

	got := d.AvailableWithSkill("ws1", "sales", 3)
	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("expected only a2 at level >= 3, got %v", got)
	}

	if got := d.AvailableWithSkill("ws1", "billing", 1); len(got) != 0 {
		t.Errorf("expected no billing agents, got %v", got)
	}
}

func TestAvailableByLocation(t *testing.T) {
	d := seeded()

	if got := d.AvailableByLocation("ws1", MatchCity, "Austin"); len(got) != 1 || got[0].ID != "a1" {
		t.Errorf("city match failed: %v", got)
	}
	if got := d.AvailableByLocation("ws1", MatchState, "TX"); len(got) != 2 {
		t.Errorf("expected 2 TX agents, got %d", len(got))
	}
	if got := d.AvailableByLocation("ws1", MatchCity, ""); got != nil {
		t.Errorf("empty value should match nothing, got %v", got)
	}
}

func TestQueriesAreWorkspaceScoped(t *testing.T) {
	d := seeded()
	d.Upsert(types.Agent{ID: "other", WorkspaceID: "ws2", Status: types.StatusAvailable})

	for _, a := range d.Available("ws1") {
		if a.ID == "other" {
			t.Error("ws2 agent leaked into ws1 query results")
		}
	}
	if got := d.Available("ws2"); len(got) != 1 || got[0].ID != "other" {
		t.Errorf("expected only the ws2 agent, got %v", got)
	}
	if d.Get("ws1", "other") != nil {
		t.Error("Get must not cross workspaces")
	}
}

func TestLoadReplacesOnlyOneWorkspace(t *testing.T) {
	store := &stubAgentStore{agents: map[string][]types.Agent{
		"ws2": {{ID: "b1", Status: types.StatusAvailable}},
	}}
	d := New(store, zerolog.Nop())
	d.Upsert(types.Agent{ID: "a1", WorkspaceID: "ws1", Status: types.StatusAvailable})

	if err := d.Load(context.Background(), "ws2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.Count("ws1") != 1 {
		t.Error("loading ws2 must not evict ws1's agents")
	}
	if d.Count("ws2") != 1 {
		t.Errorf("expected 1 ws2 agent, got %d", d.Count("ws2"))
	}
}

func TestAssignLeastRecentlyUsedPicksOldest(t *testing.T) {
	d := seeded()
	now := time.Now()

	agent := d.AssignLeastRecentlyUsed(context.Background(), "ws1", d.Available("ws1"), "call-1", now)
	if agent == nil {
		t.Fatal("expected an agent")
	}
	if agent.ID != "a2" {
		t.Errorf("expected a2 (oldest last call), got %s", agent.ID)
	}
	if agent.Status != types.StatusBusy {
		t.Errorf("expected assigned agent busy, got %s", agent.Status)
	}
	if !agent.LastCallTime.Equal(now) {
		t.Error("expected last call time updated to now")
	}

	// Next assignment must pick a different agent
	next := d.AssignLeastRecentlyUsed(context.Background(), "ws1", d.Available("ws1"), "call-2", now.Add(time.Second))
	if next == nil {
		t.Fatal("expected a second agent")
	}
	if next.ID == agent.ID {
		t.Error("same agent selected twice in a row")
	}
}

func TestNeverCalledAgentSortsFirst(t *testing.T) {
	d := New(nil, zerolog.Nop())
	d.Upsert(types.Agent{ID: "old", WorkspaceID: "ws1", Status: types.StatusAvailable, LastCallTime: time.Now().Add(-time.Hour)})
	d.Upsert(types.Agent{ID: "fresh", WorkspaceID: "ws1", Status: types.StatusAvailable}) // zero LastCallTime

	agent := d.AssignLeastRecentlyUsed(context.Background(), "ws1", d.Available("ws1"), "call-1", time.Now())
	if agent == nil || agent.ID != "fresh" {
		t.Fatalf("expected never-called agent first, got %v", agent)
	}
}

func TestConcurrentAssignNeverDoubleBooks(t *testing.T) {
	d := New(nil, zerolog.Nop())
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		d.Upsert(types.Agent{ID: id, WorkspaceID: "ws1", Status: types.StatusAvailable})
	}

	var mu sync.Mutex
	picked := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			callID := "call-" + string(rune('a'+n))
			if a := d.AssignLeastRecentlyUsed(context.Background(), "ws1", d.Available("ws1"), callID, time.Now()); a != nil {
				mu.Lock()
				picked[a.ID]++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for id, n := range picked {
		if n > 1 {
			t.Errorf("agent %s assigned %d times concurrently", id, n)
		}
	}
}

func TestReleaseReturnsAgentToAvailable(t *testing.T) {
	d := seeded()
	agent := d.Assign(context.Background(), "ws1", "a1", "call-1", time.Now())
	if agent == nil {
		t.Fatal("expected assignment")
	}

	d.Release("ws1", "a1")
	found := false
	for _, a := range d.Available("ws1") {
		if a.ID == "a1" {
			found = true
		}
	}
	if !found {
		t.Error("released agent not available again")
	}
}

func TestReleaseCallFreesBoundAgent(t *testing.T) {
	d := seeded()
	agent := d.Assign(context.Background(), "ws1", "a1", "call-1", time.Now())
	if agent == nil {
		t.Fatal("expected assignment")
	}

	ws, released := d.ReleaseCall("call-1")
	if !released || ws != "ws1" {
		t.Fatalf("expected release in ws1, got %q %v", ws, released)
	}
	if got := d.Get("ws1", "a1"); got.Status != types.StatusAvailable {
		t.Errorf("agent should be available after its call ends, got %s", got.Status)
	}

	// The binding is consumed; a redelivered event is a no-op
	if _, released := d.ReleaseCall("call-1"); released {
		t.Error("second release for the same call must be a no-op")
	}
}

func TestManualReleaseDropsStaleBinding(t *testing.T) {
	d := seeded()
	d.Assign(context.Background(), "ws1", "a1", "call-1", time.Now())

	d.Release("ws1", "a1")

	// a1 takes a new call; the old call's end event must not free them
	d.Assign(context.Background(), "ws1", "a1", "call-2", time.Now())
	if _, released := d.ReleaseCall("call-1"); released {
		t.Error("stale binding survived the manual release")
	}
	if got := d.Get("ws1", "a1"); got.Status != types.StatusBusy {
		t.Errorf("agent on a live call must stay busy, got %s", got.Status)
	}
}
