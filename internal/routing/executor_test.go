package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dialcraft/router/internal/directory"
	"github.com/dialcraft/router/internal/queue"
	"github.com/dialcraft/router/internal/types"
	"github.com/rs/zerolog"
)

func newTestExecutor() (*Executor, *directory.Directory, *queue.Manager) {
	dir := directory.New(nil, zerolog.Nop())
	qm := queue.NewManager(nil, zerolog.Nop())
	return NewExecutor(dir, qm, zerolog.Nop()), dir, qm
}

func agent(id string, opts ...func(*types.Agent)) types.Agent {
	a := types.Agent{
		ID:          id,
		WorkspaceID: "ws1",
		Status:      types.StatusAvailable,
		Role:        types.RoleAgent,
		Extension:   "+1555000" + id,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func withSkill(name string, level int) func(*types.Agent) {
	return func(a *types.Agent) { a.Skills = append(a.Skills, types.Skill{Name: name, Level: level}) }
}

func withRole(role types.AgentRole) func(*types.Agent) {
	return func(a *types.Agent) { a.Role = role }
}

func withCity(city string) func(*types.Agent) {
	return func(a *types.Agent) { a.Location.City = city }
}

func withLastCall(t time.Time) func(*types.Agent) {
	return func(a *types.Agent) { a.LastCallTime = t }
}

func TestSkillsBasedRoutesQualifyingAgent(t *testing.T) {
	exec, dir, _ := newTestExecutor()
	dir.Upsert(agent("a1", withSkill("sales", 3)))

	caller := &types.CallerProfile{
		Tier: types.TierPremium, Priority: types.PriorityNormal,
		RequiredSkill: "sales", MinSkillLevel: 2,
	}

	d := exec.Execute(context.Background(), types.StrategySkillsBased, baseConfig(), caller, "call-1", time.Now())
	if d.Action != types.ActionRoute || d.AgentID != "a1" {
		t.Fatalf("expected route to a1, got %+v", d)
	}
	if d.Fallback {
		t.Error("direct skill match must not be flagged as fallback")
	}
	if got := dir.Get("ws1", "a1"); got.Status != types.StatusBusy {
		t.Errorf("routed agent should be busy, got %s", got.Status)
	}
}

func TestSkillsBasedPrefersHigherLevel(t *testing.T) {
	exec, dir, _ := newTestExecutor()
	dir.Upsert(agent("a1", withSkill("sales", 2)))
	dir.Upsert(agent("a2", withSkill("sales", 5)))

	caller := &types.CallerProfile{RequiredSkill: "sales", MinSkillLevel: 2, Priority: types.PriorityNormal}

	d := exec.Execute(context.Background(), types.StrategySkillsBased, baseConfig(), caller, "call-1", time.Now())
	if d.AgentID != "a2" {
		t.Errorf("expected highest skill level to win, got %s", d.AgentID)
	}
}

func TestSkillsBasedNeverPicksBelowMinimumWhenMatchExists(t *testing.T) {
	exec, dir, _ := newTestExecutor()
	dir.Upsert(agent("low", withSkill("sales", 1)))
	dir.Upsert(agent("high", withSkill("sales", 4)))

	caller := &types.CallerProfile{RequiredSkill: "sales", MinSkillLevel: 3, Priority: types.PriorityNormal}

	d := exec.Execute(context.Background(), types.StrategySkillsBased, baseConfig(), caller, "call-1", time.Now())
	if d.AgentID != "high" {
		t.Fatalf("expected the qualifying agent, got %+v", d)
	}
}

func TestSkillsBasedPremiumFallsBackToSupervisor(t *testing.T) {
	exec, dir, _ := newTestExecutor()
	dir.Upsert(agent("sup1", withRole(types.RoleSupervisor)))

	caller := &types.CallerProfile{
		Tier: types.TierPremium, Priority: types.PriorityNormal,
		RequiredSkill: "billing", MinSkillLevel: 3,
	}

	d := exec.Execute(context.Background(), types.StrategySkillsBased, baseConfig(), caller, "call-1", time.Now())
	if d.Action != types.ActionRoute || d.AgentID != "sup1" {
		t.Fatalf("expected supervisor fallback, got %+v", d)
	}
	if !d.Fallback {
		t.Error("supervisor fallback must be flagged as a degraded match")
	}
}

func TestSkillsBasedNoAgentsQueues(t *testing.T) {
	exec, _, _ := newTestExecutor()

	caller := &types.CallerProfile{RequiredSkill: "sales", Priority: types.PriorityNormal}

	d := exec.Execute(context.Background(), types.StrategySkillsBased, baseConfig(), caller, "call-1", time.Now())
	if d.Action != types.ActionQueue {
		t.Fatalf("expected queue, got %+v", d)
	}
	if !d.Fallback {
		t.Error("queueing after a failed skill match must be flagged as fallback")
	}
}

func TestGeographicPrefersCityThenCascades(t *testing.T) {
	exec, dir, _ := newTestExecutor()
	now := time.Now()
	dir.Upsert(agent("austin", withCity("Austin"), withLastCall(now.Add(-time.Hour))))
	dir.Upsert(agent("dallas", withCity("Dallas"), withLastCall(now.Add(-2*time.Hour))))

	caller := &types.CallerProfile{
		Priority: types.PriorityNormal,
		Location: types.Location{City: "Austin", State: "TX"},
	}

	d := exec.Execute(context.Background(), types.StrategyGeographic, baseConfig(), caller, "call-1", now)
	if d.AgentID != "austin" {
		t.Errorf("city match should beat the longer-idle agent elsewhere, got %s", d.AgentID)
	}
}

func TestGeographicFallsBackToRoundRobin(t *testing.T) {
	exec, dir, _ := newTestExecutor()
	dir.Upsert(agent("remote"))

	caller := &types.CallerProfile{
		Priority: types.PriorityNormal,
		Location: types.Location{City: "Oslo", Country: "NO"},
	}

	d := exec.Execute(context.Background(), types.StrategyGeographic, baseConfig(), caller, "call-1", time.Now())
	if d.Action != types.ActionRoute || d.AgentID != "remote" {
		t.Fatalf("expected round-robin fallback to route, got %+v", d)
	}
	if !d.Fallback {
		t.Error("cross-region assignment must be flagged as fallback")
	}
}

func TestRoundRobinRotates(t *testing.T) {
	exec, dir, _ := newTestExecutor()
	now := time.Now()
	dir.Upsert(agent("a1", withLastCall(now.Add(-time.Hour))))
	dir.Upsert(agent("a2", withLastCall(now.Add(-2*time.Hour))))

	caller := standardCaller()

	first := exec.Execute(context.Background(), types.StrategyRoundRobin, baseConfig(), caller, "call-1", now)
	if first.AgentID != "a2" {
		t.Fatalf("expected longest-idle agent first, got %s", first.AgentID)
	}

	dir.Release("ws1", "a2")
	second := exec.Execute(context.Background(), types.StrategyRoundRobin, baseConfig(), caller, "call-2", now.Add(time.Minute))
	if second.AgentID != "a1" {
		t.Errorf("expected rotation to the other agent, got %s", second.AgentID)
	}
}

func TestQueueOverflowGoesToVoicemail(t *testing.T) {
	exec, _, qm := newTestExecutor()
	cfg := baseConfig()
	cfg.MaxQueueSize = 2

	qm.Enqueue(context.Background(), "ws1", "waiting-1", types.PriorityNormal)
	qm.Enqueue(context.Background(), "ws1", "waiting-2", types.PriorityNormal)

	d := exec.Execute(context.Background(), types.StrategyQueue, cfg, standardCaller(), "call-3", time.Now())
	if d.Action != types.ActionVoicemail {
		t.Fatalf("expected voicemail on overflow, got %+v", d)
	}
	if d.Reason != "queue overflow" {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestConcurrentEnqueuesRespectMaxQueueSize(t *testing.T) {
	exec, _, qm := newTestExecutor()
	cfg := baseConfig()
	cfg.MaxQueueSize = 3

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			callID := "call-" + string(rune('a'+n))
			exec.Execute(context.Background(), types.StrategyQueue, cfg, standardCaller(), callID, time.Now())
		}(i)
	}
	wg.Wait()

	if got := qm.WaitingCount("ws1"); got > 3 {
		t.Errorf("queue exceeded its configured maximum: %d waiting", got)
	}
}

func TestExcessiveWaitOffersCallback(t *testing.T) {
	exec, _, _ := newTestExecutor()
	cfg := baseConfig()
	cfg.MaxWaitSeconds = 60

	// Empty queue, normal priority: estimate is 120s, above the 60s cap
	d := exec.Execute(context.Background(), types.StrategyQueue, cfg, standardCaller(), "call-1", time.Now())
	if d.Action != types.ActionCallback {
		t.Fatalf("expected callback, got %+v", d)
	}
	if d.EstimatedWait != 60 {
		t.Errorf("callback estimate should be half the queue estimate, got %d", d.EstimatedWait)
	}
}

func TestCallbackEstimateIsCapped(t *testing.T) {
	exec, _, qm := newTestExecutor()
	cfg := baseConfig()
	cfg.MaxWaitSeconds = 600

	for i := 0; i < 3; i++ {
		qm.Enqueue(context.Background(), "ws1", "low-"+string(rune('a'+i)), types.PriorityLow)
	}

	caller := standardCaller()
	caller.Priority = types.PriorityLow

	// Position 4 at the low base gives a 720s estimate; half is 360,
	// capped to 300
	d := exec.Execute(context.Background(), types.StrategyQueue, cfg, caller, "call-x", time.Now())
	if d.Action != types.ActionCallback {
		t.Fatalf("expected callback, got %+v", d)
	}
	if d.EstimatedWait != callbackCapSeconds {
		t.Errorf("expected capped estimate %d, got %d", callbackCapSeconds, d.EstimatedWait)
	}
}

func TestFailoverEscalationLevels(t *testing.T) {
	t.Run("backup agent stops at level 1", func(t *testing.T) {
		exec, dir, _ := newTestExecutor()
		dir.Upsert(agent("b1", withRole(types.RoleBackup)))
		dir.Upsert(agent("s1", withRole(types.RoleSupervisor)))

		d := exec.Execute(context.Background(), types.StrategyFailover, baseConfig(), standardCaller(), "call-1", time.Now())
		if d.AgentID != "b1" || d.EscalationLevel != 1 {
			t.Fatalf("expected backup at level 1, got %+v", d)
		}
	})

	t.Run("supervisor at level 2", func(t *testing.T) {
		exec, dir, _ := newTestExecutor()
		dir.Upsert(agent("s1", withRole(types.RoleSupervisor)))

		d := exec.Execute(context.Background(), types.StrategyFailover, baseConfig(), standardCaller(), "call-1", time.Now())
		if d.AgentID != "s1" || d.EscalationLevel != 2 {
			t.Fatalf("expected supervisor at level 2, got %+v", d)
		}
	})

	t.Run("high-priority queue at level 3", func(t *testing.T) {
		exec, _, _ := newTestExecutor()

		d := exec.Execute(context.Background(), types.StrategyFailover, baseConfig(), standardCaller(), "call-1", time.Now())
		if d.Action != types.ActionQueue || d.EscalationLevel != 3 {
			t.Fatalf("expected high-priority queue at level 3, got %+v", d)
		}
	})

	t.Run("voicemail at level 4 when queue is full", func(t *testing.T) {
		exec, _, qm := newTestExecutor()
		cfg := baseConfig()
		cfg.MaxQueueSize = 1
		qm.Enqueue(context.Background(), "ws1", "waiting-1", types.PriorityUrgent)

		d := exec.Execute(context.Background(), types.StrategyFailover, cfg, standardCaller(), "call-1", time.Now())
		if d.Action != types.ActionVoicemail || d.EscalationLevel != 4 {
			t.Fatalf("expected voicemail at level 4, got %+v", d)
		}
	})
}

func TestUnknownStrategyTerminatesInVoicemail(t *testing.T) {
	exec, dir, _ := newTestExecutor()
	dir.Upsert(agent("a1"))

	d := exec.Execute(context.Background(), types.Strategy("smoke-signals"), baseConfig(), standardCaller(), "call-1", time.Now())
	if d.Action != types.ActionVoicemail {
		t.Errorf("unknown strategy must terminate in voicemail, got %+v", d)
	}
}
