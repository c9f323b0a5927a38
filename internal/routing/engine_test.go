package routing

import (
	"context"
	"testing"

	"github.com/dialcraft/router/internal/directory"
	"github.com/dialcraft/router/internal/ivr"
	"github.com/dialcraft/router/internal/ncco"
	"github.com/dialcraft/router/internal/provider"
	"github.com/dialcraft/router/internal/queue"
	"github.com/dialcraft/router/internal/storage"
	"github.com/dialcraft/router/internal/types"
	"github.com/rs/zerolog"
)

// stubStore serves fixtures from memory and counts call state writes
type stubStore struct {
	storage.NoopStore

	rule  *types.CallRouting
	cfg   *types.RoutingConfiguration
	flow  *types.IVRFlow
	state map[string]types.CallState
	saves int
}

func (s *stubStore) LookupRouting(_ context.Context, number string) (*types.CallRouting, error) {
	if s.rule != nil && s.rule.PhoneNumber == number {
		return s.rule, nil
	}
	return nil, storage.ErrNotFound
}

func (s *stubStore) GetRoutingConfiguration(_ context.Context, workspaceID string) (*types.RoutingConfiguration, error) {
	if s.cfg != nil && s.cfg.WorkspaceID == workspaceID {
		return s.cfg, nil
	}
	return nil, storage.ErrNotFound
}

func (s *stubStore) GetFlow(_ context.Context, flowID string) (*types.IVRFlow, error) {
	if s.flow != nil && s.flow.ID == flowID {
		return s.flow, nil
	}
	return nil, storage.ErrNotFound
}

func (s *stubStore) GetCallState(_ context.Context, callID string) (*types.CallState, error) {
	if st, ok := s.state[callID]; ok {
		cp := st
		return &cp, nil
	}
	return nil, storage.ErrNotFound
}

func (s *stubStore) SaveCallState(_ context.Context, st types.CallState) error {
	if s.state == nil {
		s.state = make(map[string]types.CallState)
	}
	s.state[st.CallID] = st
	s.saves++
	return nil
}

func alwaysOpenConfig() *types.RoutingConfiguration {
	schedule := make(map[string]types.DaySchedule)
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"} {
		schedule[day] = types.DaySchedule{Enabled: true, Start: "00:00", End: "23:59"}
	}
	return &types.RoutingConfiguration{
		WorkspaceID:        "ws1",
		Timezone:           "UTC",
		Schedule:           schedule,
		AfterHoursStrategy: types.StrategyVoicemail,
		NoAgentsStrategy:   types.StrategyQueue,
	}
}

func menuFlow() *types.IVRFlow {
	return &types.IVRFlow{
		ID:          "flow-1",
		WorkspaceID: "ws1",
		Name:        "main menu",
		Steps: []types.InstructionTemplate{
			{Action: "talk", Text: "Welcome. Press 1 for sales, 2 for support, 3 for billing, or 9 to leave a message."},
			{Action: "input", MaxDigits: 1},
		},
		Departments: map[string]types.DepartmentEntry{
			"sales":   {Number: "+15550002001", Enabled: true},
			"support": {Number: "+15550002002", Enabled: true},
			"billing": {Number: "+15550002003", Enabled: false},
		},
		Voicemail: types.VoicemailConfig{Greeting: "Leave a message after the tone.", MaxDurationSecs: 90},
		Active:    true,
		Version:   3,
	}
}

func newTestEngine(store *stubStore) (*Engine, *directory.Directory) {
	dir := directory.New(nil, zerolog.Nop())
	qm := queue.NewManager(nil, zerolog.Nop())
	exec := NewExecutor(dir, qm, zerolog.Nop())
	compiler := ivr.NewCompiler("https://voice.example.com", zerolog.Nop())
	eng := NewEngine(store, storage.NewNoopAuditStore(), dir, qm, exec, compiler,
		provider.NewNoop(zerolog.Nop()), "https://voice.example.com", "+15550009999", zerolog.Nop())
	return eng, dir
}

func TestHandleInboundCompilesBoundFlow(t *testing.T) {
	store := &stubStore{
		rule: &types.CallRouting{ID: "r1", WorkspaceID: "ws1", PhoneNumber: "+15550001000", FlowID: "flow-1", Active: true},
		cfg:  alwaysOpenConfig(),
		flow: menuFlow(),
	}
	eng, _ := newTestEngine(store)

	list := eng.HandleInbound(context.Background(), InboundCall{
		CallID: "call-1", PhoneNumber: "+15550001000", FromNumber: "+15550005555",
	})

	if len(list) != 2 {
		t.Fatalf("expected talk+input, got %d instructions", len(list))
	}
	if list[0].Action != ncco.ActionTalk || list[1].Action != ncco.ActionInput {
		t.Errorf("unexpected instruction shape: %+v", list)
	}

	st, ok := store.state["call-1"]
	if !ok {
		t.Fatal("initial call state was not saved")
	}
	if st.CurrentStep != ivr.StepMenu || st.FlowVersion != 3 {
		t.Errorf("unexpected initial state %+v", st)
	}
	if st.PhoneNumber != "+15550001000" || st.FromNumber != "+15550005555" {
		t.Errorf("call state must carry the call's numbers, got %+v", st)
	}
}

func TestHandleInboundUnknownNumberFallsBackToDefault(t *testing.T) {
	eng, _ := newTestEngine(&stubStore{})

	list := eng.HandleInbound(context.Background(), InboundCall{
		CallID: "call-1", PhoneNumber: "+15550009000",
	})

	if err := ncco.ValidateAll(list); err != nil {
		t.Fatalf("default answer must validate: %v", err)
	}
	last := list[len(list)-1]
	if last.Action != ncco.ActionConnect || last.Endpoint[0].Number != "+15550009999" {
		t.Errorf("expected connect to the default transfer number, got %+v", last)
	}
}

func TestHandleInboundDirectRouting(t *testing.T) {
	store := &stubStore{
		rule: &types.CallRouting{ID: "r1", WorkspaceID: "ws1", PhoneNumber: "+15550001000", Active: true},
		cfg:  alwaysOpenConfig(),
	}
	eng, dir := newTestEngine(store)
	dir.Upsert(agent("a1"))

	list := eng.HandleInbound(context.Background(), InboundCall{
		CallID: "call-1", PhoneNumber: "+15550001000", FromNumber: "+15550005555",
	})

	if len(list) != 2 || list[1].Action != ncco.ActionConnect {
		t.Fatalf("expected talk+connect, got %+v", list)
	}
	if list[1].Endpoint[0].Number != "+1555000a1" {
		t.Errorf("expected routed agent's extension, got %+v", list[1].Endpoint)
	}
}

func TestHandleDTMFTransferAndRedelivery(t *testing.T) {
	store := &stubStore{
		cfg:  alwaysOpenConfig(),
		flow: menuFlow(),
		state: map[string]types.CallState{
			"call-1": {CallID: "call-1", WorkspaceID: "ws1", FlowID: "flow-1", FlowVersion: 3, CurrentStep: ivr.StepMenu},
		},
	}
	eng, _ := newTestEngine(store)

	list, err := eng.HandleDTMF(context.Background(), "call-1", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list[len(list)-1].Action != ncco.ActionConnect {
		t.Fatalf("digit 1 should connect to sales, got %+v", list)
	}
	if store.saves != 1 {
		t.Fatalf("expected one state save, got %d", store.saves)
	}

	// Redelivered webhook: same digit, state already advanced
	again, err := eng.HandleDTMF(context.Background(), "call-1", "1")
	if err != nil {
		t.Fatalf("unexpected error on redelivery: %v", err)
	}
	if len(again) != len(list) {
		t.Errorf("redelivery should replay the same output")
	}
	if store.saves != 1 {
		t.Errorf("redelivery must not write state again, got %d saves", store.saves)
	}
}

func TestHandleDTMFVoicemailDigit(t *testing.T) {
	store := &stubStore{
		cfg:  alwaysOpenConfig(),
		flow: menuFlow(),
		state: map[string]types.CallState{
			"call-1": {CallID: "call-1", WorkspaceID: "ws1", FlowID: "flow-1", FlowVersion: 3, CurrentStep: ivr.StepMenu},
		},
	}
	eng, _ := newTestEngine(store)

	list, err := eng.HandleDTMF(context.Background(), "call-1", "9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := list[len(list)-1]
	if last.Action != ncco.ActionRecord {
		t.Fatalf("digit 9 should end in a recording, got %+v", list)
	}
	if last.EventURL[0] != "https://voice.example.com/webhooks/voice/recordings" {
		t.Errorf("recording should post to the recordings webhook, got %v", last.EventURL)
	}
	if last.MaxDuration != 90 {
		t.Errorf("recording should honor the flow's max duration, got %d", last.MaxDuration)
	}
}

func TestHandleDTMFInvalidDigitRepeatsMenu(t *testing.T) {
	store := &stubStore{
		cfg:  alwaysOpenConfig(),
		flow: menuFlow(),
		state: map[string]types.CallState{
			"call-1": {CallID: "call-1", WorkspaceID: "ws1", FlowID: "flow-1", FlowVersion: 3, CurrentStep: ivr.StepMenu},
		},
	}
	eng, _ := newTestEngine(store)

	list, err := eng.HandleDTMF(context.Background(), "call-1", "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if list[0].Action != ncco.ActionTalk || list[0].Text == "" {
		t.Fatalf("invalid digit should apologize first, got %+v", list[0])
	}
	if list[len(list)-1].Action != ncco.ActionInput {
		t.Errorf("repeated menu should end waiting for input, got %+v", list)
	}
}

func TestHandleDTMFRepeatedMenuKeepsPlaceholderValues(t *testing.T) {
	flow := menuFlow()
	flow.Steps[0].Text = "You reached {phone_number}. Press 1 for sales."
	store := &stubStore{
		cfg:  alwaysOpenConfig(),
		flow: flow,
		state: map[string]types.CallState{
			"call-1": {
				CallID: "call-1", WorkspaceID: "ws1", FlowID: "flow-1", FlowVersion: 3,
				PhoneNumber: "+15550001000", FromNumber: "+15550005555", CurrentStep: ivr.StepMenu,
			},
		},
	}
	eng, _ := newTestEngine(store)

	list, err := eng.HandleDTMF(context.Background(), "call-1", "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// list[0] apologizes; the recompiled menu follows
	if got := list[1].Text; got != "You reached +15550001000. Press 1 for sales." {
		t.Errorf("recompiled menu lost the dialed number: %q", got)
	}
}

func TestFinishCallReleasesRoutedAgent(t *testing.T) {
	store := &stubStore{
		rule: &types.CallRouting{ID: "r1", WorkspaceID: "ws1", PhoneNumber: "+15550001000", Active: true},
		cfg:  alwaysOpenConfig(),
	}
	eng, dir := newTestEngine(store)
	dir.Upsert(agent("a1"))

	inbound := func(callID string) []ncco.Instruction {
		return eng.HandleInbound(context.Background(), InboundCall{
			CallID: callID, PhoneNumber: "+15550001000", FromNumber: "+15550005555",
		})
	}

	first := inbound("call-1")
	if first[len(first)-1].Action != ncco.ActionConnect {
		t.Fatalf("expected the first call to route, got %+v", first)
	}
	if len(dir.Available("ws1")) != 0 {
		t.Fatal("routed agent should be busy")
	}

	// With the only agent busy, the next caller waits
	second := inbound("call-2")
	if second[0].Action != ncco.ActionTalk || second[len(second)-1].Action == ncco.ActionConnect {
		t.Fatalf("expected the second call to queue, got %+v", second)
	}

	// Carrier reports the first call finished: the agent frees up and
	// can take calls again
	eng.FinishCall(context.Background(), "call-1")
	if len(dir.Available("ws1")) != 1 {
		t.Fatal("agent should be available again after their call ended")
	}

	third := inbound("call-3")
	if third[len(third)-1].Action != ncco.ActionConnect {
		t.Errorf("expected the third call to route to the freed agent, got %+v", third)
	}
}

func TestEngineRouteEmitsQueuePositionSpeech(t *testing.T) {
	eng, _ := newTestEngine(&stubStore{})

	decision := types.RoutingDecision{
		Action:        types.ActionQueue,
		Strategy:      types.StrategyQueue,
		QueuePosition: 3,
		EstimatedWait: 360,
	}
	list := eng.Render(decision, alwaysOpenConfig())
	if err := ncco.ValidateAll(list); err != nil {
		t.Fatalf("queue speech must validate: %v", err)
	}
}
