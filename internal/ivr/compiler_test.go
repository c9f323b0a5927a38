package ivr

import (
	"strings"
	"testing"

	"github.com/dialcraft/router/internal/ncco"
	"github.com/dialcraft/router/internal/types"
	"github.com/rs/zerolog"
)

func testFlow() *types.IVRFlow {
	return &types.IVRFlow{
		ID:          "flow-1",
		WorkspaceID: "ws1",
		Steps: []types.InstructionTemplate{
			{Action: "talk", Text: "Thank you for calling {workspace_id}."},
			{Action: "input", MaxDigits: 1, TimeoutSec: 10},
		},
		Departments: map[string]types.DepartmentEntry{
			"sales":   {Number: "+15550002001", Enabled: true},
			"support": {Number: "+15550002002", Enabled: true},
			"billing": {Number: "+15550002003", Enabled: false},
		},
		Voicemail: types.VoicemailConfig{Greeting: "Leave a message.", MaxDurationSecs: 60},
		Active:    true,
		Version:   1,
	}
}

func testRuntime() Runtime {
	return Runtime{
		WorkspaceID:   "acme",
		PhoneNumber:   "+15550001000",
		CallID:        "call-42",
		FromNumber:    "+15550005555",
		BusinessHours: true,
	}
}

func TestCompileSubstitutesPlaceholders(t *testing.T) {
	c := NewCompiler("https://voice.example.com", zerolog.Nop())

	flow := testFlow()
	flow.Steps[0].Text = "Workspace {workspace_id}, call {call_uuid}, from {from_number}, base {base_url}."

	list, err := c.Compile(flow, testRuntime())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := list[0].Text
	for _, want := range []string{"acme", "call-42", "+15550005555", "https://voice.example.com"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q substituted into %q", want, text)
		}
	}
	if strings.Contains(text, "{") {
		t.Errorf("unsubstituted placeholder left in %q", text)
	}
}

func TestCompileInputDefaultsAndFallbackURL(t *testing.T) {
	c := NewCompiler("https://voice.example.com", zerolog.Nop())

	flow := testFlow()
	flow.Steps = []types.InstructionTemplate{
		{Action: "talk", Text: "Menu."},
		{Action: "input"},
	}

	list, err := c.Compile(flow, testRuntime())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := list[1]
	if in.MaxDigits != 1 || in.TimeoutSec != 5 {
		t.Errorf("expected defaults applied, got maxDigits=%d timeout=%d", in.MaxDigits, in.TimeoutSec)
	}
	if in.EventURL[0] != "https://voice.example.com/webhooks/voice/dtmf" {
		t.Errorf("expected default dtmf callback, got %v", in.EventURL)
	}
}

func TestCompileConditionFiltering(t *testing.T) {
	c := NewCompiler("https://voice.example.com", zerolog.Nop())

	flow := testFlow()
	flow.Steps = []types.InstructionTemplate{
		{Action: "talk", Text: "We are open.", Condition: types.ConditionBusinessHours},
		{Action: "talk", Text: "We are closed.", Condition: types.ConditionAfterHours},
		{Action: "talk", Text: "Always."},
	}

	rt := testRuntime()
	rt.BusinessHours = true
	list, err := c.Compile(flow, rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].Text != "We are open." {
		t.Fatalf("business hours should keep the open greeting, got %+v", list)
	}

	rt.BusinessHours = false
	list, err = c.Compile(flow, rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].Text != "We are closed." {
		t.Fatalf("after hours should keep the closed greeting, got %+v", list)
	}
}

func TestCompileAllStepsFilteredFallsBackToVoicemail(t *testing.T) {
	c := NewCompiler("https://voice.example.com", zerolog.Nop())

	flow := testFlow()
	flow.Steps = []types.InstructionTemplate{
		{Action: "talk", Text: "Open only.", Condition: types.ConditionBusinessHours},
	}

	rt := testRuntime()
	rt.BusinessHours = false

	list, err := c.Compile(flow, rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list[len(list)-1].Action != ncco.ActionRecord {
		t.Errorf("fully filtered flow should end in voicemail recording, got %+v", list)
	}
}

func TestCompileDepartmentTransfer(t *testing.T) {
	c := NewCompiler("https://voice.example.com", zerolog.Nop())

	flow := testFlow()
	flow.Steps = []types.InstructionTemplate{
		{Action: "connect", Department: "sales"},
	}

	list, err := c.Compile(flow, testRuntime())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list[0].Action != ncco.ActionConnect || list[0].Endpoint[0].Number != "+15550002001" {
		t.Errorf("expected connect to the sales number, got %+v", list)
	}
}

func TestCompileDisabledDepartmentDegradesToVoicemail(t *testing.T) {
	c := NewCompiler("https://voice.example.com", zerolog.Nop())

	for _, dept := range []string{"billing", "missing"} {
		flow := testFlow()
		flow.Steps = []types.InstructionTemplate{
			{Action: "connect", Department: dept},
		}

		list, err := c.Compile(flow, testRuntime())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", dept, err)
		}
		if list[0].Action != ncco.ActionTalk || !strings.Contains(list[0].Text, dept) {
			t.Errorf("%s: expected apology naming the department, got %+v", dept, list[0])
		}
		if list[len(list)-1].Action != ncco.ActionRecord {
			t.Errorf("%s: expected degradation to voicemail recording, got %+v", dept, list)
		}
	}
}

func TestCompileUnknownActionSkipped(t *testing.T) {
	c := NewCompiler("https://voice.example.com", zerolog.Nop())

	flow := testFlow()
	flow.Steps = []types.InstructionTemplate{
		{Action: "talk", Text: "Hello."},
		{Action: "teleport"},
	}

	list, err := c.Compile(flow, testRuntime())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("unknown action should be skipped, got %+v", list)
	}
}

// Every compile that succeeds must produce a list the validator
// accepts, regardless of flow shape.
func TestCompileOutputAlwaysValidates(t *testing.T) {
	c := NewCompiler("https://voice.example.com", zerolog.Nop())

	flows := []*types.IVRFlow{
		testFlow(),
		{ID: "empty", Voicemail: types.VoicemailConfig{}},
		{ID: "depts", Steps: []types.InstructionTemplate{
			{Action: "connect", Department: "nowhere"},
			{Action: "record"},
			{Action: "notify"},
		}},
		{ID: "literal", Steps: []types.InstructionTemplate{
			{Action: "connect", Endpoint: "+15550007777"},
		}},
	}

	for _, flow := range flows {
		list, err := c.Compile(flow, testRuntime())
		if err != nil {
			t.Fatalf("flow %s: unexpected error: %v", flow.ID, err)
		}
		if err := ncco.ValidateAll(list); err != nil {
			t.Errorf("flow %s: compiled output failed validation: %v", flow.ID, err)
		}
	}
}
