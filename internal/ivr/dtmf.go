package ivr

import (
	"fmt"

	"github.com/dialcraft/router/internal/ncco"
	"github.com/dialcraft/router/internal/types"
)

// StepMenu is the entry state of every flow's menu
const StepMenu = "menu"

// TransitionKind tags what a menu transition does
type TransitionKind int

const (
	TransitionTransfer TransitionKind = iota
	TransitionVoicemail
	TransitionRepeat
)

// Transition is one row of the menu transition table
type Transition struct {
	Kind       TransitionKind
	Department string // for transfers
	NextStep   string
}

// MenuTransitions maps DTMF digits to transitions. Adding a menu
// option is a change to this table, not a new code branch.
var MenuTransitions = map[string]Transition{
	"1": {Kind: TransitionTransfer, Department: "sales", NextStep: "transfer:sales"},
	"2": {Kind: TransitionTransfer, Department: "support", NextStep: "transfer:support"},
	"3": {Kind: TransitionTransfer, Department: "billing", NextStep: "transfer:billing"},
	"9": {Kind: TransitionVoicemail, NextStep: "voicemail"},
}

// repeatTransition is applied to any digit not in the table
var repeatTransition = Transition{Kind: TransitionRepeat, NextStep: StepMenu}

// StateMachine resolves keypresses against the stored call state
type StateMachine struct {
	compiler *Compiler
}

// NewStateMachine creates a state machine rendering through the compiler
func NewStateMachine(compiler *Compiler) *StateMachine {
	return &StateMachine{compiler: compiler}
}

// Next returns the instruction list for a keypress plus the new call
// state. The transition is idempotent: redelivering the same digit
// after the state already advanced yields the same output with
// changed=false, so webhook retries never double-transition.
func (s *StateMachine) Next(flow *types.IVRFlow, state types.CallState, digit string, rt Runtime) (list []ncco.Instruction, next types.CallState, changed bool, err error) {
	tr, ok := MenuTransitions[digit]
	if !ok {
		tr = repeatTransition
	}

	// Webhook redelivery: state already reflects this transition
	if state.LastDTMF == digit && state.CurrentStep == tr.NextStep {
		list, err = s.render(flow, tr, rt)
		return list, state, false, err
	}

	list, err = s.render(flow, tr, rt)
	if err != nil {
		return nil, state, false, err
	}

	next = state
	next.CurrentStep = tr.NextStep
	next.LastDTMF = digit
	return list, next, true, nil
}

// render produces the instruction list for one transition
func (s *StateMachine) render(flow *types.IVRFlow, tr Transition, rt Runtime) ([]ncco.Instruction, error) {
	sub := s.compiler.replacer(rt)

	var list []ncco.Instruction
	switch tr.Kind {
	case TransitionTransfer:
		dept, ok := flow.Departments[tr.Department]
		if !ok || !dept.Enabled {
			list = []ncco.Instruction{ncco.Talk(fmt.Sprintf(
				"We're sorry, the %s department is currently unavailable. Please leave a message after the tone.",
				tr.Department))}
			list = append(list, s.compiler.voicemailRecord(flow, sub))
		} else {
			list = []ncco.Instruction{
				ncco.Talk(fmt.Sprintf("Connecting you to %s.", tr.Department)),
				ncco.Connect(dept.Number),
			}
		}

	case TransitionVoicemail:
		list = s.compiler.voicemail(flow, sub)

	case TransitionRepeat:
		menu, err := s.compiler.Compile(flow, rt)
		if err != nil {
			return nil, err
		}
		list = append([]ncco.Instruction{ncco.Talk("Sorry, that's not a valid option.")}, menu...)
	}

	if err := ncco.ValidateAll(list); err != nil {
		return nil, fmt.Errorf("dtmf transition output invalid: %w", err)
	}
	return list, nil
}
