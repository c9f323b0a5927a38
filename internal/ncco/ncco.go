// Package ncco builds and validates the ordered instruction lists the
// telephony provider executes for one call leg.
package ncco

import "fmt"

// Supported instruction actions
const (
	ActionTalk    = "talk"
	ActionConnect = "connect"
	ActionInput   = "input"
	ActionRecord  = "record"
	ActionNotify  = "notify"
)

// Endpoint is a connect target
type Endpoint struct {
	Type   string `json:"type"` // "phone"
	Number string `json:"number"`
}

// Instruction is a single call-control action. The instruction list is
// a flat, provider-ordered array; this is the sole output contract with
// the telephony provider.
type Instruction struct {
	Action      string     `json:"action"`
	Text        string     `json:"text,omitempty"`
	BargeIn     bool       `json:"bargeIn,omitempty"`
	Endpoint    []Endpoint `json:"endpoint,omitempty"`
	EventURL    []string   `json:"eventUrl,omitempty"`
	MaxDigits   int        `json:"maxDigits,omitempty"`
	TimeoutSec  int        `json:"timeOut,omitempty"`
	EndOnKey    string     `json:"endOnKey,omitempty"`
	BeepStart   bool       `json:"beepStart,omitempty"`
	MaxDuration int        `json:"maxDuration,omitempty"` // seconds, record only
}

// Talk builds a spoken-text instruction
func Talk(text string) Instruction {
	return Instruction{Action: ActionTalk, Text: text}
}

// Connect builds a phone transfer instruction
func Connect(number string) Instruction {
	return Instruction{
		Action:   ActionConnect,
		Endpoint: []Endpoint{{Type: "phone", Number: number}},
	}
}

// Input builds a DTMF collection instruction posting digits to eventURL
func Input(eventURL string, maxDigits, timeoutSec int) Instruction {
	return Instruction{
		Action:     ActionInput,
		EventURL:   []string{eventURL},
		MaxDigits:  maxDigits,
		TimeoutSec: timeoutSec,
	}
}

// Notify builds an out-of-band event callback instruction
func Notify(eventURL string) Instruction {
	return Instruction{Action: ActionNotify, EventURL: []string{eventURL}}
}

// Record builds a voicemail recording instruction
func Record(eventURL string, maxDuration int) Instruction {
	return Instruction{
		Action:      ActionRecord,
		EventURL:    []string{eventURL},
		EndOnKey:    "#",
		BeepStart:   true,
		MaxDuration: maxDuration,
	}
}

// Validate checks the per-action shape contract for one instruction.
// An invalid instruction is a compiler defect, not a caller error.
func Validate(in Instruction) error {
	if in.Action == "" {
		return fmt.Errorf("instruction missing action")
	}

	switch in.Action {
	case ActionTalk:
		if in.Text == "" {
			return fmt.Errorf("talk instruction missing text")
		}
	case ActionConnect:
		if len(in.Endpoint) == 0 {
			return fmt.Errorf("connect instruction missing endpoint")
		}
		for i, ep := range in.Endpoint {
			if ep.Number == "" {
				return fmt.Errorf("connect endpoint %d missing number", i)
			}
		}
	case ActionInput, ActionRecord:
		if len(in.EventURL) == 0 {
			return fmt.Errorf("%s instruction missing event URL", in.Action)
		}
	case ActionNotify:
		if len(in.EventURL) == 0 {
			return fmt.Errorf("notify instruction missing event URL")
		}
	default:
		return fmt.Errorf("unknown action %q", in.Action)
	}

	return nil
}

// ValidateAll validates every instruction in a list
func ValidateAll(list []Instruction) error {
	if len(list) == 0 {
		return fmt.Errorf("empty instruction list")
	}
	for i, in := range list {
		if err := Validate(in); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	return nil
}

// Default returns the hard-coded fallback list used when no routing
// configuration or flow exists for a number: an apology plus a
// best-effort transfer.
func Default(transferNumber string) []Instruction {
	list := []Instruction{
		Talk("We're sorry, we are unable to take your call right now. Transferring you to the next available line."),
	}
	if transferNumber != "" {
		list = append(list, Connect(transferNumber))
	}
	return list
}
