// Package ivr compiles stored flow definitions into concrete
// instruction lists and drives the DTMF menu continuation.
package ivr

import (
	"fmt"
	"strings"

	"github.com/dialcraft/router/internal/ncco"
	"github.com/dialcraft/router/internal/types"
	"github.com/rs/zerolog"
)

// Default parameters applied when a template leaves them unset
const (
	defaultMaxDigits       = 1
	defaultInputTimeout    = 5
	defaultRecordMaxLength = 120
)

// Runtime carries the per-call values substituted into templates
type Runtime struct {
	WorkspaceID   string
	PhoneNumber   string
	CallID        string
	FromNumber    string
	BusinessHours bool
}

// Compiler turns IVR flow templates into validated instruction lists
type Compiler struct {
	baseURL string
	logger  zerolog.Logger
}

// NewCompiler creates a compiler. baseURL is substituted for
// {base_url} and used for default callback URLs.
func NewCompiler(baseURL string, logger zerolog.Logger) *Compiler {
	return &Compiler{baseURL: strings.TrimSuffix(baseURL, "/"), logger: logger}
}

// Compile renders the flow's templates against the runtime context.
// Templates whose condition tag conflicts with the business-hours flag
// are skipped; department transfers to disabled or missing departments
// degrade in place to an apology plus voicemail recording. The final
// list is validated before it is returned: invalid output is a
// compiler defect and is never emitted.
func (c *Compiler) Compile(flow *types.IVRFlow, rt Runtime) ([]ncco.Instruction, error) {
	sub := c.replacer(rt)
	list := make([]ncco.Instruction, 0, len(flow.Steps))

	for _, step := range flow.Steps {
		if skipForCondition(step.Condition, rt.BusinessHours) {
			continue
		}
		list = append(list, c.compileStep(flow, step, sub)...)
	}

	if len(list) == 0 {
		// A flow whose every step was filtered out still has to say something
		list = append(list, c.voicemail(flow, sub)...)
	}

	if err := ncco.ValidateAll(list); err != nil {
		return nil, fmt.Errorf("compiled flow %s v%d invalid: %w", flow.ID, flow.Version, err)
	}
	return list, nil
}

// compileStep renders one template into one or more instructions
func (c *Compiler) compileStep(flow *types.IVRFlow, step types.InstructionTemplate, sub *strings.Replacer) []ncco.Instruction {
	switch step.Action {
	case ncco.ActionTalk:
		return []ncco.Instruction{ncco.Talk(sub.Replace(step.Text))}

	case ncco.ActionConnect:
		if step.Department != "" {
			dept, ok := flow.Departments[step.Department]
			if !ok || !dept.Enabled {
				c.logger.Warn().
					Str("flow_id", flow.ID).
					Str("department", step.Department).
					Msg("department unavailable, degrading to voicemail")
				out := []ncco.Instruction{ncco.Talk(fmt.Sprintf(
					"We're sorry, the %s department is currently unavailable. Please leave a message after the tone.",
					step.Department))}
				return append(out, c.voicemailRecord(flow, sub))
			}
			return []ncco.Instruction{ncco.Connect(dept.Number)}
		}
		return []ncco.Instruction{ncco.Connect(sub.Replace(step.Endpoint))}

	case ncco.ActionInput:
		in := ncco.Input(c.eventURL(step, sub, "/webhooks/voice/dtmf"), step.MaxDigits, step.TimeoutSec)
		if in.MaxDigits == 0 {
			in.MaxDigits = defaultMaxDigits
		}
		if in.TimeoutSec == 0 {
			in.TimeoutSec = defaultInputTimeout
		}
		return []ncco.Instruction{in}

	case ncco.ActionRecord:
		return []ncco.Instruction{c.voicemailRecord(flow, sub)}

	case ncco.ActionNotify:
		return []ncco.Instruction{{
			Action:   ncco.ActionNotify,
			EventURL: []string{c.eventURL(step, sub, "/webhooks/voice/events")},
		}}

	default:
		c.logger.Warn().
			Str("flow_id", flow.ID).
			Str("action", step.Action).
			Msg("unknown template action skipped")
		return nil
	}
}

// voicemail renders the flow's voicemail greeting plus a recording step
func (c *Compiler) voicemail(flow *types.IVRFlow, sub *strings.Replacer) []ncco.Instruction {
	greeting := flow.Voicemail.Greeting
	if greeting == "" {
		greeting = "Please leave a message after the tone."
	}
	return []ncco.Instruction{
		ncco.Talk(sub.Replace(greeting)),
		c.voicemailRecord(flow, sub),
	}
}

// voicemailRecord renders the recording instruction for the flow
func (c *Compiler) voicemailRecord(flow *types.IVRFlow, sub *strings.Replacer) ncco.Instruction {
	maxDur := flow.Voicemail.MaxDurationSecs
	if maxDur == 0 {
		maxDur = defaultRecordMaxLength
	}
	return ncco.Record(c.baseURL+"/webhooks/voice/recordings", maxDur)
}

// eventURL substitutes the template's first event URL or falls back to
// the engine's default callback path
func (c *Compiler) eventURL(step types.InstructionTemplate, sub *strings.Replacer, fallbackPath string) string {
	if len(step.EventURL) > 0 && step.EventURL[0] != "" {
		return sub.Replace(step.EventURL[0])
	}
	return c.baseURL + fallbackPath
}

// replacer builds the placeholder substitution for one call
func (c *Compiler) replacer(rt Runtime) *strings.Replacer {
	return strings.NewReplacer(
		"{workspace_id}", rt.WorkspaceID,
		"{phone_number}", rt.PhoneNumber,
		"{call_uuid}", rt.CallID,
		"{from_number}", rt.FromNumber,
		"{base_url}", c.baseURL,
	)
}

// skipForCondition reports whether a condition tag conflicts with the
// current business-hours flag
func skipForCondition(tag types.ConditionTag, businessHours bool) bool {
	switch tag {
	case types.ConditionBusinessHours:
		return !businessHours
	case types.ConditionAfterHours:
		return businessHours
	default:
		return false
	}
}
