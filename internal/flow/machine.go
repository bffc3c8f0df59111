// Package flow is the intake state machine. Transition is pure: it reads a
// conversation state and one inbound message and decides what should happen,
// leaving persistence and finalization to the caller.
package flow

import (
	"strings"

	"github.com/mymunastore/aretenvi/internal/templates"
	"github.com/mymunastore/aretenvi/internal/types"
	"github.com/mymunastore/aretenvi/internal/validate"
)

type Action int

const (
	// ActionReply answers without changing the step (help, noise, invalid input).
	ActionReply Action = iota
	// ActionAdvance persists Patch and moves to Next.
	ActionAdvance
	// ActionFinalize asks the caller to finalize the registration and complete the conversation.
	ActionFinalize
	// ActionRestart abandons the conversation so the client can start from scratch.
	ActionRestart
)

func (a Action) String() string {
	switch a {
	case ActionReply:
		return "reply"
	case ActionAdvance:
		return "advance"
	case ActionFinalize:
		return "finalize"
	case ActionRestart:
		return "restart"
	default:
		return "unknown"
	}
}

type State struct {
	Step   types.Step
	Fields types.Fields
}

type Decision struct {
	Action Action
	From   types.Step
	Next   types.Step
	// Patch holds only the value accepted by this message.
	Patch types.Fields
	// Collected is the state's fields with Patch merged in.
	Collected types.Fields
	Reply     string
	// Invalid is set when the message failed the step's validation rule.
	Invalid bool
}

var (
	startTokens  = map[string]struct{}{"start": {}, "yes": {}}
	helpToken    = "help"
	restartToken = "restart"
	confirmToken = "yes"
	editToken    = "edit"
)

func normalizeToken(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func IsStart(raw string) bool {
	_, ok := startTokens[normalizeToken(raw)]
	return ok
}

func IsHelp(raw string) bool {
	return normalizeToken(raw) == helpToken
}

func IsConfirm(raw string) bool {
	return normalizeToken(raw) == confirmToken
}

func IsRestart(raw string) bool {
	return normalizeToken(raw) == restartToken
}

type Machine struct {
	templates *templates.Templates
}

func NewMachine(tpl *templates.Templates) *Machine {
	if tpl == nil {
		tpl = templates.New(templates.Config{})
	}
	return &Machine{templates: tpl}
}

func (m *Machine) Templates() *templates.Templates {
	return m.templates
}

func (m *Machine) Transition(state State, raw string) Decision {
	stay := Decision{
		Action:    ActionReply,
		From:      state.Step,
		Next:      state.Step,
		Collected: state.Fields.Clone(),
	}

	if IsHelp(raw) {
		stay.Reply = m.templates.Help()
		return stay
	}

	switch state.Step {
	case types.StepWelcome:
		if IsStart(raw) {
			return m.advance(state, types.Fields{})
		}
		stay.Reply = m.templates.Welcome()
		return stay

	case types.StepCollectName:
		return m.collect(state, validate.Name(raw), func(v string) types.Fields {
			return types.Fields{FullName: v}
		})

	case types.StepCollectEmail:
		return m.collect(state, validate.Email(raw), func(v string) types.Fields {
			return types.Fields{Email: v}
		})

	case types.StepCollectPhone:
		return m.collect(state, validate.Phone(raw), func(v string) types.Fields {
			return types.Fields{Phone: v}
		})

	case types.StepCollectService:
		return m.collect(state, validate.Choice(raw, m.templates.ServiceOptions()), func(v string) types.Fields {
			return types.Fields{ServiceType: v}
		})

	case types.StepCollectProperty:
		return m.collect(state, validate.Choice(raw, m.templates.PropertyOptions()), func(v string) types.Fields {
			return types.Fields{PropertyType: v}
		})

	case types.StepCollectLocation:
		return m.collect(state, validate.Location(raw), func(v string) types.Fields {
			return types.Fields{Location: v}
		})

	case types.StepCollectTime:
		return m.collect(state, validate.Choice(raw, m.templates.ContactTimeOptions()), func(v string) types.Fields {
			return types.Fields{PreferredContactTime: v}
		})

	case types.StepCollectComments:
		res := validate.Comments(raw)
		patch := types.Fields{}
		if !res.Skipped {
			comments := res.Value
			patch.AdditionalComments = &comments
		}
		return m.advance(state, patch)

	case types.StepConfirmation:
		switch normalizeToken(raw) {
		case confirmToken:
			return Decision{
				Action:    ActionFinalize,
				From:      state.Step,
				Next:      types.Next(state.Step),
				Collected: state.Fields.Clone(),
			}
		case editToken:
			return Decision{
				Action:    ActionRestart,
				From:      state.Step,
				Next:      state.Step,
				Collected: state.Fields.Clone(),
				Reply:     m.templates.EditInstruction(),
			}
		}
		stay.Reply = m.templates.ConfirmationReprompt()
		return stay

	default:
		stay.Reply = m.templates.Welcome()
		return stay
	}
}

func (m *Machine) collect(state State, res validate.Result, patchFor func(string) types.Fields) Decision {
	if !res.Valid {
		return Decision{
			Action:    ActionReply,
			From:      state.Step,
			Next:      state.Step,
			Collected: state.Fields.Clone(),
			Reply:     res.Error,
			Invalid:   true,
		}
	}
	return m.advance(state, patchFor(res.Value))
}

func (m *Machine) advance(state State, patch types.Fields) Decision {
	next := types.Next(state.Step)
	collected := state.Fields.Merge(patch)
	return Decision{
		Action:    ActionAdvance,
		From:      state.Step,
		Next:      next,
		Patch:     patch,
		Collected: collected,
		Reply:     m.templates.Prompt(next, collected),
	}
}
