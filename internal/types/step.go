package types

import (
	"fmt"
	"strings"
)

type Step string

const (
	StepWelcome         Step = "welcome"
	StepCollectName     Step = "collect_name"
	StepCollectEmail    Step = "collect_email"
	StepCollectPhone    Step = "collect_phone"
	StepCollectService  Step = "collect_service"
	StepCollectProperty Step = "collect_property"
	StepCollectLocation Step = "collect_location"
	StepCollectTime     Step = "collect_time"
	StepCollectComments Step = "collect_comments"
	StepConfirmation    Step = "confirmation"
	StepCompleted       Step = "completed"
)

// Steps is the intake order. Reordering or inserting a step happens here only.
var Steps = []Step{
	StepWelcome,
	StepCollectName,
	StepCollectEmail,
	StepCollectPhone,
	StepCollectService,
	StepCollectProperty,
	StepCollectLocation,
	StepCollectTime,
	StepCollectComments,
	StepConfirmation,
	StepCompleted,
}

// Next returns the step that follows s. Unknown steps and the terminal step map to StepCompleted.
func Next(s Step) Step {
	idx := s.Index()
	if idx < 0 || idx >= len(Steps)-1 {
		return StepCompleted
	}
	return Steps[idx+1]
}

func (s Step) Index() int {
	for i, candidate := range Steps {
		if candidate == s {
			return i
		}
	}
	return -1
}

func (s Step) Valid() bool {
	return s.Index() >= 0
}

func (s Step) Terminal() bool {
	return s == StepCompleted
}

func (s Step) String() string {
	return string(s)
}

func ParseStep(raw string) (Step, error) {
	step := Step(strings.ToLower(strings.TrimSpace(raw)))
	if !step.Valid() {
		return "", fmt.Errorf("unknown step %q", raw)
	}
	return step, nil
}
