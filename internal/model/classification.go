package model

import "fmt"

type ClassificationStatus int8

const (
	ClassificationStatusNone = ClassificationStatus(iota)
	ClassificationStatusPending
	ClassificationStatusReady
	ClassificationStatusFailed
)

func (s ClassificationStatus) String() string {
	switch s {
	case ClassificationStatusPending:
		return "pending"
	case ClassificationStatusReady:
		return "ready"
	case ClassificationStatusFailed:
		return "failed"
	default:
		return "none"
	}
}

// ClassificationState is what the user sees about the most recently
// submitted image. Available is only true for a successful result.
type ClassificationState struct {
	Label     string
	Available bool
	Status    ClassificationStatus
}

func NewClassificationState(placeholder string) ClassificationState {
	return ClassificationState{
		Label:  placeholder,
		Status: ClassificationStatusNone,
	}
}

func PendingClassificationState(text string) ClassificationState {
	return ClassificationState{
		Label:  text,
		Status: ClassificationStatusPending,
	}
}

// StateFromResult maps a finished classification into display state.
func StateFromResult(result ClassifyResult) ClassificationState {
	if result.Failure != nil {
		return ClassificationState{
			Label:  result.Failure.Message,
			Status: ClassificationStatusFailed,
		}
	}
	return ClassificationState{
		Label:     result.Label,
		Available: true,
		Status:    ClassificationStatusReady,
	}
}

// ShortcutPrompt returns the question asked about a classified label.
func ShortcutPrompt(label string) string {
	return fmt.Sprintf("What is a %s?", label)
}

// Observation is a single ranked output of the vision model.
type Observation struct {
	Label      string
	Confidence float64
}

// ClassifyResult holds either a label or a failure, never both.
type ClassifyResult struct {
	Label   string
	Failure *ClassifyError
}

func (r ClassifyResult) OK() bool {
	return r.Failure == nil
}
