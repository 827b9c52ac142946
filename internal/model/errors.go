package model

import (
	"errors"
	"fmt"
)

var (
	ErrModelUnavailable   = errors.New("model unavailable")
	ErrImageUndecodable   = errors.New("image undecodable")
	ErrInferenceFailed    = errors.New("inference failed")
	ErrGenerationFailed   = errors.New("generation failed")
	ErrEmptyResponse      = errors.New("empty response")
	ErrImageUnprocessable = errors.New("image unprocessable")
	ErrEmptyPrompt        = errors.New("empty prompt")
)

type ClassifyFailureKind string

const (
	ClassifyFailureModelUnavailable = ClassifyFailureKind("model-unavailable")
	ClassifyFailureImageUndecodable = ClassifyFailureKind("image-undecodable")
	ClassifyFailureInferenceFailed  = ClassifyFailureKind("inference-failed")
)

// ClassifyError carries the user-facing Message next to the cause.
type ClassifyError struct {
	Kind    ClassifyFailureKind
	Message string
	Err     error
}

func (e *ClassifyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *ClassifyError) Unwrap() error {
	return e.Err
}

func (e *ClassifyError) Is(target error) bool {
	switch e.Kind {
	case ClassifyFailureModelUnavailable:
		return target == ErrModelUnavailable
	case ClassifyFailureImageUndecodable:
		return target == ErrImageUndecodable
	case ClassifyFailureInferenceFailed:
		return target == ErrInferenceFailed
	}
	return false
}

type GenerationFailureKind string

const (
	GenerationFailureTransport          = GenerationFailureKind("transport")
	GenerationFailureEmptyResponse      = GenerationFailureKind("empty-response")
	GenerationFailureImageUnprocessable = GenerationFailureKind("image-unprocessable")
	GenerationFailureEmptyPrompt        = GenerationFailureKind("empty-prompt")
)

type GenerationError struct {
	Kind GenerationFailureKind
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// GenerationResult always carries displayable text, even on failure.
type GenerationResult struct {
	Text    string
	Failure *GenerationError
}
