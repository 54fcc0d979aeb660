package command

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid matches every decode and structural validation failure.
	ErrInvalid = errors.New("invalid command")
	// ErrRejected matches business rule failures on well-formed commands.
	ErrRejected = errors.New("request rejected")
)

// DecodeError describes why a payload could not be decoded.
type DecodeError struct {
	Type   Type
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s command: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("invalid %s command: %s: %s", e.Type, e.Field, e.Reason)
}

// Unwrap returns ErrInvalid.
func (e *DecodeError) Unwrap() error {
	return ErrInvalid
}

func decodeErr(t Type, field, format string, args ...any) error {
	return &DecodeError{Type: t, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RuleError describes a business rule violation.
type RuleError struct {
	Rule string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("request rejected: %s", e.Rule)
}

// Unwrap returns ErrRejected.
func (e *RuleError) Unwrap() error {
	return ErrRejected
}

func ruleErr(format string, args ...any) error {
	return &RuleError{Rule: fmt.Sprintf(format, args...)}
}
