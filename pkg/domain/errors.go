package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a rejected operation.
type ErrorKind string

// Error kinds.
const (
	// KindValidation marks malformed or out-of-range input; the caller can retry with corrected input.
	KindValidation ErrorKind = "validation_error"
	// KindPhysics marks well-formed input that violates a physical constraint.
	KindPhysics ErrorKind = "physics_error"
	// KindData marks I/O or persistence failures.
	KindData ErrorKind = "data_error"
	// KindDependency marks a delete blocked by referencing entities.
	KindDependency ErrorKind = "dependency_error"
)

// Code is a stable numeric error identifier suitable for RPC error envelopes.
type Code int

// Validation codes (1xxx).
const (
	CodeInvalidInput    Code = 1000
	CodeInvalidName     Code = 1001
	CodeDuplicateName   Code = 1002
	CodeNotFound        Code = 1003
	CodeReservedName    Code = 1004
	CodeInvalidVector   Code = 1005
	CodeMissingField    Code = 1006
	CodeUnexpectedField Code = 1007
	CodeOutOfRange      Code = 1008
	CodeUnknownKind     Code = 1009

	CodeExpressionEmpty       Code = 1100
	CodeExpressionCharacter   Code = 1101
	CodeExpressionParentheses Code = 1102
	CodeExpressionSyntax      Code = 1103
	CodeMissingSolid          Code = 1104
	CodeExpressionCycle       Code = 1105
	CodeExpressionDepth       Code = 1106

	CodeInvalidUnits   Code = 1200
	CodeUnknownUnitKey Code = 1201

	CodeIndexOutOfRange Code = 1300
)

// Physics codes (2xxx).
const (
	CodeDensityRange Code = 2001
	CodeDegenerate   Code = 2002
)

// Data codes (3xxx).
const (
	CodeData            Code = 3000
	CodePersistence     Code = 3001
	CodeCorruptLog      Code = 3002
	CodeNuclideDatabase Code = 3003
	CodeReplay          Code = 3004
)

// CodeDependency is the only dependency code (4xxx).
const CodeDependency Code = 4000

// Error is the structured error surfaced by every rejected operation.
type Error struct {
	Kind       ErrorKind
	Code       Code
	Message    string
	Field      string
	Value      any
	Dependents []string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %s", e.Field)
		if e.Value != nil {
			fmt.Fprintf(&b, ", value %v", e.Value)
		}
		b.WriteString(")")
	}
	if len(e.Dependents) > 0 {
		fmt.Fprintf(&b, ": referenced by %s", strings.Join(e.Dependents, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by code when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return t.Code == 0 || t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrValidation    = &Error{Kind: KindValidation, Message: "validation error"}
	ErrPhysics       = &Error{Kind: KindPhysics, Message: "physics error"}
	ErrData          = &Error{Kind: KindData, Message: "data error"}
	ErrDependency    = &Error{Kind: KindDependency, Message: "dependency error"}
	ErrNotFound      = &Error{Kind: KindValidation, Code: CodeNotFound, Message: "not found"}
	ErrDuplicateName = &Error{Kind: KindValidation, Code: CodeDuplicateName, Message: "duplicate name"}
)

// Validationf builds a validation error for field/value.
func Validationf(code Code, field string, value any, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Field: field, Value: value, Message: fmt.Sprintf(format, args...)}
}

// Physicsf builds a physics error for field/value.
func Physicsf(code Code, field string, value any, format string, args ...any) *Error {
	return &Error{Kind: KindPhysics, Code: code, Field: field, Value: value, Message: fmt.Sprintf(format, args...)}
}

// DataError wraps an infrastructure failure.
func DataError(code Code, err error, format string, args ...any) *Error {
	return &Error{Kind: KindData, Code: code, Err: err, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity.
func NotFound(entity EntityType, name string) *Error {
	return &Error{Kind: KindValidation, Code: CodeNotFound, Field: "name", Value: name, Message: fmt.Sprintf("%s %q not found", entity, name)}
}

// DuplicateName reports a name already taken by a committed or staged entity.
func DuplicateName(entity EntityType, name string) *Error {
	return &Error{Kind: KindValidation, Code: CodeDuplicateName, Field: "name", Value: name, Message: fmt.Sprintf("%s %q already exists", entity, name)}
}

// DependencyExists reports a delete refused because other entities reference the target.
func DependencyExists(entity EntityType, name string, dependents []string) *Error {
	return &Error{
		Kind:       KindDependency,
		Code:       CodeDependency,
		Field:      "name",
		Value:      name,
		Dependents: append([]string(nil), dependents...),
		Message:    fmt.Sprintf("cannot delete %s %q", entity, name),
	}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
