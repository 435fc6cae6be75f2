package settings

import (
	"errors"
	"fmt"
)

var (
	// ErrIncorrectVersion indicates a serialized container or definition
	// document declares a version other than the expected one.
	ErrIncorrectVersion = errors.New("settings: incorrect version")
	// ErrInvalidContainerStack indicates a serialized stack is missing a
	// required section or key.
	ErrInvalidContainerStack = errors.New("settings: invalid container stack")
	// ErrInvalidDefinition indicates a definition document is missing a
	// required structural key.
	ErrInvalidDefinition = errors.New("settings: invalid definition")
	// ErrInvalidIndex indicates a container index is out of range. The
	// sentinel index -1 is always invalid.
	ErrInvalidIndex = errors.New("settings: container index out of range")
	// ErrSelfReference indicates an attempt to add a stack to itself.
	ErrSelfReference = errors.New("settings: a stack cannot contain itself")
	// ErrUnknownContainer indicates a serialized stack references a
	// container id the registry cannot resolve.
	ErrUnknownContainer = errors.New("settings: unknown container id")
	// ErrDuplicateContainerID indicates a registry already holds a
	// container with the same id.
	ErrDuplicateContainerID = errors.New("settings: duplicate container id")
	// ErrAlreadyDeserialized indicates a second Deserialize call on an
	// already populated definition container.
	ErrAlreadyDeserialized = errors.New("settings: container already deserialized")
)

// UnknownTypeError reports a conversion against an unregistered setting type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("settings: unknown setting type %q", e.Type)
}

// MissingRequiredPropertyError reports a setting document that omits a
// property the schema flags as required.
type MissingRequiredPropertyError struct {
	Key      string
	Property string
}

func (e *MissingRequiredPropertyError) Error() string {
	return fmt.Sprintf("settings: setting %q is missing required property %q", e.Key, e.Property)
}

// ExpressionSyntaxError reports an expression that failed to compile, either
// because it is malformed or because it uses a disallowed construct.
type ExpressionSyntaxError struct {
	Expr string
	Err  error
}

func (e *ExpressionSyntaxError) Error() string {
	return fmt.Sprintf("settings: invalid expression %q: %v", e.Expr, e.Err)
}

func (e *ExpressionSyntaxError) Unwrap() error {
	return e.Err
}

// UnknownSettingReferenceError reports an expression whose referenced setting
// key did not resolve at evaluation time.
type UnknownSettingReferenceError struct {
	Expr string
	Key  string
}

func (e *UnknownSettingReferenceError) Error() string {
	return fmt.Sprintf("settings: expression %q references unknown setting %q", e.Expr, e.Key)
}
