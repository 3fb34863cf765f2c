package lattice

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeUnresolvedComponent indicates no binding exists and auto-construction is impossible
	CodeUnresolvedComponent = "UNRESOLVED_COMPONENT"

	// CodeCircularDependency indicates a concrete-to-concrete cycle
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"

	// CodeComponentRequired indicates a required injection point was not satisfied
	CodeComponentRequired = "COMPONENT_REQUIRED"

	// CodeAdviceBinding indicates advice could not be attached to a component
	CodeAdviceBinding = "ADVICE_BINDING"

	// CodeProviderInvocation indicates a provider failed or panicked
	CodeProviderInvocation = "PROVIDER_INVOCATION"

	// CodeDuplicatePriority indicates a binding at an occupied priority
	CodeDuplicatePriority = "DUPLICATE_PRIORITY"

	// CodeInvalidBinding indicates a malformed binding
	CodeInvalidBinding = "INVALID_BINDING"

	// CodeTypeMismatch indicates an instance not assignable to its key type
	CodeTypeMismatch = "TYPE_MISMATCH"

	// CodeScopeClosed indicates an operation on a torn down scope
	CodeScopeClosed = "SCOPE_CLOSED"

	// CodeNotSingleton indicates a store write for a prototype key
	CodeNotSingleton = "NOT_SINGLETON"

	// CodeLifecycleCallback indicates a post-construct callback failed
	CodeLifecycleCallback = "LIFECYCLE_CALLBACK"

	// CodePostProcess indicates a post-processor failed
	CodePostProcess = "POST_PROCESS"

	// CodeHandleNotReady indicates a deferred handle was used before its target finished construction
	CodeHandleNotReady = "HANDLE_NOT_READY"
)

// Error is the error type returned by the container.
// Errors are matched by code, so errors.Is(err, ErrCircularDependency) holds for
// every cycle error regardless of the key it carries.
type Error struct {
	Code    string
	Message string
	Key     ComponentKey
	Chain   []ComponentKey
	Cause   error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	ErrUnresolvedComponent = &Error{Code: CodeUnresolvedComponent, Message: "unresolved component"}
	ErrCircularDependency  = &Error{Code: CodeCircularDependency, Message: "circular dependency"}
	ErrComponentRequired   = &Error{Code: CodeComponentRequired, Message: "component required"}
	ErrAdviceBinding       = &Error{Code: CodeAdviceBinding, Message: "advice binding failed"}
	ErrProviderInvocation  = &Error{Code: CodeProviderInvocation, Message: "provider invocation failed"}
	ErrDuplicatePriority   = &Error{Code: CodeDuplicatePriority, Message: "duplicate priority"}
	ErrInvalidBinding      = &Error{Code: CodeInvalidBinding, Message: "invalid binding"}
	ErrTypeMismatch        = &Error{Code: CodeTypeMismatch, Message: "type mismatch"}
	ErrScopeClosed         = &Error{Code: CodeScopeClosed, Message: "scope is closed"}
	ErrNotSingleton        = &Error{Code: CodeNotSingleton, Message: "key is not a singleton"}
	ErrLifecycleCallback   = &Error{Code: CodeLifecycleCallback, Message: "lifecycle callback failed"}
	ErrPostProcess         = &Error{Code: CodePostProcess, Message: "post-processing failed"}
	ErrHandleNotReady      = &Error{Code: CodeHandleNotReady, Message: "deferred handle not ready"}
)

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

func newUnresolvedComponent(key ComponentKey, reason string) *Error {
	msg := fmt.Sprintf("component %s is not bound", key)
	if reason != "" {
		msg += " (" + reason + ")"
	}
	return &Error{Code: CodeUnresolvedComponent, Message: msg, Key: key}
}

func newCircularDependency(chain []ComponentKey, hint string) *Error {
	parts := make([]string, len(chain))
	for i, k := range chain {
		parts[i] = k.String()
	}

	msg := "circular dependency detected: " + strings.Join(parts, " -> ")
	if hint != "" {
		msg += " (" + hint + ")"
	}

	var key ComponentKey
	if len(chain) > 0 {
		key = chain[len(chain)-1]
	}

	return &Error{Code: CodeCircularDependency, Message: msg, Key: key, Chain: chain}
}

func newComponentRequired(owner ComponentKey, point InjectionPoint, cause error) *Error {
	return &Error{
		Code:    CodeComponentRequired,
		Message: fmt.Sprintf("component %s requires %s for %s", owner, point.Key, point.Member),
		Key:     owner,
		Cause:   cause,
	}
}

func newAdviceBinding(key ComponentKey, format string, args ...any) *Error {
	return &Error{
		Code:    CodeAdviceBinding,
		Message: fmt.Sprintf("cannot advise %s: %s", key, fmt.Sprintf(format, args...)),
		Key:     key,
	}
}

func newProviderInvocation(key ComponentKey, cause error) *Error {
	return &Error{
		Code:    CodeProviderInvocation,
		Message: fmt.Sprintf("provider for %s failed", key),
		Key:     key,
		Cause:   cause,
	}
}

func newDuplicatePriority(key ComponentKey, priority int) *Error {
	return &Error{
		Code:    CodeDuplicatePriority,
		Message: fmt.Sprintf("component %s already has a binding at priority %d", key, priority),
		Key:     key,
	}
}

func newInvalidBinding(key ComponentKey, format string, args ...any) *Error {
	return &Error{
		Code:    CodeInvalidBinding,
		Message: fmt.Sprintf("invalid binding for %s: %s", key, fmt.Sprintf(format, args...)),
		Key:     key,
	}
}

func newTypeMismatch(key ComponentKey, actual any) *Error {
	return &Error{
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("component %s type mismatch: got %T", key, actual),
		Key:     key,
	}
}

func newScopeClosed(id ScopeID) *Error {
	return &Error{Code: CodeScopeClosed, Message: fmt.Sprintf("scope %s is closed", id)}
}

func newLifecycleCallback(key ComponentKey, callback string, cause error) *Error {
	return &Error{
		Code:    CodeLifecycleCallback,
		Message: fmt.Sprintf("component %s: callback %s failed", key, callback),
		Key:     key,
		Cause:   cause,
	}
}

func newPostProcess(key ComponentKey, stage Stage, cause error) *Error {
	return &Error{
		Code:    CodePostProcess,
		Message: fmt.Sprintf("component %s: %s stage failed", key, stage),
		Key:     key,
		Cause:   cause,
	}
}

// PanicError carries a value recovered from a panicking provider or method.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Find returns the outermost *Error in err's chain carrying code.
func Find(err error, code string) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}
