// Package errors provides the structured error type shared by the view
// factory, finder, engines and compiler.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeCompile   ErrorType = "compile"
	ErrorTypeRender    ErrorType = "render"
	ErrorTypeIO        ErrorType = "io"
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeBadMethod ErrorType = "bad_method"
	ErrorTypeInternal  ErrorType = "internal"
)

// ViewError is a structured error type with context.
type ViewError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	View     string
	FilePath string
	Line     int
}

// Error implements the error interface.
func (e *ViewError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.View != "" {
		parts = append(parts, "view:"+e.View)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ViewError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *ViewError) Is(target error) bool {
	var t *ViewError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ViewError) WithContext(key string, value interface{}) *ViewError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *ViewError) WithLocation(filePath string, line int) *ViewError {
	e.FilePath = filePath
	e.Line = line

	return e
}

// WithView adds the logical view name.
func (e *ViewError) WithView(name string) *ViewError {
	e.View = name

	return e
}

// Error creation functions

// NewNotFoundError creates a lookup failure error.
func NewNotFoundError(code, message string) *ViewError {
	return &ViewError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewCompileError creates a template compilation error.
func NewCompileError(code, message string, cause error) *ViewError {
	return &ViewError{
		Type:    ErrorTypeCompile,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewRenderError creates a template execution error.
func NewRenderError(code, message string, cause error) *ViewError {
	return &ViewError{
		Type:    ErrorTypeRender,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *ViewError {
	return &ViewError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ViewError {
	return &ViewError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *ViewError {
	return &ViewError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsNotFound checks if an error is a lookup failure.
func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsCompileError checks if an error came from the template compiler.
func IsCompileError(err error) bool {
	return hasType(err, ErrorTypeCompile)
}

// IsRenderError checks if an error came from template execution.
func IsRenderError(err error) bool {
	return hasType(err, ErrorTypeRender)
}

// IsBadMethod checks if an error reports an unknown forwarded method.
func IsBadMethod(err error) bool {
	return hasType(err, ErrorTypeBadMethod)
}

func hasType(err error, t ErrorType) bool {
	var ve *ViewError
	if errors.As(err, &ve) {
		return ve.Type == t
	}

	return false
}

// ErrorHandler provides centralized error reporting for command entry points.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error with fields appropriate to its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var ve *ViewError
	if !errors.As(err, &ve) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch ve.Type {
	case ErrorTypeNotFound, ErrorTypeBadMethod:
		h.logger.Warn(ctx, err, "Lookup failed",
			"type", ve.Type,
			"code", ve.Code,
			"view", ve.View)
	case ErrorTypeCompile, ErrorTypeRender:
		h.logger.Error(ctx, err, "Template error occurred",
			"type", ve.Type,
			"code", ve.Code,
			"view", ve.View,
			"file", ve.FilePath,
			"line", ve.Line)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", ve.Type,
			"code", ve.Code)
	}
}

// Common error codes.
const (
	ErrCodeViewNotFound     = "ERR_VIEW_NOT_FOUND"
	ErrCodeNamespaceMissing = "ERR_NAMESPACE_MISSING"
	ErrCodeInvalidName      = "ERR_INVALID_VIEW_NAME"
	ErrCodeEngineNotFound   = "ERR_ENGINE_NOT_FOUND"
	ErrCodeExtensionUnknown = "ERR_EXTENSION_UNKNOWN"
	ErrCodeSyntax           = "ERR_TEMPLATE_SYNTAX"
	ErrCodeExecute          = "ERR_TEMPLATE_EXECUTE"
	ErrCodeCacheWrite       = "ERR_CACHE_WRITE"
	ErrCodeFileRead         = "ERR_FILE_READ"
	ErrCodeBadMethod        = "ERR_BAD_METHOD"
	ErrCodeBadArguments     = "ERR_BAD_ARGUMENTS"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeListenerFailed   = "ERR_LISTENER_FAILED"
)

// Helper functions for common errors

// ErrViewNotFound creates a missing view error.
func ErrViewNotFound(name string) *ViewError {
	return NewNotFoundError(ErrCodeViewNotFound, "view not found").WithView(name)
}

// ErrEngineNotFound creates an unknown engine error.
func ErrEngineNotFound(engine string) *ViewError {
	return NewNotFoundError(ErrCodeEngineNotFound, "engine not found: "+engine)
}

// ErrBadMethod creates the error returned when a dynamic call names a
// method that neither the factory nor its macros define.
func ErrBadMethod(method string) *ViewError {
	return &ViewError{
		Type:    ErrorTypeBadMethod,
		Code:    ErrCodeBadMethod,
		Message: "method does not exist: " + method,
	}
}

// ErrSyntax creates a compile error at a source line.
func ErrSyntax(path string, line int, message string) *ViewError {
	return NewCompileError(ErrCodeSyntax, message, nil).WithLocation(path, line)
}
