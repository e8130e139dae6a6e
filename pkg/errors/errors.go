package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors
type ErrorCode string

const (
	ErrCodeAcquisition        ErrorCode = "ACQUISITION_ERROR"
	ErrCodeDecode             ErrorCode = "DECODE_ERROR"
	ErrCodeEncode             ErrorCode = "ENCODE_ERROR"
	ErrCodeIncompatibleBuffer ErrorCode = "INCOMPATIBLE_BUFFER_ERROR"
	ErrCodeInsufficientInput  ErrorCode = "INSUFFICIENT_INPUT_ERROR"
	ErrCodeNoAudioContent     ErrorCode = "NO_AUDIO_CONTENT_ERROR"
	ErrCodeSeparation         ErrorCode = "SEPARATION_ERROR"
	ErrCodeMissingArtifact    ErrorCode = "MISSING_ARTIFACT_ERROR"
	ErrCodeEnhancement        ErrorCode = "ENHANCEMENT_ERROR"
	ErrCodeFFmpeg             ErrorCode = "FFMPEG_ERROR"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeTimeout            ErrorCode = "TIMEOUT_ERROR"
	ErrCodeUnknown            ErrorCode = "UNKNOWN_ERROR"
)

// PipelineError is the base structured error
type PipelineError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Fields  map[string]interface{}
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithField attaches a context field and returns the same error
func (e *PipelineError) WithField(key string, value interface{}) *PipelineError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Cause: cause}
}

func NewAcquisitionError(message string, cause error) *PipelineError {
	return newError(ErrCodeAcquisition, message, cause)
}

func NewDecodeError(path, message string, cause error) *PipelineError {
	return newError(ErrCodeDecode, message, cause).WithField("path", path)
}

func NewEncodeError(path, message string, cause error) *PipelineError {
	return newError(ErrCodeEncode, message, cause).WithField("path", path)
}

func NewIncompatibleBufferError(message string) *PipelineError {
	return newError(ErrCodeIncompatibleBuffer, message, nil)
}

func NewInsufficientInputError(got, want int) *PipelineError {
	return newError(ErrCodeInsufficientInput,
		fmt.Sprintf("need at least %d input buffers, got %d", want, got), nil).
		WithField("got", got)
}

func NewNoAudioContentError(message string) *PipelineError {
	return newError(ErrCodeNoAudioContent, message, nil)
}

func NewSeparationError(input, message string, cause error) *PipelineError {
	return newError(ErrCodeSeparation, message, cause).WithField("input", input)
}

func NewMissingArtifactError(artifact, path string) *PipelineError {
	return newError(ErrCodeMissingArtifact,
		fmt.Sprintf("artifact %q has not been produced", artifact), nil).
		WithField("path", path)
}

func NewEnhancementError(message string, cause error) *PipelineError {
	return newError(ErrCodeEnhancement, message, cause)
}

func NewTimeoutError(stage string, cause error) *PipelineError {
	return newError(ErrCodeTimeout, fmt.Sprintf("stage %s timed out", stage), cause)
}

// FFmpegError represents an external process failure (ffmpeg, demucs, yt-dlp)
type FFmpegError struct {
	PipelineError
	Args     []string
	ExitCode int
	Stderr   string
}

func NewFFmpegError(message string, args []string, exitCode int, stderr string, cause error) *FFmpegError {
	return &FFmpegError{
		PipelineError: PipelineError{
			Code:    ErrCodeFFmpeg,
			Message: message,
			Cause:   cause,
		},
		Args:     args,
		ExitCode: exitCode,
		Stderr:   stderr,
	}
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("[%s] %s (exit=%d, stderr=%q): %v",
		e.Code, e.Message, e.ExitCode, truncate(e.Stderr, 200), e.Cause)
}

// ValidationError represents input validation failure
type ValidationError struct {
	PipelineError
	Field string
	Value interface{}
}

func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		PipelineError: PipelineError{
			Code:    ErrCodeValidation,
			Message: message,
		},
		Field: field,
		Value: value,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] field=%s value=%v: %s", e.Code, e.Field, e.Value, e.Message)
}

// KindOf returns the code of the outermost structured error in the chain.
func KindOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if code, ok := firstCode(err, func(ErrorCode) bool { return true }); ok {
		return code
	}
	return ErrCodeUnknown
}

// HasCode reports whether any structured error in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	_, ok := firstCode(err, func(c ErrorCode) bool { return c == code })
	return ok
}

// firstCode walks err depth-first, following both single and multi-error
// Unwrap methods, and returns the first code accepted by match.
func firstCode(err error, match func(ErrorCode) bool) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var code ErrorCode
	switch t := err.(type) {
	case *PipelineError:
		code = t.Code
	case *FFmpegError:
		code = t.Code
	case *ValidationError:
		code = t.Code
	}
	if code != "" && match(code) {
		return code, true
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if c, ok := firstCode(inner, match); ok {
				return c, true
			}
		}
	case interface{ Unwrap() error }:
		return firstCode(u.Unwrap(), match)
	}
	return "", false
}

// Is enables errors.Is checks
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As enables errors.As checks
func As[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
