package apperrors

import "errors"

// Input errors
var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidTimezone  = errors.New("invalid timezone")
	ErrInvalidInterval  = errors.New("end must be after start")
)

// Session errors
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrRecurrenceMutation = errors.New("recurrence mutation failed")
)

// Collaborator errors
var (
	ErrRemoteNotFound    = errors.New("remote event not found")
	ErrRemoteService     = errors.New("remote calendar service error")
	ErrSuggestionService = errors.New("suggestion service error")
	ErrAuxStore          = errors.New("auxiliary store error")
)

// Error carries a sentinel kind, the operation that failed and a
// human-readable message.
type Error struct {
	Err     error
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if msg == "" {
		return "unknown error"
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Err != nil {
		out = append(out, e.Err)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// New builds an Error of the given kind.
func New(kind error, op, message string) *Error {
	return &Error{Err: kind, Op: op, Message: message}
}

// Wrap builds an Error of the given kind around cause.
func Wrap(kind error, op string, cause error) *Error {
	return &Error{Err: kind, Op: op, Cause: cause}
}

// Wrapf is Wrap with an explicit message.
func Wrapf(kind error, op, message string, cause error) *Error {
	return &Error{Err: kind, Op: op, Message: message, Cause: cause}
}

// Is reports whether err matches target or any of the extra targets.
func Is(err, target error, more ...error) bool {
	if errors.Is(err, target) {
		return true
	}
	for _, t := range more {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// Code returns a short machine-readable code for err, used in API
// responses.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, ErrInvalidInterval):
		return "invalid_interval"
	case errors.Is(err, ErrValidation):
		return "invalid_request"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrRemoteNotFound):
		return "remote_not_found"
	case errors.Is(err, ErrRemoteService):
		return "remote_service_error"
	case errors.Is(err, ErrSuggestionService):
		return "suggestion_service_error"
	case errors.Is(err, ErrRecurrenceMutation):
		return "recurrence_mutation_failed"
	case errors.Is(err, ErrAuxStore):
		return "aux_store_error"
	default:
		return "server_error"
	}
}
