package emulator

// Error codes for rejected commands. The wire carries only the message.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeInvalidChannel = "invalid_channel"
	ErrCodeNotHandshaken  = "handshake_required"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeAlreadyJoined  = "already_subscribed"
	ErrCodeNotInRoom      = "not_subscribed"
	ErrCodeAuthDisabled   = "auth_disabled"
	ErrCodeRateLimited    = "rate_limited"
)

// Error wraps a code and human-readable message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}
