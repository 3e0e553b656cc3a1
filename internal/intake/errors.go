package intake

import "net/http"

// Error is a request-level failure with a stable wire code. The HTTP
// layer renders it as the {error_code, message, hint} envelope.
type Error struct {
	Status  int
	Code    string
	Message string
	Hint    string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func unauthorized(code, message, hint string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: code, Message: message, Hint: hint}
}

func forbidden(code, message, hint string) *Error {
	return &Error{Status: http.StatusForbidden, Code: code, Message: message, Hint: hint}
}

func notFound(code, message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: code, Message: message}
}
