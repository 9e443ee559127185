package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quillstone/realtime-bridge/internal/domain"
)

// Error codes reported to clients in error frames.
const (
	CodeInvalidResource  = "INVALID_RESOURCE"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeMalformedMessage = "MALFORMED_MESSAGE"
	CodeInternal         = "INTERNAL"
)

// Error is a protocol-level failure carried back to the client as an error
// frame.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func errInvalidResource(collection string) *Error {
	return &Error{Code: CodeInvalidResource, Message: fmt.Sprintf("collection %q does not exist", collection)}
}

func errMalformed(msg string) *Error {
	return &Error{Code: CodeMalformedMessage, Message: msg}
}

func errInternal() *Error {
	return &Error{Code: CodeInternal, Message: "internal error"}
}

// protocolError maps a failure to the error reported to the client. Store
// sentinels keep their meaning; anything unrecognized becomes INTERNAL so
// infrastructure detail stays out of client frames.
func protocolError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: "item not found"}
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrExpired):
		return &Error{Code: CodeForbidden, Message: "permission denied"}
	case errors.Is(err, domain.ErrInvalidQuery):
		return &Error{Code: CodeMalformedMessage, Message: err.Error()}
	}
	return errInternal()
}

// sendError pushes an error frame to the connection. Push failures are
// logged and swallowed; the connection's read loop notices a dead peer on
// its own.
func sendError(logger *slog.Logger, conn Connection, uid string, err error) {
	perr := protocolError(err)
	frame, merr := json.Marshal(ErrorMessage{
		Type:  MessageTypeError,
		Error: ErrorDetail{Code: perr.Code, Message: perr.Message},
		UID:   uid,
	})
	if merr != nil {
		logger.Error("failed to encode error frame", "error", merr)
		return
	}
	if serr := conn.Send(frame); serr != nil {
		logger.Debug("failed to push error frame",
			"connection_id", conn.ID(),
			"code", perr.Code,
			"error", serr)
	}
}
