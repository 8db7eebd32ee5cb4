package infrastructure

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrAccessDenied   = errors.New("access denied")
	ErrTransientStore = errors.New("store temporarily unavailable")
	ErrRateLimited    = errors.New("too many requests")
	ErrInternalServer = errors.New("internal server error")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrMessageRedacted      = errors.New("message already deleted")

	// ErrPairConflict is returned by a conversation store when the canonical
	// pair already exists. Resolvers consume it; callers never see it.
	ErrPairConflict = errors.New("conversation pair already exists")
)

// Code classifies err into a grpc status code.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, ErrUnauthorized):
		return codes.Unauthenticated
	case errors.Is(err, ErrAccessDenied):
		return codes.PermissionDenied
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrMessageNotFound):
		return codes.NotFound
	case errors.Is(err, ErrMessageRedacted):
		return codes.FailedPrecondition
	case errors.Is(err, ErrRateLimited):
		return codes.ResourceExhausted
	case errors.Is(err, ErrTransientStore),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return codes.Unavailable
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Internal
}

// PublicMessage is the text reported to clients for err. Store and internal
// failures are not described beyond their class.
func PublicMessage(err error) string {
	switch Code(err) {
	case codes.Unavailable:
		return "temporary failure, please retry"
	case codes.Internal:
		return ErrInternalServer.Error()
	}
	return err.Error()
}

// Status converts err into a grpc status carrying the public message.
func Status(err error) *status.Status {
	return status.New(Code(err), PublicMessage(err))
}

func HTTPStatus(err error) int {
	switch Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
