package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
		http int
	}{
		{"nil", nil, codes.OK, http.StatusOK},
		{"validation", fmt.Errorf("%w: body is empty", ErrInvalidInput), codes.InvalidArgument, http.StatusBadRequest},
		{"denied", fmt.Errorf("%w: not a participant", ErrAccessDenied), codes.PermissionDenied, http.StatusForbidden},
		{"transient", fmt.Errorf("%w: dial tcp", ErrTransientStore), codes.Unavailable, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, codes.Unavailable, http.StatusServiceUnavailable},
		{"not found", ErrConversationNotFound, codes.NotFound, http.StatusNotFound},
		{"redacted", ErrMessageRedacted, codes.FailedPrecondition, http.StatusConflict},
		{"rate", ErrRateLimited, codes.ResourceExhausted, http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), codes.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.code {
				t.Errorf("Code() = %v, want %v", got, tt.code)
			}
			if got := HTTPStatus(tt.err); got != tt.http {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.http)
			}
		})
	}
}

func TestPublicMessageHidesStoreDetails(t *testing.T) {
	err := fmt.Errorf("%w: pq: password authentication failed", ErrTransientStore)
	if got := PublicMessage(err); got != "temporary failure, please retry" {
		t.Errorf("PublicMessage() = %q", got)
	}
	if got := PublicMessage(errors.New("nil pointer")); got != ErrInternalServer.Error() {
		t.Errorf("PublicMessage() = %q", got)
	}
	denied := fmt.Errorf("%w: not a participant", ErrAccessDenied)
	if got := PublicMessage(denied); got != denied.Error() {
		t.Errorf("PublicMessage() = %q", got)
	}
	if s := Status(denied); s.Code() != codes.PermissionDenied {
		t.Errorf("Status().Code() = %v", s.Code())
	}
}
