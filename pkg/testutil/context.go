package testutil

import (
	"net/http"
	"time"

	"kycflow/pkg/requestcontext"
)

// AsStaff attaches the identity the auth middleware would derive from a
// bearer token.
func AsStaff(req *http.Request, actor, role string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor, role))
}

// AsReviewer is AsStaff with the reviewer role.
func AsReviewer(req *http.Request, actor string) *http.Request {
	return AsStaff(req, actor, "reviewer")
}

// AtTime pins the request clock so audit timestamps are deterministic.
func AtTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithRequestID sets the correlation id normally assigned by the metadata
// middleware.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
