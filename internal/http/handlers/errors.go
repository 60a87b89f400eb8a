// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, not_found) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., invalid_option, consistency_violation) are
//     reserved for ledger errors that cannot be conveyed by status alone.
//   - Vote rejections (bad token, unvote of an option not held) are not errors
//     and never use these codes; they are reported with HTTP 200 and
//     outcome "rejected".
//
// Usage:
//   - Handlers select the most specific matching code and pass it to `fail()` along
//     with the corresponding HTTP status and message.
//   - Clients are expected to branch on these codes for programmatic error handling.
//
// Example response:
//   {
//     "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//     "code": "invalid_option",
//     "message": "invalid option"
//   }

package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeInvalidOption    = "invalid_option"
	ErrCodeConsistency      = "consistency_violation"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
