// Package services implements the reactions core: vote tokens, the vote
// ledger and the read-through caching around them.
//
// This file centralizes service-level error values so they can be returned
// consistently by service methods and translated into transport codes by the
// handler layer. Validation rejections (bad token, unvote of an option the
// user does not hold) are not errors; they are reported as OutcomeRejected.
package services

import "errors"

var (
	// ErrInvalidInput is returned when a domain, module or user identifier is
	// empty or exceeds its length limit.
	ErrInvalidInput = errors.New("invalid identifier")

	// ErrInvalidOption is returned when an option key is empty, too long, or
	// contains characters that cannot be stored as a counter key.
	ErrInvalidOption = errors.New("invalid option")

	// ErrConsistency marks a violated store invariant: a decrement that would
	// take a counter below zero, or a malformed record. It signals a lost
	// update elsewhere and is never clamped or retried.
	ErrConsistency = errors.New("consistency violation")

	// ErrModuleNotFound is returned by administrative operations addressing a
	// module that was never created. Reads never return it.
	ErrModuleNotFound = errors.New("module not found")
)
