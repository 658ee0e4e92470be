package errors

import "errors"

// Common error types for the session guard
var (
	// Configuration errors
	ErrMissingAppID        = errors.New("appId is required but was not provided in the configuration")
	ErrInvalidBaseURL      = errors.New("invalid base URL")
	ErrInvalidRoutePattern = errors.New("invalid route pattern")

	// Token errors
	ErrNoSession          = errors.New("no active session")
	ErrNoRefreshToken     = errors.New("no refresh token")
	ErrRefreshFailed      = errors.New("token refresh failed")
	ErrCodeExchange       = errors.New("failed to exchange code for tokens")
	ErrIncompleteTokenSet = errors.New("token response is missing an access token")

	// Flag service errors
	ErrFlagService = errors.New("failed to load feature flags")

	// Profile errors
	ErrTokenExpired      = errors.New("token expired")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenVerification = errors.New("token verification failed")
)
