package config

import "time"

const (
	DefaultAuthBaseURL        = "https://auth.nblocks.cloud"
	DefaultBackendlessBaseURL = "https://backendless.nblocks.cloud"
	DefaultTeamManagementURL  = "https://backendless.nblocks.cloud/user-management-portal/users"
	DefaultStorageKey         = "auth_guard_tokens"

	// DefaultRefreshThreshold is how long before expiry a token is refreshed.
	DefaultRefreshThreshold = 5 * time.Minute
	// DefaultMinRefreshDelay stops tight refresh loops on clock skew.
	DefaultMinRefreshDelay = 10 * time.Second
	// DefaultFlagCacheTTL bounds how long bulk flag evaluations are trusted.
	DefaultFlagCacheTTL = 5 * time.Minute
	// DefaultRefreshRetryAttempts is one-shot-then-clear.
	DefaultRefreshRetryAttempts = 1
	// DefaultVerifyTimeout bounds one ID token verification, key fetch included.
	DefaultVerifyTimeout = 10 * time.Second
)
