package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	portEnvVar              = "PORT"
	appNameVar              = "APP_NAME"
	appIDVar                = "GUARD_APP_ID"
	authBaseURLVar          = "GUARD_AUTH_BASE_URL"
	backendlessBaseURLVar   = "GUARD_BACKENDLESS_BASE_URL"
	callbackURLVar          = "GUARD_CALLBACK_URL"
	teamManagementURLVar    = "GUARD_TEAM_MANAGEMENT_URL"
	defaultRedirectRouteVar = "GUARD_DEFAULT_REDIRECT_ROUTE"
	loginRouteVar           = "GUARD_LOGIN_ROUTE"
	debugVar                = "GUARD_DEBUG"
	refreshThresholdVar     = "GUARD_REFRESH_THRESHOLD"
	minRefreshDelayVar      = "GUARD_MIN_REFRESH_DELAY"
	flagCacheTTLVar         = "GUARD_FLAG_CACHE_TTL"
	storageKeyVar           = "GUARD_STORAGE_KEY"
	redisAddrVar            = "GUARD_REDIS_ADDR"
	storageDirVar           = "GUARD_STORAGE_DIR"
	routesFileVar           = "GUARD_ROUTES_FILE"
	refreshRetryAttemptsVar = "GUARD_REFRESH_RETRY_ATTEMPTS"
	refreshRetryBackoffVar  = "GUARD_REFRESH_RETRY_BACKOFF"
)

// FromEnv reads the guard configuration from the environment. Unset values are
// left empty; call WithDefaults to fill them in.
func FromEnv() Guard {
	return Guard{
		AppID:                GetEnv(appIDVar, ""),
		AuthBaseURL:          GetEnv(authBaseURLVar, ""),
		BackendlessBaseURL:   GetEnv(backendlessBaseURLVar, ""),
		CallbackURL:          GetEnv(callbackURLVar, ""),
		TeamManagementURL:    GetEnv(teamManagementURLVar, ""),
		DefaultRedirectRoute: GetEnv(defaultRedirectRouteVar, ""),
		LoginRoute:           GetEnv(loginRouteVar, ""),
		Debug:                GetEnv(debugVar, "false") == "true",
		RefreshThreshold:     GetEnvDuration(refreshThresholdVar, 0),
		MinRefreshDelay:      GetEnvDuration(minRefreshDelayVar, 0),
		FlagCacheTTL:         GetEnvDuration(flagCacheTTLVar, 0),
		RefreshRetryAttempts: GetEnvInt(refreshRetryAttemptsVar, 0),
		RefreshRetryBackoff:  GetEnvDuration(refreshRetryBackoffVar, 0),
		StorageKey:           GetEnv(storageKeyVar, ""),
		RedisAddr:            GetEnv(redisAddrVar, ""),
		StorageDir:           GetEnv(storageDirVar, ""),
		RoutesFile:           GetEnv(routesFileVar, ""),
	}
}

// GetPort returns the listen address for the guarded host, e.g. ":8080".
func GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func GetAppName() string {
	return GetEnv(appNameVar, "Auth Guard")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration parses values such as "90s" or "5m". Unparseable values fall
// back to the default.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
