package server

// Route path constants
const (
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"
	// RouteCallback is used when no callback URL is configured.
	RouteCallback = "/auth/callback"
	RouteStatus   = "/status"
)
