package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteOAuth2Authorize = "/oauth2/authorize"
	RouteOAuth2Callback  = "/oauth2/callback"
	RouteOAuth2Token     = "/oauth2/token"
	RouteOAuth2Logout    = "/oauth2/logout"
	RouteConsent         = "/consent"
	RouteUserInfo        = "/userinfo"
)
