package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteConsent, ChainMiddleware(s.ConsentGetHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteConsent, ChainMiddleware(s.ConsentPostHandler(), s.HTMLMiddleware()...))

	// GET for the usual query redirect, POST for form_post response mode
	s.RegisterRouteHandler("GET "+RouteOAuth2Callback, ChainMiddleware(s.CallbackHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Callback, ChainMiddleware(s.CallbackHandler(), s.HTMLMiddleware()...))

	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.TokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Logout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteUserInfo, ChainMiddleware(s.UserInfoHandler(), append(s.APIMiddleware(), s.RequireUser())...))
}
