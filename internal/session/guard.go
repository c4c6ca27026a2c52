package session

// Routes the guard knows about.
const (
	RouteHome     = "/"
	RouteLogin    = "/login"
	RouteSignup   = "/signup"
	RouteCallback = "/auth/callback"
)

var publicRoutes = map[string]bool{
	RouteLogin:    true,
	RouteSignup:   true,
	RouteCallback: true,
}

// Redirect returns where a user on route must be sent, and false when no
// redirect applies. Nothing is decided while the session is still being
// restored.
func Redirect(state State, route string) (string, bool) {
	switch state {
	case StateAnonymous:
		if !publicRoutes[route] {
			return RouteLogin, true
		}
	case StateAuthenticated:
		if route == RouteLogin || route == RouteSignup {
			return RouteHome, true
		}
	}
	return "", false
}

// Redirect applies the guard to the provider's current state.
func (p *Provider) Redirect(route string) (string, bool) {
	return Redirect(p.State(), route)
}
