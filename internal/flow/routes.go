package flow

import "github.com/artisanhq/atelier/internal/models"

// Application routes a client is steered to after loading any page.
const (
	RouteLogin      = "/login"
	RouteAdmin      = "/admin"
	RouteOnboarding = "/onboarding/2"
	RouteDashboard  = "/dashboard"
)

// Identity is the minimal view of the current visitor needed for routing.
type Identity struct {
	Authenticated  bool
	Role           string
	OnboardingDone bool
}

// ResolveRoute maps the visitor's current state to the page they belong on.
// Every page asks this same question on load, so the policy lives in one
// place instead of being re-derived per page.
func ResolveRoute(id Identity) string {
	switch {
	case !id.Authenticated:
		return RouteLogin
	case id.Role == models.RoleAdmin:
		return RouteAdmin
	case !id.OnboardingDone:
		return RouteOnboarding
	default:
		return RouteDashboard
	}
}
