package authz

// Decision is the outcome of an authorization check. On denial it carries
// both the required and presented role sets for caller-visible diagnostics.
type Decision struct {
	Allowed       bool
	RequiredRoles []string
	UserRoles     []string
}

// Authorize checks the caller's roles against a requirement. An empty
// requirement allows unconditionally, without inspecting the roles at all;
// otherwise access is granted when any required role is present.
//
// Authorize is a pure function of its inputs: no side effects, safe to call
// concurrently, and trivially repeatable for the same request.
func Authorize(userRoles []string, req Requirement) Decision {
	if req.IsEmpty() {
		return Decision{Allowed: true}
	}

	for _, role := range userRoles {
		if req.Contains(role) {
			return Decision{Allowed: true}
		}
	}

	return Decision{
		Allowed:       false,
		RequiredRoles: req.Roles(),
		UserRoles:     userRoles,
	}
}
