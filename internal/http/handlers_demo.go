package httpx

import "net/http"

// DemoHandlers exercises the authorization gate end to end: one route rides
// the class default, one narrows it, one opens it back up.
type DemoHandlers struct{}

// PublicInfo handles GET /api/demo/public-info (class default: guest or user).
func (h *DemoHandlers) PublicInfo(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"message":    "This endpoint is open to guests and users",
		"your_roles": p.Roles,
		"user_id":    p.UserID,
	})
}

// UserOnly handles GET /api/demo/user-only (method override: user only).
func (h *DemoHandlers) UserOnly(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"message":        "This endpoint requires a full user account",
		"sensitive_data": "42",
		"user_id":        p.UserID,
	})
}

// Open handles GET /api/demo/open. Its empty override strips the class
// default, so even anonymous callers get through.
func (h *DemoHandlers) Open(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"message":    "This endpoint is open to everyone",
		"your_roles": p.Roles,
	})
}

// Hello handles GET /api/hello.
func Hello(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Hello, world!"})
}
