package httpx

import (
	"log/slog"
	"net/http"

	"github.com/phonegate/phonegate/internal/authz"
	"github.com/phonegate/phonegate/internal/service"
	"github.com/phonegate/phonegate/internal/token"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Identity *service.IdentityService
	Decoder  *token.Decoder
	CORS     CORSConfig
	Logger   *slog.Logger
}

// Handler classes and methods as declared in the requirement registry.
// Route registration and declarations share these names so a typo fails at
// startup rather than resolving to an undeclared pair.
const (
	classAuth = "auth"
	classDemo = "demo"
)

// newRequirementRegistry declares every protected route's roles up front.
// The table below is the whole authorization policy of the service.
func newRequirementRegistry() *authz.Registry {
	reg := authz.NewRegistry()

	reg.Set(classAuth, "request_code", "guest", "user")
	reg.Set(classAuth, "login", "guest", "user")
	reg.Set(classAuth, "refresh", "guest", "user")

	reg.SetDefault(classDemo, "guest", "user")
	reg.Set(classDemo, "user_only", "user")
	reg.Set(classDemo, "open") // explicit empty: public despite the class default

	return reg
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	gate := &Gate{
		Decoder:  services.Decoder,
		Registry: newRequirementRegistry(),
		Logger:   services.Logger,
	}

	authHandlers := &AuthHandlers{Svc: services.Identity, Logger: services.Logger}
	demoHandlers := &DemoHandlers{}

	mux.Handle("POST /api/auth/guest-token", http.HandlerFunc(authHandlers.GuestToken))
	mux.Handle("POST /api/auth/request-code",
		gate.Protect(classAuth, "request_code")(http.HandlerFunc(authHandlers.RequestCode)))
	mux.Handle("POST /api/auth/login",
		gate.Protect(classAuth, "login")(http.HandlerFunc(authHandlers.Login)))
	mux.Handle("POST /api/auth/refresh",
		gate.Protect(classAuth, "refresh")(http.HandlerFunc(authHandlers.Refresh)))

	mux.Handle("GET /api/demo/public-info",
		gate.Protect(classDemo, "public_info")(http.HandlerFunc(demoHandlers.PublicInfo)))
	mux.Handle("GET /api/demo/user-only",
		gate.Protect(classDemo, "user_only")(http.HandlerFunc(demoHandlers.UserOnly)))
	mux.Handle("GET /api/demo/open",
		gate.Protect(classDemo, "open")(http.HandlerFunc(demoHandlers.Open)))

	mux.Handle("GET /api/hello", http.HandlerFunc(Hello))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	return CORS(services.CORS)(mux)
}
