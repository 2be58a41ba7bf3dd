package httpx

import (
	"log/slog"
	"net/http"

	"github.com/phonegate/phonegate/internal/domain/identity"
	"github.com/phonegate/phonegate/internal/service"
)

// AuthHandlers serves the token-issuance endpoints.
type AuthHandlers struct {
	Svc    *service.IdentityService
	Logger *slog.Logger
}

type guestTokenResponse struct {
	Message string              `json:"message"`
	Token   identity.TokenGrant `json:"token"`
}

// GuestToken handles POST /api/auth/guest-token. It is the only public
// token endpoint: anonymous visitors call it to obtain their first bearer.
func (h *AuthHandlers) GuestToken(w http.ResponseWriter, r *http.Request) {
	grant, err := h.Svc.GuestToken(r.Context())
	if err != nil {
		h.logError(r, "guest token", err)
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, guestTokenResponse{
		Message: "Guest token issued",
		Token:   grant,
	})
}

type requestCodeRequest struct {
	Phone string `json:"phone"`
}

// RequestCode handles POST /api/auth/request-code.
func (h *AuthHandlers) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.Svc.RequestCode(r.Context(), req.Phone); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Code sent",
		"phone":   identity.NormalizePhone(req.Phone),
	})
}

type loginRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type loginResponse struct {
	Message string              `json:"message"`
	Token   identity.TokenGrant `json:"token"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.Svc.Login(r.Context(), req.Phone, req.Code)
	if err != nil {
		h.logError(r, "login", err)
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		Token:   res.Grant,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles POST /api/auth/refresh. IdP rejections pass through
// unchanged; the client decides whether to drop back to a guest token.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	grant, err := h.Svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.logError(r, "refresh", err)
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Token refreshed",
		"token":   grant,
	})
}

func (h *AuthHandlers) logError(r *http.Request, op string, err error) {
	if h.Logger == nil {
		return
	}
	h.Logger.ErrorContext(r.Context(), op+" failed",
		"error", err, "request_id", RequestIDFrom(r.Context()))
}
