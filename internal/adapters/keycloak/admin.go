package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/phonegate/phonegate/internal/domain/identity"
)

// maxResponseBody bounds admin responses read into memory.
const maxResponseBody = 1 << 20

type createUserRequest struct {
	Username      string            `json:"username"`
	Enabled       bool              `json:"enabled"`
	Email         string            `json:"email"`
	EmailVerified bool              `json:"emailVerified"`
	Credentials   []credential      `json:"credentials"`
	Attributes    map[string]string `json:"attributes"`
}

type credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// UserExists reports whether a user with the phone's username exists.
func (c *Client) UserExists(ctx context.Context, phone string) (bool, error) {
	bearer, err := c.serviceToken(ctx)
	if err != nil {
		return false, err
	}
	users, err := c.searchUsers(ctx, bearer, identity.NormalizePhone(phone))
	if err != nil {
		return false, err
	}
	return len(users) > 0, nil
}

// CreateUser provisions a phone-keyed user with the shared placeholder
// credential and a synthetic email. A duplicate username surfaces as a
// conflict IdPError so the caller can fall through to the upgrade path.
func (c *Client) CreateUser(ctx context.Context, phone string) error {
	bearer, err := c.adminToken(ctx)
	if err != nil {
		return err
	}

	normalized := identity.NormalizePhone(phone)
	body := createUserRequest{
		Username:      normalized,
		Enabled:       true,
		Email:         identity.SyntheticEmail(phone),
		EmailVerified: true,
		Credentials: []credential{{
			Type:      "password",
			Value:     c.cfg.UserSecret,
			Temporary: false,
		}},
		Attributes: map[string]string{
			"phone":   normalized,
			"user_id": identity.UserID(phone),
		},
	}
	return c.doJSON(ctx, http.MethodPost, c.adminBase+"/users", bearer, body, nil)
}

// AssignRole binds a realm role to the phone's user.
func (c *Client) AssignRole(ctx context.Context, phone string, role identity.Role) error {
	return c.mapRole(ctx, phone, role, http.MethodPost)
}

// RemoveRole unbinds a realm role from the phone's user. Removing a role the
// user does not hold is a no-op on the IdP side.
func (c *Client) RemoveRole(ctx context.Context, phone string, role identity.Role) error {
	return c.mapRole(ctx, phone, role, http.MethodDelete)
}

func (c *Client) mapRole(ctx context.Context, phone string, role identity.Role, method string) error {
	bearer, err := c.serviceToken(ctx)
	if err != nil {
		return err
	}
	user, err := c.findUser(ctx, bearer, phone)
	if err != nil {
		return err
	}
	ref, err := c.findRole(ctx, bearer, role)
	if err != nil {
		return err
	}

	mappingURL := c.adminBase + "/users/" + url.PathEscape(user.ID) + "/role-mappings/realm"
	return c.doJSON(ctx, method, mappingURL, bearer, []identity.RoleRef{ref}, nil)
}

// UpdateAttributes merges attrs onto the user's existing attributes and
// writes the result back. Attributes not named in attrs are preserved,
// including values beyond the first of multi-valued ones; attrs entries
// replace the whole value list for their key.
func (c *Client) UpdateAttributes(ctx context.Context, phone string, attrs map[string]string) error {
	bearer, err := c.serviceToken(ctx)
	if err != nil {
		return err
	}
	user, err := c.findUser(ctx, bearer, phone)
	if err != nil {
		return err
	}

	merged := make(map[string][]string, len(user.Attributes)+len(attrs))
	for k, v := range user.Attributes {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = []string{v}
	}

	userURL := c.adminBase + "/users/" + url.PathEscape(user.ID)
	body := map[string]any{"attributes": merged}
	return c.doJSON(ctx, http.MethodPut, userURL, bearer, body, nil)
}

// searchUsers queries the admin API for users whose username matches exactly.
func (c *Client) searchUsers(ctx context.Context, bearer, username string) ([]identity.User, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("exact", "true")

	var users []identity.User
	if err := c.doJSON(ctx, http.MethodGet, c.adminBase+"/users?"+q.Encode(), bearer, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// findUser resolves the phone's user representation, failing with a
// not-found IdPError when no user matches.
func (c *Client) findUser(ctx context.Context, bearer, phone string) (identity.User, error) {
	users, err := c.searchUsers(ctx, bearer, identity.NormalizePhone(phone))
	if err != nil {
		return identity.User{}, err
	}
	if len(users) == 0 {
		return identity.User{}, &identity.IdPError{
			Code:        "user_not_found",
			Description: "no user for username " + identity.NormalizePhone(phone),
			Status:      http.StatusNotFound,
		}
	}
	return users[0], nil
}

// findRole scans the realm role list for a role by name. Keycloak has no
// exact-name lookup endpoint, so the full list is fetched and filtered.
func (c *Client) findRole(ctx context.Context, bearer string, role identity.Role) (identity.RoleRef, error) {
	var roles []identity.RoleRef
	if err := c.doJSON(ctx, http.MethodGet, c.adminBase+"/roles", bearer, nil, &roles); err != nil {
		return identity.RoleRef{}, err
	}

	for _, r := range roles {
		if r.Name == string(role) {
			if r.ID == "" {
				return identity.RoleRef{}, &identity.IdPError{
					Code:        "invalid_role",
					Description: "realm role " + r.Name + " has no id",
				}
			}
			return r, nil
		}
	}
	return identity.RoleRef{}, &identity.IdPError{
		Code:        "role_not_found",
		Description: "realm role " + string(role) + " not defined",
		Status:      http.StatusNotFound,
	}
}

// doJSON performs one admin API call, decoding a JSON response into out when
// non-nil. Non-2xx responses become IdPErrors carrying the IdP's own error
// fields when the body provides them.
func (c *Client) doJSON(ctx context.Context, method, rawURL, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &identity.IdPError{Code: "invalid_request", Description: err.Error()}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return &identity.IdPError{Code: "invalid_request", Description: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &identity.IdPError{Code: "idp_unreachable", Description: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &identity.IdPError{Code: "idp_unreachable", Description: err.Error(), Status: resp.StatusCode}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errorFromAdminResponse(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &identity.IdPError{Code: "invalid_response", Description: err.Error(), Status: resp.StatusCode}
		}
	}
	return nil
}

// errorFromAdminResponse builds an IdPError from an admin API failure body.
// The admin API reports either OAuth-style {error, error_description} or
// {errorMessage} shapes depending on the endpoint.
func errorFromAdminResponse(status int, body []byte) *identity.IdPError {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorMessage     string `json:"errorMessage"`
	}
	idpErr := &identity.IdPError{Status: status}
	if err := json.Unmarshal(body, &payload); err == nil {
		idpErr.Code = payload.Error
		idpErr.Description = payload.ErrorDescription
		if idpErr.Description == "" {
			idpErr.Description = payload.ErrorMessage
		}
		if idpErr.Code == "" && payload.ErrorMessage != "" {
			idpErr.Code = "admin_error"
		}
	}
	if idpErr.Code == "" {
		idpErr.Code = "idp_error"
		idpErr.Description = http.StatusText(status)
	}
	return idpErr
}
