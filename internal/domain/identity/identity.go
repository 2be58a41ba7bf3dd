package identity

// Package identity contains domain-level types for phone-keyed principals,
// token grants, and decoded claims. It is pure and free of transport concerns.

import "strings"

// Role is a realm role name as known to the IdP.
type Role string

const (
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// UserType values stored in the IdP-side user_type attribute.
const (
	UserTypeGuest         = "guest"
	UserTypeAuthenticated = "authenticated"
)

// NormalizePhone strips a leading "+" and surrounding whitespace from a phone
// number. The normalized form is the IdP username for that principal.
func NormalizePhone(phone string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(phone), "+"))
}

// UserID derives the stable user_id attribute for a phone number.
func UserID(phone string) string {
	return "user_" + NormalizePhone(phone)
}

// SyntheticEmail derives the placeholder email recorded on IdP users.
// Phone-keyed accounts have no mailbox; the IdP just requires the field.
func SyntheticEmail(phone string) string {
	return NormalizePhone(phone) + "@temp.domain"
}

// TokenGrant is the result of a token-issuance call. It is transient and
// held client-side only; nothing in this service persists it.
type TokenGrant struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ClaimSet is the decoded claims segment of a bearer token.
type ClaimSet map[string]any

// User is the IdP-side representation of a phone-keyed principal. The admin
// API returns attributes multi-valued ({"phone":["799..."]}), even when this
// service only ever writes a single value per key.
type User struct {
	ID         string              `json:"id,omitempty"`
	Username   string              `json:"username"`
	Enabled    bool                `json:"enabled"`
	Email      string              `json:"email,omitempty"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// Attribute returns the first value recorded for an attribute key, or ""
// when the key is absent or empty.
func (u User) Attribute(key string) string {
	if vals := u.Attributes[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// RoleRef identifies a realm role at the IdP. Both fields must be present
// for the role to be usable in role-mapping calls.
type RoleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
