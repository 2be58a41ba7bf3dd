package idp

// Package idp contains a hand-written, stateful fake identity provider for
// tests. It keeps users, roles, and attributes in memory and mints unsigned
// tokens whose claims reflect the stored state, so tests can decode what a
// flow actually issued instead of asserting on canned strings.

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	domainid "github.com/phonegate/phonegate/internal/domain/identity"
	"github.com/phonegate/phonegate/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*FakeProvider)(nil)
	_ ports.CodeVerifier     = (VerifierFunc)(nil)
	_ ports.CodeIssuer       = (IssuerFunc)(nil)
	_ ports.CodeSender       = (SenderFunc)(nil)
)

// VerifierFunc adapts a function to ports.CodeVerifier.
type VerifierFunc func(ctx context.Context, phone, code string) (bool, error)

func (f VerifierFunc) Verify(ctx context.Context, phone, code string) (bool, error) {
	return f(ctx, phone, code)
}

// IssuerFunc adapts a function to ports.CodeIssuer.
type IssuerFunc func(ctx context.Context, phone string) (string, error)

func (f IssuerFunc) Issue(ctx context.Context, phone string) (string, error) {
	return f(ctx, phone)
}

// SenderFunc adapts a function to ports.CodeSender.
type SenderFunc func(ctx context.Context, phone, code string) error

func (f SenderFunc) Send(ctx context.Context, phone, code string) error {
	return f(ctx, phone, code)
}

// FakeUser is the fake's record of one provisioned principal.
type FakeUser struct {
	Attributes map[string]string
	Roles      map[string]bool
}

// FakeProvider simulates the IdP. Per-method Func fields override the
// built-in in-memory behavior for failure injection; Calls counts invocations
// by method name either way.
type FakeProvider struct {
	mu    sync.Mutex
	users map[string]*FakeUser // keyed by normalized phone

	// refresh tokens issued so far, mapped to the subject they renew.
	refreshTokens map[string]string

	Calls map[string]int

	IssueGuestTokenFunc  func(ctx context.Context) (domainid.TokenGrant, error)
	IssueUserTokenFunc   func(ctx context.Context, phone string) (domainid.TokenGrant, error)
	RefreshFunc          func(ctx context.Context, refreshToken string) (domainid.TokenGrant, error)
	UserExistsFunc       func(ctx context.Context, phone string) (bool, error)
	CreateUserFunc       func(ctx context.Context, phone string) error
	AssignRoleFunc       func(ctx context.Context, phone string, role domainid.Role) error
	RemoveRoleFunc       func(ctx context.Context, phone string, role domainid.Role) error
	UpdateAttributesFunc func(ctx context.Context, phone string, attrs map[string]string) error
}

// NewFakeProvider creates an empty fake IdP.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		users:         map[string]*FakeUser{},
		refreshTokens: map[string]string{},
		Calls:         map[string]int{},
	}
}

// AddUser seeds a user with the given roles, as if provisioned earlier.
func (f *FakeProvider) AddUser(phone string, roles ...string) *FakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()

	normalized := domainid.NormalizePhone(phone)
	u := &FakeUser{
		Attributes: map[string]string{
			"phone":   normalized,
			"user_id": domainid.UserID(phone),
		},
		Roles: map[string]bool{},
	}
	for _, r := range roles {
		u.Roles[r] = true
	}
	f.users[normalized] = u
	return u
}

// User returns the stored record for a phone, or nil.
func (f *FakeProvider) User(phone string) *FakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[domainid.NormalizePhone(phone)]
}

func (f *FakeProvider) count(method string) {
	f.mu.Lock()
	f.Calls[method]++
	f.mu.Unlock()
}

// CallCount returns how many times a method was invoked.
func (f *FakeProvider) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

// TotalCalls returns the number of provider invocations across all methods.
func (f *FakeProvider) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.Calls {
		total += n
	}
	return total
}

func (f *FakeProvider) IssueGuestToken(ctx context.Context) (domainid.TokenGrant, error) {
	f.count("IssueGuestToken")
	if f.IssueGuestTokenFunc != nil {
		return f.IssueGuestTokenFunc(ctx)
	}
	return f.mint("guest-user", []string{"guest"}), nil
}

func (f *FakeProvider) IssueUserToken(ctx context.Context, phone string) (domainid.TokenGrant, error) {
	f.count("IssueUserToken")
	if f.IssueUserTokenFunc != nil {
		return f.IssueUserTokenFunc(ctx, phone)
	}

	f.mu.Lock()
	u, ok := f.users[domainid.NormalizePhone(phone)]
	f.mu.Unlock()
	if !ok {
		return domainid.TokenGrant{}, &domainid.IdPError{
			Code:        "invalid_grant",
			Description: "Invalid user credentials",
			Status:      http.StatusUnauthorized,
		}
	}

	roles := make([]string, 0, len(u.Roles))
	for r := range u.Roles {
		roles = append(roles, r)
	}
	return f.mint(u.Attributes["user_id"], roles), nil
}

func (f *FakeProvider) Refresh(ctx context.Context, refreshToken string) (domainid.TokenGrant, error) {
	f.count("Refresh")
	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx, refreshToken)
	}

	f.mu.Lock()
	subject, ok := f.refreshTokens[refreshToken]
	f.mu.Unlock()
	if !ok {
		return domainid.TokenGrant{}, &domainid.IdPError{
			Code:        "invalid_grant",
			Description: "Token is not active",
			Status:      http.StatusBadRequest,
		}
	}
	return f.mint(subject, []string{"user"}), nil
}

func (f *FakeProvider) UserExists(ctx context.Context, phone string) (bool, error) {
	f.count("UserExists")
	if f.UserExistsFunc != nil {
		return f.UserExistsFunc(ctx, phone)
	}
	return f.User(phone) != nil, nil
}

func (f *FakeProvider) CreateUser(ctx context.Context, phone string) error {
	f.count("CreateUser")
	if f.CreateUserFunc != nil {
		return f.CreateUserFunc(ctx, phone)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	normalized := domainid.NormalizePhone(phone)
	if _, exists := f.users[normalized]; exists {
		return &domainid.IdPError{
			Code:        "conflict",
			Description: "User exists with same username",
			Status:      http.StatusConflict,
		}
	}
	f.users[normalized] = &FakeUser{
		Attributes: map[string]string{
			"phone":   normalized,
			"user_id": domainid.UserID(phone),
		},
		Roles: map[string]bool{},
	}
	return nil
}

func (f *FakeProvider) AssignRole(ctx context.Context, phone string, role domainid.Role) error {
	f.count("AssignRole")
	if f.AssignRoleFunc != nil {
		return f.AssignRoleFunc(ctx, phone, role)
	}

	u := f.User(phone)
	if u == nil {
		return f.userNotFound(phone)
	}
	f.mu.Lock()
	u.Roles[string(role)] = true
	f.mu.Unlock()
	return nil
}

func (f *FakeProvider) RemoveRole(ctx context.Context, phone string, role domainid.Role) error {
	f.count("RemoveRole")
	if f.RemoveRoleFunc != nil {
		return f.RemoveRoleFunc(ctx, phone, role)
	}

	u := f.User(phone)
	if u == nil {
		return f.userNotFound(phone)
	}
	// Removing an unheld role is a silent no-op, as on the real IdP.
	f.mu.Lock()
	delete(u.Roles, string(role))
	f.mu.Unlock()
	return nil
}

func (f *FakeProvider) UpdateAttributes(ctx context.Context, phone string, attrs map[string]string) error {
	f.count("UpdateAttributes")
	if f.UpdateAttributesFunc != nil {
		return f.UpdateAttributesFunc(ctx, phone, attrs)
	}

	u := f.User(phone)
	if u == nil {
		return f.userNotFound(phone)
	}
	f.mu.Lock()
	for k, v := range attrs {
		u.Attributes[k] = v
	}
	f.mu.Unlock()
	return nil
}

func (f *FakeProvider) userNotFound(phone string) error {
	return &domainid.IdPError{
		Code:        "user_not_found",
		Description: "no user for username " + domainid.NormalizePhone(phone),
		Status:      http.StatusNotFound,
	}
}

// mint builds a grant whose access token is an unsigned JWT carrying the
// subject and roles, and registers a refresh token for the subject.
func (f *FakeProvider) mint(subject string, roles []string) domainid.TokenGrant {
	f.mu.Lock()
	refresh := fmt.Sprintf("refresh-%s-%d", subject, len(f.refreshTokens))
	f.refreshTokens[refresh] = subject
	f.mu.Unlock()

	return domainid.TokenGrant{
		AccessToken: MintToken(map[string]any{
			"user_id": subject,
			"realm_access": map[string]any{
				"roles": roles,
			},
		}),
		ExpiresIn:    300,
		TokenType:    "Bearer",
		RefreshToken: refresh,
	}
}

// MintToken builds an unsigned JWT (header.claims.) from a claim map.
func MintToken(claims map[string]any) string {
	header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	payload, _ := json.Marshal(claims)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "."
}
