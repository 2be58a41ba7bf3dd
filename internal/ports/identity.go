package ports

// Package ports defines interfaces (hexagonal ports) for identity behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	"github.com/phonegate/phonegate/internal/domain/identity"
)

// IdentityProvider wraps the IdP's token and admin endpoints. Implementations
// acquire their own service/admin credentials per call; callers never supply
// tokens. All identity state lives at the IdP — implementations hold no
// mutable state and are safe for concurrent use.
type IdentityProvider interface {
	// IssueGuestToken issues a password-grant token for the shared guest account.
	IssueGuestToken(ctx context.Context) (identity.TokenGrant, error)

	// IssueUserToken issues a password-grant token for the phone's username.
	IssueUserToken(ctx context.Context, phone string) (identity.TokenGrant, error)

	// Refresh exchanges a refresh token for a fresh grant.
	Refresh(ctx context.Context, refreshToken string) (identity.TokenGrant, error)

	// UserExists reports whether a user with the phone's username exists.
	UserExists(ctx context.Context, phone string) (bool, error)

	// CreateUser provisions a new phone-keyed user. Creating an existing
	// username yields a conflict IdPError.
	CreateUser(ctx context.Context, phone string) error

	// AssignRole binds a realm role to the phone's user.
	AssignRole(ctx context.Context, phone string, role identity.Role) error

	// RemoveRole unbinds a realm role from the phone's user.
	RemoveRole(ctx context.Context, phone string, role identity.Role) error

	// UpdateAttributes merges the given attributes onto the phone's user.
	UpdateAttributes(ctx context.Context, phone string, attrs map[string]string) error
}

// CodeVerifier checks a one-time code presented at login.
// The bundled verifiers are a fixed-code stand-in for demos and a Redis-backed
// store; real deployments plug in their own implementation.
type CodeVerifier interface {
	Verify(ctx context.Context, phone, code string) (bool, error)
}

// CodeIssuer creates a one-time code for a phone number so a later login
// attempt can present it.
type CodeIssuer interface {
	Issue(ctx context.Context, phone string) (string, error)
}

// CodeSender delivers a one-time code out-of-band. SMS dispatch is an
// external collaborator's concern; the bundled sender only logs.
type CodeSender interface {
	Send(ctx context.Context, phone, code string) error
}
