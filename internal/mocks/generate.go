// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the identity ports. Regenerate after interface changes with:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	provider := mocks.NewMockIdentityProvider(ctrl)
//	provider.EXPECT().UserExists(gomock.Any(), "79991234567").Return(true, nil)
//
// For stateful end-to-end style tests, prefer the hand-written fake IdP in
// internal/mocks/idp, which tracks users, roles, and attributes in memory and
// mints decodable unsigned tokens.

package mocks

// Generate mock for IdentityProvider interface from internal/ports.
// This creates MockIdentityProvider with methods for all IdentityProvider
// interface methods: IssueGuestToken, IssueUserToken, Refresh, UserExists,
// CreateUser, AssignRole, RemoveRole, UpdateAttributes.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=identity_provider_mock.go github.com/phonegate/phonegate/internal/ports IdentityProvider

// Generate mocks for the one-time-code ports: CodeVerifier (Verify),
// CodeIssuer (Issue), and CodeSender (Send).
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=code_verifier_mock.go github.com/phonegate/phonegate/internal/ports CodeVerifier
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=code_issuer_mock.go github.com/phonegate/phonegate/internal/ports CodeIssuer
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=code_sender_mock.go github.com/phonegate/phonegate/internal/ports CodeSender
