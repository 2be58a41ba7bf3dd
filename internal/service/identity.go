package service

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/phonegate/phonegate/internal/errors"

	"github.com/phonegate/phonegate/internal/domain/identity"
	"github.com/phonegate/phonegate/internal/ports"
)

// IdentityServiceOptions groups dependencies for IdentityService.
type IdentityServiceOptions struct {
	Provider ports.IdentityProvider
	Verifier ports.CodeVerifier
	Issuer   ports.CodeIssuer
	Sender   ports.CodeSender
	Logger   *slog.Logger
}

// IdentityService orchestrates the guest/login/refresh flows against the
// identity provider. It keeps no state of its own: a user's standing lives
// entirely at the IdP, and every flow reconstructs the desired end state
// rather than tracking progress, so reruns converge instead of failing.
type IdentityService struct {
	provider ports.IdentityProvider
	verifier ports.CodeVerifier
	issuer   ports.CodeIssuer
	sender   ports.CodeSender
	logger   *slog.Logger
}

// NewIdentityService constructs a new IdentityService.
func NewIdentityService(opts IdentityServiceOptions) *IdentityService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityService{
		provider: opts.Provider,
		verifier: opts.Verifier,
		issuer:   opts.Issuer,
		sender:   opts.Sender,
		logger:   logger,
	}
}

// Upgrade pipeline step names, recorded in per-step results.
const (
	StepUpdateAttributes = "update_attributes"
	StepRemoveGuestRole  = "remove_guest_role"
	StepAssignUserRole   = "assign_user_role"
	StepIssueToken       = "issue_token"
)

// UpgradeStepResult records the outcome of one upgrade pipeline step.
type UpgradeStepResult struct {
	Step  string `json:"step"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// LoginResult contains the issued grant and, when login went through the
// upgrade pipeline, its per-step results.
type LoginResult struct {
	Grant identity.TokenGrant
	Steps []UpgradeStepResult
}

// GuestToken issues a token for the shared guest account.
func (s *IdentityService) GuestToken(ctx context.Context) (identity.TokenGrant, error) {
	grant, err := s.provider.IssueGuestToken(ctx)
	if err != nil {
		return identity.TokenGrant{}, fmt.Errorf("issue guest token: %w", err)
	}
	return grant, nil
}

// RequestCode issues a one-time code for the phone and hands it to the
// sender. Code delivery is best-effort: issue or send failures are logged
// and the call still succeeds, so the endpoint leaks nothing about which
// phones are known or reachable.
func (s *IdentityService) RequestCode(ctx context.Context, phone string) error {
	if identity.NormalizePhone(phone) == "" {
		return apperrors.Validation("phone is required")
	}

	code, err := s.issuer.Issue(ctx, phone)
	if err != nil {
		s.logger.WarnContext(ctx, "issue login code failed",
			"phone", identity.NormalizePhone(phone), "error", err)
		return nil
	}

	if s.sender != nil {
		if err := s.sender.Send(ctx, phone, code); err != nil {
			s.logger.WarnContext(ctx, "send login code failed",
				"phone", identity.NormalizePhone(phone), "error", err)
		}
	}
	return nil
}

// Login verifies the one-time code and moves the phone's principal to its
// authenticated end state: for an unknown phone a user is provisioned and
// granted the user role; for a known phone the upgrade pipeline re-runs in
// full. A rejected code fails before any provider call is made.
func (s *IdentityService) Login(ctx context.Context, phone, code string) (*LoginResult, error) {
	if identity.NormalizePhone(phone) == "" {
		return nil, apperrors.Validation("phone is required")
	}
	if code == "" {
		return nil, apperrors.Validation("code is required")
	}

	ok, err := s.verifier.Verify(ctx, phone, code)
	if err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}
	if !ok {
		return nil, apperrors.InvalidCode("Invalid code")
	}

	exists, err := s.provider.UserExists(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !exists {
		createErr := s.provider.CreateUser(ctx, phone)
		switch {
		case createErr == nil:
			return s.finishNewUser(ctx, phone)
		case isConflict(createErr):
			// Another login for the same phone won the create race.
			// The user exists now, so fall through to the upgrade path.
			s.logger.InfoContext(ctx, "create user conflict, retrying as existing user",
				"phone", identity.NormalizePhone(phone))
		default:
			return nil, fmt.Errorf("create user: %w", createErr)
		}
	}

	grant, steps, err := s.UpgradeGuestToUser(ctx, phone)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Grant: grant, Steps: steps}, nil
}

// finishNewUser completes first-time provisioning: grant the user role and
// issue the first token.
func (s *IdentityService) finishNewUser(ctx context.Context, phone string) (*LoginResult, error) {
	if err := s.provider.AssignRole(ctx, phone, identity.RoleUser); err != nil {
		return nil, fmt.Errorf("assign user role: %w", err)
	}
	grant, err := s.provider.IssueUserToken(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("issue user token: %w", err)
	}
	return &LoginResult{Grant: grant}, nil
}

// UpgradeGuestToUser runs the ordered upgrade pipeline for an existing user:
// refresh attributes, strip the guest role, grant the user role, reissue the
// token. The middle steps are best-effort — a failure is recorded in the
// step results and the pipeline continues, because a rerun of the whole
// pipeline repairs whatever was missed. Only the final token issuance is
// terminal: without a token the login has not happened, whatever else
// succeeded.
func (s *IdentityService) UpgradeGuestToUser(ctx context.Context, phone string) (identity.TokenGrant, []UpgradeStepResult, error) {
	steps := make([]UpgradeStepResult, 0, 4)

	record := func(step string, err error) {
		res := UpgradeStepResult{Step: step, OK: err == nil}
		if err != nil {
			res.Error = err.Error()
			s.logger.WarnContext(ctx, "upgrade step failed",
				"step", step, "phone", identity.NormalizePhone(phone), "error", err)
		}
		steps = append(steps, res)
	}

	record(StepUpdateAttributes, s.provider.UpdateAttributes(ctx, phone, map[string]string{
		"user_type": identity.UserTypeAuthenticated,
	}))
	record(StepRemoveGuestRole, s.provider.RemoveRole(ctx, phone, identity.RoleGuest))
	record(StepAssignUserRole, s.provider.AssignRole(ctx, phone, identity.RoleUser))

	grant, err := s.provider.IssueUserToken(ctx, phone)
	record(StepIssueToken, err)
	if err != nil {
		return identity.TokenGrant{}, steps, fmt.Errorf("issue user token: %w", err)
	}
	return grant, steps, nil
}

// Refresh exchanges a refresh token for a fresh grant. Provider failures
// surface as-is; there is no silent guest fallback, so an expired session is
// visible to the caller and handled there.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (identity.TokenGrant, error) {
	if refreshToken == "" {
		return identity.TokenGrant{}, apperrors.Validation("refresh_token is required")
	}
	grant, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return identity.TokenGrant{}, fmt.Errorf("refresh token: %w", err)
	}
	return grant, nil
}

func isConflict(err error) bool {
	idpErr, ok := identity.AsIdPError(err)
	return ok && idpErr.IsConflict()
}
