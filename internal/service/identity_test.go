package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/phonegate/phonegate/internal/domain/identity"
	apperrors "github.com/phonegate/phonegate/internal/errors"
	"github.com/phonegate/phonegate/internal/mocks"
	"github.com/phonegate/phonegate/internal/mocks/idp"
	"github.com/phonegate/phonegate/internal/token"
)

const testPhone = "+79991234567"

func acceptAll(_ context.Context, _, _ string) (bool, error) { return true, nil }

func newTestService(provider *idp.FakeProvider, verify idp.VerifierFunc) *IdentityService {
	return NewIdentityService(IdentityServiceOptions{
		Provider: provider,
		Verifier: verify,
		Issuer: idp.IssuerFunc(func(_ context.Context, _ string) (string, error) {
			return "123456", nil
		}),
	})
}

// tokenRoles decodes the roles claim out of a grant's access token.
func tokenRoles(t *testing.T, grant identity.TokenGrant) []string {
	t.Helper()
	dec, err := token.NewDecoder(token.DecoderOptions{})
	require.NoError(t, err)
	claims, err := dec.Decode(grant.AccessToken)
	require.NoError(t, err)
	return dec.Roles(claims)
}

func TestGuestToken(t *testing.T) {
	provider := idp.NewFakeProvider()
	svc := newTestService(provider, acceptAll)

	grant, err := svc.GuestToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"guest"}, tokenRoles(t, grant))
	assert.NotEmpty(t, grant.RefreshToken)
}

func TestRequestCode_DeliversIssuedCode(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	issuer := mocks.NewMockCodeIssuer(ctrl)
	sender := mocks.NewMockCodeSender(ctrl)
	issuer.EXPECT().Issue(gomock.Any(), testPhone).Return("654321", nil)
	sender.EXPECT().Send(gomock.Any(), testPhone, "654321").Return(nil)

	svc := NewIdentityService(IdentityServiceOptions{
		Provider: idp.NewFakeProvider(),
		Verifier: idp.VerifierFunc(acceptAll),
		Issuer:   issuer,
		Sender:   sender,
	})

	err := svc.RequestCode(context.Background(), testPhone)
	require.NoError(t, err)
}

func TestRequestCode_IssueFailureStillSucceeds(t *testing.T) {
	provider := idp.NewFakeProvider()
	senderCalled := false
	svc := NewIdentityService(IdentityServiceOptions{
		Provider: provider,
		Verifier: idp.VerifierFunc(acceptAll),
		Issuer: idp.IssuerFunc(func(_ context.Context, _ string) (string, error) {
			return "", errors.New("store down")
		}),
		Sender: idp.SenderFunc(func(_ context.Context, _, _ string) error {
			senderCalled = true
			return nil
		}),
	})

	err := svc.RequestCode(context.Background(), testPhone)
	assert.NoError(t, err, "delivery is best-effort; the caller sees success")
	assert.False(t, senderCalled, "nothing to send when issuing failed")
}

func TestRequestCode_EmptyPhone(t *testing.T) {
	svc := newTestService(idp.NewFakeProvider(), acceptAll)

	err := svc.RequestCode(context.Background(), "  + ")
	assert.True(t, apperrors.IsValidation(err))
}

func TestLogin_InvalidCodeShortCircuits(t *testing.T) {
	provider := idp.NewFakeProvider()
	svc := newTestService(provider, func(_ context.Context, _, _ string) (bool, error) {
		return false, nil
	})

	_, err := svc.Login(context.Background(), testPhone, "999999")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidCode(err))
	assert.Equal(t, "Invalid code", err.Error())
	assert.Zero(t, provider.TotalCalls(), "a rejected code must not touch the IdP")
}

func TestLogin_VerifierError(t *testing.T) {
	provider := idp.NewFakeProvider()
	svc := newTestService(provider, func(_ context.Context, _, _ string) (bool, error) {
		return false, errors.New("redis down")
	})

	_, err := svc.Login(context.Background(), testPhone, "123456")
	require.Error(t, err)
	assert.False(t, apperrors.IsInvalidCode(err))
	assert.Zero(t, provider.TotalCalls())
}

func TestLogin_Validation(t *testing.T) {
	svc := newTestService(idp.NewFakeProvider(), acceptAll)

	_, err := svc.Login(context.Background(), "", "123456")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Login(context.Background(), testPhone, "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestLogin_NewUserProvisioned(t *testing.T) {
	provider := idp.NewFakeProvider()
	svc := newTestService(provider, acceptAll)

	res, err := svc.Login(context.Background(), testPhone, "123456")
	require.NoError(t, err)

	assert.Equal(t, []string{"user"}, tokenRoles(t, res.Grant))
	assert.Empty(t, res.Steps, "first-time provisioning does not run the upgrade pipeline")

	u := provider.User(testPhone)
	require.NotNil(t, u)
	assert.True(t, u.Roles["user"])
	assert.Equal(t, "79991234567", u.Attributes["phone"])
	assert.Equal(t, "user_79991234567", u.Attributes["user_id"])
}

func TestLogin_ExistingGuestUpgraded(t *testing.T) {
	provider := idp.NewFakeProvider()
	provider.AddUser(testPhone, "guest")
	svc := newTestService(provider, acceptAll)

	res, err := svc.Login(context.Background(), testPhone, "123456")
	require.NoError(t, err)

	assert.Equal(t, []string{"user"}, tokenRoles(t, res.Grant))

	require.Len(t, res.Steps, 4)
	wantOrder := []string{StepUpdateAttributes, StepRemoveGuestRole, StepAssignUserRole, StepIssueToken}
	for i, step := range res.Steps {
		assert.Equal(t, wantOrder[i], step.Step)
		assert.True(t, step.OK, "step %s", step.Step)
	}

	u := provider.User(testPhone)
	assert.False(t, u.Roles["guest"])
	assert.True(t, u.Roles["user"])
	assert.Equal(t, identity.UserTypeAuthenticated, u.Attributes["user_type"])
}

func TestLogin_RunTwiceConvergesToSameState(t *testing.T) {
	provider := idp.NewFakeProvider()
	svc := newTestService(provider, acceptAll)
	ctx := context.Background()

	first, err := svc.Login(ctx, testPhone, "123456")
	require.NoError(t, err)
	assert.Empty(t, first.Steps)

	second, err := svc.Login(ctx, testPhone, "123456")
	require.NoError(t, err)
	assert.Len(t, second.Steps, 4, "second login goes through the upgrade pipeline")

	assert.Equal(t, []string{"user"}, tokenRoles(t, second.Grant))
	u := provider.User(testPhone)
	assert.True(t, u.Roles["user"])
	assert.False(t, u.Roles["guest"])
	assert.Equal(t, identity.UserTypeAuthenticated, u.Attributes["user_type"])
}

func TestLogin_CreateConflictRetriesAsExisting(t *testing.T) {
	provider := idp.NewFakeProvider()
	provider.AddUser(testPhone, "guest")

	// Simulate losing the create race: the lookup misses, but creation
	// reports the user already there.
	lookups := 0
	provider.UserExistsFunc = func(_ context.Context, _ string) (bool, error) {
		lookups++
		return false, nil
	}

	svc := newTestService(provider, acceptAll)

	res, err := svc.Login(context.Background(), testPhone, "123456")
	require.NoError(t, err)

	assert.Equal(t, 1, lookups)
	assert.Equal(t, 1, provider.CallCount("CreateUser"))
	assert.Len(t, res.Steps, 4, "conflict falls through to the upgrade pipeline")
	assert.Equal(t, []string{"user"}, tokenRoles(t, res.Grant))
}

func TestLogin_MiddleStepFailuresAreRecordedNotFatal(t *testing.T) {
	provider := idp.NewFakeProvider()
	provider.AddUser(testPhone, "guest")
	provider.RemoveRoleFunc = func(_ context.Context, _ string, _ identity.Role) error {
		return errors.New("role mapping endpoint down")
	}

	svc := newTestService(provider, acceptAll)

	res, err := svc.Login(context.Background(), testPhone, "123456")
	require.NoError(t, err)

	byStep := map[string]UpgradeStepResult{}
	for _, s := range res.Steps {
		byStep[s.Step] = s
	}
	assert.False(t, byStep[StepRemoveGuestRole].OK)
	assert.Contains(t, byStep[StepRemoveGuestRole].Error, "role mapping endpoint down")
	assert.True(t, byStep[StepAssignUserRole].OK)
	assert.True(t, byStep[StepIssueToken].OK)
	assert.Equal(t, []string{"user"}, tokenRoles(t, res.Grant))
}

func TestLogin_MissingGuestRoleTolerated(t *testing.T) {
	provider := idp.NewFakeProvider()
	provider.AddUser(testPhone, "user") // already upgraded, no guest role

	svc := newTestService(provider, acceptAll)

	res, err := svc.Login(context.Background(), testPhone, "123456")
	require.NoError(t, err)
	for _, s := range res.Steps {
		assert.True(t, s.OK, "step %s", s.Step)
	}
}

func TestLogin_TokenIssueFailureIsTerminal(t *testing.T) {
	provider := idp.NewFakeProvider()
	provider.AddUser(testPhone, "guest")
	provider.IssueUserTokenFunc = func(_ context.Context, _ string) (identity.TokenGrant, error) {
		return identity.TokenGrant{}, &identity.IdPError{Code: "server_error", Status: 500}
	}

	svc := newTestService(provider, acceptAll)

	_, err := svc.Login(context.Background(), testPhone, "123456")
	require.Error(t, err)

	idpErr, ok := identity.AsIdPError(err)
	require.True(t, ok)
	assert.Equal(t, "server_error", idpErr.Code)
}

func TestRefresh(t *testing.T) {
	provider := idp.NewFakeProvider()
	svc := newTestService(provider, acceptAll)
	ctx := context.Background()

	guest, err := svc.GuestToken(ctx)
	require.NoError(t, err)

	grant, err := svc.Refresh(ctx, guest.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.AccessToken)
}

func TestRefresh_InvalidTokenSurfacesIdPError(t *testing.T) {
	svc := newTestService(idp.NewFakeProvider(), acceptAll)

	_, err := svc.Refresh(context.Background(), "stale")
	require.Error(t, err)

	idpErr, ok := identity.AsIdPError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid_grant", idpErr.Code)
}

func TestRefresh_PassesTokenThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	provider := mocks.NewMockIdentityProvider(ctrl)
	provider.EXPECT().
		Refresh(gomock.Any(), "refresh-abc").
		Return(identity.TokenGrant{AccessToken: "at", ExpiresIn: 300}, nil)

	svc := NewIdentityService(IdentityServiceOptions{
		Provider: provider,
		Verifier: idp.VerifierFunc(acceptAll),
	})

	grant, err := svc.Refresh(context.Background(), "refresh-abc")
	require.NoError(t, err)
	assert.Equal(t, "at", grant.AccessToken)
}

func TestRefresh_EmptyToken(t *testing.T) {
	svc := newTestService(idp.NewFakeProvider(), acceptAll)

	_, err := svc.Refresh(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))
}
