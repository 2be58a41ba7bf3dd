package keycloak

// Package keycloak implements the IdentityProvider port against a Keycloak
// realm: form-encoded grants on the realm token endpoint and JSON calls on
// the admin REST API.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/phonegate/phonegate/internal/domain/identity"
)

const defaultTimeout = 10 * time.Second

// Config holds immutable Keycloak connection settings, supplied once at
// process start.
type Config struct {
	// BaseURL is the Keycloak root, e.g. "http://keycloak:8080".
	BaseURL string
	// Realm is the realm holding phone-keyed users.
	Realm string
	// ClientID / ClientSecret identify this service's confidential client.
	ClientID     string
	ClientSecret string

	// AdminUser / AdminPassword authenticate against the master realm's
	// admin-cli client; used only for user creation.
	AdminUser     string
	AdminPassword string

	// UserSecret is the fixed credential recorded on every phone-keyed user.
	// Password login never carries real secrets; authentication happens
	// through the one-time-code gate, and this value only satisfies the
	// IdP's password-grant machinery.
	UserSecret string

	// GuestUsername / GuestSecret identify the shared guest account.
	GuestUsername string
	GuestSecret   string

	// DiscoveryURL optionally points at the realm's OIDC discovery document.
	// When set, the token endpoint is discovered instead of derived from
	// BaseURL and Realm.
	DiscoveryURL string

	// HTTPClient is the transport for all IdP calls. Defaults to a client
	// with a bounded timeout; a call exceeding it is an IdPError like any
	// other transport failure.
	HTTPClient *http.Client
	Timeout    time.Duration

	Logger *slog.Logger
}

// Client is a stateless Keycloak client. Every operation acquires its own
// bearer credential first, so instances are safe to share across requests.
type Client struct {
	cfg           Config
	httpClient    *http.Client
	tokenURL      string
	adminTokenURL string
	adminBase     string
	logger        *slog.Logger
}

// NewClient validates the configuration and resolves endpoint URLs, via OIDC
// discovery when a discovery URL is configured.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("keycloak base URL is required")
	}
	if cfg.Realm == "" {
		return nil, errors.New("keycloak realm is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("keycloak client credentials are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	c := &Client{
		cfg:           cfg,
		httpClient:    httpClient,
		tokenURL:      base + "/realms/" + cfg.Realm + "/protocol/openid-connect/token",
		adminTokenURL: base + "/realms/master/protocol/openid-connect/token",
		adminBase:     base + "/admin/realms/" + cfg.Realm,
		logger:        logger,
	}

	if cfg.DiscoveryURL != "" {
		tokenURL, err := discoverTokenEndpoint(gooidc.ClientContext(ctx, httpClient), cfg.DiscoveryURL)
		if err != nil {
			return nil, fmt.Errorf("discover token endpoint: %w", err)
		}
		c.tokenURL = tokenURL
	}

	return c, nil
}

// discoverTokenEndpoint resolves the realm token endpoint from its OIDC
// discovery document.
func discoverTokenEndpoint(ctx context.Context, discoveryURL string) (string, error) {
	issuer := strings.TrimSuffix(discoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", err
	}
	return provider.Endpoint().TokenURL, nil
}

// oauthCtx routes oauth2 token calls through the client's HTTP transport.
func (c *Client) oauthCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) realmConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.tokenURL},
		Scopes:       []string{"openid"},
	}
}

// IssueUserToken issues a password-grant token for the phone's username.
func (c *Client) IssueUserToken(ctx context.Context, phone string) (identity.TokenGrant, error) {
	return c.passwordGrant(ctx, identity.NormalizePhone(phone), c.cfg.UserSecret)
}

// IssueGuestToken issues a password-grant token for the shared guest account.
func (c *Client) IssueGuestToken(ctx context.Context) (identity.TokenGrant, error) {
	return c.passwordGrant(ctx, c.cfg.GuestUsername, c.cfg.GuestSecret)
}

func (c *Client) passwordGrant(ctx context.Context, username, password string) (identity.TokenGrant, error) {
	tok, err := c.realmConfig().PasswordCredentialsToken(c.oauthCtx(ctx), username, password)
	if err != nil {
		return identity.TokenGrant{}, asIdPError(err)
	}
	return toGrant(tok), nil
}

// Refresh exchanges a refresh token for a fresh grant. An expired or invalid
// refresh token surfaces as the IdP's own error; falling back to a guest
// token is the caller's retry policy, not this client's.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (identity.TokenGrant, error) {
	src := c.realmConfig().TokenSource(c.oauthCtx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return identity.TokenGrant{}, asIdPError(err)
	}
	return toGrant(tok), nil
}

// serviceToken acquires a client-credentials token for admin-style lookups.
func (c *Client) serviceToken(ctx context.Context) (string, error) {
	conf := &clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.tokenURL,
	}
	tok, err := conf.Token(c.oauthCtx(ctx))
	if err != nil {
		return "", asIdPError(err)
	}
	return tok.AccessToken, nil
}

// adminToken acquires a resource-owner-password token for the master realm
// admin account. Only user creation needs it.
func (c *Client) adminToken(ctx context.Context) (string, error) {
	conf := &oauth2.Config{
		ClientID: "admin-cli",
		Endpoint: oauth2.Endpoint{TokenURL: c.adminTokenURL},
	}
	tok, err := conf.PasswordCredentialsToken(c.oauthCtx(ctx), c.cfg.AdminUser, c.cfg.AdminPassword)
	if err != nil {
		return "", asIdPError(err)
	}
	return tok.AccessToken, nil
}

// toGrant converts an oauth2 token into the transient grant shape returned
// to callers.
func toGrant(tok *oauth2.Token) identity.TokenGrant {
	expiresIn := tok.ExpiresIn
	if expiresIn == 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return identity.TokenGrant{
		AccessToken:  tok.AccessToken,
		ExpiresIn:    expiresIn,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
	}
}

// asIdPError maps oauth2 failures onto IdPError, preserving the IdP's
// error and error_description fields when present.
func asIdPError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		idpErr := &identity.IdPError{
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
		}
		if re.Response != nil {
			idpErr.Status = re.Response.StatusCode
		}
		if idpErr.Code == "" {
			idpErr.Code = "invalid_response"
			idpErr.Description = strings.TrimSpace(string(re.Body))
		}
		return idpErr
	}
	return &identity.IdPError{Code: "idp_unreachable", Description: err.Error()}
}
