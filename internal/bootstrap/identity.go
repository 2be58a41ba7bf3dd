package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/phonegate/phonegate/config"
	"github.com/phonegate/phonegate/internal/adapters/keycloak"
	"github.com/phonegate/phonegate/internal/adapters/redisotp"
	"github.com/phonegate/phonegate/internal/adapters/smslog"
	"github.com/phonegate/phonegate/internal/adapters/staticcode"
	"github.com/phonegate/phonegate/internal/ports"
	"github.com/phonegate/phonegate/internal/service"
	"github.com/phonegate/phonegate/internal/token"
)

// Services bundles the wired application components.
type Services struct {
	Identity *service.IdentityService
	Decoder  *token.Decoder

	// Redis is non-nil only in redis code mode; the caller closes it on
	// shutdown.
	Redis redis.UniversalClient
}

// BuildServices wires adapters into the identity service according to
// configuration.
func BuildServices(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Services, error) {
	provider, err := keycloak.NewClient(ctx, keycloak.Config{
		BaseURL:       cfg.Keycloak.BaseURL,
		Realm:         cfg.Keycloak.Realm,
		ClientID:      cfg.Keycloak.ClientID,
		ClientSecret:  cfg.Keycloak.ClientSecret,
		AdminUser:     cfg.Keycloak.AdminUser,
		AdminPassword: cfg.Keycloak.AdminPassword,
		UserSecret:    cfg.Keycloak.UserSecret,
		GuestUsername: cfg.Keycloak.GuestUsername,
		GuestSecret:   cfg.Keycloak.GuestSecret,
		DiscoveryURL:  cfg.Keycloak.DiscoveryURL,
		Timeout:       cfg.Keycloak.Timeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build keycloak client: %w", err)
	}

	verifier, issuer, redisClient, err := buildCodeStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	decoder, err := token.NewDecoder(token.DecoderOptions{
		RolePaths:    cfg.Claims.RolePaths,
		SubjectClaim: cfg.Claims.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("build token decoder: %w", err)
	}

	identitySvc := service.NewIdentityService(service.IdentityServiceOptions{
		Provider: provider,
		Verifier: verifier,
		Issuer:   issuer,
		Sender:   smslog.New(logger),
		Logger:   logger,
	})

	return &Services{
		Identity: identitySvc,
		Decoder:  decoder,
		Redis:    redisClient,
	}, nil
}

// buildCodeStore selects the one-time code backend from configuration.
func buildCodeStore(
	cfg *config.AppConfig,
	logger *slog.Logger,
) (ports.CodeVerifier, ports.CodeIssuer, redis.UniversalClient, error) {
	switch cfg.Code.Mode {
	case config.CodeModeRedis:
		client, err := ConnectRedis(RedisOptions{Config: cfg.Redis, Logger: logger})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		store := redisotp.NewStoreWithOptions(client, cfg.Code.KeyPrefix, cfg.Code.TTL)
		return store, store, client, nil

	case config.CodeModeStatic:
		fallthrough
	default:
		if !cfg.IsDev {
			logger.Warn("static login code mode active outside dev; every login accepts the configured code")
		}
		verifier, err := staticcode.New(cfg.Code.Static.Code, cfg.Code.Static.Phone)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("build static code verifier: %w", err)
		}
		return verifier, verifier, nil, nil
	}
}
