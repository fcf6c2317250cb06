package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SessionConfig is the concrete Config implementation. Values load from an
// optional YAML file with AUTH_* environment variables layered on top.
type SessionConfig struct {
	SigningKey              string   `koanf:"signing_key"`
	SigningMethod           string   `koanf:"signing_method"`
	ContextKey              string   `koanf:"context_key"`
	SessionCookieName       string   `koanf:"session_cookie_name"`
	SessionDuration         int      `koanf:"session_duration"`
	ExtendedSessionDuration int      `koanf:"extended_session_duration"`
	TokenLookup             string   `koanf:"token_lookup"`
	AuthScheme              string   `koanf:"auth_scheme"`
	Issuer                  string   `koanf:"issuer"`
	Audience                []string `koanf:"audience"`
	RejectedRouteKey        string   `koanf:"rejected_route_key"`
	RejectedRouteDefault    string   `koanf:"rejected_route_default"`
	LoginPath               string   `koanf:"login_path"`
	VerifyNoticePath        string   `koanf:"verify_notice_path"`
	PaidPlans               []string `koanf:"paid_plans"`
	RequireVerifiedEmail    bool     `koanf:"require_verified_email"`
}

var _ Config = (*SessionConfig)(nil)

// NewDefaultConfig returns a config with every knob at its default. The
// signing key has no default on purpose.
func NewDefaultConfig() *SessionConfig {
	return &SessionConfig{
		SigningMethod:           "HS256",
		ContextKey:              "user",
		SessionCookieName:       "session_id",
		SessionDuration:         24,
		ExtendedSessionDuration: 24 * 30,
		TokenLookup:             "header:Authorization",
		AuthScheme:              "Bearer",
		RejectedRouteKey:        "rejected_route",
		RejectedRouteDefault:    "/",
		LoginPath:               "/login",
		VerifyNoticePath:        "/verify-notice",
		PaidPlans:               DefaultPaidPlans(),
	}
}

// LoadConfig reads configuration from the given YAML file (optional, pass an
// empty path to skip) and from AUTH_* environment variables. Nested keys use
// a double underscore in the environment, e.g. AUTH_SESSION_COOKIE_NAME maps
// to session_cookie_name.
func LoadConfig(path string) (*SessionConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrap(err, errors.CategoryOperation, "failed to load config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	err := k.Load(env.Provider("AUTH_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "AUTH_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to load environment config")
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the parts that have no safe default.
func (c *SessionConfig) Validate() error {
	if c.SigningKey == "" {
		return errors.New("signing key is required", errors.CategoryValidation).
			WithTextCode("MISSING_SIGNING_KEY")
	}

	if c.SessionDuration <= 0 {
		return errors.New("session duration must be positive", errors.CategoryValidation)
	}

	return nil
}

func (c *SessionConfig) GetSigningKey() string           { return c.SigningKey }
func (c *SessionConfig) GetSigningMethod() string        { return c.SigningMethod }
func (c *SessionConfig) GetContextKey() string           { return c.ContextKey }
func (c *SessionConfig) GetSessionCookieName() string    { return c.SessionCookieName }
func (c *SessionConfig) GetSessionDuration() int         { return c.SessionDuration }
func (c *SessionConfig) GetExtendedSessionDuration() int { return c.ExtendedSessionDuration }
func (c *SessionConfig) GetTokenLookup() string          { return c.TokenLookup }
func (c *SessionConfig) GetAuthScheme() string           { return c.AuthScheme }
func (c *SessionConfig) GetIssuer() string               { return c.Issuer }
func (c *SessionConfig) GetAudience() []string           { return c.Audience }
func (c *SessionConfig) GetRejectedRouteKey() string     { return c.RejectedRouteKey }
func (c *SessionConfig) GetRejectedRouteDefault() string { return c.RejectedRouteDefault }
func (c *SessionConfig) GetLoginPath() string            { return c.LoginPath }
func (c *SessionConfig) GetVerifyNoticePath() string     { return c.VerifyNoticePath }
func (c *SessionConfig) GetPaidPlans() []string          { return c.PaidPlans }
func (c *SessionConfig) GetRequireVerifiedEmail() bool   { return c.RequireVerifiedEmail }
