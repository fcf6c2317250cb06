package sessionware

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// SigningKey holds information about a statically provided verification key.
type SigningKey struct {
	// JWTAlg is the algorithm the key verifies, e.g. "RS256". When set,
	// tokens claiming a different algorithm are rejected.
	JWTAlg string
	// Key is the verification key: []byte for HMAC, a public key otherwise.
	Key any
}

// JWKSConfig configures a JWKSValidator. At least one of KeyFunc,
// JWKSetURLs, SigningKeys, or SigningKey must be set.
type JWKSConfig struct {
	// SigningKey is a single static key without a kid.
	SigningKey SigningKey
	// SigningKeys maps kid values to static keys.
	SigningKeys map[string]SigningKey
	// JWKSetURLs are remote JWK set endpoints, refreshed in the background.
	JWKSetURLs []string
	// KeyFunc overrides all key sources when provided.
	KeyFunc jwt.Keyfunc

	// Issuer, when set, is required to match the token's iss claim.
	Issuer string
	// Audience, when set, is required to intersect the token's aud claim.
	Audience []string
}

// JWKSValidator validates bearer tokens issued by an external identity
// provider. It satisfies TokenValidator so it can back the bearer path of
// the session middleware.
type JWKSValidator struct {
	keyFunc       jwt.Keyfunc
	parserOptions []jwt.ParserOption
}

// NewJWKSValidator builds a validator from the configured key sources.
func NewJWKSValidator(cfg JWKSConfig) (*JWKSValidator, error) {
	kf := cfg.KeyFunc

	if kf == nil {
		if len(cfg.SigningKeys) > 0 || len(cfg.JWKSetURLs) > 0 {
			var givenKeys map[string]keyfunc.GivenKey
			if cfg.SigningKeys != nil {
				givenKeys = make(map[string]keyfunc.GivenKey, len(cfg.SigningKeys))
				for kid, key := range cfg.SigningKeys {
					givenKeys[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{
						Algorithm: key.JWTAlg,
					})
				}
			}
			if len(cfg.JWKSetURLs) > 0 {
				var err error
				kf, err = multiKeyfunc(givenKeys, cfg.JWKSetURLs)
				if err != nil {
					return nil, err
				}
			} else {
				kf = keyfunc.NewGiven(givenKeys).Keyfunc
			}
		} else if cfg.SigningKey.Key != nil {
			kf = signingKeyFunc(cfg.SigningKey)
		}
	}

	if kf == nil {
		return nil, errors.New("sessionware: JWKS validator requires at least one of: KeyFunc, JWKSetURLs, SigningKeys, or SigningKey")
	}

	parserOptions := make([]jwt.ParserOption, 0, 2)
	if cfg.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(cfg.Issuer))
	}
	if len(cfg.Audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(cfg.Audience...))
	}

	return &JWKSValidator{
		keyFunc:       kf,
		parserOptions: parserOptions,
	}, nil
}

// Validate parses and verifies an externally issued bearer token.
func (v *JWKSValidator) Validate(tokenString string) (AuthClaims, error) {
	claims := &externalClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, v.parserOptions...)
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("sessionware: invalid token")
	}

	return claims, nil
}

func multiKeyfunc(givenKeys map[string]keyfunc.GivenKey, jwkSetURLs []string) (jwt.Keyfunc, error) {
	opts := keyfuncOptions(givenKeys)
	m := make(map[string]keyfunc.Options, len(jwkSetURLs))
	for _, url := range jwkSetURLs {
		m[url] = opts
	}
	mopts := keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	}
	multi, err := keyfunc.GetMultiple(m, mopts)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWK set URLs: %w", err)
	}
	return multi.Keyfunc, nil
}

func keyfuncOptions(givenKeys map[string]keyfunc.GivenKey) keyfunc.Options {
	return keyfunc.Options{
		GivenKeys: givenKeys,
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWK set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
}

func signingKeyFunc(key SigningKey) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if key.JWTAlg != "" {
			alg, ok := token.Header["alg"].(string)
			if !ok {
				return nil, fmt.Errorf("unexpected JWT signing method: expected %q got: missing json type", key.JWTAlg)
			}
			if alg != key.JWTAlg {
				return nil, fmt.Errorf("unexpected JWT signing method: expected %q got %q", key.JWTAlg, alg)
			}
		}
		return key.Key, nil
	}
}

// externalClaims mirror the session claim fields so tokens minted by an
// identity provider resolve through the same authorization checks.
type externalClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid"`
	Account  string `json:"acct,omitempty"`
	UserRole string `json:"role,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

func (c *externalClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

func (c *externalClaims) AccountID() string { return c.Account }

func (c *externalClaims) Role() string { return c.UserRole }

func (c *externalClaims) EmailVerified() bool { return c.Verified }

func (c *externalClaims) Impersonating() bool { return false }

func (c *externalClaims) ActingAdminID() string { return "" }

func (c *externalClaims) HasRole(role string) bool { return c.UserRole == role }

func (c *externalClaims) IsAtLeast(minRole string) bool {
	return roleLevel(c.UserRole) >= roleLevel(minRole) && roleLevel(minRole) >= 0
}

// roleLevel orders the built-in roles. Unknown roles rank below everything.
func roleLevel(role string) int {
	switch role {
	case "user":
		return 0
	case "member":
		return 1
	case "admin":
		return 2
	case "owner":
		return 3
	default:
		return -1
	}
}
