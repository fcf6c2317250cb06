package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultVerificationMaxAge bounds how old a verification token may be.
const DefaultVerificationMaxAge = 3 * 24 * time.Hour

// VerificationClaims is the self-contained payload of an email verification
// link: no storage round-trip is needed to check it.
type VerificationClaims struct {
	jwt.RegisteredClaims
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// UserID returns the subject user id.
func (c *VerificationClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.UID)
}

// AccessClaims are bearer-token claims for machine callers. They mirror the
// fields a session would hold so API requests and browser requests resolve
// through the same guards.
type AccessClaims struct {
	jwt.RegisteredClaims
	UID      string   `json:"uid"`
	Account  string   `json:"acct,omitempty"`
	UserRole string   `json:"role,omitempty"`
	Verified bool     `json:"verified,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
}

// UserID returns the user id claim, falling back to the subject.
func (c *AccessClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// AccountID returns the account id claim.
func (c *AccessClaims) AccountID() string { return c.Account }

// Role returns the role claim.
func (c *AccessClaims) Role() string { return c.UserRole }

// EmailVerified returns the verified flag.
func (c *AccessClaims) EmailVerified() bool { return c.Verified }

// Impersonating is always false for bearer tokens; impersonation is a
// session-only mechanism.
func (c *AccessClaims) Impersonating() bool { return false }

// ActingAdminID is empty for bearer tokens.
func (c *AccessClaims) ActingAdminID() string { return "" }

// HasRole checks the role claim for an exact match.
func (c *AccessClaims) HasRole(role string) bool { return c.UserRole == role }

// IsAtLeast checks the role claim against the role hierarchy.
func (c *AccessClaims) IsAtLeast(minRole string) bool {
	return UserRole(c.UserRole).IsAtLeast(UserRole(minRole))
}

// TokenService signs and verifies the package's tokens: verification links
// and machine bearer tokens. HMAC only; asymmetric verification of external
// tokens goes through middleware/sessionware JWKS support instead.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, issuer string, audience []string, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	var aud jwt.ClaimStrings
	if len(audience) > 0 {
		aud = make(jwt.ClaimStrings, len(audience))
		copy(aud, audience)
	}
	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   aud,
		logger:     logger,
	}
}

// MintVerificationToken issues a signed, time-limited token binding the
// user's id and current email address.
func (ts *TokenService) MintVerificationToken(user *User, maxAge time.Duration) (string, error) {
	if user == nil {
		return "", errors.New("user is required", errors.CategoryBadInput)
	}
	if maxAge <= 0 {
		maxAge = DefaultVerificationMaxAge
	}

	now := time.Now()
	claims := &VerificationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(maxAge)),
			ID:        uuid.NewString(),
		},
		UID:   user.ID.String(),
		Email: user.Email,
	}

	return ts.sign(claims)
}

// ReadVerificationToken parses and verifies a token string. Failures are
// distinguishable: ErrTokenExpired for a correctly signed token past maxAge,
// ErrTokenBadSignature for tampering or a wrong key, ErrTokenMalformed for
// anything that does not parse. Accepting a token twice is harmless; callers
// own idempotency of the state change.
func (ts *TokenService) ReadVerificationToken(tokenString string, maxAge time.Duration) (*VerificationClaims, error) {
	if maxAge <= 0 {
		maxAge = DefaultVerificationMaxAge
	}

	claims := &VerificationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, ts.keyFunc, ts.parserOptions()...)
	if err != nil {
		return nil, mapTokenError(err)
	}

	if !token.Valid {
		return nil, ErrTokenBadSignature
	}

	if claims.RegisteredClaims.IssuedAt == nil {
		return nil, ErrTokenMalformed
	}

	if time.Since(claims.RegisteredClaims.IssuedAt.Time) > maxAge {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

// MintAccessToken issues a bearer token for machine callers.
func (ts *TokenService) MintAccessToken(user *User, ttl time.Duration, scopes ...string) (string, error) {
	if user == nil {
		return "", errors.New("user is required", errors.CategoryBadInput)
	}
	if ttl <= 0 {
		return "", errors.New("token TTL must be positive", errors.CategoryBadInput)
	}

	now := time.Now()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UID:      user.ID.String(),
		Account:  user.AccountID.String(),
		UserRole: string(user.Role),
		Verified: user.EmailVerified,
	}
	if len(scopes) > 0 {
		claims.Scopes = append([]string(nil), scopes...)
	}

	return ts.sign(claims)
}

// ValidateAccessToken parses and validates a bearer token string.
func (ts *TokenService) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, ts.keyFunc, ts.parserOptions()...)
	if err != nil {
		return nil, mapTokenError(err)
	}

	if !token.Valid {
		return nil, ErrTokenBadSignature
	}

	return claims, nil
}

func (ts *TokenService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signedString, nil
}

func (ts *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		ts.logger.Error("TokenService encountered unexpected signing method", "alg", t.Header["alg"])
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return ts.signingKey, nil
}

func (ts *TokenService) parserOptions() []jwt.ParserOption {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}
	return parserOptions
}

// mapTokenError folds golang-jwt errors into the package's distinguishable
// failure kinds. Signature failures win over everything else so a tampered
// token never reads as merely expired.
func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}
