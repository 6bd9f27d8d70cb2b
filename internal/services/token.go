package services

import (
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleRespondent Role = "respondent"
	RoleAdmin      Role = "admin"
)

const (
	// RespondentTokenMaxAge bounds how long a respondent token stays valid.
	RespondentTokenMaxAge = 24 * time.Hour
	// AdminTokenMaxAge bounds administrator tokens.
	AdminTokenMaxAge = 8 * time.Hour

	// DefaultTokenSecret keeps a dev checkout running when no secret is
	// configured.
	DefaultTokenSecret = "reflekt-dev-secret"
)

// TokenClaims is the claim shape carried by every bearer token: identity,
// role tag and issuance time. Validity is a function of issuance time and
// the caller-supplied max age, not of an exp claim.
type TokenClaims struct {
	Identifier string `json:"uid"`
	Role       Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HMAC-signed bearer tokens. There is
// no server-side token state and no revocation list; a captured token
// stays decodable until it ages out.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

func NewTokenService(secret string) *TokenService {
	if strings.TrimSpace(secret) == "" {
		secret = DefaultTokenSecret
	}
	return &TokenService{
		secret: []byte(secret),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenService) Issue(identifier string, role Role) (string, error) {
	if strings.TrimSpace(identifier) == "" {
		return "", NewInvalidError("identifier required")
	}
	claims := TokenClaims{
		Identifier: identifier,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate decodes a token and rejects it when the signature is wrong,
// the shape is off, or now minus issued-at exceeds maxAge.
func (s *TokenService) Validate(token string, maxAge time.Duration) (*TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{},
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, NewUnauthorizedError("invalid token")
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid || claims.Identifier == "" || claims.IssuedAt == nil {
		return nil, NewUnauthorizedError("invalid token")
	}
	if s.now().Sub(claims.IssuedAt.Time) > maxAge {
		return nil, NewUnauthorizedError("token expired")
	}
	return claims, nil
}

// MaxAgeFor maps a role to its expiry policy.
func MaxAgeFor(role Role) time.Duration {
	if role == RoleAdmin {
		return AdminTokenMaxAge
	}
	return RespondentTokenMaxAge
}
