package api

import (
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const defaultSessionTTL = 24 * time.Hour

var (
	errMissingAuthorization = errors.New("missing Authorization header")
	errBadAuthorization     = errors.New("malformed Authorization header")
)

// Auth validates bearer session tokens. Two modes exist: HS256 with a shared
// secret (the demo's own OTP-issued sessions) and RS256 against a JWKS
// endpoint when an external identity provider fronts the API.
type Auth struct {
	jwks       *keyfunc.JWKS
	audience   string
	issuer     string
	secret     []byte
	parser     *jwt.Parser
	sessionTTL time.Duration
}

// NewAuth creates an Auth validating RS256 tokens against the given JWKS.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	return &Auth{
		jwks:     jwks,
		audience: audience,
		issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
	}
}

// NewLocalAuth creates an Auth that both issues and validates HS256 session
// tokens signed with secret.
func NewLocalAuth(secret []byte, issuer string) *Auth {
	if len(secret) == 0 {
		panic("api.NewLocalAuth: empty secret")
	}
	return &Auth{
		secret:     secret,
		issuer:     issuer,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		sessionTTL: defaultSessionTTL,
	}
}

// IssueSession mints a session token for distinctID. Only available in
// shared-secret mode; JWKS-backed deployments get their tokens from the IdP.
func (a *Auth) IssueSession(distinctID string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("session issuing requires shared-secret auth mode")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": distinctID,
		"iat": now.Unix(),
		"exp": now.Add(a.sessionTTL).Unix(),
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization
// header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errBadAuthorization
	}

	parsed, err := a.parser.Parse(parts[1], a.keyFor)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := time.Now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, false) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (a *Auth) keyFor(t *jwt.Token) (any, error) {
	if len(a.secret) > 0 {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	}
	if a.jwks == nil {
		return nil, errors.New("jwks not configured")
	}
	return a.jwks.Keyfunc(t)
}
