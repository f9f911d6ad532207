package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"campspots/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/crypto/bcrypt"
)

// Permissions checked by operator routes.
const (
	PermReadReservations  = "read:reservations"
	PermWriteReservations = "write:reservations"
	PermReadCatalog       = "read:catalog"
	PermWriteCatalog      = "write:catalog"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	tokenIssuer           = "campspots"
	roleOperator          = "operator"
)

var (
	errUnauthenticated  = errors.New("authentication required")
	errPermissionDenied = errors.New("permission denied")
	errBadCredentials   = errors.New("invalid username or password")
	errLoginDisabled    = errors.New("operator login is not configured")
)

// Principal is the authenticated caller of an operator route.
type Principal struct {
	Name string
	// Permissions empty means every permission.
	Permissions []string
}

func (p *Principal) can(permission string) bool {
	if len(p.Permissions) == 0 {
		return true
	}
	for _, granted := range p.Permissions {
		if strings.TrimSpace(granted) == permission {
			return true
		}
	}
	return false
}

type operatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// HTTPAuth authenticates operator routes by API key headers or by a Bearer
// token issued from the operator login.
type HTTPAuth struct {
	cfg     config.APIAuthConfig
	admin   config.AdminConfig
	clients map[string]config.APIClientKey
	now     func() time.Time
}

func NewHTTPAuth(cfg config.APIAuthConfig, admin config.AdminConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, admin: admin, clients: m, now: time.Now}
}

// Require wraps next so it runs only for callers holding permission.
func (a *HTTPAuth) Require(permission string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !a.cfg.Enabled {
			next(w, r, ps)
			return
		}

		principal, err := a.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !principal.can(permission) {
			requestLogger(r).Warn().Str("principal", principal.Name).Str("permission", permission).Msg("permission denied")
			writeError(w, http.StatusForbidden, errPermissionDenied.Error())
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyPrincipal, principal)), ps)
	}
}

func (a *HTTPAuth) authenticate(r *http.Request) (*Principal, error) {
	if raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return a.ParseToken(strings.TrimSpace(raw))
	}

	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.TrimSpace(strings.ToLower(a.cfg.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return nil, errUnauthenticated
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return nil, fmt.Errorf("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return nil, fmt.Errorf("invalid extra header")
	}

	name := client.Name
	if name == "" {
		name = "api-key"
	}
	return &Principal{Name: name, Permissions: client.Permissions}, nil
}

// Login checks operator credentials and issues a signed token.
func (a *HTTPAuth) Login(username, password string) (string, time.Time, error) {
	if a.admin.PasswordHash == "" || a.admin.JWTSecret == "" {
		return "", time.Time{}, errLoginDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(a.admin.Username), []byte(username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(a.admin.PasswordHash), []byte(password))
	if !userOK || passErr != nil {
		return "", time.Time{}, errBadCredentials
	}
	return a.IssueToken(username)
}

func (a *HTTPAuth) IssueToken(username string) (string, time.Time, error) {
	now := a.now().UTC()
	exp := now.Add(a.admin.TokenTTL)
	claims := operatorClaims{
		Role: roleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.admin.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken validates an operator token. Operators hold every permission.
func (a *HTTPAuth) ParseToken(raw string) (*Principal, error) {
	if a.admin.JWTSecret == "" {
		return nil, errLoginDisabled
	}

	var claims operatorClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(a.admin.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role != roleOperator {
		return nil, errPermissionDenied
	}
	return &Principal{Name: claims.Subject}, nil
}

// HashPassword produces the bcrypt hash stored in admin.password_hash.
func HashPassword(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("password is empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func principalFrom(ctx context.Context) *Principal {
	if p, ok := ctx.Value(ctxKeyPrincipal).(*Principal); ok {
		return p
	}
	return &Principal{Name: "anonymous"}
}
