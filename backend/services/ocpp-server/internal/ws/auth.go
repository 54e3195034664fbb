package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"evgrid/backend/services/ocpp-server/internal/models"
)

// ErrUnauthorized is returned when a station presents no or wrong credentials.
var ErrUnauthorized = errors.New("ws: unauthorized")

// StationClaims is the payload of a station bearer token.
type StationClaims struct {
	StationID string `json:"station_id"`
	TenantID  string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// CredentialStore reads station passwords.
type CredentialStore interface {
	ReadSecurityInfo(ctx context.Context, stationID string) (*models.StationSecurityInfo, error)
}

// AuthConfig selects the accepted credentials. With no secret and BasicAuth off every
// station is accepted.
type AuthConfig struct {
	JWTSecret     string
	BasicAuth     bool
	DefaultTenant string
}

// Identity is an authenticated station.
type Identity struct {
	StationID string
	TenantID  string
}

// Authenticator checks station credentials on the upgrade request.
type Authenticator struct {
	cfg         AuthConfig
	credentials CredentialStore
}

func NewAuthenticator(cfg AuthConfig, credentials CredentialStore) *Authenticator {
	return &Authenticator{cfg: cfg, credentials: credentials}
}

// Authenticate resolves the station identity of r. stationID comes from the URL and may be
// empty when a bearer token names the station.
func (a *Authenticator) Authenticate(r *http.Request, stationID string) (Identity, error) {
	id := Identity{StationID: stationID}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, credential, _ := strings.Cut(header, " ")

	switch {
	case header == "":
		if a.cfg.JWTSecret != "" || a.cfg.BasicAuth {
			return Identity{}, ErrUnauthorized
		}
	case strings.EqualFold(scheme, "Bearer") && a.cfg.JWTSecret != "":
		claims, err := a.parseToken(strings.TrimSpace(credential))
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		if id.StationID == "" {
			id.StationID = claims.StationID
		}
		if claims.StationID != id.StationID {
			return Identity{}, fmt.Errorf("%w: token issued for another station", ErrUnauthorized)
		}
		id.TenantID = claims.TenantID
	case strings.EqualFold(scheme, "Basic") && a.cfg.BasicAuth:
		tenant, err := a.checkPassword(r, id.StationID)
		if err != nil {
			return Identity{}, err
		}
		id.TenantID = tenant
	default:
		return Identity{}, fmt.Errorf("%w: unsupported authorization scheme", ErrUnauthorized)
	}

	if id.StationID == "" {
		return Identity{}, errors.New("ws: station id is required")
	}
	if id.TenantID == "" {
		id.TenantID = r.URL.Query().Get("tenant_id")
	}
	if id.TenantID == "" {
		id.TenantID = a.cfg.DefaultTenant
	}
	return id, nil
}

func (a *Authenticator) parseToken(raw string) (*StationClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &StationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*StationClaims)
	if !ok || !token.Valid || claims.StationID == "" {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// checkPassword verifies HTTP Basic credentials where the user name is the station id.
func (a *Authenticator) checkPassword(r *http.Request, stationID string) (string, error) {
	user, password, ok := r.BasicAuth()
	if !ok || stationID == "" || user != stationID {
		return "", ErrUnauthorized
	}
	if a.credentials == nil {
		return "", fmt.Errorf("%w: no credential store", ErrUnauthorized)
	}

	info, err := a.credentials.ReadSecurityInfo(r.Context(), stationID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if info.PasswordHash == "" {
		return "", fmt.Errorf("%w: no password registered", ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(info.PasswordHash), []byte(password)); err != nil {
		return "", ErrUnauthorized
	}
	return info.TenantID, nil
}
