// Package auth produces GitHub App installation tokens so the pipeline can
// act as an app instead of a personal account.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v57/github"
)

// appJWTTTL is the app JWT lifetime. GitHub caps it at 10 minutes.
const appJWTTTL = 9 * time.Minute

// renewMargin refreshes installation tokens this long before expiry.
const renewMargin = 5 * time.Minute

var (
	// ErrPrivateKeyInvalid indicates the App private key failed to parse.
	ErrPrivateKeyInvalid = errors.New("invalid GitHub App private key")

	// ErrNoInstallation indicates the app is not installed on the org.
	ErrNoInstallation = errors.New("app has no installation for organization")
)

// AppConfig identifies a GitHub App installation.
type AppConfig struct {
	// AppID is the numeric GitHub App ID.
	AppID int64

	// InstallationID is the installation on the target organization.
	InstallationID int64

	// PrivateKeyPEM is the App's RSA private key in PEM form.
	PrivateKeyPEM []byte
}

// LoadAppConfig reads the private key from a file.
func LoadAppConfig(appID, installationID int64, keyPath string) (AppConfig, error) {
	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read private key: %w", err)
	}
	return AppConfig{
		AppID:          appID,
		InstallationID: installationID,
		PrivateKeyPEM:  pem,
	}, nil
}

// AppTokenSource mints and caches installation tokens. Safe for
// concurrent use.
type AppTokenSource struct {
	cfg AppConfig
	key *rsa.PrivateKey

	mu      sync.Mutex
	token   string
	expires time.Time

	// now is stubbed in tests.
	now func() time.Time
}

// NewAppTokenSource parses the key and prepares a token source.
func NewAppTokenSource(cfg AppConfig) (*AppTokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKeyInvalid, err)
	}
	return &AppTokenSource{
		cfg: cfg,
		key: key,
		now: time.Now,
	}, nil
}

// Token returns a valid installation token, minting a fresh one when the
// cached token is near expiry.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Add(renewMargin).Before(s.expires) {
		return s.token, nil
	}

	appJWT, err := s.signAppJWT()
	if err != nil {
		return "", err
	}

	client := github.NewClient(&http.Client{
		Transport: &bearerTransport{token: appJWT},
		Timeout:   30 * time.Second,
	})

	instToken, resp, err := client.Apps.CreateInstallationToken(ctx, s.cfg.InstallationID, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: installation %d", ErrNoInstallation, s.cfg.InstallationID)
		}
		return "", fmt.Errorf("create installation token: %w", err)
	}

	s.token = instToken.GetToken()
	s.expires = instToken.GetExpiresAt().Time
	return s.token, nil
}

// signAppJWT builds the short-lived RS256 JWT GitHub requires for app
// endpoints. IssuedAt is backdated one minute to absorb clock skew.
func (s *AppTokenSource) signAppJWT() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    fmt.Sprintf("%d", s.cfg.AppID),
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return signed, nil
}

// bearerTransport adds the app JWT to each request.
type bearerTransport struct {
	token string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(clone)
}
