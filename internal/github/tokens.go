package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v82/github"
)

// tokenRefreshMargin is how long before expiry a cached installation token is
// considered stale. Installation tokens live for an hour; refreshing early
// avoids racing the expiry on slow requests.
const tokenRefreshMargin = 5 * time.Minute

// appTokenMinter signs short-lived App JWTs used to authenticate as the
// GitHub App itself (only the installation-token exchange needs these).
type appTokenMinter struct {
	appID int64
	key   *rsa.PrivateKey
	now   func() time.Time
}

// ParsePrivateKey parses the App's PEM-encoded RSA private key.
func ParsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}
	return key, nil
}

// mint produces an RS256 JWT per the GitHub App auth scheme. IssuedAt is
// backdated 60s to tolerate clock skew between us and GitHub.
func (m *appTokenMinter) mint() (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(m.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return token, nil
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// installationTokens exchanges App JWTs for installation access tokens and
// caches them per installation until near expiry.
type installationTokens struct {
	minter   *appTokenMinter
	exchange func(ctx context.Context, appJWT string, installationID int64) (*gh.InstallationToken, error)
	now      func() time.Time

	mu     sync.Mutex
	tokens map[int64]cachedToken
}

func newInstallationTokens(minter *appTokenMinter, exchange func(ctx context.Context, appJWT string, installationID int64) (*gh.InstallationToken, error)) *installationTokens {
	return &installationTokens{
		minter:   minter,
		exchange: exchange,
		now:      minter.now,
		tokens:   make(map[int64]cachedToken),
	}
}

// get returns a valid installation token, exchanging a fresh one when the
// cached token is missing or close to expiry.
func (t *installationTokens) get(ctx context.Context, installationID int64) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cached, ok := t.tokens[installationID]; ok {
		if t.now().Before(cached.expiresAt.Add(-tokenRefreshMargin)) {
			return cached.token, nil
		}
	}

	appJWT, err := t.minter.mint()
	if err != nil {
		return "", err
	}

	token, err := t.exchange(ctx, appJWT, installationID)
	if err != nil {
		return "", fmt.Errorf("create installation token for %d: %w", installationID, err)
	}

	t.tokens[installationID] = cachedToken{
		token:     token.GetToken(),
		expiresAt: token.GetExpiresAt().Time,
	}
	return token.GetToken(), nil
}

// invalidate drops a cached token, forcing the next call to exchange a fresh
// one. Called after an authentication failure.
func (t *installationTokens) invalidate(installationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tokens, installationID)
}
