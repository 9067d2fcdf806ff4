package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru"
)

// Verifier authenticates controller-only operations with HMAC-signed JWTs.
// The token subject must match the pool's controller account. Parsed subjects
// are cached by raw token together with the token's expiry, so repeated calls
// skip signature verification but an expired token never verifies from cache.
type Verifier struct {
	secret []byte
	cache  *lru.Cache
	logger *slog.Logger
	now    func() time.Time
}

// cacheEntry keeps the verified subject and the token's exp claim. A zero
// expiresAt means the token carries no exp and never ages out.
type cacheEntry struct {
	subject   string
	expiresAt time.Time
}

func NewVerifier(secret string, logger *slog.Logger) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	cache, err := lru.New(1024)
	if err != nil {
		return nil, fmt.Errorf("build token cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{secret: []byte(secret), cache: cache, logger: logger, now: time.Now}, nil
}

func (v *Verifier) VerifyController(_ context.Context, token string, controller string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainerrors.ErrIdentityRejected
	}

	entry, ok := v.cachedEntry(token)
	if ok && !entry.expiresAt.IsZero() && !v.now().Before(entry.expiresAt) {
		v.cache.Remove(token)
		ok = false
	}
	if !ok {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return v.secret, nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithTimeFunc(v.now))
		if err != nil || !parsed.Valid {
			v.logger.Warn("token rejected",
				"event", "identity_token_rejected",
				"module", "internal/platform/identity",
				"layer", "platform",
			)
			return domainerrors.ErrIdentityRejected
		}
		subject, err := parsed.Claims.GetSubject()
		if err != nil || subject == "" {
			return domainerrors.ErrIdentityRejected
		}
		entry = cacheEntry{subject: subject}
		if expiry, err := parsed.Claims.GetExpirationTime(); err == nil && expiry != nil {
			entry.expiresAt = expiry.Time
		}
		v.cache.Add(token, entry)
	}

	if entry.subject != strings.TrimSpace(controller) {
		return domainerrors.ErrIdentityRejected
	}
	return nil
}

func (v *Verifier) cachedEntry(token string) (cacheEntry, bool) {
	value, ok := v.cache.Get(token)
	if !ok {
		return cacheEntry{}, false
	}
	entry, ok := value.(cacheEntry)
	return entry, ok
}
