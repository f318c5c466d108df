package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// Key lookup errors.
var (
	ErrAlgorithmNotAllowed = errors.New("signing algorithm not allowed")
	ErrNoKey               = errors.New("no verification key available")
	ErrWeakSecret          = errors.New("hmac secret too short")
)

// keyProvider resolves verification keys at verify time. The HMAC secret can
// be swapped while requests are in flight; remote keys come from a jwk.Cache.
type keyProvider struct {
	algorithms []jwa.SignatureAlgorithm
	secret     atomic.Pointer[[]byte]
	cache      *jwk.Cache
	jwksURL    string
}

func newKeyProvider(ctx context.Context, cfg Config, algs []jwa.SignatureAlgorithm) (*keyProvider, error) {
	kp := &keyProvider{algorithms: algs}

	if cfg.JWKSURL == "" {
		return kp, nil
	}

	cache := jwk.NewCache(ctx)
	err := cache.Register(cfg.JWKSURL,
		jwk.WithMinRefreshInterval(cfg.JWKSRefreshInterval),
		jwk.WithHTTPClient(&http.Client{Timeout: cfg.JWKSFetchTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register jwks url: %w", err)
	}

	kp.cache = cache
	kp.jwksURL = cfg.JWKSURL
	return kp, nil
}

// setSecret replaces the HMAC secret.
func (kp *keyProvider) setSecret(secret []byte) error {
	if len(secret) < minHMACSecretLength {
		return fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, minHMACSecretLength, len(secret))
	}
	cp := slices.Clone(secret)
	kp.secret.Store(&cp)
	return nil
}

func (kp *keyProvider) hasSecret() bool {
	return kp.secret.Load() != nil
}

// FetchKeys implements jws.KeyProvider.
func (kp *keyProvider) FetchKeys(ctx context.Context, sink jws.KeySink, sig *jws.Signature, _ *jws.Message) error {
	headers := sig.ProtectedHeaders()
	alg := headers.Algorithm()

	if !slices.Contains(kp.algorithms, alg) {
		return fmt.Errorf("%w: %s", ErrAlgorithmNotAllowed, alg)
	}

	if isHMAC(alg) {
		secret := kp.secret.Load()
		if secret == nil {
			return ErrNoKey
		}
		sink.Key(alg, *secret)
		return nil
	}

	if kp.cache == nil {
		return ErrNoKey
	}

	set, err := kp.cache.Get(ctx, kp.jwksURL)
	if err != nil {
		return fmt.Errorf("failed to fetch jwks: %w", err)
	}

	if kid := headers.KeyID(); kid != "" {
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return fmt.Errorf("%w: kid %q", ErrNoKey, kid)
		}
		sink.Key(alg, key)
		return nil
	}

	for i := 0; i < set.Len(); i++ {
		if key, ok := set.Key(i); ok {
			sink.Key(alg, key)
		}
	}
	return nil
}

// refresh forces a fetch of the remote key set.
func (kp *keyProvider) refresh(ctx context.Context) error {
	if kp.cache == nil {
		return nil
	}
	_, err := kp.cache.Refresh(ctx, kp.jwksURL)
	return err
}
