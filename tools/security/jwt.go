package security

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var (
	ErrSubjectMismatch = errors.New("token subject does not match identity")
	ErrTokenMissing    = errors.New("token missing")
)

// Options controls the HMAC secret, algorithm and token lifetime.
type Options struct {
	Secret []byte        // empty disables verification
	Alg    string        // HS256/HS384/HS512, default HS256
	TTL    time.Duration // default 2h, only used by Issue
	Leeway time.Duration
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour, Leeway: 30 * time.Second}
}

func (o Options) Enabled() bool { return len(o.Secret) > 0 }

// IdentityClaims is the subset of claims the gateway reads from a connection token.
type IdentityClaims struct {
	Name string `json:"name,omitempty"`
	jwtlib.RegisteredClaims
}

// Issue signs a token for identity; the session issuer normally does this, the gateway
// only needs it for tests and the roomwatch CLI.
func Issue(opts Options, identity, displayName string) (string, time.Time, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", time.Time{}, err
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()
	exp := now.Add(opts.TTL)
	claims := IdentityClaims{
		Name: displayName,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(exp),
		},
	}
	signed, err := jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

// VerifyIdentity checks token and that its subject is identity.
func VerifyIdentity(opts Options, token, identity string) (*IdentityClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMissing
	}
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, err
	}
	claims := &IdentityClaims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (interface{}, error) {
		return opts.Secret, nil
	}, jwtlib.WithValidMethods([]string{method.Alg()}), jwtlib.WithLeeway(opts.Leeway))
	if err != nil {
		return nil, errors.Wrap(err, "parse token")
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject != identity {
		return nil, ErrSubjectMismatch
	}
	return claims, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, errors.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
