package security

import (
	"crypto/subtle"
	"strings"

	"PMarket/tools/apiresp"
	"PMarket/tools/errs"

	"github.com/gin-gonic/gin"
)

// context key holding the accepted token
const PPCtxAuthKey = "authorization"

type Options struct {
	// HeaderToken is read first, default "authorization".
	HeaderToken               string
	EnableAuthorizationBearer bool // default true

	// Tokens lists the accepted service tokens; empty rejects every request.
	Tokens []string
}

func DefaultOptions(tokens ...string) *Options {
	return &Options{
		HeaderToken:               PPCtxAuthKey,
		EnableAuthorizationBearer: true,
		Tokens:                    tokens,
	}
}

// TokenFrom reads the raw token from the configured header or an Authorization bearer.
func TokenFrom(c *gin.Context, opts *Options) string {
	token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
	if opts.EnableAuthorizationBearer {
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); len(authz) > len("bearer ") &&
			strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			token = strings.TrimSpace(authz[len("bearer "):])
		}
	}
	return token
}

func (o *Options) accepts(token string) bool {
	if token == "" {
		return false
	}
	for _, t := range o.Tokens {
		if t != "" && subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := TokenFrom(c, opts)
		if !opts.accepts(token) {
			apiresp.Fail(c, errs.ErrUnauthorized.Wrap())
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Next()
	}
}
