package middleware

import (
	"strings"
	"time"

	"taskplane/pkg/config"
	"taskplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const principalKey = "auth.principal"

// Verifier checks bearer tokens issued by the external identity provider
// and extracts the subject claim. Everything downstream treats that subject
// as an opaque principal identifier; no other claim is consulted.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier builds a Verifier from explicit configuration. The secret is
// injected once at process start; nothing reads ambient state afterwards.
func NewVerifier(cfg *config.Config) *Verifier {
	return &Verifier{
		secret:   []byte(cfg.Auth.Secret),
		issuer:   cfg.Auth.Issuer,
		audience: cfg.Auth.Audience,
	}
}

// Verify parses and validates a compact HS256 token, returning the subject.
func (v *Verifier) Verify(raw string) (string, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", errutil.Unauthorized("invalid token", errutil.WithErr(err))
	}

	var claims jwt.Claims
	if err := tok.Claims(v.secret, &claims); err != nil {
		return "", errutil.Unauthorized("invalid token signature", errutil.WithErr(err))
	}

	expected := jwt.Expected{Time: time.Now()}
	if v.issuer != "" {
		expected.Issuer = v.issuer
	}
	if v.audience != "" {
		expected.AnyAudience = jwt.Audience{v.audience}
	}
	if err := claims.Validate(expected); err != nil {
		return "", errutil.Unauthorized("token validation failed", errutil.WithErr(err))
	}

	if claims.Subject == "" {
		return "", errutil.Unauthorized("token missing subject claim")
	}

	return claims.Subject, nil
}

// Auth authenticates every request and stores the principal on the context.
func Auth(verifier *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := extractBearer(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{
				"code":    errutil.StatusUnauthorized,
				"message": err.Error(),
			}})
			return
		}

		principal, err := verifier.Verify(raw)
		if err != nil {
			var msg string
			if base, ok := err.(errutil.BaseError); ok {
				msg = base.Message
			} else {
				msg = "unauthorized"
			}
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{
				"code":    errutil.StatusUnauthorized,
				"message": msg,
			}})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func extractBearer(header string) (string, error) {
	if header == "" {
		return "", errutil.Unauthorized("missing Authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errutil.Unauthorized("invalid Authorization header format, use: Bearer <token>")
	}
	return parts[1], nil
}

// Principal returns the authenticated principal stored by Auth.
func Principal(c *gin.Context) string {
	v, _ := c.Get(principalKey)
	principal, _ := v.(string)
	return principal
}
